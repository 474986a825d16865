// Package platform provides the OS abstraction and the application layer.
//
// Ownership boundary:
// - desktop platform (device identity, shipped content, auxiliary threads)
//
// - application variants (event-loop app, externally pumped app)
//
// - optional metrics listener lifetime
//
// The orchestrator constructs the platform through Create and drives every
// other method in phase order.
package platform
