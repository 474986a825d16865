// Package foundation owns the process singletons that have no cross-thread
// dependencies and are constructed before any thread exists.
//
// Ownership boundary:
// - account store
// - utility services
// - static scene-type registry
package foundation
