// Package bootstrap brings the engine up and hands control to the event loop.
//
// Ownership boundary:
// - phase ordering (provision, activate, steady state)
//
// - the single top-level fatal boundary
//
// - worker shutdown before the platform's final hook
//
// Run is invoked exactly once per Orchestrator from the process main thread.
// Provisioning happens before any worker executes a call: workers are gated
// on the bootstrapped flag, which is the last provisioning step.
package bootstrap
