// Package core owns process-wide state and the contracts between the
// bootstrap orchestrator and the subsystems it starts.
//
// Ownership boundary:
// - Globals (one per process run)
//
// - Context: once-set subsystem slots and thread-affinity predicates
//
// - Platform, App and module contracts
//
// Slots are written during single-threaded provisioning and read freely after
// bootstrap. An empty slot means "not available yet" before bootstrap and is a
// fatal condition after it.
package core
