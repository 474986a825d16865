// Package thread owns long-lived execution contexts and the modules bound to them.
//
// Ownership boundary:
// - thread identity and "am I on thread X" checks
//
// - per-thread call queues and event loops
//
// - module attachment (at most one per thread)
//
// Lifecycle order:
// - create -> attach -> bootstrapped gate -> loop
//
// - worker loops do not start processing until the registry is marked bootstrapped.
//
// - the main thread wraps the caller and only runs calls from RunEventLoop or PumpOnce.
//
// Cross-thread work is always a pushed Call; nothing here blocks on another thread.
package thread
