// Package modules holds the collaborator modules bound to engine threads.
//
// Ownership boundary:
// - game thread session flow (config apply, screen handshake, developer commands)
//
// - graphics, audio, media, network-write, dynamics and stdin stand-ins
//
// Each module exposes Push* methods that enqueue work on its own thread and
// never block on another module. Rendering, audio DSP, physics and protocol
// content are out of scope; the modules implement only the message boundary.
package modules
