package thread

import "fmt"

// Identifier names one of the fixed engine threads.
type Identifier int

const (
	Invalid Identifier = iota
	Main
	Game
	Audio
	Media
	NetworkWrite
	GraphicsServer
	Dynamics
	Stdin
)

var identifierNames = map[Identifier]string{
	Main:           "main",
	Game:           "game",
	Audio:          "audio",
	Media:          "media",
	NetworkWrite:   "network-write",
	GraphicsServer: "graphics-server",
	Dynamics:       "dynamics",
	Stdin:          "stdin",
}

func (id Identifier) String() string {
	if name, ok := identifierNames[id]; ok {
		return name
	}
	return fmt.Sprintf("thread(%d)", int(id))
}

func (id Identifier) Valid() bool {
	_, ok := identifierNames[id]
	return ok
}

// Type distinguishes the wrapped process main thread from spawned workers.
type Type int

const (
	TypeStandard Type = iota
	TypeMain
)

func (t Type) String() string {
	if t == TypeMain {
		return "main"
	}
	return "standard"
}
