package modules

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCommand = errors.New("modules: invalid command")
	ErrUnknownCommand = errors.New("modules: unknown command")
)

// Developer commands accepted by the game thread.
const (
	CommandQuit    = "quit"
	CommandSay     = "say"
	CommandVolume  = "volume"
	CommandSend    = "send"
	CommandStatus  = "status"
	CommandSignIn  = "signin"
	CommandSignOut = "signout"
)

// Command is one developer command line split into name and arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a command line on whitespace. Names are case-folded.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, nil
}

// Validate enforces per-command argument counts.
func (c Command) Validate() error {
	switch c.Name {
	case CommandQuit, CommandStatus, CommandSignOut:
		return nil
	case CommandSignIn:
		if len(c.Args) == 0 {
			return wrapInvalidCommand("signin needs an account name")
		}
	case CommandSay:
		if len(c.Args) == 0 {
			return wrapInvalidCommand("say needs a message")
		}
	case CommandVolume:
		if len(c.Args) != 1 {
			return wrapInvalidCommand("volume needs one value")
		}
	case CommandSend:
		if len(c.Args) < 2 {
			return wrapInvalidCommand("send needs an address and a payload")
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
	}
	return nil
}

// Rest joins the arguments from index i.
func (c Command) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

func wrapInvalidCommand(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, reason)
}
