package moderation

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the closed set of moderation actions. The zero value is invalid.
type Action int

const (
	Delete Action = iota + 1
	Warn
	Mute
	Kick
	Ban
)

var ErrUnknownAction = errors.New("unknown moderation action")

func (a Action) String() string {
	switch a {
	case Delete:
		return "delete"
	case Warn:
		return "warn"
	case Mute:
		return "mute"
	case Kick:
		return "kick"
	case Ban:
		return "ban"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

func (a Action) Valid() bool {
	return a >= Delete && a <= Ban
}

// Past returns the verb used in mod-log titles and DMs.
func (a Action) Past() string {
	switch a {
	case Delete:
		return "Message deleted"
	case Warn:
		return "Warned"
	case Mute:
		return "Muted"
	case Kick:
		return "Kicked"
	case Ban:
		return "Banned"
	default:
		return "Unknown action"
	}
}

func ParseAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "delete":
		return Delete, nil
	case "warn":
		return Warn, nil
	case "mute", "timeout":
		return Mute, nil
	case "kick":
		return Kick, nil
	case "ban":
		return Ban, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}
