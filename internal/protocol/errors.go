package protocol

import (
	"errors"

	"agirush.ai/internal/sim/game"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"

	// Command layer.
	ErrBadRequest           = "E_BAD_REQUEST"
	ErrInsufficientFunds    = "E_INSUFFICIENT_FUNDS"
	ErrInsufficientCapacity = "E_INSUFFICIENT_CAPACITY"
	ErrInvalidTransition    = "E_INVALID_TRANSITION"
	ErrLocked               = "E_LOCKED"
	ErrInternal             = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:      {},
	ErrRateLimit:            {},
	ErrBadRequest:           {},
	ErrInsufficientFunds:    {},
	ErrInsufficientCapacity: {},
	ErrInvalidTransition:    {},
	ErrLocked:               {},
	ErrInternal:             {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeForError maps an engine error to its wire code. ErrLocked is a kind of
// ErrInvalidTransition, so it is matched first.
func CodeForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, game.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, game.ErrInsufficientCapacity):
		return ErrInsufficientCapacity
	case errors.Is(err, game.ErrLocked):
		return ErrLocked
	case errors.Is(err, game.ErrInvalidTransition):
		return ErrInvalidTransition
	case errors.Is(err, game.ErrBadRequest):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}
