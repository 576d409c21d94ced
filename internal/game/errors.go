package game

import "errors"

// Sentinel errors returned by the engine. Details are wrapped with %w,
// so callers should compare with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrInvalidIndex  = errors.New("invalid index")
	ErrInvalidPhase  = errors.New("invalid phase")
)
