// internal/game/types.go
//
// Core type definitions for the color memory engine.
// Defines:
//   - Config: grid dimensions, color count and reveal duration for one game.
//   - Phase: Setup → Revealing → Guessing → Result.
//   - Kind/Cell/Grid: the generated board (targets vs. decoys).
//   - Result: score of a submitted guess.
//   - Snapshot: read-only copy handed to the presentation layer.

package game

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Upper bounds enforced by Config.Validate. They keep the grid allocatable
// and the reveal duration representable as a time.Duration.
const (
	MaxCells         = 1 << 20
	MaxRevealSeconds = math.MaxInt64 / int64(time.Second)
)

// Config holds the parameters of a single game.
// It is immutable while a game is in flight.
type Config struct {
	Width         int `json:"width"`         // columns, ≥ 1; Width*Height ≤ MaxCells
	Height        int `json:"height"`        // rows, ≥ 1
	ColorCount    int `json:"colorCount"`    // ≥ 2; one in ColorCount cells is a target
	RevealSeconds int `json:"revealSeconds"` // 1..MaxRevealSeconds
}

// TotalCells returns Width*Height.
func (c Config) TotalCells() int { return c.Width * c.Height }

// TargetCount returns floor(TotalCells / ColorCount).
func (c Config) TargetCount() int {
	if c.ColorCount <= 0 {
		return 0
	}
	return c.TotalCells() / c.ColorCount
}

// Validate checks the bounds of every field. The cell count is checked by
// division so a huge Width*Height cannot wrap around.
func (c Config) Validate() error {
	switch {
	case c.Width < 1:
		return fmt.Errorf("%w: width must be >= 1, got %d", ErrInvalidConfig, c.Width)
	case c.Height < 1:
		return fmt.Errorf("%w: height must be >= 1, got %d", ErrInvalidConfig, c.Height)
	case c.ColorCount < 2:
		return fmt.Errorf("%w: colorCount must be >= 2, got %d", ErrInvalidConfig, c.ColorCount)
	case c.Width > MaxCells/c.Height:
		return fmt.Errorf("%w: width*height must be <= %d, got %dx%d", ErrInvalidConfig, MaxCells, c.Width, c.Height)
	case c.RevealSeconds < 1:
		return fmt.Errorf("%w: revealSeconds must be >= 1, got %d", ErrInvalidConfig, c.RevealSeconds)
	case int64(c.RevealSeconds) > MaxRevealSeconds:
		return fmt.Errorf("%w: revealSeconds must be <= %d, got %d", ErrInvalidConfig, MaxRevealSeconds, c.RevealSeconds)
	}
	return nil
}

// Phase is the engine's position in the game state machine.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseRevealing
	PhaseGuessing
	PhaseResult
)

var phaseNames = map[Phase]string{
	PhaseSetup:     "setup",
	PhaseRevealing: "revealing",
	PhaseGuessing:  "guessing",
	PhaseResult:    "result",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a phase name produced by MarshalText.
func (p *Phase) UnmarshalText(b []byte) error {
	for k, v := range phaseNames {
		if v == string(b) {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(b))
}

// Kind tells whether a cell must be remembered.
// KindHidden only appears in masked snapshots.
type Kind int

const (
	KindHidden Kind = iota
	KindDecoy
	KindTarget
)

func (k Kind) String() string {
	switch k {
	case KindDecoy:
		return "decoy"
	case KindTarget:
		return "target"
	}
	return "hidden"
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

// UnmarshalJSON decodes a kind name produced by MarshalJSON.
func (k *Kind) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for _, c := range []Kind{KindHidden, KindDecoy, KindTarget} {
		if c.String() == name {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", name)
}

// Cell is one square of the grid.
// Color is purely cosmetic and never takes part in scoring.
type Cell struct {
	Index int    `json:"index"`
	Kind  Kind   `json:"kind"`
	Color string `json:"color,omitempty"`
}

// Grid is the board for one game, ordered by cell index.
type Grid []Cell

// Targets returns the indices of all target cells in ascending order.
func (g Grid) Targets() []int {
	out := []int{}
	for _, c := range g {
		if c.Kind == KindTarget {
			out = append(out, c.Index)
		}
	}
	return out
}

// Result is the score of a submitted guess.
type Result struct {
	Correct        int  `json:"correct"`        // targets that were marked
	Missed         int  `json:"missed"`         // targets left unmarked
	FalsePositives int  `json:"falsePositives"` // decoys that were marked
	Perfect        bool `json:"perfect"`        // win according to the engine's WinRule
}

// PhaseChange is delivered to phase listeners.
// Game is the engine state right after the transition.
type PhaseChange struct {
	From       Phase    `json:"from"`
	To         Phase    `json:"to"`
	GameNumber int      `json:"gameNumber"`
	Game       Snapshot `json:"game"`
}

// Snapshot is a copy of the engine state safe to hand to other goroutines.
type Snapshot struct {
	GameNumber       int     `json:"gameNumber"`
	Phase            Phase   `json:"phase"`
	Config           Config  `json:"config"`
	Grid             Grid    `json:"grid"`
	Marks            []int   `json:"marks"`
	Result           *Result `json:"result,omitempty"`
	RemainingSeconds int     `json:"remainingSeconds"`
}

// Masked returns a copy with kinds and colors stripped from the grid.
// Used while the player is guessing so the answer is not on the wire.
func (s Snapshot) Masked() Snapshot {
	grid := make(Grid, len(s.Grid))
	for i, c := range s.Grid {
		grid[i] = Cell{Index: c.Index, Kind: KindHidden}
	}
	s.Grid = grid
	return s
}
