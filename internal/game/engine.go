// internal/game/engine.go
//
// Game engine for a single color memory session.
// Responsibilities:
//   - Hold the configuration (changeable only while idle).
//   - Generate a fresh grid on Start and arm the reveal timer.
//   - Flip Revealing → Guessing when the timer fires (or on Reveal).
//   - Record marks while guessing and score them on Submit.
//   - Notify phase listeners after every transition.
//
// Notes:
//   - Every timer is tagged with the game generation it was armed for; a
//     callback from an older generation is ignored even if Stop lost the race.
//   - All state is guarded by one mutex. Listeners run after it is released,
//     so they may call back into the engine.
//   - Phase changes are queued under the mutex and delivered in that order by
//     whichever goroutine is not already delivering. A change may therefore
//     reach listeners after the call that caused it has returned.
//   - Rejected operations leave the engine untouched.

package game

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultConfig is used until Configure is called.
var DefaultConfig = Config{Width: 5, Height: 5, ColorCount: 2, RevealSeconds: 5}

// Engine drives one player's games. Safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	phase  Phase
	grid   Grid
	marks  map[int]struct{}
	result *Result

	gen      int       // bumped on every Start
	timer    Timer     // armed only while revealing
	deadline time.Time // reveal end for the current generation

	listeners    map[int]func(PhaseChange)
	nextListener int
	pending      []delivery // queued changes, oldest first
	delivering   bool       // a goroutine is draining pending
	closed       chan struct{}

	clock   Clock
	rnd     *rand.Rand
	palette Palette
	rule    WinRule
	log     zerolog.Logger
}

// delivery is one queued change with the listeners registered when it happened.
type delivery struct {
	change    PhaseChange
	listeners []func(PhaseChange)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the system clock (tests).
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithRand sets the random source used for grid generation.
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rnd = r } }

// WithPalette sets the decoy palette; nil disables decoy colors.
func WithPalette(p Palette) Option { return func(e *Engine) { e.palette = p } }

// WithWinRule selects how Result.Perfect is decided.
func WithWinRule(r WinRule) Option { return func(e *Engine) { e.rule = r } }

// WithLogger attaches a logger for phase transitions.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// New constructs an engine in PhaseSetup with DefaultConfig.
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:       DefaultConfig,
		phase:     PhaseSetup,
		marks:     map[int]struct{}{},
		listeners: map[int]func(PhaseChange){},
		closed:    make(chan struct{}),
		clock:     SystemClock{},
		rnd:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		palette:   CyclePalette{},
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configure replaces the configuration.
// Allowed in Setup and Result; a configure in Result returns the engine to Setup.
func (e *Engine) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.phase != PhaseSetup && e.phase != PhaseResult {
		phase := e.phase
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot configure while %s", ErrInvalidPhase, phase)
	}
	e.cfg = cfg
	owner := false
	if e.phase == PhaseResult {
		e.grid = nil
		e.marks = map[int]struct{}{}
		owner = e.transition(PhaseSetup)
	}
	e.mu.Unlock()

	e.deliver(owner)
	return nil
}

// Start begins a new game: validates the config, discards the previous
// grid, marks and result, generates a new grid and arms the reveal timer.
// Calling Start while Revealing restarts the game and cancels the pending timer.
func (e *Engine) Start() (Snapshot, error) {
	e.mu.Lock()
	if e.phase == PhaseGuessing {
		e.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: submit the current guess before starting", ErrInvalidPhase)
	}
	if err := e.cfg.Validate(); err != nil {
		e.mu.Unlock()
		return Snapshot{}, err
	}

	e.stopTimerLocked()
	e.gen++
	e.grid = Generate(e.cfg, e.rnd, e.palette)
	e.marks = map[int]struct{}{}
	e.result = nil

	reveal := time.Duration(e.cfg.RevealSeconds) * time.Second
	e.deadline = e.clock.Now().Add(reveal)
	gen := e.gen
	e.timer = e.clock.AfterFunc(reveal, func() { e.expire(gen) })

	owner := e.transition(PhaseRevealing)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.deliver(owner)
	return snap, nil
}

// Reveal ends the reveal phase early, as if the timer had fired.
func (e *Engine) Reveal() error {
	e.mu.Lock()
	if e.phase != PhaseRevealing {
		phase := e.phase
		e.mu.Unlock()
		return fmt.Errorf("%w: nothing to reveal while %s", ErrInvalidPhase, phase)
	}
	e.stopTimerLocked()
	owner := e.transition(PhaseGuessing)
	e.mu.Unlock()

	e.deliver(owner)
	return nil
}

// expire is the reveal timer callback for generation gen.
func (e *Engine) expire(gen int) {
	e.mu.Lock()
	if gen != e.gen || e.phase != PhaseRevealing {
		current := e.gen
		e.mu.Unlock()
		e.log.Debug().Int("timerGame", gen).Int("game", current).Msg("stale reveal timer ignored")
		return
	}
	e.timer = nil
	owner := e.transition(PhaseGuessing)
	e.mu.Unlock()

	e.deliver(owner)
}

// Toggle flips the mark on cell index.
func (e *Engine) Toggle(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseGuessing {
		return fmt.Errorf("%w: cannot mark cells while %s", ErrInvalidPhase, e.phase)
	}
	if index < 0 || index >= len(e.grid) {
		return fmt.Errorf("%w: %d outside [0, %d)", ErrInvalidIndex, index, len(e.grid))
	}
	if _, ok := e.marks[index]; ok {
		delete(e.marks, index)
	} else {
		e.marks[index] = struct{}{}
	}
	return nil
}

// Submit scores the current marks and ends the game.
func (e *Engine) Submit() (Result, error) {
	e.mu.Lock()
	if e.phase != PhaseGuessing {
		phase := e.phase
		e.mu.Unlock()
		return Result{}, fmt.Errorf("%w: cannot submit while %s", ErrInvalidPhase, phase)
	}
	res := Score(e.grid, e.marks, e.rule)
	e.result = &res
	number := e.gen
	owner := e.transition(PhaseResult)
	e.mu.Unlock()

	e.log.Info().
		Int("game", number).
		Int("correct", res.Correct).
		Int("missed", res.Missed).
		Int("falsePositives", res.FalsePositives).
		Bool("perfect", res.Perfect).
		Msg("guess scored")

	e.deliver(owner)
	return res, nil
}

// Phase reports the current phase. It never mutates state.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Marks returns the marked indices in ascending order.
func (e *Engine) Marks() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marksLocked()
}

// LastResult returns the most recent score, if the current game has one.
func (e *Engine) LastResult() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return Result{}, false
	}
	return *e.result, true
}

// RemainingRevealSeconds returns whole seconds (rounded up) until the reveal
// ends, or 0 outside PhaseRevealing.
func (e *Engine) RemainingRevealSeconds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remainingLocked()
}

// Snapshot copies the full engine state, grid kinds included.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// OnPhaseChange registers fn for every phase transition and returns a func
// that removes it.
func (e *Engine) OnPhaseChange(fn func(PhaseChange)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Close cancels any pending timer, drops all listeners and undelivered
// changes, and closes the Done channel. Calling it again is a no-op.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
	e.listeners = map[int]func(PhaseChange){}
	e.pending = nil
	select {
	case <-e.closed:
	default:
		close(e.closed)
	}
}

// Done is closed once the engine has been closed.
func (e *Engine) Done() <-chan struct{} { return e.closed }

// ----------------------------- internals -----------------------------------

// transition moves to phase `to` and queues the change for the listeners.
// It reports whether the caller must deliver the queue after unlocking.
func (e *Engine) transition(to Phase) (owner bool) {
	change := PhaseChange{From: e.phase, To: to, GameNumber: e.gen}
	e.phase = to
	change.Game = e.snapshotLocked()
	e.log.Debug().
		Stringer("from", change.From).
		Stringer("to", change.To).
		Int("game", change.GameNumber).
		Msg("phase change")

	e.pending = append(e.pending, delivery{change: change, listeners: e.listenersLocked()})
	if e.delivering {
		return false
	}
	e.delivering = true
	return true
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) remainingLocked() int {
	if e.phase != PhaseRevealing {
		return 0
	}
	left := e.deadline.Sub(e.clock.Now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (e *Engine) marksLocked() []int {
	out := slices.Sorted(maps.Keys(e.marks))
	if out == nil {
		out = []int{}
	}
	return out
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		GameNumber:       e.gen,
		Phase:            e.phase,
		Config:           e.cfg,
		Grid:             slices.Clone(e.grid),
		Marks:            e.marksLocked(),
		RemainingSeconds: e.remainingLocked(),
	}
	if snap.Grid == nil {
		snap.Grid = Grid{}
	}
	if e.phase == PhaseResult && e.result != nil {
		res := *e.result
		snap.Result = &res
	}
	return snap
}

func (e *Engine) listenersLocked() []func(PhaseChange) {
	out := make([]func(PhaseChange), 0, len(e.listeners))
	for _, id := range slices.Sorted(maps.Keys(e.listeners)) {
		out = append(out, e.listeners[id])
	}
	return out
}

// deliver drains the change queue when owner is set. Must be called without
// the mutex held.
func (e *Engine) deliver(owner bool) {
	if !owner {
		return
	}
	for {
		e.mu.Lock()
		batch := e.pending
		e.pending = nil
		if len(batch) == 0 {
			e.delivering = false
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		for _, d := range batch {
			for _, fn := range d.listeners {
				fn(d.change)
			}
		}
	}
}
