package game

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock), WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	e := New(opts...)
	require.NoError(t, e.Configure(cfg))
	return e, clock
}

func startAndReveal(t *testing.T, e *Engine, clock *fakeClock) Snapshot {
	t.Helper()
	snap, err := e.Start()
	require.NoError(t, err)
	require.Equal(t, PhaseRevealing, snap.Phase)
	clock.Advance(time.Duration(snap.Config.RevealSeconds) * time.Second)
	require.Equal(t, PhaseGuessing, e.Phase())
	return snap
}

var twoByTwo = Config{Width: 2, Height: 2, ColorCount: 2, RevealSeconds: 3}

func TestNewEngineStartsInSetup(t *testing.T) {
	e := New()
	assert.Equal(t, PhaseSetup, e.Phase())
	assert.Equal(t, DefaultConfig, e.Config())
	assert.Zero(t, e.RemainingRevealSeconds())
	assert.Empty(t, e.Marks())
	_, ok := e.LastResult()
	assert.False(t, ok)
}

func TestConfigureRejectsInvalidConfig(t *testing.T) {
	e, _ := newTestEngine(t, twoByTwo)
	testCases := []Config{
		{Width: 0, Height: 2, ColorCount: 2, RevealSeconds: 1},
		{Width: 2, Height: 0, ColorCount: 2, RevealSeconds: 1},
		{Width: 2, Height: 2, ColorCount: 1, RevealSeconds: 1},
		{Width: 2, Height: 2, ColorCount: 2, RevealSeconds: 0},
		{Width: -3, Height: 2, ColorCount: 2, RevealSeconds: 1},
		{Width: 1 << 62, Height: 2, ColorCount: 2, RevealSeconds: 1},
		{Width: 1 << 31, Height: 1 << 31, ColorCount: 2, RevealSeconds: 1},
		{Width: MaxCells + 1, Height: 1, ColorCount: 2, RevealSeconds: 1},
		{Width: 2, Height: 2, ColorCount: 2, RevealSeconds: math.MaxInt},
	}
	for _, cfg := range testCases {
		err := e.Configure(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "cfg %+v", cfg)
		assert.Equal(t, twoByTwo, e.Config(), "config must be unchanged")
	}
}

func TestLargestGridIsAccepted(t *testing.T) {
	e, _ := newTestEngine(t, twoByTwo)
	require.NoError(t, e.Configure(Config{Width: MaxCells, Height: 1, ColorCount: 2, RevealSeconds: 1}))
	require.NoError(t, e.Configure(Config{Width: 1 << 10, Height: 1 << 10, ColorCount: 2, RevealSeconds: 1}))

	snap, err := e.Start()
	require.NoError(t, err)
	assert.Len(t, snap.Grid, MaxCells)
	assert.Len(t, snap.Grid.Targets(), MaxCells/2)
}

func TestConfigureOnlyWhileIdle(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	other := Config{Width: 3, Height: 3, ColorCount: 3, RevealSeconds: 2}

	_, err := e.Start()
	require.NoError(t, err)
	assert.ErrorIs(t, e.Configure(other), ErrInvalidPhase)

	clock.Advance(3 * time.Second)
	assert.ErrorIs(t, e.Configure(other), ErrInvalidPhase)
	assert.Equal(t, twoByTwo, e.Config())

	require.NoError(t, e.Toggle(0))
	_, err = e.Submit()
	require.NoError(t, err)

	require.NoError(t, e.Configure(other))
	assert.Equal(t, PhaseSetup, e.Phase())
	assert.Equal(t, other, e.Config())
	assert.Empty(t, e.Marks())
}

func TestStartRevealsThenGuesses(t *testing.T) {
	e, clock := newTestEngine(t, Config{Width: 5, Height: 4, ColorCount: 3, RevealSeconds: 5})

	snap, err := e.Start()
	require.NoError(t, err)
	assert.Equal(t, PhaseRevealing, snap.Phase)
	assert.Equal(t, 1, snap.GameNumber)
	assert.Len(t, snap.Grid, 20)
	assert.Len(t, snap.Grid.Targets(), 6)
	assert.Equal(t, 5, snap.RemainingSeconds)

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, PhaseRevealing, e.Phase())
	assert.Equal(t, 4, e.RemainingRevealSeconds())

	clock.Advance(3500 * time.Millisecond)
	assert.Equal(t, PhaseGuessing, e.Phase())
	assert.Zero(t, e.RemainingRevealSeconds())
}

func TestPhaseIsIdempotent(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	_, err := e.Start()
	require.NoError(t, err)

	before := e.Snapshot()
	for range 10 {
		assert.Equal(t, PhaseRevealing, e.Phase())
	}
	assert.Equal(t, before, e.Snapshot())
	assert.Equal(t, 1, clock.Armed())
}

func TestNoInputWhileRevealing(t *testing.T) {
	e, _ := newTestEngine(t, twoByTwo)
	_, err := e.Start()
	require.NoError(t, err)

	assert.ErrorIs(t, e.Toggle(0), ErrInvalidPhase)
	_, err = e.Submit()
	assert.ErrorIs(t, err, ErrInvalidPhase)
	assert.Empty(t, e.Marks())
}

func TestToggleIsAnInvolution(t *testing.T) {
	e, clock := newTestEngine(t, Config{Width: 3, Height: 3, ColorCount: 2, RevealSeconds: 1})
	startAndReveal(t, e, clock)

	require.NoError(t, e.Toggle(4))
	require.NoError(t, e.Toggle(1))
	assert.Equal(t, []int{1, 4}, e.Marks())

	require.NoError(t, e.Toggle(7))
	require.NoError(t, e.Toggle(7))
	assert.Equal(t, []int{1, 4}, e.Marks())

	require.NoError(t, e.Toggle(4))
	assert.Equal(t, []int{1}, e.Marks())
	assert.Equal(t, PhaseGuessing, e.Phase())
}

func TestToggleOutsideGridFails(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	startAndReveal(t, e, clock)

	for _, i := range []int{5, 4, -1} {
		err := e.Toggle(i)
		assert.ErrorIs(t, err, ErrInvalidIndex, "index %d", i)
	}
	assert.Empty(t, e.Marks())
	assert.Equal(t, PhaseGuessing, e.Phase())
}

func TestScenarioMarkExactTargets(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	snap := startAndReveal(t, e, clock)

	targets := snap.Grid.Targets()
	require.Len(t, targets, 2)
	for _, i := range targets {
		require.NoError(t, e.Toggle(i))
	}

	res, err := e.Submit()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 0, res.Missed)
	assert.Equal(t, 0, res.FalsePositives)
	assert.True(t, res.Perfect)
	assert.Equal(t, PhaseResult, e.Phase())

	last, ok := e.LastResult()
	require.True(t, ok)
	assert.Equal(t, res, last)
}

func TestScenarioMarkNothing(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	startAndReveal(t, e, clock)

	res, err := e.Submit()
	require.NoError(t, err)
	assert.Equal(t, Result{Correct: 0, Missed: 2}, res)
}

func TestScenarioNoTargetsIsVacuousWin(t *testing.T) {
	e, clock := newTestEngine(t, Config{Width: 1, Height: 1, ColorCount: 5, RevealSeconds: 1})
	snap := startAndReveal(t, e, clock)
	assert.Empty(t, snap.Grid.Targets())

	res, err := e.Submit()
	require.NoError(t, err)
	assert.Equal(t, 0, res.Missed)
	assert.True(t, res.Perfect)
}

func TestMarkingEverythingAndWinRules(t *testing.T) {
	for _, tc := range []struct {
		rule    WinRule
		perfect bool
	}{
		{WinIgnoreFalsePositives, true},
		{WinStrict, false},
	} {
		e, clock := newTestEngine(t, twoByTwo, WithWinRule(tc.rule))
		startAndReveal(t, e, clock)
		for i := range 4 {
			require.NoError(t, e.Toggle(i))
		}
		res, err := e.Submit()
		require.NoError(t, err)
		assert.Equal(t, 2, res.Correct)
		assert.Equal(t, 2, res.FalsePositives)
		assert.Equal(t, tc.perfect, res.Perfect)
	}
}

func TestSubmitOutsideGuessingKeepsPreviousResult(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)

	_, err := e.Submit()
	assert.ErrorIs(t, err, ErrInvalidPhase)
	_, ok := e.LastResult()
	assert.False(t, ok)

	startAndReveal(t, e, clock)
	first, err := e.Submit()
	require.NoError(t, err)

	_, err = e.Submit()
	assert.ErrorIs(t, err, ErrInvalidPhase)
	last, ok := e.LastResult()
	require.True(t, ok)
	assert.Equal(t, first, last)
	assert.Equal(t, PhaseResult, e.Phase())
}

func TestStartWhileGuessingFails(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	snap := startAndReveal(t, e, clock)
	require.NoError(t, e.Toggle(0))

	_, err := e.Start()
	assert.ErrorIs(t, err, ErrInvalidPhase)
	assert.Equal(t, PhaseGuessing, e.Phase())
	assert.Equal(t, []int{0}, e.Marks())
	assert.Equal(t, snap.Grid, e.Snapshot().Grid)
}

func TestStartFromResultBeginsNewGame(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	startAndReveal(t, e, clock)
	require.NoError(t, e.Toggle(1))
	_, err := e.Submit()
	require.NoError(t, err)

	snap, err := e.Start()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.GameNumber)
	assert.Equal(t, PhaseRevealing, snap.Phase)
	assert.Empty(t, snap.Marks)
	assert.Nil(t, snap.Result)
	_, ok := e.LastResult()
	assert.False(t, ok)
}

func TestRestartWhileRevealingCancelsStaleTimer(t *testing.T) {
	e, clock := newTestEngine(t, Config{Width: 4, Height: 4, ColorCount: 2, RevealSeconds: 5})

	_, err := e.Start()
	require.NoError(t, err)
	clock.Advance(3 * time.Second)

	second, err := e.Start()
	require.NoError(t, err)
	assert.Equal(t, 2, second.GameNumber)
	assert.Equal(t, 2, clock.Armed())

	// The first timer was due 2s from now; it must not flip the new game.
	clock.Advance(2 * time.Second)
	assert.Equal(t, PhaseRevealing, e.Phase())
	assert.Equal(t, 3, e.RemainingRevealSeconds())

	// Even if the first callback runs anyway, the generation guard holds.
	clock.FireStale(0)
	assert.Equal(t, PhaseRevealing, e.Phase())
	assert.Equal(t, second.Grid, e.Snapshot().Grid)

	clock.Advance(3 * time.Second)
	assert.Equal(t, PhaseGuessing, e.Phase())
}

func TestStaleTimerAfterRevealIsIgnored(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	_, err := e.Start()
	require.NoError(t, err)
	require.NoError(t, e.Reveal())
	assert.Equal(t, PhaseGuessing, e.Phase())

	clock.FireStale(0)
	assert.Equal(t, PhaseGuessing, e.Phase())
	_, err = e.Submit()
	require.NoError(t, err)

	clock.FireStale(0)
	assert.Equal(t, PhaseResult, e.Phase())
}

func TestRevealOutsideRevealingFails(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	assert.ErrorIs(t, e.Reveal(), ErrInvalidPhase)
	startAndReveal(t, e, clock)
	assert.ErrorIs(t, e.Reveal(), ErrInvalidPhase)
}

func TestPhaseListeners(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)

	var got []PhaseChange
	unsubscribe := e.OnPhaseChange(func(c PhaseChange) {
		assert.Equal(t, c.To, c.Game.Phase)
		assert.Equal(t, c.GameNumber, c.Game.GameNumber)
		c.Game = Snapshot{}
		got = append(got, c)
		// listeners may call back into the engine
		_ = e.Phase()
	})

	startAndReveal(t, e, clock)
	_, err := e.Submit()
	require.NoError(t, err)

	assert.Equal(t, []PhaseChange{
		{From: PhaseSetup, To: PhaseRevealing, GameNumber: 1},
		{From: PhaseRevealing, To: PhaseGuessing, GameNumber: 1},
		{From: PhaseGuessing, To: PhaseResult, GameNumber: 1},
	}, got)

	unsubscribe()
	unsubscribe()
	_, err = e.Start()
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestPhaseChangesCarryTheirOwnSnapshot(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	var got []PhaseChange
	e.OnPhaseChange(func(c PhaseChange) { got = append(got, c) })

	startAndReveal(t, e, clock)
	require.NoError(t, e.Toggle(1))
	_, err := e.Submit()
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, 3, got[0].Game.RemainingSeconds)
	assert.Empty(t, got[1].Game.Marks)
	assert.Nil(t, got[1].Game.Result)
	assert.Equal(t, []int{1}, got[2].Game.Marks)
	require.NotNil(t, got[2].Game.Result)
}

// A slow listener on one goroutine must not let later changes made on other
// goroutines overtake the change it is still handling.
func TestPhaseChangesDeliveredInOrder(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)

	entered := make(chan struct{})
	release := make(chan struct{})
	var got []PhaseChange
	e.OnPhaseChange(func(c PhaseChange) {
		if len(got) == 0 {
			close(entered)
			<-release
		}
		got = append(got, c)
	})

	started := make(chan struct{})
	go func() {
		defer close(started)
		_, err := e.Start()
		assert.NoError(t, err)
	}()
	<-entered

	clock.Advance(3 * time.Second)
	require.Equal(t, PhaseGuessing, e.Phase())
	_, err := e.Submit()
	require.NoError(t, err)
	require.Equal(t, PhaseResult, e.Phase())

	close(release)
	<-started

	require.Len(t, got, 3)
	for i, to := range []Phase{PhaseRevealing, PhaseGuessing, PhaseResult} {
		assert.Equal(t, to, got[i].To)
		assert.Equal(t, to, got[i].Game.Phase)
	}
}

func TestRejectedOperationsDoNotNotify(t *testing.T) {
	e, _ := newTestEngine(t, twoByTwo)
	calls := 0
	e.OnPhaseChange(func(PhaseChange) { calls++ })

	_ = e.Toggle(0)
	_, _ = e.Submit()
	_ = e.Reveal()
	_ = e.Configure(Config{})
	assert.Zero(t, calls)
}

func TestSnapshotIsACopy(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	snap := startAndReveal(t, e, clock)

	snap.Grid[0].Kind = KindHidden
	snap.Marks = append(snap.Marks, 3)
	fresh := e.Snapshot()
	assert.NotEqual(t, KindHidden, fresh.Grid[0].Kind)
	assert.Empty(t, fresh.Marks)
}

func TestSnapshotMasked(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	startAndReveal(t, e, clock)
	require.NoError(t, e.Toggle(2))

	masked := e.Snapshot().Masked()
	require.Len(t, masked.Grid, 4)
	for i, c := range masked.Grid {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, KindHidden, c.Kind)
		assert.Empty(t, c.Color)
	}
	assert.Equal(t, []int{2}, masked.Marks)
	assert.Len(t, e.Snapshot().Grid.Targets(), 2)
}

func TestCloseSignalsDone(t *testing.T) {
	e, _ := newTestEngine(t, twoByTwo)
	select {
	case <-e.Done():
		t.Fatal("done before Close")
	default:
	}
	e.Close()
	e.Close()
	_, open := <-e.Done()
	assert.False(t, open)
}

func TestCloseStopsTimer(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	calls := 0
	e.OnPhaseChange(func(PhaseChange) { calls++ })
	_, err := e.Start()
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	e.Close()
	clock.Advance(time.Minute)
	assert.Equal(t, PhaseRevealing, e.Phase())
	assert.Equal(t, 1, calls)
}

func TestErrorsWrapSentinels(t *testing.T) {
	e, clock := newTestEngine(t, twoByTwo)
	startAndReveal(t, e, clock)
	err := e.Toggle(5)
	assert.True(t, errors.Is(err, ErrInvalidIndex))
	assert.Contains(t, err.Error(), "5 outside [0, 4)")
}

func TestPhaseText(t *testing.T) {
	for _, p := range []Phase{PhaseSetup, PhaseRevealing, PhaseGuessing, PhaseResult} {
		b, err := p.MarshalText()
		require.NoError(t, err)
		var back Phase
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, p, back)
	}
	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("lobby")))
}
