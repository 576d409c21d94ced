package game

// WinRule decides whether a scored guess counts as a perfect game.
type WinRule int

const (
	// WinIgnoreFalsePositives: every target marked, extra marks are free.
	WinIgnoreFalsePositives WinRule = iota
	// WinStrict: every target marked and no decoy marked.
	WinStrict
)

// Score compares marks against the grid kinds. Marks outside the grid are ignored.
func Score(grid Grid, marks map[int]struct{}, rule WinRule) Result {
	var r Result
	for _, c := range grid {
		_, marked := marks[c.Index]
		switch {
		case c.Kind == KindTarget && marked:
			r.Correct++
		case c.Kind == KindTarget:
			r.Missed++
		case marked:
			r.FalsePositives++
		}
	}
	r.Perfect = r.Missed == 0
	if rule == WinStrict {
		r.Perfect = r.Perfect && r.FalsePositives == 0
	}
	return r
}
