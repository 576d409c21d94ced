// internal/game/grid.go
//
// Grid generation.
//
// Exactly floor(total/colorCount) targets are placed by rejection sampling:
// draw a random index, keep it if unseen, repeat until the set is full.
// Every index ends up a target with probability targetCount/total and the
// count is exact, unlike per-cell coin flips.

package game

import "math/rand/v2"

// Generate builds a fresh grid for cfg. The config must already be valid.
// palette may be nil.
func Generate(cfg Config, rnd *rand.Rand, palette Palette) Grid {
	total := cfg.TotalCells()
	want := cfg.TargetCount()

	targets := make(map[int]struct{}, want)
	for len(targets) < want {
		targets[rnd.IntN(total)] = struct{}{}
	}

	grid := make(Grid, total)
	for i := range grid {
		if _, ok := targets[i]; ok {
			grid[i] = Cell{Index: i, Kind: KindTarget}
			continue
		}
		cell := Cell{Index: i, Kind: KindDecoy}
		if palette != nil {
			cell.Color = palette.Color(i, cfg.ColorCount)
		}
		grid[i] = cell
	}
	return grid
}
