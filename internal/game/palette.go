// internal/game/palette.go
//
// Cosmetic decoy colors. A Palette never influences scoring; it only
// decorates decoy cells so the reveal phase has something to look at.

package game

import "fmt"

// Palette picks a display color for a decoy cell.
type Palette interface {
	Color(index, colorCount int) string
}

// PaletteFunc adapts a plain function to Palette.
type PaletteFunc func(index, colorCount int) string

func (f PaletteFunc) Color(index, colorCount int) string { return f(index, colorCount) }

// cycleColors is the fixed six-color set decoys rotate through.
var cycleColors = []string{"red", "yellow", "green", "blue", "purple", "pink"}

// CyclePalette cycles through six fixed colors by cell index.
type CyclePalette struct{}

func (CyclePalette) Color(index, _ int) string {
	return cycleColors[index%len(cycleColors)]
}

// HuePalette spreads decoys over colorCount-1 hues, 50° apart.
type HuePalette struct{}

func (HuePalette) Color(index, colorCount int) string {
	n := colorCount - 1
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf("hsl(%d, 100%%, 50%%)", (index%n)*50)
}

// ParsePalette maps a configuration name to a Palette.
// "none" yields a nil palette (decoys without color).
func ParsePalette(name string) (Palette, error) {
	switch name {
	case "", "cycle":
		return CyclePalette{}, nil
	case "hue":
		return HuePalette{}, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown palette %q", name)
}
