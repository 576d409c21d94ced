package httpserver

import (
	"fmt"
	"net/url"

	"github.com/gorilla/schema"

	"github.com/robalobadob/colormemory/internal/game"
)

// configParams is the query-string form of game.Config.
// Missing keys keep the value they were seeded with.
type configParams struct {
	Width  int  `schema:"width"`
	Height int  `schema:"height"`
	Colors int  `schema:"colors"`
	Reveal int  `schema:"reveal"`
	Daily  bool `schema:"daily"` // only honoured by POST /games
}

// decodeConfig overlays the query parameters in src onto base.
func decodeConfig(src url.Values, base game.Config) (game.Config, bool, error) {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)

	p := configParams{
		Width:  base.Width,
		Height: base.Height,
		Colors: base.ColorCount,
		Reveal: base.RevealSeconds,
	}
	if err := dec.Decode(&p, src); err != nil {
		return game.Config{}, false, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	cfg := game.Config{
		Width:         p.Width,
		Height:        p.Height,
		ColorCount:    p.Colors,
		RevealSeconds: p.Reveal,
	}
	return cfg, p.Daily, nil
}
