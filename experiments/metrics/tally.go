package metrics

import (
	"tictactoe/game"

	"github.com/rs/zerolog"
)

// Tally counts finished games from one player's side.
type Tally struct {
	Games  int `json:"games"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Draws  int `json:"draws"`
}

func (t *Tally) Add(r game.Result) {
	t.Games++
	switch r {
	case game.Win:
		t.Wins++
	case game.Loss:
		t.Losses++
	default:
		t.Draws++
	}
}

func (t Tally) WinRate() float64  { return t.rate(t.Wins) }
func (t Tally) LossRate() float64 { return t.rate(t.Losses) }
func (t Tally) DrawRate() float64 { return t.rate(t.Draws) }

func (t Tally) rate(n int) float64 {
	if t.Games == 0 {
		return 0
	}
	return float64(n) / float64(t.Games)
}

func (t Tally) MarshalZerologObject(e *zerolog.Event) {
	e.Int("games", t.Games).
		Int("wins", t.Wins).
		Int("losses", t.Losses).
		Int("draws", t.Draws).
		Float64("win_rate", t.WinRate()).
		Float64("draw_rate", t.DrawRate()).
		Float64("loss_rate", t.LossRate())
}
