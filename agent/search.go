package agent

import (
	"fmt"
	"tictactoe/experiments/metrics"
	"tictactoe/game"
	"tictactoe/searcher"
)

type Search struct {
	minimax   *searcher.Minimax
	cachePath string
}

// NewSearch wraps a minimax engine. When cachePath is set and the engine memoizes, Save
// writes its cache there.
func NewSearch(minimax *searcher.Minimax, cachePath string) *Search {
	return &Search{minimax: minimax, cachePath: cachePath}
}

func (a *Search) SelectMove(b *game.Board, mark game.Cell) game.Move {
	move, _ := a.minimax.BestMove(b, mark, mark.Opponent())
	return move
}

func (a *Search) Stats() metrics.SearchMetric {
	return a.minimax.Stats()
}

func (a *Search) Save() error {
	if a.cachePath == "" || a.minimax.Cache() == nil {
		return nil
	}
	if err := a.minimax.Cache().Save(a.cachePath); err != nil {
		return fmt.Errorf("failed to save search cache: %w", err)
	}
	return nil
}
