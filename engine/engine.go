package engine

import (
	"context"
	"errors"
	"tictactoe/experiments/metrics"
	"tictactoe/game"
)

// ErrNoMove is returned when an agent gives up its turn, e.g. a human quitting.
var ErrNoMove = errors.New("agent returned no move")

type Engine interface {
	// Run plays the game till it is finished or an agent fails to move
	Run(ctx context.Context) (game.Outcome, metrics.GameMetric, []metrics.MoveMetric, error)
}

// MoveEvent is emitted after every applied move.
type MoveEvent struct {
	Player  game.Cell
	Move    game.Move
	Board   *game.Board // Snapshot after the move
	Outcome game.Outcome
	Metric  metrics.MoveMetric
}

type Observer interface {
	OnMove(event MoveEvent)
}

// ObserverFunc adapts a plain function to an Observer.
type ObserverFunc func(event MoveEvent)

func (f ObserverFunc) OnMove(event MoveEvent) {
	f(event)
}
