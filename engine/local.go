package engine

import (
	"context"
	"fmt"
	"tictactoe/agent"
	"tictactoe/experiments/metrics"
	"tictactoe/game"
	"time"

	"github.com/rs/zerolog/log"
)

type Option func(e *Local)

// WithBoard starts the game from a position instead of the empty board. X is assumed to
// have moved first.
func WithBoard(b *game.Board) Option {
	return func(e *Local) {
		e.Board = b.Clone()
	}
}

func WithObserver(o Observer) Option {
	return func(e *Local) {
		e.observers = append(e.observers, o)
	}
}

type Local struct {
	Board     *game.Board
	agents    map[game.Cell]agent.Agent
	observers []Observer
}

func LocalEngine(x, o agent.Agent, options ...Option) *Local {
	if x == nil || o == nil {
		panic("need an agent for both players")
	}

	e := &Local{
		Board:  game.NewBoard(),
		agents: map[game.Cell]agent.Agent{game.X: x, game.O: o},
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Run executes the game loop until the board is finished. Agents get a copy of the board.
// A move that cannot be applied ends the game with an error and InProgress.
func (e *Local) Run(ctx context.Context) (game.Outcome, metrics.GameMetric, []metrics.MoveMetric, error) {
	gameMetric := metrics.GameMetric{
		StartingPlayer: e.Board.ToMove().String(),
		StartTime:      time.Now(),
	}
	log.Debug().Msgf("player %s is starting", gameMetric.StartingPlayer)

	var moveMetrics []metrics.MoveMetric
	for step := 1; !e.Board.IsTerminal(); step++ {
		if err := ctx.Err(); err != nil {
			return game.InProgress, e.complete(gameMetric, moveMetrics), moveMetrics, err
		}

		mark := e.Board.ToMove()
		current := e.agents[mark]
		start := time.Now()
		move := current.SelectMove(e.Board.Clone(), mark)
		moveMetric := metrics.MoveMetric{
			Step:     step,
			Player:   mark.String(),
			Move:     move.Index(),
			Duration: time.Since(start),
		}
		if r, ok := current.(agent.SearchReporter); ok {
			moveMetric.SearchMetric = r.Stats()
		}

		if move == game.NoMove {
			return game.InProgress, e.complete(gameMetric, moveMetrics), moveMetrics, fmt.Errorf("player %s: %w", mark, ErrNoMove)
		}
		if !e.Board.Apply(move, mark) {
			return game.InProgress, e.complete(gameMetric, moveMetrics), moveMetrics, fmt.Errorf("illegal move %s by player %s", move, mark)
		}
		moveMetrics = append(moveMetrics, moveMetric)

		event := MoveEvent{
			Player:  mark,
			Move:    move,
			Board:   e.Board.Clone(),
			Outcome: e.Board.Outcome(),
			Metric:  moveMetric,
		}
		for _, o := range e.observers {
			o.OnMove(event)
		}
	}

	outcome := e.Board.Outcome()
	gameMetric = e.complete(gameMetric, moveMetrics)
	gameMetric.Winner = outcome.Winner().String()
	if outcome.Winner() == game.Empty {
		gameMetric.Winner = ""
	}
	log.Debug().Msgf("game finished after %d moves: %s", gameMetric.TotalMoves, outcome)
	return outcome, gameMetric, moveMetrics, nil
}

func (e *Local) complete(gameMetric metrics.GameMetric, moveMetrics []metrics.MoveMetric) metrics.GameMetric {
	gameMetric.EndTime = time.Now()
	gameMetric.Duration = gameMetric.EndTime.Sub(gameMetric.StartTime)
	gameMetric.TotalMoves = len(moveMetrics)
	return gameMetric
}
