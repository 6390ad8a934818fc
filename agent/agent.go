package agent

import (
	"tictactoe/experiments/metrics"
	"tictactoe/game"

	"github.com/rs/zerolog"
)

type Agent interface {
	// SelectMove returns the move mark should play on b. Agents return game.NoMove (or the
	// top-left cell for search) when b is already finished.
	SelectMove(b *game.Board, mark game.Cell) game.Move
}

// Learner is an agent that updates itself once a game it played is over.
type Learner interface {
	Agent
	Learn(b *game.Board, outcome game.Outcome)
}

// Trainable agents switch between exploring and learning, and pure exploitation.
type Trainable interface {
	Training() bool
	EnterTrainingMode()
	EnterExploitationMode()
}

type Persister interface {
	Save() error
}

type Reporter interface {
	Report() zerolog.LogObjectMarshaler
}

// SearchReporter exposes the counters of the agent's last move search.
type SearchReporter interface {
	Stats() metrics.SearchMetric
}
