package agent

import (
	"math/rand/v2"
	"tictactoe/game"
)

type randomAgent struct {
	rng *rand.Rand
}

// NewRandom returns an agent playing uniformly among legal moves.
func NewRandom(rng *rand.Rand) Agent {
	return &randomAgent{rng: rng}
}

func (a *randomAgent) SelectMove(b *game.Board, mark game.Cell) game.Move {
	moves := b.LegalMoves()
	if len(moves) == 0 {
		return game.NoMove
	}
	return moves[a.rng.IntN(len(moves))]
}
