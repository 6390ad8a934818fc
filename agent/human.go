package agent

import (
	"bufio"
	"fmt"
	"io"
	"tictactoe/game"
	"tictactoe/utils"

	"github.com/rs/zerolog/log"
)

// MoveSource supplies moves for a human-controlled mark.
type MoveSource interface {
	GetMove(b *game.Board) game.Move
}

type humanAgent struct {
	source   MoveSource
	attempts int
}

// NewHuman asks source until it gives a legal move. It returns game.NoMove when the source
// does, or after attempts illegal answers in a row; zero attempts means no limit.
func NewHuman(source MoveSource, attempts int) Agent {
	return &humanAgent{source: source, attempts: attempts}
}

func (a *humanAgent) SelectMove(b *game.Board, mark game.Cell) game.Move {
	legal := b.LegalMoves()
	if len(legal) == 0 {
		return game.NoMove
	}
	for i := 0; a.attempts == 0 || i < a.attempts; i++ {
		move := a.source.GetMove(b)
		if move == game.NoMove {
			return game.NoMove
		}
		if utils.FindIndex(legal, move) >= 0 {
			return move
		}
		log.Warn().Msgf("illegal move %v for %s", move, mark)
	}
	return game.NoMove
}

type readerSource struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewReaderSource reads "row col" lines from r, printing the board and a prompt to w.
// It returns game.NoMove once r is exhausted.
func NewReaderSource(r io.Reader, w io.Writer) MoveSource {
	return &readerSource{scanner: bufio.NewScanner(r), out: w}
}

func (s *readerSource) GetMove(b *game.Board) game.Move {
	fmt.Fprintf(s.out, "%s\nyour move (row col): ", b)
	for s.scanner.Scan() {
		var move game.Move
		if _, err := fmt.Sscan(s.scanner.Text(), &move.Row, &move.Col); err == nil {
			return move
		}
		fmt.Fprint(s.out, "expected two numbers, e.g. 1 2: ")
	}
	return game.NoMove
}
