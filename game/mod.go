package game

import (
	"fmt"
	"tictactoe/meta"
)

type Cell uint8

const (
	Empty Cell = iota
	X
	O
)

func (c Cell) String() string {
	switch c {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return " "
	}
}

// Opponent returns the other player's mark. Empty has no opponent.
func (c Cell) Opponent() Cell {
	switch c {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// ParseCell accepts "X", "O" and " " (or "" / ".") for an empty cell.
func ParseCell(s string) (Cell, error) {
	switch s {
	case "X", "x":
		return X, nil
	case "O", "o":
		return O, nil
	case " ", "", ".":
		return Empty, nil
	}
	return Empty, fmt.Errorf("unknown cell %q", s)
}

// Move is a 0-indexed (row, column) coordinate.
type Move struct {
	Row int
	Col int
}

// NoMove is returned by agents asked to move on a finished board.
var NoMove = Move{Row: -1, Col: -1}

func MoveAt(index int) Move {
	return Move{Row: index / meta.SIZE, Col: index % meta.SIZE}
}

func (m Move) Index() int {
	return m.Row*meta.SIZE + m.Col
}

func (m Move) InBounds() bool {
	return m.Row >= 0 && m.Row < meta.SIZE && m.Col >= 0 && m.Col < meta.SIZE
}

func (m Move) String() string {
	return fmt.Sprintf("(%d,%d)", m.Row, m.Col)
}

type Outcome uint8

const (
	InProgress Outcome = iota
	XWins
	OWins
	Draw
)

func (o Outcome) String() string {
	switch o {
	case XWins:
		return "X wins"
	case OWins:
		return "O wins"
	case Draw:
		return "draw"
	default:
		return "in progress"
	}
}

// Winner returns the winning mark, or Empty for a draw or an unfinished game.
func (o Outcome) Winner() Cell {
	switch o {
	case XWins:
		return X
	case OWins:
		return O
	default:
		return Empty
	}
}

// Result is an outcome seen from one player's side.
type Result uint8

const (
	Loss Result = iota
	Tie
	Win
)

func (r Result) String() string {
	switch r {
	case Win:
		return "win"
	case Tie:
		return "draw"
	default:
		return "loss"
	}
}

// ResultFor reports the finished outcome from the given player's perspective.
func (o Outcome) ResultFor(mark Cell) Result {
	switch o.Winner() {
	case mark:
		return Win
	case Empty:
		return Tie
	default:
		return Loss
	}
}

func winnerOutcome(c Cell) Outcome {
	if c == X {
		return XWins
	}
	return OWins
}
