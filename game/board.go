package game

import (
	"fmt"
	"strings"
	"tictactoe/meta"
)

// Lines lists every row, column and diagonal as cell indices, in the order they are scanned.
var Lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Board is a 3x3 grid mutated in place. It keeps no history; turn order is the caller's job.
type Board struct {
	cells [meta.CELLS]Cell
}

func NewBoard() *Board {
	return &Board{}
}

func FromCells(cells [meta.CELLS]Cell) *Board {
	return &Board{cells: cells}
}

// ParseBoard builds a board from one string per row, one character per cell.
func ParseBoard(rows ...string) (*Board, error) {
	if len(rows) != meta.SIZE {
		return nil, fmt.Errorf("expected %d rows, got %d", meta.SIZE, len(rows))
	}
	b := NewBoard()
	for r, row := range rows {
		if len(row) != meta.SIZE {
			return nil, fmt.Errorf("row %d: expected %d cells, got %q", r, meta.SIZE, row)
		}
		for c := 0; c < meta.SIZE; c++ {
			cell, err := ParseCell(row[c : c+1])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
			b.cells[r*meta.SIZE+c] = cell
		}
	}
	return b, nil
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (*Board, error) {
	if len(key) != meta.CELLS {
		return nil, fmt.Errorf("expected %d cells, got %q", meta.CELLS, key)
	}
	return ParseBoard(key[0:3], key[3:6], key[6:9])
}

func (b *Board) Clone() *Board {
	c := *b
	return &c
}

func (b *Board) Cells() [meta.CELLS]Cell {
	return b.cells
}

func (b *Board) At(m Move) Cell {
	return b.cells[m.Index()]
}

// Apply places c at m. It returns false, leaving the board untouched, when m is out of
// range or the cell is occupied.
func (b *Board) Apply(m Move, c Cell) bool {
	if !m.InBounds() || b.cells[m.Index()] != Empty {
		return false
	}
	b.cells[m.Index()] = c
	return true
}

// Undo clears the cell at m. The caller guarantees m was applied.
func (b *Board) Undo(m Move) {
	b.cells[m.Index()] = Empty
}

func (b *Board) IsLegal(m Move) bool {
	return m.InBounds() && b.cells[m.Index()] == Empty
}

// LegalMoves returns the empty cells in row-major order.
func (b *Board) LegalMoves() []Move {
	moves := make([]Move, 0, meta.CELLS)
	for i, c := range b.cells {
		if c == Empty {
			moves = append(moves, MoveAt(i))
		}
	}
	return moves
}

func (b *Board) Count(c Cell) int {
	n := 0
	for _, cell := range b.cells {
		if cell == c {
			n++
		}
	}
	return n
}

// Outcome scans rows, columns and diagonals, then reports a draw on a full board.
func (b *Board) Outcome() Outcome {
	for _, line := range Lines {
		first := b.cells[line[0]]
		if first != Empty && first == b.cells[line[1]] && first == b.cells[line[2]] {
			return winnerOutcome(first)
		}
	}
	for _, c := range b.cells {
		if c == Empty {
			return InProgress
		}
	}
	return Draw
}

func (b *Board) IsTerminal() bool {
	return b.Outcome() != InProgress
}

// ToMove infers whose turn it is on a board where X moved first.
func (b *Board) ToMove() Cell {
	if b.Count(X) > b.Count(O) {
		return O
	}
	return X
}

// Key serializes the 9 cells row-major, one character each.
func (b *Board) Key() string {
	var sb strings.Builder
	sb.Grow(meta.CELLS)
	for _, c := range b.cells {
		sb.WriteString(c.String())
	}
	return sb.String()
}

func (b *Board) String() string {
	var sb strings.Builder
	for r := 0; r < meta.SIZE; r++ {
		if r > 0 {
			sb.WriteString("\n---+---+---\n")
		}
		for c := 0; c < meta.SIZE; c++ {
			if c > 0 {
				sb.WriteString("|")
			}
			fmt.Fprintf(&sb, " %s ", b.cells[r*meta.SIZE+c])
		}
	}
	return sb.String()
}
