package main

import (
	"context"
	"fmt"
	"strings"
	"tictactoe/engine"
	"tictactoe/game"
	"tictactoe/meta"

	tea "github.com/charmbracelet/bubbletea"
)

// Messages sent from the game goroutine to the UI
type turnMsg struct {
	board *game.Board
}

type moveMsg engine.MoveEvent

type doneMsg struct {
	outcome game.Outcome
	err     error
}

// chanSource hands the human's turns to the UI and waits for the chosen cell.
type chanSource struct {
	ctx     context.Context
	updates chan<- tea.Msg
	moves   <-chan game.Move
}

func (s *chanSource) GetMove(b *game.Board) game.Move {
	select {
	case s.updates <- turnMsg{board: b.Clone()}:
	case <-s.ctx.Done():
		return game.NoMove
	}
	select {
	case m := <-s.moves:
		return m
	case <-s.ctx.Done():
		return game.NoMove
	}
}

type model struct {
	board    *game.Board
	human    game.Cell
	opponent string
	cursor   int
	waiting  bool
	done     bool
	status   string
	updates  chan tea.Msg
	moves    chan<- game.Move
}

func newModel(human game.Cell, opponent string, updates chan tea.Msg, moves chan<- game.Move) model {
	return model{
		board:    game.NewBoard(),
		human:    human,
		opponent: opponent,
		cursor:   4,
		status:   "waiting for " + opponent,
		updates:  updates,
		moves:    moves,
	}
}

func waitForUpdate(updates chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case turnMsg:
		m.board = msg.board
		m.waiting = true
		m.status = "your move"
		return m, waitForUpdate(m.updates)
	case moveMsg:
		m.board = msg.Board
		if msg.Player != m.human {
			m.status = fmt.Sprintf("%s played %s", m.opponent, msg.Move)
		}
		return m, waitForUpdate(m.updates)
	case doneMsg:
		m.done = true
		m.waiting = false
		switch {
		case msg.err != nil:
			m.status = "game aborted: " + msg.err.Error()
		case msg.outcome.ResultFor(m.human) == game.Win:
			m.status = "you win!"
		case msg.outcome.ResultFor(m.human) == game.Loss:
			m.status = m.opponent + " wins"
		default:
			m.status = "draw"
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor >= meta.SIZE {
			m.cursor -= meta.SIZE
		}
	case "down", "j":
		if m.cursor < meta.CELLS-meta.SIZE {
			m.cursor += meta.SIZE
		}
	case "left", "h":
		if m.cursor%meta.SIZE > 0 {
			m.cursor--
		}
	case "right", "l":
		if m.cursor%meta.SIZE < meta.SIZE-1 {
			m.cursor++
		}
	case "enter", " ":
		if m.done {
			return m, tea.Quit
		}
		move := game.MoveAt(m.cursor)
		if !m.waiting {
			return m, nil
		}
		if !m.board.IsLegal(move) {
			m.status = fmt.Sprintf("%s is taken", move)
			return m, nil
		}
		m.waiting = false
		m.status = "waiting for " + m.opponent
		m.moves <- move
	}
	return m, nil
}

func (m model) View() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You play %s against %s\n\n", m.human, m.opponent)
	for row := 0; row < meta.SIZE; row++ {
		for col := 0; col < meta.SIZE; col++ {
			i := row*meta.SIZE + col
			cell := m.board.At(game.MoveAt(i)).String()
			if cell == " " {
				cell = "."
			}
			if i == m.cursor && !m.done {
				fmt.Fprintf(&sb, "[%s]", cell)
			} else {
				fmt.Fprintf(&sb, " %s ", cell)
			}
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\n%s\n", m.status)
	if m.done {
		sb.WriteString("\nPress enter or q to quit.\n")
	} else {
		sb.WriteString("\nArrows to move, enter to place, q to quit.\n")
	}
	return sb.String()
}
