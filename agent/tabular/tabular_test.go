package tabular

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"tictactoe/game"

	"github.com/stretchr/testify/require"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func mustParse(t *testing.T, rows ...string) *game.Board {
	t.Helper()
	b, err := game.ParseBoard(rows...)
	require.NoError(t, err)
	return b
}

// playRandom plays one game between l and a uniform-random opponent and returns the outcome.
func playRandom(l *Learner, mark game.Cell, rng *rand.Rand) game.Outcome {
	b := game.NewBoard()
	turn := game.X
	for !b.IsTerminal() {
		var move game.Move
		if turn == mark {
			move = l.SelectMove(b, mark)
		} else {
			legal := b.LegalMoves()
			move = legal[rng.IntN(len(legal))]
		}
		b.Apply(move, turn)
		turn = turn.Opponent()
	}
	l.Learn(b, b.Outcome())
	return b.Outcome()
}

func TestSelectMove(t *testing.T) {
	b := mustParse(t, "X  ", " O ", "   ")

	t.Run("greedy on the averaged tables", func(t *testing.T) {
		l := New(WithRand(newRand(1)))
		l.EnterExploitationMode()
		l.tables[0][stateAction{State: b.Key(), Move: 2}] = 0.4
		l.tables[1][stateAction{State: b.Key(), Move: 2}] = 0.0
		l.tables[0][stateAction{State: b.Key(), Move: 8}] = 0.3
		l.tables[1][stateAction{State: b.Key(), Move: 8}] = 0.3

		require.InDelta(t, 0.2, l.Q(b.Key(), game.MoveAt(2)), 1e-9)
		require.Equal(t, game.MoveAt(8), l.SelectMove(b, game.X), "Average 0.3 beats average 0.2")
	})

	t.Run("ties are broken at random", func(t *testing.T) {
		l := New(WithRand(newRand(2)))
		l.EnterExploitationMode()
		seen := map[game.Move]bool{}
		for i := 0; i < 200; i++ {
			seen[l.SelectMove(b, game.X)] = true
		}
		require.Len(t, seen, len(b.LegalMoves()), "Every unseen move ties at zero")
	})

	t.Run("finished board", func(t *testing.T) {
		l := New()
		require.Equal(t, game.NoMove, l.SelectMove(mustParse(t, "XOX", "XOO", "OXX"), game.X))
	})

	t.Run("exploration picks legal moves", func(t *testing.T) {
		l := New(WithRand(newRand(3)), WithExploration(1, 1, 1))
		for i := 0; i < 50; i++ {
			require.True(t, b.IsLegal(l.SelectMove(b, game.X)))
		}
	})
}

func TestRecording(t *testing.T) {
	l := New(WithRand(newRand(4)), WithExploration(0, 0, 1))
	first := mustParse(t, "   ", "   ", "   ")
	second := mustParse(t, "X  ", " O ", "   ")

	m1 := l.SelectMove(first, game.X)
	require.Empty(t, l.trace, "The first move waits for the next state")

	l.SelectMove(second, game.X)
	require.Len(t, l.trace, 1)
	require.Equal(t, step{state: first.Key(), move: m1, next: second.Key(), nextMoves: second.LegalMoves()}, l.trace[0])

	l.EnterExploitationMode()
	require.Empty(t, l.trace, "Exploitation drops the pending trace")
	l.SelectMove(first, game.X)
	require.Empty(t, l.trace, "Nothing is recorded outside training")
}

func TestLearn(t *testing.T) {
	t.Run("terminal reward on the last move", func(t *testing.T) {
		l := New(WithRand(newRand(5)), WithExploration(0, 0, 1))
		b := mustParse(t, "XX ", "OO ", "   ")
		move := l.SelectMove(b, game.X)
		final := b.Clone()
		final.Apply(move, game.X)

		l.Learn(final, game.XWins)
		require.InDelta(t, 0.05, l.Q(b.Key(), move), 1e-9, "One table moves by alpha*reward, the average halves it")
		require.Equal(t, 1, l.Stats().Wins)
		require.Equal(t, 1, l.Stats().Entries)
		require.Empty(t, l.trace)
	})

	t.Run("loss and draw rewards", func(t *testing.T) {
		for _, tt := range []struct {
			outcome  game.Outcome
			expected float64
		}{
			{game.OWins, 0.1 * LossReward / 2},
			{game.Draw, 0.1 * DrawReward / 2},
		} {
			l := New(WithRand(newRand(6)), WithExploration(0, 0, 1))
			b := game.NewBoard()
			move := l.SelectMove(b, game.X)
			l.Learn(b, tt.outcome)
			require.InDelta(t, tt.expected, l.Q(game.NewBoard().Key(), move), 1e-9, "Outcome %s", tt.outcome)
		}
	})

	t.Run("earlier moves get the tactical reward", func(t *testing.T) {
		l := New(WithRand(newRand(7)), WithExploration(0, 0, 1))
		opening := mustParse(t, "X  ", " O ", "   ")
		l.tables[0][stateAction{State: opening.Key(), Move: 1}] = 1
		l.tables[1][stateAction{State: opening.Key(), Move: 1}] = 1
		require.Equal(t, game.Move{Row: 0, Col: 1}, l.SelectMove(opening, game.X))

		later := mustParse(t, "XXO", " O ", "   ")
		l.SelectMove(later, game.X)
		l.Learn(later, game.OWins)

		// (0,1) made an open two on the top row, worth ThreatBonus; the other table has
		// nothing better than 0 for the next state.
		require.InDelta(t, 0.96, l.Q(opening.Key(), game.Move{Row: 0, Col: 1}), 1e-9)
		require.Equal(t, 1, l.Stats().Losses)
	})

	t.Run("exploration decays to the floor", func(t *testing.T) {
		l := New(WithRand(newRand(8)), WithExploration(0.5, 0.2, 0.5))
		for _, expected := range []float64{0.25, 0.2, 0.2} {
			b := game.NewBoard()
			l.SelectMove(b, game.X)
			l.Learn(b, game.Draw)
			require.InDelta(t, expected, l.Epsilon(), 1e-9)
		}
	})

	t.Run("no learning in exploitation mode", func(t *testing.T) {
		l := New(WithRand(newRand(9)))
		require.True(t, l.Training())
		l.EnterExploitationMode()
		require.False(t, l.Training())
		require.Zero(t, l.Epsilon())
		b := game.NewBoard()
		l.SelectMove(b, game.X)
		l.Learn(b, game.XWins)
		require.Zero(t, l.Stats().Games)
		require.Zero(t, l.Stats().Entries)

		l.EnterTrainingMode()
		require.True(t, l.Training())
		require.InDelta(t, 0.1, l.Epsilon(), 1e-9, "Training restores the configured rate")
	})

	t.Run("learning without a move does nothing", func(t *testing.T) {
		l := New()
		l.Learn(game.NewBoard(), game.Draw)
		require.Zero(t, l.Stats().Games)
	})
}

func TestTacticalReward(t *testing.T) {
	tests := []struct {
		name     string
		state    string
		move     game.Move
		expected float64
	}{
		{"quiet move", "         ", game.Move{Row: 1, Col: 1}, 0},
		{"creates an open two", "X        ", game.Move{Row: 0, Col: 1}, ThreatBonus},
		{"two in a line that is already blocked", "X O      ", game.Move{Row: 0, Col: 1}, 0},
		{"blocks a two", "OO       ", game.Move{Row: 0, Col: 2}, BlockBonus},
		{"blocks and creates", "OO   X   ", game.Move{Row: 0, Col: 2}, ThreatBonus + BlockBonus},
		{"occupied cell", "X        ", game.Move{Row: 0, Col: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.expected, tacticalReward(tt.state, tt.move, game.X), 1e-9)
		})
	}
}

func TestPersistence(t *testing.T) {
	t.Run("reloaded learner chooses identically", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "q.json")
		l := New(WithRand(newRand(10)), WithPath(path))
		opponent := newRand(11)
		for i := 0; i < 300; i++ {
			mark := game.X
			if i%2 == 1 {
				mark = game.O
			}
			playRandom(l, mark, opponent)
		}
		require.NoError(t, l.Save())

		loaded, err := Open(path, WithRand(newRand(12)))
		require.NoError(t, err)
		require.Equal(t, l.Stats(), loaded.Stats())

		l.EnterExploitationMode()
		loaded.EnterExploitationMode()
		l.rng = newRand(12)

		b := game.NewBoard()
		for _, move := range []game.Move{{Row: 1, Col: 1}, {Row: 0, Col: 0}, {Row: 2, Col: 2}, {Row: 0, Col: 2}} {
			require.Equal(t, l.SelectMove(b, b.ToMove()), loaded.SelectMove(b, b.ToMove()))
			b.Apply(move, b.ToMove())
		}
		for _, state := range []string{"         ", "X        ", "    X    ", "X   O    ", "XO  X    "} {
			board, err := game.ParseKey(state)
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				require.Equal(t, l.SelectMove(board, board.ToMove()), loaded.SelectMove(board, board.ToMove()))
			}
		}
	})

	t.Run("missing file starts fresh", func(t *testing.T) {
		l, err := Open(filepath.Join(t.TempDir(), "missing.json"))
		require.NoError(t, err)
		require.Zero(t, l.Stats().Entries)
	})

	t.Run("corrupt file starts fresh with an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "q.json")
		require.NoError(t, os.WriteFile(path, []byte("{\"version\": 1, \"tables\": [[{\"state\": \"X\"}]]}"), 0o644))

		l, err := Open(path)
		require.ErrorIs(t, err, ErrCorruptState)
		require.NotNil(t, l)
		require.Zero(t, l.Stats().Entries)

		require.NoError(t, os.WriteFile(path, []byte("{trunc"), 0o644))
		_, err = Open(path)
		require.ErrorIs(t, err, ErrCorruptState)
	})

	t.Run("save without a path", func(t *testing.T) {
		require.NoError(t, New().Save())
	})
}
