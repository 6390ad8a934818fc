package neural

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
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

func TestEncode(t *testing.T) {
	b := mustParse(t, "X O", "   ", "  X")
	require.Equal(t, []float64{1, 0, -1, 0, 0, 0, 0, 0, 1}, Encode(b, game.X))
	require.Equal(t, []float64{-1, 0, 1, 0, 0, 0, 0, 0, -1}, Encode(b, game.O))
}

func TestInitialisation(t *testing.T) {
	t.Run("same seed gives the same network", func(t *testing.T) {
		b := mustParse(t, "X  ", " O ", "   ")
		a := New(WithRand(newRand(7)))
		c := New(WithRand(newRand(7)))
		require.Equal(t, a.Predict(b, game.X), c.Predict(b, game.X))
	})

	t.Run("weights within xavier bounds", func(t *testing.T) {
		l := New(WithRand(newRand(3)), WithHidden(16))
		weights := l.network.Dump().Weights
		require.Len(t, weights, 2)

		for i, layer := range weights {
			fanIn, fanOut := l.layerShape(i)
			limit := math.Sqrt(6 / float64(fanIn+fanOut))
			require.Len(t, layer, fanOut)
			for _, neuron := range layer {
				for k, w := range neuron {
					if k < fanIn {
						require.LessOrEqual(t, math.Abs(w), limit)
					} else {
						require.LessOrEqual(t, math.Abs(w), biasRange)
					}
				}
			}
		}
		require.Len(t, l.outBias, 9)
		for _, bias := range l.outBias {
			require.LessOrEqual(t, math.Abs(bias), biasRange)
		}
	})

	t.Run("output bias is added to the network output", func(t *testing.T) {
		l := New(WithRand(newRand(5)))
		b := mustParse(t, "X  ", " O ", "   ")
		raw := l.network.Predict(Encode(b, game.X))
		for i, v := range l.Predict(b, game.X) {
			require.InDelta(t, raw[i]+l.outBias[i], v, 1e-12)
		}
		require.NotEqual(t, make([]float64, 9), l.outBias)
	})
}

func TestSelectMove(t *testing.T) {
	t.Run("greedy picks the best legal output", func(t *testing.T) {
		l := New(WithRand(newRand(11)))
		l.EnterExploitationMode()
		b := mustParse(t, "XO ", " X ", "O  ")

		scores := l.Predict(b, game.O)
		best := game.NoMove
		for _, m := range b.LegalMoves() {
			if best == game.NoMove || scores[m.Index()] > scores[best.Index()] {
				best = m
			}
		}
		require.Equal(t, best, l.SelectMove(b, game.O))
		require.Empty(t, l.trace)
	})

	t.Run("never an occupied cell", func(t *testing.T) {
		l := New(WithRand(newRand(12)), WithExploration(0.5))
		b := mustParse(t, "XOX", "OX ", "OXO")
		for range 50 {
			require.Equal(t, game.Move{Row: 1, Col: 2}, l.SelectMove(b, game.X))
		}
	})

	t.Run("finished board", func(t *testing.T) {
		l := New(WithRand(newRand(13)))
		b := mustParse(t, "XXX", "OO ", "   ")
		require.Equal(t, game.NoMove, l.SelectMove(b, game.O))
		require.Empty(t, l.trace)
	})

	t.Run("training records each choice", func(t *testing.T) {
		l := New(WithRand(newRand(14)))
		b := game.NewBoard()
		m := l.SelectMove(b, game.X)
		require.Len(t, l.trace, 1)
		require.Equal(t, Encode(b, game.X), l.trace[0].input)
		require.Equal(t, m.Index(), l.trace[0].move)
	})
}

func TestLearn(t *testing.T) {
	b := mustParse(t, "X  ", " O ", "   ")
	input := Encode(b, game.X)

	// replay feeds the same single recorded step to Learn.
	replay := func(l *Learner, outcome game.Outcome) float64 {
		l.mark = game.X
		l.trace = []step{{input: input, move: 2}}
		l.Learn(b, outcome)
		return l.LastError()
	}

	t.Run("error decreases on repeated learning", func(t *testing.T) {
		l := New(WithRand(newRand(21)))
		first := replay(l, game.XWins)
		second := replay(l, game.XWins)
		require.Greater(t, first, 0.0)
		require.Less(t, second, first)
	})

	t.Run("played output moves toward the reward", func(t *testing.T) {
		for _, tc := range []struct {
			outcome game.Outcome
			reward  float64
		}{
			{game.XWins, WinReward},
			{game.Draw, DrawReward},
			{game.OWins, LossReward},
		} {
			l := New(WithRand(newRand(22)))
			for range 300 {
				replay(l, tc.outcome)
			}
			require.InDelta(t, tc.reward, l.forward(input)[2], 0.05, tc.outcome.String())
		}
	})

	t.Run("earlier steps get a discounted target", func(t *testing.T) {
		l := New(WithRand(newRand(23)))
		early := Encode(game.NewBoard(), game.X)
		for range 300 {
			l.mark = game.X
			l.trace = []step{{input: early, move: 4}, {input: input, move: 2}}
			l.Learn(b, game.XWins)
		}
		require.InDelta(t, WinReward*0.9, l.forward(early)[4], 0.05)
		require.InDelta(t, WinReward, l.forward(input)[2], 0.05)
	})

	t.Run("counts results and clears the trace", func(t *testing.T) {
		l := New(WithRand(newRand(24)))
		replay(l, game.XWins)
		replay(l, game.OWins)
		replay(l, game.Draw)
		stats := l.Stats()
		require.Equal(t, 3, stats.Games)
		require.Equal(t, 1, stats.Wins)
		require.Equal(t, 1, stats.Losses)
		require.Equal(t, 1, stats.Draws)
		require.Greater(t, stats.MeanError, 0.0)
		require.Equal(t, 9*36+36+36*9+9, stats.Parameters)
		require.Empty(t, l.trace)
	})

	t.Run("exploitation mode does not learn", func(t *testing.T) {
		l := New(WithRand(newRand(25)))
		before := l.forward(input)
		l.EnterExploitationMode()
		l.SelectMove(b, game.X)
		l.Learn(b, game.XWins)
		require.Equal(t, before, l.forward(input))
		require.Zero(t, l.Stats().Games)
	})

	t.Run("only the played output bias moves", func(t *testing.T) {
		l := New(WithRand(newRand(28)))
		before := slices.Clone(l.outBias)
		out := l.forward(input)[2]
		replay(l, game.XWins)
		for i := range before {
			if i == 2 {
				require.InDelta(t, before[i]+0.05*(WinReward-out), l.outBias[i], 1e-12)
			} else {
				require.Equal(t, before[i], l.outBias[i])
			}
		}
	})

	t.Run("exploration decays to the floor", func(t *testing.T) {
		l := New(WithRand(newRand(26)), WithExploration(0.4), WithExplorationDecay(0.5, 0.15))
		replay(l, game.Draw)
		require.InDelta(t, 0.2, l.Epsilon(), 1e-9)
		replay(l, game.Draw)
		require.InDelta(t, 0.15, l.Epsilon(), 1e-9)

		l.EnterExploitationMode()
		require.False(t, l.Training())
		require.Zero(t, l.Epsilon())
		l.EnterTrainingMode()
		require.True(t, l.Training())
		require.InDelta(t, 0.4, l.Epsilon(), 1e-9)
	})

	t.Run("constant exploration by default", func(t *testing.T) {
		l := New(WithRand(newRand(27)))
		replay(l, game.XWins)
		require.InDelta(t, 0.2, l.Epsilon(), 1e-9)
	})
}

func TestPersistence(t *testing.T) {
	b := mustParse(t, "X  ", " O ", "   ")

	t.Run("reload reproduces predictions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "net", "state.json")
		l := New(WithRand(newRand(31)), WithHidden(12), WithPath(path))
		for range 5 {
			l.mark = game.X
			l.trace = []step{{input: Encode(b, game.X), move: 8}}
			l.Learn(b, game.Draw)
		}
		require.NoError(t, l.Save())

		loaded, err := Open(path, WithRand(newRand(99)))
		require.NoError(t, err)
		require.Equal(t, 12, loaded.Stats().Hidden)
		require.Equal(t, l.Stats().Tally, loaded.Stats().Tally)
		require.Equal(t, 9*12+12+12*9+9, loaded.Stats().Parameters)
		require.InDeltaSlice(t, l.outBias, loaded.outBias, 1e-12)
		require.InDeltaSlice(t, l.Predict(b, game.X), loaded.Predict(b, game.X), 1e-12)

		l.EnterExploitationMode()
		loaded.EnterExploitationMode()
		require.Equal(t, l.SelectMove(b, game.X), loaded.SelectMove(b, game.X))
	})

	t.Run("missing file keeps fresh weights", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.json")
		l, err := Open(path, WithRand(newRand(32)))
		require.NoError(t, err)
		require.Equal(t, New(WithRand(newRand(32))).Predict(b, game.X), l.Predict(b, game.X))
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		l, err := Open(path, WithRand(newRand(33)))
		require.ErrorIs(t, err, ErrCorruptState)
		require.Equal(t, New(WithRand(newRand(33))).Predict(b, game.X), l.Predict(b, game.X))
	})

	t.Run("shape mismatch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		l := New(WithRand(newRand(34)), WithPath(path))
		require.NoError(t, l.Save())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var file stateFile
		require.NoError(t, json.Unmarshal(data, &file))
		file.Layers[0].Weights = file.Layers[0].Weights[1:]
		data, err = json.Marshal(file)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))

		_, err = Open(path)
		require.ErrorIs(t, err, ErrCorruptState)
	})

	t.Run("output layer stores its biases", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		l := New(WithRand(newRand(35)), WithPath(path))
		require.NoError(t, l.Save())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var file stateFile
		require.NoError(t, json.Unmarshal(data, &file))
		require.Len(t, file.Layers, 2)
		require.Len(t, file.Layers[0].Biases, 36)
		require.InDeltaSlice(t, l.outBias, file.Layers[1].Biases, 1e-12)

		file.Layers[1].Biases = nil
		data, err = json.Marshal(file)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		_, err = Open(path)
		require.ErrorIs(t, err, ErrCorruptState)
	})

	t.Run("save without a path", func(t *testing.T) {
		require.NoError(t, New().Save())
	})
}
