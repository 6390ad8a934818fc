// Package neural implements a 9-H-9 feed-forward agent trained online on finished games.
package neural

import (
	"math"
	"math/rand/v2"
	"slices"
	"tictactoe/experiments/metrics"
	"tictactoe/game"
	"tictactoe/meta"

	"github.com/patrikeh/go-deep"
	"github.com/patrikeh/go-deep/training"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	WinReward  = 1.0
	DrawReward = 0.5
	LossReward = -0.5

	biasRange = 0.1
)

type Option func(l *Learner)

func WithHidden(hidden int) Option {
	return func(l *Learner) {
		if hidden > 0 {
			l.hidden = hidden
		}
	}
}

func WithLearningRate(lr float64) Option {
	return func(l *Learner) {
		if lr > 0 {
			l.lr = lr
		}
	}
}

// WithDiscount sets the per-step discount applied to the final reward.
func WithDiscount(gamma float64) Option {
	return func(l *Learner) {
		if gamma >= 0 && gamma <= 1 {
			l.gamma = gamma
		}
	}
}

func WithExploration(epsilon float64) Option {
	return func(l *Learner) {
		if epsilon >= 0 && epsilon <= 1 {
			l.trainingEpsilon = epsilon
			l.epsilon = epsilon
		}
	}
}

// WithExplorationDecay multiplies the exploration rate by decay after each game, down to floor.
func WithExplorationDecay(decay, floor float64) Option {
	return func(l *Learner) {
		if decay > 0 && decay <= 1 {
			l.decay = decay
		}
		if floor >= 0 && floor <= 1 {
			l.epsilonMin = floor
		}
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(l *Learner) {
		if rng != nil {
			l.rng = rng
		}
	}
}

func WithPath(path string) Option {
	return func(l *Learner) {
		l.path = path
	}
}

type step struct {
	input []float64
	move  int
}

type Learner struct {
	hidden          int
	lr              float64
	gamma           float64
	trainingEpsilon float64
	epsilon         float64
	epsilonMin      float64
	decay           float64
	training        bool

	network *deep.Neural
	outBias []float64 // the regression output layer of the network has no bias of its own
	rng     *rand.Rand
	path    string

	mark  game.Cell
	trace []step

	tally     metrics.Tally
	lastError float64
	meanError float64
}

func New(options ...Option) *Learner {
	l := &Learner{ // Default values
		hidden:          36,
		lr:              0.05,
		gamma:           0.9,
		trainingEpsilon: 0.2,
		epsilon:         0.2,
		decay:           1,
		training:        true,
		rng:             rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, option := range options {
		option(l)
	}
	l.network = newNetwork(l.hidden)
	l.initWeights()
	return l
}

func newNetwork(hidden int) *deep.Neural {
	return deep.NewNeural(&deep.Config{
		Inputs:     meta.CELLS,
		Layout:     []int{hidden, meta.CELLS},
		Activation: deep.ActivationReLU,
		Mode:       deep.ModeRegression,
		Weight:     deep.NewUniform(0.1, 0.0),
		Bias:       true,
	})
}

// initWeights draws connection weights from U(-r, r) with r = sqrt(6/(fanIn+fanOut)) and
// biases from U(-0.1, 0.1). Trailing entries of a neuron's input row are biases.
func (l *Learner) initWeights() {
	l.outBias = make([]float64, meta.CELLS)
	for i := range l.outBias {
		l.outBias[i] = (l.rng.Float64()*2 - 1) * biasRange
	}

	weights := l.network.Dump().Weights
	for i, layer := range weights {
		fanIn, fanOut := l.layerShape(i)
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		for _, neuron := range layer {
			for k := range neuron {
				r := limit
				if k >= fanIn {
					r = biasRange
				}
				neuron[k] = (l.rng.Float64()*2 - 1) * r
			}
		}
	}
	l.network.ApplyWeights(weights)
}

func (l *Learner) layerShape(i int) (int, int) {
	layout := l.network.Config.Layout
	if i == 0 {
		return l.network.Config.Inputs, layout[0]
	}
	return layout[i-1], layout[i]
}

// Encode maps own marks to +1, opponent marks to -1 and empty cells to 0.
func Encode(b *game.Board, mark game.Cell) []float64 {
	cells := b.Cells()
	return lo.Map(cells[:], func(c game.Cell, _ int) float64 {
		switch c {
		case game.Empty:
			return 0
		case mark:
			return 1
		default:
			return -1
		}
	})
}

// Predict returns one score per cell, occupied cells included.
func (l *Learner) Predict(b *game.Board, mark game.Cell) []float64 {
	return l.forward(Encode(b, mark))
}

func (l *Learner) forward(input []float64) []float64 {
	output := l.network.Predict(input)
	for i := range output {
		output[i] += l.outBias[i]
	}
	return output
}

func (l *Learner) SelectMove(b *game.Board, mark game.Cell) game.Move {
	legal := b.LegalMoves()
	if len(legal) == 0 {
		return game.NoMove
	}
	l.mark = mark
	input := Encode(b, mark)

	var move game.Move
	if l.training && l.rng.Float64() < l.epsilon {
		move = legal[l.rng.IntN(len(legal))]
	} else {
		scores := l.forward(input)
		move = lo.MaxBy(legal, func(m, best game.Move) bool { return scores[m.Index()] > scores[best.Index()] })
	}

	if l.training {
		l.trace = append(l.trace, step{input: input, move: move.Index()})
	}
	return move
}

// Learn runs one gradient step per recorded move, most recent first, toward the final
// reward discounted by the number of moves to the end of the game.
func (l *Learner) Learn(b *game.Board, outcome game.Outcome) {
	if !l.training || len(l.trace) == 0 {
		return
	}
	defer func() { l.trace = nil }()

	result := outcome.ResultFor(l.mark)
	l.tally.Add(result)
	reward := LossReward
	switch result {
	case game.Win:
		reward = WinReward
	case game.Tie:
		reward = DrawReward
	}

	trainer := training.NewTrainer(training.NewSGD(l.lr, 0, 0, false), 0)
	total := 0.0
	for i := len(l.trace) - 1; i >= 0; i-- {
		s := l.trace[i]
		stepsFromEnd := len(l.trace) - 1 - i
		output := l.forward(s.input)
		target := slices.Clone(output)
		target[s.move] = reward * math.Pow(l.gamma, float64(stepsFromEnd))
		total += squaredError(output, target)

		// The network is fitted to the target minus the output bias, and the bias takes
		// the same gradient step as the weights feeding the played cell.
		response := lo.Map(target, func(v float64, j int) float64 { return v - l.outBias[j] })
		l.outBias[s.move] += l.lr * (target[s.move] - output[s.move])
		trainer.Train(l.network, training.Examples{{Input: s.input, Response: response}}, nil, 1)
	}

	l.lastError = total / float64(len(l.trace))
	l.meanError += (l.lastError - l.meanError) / float64(l.tally.Games)
	l.epsilon = max(l.epsilonMin, l.epsilon*l.decay)
}

// squaredError is the mean squared error over all outputs.
func squaredError(output, target []float64) float64 {
	sum := 0.0
	for i := range output {
		d := target[i] - output[i]
		sum += d * d
	}
	return sum / float64(len(output))
}

// LastError is the mean error of the last Learn call.
func (l *Learner) LastError() float64 {
	return l.lastError
}

func (l *Learner) Training() bool {
	return l.training
}

func (l *Learner) EnterTrainingMode() {
	l.training = true
	l.epsilon = l.trainingEpsilon
}

func (l *Learner) EnterExploitationMode() {
	l.training = false
	l.epsilon = 0
	l.trace = nil
}

func (l *Learner) Epsilon() float64 {
	return l.epsilon
}

type Stats struct {
	metrics.Tally
	Epsilon    float64
	LastError  float64
	MeanError  float64
	Hidden     int
	Parameters int
}

func (s Stats) MarshalZerologObject(e *zerolog.Event) {
	s.Tally.MarshalZerologObject(e)
	e.Float64("epsilon", s.Epsilon).
		Float64("last_error", s.LastError).
		Float64("mean_error", s.MeanError).
		Int("hidden", s.Hidden).
		Int("parameters", s.Parameters)
}

func (l *Learner) Stats() Stats {
	parameters := len(l.outBias)
	for _, layer := range l.network.Dump().Weights {
		for _, neuron := range layer {
			parameters += len(neuron)
		}
	}
	return Stats{
		Tally:      l.tally,
		Epsilon:    l.epsilon,
		LastError:  l.lastError,
		MeanError:  l.meanError,
		Hidden:     l.hidden,
		Parameters: parameters,
	}
}

func (l *Learner) Report() zerolog.LogObjectMarshaler {
	return l.Stats()
}
