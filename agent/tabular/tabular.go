// Package tabular implements a double Q-learning agent over board strings.
package tabular

import (
	"math/rand/v2"
	"tictactoe/experiments/metrics"
	"tictactoe/game"
	"tictactoe/utils"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	WinReward  = 1.0
	DrawReward = 0.5
	LossReward = -1.0

	ThreatBonus = 0.2 // move created an open two for its owner
	BlockBonus  = 0.1 // move blocked an open two of the opponent
)

type Option func(l *Learner)

func WithLearningRate(alpha float64) Option {
	return func(l *Learner) {
		if alpha > 0 {
			l.alpha = alpha
		}
	}
}

func WithDiscount(gamma float64) Option {
	return func(l *Learner) {
		if gamma >= 0 && gamma <= 1 {
			l.gamma = gamma
		}
	}
}

// WithExploration sets the training exploration rate, its floor and its per-game decay factor.
func WithExploration(epsilon, floor, decay float64) Option {
	return func(l *Learner) {
		if epsilon >= 0 && epsilon <= 1 {
			l.trainingEpsilon = epsilon
			l.epsilon = epsilon
		}
		if floor >= 0 && floor <= 1 {
			l.epsilonMin = floor
		}
		if decay > 0 && decay <= 1 {
			l.decay = decay
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

// WithPath sets the file used by Save and Load.
func WithPath(path string) Option {
	return func(l *Learner) {
		l.path = path
	}
}

type stateAction struct {
	State string
	Move  int
}

type step struct {
	state     string
	move      game.Move
	next      string
	nextMoves []game.Move
}

type Learner struct {
	alpha           float64
	gamma           float64
	trainingEpsilon float64
	epsilon         float64
	epsilonMin      float64
	decay           float64
	training        bool

	tables [2]map[stateAction]float64
	rng    *rand.Rand
	path   string

	mark      game.Cell
	prevState string
	prevMove  game.Move
	hasPrev   bool
	trace     []step

	tally metrics.Tally
}

func New(options ...Option) *Learner {
	l := &Learner{ // Default values
		alpha:           0.1,
		gamma:           0.9,
		trainingEpsilon: 0.1,
		epsilon:         0.1,
		epsilonMin:      0.01,
		decay:           0.995,
		training:        true,
		tables:          [2]map[stateAction]float64{{}, {}},
		rng:             rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Q is the average of both tables, 0 for unseen pairs.
func (l *Learner) Q(state string, move game.Move) float64 {
	sa := stateAction{State: state, Move: move.Index()}
	return (l.tables[0][sa] + l.tables[1][sa]) / 2
}

func (l *Learner) SelectMove(b *game.Board, mark game.Cell) game.Move {
	legal := b.LegalMoves()
	if len(legal) == 0 {
		return game.NoMove
	}
	l.mark = mark
	state := b.Key()

	var move game.Move
	if l.training && l.rng.Float64() < l.epsilon {
		move = legal[l.rng.IntN(len(legal))]
	} else {
		values := lo.Map(legal, func(m game.Move, _ int) float64 { return l.Q(state, m) })
		ties := utils.ArgMax(values)
		move = legal[ties[l.rng.IntN(len(ties))]]
	}

	if l.training {
		if l.hasPrev {
			l.trace = append(l.trace, step{state: l.prevState, move: l.prevMove, next: state, nextMoves: legal})
		}
		l.prevState, l.prevMove, l.hasPrev = state, move, true
	}
	return move
}

// Learn credits the finished game to the moves recorded while training.
func (l *Learner) Learn(b *game.Board, outcome game.Outcome) {
	if !l.training {
		return
	}
	defer l.reset()
	if !l.hasPrev {
		return
	}

	result := outcome.ResultFor(l.mark)
	l.tally.Add(result)
	reward := LossReward
	switch result {
	case game.Win:
		reward = WinReward
	case game.Tie:
		reward = DrawReward
	}

	l.trace = append(l.trace, step{state: l.prevState, move: l.prevMove, next: b.Key()})
	for i := len(l.trace) - 1; i >= 0; i-- {
		s := l.trace[i]
		r := reward
		if i < len(l.trace)-1 {
			r = tacticalReward(s.state, s.move, l.mark)
		}
		l.update(s, r)
	}

	l.epsilon = max(l.epsilonMin, l.epsilon*l.decay)
}

func (l *Learner) update(s step, reward float64) {
	i := l.rng.IntN(2)
	table, other := l.tables[i], l.tables[1-i]

	maxFuture := 0.0
	if len(s.nextMoves) > 0 {
		maxFuture = lo.Max(lo.Map(s.nextMoves, func(m game.Move, _ int) float64 {
			return other[stateAction{State: s.next, Move: m.Index()}]
		}))
	}

	sa := stateAction{State: s.state, Move: s.move.Index()}
	q := table[sa]
	table[sa] = q + l.alpha*(reward+l.gamma*maxFuture-q)
}

// tacticalReward looks at the lines through the played cell right after the move.
func tacticalReward(state string, move game.Move, mark game.Cell) float64 {
	b, err := game.ParseKey(state)
	if err != nil || !b.Apply(move, mark) {
		return 0
	}
	created, blocked := false, false
	for _, line := range game.Lines {
		if utils.FindIndex(line[:], move.Index()) < 0 {
			continue
		}
		own, opponent, empty := 0, 0, 0
		for _, i := range line {
			switch b.At(game.MoveAt(i)) {
			case mark:
				own++
			case game.Empty:
				empty++
			default:
				opponent++
			}
		}
		created = created || (own == 2 && empty == 1)
		blocked = blocked || (opponent == 2 && own == 1)
	}

	reward := 0.0
	if created {
		reward += ThreatBonus
	}
	if blocked {
		reward += BlockBonus
	}
	return reward
}

func (l *Learner) reset() {
	l.trace = nil
	l.hasPrev = false
	l.prevState = ""
}

func (l *Learner) Training() bool {
	return l.training
}

// EnterTrainingMode restores the configured exploration rate and enables learning.
func (l *Learner) EnterTrainingMode() {
	l.training = true
	l.epsilon = l.trainingEpsilon
}

// EnterExploitationMode disables exploration and learning.
func (l *Learner) EnterExploitationMode() {
	l.training = false
	l.epsilon = 0
	l.reset()
}

func (l *Learner) Epsilon() float64 {
	return l.epsilon
}

type Stats struct {
	metrics.Tally
	Epsilon float64
	States  int
	Entries int
}

func (s Stats) MarshalZerologObject(e *zerolog.Event) {
	s.Tally.MarshalZerologObject(e)
	e.Float64("epsilon", s.Epsilon).Int("states", s.States).Int("entries", s.Entries)
}

func (l *Learner) Stats() Stats {
	states := map[string]struct{}{}
	for _, table := range l.tables {
		for sa := range table {
			states[sa.State] = struct{}{}
		}
	}
	return Stats{
		Tally:   l.tally,
		Epsilon: l.epsilon,
		States:  len(states),
		Entries: len(l.tables[0]) + len(l.tables[1]),
	}
}

func (l *Learner) Report() zerolog.LogObjectMarshaler {
	return l.Stats()
}
