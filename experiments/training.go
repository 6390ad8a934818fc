package experiments

import (
	"context"
	"fmt"
	"path/filepath"
	"tictactoe/agent"
	"tictactoe/engine"
	"tictactoe/experiments/metrics"
	"tictactoe/game"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type TrainerOption func(t *Trainer)

func WithEpisodes(n int) TrainerOption {
	return func(t *Trainer) {
		if n >= 0 {
			t.episodes = n
		}
	}
}

// WithCheckpoint logs progress every n episodes. 0 disables checkpoint logging.
func WithCheckpoint(n int) TrainerOption {
	return func(t *Trainer) {
		if n >= 0 {
			t.checkpoint = n
		}
	}
}

// WithSaveEvery saves persistent agents every n episodes. They are always saved at the end.
func WithSaveEvery(n int) TrainerOption {
	return func(t *Trainer) {
		if n >= 0 {
			t.saveEvery = n
		}
	}
}

// WithOpponentLearning lets a learning opponent train and save alongside the learner.
// Without it the opponent plays in exploitation mode and its state is left alone.
func WithOpponentLearning() TrainerOption {
	return func(t *Trainer) {
		t.opponentLearns = true
	}
}

func WithRecorder(r *Recorder) TrainerOption {
	return func(t *Trainer) {
		t.recorder = r
	}
}

// Recorder collects one record per training episode and, with Experience set, one row per move.
type Recorder struct {
	Experience bool
	Episodes   []metrics.EpisodeRecord
	Rows       []metrics.ExperienceRow
}

type explorer interface {
	Epsilon() float64
}

type errorReporter interface {
	LastError() float64
}

// Trainer plays a learner against an opponent, alternating who starts, and lets the
// learner learn from each finished game.
type Trainer struct {
	learner        agent.Learner
	opponent       agent.Agent
	opponentLearns bool
	episodes       int
	checkpoint     int
	saveEvery      int
	recorder       *Recorder
}

func NewTrainer(learner agent.Learner, opponent agent.Agent, options ...TrainerOption) *Trainer {
	if learner == nil || opponent == nil {
		panic("trainer needs a learner and an opponent")
	}
	if agent.Agent(learner) == opponent {
		panic("trainer needs two distinct agents")
	}
	t := &Trainer{ // Default values
		learner:    learner,
		opponent:   opponent,
		episodes:   1000,
		checkpoint: 100,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Run plays the configured number of episodes. The learner plays X in odd episodes and O
// in even ones. It returns the learner's results, stopping early on cancellation.
// A learner already in training mode keeps its current exploration rate.
func (t *Trainer) Run(ctx context.Context) (metrics.Tally, error) {
	var total, window metrics.Tally
	learners := t.learners()
	for _, l := range learners {
		if tr, ok := l.(agent.Trainable); ok && !tr.Training() {
			tr.EnterTrainingMode()
		}
	}
	if tr, ok := t.opponent.(agent.Trainable); ok && !t.opponentLearns {
		tr.EnterExploitationMode()
	}

	log.Info().Msgf("starting training for %d episodes...", t.episodes)
	for episode := 1; episode <= t.episodes; episode++ {
		if err := ctx.Err(); err != nil {
			t.save()
			return total, err
		}

		mark := game.X
		x, o := agent.Agent(t.learner), t.opponent
		if episode%2 == 0 {
			mark = game.O
			x, o = o, x
		}

		var rows []metrics.ExperienceRow
		options := []engine.Option{}
		if t.recorder != nil && t.recorder.Experience {
			options = append(options, engine.WithObserver(engine.ObserverFunc(func(ev engine.MoveEvent) {
				before := ev.Board.Clone()
				before.Undo(ev.Move)
				rows = append(rows, metrics.ExperienceRow{
					Episode: int32(episode),
					Step:    int32(ev.Metric.Step),
					Mark:    ev.Player.String(),
					State:   before.Key(),
					Move:    int32(ev.Move.Index()),
				})
			})))
		}

		e := engine.LocalEngine(x, o, options...)
		outcome, gameMetric, _, err := e.Run(ctx)
		if err != nil {
			t.save()
			return total, fmt.Errorf("failed to play episode %d: %w", episode, err)
		}
		for _, l := range learners {
			l.Learn(e.Board, outcome)
		}

		result := outcome.ResultFor(mark)
		total.Add(result)
		window.Add(result)
		t.record(episode, mark, outcome, gameMetric, rows)

		if t.saveEvery > 0 && episode%t.saveEvery == 0 {
			t.save()
		}
		if t.checkpoint > 0 && episode%t.checkpoint == 0 {
			t.logCheckpoint(episode, window)
			window = metrics.Tally{}
		}
	}
	t.save()

	log.Info().Object("results", total).Msg("completed training")
	return total, nil
}

// learners lists the agents that learn and save during Run.
func (t *Trainer) learners() []agent.Learner {
	if l, ok := t.opponent.(agent.Learner); ok && t.opponentLearns {
		return []agent.Learner{t.learner, l}
	}
	return []agent.Learner{t.learner}
}

func (t *Trainer) record(episode int, mark game.Cell, outcome game.Outcome, gameMetric metrics.GameMetric, rows []metrics.ExperienceRow) {
	if t.recorder == nil {
		return
	}
	result := outcome.ResultFor(mark)
	record := metrics.EpisodeRecord{
		Episode:     episode,
		LearnerMark: mark.String(),
		Result:      result.String(),
		Moves:       gameMetric.TotalMoves,
		Duration:    gameMetric.Duration,
	}
	if e, ok := t.learner.(explorer); ok {
		record.Exploration = e.Epsilon()
	}
	if e, ok := t.learner.(errorReporter); ok {
		record.Error = e.LastError()
	}
	t.recorder.Episodes = append(t.recorder.Episodes, record)

	for i := range rows {
		mover, _ := game.ParseCell(rows[i].Mark)
		r := outcome.ResultFor(mover)
		rows[i].Result = r.String()
		rows[i].Value = resultValue(r)
	}
	t.recorder.Rows = append(t.recorder.Rows, rows...)
}

func resultValue(r game.Result) float32 {
	switch r {
	case game.Win:
		return 1
	case game.Loss:
		return -1
	}
	return 0
}

func (t *Trainer) save() {
	for _, l := range t.learners() {
		if p, ok := l.(agent.Persister); ok {
			if err := p.Save(); err != nil {
				log.Error().Err(err).Msg("failed to save agent")
			}
		}
	}
}

func (t *Trainer) logCheckpoint(episode int, window metrics.Tally) {
	event := log.Info().
		Int("episode", episode).
		Object("window", window)
	if r, ok := t.learner.(agent.Reporter); ok {
		event = event.Object("learner", r.Report())
	}
	event.Msgf("completed episode %d of %d", episode, t.episodes)
}

// Summary holds evaluation results from the evaluated agent's side.
type Summary struct {
	metrics.Tally
	AsX metrics.Tally
	AsO metrics.Tally
}

func (s Summary) MarshalZerologObject(e *zerolog.Event) {
	s.Tally.MarshalZerologObject(e)
	e.Object("as_x", s.AsX).Object("as_o", s.AsO)
}

// Evaluate plays games with learning switched off, alternating seats with a starting as X.
// Trainable agents are left in exploitation mode.
func Evaluate(ctx context.Context, a, opponent agent.Agent, games int) (Summary, error) {
	for _, seat := range []agent.Agent{a, opponent} {
		if tr, ok := seat.(agent.Trainable); ok {
			tr.EnterExploitationMode()
		}
	}

	var s Summary
	for i := 0; i < games; i++ {
		mark := game.X
		x, o := a, opponent
		if i%2 == 1 {
			mark = game.O
			x, o = o, x
		}
		outcome, _, _, err := engine.LocalEngine(x, o).Run(ctx)
		if err != nil {
			return s, fmt.Errorf("failed to play evaluation game %d: %w", i+1, err)
		}
		result := outcome.ResultFor(mark)
		s.Add(result)
		if mark == game.X {
			s.AsX.Add(result)
		} else {
			s.AsO.Add(result)
		}
	}
	return s, nil
}

// Write stores episode records as CSV and any experience rows as parquet under
// root/name/<timestamp>, returning that directory.
func (r *Recorder) Write(root, name string) (string, error) {
	writer, err := metrics.NewWriter(root, name)
	if err != nil {
		return "", fmt.Errorf("failed to create experiment writer: %w", err)
	}
	if err := writer.WriteEpisodeRecords(r.Episodes); err != nil {
		return "", fmt.Errorf("failed to write episode records: %w", err)
	}
	if len(r.Rows) > 0 {
		if err := metrics.WriteExperienceParquet(filepath.Join(writer.Dir(), "experience.parquet"), r.Rows); err != nil {
			return "", fmt.Errorf("failed to write experience: %w", err)
		}
	}
	return writer.Dir(), nil
}
