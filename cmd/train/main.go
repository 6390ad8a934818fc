package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"tictactoe/agent"
	"tictactoe/config"
	"tictactoe/experiments"
	"tictactoe/experiments/metrics"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	learnerKind := flag.String("learner", "", "Learner to train: tabular or neural")
	opponentKind := flag.String("opponent", "", "Opponent: random, search, tabular or neural")
	episodes := flag.Int("episodes", 0, "Number of training episodes")
	eval := flag.Int("eval", -1, "Evaluation games after training, 0 to skip")
	experience := flag.Bool("experience", false, "Write per-move experience to parquet")
	seed := flag.Uint64("seed", 0, "Random seed, 0 for a random one")
	flag.Parse()

	c, err := config.Load(*configPath)
	c.ConfigureLogging(os.Stderr)
	if err != nil {
		log.Warn().Err(err).Msg("using default configuration")
	}

	// Flags given explicitly override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "learner":
			c.Training.Learner = *learnerKind
		case "opponent":
			c.Training.Opponent = *opponentKind
		case "episodes":
			c.Training.Episodes = *episodes
		case "eval":
			c.Training.EvalGames = *eval
		case "experience":
			c.Training.Experience = *experience
		case "seed":
			c.Seed = *seed
		}
	})
	if err := c.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := experiments.NewRand(c.Seed)
	var learner agent.Learner
	switch c.Training.Learner {
	case "tabular":
		learner = experiments.NewTabular(c.Tabular, c.Tabular.Path, rng)
	case "neural":
		learner = experiments.NewNeural(c.Neural, c.Neural.Path, rng)
	}
	opponent, err := experiments.NewAgent(metrics.AgentConfig{Kind: c.Training.Opponent, Cached: true}, c, nil, rng)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create opponent")
	}

	recorder := &experiments.Recorder{Experience: c.Training.Experience}
	trainer := experiments.NewTrainer(learner, opponent,
		experiments.WithEpisodes(c.Training.Episodes),
		experiments.WithCheckpoint(c.Training.Checkpoint),
		experiments.WithSaveEvery(c.Training.SaveEvery),
		experiments.WithRecorder(recorder),
	)
	_, err = trainer.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("training stopped")
	}

	dir, err := recorder.Write(c.Training.OutputDir, "training_"+c.Training.Learner)
	if err != nil {
		log.Error().Err(err).Msg("failed to store training records")
	} else {
		log.Info().Msgf("stored training records in %s", dir)
	}

	if c.Training.EvalGames > 0 && ctx.Err() == nil {
		summary, err := experiments.Evaluate(ctx, learner, opponent, c.Training.EvalGames)
		if err != nil {
			log.Fatal().Err(err).Msg("evaluation failed")
		}
		log.Info().Object("summary", summary).Msgf("evaluated against %s", c.Training.Opponent)
	}
}
