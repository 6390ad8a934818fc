package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"tictactoe/config"
	"tictactoe/experiments"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	games := flag.Int("games", 0, "Games per matchup, overrides the config")
	name := flag.String("name", "arena", "Experiment name for the output directory")
	flag.Parse()

	c, err := config.Load(*configPath)
	c.ConfigureLogging(os.Stderr)
	if err != nil {
		log.Warn().Err(err).Msg("using default configuration")
	}
	if *games > 0 {
		c.Arena.Games = *games
	}

	matchups, err := experiments.Matchups(c.Arena)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid matchups")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := experiments.RunArena(ctx, c, matchups)
	if err != nil {
		log.Fatal().Err(err).Msg("arena failed")
	}
	for _, m := range result.Matchups {
		log.Info().Object("x", m.Tally).Msgf("agent %d (%s) as X vs agent %d (%s)", m.X.ID, m.X.Kind, m.O.ID, m.O.Kind)
	}

	dir, err := experiments.WriteArena(c.Arena.OutputDir, *name, c.Arena.Agents, result)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to store results")
	}
	log.Info().Msgf("stored results in %s", dir)
}
