package experiments

import (
	"context"
	"fmt"
	"runtime"
	"tictactoe/config"
	"tictactoe/engine"
	"tictactoe/experiments/metrics"
	"tictactoe/game"
	"tictactoe/searcher"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Matchup is a series of games with the same agent on X.
type Matchup struct {
	X, O metrics.AgentConfig
}

// MatchupResult counts a matchup from the X agent's side.
type MatchupResult struct {
	Matchup
	metrics.Tally
}

type ArenaResult struct {
	Matchups []MatchupResult
	Games    []metrics.GameRecord
	Moves    []metrics.MoveRecord
}

// Matchups resolves the configured agent ID pairs.
func Matchups(c config.ArenaConfig) ([]Matchup, error) {
	byID := lo.KeyBy(c.Agents, func(a metrics.AgentConfig) int { return a.ID })
	matchups := make([]Matchup, 0, len(c.Matchups))
	for _, pair := range c.Matchups {
		x, okX := byID[pair[0]]
		o, okO := byID[pair[1]]
		if !okX || !okO {
			return nil, fmt.Errorf("matchup %v references an unknown agent", pair)
		}
		matchups = append(matchups, Matchup{X: x, O: o})
	}
	return matchups, nil
}

type matchupRun struct {
	result MatchupResult
	games  []metrics.GameMetric
	moves  [][]metrics.MoveMetric
}

// RunArena plays every matchup concurrently. Each matchup builds its own agents; search
// agents share one cache, saved at the end when a cache path is configured.
func RunArena(ctx context.Context, c config.Config, matchups []Matchup) (ArenaResult, error) {
	cache := LoadCache(c.Search.CachePath)
	runs := make([]matchupRun, len(matchups))

	log.Info().Msgf("starting arena with %d matchups of %d games...", len(matchups), c.Arena.Games)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for mi, m := range matchups {
		g.Go(func() error {
			seed := c.Seed
			if seed != 0 {
				seed += uint64(mi)
			}
			run, err := playMatchup(ctx, c, m, cache, seed)
			if err != nil {
				return fmt.Errorf("matchup %d: %w", mi+1, err)
			}
			runs[mi] = run
			log.Info().Object("results", run.result.Tally).Msgf("completed matchup %d of %d between agent %d and agent %d", mi+1, len(matchups), m.X.ID, m.O.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ArenaResult{}, err
	}

	if c.Search.CachePath != "" && cache.Len() > 0 {
		if err := cache.Save(c.Search.CachePath); err != nil {
			log.Warn().Err(err).Msg("failed to save search cache")
		}
	}

	// Number games in matchup order so records are stable across runs.
	var result ArenaResult
	count := 0
	for _, run := range runs {
		result.Matchups = append(result.Matchups, run.result)
		for i, gameMetric := range run.games {
			count++
			result.Games = append(result.Games, metrics.GameRecord{
				ID:         count,
				Agent1:     run.result.X.ID,
				Agent2:     run.result.O.ID,
				GameMetric: gameMetric,
			})
			for _, mm := range run.moves[i] {
				result.Moves = append(result.Moves, metrics.MoveRecord{Game: count, MoveMetric: mm})
			}
		}
	}
	log.Info().Msgf("completed arena with %d games", count)
	return result, nil
}

func playMatchup(ctx context.Context, c config.Config, m Matchup, cache *searcher.Cache, seed uint64) (matchupRun, error) {
	rng := NewRand(seed)
	x, err := NewAgent(m.X, c, cache, rng)
	if err != nil {
		return matchupRun{}, err
	}
	o, err := NewAgent(m.O, c, cache, rng)
	if err != nil {
		return matchupRun{}, err
	}

	run := matchupRun{result: MatchupResult{Matchup: m}}
	for i := 0; i < c.Arena.Games; i++ {
		outcome, gameMetric, moveMetrics, err := engine.LocalEngine(x, o).Run(ctx)
		if err != nil {
			return run, fmt.Errorf("game %d: %w", i+1, err)
		}
		run.result.Add(outcome.ResultFor(game.X))
		run.games = append(run.games, gameMetric)
		run.moves = append(run.moves, moveMetrics)
	}
	return run, nil
}

// WriteArena stores agent configs, game records and move records as CSV under
// root/name/<timestamp> and returns that directory.
func WriteArena(root, name string, agents []metrics.AgentConfig, result ArenaResult) (string, error) {
	writer, err := metrics.NewWriter(root, name)
	if err != nil {
		return "", fmt.Errorf("failed to create experiment writer: %w", err)
	}
	if err := writer.WriteAgentConfigs(agents); err != nil {
		return "", fmt.Errorf("failed to store agent configs: %w", err)
	}
	log.Info().Msg("stored agent configs")
	if err := writer.WriteGameRecords(result.Games); err != nil {
		return "", fmt.Errorf("failed to write game records: %w", err)
	}
	log.Info().Msg("stored game records")
	if err := writer.WriteMoveRecords(result.Moves); err != nil {
		return "", fmt.Errorf("failed to write move records: %w", err)
	}
	log.Info().Msg("stored move records")
	return writer.Dir(), nil
}
