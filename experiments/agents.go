package experiments

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"tictactoe/agent"
	"tictactoe/agent/neural"
	"tictactoe/agent/tabular"
	"tictactoe/config"
	"tictactoe/experiments/metrics"
	"tictactoe/searcher"

	"github.com/rs/zerolog/log"
)

// NewRand returns a seeded generator, or a randomly seeded one for seed 0.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// NewTabular opens the tabular learner at path. A corrupt state file is logged and the
// learner starts fresh.
func NewTabular(c config.TabularConfig, path string, rng *rand.Rand) *tabular.Learner {
	l, err := tabular.Open(path,
		tabular.WithLearningRate(c.LearningRate),
		tabular.WithDiscount(c.Discount),
		tabular.WithExploration(c.Exploration, c.ExplorationMin, c.ExplorationDecay),
		tabular.WithRand(rng),
	)
	if err != nil {
		log.Warn().Err(err).Msgf("starting tabular learner from scratch")
	}
	return l
}

// NewNeural opens the neural learner at path. A corrupt state file is logged and the
// network starts from fresh weights.
func NewNeural(c config.NeuralConfig, path string, rng *rand.Rand) *neural.Learner {
	l, err := neural.Open(path,
		neural.WithHidden(c.Hidden),
		neural.WithLearningRate(c.LearningRate),
		neural.WithDiscount(c.Discount),
		neural.WithExploration(c.Exploration),
		neural.WithExplorationDecay(c.ExplorationDecay, c.ExplorationMin),
		neural.WithRand(rng),
	)
	if err != nil {
		log.Warn().Err(err).Msgf("starting neural learner from scratch")
	}
	return l
}

// NewSearch builds a minimax agent. The cache is only used when cached is set. A shared
// cache is saved by its owner; a nil one is replaced by the cache at the configured path,
// which the agent then autosaves and saves.
func NewSearch(c config.SearchConfig, depthLimit int, cached bool, shared *searcher.Cache) *agent.Search {
	options := []searcher.Option{searcher.WithDepthLimit(depthLimit)}
	cachePath := ""
	switch {
	case cached && shared != nil:
		options = append(options, searcher.WithCache(shared))
	case cached:
		options = append(options, searcher.WithCache(LoadCache(c.CachePath)))
		cachePath = c.CachePath
		if cachePath != "" && c.Autosave > 0 {
			options = append(options, searcher.WithAutosave(cachePath, c.Autosave))
		}
	}
	return agent.NewSearch(searcher.NewMinimax(options...), cachePath)
}

// LoadCache reads the cache at path, logging and starting empty when it cannot be used.
func LoadCache(path string) *searcher.Cache {
	if path == "" {
		return searcher.NewCache()
	}
	cache, err := searcher.LoadCache(path)
	if err != nil {
		log.Warn().Err(err).Msgf("starting with an empty search cache")
	}
	return cache
}

var ErrUnknownKind = errors.New("unknown agent kind")

// NewAgent builds the agent an arena entry describes. Learners load from the entry's path,
// or the configured one when it is empty, and play in exploitation mode.
func NewAgent(a metrics.AgentConfig, c config.Config, cache *searcher.Cache, rng *rand.Rand) (agent.Agent, error) {
	switch a.Kind {
	case "random":
		return agent.NewRandom(rng), nil
	case "search":
		return NewSearch(c.Search, a.DepthLimit, a.Cached, cache), nil
	case "tabular":
		l := NewTabular(c.Tabular, pathOr(a.Path, c.Tabular.Path), rng)
		l.EnterExploitationMode()
		return l, nil
	case "neural":
		l := NewNeural(c.Neural, pathOr(a.Path, c.Neural.Path), rng)
		l.EnterExploitationMode()
		return l, nil
	}
	return nil, fmt.Errorf("agent %d: %w %q", a.ID, ErrUnknownKind, a.Kind)
}

func pathOr(path, fallback string) string {
	if path != "" {
		return path
	}
	return fallback
}
