package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"tictactoe/experiments/metrics"
	"tictactoe/meta"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Seed     uint64         `yaml:"seed"` // 0 draws a random seed
	LogLevel string         `yaml:"log_level"`
	Search   SearchConfig   `yaml:"search"`
	Tabular  TabularConfig  `yaml:"tabular"`
	Neural   NeuralConfig   `yaml:"neural"`
	Training TrainingConfig `yaml:"training"`
	Arena    ArenaConfig    `yaml:"arena"`
}

type SearchConfig struct {
	DepthLimit int    `yaml:"depth_limit"` // 0 searches to the end
	Cached     bool   `yaml:"cached"`
	CachePath  string `yaml:"cache_path"`
	Autosave   int    `yaml:"autosave"` // Misses between cache saves, 0 disables
}

type TabularConfig struct {
	LearningRate     float64 `yaml:"learning_rate"`
	Discount         float64 `yaml:"discount"`
	Exploration      float64 `yaml:"exploration"`
	ExplorationMin   float64 `yaml:"exploration_min"`
	ExplorationDecay float64 `yaml:"exploration_decay"`
	Path             string  `yaml:"path"`
}

type NeuralConfig struct {
	Hidden           int     `yaml:"hidden"`
	LearningRate     float64 `yaml:"learning_rate"`
	Discount         float64 `yaml:"discount"`
	Exploration      float64 `yaml:"exploration"`
	ExplorationMin   float64 `yaml:"exploration_min"`
	ExplorationDecay float64 `yaml:"exploration_decay"` // 1 keeps exploration constant
	Path             string  `yaml:"path"`
}

type TrainingConfig struct {
	Learner    string `yaml:"learner"`  // tabular or neural
	Opponent   string `yaml:"opponent"` // Any agent kind
	Episodes   int    `yaml:"episodes"`
	Checkpoint int    `yaml:"checkpoint"`
	SaveEvery  int    `yaml:"save_every"`
	EvalGames  int    `yaml:"eval_games"`
	OutputDir  string `yaml:"output_dir"`
	Experience bool   `yaml:"experience"` // Write per-move rows to parquet
}

type ArenaConfig struct {
	Games     int                   `yaml:"games"` // Per matchup
	OutputDir string                `yaml:"output_dir"`
	Agents    []metrics.AgentConfig `yaml:"agents"`
	Matchups  [][2]int              `yaml:"matchups"` // Pairs of agent IDs, first plays X
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Search: SearchConfig{
			Cached:   true,
			Autosave: meta.CACHE_AUTOSAVE,
		},
		Tabular: TabularConfig{
			LearningRate:     0.1,
			Discount:         0.9,
			Exploration:      0.1,
			ExplorationMin:   0.01,
			ExplorationDecay: 0.995,
			Path:             "data/tabular.json",
		},
		Neural: NeuralConfig{
			Hidden:           36,
			LearningRate:     0.05,
			Discount:         0.9,
			Exploration:      0.2,
			ExplorationDecay: 1,
			Path:             "data/neural.json",
		},
		Training: TrainingConfig{
			Learner:    "tabular",
			Opponent:   "random",
			Episodes:   20000,
			Checkpoint: 1000,
			SaveEvery:  1000,
			EvalGames:  1000,
			OutputDir:  "data",
		},
		Arena: ArenaConfig{
			Games:     100,
			OutputDir: "data",
			Agents: []metrics.AgentConfig{
				{ID: 1, Kind: "random"},
				{ID: 2, Kind: "search", Cached: true},
				{ID: 3, Kind: "search", DepthLimit: 2},
			},
			Matchups: [][2]int{{1, 2}, {2, 1}, {3, 1}, {2, 3}},
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Default(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

var kinds = map[string]bool{"random": true, "search": true, "tabular": true, "neural": true}

func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Search.DepthLimit < 0 {
		return fmt.Errorf("negative depth limit %d", c.Search.DepthLimit)
	}
	if c.Training.Learner != "tabular" && c.Training.Learner != "neural" {
		return fmt.Errorf("unknown learner %q", c.Training.Learner)
	}
	if !kinds[c.Training.Opponent] {
		return fmt.Errorf("unknown opponent %q", c.Training.Opponent)
	}
	if c.Training.Episodes < 0 || c.Arena.Games < 0 {
		return fmt.Errorf("negative game count")
	}

	ids := map[int]bool{}
	for _, a := range c.Arena.Agents {
		if !kinds[a.Kind] {
			return fmt.Errorf("agent %d: unknown kind %q", a.ID, a.Kind)
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate agent id %d", a.ID)
		}
		ids[a.ID] = true
	}
	for _, m := range c.Arena.Matchups {
		if !ids[m[0]] || !ids[m[1]] {
			return fmt.Errorf("matchup %v references an unknown agent", m)
		}
	}
	return nil
}

// Level is the configured log level, info when unparsable.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ConfigureLogging routes the global logger to a console writer on w at the configured level.
func (c Config) ConfigureLogging(w io.Writer) {
	zerolog.SetGlobalLevel(c.Level())
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly})
}
