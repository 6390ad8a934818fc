package metrics

import "time"

// AgentConfig describes one contestant of an experiment.
type AgentConfig struct {
	ID         int    `yaml:"id"`
	Kind       string `yaml:"kind"` // random, search, tabular, neural
	DepthLimit int    `yaml:"depth_limit"`
	Cached     bool   `yaml:"cached"`
	Path       string `yaml:"path"` // learner state file
}

type GameRecord struct {
	ID     int
	Agent1 int // AgentConfig.ID playing X
	Agent2 int // AgentConfig.ID playing O
	GameMetric
}

type MoveRecord struct {
	Game int // GameRecord.ID
	MoveMetric
}

// EpisodeRecord is one training game seen from the learner.
type EpisodeRecord struct {
	Episode     int
	LearnerMark string
	Result      string
	Moves       int
	Duration    time.Duration
	Exploration float64
	Error       float64
}
