package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"tictactoe/game"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Run("counting a search", func(t *testing.T) {
		c := NewCollector()
		c.Start(4, true)
		c.AddNode()
		c.AddNode()
		c.AddPrune()
		c.AddHit()
		c.AddMiss()
		c.AddMiss()
		c.AddMiss()
		c.SetCacheSize(12)

		m := c.Complete()
		require.Equal(t, 4, m.DepthLimit)
		require.True(t, m.Cached)
		require.Equal(t, 2, m.Nodes)
		require.Equal(t, 1, m.Prunes)
		require.Equal(t, 1, m.Hits)
		require.Equal(t, 3, m.Misses)
		require.Equal(t, 12, m.CacheSize)
		require.InDelta(t, 0.25, m.HitRate(), 1e-9)
	})

	t.Run("start resets counters", func(t *testing.T) {
		c := NewCollector()
		c.Start(0, false)
		c.AddNode()
		c.Start(0, false)
		require.Zero(t, c.Complete().Nodes, "Counters should reset between searches")
	})

	t.Run("dummy collector reports nothing", func(t *testing.T) {
		c := NewDummyCollector()
		c.Start(1, true)
		c.AddNode()
		require.Equal(t, SearchMetric{}, c.Complete())
		require.Zero(t, c.Complete().HitRate(), "No probes should give a zero hit rate")
	})
}

func TestTally(t *testing.T) {
	var tally Tally
	tally.Add(game.Win)
	tally.Add(game.Win)
	tally.Add(game.Tie)
	tally.Add(game.Loss)

	require.Equal(t, 4, tally.Games)
	require.InDelta(t, 0.5, tally.WinRate(), 1e-9)
	require.InDelta(t, 0.25, tally.DrawRate(), 1e-9)
	require.InDelta(t, 0.25, tally.LossRate(), 1e-9)
	require.Zero(t, Tally{}.WinRate(), "Empty tally should not divide by zero")
}

func TestWriter(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "arena")
	require.NoError(t, err)

	err = w.WriteAgentConfigs([]AgentConfig{{ID: 1, Kind: "search", Cached: true}})
	require.NoError(t, err)
	err = w.WriteGameRecords([]GameRecord{{ID: 1, Agent1: 1, Agent2: 2, GameMetric: GameMetric{StartingPlayer: "X", Winner: "X", TotalMoves: 5}}})
	require.NoError(t, err)
	err = w.WriteMoveRecords([]MoveRecord{{Game: 1, MoveMetric: MoveMetric{Step: 1, Player: "X", Move: 4, SearchMetric: SearchMetric{Nodes: 10}}}})
	require.NoError(t, err)
	err = w.WriteEpisodeRecords([]EpisodeRecord{{Episode: 1, LearnerMark: "O", Result: "draw", Moves: 9, Duration: time.Millisecond}})
	require.NoError(t, err)

	readCSV := func(name string) [][]string {
		f, err := os.Open(filepath.Join(w.Dir(), name))
		require.NoError(t, err)
		defer f.Close()
		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		return records
	}

	configs := readCSV("agent_configs.csv")
	require.Equal(t, []string{"id", "kind", "depth_limit", "cached", "path"}, configs[0])
	require.Equal(t, []string{"1", "search", "0", "true", ""}, configs[1])

	games := readCSV("game_records.csv")
	require.Len(t, games, 2, "Header plus one game")
	require.Equal(t, "5", games[1][8])

	moves := readCSV("move_records.csv")
	require.Equal(t, "4", moves[1][3])
	require.Equal(t, "10", moves[1][5])

	episodes := readCSV("episode_records.csv")
	require.Equal(t, []string{"1", "O", "draw", "9", "1ms", "0", "0"}, episodes[1])
}

func TestExperienceParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "experience.parquet")
	rows := []ExperienceRow{
		{Episode: 1, Step: 1, Mark: "X", State: "         ", Move: 4, Result: "win", Value: 1},
		{Episode: 1, Step: 2, Mark: "O", State: "    X    ", Move: 0, Result: "loss", Value: -1},
	}

	require.NoError(t, WriteExperienceParquet(path, rows))
	_, err := os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "Temp file should be renamed away")

	got, err := ReadExperienceParquet(path)
	require.NoError(t, err)
	require.Equal(t, rows, got)
}
