package tabular

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"tictactoe/experiments/metrics"
	"tictactoe/game"
	"tictactoe/meta"
)

const stateVersion = 1

var ErrCorruptState = errors.New("corrupt learner state")

type stateFile struct {
	Version int           `json:"version"`
	Tables  [2][]entry    `json:"tables"`
	Tally   metrics.Tally `json:"tally"`
	Epsilon float64       `json:"epsilon"`
}

type entry struct {
	State string  `json:"state"`
	Row   int     `json:"row"`
	Col   int     `json:"col"`
	Value float64 `json:"value"`
}

// Save writes the learner to its configured path. Without a path it does nothing.
func (l *Learner) Save() error {
	if l.path == "" {
		return nil
	}
	return l.SaveTo(l.path)
}

func (l *Learner) SaveTo(path string) error {
	file := stateFile{Version: stateVersion, Tally: l.tally, Epsilon: l.epsilon}
	for i, table := range l.tables {
		entries := make([]entry, 0, len(table))
		for sa, value := range table {
			move := game.MoveAt(sa.Move)
			entries = append(entries, entry{State: sa.State, Row: move.Row, Col: move.Col, Value: value})
		}
		slices.SortFunc(entries, func(a, b entry) int {
			return cmp.Or(cmp.Compare(a.State, b.State), cmp.Compare(a.Row, b.Row), cmp.Compare(a.Col, b.Col))
		})
		file.Tables[i] = entries
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode tabular state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write tabular state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename tabular state: %w", err)
	}
	return nil
}

// Load replaces the learned state with the one stored at the configured path. A missing
// file leaves the learner untouched. A corrupt file also leaves it untouched and returns
// an error wrapping ErrCorruptState.
func (l *Learner) Load() error {
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrCorruptState, l.path, err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptState, l.path, err)
	}
	if file.Version != stateVersion {
		return fmt.Errorf("%w: %s: unsupported version %d", ErrCorruptState, l.path, file.Version)
	}

	tables := [2]map[stateAction]float64{{}, {}}
	for i, entries := range file.Tables {
		for _, e := range entries {
			move := game.Move{Row: e.Row, Col: e.Col}
			if len(e.State) != meta.CELLS || !move.InBounds() {
				return fmt.Errorf("%w: %s: bad entry %+v", ErrCorruptState, l.path, e)
			}
			tables[i][stateAction{State: e.State, Move: move.Index()}] = e.Value
		}
	}

	l.tables = tables
	l.tally = file.Tally
	l.epsilon = file.Epsilon
	return nil
}

// Open builds a learner and loads its state file. On a corrupt file the returned learner
// is freshly initialised and usable alongside the error.
func Open(path string, options ...Option) (*Learner, error) {
	l := New(append(options, WithPath(path))...)
	return l, l.Load()
}
