package neural

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"tictactoe/experiments/metrics"
)

const stateVersion = 1

var ErrCorruptState = errors.New("corrupt network state")

type stateFile struct {
	Version      int           `json:"version"`
	Hidden       int           `json:"hidden"`
	LearningRate float64       `json:"learning_rate"`
	Epsilon      float64       `json:"epsilon"`
	Layers       []layerState  `json:"layers"`
	Tally        metrics.Tally `json:"tally"`
	MeanError    float64       `json:"mean_error"`
}

// layerState holds one fully connected layer. Weights are flat with one row of Inputs
// values per output unit and Biases holds one value per output unit.
type layerState struct {
	Inputs  int       `json:"inputs"`
	Outputs int       `json:"outputs"`
	Weights []float64 `json:"weights"`
	Biases  []float64 `json:"biases,omitempty"`
}

func (l *Learner) Save() error {
	if l.path == "" {
		return nil
	}
	return l.SaveTo(l.path)
}

func (l *Learner) SaveTo(path string) error {
	file := stateFile{
		Version:      stateVersion,
		Hidden:       l.hidden,
		LearningRate: l.lr,
		Epsilon:      l.epsilon,
		Tally:        l.tally,
		MeanError:    l.meanError,
	}
	layers := l.network.Dump().Weights
	for i, layer := range layers {
		inputs, outputs := l.layerShape(i)
		state := layerState{Inputs: inputs, Outputs: outputs, Weights: make([]float64, 0, inputs*outputs)}
		for _, neuron := range layer {
			state.Weights = append(state.Weights, neuron[:inputs]...)
			state.Biases = append(state.Biases, neuron[inputs:]...)
		}
		if i == len(layers)-1 {
			state.Biases = append(state.Biases, l.outBias...)
		}
		file.Layers = append(file.Layers, state)
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode network state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write network state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename network state: %w", err)
	}
	return nil
}

// Load replaces the network and counters with the stored ones. The hidden width and
// learning rate come from the file. A missing file leaves the learner untouched; so does
// a corrupt one, which returns an error wrapping ErrCorruptState.
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
	if file.Hidden <= 0 {
		return fmt.Errorf("%w: %s: hidden width %d", ErrCorruptState, l.path, file.Hidden)
	}

	network := newNetwork(file.Hidden)
	weights := network.Dump().Weights
	if len(file.Layers) != len(weights) {
		return fmt.Errorf("%w: %s: %d layers, want %d", ErrCorruptState, l.path, len(file.Layers), len(weights))
	}
	var outBias []float64
	inputs := network.Config.Inputs
	for i, layer := range weights {
		state := file.Layers[i]
		biased := len(layer[0]) > inputs
		if state.Inputs != inputs || state.Outputs != len(layer) ||
			len(state.Weights) != state.Inputs*state.Outputs || len(state.Biases) != state.Outputs {
			return fmt.Errorf("%w: %s: layer %d shape mismatch", ErrCorruptState, l.path, i)
		}
		if !biased {
			if i != len(weights)-1 {
				return fmt.Errorf("%w: %s: layer %d has no bias units", ErrCorruptState, l.path, i)
			}
			outBias = state.Biases
		}
		for j, neuron := range layer {
			copy(neuron, state.Weights[j*inputs:(j+1)*inputs])
			if biased {
				neuron[inputs] = state.Biases[j]
			}
		}
		inputs = state.Outputs
	}
	network.ApplyWeights(weights)

	l.network = network
	l.outBias = outBias
	l.hidden = file.Hidden
	if file.LearningRate > 0 {
		l.lr = file.LearningRate
	}
	l.epsilon = file.Epsilon
	l.tally = file.Tally
	l.meanError = file.MeanError
	return nil
}

// Open builds a learner and loads its state file. On a corrupt file the returned learner
// keeps its fresh weights and is usable alongside the error.
func Open(path string, options ...Option) (*Learner, error) {
	l := New(append(options, WithPath(path))...)
	return l, l.Load()
}
