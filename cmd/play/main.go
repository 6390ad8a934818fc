package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"tictactoe/agent"
	"tictactoe/config"
	"tictactoe/engine"
	"tictactoe/experiments"
	"tictactoe/experiments/metrics"
	"tictactoe/game"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	opponentKind := flag.String("opponent", "search", "Opponent: random, search, tabular or neural")
	depth := flag.Int("depth", 0, "Search depth limit, 0 for perfect play")
	second := flag.Bool("second", false, "Play O and let the opponent start")
	plain := flag.Bool("plain", false, "Line-based play on stdin instead of the terminal UI")
	flag.Parse()

	c, err := config.Load(*configPath)
	c.ConfigureLogging(os.Stderr)
	if err != nil {
		log.Warn().Err(err).Msg("using default configuration")
	}

	opponent, err := experiments.NewAgent(
		metrics.AgentConfig{Kind: *opponentKind, DepthLimit: *depth, Cached: true},
		c, nil, experiments.NewRand(c.Seed),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create opponent")
	}

	human := game.X
	if *second {
		human = game.O
	}

	if *plain {
		playPlain(human, opponent)
	} else {
		playTUI(human, *opponentKind, opponent)
	}

	// Learners are loaded in exploitation mode and keep the state they were trained to.
	if _, ok := opponent.(agent.Learner); ok {
		return
	}
	if p, ok := opponent.(agent.Persister); ok {
		if err := p.Save(); err != nil {
			log.Warn().Err(err).Msg("failed to save opponent")
		}
	}
}

func seats(human game.Cell, h, opponent agent.Agent) (agent.Agent, agent.Agent) {
	if human == game.X {
		return h, opponent
	}
	return opponent, h
}

func playPlain(human game.Cell, opponent agent.Agent) {
	h := agent.NewHuman(agent.NewReaderSource(os.Stdin, os.Stdout), 0)
	x, o := seats(human, h, opponent)
	printer := engine.ObserverFunc(func(ev engine.MoveEvent) {
		fmt.Printf("%s plays %s\n%s\n", ev.Player, ev.Move, ev.Board)
	})

	outcome, _, _, err := engine.LocalEngine(x, o, engine.WithObserver(printer)).Run(context.Background())
	switch {
	case errors.Is(err, engine.ErrNoMove):
		fmt.Println("bye")
	case err != nil:
		log.Fatal().Err(err).Msg("game aborted")
	default:
		fmt.Println(outcome)
	}
}

func playTUI(human game.Cell, name string, opponent agent.Agent) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan tea.Msg, 1)
	moves := make(chan game.Move, 1)
	send := func(msg tea.Msg) {
		select {
		case updates <- msg:
		case <-ctx.Done():
		}
	}

	h := agent.NewHuman(&chanSource{ctx: ctx, updates: updates, moves: moves}, 0)
	x, o := seats(human, h, opponent)
	go func() {
		e := engine.LocalEngine(x, o, engine.WithObserver(engine.ObserverFunc(func(ev engine.MoveEvent) {
			send(moveMsg(ev))
		})))
		outcome, _, _, err := e.Run(ctx)
		send(doneMsg{outcome: outcome, err: err})
	}()

	if _, err := tea.NewProgram(newModel(human, name, updates, moves)).Run(); err != nil {
		log.Fatal().Err(err).Msg("terminal UI failed")
	}
}
