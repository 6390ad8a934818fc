package searcher

import (
	"math"
	"tictactoe/experiments/metrics"
	"tictactoe/game"
	"tictactoe/meta"

	"github.com/rs/zerolog/log"
)

const infinity = math.MaxInt32

type Option func(m *Minimax)

// WithDepthLimit scores nodes at or beyond depth plies below a candidate move as 0.
func WithDepthLimit(depth int) Option {
	return func(m *Minimax) {
		if depth > 0 {
			m.depthLimit = depth
		}
	}
}

// WithCache enables memoization through a cache that may be shared with other engines.
func WithCache(cache *Cache) Option {
	return func(m *Minimax) {
		if cache != nil {
			m.cache = cache
		}
	}
}

// WithAutosave saves the cache to path every n cache misses.
func WithAutosave(path string, n int) Option {
	return func(m *Minimax) {
		if path != "" && n > 0 {
			m.autosavePath = path
			m.autosaveEvery = n
		}
	}
}

func WithCollector(collector metrics.Collector) Option {
	return func(m *Minimax) {
		if collector != nil {
			m.metrics = collector
		}
	}
}

func WithoutMetrics() Option {
	return func(m *Minimax) {
		m.metrics = metrics.NewDummyCollector()
	}
}

// Minimax is an exhaustive alpha-beta search. It is not safe for concurrent use; engines
// that share a Cache may run concurrently.
type Minimax struct {
	depthLimit    int
	cache         *Cache
	autosavePath  string
	autosaveEvery int
	misses        int
	metrics       metrics.Collector
	last          metrics.SearchMetric
}

func NewMinimax(options ...Option) *Minimax {
	m := &Minimax{ // Default values
		metrics: metrics.NewCollector(),
	}
	for _, option := range options {
		option(m)
	}
	if m.autosaveEvery > 0 && m.cache == nil {
		panic("autosave requires a cache")
	}
	return m
}

type search struct {
	player   game.Cell
	opponent game.Cell
}

// BestMove returns the first legal move, in row-major order, with the highest score for
// player, along with that score. Each candidate is searched with a fresh window. On a
// finished board it returns the top-left cell and 0.
func (m *Minimax) BestMove(b *game.Board, player, opponent game.Cell) (game.Move, int) {
	m.metrics.Start(m.depthLimit, m.cache != nil)

	best, bestScore := game.Move{}, 0
	if b.IsTerminal() {
		log.Warn().Msgf("best move requested on a finished board:\n%s", b)
	} else {
		s := search{player: player, opponent: opponent}
		bestScore = -infinity
		for _, move := range b.LegalMoves() {
			score := play(b, move, player, func() int {
				return m.minimax(b, s, 0, false, -infinity, infinity)
			})
			if score > bestScore {
				best, bestScore = move, score
			}
		}
	}

	if m.cache != nil {
		m.metrics.SetCacheSize(m.cache.Len())
	}
	m.last = m.metrics.Complete()
	return best, bestScore
}

// Stats reports the counters of the last BestMove call.
func (m *Minimax) Stats() metrics.SearchMetric {
	return m.last
}

func (m *Minimax) Cache() *Cache {
	return m.cache
}

func (m *Minimax) minimax(b *game.Board, s search, depth int, maximizing bool, alpha, beta int) int {
	m.metrics.AddNode()
	if m.cache == nil {
		score, _ := m.evaluate(b, s, depth, maximizing, alpha, beta)
		return score
	}

	key := Key{Cells: b.Cells(), Player: s.player, Maximizing: maximizing, Horizon: m.horizon(depth)}
	if entry, ok := m.cache.Get(key); ok {
		score := fromStored(entry.Score, depth)
		if entry.Bound == Exact ||
			(entry.Bound == Lower && score >= beta) ||
			(entry.Bound == Upper && score <= alpha) {
			m.metrics.AddHit()
			return score
		}
	}
	m.metrics.AddMiss()

	score, exact := m.evaluate(b, s, depth, maximizing, alpha, beta)
	bound := Exact
	if !exact {
		if score <= alpha {
			bound = Upper
		} else if score >= beta {
			bound = Lower
		}
	}
	m.cache.Put(key, Entry{Score: toStored(score, depth), Bound: bound})
	m.autosave()
	return score
}

// evaluate scores a node. exact is true for leaves, whose score does not depend on the window.
func (m *Minimax) evaluate(b *game.Board, s search, depth int, maximizing bool, alpha, beta int) (int, bool) {
	if m.depthLimit > 0 && depth >= m.depthLimit {
		return 0, true
	}
	switch outcome := b.Outcome(); {
	case outcome.Winner() == s.player:
		return meta.WIN_SCORE - depth, true
	case outcome.Winner() == s.opponent:
		return depth - meta.WIN_SCORE, true
	case outcome == game.Draw:
		return 0, true
	}

	if maximizing {
		best := -infinity
		for _, move := range b.LegalMoves() {
			score := play(b, move, s.player, func() int {
				return m.minimax(b, s, depth+1, false, alpha, beta)
			})
			best = max(best, score)
			alpha = max(alpha, score)
			if beta <= alpha {
				m.metrics.AddPrune()
				break
			}
		}
		return best, false
	}

	best := infinity
	for _, move := range b.LegalMoves() {
		score := play(b, move, s.opponent, func() int {
			return m.minimax(b, s, depth+1, true, alpha, beta)
		})
		best = min(best, score)
		beta = min(beta, score)
		if beta <= alpha {
			m.metrics.AddPrune()
			break
		}
	}
	return best, false
}

func (m *Minimax) horizon(depth int) int8 {
	if m.depthLimit == 0 {
		return -1
	}
	return int8(max(m.depthLimit-depth, 0))
}

func (m *Minimax) autosave() {
	if m.autosaveEvery == 0 {
		return
	}
	m.misses++
	if m.misses%m.autosaveEvery != 0 {
		return
	}
	if err := m.cache.Save(m.autosavePath); err != nil {
		log.Warn().Msgf("failed to autosave search cache: %v", err)
	}
}

// play applies move for the duration of score and always restores the board.
func play(b *game.Board, move game.Move, mark game.Cell, score func() int) int {
	if !b.Apply(move, mark) {
		panic("search tried an illegal move " + move.String())
	}
	defer b.Undo(move)
	return score()
}
