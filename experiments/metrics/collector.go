package metrics

import (
	"sync/atomic"
	"time"
)

type SearchMetric struct {
	DepthLimit int
	Cached     bool
	Duration   time.Duration
	Nodes      int
	Prunes     int
	Hits       int
	Misses     int
	CacheSize  int
}

// HitRate is the share of cache probes answered from the cache.
func (m SearchMetric) HitRate() float64 {
	probes := m.Hits + m.Misses
	if probes == 0 {
		return 0
	}
	return float64(m.Hits) / float64(probes)
}

type MoveMetric struct {
	Step     int
	Player   string // Mark
	Move     int    // Cell index
	Duration time.Duration
	SearchMetric
}

type GameMetric struct {
	StartingPlayer string
	Winner         string // Mark, empty for a draw
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	TotalMoves     int
}

type Collector interface {
	Start(depthLimit int, cached bool)
	AddNode()
	AddPrune()
	AddHit()
	AddMiss()
	SetCacheSize(size int)
	Complete() SearchMetric
}

type collector struct {
	depthLimit int
	cached     bool
	startTime  time.Time
	nodes      atomic.Int64
	prunes     atomic.Int64
	hits       atomic.Int64
	misses     atomic.Int64
	cacheSize  atomic.Int64
}

func NewCollector() Collector {
	return &collector{}
}

// Start resets all counters.
func (m *collector) Start(depthLimit int, cached bool) {
	m.startTime = time.Now()
	m.depthLimit = depthLimit
	m.cached = cached
	m.nodes.Store(0)
	m.prunes.Store(0)
	m.hits.Store(0)
	m.misses.Store(0)
	m.cacheSize.Store(0)
}

func (m *collector) AddNode() {
	m.nodes.Add(1)
}

func (m *collector) AddPrune() {
	m.prunes.Add(1)
}

func (m *collector) AddHit() {
	m.hits.Add(1)
}

func (m *collector) AddMiss() {
	m.misses.Add(1)
}

func (m *collector) SetCacheSize(size int) {
	m.cacheSize.Store(int64(size))
}

func (m *collector) Complete() SearchMetric {
	return SearchMetric{
		DepthLimit: m.depthLimit,
		Cached:     m.cached,
		Duration:   time.Since(m.startTime),
		Nodes:      int(m.nodes.Load()),
		Prunes:     int(m.prunes.Load()),
		Hits:       int(m.hits.Load()),
		Misses:     int(m.misses.Load()),
		CacheSize:  int(m.cacheSize.Load()),
	}
}

type dummyCollector struct{}

func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (m *dummyCollector) Start(depthLimit int, cached bool)  {}
func (m *dummyCollector) AddNode()                           {}
func (m *dummyCollector) AddPrune()                          {}
func (m *dummyCollector) AddHit()                            {}
func (m *dummyCollector) AddMiss()                           {}
func (m *dummyCollector) SetCacheSize(size int)              {}
func (m *dummyCollector) Complete() SearchMetric             { return SearchMetric{} }
