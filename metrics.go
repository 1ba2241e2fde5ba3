package lob

import (
	"sync/atomic"
	"time"

	"github.com/0x5487/lob/itch"
)

// Observer receives counters from books, registries and replayers.
// Implementations shared between shards must be safe for concurrent use.
type Observer interface {
	OnMessage(t itch.Type)
	OnAnomaly(locate uint16, reason RejectReason)
	OnBookCreated(locate uint16)
	OnBookReleased(locate uint16)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) OnMessage(itch.Type)            {}
func (NopObserver) OnAnomaly(uint16, RejectReason) {}
func (NopObserver) OnBookCreated(uint16)           {}
func (NopObserver) OnBookReleased(uint16)          {}

// MultiObserver forwards every event to each of its observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnMessage(t itch.Type) {
	for _, o := range m {
		o.OnMessage(t)
	}
}

func (m MultiObserver) OnAnomaly(locate uint16, reason RejectReason) {
	for _, o := range m {
		o.OnAnomaly(locate, reason)
	}
}

func (m MultiObserver) OnBookCreated(locate uint16) {
	for _, o := range m {
		o.OnBookCreated(locate)
	}
}

func (m MultiObserver) OnBookReleased(locate uint16) {
	for _, o := range m {
		o.OnBookReleased(locate)
	}
}

// Metrics is an Observer backed by atomic counters.
type Metrics struct {
	messages      [256]atomic.Uint64
	anomalies     map[RejectReason]*atomic.Uint64 // fixed key set, read-only map
	otherAnomaly  atomic.Uint64
	booksCreated  atomic.Uint64
	booksReleased atomic.Uint64
}

func NewMetrics() *Metrics {
	m := &Metrics{
		anomalies: make(map[RejectReason]*atomic.Uint64, len(RejectReasons)),
	}
	for _, r := range RejectReasons {
		m.anomalies[r] = new(atomic.Uint64)
	}
	return m
}

func (m *Metrics) OnMessage(t itch.Type) {
	m.messages[t].Add(1)
}

func (m *Metrics) OnAnomaly(_ uint16, reason RejectReason) {
	if c, ok := m.anomalies[reason]; ok {
		c.Add(1)
		return
	}
	m.otherAnomaly.Add(1)
}

func (m *Metrics) OnBookCreated(uint16) {
	m.booksCreated.Add(1)
}

func (m *Metrics) OnBookReleased(uint16) {
	m.booksReleased.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Messages       map[string]uint64 `json:"messages"`
	TotalMessages  uint64            `json:"total_messages"`
	Anomalies      map[string]uint64 `json:"anomalies"`
	TotalAnomalies uint64            `json:"total_anomalies"`
	BooksCreated   uint64            `json:"books_created"`
	BooksReleased  uint64            `json:"books_released"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot. Zero counters are left out.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Messages:      make(map[string]uint64),
		Anomalies:     make(map[string]uint64),
		BooksCreated:  m.booksCreated.Load(),
		BooksReleased: m.booksReleased.Load(),
		Timestamp:     time.Now(),
	}
	for i := range m.messages {
		if n := m.messages[i].Load(); n > 0 {
			snap.Messages[itch.Type(i).String()] = n
			snap.TotalMessages += n
		}
	}
	for r, c := range m.anomalies {
		if n := c.Load(); n > 0 {
			snap.Anomalies[string(r)] = n
			snap.TotalAnomalies += n
		}
	}
	if n := m.otherAnomaly.Load(); n > 0 {
		snap.Anomalies["other"] = n
		snap.TotalAnomalies += n
	}
	return snap
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	for i := range m.messages {
		m.messages[i].Store(0)
	}
	for _, c := range m.anomalies {
		c.Store(0)
	}
	m.otherAnomaly.Store(0)
	m.booksCreated.Store(0)
	m.booksReleased.Store(0)
}
