package lob

import (
	"sync"

	"github.com/0x5487/lob/itch"
)

// Execution is a trade print taken from the feed: an execution against a
// displayed order (E, C), a non-displayed trade (P), a cross (Q) or a
// broken trade (B).
type Execution struct {
	Type        itch.Type `json:"type"`
	Locate      uint16    `json:"locate"`
	Timestamp   uint64    `json:"timestamp"`
	Ref         uint64    `json:"ref,omitempty"` // resting order for E and C
	Side        Side      `json:"side,omitempty"`
	Shares      uint64    `json:"shares"`
	Price       uint32    `json:"price"` // E: resting order price when known
	MatchNumber uint64    `json:"match_number"`
	Printable   bool      `json:"printable"`
}

// ExecutionHandler receives every execution in feed order.
type ExecutionHandler interface {
	OnExecution(Execution)
}

// ExecutionHandlerFunc adapts a function to ExecutionHandler.
type ExecutionHandlerFunc func(Execution)

func (f ExecutionHandlerFunc) OnExecution(e Execution) { f(e) }

// executionOf builds the Execution carried by m, if any.
func executionOf(m itch.Message) (Execution, bool) {
	switch v := m.(type) {
	case itch.OrderExecuted:
		return Execution{
			Type:        v.Type,
			Locate:      v.Locate,
			Timestamp:   v.Timestamp,
			Ref:         v.Ref,
			Shares:      uint64(v.Shares),
			MatchNumber: v.MatchNumber,
			Printable:   true,
		}, true
	case itch.OrderExecutedWithPrice:
		return Execution{
			Type:        v.Type,
			Locate:      v.Locate,
			Timestamp:   v.Timestamp,
			Ref:         v.Ref,
			Shares:      uint64(v.Shares),
			Price:       v.Price,
			MatchNumber: v.MatchNumber,
			Printable:   v.Printable == 'Y',
		}, true
	case itch.Trade:
		return Execution{
			Type:        v.Type,
			Locate:      v.Locate,
			Timestamp:   v.Timestamp,
			Ref:         v.Ref,
			Side:        SideFromIndicator(v.BuySell),
			Shares:      uint64(v.Shares),
			Price:       v.Price,
			MatchNumber: v.MatchNumber,
			Printable:   true,
		}, true
	case itch.CrossTrade:
		return Execution{
			Type:        v.Type,
			Locate:      v.Locate,
			Timestamp:   v.Timestamp,
			Shares:      v.Shares,
			Price:       v.Price,
			MatchNumber: v.MatchNumber,
			Printable:   true,
		}, true
	case itch.BrokenTrade:
		return Execution{
			Type:        v.Type,
			Locate:      v.Locate,
			Timestamp:   v.Timestamp,
			MatchNumber: v.MatchNumber,
		}, true
	}
	return Execution{}, false
}

// ExecutionRecorder tallies printed volume per instrument and keeps the
// most recent executions. It is safe for concurrent use.
type ExecutionRecorder struct {
	mu      sync.Mutex
	limit   int
	recent  []Execution
	volume  map[uint16]uint64
	total   uint64
	broken  uint64
	ignored uint64 // non-printable executions
}

// NewExecutionRecorder keeps at most limit executions; zero keeps none.
func NewExecutionRecorder(limit int) *ExecutionRecorder {
	return &ExecutionRecorder{
		limit:  limit,
		volume: make(map[uint16]uint64),
	}
}

func (r *ExecutionRecorder) OnExecution(e Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	switch {
	case e.Type == itch.TypeBrokenTrade:
		r.broken++
	case !e.Printable:
		r.ignored++
	default:
		r.volume[e.Locate] += e.Shares
	}

	if r.limit > 0 {
		if len(r.recent) == r.limit {
			copy(r.recent, r.recent[1:])
			r.recent = r.recent[:r.limit-1]
		}
		r.recent = append(r.recent, e)
	}
}

// Volume returns printed shares for locate.
func (r *ExecutionRecorder) Volume(locate uint16) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume[locate]
}

// Count returns executions seen and how many of them were broken trades.
func (r *ExecutionRecorder) Count() (total, broken uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total, r.broken
}

// Recent returns the kept executions, oldest first.
func (r *ExecutionRecorder) Recent() []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Execution, len(r.recent))
	copy(out, r.recent)
	return out
}
