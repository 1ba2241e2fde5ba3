package lob

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/igrmk/treemap/v2"
)

var ErrSequenceGap = errors.New("book log sequence gap")

type aggregatedLevel struct {
	volume uint64
	orders int
}

// AggregatedBook maintains a simplified view of the order book,
// tracking only price levels and their aggregated sizes (depth).
// It is designed for downstream services that need to rebuild
// order book state from BookLog events received via message queue.
type AggregatedBook struct {
	locate uint16
	seqID  atomic.Uint64 // Last processed SequenceID for gap detection and deduplication
	ask    *treemap.TreeMap[uint32, aggregatedLevel]
	bid    *treemap.TreeMap[uint32, aggregatedLevel]
}

// NewAggregatedBook creates a new AggregatedBook instance with empty ask and bid sides.
func NewAggregatedBook(locate uint16) *AggregatedBook {
	return &AggregatedBook{
		locate: locate,
		ask:    treemap.New[uint32, aggregatedLevel](),
		bid:    treemap.New[uint32, aggregatedLevel](),
	}
}

// SequenceID returns the last processed sequence ID.
// Used for synchronization and gap detection during rebuild.
func (ab *AggregatedBook) SequenceID() uint64 {
	return ab.seqID.Load()
}

// Replay applies a BookLog event to update the aggregated book state.
// Events already applied are ignored. Events with LogType == LogTypeReject do
// not affect book state but still advance the sequence ID.
// A missing event yields ErrSequenceGap and leaves the book unchanged.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	last := ab.seqID.Load()
	if log.SequenceID <= last {
		return nil
	}
	if log.SequenceID != last+1 {
		return fmt.Errorf("%w: locate %d expected %d got %d", ErrSequenceGap, ab.locate, last+1, log.SequenceID)
	}

	change := CalculateDepthChange(log)
	if change.SizeDiff != 0 {
		if err := ab.apply(change, orderCountChange(log)); err != nil {
			return err
		}
	}
	ab.seqID.Store(log.SequenceID)
	return nil
}

func (ab *AggregatedBook) apply(change DepthChange, orders int) error {
	tree := ab.side(change.Side)
	if tree == nil {
		return fmt.Errorf("%w: side %d", ErrInvalidSide, change.Side)
	}

	lv, _ := tree.Get(change.Price)
	if change.SizeDiff < 0 && uint64(-change.SizeDiff) > lv.volume {
		return fmt.Errorf("%w: locate %d %s %d: remove %d of %d",
			ErrInvariant, ab.locate, change.Side, change.Price, -change.SizeDiff, lv.volume)
	}
	if change.SizeDiff < 0 {
		lv.volume -= uint64(-change.SizeDiff)
	} else {
		lv.volume += uint64(change.SizeDiff)
	}
	lv.orders += orders

	if lv.volume == 0 {
		tree.Del(change.Price)
		return nil
	}
	tree.Set(change.Price, lv)
	return nil
}

// OnRebuild resets the aggregated book from a snapshot of the live book.
// Replay continues with the log following snap.SeqID.
func (ab *AggregatedBook) OnRebuild(snap BookSnapshot) {
	ab.locate = snap.Locate
	ab.bid.Clear()
	ab.ask.Clear()
	for _, l := range snap.Bids {
		ab.bid.Set(l.Ticks, aggregatedLevel{volume: l.Volume, orders: len(l.Orders)})
	}
	for _, l := range snap.Asks {
		ab.ask.Set(l.Ticks, aggregatedLevel{volume: l.Volume, orders: len(l.Orders)})
	}
	ab.seqID.Store(snap.SeqID)
}

// Depth returns the aggregated size at a specific price level for the given side.
// Returns zero if the price level does not exist.
func (ab *AggregatedBook) Depth(side Side, price uint32) uint64 {
	tree := ab.side(side)
	if tree == nil {
		return 0
	}
	lv, _ := tree.Get(price)
	return lv.volume
}

// Best returns the best price of side and its size.
func (ab *AggregatedBook) Best(side Side) (uint32, uint64, bool) {
	levels := ab.Levels(side, 1)
	if len(levels) == 0 {
		return 0, 0, false
	}
	return levels[0].Price, levels[0].Volume, true
}

// Levels returns up to limit levels of side best first; limit <= 0 returns all.
func (ab *AggregatedBook) Levels(side Side, limit int) []DepthItem {
	var result []DepthItem
	full := func() bool { return limit > 0 && len(result) == limit }

	switch side {
	case Buy:
		for it := ab.bid.Reverse(); it.Valid() && !full(); it.Next() {
			result = append(result, DepthItem{Price: it.Key(), Volume: it.Value().volume, Orders: it.Value().orders})
		}
	case Sell:
		for it := ab.ask.Iterator(); it.Valid() && !full(); it.Next() {
			result = append(result, DepthItem{Price: it.Key(), Volume: it.Value().volume, Orders: it.Value().orders})
		}
	}
	return result
}

func (ab *AggregatedBook) side(side Side) *treemap.TreeMap[uint32, aggregatedLevel] {
	switch side {
	case Buy:
		return ab.bid
	case Sell:
		return ab.ask
	}
	return nil
}

// DepthMirror is a PublishLog that keeps an AggregatedBook per instrument.
// Registered as an Observer it also forgets released books, whose log
// sequence restarts when they are acquired again.
// It is safe for concurrent use.
type DepthMirror struct {
	NopObserver

	mu    sync.RWMutex
	books map[uint16]*AggregatedBook
	err   error
}

func NewDepthMirror() *DepthMirror {
	return &DepthMirror{books: make(map[uint16]*AggregatedBook)}
}

// Publish replays logs into their books. The first replay error is kept and
// returned by Err.
func (m *DepthMirror) Publish(logs ...*BookLog) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range logs {
		book, ok := m.books[log.Locate]
		if !ok {
			book = NewAggregatedBook(log.Locate)
			m.books[log.Locate] = book
		}
		if err := book.Replay(log); err != nil && m.err == nil {
			m.err = err
		}
	}
}

// Book returns the mirror of locate, or nil.
func (m *DepthMirror) Book(locate uint16) *AggregatedBook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.books[locate]
}

// Forget drops the mirror of locate; a released and reacquired book starts
// a new log sequence.
func (m *DepthMirror) Forget(locate uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, locate)
}

func (m *DepthMirror) OnBookReleased(locate uint16) {
	m.Forget(locate)
}

func (m *DepthMirror) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}
