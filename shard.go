package lob

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0x5487/lob/itch"
)

const DefaultRingSize = 1 << 14

// ShardConfig partitions a replay by instrument.
type ShardConfig struct {
	Shards   int
	RingSize int64 // per shard, power of 2; zero uses DefaultRingSize
	// Registry sizes the pools of each shard.
	Registry    RegistryConfig
	BookOptions []BookOption
}

type shardEvent struct {
	seq uint64
	msg itch.Message
}

// shard owns one registry; only its ring consumer goroutine touches it.
type shard struct {
	id         int
	registry   *BookRegistry
	dispatcher *dispatcher
	ring       *RingBuffer[shardEvent]
	anomalies  atomic.Uint64
	owner      *ShardedReplayer
}

func (s *shard) OnEvent(ev *shardEvent) {
	if s.owner.failed.Load() {
		return
	}
	err := s.dispatcher.dispatch(ev.msg)
	if err == nil {
		return
	}
	if IsAnomaly(err) {
		s.anomalies.Add(1)
		logger.Debug("feed anomaly", slog.Int("shard", s.id), slog.Uint64("seq", ev.seq), slog.Any("err", err))
		return
	}
	s.owner.fail(fmt.Errorf("%w: shard %d: message %d (%s): %w", ErrShardFailed, s.id, ev.seq, ev.msg.MessageType(), err))
}

// ShardedReplayer replays a stream across several registries. The reader
// goroutine frames and decodes; order and trade messages go to shard
// locate % N through that shard's ring buffer, informational messages are
// handled on the reader goroutine. Books never move between shards.
//
// Info and execution handlers and observers are called from several
// goroutines and must be safe for concurrent use.
type ShardedReplayer struct {
	cfg    ReplayConfig
	opts   replayOptions
	framer *itch.Framer
	shards []*shard

	failed   atomic.Bool
	failOnce sync.Once
	err      error

	stats ReplayStats
}

// NewShardedReplayer creates a sharded replay of r. Periodic snapshots are
// not supported; a final snapshot is written when a sink is set.
func NewShardedReplayer(r io.Reader, shardCfg ShardConfig, cfg ReplayConfig, opts ...ReplayOption) (*ShardedReplayer, error) {
	if shardCfg.Shards <= 0 {
		return nil, fmt.Errorf("%w: shards must be positive", ErrInvalidParam)
	}
	if cfg.SnapshotEvery > 0 {
		return nil, fmt.Errorf("%w: periodic snapshots need a single replayer", ErrInvalidParam)
	}
	if shardCfg.RingSize == 0 {
		shardCfg.RingSize = DefaultRingSize
	}
	if shardCfg.RingSize < 0 || shardCfg.RingSize&(shardCfg.RingSize-1) != 0 {
		return nil, fmt.Errorf("%w: ring size %d is not a power of 2", ErrInvalidParam, shardCfg.RingSize)
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = itch.DefaultBufferSize
	}
	framer, err := itch.NewFramer(r, cfg.BufferSize)
	if err != nil {
		return nil, err
	}

	o := defaultReplayOptions()
	for _, opt := range opts {
		opt(&o)
	}

	sr := &ShardedReplayer{
		cfg:    cfg,
		opts:   o,
		framer: framer,
		shards: make([]*shard, shardCfg.Shards),
		stats:  ReplayStats{RunID: o.runID},
	}
	for i := range sr.shards {
		registry, err := NewBookRegistry(shardCfg.Registry, shardCfg.BookOptions...)
		if err != nil {
			return nil, err
		}
		s := &shard{
			id:       i,
			registry: registry,
			dispatcher: &dispatcher{
				registry:        registry,
				info:            o.info,
				exec:            o.exec,
				applyExecutions: cfg.ApplyExecutions,
			},
			owner: sr,
		}
		s.ring = NewRingBuffer[shardEvent](shardCfg.RingSize, s)
		sr.shards[i] = s
	}
	return sr, nil
}

func (sr *ShardedReplayer) RunID() string {
	return sr.opts.runID
}

// Registries returns the registry of every shard. They may only be read
// once Run has returned.
func (sr *ShardedReplayer) Registries() []*BookRegistry {
	out := make([]*BookRegistry, len(sr.shards))
	for i, s := range sr.shards {
		out[i] = s.registry
	}
	return out
}

// Book returns the book of locate from its shard. Only valid once Run has
// returned.
func (sr *ShardedReplayer) Book(locate uint16) *OrderBook {
	return sr.shardOf(locate).registry.Book(locate)
}

func (sr *ShardedReplayer) shardOf(locate uint16) *shard {
	return sr.shards[int(locate)%len(sr.shards)]
}

func (sr *ShardedReplayer) fail(err error) {
	sr.failOnce.Do(func() {
		sr.err = err
		sr.failed.Store(true)
	})
}

// Run replays the stream until its end, the first fatal error of any shard
// or ctx cancellation. Every shard drains its ring before Run returns.
func (sr *ShardedReplayer) Run(ctx context.Context) (ReplayStats, error) {
	start := time.Now()
	log := logger.With(slog.String("run_id", sr.opts.runID), slog.Int("shards", len(sr.shards)))
	log.InfoContext(ctx, "sharded replay started", slog.Bool("apply_executions", sr.cfg.ApplyExecutions))

	for _, s := range sr.shards {
		go s.ring.Run()
	}

	readErr := sr.read(ctx)

	// Drain regardless of ctx so every shard stops between two messages.
	var drainErr error
	for _, s := range sr.shards {
		drainErr = errors.Join(drainErr, s.ring.Shutdown(context.WithoutCancel(ctx)))
	}

	err := errors.Join(readErr, drainErr)
	if sr.failed.Load() {
		err = sr.err
	}
	if err == nil {
		err = sr.finish(ctx)
	}

	sr.stats.Framer = sr.framer.Stats()
	sr.stats.Duration = time.Since(start)
	for _, s := range sr.shards {
		sr.stats.Anomalies += s.anomalies.Load()
		sr.stats.Books += s.registry.Len()
		sr.stats.Orders += s.registry.Orders()
	}

	if err != nil {
		log.ErrorContext(ctx, "sharded replay stopped", slog.Uint64("messages", sr.stats.Messages), slog.Any("err", err))
		return sr.stats, err
	}
	log.InfoContext(ctx, "sharded replay finished",
		slog.Uint64("messages", sr.stats.Messages),
		slog.Uint64("anomalies", sr.stats.Anomalies),
		slog.Int("books", sr.stats.Books),
		slog.Int("orders", sr.stats.Orders),
		slog.Duration("duration", sr.stats.Duration),
	)
	return sr.stats, nil
}

func (sr *ShardedReplayer) read(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if sr.failed.Load() {
			return nil
		}

		payload, err := sr.framer.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("message %d: %w", sr.stats.Messages+1, err)
		}
		m, err := itch.Decode(payload)
		if err != nil {
			return fmt.Errorf("message %d: %w", sr.stats.Messages+1, err)
		}
		sr.stats.Messages++
		sr.stats.FeedTime = m.MessageHeader().Timestamp
		sr.opts.observer.OnMessage(m.MessageType())

		if !bookMessage(m) {
			sr.opts.info.OnInfo(m)
			continue
		}
		s := sr.shardOf(m.StockLocate())
		if !s.ring.Publish(shardEvent{seq: sr.stats.Messages, msg: m}) {
			return fmt.Errorf("%w: shard %d ring closed", ErrShardFailed, s.id)
		}
	}
}

// finish verifies and exports the shards once every ring is drained.
func (sr *ShardedReplayer) finish(ctx context.Context) error {
	if sr.cfg.Verify {
		for _, s := range sr.shards {
			if err := s.registry.CheckInvariants(); err != nil {
				return fmt.Errorf("shard %d: %w", s.id, err)
			}
		}
	}
	if sr.opts.sink == nil {
		return nil
	}

	symbols := symbolsOf(sr.opts.info)
	var books []BookSnapshot
	for _, s := range sr.shards {
		books = append(books, s.registry.Snapshot(symbols)...)
	}
	slices.SortFunc(books, func(a, b BookSnapshot) int {
		return cmp.Compare(a.Locate, b.Locate)
	})

	snap := &Snapshot{
		RunID:    sr.opts.runID,
		Sequence: sr.stats.Messages,
		FeedTime: sr.stats.FeedTime,
		TakenAt:  time.Now().UTC(),
		Books:    books,
	}
	if err := sr.opts.sink.WriteSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("snapshot at message %d: %w", sr.stats.Messages, err)
	}
	sr.stats.Snapshots++
	return nil
}

// bookMessage reports whether m is order flow or a trade print, which are
// applied on the owning shard.
func bookMessage(m itch.Message) bool {
	switch m.(type) {
	case itch.AddOrder, itch.AddOrderAttributed, itch.OrderCancel, itch.OrderDelete,
		itch.OrderReplace, itch.OrderExecuted, itch.OrderExecutedWithPrice,
		itch.Trade, itch.CrossTrade, itch.BrokenTrade:
		return true
	}
	return false
}
