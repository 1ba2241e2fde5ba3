package lob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/0x5487/lob/itch"
	"github.com/rs/xid"
)

// dispatcher routes decoded messages to the books of one registry and to
// the informational and execution collaborators.
type dispatcher struct {
	registry        *BookRegistry
	info            InfoHandler
	exec            ExecutionHandler
	applyExecutions bool
}

func (d *dispatcher) dispatch(m itch.Message) error {
	switch v := m.(type) {
	case itch.AddOrder:
		return d.add(v)
	case itch.AddOrderAttributed:
		return d.add(v.AddOrder)
	case itch.OrderCancel:
		book, err := d.book(v.Header, "cancel", v.Ref)
		if book == nil {
			return err
		}
		err = book.Cancel(v)
		d.registry.settle(book)
		return err
	case itch.OrderDelete:
		book, err := d.book(v.Header, "delete", v.Ref)
		if book == nil {
			return err
		}
		err = book.Delete(v)
		d.registry.settle(book)
		return err
	case itch.OrderReplace:
		book, err := d.book(v.Header, "replace", v.OriginalRef)
		if book == nil {
			return err
		}
		err = book.Replace(v)
		d.registry.settle(book)
		return err
	case itch.OrderExecuted, itch.OrderExecutedWithPrice:
		return d.execute(m)
	case itch.Trade, itch.CrossTrade, itch.BrokenTrade:
		e, ok := executionOf(m)
		if !ok {
			return fmt.Errorf("%w: %T", ErrUnsupported, m)
		}
		if book := d.registry.Book(e.Locate); book != nil {
			book.RecordTrade(e)
		}
		d.exec.OnExecution(e)
		return nil
	case itch.SystemEvent, itch.StockDirectory, itch.StockTradingAction, itch.RegSHORestriction,
		itch.MarketParticipantPosition, itch.MWCBDeclineLevel, itch.MWCBStatus,
		itch.IPOQuotingPeriodUpdate, itch.LULDAuctionCollar, itch.OperationalHalt,
		itch.NOII, itch.RetailInterest, itch.DirectListing:
		d.info.OnInfo(m)
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnsupported, m)
}

func (d *dispatcher) add(m itch.AddOrder) error {
	book, err := d.registry.Acquire(m.Locate)
	if err != nil {
		return err
	}
	err = book.Add(m)
	d.registry.settle(book)
	return err
}

// execute handles E and C. The execution is always delegated; the resting
// order is only reduced when executions are applied. The last trade only
// moves for an execution that matches a resting order.
func (d *dispatcher) execute(m itch.Message) error {
	e, ok := executionOf(m)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupported, m)
	}
	book, err := d.book(m.MessageHeader(), "fill", e.Ref)
	if book == nil {
		return err
	}

	o, found := book.Order(e.Ref)
	if found {
		e.Side = o.Side
		if e.Type == itch.TypeOrderExecuted {
			e.Price = o.Price
		}
	}
	d.exec.OnExecution(e)

	if d.applyExecutions {
		err = book.Fill(e)
		d.registry.settle(book)
		return err
	}
	if found && e.Shares <= uint64(o.Shares) {
		book.RecordTrade(e)
	}
	return nil
}

// book returns the book an order message refers to. A message for a book
// released earlier in the session references an order that is gone and is
// an anomaly; one for an instrument never seen is fatal.
func (d *dispatcher) book(h itch.Header, op string, ref uint64) (*OrderBook, error) {
	if book := d.registry.Book(h.Locate); book != nil {
		return book, nil
	}
	if d.registry.Released(h.Locate) {
		d.registry.opts.observer.OnAnomaly(h.Locate, RejectReasonOrderNotFound)
		return nil, &AnomalyError{Op: op, Locate: h.Locate, Ref: ref, Reason: RejectReasonOrderNotFound, Err: ErrOrderNotFound}
	}
	return nil, fmt.Errorf("%w: %s ref=%d locate=%d", ErrUnknownInstrument, op, ref, h.Locate)
}

// ReplayConfig controls a replay run.
type ReplayConfig struct {
	// BufferSize is the framer read buffer; zero uses itch.DefaultBufferSize.
	BufferSize int
	// ApplyExecutions reduces resting orders on E and C messages.
	ApplyExecutions bool
	// SnapshotEvery takes a snapshot after every N messages; zero disables
	// periodic snapshots. A final snapshot is taken whenever a sink is set.
	SnapshotEvery uint64
	// Verify checks every book invariant at each snapshot point and at the
	// end of the run.
	Verify bool
}

// ReplayStats summarizes a run.
type ReplayStats struct {
	RunID     string
	Messages  uint64
	Anomalies uint64
	Snapshots int
	FeedTime  uint64 // timestamp of the last message
	Books     int
	Orders    int
	Framer    itch.FramerStats
	Duration  time.Duration
}

type replayOptions struct {
	info     InfoHandler
	exec     ExecutionHandler
	sink     SnapshotSink
	observer Observer
	runID    string
}

func defaultReplayOptions() replayOptions {
	return replayOptions{
		info:     InfoHandlerFunc(func(itch.Message) {}),
		exec:     ExecutionHandlerFunc(func(Execution) {}),
		observer: NopObserver{},
		runID:    xid.New().String(),
	}
}

// ReplayOption configures a Replayer.
type ReplayOption func(*replayOptions)

// WithInfoHandler receives every informational message. When the handler
// also implements SymbolLookup, snapshots carry symbols.
func WithInfoHandler(h InfoHandler) ReplayOption {
	return func(o *replayOptions) {
		if h != nil {
			o.info = h
		}
	}
}

// WithExecutionHandler receives every execution in feed order.
func WithExecutionHandler(h ExecutionHandler) ReplayOption {
	return func(o *replayOptions) {
		if h != nil {
			o.exec = h
		}
	}
}

// WithSnapshotSink enables snapshots.
func WithSnapshotSink(s SnapshotSink) ReplayOption {
	return func(o *replayOptions) {
		o.sink = s
	}
}

// WithReplayObserver counts messages by type. Book level events go to the
// observer given to the registry.
func WithReplayObserver(obs Observer) ReplayOption {
	return func(o *replayOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) ReplayOption {
	return func(o *replayOptions) {
		if id != "" {
			o.runID = id
		}
	}
}

// Replayer drives one registry from an ITCH byte stream on the calling
// goroutine.
type Replayer struct {
	cfg        ReplayConfig
	opts       replayOptions
	framer     *itch.Framer
	registry   *BookRegistry
	dispatcher *dispatcher
	stats      ReplayStats
}

// NewReplayer creates a Replayer reading r into registry.
func NewReplayer(r io.Reader, registry *BookRegistry, cfg ReplayConfig, opts ...ReplayOption) (*Replayer, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidParam)
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

	return &Replayer{
		cfg:      cfg,
		opts:     o,
		framer:   framer,
		registry: registry,
		dispatcher: &dispatcher{
			registry:        registry,
			info:            o.info,
			exec:            o.exec,
			applyExecutions: cfg.ApplyExecutions,
		},
		stats: ReplayStats{RunID: o.runID},
	}, nil
}

func (rp *Replayer) RunID() string {
	return rp.opts.runID
}

func (rp *Replayer) Registry() *BookRegistry {
	return rp.registry
}

// Run replays the stream until its end, a fatal error or ctx cancellation.
// Feed anomalies are logged and skipped. The returned stats are valid in
// every case.
func (rp *Replayer) Run(ctx context.Context) (ReplayStats, error) {
	start := time.Now()
	log := logger.With(slog.String("run_id", rp.opts.runID))
	log.InfoContext(ctx, "replay started", slog.Bool("apply_executions", rp.cfg.ApplyExecutions))

	err := rp.run(ctx, log)

	rp.stats.Framer = rp.framer.Stats()
	rp.stats.Books = rp.registry.Len()
	rp.stats.Orders = rp.registry.Orders()
	rp.stats.Duration = time.Since(start)

	if err != nil {
		log.ErrorContext(ctx, "replay stopped", slog.Uint64("messages", rp.stats.Messages), slog.Any("err", err))
		return rp.stats, err
	}
	log.InfoContext(ctx, "replay finished",
		slog.Uint64("messages", rp.stats.Messages),
		slog.Uint64("anomalies", rp.stats.Anomalies),
		slog.Int("books", rp.stats.Books),
		slog.Int("orders", rp.stats.Orders),
		slog.Duration("duration", rp.stats.Duration),
	)
	return rp.stats, nil
}

func (rp *Replayer) run(ctx context.Context, log *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := rp.framer.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("message %d: %w", rp.stats.Messages+1, err)
		}

		m, err := itch.Decode(payload)
		if err != nil {
			return fmt.Errorf("message %d: %w", rp.stats.Messages+1, err)
		}
		rp.stats.Messages++
		rp.stats.FeedTime = m.MessageHeader().Timestamp
		rp.opts.observer.OnMessage(m.MessageType())

		if err := rp.dispatcher.dispatch(m); err != nil {
			if !IsAnomaly(err) {
				return fmt.Errorf("message %d (%s): %w", rp.stats.Messages, m.MessageType(), err)
			}
			rp.stats.Anomalies++
			log.DebugContext(ctx, "feed anomaly", slog.Uint64("seq", rp.stats.Messages), slog.Any("err", err))
		}

		if rp.cfg.SnapshotEvery > 0 && rp.stats.Messages%rp.cfg.SnapshotEvery == 0 {
			if err := rp.checkpoint(ctx); err != nil {
				return err
			}
		}
	}

	if rp.cfg.Verify {
		if err := rp.registry.CheckInvariants(); err != nil {
			return err
		}
	}
	if rp.opts.sink != nil && (rp.cfg.SnapshotEvery == 0 || rp.stats.Messages%rp.cfg.SnapshotEvery != 0) {
		return rp.snapshot(ctx)
	}
	return nil
}

func (rp *Replayer) checkpoint(ctx context.Context) error {
	if rp.cfg.Verify {
		if err := rp.registry.CheckInvariants(); err != nil {
			return fmt.Errorf("message %d: %w", rp.stats.Messages, err)
		}
	}
	if rp.opts.sink == nil {
		return nil
	}
	return rp.snapshot(ctx)
}

func (rp *Replayer) snapshot(ctx context.Context) error {
	snap := &Snapshot{
		RunID:    rp.opts.runID,
		Sequence: rp.stats.Messages,
		FeedTime: rp.stats.FeedTime,
		TakenAt:  time.Now().UTC(),
		Books:    rp.registry.Snapshot(symbolsOf(rp.opts.info)),
	}
	if err := rp.opts.sink.WriteSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("snapshot at message %d: %w", rp.stats.Messages, err)
	}
	rp.stats.Snapshots++
	return nil
}

func symbolsOf(h InfoHandler) SymbolLookup {
	if s, ok := h.(SymbolLookup); ok {
		return s
	}
	return nil
}
