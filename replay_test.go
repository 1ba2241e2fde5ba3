package lob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/0x5487/lob/itch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedBuilder encodes a framed ITCH session for tests.
type feedBuilder struct {
	t   testing.TB
	buf []byte
	n   int
}

func newFeed(t testing.TB) *feedBuilder {
	return &feedBuilder{t: t}
}

func (f *feedBuilder) add(msgs ...itch.Message) *feedBuilder {
	f.t.Helper()
	for _, m := range msgs {
		var err error
		f.buf, err = itch.AppendMessage(f.buf, m)
		require.NoError(f.t, err)
		f.n++
	}
	return f
}

func (f *feedBuilder) reader() io.Reader {
	return bytes.NewReader(itch.AppendEndOfSession(bytes.Clone(f.buf)))
}

func hdr(locate uint16, ts uint64) itch.Header {
	return itch.Header{Locate: locate, Timestamp: ts}
}

// sessionFeed is a small two instrument session:
//
//	locate 1 AAPL: bid ref 1 80@150.0000, ask ref 4 60@150.5000
//	locate 2 MSFT: empty
//
// E and C are only applied when executions are applied, which leaves
// ref 1 with 50 shares and ref 4 with 50.
func sessionFeed(t testing.TB) *feedBuilder {
	return newFeed(t).add(
		itch.SystemEvent{Header: hdr(0, 1), EventCode: 'O'},
		itch.StockDirectory{Header: hdr(1, 2), Stock: itch.NewStock("AAPL"), MarketCategory: 'Q', RoundLotSize: 100},
		itch.StockDirectory{Header: hdr(2, 3), Stock: itch.NewStock("MSFT"), MarketCategory: 'Q', RoundLotSize: 100},
		itch.AddOrder{Header: hdr(1, 4), Ref: 1, BuySell: 'B', Shares: 100, Price: 1500000},
		itch.AddOrder{Header: hdr(1, 5), Ref: 2, BuySell: 'S', Shares: 50, Price: 1510000},
		itch.AddOrderAttributed{AddOrder: itch.AddOrder{Header: hdr(2, 6), Ref: 3, BuySell: 'B', Shares: 10, Price: 2000000}, Attribution: [4]byte{'M', 'P', 'I', 'D'}},
		itch.OrderCancel{Header: hdr(1, 7), Ref: 1, Shares: 20},
		itch.OrderReplace{Header: hdr(1, 8), OriginalRef: 2, NewRef: 4, Shares: 60, Price: 1505000},
		itch.OrderExecuted{Header: hdr(1, 9), Ref: 1, Shares: 30, MatchNumber: 1},
		itch.OrderExecutedWithPrice{Header: hdr(1, 10), Ref: 4, Shares: 10, MatchNumber: 2, Printable: 'Y', Price: 1505000},
		itch.Trade{Header: hdr(1, 11), BuySell: 'B', Shares: 100, Stock: itch.NewStock("AAPL"), Price: 1502500, MatchNumber: 3},
		itch.OrderDelete{Header: hdr(2, 12), Ref: 3},
	)
}

type memorySink struct {
	mu    sync.Mutex
	snaps []*Snapshot
	err   error
}

func (s *memorySink) WriteSnapshot(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *memorySink) sequences() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.snaps))
	for i, snap := range s.snaps {
		out[i] = snap.Sequence
	}
	return out
}

func newReplayRegistry(t testing.TB, policy Policy, opts ...BookOption) *BookRegistry {
	t.Helper()
	r, err := NewBookRegistry(RegistryConfig{MaxOrders: 1024, MaxLevels: 1024, MaxBooks: 16, Policy: policy}, opts...)
	require.NoError(t, err)
	return r
}

func TestReplayerSession(t *testing.T) {
	registry := newReplayRegistry(t, PolicyRetain)
	dir := NewDirectory()
	recorder := NewExecutionRecorder(10)
	metrics := NewMetrics()

	rp, err := NewReplayer(sessionFeed(t).reader(), registry, ReplayConfig{Verify: true},
		WithInfoHandler(dir), WithExecutionHandler(recorder), WithReplayObserver(metrics), WithRunID("test-run"))
	require.NoError(t, err)
	assert.Equal(t, "test-run", rp.RunID())

	stats, err := rp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-run", stats.RunID)
	assert.Equal(t, uint64(12), stats.Messages)
	assert.Zero(t, stats.Anomalies)
	assert.Equal(t, uint64(12), stats.FeedTime)
	assert.Equal(t, 2, stats.Books)
	assert.Equal(t, 2, stats.Orders)
	assert.Equal(t, uint64(12), stats.Framer.Messages)
	assert.Zero(t, stats.Snapshots)

	book := rp.Registry().Book(1)
	require.NotNil(t, book)
	o, ok := book.Order(1)
	require.True(t, ok)
	assert.Equal(t, uint32(80), o.Shares, "executions are delegated by default")
	o, ok = book.Order(4)
	require.True(t, ok)
	assert.Equal(t, Sell, o.Side)
	assert.Equal(t, uint32(60), o.Shares)
	_, ok = book.Order(2)
	assert.False(t, ok)

	trade, ok := book.LastTrade()
	require.True(t, ok)
	assert.Equal(t, uint32(1502500), trade.Price)
	assert.Equal(t, uint64(3), trade.MatchNumber)

	assert.Zero(t, rp.Registry().Book(2).Len())

	total, broken := recorder.Count()
	assert.Equal(t, uint64(3), total)
	assert.Zero(t, broken)
	assert.Equal(t, uint64(140), recorder.Volume(1))
	recent := recorder.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, Buy, recent[0].Side)
	assert.Equal(t, uint32(1500000), recent[0].Price, "E takes the resting order price")
	assert.Equal(t, Sell, recent[1].Side)

	symbol, ok := dir.Symbol(1)
	require.True(t, ok)
	assert.Equal(t, "AAPL", symbol)
	assert.Equal(t, uint64(2), dir.Count(itch.TypeStockDirectory))

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(12), snap.TotalMessages)
	assert.Equal(t, uint64(2), snap.Messages["add_order"])
}

func TestReplayerApplyExecutions(t *testing.T) {
	registry := newReplayRegistry(t, PolicyRetain)
	rp, err := NewReplayer(sessionFeed(t).reader(), registry, ReplayConfig{ApplyExecutions: true, Verify: true})
	require.NoError(t, err)

	_, err = rp.Run(context.Background())
	require.NoError(t, err)

	book := registry.Book(1)
	assert.Equal(t, uint64(50), book.LevelVolume(Buy, 1500000))
	assert.Equal(t, uint64(50), book.LevelVolume(Sell, 1505000))
}

func TestReplayerAppliedFullExecutionRemovesOrder(t *testing.T) {
	registry := newReplayRegistry(t, PolicyRelease)
	feed := newFeed(t).add(
		itch.AddOrder{Header: hdr(1, 1), Ref: 1, BuySell: 'S', Shares: 10, Price: 100},
		itch.OrderExecuted{Header: hdr(1, 2), Ref: 1, Shares: 10, MatchNumber: 7},
	)
	rp, err := NewReplayer(feed.reader(), registry, ReplayConfig{ApplyExecutions: true})
	require.NoError(t, err)

	stats, err := rp.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Orders)
	assert.Zero(t, stats.Books)
	assert.True(t, registry.Released(1))
}

func TestReplayerRejectedExecutionKeepsLastTrade(t *testing.T) {
	for _, apply := range []bool{false, true} {
		t.Run(fmt.Sprintf("apply=%v", apply), func(t *testing.T) {
			registry := newReplayRegistry(t, PolicyRetain)
			d := &dispatcher{
				registry:        registry,
				info:            InfoHandlerFunc(func(itch.Message) {}),
				exec:            ExecutionHandlerFunc(func(Execution) {}),
				applyExecutions: apply,
			}
			h := func(typ itch.Type, ts uint64) itch.Header {
				return itch.Header{Type: typ, Locate: 1, Timestamp: ts}
			}

			require.NoError(t, d.dispatch(itch.AddOrder{Header: h(itch.TypeAddOrder, 1), Ref: 1, BuySell: 'B', Shares: 10, Price: 100}))
			book := registry.Book(1)

			err := d.dispatch(itch.OrderExecuted{Header: h(itch.TypeOrderExecuted, 2), Ref: 99, Shares: 5, MatchNumber: 1})
			if apply {
				assert.True(t, IsAnomaly(err))
			} else {
				assert.NoError(t, err)
			}
			_, ok := book.LastTrade()
			assert.False(t, ok, "unknown reference")

			err = d.dispatch(itch.OrderExecuted{Header: h(itch.TypeOrderExecuted, 3), Ref: 1, Shares: 50, MatchNumber: 2})
			if apply {
				assert.ErrorIs(t, err, ErrInvalidFill)
			} else {
				assert.NoError(t, err)
			}
			_, ok = book.LastTrade()
			assert.False(t, ok, "over-execution")

			require.NoError(t, d.dispatch(itch.OrderExecuted{Header: h(itch.TypeOrderExecuted, 4), Ref: 1, Shares: 4, MatchNumber: 3}))
			trade, ok := book.LastTrade()
			require.True(t, ok)
			assert.Equal(t, Trade{Price: 100, Shares: 4, MatchNumber: 3, Timestamp: 4}, trade)

			err = d.dispatch(itch.OrderExecutedWithPrice{Header: h(itch.TypeOrderExecutedWithPrice, 5), Ref: 77, Shares: 1, MatchNumber: 4, Printable: 'Y', Price: 90})
			if apply {
				assert.True(t, IsAnomaly(err))
			}
			trade, _ = book.LastTrade()
			assert.Equal(t, uint64(3), trade.MatchNumber)
		})
	}
}

func TestDispatchExecuteRejectsNonExecution(t *testing.T) {
	d := &dispatcher{
		registry: newReplayRegistry(t, PolicyRetain),
		info:     InfoHandlerFunc(func(itch.Message) {}),
		exec:     ExecutionHandlerFunc(func(Execution) { t.Fatal("nothing to delegate") }),
	}
	err := d.execute(itch.OrderDelete{Header: hdr(1, 1), Ref: 1})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestReplayerAnomaliesContinue(t *testing.T) {
	metrics := NewMetrics()
	registry := newReplayRegistry(t, PolicyRetain, WithObserver(metrics))
	feed := newFeed(t).add(
		itch.AddOrder{Header: hdr(1, 1), Ref: 1, BuySell: 'B', Shares: 100, Price: 100},
		itch.AddOrder{Header: hdr(1, 2), Ref: 1, BuySell: 'B', Shares: 100, Price: 101},
		itch.OrderDelete{Header: hdr(1, 3), Ref: 99},
		itch.OrderCancel{Header: hdr(1, 4), Ref: 1, Shares: 100},
		itch.OrderExecuted{Header: hdr(1, 5), Ref: 1, Shares: 101},
		itch.AddOrder{Header: hdr(1, 6), Ref: 2, BuySell: 'S', Shares: 5, Price: 102},
	)
	rp, err := NewReplayer(feed.reader(), registry, ReplayConfig{ApplyExecutions: true, Verify: true})
	require.NoError(t, err)

	stats, err := rp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(6), stats.Messages)
	assert.Equal(t, uint64(4), stats.Anomalies)
	assert.Equal(t, 2, stats.Orders)

	anomalies := metrics.Snapshot().Anomalies
	assert.Equal(t, uint64(1), anomalies[string(RejectReasonDuplicateOrder)])
	assert.Equal(t, uint64(1), anomalies[string(RejectReasonOrderNotFound)])
	assert.Equal(t, uint64(1), anomalies[string(RejectReasonInvalidCancel)])
	assert.Equal(t, uint64(1), anomalies[string(RejectReasonInvalidFill)])
}

func TestReplayerReleasedBookIsAnomaly(t *testing.T) {
	registry := newReplayRegistry(t, PolicyRelease)
	feed := newFeed(t).add(
		itch.AddOrder{Header: hdr(1, 1), Ref: 1, BuySell: 'B', Shares: 100, Price: 100},
		itch.OrderDelete{Header: hdr(1, 2), Ref: 1},
		itch.OrderDelete{Header: hdr(1, 3), Ref: 1},
		itch.OrderExecuted{Header: hdr(1, 4), Ref: 1, Shares: 1},
	)
	rp, err := NewReplayer(feed.reader(), registry, ReplayConfig{Verify: true})
	require.NoError(t, err)

	stats, err := rp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Anomalies)
	assert.Zero(t, stats.Books)
}

func TestReplayerFatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		cfg      RegistryConfig
		msgs     []itch.Message
		want     error
		messages uint64
	}{
		{
			name: "unknown instrument",
			cfg:  RegistryConfig{MaxOrders: 8, MaxLevels: 8, MaxBooks: 1},
			msgs: []itch.Message{
				itch.AddOrder{Header: hdr(1, 1), Ref: 1, BuySell: 'B', Shares: 100, Price: 100},
				itch.OrderCancel{Header: hdr(9, 2), Ref: 1, Shares: 1},
			},
			want:     ErrUnknownInstrument,
			messages: 2,
		},
		{
			name: "order pool",
			cfg:  RegistryConfig{MaxOrders: 1, MaxLevels: 8, MaxBooks: 1},
			msgs: []itch.Message{
				itch.AddOrder{Header: hdr(1, 1), Ref: 1, BuySell: 'B', Shares: 100, Price: 100},
				itch.AddOrder{Header: hdr(1, 2), Ref: 2, BuySell: 'B', Shares: 100, Price: 100},
			},
			want:     ErrPoolExhausted,
			messages: 2,
		},
		{
			name: "book pool",
			cfg:  RegistryConfig{MaxOrders: 8, MaxLevels: 8, MaxBooks: 1},
			msgs: []itch.Message{
				itch.AddOrder{Header: hdr(1, 1), Ref: 1, BuySell: 'B', Shares: 100, Price: 100},
				itch.AddOrder{Header: hdr(2, 2), Ref: 2, BuySell: 'B', Shares: 100, Price: 100},
				itch.AddOrder{Header: hdr(3, 3), Ref: 3, BuySell: 'B', Shares: 100, Price: 100},
			},
			want:     ErrPoolExhausted,
			messages: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := NewBookRegistry(tt.cfg)
			require.NoError(t, err)
			rp, err := NewReplayer(newFeed(t).add(tt.msgs...).reader(), registry, ReplayConfig{})
			require.NoError(t, err)

			stats, err := rp.Run(context.Background())
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsFatal(err))
			assert.Equal(t, tt.messages, stats.Messages)
		})
	}
}

func TestReplayerFramingErrors(t *testing.T) {
	registry := newReplayRegistry(t, PolicyRetain)

	t.Run("truncated", func(t *testing.T) {
		var buf []byte
		buf, err := itch.AppendMessage(buf, itch.OrderDelete{Header: hdr(1, 1), Ref: 1})
		require.NoError(t, err)
		rp, err := NewReplayer(bytes.NewReader(buf[:len(buf)-3]), registry, ReplayConfig{})
		require.NoError(t, err)
		_, err = rp.Run(context.Background())
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("unknown type", func(t *testing.T) {
		buf := itch.AppendFrame(nil, []byte{'Z', 0, 1, 0, 0, 0, 0, 0, 0, 0, 1})
		rp, err := NewReplayer(bytes.NewReader(buf), registry, ReplayConfig{})
		require.NoError(t, err)
		_, err = rp.Run(context.Background())
		assert.ErrorIs(t, err, itch.ErrUnknownType)
	})

	t.Run("source without sentinel", func(t *testing.T) {
		buf, err := itch.AppendMessage(nil, itch.SystemEvent{Header: hdr(0, 1), EventCode: 'O'})
		require.NoError(t, err)
		rp, err := NewReplayer(bytes.NewReader(buf), registry, ReplayConfig{})
		require.NoError(t, err)
		stats, err := rp.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(1), stats.Messages)
	})

	t.Run("small buffer", func(t *testing.T) {
		_, err := NewReplayer(bytes.NewReader(nil), registry, ReplayConfig{BufferSize: 16})
		assert.ErrorIs(t, err, itch.ErrBufferTooSmall)
	})

	t.Run("nil registry", func(t *testing.T) {
		_, err := NewReplayer(bytes.NewReader(nil), nil, ReplayConfig{})
		assert.ErrorIs(t, err, ErrInvalidParam)
	})
}

func TestReplayerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rp, err := NewReplayer(sessionFeed(t).reader(), newReplayRegistry(t, PolicyRetain), ReplayConfig{})
	require.NoError(t, err)
	stats, err := rp.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Messages)
}

func TestReplayerSnapshots(t *testing.T) {
	tests := []struct {
		every uint64
		want  []uint64
	}{
		{every: 0, want: []uint64{12}},
		{every: 5, want: []uint64{5, 10, 12}},
		{every: 4, want: []uint64{4, 8, 12}},
		{every: 20, want: []uint64{12}},
	}
	for _, tt := range tests {
		sink := &memorySink{}
		rp, err := NewReplayer(sessionFeed(t).reader(), newReplayRegistry(t, PolicyRetain),
			ReplayConfig{SnapshotEvery: tt.every, Verify: true},
			WithSnapshotSink(sink), WithInfoHandler(NewDirectory()), WithRunID("snap"))
		require.NoError(t, err)

		stats, err := rp.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.want, sink.sequences(), "every %d", tt.every)
		assert.Equal(t, len(tt.want), stats.Snapshots)
	}
}

func TestReplayerSnapshotContent(t *testing.T) {
	sink := &memorySink{}
	rp, err := NewReplayer(sessionFeed(t).reader(), newReplayRegistry(t, PolicyRetain), ReplayConfig{},
		WithSnapshotSink(sink), WithInfoHandler(NewDirectory()), WithRunID("snap"))
	require.NoError(t, err)
	_, err = rp.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.snaps, 1)
	snap := sink.snaps[0]
	assert.Equal(t, "snap", snap.RunID)
	assert.Equal(t, uint64(12), snap.FeedTime)
	require.Len(t, snap.Books, 2)

	aapl := snap.Books[0]
	assert.Equal(t, uint16(1), aapl.Locate)
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, 2, aapl.Orders)
	require.Len(t, aapl.Bids, 1)
	assert.Equal(t, "150", aapl.Bids[0].Price.String())
	assert.Equal(t, []OrderSnapshot{{Ref: 1, Shares: 80, Timestamp: 4}}, aapl.Bids[0].Orders)
	require.Len(t, aapl.Asks, 1)
	assert.Equal(t, "150.5", aapl.Asks[0].Price.String())
	require.NotNil(t, aapl.LastTrade)
	assert.Equal(t, "150.25", aapl.LastTrade.Price.String())

	assert.Equal(t, "MSFT", snap.Books[1].Symbol)
	assert.Empty(t, snap.Books[1].Bids)
}

func TestReplayerSnapshotSinkError(t *testing.T) {
	sinkErr := errors.New("disk full")
	rp, err := NewReplayer(sessionFeed(t).reader(), newReplayRegistry(t, PolicyRetain),
		ReplayConfig{SnapshotEvery: 5}, WithSnapshotSink(&memorySink{err: sinkErr}))
	require.NoError(t, err)

	stats, err := rp.Run(context.Background())
	require.ErrorIs(t, err, sinkErr)
	assert.Equal(t, uint64(5), stats.Messages)
}

func TestDispatchEveryMessageType(t *testing.T) {
	registry := newReplayRegistry(t, PolicyRetain)
	var info []itch.Type
	var execs []Execution
	d := &dispatcher{
		registry:        registry,
		info:            InfoHandlerFunc(func(m itch.Message) { info = append(info, m.MessageType()) }),
		exec:            ExecutionHandlerFunc(func(e Execution) { execs = append(execs, e) }),
		applyExecutions: true,
	}

	h := func(t itch.Type) itch.Header {
		return itch.Header{Type: t, Locate: 1, Timestamp: 1}
	}
	stock := itch.NewStock("AAPL")
	msgs := []itch.Message{
		itch.SystemEvent{Header: h(itch.TypeSystemEvent), EventCode: 'O'},
		itch.StockDirectory{Header: h(itch.TypeStockDirectory), Stock: stock},
		itch.StockTradingAction{Header: h(itch.TypeStockTradingAction), Stock: stock, TradingState: 'T'},
		itch.RegSHORestriction{Header: h(itch.TypeRegSHORestriction), Stock: stock, Action: '0'},
		itch.MarketParticipantPosition{Header: h(itch.TypeMarketParticipantPosition), Stock: stock},
		itch.MWCBDeclineLevel{Header: h(itch.TypeMWCBDeclineLevel)},
		itch.MWCBStatus{Header: h(itch.TypeMWCBStatus), BreachedLevel: '1'},
		itch.IPOQuotingPeriodUpdate{Header: h(itch.TypeIPOQuotingPeriodUpdate), Stock: stock},
		itch.LULDAuctionCollar{Header: h(itch.TypeLULDAuctionCollar), Stock: stock},
		itch.OperationalHalt{Header: h(itch.TypeOperationalHalt), Stock: stock},
		itch.AddOrder{Header: h(itch.TypeAddOrder), Ref: 1, BuySell: 'B', Shares: 100, Price: 100},
		itch.AddOrderAttributed{AddOrder: itch.AddOrder{Header: h(itch.TypeAddOrderAttributed), Ref: 2, BuySell: 'S', Shares: 100, Price: 110}},
		itch.OrderExecuted{Header: h(itch.TypeOrderExecuted), Ref: 1, Shares: 10, MatchNumber: 1},
		itch.OrderExecutedWithPrice{Header: h(itch.TypeOrderExecutedWithPrice), Ref: 1, Shares: 10, MatchNumber: 2, Printable: 'N', Price: 99},
		itch.OrderCancel{Header: h(itch.TypeOrderCancel), Ref: 1, Shares: 10},
		itch.OrderReplace{Header: h(itch.TypeOrderReplace), OriginalRef: 2, NewRef: 3, Shares: 50, Price: 111},
		itch.Trade{Header: h(itch.TypeTrade), BuySell: 'B', Shares: 5, Stock: stock, Price: 105, MatchNumber: 3},
		itch.CrossTrade{Header: h(itch.TypeCrossTrade), Shares: 500, Stock: stock, Price: 105, MatchNumber: 4, CrossType: 'O'},
		itch.BrokenTrade{Header: h(itch.TypeBrokenTrade), MatchNumber: 3},
		itch.OrderDelete{Header: h(itch.TypeOrderDelete), Ref: 1},
		itch.NOII{Header: h(itch.TypeNOII), Stock: stock},
		itch.RetailInterest{Header: h(itch.TypeRetailInterest), Stock: stock},
		itch.DirectListing{Header: h(itch.TypeDirectListing), Stock: stock},
	}

	seen := make(map[itch.Type]bool)
	for _, m := range msgs {
		require.NoError(t, d.dispatch(m), "%s", m.MessageType())
		seen[m.MessageType()] = true
	}
	for _, typ := range itch.Types {
		assert.True(t, seen[typ], "%s not covered", typ)
	}

	assert.Len(t, info, 13)
	require.Len(t, execs, 5)
	assert.False(t, execs[1].Printable)
	assert.Equal(t, itch.TypeBrokenTrade, execs[4].Type)

	book := registry.Book(1)
	assert.Equal(t, 1, book.Len())
	o, ok := book.Order(3)
	require.True(t, ok)
	assert.Equal(t, uint32(111), o.Price)

	trade, ok := book.LastTrade()
	require.True(t, ok)
	assert.Equal(t, uint64(4), trade.MatchNumber, "the cross is the last printed trade")
	require.NoError(t, registry.CheckInvariants())
}
