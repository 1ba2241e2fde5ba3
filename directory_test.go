package lob

import (
	"testing"

	"github.com/0x5487/lob/itch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	d := NewDirectory()

	d.OnInfo(itch.SystemEvent{Header: itch.Header{Type: itch.TypeSystemEvent, Timestamp: 10}, EventCode: 'Q'})
	d.OnInfo(itch.StockDirectory{
		Header:          itch.Header{Type: itch.TypeStockDirectory, Locate: 3, Timestamp: 11},
		Stock:           itch.NewStock("ZVZZT"),
		MarketCategory:  'Q',
		FinancialStatus: 'N',
		RoundLotSize:    100,
	})
	d.OnInfo(itch.StockTradingAction{Header: itch.Header{Type: itch.TypeStockTradingAction, Locate: 3, Timestamp: 12}, Stock: itch.NewStock("ZVZZT"), TradingState: 'H'})
	d.OnInfo(itch.RegSHORestriction{Header: itch.Header{Type: itch.TypeRegSHORestriction, Locate: 3, Timestamp: 13}, Stock: itch.NewStock("ZVZZT"), Action: '1'})
	d.OnInfo(itch.StockTradingAction{Header: itch.Header{Type: itch.TypeStockTradingAction, Locate: 1, Timestamp: 14}, Stock: itch.NewStock("AAPL"), TradingState: 'T'})
	d.OnInfo(itch.NOII{Header: itch.Header{Type: itch.TypeNOII, Locate: 3}})

	code, at := d.SystemEvent()
	assert.Equal(t, byte('Q'), code)
	assert.Equal(t, uint64(10), at)

	inst, ok := d.Instrument(3)
	require.True(t, ok)
	assert.Equal(t, Instrument{
		Locate:          3,
		Symbol:          "ZVZZT",
		MarketCategory:  "Q",
		FinancialStatus: "N",
		RoundLotSize:    100,
		TradingState:    "H",
		RegSHOAction:    "1",
		UpdatedAt:       13,
	}, inst)

	symbol, ok := d.Symbol(1)
	require.True(t, ok)
	assert.Equal(t, "AAPL", symbol)
	_, ok = d.Symbol(2)
	assert.False(t, ok)

	locate, ok := d.Lookup("ZVZZT")
	require.True(t, ok)
	assert.Equal(t, uint16(3), locate)

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, uint64(2), d.Count(itch.TypeStockTradingAction))
	assert.Equal(t, uint64(1), d.Count(itch.TypeNOII))

	all := d.Instruments()
	require.Len(t, all, 2)
	assert.Equal(t, uint16(1), all[0].Locate)
	assert.Equal(t, uint16(3), all[1].Locate)
}

func TestDirectoryRename(t *testing.T) {
	d := NewDirectory()
	d.OnInfo(itch.StockDirectory{Header: itch.Header{Type: itch.TypeStockDirectory, Locate: 3}, Stock: itch.NewStock("OLD")})
	d.OnInfo(itch.StockDirectory{Header: itch.Header{Type: itch.TypeStockDirectory, Locate: 3}, Stock: itch.NewStock("NEW")})

	_, ok := d.Lookup("OLD")
	assert.False(t, ok)
	locate, ok := d.Lookup("NEW")
	require.True(t, ok)
	assert.Equal(t, uint16(3), locate)
}

func TestExecutionRecorder(t *testing.T) {
	r := NewExecutionRecorder(2)
	r.OnExecution(Execution{Type: itch.TypeOrderExecuted, Locate: 1, Shares: 100, Printable: true, MatchNumber: 1})
	r.OnExecution(Execution{Type: itch.TypeOrderExecutedWithPrice, Locate: 1, Shares: 50, Printable: false, MatchNumber: 2})
	r.OnExecution(Execution{Type: itch.TypeCrossTrade, Locate: 2, Shares: 1000, Printable: true, MatchNumber: 3})
	r.OnExecution(Execution{Type: itch.TypeBrokenTrade, Locate: 1, MatchNumber: 1})

	total, broken := r.Count()
	assert.Equal(t, uint64(4), total)
	assert.Equal(t, uint64(1), broken)
	assert.Equal(t, uint64(100), r.Volume(1))
	assert.Equal(t, uint64(1000), r.Volume(2))

	recent := r.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(3), recent[0].MatchNumber)
	assert.Equal(t, itch.TypeBrokenTrade, recent[1].Type)

	assert.Empty(t, NewExecutionRecorder(0).Recent())
}

func TestExecutionOf(t *testing.T) {
	h := itch.Header{Locate: 4, Timestamp: 99}

	e, ok := executionOf(itch.OrderExecutedWithPrice{Header: h, Ref: 5, Shares: 10, MatchNumber: 6, Printable: 'Y', Price: 123})
	require.True(t, ok)
	assert.Equal(t, Execution{Locate: 4, Timestamp: 99, Ref: 5, Shares: 10, Price: 123, MatchNumber: 6, Printable: true}, e)

	e, ok = executionOf(itch.Trade{Header: h, BuySell: 'S', Shares: 10, Price: 7, MatchNumber: 8})
	require.True(t, ok)
	assert.Equal(t, Sell, e.Side)
	assert.True(t, e.Printable)

	e, ok = executionOf(itch.BrokenTrade{Header: h, MatchNumber: 8})
	require.True(t, ok)
	assert.False(t, e.Printable)

	_, ok = executionOf(itch.OrderDelete{Header: h, Ref: 1})
	assert.False(t, ok)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	var obs Observer = MultiObserver{m, NopObserver{}}

	obs.OnMessage(itch.TypeAddOrder)
	obs.OnMessage(itch.TypeAddOrder)
	obs.OnMessage(itch.TypeOrderDelete)
	obs.OnAnomaly(1, RejectReasonOrderNotFound)
	obs.OnAnomaly(1, "mystery")
	obs.OnBookCreated(1)
	obs.OnBookReleased(1)

	snap := m.Snapshot()
	assert.Equal(t, map[string]uint64{"add_order": 2, "order_delete": 1}, snap.Messages)
	assert.Equal(t, uint64(3), snap.TotalMessages)
	assert.Equal(t, map[string]uint64{"order_not_found": 1, "other": 1}, snap.Anomalies)
	assert.Equal(t, uint64(2), snap.TotalAnomalies)
	assert.Equal(t, uint64(1), snap.BooksCreated)
	assert.Equal(t, uint64(1), snap.BooksReleased)

	m.Reset()
	snap = m.Snapshot()
	assert.Zero(t, snap.TotalMessages)
	assert.Empty(t, snap.Anomalies)
}

func TestMultiPublishLog(t *testing.T) {
	a, b := NewMemoryPublishLog(), NewMemoryPublishLog()
	pub := NewMultiPublishLog(a, nil, b, NewDiscardPublishLog())
	assert.Len(t, pub, 3)

	book, err := NewOrderBook(1, NewPools(8, 8), WithPublishLog(pub))
	require.NoError(t, err)
	require.NoError(t, book.Add(addMsg(1, 'B', 10, 100)))

	require.Equal(t, 1, a.Count())
	require.Equal(t, 1, b.Count())
	assert.Equal(t, LogTypeOpen, a.Get(0).Type)
	assert.Equal(t, uint64(1), b.Get(0).Ref, "logs are copied before the book recycles them")

	a.Reset()
	assert.Zero(t, a.Count())
}
