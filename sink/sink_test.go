package sink

import (
	"testing"
	"time"

	"github.com/0x5487/lob"
	"github.com/0x5487/lob/itch"
	"github.com/stretchr/testify/require"
)

// testSnapshot builds a snapshot of two books:
// locate 1: bids 100x10 (refs 1, 2), 99x7; asks 105x3
// locate 7: asks 2500x100
func testSnapshot(t *testing.T, seq uint64) *lob.Snapshot {
	t.Helper()

	registry, err := lob.NewBookRegistry(lob.RegistryConfig{MaxOrders: 64, MaxLevels: 64, MaxBooks: 4})
	require.NoError(t, err)

	adds := []itch.AddOrder{
		{Header: itch.Header{Locate: 1, Timestamp: 1}, Ref: 1, BuySell: 'B', Shares: 4, Price: 100},
		{Header: itch.Header{Locate: 1, Timestamp: 2}, Ref: 2, BuySell: 'B', Shares: 6, Price: 100},
		{Header: itch.Header{Locate: 1, Timestamp: 3}, Ref: 3, BuySell: 'B', Shares: 7, Price: 99},
		{Header: itch.Header{Locate: 1, Timestamp: 4}, Ref: 4, BuySell: 'S', Shares: 3, Price: 105},
		{Header: itch.Header{Locate: 7, Timestamp: 5}, Ref: 5, BuySell: 'S', Shares: 100, Price: 2500},
	}
	for _, m := range adds {
		book, err := registry.Acquire(m.Locate)
		require.NoError(t, err)
		require.NoError(t, book.Add(m))
	}

	return &lob.Snapshot{
		RunID:    "run1",
		Sequence: seq,
		FeedTime: 5,
		TakenAt:  time.Date(2019, 1, 30, 14, 30, 0, 0, time.UTC),
		Books:    registry.Snapshot(nil),
	}
}

func addOrder(locate uint16, ref uint64, side byte, shares, price uint32) itch.AddOrder {
	return itch.AddOrder{
		Header:  itch.Header{Type: itch.TypeAddOrder, Locate: locate},
		Ref:     ref,
		BuySell: side,
		Shares:  shares,
		Price:   price,
	}
}
