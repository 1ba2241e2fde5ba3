package lob

import (
	"slices"
	"testing"

	"github.com/0x5487/lob/itch"
	"pgregory.net/rapid"
)

type modelOrder struct {
	side   Side
	price  uint32
	shares uint32
}

// bookModel is a naive map-and-slice book the OrderBook is checked against.
type bookModel struct {
	orders map[uint64]*modelOrder
	levels map[Side]map[uint32][]uint64
}

func newBookModel() *bookModel {
	return &bookModel{
		orders: make(map[uint64]*modelOrder),
		levels: map[Side]map[uint32][]uint64{Buy: {}, Sell: {}},
	}
}

func (m *bookModel) add(ref uint64, side Side, price, shares uint32) {
	m.orders[ref] = &modelOrder{side: side, price: price, shares: shares}
	m.levels[side][price] = append(m.levels[side][price], ref)
}

func (m *bookModel) remove(ref uint64) {
	o := m.orders[ref]
	refs := m.levels[o.side][o.price]
	i := slices.Index(refs, ref)
	refs = slices.Delete(refs, i, i+1)
	if len(refs) == 0 {
		delete(m.levels[o.side], o.price)
	} else {
		m.levels[o.side][o.price] = refs
	}
	delete(m.orders, ref)
}

func (m *bookModel) best(side Side) (uint32, bool) {
	prices := make([]uint32, 0, len(m.levels[side]))
	for p := range m.levels[side] {
		prices = append(prices, p)
	}
	if len(prices) == 0 {
		return 0, false
	}
	if side == Buy {
		return slices.Max(prices), true
	}
	return slices.Min(prices), true
}

func checkAgainstModel(t *rapid.T, book *OrderBook, m *bookModel) {
	if err := book.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if book.Len() != len(m.orders) {
		t.Fatalf("book has %d orders, model %d", book.Len(), len(m.orders))
	}
	for _, side := range []Side{Buy, Sell} {
		stats := book.Stats()
		depth := stats.BidDepthCount
		if side == Sell {
			depth = stats.AskDepthCount
		}
		if depth != len(m.levels[side]) {
			t.Fatalf("%s: book has %d levels, model %d", side, depth, len(m.levels[side]))
		}

		var got uint32
		var ok bool
		if side == Buy {
			got, ok = book.BestBid()
		} else {
			got, ok = book.BestAsk()
		}
		want, wantOK := m.best(side)
		if got != want || ok != wantOK {
			t.Fatalf("%s best: got %d/%v want %d/%v", side, got, ok, want, wantOK)
		}

		for price, refs := range m.levels[side] {
			if !slices.Equal(book.LevelOrders(side, price), refs) {
				t.Fatalf("%s %d: chain %v, model %v", side, price, book.LevelOrders(side, price), refs)
			}
			var volume uint64
			for _, ref := range refs {
				volume += uint64(m.orders[ref].shares)
			}
			if book.LevelVolume(side, price) != volume {
				t.Fatalf("%s %d: volume %d, model %d", side, price, book.LevelVolume(side, price), volume)
			}
		}
	}
}

func expectOutcome(t *rapid.T, op string, err error, accepted bool) {
	if accepted && err != nil {
		t.Fatalf("%s: unexpected error %v", op, err)
	}
	if !accepted {
		if err == nil {
			t.Fatalf("%s: expected an anomaly", op)
		}
		if !IsAnomaly(err) {
			t.Fatalf("%s: expected an anomaly, got %v", op, err)
		}
	}
}

func TestOrderBookMatchesModel(t *testing.T) {
	for _, kind := range indexKinds {
		t.Run(string(kind), func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				book, err := NewOrderBook(1, NewPools(64, 64), WithIndex(kind), WithTreeCapacity(32))
				if err != nil {
					t.Fatal(err)
				}
				m := newBookModel()

				refGen := rapid.Uint64Range(1, 40)
				priceGen := rapid.Uint32Range(95, 105)
				sharesGen := rapid.Uint32Range(0, 60)
				sideGen := rapid.SampledFrom([]byte{'B', 'S'})
				opGen := rapid.SampledFrom([]string{"add", "add", "add", "cancel", "delete", "replace", "fill"})

				steps := rapid.IntRange(1, 150).Draw(t, "steps")
				for i := 0; i < steps; i++ {
					switch op := opGen.Draw(t, "op"); op {
					case "add":
						ref, side, price, shares := refGen.Draw(t, "ref"), sideGen.Draw(t, "side"), priceGen.Draw(t, "price"), sharesGen.Draw(t, "shares")
						_, exists := m.orders[ref]
						ok := shares > 0 && !exists
						err := book.Add(itch.AddOrder{Header: itch.Header{Locate: 1}, Ref: ref, BuySell: side, Shares: shares, Price: price})
						expectOutcome(t, op, err, ok)
						if ok {
							m.add(ref, SideFromIndicator(side), price, shares)
						}
					case "cancel":
						ref, shares := refGen.Draw(t, "ref"), sharesGen.Draw(t, "shares")
						o, exists := m.orders[ref]
						ok := exists && shares < o.shares
						err := book.Cancel(itch.OrderCancel{Header: itch.Header{Locate: 1}, Ref: ref, Shares: shares})
						expectOutcome(t, op, err, ok)
						if ok {
							o.shares -= shares
						}
					case "delete":
						ref := refGen.Draw(t, "ref")
						_, ok := m.orders[ref]
						err := book.Delete(itch.OrderDelete{Header: itch.Header{Locate: 1}, Ref: ref})
						expectOutcome(t, op, err, ok)
						if ok {
							m.remove(ref)
						}
					case "replace":
						orig, ref, price, shares := refGen.Draw(t, "orig"), refGen.Draw(t, "ref"), priceGen.Draw(t, "price"), sharesGen.Draw(t, "shares")
						o, exists := m.orders[orig]
						_, taken := m.orders[ref]
						ok := exists && (ref == orig || !taken) && shares > 0
						err := book.Replace(itch.OrderReplace{Header: itch.Header{Locate: 1}, OriginalRef: orig, NewRef: ref, Shares: shares, Price: price})
						expectOutcome(t, op, err, ok)
						if ok {
							side := o.side
							m.remove(orig)
							m.add(ref, side, price, shares)
						}
					case "fill":
						ref, shares := refGen.Draw(t, "ref"), sharesGen.Draw(t, "shares")
						o, exists := m.orders[ref]
						ok := exists && shares > 0 && shares <= o.shares
						err := book.Fill(Execution{Ref: ref, Shares: uint64(shares)})
						expectOutcome(t, op, err, ok)
						if ok {
							if shares == o.shares {
								m.remove(ref)
							} else {
								o.shares -= shares
							}
						}
					}
					checkAgainstModel(t, book, m)
				}
			})
		})
	}
}

// The reference index always holds exactly the orders reachable through
// the level chains, and no empty level survives.
func TestOrderBookIndexMatchesChains(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pools := NewPools(256, 256)
		book, err := NewOrderBook(1, pools)
		if err != nil {
			t.Fatal(err)
		}

		refs := rapid.SliceOfNDistinct(rapid.Uint64Range(1, 1000), 1, 200, rapid.ID[uint64]).Draw(t, "refs")
		for _, ref := range refs {
			side := rapid.SampledFrom([]byte{'B', 'S'}).Draw(t, "side")
			price := rapid.Uint32Range(1, 20).Draw(t, "price")
			if err := book.Add(itch.AddOrder{Ref: ref, BuySell: side, Shares: 1 + uint32(ref%7), Price: price}); err != nil {
				t.Fatal(err)
			}
		}
		for _, ref := range refs {
			if rapid.Bool().Draw(t, "delete") {
				if err := book.Delete(itch.OrderDelete{Ref: ref}); err != nil {
					t.Fatal(err)
				}
			}
		}

		reachable := 0
		for _, side := range []Side{Buy, Sell} {
			book.Walk(side, func(Order) bool {
				reachable++
				return true
			})
		}
		depth := book.Depth(0)
		for _, lvl := range append(depth.Bids, depth.Asks...) {
			if lvl.Volume == 0 || lvl.Orders == 0 {
				t.Fatalf("empty level %d", lvl.Price)
			}
		}
		if reachable != book.Len() {
			t.Fatalf("%d reachable, %d indexed", reachable, book.Len())
		}
		stats := book.Stats()
		if u := pools.Usage(); u.Orders != book.Len() || u.Levels != stats.AskDepthCount+stats.BidDepthCount {
			t.Fatalf("pool usage %+v for %d orders", u, book.Len())
		}
		if err := book.CheckInvariants(); err != nil {
			t.Fatal(err)
		}
	})
}
