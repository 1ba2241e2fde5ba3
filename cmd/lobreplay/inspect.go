package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/0x5487/lob"
	"github.com/shopspring/decimal"
)

type levelSummary struct {
	Price  decimal.Decimal `json:"price"`
	Volume uint64          `json:"volume"`
	Orders int             `json:"orders"`
}

type bookSummary struct {
	Locate    uint16             `json:"locate"`
	Symbol    string             `json:"symbol,omitempty"`
	SeqID     uint64             `json:"seq_id"`
	Orders    int                `json:"orders"`
	BidLevels int                `json:"bid_levels"`
	AskLevels int                `json:"ask_levels"`
	Spread    *decimal.Decimal   `json:"spread,omitempty"`
	Bids      []levelSummary     `json:"bids"`
	Asks      []levelSummary     `json:"asks"`
	LastTrade *lob.TradeSnapshot `json:"last_trade,omitempty"`
}

type inspection struct {
	Metadata *lob.SnapshotMetadata `json:"metadata"`
	Books    []bookSummary         `json:"books"`
}

func runInspect(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dir := fs.String("dir", "", "snapshot directory holding metadata.json and snapshot.bin")
	locate := fs.Int("locate", -1, "only show this locate")
	levels := fs.Int("levels", 5, "price levels per side, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return errors.New("inspect: -dir is required")
	}

	meta, snap, err := lob.ReadSnapshotFile(*dir)
	if err != nil {
		return err
	}

	out := inspection{Metadata: meta, Books: make([]bookSummary, 0, len(snap.Books))}
	for _, b := range snap.Books {
		if *locate >= 0 && int(b.Locate) != *locate {
			continue
		}
		out.Books = append(out.Books, summarize(b, *levels))
	}
	if *locate >= 0 && len(out.Books) == 0 {
		return fmt.Errorf("inspect: locate %d not in snapshot", *locate)
	}
	return writeJSON(w, out)
}

func summarize(b lob.BookSnapshot, levels int) bookSummary {
	s := bookSummary{
		Locate:    b.Locate,
		Symbol:    b.Symbol,
		SeqID:     b.SeqID,
		Orders:    b.Orders,
		BidLevels: len(b.Bids),
		AskLevels: len(b.Asks),
		Bids:      topLevels(b.Bids, levels),
		Asks:      topLevels(b.Asks, levels),
		LastTrade: b.LastTrade,
	}
	if len(b.Bids) > 0 && len(b.Asks) > 0 {
		spread := b.Asks[0].Price.Sub(b.Bids[0].Price)
		s.Spread = &spread
	}
	return s
}

func topLevels(levels []lob.LevelSnapshot, n int) []levelSummary {
	if n > 0 && len(levels) > n {
		levels = levels[:n]
	}
	out := make([]levelSummary, len(levels))
	for i, lv := range levels {
		out[i] = levelSummary{Price: lv.Price, Volume: lv.Volume, Orders: len(lv.Orders)}
	}
	return out
}
