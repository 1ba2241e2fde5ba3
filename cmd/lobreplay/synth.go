package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/0x5487/lob/itch"
)

// synthOrder is a resting order tracked by the generator.
type synthOrder struct {
	ref    uint64
	locate uint16
	side   byte
	shares uint32
	price  uint32
}

// synthSession writes a well-formed session: every order message refers to
// an order the generator knows is resting, so a replay sees no anomalies.
type synthSession struct {
	rng     *rand.Rand
	w       *bufio.Writer
	buf     []byte
	clock   uint64
	nextRef uint64
	match   uint64
	books   int
	maxLive int
	live    []synthOrder
	written int
}

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	out := fs.String("out", "", "output file")
	books := fs.Int("books", 8, "number of instruments")
	messages := fs.Int("messages", 100_000, "number of order and trade messages")
	maxLive := fs.Int("max-live", 50_000, "resting orders the session never exceeds")
	seed := fs.Uint64("seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("synth: -out is required")
	}
	if *books < 1 || *books > 65535 {
		return fmt.Errorf("synth: books must be in [1, 65535], got %d", *books)
	}
	if *maxLive < 1 {
		return fmt.Errorf("synth: max-live must be positive, got %d", *maxLive)
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	s := &synthSession{
		rng:     rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)),
		w:       bufio.NewWriterSize(f, 1<<16),
		books:   *books,
		maxLive: *maxLive,
	}
	if err := s.run(*messages); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func (s *synthSession) run(messages int) error {
	if err := s.emit(itch.SystemEvent{Header: s.header(0), EventCode: 'O'}); err != nil {
		return err
	}
	for i := 0; i < s.books; i++ {
		locate := uint16(i + 1)
		symbol := itch.NewStock(fmt.Sprintf("SYN%d", locate))
		if err := s.emit(itch.StockDirectory{
			Header:          s.header(locate),
			Stock:           symbol,
			MarketCategory:  'Q',
			FinancialStatus: 'N',
			RoundLotSize:    100,
			RoundLotsOnly:   'N',
		}); err != nil {
			return err
		}
		if err := s.emit(itch.StockTradingAction{Header: s.header(locate), Stock: symbol, TradingState: 'T'}); err != nil {
			return err
		}
	}
	if err := s.emit(itch.SystemEvent{Header: s.header(0), EventCode: 'Q'}); err != nil {
		return err
	}

	for s.written < messages {
		if err := s.step(); err != nil {
			return err
		}
	}

	if err := s.emit(itch.SystemEvent{Header: s.header(0), EventCode: 'M'}); err != nil {
		return err
	}
	if err := s.emit(itch.SystemEvent{Header: s.header(0), EventCode: 'C'}); err != nil {
		return err
	}
	_, err := s.w.Write(itch.AppendEndOfSession(nil))
	return err
}

func (s *synthSession) step() error {
	op := s.rng.IntN(100)
	if len(s.live) == 0 || (op < 40 && len(s.live) < s.maxLive) {
		return s.add()
	}

	i := s.rng.IntN(len(s.live))
	o := &s.live[i]
	h := s.header(o.locate)
	switch {
	case op < 55:
		n := 1 + s.rng.Uint32N(o.shares)
		if n == o.shares {
			ref := o.ref
			s.remove(i)
			return s.emit(itch.OrderDelete{Header: h, Ref: ref})
		}
		o.shares -= n
		return s.emit(itch.OrderCancel{Header: h, Ref: o.ref, Shares: n})
	case op < 70:
		ref := o.ref
		s.remove(i)
		return s.emit(itch.OrderDelete{Header: h, Ref: ref})
	case op < 80:
		s.nextRef++
		msg := itch.OrderReplace{
			Header:      h,
			OriginalRef: o.ref,
			NewRef:      s.nextRef,
			Shares:      s.shares(),
			Price:       s.price(o.side),
		}
		o.ref, o.shares, o.price = msg.NewRef, msg.Shares, msg.Price
		return s.emit(msg)
	case op < 92:
		s.match++
		n := 1 + s.rng.Uint32N(o.shares)
		var msg itch.Message
		if s.rng.IntN(2) == 0 {
			msg = itch.OrderExecuted{Header: h, Ref: o.ref, Shares: n, MatchNumber: s.match}
		} else {
			msg = itch.OrderExecutedWithPrice{Header: h, Ref: o.ref, Shares: n, MatchNumber: s.match, Printable: 'Y', Price: o.price}
		}
		if n == o.shares {
			s.remove(i)
		} else {
			o.shares -= n
		}
		return s.emit(msg)
	default:
		s.match++
		return s.emit(itch.Trade{
			Header:      h,
			BuySell:     o.side,
			Shares:      s.shares(),
			Stock:       itch.NewStock(fmt.Sprintf("SYN%d", o.locate)),
			Price:       o.price,
			MatchNumber: s.match,
		})
	}
}

func (s *synthSession) add() error {
	s.nextRef++
	o := synthOrder{
		ref:    s.nextRef,
		locate: uint16(1 + s.rng.IntN(s.books)),
		side:   itch.SideBuy,
		shares: s.shares(),
	}
	if s.rng.IntN(2) == 1 {
		o.side = itch.SideSell
	}
	o.price = s.price(o.side)
	s.live = append(s.live, o)
	return s.emit(itch.AddOrder{
		Header:  s.header(o.locate),
		Ref:     o.ref,
		BuySell: o.side,
		Shares:  o.shares,
		Stock:   itch.NewStock(fmt.Sprintf("SYN%d", o.locate)),
		Price:   o.price,
	})
}

// remove drops live[i] without keeping order.
func (s *synthSession) remove(i int) {
	last := len(s.live) - 1
	s.live[i] = s.live[last]
	s.live = s.live[:last]
}

func (s *synthSession) shares() uint32 {
	return 100 * (1 + s.rng.Uint32N(20))
}

// price keeps bids at or below 100.0000 and asks above it, so the
// synthetic book never crosses.
func (s *synthSession) price(side byte) uint32 {
	offset := 100 * s.rng.Uint32N(200)
	if side == itch.SideBuy {
		return 1_000_000 - offset
	}
	return 1_000_100 + offset
}

func (s *synthSession) header(locate uint16) itch.Header {
	s.clock += 1 + uint64(s.rng.IntN(1000))
	return itch.Header{Locate: locate, Timestamp: s.clock}
}

func (s *synthSession) emit(m itch.Message) error {
	var err error
	s.buf, err = itch.AppendMessage(s.buf[:0], m)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(s.buf); err != nil {
		return err
	}
	switch m.(type) {
	case itch.SystemEvent, itch.StockDirectory, itch.StockTradingAction:
	default:
		s.written++
	}
	return nil
}
