package lob

import (
	"cmp"
	"slices"
	"sync"

	"github.com/0x5487/lob/itch"
)

// InfoHandler receives every message that does not touch a book.
type InfoHandler interface {
	OnInfo(itch.Message)
}

// InfoHandlerFunc adapts a function to InfoHandler.
type InfoHandlerFunc func(itch.Message)

func (f InfoHandlerFunc) OnInfo(m itch.Message) { f(m) }

// SymbolLookup resolves a stock locate to its ticker.
type SymbolLookup interface {
	Symbol(locate uint16) (string, bool)
}

// Instrument is what the feed told us about one stock locate.
type Instrument struct {
	Locate          uint16 `json:"locate"`
	Symbol          string `json:"symbol"`
	MarketCategory  string `json:"market_category,omitempty"`
	FinancialStatus string `json:"financial_status,omitempty"`
	RoundLotSize    uint32 `json:"round_lot_size,omitempty"`
	TradingState    string `json:"trading_state,omitempty"` // H halted, P paused, Q quotation only, T trading
	RegSHOAction    string `json:"reg_sho_action,omitempty"`
	UpdatedAt       uint64 `json:"updated_at"`
}

// Directory is the InfoHandler that tracks instrument reference data and
// session state. It is safe for concurrent use.
type Directory struct {
	mu            sync.RWMutex
	instruments   map[uint16]*Instrument
	bySymbol      map[string]uint16
	systemEvent   byte
	systemEventAt uint64
	counts        [256]uint64
}

func NewDirectory() *Directory {
	return &Directory{
		instruments: make(map[uint16]*Instrument),
		bySymbol:    make(map[string]uint16),
	}
}

func (d *Directory) OnInfo(m itch.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts[m.MessageType()]++

	switch v := m.(type) {
	case itch.SystemEvent:
		d.systemEvent = v.EventCode
		d.systemEventAt = v.Timestamp
	case itch.StockDirectory:
		inst := d.instrument(v.Locate, v.Stock)
		inst.MarketCategory = string(v.MarketCategory)
		inst.FinancialStatus = string(v.FinancialStatus)
		inst.RoundLotSize = v.RoundLotSize
		inst.UpdatedAt = v.Timestamp
	case itch.StockTradingAction:
		inst := d.instrument(v.Locate, v.Stock)
		inst.TradingState = string(v.TradingState)
		inst.UpdatedAt = v.Timestamp
	case itch.RegSHORestriction:
		inst := d.instrument(v.Locate, v.Stock)
		inst.RegSHOAction = string(v.Action)
		inst.UpdatedAt = v.Timestamp
	}
}

// instrument returns the entry for locate, naming it after stock.
func (d *Directory) instrument(locate uint16, stock itch.Stock) *Instrument {
	inst, ok := d.instruments[locate]
	if !ok {
		inst = &Instrument{Locate: locate}
		d.instruments[locate] = inst
	}
	if symbol := stock.String(); symbol != "" && symbol != inst.Symbol {
		if inst.Symbol != "" {
			delete(d.bySymbol, inst.Symbol)
		}
		inst.Symbol = symbol
		d.bySymbol[symbol] = locate
	}
	return inst
}

// Instrument returns the reference data of locate.
func (d *Directory) Instrument(locate uint16) (Instrument, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	inst, ok := d.instruments[locate]
	if !ok {
		return Instrument{}, false
	}
	return *inst, true
}

func (d *Directory) Symbol(locate uint16) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	inst, ok := d.instruments[locate]
	if !ok || inst.Symbol == "" {
		return "", false
	}
	return inst.Symbol, true
}

// Lookup finds the locate of a ticker.
func (d *Directory) Lookup(symbol string) (uint16, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	locate, ok := d.bySymbol[symbol]
	return locate, ok
}

// SystemEvent returns the last system event code and its feed time.
func (d *Directory) SystemEvent() (byte, uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.systemEvent, d.systemEventAt
}

// Count returns how many messages of type t were handled.
func (d *Directory) Count(t itch.Type) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.counts[t]
}

// Len returns the number of known instruments.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.instruments)
}

// Instruments returns every known instrument ordered by locate.
func (d *Directory) Instruments() []Instrument {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Instrument, 0, len(d.instruments))
	for _, inst := range d.instruments {
		out = append(out, *inst)
	}
	slices.SortFunc(out, func(a, b Instrument) int {
		return cmp.Compare(a.Locate, b.Locate)
	})
	return out
}
