package lob

import (
	"fmt"

	"github.com/0x5487/lob/itch"
)

type bookOptions struct {
	index        IndexKind
	treeCapacity int32
	publishLog   PublishLog
	observer     Observer
}

func defaultBookOptions() bookOptions {
	return bookOptions{
		index:        IndexSkiplist,
		treeCapacity: DefaultTreeCapacity,
		publishLog:   NewDiscardPublishLog(),
		observer:     NopObserver{},
	}
}

// BookOption configures books created directly or through a registry.
type BookOption func(*bookOptions)

// WithIndex selects the sorted structure used for each side.
func WithIndex(kind IndexKind) BookOption {
	return func(o *bookOptions) {
		o.index = kind
	}
}

// WithTreeCapacity bounds the levels per side of the llrb index.
func WithTreeCapacity(levels int32) BookOption {
	return func(o *bookOptions) {
		o.treeCapacity = levels
	}
}

// WithPublishLog sets where book events go.
func WithPublishLog(p PublishLog) BookOption {
	return func(o *bookOptions) {
		if p != nil {
			o.publishLog = p
		}
	}
}

// WithObserver sets the anomaly and lifecycle observer.
func WithObserver(obs Observer) BookOption {
	return func(o *bookOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// OrderBook is the live book of one instrument: the resting orders of both
// sides aggregated into price levels. Every successful mutation emits a
// BookLog; a refused feed event emits a reject log and returns an
// *AnomalyError with the book unchanged.
//
// OrderBook is not safe for concurrent use; it belongs to the goroutine that
// replays its instrument.
type OrderBook struct {
	locate     uint16
	seqID      uint64 // BookLog sequence
	bidQueue   *queue
	askQueue   *queue
	orders     map[uint64]int32
	pools      *Pools
	publishLog PublishLog
	observer   Observer
	lastTrade  Trade
	hasTrade   bool
}

// NewOrderBook creates an empty book for locate drawing orders and levels
// from pools.
func NewOrderBook(locate uint16, pools *Pools, opts ...BookOption) (*OrderBook, error) {
	o := defaultBookOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newOrderBook(locate, pools, o)
}

func newOrderBook(locate uint16, pools *Pools, o bookOptions) (*OrderBook, error) {
	bids, err := newQueue(Buy, o.index, o.treeCapacity, pools)
	if err != nil {
		return nil, err
	}
	asks, err := newQueue(Sell, o.index, o.treeCapacity, pools)
	if err != nil {
		return nil, err
	}
	return &OrderBook{
		locate:     locate,
		bidQueue:   bids,
		askQueue:   asks,
		orders:     make(map[uint64]int32),
		pools:      pools,
		publishLog: o.publishLog,
		observer:   o.observer,
	}, nil
}

// Locate returns the instrument the book belongs to.
func (book *OrderBook) Locate() uint16 {
	return book.locate
}

// SeqID returns the sequence ID of the last BookLog emitted.
func (book *OrderBook) SeqID() uint64 {
	return book.seqID
}

// Add rests a new order at the tail of its price level.
func (book *OrderBook) Add(m itch.AddOrder) error {
	side := SideFromIndicator(m.BuySell)
	if !side.Valid() {
		return book.reject("add", m.Ref, RejectReasonInvalidSide, ErrInvalidSide, m.Timestamp)
	}
	if m.Shares == 0 {
		return book.reject("add", m.Ref, RejectReasonInvalidShares, ErrInvalidShares, m.Timestamp)
	}
	if _, ok := book.orders[m.Ref]; ok {
		return book.reject("add", m.Ref, RejectReasonDuplicateOrder, ErrDuplicateOrder, m.Timestamp)
	}

	h, err := book.insert(Order{
		Ref:       m.Ref,
		Locate:    book.locate,
		Side:      side,
		Price:     m.Price,
		Shares:    m.Shares,
		Timestamp: m.Timestamp,
	})
	if err != nil {
		return err
	}

	book.publish(newOpenLog(book.nextSeqID(), &book.pools.order(h).Order))
	return nil
}

// Cancel removes part of an order's shares in place; the order keeps its
// queue position. The cancelled quantity must be below the remaining one.
func (book *OrderBook) Cancel(m itch.OrderCancel) error {
	h, ok := book.orders[m.Ref]
	if !ok {
		return book.reject("cancel", m.Ref, RejectReasonOrderNotFound, ErrOrderNotFound, m.Timestamp)
	}
	o := book.pools.order(h)
	if m.Shares >= o.Shares {
		return book.reject("cancel", m.Ref, RejectReasonInvalidCancel,
			fmt.Errorf("%w: cancel %d of %d", ErrInvalidCancel, m.Shares, o.Shares), m.Timestamp)
	}

	book.queueFor(o.Side).reduceOrder(h, m.Shares)
	book.publish(newCancelLog(book.nextSeqID(), &o.Order, m.Shares, m.Timestamp))
	return nil
}

// Delete removes an order and its remaining shares.
func (book *OrderBook) Delete(m itch.OrderDelete) error {
	h, ok := book.orders[m.Ref]
	if !ok {
		return book.reject("delete", m.Ref, RejectReasonOrderNotFound, ErrOrderNotFound, m.Timestamp)
	}

	book.publish(newDeleteLog(book.nextSeqID(), &book.pools.order(h).Order, m.Timestamp))
	book.remove(h)
	return nil
}

// Replace deletes the original order and adds the new reference with the
// original side at the new price and size. The replacement always joins the
// tail of its level, even when the price is unchanged.
func (book *OrderBook) Replace(m itch.OrderReplace) error {
	h, ok := book.orders[m.OriginalRef]
	if !ok {
		return book.reject("replace", m.OriginalRef, RejectReasonOrderNotFound, ErrOrderNotFound, m.Timestamp)
	}
	if m.NewRef != m.OriginalRef {
		if _, live := book.orders[m.NewRef]; live {
			return book.reject("replace", m.NewRef, RejectReasonDuplicateOrder, ErrDuplicateOrder, m.Timestamp)
		}
	}
	if m.Shares == 0 {
		return book.reject("replace", m.OriginalRef, RejectReasonInvalidShares, ErrInvalidShares, m.Timestamp)
	}

	old := book.pools.order(h).Order
	book.remove(h)

	nh, err := book.insert(Order{
		Ref:       m.NewRef,
		Locate:    book.locate,
		Side:      old.Side,
		Price:     m.Price,
		Shares:    m.Shares,
		Timestamp: m.Timestamp,
	})
	if err != nil {
		return err
	}

	book.publish(
		newReplaceLog(book.nextSeqID(), &old, m.NewRef, m.Price, m.Shares, m.Timestamp),
		newOpenLog(book.nextSeqID(), &book.pools.order(nh).Order),
	)
	return nil
}

// Fill applies an execution against a resting order: the executed shares
// are taken off in place and a fully executed order is removed. A
// successful fill becomes the last trade; a rejected one changes nothing.
func (book *OrderBook) Fill(e Execution) error {
	h, ok := book.orders[e.Ref]
	if !ok {
		return book.reject("fill", e.Ref, RejectReasonOrderNotFound, ErrOrderNotFound, e.Timestamp)
	}
	o := book.pools.order(h)
	if e.Shares == 0 || e.Shares > uint64(o.Shares) {
		return book.reject("fill", e.Ref, RejectReasonInvalidFill,
			fmt.Errorf("%w: execute %d of %d", ErrInvalidFill, e.Shares, o.Shares), e.Timestamp)
	}
	executed := uint32(e.Shares)
	if e.Type != itch.TypeOrderExecutedWithPrice {
		e.Price = o.Price
	}
	book.RecordTrade(e)

	if executed == o.Shares {
		done := o.Order
		done.Shares = 0
		book.publish(newFillLog(book.nextSeqID(), &done, executed, e.MatchNumber, e.Timestamp))
		book.remove(h)
		return nil
	}

	book.queueFor(o.Side).reduceOrder(h, executed)
	book.publish(newFillLog(book.nextSeqID(), &o.Order, executed, e.MatchNumber, e.Timestamp))
	return nil
}

// RecordTrade remembers e as the instrument's last trade. Broken trades and
// non-printable executions are ignored.
func (book *OrderBook) RecordTrade(e Execution) {
	if e.Type == itch.TypeBrokenTrade || !e.Printable {
		return
	}
	book.lastTrade = Trade{
		Price:       e.Price,
		Shares:      e.Shares,
		MatchNumber: e.MatchNumber,
		Timestamp:   e.Timestamp,
	}
	book.hasTrade = true
}

// LastTrade returns the last printed trade of the instrument.
func (book *OrderBook) LastTrade() (Trade, bool) {
	return book.lastTrade, book.hasTrade
}

// BestBid returns the highest bid price.
func (book *OrderBook) BestBid() (uint32, bool) {
	return book.bidQueue.best()
}

// BestAsk returns the lowest ask price.
func (book *OrderBook) BestAsk() (uint32, bool) {
	return book.askQueue.best()
}

// LevelVolume returns the aggregate shares resting at price on side.
func (book *OrderBook) LevelVolume(side Side, price uint32) uint64 {
	q := book.queueFor(side)
	if q == nil {
		return 0
	}
	return q.volume(price)
}

// LevelOrders returns the references at price on side in time priority.
func (book *OrderBook) LevelOrders(side Side, price uint32) []uint64 {
	q := book.queueFor(side)
	if q == nil {
		return nil
	}
	return q.orderRefs(price)
}

// Order returns a copy of a live order.
func (book *OrderBook) Order(ref uint64) (Order, bool) {
	h, ok := book.orders[ref]
	if !ok {
		return Order{}, false
	}
	return book.pools.order(h).Order, true
}

// Len returns the number of live orders.
func (book *OrderBook) Len() int {
	return len(book.orders)
}

// Stats returns usage statistics for the order book.
func (book *OrderBook) Stats() BookStats {
	return BookStats{
		AskDepthCount: book.askQueue.depthCount(),
		AskOrderCount: book.askQueue.orderCount(),
		BidDepthCount: book.bidQueue.depthCount(),
		BidOrderCount: book.bidQueue.orderCount(),
	}
}

// Depth returns up to limit levels per side, best first. limit <= 0 returns
// every level.
func (book *OrderBook) Depth(limit int) *Depth {
	return &Depth{
		SeqID: book.seqID,
		Bids:  book.bidQueue.depth(limit),
		Asks:  book.askQueue.depth(limit),
	}
}

// Walk visits the orders of side in price-then-time priority until fn
// returns false.
func (book *OrderBook) Walk(side Side, fn func(Order) bool) {
	q := book.queueFor(side)
	if q == nil {
		return
	}
	q.walk(func(o *Order) bool {
		return fn(*o)
	})
}

// CheckInvariants walks every structure of the book and reports the first
// disagreement between them as ErrInvariant.
func (book *OrderBook) CheckInvariants() error {
	bids, err := book.bidQueue.checkInvariants(book.orders)
	if err != nil {
		return fmt.Errorf("locate %d: %w", book.locate, err)
	}
	asks, err := book.askQueue.checkInvariants(book.orders)
	if err != nil {
		return fmt.Errorf("locate %d: %w", book.locate, err)
	}
	if bids+asks != len(book.orders) {
		return fmt.Errorf("%w: locate %d: %d orders indexed, %d reachable", ErrInvariant, book.locate, len(book.orders), bids+asks)
	}
	for ref, h := range book.orders {
		if !book.pools.orders.Live(h) || book.pools.order(h).Ref != ref {
			return fmt.Errorf("%w: locate %d: reference %d points at a stale slot", ErrInvariant, book.locate, ref)
		}
	}
	return nil
}

func (book *OrderBook) queueFor(side Side) *queue {
	switch side {
	case Buy:
		return book.bidQueue
	case Sell:
		return book.askQueue
	}
	return nil
}

func (book *OrderBook) insert(o Order) (int32, error) {
	h, err := book.pools.allocOrder()
	if err != nil {
		return nullIndex, fmt.Errorf("locate %d add %d: %w", book.locate, o.Ref, err)
	}
	*book.pools.order(h) = order{Order: o, prev: nullIndex, next: nullIndex, level: nullIndex}

	if err := book.queueFor(o.Side).insertOrder(h); err != nil {
		book.pools.freeOrder(h)
		return nullIndex, fmt.Errorf("locate %d add %d: %w", book.locate, o.Ref, err)
	}
	book.orders[o.Ref] = h
	return h, nil
}

func (book *OrderBook) remove(h int32) {
	o := book.pools.order(h)
	book.queueFor(o.Side).removeOrder(h)
	delete(book.orders, o.Ref)
	book.pools.freeOrder(h)
}

func (book *OrderBook) reject(op string, ref uint64, reason RejectReason, err error, ts uint64) error {
	book.observer.OnAnomaly(book.locate, reason)
	book.publish(newRejectLog(book.nextSeqID(), book.locate, ref, reason, ts))
	return &AnomalyError{Op: op, Locate: book.locate, Ref: ref, Reason: reason, Err: err}
}

func (book *OrderBook) nextSeqID() uint64 {
	book.seqID++
	return book.seqID
}

func (book *OrderBook) publish(logs ...*BookLog) {
	book.publishLog.Publish(logs...)
	for _, log := range logs {
		releaseBookLog(log)
	}
}

// reset returns every order and level to the pools and makes the book
// reusable for another instrument.
func (book *OrderBook) reset(locate uint16) {
	for _, h := range book.orders {
		book.pools.freeOrder(h)
	}
	clear(book.orders)
	book.bidQueue.reset()
	book.askQueue.reset()
	book.locate = locate
	book.seqID = 0
	book.lastTrade = Trade{}
	book.hasTrade = false
}
