package lob

import (
	"fmt"
	"maps"
	"slices"
)

// Policy decides what happens to a book whose last order goes away.
type Policy string

const (
	// PolicyRetain keeps books for the whole session.
	PolicyRetain Policy = "retain"
	// PolicyRelease returns an emptied book to the book pool.
	PolicyRelease Policy = "release"
)

// RegistryConfig sizes the pools of a registry.
type RegistryConfig struct {
	MaxOrders int32
	MaxLevels int32
	MaxBooks  int
	Policy    Policy
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxOrders: DefaultMaxOrders,
		MaxLevels: DefaultMaxLevels,
		MaxBooks:  DefaultMaxBooks,
		Policy:    PolicyRetain,
	}
}

// BookRegistry maps stock locates to their books. All books of a registry
// share one Pools; books themselves come from a pool of reset books.
// A registry is owned by one goroutine.
type BookRegistry struct {
	cfg      RegistryConfig
	opts     bookOptions
	pools    *Pools
	books    map[uint16]*OrderBook
	free     []*OrderBook
	released map[uint16]struct{}
	created  int
}

// NewBookRegistry creates an empty registry; opts apply to every book.
func NewBookRegistry(cfg RegistryConfig, opts ...BookOption) (*BookRegistry, error) {
	if cfg.MaxOrders <= 0 || cfg.MaxLevels <= 0 || cfg.MaxBooks <= 0 {
		return nil, fmt.Errorf("%w: pool capacities must be positive", ErrInvalidParam)
	}
	switch cfg.Policy {
	case "":
		cfg.Policy = PolicyRetain
	case PolicyRetain, PolicyRelease:
	default:
		return nil, fmt.Errorf("%w: policy %q", ErrInvalidParam, cfg.Policy)
	}

	o := defaultBookOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if _, err := newPriceIndex(o.index, Buy, 1); err != nil {
		return nil, err
	}

	return &BookRegistry{
		cfg:      cfg,
		opts:     o,
		pools:    NewPools(cfg.MaxOrders, cfg.MaxLevels),
		books:    make(map[uint16]*OrderBook),
		released: make(map[uint16]struct{}),
	}, nil
}

// Book returns the book of locate, or nil.
func (r *BookRegistry) Book(locate uint16) *OrderBook {
	return r.books[locate]
}

// Acquire returns the book of locate, creating it on first use.
func (r *BookRegistry) Acquire(locate uint16) (*OrderBook, error) {
	if book, ok := r.books[locate]; ok {
		return book, nil
	}

	var book *OrderBook
	if n := len(r.free); n > 0 {
		book = r.free[n-1]
		r.free = r.free[:n-1]
		book.locate = locate
	} else {
		if r.created >= r.cfg.MaxBooks {
			return nil, fmt.Errorf("%w: %d books in use", ErrPoolExhausted, len(r.books))
		}
		var err error
		book, err = newOrderBook(locate, r.pools, r.opts)
		if err != nil {
			return nil, err
		}
		r.created++
	}

	r.books[locate] = book
	delete(r.released, locate)
	r.opts.observer.OnBookCreated(locate)
	return book, nil
}

// Release returns the book of locate to the book pool. Only empty books
// are released.
func (r *BookRegistry) Release(locate uint16) bool {
	book, ok := r.books[locate]
	if !ok || book.Len() > 0 {
		return false
	}
	delete(r.books, locate)
	book.reset(locate)
	r.free = append(r.free, book)
	r.released[locate] = struct{}{}
	r.opts.observer.OnBookReleased(locate)
	return true
}

// Released reports whether locate had a book that was released and not
// acquired again.
func (r *BookRegistry) Released(locate uint16) bool {
	_, ok := r.released[locate]
	return ok
}

// settle applies the registry policy after book changed.
func (r *BookRegistry) settle(book *OrderBook) {
	if r.cfg.Policy == PolicyRelease && book.Len() == 0 {
		r.Release(book.locate)
	}
}

// Len returns the number of live books.
func (r *BookRegistry) Len() int {
	return len(r.books)
}

// Locates returns the locates of live books in ascending order.
func (r *BookRegistry) Locates() []uint16 {
	return slices.Sorted(maps.Keys(r.books))
}

// Orders returns the number of live orders across all books.
func (r *BookRegistry) Orders() int {
	return r.pools.orders.Len()
}

func (r *BookRegistry) Pools() *Pools {
	return r.pools
}

func (r *BookRegistry) Policy() Policy {
	return r.cfg.Policy
}

// Range visits books in locate order until fn returns false.
func (r *BookRegistry) Range(fn func(*OrderBook) bool) {
	for _, locate := range r.Locates() {
		if !fn(r.books[locate]) {
			return
		}
	}
}

// CheckInvariants verifies every book and that the pools hold exactly the
// orders and levels the books reference.
func (r *BookRegistry) CheckInvariants() error {
	var orders, levels int
	for _, locate := range r.Locates() {
		book := r.books[locate]
		if book.locate != locate {
			return fmt.Errorf("%w: book registered under %d reports locate %d", ErrInvariant, locate, book.locate)
		}
		if err := book.CheckInvariants(); err != nil {
			return err
		}
		if r.cfg.Policy == PolicyRelease && book.Len() == 0 {
			return fmt.Errorf("%w: empty book %d kept under release policy", ErrInvariant, locate)
		}
		orders += book.Len()
		stats := book.Stats()
		levels += stats.AskDepthCount + stats.BidDepthCount
	}
	if u := r.pools.Usage(); u.Orders != orders || u.Levels != levels {
		return fmt.Errorf("%w: pools hold %d orders / %d levels, books reference %d / %d",
			ErrInvariant, u.Orders, u.Levels, orders, levels)
	}
	return nil
}
