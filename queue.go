package lob

import "fmt"

// queue is one side of a book: levels sorted best first in a priceIndex,
// a price -> level map for O(1) lookups, and per level a chain of orders in
// time priority. Orders and levels live in the shared Pools.
type queue struct {
	side        Side
	totalOrders int
	index       priceIndex
	levels      map[uint32]int32
	pools       *Pools
}

func newQueue(side Side, kind IndexKind, treeCapacity int32, pools *Pools) (*queue, error) {
	index, err := newPriceIndex(kind, side, treeCapacity)
	if err != nil {
		return nil, err
	}
	return &queue{
		side:   side,
		index:  index,
		levels: make(map[uint32]int32),
		pools:  pools,
	}, nil
}

// insertOrder appends the order at the tail of its price level, creating
// the level if needed.
func (q *queue) insertOrder(h int32) error {
	o := q.pools.order(h)

	lh, ok := q.levels[o.Price]
	if !ok {
		var err error
		lh, err = q.pools.allocLevel()
		if err != nil {
			return err
		}
		if err := q.index.insert(o.Price, lh); err != nil {
			q.pools.freeLevel(lh)
			return err
		}
		*q.pools.level(lh) = level{
			price: o.Price,
			side:  q.side,
			head:  nullIndex,
			tail:  nullIndex,
		}
		q.levels[o.Price] = lh
	}

	lv := q.pools.level(lh)
	o.level = lh
	o.prev = lv.tail
	o.next = nullIndex
	if lv.tail != nullIndex {
		q.pools.order(lv.tail).next = h
	} else {
		lv.head = h
	}
	lv.tail = h

	lv.volume += uint64(o.Shares)
	lv.count++
	q.totalOrders++
	return nil
}

// removeOrder unlinks the order from its level. A level left without orders
// is removed from both indexes and freed at once. The order slot itself is
// left for the caller to free.
func (q *queue) removeOrder(h int32) {
	o := q.pools.order(h)
	lh := o.level
	lv := q.pools.level(lh)

	if o.prev != nullIndex {
		q.pools.order(o.prev).next = o.next
	} else {
		lv.head = o.next
	}
	if o.next != nullIndex {
		q.pools.order(o.next).prev = o.prev
	} else {
		lv.tail = o.prev
	}
	o.prev, o.next, o.level = nullIndex, nullIndex, nullIndex

	lv.volume -= uint64(o.Shares)
	lv.count--
	q.totalOrders--

	if lv.count == 0 {
		q.index.remove(lv.price)
		delete(q.levels, lv.price)
		q.pools.freeLevel(lh)
	}
}

// reduceOrder takes shares off a resting order in place, keeping its
// priority. shares must be below the remaining quantity.
func (q *queue) reduceOrder(h int32, shares uint32) {
	o := q.pools.order(h)
	o.Shares -= shares
	q.pools.level(o.level).volume -= uint64(shares)
}

// best returns the best price of the side.
func (q *queue) best() (uint32, bool) {
	price, _, ok := q.index.best()
	return price, ok
}

// volume returns the aggregate shares at price, zero if no level exists.
func (q *queue) volume(price uint32) uint64 {
	lh, ok := q.levels[price]
	if !ok {
		return 0
	}
	return q.pools.level(lh).volume
}

// orderRefs lists the references resting at price in time priority.
func (q *queue) orderRefs(price uint32) []uint64 {
	lh, ok := q.levels[price]
	if !ok {
		return nil
	}
	lv := q.pools.level(lh)
	refs := make([]uint64, 0, lv.count)
	for h := lv.head; h != nullIndex; h = q.pools.order(h).next {
		refs = append(refs, q.pools.order(h).Ref)
	}
	return refs
}

// orderCount returns the total number of orders in the queue.
func (q *queue) orderCount() int {
	return q.totalOrders
}

// depthCount returns the number of price levels in the queue.
func (q *queue) depthCount() int {
	return len(q.levels)
}

// depth returns up to limit levels best first; limit <= 0 means all.
func (q *queue) depth(limit int) []DepthItem {
	n := q.depthCount()
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]DepthItem, 0, n)

	q.index.walk(func(price uint32, lh int32) bool {
		lv := q.pools.level(lh)
		result = append(result, DepthItem{
			Price:  price,
			Volume: lv.volume,
			Orders: int(lv.count),
		})
		return len(result) < n
	})
	return result
}

// walk visits every order price first, then time.
func (q *queue) walk(fn func(o *Order) bool) {
	q.index.walk(func(_ uint32, lh int32) bool {
		for h := q.pools.level(lh).head; h != nullIndex; {
			o := q.pools.order(h)
			if !fn(&o.Order) {
				return false
			}
			h = o.next
		}
		return true
	})
}

// reset frees every level. The caller frees the orders.
func (q *queue) reset() {
	for _, lh := range q.levels {
		q.pools.freeLevel(lh)
	}
	clear(q.levels)
	q.index.reset()
	q.totalOrders = 0
}

// checkInvariants verifies the side structures against each other and
// against the book's reference index. It returns the number of orders
// reachable through the level chains.
func (q *queue) checkInvariants(refs map[uint64]int32) (int, error) {
	if q.index.len() != len(q.levels) {
		return 0, fmt.Errorf("%w: %s index holds %d levels, price map %d", ErrInvariant, q.side, q.index.len(), len(q.levels))
	}

	var (
		reached int
		prev    uint32
		first   = true
		err     error
	)
	cmp := bestFirst(q.side)
	q.index.walk(func(price uint32, lh int32) bool {
		if !first && cmp(prev, price) >= 0 {
			err = fmt.Errorf("%w: %s prices out of order at %d", ErrInvariant, q.side, price)
			return false
		}
		prev, first = price, false

		if mh, ok := q.levels[price]; !ok || mh != lh {
			err = fmt.Errorf("%w: %s level %d missing from price map", ErrInvariant, q.side, price)
			return false
		}
		if !q.pools.levels.Live(lh) {
			err = fmt.Errorf("%w: %s level %d is not allocated", ErrInvariant, q.side, price)
			return false
		}
		lv := q.pools.level(lh)
		if lv.price != price || lv.side != q.side || lv.count <= 0 || lv.volume == 0 {
			err = fmt.Errorf("%w: %s level %d: price %d side %s count %d volume %d",
				ErrInvariant, q.side, price, lv.price, lv.side, lv.count, lv.volume)
			return false
		}

		var (
			volume uint64
			count  int32
			last   = nullIndex
		)
		for h := lv.head; h != nullIndex; h = q.pools.order(h).next {
			o := q.pools.order(h)
			if o.prev != last || o.level != lh || o.Price != price || o.Side != q.side || o.Shares == 0 {
				err = fmt.Errorf("%w: %s level %d: bad order %d in chain", ErrInvariant, q.side, price, o.Ref)
				return false
			}
			if rh, ok := refs[o.Ref]; !ok || rh != h {
				err = fmt.Errorf("%w: order %d not in reference index", ErrInvariant, o.Ref)
				return false
			}
			volume += uint64(o.Shares)
			count++
			last = h
			if count > lv.count {
				break
			}
		}
		if last != lv.tail || count != lv.count || volume != lv.volume {
			err = fmt.Errorf("%w: %s level %d: chain has %d orders / %d shares, level says %d / %d",
				ErrInvariant, q.side, price, count, volume, lv.count, lv.volume)
			return false
		}
		reached += int(count)
		return true
	})
	if err != nil {
		return 0, err
	}
	if reached != q.totalOrders {
		return 0, fmt.Errorf("%w: %s chains hold %d orders, counter says %d", ErrInvariant, q.side, reached, q.totalOrders)
	}
	return reached, nil
}
