package lob

import (
	"fmt"

	"github.com/0x5487/lob/structure"
	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/huandu/skiplist"
)

// IndexKind selects the sorted structure behind each side of a book.
type IndexKind string

const (
	IndexSkiplist IndexKind = "skiplist"
	IndexRBTree   IndexKind = "rbtree"
	IndexLLRB     IndexKind = "llrb"
)

// priceIndex keeps the live prices of one side sorted best first and maps
// each to its level handle.
type priceIndex interface {
	insert(price uint32, lvl int32) error
	remove(price uint32)
	best() (price uint32, lvl int32, ok bool)
	// walk visits levels best first until fn returns false.
	walk(fn func(price uint32, lvl int32) bool)
	len() int
	reset()
}

func newPriceIndex(kind IndexKind, side Side, treeCapacity int32) (priceIndex, error) {
	switch kind {
	case IndexSkiplist, "":
		return newSkiplistIndex(side), nil
	case IndexRBTree:
		return newRBTreeIndex(side), nil
	case IndexLLRB:
		return &llrbIndex{side: side, tree: structure.NewPriceLevelTree(treeCapacity)}, nil
	}
	return nil, fmt.Errorf("%w: index kind %q", ErrInvalidParam, kind)
}

// bestFirst orders bid prices high to low and ask prices low to high.
func bestFirst(side Side) func(a, b uint32) int {
	if side == Buy {
		return func(a, b uint32) int {
			if a > b {
				return -1
			} else if a < b {
				return 1
			}
			return 0
		}
	}
	return func(a, b uint32) int {
		if a < b {
			return -1
		} else if a > b {
			return 1
		}
		return 0
	}
}

type skiplistIndex struct {
	side Side
	list *skiplist.SkipList
}

func newSkiplistIndex(side Side) *skiplistIndex {
	idx := &skiplistIndex{side: side}
	idx.reset()
	return idx
}

func (idx *skiplistIndex) reset() {
	cmp := bestFirst(idx.side)
	// Front() is the best price.
	idx.list = skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
		p1, _ := lhs.(uint32)
		p2, _ := rhs.(uint32)
		return cmp(p1, p2)
	}))
}

func (idx *skiplistIndex) insert(price uint32, lvl int32) error {
	idx.list.Set(price, lvl)
	return nil
}

func (idx *skiplistIndex) remove(price uint32) {
	idx.list.Remove(price)
}

func (idx *skiplistIndex) best() (uint32, int32, bool) {
	el := idx.list.Front()
	if el == nil {
		return 0, nullIndex, false
	}
	return el.Key().(uint32), el.Value.(int32), true
}

func (idx *skiplistIndex) walk(fn func(uint32, int32) bool) {
	for el := idx.list.Front(); el != nil; el = el.Next() {
		if !fn(el.Key().(uint32), el.Value.(int32)) {
			return
		}
	}
}

func (idx *skiplistIndex) len() int {
	return idx.list.Len()
}

type rbtreeIndex struct {
	side Side
	tree *rbt.Tree[uint32, int32]
}

func newRBTreeIndex(side Side) *rbtreeIndex {
	return &rbtreeIndex{
		side: side,
		tree: rbt.NewWith[uint32, int32](bestFirst(side)),
	}
}

func (idx *rbtreeIndex) insert(price uint32, lvl int32) error {
	idx.tree.Put(price, lvl)
	return nil
}

func (idx *rbtreeIndex) remove(price uint32) {
	idx.tree.Remove(price)
}

func (idx *rbtreeIndex) best() (uint32, int32, bool) {
	node := idx.tree.Left()
	if node == nil {
		return 0, nullIndex, false
	}
	return node.Key, node.Value, true
}

func (idx *rbtreeIndex) walk(fn func(uint32, int32) bool) {
	it := idx.tree.Iterator()
	for it.Next() {
		if !fn(it.Key(), it.Value()) {
			return
		}
	}
}

func (idx *rbtreeIndex) len() int {
	return idx.tree.Size()
}

func (idx *rbtreeIndex) reset() {
	idx.tree.Clear()
}

// llrbIndex keeps prices ascending in the arena tree; bids read it from the
// top.
type llrbIndex struct {
	side Side
	tree *structure.PriceLevelTree
}

func (idx *llrbIndex) insert(price uint32, lvl int32) error {
	if _, err := idx.tree.Insert(price, lvl); err != nil {
		return fmt.Errorf("%w: %s price tree full (%d levels)", ErrPoolExhausted, idx.side, idx.tree.Cap())
	}
	return nil
}

func (idx *llrbIndex) remove(price uint32) {
	idx.tree.Delete(price)
}

func (idx *llrbIndex) best() (uint32, int32, bool) {
	if idx.side == Buy {
		return idx.tree.Max()
	}
	return idx.tree.Min()
}

func (idx *llrbIndex) walk(fn func(uint32, int32) bool) {
	if idx.side == Buy {
		idx.tree.Descend(fn)
		return
	}
	idx.tree.Ascend(fn)
}

func (idx *llrbIndex) len() int {
	return int(idx.tree.Count())
}

func (idx *llrbIndex) reset() {
	idx.tree.Reset()
}
