package structure

// PriceLevelTree is a left-leaning red-black tree (Sedgewick, 2008) over a
// fixed node arena. Keys are price ticks and each node carries the handle of
// the level resting at that price. Insert, Delete and lookups never
// allocate; Min and Max are cached.

const (
	colorRed   = true
	colorBlack = false

	// maxDepth bounds the traversal stack; an LLRB holding 2^31 keys is
	// at most 62 levels deep.
	maxDepth = 64
)

// PriceLevel represents a node in the LLRB tree.
type PriceLevel struct {
	Left  int32  // Left child index
	Right int32  // Right child index
	Color bool   // true = Red, false = Black
	Price uint32 // Key: price in ticks
	Level int32  // Value: handle of the level at this price
}

// PriceLevelTree holds one side of a book's price index.
type PriceLevelTree struct {
	nodes    []PriceLevel // Pre-allocated node arena
	root     int32        // Root node index
	freeHead int32        // Head of free list
	count    int32        // Number of nodes in tree
	minCache int32        // Cached minimum node index
	maxCache int32        // Cached maximum node index
}

// NewPriceLevelTree creates a new LLRB tree with pre-allocated capacity.
func NewPriceLevelTree(capacity int32) *PriceLevelTree {
	if capacity < 1 {
		capacity = 1
	}
	tree := &PriceLevelTree{
		nodes: make([]PriceLevel, capacity),
	}
	tree.Reset()
	return tree
}

// Reset empties the tree without releasing its arena.
func (t *PriceLevelTree) Reset() {
	n := int32(len(t.nodes))
	// Initialize free list using Left pointer
	for i := int32(0); i < n-1; i++ {
		t.nodes[i].Left = i + 1
	}
	t.nodes[n-1].Left = NullIndex
	t.root = NullIndex
	t.freeHead = 0
	t.count = 0
	t.minCache = NullIndex
	t.maxCache = NullIndex
}

// alloc allocates a node from the free list. Callers check for space first.
func (t *PriceLevelTree) alloc() int32 {
	idx := t.freeHead
	t.freeHead = t.nodes[idx].Left
	t.nodes[idx] = PriceLevel{
		Left:  NullIndex,
		Right: NullIndex,
		Color: colorRed, // New nodes are always red in LLRB
	}
	return idx
}

// free returns a node to the free list.
func (t *PriceLevelTree) free(idx int32) {
	t.nodes[idx] = PriceLevel{Left: t.freeHead}
	t.freeHead = idx
}

// isRed checks if a node is red (nil nodes are black).
func (t *PriceLevelTree) isRed(idx int32) bool {
	if idx == NullIndex {
		return false
	}
	return t.nodes[idx].Color == colorRed
}

// rotateLeft performs a left rotation.
//
//	  |              |
//	  h              x
//	 / \    =>      / \
//	a   x          h   c
//	   / \        / \
//	  b   c      a   b
func (t *PriceLevelTree) rotateLeft(h int32) int32 {
	x := t.nodes[h].Right
	t.nodes[h].Right = t.nodes[x].Left
	t.nodes[x].Left = h
	t.nodes[x].Color = t.nodes[h].Color
	t.nodes[h].Color = colorRed
	return x
}

// rotateRight performs a right rotation.
//
//	    |          |
//	    h          x
//	   / \   =>   / \
//	  x   c      a   h
//	 / \            / \
//	a   b          b   c
func (t *PriceLevelTree) rotateRight(h int32) int32 {
	x := t.nodes[h].Left
	t.nodes[h].Left = t.nodes[x].Right
	t.nodes[x].Right = h
	t.nodes[x].Color = t.nodes[h].Color
	t.nodes[h].Color = colorRed
	return x
}

// flipColors flips the colors of a node and its children.
func (t *PriceLevelTree) flipColors(h int32) {
	t.nodes[h].Color = !t.nodes[h].Color
	t.nodes[t.nodes[h].Left].Color = !t.nodes[t.nodes[h].Left].Color
	t.nodes[t.nodes[h].Right].Color = !t.nodes[t.nodes[h].Right].Color
}

// Insert stores level under price.
// Returns true if the price was newly inserted, false if it already existed
// (the stored level is left untouched). A full arena yields ErrArenaExhausted.
func (t *PriceLevelTree) Insert(price uint32, level int32) (bool, error) {
	if t.search(price) != NullIndex {
		return false, nil
	}
	if t.freeHead == NullIndex {
		return false, ErrArenaExhausted
	}

	t.root = t.insert(t.root, price, level)
	t.nodes[t.root].Color = colorBlack // Root is always black
	t.count++

	if t.minCache == NullIndex || price < t.nodes[t.minCache].Price {
		t.minCache = t.findMin(t.root)
	}
	if t.maxCache == NullIndex || price > t.nodes[t.maxCache].Price {
		t.maxCache = t.findMax(t.root)
	}
	return true, nil
}

func (t *PriceLevelTree) insert(h int32, price uint32, level int32) int32 {
	if h == NullIndex {
		idx := t.alloc()
		t.nodes[idx].Price = price
		t.nodes[idx].Level = level
		return idx
	}

	if price < t.nodes[h].Price {
		t.nodes[h].Left = t.insert(t.nodes[h].Left, price, level)
	} else {
		t.nodes[h].Right = t.insert(t.nodes[h].Right, price, level)
	}

	// Fix up LLRB invariants
	return t.balance(h)
}

// Get returns the level stored under price.
func (t *PriceLevelTree) Get(price uint32) (int32, bool) {
	idx := t.search(price)
	if idx == NullIndex {
		return NullIndex, false
	}
	return t.nodes[idx].Level, true
}

// Contains checks if a price exists in the tree.
func (t *PriceLevelTree) Contains(price uint32) bool {
	return t.search(price) != NullIndex
}

func (t *PriceLevelTree) search(price uint32) int32 {
	h := t.root
	for h != NullIndex {
		switch {
		case price < t.nodes[h].Price:
			h = t.nodes[h].Left
		case price > t.nodes[h].Price:
			h = t.nodes[h].Right
		default:
			return h
		}
	}
	return NullIndex
}

// Min returns the lowest price and its level.
func (t *PriceLevelTree) Min() (uint32, int32, bool) {
	if t.minCache == NullIndex {
		return 0, NullIndex, false
	}
	n := &t.nodes[t.minCache]
	return n.Price, n.Level, true
}

// Max returns the highest price and its level.
func (t *PriceLevelTree) Max() (uint32, int32, bool) {
	if t.maxCache == NullIndex {
		return 0, NullIndex, false
	}
	n := &t.nodes[t.maxCache]
	return n.Price, n.Level, true
}

func (t *PriceLevelTree) findMin(h int32) int32 {
	if h == NullIndex {
		return NullIndex
	}
	for t.nodes[h].Left != NullIndex {
		h = t.nodes[h].Left
	}
	return h
}

func (t *PriceLevelTree) findMax(h int32) int32 {
	if h == NullIndex {
		return NullIndex
	}
	for t.nodes[h].Right != NullIndex {
		h = t.nodes[h].Right
	}
	return h
}

// Count returns the number of nodes in the tree.
func (t *PriceLevelTree) Count() int32 {
	return t.count
}

// Cap returns the arena capacity.
func (t *PriceLevelTree) Cap() int32 {
	return int32(len(t.nodes))
}

// Successor returns the smallest price strictly greater than price.
// price itself need not be in the tree.
func (t *PriceLevelTree) Successor(price uint32) (uint32, bool) {
	h, best := t.root, NullIndex
	for h != NullIndex {
		if t.nodes[h].Price > price {
			best = h
			h = t.nodes[h].Left
		} else {
			h = t.nodes[h].Right
		}
	}
	if best == NullIndex {
		return 0, false
	}
	return t.nodes[best].Price, true
}

// Predecessor returns the largest price strictly less than price.
func (t *PriceLevelTree) Predecessor(price uint32) (uint32, bool) {
	h, best := t.root, NullIndex
	for h != NullIndex {
		if t.nodes[h].Price < price {
			best = h
			h = t.nodes[h].Right
		} else {
			h = t.nodes[h].Left
		}
	}
	if best == NullIndex {
		return 0, false
	}
	return t.nodes[best].Price, true
}

// Delete removes a price from the tree.
// Returns true if the price was found and deleted.
func (t *PriceLevelTree) Delete(price uint32) bool {
	// The top-down delete restructures the path as it descends, so it only
	// runs for keys that are present.
	if t.search(price) == NullIndex {
		return false
	}

	if !t.isRed(t.nodes[t.root].Left) && !t.isRed(t.nodes[t.root].Right) {
		t.nodes[t.root].Color = colorRed
	}
	t.root = t.delete(t.root, price)
	if t.root != NullIndex {
		t.nodes[t.root].Color = colorBlack
	}
	t.count--

	// the successor swap can move keys between nodes
	t.minCache = t.findMin(t.root)
	t.maxCache = t.findMax(t.root)
	return true
}

func (t *PriceLevelTree) delete(h int32, price uint32) int32 {
	if price < t.nodes[h].Price {
		if !t.isRed(t.nodes[h].Left) && !t.isRed(t.nodes[t.nodes[h].Left].Left) {
			h = t.moveRedLeft(h)
		}
		t.nodes[h].Left = t.delete(t.nodes[h].Left, price)
	} else {
		if t.isRed(t.nodes[h].Left) {
			h = t.rotateRight(h)
		}
		if price == t.nodes[h].Price && t.nodes[h].Right == NullIndex {
			t.free(h)
			return NullIndex
		}
		if !t.isRed(t.nodes[h].Right) && !t.isRed(t.nodes[t.nodes[h].Right].Left) {
			h = t.moveRedRight(h)
		}
		if price == t.nodes[h].Price {
			// Replace with the minimum of the right subtree
			minIdx := t.findMin(t.nodes[h].Right)
			t.nodes[h].Price = t.nodes[minIdx].Price
			t.nodes[h].Level = t.nodes[minIdx].Level
			t.nodes[h].Right = t.deleteMin(t.nodes[h].Right)
		} else {
			t.nodes[h].Right = t.delete(t.nodes[h].Right, price)
		}
	}
	return t.balance(h)
}

func (t *PriceLevelTree) moveRedLeft(h int32) int32 {
	t.flipColors(h)
	if t.isRed(t.nodes[t.nodes[h].Right].Left) {
		t.nodes[h].Right = t.rotateRight(t.nodes[h].Right)
		h = t.rotateLeft(h)
		t.flipColors(h)
	}
	return h
}

func (t *PriceLevelTree) moveRedRight(h int32) int32 {
	t.flipColors(h)
	if t.isRed(t.nodes[t.nodes[h].Left].Left) {
		h = t.rotateRight(h)
		t.flipColors(h)
	}
	return h
}

func (t *PriceLevelTree) deleteMin(h int32) int32 {
	if t.nodes[h].Left == NullIndex {
		t.free(h)
		return NullIndex
	}
	if !t.isRed(t.nodes[h].Left) && !t.isRed(t.nodes[t.nodes[h].Left].Left) {
		h = t.moveRedLeft(h)
	}
	t.nodes[h].Left = t.deleteMin(t.nodes[h].Left)
	return t.balance(h)
}

func (t *PriceLevelTree) balance(h int32) int32 {
	if t.isRed(t.nodes[h].Right) && !t.isRed(t.nodes[h].Left) {
		h = t.rotateLeft(h)
	}
	if t.isRed(t.nodes[h].Left) && t.isRed(t.nodes[t.nodes[h].Left].Left) {
		h = t.rotateRight(h)
	}
	if t.isRed(t.nodes[h].Left) && t.isRed(t.nodes[h].Right) {
		t.flipColors(h)
	}
	return h
}

// DeleteMin removes and returns the minimum price.
func (t *PriceLevelTree) DeleteMin() (uint32, bool) {
	price, _, ok := t.Min()
	if !ok {
		return 0, false
	}
	return price, t.Delete(price)
}

// Ascend calls fn for every entry from the lowest price up until fn returns
// false. The tree must not be modified during the walk.
func (t *PriceLevelTree) Ascend(fn func(price uint32, level int32) bool) {
	var stack [maxDepth]int32
	sp := 0
	h := t.root
	for h != NullIndex || sp > 0 {
		for h != NullIndex {
			stack[sp] = h
			sp++
			h = t.nodes[h].Left
		}
		sp--
		h = stack[sp]
		if !fn(t.nodes[h].Price, t.nodes[h].Level) {
			return
		}
		h = t.nodes[h].Right
	}
}

// Descend is Ascend from the highest price down.
func (t *PriceLevelTree) Descend(fn func(price uint32, level int32) bool) {
	var stack [maxDepth]int32
	sp := 0
	h := t.root
	for h != NullIndex || sp > 0 {
		for h != NullIndex {
			stack[sp] = h
			sp++
			h = t.nodes[h].Right
		}
		sp--
		h = stack[sp]
		if !fn(t.nodes[h].Price, t.nodes[h].Level) {
			return
		}
		h = t.nodes[h].Left
	}
}

// InOrderSlice returns all prices in sorted order (for testing/debugging).
func (t *PriceLevelTree) InOrderSlice() []uint32 {
	result := make([]uint32, 0, t.count)
	t.Ascend(func(price uint32, _ int32) bool {
		result = append(result, price)
		return true
	})
	return result
}

// blackHeight returns the black height of h, or -1 when the subtree breaks
// a red-black rule.
func (t *PriceLevelTree) blackHeight(h int32) int {
	if h == NullIndex {
		return 0
	}
	n := &t.nodes[h]
	if t.isRed(n.Right) {
		return -1
	}
	if n.Color == colorRed && t.isRed(n.Left) {
		return -1
	}
	left, right := t.blackHeight(n.Left), t.blackHeight(n.Right)
	if left < 0 || left != right {
		return -1
	}
	if n.Color == colorBlack {
		left++
	}
	return left
}

// Valid reports whether the tree satisfies the LLRB invariants and its
// cached extremes are correct.
func (t *PriceLevelTree) Valid() bool {
	if t.root != NullIndex && t.isRed(t.root) {
		return false
	}
	if t.blackHeight(t.root) < 0 {
		return false
	}
	if t.minCache != t.findMin(t.root) || t.maxCache != t.findMax(t.root) {
		return false
	}
	var (
		prev  uint32
		first = true
		n     int32
		ok    = true
	)
	t.Ascend(func(price uint32, _ int32) bool {
		if !first && price <= prev {
			ok = false
			return false
		}
		prev, first = price, false
		n++
		return true
	})
	return ok && n == t.count
}
