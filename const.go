package lob

const (
	// Version is the current version of the book engine
	Version = "v1.0.0"

	// SnapshotSchemaVersion is the current version of the snapshot schema
	// Increment this when the snapshot format changes in a backward-incompatible way
	SnapshotSchemaVersion = 1

	// PriceScale is the number of implied decimal places in feed prices.
	PriceScale = 4
)

// Default pool capacities, sized for a full NASDAQ session.
const (
	DefaultMaxOrders    = 1 << 22
	DefaultMaxLevels    = 1 << 20
	DefaultMaxBooks     = 1 << 14
	DefaultTreeCapacity = 1 << 12
)
