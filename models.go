package lob

import (
	"github.com/0x5487/lob/itch"
	"github.com/0x5487/lob/structure"
)

const nullIndex = structure.NullIndex

type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "invalid"
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// SideFromIndicator maps the feed's 'B'/'S' indicator to a Side.
// Any other byte yields the zero Side, which books reject.
func SideFromIndicator(b byte) Side {
	switch b {
	case itch.SideBuy:
		return Buy
	case itch.SideSell:
		return Sell
	}
	return 0
}

// Order is a copy of a resting order's state.
type Order struct {
	Ref       uint64 `json:"ref"`
	Locate    uint16 `json:"locate"`
	Side      Side   `json:"side"`
	Price     uint32 `json:"price"`     // 1/10000 USD ticks
	Shares    uint32 `json:"shares"`    // remaining shares
	Timestamp uint64 `json:"timestamp"` // ns since midnight of the last add/replace
}

// order is the pooled slot behind an Order. prev/next chain the orders of
// one level in time priority; level is the owning level's handle.
type order struct {
	Order
	prev  int32
	next  int32
	level int32
}

// level is the pooled slot for one price on one side.
type level struct {
	price  uint32
	side   Side
	volume uint64 // sum of remaining shares of its orders
	count  int32
	head   int32
	tail   int32
}

type LogType string

const (
	LogTypeOpen    LogType = "open"
	LogTypeCancel  LogType = "cancel"
	LogTypeDelete  LogType = "delete"
	LogTypeReplace LogType = "replace"
	LogTypeFill    LogType = "fill"
	LogTypeReject  LogType = "reject"
)

// RejectReason represents the reason why a feed event was refused.
type RejectReason string

const (
	RejectReasonNone           RejectReason = ""
	RejectReasonDuplicateOrder RejectReason = "duplicate_order" // Add/Replace: reference already live
	RejectReasonOrderNotFound  RejectReason = "order_not_found" // Cancel/Delete/Replace/Fill: unknown reference
	RejectReasonInvalidCancel  RejectReason = "invalid_cancel"  // Cancel: shares >= remaining
	RejectReasonInvalidFill    RejectReason = "invalid_fill"    // Fill: shares > remaining
	RejectReasonInvalidSide    RejectReason = "invalid_side"    // Add: indicator not B/S
	RejectReasonInvalidShares  RejectReason = "invalid_shares"  // Add/Replace: zero shares
)

// RejectReasons lists every reason a book can report.
var RejectReasons = []RejectReason{
	RejectReasonDuplicateOrder,
	RejectReasonOrderNotFound,
	RejectReasonInvalidCancel,
	RejectReasonInvalidFill,
	RejectReasonInvalidSide,
	RejectReasonInvalidShares,
}

// BookStats contains statistics about the order book queues
type BookStats struct {
	AskDepthCount int
	AskOrderCount int
	BidDepthCount int
	BidOrderCount int
}

// DepthItem is one aggregated price level.
type DepthItem struct {
	Price  uint32 `json:"price"`
	Volume uint64 `json:"volume"`
	Orders int    `json:"orders"`
}

type Depth struct {
	SeqID uint64      `json:"seq_id"`
	Bids  []DepthItem `json:"bids"` // best price first
	Asks  []DepthItem `json:"asks"` // best price first
}

// DepthChange represents a change in the order book depth.
type DepthChange struct {
	Side     Side
	Price    uint32
	SizeDiff int64
}

// Trade is the last execution seen for an instrument.
type Trade struct {
	Price       uint32 `json:"price"`
	Shares      uint64 `json:"shares"`
	MatchNumber uint64 `json:"match_number"`
	Timestamp   uint64 `json:"timestamp"`
}
