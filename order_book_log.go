package lob

import "sync"

// BookLog represents an event in the order book.
// SequenceID increases by one for every log a book emits, rejects included,
// so downstream mirrors can detect gaps and duplicates.
// Use LogType to determine if the event affects order book state:
// - Open, Cancel, Delete, Replace, Fill: affect order book state
// - Reject: does not affect order book state
type BookLog struct {
	SequenceID   uint64       `json:"seq_id"`
	Type         LogType      `json:"type"`
	Locate       uint16       `json:"locate"`
	Side         Side         `json:"side,omitempty"`
	Ref          uint64       `json:"ref"`
	Price        uint32       `json:"price,omitempty"`
	Shares       uint32       `json:"shares,omitempty"`    // open: resting; cancel/fill: removed; delete: remaining removed
	Remaining    uint32       `json:"remaining"`           // shares left on the order after the event
	OldRef       uint64       `json:"old_ref,omitempty"`   // replace only
	OldPrice     uint32       `json:"old_price,omitempty"` // replace only
	OldShares    uint32       `json:"old_shares,omitempty"`
	MatchNumber  uint64       `json:"match_number,omitempty"` // fill only
	RejectReason RejectReason `json:"reject_reason,omitempty"`
	Timestamp    uint64       `json:"timestamp"` // feed time, ns since midnight
}

var bookLogPool = sync.Pool{
	New: func() any {
		return new(BookLog)
	},
}

func acquireBookLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

func releaseBookLog(log *BookLog) {
	*log = BookLog{}
	bookLogPool.Put(log)
}

func newOpenLog(seqID uint64, o *Order) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeOpen
	log.Locate = o.Locate
	log.Side = o.Side
	log.Ref = o.Ref
	log.Price = o.Price
	log.Shares = o.Shares
	log.Remaining = o.Shares
	log.Timestamp = o.Timestamp
	return log
}

func newCancelLog(seqID uint64, o *Order, cancelled uint32, ts uint64) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeCancel
	log.Locate = o.Locate
	log.Side = o.Side
	log.Ref = o.Ref
	log.Price = o.Price
	log.Shares = cancelled
	log.Remaining = o.Shares
	log.Timestamp = ts
	return log
}

func newDeleteLog(seqID uint64, o *Order, ts uint64) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeDelete
	log.Locate = o.Locate
	log.Side = o.Side
	log.Ref = o.Ref
	log.Price = o.Price
	log.Shares = o.Shares
	log.Timestamp = ts
	return log
}

// newReplaceLog records the removal of old; the replacement is reported by
// the open log that follows it.
func newReplaceLog(seqID uint64, old *Order, newRef uint64, price, shares uint32, ts uint64) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeReplace
	log.Locate = old.Locate
	log.Side = old.Side
	log.Ref = newRef
	log.Price = price
	log.Shares = shares
	log.Remaining = shares
	log.OldRef = old.Ref
	log.OldPrice = old.Price
	log.OldShares = old.Shares
	log.Timestamp = ts
	return log
}

func newFillLog(seqID uint64, o *Order, executed uint32, matchNumber uint64, ts uint64) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeFill
	log.Locate = o.Locate
	log.Side = o.Side
	log.Ref = o.Ref
	log.Price = o.Price
	log.Shares = executed
	log.Remaining = o.Shares
	log.MatchNumber = matchNumber
	log.Timestamp = ts
	return log
}

func newRejectLog(seqID uint64, locate uint16, ref uint64, reason RejectReason, ts uint64) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeReject
	log.Locate = locate
	log.Ref = ref
	log.RejectReason = reason
	log.Timestamp = ts
	return log
}
