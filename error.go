package lob

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateOrder    = errors.New("order reference is already live")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidCancel     = errors.New("cancelled shares must be below remaining shares")
	ErrInvalidFill       = errors.New("executed shares exceed remaining shares")
	ErrInvalidSide       = errors.New("invalid side indicator")
	ErrInvalidShares     = errors.New("share quantity must be positive")
	ErrPoolExhausted     = errors.New("pool exhausted")
	ErrInvariant         = errors.New("order book invariant violated")
	ErrUnknownInstrument = errors.New("order message for unknown instrument")
	ErrUnsupported       = errors.New("unsupported message")
	ErrInvalidParam      = errors.New("the param is invalid")
	ErrShardFailed       = errors.New("shard stopped on a fatal error")
)

// AnomalyError is a feed event the book refused to apply. The book is left
// unchanged and replay carries on; every other error is fatal.
type AnomalyError struct {
	Op     string // add, cancel, delete, replace, fill
	Locate uint16
	Ref    uint64
	Reason RejectReason
	Err    error
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("%s ref=%d locate=%d: %v", e.Op, e.Ref, e.Locate, e.Err)
}

func (e *AnomalyError) Unwrap() error {
	return e.Err
}

// IsAnomaly reports whether err is a recoverable feed anomaly.
func IsAnomaly(err error) bool {
	var ae *AnomalyError
	return errors.As(err, &ae)
}

// IsFatal reports whether err must stop a replay.
func IsFatal(err error) bool {
	return err != nil && !IsAnomaly(err)
}

var (
	ErrSnapshotChecksum = errors.New("snapshot checksum mismatch")
	ErrSnapshotCorrupt  = errors.New("snapshot file is corrupt")
)
