package lob

// CalculateDepthChange calculates the depth change based on the book log.
// It returns a DepthChange struct indicating which side and price level should be updated.
// Note: For LogTypeReplace, only the removal of the old order is reported; the
// replacement is reported by the LogTypeOpen that follows it.
func CalculateDepthChange(log *BookLog) DepthChange {
	switch log.Type {
	case LogTypeOpen:
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: int64(log.Shares),
		}
	case LogTypeCancel, LogTypeDelete, LogTypeFill:
		return DepthChange{
			Side:     log.Side,
			Price:    log.Price,
			SizeDiff: -int64(log.Shares),
		}
	case LogTypeReplace:
		return DepthChange{
			Side:     log.Side,
			Price:    log.OldPrice,
			SizeDiff: -int64(log.OldShares),
		}
	case LogTypeReject:
		// Rejected events never touched the book, so no depth change.
		return DepthChange{}
	}

	return DepthChange{}
}

// orderCountChange returns how the number of orders at the changed level moves.
func orderCountChange(log *BookLog) int {
	switch log.Type {
	case LogTypeOpen:
		return 1
	case LogTypeDelete, LogTypeReplace:
		return -1
	case LogTypeFill:
		if log.Remaining == 0 {
			return -1
		}
	}
	return 0
}
