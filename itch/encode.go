package itch

import "fmt"

// Encode returns the wire payload of m, type byte first and without the
// length prefix. Order-flow, trade, system event, stock directory and
// trading action records are supported.
func Encode(m Message) ([]byte, error) {
	b := make([]byte, MaxMessageLength)

	switch v := m.(type) {
	case SystemEvent:
		putHeader(b, TypeSystemEvent, v.Header)
		b[11] = v.EventCode
	case StockDirectory:
		putHeader(b, TypeStockDirectory, v.Header)
		copy(b[11:19], v.Stock[:])
		b[19] = v.MarketCategory
		b[20] = v.FinancialStatus
		be.PutUint32(b[21:25], v.RoundLotSize)
		b[25] = v.RoundLotsOnly
		b[26] = v.IssueClassification
		b[27], b[28] = v.IssueSubType[0], v.IssueSubType[1]
		b[29] = v.Authenticity
		b[30] = v.ShortSaleThreshold
		b[31] = v.IPOFlag
		b[32] = v.LULDReferencePriceTier
		b[33] = v.ETPFlag
		be.PutUint32(b[34:38], v.ETPLeverageFactor)
		b[38] = v.InverseIndicator
	case StockTradingAction:
		putHeader(b, TypeStockTradingAction, v.Header)
		copy(b[11:19], v.Stock[:])
		b[19] = v.TradingState
		b[20] = v.Reserved
		copy(b[21:25], v.Reason[:])
	case AddOrder:
		putAddOrder(b, TypeAddOrder, v)
	case AddOrderAttributed:
		putAddOrder(b, TypeAddOrderAttributed, v.AddOrder)
		copy(b[36:40], v.Attribution[:])
	case OrderExecuted:
		putHeader(b, TypeOrderExecuted, v.Header)
		be.PutUint64(b[11:19], v.Ref)
		be.PutUint32(b[19:23], v.Shares)
		be.PutUint64(b[23:31], v.MatchNumber)
	case OrderExecutedWithPrice:
		putHeader(b, TypeOrderExecutedWithPrice, v.Header)
		be.PutUint64(b[11:19], v.Ref)
		be.PutUint32(b[19:23], v.Shares)
		be.PutUint64(b[23:31], v.MatchNumber)
		b[31] = v.Printable
		be.PutUint32(b[32:36], v.Price)
	case OrderCancel:
		putHeader(b, TypeOrderCancel, v.Header)
		be.PutUint64(b[11:19], v.Ref)
		be.PutUint32(b[19:23], v.Shares)
	case OrderDelete:
		putHeader(b, TypeOrderDelete, v.Header)
		be.PutUint64(b[11:19], v.Ref)
	case OrderReplace:
		putHeader(b, TypeOrderReplace, v.Header)
		be.PutUint64(b[11:19], v.OriginalRef)
		be.PutUint64(b[19:27], v.NewRef)
		be.PutUint32(b[27:31], v.Shares)
		be.PutUint32(b[31:35], v.Price)
	case Trade:
		putHeader(b, TypeTrade, v.Header)
		be.PutUint64(b[11:19], v.Ref)
		b[19] = v.BuySell
		be.PutUint32(b[20:24], v.Shares)
		copy(b[24:32], v.Stock[:])
		be.PutUint32(b[32:36], v.Price)
		be.PutUint64(b[36:44], v.MatchNumber)
	case CrossTrade:
		putHeader(b, TypeCrossTrade, v.Header)
		be.PutUint64(b[11:19], v.Shares)
		copy(b[19:27], v.Stock[:])
		be.PutUint32(b[27:31], v.Price)
		be.PutUint64(b[31:39], v.MatchNumber)
		b[39] = v.CrossType
	case BrokenTrade:
		putHeader(b, TypeBrokenTrade, v.Header)
		be.PutUint64(b[11:19], v.MatchNumber)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, m.MessageType())
	}
	n, _ := Length(Type(b[0]))
	return b[:n], nil
}

// AppendFrame appends payload to dst behind its big-endian length prefix.
func AppendFrame(dst []byte, payload []byte) []byte {
	dst = append(dst, byte(len(payload)>>8), byte(len(payload)))
	return append(dst, payload...)
}

// AppendMessage encodes m and appends it to dst as one frame.
func AppendMessage(dst []byte, m Message) ([]byte, error) {
	payload, err := Encode(m)
	if err != nil {
		return dst, err
	}
	return AppendFrame(dst, payload), nil
}

// AppendEndOfSession appends the zero-length frame that terminates a session.
func AppendEndOfSession(dst []byte) []byte {
	return append(dst, 0, 0)
}

func putHeader(b []byte, t Type, h Header) {
	b[0] = byte(t)
	be.PutUint16(b[1:3], h.Locate)
	be.PutUint16(b[3:5], h.Tracking)
	ts := h.Timestamp & timestampMask
	b[5] = byte(ts >> 40)
	b[6] = byte(ts >> 32)
	be.PutUint32(b[7:11], uint32(ts))
}

func putAddOrder(b []byte, t Type, v AddOrder) {
	putHeader(b, t, v.Header)
	be.PutUint64(b[11:19], v.Ref)
	b[19] = v.BuySell
	be.PutUint32(b[20:24], v.Shares)
	copy(b[24:32], v.Stock[:])
	be.PutUint32(b[32:36], v.Price)
}
