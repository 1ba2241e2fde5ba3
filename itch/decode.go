package itch

import (
	"encoding/binary"
	"fmt"
)

var be = binary.BigEndian

// Decode turns one framed payload (type byte first) into its typed record.
// The payload must have exactly the length declared for its type; anything
// else means the stream is corrupt.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrLengthMismatch)
	}
	t := Type(b[0])
	n, ok := Length(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	if len(b) != n {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrLengthMismatch, t, len(b), n)
	}

	switch t {
	case TypeSystemEvent:
		return decodeSystemEvent(b), nil
	case TypeStockDirectory:
		return decodeStockDirectory(b), nil
	case TypeStockTradingAction:
		return decodeStockTradingAction(b), nil
	case TypeRegSHORestriction:
		return decodeRegSHORestriction(b), nil
	case TypeMarketParticipantPosition:
		return decodeMarketParticipantPosition(b), nil
	case TypeMWCBDeclineLevel:
		return decodeMWCBDeclineLevel(b), nil
	case TypeMWCBStatus:
		return decodeMWCBStatus(b), nil
	case TypeIPOQuotingPeriodUpdate:
		return decodeIPOQuotingPeriodUpdate(b), nil
	case TypeLULDAuctionCollar:
		return decodeLULDAuctionCollar(b), nil
	case TypeOperationalHalt:
		return decodeOperationalHalt(b), nil
	case TypeAddOrder:
		return decodeAddOrder(b), nil
	case TypeAddOrderAttributed:
		return decodeAddOrderAttributed(b), nil
	case TypeOrderExecuted:
		return decodeOrderExecuted(b), nil
	case TypeOrderExecutedWithPrice:
		return decodeOrderExecutedWithPrice(b), nil
	case TypeOrderCancel:
		return decodeOrderCancel(b), nil
	case TypeOrderDelete:
		return decodeOrderDelete(b), nil
	case TypeOrderReplace:
		return decodeOrderReplace(b), nil
	case TypeTrade:
		return decodeTrade(b), nil
	case TypeCrossTrade:
		return decodeCrossTrade(b), nil
	case TypeBrokenTrade:
		return decodeBrokenTrade(b), nil
	case TypeNOII:
		return decodeNOII(b), nil
	case TypeRetailInterest:
		return decodeRetailInterest(b), nil
	case TypeDirectListing:
		return decodeDirectListing(b), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
}

// timestamp reads the 6-byte field at offset 5 as the low 48 bits of the
// 8 bytes ending at offset 11.
func timestamp(b []byte) uint64 {
	return be.Uint64(b[3:11]) & timestampMask
}

func decodeHeader(b []byte) Header {
	return Header{
		Type:      Type(b[0]),
		Locate:    be.Uint16(b[1:3]),
		Tracking:  be.Uint16(b[3:5]),
		Timestamp: timestamp(b),
	}
}

func stock(b []byte) Stock {
	var s Stock
	copy(s[:], b[:8])
	return s
}

func decodeSystemEvent(b []byte) SystemEvent {
	return SystemEvent{Header: decodeHeader(b), EventCode: b[11]}
}

func decodeStockDirectory(b []byte) StockDirectory {
	return StockDirectory{
		Header:                 decodeHeader(b),
		Stock:                  stock(b[11:]),
		MarketCategory:         b[19],
		FinancialStatus:        b[20],
		RoundLotSize:           be.Uint32(b[21:25]),
		RoundLotsOnly:          b[25],
		IssueClassification:    b[26],
		IssueSubType:           [2]byte{b[27], b[28]},
		Authenticity:           b[29],
		ShortSaleThreshold:     b[30],
		IPOFlag:                b[31],
		LULDReferencePriceTier: b[32],
		ETPFlag:                b[33],
		ETPLeverageFactor:      be.Uint32(b[34:38]),
		InverseIndicator:       b[38],
	}
}

func decodeStockTradingAction(b []byte) StockTradingAction {
	return StockTradingAction{
		Header:       decodeHeader(b),
		Stock:        stock(b[11:]),
		TradingState: b[19],
		Reserved:     b[20],
		Reason:       [4]byte{b[21], b[22], b[23], b[24]},
	}
}

func decodeRegSHORestriction(b []byte) RegSHORestriction {
	return RegSHORestriction{Header: decodeHeader(b), Stock: stock(b[11:]), Action: b[19]}
}

func decodeMarketParticipantPosition(b []byte) MarketParticipantPosition {
	return MarketParticipantPosition{
		Header:             decodeHeader(b),
		MPID:               [4]byte{b[11], b[12], b[13], b[14]},
		Stock:              stock(b[15:]),
		PrimaryMarketMaker: b[23],
		MarketMakerMode:    b[24],
		ParticipantState:   b[25],
	}
}

func decodeMWCBDeclineLevel(b []byte) MWCBDeclineLevel {
	return MWCBDeclineLevel{
		Header: decodeHeader(b),
		Level1: be.Uint64(b[11:19]),
		Level2: be.Uint64(b[19:27]),
		Level3: be.Uint64(b[27:35]),
	}
}

func decodeMWCBStatus(b []byte) MWCBStatus {
	return MWCBStatus{Header: decodeHeader(b), BreachedLevel: b[11]}
}

func decodeIPOQuotingPeriodUpdate(b []byte) IPOQuotingPeriodUpdate {
	return IPOQuotingPeriodUpdate{
		Header:           decodeHeader(b),
		Stock:            stock(b[11:]),
		ReleaseTime:      be.Uint32(b[19:23]),
		ReleaseQualifier: b[23],
		IPOPrice:         be.Uint32(b[24:28]),
	}
}

func decodeLULDAuctionCollar(b []byte) LULDAuctionCollar {
	return LULDAuctionCollar{
		Header:         decodeHeader(b),
		Stock:          stock(b[11:]),
		ReferencePrice: be.Uint32(b[19:23]),
		UpperPrice:     be.Uint32(b[23:27]),
		LowerPrice:     be.Uint32(b[27:31]),
		Extension:      be.Uint32(b[31:35]),
	}
}

func decodeOperationalHalt(b []byte) OperationalHalt {
	return OperationalHalt{Header: decodeHeader(b), Stock: stock(b[11:]), MarketCode: b[19], Action: b[20]}
}

func decodeAddOrder(b []byte) AddOrder {
	return AddOrder{
		Header:  decodeHeader(b),
		Ref:     be.Uint64(b[11:19]),
		BuySell: b[19],
		Shares:  be.Uint32(b[20:24]),
		Stock:   stock(b[24:]),
		Price:   be.Uint32(b[32:36]),
	}
}

func decodeAddOrderAttributed(b []byte) AddOrderAttributed {
	return AddOrderAttributed{
		AddOrder:    decodeAddOrder(b),
		Attribution: [4]byte{b[36], b[37], b[38], b[39]},
	}
}

func decodeOrderExecuted(b []byte) OrderExecuted {
	return OrderExecuted{
		Header:      decodeHeader(b),
		Ref:         be.Uint64(b[11:19]),
		Shares:      be.Uint32(b[19:23]),
		MatchNumber: be.Uint64(b[23:31]),
	}
}

func decodeOrderExecutedWithPrice(b []byte) OrderExecutedWithPrice {
	return OrderExecutedWithPrice{
		Header:      decodeHeader(b),
		Ref:         be.Uint64(b[11:19]),
		Shares:      be.Uint32(b[19:23]),
		MatchNumber: be.Uint64(b[23:31]),
		Printable:   b[31],
		Price:       be.Uint32(b[32:36]),
	}
}

func decodeOrderCancel(b []byte) OrderCancel {
	return OrderCancel{
		Header: decodeHeader(b),
		Ref:    be.Uint64(b[11:19]),
		Shares: be.Uint32(b[19:23]),
	}
}

func decodeOrderDelete(b []byte) OrderDelete {
	return OrderDelete{Header: decodeHeader(b), Ref: be.Uint64(b[11:19])}
}

func decodeOrderReplace(b []byte) OrderReplace {
	return OrderReplace{
		Header:      decodeHeader(b),
		OriginalRef: be.Uint64(b[11:19]),
		NewRef:      be.Uint64(b[19:27]),
		Shares:      be.Uint32(b[27:31]),
		Price:       be.Uint32(b[31:35]),
	}
}

func decodeTrade(b []byte) Trade {
	return Trade{
		Header:      decodeHeader(b),
		Ref:         be.Uint64(b[11:19]),
		BuySell:     b[19],
		Shares:      be.Uint32(b[20:24]),
		Stock:       stock(b[24:]),
		Price:       be.Uint32(b[32:36]),
		MatchNumber: be.Uint64(b[36:44]),
	}
}

func decodeCrossTrade(b []byte) CrossTrade {
	return CrossTrade{
		Header:      decodeHeader(b),
		Shares:      be.Uint64(b[11:19]),
		Stock:       stock(b[19:]),
		Price:       be.Uint32(b[27:31]),
		MatchNumber: be.Uint64(b[31:39]),
		CrossType:   b[39],
	}
}

func decodeBrokenTrade(b []byte) BrokenTrade {
	return BrokenTrade{Header: decodeHeader(b), MatchNumber: be.Uint64(b[11:19])}
}

func decodeNOII(b []byte) NOII {
	return NOII{
		Header:                decodeHeader(b),
		PairedShares:          be.Uint64(b[11:19]),
		ImbalanceShares:       be.Uint64(b[19:27]),
		ImbalanceDirection:    b[27],
		Stock:                 stock(b[28:]),
		FarPrice:              be.Uint32(b[36:40]),
		NearPrice:             be.Uint32(b[40:44]),
		CurrentReferencePrice: be.Uint32(b[44:48]),
		CrossType:             b[48],
		PriceVariation:        b[49],
	}
}

func decodeRetailInterest(b []byte) RetailInterest {
	return RetailInterest{Header: decodeHeader(b), Stock: stock(b[11:]), InterestFlag: b[19]}
}

func decodeDirectListing(b []byte) DirectListing {
	return DirectListing{
		Header:             decodeHeader(b),
		Stock:              stock(b[11:]),
		OpenEligibility:    b[19],
		MinAllowablePrice:  be.Uint32(b[20:24]),
		MaxAllowablePrice:  be.Uint32(b[24:28]),
		NearExecutionPrice: be.Uint32(b[28:32]),
		NearExecutionTime:  be.Uint64(b[32:40]),
		LowerCollar:        be.Uint32(b[40:44]),
		UpperCollar:        be.Uint32(b[44:48]),
	}
}
