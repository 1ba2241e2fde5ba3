package itch

import "fmt"

const (
	// HeaderLength is the size of the big-endian length prefix in front of every message.
	HeaderLength = 2

	// MaxMessageLength is the length of the largest ITCH 5.0 message (NOII).
	MaxMessageLength = 50

	// DefaultBufferSize is the read buffer used when none is configured.
	DefaultBufferSize = 64 * 1024

	timestampMask = 1<<48 - 1
)

// Type is the one-byte message discriminant at offset 0 of every payload.
type Type byte

const (
	TypeSystemEvent               Type = 'S'
	TypeStockDirectory            Type = 'R'
	TypeStockTradingAction        Type = 'H'
	TypeRegSHORestriction         Type = 'Y'
	TypeMarketParticipantPosition Type = 'L'
	TypeMWCBDeclineLevel          Type = 'V'
	TypeMWCBStatus                Type = 'W'
	TypeIPOQuotingPeriodUpdate    Type = 'K'
	TypeLULDAuctionCollar         Type = 'J'
	TypeOperationalHalt           Type = 'h'
	TypeAddOrder                  Type = 'A'
	TypeAddOrderAttributed        Type = 'F'
	TypeOrderExecuted             Type = 'E'
	TypeOrderExecutedWithPrice    Type = 'C'
	TypeOrderCancel               Type = 'X'
	TypeOrderDelete               Type = 'D'
	TypeOrderReplace              Type = 'U'
	TypeTrade                     Type = 'P'
	TypeCrossTrade                Type = 'Q'
	TypeBrokenTrade               Type = 'B'
	TypeNOII                      Type = 'I'
	TypeRetailInterest            Type = 'N'
	TypeDirectListing             Type = 'O'
)

// lengths holds the exact payload length (type byte included) of every known
// message type. Zero means the type is unknown.
var lengths = [256]uint8{
	TypeSystemEvent:               12,
	TypeStockDirectory:            39,
	TypeStockTradingAction:        25,
	TypeRegSHORestriction:         20,
	TypeMarketParticipantPosition: 26,
	TypeMWCBDeclineLevel:          35,
	TypeMWCBStatus:                12,
	TypeIPOQuotingPeriodUpdate:    28,
	TypeLULDAuctionCollar:         35,
	TypeOperationalHalt:           21,
	TypeAddOrder:                  36,
	TypeAddOrderAttributed:        40,
	TypeOrderExecuted:             31,
	TypeOrderExecutedWithPrice:    36,
	TypeOrderCancel:               23,
	TypeOrderDelete:               19,
	TypeOrderReplace:              35,
	TypeTrade:                     44,
	TypeCrossTrade:                40,
	TypeBrokenTrade:               19,
	TypeNOII:                      50,
	TypeRetailInterest:            20,
	TypeDirectListing:             48,
}

// Types lists every message type the decoder understands.
var Types = []Type{
	TypeSystemEvent, TypeStockDirectory, TypeStockTradingAction, TypeRegSHORestriction,
	TypeMarketParticipantPosition, TypeMWCBDeclineLevel, TypeMWCBStatus, TypeIPOQuotingPeriodUpdate,
	TypeLULDAuctionCollar, TypeOperationalHalt, TypeAddOrder, TypeAddOrderAttributed,
	TypeOrderExecuted, TypeOrderExecutedWithPrice, TypeOrderCancel, TypeOrderDelete,
	TypeOrderReplace, TypeTrade, TypeCrossTrade, TypeBrokenTrade,
	TypeNOII, TypeRetailInterest, TypeDirectListing,
}

// Length returns the declared payload length of t.
func Length(t Type) (int, bool) {
	n := lengths[t]
	return int(n), n != 0
}

func (t Type) String() string {
	switch t {
	case TypeSystemEvent:
		return "system_event"
	case TypeStockDirectory:
		return "stock_directory"
	case TypeStockTradingAction:
		return "stock_trading_action"
	case TypeRegSHORestriction:
		return "reg_sho_restriction"
	case TypeMarketParticipantPosition:
		return "market_participant_position"
	case TypeMWCBDeclineLevel:
		return "mwcb_decline_level"
	case TypeMWCBStatus:
		return "mwcb_status"
	case TypeIPOQuotingPeriodUpdate:
		return "ipo_quoting_period_update"
	case TypeLULDAuctionCollar:
		return "luld_auction_collar"
	case TypeOperationalHalt:
		return "operational_halt"
	case TypeAddOrder:
		return "add_order"
	case TypeAddOrderAttributed:
		return "add_order_attributed"
	case TypeOrderExecuted:
		return "order_executed"
	case TypeOrderExecutedWithPrice:
		return "order_executed_with_price"
	case TypeOrderCancel:
		return "order_cancel"
	case TypeOrderDelete:
		return "order_delete"
	case TypeOrderReplace:
		return "order_replace"
	case TypeTrade:
		return "trade"
	case TypeCrossTrade:
		return "cross_trade"
	case TypeBrokenTrade:
		return "broken_trade"
	case TypeNOII:
		return "noii"
	case TypeRetailInterest:
		return "retail_interest"
	case TypeDirectListing:
		return "direct_listing"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}
