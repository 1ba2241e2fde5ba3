package itch

import "bytes"

// Message is a decoded ITCH record. The set of implementations is closed:
// only the structs in this package satisfy it.
type Message interface {
	MessageType() Type
	StockLocate() uint16
	MessageHeader() Header
	isMessage()
}

// Header holds the fields shared by every message.
type Header struct {
	Type      Type
	Locate    uint16
	Tracking  uint16
	Timestamp uint64 // nanoseconds since midnight
}

func (h Header) MessageType() Type     { return h.Type }
func (h Header) StockLocate() uint16   { return h.Locate }
func (h Header) MessageHeader() Header { return h }
func (Header) isMessage()              {}

// Stock is a right space-padded ticker symbol.
type Stock [8]byte

func (s Stock) String() string {
	return string(bytes.TrimRight(s[:], " "))
}

// NewStock pads symbol to the wire width, truncating longer input.
func NewStock(symbol string) Stock {
	var s Stock
	for i := range s {
		s[i] = ' '
	}
	copy(s[:], symbol)
	return s
}

const (
	SideBuy  byte = 'B'
	SideSell byte = 'S'
)

type SystemEvent struct {
	Header
	EventCode byte
}

type StockDirectory struct {
	Header
	Stock                  Stock
	MarketCategory         byte
	FinancialStatus        byte
	RoundLotSize           uint32
	RoundLotsOnly          byte
	IssueClassification    byte
	IssueSubType           [2]byte
	Authenticity           byte
	ShortSaleThreshold     byte
	IPOFlag                byte
	LULDReferencePriceTier byte
	ETPFlag                byte
	ETPLeverageFactor      uint32
	InverseIndicator       byte
}

type StockTradingAction struct {
	Header
	Stock        Stock
	TradingState byte
	Reserved     byte
	Reason       [4]byte
}

type RegSHORestriction struct {
	Header
	Stock  Stock
	Action byte
}

type MarketParticipantPosition struct {
	Header
	MPID               [4]byte
	Stock              Stock
	PrimaryMarketMaker byte
	MarketMakerMode    byte
	ParticipantState   byte
}

type MWCBDeclineLevel struct {
	Header
	Level1 uint64
	Level2 uint64
	Level3 uint64
}

type MWCBStatus struct {
	Header
	BreachedLevel byte
}

type IPOQuotingPeriodUpdate struct {
	Header
	Stock            Stock
	ReleaseTime      uint32
	ReleaseQualifier byte
	IPOPrice         uint32
}

type LULDAuctionCollar struct {
	Header
	Stock          Stock
	ReferencePrice uint32
	UpperPrice     uint32
	LowerPrice     uint32
	Extension      uint32
}

type OperationalHalt struct {
	Header
	Stock      Stock
	MarketCode byte
	Action     byte
}

// AddOrder announces a new displayed order ('A').
type AddOrder struct {
	Header
	Ref     uint64
	BuySell byte
	Shares  uint32
	Stock   Stock
	Price   uint32
}

// AddOrderAttributed is an AddOrder carrying a market participant id ('F').
type AddOrderAttributed struct {
	AddOrder
	Attribution [4]byte
}

type OrderExecuted struct {
	Header
	Ref         uint64
	Shares      uint32
	MatchNumber uint64
}

type OrderExecutedWithPrice struct {
	Header
	Ref         uint64
	Shares      uint32
	MatchNumber uint64
	Printable   byte
	Price       uint32
}

type OrderCancel struct {
	Header
	Ref    uint64
	Shares uint32
}

type OrderDelete struct {
	Header
	Ref uint64
}

type OrderReplace struct {
	Header
	OriginalRef uint64
	NewRef      uint64
	Shares      uint32
	Price       uint32
}

// Trade reports an execution against a non-displayed order ('P').
type Trade struct {
	Header
	Ref         uint64
	BuySell     byte
	Shares      uint32
	Stock       Stock
	Price       uint32
	MatchNumber uint64
}

type CrossTrade struct {
	Header
	Shares      uint64
	Stock       Stock
	Price       uint32
	MatchNumber uint64
	CrossType   byte
}

type BrokenTrade struct {
	Header
	MatchNumber uint64
}

type NOII struct {
	Header
	PairedShares          uint64
	ImbalanceShares       uint64
	ImbalanceDirection    byte
	Stock                 Stock
	FarPrice              uint32
	NearPrice             uint32
	CurrentReferencePrice uint32
	CrossType             byte
	PriceVariation        byte
}

type RetailInterest struct {
	Header
	Stock        Stock
	InterestFlag byte
}

type DirectListing struct {
	Header
	Stock              Stock
	OpenEligibility    byte
	MinAllowablePrice  uint32
	MaxAllowablePrice  uint32
	NearExecutionPrice uint32
	NearExecutionTime  uint64
	LowerCollar        uint32
	UpperCollar        uint32
}
