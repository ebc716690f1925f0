// pkg/dxlink/events.go
package dxlink

import "time"

// EventKind identifies one of the market-data event families carried by the
// feed channel.
type EventKind string

const (
	KindTrade   EventKind = "Trade"
	KindQuote   EventKind = "Quote"
	KindSummary EventKind = "Summary"
)

// fieldCount returns the number of positional fields one compact record of
// this kind occupies. Unknown kinds carry only the kind label and the symbol,
// so they can be skipped without breaking the rest of the batch.
func (k EventKind) fieldCount() int {
	switch k {
	case KindTrade:
		return 5 // eventType, eventSymbol, price, dayVolume, size
	case KindQuote:
		return 6 // eventType, eventSymbol, bidPrice, askPrice, bidSize, askSize
	case KindSummary:
		return 6 // eventType, eventSymbol, dayOpenPrice, dayHighPrice, dayLowPrice, prevDayClosePrice
	default:
		return 2
	}
}

// acceptEventFields declares the per-kind field subsets requested in
// FEED_SETUP. The positional layout of compact records follows this order.
var acceptEventFields = map[EventKind][]string{
	KindTrade:   {"eventType", "eventSymbol", "price", "dayVolume", "size"},
	KindQuote:   {"eventType", "eventSymbol", "bidPrice", "askPrice", "bidSize", "askSize"},
	KindSummary: {"eventType", "eventSymbol", "dayOpenPrice", "dayHighPrice", "dayLowPrice", "prevDayClosePrice"},
}

// MarketEvent is one decoded feed record. Only the fields relevant for the
// event kind are populated; ReceivedAt is assigned by the codec at decode
// time and never taken from the wire.
type MarketEvent struct {
	Kind   EventKind `json:"eventType"`
	Symbol string    `json:"eventSymbol"`

	// Trade
	Price     float64 `json:"price,omitempty"`
	DayVolume float64 `json:"dayVolume,omitempty"`
	Size      float64 `json:"size,omitempty"`

	// Quote
	BidPrice float64 `json:"bidPrice,omitempty"`
	AskPrice float64 `json:"askPrice,omitempty"`
	BidSize  float64 `json:"bidSize,omitempty"`
	AskSize  float64 `json:"askSize,omitempty"`

	// Summary
	DayOpenPrice      float64 `json:"dayOpenPrice,omitempty"`
	DayHighPrice      float64 `json:"dayHighPrice,omitempty"`
	DayLowPrice       float64 `json:"dayLowPrice,omitempty"`
	PrevDayClosePrice float64 `json:"prevDayClosePrice,omitempty"`

	ReceivedAt time.Time `json:"receivedAt"`
}
