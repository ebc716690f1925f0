// pkg/dxlink/codec.go
package dxlink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// decodeFeedData translates one compact FEED_DATA payload into typed events.
//
// The payload is a flat sequence alternating [kindLabel, recordArray, ...].
// Each recordArray packs records of that kind back-to-back without
// delimiters; the fixed per-kind field count slices it into records.
// Position 0 repeats the kind label, position 1 is the symbol, the rest maps
// positionally per acceptEventFields.
//
// Decoding is best-effort: unknown kinds and malformed records are skipped
// and the rest of the batch survives. The returned events preserve wire
// order; a non-nil error reports structural damage alongside whatever was
// decoded. Every event gets its receipt timestamp assigned here.
func decodeFeedData(payload []json.RawMessage, now time.Time) ([]MarketEvent, error) {
	var (
		events []MarketEvent
		errs   int
	)

	if len(payload)%2 != 0 {
		errs++
	}

	for i := 0; i+1 < len(payload); i += 2 {
		var label string
		if err := json.Unmarshal(payload[i], &label); err != nil {
			errs++
			continue
		}
		kind := EventKind(label)

		var flat []interface{}
		if err := json.Unmarshal(payload[i+1], &flat); err != nil {
			errs++
			continue
		}

		width := kind.fieldCount()
		switch kind {
		case KindTrade, KindQuote, KindSummary:
		default:
			// unknown kind: step through at the default width and drop the
			// records, keeping the rest of the batch intact
			for j := 0; j+width <= len(flat); j += width {
				incDecodeSkip()
			}
			continue
		}
		for j := 0; j+width <= len(flat); j += width {
			ev, ok := decodeRecord(kind, flat[j:j+width], now)
			if !ok {
				incDecodeSkip()
				continue
			}
			events = append(events, ev)
			incEventDecoded(string(kind))
		}
		if len(flat)%width != 0 {
			// trailing partial record
			incDecodeSkip()
		}
	}

	if errs > 0 {
		return events, fmt.Errorf("dxlink: feed data payload partially malformed (%d section(s) skipped)", errs)
	}
	return events, nil
}

// decodeRecord maps one fixed-width positional slice onto a MarketEvent.
func decodeRecord(kind EventKind, rec []interface{}, now time.Time) (MarketEvent, bool) {
	if len(rec) < 2 {
		return MarketEvent{}, false
	}
	symbol, ok := rec[1].(string)
	if !ok || symbol == "" {
		return MarketEvent{}, false
	}

	ev := MarketEvent{
		Kind:       kind,
		Symbol:     symbol,
		ReceivedAt: now,
	}

	switch kind {
	case KindTrade:
		ev.Price = asFloat(rec[2])
		ev.DayVolume = asFloat(rec[3])
		ev.Size = asFloat(rec[4])
	case KindQuote:
		ev.BidPrice = asFloat(rec[2])
		ev.AskPrice = asFloat(rec[3])
		ev.BidSize = asFloat(rec[4])
		ev.AskSize = asFloat(rec[5])
	case KindSummary:
		ev.DayOpenPrice = asFloat(rec[2])
		ev.DayHighPrice = asFloat(rec[3])
		ev.DayLowPrice = asFloat(rec[4])
		ev.PrevDayClosePrice = asFloat(rec[5])
		// watchers treat the previous close as the reference price
		ev.Price = ev.PrevDayClosePrice
	}

	return ev, true
}

// asFloat coerces the loosely typed JSON values the feed emits. Numbers
// arrive as float64, but the peer may encode NaN and friends as strings.
func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
