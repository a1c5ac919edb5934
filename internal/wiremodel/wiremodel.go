// Package wiremodel mirrors the Binance USD-M futures JSON payloads this
// core consumes: depth diffs, aggregate trades, REST depth snapshots and
// 1-minute klines. Decoding and decimal conversion live next to the structs
// so every caller gets identical parsing semantics.
package wiremodel

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orderflow/futures-core/internal/model"
)

// DepthEvent is the combined-stream-unwrapped depthUpdate payload.
type DepthEvent struct {
	EventType         string     `json:"e"`
	EventTime         int64      `json:"E"`
	Symbol            string     `json:"s"`
	FirstUpdateID     uint64     `json:"U"`
	FinalUpdateID     uint64     `json:"u"`
	PrevFinalUpdateID uint64     `json:"pu"`
	Bids              [][]string `json:"b"`
	Asks              [][]string `json:"a"`
}

// ErrorFrame is the shape of a stream-level error event.
type ErrorFrame struct {
	EventType string `json:"e"`
	Type      string `json:"type"`
	Message   string `json:"m"`
}

// IsError reports whether raw looks like {"e":"error",...}.
func IsError(raw []byte) bool {
	var probe struct {
		E string `json:"e"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.E == "error"
}

// ToDiff converts the wire event into the domain DepthDiff, parsing price
// strings with decimal.NewFromString so exchange-supplied precision survives
// exactly (no float64 round-trip).
func (e DepthEvent) ToDiff() (model.DepthDiff, error) {
	bids, err := parseLevels(e.Bids)
	if err != nil {
		return model.DepthDiff{}, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(e.Asks)
	if err != nil {
		return model.DepthDiff{}, fmt.Errorf("parse asks: %w", err)
	}
	return model.DepthDiff{
		FirstUpdateID:     e.FirstUpdateID,
		FinalUpdateID:     e.FinalUpdateID,
		PrevFinalUpdateID: e.PrevFinalUpdateID,
		Bids:              bids,
		Asks:              asks,
	}, nil
}

func parseLevels(raw [][]string) ([]model.PriceLevel, error) {
	out := make([]model.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		price, err := decimal.NewFromString(lvl[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", lvl[0], err)
		}
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			return nil, fmt.Errorf("qty %q: %w", lvl[1], err)
		}
		out = append(out, model.PriceLevel{Price: price, Quantity: qty})
	}
	return out, nil
}

// AggTradeEvent is the combined-stream-unwrapped aggTrade payload.
type AggTradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	AggID     int64  `json:"a"`
	Price     string `json:"p"`
	Qty       string `json:"q"`
	TradeTime int64  `json:"T"`
	BuyerMaker bool  `json:"m"`
}

// ToTrade converts the wire event into the domain Trade. Per Binance
// semantics, m==true means the buyer was the resting (maker) order, so the
// aggressor was the seller: SELLER_INITIATED. m==false: BUYER_INITIATED.
func (e AggTradeEvent) ToTrade() (model.Trade, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return model.Trade{}, fmt.Errorf("price %q: %w", e.Price, err)
	}
	qty, err := decimal.NewFromString(e.Qty)
	if err != nil {
		return model.Trade{}, fmt.Errorf("qty %q: %w", e.Qty, err)
	}
	side := model.BuyerInitiated
	if e.BuyerMaker {
		side = model.SellerInitiated
	}
	return model.Trade{
		ID:           e.AggID,
		Price:        price,
		Quantity:     qty,
		TimestampSec: e.TradeTime / 1000,
		Side:         side,
	}, nil
}

// CombinedEnvelope wraps a raw stream payload under {stream, data}.
type CombinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Unwrap returns the inner `data` payload if raw is a combined-stream
// envelope, else returns raw unchanged.
func Unwrap(raw []byte) []byte {
	var env CombinedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	if len(env.Data) == 0 {
		return raw
	}
	return env.Data
}

// DepthSnapshot is the REST /fapi/v1/depth response.
type DepthSnapshot struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// ToLevels parses bids/asks into domain PriceLevels.
func (s DepthSnapshot) ToLevels() (bids, asks []model.PriceLevel, err error) {
	bids, err = parseLevels(s.Bids)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot bids: %w", err)
	}
	asks, err = parseLevels(s.Asks)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot asks: %w", err)
	}
	return bids, asks, nil
}

// Kline is one element of the REST /fapi/v1/klines array-of-arrays
// response. Only the fields this core needs are decoded; Binance returns 12
// columns per row but index 2=high, 3=low, 4=close are the only ones used.
type Kline struct {
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// ParseKlines decodes the raw array-of-arrays kline response.
func ParseKlines(raw [][]interface{}) ([]Kline, error) {
	out := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 5 {
			continue
		}
		high, err := toDecimal(row[2])
		if err != nil {
			return nil, fmt.Errorf("high: %w", err)
		}
		low, err := toDecimal(row[3])
		if err != nil {
			return nil, fmt.Errorf("low: %w", err)
		}
		cls, err := toDecimal(row[4])
		if err != nil {
			return nil, fmt.Errorf("close: %w", err)
		}
		out = append(out, Kline{High: high, Low: low, Close: cls})
	}
	return out, nil
}

func toDecimal(v interface{}) (decimal.Decimal, error) {
	s, ok := v.(string)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("unexpected kline field type %T", v)
	}
	return decimal.NewFromString(s)
}
