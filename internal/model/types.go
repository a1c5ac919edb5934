// Package model holds the core data types shared across the order book
// synchronizer and signal engine: price levels, book state, depth diffs,
// buckets, trades and signals. Types here carry no behavior beyond small
// value-type helpers — the owning packages (ladder, syncbook, bucket, signal)
// hold the actual state machines.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one side of the ladder.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// PriceLevel is a single resting quote: price and quantity. Quantity zero
// means "level removed" on ingest and is never stored in the ladder.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// DepthDiff is one incremental depth update, identified by the Binance-style
// (U, u, pu) update-id triple.
type DepthDiff struct {
	FirstUpdateID     uint64 // U
	FinalUpdateID     uint64 // u
	PrevFinalUpdateID uint64 // pu
	Bids              []PriceLevel
	Asks              []PriceLevel
}

// BookState is an immutable snapshot of the ladder at a point in applied
// history: top-of-book levels plus the update id and wall-clock time it was
// applied at. Consumers receive copies of this, never a live reference.
type BookState struct {
	Symbol         string
	Bids           []PriceLevel // descending by price
	Asks           []PriceLevel // ascending by price
	LastUpdateID   uint64
	SnapshotTime   time.Time
	AppliedAt      time.Time
}

// BestBid returns the highest bid level, if any.
func (b BookState) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level, if any.
func (b BookState) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// TradeSide classifies the aggressor side of an executed trade.
type TradeSide int

const (
	BuyerInitiated TradeSide = iota
	SellerInitiated
)

// Trade is one aggregate-trade print.
type Trade struct {
	ID           int64
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	TimestampSec int64
	Side         TradeSide
}

// BucketVolume is one row of the Bucket Aggregator's output: a contiguous
// price interval plus the resting liquidity observed on each side.
type BucketVolume struct {
	Index   int64 // floor(price*1000/stepScaled)
	Start   decimal.Decimal
	End     decimal.Decimal
	BidVol  decimal.Decimal
	AskVol  decimal.Decimal
}

// SignalKind enumerates the four discrete directional-pressure events.
type SignalKind int

const (
	Buy SignalKind = iota
	StrongBuy
	Sell
	StrongSell
)

func (k SignalKind) String() string {
	switch k {
	case Buy:
		return "BUY"
	case StrongBuy:
		return "STRONG_BUY"
	case Sell:
		return "SELL"
	case StrongSell:
		return "STRONG_SELL"
	default:
		return "UNKNOWN"
	}
}

// Signal is one emitted directional-pressure event.
type Signal struct {
	Kind             SignalKind
	BucketStart      decimal.Decimal
	BucketEnd        decimal.Decimal
	Timestamp        time.Time
	BidRate          float64
	AskRate          float64
	RestingVolSide   decimal.Decimal
	TradeVolCombined decimal.Decimal
}
