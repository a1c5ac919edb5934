// Package bucket implements the Bucket Aggregator: a pure function that
// partitions a BookState snapshot into fixed-width price buckets sized by the
// current volatility ratio, summing resting liquidity per side per bucket.
//
// Stateless by design — the aggregator keeps no state beyond the snapshot and
// ratio passed in on each call. Grounded on python-binance's
// orderbook_manager.get_volume_distribution (iterate the sorted ladder,
// early-terminate once price exits the requested range) and on the scaled
// integer bucket math already centralized in internal/decimalutil.
package bucket

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/orderflow/futures-core/internal/decimalutil"
	"github.com/orderflow/futures-core/internal/model"
)

// ErrEmptyBook is returned when both sides of the snapshot are empty, so no
// mid price can be determined.
var ErrEmptyBook = errors.New("bucket: book snapshot has no levels on either side")

// Aggregate partitions snap into buckets sized by ratio (the Volatility
// Estimator's current realized-volatility ratio) and returns them ordered by
// ascending bucket index, covering the full observed price span. The
// returned stepScaled is the exact scaled bucket width used, so that callers
// needing bucket indices outside this call (the Trade Router) key on
// precisely the same width rather than reconstructing it from Start/End.
func Aggregate(snap model.BookState, ratio float64) (buckets []model.BucketVolume, stepScaled int64, err error) {
	mid, err := midPrice(snap)
	if err != nil {
		return nil, 0, err
	}

	width := mid.Mul(decimal.NewFromFloat(ratio))
	stepScaled = widthToStepScaled(width)

	minPrice, maxPrice, ok := priceSpan(snap)
	if !ok {
		return nil, 0, ErrEmptyBook
	}

	minIdx := decimalutil.BucketIndex(decimalutil.ScaledPrice(minPrice), stepScaled)
	maxIdx := decimalutil.BucketIndex(decimalutil.ScaledPrice(maxPrice), stepScaled)

	n := int(maxIdx-minIdx) + 1
	if n <= 0 {
		n = 1
	}
	buckets = make([]model.BucketVolume, n)
	for i := range buckets {
		idx := minIdx + int64(i)
		start, end := decimalutil.BucketBounds(idx, stepScaled)
		buckets[i] = model.BucketVolume{Index: idx, Start: start, End: end}
	}

	accumulateSide(buckets, snap.Bids, stepScaled, minIdx, maxIdx, true)
	accumulateSide(buckets, snap.Asks, stepScaled, minIdx, maxIdx, false)

	return buckets, stepScaled, nil
}

func midPrice(snap model.BookState) (decimal.Decimal, error) {
	bestBid, hasBid := snap.BestBid()
	bestAsk, hasAsk := snap.BestAsk()
	switch {
	case hasBid && hasAsk:
		return bestBid.Price.Add(bestAsk.Price).Div(decimal.NewFromInt(2)), nil
	case hasBid:
		return bestBid.Price, nil
	case hasAsk:
		return bestAsk.Price, nil
	default:
		return decimal.Decimal{}, ErrEmptyBook
	}
}

func widthToStepScaled(width decimal.Decimal) int64 {
	scaled := width.Mul(decimal.NewFromInt(decimalutil.Scale)).Round(0).IntPart()
	if scaled < 1 {
		return 1
	}
	return scaled
}

// priceSpan returns the min and max price across both sides of the ladder.
// Bids/asks are each sorted (bids descending, asks ascending), so the span
// endpoints are simply the first/last elements of each slice.
func priceSpan(snap model.BookState) (min, max decimal.Decimal, ok bool) {
	var candidates []decimal.Decimal
	if len(snap.Bids) > 0 {
		candidates = append(candidates, snap.Bids[0].Price, snap.Bids[len(snap.Bids)-1].Price)
	}
	if len(snap.Asks) > 0 {
		candidates = append(candidates, snap.Asks[0].Price, snap.Asks[len(snap.Asks)-1].Price)
	}
	if len(candidates) == 0 {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	min, max = candidates[0], candidates[0]
	for _, c := range candidates[1:] {
		if c.LessThan(min) {
			min = c
		}
		if c.GreaterThan(max) {
			max = c
		}
	}
	return min, max, true
}

// accumulateSide assigns each resting level to its bucket, terminating early
// once the level's price falls outside [minIdx, maxIdx]. Levels are walked in
// the ladder's natural sorted order (bids descending, asks ascending), so
// once a level is out of range every subsequent level on that side is too.
func accumulateSide(buckets []model.BucketVolume, levels []model.PriceLevel, stepScaled int64, minIdx, maxIdx int64, isBid bool) {
	for _, lvl := range levels {
		idx := decimalutil.BucketIndex(decimalutil.ScaledPrice(lvl.Price), stepScaled)
		if idx < minIdx || idx > maxIdx {
			break
		}
		pos := idx - minIdx
		if isBid {
			buckets[pos].BidVol = buckets[pos].BidVol.Add(lvl.Quantity)
		} else {
			buckets[pos].AskVol = buckets[pos].AskVol.Add(lvl.Quantity)
		}
	}
}
