// Package decimalutil holds the scaled-integer helpers the Bucket
// Aggregator and Trade Router rely on. Bucket boundaries are computed in
// scaled int64 arithmetic (SCALE=1000), never float64, so that repeated
// snapshots deterministically agree on which bucket a price belongs to.
package decimalutil

import (
	"github.com/shopspring/decimal"
)

// Scale is the fixed-point scale used for bucket-index math: a price is
// multiplied by Scale and truncated to an integer before dividing by the
// (also scaled) bucket width.
const Scale = 1000

// ScaledPrice returns floor(price * Scale) as an int64.
func ScaledPrice(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(Scale)).IntPart()
}

// BucketIndex returns floor(scaledPrice / stepScaled). stepScaled must be
// >= 1; callers are responsible for the max(1, ...) floor from §4.E.
func BucketIndex(scaledPrice, stepScaled int64) int64 {
	if stepScaled <= 0 {
		stepScaled = 1
	}
	if scaledPrice >= 0 {
		return scaledPrice / stepScaled
	}
	// floor division for negative values (not expected for prices, kept for
	// defensiveness since integer division truncates toward zero in Go).
	q := scaledPrice / stepScaled
	if scaledPrice%stepScaled != 0 {
		q--
	}
	return q
}

// BucketBounds returns the [start, end) price interval for a bucket index
// given the scaled step width.
func BucketBounds(idx, stepScaled int64) (start, end decimal.Decimal) {
	scale := decimal.NewFromInt(Scale)
	start = decimal.NewFromInt(idx * stepScaled).Div(scale)
	end = decimal.NewFromInt((idx + 1) * stepScaled).Div(scale)
	return start, end
}

// Mean returns the arithmetic mean of vs, or (zero, false) if vs is empty.
func Mean(vs []decimal.Decimal) (decimal.Decimal, bool) {
	if len(vs) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, v := range vs {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(vs)))), true
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
