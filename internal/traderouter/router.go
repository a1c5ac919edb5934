// Package traderouter implements the Trade Router: it classifies each
// incoming aggregate trade by aggressor side, assigns it to a bucket's
// time-windowed deque, and answers recent-volume queries for the Signal
// Detector.
//
// Grounded on the teacher's internal/bus/bus.go for the single-writer
// fan-in shape (one task writes the deques; reads from the depth-stream task
// go through the Router's mutex) and on python-binance's
// get_volume_by_price_range for the nearest-key fallback lookup used when a
// query bucket has no resident trades of its own.
package traderouter

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderflow/futures-core/internal/decimalutil"
	"github.com/orderflow/futures-core/internal/model"
)

type entry struct {
	tsSec int64
	qty   decimal.Decimal
}

type bucketDeques struct {
	buy  []entry
	sell []entry
}

// Router owns all per-bucket trade deques. Route/PruneAll are driven by the
// aggTrade task while RecentBuyVolume/RecentSellVolume are read from the
// depth-stream task's signal-processing step each round, so all exported
// methods take mu to make that one genuine cross-goroutine access safe.
type Router struct {
	mu            sync.Mutex
	stepScaled    int64
	confirmWindow time.Duration
	buckets       map[int64]*bucketDeques
	fallback      bucketDeques
}

// New constructs a Router for the given scaled bucket step (the same
// step_scaled the Bucket Aggregator is currently using) and confirmWindow
// (config.Config.ConfirmWindow), the cutoff Route/PruneAll prune entries
// against.
func New(stepScaled int64, confirmWindow time.Duration) *Router {
	if stepScaled < 1 {
		stepScaled = 1
	}
	return &Router{
		stepScaled:    stepScaled,
		confirmWindow: confirmWindow,
		buckets:       make(map[int64]*bucketDeques),
	}
}

// SetStepScaled updates the bucket width used for routing new trades.
// Existing deques keyed under the old step are left in place; they will
// simply age out via pruning as the Aggregator's width shifts with
// volatility.
func (r *Router) SetStepScaled(stepScaled int64) {
	if stepScaled < 1 {
		stepScaled = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepScaled = stepScaled
}

// KnownBucketIndex reports whether idx currently has a resident deque pair.
func (r *Router) KnownBucketIndex(idx int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.buckets[idx]
	return ok
}

// EnsureBucket registers idx as known, even with empty deques, so Route can
// distinguish "known but empty" from "never observed" per §4.F.
func (r *Router) EnsureBucket(idx int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buckets[idx]; !ok {
		r.buckets[idx] = &bucketDeques{}
	}
}

// Route classifies and files one trade. now is the wall-clock time used for
// pruning, passed explicitly so tests are deterministic.
func (r *Router) Route(t model.Trade, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := decimalutil.BucketIndex(decimalutil.ScaledPrice(t.Price), r.stepScaled)
	e := entry{tsSec: t.TimestampSec, qty: t.Quantity}

	bd, known := r.buckets[idx]
	if !known {
		r.appendAndPrune(&r.fallback, t.Side, e, now)
		return
	}
	r.appendAndPrune(bd, t.Side, e, now)
}

func (r *Router) appendAndPrune(bd *bucketDeques, side model.TradeSide, e entry, now time.Time) {
	cutoff := now.Add(-r.confirmWindow).Unix()
	if side == model.BuyerInitiated {
		bd.buy = append(bd.buy, e)
		bd.buy = pruneBefore(bd.buy, cutoff)
	} else {
		bd.sell = append(bd.sell, e)
		bd.sell = pruneBefore(bd.sell, cutoff)
	}
}

func pruneBefore(entries []entry, cutoffSec int64) []entry {
	i := 0
	for i < len(entries) && entries[i].tsSec < cutoffSec {
		i++
	}
	if i == 0 {
		return entries
	}
	return append([]entry(nil), entries[i:]...)
}

// PruneAll drops stale entries from every bucket as of now, even buckets
// that have received no new trades. Used to satisfy the invariant that an
// idle bucket's deques drain to empty after the configured confirm window.
func (r *Router) PruneAll(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.confirmWindow).Unix()
	for _, bd := range r.buckets {
		bd.buy = pruneBefore(bd.buy, cutoff)
		bd.sell = pruneBefore(bd.sell, cutoff)
	}
	r.fallback.buy = pruneBefore(r.fallback.buy, cutoff)
	r.fallback.sell = pruneBefore(r.fallback.sell, cutoff)
}

// RecentBuyVolume sums the buyer-initiated deque for idx. If idx has no
// resident deque, falls back to the nearest known bucket index, provided its
// distance in price is within half a bucket step; otherwise returns zero.
func (r *Router) RecentBuyVolume(idx int64) decimal.Decimal {
	return r.recentVolume(idx, true)
}

// RecentSellVolume sums the seller-initiated deque for idx, with the same
// nearest-bucket fallback as RecentBuyVolume.
func (r *Router) RecentSellVolume(idx int64) decimal.Decimal {
	return r.recentVolume(idx, false)
}

func (r *Router) recentVolume(idx int64, buy bool) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bd, ok := r.buckets[idx]; ok {
		return sumQty(sideEntries(bd, buy))
	}
	nearest, dist, ok := r.nearestBucket(idx)
	if !ok {
		return decimal.Zero
	}
	// dist is already in index units, so scaledDist is always a multiple of
	// stepScaled and can never fall within half a step; this branch is
	// unreachable for index-keyed storage and is kept only because it
	// matches the spec's literal distance rule.
	half := r.stepScaled / 2
	if half < 1 {
		half = 0
	}
	scaledDist := dist * r.stepScaled
	if scaledDist > half {
		return decimal.Zero
	}
	return sumQty(sideEntries(nearest, buy))
}

func sideEntries(bd *bucketDeques, buy bool) []entry {
	if buy {
		return bd.buy
	}
	return bd.sell
}

func sumQty(entries []entry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.qty)
	}
	return sum
}

// nearestBucket finds the bucket index, among currently resident buckets,
// closest to idx. Distance is returned in bucket-index units (not price).
func (r *Router) nearestBucket(idx int64) (*bucketDeques, int64, bool) {
	if len(r.buckets) == 0 {
		return nil, 0, false
	}
	keys := make([]int64, 0, len(r.buckets))
	for k := range r.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return abs64(keys[i]-idx) < abs64(keys[j]-idx)
	})
	best := keys[0]
	return r.buckets[best], abs64(best - idx), true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
