// Package signal implements the Signal Detector: per-bucket resting-history
// and trade-confirmation state machines that emit discrete BUY / SELL /
// STRONG_BUY / STRONG_SELL events.
//
// The three-stage candidate -> persistence -> confirmation algorithm is
// grounded on python-binance's futures_signal_detector.py example (the
// historical 1.2/0.9 thresholds there are superseded here by the values this
// system specifies), and the stateful zero-alloc-per-sample shape of the
// per-bucket state mirrors the teacher's internal/pressure/score.go Scorer.
package signal

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderflow/futures-core/internal/model"
	"github.com/orderflow/futures-core/internal/ringbuffer"
)

// Thresholds carries every operator-tunable parameter for one Detector,
// sourced from config.SignalConfig and config.BufferConfig. There are no
// package-level defaults: a Detector is only ever built from a validated
// Config, so a missing field here is a wiring bug, not a fallback case.
type Thresholds struct {
	// BuyRate / SellRate: the own-side rate a bucket must clear to become a
	// buy/sell candidate.
	BuyRate  float64
	SellRate float64
	// AskDrop / BidDrop: the opposing side's rate must stay at or below
	// this for candidacy, and it is also the neighbor "strong" bar.
	AskDrop float64
	BidDrop float64
	// TradeConfirm: combined directional trade volume must exceed its own
	// recent average by this factor to confirm a candidate.
	TradeConfirm float64
	// PersistSamples: consecutive candidate samples required before
	// emission is even considered.
	PersistSamples int

	// HistoryCapacity bounds the resting/trade ring buffers per bucket.
	HistoryCapacity int

	WindowMin   int
	WindowMax   int
	WindowBase  float64
	WindowGamma float64
}

// dynamicWindow computes the rolling-average window size N from the current
// volatility ratio: calmer markets get a longer smoothing window, choppier
// markets a shorter and more reactive one.
func (th Thresholds) dynamicWindow(volatilityRatio float64) int {
	raw := th.WindowBase / (1 + volatilityRatio*th.WindowGamma)
	n := int(math.Round(raw))
	if n < th.WindowMin {
		return th.WindowMin
	}
	if n > th.WindowMax {
		return th.WindowMax
	}
	return n
}

type restingSample struct {
	bid, ask decimal.Decimal
}

type bucketState struct {
	resting       *ringbuffer.Ring[restingSample]
	tradeBuyHist  *ringbuffer.Ring[decimal.Decimal]
	tradeSellHist *ringbuffer.Ring[decimal.Decimal]
	persistBuy    int
	persistSell   int
}

func newBucketState(capacity int) *bucketState {
	return &bucketState{
		resting:       ringbuffer.New[restingSample](capacity),
		tradeBuyHist:  ringbuffer.New[decimal.Decimal](capacity),
		tradeSellHist: ringbuffer.New[decimal.Decimal](capacity),
	}
}

// VolumeSource supplies recent directional trade volume per bucket index,
// satisfied by *traderouter.Router.
type VolumeSource interface {
	RecentBuyVolume(idx int64) decimal.Decimal
	RecentSellVolume(idx int64) decimal.Decimal
}

// Detector owns all per-bucket resting/trade history. Not safe for
// concurrent use; driven exclusively by the task that also owns the Bucket
// Aggregator's output (per §5, the same goroutine that computes buckets
// feeds them straight into Process).
type Detector struct {
	th      Thresholds
	buckets map[int64]*bucketState
}

// New returns an empty Detector driven by th.
func New(th Thresholds) *Detector {
	return &Detector{th: th, buckets: make(map[int64]*bucketState)}
}

type bucketRate struct {
	bidRate float64
	askRate float64
}

// Process runs one full ladder snapshot's worth of buckets through the
// detector and returns every signal that fires this round. volatilityRatio
// sizes the rolling window per Thresholds.dynamicWindow; router supplies
// recent trade volume per bucket.
func (d *Detector) Process(buckets []model.BucketVolume, volatilityRatio float64, router VolumeSource, now time.Time) []model.Signal {
	n := d.th.dynamicWindow(volatilityRatio)
	rates := make(map[int64]bucketRate, len(buckets))

	// Step 1: compute rates for every bucket before any candidate/neighbor
	// logic runs, since strong-qualifier checks need a neighbor's rate from
	// this same round.
	for _, b := range buckets {
		st := d.stateFor(b.Index)
		history := st.resting.LastNExcludingMostRecent(n)
		avgBid, hasBid := meanField(history, true)
		avgAsk, hasAsk := meanField(history, false)

		rates[b.Index] = bucketRate{
			bidRate: rate(b.BidVol, avgBid, hasBid),
			askRate: rate(b.AskVol, avgAsk, hasAsk),
		}
		st.resting.Push(restingSample{bid: b.BidVol, ask: b.AskVol})
	}

	var out []model.Signal
	for _, b := range buckets {
		st := d.stateFor(b.Index)
		r := rates[b.Index]

		buyCandidate := r.bidRate >= d.th.BuyRate && r.askRate <= d.th.AskDrop
		sellCandidate := r.askRate >= d.th.SellRate && r.bidRate <= d.th.BidDrop

		if buyCandidate {
			st.persistBuy++
		} else {
			st.persistBuy = 0
		}
		if sellCandidate {
			st.persistSell++
		} else {
			st.persistSell = 0
		}

		rightRate, hasRight := rates[b.Index+1]
		leftRate, hasLeft := rates[b.Index-1]
		strongBuy := buyCandidate && hasRight && rightRate.askRate <= d.th.AskDrop
		strongSell := sellCandidate && hasLeft && leftRate.bidRate <= d.th.BidDrop

		buyCombined := router.RecentBuyVolume(b.Index).Add(router.RecentBuyVolume(b.Index - 1))
		sellCombined := router.RecentSellVolume(b.Index).Add(router.RecentSellVolume(b.Index + 1))

		confirmBuy := d.confirmAndAppend(st.tradeBuyHist, buyCombined, n)
		confirmSell := d.confirmAndAppend(st.tradeSellHist, sellCombined, n)

		if st.persistBuy >= d.th.PersistSamples && confirmBuy {
			kind := model.Buy
			if strongBuy {
				kind = model.StrongBuy
			}
			out = append(out, model.Signal{
				Kind: kind, BucketStart: b.Start, BucketEnd: b.End, Timestamp: now,
				BidRate: r.bidRate, AskRate: r.askRate,
				RestingVolSide: b.BidVol, TradeVolCombined: buyCombined,
			})
			st.persistBuy = 0
		}
		if st.persistSell >= d.th.PersistSamples && confirmSell {
			kind := model.Sell
			if strongSell {
				kind = model.StrongSell
			}
			out = append(out, model.Signal{
				Kind: kind, BucketStart: b.Start, BucketEnd: b.End, Timestamp: now,
				BidRate: r.bidRate, AskRate: r.askRate,
				RestingVolSide: b.AskVol, TradeVolCombined: sellCombined,
			})
			st.persistSell = 0
		}
	}
	return out
}

func (d *Detector) stateFor(idx int64) *bucketState {
	st, ok := d.buckets[idx]
	if !ok {
		st = newBucketState(d.th.HistoryCapacity)
		d.buckets[idx] = st
	}
	return st
}

// confirmAndAppend appends combined to hist (one sample per snapshot, as
// §4.G Step 5 requires), then computes the confirmation ratio against the N
// samples immediately preceding it.
func (d *Detector) confirmAndAppend(hist *ringbuffer.Ring[decimal.Decimal], combined decimal.Decimal, n int) bool {
	hist.Push(combined)
	prior := hist.LastNExcludingMostRecent(n)
	avg, ok := meanDecimals(prior)
	if !ok || avg.IsZero() {
		return false
	}
	ratio, _ := combined.Div(avg).Float64()
	return ratio >= d.th.TradeConfirm
}

func rate(last, avg decimal.Decimal, hasAvg bool) float64 {
	if !hasAvg || avg.IsZero() {
		if last.IsPositive() {
			return math.Inf(1)
		}
		return 0
	}
	f, _ := last.Div(avg).Float64()
	return f
}

func meanField(samples []restingSample, bid bool) (decimal.Decimal, bool) {
	if len(samples) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, s := range samples {
		if bid {
			sum = sum.Add(s.bid)
		} else {
			sum = sum.Add(s.ask)
		}
	}
	return sum.Div(decimal.NewFromInt(int64(len(samples)))), true
}

func meanDecimals(samples []decimal.Decimal) (decimal.Decimal, bool) {
	if len(samples) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, s := range samples {
		sum = sum.Add(s)
	}
	return sum.Div(decimal.NewFromInt(int64(len(samples)))), true
}
