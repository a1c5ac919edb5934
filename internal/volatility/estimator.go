// Package volatility implements the Volatility Estimator: a periodic task
// that recomputes a realized-volatility ratio from recent 1-minute klines and
// publishes it for lock-free reads by the Bucket Aggregator.
//
// The atomic-pointer publish pattern is grounded on the teacher's
// internal/oi/engine.go (unsafe.Pointer + atomic load/store for a
// cross-goroutine published value, generalized here to sync/atomic's typed
// atomic.Uint64 storing the IEEE-754 bit pattern); the kline-ratio math is
// grounded on python-binance's candle (high-low)/close realized-range
// heuristic.
package volatility

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderflow/futures-core/internal/wiremodel"
)

// KlineFetcher fetches the most recent 1-minute klines, newest-last.
type KlineFetcher interface {
	FetchRecentKlines(ctx context.Context, limit int) ([]wiremodel.Kline, error)
}

// DefaultRatio seeds current_ratio before the first successful fetch.
const DefaultRatio = 0.001

// Estimator periodically recomputes the realized-volatility ratio.
type Estimator struct {
	fetcher KlineFetcher
	period  time.Duration
	candles int
	scale   float64
	log     zerolog.Logger

	ratio atomic.Uint64 // math.Float64bits(current ratio)
}

// New constructs an Estimator with the given recompute period (30 minutes in
// production; tests may pass a shorter period). candles is how many recent
// 1-minute klines to fetch per recompute (config.VolatilityConfig.Candles);
// scale is the fixed factor CurrentRatio is multiplied by to size bucket
// widths (config.VolatilityConfig.Scale).
func New(fetcher KlineFetcher, period time.Duration, candles int, scale float64, log zerolog.Logger) *Estimator {
	e := &Estimator{
		fetcher: fetcher,
		period:  period,
		candles: candles,
		scale:   scale,
		log:     log.With().Str("component", "volatility").Logger(),
	}
	e.store(DefaultRatio)
	return e
}

// CurrentRatio returns the last successfully computed average (high-low)/close
// ratio. Safe for concurrent use from any goroutine.
func (e *Estimator) CurrentRatio() float64 {
	return e.load()
}

// BucketWidthRatio returns CurrentRatio scaled by the configured
// bucket-width factor the Bucket Aggregator uses to size its price buckets.
func (e *Estimator) BucketWidthRatio() float64 {
	return e.load() * e.scale
}

// Run recomputes the ratio once immediately, then every period until ctx is
// cancelled.
func (e *Estimator) Run(ctx context.Context) error {
	e.recompute(ctx)
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.recompute(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Estimator) recompute(ctx context.Context) {
	klines, err := e.fetcher.FetchRecentKlines(ctx, e.candles)
	if err != nil {
		e.log.Warn().Err(err).Msg("kline fetch failed, keeping previous ratio")
		return
	}
	ratio, ok := averageRatio(klines)
	if !ok {
		e.log.Warn().Msg("no valid candles (all close<=0), keeping previous ratio")
		return
	}
	e.store(ratio)
	e.log.Debug().Float64("avg_ratio", ratio).Msg("volatility ratio recomputed")
}

// averageRatio computes the mean (high-low)/close across candles whose close
// is strictly positive. Returns (0, false) if none qualify — the zero-guard
// that keeps a single all-zero batch from corrupting the published ratio.
func averageRatio(klines []wiremodel.Kline) (float64, bool) {
	var sum float64
	var n int
	for _, k := range klines {
		closeF, _ := k.Close.Float64()
		if closeF <= 0 {
			continue
		}
		highF, _ := k.High.Float64()
		lowF, _ := k.Low.Float64()
		sum += (highF - lowF) / closeF
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (e *Estimator) store(ratio float64) {
	e.ratio.Store(math.Float64bits(ratio))
}

func (e *Estimator) load() float64 {
	return math.Float64frombits(e.ratio.Load())
}
