// Package engine wires the Order Book Synchronizer, Volatility Estimator,
// Bucket Aggregator, Trade Router, Signal Detector and Supervisor/Watchdog
// into the three cooperative tasks described for a single symbol instance:
// a depth-stream task, an aggTrade task and a volatility task.
//
// Grounded on the teacher's cmd/orderflow/main.go wiring style (components
// constructed top-down, one dedicated goroutine per owned mutable
// structure, plain channels rather than a worker-pool abstraction) and on
// the teacher's internal/engine/engine.go single-goroutine-owns-state shape,
// generalized from trade-tick processing to order-book + signal processing.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderflow/futures-core/internal/bucket"
	"github.com/orderflow/futures-core/internal/bus"
	"github.com/orderflow/futures-core/internal/config"
	"github.com/orderflow/futures-core/internal/csvlog"
	"github.com/orderflow/futures-core/internal/model"
	"github.com/orderflow/futures-core/internal/restclient"
	"github.com/orderflow/futures-core/internal/signal"
	"github.com/orderflow/futures-core/internal/supervisor"
	"github.com/orderflow/futures-core/internal/syncbook"
	"github.com/orderflow/futures-core/internal/traderouter"
	"github.com/orderflow/futures-core/internal/volatility"
	"github.com/orderflow/futures-core/internal/wiremodel"
	"github.com/orderflow/futures-core/internal/wsclient"
)

const (
	bookDepth     = 1000
	diffChanSize  = 256
	tradeChanSize = 1024
	stalenessTick = 100 * time.Millisecond
)

// Engine owns every component for one symbol instance and the three tasks
// that drive them.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	stream *wsclient.Client

	sync      *syncbook.Synchronizer
	router    *traderouter.Router
	detector  *signal.Detector
	estimator *volatility.Estimator
	watchdog  *supervisor.Watchdog

	signals *bus.Bus[model.Signal]
	csv     *csvlog.Logger

	diffCh  chan model.DepthDiff
	tradeCh chan model.Trade

	wg       sync.WaitGroup
	errMu    sync.Mutex
	firstErr error
}

// New constructs an Engine from validated configuration. cfg.Validate must
// have already been called by the caller.
func New(cfg *config.Config, log zerolog.Logger) *Engine {
	log = log.With().Str("component", "engine").Str("symbol", cfg.Symbol).Logger()

	restClient := restclient.New(cfg.RESTBase).ForSymbol(cfg.Symbol)

	e := &Engine{
		cfg: cfg,
		log: log,
		// real step is set once the first buckets are computed
		router: traderouter.New(1, cfg.ConfirmWindow()),
		detector: signal.New(signal.Thresholds{
			BuyRate:         cfg.Signal.BuyRate,
			SellRate:        cfg.Signal.SellRate,
			AskDrop:         cfg.Signal.AskDrop,
			BidDrop:         cfg.Signal.BidDrop,
			TradeConfirm:    cfg.Signal.ConfirmTradeRate,
			PersistSamples:  cfg.Signal.PersistSamples,
			HistoryCapacity: cfg.Buffers.MaxBufferSize,
			WindowMin:       cfg.Buffers.WindowMin,
			WindowMax:       cfg.Buffers.WindowMax,
			WindowBase:      cfg.Buffers.WindowBase,
			WindowGamma:     cfg.Buffers.WindowGamma,
		}),
		estimator: volatility.New(restClient, cfg.RefreshInterval(), cfg.Volatility.Candles, cfg.Volatility.Scale, log),
		signals:   bus.New[model.Signal](),
		diffCh:    make(chan model.DepthDiff, diffChanSize),
		tradeCh:   make(chan model.Trade, tradeChanSize),
	}

	e.sync = syncbook.New(cfg.Symbol, restClient, bookDepth, log)
	e.sync.Subscribe(e.onBookState)

	e.stream = wsclient.New(streamURL(cfg.WSBase, cfg.Symbol), e.handleFrame, log)
	e.watchdog = supervisor.New(wsReconnector{e.stream}, cfg.StalenessThreshold(), log)

	if cfg.CSVLog.Enabled {
		e.csv = csvlog.New(cfg.CSVLog.Dir, log)
	}

	return e
}

// Signals returns a subscription to every emitted signal event.
func (e *Engine) Signals(bufferSize int) <-chan model.Signal {
	return e.signals.Subscribe(bufferSize)
}

// Run starts the transport task, the aggTrade consumer task, the volatility
// task and the depth-apply task, and blocks until ctx is cancelled or one of
// them exits with a non-nil error. It always waits for every task to return
// before returning, per §5's cooperative-cancellation contract.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.watchdog.MarkConnecting()

	e.spawn(cancel, func() error { return e.stream.Run(ctx) })
	e.spawn(cancel, func() error { return e.estimator.Run(ctx) })
	e.spawn(cancel, func() error { return e.runAggTrade(ctx) })
	e.spawn(cancel, func() error { return e.runDepth(ctx) })

	e.wg.Wait()
	if e.csv != nil {
		e.csv.Close()
	}

	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.firstErr
}

func (e *Engine) spawn(cancel context.CancelFunc, fn func() error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := fn(); err != nil {
			e.recordErr(err)
			cancel()
		}
	}()
}

func (e *Engine) recordErr(err error) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.firstErr == nil {
		e.firstErr = err
	}
}

// runDepth is the depth-stream task: it performs the mandatory boot
// sequence, then drives the steady-state apply loop, checking staleness on
// every stalenessTick tick (not after each applied diff).
func (e *Engine) runDepth(ctx context.Context) error {
	if err := e.sync.Bootstrap(ctx, e.diffCh); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	e.watchdog.MarkStreaming()
	e.watchdog.NotifyApplied(time.Now())

	ticker := time.NewTicker(stalenessTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-e.diffCh:
			if !ok {
				return nil
			}
			if err := e.sync.Apply(ctx, d); err != nil {
				if rerr := e.watchdog.ReportTransportError(ctx); rerr != nil {
					return rerr
				}
				continue
			}
			e.watchdog.NotifyApplied(time.Now())
		case now := <-ticker.C:
			if err := e.watchdog.Check(ctx, now); err != nil {
				return err
			}
		}
	}
}

// onBookState runs on the depth task (it is invoked synchronously from
// Synchronizer.Apply/Bootstrap), so per §5 it needs no lock to read
// BookState. It computes this round's buckets and feeds them straight into
// the Signal Detector, matching the spec's "same loop" ownership note.
func (e *Engine) onBookState(state model.BookState) {
	ratio := e.estimator.BucketWidthRatio()
	buckets, stepScaled, err := bucket.Aggregate(state, ratio)
	if err != nil {
		e.log.Debug().Err(err).Msg("bucket aggregation skipped: empty book")
		return
	}

	e.router.SetStepScaled(stepScaled)
	for _, b := range buckets {
		e.router.EnsureBucket(b.Index)
	}

	// Process always runs, so persistence/history state advances every
	// round even while paused; only emission is suppressed (§7: "signals
	// emitted while paused are suppressed").
	signals := e.detector.Process(buckets, e.estimator.CurrentRatio(), e.router, state.AppliedAt)
	if e.watchdog.Paused() {
		signals = nil
	}
	for _, sig := range signals {
		e.signals.Publish(sig)
	}

	if e.csv != nil {
		e.logBuckets(buckets, signals, state.AppliedAt)
	}
}

func (e *Engine) logBuckets(buckets []model.BucketVolume, signals []model.Signal, ts time.Time) {
	kindByBucket := make(map[string]string, len(signals))
	for _, sig := range signals {
		kindByBucket[sig.BucketStart.String()] = sig.Kind.String()
	}
	for _, b := range buckets {
		e.csv.Log(csvlog.Row{
			TimestampMS:   ts.UnixMilli(),
			BucketStart:   b.Start.String(),
			BucketEnd:     b.End.String(),
			BidVol:        b.BidVol.String(),
			AskVol:        b.AskVol.String(),
			RecentBuyVol:  e.router.RecentBuyVolume(b.Index).String(),
			RecentSellVol: e.router.RecentSellVolume(b.Index).String(),
			SignalKind:    kindByBucket[b.Start.String()],
		})
	}
}

// runAggTrade is the aggTrade task: it owns the Trade Router's buffers and
// periodically prunes every bucket, including ones that received no new
// trades this round, so stale volume ages out even during a quiet market.
func (e *Engine) runAggTrade(ctx context.Context) error {
	pruneTicker := time.NewTicker(e.cfg.ConfirmWindow() / 4)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-e.tradeCh:
			if !ok {
				return nil
			}
			e.router.Route(t, time.Now())
		case now := <-pruneTicker.C:
			e.router.PruneAll(now)
		}
	}
}

// handleFrame is the wsclient.FrameHandler for the combined depth+aggTrade
// stream. It unwraps the combined-stream envelope, classifies the payload
// by its "e" field, and fans it out to the channel owned by the matching
// task. Error frames and decode failures return an error, which tells
// wsclient.Client to tear down the connection and reconnect.
func (e *Engine) handleFrame(raw []byte) error {
	payload := wiremodel.Unwrap(raw)
	if wiremodel.IsError(payload) {
		var ef wiremodel.ErrorFrame
		_ = json.Unmarshal(payload, &ef)
		return fmt.Errorf("stream error frame: %s: %s", ef.Type, ef.Message)
	}

	var probe struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return fmt.Errorf("decode frame envelope: %w", err)
	}

	switch probe.EventType {
	case "depthUpdate":
		var ev wiremodel.DepthEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode depth event: %w", err)
		}
		diff, err := ev.ToDiff()
		if err != nil {
			return fmt.Errorf("parse depth event: %w", err)
		}
		e.diffCh <- diff
	case "aggTrade":
		var ev wiremodel.AggTradeEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode aggTrade event: %w", err)
		}
		trade, err := ev.ToTrade()
		if err != nil {
			return fmt.Errorf("parse aggTrade event: %w", err)
		}
		e.tradeCh <- trade
	default:
		e.log.Debug().Str("event_type", probe.EventType).Msg("ignoring unrecognized frame")
	}
	return nil
}

// wsReconnector adapts wsclient.Client to supervisor.Reconnector: a
// staleness-triggered reconnect forces the stream closed and blocks until
// the next successful dial completes.
type wsReconnector struct {
	client *wsclient.Client
}

func (r wsReconnector) Reconnect(ctx context.Context) error {
	// Discard a signal left over from an earlier dial so the wait below
	// only ends on the redial this call forces.
	select {
	case <-r.client.Connected():
	default:
	}
	r.client.ForceReconnect()
	select {
	case <-r.client.Connected():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// streamURL builds the combined-stream endpoint for symbol's depth and
// aggTrade channels.
func streamURL(wsBase, symbol string) string {
	lower := strings.ToLower(symbol)
	return fmt.Sprintf("%s/stream?streams=%s@depth@100ms/%s@aggTrade", wsBase, lower, lower)
}
