// Package syncbook implements the Order Book Synchronizer: the single-writer
// task that owns a Ladder, applies classified depth diffs to it, and
// publishes immutable BookState snapshots to subscribers.
//
// Named syncbook rather than sync to avoid colliding with the standard
// library's sync package.
//
// Boot ordering and recovery are grounded on python-binance's
// orderbook_manager.py run()/process_depth_update (open the stream first,
// buffer diffs, fetch the snapshot, then bridge), and steady-state apply is
// grounded on BullionBear/sequex's BinancePerpOrderBook.partialUpdate.
package syncbook

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderflow/futures-core/internal/ladder"
	"github.com/orderflow/futures-core/internal/model"
	"github.com/orderflow/futures-core/internal/sequence"
)

// SnapshotFetcher fetches a fresh REST depth snapshot.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (lastUpdateID uint64, bids, asks []model.PriceLevel, err error)
}

// Subscriber is invoked on the synchronizer's own goroutine after every
// successfully applied diff. Implementations must not block; slow work
// belongs on a separate goroutine fed by a channel.
type Subscriber func(model.BookState)

// Synchronizer owns a Ladder and the book's last applied update id. All
// exported methods except CurrentSnapshot and Subscribe are meant to be
// called only from the task driving Run.
type Synchronizer struct {
	symbol   string
	fetcher  SnapshotFetcher
	log      zerolog.Logger
	depth    int

	l            *ladder.Ladder
	lastUpdateID uint64
	bridged      bool
	snapshotTime time.Time

	subs []Subscriber

	current atomic.Pointer[model.BookState]

	consecutiveGapFailures int
}

// New constructs a Synchronizer for symbol, publishing up to depth levels per
// side in snapshots handed to subscribers.
func New(symbol string, fetcher SnapshotFetcher, depth int, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		symbol:  symbol,
		fetcher: fetcher,
		log:     log.With().Str("component", "syncbook").Logger(),
		depth:   depth,
		l:       ladder.New(),
	}
}

// Subscribe registers callback to be invoked after every applied diff. Not
// safe to call concurrently with Run; register all subscribers before
// starting.
func (s *Synchronizer) Subscribe(cb Subscriber) {
	s.subs = append(s.subs, cb)
}

// CurrentSnapshot returns the most recently published BookState. Safe for
// concurrent use from any goroutine.
func (s *Synchronizer) CurrentSnapshot() (model.BookState, bool) {
	p := s.current.Load()
	if p == nil {
		return model.BookState{}, false
	}
	return *p, true
}

// Bootstrap performs the mandatory boot sequence: the caller must already be
// pulling diffs into diffCh before calling Bootstrap, so that diffs which
// precede the snapshot are not lost. Bootstrap buffers diffs off diffCh until
// it has fetched a REST snapshot and found a diff that bridges it, then
// applies that diff, passes every diff already queued on diffCh through
// Apply, and returns; later steady-state diffs are handled by the caller's
// own Apply calls.
func (s *Synchronizer) Bootstrap(ctx context.Context, diffCh <-chan model.DepthDiff) error {
	var buffered []model.DepthDiff

	// Buffer the first diff before snapshotting, mirroring
	// orderbook_manager.py's behavior of opening the stream first so early
	// diffs aren't missed while the REST call is in flight.
	const prefetch = 1
	for i := 0; i < prefetch; i++ {
		select {
		case d := <-diffCh:
			buffered = append(buffered, d)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	lastUpdateID, bids, asks, err := s.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap snapshot: %w", err)
	}
	s.l.ReplaceAll(bids, asks)
	s.lastUpdateID = lastUpdateID
	s.snapshotTime = time.Now()
	s.publish()

	for {
		for i, d := range buffered {
			action := sequence.Classify(d, s.lastUpdateID)
			if action == sequence.Apply {
				s.applyDiff(d)
				s.bridged = true
				buffered = buffered[i+1:]
				return s.drainRemaining(ctx, buffered, diffCh)
			}
		}
		buffered = nil
		select {
		case d := <-diffCh:
			buffered = append(buffered, d)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Synchronizer) drainRemaining(ctx context.Context, remaining []model.DepthDiff, diffCh <-chan model.DepthDiff) error {
	for _, d := range remaining {
		if err := s.Apply(ctx, d); err != nil {
			return err
		}
	}
	for {
		select {
		case d, ok := <-diffCh:
			if !ok {
				return nil
			}
			if err := s.Apply(ctx, d); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Run drives the steady-state apply loop until ctx is cancelled or the
// channel closes.
func (s *Synchronizer) Run(ctx context.Context, diffCh <-chan model.DepthDiff) error {
	for {
		select {
		case d, ok := <-diffCh:
			if !ok {
				return nil
			}
			if err := s.Apply(ctx, d); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Apply classifies and applies a single diff, resnapshotting inline when the
// sequence gate calls for it. Two consecutive resnapshot failures return an
// error so the caller (the Supervisor) can escalate to a full reconnect.
func (s *Synchronizer) Apply(ctx context.Context, d model.DepthDiff) error {
	action := sequence.Classify(d, s.lastUpdateID)
	switch action {
	case sequence.Skip:
		s.log.Debug().Uint64("final_update_id", d.FinalUpdateID).Msg("diff skipped: stale")
		return nil
	case sequence.Apply:
		s.applyDiff(d)
		s.consecutiveGapFailures = 0
		return nil
	case sequence.Resnapshot:
		lastUpdateID, bids, asks, err := s.fetcher.FetchSnapshot(ctx)
		if err != nil {
			s.consecutiveGapFailures++
			if s.consecutiveGapFailures >= 2 {
				return fmt.Errorf("resnapshot failed twice consecutively: %w", err)
			}
			return nil
		}
		s.l.ReplaceAll(bids, asks)
		s.lastUpdateID = lastUpdateID
		s.snapshotTime = time.Now()
		s.publish()
		if sequence.Classify(d, s.lastUpdateID) == sequence.Apply {
			s.applyDiff(d)
		}
		s.consecutiveGapFailures = 0
		return nil
	default:
		return nil
	}
}

func (s *Synchronizer) applyDiff(d model.DepthDiff) {
	for _, lvl := range d.Bids {
		s.l.ApplyLevel(model.Bid, lvl.Price, lvl.Quantity)
	}
	for _, lvl := range d.Asks {
		s.l.ApplyLevel(model.Ask, lvl.Price, lvl.Quantity)
	}
	s.lastUpdateID = d.FinalUpdateID
	s.publish()
}

func (s *Synchronizer) publish() {
	state := model.BookState{
		Symbol:       s.symbol,
		Bids:         s.l.TopK(model.Bid, s.depth),
		Asks:         s.l.TopK(model.Ask, s.depth),
		LastUpdateID: s.lastUpdateID,
		SnapshotTime: s.snapshotTime,
		AppliedAt:    time.Now(),
	}
	s.current.Store(&state)
	for _, sub := range s.subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Msg("subscriber panicked; continuing")
				}
			}()
			sub(state)
		}()
	}
}
