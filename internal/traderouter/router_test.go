package traderouter

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderflow/futures-core/internal/model"
)

const testConfirmWindow = 45 * time.Second

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRoute_Scenario5_DirectionAndBucket(t *testing.T) {
	// step 0.100 => step_scaled = 100; price 50050.0 => bucket 500500.
	r := New(100, testConfirmWindow)
	r.EnsureBucket(500500)
	now := time.Unix(1_700_000_000, 0)

	r.Route(model.Trade{Price: d("50050.0"), Quantity: d("0.2"), TimestampSec: now.Unix(), Side: model.BuyerInitiated}, now)
	if got := r.RecentBuyVolume(500500); !got.Equal(d("0.2")) {
		t.Fatalf("buy volume = %v, want 0.2", got)
	}
	if got := r.RecentSellVolume(500500); !got.IsZero() {
		t.Fatalf("sell volume = %v, want 0", got)
	}

	r.Route(model.Trade{Price: d("50050.0"), Quantity: d("0.3"), TimestampSec: now.Unix(), Side: model.SellerInitiated}, now)
	if got := r.RecentSellVolume(500500); !got.Equal(d("0.3")) {
		t.Fatalf("sell volume = %v, want 0.3", got)
	}
}

func TestRoute_UnknownBucketGoesToFallback(t *testing.T) {
	r := New(100, testConfirmWindow)
	now := time.Now()
	r.Route(model.Trade{Price: d("50050.0"), Quantity: d("1"), TimestampSec: now.Unix(), Side: model.BuyerInitiated}, now)
	if r.KnownBucketIndex(500500) {
		t.Fatalf("bucket should not have become known from an unrouted trade")
	}
	if got := r.RecentBuyVolume(500500); !got.IsZero() {
		t.Fatalf("expected 0 volume for never-known bucket with no nearby resident bucket, got %v", got)
	}
}

func TestRecentVolume_NoNearestBucketFallbackBeyondHalfStep(t *testing.T) {
	r := New(100, testConfirmWindow)
	r.EnsureBucket(500500)
	now := time.Now()
	r.Route(model.Trade{Price: d("50050.0"), Quantity: d("1"), TimestampSec: now.Unix(), Side: model.BuyerInitiated}, now)

	// bucket 500501 is one index away (distance 1 * step_scaled(100) = 100
	// scaled units = 0.1 price units), which exceeds half-step (50 scaled
	// units = 0.05), so it must NOT borrow from 500500.
	if got := r.RecentBuyVolume(500501); !got.IsZero() {
		t.Fatalf("expected 0 beyond half-step distance, got %v", got)
	}
}

func TestPruning_EntriesOlderThanConfirmWindowAreDropped(t *testing.T) {
	r := New(100, testConfirmWindow)
	r.EnsureBucket(500500)
	base := time.Unix(1_700_000_000, 0)
	r.Route(model.Trade{Price: d("50050.0"), Quantity: d("1"), TimestampSec: base.Unix(), Side: model.BuyerInitiated}, base)

	later := base.Add(testConfirmWindow + time.Second)
	r.PruneAll(later)

	if got := r.RecentBuyVolume(500500); !got.IsZero() {
		t.Fatalf("invariant 5 violated: expected empty deque after ConfirmWindow idle, got %v", got)
	}
}

func TestPruning_RecentEntriesSurvive(t *testing.T) {
	r := New(100, testConfirmWindow)
	r.EnsureBucket(500500)
	base := time.Unix(1_700_000_000, 0)
	r.Route(model.Trade{Price: d("50050.0"), Quantity: d("1"), TimestampSec: base.Unix(), Side: model.BuyerInitiated}, base)

	soon := base.Add(10 * time.Second)
	r.PruneAll(soon)

	if got := r.RecentBuyVolume(500500); !got.Equal(d("1")) {
		t.Fatalf("expected entry to survive within window, got %v", got)
	}
}
