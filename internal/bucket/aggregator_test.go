package bucket

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/orderflow/futures-core/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func lvl(price, qty string) model.PriceLevel {
	return model.PriceLevel{Price: d(price), Quantity: d(qty)}
}

func TestAggregate_EmptyBookReturnsError(t *testing.T) {
	_, _, err := Aggregate(model.BookState{}, 0.01)
	if err != ErrEmptyBook {
		t.Fatalf("got %v, want ErrEmptyBook", err)
	}
}

func TestAggregate_BucketIndexMatchesScenario5Math(t *testing.T) {
	// step 0.100 => step_scaled = 100 (0.1 * 1000). Price 50050.0 should land
	// in bucket index floor(50050.0*1000/100) = 500500.
	snap := model.BookState{
		Bids: []model.PriceLevel{lvl("50050.0", "1")},
		Asks: []model.PriceLevel{lvl("50050.1", "1")},
	}
	// mid ~= 50050.05; choose ratio so width rounds to exactly 0.1:
	// width = mid * ratio; step_scaled = round(width*1000) = 100 => width=0.1.
	ratio := 0.1 / 50050.05
	buckets, _, err := Aggregate(snap, ratio)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	var found bool
	for _, b := range buckets {
		if b.Index == 500500 {
			found = true
			if !b.BidVol.Equal(d("1")) {
				t.Fatalf("bucket 500500 bid vol = %v, want 1", b.BidVol)
			}
		}
	}
	if !found {
		t.Fatalf("expected bucket index 500500 in output, got %+v", buckets)
	}
}

func TestAggregate_SumMatchesLadderTotals(t *testing.T) {
	// Invariant 3: sum of per-bucket bid volume equals sum of ladder bid
	// quantities within the enumerated span.
	snap := model.BookState{
		Bids: []model.PriceLevel{
			lvl("100.00", "1"),
			lvl("99.90", "2"),
			lvl("99.80", "3"),
		},
		Asks: []model.PriceLevel{
			lvl("100.10", "1"),
			lvl("100.20", "2"),
		},
	}
	buckets, _, err := Aggregate(snap, 0.001)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	wantBid := d("6")
	wantAsk := d("3")
	gotBid := decimal.Zero
	gotAsk := decimal.Zero
	for _, b := range buckets {
		gotBid = gotBid.Add(b.BidVol)
		gotAsk = gotAsk.Add(b.AskVol)
	}
	if !gotBid.Equal(wantBid) {
		t.Fatalf("sum bid vol = %v, want %v", gotBid, wantBid)
	}
	if !gotAsk.Equal(wantAsk) {
		t.Fatalf("sum ask vol = %v, want %v", gotAsk, wantAsk)
	}
}

func TestAggregate_BucketsCoverFullSpanContiguously(t *testing.T) {
	snap := model.BookState{
		Bids: []model.PriceLevel{lvl("100.00", "1"), lvl("99.00", "1")},
		Asks: []model.PriceLevel{lvl("101.00", "1"), lvl("102.00", "1")},
	}
	buckets, _, err := Aggregate(snap, 0.001)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Index != buckets[i-1].Index+1 {
			t.Fatalf("bucket indices not contiguous: %d -> %d", buckets[i-1].Index, buckets[i].Index)
		}
		if !buckets[i].Start.Equal(buckets[i-1].End) {
			t.Fatalf("bucket %d start %v does not abut previous end %v", i, buckets[i].Start, buckets[i-1].End)
		}
	}
}

func TestAggregate_SingleSidedBookUsesThatSideAsMid(t *testing.T) {
	snap := model.BookState{
		Bids: []model.PriceLevel{lvl("100.00", "5")},
	}
	buckets, _, err := Aggregate(snap, 0.01)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	total := decimal.Zero
	for _, b := range buckets {
		total = total.Add(b.BidVol)
	}
	if !total.Equal(d("5")) {
		t.Fatalf("total bid vol = %v, want 5", total)
	}
}
