package ladder

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

func TestApplyLevel_InsertUpdateRemove(t *testing.T) {
	l := New()

	l.ApplyLevel(model.Bid, d("100"), d("1"))
	best, ok := l.Best(model.Bid)
	if !ok || !best.Quantity.Equal(d("1")) {
		t.Fatalf("expected best bid qty 1, got %+v ok=%v", best, ok)
	}

	l.ApplyLevel(model.Bid, d("100"), d("2"))
	best, _ = l.Best(model.Bid)
	if !best.Quantity.Equal(d("2")) {
		t.Fatalf("expected overwrite to qty 2, got %v", best.Quantity)
	}

	l.ApplyLevel(model.Bid, d("100"), d("0"))
	if _, ok := l.Best(model.Bid); ok {
		t.Fatalf("expected level removed on qty=0")
	}
}

func TestApplyLevel_NeverStoresZeroOrNegative(t *testing.T) {
	l := New()
	l.ApplyLevel(model.Ask, d("50"), d("0"))
	l.ApplyLevel(model.Ask, d("51"), d("-1"))
	if l.Len(model.Ask) != 0 {
		t.Fatalf("expected no resident zero/negative levels, got %d", l.Len(model.Ask))
	}
}

func TestTopK_Ordering(t *testing.T) {
	l := New()
	for _, p := range []string{"100", "101", "99", "102"} {
		l.ApplyLevel(model.Bid, d(p), d("1"))
		l.ApplyLevel(model.Ask, d(p), d("1"))
	}

	bids := l.TopK(model.Bid, 10)
	wantBids := []string{"102", "101", "100", "99"}
	for i, w := range wantBids {
		if !bids[i].Price.Equal(d(w)) {
			t.Fatalf("bids[%d] = %v, want %v", i, bids[i].Price, w)
		}
	}

	asks := l.TopK(model.Ask, 10)
	wantAsks := []string{"99", "100", "101", "102"}
	for i, w := range wantAsks {
		if !asks[i].Price.Equal(d(w)) {
			t.Fatalf("asks[%d] = %v, want %v", i, asks[i].Price, w)
		}
	}
}

func TestReplaceAll_DropsZeroLevels(t *testing.T) {
	l := New()
	l.ReplaceAll(
		[]model.PriceLevel{lvl("100", "1"), lvl("99", "0")},
		[]model.PriceLevel{lvl("101", "2")},
	)
	if l.Len(model.Bid) != 1 {
		t.Fatalf("expected 1 resident bid level, got %d", l.Len(model.Bid))
	}
	if l.Len(model.Ask) != 1 {
		t.Fatalf("expected 1 resident ask level, got %d", l.Len(model.Ask))
	}
}

func TestCrossed(t *testing.T) {
	l := New()
	l.ApplyLevel(model.Bid, d("100"), d("1"))
	l.ApplyLevel(model.Ask, d("101"), d("1"))
	if l.Crossed() {
		t.Fatalf("book should not be crossed")
	}

	l.ApplyLevel(model.Bid, d("102"), d("1"))
	if !l.Crossed() {
		t.Fatalf("book should be crossed: bid 102 >= ask 101")
	}
}
