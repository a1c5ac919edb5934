// Package ladder implements the Ladder Store: two sorted price→quantity
// maps (red-black tree backed, via emirpasic/gods treemap) with O(log n)
// updates and top-K iteration. It is owned exclusively by the depth-stream
// task (internal/syncbook.Synchronizer) — every exported method here assumes a
// single writer; concurrent reads are not safe. The slices TopK and All
// return are fresh copies and may be handed to other goroutines.
//
// Grounded on the pack's BullionBear/sequex internal/orderbook/orderbook.go
// BookArray (treemap.Map keyed by decimal.Decimal with a custom comparator),
// generalized from a spot/perp REST+WS client into a transport-agnostic
// store driven entirely by ApplyLevel/ReplaceAll.
package ladder

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"

	"github.com/orderflow/futures-core/internal/model"
)

func priceComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

// Ladder holds the current bid/ask price ladder. Zero value is not usable;
// construct with New.
type Ladder struct {
	bids *treemap.Map // decimal.Decimal -> decimal.Decimal (quantity), descending read order
	asks *treemap.Map // decimal.Decimal -> decimal.Decimal, ascending read order
}

// New returns an empty Ladder.
func New() *Ladder {
	return &Ladder{
		bids: treemap.NewWith(priceComparator),
		asks: treemap.NewWith(priceComparator),
	}
}

func (l *Ladder) tree(side model.Side) *treemap.Map {
	if side == model.Bid {
		return l.bids
	}
	return l.asks
}

// ApplyLevel inserts, overwrites, or — when qty is zero — removes a single
// price level. O(log n).
func (l *Ladder) ApplyLevel(side model.Side, price, qty decimal.Decimal) {
	t := l.tree(side)
	if qty.IsZero() || qty.IsNegative() {
		t.Remove(price)
		return
	}
	t.Put(price, qty)
}

// ReplaceAll rebuilds both sides from scratch, used for a REST snapshot.
func (l *Ladder) ReplaceAll(bids, asks []model.PriceLevel) {
	l.bids.Clear()
	l.asks.Clear()
	for _, lvl := range bids {
		if lvl.Quantity.IsPositive() {
			l.bids.Put(lvl.Price, lvl.Quantity)
		}
	}
	for _, lvl := range asks {
		if lvl.Quantity.IsPositive() {
			l.asks.Put(lvl.Price, lvl.Quantity)
		}
	}
}

// Best returns the highest bid / lowest ask.
func (l *Ladder) Best(side model.Side) (model.PriceLevel, bool) {
	t := l.tree(side)
	if t.Empty() {
		return model.PriceLevel{}, false
	}
	var price, qty interface{}
	if side == model.Bid {
		price, qty = t.Max()
	} else {
		price, qty = t.Min()
	}
	return model.PriceLevel{Price: price.(decimal.Decimal), Quantity: qty.(decimal.Decimal)}, true
}

// TopK returns up to k levels in the side's natural display order: bids
// descending by price, asks ascending by price.
func (l *Ladder) TopK(side model.Side, k int) []model.PriceLevel {
	t := l.tree(side)
	out := make([]model.PriceLevel, 0, k)
	it := t.Iterator()
	if side == model.Ask {
		for it.Next() {
			out = append(out, model.PriceLevel{
				Price:    it.Key().(decimal.Decimal),
				Quantity: it.Value().(decimal.Decimal),
			})
			if len(out) >= k {
				break
			}
		}
		return out
	}
	// Bids: walk the tree from the end backwards for descending order.
	for it.End(); it.Prev(); {
		out = append(out, model.PriceLevel{
			Price:    it.Key().(decimal.Decimal),
			Quantity: it.Value().(decimal.Decimal),
		})
		if len(out) >= k {
			break
		}
	}
	return out
}

// All returns every resident level on a side in its natural sorted order.
func (l *Ladder) All(side model.Side) []model.PriceLevel {
	return l.TopK(side, l.tree(side).Size())
}

// Len returns the number of resident levels on a side.
func (l *Ladder) Len(side model.Side) int {
	return l.tree(side).Size()
}

// Crossed reports whether the book is crossed: max(bid) >= min(ask). An
// empty side never crosses.
func (l *Ladder) Crossed() bool {
	bestBid, hasBid := l.Best(model.Bid)
	bestAsk, hasAsk := l.Best(model.Ask)
	if !hasBid || !hasAsk {
		return false
	}
	return !bestBid.Price.LessThan(bestAsk.Price)
}
