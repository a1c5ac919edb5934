// Package sequence implements the Sequence Gate: a stateless predicate that
// classifies one incoming depth diff against the last applied update id.
//
// Grounded on python-binance's orderbook_manager.py process_depth_update,
// which computes contiguous_by_pu (event.pu == last_update_id) and
// bridging_by_range (event.U <= last_update_id <= event.u) before deciding to
// apply or resync, and on BullionBear/sequex's partialUpdate/totalUpdate
// dispatch in internal/orderbook/orderbook.go, which encodes the same three
// outcomes as an explicit branch rather than a boolean.
package sequence

import "github.com/orderflow/futures-core/internal/model"

// Action is the gate's verdict for one incoming diff.
type Action int

const (
	// Skip: diff is entirely behind the book, discard without applying.
	Skip Action = iota
	// Apply: diff is contiguous (directly or by bridging the gap) with the
	// book's last applied update id.
	Apply
	// Resnapshot: diff leaves a gap the book cannot bridge; the caller must
	// fetch a fresh REST snapshot and replay from there.
	Resnapshot
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "SKIP"
	case Apply:
		return "APPLY"
	case Resnapshot:
		return "RESNAPSHOT"
	default:
		return "UNKNOWN"
	}
}

// Classify decides what to do with diff given the book's current
// lastUpdateID. It holds no state of its own; callers own lastUpdateID and
// must update it themselves after an Apply verdict.
func Classify(diff model.DepthDiff, lastUpdateID uint64) Action {
	if diff.FinalUpdateID < lastUpdateID {
		return Skip
	}
	if diff.PrevFinalUpdateID == lastUpdateID {
		return Apply
	}
	if diff.FirstUpdateID <= lastUpdateID && lastUpdateID <= diff.FinalUpdateID {
		return Apply
	}
	return Resnapshot
}
