// Package reconcile matches telephony call records against call-tracking
// lead records to find calls the tracking provider never attributed,
// typically visitors who declined cookies and so never triggered the
// on-site tracking number swap.
package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
	"github.com/ridgeline-roofing/conversions-cli/internal/phone"
)

const (
	// DefaultExactWindow separates "essentially simultaneous" pairings
	// from ones where the lead-creation timestamp lags the call start
	// (ring-vs-connect skew, webhook propagation).
	DefaultExactWindow = 30 * time.Second

	// DefaultFuzzyWindow bounds how far apart a call and lead may be and
	// still be treated as the same event. Five minutes is tight enough
	// that one caller dialing twice in quick succession is unlikely to
	// cross-match.
	DefaultFuzzyWindow = 5 * time.Minute
)

// Engine matches calls to leads by canonical caller number and time
// proximity. It is pure: no I/O, deterministic for a given input order.
type Engine struct {
	ExactWindow time.Duration
	FuzzyWindow time.Duration
}

// New returns an Engine with the default windows.
func New() *Engine {
	return &Engine{
		ExactWindow: DefaultExactWindow,
		FuzzyWindow: DefaultFuzzyWindow,
	}
}

// Reconcile pairs each call with its nearest unconsumed lead from the same
// caller, greedily in ascending call start-time order. Each lead is
// consumed by at most one pair; calls with no eligible lead become
// unmatched gap calls.
//
// This is deliberately a greedy single-pass nearest-neighbor match, not a
// minimum-cost assignment: daily call volume is tens, not thousands, and
// the greedy result is stable and easy to audit.
func (e *Engine) Reconcile(r model.DateRange, calls []model.CallRecord, leads []model.LeadRecord) model.ReconciliationResult {
	byCaller := make(map[string][]*leadSlot, len(leads))
	slots := make([]leadSlot, len(leads))
	for i, lead := range leads {
		slots[i] = leadSlot{lead: lead}
		byCaller[lead.Caller] = append(byCaller[lead.Caller], &slots[i])
	}

	result := model.ReconciliationResult{
		Range:      r,
		TotalCalls: len(calls),
		TotalLeads: len(leads),
	}

	for _, call := range calls {
		slot, delta := e.nearest(byCaller[call.Caller], call)
		if slot == nil {
			result.Unmatched = append(result.Unmatched, model.UnmatchedCall{
				Call:   call,
				Reason: model.ReasonNoLeadMatch,
			})
			continue
		}

		slot.consumed = true
		confidence := model.ConfidenceFuzzy
		if delta <= e.ExactWindow {
			confidence = model.ConfidenceExact
		}
		result.Matched = append(result.Matched, model.MatchedPair{
			Call:       call,
			Lead:       slot.lead,
			Confidence: confidence,
			Delta:      delta,
		})
	}

	result.MatchRate = model.ComputeMatchRate(len(result.Matched), result.TotalCalls)

	zap.L().Debug("reconciliation complete",
		zap.Int("calls", result.TotalCalls),
		zap.Int("leads", result.TotalLeads),
		zap.Int("matched", len(result.Matched)),
		zap.Int("unmatched", len(result.Unmatched)),
		zap.Float64("match_rate", result.MatchRate),
	)
	return result
}

type leadSlot struct {
	lead     model.LeadRecord
	consumed bool
}

// nearest returns the unconsumed candidate lead with the smallest time
// delta within the fuzzy window, or nil when none qualifies. Calls whose
// caller never canonicalized (bare digits, empty) match nothing.
func (e *Engine) nearest(candidates []*leadSlot, call model.CallRecord) (*leadSlot, time.Duration) {
	var best *leadSlot
	var bestDelta time.Duration

	for _, slot := range candidates {
		if slot.consumed {
			continue
		}
		if !phone.SameCaller(call.Caller, slot.lead.Caller) {
			continue
		}
		delta := call.StartTime.Sub(slot.lead.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > e.FuzzyWindow {
			continue
		}
		if best == nil || delta < bestDelta {
			best = slot
			bestDelta = delta
		}
	}
	return best, bestDelta
}
