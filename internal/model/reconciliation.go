package model

import "time"

// MatchConfidence classifies how close a call/lead pairing is in time.
type MatchConfidence string

const (
	// ConfidenceExact means the call and lead are essentially simultaneous.
	ConfidenceExact MatchConfidence = "exact"
	// ConfidenceFuzzy means the pairing is plausible but the timestamps
	// disagree by more than the exact threshold (webhook propagation,
	// ring-vs-connect skew).
	ConfidenceFuzzy MatchConfidence = "fuzzy"
)

// ReasonNoLeadMatch tags a call for which no eligible lead exists. These are
// the gap calls submitted downstream as offline conversions.
const ReasonNoLeadMatch = "no_lead_match"

// MatchedPair associates one call with one lead. A lead is consumed by at
// most one pair, and a call appears in at most one pair.
type MatchedPair struct {
	Call       CallRecord      `json:"call"`
	Lead       LeadRecord      `json:"lead"`
	Confidence MatchConfidence `json:"confidence"`
	Delta      time.Duration   `json:"delta"`
}

// UnmatchedCall is a qualifying call with no eligible lead.
type UnmatchedCall struct {
	Call   CallRecord `json:"call"`
	Reason string     `json:"reason"`
}

// ReconciliationResult is the full outcome of matching one date range.
type ReconciliationResult struct {
	Range      DateRange       `json:"range"`
	TotalCalls int             `json:"total_calls"`
	TotalLeads int             `json:"total_leads"`
	Matched    []MatchedPair   `json:"matched"`
	Unmatched  []UnmatchedCall `json:"unmatched"`
	MatchRate  float64         `json:"match_rate"`
}

// ComputeMatchRate returns matched/total as a percentage, 0 when there are
// no calls.
func ComputeMatchRate(matched, totalCalls int) float64 {
	if totalCalls == 0 {
		return 0
	}
	return float64(matched) / float64(totalCalls) * 100
}
