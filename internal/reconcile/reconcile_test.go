package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
)

var baseTime = time.Date(2026, 2, 9, 9, 0, 0, 0, time.UTC)

func feb9Range() model.DateRange {
	return model.DateRange{
		Start: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 9, 23, 59, 59, 0, time.UTC),
	}
}

func call(id, caller string, start time.Time) model.CallRecord {
	return model.CallRecord{
		ID:           id,
		Caller:       caller,
		Destination:  "+448003162922",
		Direction:    model.DirectionInbound,
		DurationSecs: 90,
		StartTime:    start,
		EndTime:      start.Add(90 * time.Second),
		Status:       model.StatusCompleted,
	}
}

func lead(id, caller string, created time.Time) model.LeadRecord {
	return model.LeadRecord{
		ID:        id,
		Type:      model.LeadTypePhoneCall,
		Caller:    caller,
		CreatedAt: created,
	}
}

func TestReconcileWindowBoundaries(t *testing.T) {
	tests := []struct {
		name           string
		delta          time.Duration
		wantMatched    bool
		wantConfidence model.MatchConfidence
	}{
		{"just_inside_exact", 29_999 * time.Millisecond, true, model.ConfidenceExact},
		{"exactly_exact_window", 30_000 * time.Millisecond, true, model.ConfidenceExact},
		{"just_outside_exact", 30_001 * time.Millisecond, true, model.ConfidenceFuzzy},
		{"just_inside_fuzzy", 299_999 * time.Millisecond, true, model.ConfidenceFuzzy},
		{"just_outside_fuzzy", 300_001 * time.Millisecond, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New()
			result := e.Reconcile(feb9Range(),
				[]model.CallRecord{call("c1", "+447700900123", baseTime.Add(tt.delta))},
				[]model.LeadRecord{lead("l1", "+447700900123", baseTime)},
			)

			if !tt.wantMatched {
				assert.Empty(t, result.Matched)
				require.Len(t, result.Unmatched, 1)
				assert.Equal(t, model.ReasonNoLeadMatch, result.Unmatched[0].Reason)
				return
			}
			require.Len(t, result.Matched, 1)
			assert.Equal(t, tt.wantConfidence, result.Matched[0].Confidence)
			assert.Equal(t, tt.delta, result.Matched[0].Delta)
		})
	}
}

func TestReconcileNearestNeighborTieBreak(t *testing.T) {
	e := New()
	result := e.Reconcile(feb9Range(),
		[]model.CallRecord{call("c1", "+447700900123", baseTime)},
		[]model.LeadRecord{
			lead("l_far", "+447700900123", baseTime.Add(200*time.Second)),
			lead("l_near", "+447700900123", baseTime.Add(10*time.Second)),
		},
	)

	require.Len(t, result.Matched, 1)
	assert.Equal(t, "l_near", result.Matched[0].Lead.ID)
	assert.Equal(t, 10*time.Second, result.Matched[0].Delta)
}

func TestReconcileNoDoubleMatching(t *testing.T) {
	// Two calls from the same caller, one lead: the first call (by start
	// time order) consumes the lead, the second goes unmatched.
	e := New()
	result := e.Reconcile(feb9Range(),
		[]model.CallRecord{
			call("c1", "+447700900123", baseTime),
			call("c2", "+447700900123", baseTime.Add(time.Minute)),
		},
		[]model.LeadRecord{lead("l1", "+447700900123", baseTime.Add(5*time.Second))},
	)

	require.Len(t, result.Matched, 1)
	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, "c1", result.Matched[0].Call.ID)
	assert.Equal(t, "c2", result.Unmatched[0].Call.ID)

	// Invariant: every call id appears exactly once across both sets,
	// every lead id at most once among matches.
	seenCalls := map[string]int{}
	seenLeads := map[string]int{}
	for _, m := range result.Matched {
		seenCalls[m.Call.ID]++
		seenLeads[m.Lead.ID]++
	}
	for _, u := range result.Unmatched {
		seenCalls[u.Call.ID]++
	}
	for id, n := range seenCalls {
		assert.Equal(t, 1, n, "call %s", id)
	}
	for id, n := range seenLeads {
		assert.Equal(t, 1, n, "lead %s", id)
	}
}

func TestReconcileRepeatCallersPairIndependently(t *testing.T) {
	e := New()
	result := e.Reconcile(feb9Range(),
		[]model.CallRecord{
			call("c1", "+447700900123", baseTime),
			call("c2", "+447700900123", baseTime.Add(2*time.Hour)),
		},
		[]model.LeadRecord{
			lead("l1", "+447700900123", baseTime.Add(10*time.Second)),
			lead("l2", "+447700900123", baseTime.Add(2*time.Hour+20*time.Second)),
		},
	)

	require.Len(t, result.Matched, 2)
	assert.Equal(t, "l1", result.Matched[0].Lead.ID)
	assert.Equal(t, "l2", result.Matched[1].Lead.ID)
	assert.Empty(t, result.Unmatched)
	assert.Equal(t, 100.0, result.MatchRate)
}

func TestReconcileUnknownCallerNeverMatches(t *testing.T) {
	// A caller that failed canonicalization (bare digits) must not match
	// a lead with the same bare digits: unrecognizable numbers stay
	// unmatched rather than guessing.
	e := New()
	result := e.Reconcile(feb9Range(),
		[]model.CallRecord{call("c1", "12345", baseTime)},
		[]model.LeadRecord{lead("l1", "12345", baseTime)},
	)

	assert.Empty(t, result.Matched)
	require.Len(t, result.Unmatched, 1)
}

func TestReconcileEmptyInputs(t *testing.T) {
	e := New()
	result := e.Reconcile(feb9Range(), nil, nil)
	assert.Equal(t, 0, result.TotalCalls)
	assert.Equal(t, 0, result.TotalLeads)
	assert.Equal(t, 0.0, result.MatchRate, "no calls must not divide by zero")
}

func TestReconcileEndToEndScenario(t *testing.T) {
	// Five qualifying calls, three leads matching three of them within the
	// fuzzy window: 3 matched, 2 unmatched, 60% match rate.
	var calls []model.CallRecord
	for i := range 5 {
		caller := fmt.Sprintf("+44770090012%d", i)
		calls = append(calls, call(fmt.Sprintf("c%d", i), caller, baseTime.Add(time.Duration(i)*30*time.Minute)))
	}
	leads := []model.LeadRecord{
		lead("l0", "+447700900120", baseTime.Add(15*time.Second)),
		lead("l2", "+447700900122", baseTime.Add(60*time.Minute+45*time.Second)),
		lead("l4", "+447700900124", baseTime.Add(120*time.Minute+2*time.Minute)),
	}

	e := New()
	result := e.Reconcile(feb9Range(), calls, leads)

	assert.Equal(t, 5, result.TotalCalls)
	assert.Equal(t, 3, result.TotalLeads)
	require.Len(t, result.Matched, 3)
	require.Len(t, result.Unmatched, 2)
	assert.Equal(t, 60.0, result.MatchRate)

	unmatchedIDs := []string{result.Unmatched[0].Call.ID, result.Unmatched[1].Call.ID}
	assert.ElementsMatch(t, []string{"c1", "c3"}, unmatchedIDs)
}
