package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-roofing/conversions-cli/internal/config"
	"github.com/ridgeline-roofing/conversions-cli/internal/model"
	"github.com/ridgeline-roofing/conversions-cli/internal/phone"
	"github.com/ridgeline-roofing/conversions-cli/internal/uploader"
)

var (
	feb9  = time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	feb10 = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
)

func testConfig() *config.Config {
	return &config.Config{
		Twilio: config.TwilioConfig{
			AccountSID:     "AC123",
			AuthToken:      "secret",
			BusinessNumber: "0800 316 2922",
		},
		Upload: config.UploadConfig{
			ConversionValue: 50,
			CurrencyCode:    "GBP",
		},
		Reconcile: config.ReconcileConfig{
			MinCallSeconds: 60,
			ExactWindowMS:  30_000,
			FuzzyWindowMS:  300_000,
		},
	}
}

func testCall(id, caller string, start time.Time) model.CallRecord {
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

// newTestPipeline wires mocks with a fixed clock of Feb 10 08:00 UTC, so
// the default range is Feb 9.
func newTestPipeline(calls *mockCallSource, leads *mockLeadSource, sinks []uploader.ConversionSink, st *mockStore) *Pipeline {
	p := New(testConfig(), phone.DefaultUK(), calls, leads, sinks, nil)
	if st != nil {
		p.store = st
	}
	p.now = func() time.Time { return feb10 }
	return p
}

func feb9FullDay() model.DateRange {
	return model.DateRange{
		Start: feb9,
		End:   time.Date(2026, 2, 9, 23, 59, 59, 0, time.UTC),
	}
}

func TestRunDefaultsToYesterday(t *testing.T) {
	mcs := new(mockCallSource)
	mls := new(mockLeadSource)
	mcs.On("FetchQualifyingCalls", mock.Anything, feb9FullDay(), "+448003162922").
		Return([]model.CallRecord{}, nil)
	mls.On("FetchPhoneLeads", mock.Anything, feb9FullDay()).
		Return([]model.LeadRecord{}, nil)

	p := newTestPipeline(mcs, mls, nil, nil)
	outcome, err := p.Run(context.Background(), Params{})
	require.NoError(t, err)

	assert.Equal(t, feb9FullDay(), outcome.Run.Range)
	assert.Equal(t, model.RunStatusComplete, outcome.Run.Status)
	assert.NotEmpty(t, outcome.Run.ID)
	mcs.AssertExpectations(t)
	mls.AssertExpectations(t)
}

func TestRunTrailingWindow(t *testing.T) {
	mcs := new(mockCallSource)
	mls := new(mockLeadSource)
	want := model.DateRange{
		Start: time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 9, 23, 59, 59, 0, time.UTC),
	}
	mcs.On("FetchQualifyingCalls", mock.Anything, want, mock.Anything).
		Return([]model.CallRecord{}, nil)
	mls.On("FetchPhoneLeads", mock.Anything, want).
		Return([]model.LeadRecord{}, nil)

	p := newTestPipeline(mcs, mls, nil, nil)
	_, err := p.Run(context.Background(), Params{Date: feb9, Days: 7})
	require.NoError(t, err)
	mcs.AssertExpectations(t)
}

func TestRunRejectsDaysOutOfBounds(t *testing.T) {
	p := newTestPipeline(new(mockCallSource), new(mockLeadSource), nil, nil)

	_, err := p.Run(context.Background(), Params{Days: 91})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "days 91")

	_, err = p.Run(context.Background(), Params{Days: -1})
	require.Error(t, err)
}

func TestRunDryRunNeverTouchesSinks(t *testing.T) {
	start := feb9.Add(9 * time.Hour)
	mcs := new(mockCallSource)
	mls := new(mockLeadSource)
	mcs.On("FetchQualifyingCalls", mock.Anything, mock.Anything, mock.Anything).
		Return([]model.CallRecord{testCall("CA1", "+447700900123", start)}, nil)
	mls.On("FetchPhoneLeads", mock.Anything, mock.Anything).
		Return([]model.LeadRecord{}, nil)

	sink := &mockSink{platform: "google_ads"}
	st := new(mockStore)
	st.On("SaveRun", mock.Anything, mock.MatchedBy(func(run model.RunRecord) bool {
		return run.Status == model.RunStatusDryRun && run.Unmatched == 1
	})).Return(nil)

	p := newTestPipeline(mcs, mls, []uploader.ConversionSink{sink}, st)
	outcome, err := p.Run(context.Background(), Params{DryRun: true})
	require.NoError(t, err)

	assert.True(t, outcome.DryRun())
	assert.Empty(t, outcome.Run.Uploads)
	sink.AssertNotCalled(t, "Upload")
	st.AssertExpectations(t)
}

func TestRunUploadsGapCalls(t *testing.T) {
	start := feb9.Add(9 * time.Hour)
	call := testCall("CA1", "+447700900123", start)
	mcs := new(mockCallSource)
	mls := new(mockLeadSource)
	mcs.On("FetchQualifyingCalls", mock.Anything, mock.Anything, mock.Anything).
		Return([]model.CallRecord{call}, nil)
	mls.On("FetchPhoneLeads", mock.Anything, mock.Anything).
		Return([]model.LeadRecord{}, nil)

	sink := &mockSink{platform: "google_ads"}
	sink.On("Upload", mock.Anything, mock.MatchedBy(func(gaps []model.UnmatchedCall) bool {
		return len(gaps) == 1 && gaps[0].Call.ID == "CA1"
	}), 50.0, "GBP").Return(model.UploadResult{
		Platform: "google_ads", Attempted: 1, Succeeded: 1,
	}, nil)

	p := newTestPipeline(mcs, mls, []uploader.ConversionSink{sink}, nil)
	outcome, err := p.Run(context.Background(), Params{})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, outcome.Run.Status)
	require.Len(t, outcome.Run.Uploads, 1)
	assert.Equal(t, 1, outcome.Run.Uploads[0].Succeeded)
	sink.AssertExpectations(t)
}

func TestRunSinkFailureIsolation(t *testing.T) {
	// The first sink cannot attempt anything; the second still runs, and the
	// run ends partial.
	start := feb9.Add(9 * time.Hour)
	mcs := new(mockCallSource)
	mls := new(mockLeadSource)
	mcs.On("FetchQualifyingCalls", mock.Anything, mock.Anything, mock.Anything).
		Return([]model.CallRecord{testCall("CA1", "+447700900123", start)}, nil)
	mls.On("FetchPhoneLeads", mock.Anything, mock.Anything).
		Return([]model.LeadRecord{}, nil)

	broken := &mockSink{platform: "google_ads"}
	broken.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(model.UploadResult{}, eris.New("googleads: access token: invalid_grant"))
	second := &mockSink{platform: "microsoft_ads"}
	second.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(model.UploadResult{Platform: "microsoft_ads"}, nil)

	p := newTestPipeline(mcs, mls, []uploader.ConversionSink{broken, second}, nil)
	outcome, err := p.Run(context.Background(), Params{})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusPartial, outcome.Run.Status)
	require.Len(t, outcome.Run.Uploads, 2)
	assert.Equal(t, 1, outcome.Run.Uploads[0].Failed)
	assert.Equal(t, 0, outcome.Run.Uploads[0].Attempted)
	second.AssertNumberOfCalls(t, "Upload", 1)
}

func TestRunNothingToUpload(t *testing.T) {
	// Every call matches a lead: sinks are never invoked and the run is
	// complete.
	start := feb9.Add(9 * time.Hour)
	mcs := new(mockCallSource)
	mls := new(mockLeadSource)
	mcs.On("FetchQualifyingCalls", mock.Anything, mock.Anything, mock.Anything).
		Return([]model.CallRecord{testCall("CA1", "+447700900123", start)}, nil)
	mls.On("FetchPhoneLeads", mock.Anything, mock.Anything).
		Return([]model.LeadRecord{{
			ID:        "L1",
			Type:      model.LeadTypePhoneCall,
			Caller:    "+447700900123",
			CreatedAt: start.Add(10 * time.Second),
		}}, nil)

	sink := &mockSink{platform: "google_ads"}
	p := newTestPipeline(mcs, mls, []uploader.ConversionSink{sink}, nil)
	outcome, err := p.Run(context.Background(), Params{})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, outcome.Run.Status)
	assert.Equal(t, 100.0, outcome.Run.MatchRate)
	assert.Empty(t, outcome.Run.Uploads)
	sink.AssertNotCalled(t, "Upload")
}

func TestRunFetchCallsFatal(t *testing.T) {
	mcs := new(mockCallSource)
	mcs.On("FetchQualifyingCalls", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, eris.New("twilio: unexpected status 401"))

	p := newTestPipeline(mcs, new(mockLeadSource), nil, nil)
	_, err := p.Run(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch calls")
}

func TestRunFetchLeadsFatal(t *testing.T) {
	mcs := new(mockCallSource)
	mls := new(mockLeadSource)
	mcs.On("FetchQualifyingCalls", mock.Anything, mock.Anything, mock.Anything).
		Return([]model.CallRecord{}, nil)
	mls.On("FetchPhoneLeads", mock.Anything, mock.Anything).
		Return(nil, eris.New("whatconverts: unexpected status 500"))

	p := newTestPipeline(mcs, mls, nil, nil)
	_, err := p.Run(context.Background(), Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch leads")
}

func TestRunStoreFailureIsBestEffort(t *testing.T) {
	mcs := new(mockCallSource)
	mls := new(mockLeadSource)
	mcs.On("FetchQualifyingCalls", mock.Anything, mock.Anything, mock.Anything).
		Return([]model.CallRecord{}, nil)
	mls.On("FetchPhoneLeads", mock.Anything, mock.Anything).
		Return([]model.LeadRecord{}, nil)

	st := new(mockStore)
	st.On("SaveRun", mock.Anything, mock.Anything).Return(eris.New("store: insert run: disk full"))

	p := newTestPipeline(mcs, mls, nil, st)
	outcome, err := p.Run(context.Background(), Params{})
	require.NoError(t, err, "history failure must not fail the run")
	assert.Equal(t, model.RunStatusComplete, outcome.Run.Status)
	st.AssertExpectations(t)
}

func TestRunCustomWindowsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Reconcile.ExactWindowMS = 10_000
	cfg.Reconcile.FuzzyWindowMS = 60_000

	p := New(cfg, phone.DefaultUK(), new(mockCallSource), new(mockLeadSource), nil, nil)
	assert.Equal(t, 10*time.Second, p.engine.ExactWindow)
	assert.Equal(t, time.Minute, p.engine.FuzzyWindow)
}
