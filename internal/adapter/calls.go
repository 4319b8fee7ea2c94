// Package adapter turns raw provider records into the pipeline's domain
// types: qualifying calls from the telephony provider and phone leads from
// the call-tracking provider.
package adapter

import (
	"context"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
	"github.com/ridgeline-roofing/conversions-cli/internal/phone"
	"github.com/ridgeline-roofing/conversions-cli/internal/resilience"
	"github.com/ridgeline-roofing/conversions-cli/pkg/twilio"
)

// DefaultMinCallSeconds is the industry-standard cutoff separating genuine
// enquiries from misdials and voicemail pickups.
const DefaultMinCallSeconds = 60

// CallSource retrieves qualifying inbound calls for a date range. Any
// transport or auth failure is fatal to the run: reconciling against
// partial call data would silently under-report the tracking gap.
type CallSource interface {
	FetchQualifyingCalls(ctx context.Context, r model.DateRange, destination string) ([]model.CallRecord, error)
}

// TwilioCallSource implements CallSource against the Twilio call log.
type TwilioCallSource struct {
	client  twilio.Client
	norm    *phone.Normalizer
	minSecs int
	retry   resilience.RetryConfig
}

// NewTwilioCallSource wires the Twilio client with the number normalizer.
// minSecs <= 0 falls back to DefaultMinCallSeconds.
func NewTwilioCallSource(client twilio.Client, norm *phone.Normalizer, minSecs int) *TwilioCallSource {
	if minSecs <= 0 {
		minSecs = DefaultMinCallSeconds
	}
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("twilio", "list_calls")
	return &TwilioCallSource{client: client, norm: norm, minSecs: minSecs, retry: cfg}
}

// FetchQualifyingCalls returns completed inbound calls of at least the
// minimum duration to the destination number, with numbers canonicalized
// and records sorted ascending by start time.
func (s *TwilioCallSource) FetchQualifyingCalls(ctx context.Context, r model.DateRange, destination string) ([]model.CallRecord, error) {
	raw, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]twilio.Call, error) {
		return s.client.ListCalls(ctx, twilio.ListCallsParams{
			To:            destination,
			StartedAfter:  r.Start,
			StartedBefore: r.End,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "adapter: fetch calls")
	}

	calls := make([]model.CallRecord, 0, len(raw))
	for _, c := range raw {
		rec, err := s.toRecord(c)
		if err != nil {
			zap.L().Warn("skipping unparseable call record",
				zap.String("sid", c.Sid),
				zap.Error(err),
			)
			continue
		}
		if !r.Contains(rec.StartTime) {
			continue
		}
		if !rec.Qualifies(s.minSecs) {
			continue
		}
		calls = append(calls, rec)
	}

	sort.Slice(calls, func(i, j int) bool {
		return calls[i].StartTime.Before(calls[j].StartTime)
	})

	zap.L().Info("fetched qualifying calls",
		zap.Int("total", len(raw)),
		zap.Int("qualifying", len(calls)),
	)
	return calls, nil
}

func (s *TwilioCallSource) toRecord(c twilio.Call) (model.CallRecord, error) {
	start, err := twilio.ParseTime(c.StartTime)
	if err != nil {
		return model.CallRecord{}, err
	}
	end, err := twilio.ParseTime(c.EndTime)
	if err != nil {
		return model.CallRecord{}, err
	}
	// Duration is string-typed seconds on the wire.
	secs, err := strconv.Atoi(c.Duration)
	if err != nil {
		return model.CallRecord{}, eris.Wrapf(err, "adapter: parse duration %q", c.Duration)
	}

	return model.CallRecord{
		ID:           c.Sid,
		Caller:       s.norm.Normalize(c.From),
		Destination:  s.norm.Normalize(c.To),
		Direction:    c.Direction,
		DurationSecs: secs,
		StartTime:    start,
		EndTime:      end,
		Status:       c.Status,
	}, nil
}
