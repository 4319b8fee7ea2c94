// Package pipeline orchestrates a reconciliation run: fetch calls, fetch
// leads, match them, upload the gap calls, record and report the outcome.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgeline-roofing/conversions-cli/internal/adapter"
	"github.com/ridgeline-roofing/conversions-cli/internal/config"
	"github.com/ridgeline-roofing/conversions-cli/internal/model"
	"github.com/ridgeline-roofing/conversions-cli/internal/phone"
	"github.com/ridgeline-roofing/conversions-cli/internal/reconcile"
	"github.com/ridgeline-roofing/conversions-cli/internal/store"
	"github.com/ridgeline-roofing/conversions-cli/internal/uploader"
)

// MaxRangeDays caps a single run's trailing window. Anything longer is a
// backfill that should be split into multiple runs.
const MaxRangeDays = 90

// Params selects the date range and mode for one run.
type Params struct {
	// Date is the last (most recent) day of the range, interpreted in UTC.
	// Zero means yesterday.
	Date time.Time

	// Days is the trailing window length ending at Date, in [1, MaxRangeDays].
	Days int

	DryRun  bool
	Verbose bool
}

// Outcome is everything a run produced: the persisted summary plus the full
// reconciliation detail for verbose reporting.
type Outcome struct {
	Run            model.RunRecord
	Reconciliation model.ReconciliationResult

	// ConversionValue and Currency echo the configured per-call value so the
	// report can show the total value at stake.
	ConversionValue float64
	Currency        string
}

// DryRun reports whether the run stopped before touching any sink.
func (o *Outcome) DryRun() bool {
	return o.Run.Status == model.RunStatusDryRun
}

// Pipeline wires the fetch, match, upload and record stages together. The
// sinks run in order and are failure-isolated: one platform rejecting its
// batches never stops the next platform from being attempted.
type Pipeline struct {
	cfg   *config.Config
	norm  *phone.Normalizer
	calls adapter.CallSource
	leads adapter.LeadSource
	sinks []uploader.ConversionSink
	store store.Store // nil disables run history

	engine *reconcile.Engine
	now    func() time.Time
}

// New builds a pipeline from its stages. st may be nil.
func New(cfg *config.Config, norm *phone.Normalizer, calls adapter.CallSource, leads adapter.LeadSource, sinks []uploader.ConversionSink, st store.Store) *Pipeline {
	engine := reconcile.New()
	if cfg.Reconcile.ExactWindowMS > 0 {
		engine.ExactWindow = time.Duration(cfg.Reconcile.ExactWindowMS) * time.Millisecond
	}
	if cfg.Reconcile.FuzzyWindowMS > 0 {
		engine.FuzzyWindow = time.Duration(cfg.Reconcile.FuzzyWindowMS) * time.Millisecond
	}
	return &Pipeline{
		cfg:    cfg,
		norm:   norm,
		calls:  calls,
		leads:  leads,
		sinks:  sinks,
		store:  st,
		engine: engine,
		now:    time.Now,
	}
}

// Run executes one reconciliation run. The returned error is fatal (bad
// params, fetch failure); upload failures are encoded in the outcome and
// mapped to an exit code by the caller.
func (p *Pipeline) Run(ctx context.Context, params Params) (*Outcome, error) {
	started := p.now()

	r, err := p.resolveRange(params)
	if err != nil {
		return nil, err
	}
	zap.L().Info("run starting",
		zap.Time("range_start", r.Start),
		zap.Time("range_end", r.End),
		zap.Bool("dry_run", params.DryRun),
	)

	destination := p.norm.Normalize(p.cfg.Twilio.BusinessNumber)
	calls, err := p.calls.FetchQualifyingCalls(ctx, r, destination)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch calls")
	}

	leads, err := p.leads.FetchPhoneLeads(ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch leads")
	}

	recon := p.engine.Reconcile(r, calls, leads)

	outcome := &Outcome{
		Reconciliation:  recon,
		ConversionValue: p.cfg.Upload.ConversionValue,
		Currency:        p.cfg.Upload.CurrencyCode,
		Run: model.RunRecord{
			ID:        uuid.NewString(),
			Range:     r,
			Calls:     recon.TotalCalls,
			Leads:     recon.TotalLeads,
			Matched:   len(recon.Matched),
			Unmatched: len(recon.Unmatched),
			MatchRate: recon.MatchRate,
			CreatedAt: started.UTC(),
		},
	}

	if params.DryRun {
		outcome.Run.Status = model.RunStatusDryRun
	} else {
		outcome.Run.Uploads = p.upload(ctx, recon.Unmatched)
		outcome.Run.Status = model.RunStatusComplete
		if outcome.Run.TotalFailed() > 0 {
			outcome.Run.Status = model.RunStatusPartial
		}
	}
	outcome.Run.Duration = p.now().Sub(started)

	p.record(ctx, outcome.Run)

	zap.L().Info("run finished",
		zap.String("run_id", outcome.Run.ID),
		zap.String("status", string(outcome.Run.Status)),
		zap.Int("matched", outcome.Run.Matched),
		zap.Int("unmatched", outcome.Run.Unmatched),
		zap.Float64("match_rate", outcome.Run.MatchRate),
	)
	return outcome, nil
}

// resolveRange turns the params into inclusive UTC day bounds: a trailing
// window of Days days ending at Date.
func (p *Pipeline) resolveRange(params Params) (model.DateRange, error) {
	days := params.Days
	if days == 0 {
		days = 1
	}
	if days < 1 || days > MaxRangeDays {
		return model.DateRange{}, eris.Errorf("pipeline: days %d outside 1-%d", days, MaxRangeDays)
	}

	date := params.Date
	if date.IsZero() {
		date = p.now().UTC().AddDate(0, 0, -1)
	}
	date = date.UTC()

	end := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 0, time.UTC)
	startDay := date.AddDate(0, 0, -(days - 1))
	start := time.Date(startDay.Year(), startDay.Month(), startDay.Day(), 0, 0, 0, 0, time.UTC)
	return model.DateRange{Start: start, End: end}, nil
}

// upload runs every sink over the gap calls. A sink returning an error
// attempted nothing; its calls are recorded failed and the next sink still
// runs.
func (p *Pipeline) upload(ctx context.Context, gaps []model.UnmatchedCall) []model.UploadResult {
	if len(gaps) == 0 {
		return nil
	}

	results := make([]model.UploadResult, 0, len(p.sinks))
	for _, sink := range p.sinks {
		result, err := sink.Upload(ctx, gaps, p.cfg.Upload.ConversionValue, p.cfg.Upload.CurrencyCode)
		if err != nil {
			zap.L().Error("sink could not attempt upload",
				zap.String("platform", sink.Platform()),
				zap.Error(err),
			)
			result = model.UploadResult{
				Platform: sink.Platform(),
				Failed:   len(gaps),
				Errors:   []model.UploadError{{Message: err.Error()}},
			}
		}
		results = append(results, result)
	}
	return results
}

// record persists the run summary. Best effort: history must never change
// the outcome of a run that already happened.
func (p *Pipeline) record(ctx context.Context, run model.RunRecord) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		zap.L().Warn("run history write failed", zap.Error(err))
	}
}
