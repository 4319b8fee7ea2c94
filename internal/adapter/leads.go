package adapter

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
	"github.com/ridgeline-roofing/conversions-cli/internal/phone"
	"github.com/ridgeline-roofing/conversions-cli/internal/resilience"
	"github.com/ridgeline-roofing/conversions-cli/pkg/whatconverts"
)

// LeadSource retrieves phone-call leads for a date range. Provider-side
// pagination is handled below this interface; failures are fatal to the run.
type LeadSource interface {
	FetchPhoneLeads(ctx context.Context, r model.DateRange) ([]model.LeadRecord, error)
}

// WhatConvertsLeadSource implements LeadSource against the WhatConverts
// leads API.
type WhatConvertsLeadSource struct {
	client whatconverts.Client
	norm   *phone.Normalizer
	retry  resilience.RetryConfig
}

// NewWhatConvertsLeadSource wires the WhatConverts client with the number
// normalizer.
func NewWhatConvertsLeadSource(client whatconverts.Client, norm *phone.Normalizer) *WhatConvertsLeadSource {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("whatconverts", "list_leads")
	return &WhatConvertsLeadSource{client: client, norm: norm, retry: cfg}
}

// FetchPhoneLeads returns phone-call leads created in the range. Caller
// numbers are canonicalized; the tracking number is kept verbatim because
// it identifies the number displayed to the visitor, never the caller.
func (s *WhatConvertsLeadSource) FetchPhoneLeads(ctx context.Context, r model.DateRange) ([]model.LeadRecord, error) {
	raw, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]whatconverts.Lead, error) {
		return s.client.ListLeads(ctx, whatconverts.ListLeadsParams{
			LeadType:  model.LeadTypePhoneCall,
			StartDate: r.Start,
			EndDate:   r.End,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "adapter: fetch leads")
	}

	leads := make([]model.LeadRecord, 0, len(raw))
	for _, l := range raw {
		if l.LeadType != model.LeadTypePhoneCall {
			continue
		}
		created, err := whatconverts.ParseTime(l.DateCreated)
		if err != nil {
			zap.L().Warn("skipping lead with unparseable timestamp",
				zap.Int64("lead_id", l.LeadID),
				zap.Error(err),
			)
			continue
		}
		if !r.Contains(created) {
			continue
		}

		leads = append(leads, model.LeadRecord{
			ID:             strconv.FormatInt(l.LeadID, 10),
			Type:           l.LeadType,
			TrackingNumber: l.TrackingNumber,
			Caller:         s.norm.Normalize(l.CallerNumber),
			DurationSecs:   l.CallDuration,
			CreatedAt:      created,
			Source:         l.LeadSource,
			Medium:         l.LeadMedium,
			Campaign:       l.LeadCampaign,
			LandingPage:    l.LandingURL,
			ClickID:        l.GCLID,
		})
	}

	zap.L().Info("fetched phone leads",
		zap.Int("total", len(raw)),
		zap.Int("in_range", len(leads)),
	)
	return leads, nil
}
