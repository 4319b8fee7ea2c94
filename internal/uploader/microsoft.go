package uploader

import (
	"context"

	"go.uber.org/zap"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
	"github.com/ridgeline-roofing/conversions-cli/pkg/msads"
)

// PlatformMicrosoftAds names the Microsoft Advertising sink.
const PlatformMicrosoftAds = "microsoft_ads"

// CodeMissingClickID marks the structural gap on this platform: offline
// conversions are keyed by MSCLKID, and a gap call is by definition a call
// the tracking provider never attributed, so no click ID exists for it.
const CodeMissingClickID = "missing_click_id"

// MicrosoftUploader applies offline conversions for gap calls that can be
// tied to a Microsoft click ID. ResolveClickID maps a call to its MSCLKID;
// when it is nil or returns "" for every call (the normal case for gap
// calls), the uploader reports the capability gap instead of calling the
// API.
type MicrosoftUploader struct {
	client         msads.Client
	creds          msads.Credentials
	conversionName string

	ResolveClickID func(model.CallRecord) string
}

// NewMicrosoftUploader creates the Microsoft Advertising sink. client may be
// nil when creds are not configured.
func NewMicrosoftUploader(client msads.Client, creds msads.Credentials, conversionName string) *MicrosoftUploader {
	return &MicrosoftUploader{
		client:         client,
		creds:          creds,
		conversionName: conversionName,
	}
}

func (u *MicrosoftUploader) Platform() string { return PlatformMicrosoftAds }

// Upload applies conversions for calls with a resolvable click ID and
// reports the rest as a zero-attempt capability gap. The gap entry is
// informational: it carries zero attempts and so never fails a run.
func (u *MicrosoftUploader) Upload(ctx context.Context, calls []model.UnmatchedCall, value float64, currency string) (model.UploadResult, error) {
	result := model.UploadResult{Platform: PlatformMicrosoftAds}
	if len(calls) == 0 {
		return result, nil
	}

	var keyed []model.UnmatchedCall
	var conversions []msads.OfflineConversion
	for _, gap := range calls {
		id := ""
		if u.ResolveClickID != nil {
			id = u.ResolveClickID(gap.Call)
		}
		if id == "" {
			continue
		}
		keyed = append(keyed, gap)
		conversions = append(conversions, msads.OfflineConversion{
			ClickID:             id,
			ConversionName:      u.conversionName,
			ConversionTime:      gap.Call.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
			ConversionValue:     value,
			ConversionCurrency:  currency,
			ExternalAttribution: true,
		})
	}

	skipped := len(calls) - len(keyed)
	if skipped > 0 {
		result.Errors = append(result.Errors, model.UploadError{
			Message: "offline conversions require a Microsoft click ID, which untracked calls do not carry",
			Code:    CodeMissingClickID,
		})
		zap.L().Info("microsoft ads skipped calls without click IDs",
			zap.Int("skipped", skipped),
		)
	}
	if len(keyed) == 0 {
		return result, nil
	}
	if !u.creds.Configured() || u.client == nil {
		result.Failed += len(keyed)
		for _, gap := range keyed {
			result.Errors = append(result.Errors, model.UploadError{
				CallID:  gap.Call.ID,
				Caller:  gap.Call.Caller,
				Message: "microsoft ads credentials not configured",
			})
		}
		result.Attempted += len(keyed)
		return result, nil
	}

	result.Attempted += len(keyed)
	resp, err := u.client.ApplyOfflineConversions(ctx, conversions)
	if err != nil {
		result.Failed += len(keyed)
		for _, gap := range keyed {
			result.Errors = append(result.Errors, model.UploadError{
				CallID:  gap.Call.ID,
				Caller:  gap.Call.Caller,
				Message: err.Error(),
			})
		}
		return result, nil
	}

	failed := make(map[int]bool)
	for _, pe := range resp.PartialErrors {
		if pe.Index < 0 || pe.Index >= len(keyed) || failed[pe.Index] {
			continue
		}
		failed[pe.Index] = true
		gap := keyed[pe.Index]
		result.Errors = append(result.Errors, model.UploadError{
			CallID:  gap.Call.ID,
			Caller:  gap.Call.Caller,
			Message: pe.Message,
			Code:    pe.Code,
		})
	}
	result.Failed += len(failed)
	result.Succeeded += len(keyed) - len(failed)
	return result, nil
}
