package uploader

import (
	"context"

	"go.uber.org/zap"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
	"github.com/ridgeline-roofing/conversions-cli/pkg/googleads"
)

// PlatformGoogleAds names the Google Ads sink in reports and run records.
const PlatformGoogleAds = "google_ads"

// GoogleUploader submits gap calls as caller-ID keyed call conversions.
// Uploads are never retried: the API is not idempotent for conversion
// uploads and a duplicate submission inflates reported conversions.
type GoogleUploader struct {
	client           googleads.Client
	conversionAction string
	batchSize        int
}

// NewGoogleUploader creates an uploader writing to the given conversion
// action resource name. batchSize is clamped to the API per-request cap.
func NewGoogleUploader(client googleads.Client, conversionAction string, batchSize int) *GoogleUploader {
	if batchSize <= 0 || batchSize > googleads.MaxConversionsPerRequest {
		batchSize = googleads.MaxConversionsPerRequest
	}
	return &GoogleUploader{
		client:           client,
		conversionAction: conversionAction,
		batchSize:        batchSize,
	}
}

func (u *GoogleUploader) Platform() string { return PlatformGoogleAds }

// Upload submits every gap call in batches. A failed batch marks its own
// items failed and moves on to the next batch; the returned error is
// reserved for the case where nothing was attempted at all.
func (u *GoogleUploader) Upload(ctx context.Context, calls []model.UnmatchedCall, value float64, currency string) (model.UploadResult, error) {
	result := model.UploadResult{Platform: PlatformGoogleAds}
	if len(calls) == 0 {
		return result, nil
	}

	for _, batch := range chunk(calls, u.batchSize) {
		if err := ctx.Err(); err != nil {
			if result.Attempted == 0 {
				return result, err
			}
			u.failBatch(&result, batch, "cancelled: "+err.Error())
			continue
		}

		req := googleads.UploadCallConversionsRequest{
			Conversions:    make([]googleads.CallConversion, len(batch)),
			PartialFailure: true,
		}
		for i, gap := range batch {
			start := gap.Call.StartTime.UTC()
			req.Conversions[i] = googleads.CallConversion{
				CallerID:           gap.Call.Caller,
				CallStartDateTime:  start.Format(googleads.DateTimeLayout),
				ConversionAction:   u.conversionAction,
				ConversionDateTime: start.Format(googleads.DateTimeLayout),
				ConversionValue:    value,
				CurrencyCode:       currency,
			}
		}

		result.Attempted += len(batch)
		resp, err := u.client.UploadCallConversions(ctx, req)
		if err != nil {
			zap.L().Error("call conversion batch rejected",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			u.failBatch(&result, batch, err.Error())
			continue
		}
		u.recordBatch(&result, batch, resp)
	}

	zap.L().Info("google ads upload finished",
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// failBatch marks every item of a batch failed with a shared message.
func (u *GoogleUploader) failBatch(result *model.UploadResult, batch []model.UnmatchedCall, message string) {
	result.Failed += len(batch)
	for _, gap := range batch {
		result.Errors = append(result.Errors, model.UploadError{
			CallID:  gap.Call.ID,
			Caller:  gap.Call.Caller,
			Message: message,
		})
	}
}

// recordBatch attributes partial-failure errors back to the calls in the
// batch by request index. Errors the API does not tie to a single item are
// reported once without a call attached.
func (u *GoogleUploader) recordBatch(result *model.UploadResult, batch []model.UnmatchedCall, resp *googleads.UploadCallConversionsResponse) {
	if resp.PartialFailureError == nil {
		result.Succeeded += len(batch)
		return
	}

	failedIdx := make(map[int]bool)
	for _, detail := range resp.PartialFailureError.Details {
		for _, adsErr := range detail.Errors {
			idx := adsErr.ConversionIndex()
			if idx < 0 || idx >= len(batch) {
				result.Failed++
				result.Errors = append(result.Errors, model.UploadError{
					Message: adsErr.Message,
					Code:    adsErr.Code(),
				})
				continue
			}
			if failedIdx[idx] {
				continue
			}
			failedIdx[idx] = true
			result.Failed++
			gap := batch[idx]
			result.Errors = append(result.Errors, model.UploadError{
				CallID:  gap.Call.ID,
				Caller:  gap.Call.Caller,
				Message: adsErr.Message,
				Code:    adsErr.Code(),
			})
			zap.L().Warn("call conversion rejected",
				zap.String("call_id", gap.Call.ID),
				zap.String("code", adsErr.Code()),
				zap.String("message", adsErr.Message),
			)
		}
	}
	result.Succeeded += len(batch) - len(failedIdx)
}
