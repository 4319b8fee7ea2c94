// Package uploader submits unmatched gap calls to the advertising platforms
// as offline conversion events.
package uploader

import (
	"context"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
)

// ConversionSink is one advertising platform accepting offline conversions.
// The returned error means nothing could be attempted at all (setup or auth
// before the first batch); per-item and per-batch failures are always
// encoded in the UploadResult so the remaining batches and the other
// platform still proceed.
type ConversionSink interface {
	Platform() string
	Upload(ctx context.Context, calls []model.UnmatchedCall, value float64, currency string) (model.UploadResult, error)
}

// chunk splits calls into batches of at most size.
func chunk(calls []model.UnmatchedCall, size int) [][]model.UnmatchedCall {
	if size <= 0 || len(calls) == 0 {
		return nil
	}
	var batches [][]model.UnmatchedCall
	for start := 0; start < len(calls); start += size {
		end := min(start+size, len(calls))
		batches = append(batches, calls[start:end])
	}
	return batches
}
