// Package store persists run summaries so match-rate trends and upload
// outcomes can be inspected after the fact.
package store

import (
	"context"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
)

// DefaultListLimit bounds a runs listing when the caller does not ask for a
// specific count.
const DefaultListLimit = 20

// Store records pipeline run summaries.
type Store interface {
	// Migrate creates the runs table if it does not exist.
	Migrate(ctx context.Context) error

	// SaveRun persists one run summary.
	SaveRun(ctx context.Context, run model.RunRecord) error

	// ListRuns returns the most recent runs, newest first, at most limit
	// entries (DefaultListLimit when limit <= 0).
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)

	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
