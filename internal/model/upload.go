package model

import "time"

// UploadError records one call that an ads platform rejected (or could not
// be submitted at all). Code is platform-specific and may be empty.
type UploadError struct {
	CallID  string `json:"call_id,omitempty"`
	Caller  string `json:"caller,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// UploadResult is the per-platform outcome of an offline-conversion upload.
type UploadResult struct {
	Platform  string        `json:"platform"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Errors    []UploadError `json:"errors,omitempty"`
}

// RunStatus describes how a pipeline run ended.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusDryRun   RunStatus = "dry_run"
)

// RunRecord is the persisted summary of one pipeline run.
type RunRecord struct {
	ID        string         `json:"id"`
	Range     DateRange      `json:"range"`
	Status    RunStatus      `json:"status"`
	Calls     int            `json:"calls"`
	Leads     int            `json:"leads"`
	Matched   int            `json:"matched"`
	Unmatched int            `json:"unmatched"`
	MatchRate float64        `json:"match_rate"`
	Uploads   []UploadResult `json:"uploads,omitempty"`
	Duration  time.Duration  `json:"duration"`
	CreatedAt time.Time      `json:"created_at"`
}

// TotalFailed sums upload failures across platforms. Synthetic capability-gap
// entries carry zero attempts and do not count as failures.
func (r RunRecord) TotalFailed() int {
	n := 0
	for _, u := range r.Uploads {
		n += u.Failed
	}
	return n
}
