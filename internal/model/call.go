package model

import "time"

// Call direction and status values as reported by the telephony provider.
const (
	DirectionInbound = "inbound"
	StatusCompleted  = "completed"
)

// CallRecord is a single inbound telephone call fetched from the telephony
// provider. Caller and Destination are held in canonical +<cc><national>
// form. Records are immutable once fetched and live for one pipeline run.
type CallRecord struct {
	ID           string    `json:"id"`
	Caller       string    `json:"caller"`
	Destination  string    `json:"destination"`
	Direction    string    `json:"direction"`
	DurationSecs int       `json:"duration_secs"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
}

// Qualifies reports whether the call is a genuine enquiry worth reconciling:
// inbound, completed, and at least minDurationSecs long.
func (c CallRecord) Qualifies(minDurationSecs int) bool {
	return c.Direction == DirectionInbound &&
		c.Status == StatusCompleted &&
		c.DurationSecs >= minDurationSecs
}

// DateRange is an inclusive UTC date window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the range, bounds inclusive.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}
