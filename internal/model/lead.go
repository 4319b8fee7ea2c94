package model

import "time"

// LeadTypePhoneCall is the only lead type the pipeline reconciles against.
const LeadTypePhoneCall = "phone_call"

// LeadRecord is a phone-call lead fetched from the call-tracking provider.
// Caller is canonicalized; TrackingNumber is kept verbatim and never used
// for matching (it is the number shown to the visitor, not the caller).
type LeadRecord struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	TrackingNumber string    `json:"tracking_number"`
	Caller         string    `json:"caller"`
	DurationSecs   int       `json:"duration_secs"`
	CreatedAt      time.Time `json:"created_at"`
	Source         string    `json:"source,omitempty"`
	Medium         string    `json:"medium,omitempty"`
	Campaign       string    `json:"campaign,omitempty"`
	LandingPage    string    `json:"landing_page,omitempty"`
	ClickID        string    `json:"click_id,omitempty"`
}
