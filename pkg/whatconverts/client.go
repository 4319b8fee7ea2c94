// Package whatconverts provides read access to the WhatConverts leads API.
package whatconverts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/ridgeline-roofing/conversions-cli/internal/resilience"
)

const (
	defaultBaseURL  = "https://app.whatconverts.com/api/v1"
	defaultPageSize = 250
)

// Client lists leads from the WhatConverts API.
type Client interface {
	// ListLeads returns every lead matching params, walking provider
	// pagination until exhausted.
	ListLeads(ctx context.Context, params ListLeadsParams) ([]Lead, error)
}

// ListLeadsParams filters the leads endpoint.
type ListLeadsParams struct {
	// LeadType filters by lead type, e.g. "phone_call".
	LeadType string
	// StartDate / EndDate bound lead creation (inclusive dates, UTC).
	StartDate time.Time
	EndDate   time.Time
}

// Lead is a single lead record as returned by the API.
type Lead struct {
	LeadID         int64  `json:"lead_id"`
	LeadType       string `json:"lead_type"`
	TrackingNumber string `json:"tracking_number"`
	CallerNumber   string `json:"caller_number"`
	CallDuration   int    `json:"call_duration_seconds"`
	DateCreated    string `json:"date_created"`
	LeadSource     string `json:"lead_source"`
	LeadMedium     string `json:"lead_medium"`
	LeadCampaign   string `json:"lead_campaign"`
	LandingURL     string `json:"landing_url"`
	GCLID          string `json:"gclid"`
	MSCLKID        string `json:"msclkid"`
}

// ParseTime parses a lead creation timestamp into UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "whatconverts: parse time %q", s)
	}
	return t.UTC(), nil
}

type leadsPage struct {
	PageNumber   int    `json:"page_number"`
	LeadsPerPage int    `json:"leads_per_page"`
	TotalPages   int    `json:"total_pages"`
	Leads        []Lead `json:"leads"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets a per-second request rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithPageSize overrides the per-request page size.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

type httpClient struct {
	token    string
	secret   string
	baseURL  string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient creates a WhatConverts API client. Token and secret are the
// profile-level API credentials, sent as basic auth.
func NewClient(token, secret string, opts ...Option) Client {
	c := &httpClient{
		token:    token,
		secret:   secret,
		baseURL:  defaultBaseURL,
		pageSize: defaultPageSize,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) ListLeads(ctx context.Context, params ListLeadsParams) ([]Lead, error) {
	var all []Lead
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "whatconverts: list leads")
		}
		resp, err := c.fetchPage(ctx, params, page)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Leads...)
		if page >= resp.TotalPages {
			break
		}
	}
	return all, nil
}

func (c *httpClient) fetchPage(ctx context.Context, params ListLeadsParams, page int) (*leadsPage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "whatconverts: rate limit")
	}

	q := url.Values{}
	q.Set("page_number", fmt.Sprintf("%d", page))
	q.Set("leads_per_page", fmt.Sprintf("%d", c.pageSize))
	if params.LeadType != "" {
		q.Set("lead_type", params.LeadType)
	}
	if !params.StartDate.IsZero() {
		q.Set("start_date", params.StartDate.UTC().Format("2006-01-02"))
	}
	if !params.EndDate.IsZero() {
		q.Set("end_date", params.EndDate.UTC().Format("2006-01-02"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/leads?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "whatconverts: create request")
	}
	req.SetBasicAuth(c.token, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "whatconverts: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "whatconverts: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("whatconverts: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result leadsPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "whatconverts: unmarshal response")
	}
	return &result, nil
}
