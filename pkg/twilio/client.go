// Package twilio provides read access to the Twilio Voice call log.
package twilio

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
	defaultBaseURL  = "https://api.twilio.com"
	defaultPageSize = 200
)

// Client lists calls from the Twilio REST API.
type Client interface {
	// ListCalls returns every call matching params, walking provider
	// pagination until exhausted.
	ListCalls(ctx context.Context, params ListCallsParams) ([]Call, error)
}

// ListCallsParams filters the call log.
type ListCallsParams struct {
	// To restricts results to calls made to this number (E.164).
	To string
	// StartedAfter / StartedBefore bound the call start time (inclusive
	// dates, UTC).
	StartedAfter  time.Time
	StartedBefore time.Time
}

// Call is a single call record as returned by the API. Duration is
// string-typed seconds on the wire.
type Call struct {
	Sid       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

// timeLayout is Twilio's RFC 2822 timestamp format.
const timeLayout = time.RFC1123Z

// ParseTime parses a Twilio timestamp into UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "twilio: parse time %q", s)
	}
	return t.UTC(), nil
}

type callsPage struct {
	Calls       []Call `json:"calls"`
	NextPageURI string `json:"next_page_uri"`
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
	accountSID string
	authToken  string
	baseURL    string
	pageSize   int
	http       *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Twilio API client authenticated with the account SID
// and auth token.
func NewClient(accountSID, authToken string, opts ...Option) Client {
	c := &httpClient{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultBaseURL,
		pageSize:   defaultPageSize,
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

func (c *httpClient) ListCalls(ctx context.Context, params ListCallsParams) ([]Call, error) {
	q := url.Values{}
	q.Set("PageSize", fmt.Sprintf("%d", c.pageSize))
	if params.To != "" {
		q.Set("To", params.To)
	}
	if !params.StartedAfter.IsZero() {
		q.Set("StartTime>", params.StartedAfter.UTC().Format("2006-01-02"))
	}
	if !params.StartedBefore.IsZero() {
		q.Set("StartTime<", params.StartedBefore.UTC().Format("2006-01-02"))
	}

	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Calls.json?%s", c.accountSID, q.Encode())

	var all []Call
	for path != "" {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "twilio: list calls")
		}
		page, err := c.fetchPage(ctx, path)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Calls...)
		path = page.NextPageURI
	}
	return all, nil
}

func (c *httpClient) fetchPage(ctx context.Context, path string) (*callsPage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "twilio: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "twilio: create request")
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "twilio: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "twilio: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("twilio: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var page callsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, eris.Wrap(err, "twilio: unmarshal response")
	}
	return &page, nil
}
