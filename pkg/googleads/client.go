// Package googleads provides the slice of the Google Ads REST API the
// pipeline needs: uploading caller-ID keyed call conversions with
// partial-failure reporting.
package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://googleads.googleapis.com/v18"

	// MaxConversionsPerRequest is the documented per-request cap for
	// conversion upload operations.
	MaxConversionsPerRequest = 2000

	// DateTimeLayout is the fixed-width datetime format the API requires,
	// with an explicit offset. Conversions are always submitted in UTC.
	DateTimeLayout = "2006-01-02 15:04:05+00:00"
)

// Client uploads call conversions to the Google Ads API.
type Client interface {
	UploadCallConversions(ctx context.Context, req UploadCallConversionsRequest) (*UploadCallConversionsResponse, error)
}

// CallConversion is one caller-ID keyed conversion entry.
type CallConversion struct {
	CallerID           string  `json:"callerId"`
	CallStartDateTime  string  `json:"callStartDateTime"`
	ConversionAction   string  `json:"conversionAction"`
	ConversionDateTime string  `json:"conversionDateTime"`
	ConversionValue    float64 `json:"conversionValue"`
	CurrencyCode       string  `json:"currencyCode"`
}

// UploadCallConversionsRequest is the body for
// POST /customers/{id}:uploadCallConversions.
type UploadCallConversionsRequest struct {
	Conversions []CallConversion `json:"conversions"`
	// PartialFailure must be true: a transport-successful response can
	// still report per-item failures in PartialFailureError.
	PartialFailure bool `json:"partialFailure"`
}

// UploadCallConversionsResponse mirrors the API response. Results holds one
// entry per accepted conversion; rejected items are described in
// PartialFailureError instead.
type UploadCallConversionsResponse struct {
	Results             []CallConversionResult `json:"results"`
	PartialFailureError *Status                `json:"partialFailureError,omitempty"`
}

// CallConversionResult echoes an accepted conversion.
type CallConversionResult struct {
	CallerID          string `json:"callerId"`
	CallStartDateTime string `json:"callStartDateTime"`
	ConversionAction  string `json:"conversionAction"`
}

// Status is a google.rpc.Status carrying GoogleAdsFailure details.
type Status struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Details []FailureDetails `json:"details,omitempty"`
}

// FailureDetails is the googleAdsFailure detail payload.
type FailureDetails struct {
	Errors []AdsError `json:"errors"`
}

// AdsError is one per-item error inside a partial failure.
type AdsError struct {
	ErrorCode map[string]string `json:"errorCode"`
	Message   string            `json:"message"`
	Location  *ErrorLocation    `json:"location,omitempty"`
}

// ErrorLocation points back at the request field that failed.
type ErrorLocation struct {
	FieldPathElements []FieldPathElement `json:"fieldPathElements"`
}

// FieldPathElement is one step in the failing field path. For conversion
// uploads the "conversions" element carries the index of the failed item.
type FieldPathElement struct {
	FieldName string `json:"fieldName"`
	Index     *int   `json:"index,omitempty"`
}

// ConversionIndex extracts the failing request-item index from the error
// location, or -1 when the error is not attributable to a single item.
func (e AdsError) ConversionIndex() int {
	if e.Location == nil {
		return -1
	}
	for _, el := range e.Location.FieldPathElements {
		if el.FieldName == "conversions" && el.Index != nil {
			return *el.Index
		}
	}
	return -1
}

// Code returns the first error code value, e.g. the conversion upload error
// enum name.
func (e AdsError) Code() string {
	for _, v := range e.ErrorCode {
		return v
	}
	return ""
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(url string) Option {
	return func(c *httpClient) {
		c.tokens.tokenURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
		c.tokens.http = hc
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

// WithLoginCustomerID sets the manager account header for access through an
// MCC.
func WithLoginCustomerID(id string) Option {
	return func(c *httpClient) {
		c.loginCustomerID = id
	}
}

// Credentials holds the OAuth and API credentials for one customer account.
type Credentials struct {
	DeveloperToken string
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	CustomerID     string
}

type httpClient struct {
	creds           Credentials
	baseURL         string
	loginCustomerID string
	http            *http.Client
	limiter         *rate.Limiter
	tokens          *tokenSource
}

// NewClient creates a Google Ads API client. Access tokens are minted from
// the refresh token on demand and cached until shortly before expiry.
func NewClient(creds Credentials, opts ...Option) Client {
	hc := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	c := &httpClient{
		creds:   creds,
		baseURL: defaultBaseURL,
		http:    hc,
		tokens:  newTokenSource(creds.ClientID, creds.ClientSecret, creds.RefreshToken, hc),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) UploadCallConversions(ctx context.Context, req UploadCallConversionsRequest) (*UploadCallConversionsResponse, error) {
	if len(req.Conversions) > MaxConversionsPerRequest {
		return nil, eris.Errorf("googleads: %d conversions exceeds per-request cap of %d", len(req.Conversions), MaxConversionsPerRequest)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "googleads: rate limit")
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "googleads: access token")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "googleads: marshal request")
	}

	url := fmt.Sprintf("%s/customers/%s:uploadCallConversions", c.baseURL, c.creds.CustomerID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "googleads: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("developer-token", c.creds.DeveloperToken)
	if c.loginCustomerID != "" {
		httpReq.Header.Set("login-customer-id", c.loginCustomerID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "googleads: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "googleads: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("googleads: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result UploadCallConversionsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "googleads: unmarshal response")
	}
	return &result, nil
}
