// Package msads provides the Microsoft Advertising offline-conversion apply
// operation. Offline conversions on this platform are keyed by the MSCLKID
// click identifier, which the pipeline does not capture for telephone
// interactions; the uploader only reaches this client for calls that carry
// one.
package msads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://campaign.api.bingads.microsoft.com/CampaignManagement/v13"

// Client applies offline conversions to a Microsoft Advertising account.
type Client interface {
	ApplyOfflineConversions(ctx context.Context, conversions []OfflineConversion) (*ApplyResult, error)
}

// OfflineConversion is one click-ID keyed conversion.
type OfflineConversion struct {
	ClickID             string  `json:"MicrosoftClickId"`
	ConversionName      string  `json:"ConversionName"`
	ConversionTime      string  `json:"ConversionTime"`
	ConversionValue     float64 `json:"ConversionValue"`
	ConversionCurrency  string  `json:"ConversionCurrencyCode"`
	ExternalAttribution bool    `json:"IsExternallyAttributed"`
}

// ApplyResult carries per-item errors from a transport-successful apply.
type ApplyResult struct {
	PartialErrors []PartialError `json:"PartialErrors"`
}

// PartialError identifies a rejected conversion by request index.
type PartialError struct {
	Index   int    `json:"Index"`
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

// Credentials holds the account identifiers and tokens for one customer.
type Credentials struct {
	DeveloperToken string
	CustomerID     string
	AccountID      string
	AccessToken    string
}

// Configured reports whether the credential set is complete enough to call
// the API at all.
func (c Credentials) Configured() bool {
	return c.DeveloperToken != "" && c.CustomerID != "" && c.AccountID != "" && c.AccessToken != ""
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

type httpClient struct {
	creds   Credentials
	baseURL string
	http    *http.Client
}

// NewClient creates a Microsoft Advertising API client.
func NewClient(creds Credentials, opts ...Option) Client {
	c := &httpClient{
		creds:   creds,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
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

func (c *httpClient) ApplyOfflineConversions(ctx context.Context, conversions []OfflineConversion) (*ApplyResult, error) {
	payload := struct {
		OfflineConversions []OfflineConversion `json:"OfflineConversions"`
	}{OfflineConversions: conversions}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "msads: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/OfflineConversions/Apply", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "msads: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	req.Header.Set("DeveloperToken", c.creds.DeveloperToken)
	req.Header.Set("CustomerId", c.creds.CustomerID)
	req.Header.Set("CustomerAccountId", c.creds.AccountID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "msads: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "msads: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("msads: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ApplyResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "msads: unmarshal response")
	}
	return &result, nil
}
