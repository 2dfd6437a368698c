// Package google is a thin client for the Google Maps Platform endpoints
// the pipeline consumes: Geocoding, Street View metadata, and Address
// Validation. Failures are returned as resilience.ProviderError values so
// callers can classify them without parsing messages.
package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
)

const (
	defaultMapsBaseURL       = "https://maps.googleapis.com/maps/api"
	defaultValidationBaseURL = "https://addressvalidation.googleapis.com/v1"
)

// Client performs Google Maps Platform lookups.
type Client interface {
	Geocode(ctx context.Context, req GeocodeRequest) (*GeocodeResult, error)
	StreetViewMetadata(ctx context.Context, loc model.Coordinate) (*StreetViewMetadata, error)
	ValidateAddress(ctx context.Context, req ValidationRequest) (*ValidationResult, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithMapsBaseURL overrides the Geocoding and Street View base URL.
func WithMapsBaseURL(url string) Option {
	return func(c *httpClient) {
		c.mapsBaseURL = url
	}
}

// WithValidationBaseURL overrides the Address Validation base URL.
func WithValidationBaseURL(url string) Option {
	return func(c *httpClient) {
		c.validationBaseURL = url
	}
}

// WithValidationKey uses a separate key for Address Validation.
func WithValidationKey(key string) Option {
	return func(c *httpClient) {
		c.validationKey = key
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey            string
	validationKey     string
	mapsBaseURL       string
	validationBaseURL string
	http              *http.Client
}

// NewClient creates a Google Maps Platform client. Per-attempt timeouts
// come from the caller's context.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:            apiKey,
		validationKey:     apiKey,
		mapsBaseURL:       defaultMapsBaseURL,
		validationBaseURL: defaultValidationBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// do sends req and decodes a 200 JSON body into out. Non-200 responses map
// to classified provider errors.
func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if kind, code := resilience.Classify(err); kind == resilience.KindTransient {
			return resilience.NewTransientError(code, 0, err)
		}
		return eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError("READ_ERROR", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return resilience.HTTPStatusError(resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resilience.NewPermanentError("PARSE_ERROR", resp.StatusCode, err)
	}
	return nil
}

// statusError maps a Maps Platform body status to a provider error.
// OK returns nil.
func statusError(status string) error {
	switch status {
	case model.StatusOK:
		return nil
	case model.StatusZeroResults, model.StatusNotFound:
		return resilience.NewTerminalOutcome(status)
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return resilience.NewTransientError(status, http.StatusOK, nil)
	default:
		// REQUEST_DENIED, INVALID_REQUEST, OVER_DAILY_LIMIT, or anything new.
		return resilience.NewPermanentError(status, http.StatusOK, nil)
	}
}
