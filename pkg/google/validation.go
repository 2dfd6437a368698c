package google

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/addrverify/internal/resilience"
)

// ValidationRequest is one Address Validation query.
type ValidationRequest struct {
	Address    string
	RegionCode string
}

// ValidationVerdict is the provider's verdict object.
type ValidationVerdict struct {
	AddressComplete          bool   `json:"addressComplete"`
	HasUnconfirmedComponents bool   `json:"hasUnconfirmedComponents"`
	ValidationGranularity    string `json:"validationGranularity"`
	GeocodeGranularity       string `json:"geocodeGranularity"`
	HasInferredComponents    bool   `json:"hasInferredComponents"`
	HasReplacedComponents    bool   `json:"hasReplacedComponents"`
}

// ValidationResult is the subset of the response the pipeline uses.
type ValidationResult struct {
	Verdict           ValidationVerdict
	FormattedAddress  string
	PostalAddressLine []string
}

// StandardizedAddress returns the formatted address, falling back to the
// joined postal address lines.
func (r *ValidationResult) StandardizedAddress() string {
	if r.FormattedAddress != "" {
		return r.FormattedAddress
	}
	return strings.Join(r.PostalAddressLine, ", ")
}

type validationRequestBody struct {
	Address struct {
		RegionCode   string   `json:"regionCode,omitempty"`
		AddressLines []string `json:"addressLines"`
	} `json:"address"`
}

type validationResponse struct {
	Result struct {
		Verdict ValidationVerdict `json:"verdict"`
		Address struct {
			FormattedAddress string `json:"formattedAddress"`
			PostalAddress    struct {
				AddressLines []string `json:"addressLines"`
			} `json:"postalAddress"`
		} `json:"address"`
	} `json:"result"`
}

// ValidateAddress calls the Address Validation API. The key travels in a
// header, never in the URL.
func (c *httpClient) ValidateAddress(ctx context.Context, vr ValidationRequest) (*ValidationResult, error) {
	if c.validationKey == "" {
		return nil, resilience.NewPermanentError("MISSING_KEY", 0, eris.New("google: validation api key not configured"))
	}

	var body validationRequestBody
	body.Address.AddressLines = []string{vr.Address}
	body.Address.RegionCode = vr.RegionCode
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal validation request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.validationBaseURL+":validateAddress", bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "google: build validation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.validationKey)

	var resp validationResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	return &ValidationResult{
		Verdict:           resp.Result.Verdict,
		FormattedAddress:  resp.Result.Address.FormattedAddress,
		PostalAddressLine: resp.Result.Address.PostalAddress.AddressLines,
	}, nil
}
