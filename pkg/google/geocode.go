package google

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
)

// GeocodeRequest is one forward-geocoding query.
type GeocodeRequest struct {
	Address string
	// Region is an optional ccTLD region bias, e.g. "us".
	Region string
}

// GeocodeResult is the first result of a successful geocode.
type GeocodeResult struct {
	Location         model.Coordinate
	LocationType     string
	PlaceID          string
	FormattedAddress string
}

type geocodeResponse struct {
	Results []geocodeResult `json:"results"`
	Status  string          `json:"status"`
}

type geocodeResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
	PlaceID          string `json:"place_id"`
}

// Geocode resolves an address. ZERO_RESULTS is returned as a terminal
// outcome error.
func (c *httpClient) Geocode(ctx context.Context, gr GeocodeRequest) (*GeocodeResult, error) {
	if c.apiKey == "" {
		return nil, resilience.NewPermanentError("MISSING_KEY", 0, eris.New("google: api key not configured"))
	}

	params := url.Values{
		"address": {gr.Address},
		"key":     {c.apiKey},
	}
	if gr.Region != "" {
		params.Set("region", gr.Region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mapsBaseURL+"/geocode/json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: build geocode request")
	}

	var resp geocodeResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if err := statusError(resp.Status); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, resilience.NewTerminalOutcome(model.StatusZeroResults)
	}

	r := resp.Results[0]
	return &GeocodeResult{
		Location:         model.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		LocationType:     r.Geometry.LocationType,
		PlaceID:          r.PlaceID,
		FormattedAddress: r.FormattedAddress,
	}, nil
}
