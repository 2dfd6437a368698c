package google

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
)

// StreetViewMetadata describes the panorama nearest a coordinate. Only
// metadata is requested; imagery is never fetched.
type StreetViewMetadata struct {
	// Date is the capture period, "YYYY-MM" or "YYYY", when known.
	Date   string
	PanoID string
}

type streetViewResponse struct {
	Status string `json:"status"`
	Date   string `json:"date"`
	PanoID string `json:"pano_id"`
}

// StreetViewMetadata looks up panorama metadata near loc. The provider
// searches its default radius around the point. ZERO_RESULTS and NOT_FOUND
// are returned as terminal outcome errors.
func (c *httpClient) StreetViewMetadata(ctx context.Context, loc model.Coordinate) (*StreetViewMetadata, error) {
	if c.apiKey == "" {
		return nil, resilience.NewPermanentError("MISSING_KEY", 0, eris.New("google: api key not configured"))
	}

	params := url.Values{
		"location": {formatLatLng(loc)},
		"key":      {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mapsBaseURL+"/streetview/metadata?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: build streetview request")
	}

	var resp streetViewResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if err := statusError(resp.Status); err != nil {
		return nil, err
	}
	return &StreetViewMetadata{Date: resp.Date, PanoID: resp.PanoID}, nil
}

func formatLatLng(loc model.Coordinate) string {
	return strconv.FormatFloat(loc.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(loc.Lng, 'f', 6, 64)
}
