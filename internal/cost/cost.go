package cost

import (
	"maps"
	"math"
	"slices"
)

// Rates holds per-provider pricing in USD per thousand billable requests.
type Rates struct {
	Geocoding  float64 `yaml:"geocoding" mapstructure:"geocoding"`
	Imagery    float64 `yaml:"imagery" mapstructure:"imagery"`
	Validation float64 `yaml:"validation" mapstructure:"validation"`
}

// Calculator computes costs for provider usage.
type Calculator struct {
	rates map[string]float64
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: map[string]float64{
		"geocoding":  rates.Geocoding,
		"imagery":    rates.Imagery,
		"validation": rates.Validation,
	}}
}

// Request returns the cost of n requests to provider. Unpriced providers
// (the local footprint index) cost nothing.
func (c *Calculator) Request(provider string, n int64) float64 {
	return float64(n) / 1000 * c.rates[provider]
}

// Usage is the per-provider request count and cost of one run.
type Usage struct {
	Requests map[string]int64   `json:"requests"`
	CostUSD  map[string]float64 `json:"cost_usd"`
	TotalUSD float64            `json:"total_usd"`
}

// Estimate prices a set of per-provider request counts. Amounts are
// rounded to the cent.
func (c *Calculator) Estimate(requests map[string]int64) Usage {
	u := Usage{
		Requests: maps.Clone(requests),
		CostUSD:  make(map[string]float64, len(requests)),
	}
	if u.Requests == nil {
		u.Requests = map[string]int64{}
	}
	for _, p := range slices.Sorted(maps.Keys(requests)) {
		v := c.Request(p, requests[p])
		u.CostUSD[p] = round2(v)
		u.TotalUSD += v
	}
	u.TotalUSD = round2(u.TotalUSD)
	return u
}

// DefaultRates returns list pricing for the mapping endpoints. Imagery
// metadata requests are not billed.
func DefaultRates() Rates {
	return Rates{
		Geocoding:  5.00,
		Imagery:    0,
		Validation: 17.00,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
