// Package footprint answers "is there a building near this point" from a
// local dataset of structure centroids.
package footprint

import (
	"math"

	"github.com/sells-group/addrverify/internal/model"
)

const (
	earthRadiusM   = 6371008.8
	metersPerDeg   = 111320.0
	defaultCellDeg = 0.01
)

type cellKey struct {
	lat, lng int
}

// Index is a uniform lat/lng grid of centroid points. It is read-only
// after loading and safe for concurrent lookups.
type Index struct {
	cellDeg float64
	cells   map[cellKey][]model.Coordinate
	count   int
}

// NewIndex returns an empty index with 0.01° cells.
func NewIndex() *Index {
	return &Index{cellDeg: defaultCellDeg, cells: make(map[cellKey][]model.Coordinate)}
}

// Add inserts one centroid.
func (ix *Index) Add(c model.Coordinate) {
	k := ix.key(c.Lat, c.Lng)
	ix.cells[k] = append(ix.cells[k], c)
	ix.count++
}

// Len returns the number of indexed centroids.
func (ix *Index) Len() int { return ix.count }

// Nearest returns the distance in meters to the closest centroid within
// radiusM of c. ok is false when none lies within the radius.
func (ix *Index) Nearest(c model.Coordinate, radiusM float64) (dist float64, ok bool) {
	if radiusM <= 0 || ix.count == 0 {
		return 0, false
	}

	dLat := radiusM / metersPerDeg
	cosLat := math.Cos(c.Lat * math.Pi / 180)
	dLng := 180.0
	if cosLat > 1e-9 {
		dLng = math.Min(180, radiusM/(metersPerDeg*cosLat))
	}

	lo := ix.rawKey(c.Lat-dLat, c.Lng-dLng)
	hi := ix.rawKey(c.Lat+dLat, c.Lng+dLng)
	// Longitude cells wrap at the antimeridian; never visit one twice.
	lngCells := ix.lngCells()
	if hi.lng-lo.lng >= lngCells {
		hi.lng = lo.lng + lngCells - 1
	}

	best := math.Inf(1)
	for i := lo.lat; i <= hi.lat; i++ {
		for j := lo.lng; j <= hi.lng; j++ {
			for _, p := range ix.cells[cellKey{i, ix.wrapLng(j)}] {
				if d := Haversine(c, p); d < best {
					best = d
				}
			}
		}
	}
	if best <= radiusM {
		return best, true
	}
	return 0, false
}

func (ix *Index) key(lat, lng float64) cellKey {
	k := ix.rawKey(lat, lng)
	k.lng = ix.wrapLng(k.lng)
	return k
}

func (ix *Index) rawKey(lat, lng float64) cellKey {
	return cellKey{
		lat: int(math.Floor(lat / ix.cellDeg)),
		lng: int(math.Floor(lng / ix.cellDeg)),
	}
}

func (ix *Index) lngCells() int {
	return int(math.Round(360 / ix.cellDeg))
}

// wrapLng maps a longitude cell index into [0, lngCells).
func (ix *Index) wrapLng(j int) int {
	n := ix.lngCells()
	return ((j % n) + n) % n
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b model.Coordinate) float64 {
	const rad = math.Pi / 180
	phi1, phi2 := a.Lat*rad, b.Lat*rad
	dPhi := (b.Lat - a.Lat) * rad
	dLmb := (b.Lng - a.Lng) * rad

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLmb/2)*math.Sin(dLmb/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
