package footprint

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/model"
)

// maxLineBytes bounds one GeoJSON-seq feature line.
const maxLineBytes = 16 << 20

// Load builds an index from a dataset file or from every supported file in
// a directory. Supported: .geojson/.json FeatureCollections, .geojsonl,
// .geojsons and .ndjson feature-per-line files, .csv with lat/lng columns,
// and .shp shapefiles.
func Load(path string) (*Index, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "footprint: stat %s", path)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, eris.Wrapf(err, "footprint: read dir %s", path)
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && supported(e.Name()) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	ix := NewIndex()
	for _, f := range files {
		before := ix.Len()
		if err := loadFile(ix, f); err != nil {
			return nil, err
		}
		zap.L().Debug("footprint: loaded file",
			zap.String("path", f),
			zap.Int("centroids", ix.Len()-before),
		)
	}
	zap.L().Info("footprint: index ready",
		zap.Int("files", len(files)),
		zap.Int("centroids", ix.Len()),
	)
	return ix, nil
}

func supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".geojson", ".json", ".geojsonl", ".geojsons", ".ndjson", ".csv", ".shp":
		return true
	}
	return false
}

func loadFile(ix *Index, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return loadShapefile(ix, path)
	case ".geojson", ".json", ".geojsonl", ".geojsons", ".ndjson", ".csv":
	default:
		return eris.Errorf("footprint: unsupported file %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "footprint: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		err = ReadFeatureCollection(ix, f)
	case ".csv":
		err = ReadCSV(ix, f)
	default:
		err = ReadFeatureLines(ix, f)
	}
	return eris.Wrapf(err, "footprint: load %s", path)
}

// ReadFeatureCollection adds the centroid of every feature in a GeoJSON
// FeatureCollection.
func ReadFeatureCollection(ix *Index, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return eris.Wrap(err, "footprint: read feature collection")
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return eris.Wrap(err, "footprint: parse feature collection")
	}
	for _, f := range fc.Features {
		addGeometry(ix, f.Geometry)
	}
	return nil
}

// ReadFeatureLines adds centroids from one GeoJSON Feature per line.
// Blank and malformed lines are skipped.
func ReadFeatureLines(ix *Index, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	skipped := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var f geojson.Feature
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			skipped++
			continue
		}
		addGeometry(ix, f.Geometry)
	}
	if skipped > 0 {
		zap.L().Debug("footprint: skipped malformed features", zap.Int("skipped", skipped))
	}
	return eris.Wrap(sc.Err(), "footprint: scan feature lines")
}

// ReadCSV adds points from a CSV with lat/lng (or latitude/longitude)
// columns.
func ReadCSV(ix *Index, r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return eris.Wrap(err, "footprint: read csv header")
	}
	latIdx, lngIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "lat", "latitude":
			latIdx = i
		case "lng", "lon", "longitude":
			lngIdx = i
		}
	}
	if latIdx < 0 || lngIdx < 0 {
		return eris.New("footprint: csv needs lat and lng columns")
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "footprint: read csv row")
		}
		if latIdx >= len(row) || lngIdx >= len(row) {
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[latIdx]), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(row[lngIdx]), 64)
		if errLat != nil || errLng != nil {
			continue
		}
		ix.Add(model.Coordinate{Lat: lat, Lng: lng})
	}
}

func loadShapefile(ix *Index, path string) error {
	reader, err := shp.Open(path)
	if err != nil {
		return eris.Wrapf(err, "footprint: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	for reader.Next() {
		_, shape := reader.Shape()
		switch s := shape.(type) {
		case *shp.Point:
			ix.Add(model.Coordinate{Lat: s.Y, Lng: s.X})
		case *shp.Polygon:
			addGeometry(ix, shapePolygon(s))
		}
	}
	return nil
}

// shapePolygon converts a shapefile polygon into a go-geom polygon whose
// rings are the shapefile parts.
func shapePolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	flat := make([]float64, 0, len(p.Points)*2)
	for _, pt := range p.Points {
		flat = append(flat, pt.X, pt.Y)
	}
	ends := make([]int, 0, p.NumParts)
	for i := int32(1); i < p.NumParts; i++ {
		ends = append(ends, int(p.Parts[i])*2)
	}
	ends = append(ends, len(flat))
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// addGeometry indexes the centroid of g. Empty or unsupported geometries
// are ignored.
func addGeometry(ix *Index, g geom.T) {
	if g == nil || g.Empty() {
		return
	}
	c, err := xy.Centroid(g)
	if err != nil || len(c) < 2 {
		return
	}
	ix.Add(model.Coordinate{Lat: c[1], Lng: c[0]})
}
