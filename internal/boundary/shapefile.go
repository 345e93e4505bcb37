package boundary

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/geo"
)

// ReadShapefile reads polygon records from an ESRI shapefile. The region name
// comes from the named DBF attribute (case-insensitive).
func ReadShapefile(path, nameField string) (Decoded, error) {
	if nameField == "" {
		nameField = "NAME"
	}
	log := zap.L().With(zap.String("component", "boundary.shapefile"), zap.String("path", path))

	reader, err := shp.Open(path)
	if err != nil {
		return Decoded{}, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, nameField)
	if nameIdx < 0 {
		return Decoded{}, eris.Errorf("boundary: shapefile has no %s field", nameField)
	}

	var out Decoded
	for reader.Next() {
		n, shape := reader.Shape()
		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		if name == "" {
			name = fmt.Sprintf("record[%d]", n)
			out.skip(name, "missing "+nameField+" attribute")
			continue
		}

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			log.Warn("skipping non-polygon shape", zap.String("region", name), zap.String("type", fmt.Sprintf("%T", shape)))
			out.skip(name, ErrUnsupportedGeometry.Error())
			continue
		}

		polys := groupShapefileRings(poly)
		if len(polys) == 0 {
			out.skip(name, "polygon has no rings")
			continue
		}
		out.Regions = append(out.Regions, geo.Region{Name: name, Polygons: polys})
	}

	return out, nil
}

// groupShapefileRings splits a shapefile polygon into rings and groups them.
// Shapefile outer rings wind clockwise (negative signed area) and holes wind
// counter-clockwise; each hole attaches to the most recent outer ring.
func groupShapefileRings(p *shp.Polygon) []geo.Polygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys []geo.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make(geo.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geo.GeoPoint{Lng: p.Points[j].X, Lat: p.Points[j].Y})
		}

		if signedArea(ring) < 0 || len(polys) == 0 {
			polys = append(polys, geo.Polygon{ring})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], ring)
	}
	return polys
}

func signedArea(ring geo.Ring) float64 {
	var a float64
	for i := 0; i+1 < len(ring); i++ {
		a += ring[i].Lng*ring[i+1].Lat - ring[i+1].Lng*ring[i].Lat
	}
	return a / 2
}

// fieldIndex returns the index of a named DBF field, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// extractZIP extracts a ZIP archive's files (flattened) into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "boundary: open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, filepath.Join(destDir, filepath.Base(f.Name))); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "boundary: open zip entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "boundary: create %s", dest)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrapf(err, "boundary: extract %s", f.Name)
	}
	return nil
}

// findFileByExt finds the first file with the given extension in dir.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "boundary: read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("boundary: no %s file in %s", ext, dir)
}
