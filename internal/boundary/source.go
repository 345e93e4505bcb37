package boundary

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/geo"
	"github.com/sells-group/healthmap/internal/metrics"
	"github.com/sells-group/healthmap/internal/resilience"
)

// Source produces a boundary collection.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Decoded, error)
}

func regionOf(name string, polys []geo.Polygon) geo.Region {
	return geo.Region{Name: name, Polygons: polys}
}

// FileSource reads GeoJSON (.geojson, .json), a shapefile (.shp), or a ZIP
// archive containing a shapefile.
type FileSource struct {
	Path         string
	NameProperty string
}

// Name implements Source.
func (s FileSource) Name() string { return "file:" + s.Path }

// Fetch implements Source.
func (s FileSource) Fetch(_ context.Context) (Decoded, error) {
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".shp":
		return ReadShapefile(s.Path, s.NameProperty)
	case ".zip":
		return s.fetchZIP()
	default:
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return Decoded{}, eris.Wrapf(err, "boundary: read %s", s.Path)
		}
		return DecodeGeoJSON(data, s.NameProperty)
	}
}

func (s FileSource) fetchZIP() (Decoded, error) {
	dir, err := os.MkdirTemp("", "healthmap-boundary-*")
	if err != nil {
		return Decoded{}, eris.Wrap(err, "boundary: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	if err := extractZIP(s.Path, dir); err != nil {
		return Decoded{}, err
	}
	shpPath, err := findFileByExt(dir, ".shp")
	if err != nil {
		return Decoded{}, err
	}
	return ReadShapefile(shpPath, s.NameProperty)
}

// HTTPSource downloads a GeoJSON FeatureCollection.
type HTTPSource struct {
	URL          string
	NameProperty string
	Client       *http.Client
	Policy       resilience.Policy
}

// NewHTTPSource creates an HTTPSource with a 30s client and default retries.
func NewHTTPSource(url, nameProperty string) *HTTPSource {
	return &HTTPSource{
		URL:          url,
		NameProperty: nameProperty,
		Client:       &http.Client{Timeout: 30 * time.Second},
		Policy:       resilience.DefaultPolicy("boundary.download"),
	}
}

// Name implements Source.
func (s *HTTPSource) Name() string { return "http:" + s.URL }

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) (Decoded, error) {
	data, err := resilience.Retry(ctx, s.Policy, s.download)
	if err != nil {
		return Decoded{}, eris.Wrap(err, "boundary: download")
	}
	return DecodeGeoJSON(data, s.NameProperty)
}

func (s *HTTPSource) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: build request")
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Service: "boundary source", StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// Refresh fetches from src and swaps the result into idx. Decode-level skips
// are merged into the returned report; a fetch failure leaves idx untouched.
func Refresh(ctx context.Context, idx *geo.Index, src Source) (geo.LoadReport, error) {
	decoded, err := src.Fetch(ctx)
	if err != nil {
		return geo.LoadReport{}, eris.Wrapf(err, "boundary: fetch %s", src.Name())
	}

	report := idx.Load(decoded.Regions)
	report.Skipped = append(decoded.Skipped, report.Skipped...)

	metrics.BoundaryRegions.Set(float64(idx.Len()))
	metrics.BoundarySkippedTotal.Add(float64(len(report.Skipped)))

	zap.L().Info("boundary refresh complete",
		zap.String("source", src.Name()),
		zap.Int("loaded", report.Loaded),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}
