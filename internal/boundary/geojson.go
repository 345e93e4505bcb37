package boundary

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/geo"
)

// DefaultNameProperty is the feature property holding the region name.
const DefaultNameProperty = "name"

// rawCollection defers feature decoding so one bad feature does not reject
// the whole collection.
type rawCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// DecodeGeoJSON parses a FeatureCollection. Features with unsupported or
// undecodable geometry, or without a name, are skipped with a warning. Only a
// document that is not a FeatureCollection is an error.
func DecodeGeoJSON(data []byte, nameProperty string) (Decoded, error) {
	if nameProperty == "" {
		nameProperty = DefaultNameProperty
	}
	log := zap.L().With(zap.String("component", "boundary.geojson"))

	var raw rawCollection
	if err := json.Unmarshal(data, &raw); err != nil {
		return Decoded{}, eris.Wrap(err, "boundary: parse feature collection")
	}
	if raw.Type != "FeatureCollection" {
		return Decoded{}, eris.Errorf("boundary: expected FeatureCollection, got %q", raw.Type)
	}

	var out Decoded
	for i, msg := range raw.Features {
		var f geojson.Feature
		if err := json.Unmarshal(msg, &f); err != nil {
			label := fmt.Sprintf("feature[%d]", i)
			log.Warn("skipping undecodable feature", zap.String("feature", label), zap.Error(err))
			out.skip(label, err.Error())
			continue
		}

		name := propertyString(f.Properties, nameProperty)
		if name == "" {
			label := fmt.Sprintf("feature[%d]", i)
			log.Warn("skipping feature without name", zap.String("feature", label))
			out.skip(label, "missing "+nameProperty+" property")
			continue
		}

		polys, err := polygonsFromGeom(f.Geometry)
		if err != nil {
			log.Warn("skipping feature geometry", zap.String("region", name), zap.Error(err))
			out.skip(name, err.Error())
			continue
		}
		out.Regions = append(out.Regions, geo.Region{Name: name, Polygons: polys})
	}

	return out, nil
}

func propertyString(props map[string]interface{}, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
