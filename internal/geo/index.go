package geo

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// SkippedRegion records a region rejected during Load.
type SkippedRegion struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// LoadReport summarizes one Load call.
type LoadReport struct {
	Loaded   int             `json:"loaded"`
	Excluded []string        `json:"excluded,omitempty"`
	Skipped  []SkippedRegion `json:"skipped,omitempty"`
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithExcludedRegions drops regions with the given names on every Load.
func WithExcludedRegions(names ...string) IndexOption {
	return func(idx *Index) {
		for _, n := range names {
			if n != "" {
				idx.excluded[n] = true
			}
		}
	}
}

type indexedRegion struct {
	region   Region
	bbox     BBox
	centroid GeoPoint
}

// snapshot is immutable once published.
type snapshot struct {
	regions []indexedRegion
	byName  map[string]int
}

// Index holds the active set of regions. Load swaps in a fully built snapshot,
// so concurrent Contains and Centroid calls see either the old or the new set.
type Index struct {
	current  atomic.Pointer[snapshot]
	excluded map[string]bool
}

// NewIndex creates an empty Index.
func NewIndex(opts ...IndexOption) *Index {
	idx := &Index{excluded: make(map[string]bool)}
	for _, opt := range opts {
		opt(idx)
	}
	idx.current.Store(&snapshot{byName: map[string]int{}})
	return idx
}

// Load replaces the active region set. Malformed or duplicate regions are
// skipped with a warning; Load never fails.
func (idx *Index) Load(regions []Region) LoadReport {
	log := zap.L().With(zap.String("component", "geo.index"))

	var report LoadReport
	snap := &snapshot{
		regions: make([]indexedRegion, 0, len(regions)),
		byName:  make(map[string]int, len(regions)),
	}

	for _, r := range regions {
		if idx.excluded[r.Name] {
			report.Excluded = append(report.Excluded, r.Name)
			log.Info("region excluded by configuration", zap.String("region", r.Name))
			continue
		}
		if err := r.Validate(); err != nil {
			report.Skipped = append(report.Skipped, SkippedRegion{Name: r.Name, Reason: err.Error()})
			log.Warn("skipping malformed region", zap.String("region", r.Name), zap.Error(err))
			continue
		}
		if _, dup := snap.byName[r.Name]; dup {
			report.Skipped = append(report.Skipped, SkippedRegion{Name: r.Name, Reason: "duplicate region name"})
			log.Warn("skipping duplicate region", zap.String("region", r.Name))
			continue
		}

		cp := r.clone()
		snap.byName[cp.Name] = len(snap.regions)
		snap.regions = append(snap.regions, indexedRegion{
			region:   cp,
			bbox:     cp.bbox(),
			centroid: regionCentroid(cp),
		})
	}

	idx.current.Store(snap)
	report.Loaded = len(snap.regions)

	log.Info("boundary index loaded",
		zap.Int("loaded", report.Loaded),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("excluded", len(report.Excluded)),
	)
	return report
}

// Contains returns the name of the first region, in load order, that contains p.
// Overlapping regions are not disambiguated.
func (idx *Index) Contains(p GeoPoint) (string, bool) {
	snap := idx.current.Load()
	for i := range snap.regions {
		ir := &snap.regions[i]
		if !ir.bbox.Contains(p) {
			continue
		}
		if regionContains(ir.region, p) {
			return ir.region.Name, true
		}
	}
	return "", false
}

// Centroid returns the area-weighted centroid of the named region. The second
// return value is false only when the region is not loaded.
func (idx *Index) Centroid(name string) (GeoPoint, bool) {
	snap := idx.current.Load()
	i, ok := snap.byName[name]
	if !ok {
		return GeoPoint{}, false
	}
	return snap.regions[i].centroid, true
}

// BBox returns the bounding box of the named region.
func (idx *Index) BBox(name string) (BBox, bool) {
	snap := idx.current.Load()
	i, ok := snap.byName[name]
	if !ok {
		return BBox{}, false
	}
	return snap.regions[i].bbox, true
}

// Region returns a copy of the named region.
func (idx *Index) Region(name string) (Region, bool) {
	snap := idx.current.Load()
	i, ok := snap.byName[name]
	if !ok {
		return Region{}, false
	}
	return snap.regions[i].region.clone(), true
}

// Names lists loaded region names in load order.
func (idx *Index) Names() []string {
	snap := idx.current.Load()
	names := make([]string, len(snap.regions))
	for i, ir := range snap.regions {
		names[i] = ir.region.Name
	}
	return names
}

// Len returns the number of loaded regions.
func (idx *Index) Len() int {
	return len(idx.current.Load().regions)
}
