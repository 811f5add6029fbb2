package ingest

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/spatialkey"
)

// RawFeature is what a FormatParser hands to SerializeFeature: geometry
// already projected to the full-precision plane, attributes still in
// their raw (key, kind, value) form.
type RawFeature struct {
	Type       feature.GeomType
	LayerName  string
	Geometry   feature.DrawSeq
	HasID      bool
	ID         int64
	HasMinzoom bool
	Minzoom    int
	HasMaxzoom bool
	Maxzoom    int
	Keys       []string
	Values     []feature.Value
}

// SerializeFeature scales, filters, interns, and appends one feature to
// its worker's temp-file family, returning false if the feature was
// dropped (null/degenerate geometry). Ported from the source project's
// serial.go SerializeFeature, with the clipping/tiling branches removed
// (external collaborator scope) and the attribute-filter loop's
// off-by-one (`i++` instead of `i--` when walking backward) fixed.
func SerializeFeature(sst *SerializationState, r *Reader, cfg config.Config, raw RawFeature) bool {
	if !r.Initialized {
		for _, g := range raw.Geometry {
			if g.Op == feature.OpMoveTo || g.Op == feature.OpLineTo {
				if g.X < 0 || g.X >= (1<<32) || g.Y < 0 || g.Y >= (1<<32) {
					r.InitialX, r.InitialY = 1<<31, 1<<31
				} else {
					r.InitialX = uint32(((g.X + feature.CoordOffset) >> 0) << 0)
					r.InitialY = uint32(((g.Y + feature.CoordOffset) >> 0) << 0)
				}
				r.Initialized = true
				break
			}
		}
	}

	bb := feature.EmptyBBox()
	feature.ScaleGeometry(raw.Geometry, &bb, 0, cfg.GridLowZooms)

	if len(raw.Geometry) == 0 || !bb.Valid() {
		sst.Warn.Warn("empty-geometry", "dropping feature with empty or invalid geometry")
		return false
	}

	if !raw.HasID && cfg.GenerateIDs {
		raw.HasID = true
		raw.ID = sst.bumpProgress()
	}

	if sst.WantDist {
		accumulateDistance(sst, cfg, raw.Geometry)
	}

	emitVertices(r, cfg, raw.Type, raw.Geometry)

	var extent float64
	if raw.Type == feature.Polygon {
		for i := 0; i < len(raw.Geometry); i++ {
			if raw.Geometry[i].Op == feature.OpMoveTo {
				j := i + 1
				for j < len(raw.Geometry) && raw.Geometry[j].Op == feature.OpLineTo {
					j++
				}
				extent += math.Abs(feature.RingArea(raw.Geometry, i, j))
				i = j - 1
			}
		}
	} else if raw.Type == feature.Line {
		extent = feature.LineLength(raw.Geometry)
	}
	sst.AreaSum += extent

	sf := &feature.SerialFeature{
		Type:       raw.Type,
		Segment:    r.Segment,
		HasID:      raw.HasID,
		ID:         raw.ID,
		HasMinzoom: raw.HasMinzoom,
		Minzoom:    raw.Minzoom,
		HasMaxzoom: raw.HasMaxzoom,
		Maxzoom:    raw.Maxzoom,
		Geometry:   raw.Geometry,
		BBox:       bb,
		Metapos:    -1,
	}
	if extent <= math.MaxInt64 {
		sf.Extent = int64(extent)
	} else {
		sf.Extent = math.MaxInt64
	}
	if cfg.InputOrder {
		sf.Seq = sst.bumpProgress()
	}

	// The sort key is the bounding-box midpoint of the first part only;
	// later parts of a multi-part geometry widen bb but not the key.
	keyBB := feature.EmptyBBox()
	for i, g := range raw.Geometry {
		if g.Op == feature.OpMoveTo && i > 0 && keyBB.Valid() {
			break
		}
		if g.Op == feature.OpMoveTo || g.Op == feature.OpLineTo {
			keyBB.Extend(g.X, g.Y)
		}
	}
	cx, cy := keyBB.Centroid()
	bboxKey := spatialkey.Encode(cfg.Curve, cx, cy)
	sf.Index = bboxKey

	if _, ok := sst.LayerMap[raw.LayerName]; !ok {
		sst.LayerMap[raw.LayerName] = LayerEntry{ID: len(sst.LayerMap), FileKeys: map[string]feature.ValueKind{}}
	}
	entry := sst.LayerMap[raw.LayerName]
	switch raw.Type {
	case feature.Point:
		entry.Points++
	case feature.Line:
		entry.Lines++
	case feature.Polygon:
		entry.Polygons++
	}
	sf.Layer = entry.ID

	keys, values := filterAttributes(sst, cfg, sf, raw.Keys, raw.Values)
	for i := range keys {
		entry.FileKeys[keys[i]] = values[i].Kind
	}
	sst.LayerMap[raw.LayerName] = entry

	keyKind := feature.KeyKind
	for i := range keys {
		sf.Keys = append(sf.Keys, r.Pool.Intern(keys[i], byte(keyKind)))
		sf.Values = append(sf.Values, r.Pool.Intern(values[i].S, byte(values[i].Kind)))
	}

	var buf bytes.Buffer
	sf.WriteTo(&buf, int64(r.InitialX), int64(r.InitialY))
	geomStart := r.Geom.Append(buf.Bytes())

	idx := feature.IndexEntry{
		Start:   geomStart,
		End:     r.Geom.Pos(),
		Key:     bboxKey,
		Segment: int64(r.Segment),
		Type:    raw.Type,
		Seq:     sf.Seq,
	}
	rec := idx.Marshal()
	r.Index.Append(rec[:])

	r.FileBBox.Extend(bb[0], bb[1])
	r.FileBBox.Extend(bb[2], bb[3])

	return true
}

// filterAttributes applies CoerceValue, the attribute-for-id extraction,
// and the include/exclude lists, returning the surviving keys/values.
// Ported from serial.go's backward attribute-filtering loop.
func filterAttributes(sst *SerializationState, cfg config.Config, sf *feature.SerialFeature, keys []string, values []feature.Value) ([]string, []feature.Value) {
	outKeys := make([]string, 0, len(keys))
	outValues := make([]feature.Value, 0, len(values))

	for i := len(keys) - 1; i >= 0; i-- {
		kind, val := feature.CoerceValue(keys[i], values[i].Kind, values[i].S, sst.AttributeTypes)

		if keys[i] == cfg.AttributeForID {
			if kind != feature.KindDouble && !cfg.ConvertNumericIDs {
				sst.Warn.Warn("id-not-number", "attribute %q=%q as feature ID is not a number", keys[i], val)
			} else if id, err := strconv.ParseInt(val, 10, 64); err != nil {
				sst.Warn.Warn("id-not-integer", "can't represent non-integer feature ID %q", val)
			} else if strconv.FormatInt(id, 10) != strings.TrimLeft(val, "0") && val != "0" {
				sst.Warn.Warn("id-too-large", "can't represent too-large feature ID %q", val)
			} else {
				sf.ID = id
				sf.HasID = true
				continue
			}
		}

		if sst.ExcludeAll {
			if !contains(sst.Include, keys[i]) {
				continue
			}
		} else if contains(sst.Exclude, keys[i]) {
			continue
		}

		outKeys = append(outKeys, keys[i])
		outValues = append(outValues, feature.Value{Kind: kind, S: val})
	}
	return outKeys, outValues
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// accumulateDistance estimates this feature's point density by the
// geometric mean gap between distinct spatial keys among its own vertices,
// contributing to the running log-distance accumulator used by Autotune's
// maxzoom guess. Ported from serial.go's inline dist_sum/dist_count block.
func accumulateDistance(sst *SerializationState, cfg config.Config, geom feature.DrawSeq) {
	locs := make([]uint64, 0, len(geom))
	for _, g := range geom {
		if g.Op == feature.OpMoveTo || g.Op == feature.OpLineTo {
			locs = append(locs, spatialkey.Encode(cfg.Curve, uint32(g.X), uint32(g.Y)))
		}
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })

	var n int64
	var sum float64
	for i := 1; i < len(locs); i++ {
		if locs[i-1] != locs[i] {
			sum += math.Log(float64(locs[i] - locs[i-1]))
			n++
		}
	}
	if n > 0 {
		avg := math.Exp(sum / float64(n))
		dist := math.Sqrt(avg) / 33.0
		sst.DistSum += math.Log(dist) * float64(n)
		sst.DistCount += n
	}
}
