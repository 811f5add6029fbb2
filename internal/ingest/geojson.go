package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/projection"
)

// GeoJSONParser is the FormatParser for GeoJSON, accepting either a
// single FeatureCollection document or newline-delimited Feature objects
// (GeoJSON-lines/geojsonl), the two shapes original_source/geojson.cpp's
// `add_feature`/`serialize_geojson_feature` walk treats interchangeably by
// recursing into GeometryCollection and Multi* geometries. Coordinates
// arrive already in (lon, lat) order per the GeoJSON spec.
type GeoJSONParser struct {
	Proj      projection.Projection
	LayerName string
}

type geojsonGeometry struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []geojsonGeometry `json:"geometries"`
}

type geojsonFeature struct {
	Type       string            `json:"type"`
	Geometry   *geojsonGeometry  `json:"geometry"`
	Properties map[string]any    `json:"properties"`
	ID         json.RawMessage   `json:"id"`
}

type geojsonCollection struct {
	Type     string           `json:"type"`
	Features []geojsonFeature `json:"features"`
}

// Parse accepts any mix of a single FeatureCollection, a single Feature,
// or one Feature object per line.
func (p GeoJSONParser) Parse(sst *SerializationState, r *Reader, cfg config.Config, in io.Reader) (read, dropped int64, err error) {
	br := bufio.NewReaderSize(in, 1<<20)
	first, perr := br.Peek(1)
	if perr != nil && perr != io.EOF {
		return 0, 0, perr
	}
	if len(first) == 0 {
		return 0, 0, nil
	}

	var lines io.Reader = br
	if first[0] == '{' {
		var probe struct {
			Type string `json:"type"`
		}
		raw, rerr := io.ReadAll(br)
		if rerr != nil {
			return 0, 0, rerr
		}
		probeErr := json.Unmarshal(raw, &probe)
		if probeErr == nil && probe.Type == "FeatureCollection" {
			var coll geojsonCollection
			if jerr := json.Unmarshal(raw, &coll); jerr != nil {
				return 0, 0, jerr
			}
			for _, f := range coll.Features {
				read++
				if !p.serializeOne(sst, r, cfg, f) {
					dropped++
				}
			}
			return read, dropped, nil
		}
		if probeErr == nil {
			var one geojsonFeature
			if jerr := json.Unmarshal(raw, &one); jerr != nil {
				return 0, 0, jerr
			}
			read++
			if !p.serializeOne(sst, r, cfg, one) {
				dropped++
			}
			return read, dropped, nil
		}
		// Not a single JSON document: one Feature object per line.
		lines = bytes.NewReader(raw)
	}

	scanner := bufio.NewScanner(lines)
	scanner.Buffer(make([]byte, 1<<16), 1<<24)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var f geojsonFeature
		if jerr := json.Unmarshal(line, &f); jerr != nil {
			sst.Warn.Warn("geojson-line", "malformed GeoJSON line: %v", jerr)
			continue
		}
		read++
		if !p.serializeOne(sst, r, cfg, f) {
			dropped++
		}
	}
	return read, dropped, scanner.Err()
}

func (p GeoJSONParser) serializeOne(sst *SerializationState, r *Reader, cfg config.Config, f geojsonFeature) bool {
	if f.Geometry == nil {
		sst.Warn.Warn("geojson-null-geom", "feature without geometry")
		return false
	}

	geomType, dv, ok := p.parseGeometry(*f.Geometry)
	if !ok || len(dv) == 0 {
		sst.Warn.Warn("geojson-bad-geom", "feature with unsupported or empty geometry %q", f.Geometry.Type)
		return false
	}

	keys := make([]string, 0, len(f.Properties))
	values := make([]feature.Value, 0, len(f.Properties))
	for k, v := range f.Properties {
		keys = append(keys, k)
		values = append(values, jsonValue(v))
	}

	raw := RawFeature{
		Type:      geomType,
		LayerName: p.LayerName,
		Geometry:  dv,
		Keys:      keys,
		Values:    values,
	}
	if len(f.ID) > 0 {
		if id, ierr := strconv.ParseInt(string(f.ID), 10, 64); ierr == nil {
			raw.HasID = true
			raw.ID = id
		}
	}
	return SerializeFeature(sst, r, cfg, raw)
}

func jsonValue(v any) feature.Value {
	switch t := v.(type) {
	case float64:
		return feature.Value{Kind: feature.KindDouble, S: strconv.FormatFloat(t, 'g', -1, 64)}
	case bool:
		if t {
			return feature.Value{Kind: feature.KindBool, S: "true"}
		}
		return feature.Value{Kind: feature.KindBool, S: "false"}
	case nil:
		return feature.Value{Kind: feature.KindNull, S: "null"}
	case string:
		return feature.Value{Kind: feature.KindString, S: t}
	default:
		b, _ := json.Marshal(t)
		return feature.Value{Kind: feature.KindString, S: string(b)}
	}
}

// parseGeometry dispatches on the GeoJSON geometry "type" member,
// flattening Multi* geometries into one DrawSeq with multiple MoveTo-
// started parts, matching how the core treats a multi-part feature as a
// single SerialFeature with several rings/lines.
func (p GeoJSONParser) parseGeometry(g geojsonGeometry) (feature.GeomType, feature.DrawSeq, bool) {
	switch g.Type {
	case "Point":
		var c [2]float64
		if json.Unmarshal(g.Coordinates, &c) != nil {
			return 0, nil, false
		}
		return feature.Point, feature.DrawSeq{p.project(c, feature.OpMoveTo)}, true

	case "MultiPoint":
		var cs [][2]float64
		if json.Unmarshal(g.Coordinates, &cs) != nil {
			return 0, nil, false
		}
		dv := make(feature.DrawSeq, 0, len(cs))
		for _, c := range cs {
			dv = append(dv, p.project(c, feature.OpMoveTo))
		}
		return feature.Point, dv, true

	case "LineString":
		var cs [][2]float64
		if json.Unmarshal(g.Coordinates, &cs) != nil {
			return 0, nil, false
		}
		return feature.Line, p.projectLine(cs), true

	case "MultiLineString":
		var lines [][][2]float64
		if json.Unmarshal(g.Coordinates, &lines) != nil {
			return 0, nil, false
		}
		var dv feature.DrawSeq
		for _, cs := range lines {
			dv = append(dv, p.projectLine(cs)...)
		}
		return feature.Line, dv, true

	case "Polygon":
		var rings [][][2]float64
		if json.Unmarshal(g.Coordinates, &rings) != nil {
			return 0, nil, false
		}
		var dv feature.DrawSeq
		for _, ring := range rings {
			dv = append(dv, p.projectRing(ring)...)
		}
		return feature.Polygon, dv, true

	case "MultiPolygon":
		var polys [][][][2]float64
		if json.Unmarshal(g.Coordinates, &polys) != nil {
			return 0, nil, false
		}
		var dv feature.DrawSeq
		for _, rings := range polys {
			for _, ring := range rings {
				dv = append(dv, p.projectRing(ring)...)
			}
		}
		return feature.Polygon, dv, true

	case "GeometryCollection":
		var dv feature.DrawSeq
		var t feature.GeomType
		for _, sub := range g.Geometries {
			st, sdv, ok := p.parseGeometry(sub)
			if ok {
				t = st
				dv = append(dv, sdv...)
			}
		}
		return t, dv, len(dv) > 0

	default:
		return 0, nil, false
	}
}

func (p GeoJSONParser) project(c [2]float64, op feature.DrawOp) feature.Draw {
	x, y := p.Proj.Project(c[0], c[1], 32)
	return feature.Draw{X: x, Y: y, Op: op}
}

func (p GeoJSONParser) projectLine(cs [][2]float64) feature.DrawSeq {
	dv := make(feature.DrawSeq, 0, len(cs))
	for i, c := range cs {
		op := feature.OpLineTo
		if i == 0 {
			op = feature.OpMoveTo
		}
		dv = append(dv, p.project(c, op))
	}
	return dv
}

func (p GeoJSONParser) projectRing(ring [][2]float64) feature.DrawSeq {
	dv := p.projectLine(ring)
	if len(dv) > 0 {
		dv = append(dv, feature.Draw{Op: feature.OpClosePath})
	}
	return dv
}
