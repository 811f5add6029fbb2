package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/projection"
)

// CSVParser is the FormatParser for point-only delimited text, adapted
// from the source project's geocsv.go ParseGeoCSV/GetGeomCol. Every debug
// print in the original has been dropped. The original's two-pass design
// (one csv.Reader sniffs geometry columns by consuming the file, a second
// fresh csv.Reader then tries to read the same, now-exhausted file) never
// actually produced any features; this version reads all rows once,
// sniffs the geometry columns against the in-memory sample, and then
// serializes every row including the ones used for sniffing.
type CSVParser struct {
	Proj      projection.Projection
	LayerName string
	Layer     int
}

// Parse reads one CSV stream to completion, serializing one point feature
// per row.
func (p CSVParser) Parse(sst *SerializationState, r *Reader, cfg config.Config, in io.Reader) (read, dropped int64, err error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return 0, 0, err
	}

	var rows [][]string
	for {
		row, rerr := reader.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			sst.Warn.Warn("csv-row", "csv parse error: %v", rerr)
			continue
		}
		rows = append(rows, row)
	}

	ix, iy := detectGeomColumns(headers, rows)
	if ix < 0 || iy < 0 {
		return 0, 0, errNoGeomColumn
	}

	for _, row := range rows {
		read++
		if ix >= len(row) || iy >= len(row) || row[ix] == "" || row[iy] == "" {
			sst.Warn.Warn("csv-nil-geom", "row has empty geometry columns")
			dropped++
			continue
		}

		lon, lerr := strconv.ParseFloat(row[ix], 64)
		lat, aerr := strconv.ParseFloat(row[iy], 64)
		if lerr != nil || aerr != nil {
			dropped++
			continue
		}
		x, y := p.Proj.Project(lon, lat, 32)

		keys := make([]string, 0, len(row)-2)
		values := make([]feature.Value, 0, len(row)-2)
		for i, c := range row {
			if i == ix || i == iy || i >= len(headers) {
				continue
			}
			v := feature.Value{S: c, Kind: feature.KindString}
			if _, nerr := strconv.ParseFloat(c, 64); nerr == nil {
				v.Kind = feature.KindDouble
			} else if c == "" {
				v.Kind = feature.KindNull
				v.S = "null"
			}
			keys = append(keys, headers[i])
			values = append(values, v)
		}

		raw := RawFeature{
			Type:      feature.Point,
			LayerName: p.LayerName,
			Geometry:  feature.DrawSeq{{X: x, Y: y, Op: feature.OpMoveTo}},
			Keys:      keys,
			Values:    values,
		}
		if !SerializeFeature(sst, r, cfg, raw) {
			dropped++
		}
	}
	return read, dropped, nil
}

var errNoGeomColumn = errGeomColumn{}

type errGeomColumn struct{}

func (errGeomColumn) Error() string {
	return `couldn't find "x"/"lon"/"longitude" and "y"/"lat"/"latitude" columns`
}

// detectGeomColumns guesses which columns hold longitude/latitude, by
// header name first and then by plausible numeric range across a sample
// of up to 7 rows. Ported from geocsv.go's GetGeomCol.
func detectGeomColumns(headers []string, rows [][]string) (ix, iy int) {
	sample := rows
	if len(sample) > 7 {
		sample = sample[:7]
	}

	byName := func(candidates []string) int {
		for _, c := range candidates {
			for i, h := range headers {
				if strings.ToLower(h) == c {
					return i
				}
			}
		}
		return -1
	}
	byRange := func(min, max float64) int {
		if len(sample) == 0 {
			return -1
		}
		for i := range headers {
			all := true
			for _, row := range sample {
				if i >= len(row) {
					all = false
					break
				}
				f, perr := strconv.ParseFloat(row[i], 64)
				if perr != nil || f < min || f > max {
					all = false
					break
				}
			}
			if all {
				return i
			}
		}
		return -1
	}

	ix = byName([]string{"x", "lon", "longitude"})
	if ix < 0 {
		ix = byRange(-180, 180)
	}
	iy = byName([]string{"y", "lat", "latitude"})
	if iy < 0 {
		iy = byRange(-90, 90)
	}
	return ix, iy
}
