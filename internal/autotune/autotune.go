// Package autotune derives maxzoom, basezoom, and droprate values left
// unspecified ("guess") by the caller, from the distribution of spatial
// keys already produced by ingestion. Ported out of the teacher's
// ReadInput, where the same computation lived inline between reading the
// index and invoking the radix sort; split into its own package per
// spec §4.8 since nothing else in the pipeline needs it once the
// Orchestrator has its answer.
package autotune

import (
	"io"
	"math"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/droppolicy"
	"github.com/tilercore/pipeline/internal/feature"
	"github.com/tilercore/pipeline/internal/spatialkey"
)

// maxZoomTileCap bounds the number of tiles a chosen maxzoom would touch
// for a file spanning more than a trivial area; the teacher never bounded
// this, a gap spec §4.8 calls out explicitly.
const maxZoomTileCap = 2097152

// Result holds the values Autotune computed; a field stays at the
// caller-supplied value whenever that knob was pinned rather than
// guessed.
type Result struct {
	Maxzoom  int
	Basezoom int
	Droprate float64

	// KeyGapStddev is the Welford-computed standard deviation of
	// log(adjacent-key-gap). guessMaxzoom uses it in the nearby-gap
	// estimate exp(mean - 1.5*stddev) and, when droprate is auto, in the
	// droprate formula; it is also exposed here for the Orchestrator's
	// progress log. It is 0 when maxzoom was pinned.
	KeyGapStddev float64
}

// DistanceStats carries the summed distance statistics SerializeFeature
// (via ingest.SerializationState) gathers when cfg.Maxzoom.Auto or
// cfg.Basezoom.Auto is set, so maxzoom can also be raised to resolve
// ordinary within-feature point spacing (e.g. a GeoJSON LineString's own
// vertex density), not just inter-feature spacing.
type DistanceStats struct {
	Count int64
	Sum   float64 // sum of log(sqrt(key gap)/33), weighted by gap count
}

// Autotune reads every IndexEntry from index (n entries, ascending by
// Key — the SpatialSorter's output order), accumulates the statistics
// the teacher's inline block computed, and returns whichever of
// maxzoom/basezoom/droprate cfg left on "guess".
func Autotune(index io.ReaderAt, n int64, cfg config.Config, dist DistanceStats, areaSum float64) (Result, error) {
	res := Result{
		Maxzoom:  cfg.Maxzoom.Value,
		Basezoom: cfg.Basezoom.Value,
		Droprate: cfg.Droprate.Value,
	}

	droprateResolved := false

	if cfg.Maxzoom.Auto {
		mz, stddev, dr, drOK, err := guessMaxzoom(index, n, cfg, dist)
		if err != nil {
			return res, err
		}
		res.Maxzoom = applyTileCap(mz, areaSum)
		res.KeyGapStddev = stddev
		if cfg.Droprate.Auto && drOK {
			res.Droprate = dr
			droprateResolved = true
		}
		if res.Basezoom < 0 {
			res.Basezoom = res.Maxzoom
		}
	}

	if cfg.Basezoom.Auto || (cfg.Droprate.Auto && !droprateResolved) {
		bz, dr, err := guessBasezoomAndDroprate(index, n, res.Maxzoom, cfg)
		if err != nil {
			return res, err
		}
		if cfg.Basezoom.Auto {
			res.Basezoom = bz
		}
		if cfg.Droprate.Auto && !droprateResolved {
			res.Droprate = dr
		}
	}

	if res.Maxzoom < cfg.Minzoom {
		res.Maxzoom = cfg.Minzoom
	}
	return res, nil
}

// applyTileCap caps maxzoom so the cumulative area-weighted tile count
// across zooms 1..maxzoom never exceeds maxZoomTileCap, per spec §4.8
// ("Σ_{z=1..maxzoom} ceil(area_sum / 2^(2*(32−z))) stays below
// 2,097,152 tiles"), matching the teacher's total_tile_count loop.
func applyTileCap(maxzoom int, areaSum float64) int {
	var total float64
	for z := 1; z <= maxzoom; z++ {
		side := float64(uint64(1) << uint(32-z))
		tiles := math.Ceil(areaSum / (side * side))
		total += tiles
		if total > maxZoomTileCap {
			return z - 1
		}
	}
	return maxzoom
}

// roundDroprate rounds r to five decimal places, matching the teacher's
// round_droprate helper.
func roundDroprate(r float64) float64 {
	return math.Round(r*1e5) / 1e5
}

// guessMaxzoom ports the teacher's Welford accumulation of
// log(ix[i]-ix[i-1]) over distinct adjacent keys (tracking dupes on the
// non-distinct transitions) into nearby = exp(mean - 1.5*stddev),
// nearby_ft = sqrt(nearby)/33, want = nearby_ft/2 feeding the
// log2(360/...) maxzoom formula, per spec §4.8. When droprate is also
// left on "auto", it additionally derives droprate from stddev and bumps
// maxzoom by the dupes ratio, matching the teacher's droprate==-3 path.
func guessMaxzoom(index io.ReaderAt, n int64, cfg config.Config, dist DistanceStats) (int, float64, float64, bool, error) {
	var count, dupes int64
	var mean, m2 float64
	var prevKey uint64
	havePrev := false

	buf := make([]byte, feature.IndexSize)
	for i := int64(0); i < n; i++ {
		if _, err := index.ReadAt(buf, i*int64(feature.IndexSize)); err != nil {
			return 0, 0, 0, false, err
		}
		e := feature.UnmarshalIndexEntry(buf)
		key := e.Key

		if havePrev {
			if key != prevKey {
				lo, hi := prevKey, key
				if lo > hi {
					lo, hi = hi, lo
				}
				x := math.Log(float64(hi - lo))
				count++
				delta := x - mean
				mean += delta / float64(count)
				m2 += delta * (x - mean)
			} else {
				dupes++
			}
		}
		prevKey = key
		havePrev = true
	}

	var stddev float64
	if count > 0 {
		stddev = math.Sqrt(m2 / float64(count))
	}

	if count == 0 && dist.Count == 0 {
		return cfg.Maxzoom.Value, stddev, 0, false, nil
	}

	maxzoom := cfg.Maxzoom.Value
	avg := math.Exp(mean)
	droprate := cfg.Droprate.Value
	droprateOK := false

	if count > 0 {
		nearby := math.Exp(mean - 1.5*stddev)
		nearbyFt := math.Sqrt(nearby) / 33
		want := nearbyFt / 2
		maxzoom = int(math.Ceil(math.Log(360/(want*0.00000274))/math.Log(2) - float64(cfg.FullDetail)))
		if maxzoom < 0 {
			maxzoom = 0
		}

		for maxzoom < 32-cfg.FullDetail && maxzoom < 33-cfg.LowDetail && maxzoom < cfg.ClusterMaxzoom && cfg.ClusterDistance > 0 {
			zoomMingap := float64((uint64(1)<<uint(32-maxzoom))/256*uint64(cfg.ClusterDistance)) *
				float64((uint64(1)<<uint(32-maxzoom))/256*uint64(cfg.ClusterDistance))
			if avg > zoomMingap {
				break
			}
			maxzoom++
		}

		if cfg.Droprate.Auto {
			droprate = roundDroprate(math.Exp(-0.7681*math.Log(stddev) + 1.582))
			if droprate < 0 {
				droprate = 0
			}
			droprateOK = true
			if dupes != 0 && droprate != 0 {
				maxzoom += int(math.Round(math.Log(float64(dupes+count)/float64(count)) / math.Log(droprate)))
			}
		}
	}

	if dist.Count != 0 {
		want2 := math.Exp(dist.Sum/float64(dist.Count)) / 8
		mz := int(math.Ceil(math.Log(360/(0.00000274*want2))/math.Log(2) - float64(cfg.FullDetail)))
		if mz > maxzoom || count <= 0 {
			maxzoom = mz
		}
	}

	maxzoom = clampZoom(maxzoom, cfg)

	return maxzoom, stddev, droprate, droprateOK, nil
}

func clampZoom(z int, cfg config.Config) int {
	if z < 0 {
		z = 0
	}
	if z > 32-cfg.FullDetail {
		z = 32 - cfg.FullDetail
	}
	if z > 33-cfg.LowDetail {
		z = 33 - cfg.LowDetail
	}
	return z
}

// tileStat mirrors the teacher's inline Tile{x,y,count,fullcount,gap,
// preindex} struct, one per zoom level.
type tileStat struct {
	x, y      uint64
	count     int64
	fullcount int64
	gap       float64
	preindex  uint64
}

// guessBasezoomAndDroprate ports the teacher's second inline block:
// bucket every feature into its containing tile at every zoom, find the
// single densest tile per zoom, then solve for whichever of
// basezoom/droprate is unset so the densest tile at basezoom holds at
// most maxFeatures records. Verbatim constants (50000 numerator,
// ManageGap-gated count vs fullcount) from the teacher. The
// maxZoomTileCap guard runs separately, against maxzoom and area_sum,
// via applyTileCap (spec §4.8).
func guessBasezoomAndDroprate(index io.ReaderAt, n int64, maxzoom int, cfg config.Config) (int, float64, error) {
	tiles := make([]tileStat, maxzoom+1)
	maxTiles := make([]tileStat, maxzoom+1)

	buf := make([]byte, feature.IndexSize)
	for i := int64(0); i < n; i++ {
		if _, err := index.ReadAt(buf, i*int64(feature.IndexSize)); err != nil {
			return 0, 0, err
		}
		e := feature.UnmarshalIndexEntry(buf)
		key := e.Key
		xx, yy := spatialkey.Decode(cfg.Curve, key)

		for z := 0; z <= maxzoom; z++ {
			var xxx, yyy uint64
			if z != 0 {
				xxx = uint64(xx) >> uint(32-z)
				yyy = uint64(yy) >> uint(32-z)
			}
			scale := float64(uint64(1) << uint(64-2*(z+8)))

			t := &tiles[z]
			if t.x != xxx || t.y != yyy {
				if t.count > maxTiles[z].count {
					maxTiles[z] = *t
				}
				t.x, t.y = xxx, yyy
			}
			t.fullcount++

			if droppolicy.ManageGap(key, &t.preindex, scale, cfg.Gamma, &t.gap) {
				continue
			}
			t.count++
		}
	}
	for z := maxzoom; z >= 0; z-- {
		if tiles[z].count > maxTiles[z].count {
			maxTiles[z] = tiles[z]
		}
	}

	basezoomMarkerWidth := 1.0
	maxFeatures := 50000 / (basezoomMarkerWidth * basezoomMarkerWidth)

	basezoom := cfg.Basezoom.Value
	basezoomWasAuto := cfg.Basezoom.Auto
	if basezoomWasAuto {
		// maxzoom+1 stands for "no zoom fits", which the branch below solves
		// from the other direction.
		basezoom = maxzoom + 1
		for z := maxzoom; z >= 0; z-- {
			if float64(maxTiles[z].count) < maxFeatures {
				basezoom = z
			}
		}
	}

	droprate := cfg.Droprate.Value

	if basezoomWasAuto && basezoom > maxzoom {
		if cfg.Droprate.Auto {
			if maxzoom == 0 {
				droprate = 2.5
			} else {
				droprate = math.Exp(math.Log(float64(maxTiles[0].count)/float64(maxTiles[maxzoom].count)) / float64(maxzoom))
			}
		}
		basezoom = 0
		for z := 0; z <= maxzoom; z++ {
			zoomdiff := math.Log(float64(maxTiles[z].count)/maxFeatures) / math.Log(droprate)
			if zoomdiff+float64(z) > float64(basezoom) {
				basezoom = int(math.Ceil(zoomdiff + float64(z)))
			}
		}
	} else if cfg.Droprate.Auto {
		droprate = 1
		for z := basezoom - 1; z >= 0; z-- {
			interval := math.Exp(math.Log(droprate) * float64(basezoom-z))
			if float64(maxTiles[z].count)/interval >= maxFeatures {
				interval = float64(maxTiles[z].count) / maxFeatures
				droprate = math.Exp(math.Log(interval) / float64(basezoom-z))
			}
		}
	}

	return basezoom, droprate, nil
}
