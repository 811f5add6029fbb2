// Package droppolicy computes each feature's minzoom: the lowest zoom
// level at which a feature survives thinning. Ported from the source
// project's inline DropState/CalcFeatureMinzoom logic in main.go and the
// gamma gap test (ManageGap) in tile.go, both of which only ever ran
// against the ordinary interval/seq walk; density preservation and
// drop-denser mode are new, grounded on the shape of the same walk.
package droppolicy

import (
	"math"
	"sort"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/feature"
)

// State is one zoom level's running thinning state across the sorted
// feature stream. Ported from the source project's DropState struct.
type State struct {
	Gap       float64
	PrevIndex uint64
	Interval  float64
	Scale     float64
	Seq       float64
	Included  int64
}

// Prepare returns one State per zoom 0..maxzoom, with Interval set to
// droprate^(basezoom-z) below basezoom and 0 (keep everything) at or
// above it. Ported verbatim from the source project's prepDropStates.
func Prepare(maxzoom, basezoom int, droprate float64) []State {
	ds := make([]State, maxzoom+1)
	for i := 0; i <= maxzoom; i++ {
		if i < basezoom {
			ds[i].Interval = math.Exp(math.Log(droprate) * float64(basezoom-i))
		}
		ds[i].Scale = float64(int64(1) << uint(64-2*(i+8)))
	}
	return ds
}

// ManageGap enforces the gamma near-duplicate suppression test at one
// zoom level: successive features whose spatial keys are closer than the
// gamma-scaled gap are rejected until the gap target is satisfied. Ported
// verbatim from the source project's tile.go ManageGap.
func ManageGap(index uint64, preindex *uint64, scale, gamma float64, gap *float64) bool {
	if gamma <= 0 {
		return false
	}
	if *gap > 0 {
		if index == *preindex {
			return true
		}
		if index < *preindex || math.Exp(math.Log(float64(index-*preindex)/scale)*gamma) >= *gap {
			*gap = 0
		} else {
			return true
		}
	} else if index >= *preindex {
		g := float64(index-*preindex) / scale
		if g == 0 || g < 1 {
			*gap = 0
			return true
		}
		*gap = 0
	}
	*preindex = index
	return false
}

// Policy bundles the per-run configuration CalcMinzoom needs beyond the
// per-zoom State slice.
type Policy struct {
	Maxzoom  int
	Basezoom int
	Droprate float64
	Gamma    float64
	// GammaEnabled gates gamma suppression. The orchestrator's provisional
	// (ingest-time) pass always runs with it false, whether or not
	// basezoom/droprate were given; the post-autotune rewrite pass sets it
	// whenever Gamma > 0.
	GammaEnabled bool

	LineDrop    bool
	PolygonDrop bool

	PreserveDensityThreshold float64
}

// CalcMinzoom computes one feature's minzoom by the interval/seq walk
// (verbatim teacher CalcFeatureMinzoom), then layers gamma suppression and
// density preservation on top. states is mutated in place; it must be
// threaded through every feature in ascending spatial-key order (the
// sorted merge's natural iteration order).
func CalcMinzoom(idx feature.IndexEntry, states []State, p Policy) int8 {
	var minzoom int8

	eligible := idx.Type == feature.Point ||
		(p.LineDrop && idx.Type == feature.Line) ||
		(p.PolygonDrop && idx.Type == feature.Polygon)

	if eligible {
		for i := p.Maxzoom; i >= 0; i-- {
			states[i].Seq++
		}
		for i := p.Maxzoom; i >= 0; i-- {
			if states[i].Seq >= 0 {
				states[i].Seq -= states[i].Interval
				states[i].Included++
			} else {
				minzoom = int8(i + 1)

				// This feature survives in zooms i+1..Maxzoom; track
				// where, so a later feature isn't clustered into it
				// from too far away.
				for j := i + 1; j <= p.Maxzoom; j++ {
					states[j].PrevIndex = idx.Key
				}
				break
			}
		}
	}

	if p.GammaEnabled && p.Gamma > 0 && eligible {
		for z := p.Maxzoom; z > int(minzoom); z-- {
			if ManageGap(idx.Key, &states[z].PrevIndex, states[z].Scale, p.Gamma, &states[z].Gap) {
				minzoom = int8(z + 1)
				break
			}
		}
	}

	if p.PreserveDensityThreshold > 0 && eligible {
		minzoom = preserveDensity(idx, states, p, minzoom)
	}

	return minzoom
}

// preserveDensity forces a feature down to a lower minzoom whenever the
// gap since the last retained feature at that zoom would otherwise exceed
// PreserveDensityThreshold, protecting sparse regions from being thinned
// to nothing. Grounded on the same ((2^(32-z))/D)^2 gap test the gamma
// walk already performs at a different scale.
func preserveDensity(idx feature.IndexEntry, states []State, p Policy, minzoom int8) int8 {
	for z := 0; z < int(minzoom) && z < p.Maxzoom; z++ {
		cell := math.Pow(2, float64(32-z)) / p.PreserveDensityThreshold
		threshold := cell * cell
		if float64(idx.Key-states[z].PrevIndex) > threshold {
			for j := z; j <= p.Maxzoom; j++ {
				states[j].PrevIndex = idx.Key
			}
			return int8(z)
		}
	}
	return minzoom
}

// Candidate is one feature considered for drop-denser mode: the
// densest-eligible fraction of features are ranked by the gap to their
// spatial neighbors and only the top candidates survive per zoom.
type Candidate struct {
	Seq int
	Key uint64
}

// RankDropDenser ranks candidates by descending gap to the next candidate
// (the sparsest-feeling features first) and returns, for each zoom below
// basezoom, the set of surviving candidate Seqs: the top
// count / droprate^(basezoom-z) of the ranking.
// Ported in spirit from the source project's "drop densest as needed"
// mode, which the teacher's WIP never implemented; the selection rule
// here is new, grounded on the same droprate-geometric-falloff shape used
// everywhere else in this package.
func RankDropDenser(candidates []Candidate, basezoom int, droprate float64) map[int]map[int]bool {
	sorted := append([]Candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	gaps := make([]float64, len(sorted))
	for i := range sorted {
		if i+1 < len(sorted) {
			gaps[i] = float64(sorted[i+1].Key - sorted[i].Key)
		}
	}

	order := make([]int, len(sorted))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return gaps[order[a]] > gaps[order[b]] })

	survivors := map[int]map[int]bool{}
	n := len(sorted)
	for z := 0; z < basezoom; z++ {
		keep := int(float64(n) * math.Pow(droprate, float64(z-basezoom)))
		if keep > n {
			keep = n
		}
		set := make(map[int]bool, keep)
		for i := 0; i < keep; i++ {
			set[sorted[order[i]].Seq] = true
		}
		survivors[z] = set
	}
	return survivors
}

// Sample draws a keyed pseudo-random fraction of eligible features into
// the drop-denser candidate pool, per cfg.DropDenserPercent.
func Sample(seq int64, cfg config.Config) bool {
	if !cfg.DropDenser || cfg.DropDenserPercent <= 0 {
		return false
	}
	h := uint64(seq) * 2654435761
	return float64(h%1000000)/1000000.0 < cfg.DropDenserPercent
}
