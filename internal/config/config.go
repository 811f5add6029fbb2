// Package config holds the immutable run configuration threaded through
// the orchestrator and every worker's context at spawn. It replaces the
// source project's process-wide flag arrays (prevent[], additional[]) with
// a single value that is never mutated after Load returns.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Curve selects the space-filling curve used for spatial keys.
type Curve int

const (
	Hilbert Curve = iota
	Morton
)

func (c Curve) String() string {
	if c == Hilbert {
		return "hilbert"
	}
	return "morton"
}

// Guess is a tri-state knob: a user may pin a value, ask the auto-tuner to
// guess it, or leave it to the ordinary defaulting rules.
type Guess struct {
	Value int
	Auto  bool
}

// GuessF is the floating-point analogue of Guess, used for droprate.
type GuessF struct {
	Value float64
	Auto  bool
}

// Config is the immutable value every package in this module consumes
// instead of package-level globals. Zero value is not valid; use Load or
// Default.
type Config struct {
	CPUs      int
	TempFiles int
	MaxFiles  int

	TempDir string

	Curve Curve

	Maxzoom  Guess
	Minzoom  int
	Basezoom Guess
	Droprate GuessF
	Gamma    float64

	FullDetail int
	LowDetail  int
	MinDetail  int

	Buffer int

	PreserveDensityThreshold float64
	DropDenser               bool
	DropDenserPercent        float64

	LineDrop    bool
	PolygonDrop bool

	GenerateIDs       bool
	ConvertNumericIDs bool
	DetectWraparound  bool
	GridLowZooms      bool
	InputOrder        bool
	Clipping          bool

	ClusterDistance int
	ClusterMaxzoom  int

	MaxTileSize     int
	MaxTileFeatures int

	ExternalSortRunFraction float64

	ProgressInterval float64
	Quiet            bool

	AttributeForID string
	Exclude        []string
	Include        []string
	ExcludeAll     bool
}

// MaxZoomHardLimit mirrors the teacher's MaxZoom constant.
const MaxZoomHardLimit = 24

// Default returns the baseline configuration, equivalent to the teacher's
// package-level defaults (lowDetail=12, fullDetail=-1, minDetail=7,
// droprate=2.5, buffer=5) before any file or flag overrides are applied.
func Default() Config {
	return Config{
		CPUs:                     numCPUs(),
		MaxFiles:                 1024,
		TempDir:                  "/tmp",
		Curve:                    Hilbert,
		Maxzoom:                  Guess{Value: 14},
		Minzoom:                  0,
		Basezoom:                 Guess{Value: -1},
		Droprate:                 GuessF{Value: 2.5},
		Gamma:                    0,
		FullDetail:               -1,
		LowDetail:                12,
		MinDetail:                7,
		Buffer:                   5,
		DropDenserPercent:        0,
		MaxTileSize:              500000,
		MaxTileFeatures:          200000,
		ExternalSortRunFraction:  0.05,
		ProgressInterval:         0,
		InputOrder:               true,
	}
}

func numCPUs() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	if n > 32767 {
		n = 32767
	}
	// Round down to a power of two, mirroring initCups in the source
	// project, whose segment field was a short; here the worker count is
	// also capped at 32767 above and kept a clean power of two.
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

// Load layers a TOML/YAML/JSON config file (if present) and environment
// variables (TILERCORE_*) over Default(). A missing path is not an error —
// it only means the defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("TILERCORE")
	v.AutomaticEnv()
	v.SetConfigFile(path)

	v.SetDefault("maxzoom", cfg.Maxzoom.Value)
	v.SetDefault("minzoom", cfg.Minzoom)
	v.SetDefault("basezoom", cfg.Basezoom.Value)
	v.SetDefault("droprate", cfg.Droprate.Value)
	v.SetDefault("gamma", cfg.Gamma)
	v.SetDefault("buffer", cfg.Buffer)
	v.SetDefault("curve", cfg.Curve.String())
	v.SetDefault("tempdir", cfg.TempDir)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return cfg, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	cfg.Maxzoom.Value = v.GetInt("maxzoom")
	cfg.Minzoom = v.GetInt("minzoom")
	cfg.Basezoom.Value = v.GetInt("basezoom")
	cfg.Droprate.Value = v.GetFloat64("droprate")
	cfg.Gamma = v.GetFloat64("gamma")
	cfg.Buffer = v.GetInt("buffer")
	cfg.TempDir = v.GetString("tempdir")

	switch strings.ToLower(v.GetString("curve")) {
	case "morton", "quadkey":
		cfg.Curve = Morton
	default:
		cfg.Curve = Hilbert
	}

	cfg.TempFiles = tempFileBudget(cfg.MaxFiles, cfg.CPUs)
	return cfg, nil
}

// tempFileBudget mirrors initCups: MAX_FILES = (maxFiles-10)/2, capped at
// 4*CPUs.
func tempFileBudget(maxFiles, cpus int) int {
	n := (maxFiles - 10) / 2
	if n > cpus*4 {
		n = cpus * 4
	}
	if n < 1 {
		n = 1
	}
	return n
}
