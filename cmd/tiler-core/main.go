// Command tiler-core is the CLI entrypoint wiring internal/config,
// internal/orchestrator, internal/tilerstub, and internal/metadata into a
// runnable process. Flag/config layering and exit-code handling follow
// the source project's own main()/ReadInput top level, minus its scratch
// debug prints and Windows-only disk probe.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/tilercore/pipeline/internal/config"
	"github.com/tilercore/pipeline/internal/ingest"
	"github.com/tilercore/pipeline/internal/logging"
	"github.com/tilercore/pipeline/internal/metadata"
	"github.com/tilercore/pipeline/internal/orchestrator"
	"github.com/tilercore/pipeline/internal/projection"
	"github.com/tilercore/pipeline/internal/tilerstub"
)

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(argv []string) logging.ExitCode {
	flags := pflag.NewFlagSet("tiler-core", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a TOML/YAML/JSON config file")
	output := flags.StringP("output", "o", "tiles.mbtiles", "output mbtiles path")
	layer := flags.StringP("layer", "l", "", "layer name for inputs without one of their own (defaults to the input's base filename)")
	projName := flags.String("projection", "EPSG:4326", "input coordinate projection (EPSG:4326 or EPSG:3857)")
	maxzoom := flags.Int("maxzoom", -1, "maximum zoom level (-1: leave the config/default value alone)")
	minzoom := flags.Int("minzoom", -1, "minimum zoom level (-1: leave the config/default value alone)")
	quiet := flags.BoolP("quiet", "q", false, "suppress info-level logging")
	if err := flags.Parse(argv); err != nil {
		return logging.Args
	}

	level := logrus.InfoLevel
	if *quiet {
		level = logrus.WarnLevel
	}
	logging.Init(level)
	signal.Ignore(syscall.SIGPIPE)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Errorf("config: %v", err)
		return logging.Args
	}
	if *maxzoom >= 0 {
		cfg.Maxzoom = config.Guess{Value: *maxzoom}
	}
	if *minzoom >= 0 {
		cfg.Minzoom = *minzoom
	}

	proj, err := projection.Named(*projName)
	if err != nil {
		logrus.Errorf("projection: %v", err)
		return logging.Args
	}

	paths := flags.Args()
	if len(paths) == 0 {
		logrus.Errorf("tiler-core: no input files given")
		return logging.Args
	}

	sources := make([]orchestrator.Source, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logrus.Errorf("reading %s: %v", path, err)
			return logging.Open
		}
		parser, err := parserFor(path, proj, *layer)
		if err != nil {
			logrus.Errorf("%s: %v", path, err)
			return logging.Args
		}
		sources = append(sources, orchestrator.Source{Name: path, Data: data, Parser: parser})
	}

	writer, err := metadata.Open(*output)
	if err != nil {
		logrus.Errorf("opening %s: %v", *output, err)
		return logging.Open
	}
	defer writer.Close()

	code, err := orchestrator.Run(context.Background(), cfg, sources, proj, tilerstub.Stub{}, writer)
	if err != nil {
		logrus.Errorf("tiler-core: %v", err)
	}
	return code
}

func parserFor(path string, proj projection.Projection, layerFlag string) (ingest.FormatParser, error) {
	layer := layerFlag
	if layer == "" {
		base := filepath.Base(path)
		layer = strings.TrimSuffix(base, filepath.Ext(base))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ingest.CSVParser{Proj: proj, LayerName: layer}, nil
	case ".geojson", ".json", ".geojsonl", ".ndjson":
		return ingest.GeoJSONParser{Proj: proj, LayerName: layer}, nil
	default:
		return nil, fmt.Errorf("unrecognized input extension %q", filepath.Ext(path))
	}
}
