// Command preprocess turns an OSM PBF extract or a node-link JSON export into
// the binary graph artifact the server loads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/azybler/route_finder/pkg/config"
	"github.com/azybler/route_finder/pkg/graph"
	osmparser "github.com/azybler/route_finder/pkg/osm"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file or node-link .json export")
	output := flag.String("output", "", "Output binary graph file path (default: <graph-dir>/<region>.graph.bin)")
	region := flag.String("region", "", "Region name used to derive the output path, e.g. \"Bangalore, India\"")
	graphDir := flag.String("graph-dir", "data", "Directory for region artifacts")
	network := flag.String("network", string(osmparser.NetworkAll), "Road network to keep: all or drive")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 12.83,77.46,13.14,77.78)")
	bangalore := flag.Bool("bangalore", false, "Shortcut for --bbox 12.83,77.46,13.14,77.78 (Bangalore bounding box)")
	allComponents := flag.Bool("all-components", false, "Keep every connected component instead of only the largest")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := config.NewLogger(*logLevel, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if *input == "" || (*output == "" && *region == "") {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf|file.json> (--output graph.bin | --region <name>) [--network all|drive] [--bangalore | --bbox minLat,minLng,maxLat,maxLng]")
		os.Exit(1)
	}
	if *output == "" {
		*output = graph.RegionPath(*graphDir, *region)
	}

	net, err := osmparser.ParseNetwork(*network)
	if err != nil {
		logger.Fatal("invalid network", zap.Error(err))
	}
	opts := osmparser.ParseOptions{Network: net}
	if *bangalore {
		opts.BBox = osmparser.BBox{MinLat: 12.83, MaxLat: 13.14, MinLng: 77.46, MaxLng: 77.78}
	} else if *bbox != "" {
		var minLat, minLng, maxLat, maxLng float64
		if _, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
			logger.Fatal("invalid bbox format (expected minLat,minLng,maxLat,maxLng)", zap.Error(err))
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
	}
	if !opts.BBox.IsZero() {
		logger.Info("using bounding box filter",
			zap.Float64("min_lat", opts.BBox.MinLat), zap.Float64("max_lat", opts.BBox.MaxLat),
			zap.Float64("min_lng", opts.BBox.MinLng), zap.Float64("max_lng", opts.BBox.MaxLng))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()

	// Step 1: Read the input into a graph.
	g, err := readInput(ctx, *input, opts)
	if err != nil {
		logger.Fatal("failed to read input", zap.String("input", *input), zap.Error(err))
	}
	logger.Info("graph built", zap.Uint32("nodes", g.NumNodes), zap.Uint32("edges", g.NumEdges), zap.Uint32("components", g.NumComponents()))

	// Step 2: Extract largest connected component.
	if !*allComponents && g.NumNodes > 0 {
		componentNodes := graph.LargestComponent(g)
		logger.Info("largest component",
			zap.Int("nodes", len(componentNodes)),
			zap.Float64("percent", float64(len(componentNodes))/float64(g.NumNodes)*100))
		g = graph.FilterToComponent(g, componentNodes)
		logger.Info("filtered graph", zap.Uint32("nodes", g.NumNodes), zap.Uint32("edges", g.NumEdges))
	}

	// Step 3: Serialize to binary.
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		logger.Fatal("failed to create output directory", zap.Error(err))
	}
	if err := graph.WriteBinary(*output, g); err != nil {
		logger.Fatal("failed to write binary", zap.String("output", *output), zap.Error(err))
	}

	info, _ := os.Stat(*output)
	logger.Info("done",
		zap.String("output", *output),
		zap.Float64("size_mb", float64(info.Size())/(1024*1024)),
		zap.Duration("took", time.Since(start).Round(time.Millisecond)))
}

func readInput(ctx context.Context, path string, opts osmparser.ParseOptions) (*graph.Graph, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return graph.ReadNodeLink(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := osmparser.Parse(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	return graph.Build(res.Nodes, res.Edges)
}
