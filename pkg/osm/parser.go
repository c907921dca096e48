package osm

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/azybler/route_finder/pkg/geo"
	"github.com/azybler/route_finder/pkg/graph"
)

// Network selects which ways become graph edges.
type Network string

const (
	// NetworkAll keeps every public highway, including footways and paths.
	NetworkAll Network = "all"
	// NetworkDrive keeps only ways a car may use.
	NetworkDrive Network = "drive"
)

// ParseNetwork validates a network name.
func ParseNetwork(s string) (Network, error) {
	switch n := Network(s); n {
	case NetworkAll, NetworkDrive:
		return n, nil
	default:
		return "", fmt.Errorf("unknown network %q (want %q or %q)", s, NetworkAll, NetworkDrive)
	}
}

// ParseResult holds the output of parsing an OSM PBF file, ready for
// graph.Build.
type ParseResult struct {
	Nodes []graph.RawNode
	Edges []graph.RawEdge
}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// unusableHighways are highway values that exist in the data but carry no
// traffic of any kind.
var unusableHighways = map[string]bool{
	"abandoned":    true,
	"construction": true,
	"no":           true,
	"planned":      true,
	"platform":     true,
	"proposed":     true,
	"raceway":      true,
	"razed":        true,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	if !carHighways[tags.Find("highway")] {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}
	return isPublicWay(tags)
}

// isPublicWay returns true for any highway open to some kind of traffic.
func isPublicWay(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if hw == "" || unusableHighways[hw] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	// Skip restricted access.
	access := tags.Find("access")
	return access != "no" && access != "private"
}

func (n Network) accepts(tags osm.Tags) bool {
	if n == NetworkDrive {
		return isCarAccessible(tags)
	}
	return isPublicWay(tags)
}

// directionFlags returns (forward, backward) based on highway type and oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	// Default: bidirectional.
	forward = true
	backward = true

	hw := tags.Find("highway")

	// Implied oneway for motorways and roundabouts.
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	// Explicit oneway tag overrides.
	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent, skip entirely.
		forward = false
		backward = false
	}

	return forward, backward
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	Network Network // defaults to NetworkAll
	BBox    BBox    // if non-zero, filter edges to this bounding box
}

// Parse reads an OSM PBF file and returns directed edges for the selected
// network. The reader is consumed twice (seeks back to start for the
// second pass), so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opt ParseOptions) (*ParseResult, error) {
	if opt.Network == "" {
		opt.Network = NetworkAll
	}
	log := zap.L().With(zap.String("network", string(opt.Network)))

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if !opt.Network.accepts(w.Tags) || len(w.Nodes) < 2 {
			continue
		}

		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, wayInfo{NodeIDs: nodeIDs, Forward: fwd, Backward: bwd})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Info("pass 1 complete", zap.Int("ways", len(ways)), zap.Int("referenced_nodes", len(referencedNodes)))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	coords := make(map[osm.NodeID]latLon, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		coords[n.ID] = latLon{n.Lat, n.Lon}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Info("pass 2 complete", zap.Int("coordinates", len(coords)))

	res := buildEdges(ways, coords, opt.BBox, log)
	log.Info("built graph records", zap.Int("nodes", len(res.Nodes)), zap.Int("edges", len(res.Edges)))
	return res, nil
}

type latLon struct {
	Lat, Lon float64
}

// buildEdges turns consecutive way nodes into weighted directed edges and
// collects the nodes those edges touch.
func buildEdges(ways []wayInfo, coords map[osm.NodeID]latLon, bbox BBox, log *zap.Logger) *ParseResult {
	useBBox := !bbox.IsZero()

	var edges []graph.RawEdge
	used := make(map[osm.NodeID]struct{})
	var skippedEdges, bboxFiltered int

	for _, w := range ways {
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID := w.NodeIDs[i]
			toID := w.NodeIDs[i+1]

			from, fromOk := coords[fromID]
			to, toOk := coords[toID]
			if !fromOk || !toOk {
				skippedEdges++
				continue
			}

			// Bounding box filter: skip edges with any endpoint outside.
			if useBBox && (!bbox.Contains(from.Lat, from.Lon) || !bbox.Contains(to.Lat, to.Lon)) {
				bboxFiltered++
				continue
			}

			dist := geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon)
			weightMM := uint32(math.Round(dist * 1000))
			if weightMM == 0 {
				weightMM = 1 // avoid zero-weight edges
			}

			if w.Forward {
				edges = append(edges, graph.RawEdge{From: int64(fromID), To: int64(toID), Weight: weightMM})
			}
			if w.Backward {
				edges = append(edges, graph.RawEdge{From: int64(toID), To: int64(fromID), Weight: weightMM})
			}
			used[fromID] = struct{}{}
			used[toID] = struct{}{}
		}
	}

	if skippedEdges > 0 {
		log.Warn("skipped edges with missing node coordinates", zap.Int("count", skippedEdges))
	}
	if bboxFiltered > 0 {
		log.Info("filtered edges outside bounding box", zap.Int("count", bboxFiltered))
	}

	nodes := make([]graph.RawNode, 0, len(used))
	for id := range used {
		c := coords[id]
		nodes = append(nodes, graph.RawNode{ID: int64(id), Lat: c.Lat, Lon: c.Lon})
	}
	return &ParseResult{Nodes: nodes, Edges: edges}
}
