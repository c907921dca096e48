package osm

import (
	"slices"
	"testing"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/azybler/route_finder/pkg/graph"
)

func TestIsCarAccessible(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{
			name: "residential road",
			tags: osm.Tags{{Key: "highway", Value: "residential"}},
			want: true,
		},
		{
			name: "motorway",
			tags: osm.Tags{{Key: "highway", Value: "motorway"}},
			want: true,
		},
		{
			name: "footway (not car accessible)",
			tags: osm.Tags{{Key: "highway", Value: "footway"}},
			want: false,
		},
		{
			name: "cycleway",
			tags: osm.Tags{{Key: "highway", Value: "cycleway"}},
			want: false,
		},
		{
			name: "private access",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "private"},
			},
			want: false,
		},
		{
			name: "no access",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "no"},
			},
			want: false,
		},
		{
			name: "motor_vehicle=no",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "motor_vehicle", Value: "no"},
			},
			want: false,
		},
		{
			name: "area=yes (pedestrian plaza)",
			tags: osm.Tags{
				{Key: "highway", Value: "service"},
				{Key: "area", Value: "yes"},
			},
			want: false,
		},
		{
			name: "service road",
			tags: osm.Tags{{Key: "highway", Value: "service"}},
			want: true,
		},
		{
			name: "living_street",
			tags: osm.Tags{{Key: "highway", Value: "living_street"}},
			want: true,
		},
		{
			name: "no highway tag",
			tags: osm.Tags{{Key: "name", Value: "Some Street"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isCarAccessible(tt.tags)
			if got != tt.want {
				t.Errorf("isCarAccessible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDirectionFlags(t *testing.T) {
	tags := func(kv ...string) osm.Tags {
		var out osm.Tags
		for i := 0; i < len(kv); i += 2 {
			out = append(out, osm.Tag{Key: kv[i], Value: kv[i+1]})
		}
		return out
	}

	tests := []struct {
		name         string
		tags         osm.Tags
		wantForward  bool
		wantBackward bool
	}{
		{"default bidirectional", tags("highway", "residential"), true, true},
		{"motorway implied oneway", tags("highway", "motorway"), true, false},
		{"motorway_link implied oneway", tags("highway", "motorway_link"), true, false},
		{"roundabout implied oneway", tags("highway", "residential", "junction", "roundabout"), true, false},
		{"explicit oneway=yes", tags("highway", "primary", "oneway", "yes"), true, false},
		{"explicit oneway=true", tags("highway", "primary", "oneway", "true"), true, false},
		{"explicit oneway=1", tags("highway", "primary", "oneway", "1"), true, false},
		{"explicit oneway=-1 (reverse)", tags("highway", "primary", "oneway", "-1"), false, true},
		{"explicit oneway=reverse", tags("highway", "primary", "oneway", "reverse"), false, true},
		{"explicit oneway=no overrides implied", tags("highway", "motorway", "oneway", "no"), true, true},
		{"oneway=reversible skips entirely", tags("highway", "primary", "oneway", "reversible"), false, false},
		{"footway honours oneway", tags("highway", "footway", "oneway", "yes"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd, bwd := directionFlags(tt.tags)
			if fwd != tt.wantForward || bwd != tt.wantBackward {
				t.Errorf("directionFlags() = (%v, %v), want (%v, %v)", fwd, bwd, tt.wantForward, tt.wantBackward)
			}
		})
	}
}

func TestIsPublicWay(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{"footway", osm.Tags{{Key: "highway", Value: "footway"}}, true},
		{"path", osm.Tags{{Key: "highway", Value: "path"}}, true},
		{"residential", osm.Tags{{Key: "highway", Value: "residential"}}, true},
		{"construction", osm.Tags{{Key: "highway", Value: "construction"}}, false},
		{"proposed", osm.Tags{{Key: "highway", Value: "proposed"}}, false},
		{"private footway", osm.Tags{{Key: "highway", Value: "footway"}, {Key: "access", Value: "private"}}, false},
		{"pedestrian area", osm.Tags{{Key: "highway", Value: "pedestrian"}, {Key: "area", Value: "yes"}}, false},
		{"no highway tag", osm.Tags{{Key: "railway", Value: "rail"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPublicWay(tt.tags); got != tt.want {
				t.Errorf("isPublicWay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNetworkAccepts(t *testing.T) {
	footway := osm.Tags{{Key: "highway", Value: "footway"}}
	primary := osm.Tags{{Key: "highway", Value: "primary"}}

	if !NetworkAll.accepts(footway) || !NetworkAll.accepts(primary) {
		t.Error("all network should accept footways and primary roads")
	}
	if NetworkDrive.accepts(footway) || !NetworkDrive.accepts(primary) {
		t.Error("drive network should accept primary roads only")
	}
}

func TestParseNetwork(t *testing.T) {
	for _, s := range []string{"all", "drive"} {
		if n, err := ParseNetwork(s); err != nil || string(n) != s {
			t.Errorf("ParseNetwork(%q) = %q, %v", s, n, err)
		}
	}
	if _, err := ParseNetwork("bike"); err == nil {
		t.Error("ParseNetwork(bike) should fail")
	}
}

func TestBuildEdges(t *testing.T) {
	coords := map[osm.NodeID]latLon{
		1: {1.3000, 103.8000},
		2: {1.3000, 103.8010},
		3: {1.3010, 103.8010},
		4: {1.3010, 103.8010}, // same point as 3
		9: {5.0000, 100.0000}, // outside bbox
	}
	ways := []wayInfo{
		{NodeIDs: []osm.NodeID{1, 2, 3}, Forward: true, Backward: true},
		{NodeIDs: []osm.NodeID{3, 4}, Forward: true},
		{NodeIDs: []osm.NodeID{2, 7}, Forward: true, Backward: true}, // 7 has no coordinates
		{NodeIDs: []osm.NodeID{3, 9}, Forward: true},
	}
	bbox := BBox{MinLat: 1, MaxLat: 2, MinLng: 103, MaxLng: 104}

	res := buildEdges(ways, coords, bbox, zap.NewNop())

	if len(res.Edges) != 5 {
		t.Fatalf("edges = %d, want 5: %+v", len(res.Edges), res.Edges)
	}
	for _, e := range res.Edges {
		if e.Weight == 0 {
			t.Errorf("edge %d->%d has zero weight", e.From, e.To)
		}
	}
	// 1->2 is about 111 m.
	if w := res.Edges[0].Weight; w < 110_000 || w > 112_000 {
		t.Errorf("1->2 weight = %d mm, want ~111 m", w)
	}
	// Coincident nodes still get a positive weight.
	if e := res.Edges[4]; e.From != 3 || e.To != 4 || e.Weight != 1 {
		t.Errorf("3->4 edge = %+v, want weight 1", e)
	}

	ids := make([]int64, len(res.Nodes))
	for i, n := range res.Nodes {
		ids[i] = n.ID
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []int64{1, 2, 3, 4}) {
		t.Errorf("node ids = %v, want [1 2 3 4]", ids)
	}

	g, err := graph.Build(res.Nodes, res.Edges)
	if err != nil {
		t.Fatalf("graph.Build: %v", err)
	}
	if g.NumNodes != 4 || g.NumEdges != 5 {
		t.Errorf("graph = %d nodes %d edges, want 4 and 5", g.NumNodes, g.NumEdges)
	}
}
