package workflow_test

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bsaid97/go-glacier-merger/config"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/internal/glaciertest"
	"github.com/bsaid97/go-glacier-merger/network"
	"github.com/bsaid97/go-glacier-merger/workflow"
)

func testConfig() config.Config {
	return config.Config{
		Tolerance:      1,
		Border:         2,
		AreaPolicy:     "trust",
		Workers:        2,
		BedShape:       "parabolic",
		RoutingPenalty: 1,
		LogLevel:       "info",
	}
}

func engine() *workflow.Engine {
	return workflow.NewEngine(testConfig(), nil, log.New(io.Discard))
}

func scenarioRequest(primary string) workflow.Request {
	root, candidates := glaciertest.Scenario()
	return workflow.Request{Main: root, Candidates: candidates, Primary: primary}
}

func TestMergeExplicitPrimary(t *testing.T) {
	res, err := engine().Merge(context.Background(), scenarioRequest(glaciertest.RootID))
	require.NoError(t, err)

	single, ok := res.(workflow.Single)
	require.True(t, ok)
	m := single.Merge
	assert.Equal(t, glaciertest.RootID+"_merged", m.Entity.ID)
	assert.Equal(t, []string{glaciertest.RootID, glaciertest.TributaryID, glaciertest.SecondID}, m.Entity.Members)
	assert.InDelta(t, 16.5, m.Entity.Area, 1e-9)
	assert.Len(t, m.Attachments, 2)
	assert.Len(t, m.Rejected, 2)
	assert.Empty(t, m.Diagnostics)

	net := m.Entity.Network
	require.NotNil(t, net)
	assert.Equal(t, 3, net.Len())
	for _, n := range net.Nodes() {
		assert.Len(t, n.Line.Shapes, len(n.Line.Points), n.ID.String())
		// every node touches a junction
		assert.Equal(t, glacier.BedRectangular, n.Line.Shapes[0], n.ID.String())
	}
}

func TestMergeWithDomains(t *testing.T) {
	req := scenarioRequest(glaciertest.RootID)
	req.Domains = glacier.Domains{
		glaciertest.RootID:      {Mask: glaciertest.Mask(orb.Point{50, 50}, 10, 10)},
		glaciertest.TributaryID: {Mask: glaciertest.Mask(orb.Point{1550, 250}, 10, 10)},
	}

	res, err := engine().Merge(context.Background(), req)
	require.NoError(t, err)

	net := res.All()[0].Entity.Network
	n, ok := net.Node(network.NodeID{Glacier: glaciertest.RootID})
	require.True(t, ok)
	require.Len(t, n.Line.Widths, 6)
	// 100 cells of 100 m spread over 800 m of ice
	for _, w := range n.Line.Widths[:5] {
		assert.InDelta(t, 1250.0, w, 1e-9)
	}
	assert.Zero(t, n.Line.Widths[5])
}

func TestMergeDropsWidthlessNodes(t *testing.T) {
	req := scenarioRequest(glaciertest.RootID)
	second := glaciertest.Second()
	second.Flowlines[0].Widths = nil
	req.Candidates = []glacier.Glacier{glaciertest.Tributary(), second}

	res, err := engine().Merge(context.Background(), req)
	require.NoError(t, err)

	m := res.All()[0]
	net := m.Entity.Network
	require.NotNil(t, net)
	assert.Equal(t, 2, net.Len())
	assert.False(t, net.Contains(glaciertest.SecondID))
	for _, n := range net.Nodes() {
		assert.NotZero(t, n.Line.Widths[0], n.ID.String())
	}

	require.Len(t, m.Diagnostics, 1)
	assert.Equal(t, glaciertest.SecondID, m.Diagnostics[0].Glacier)
	assert.Equal(t, glacier.KindDegenerateSegment, m.Diagnostics[0].Kind)
}

func TestMergeAutomaticPrimaries(t *testing.T) {
	req := scenarioRequest("")
	broken := glaciertest.New("RGI60-11.00900", glaciertest.Square(5000, 5000, 6000, 6000), nil, nil, 100)
	broken.Flowlines = nil
	req.Candidates = append(req.Candidates, broken)

	res, err := engine().Merge(context.Background(), req)
	require.NoError(t, err)

	coll, ok := res.(workflow.Collection)
	require.True(t, ok)

	var ids []string
	seen := map[string]int{}
	for _, m := range coll.Merges {
		ids = append(ids, m.Entity.ID)
		for _, member := range m.Entity.Members {
			seen[member]++
		}
	}
	assert.Equal(t, []string{glaciertest.RootID + "_merged", glaciertest.FarID, glaciertest.BorderID}, ids)
	for _, id := range []string{glaciertest.RootID, glaciertest.TributaryID, glaciertest.BorderID, glaciertest.SecondID, glaciertest.FarID} {
		assert.Equal(t, 1, seen[id], id)
	}

	require.Len(t, coll.Diagnostics, 1)
	assert.Equal(t, "RGI60-11.00900", coll.Diagnostics[0].Glacier)
	assert.Equal(t, glacier.KindMalformedGeometry, coll.Diagnostics[0].Kind)

	far := coll.Merges[1].Entity
	assert.False(t, far.Merged())
	assert.Equal(t, glaciertest.Far().Outline.Name, far.Name)
	assert.Equal(t, 4.0, far.Area)
}

func TestMergeErrors(t *testing.T) {
	_, err := engine().Merge(context.Background(), scenarioRequest("RGI60-11.99999"))
	assert.True(t, errors.Is(err, glacier.ErrEmptyInput))

	req := scenarioRequest(glaciertest.RootID)
	req.Candidates = append(req.Candidates, glaciertest.Tributary())
	_, err = engine().Merge(context.Background(), req)
	assert.True(t, errors.Is(err, glacier.ErrAttributeConflict))

	req = scenarioRequest("")
	req.Candidates[0].Frame.CRS = "EPSG:4326"
	_, err = engine().Merge(context.Background(), req)
	assert.True(t, errors.Is(err, glacier.ErrAttributeConflict))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine().Merge(ctx, scenarioRequest(""))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute(t *testing.T) {
	root, candidates := glaciertest.Scenario()
	glaciers := append([]glacier.Glacier{root}, candidates...)

	var visited = make(chan string, len(glaciers))
	diags, err := engine().Execute(context.Background(), glaciers, func(_ context.Context, g glacier.Glacier) error {
		visited <- g.ID()
		switch g.ID() {
		case glaciertest.BorderID:
			return errors.Wrap(glacier.ErrDegenerateSegment, "too short")
		case glaciertest.FarID:
			panic("boom")
		}
		return nil
	})
	close(visited)

	require.Error(t, err)
	assert.True(t, errors.Is(err, glacier.ErrDegenerateSegment))
	assert.Len(t, visited, len(glaciers))

	require.Len(t, diags, 2)
	assert.Equal(t, glaciertest.BorderID, diags[0].Glacier)
	assert.Equal(t, glacier.KindDegenerateSegment, diags[0].Kind)
	assert.Equal(t, glaciertest.FarID, diags[1].Glacier)
	assert.Contains(t, diags[1].Message, "boom")
}

func TestValidate(t *testing.T) {
	root, candidates := glaciertest.Scenario()
	diags, err := engine().Validate(context.Background(), append([]glacier.Glacier{root}, candidates...))
	require.NoError(t, err)
	assert.Empty(t, diags)

	diags, err = engine().Validate(context.Background(), []glacier.Glacier{root, glaciertest.Cyclic("RGI60-11.00700")})
	require.Error(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, glacier.KindCyclicTopology, diags[0].Kind)
}

func TestReport(t *testing.T) {
	res, err := engine().Merge(context.Background(), scenarioRequest(glaciertest.RootID))
	require.NoError(t, err)

	r := workflow.NewReport(res)
	require.Len(t, r.Entities, 1)
	e := r.Entities[0]
	assert.Equal(t, glaciertest.RootID+"_merged", e.ID)
	assert.Equal(t, "Land-terminating", e.Terminus)
	// shapes padded by two cells
	assert.Equal(t, [4]float64{-200, -200, 3000, 2700}, e.Domain)

	require.Len(t, e.Nodes, 3)
	assert.Equal(t, glaciertest.SecondID, e.Nodes[0].ID.Glacier)
	require.NotNil(t, e.Nodes[0].FlowsTo)
	assert.Equal(t, glaciertest.TributaryID, e.Nodes[0].FlowsTo.Glacier)
	assert.Equal(t, 1, e.Nodes[0].Point)
	assert.Equal(t, 2, e.Nodes[0].Ice)
	assert.Nil(t, e.Nodes[2].FlowsTo)
	assert.Equal(t, 5, e.Nodes[2].Ice)
	assert.InDelta(t, 1400.0, e.Nodes[2].Length, 1e-9)
	assert.Equal(t, e.Nodes[2].Points, e.Nodes[2].Rectangular)
	assert.Equal(t, []int{0, 1, 1}, lo.Map(e.Nodes, func(n workflow.NodeReport, _ int) int { return n.Tributaries }))

	data, err := r.YAML()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "entities")
	assert.Contains(t, string(data), "area_km2: 16.5")
}

func TestLineFeaturesAndOutlines(t *testing.T) {
	res, err := engine().Merge(context.Background(), scenarioRequest(glaciertest.RootID))
	require.NoError(t, err)

	features := workflow.LineFeatures(res)
	require.Len(t, features, 3)
	assert.Equal(t, glaciertest.SecondID, features[0].Glacier)
	assert.Equal(t, glaciertest.TributaryID+"/0", features[0].FlowsTo)
	assert.Equal(t, "rectangular", features[0].BedShape)
	assert.Empty(t, features[2].FlowsTo)

	fc := workflow.Outlines(res)
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, glaciertest.RootID+"_merged", f.Properties["RGIId"])
	assert.Equal(t, 16.5, f.Properties["Area"])
	assert.Equal(t, "MultiPolygon", f.Geometry.GeoJSONType())
}
