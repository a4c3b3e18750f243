package glacier_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/internal/glaciertest"
)

func line(pts ...float64) orb.LineString {
	ls := make(orb.LineString, 0, len(pts)/2)
	for i := 0; i+1 < len(pts); i += 2 {
		ls = append(ls, orb.Point{pts[i], pts[i+1]})
	}
	return ls
}

func TestCheckTree(t *testing.T) {
	main := line(0, 10, 0, 5, 0, 0)
	side := line(-5, 10, 0, 5)

	tests := []struct {
		name      string
		flowlines []glacier.Flowline
		want      error
	}{
		{
			name:      "single terminus",
			flowlines: []glacier.Flowline{{Points: main, FlowsTo: glacier.Terminus}},
		},
		{
			name: "tributary joins main",
			flowlines: []glacier.Flowline{
				{Points: side, FlowsTo: 1, FlowsToPoint: 1},
				{Points: main, FlowsTo: glacier.Terminus},
			},
		},
		{
			name:      "no flowlines",
			flowlines: nil,
			want:      glacier.ErrMalformedGeometry,
		},
		{
			name: "two termini",
			flowlines: []glacier.Flowline{
				{Points: main, FlowsTo: glacier.Terminus},
				{Points: side, FlowsTo: glacier.Terminus},
			},
			want: glacier.ErrMalformedGeometry,
		},
		{
			name: "no terminus",
			flowlines: []glacier.Flowline{
				{Points: main, FlowsTo: 1},
				{Points: side, FlowsTo: 0},
			},
			want: glacier.ErrCyclicTopology,
		},
		{
			name: "cycle beside the terminus",
			flowlines: []glacier.Flowline{
				{Points: main, FlowsTo: glacier.Terminus},
				{Points: side, FlowsTo: 2},
				{Points: side, FlowsTo: 1},
			},
			want: glacier.ErrCyclicTopology,
		},
		{
			name: "flows into itself",
			flowlines: []glacier.Flowline{
				{Points: main, FlowsTo: glacier.Terminus},
				{Points: side, FlowsTo: 1},
			},
			want: glacier.ErrCyclicTopology,
		},
		{
			name: "junction point out of range",
			flowlines: []glacier.Flowline{
				{Points: main, FlowsTo: glacier.Terminus},
				{Points: side, FlowsTo: 0, FlowsToPoint: 3},
			},
			want: glacier.ErrMalformedGeometry,
		},
		{
			name:      "terminus flowline with one point",
			flowlines: []glacier.Flowline{{Points: line(0, 0), FlowsTo: glacier.Terminus}},
			want:      glacier.ErrMalformedGeometry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := glacier.Glacier{Outline: glacier.Outline{ID: "G"}, Flowlines: tt.flowlines}
			err := g.CheckTree()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDownstreamLine(t *testing.T) {
	root := glaciertest.Root()

	got := root.DownstreamLine()
	assert.Equal(t, line(500, 900, 500, 700, 500, 500, 500, 300, 500, 100, 500, -500), got)

	root.Downstream = nil
	assert.Equal(t, root.Flowlines[0].Points, root.DownstreamLine())
}

func TestNearest(t *testing.T) {
	root := glaciertest.Root()

	ref := root.Nearest(orb.Point{520, 310})
	assert.Equal(t, glacier.SegmentRef{Glacier: glaciertest.RootID, Flowline: 0, Point: 3}, ref)

	// points on the downstream extension index past the glacierised part
	ref = root.Nearest(orb.Point{500, -450})
	assert.Equal(t, 5, ref.Point)
}

func TestFlowlineTruncate(t *testing.T) {
	fl := glacier.Flowline{
		Points:  line(0, 40, 0, 30, 0, 20, 0, 10, 0, 0),
		Widths:  []float64{1, 2, 3, 4, 5},
		Shapes:  []glacier.BedShape{glacier.BedParabolic, glacier.BedParabolic, glacier.BedRectangular, glacier.BedParabolic, glacier.BedParabolic},
		FlowsTo: glacier.Terminus,
	}

	cut := fl.Truncate(2, orb.Point{0, 15})
	assert.Equal(t, line(0, 40, 0, 30, 0, 20, 0, 15), cut.Points)
	assert.Equal(t, []float64{1, 2, 3, 3}, cut.Widths)
	assert.Equal(t, glacier.BedRectangular, cut.Shapes[3])
	assert.Len(t, fl.Points, 5, "input is not modified")

	cut = fl.Truncate(2, orb.Point{0, 20})
	assert.Len(t, cut.Points, 3, "end equal to the last kept point is not repeated")

	cut = fl.Truncate(10, orb.Point{0, 0})
	assert.Len(t, cut.Points, 5)
	assert.InDelta(t, 40.0, cut.Length(), 1e-9)
}

func TestClone(t *testing.T) {
	g := glaciertest.Tributary()
	c := g.Clone()
	c.Flowlines[0].Points[0] = orb.Point{-1, -1}
	c.Shape[0][0] = orb.Point{-1, -1}
	c.Downstream[0] = orb.Point{-1, -1}

	assert.Equal(t, orb.Point{2000, 1100}, g.Flowlines[0].Points[0])
	assert.Equal(t, orb.Point{1500, 200}, g.Shape[0][0])
	assert.Equal(t, orb.Point{2000, 300}, g.Downstream[0])
}

func TestGeodeticArea(t *testing.T) {
	// one degree square on the equator
	square := orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	assert.InDelta(t, 12363.7, glacier.GeodeticArea(square), 1)

	// orientation does not matter
	reversed := orb.Polygon{orb.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}}
	assert.InDelta(t, glacier.GeodeticArea(square), glacier.GeodeticArea(reversed), 1e-6)

	withHole := orb.Polygon{square[0], orb.Ring{{0.25, 0.25}, {0.75, 0.25}, {0.75, 0.75}, {0.25, 0.75}, {0.25, 0.25}}}
	assert.InDelta(t, 12363.7*0.75, glacier.GeodeticArea(withHole), 5)

	assert.Zero(t, glacier.GeodeticArea(nil))
}

func TestAuthoritativeArea(t *testing.T) {
	o := glaciertest.Root().Outline

	assert.Equal(t, 12.0, o.AuthoritativeArea(false))

	recomputed := o.AuthoritativeArea(true)
	assert.Greater(t, recomputed, 0.0)
	assert.NotEqual(t, 12.0, recomputed)

	o.Area = 0
	assert.Equal(t, recomputed, o.AuthoritativeArea(false), "missing inventory area falls back to the outline")
}

func TestParseTerminusType(t *testing.T) {
	tests := []struct {
		in   string
		want glacier.TerminusType
		err  bool
	}{
		{"0", glacier.TerminusLand, false},
		{"", glacier.TerminusLand, false},
		{"1", glacier.TerminusMarine, false},
		{"Marine-terminating", glacier.TerminusMarine, false},
		{"2", glacier.TerminusLake, false},
		{"lake", glacier.TerminusLake, false},
		{"9", glacier.TerminusLand, true},
	}
	for _, tt := range tests {
		got, err := glacier.ParseTerminusType(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "Lake-terminating", glacier.TerminusLake.String())
}

func TestParseBedShape(t *testing.T) {
	s, err := glacier.ParseBedShape("Rectangular")
	require.NoError(t, err)
	assert.Equal(t, glacier.BedRectangular, s)

	_, err = glacier.ParseBedShape("trapezoid")
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	grid := glacier.Grid{Origin: orb.Point{50, 50}, Dx: 100, Nx: 3, Ny: 2}

	_, err := glacier.NewMask(grid, make([]bool, 5))
	assert.True(t, errors.Is(err, glacier.ErrMalformedGeometry))

	m, err := glacier.NewMask(grid, []bool{true, false, true, false, true, true})
	require.NoError(t, err)
	assert.Equal(t, 4, m.Count())
	assert.Equal(t, []glacier.Cell{{I: 0, J: 0}, {I: 2, J: 0}, {I: 1, J: 1}, {I: 2, J: 1}}, m.List())
	assert.True(t, m.At(glacier.Cell{I: 2, J: 1}))
	assert.False(t, m.At(glacier.Cell{I: 1, J: 0}))
	assert.False(t, m.At(glacier.Cell{I: 3, J: 0}))

	c, ok := grid.Locate(orb.Point{240, 160})
	assert.True(t, ok)
	assert.Equal(t, glacier.Cell{I: 2, J: 1}, c)
	assert.Equal(t, orb.Point{250, 150}, grid.Center(c))

	_, ok = grid.Locate(orb.Point{-100, 0})
	assert.False(t, ok)
}

func TestRasterElevation(t *testing.T) {
	var r *glacier.Raster
	_, ok := r.Elevation(glacier.Cell{})
	assert.False(t, ok)

	r = &glacier.Raster{Grid: glacier.Grid{Dx: 1, Nx: 2, Ny: 1}, Z: []float64{10, 20}}
	z, ok := r.Elevation(glacier.Cell{I: 1})
	assert.True(t, ok)
	assert.Equal(t, 20.0, z)
}

func TestDiagnostic(t *testing.T) {
	err := errors.Wrapf(glacier.ErrDegenerateSegment, "segment too short")
	d := glacier.NewDiagnostic("G", 2, err)

	assert.Equal(t, glacier.KindDegenerateSegment, d.Kind)
	assert.Equal(t, "G[2]: DegenerateSegment: segment too short: degenerate segment", d.String())

	d = glacier.NewDiagnostic("G", -1, errors.New("boom"))
	assert.Equal(t, glacier.KindOther, d.Kind)
	assert.Equal(t, "G: Other: boom", d.String())
}
