package inventory_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/internal/glaciertest"
	"github.com/bsaid97/go-glacier-merger/inventory"
)

var quiet = log.New(io.Discard)

const document = `{
  "outline": {
    "type": "Feature",
    "geometry": {"type": "Polygon", "coordinates": [[[10, 46], [10.01, 46], [10.01, 46.01], [10, 46.01], [10, 46]]]},
    "properties": {"RGIId": "RGI60-11.00897", "Name": "Hintereisferner", "O1Region": 11, "Area": 8.036,
                   "CenLon": 10.7584, "CenLat": 46.8003, "TermType": 0}
  },
  "frame": {"crs": "EPSG:32632", "dx": 50},
  "shape": {"type": "Polygon", "coordinates": [[[0, 0], [100, 0], [100, 100], [0, 100], [0, 0]]]},
  "flowlines": [
    {"points": [[20, 80], [20, 50]], "widths": [30, 40], "shapes": ["parabolic", "rectangular"], "flows_to": 1, "flows_to_point": 1},
    {"points": [[50, 90], [50, 50], [50, 10]], "flows_to": -1}
  ],
  "downstream": [[50, 10], [50, -100]],
  "mask": {"origin": [25, 25], "nx": 2, "ny": 2, "cells": [1, 1, 0, 1]},
  "surface": [3000, 2990, 2980, 2970]
}`

func TestDecode(t *testing.T) {
	g, dom, err := inventory.Decode([]byte(document))
	require.NoError(t, err)

	assert.Equal(t, "RGI60-11.00897", g.ID())
	assert.Equal(t, "Hintereisferner", g.Outline.Name)
	assert.Equal(t, "11", g.Outline.Region)
	assert.Equal(t, 8.036, g.Outline.Area)
	assert.Equal(t, orb.Point{10.7584, 46.8003}, g.Outline.Centroid)
	assert.Equal(t, glacier.TerminusLand, g.Outline.Terminus)
	assert.Equal(t, glacier.Frame{CRS: "EPSG:32632", Dx: 50}, g.Frame)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}, g.Shape.Bound())

	require.Len(t, g.Flowlines, 2)
	assert.Equal(t, []glacier.BedShape{glacier.BedParabolic, glacier.BedRectangular}, g.Flowlines[0].Shapes)
	assert.Equal(t, 1, g.Flowlines[0].FlowsTo)
	assert.Equal(t, 1, g.Flowlines[0].FlowsToPoint)
	assert.True(t, g.Flowlines[1].IsTerminus())
	assert.Equal(t, orb.LineString{{50, 10}, {50, -100}}, g.Downstream)
	require.NoError(t, g.CheckTree())

	require.NotNil(t, dom)
	assert.Equal(t, 3, dom.Mask.Count())
	assert.False(t, dom.Mask.At(glacier.Cell{I: 0, J: 1}))
	require.NotNil(t, dom.Surface)
	z, ok := dom.Surface.Elevation(glacier.Cell{I: 1, J: 1})
	assert.True(t, ok)
	assert.Equal(t, 2970.0, z)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"no outline", `{"frame": {"dx": 50}}`},
		{"no identifier", `{"outline": {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]}, "properties": {}}}`},
		{"point outline", `{"outline": {"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]}, "properties": {"RGIId": "x"}}, "frame": {"dx": 50}}`},
		{"no resolution", `{"outline": {"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 0]]]}, "properties": {"RGIId": "x"}}, "frame": {"dx": 0}}`},
		{"no shape", `{"outline": {"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 0]]]}, "properties": {"RGIId": "x"}}, "frame": {"dx": 50}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := inventory.Decode([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDecodeBadMask(t *testing.T) {
	g := glaciertest.Root()
	data, err := inventory.Encode(g, &glacier.Domain{Mask: glaciertest.Mask(orb.Point{50, 50}, 2, 2)})
	require.NoError(t, err)

	doc := string(data)
	broken := []byte(doc[:len(doc)-1] + `,"surface":[1,2,3]}`)
	_, _, err = inventory.Decode(broken)
	assert.True(t, errors.Is(err, glacier.ErrMalformedGeometry))
}

func TestEncodeDecode(t *testing.T) {
	g := glaciertest.Tributary()
	g.Outline.Centroid = orb.Point{10.02, 46.007}
	g.Outline.Terminus = glacier.TerminusLake
	g.Flowlines[0].Widths = []float64{100, 150, 200}
	g.Flowlines[0].Shapes = []glacier.BedShape{glacier.BedParabolic, glacier.BedParabolic, glacier.BedRectangular}
	mask := glaciertest.Mask(orb.Point{1550, 250}, 10, 10)
	surface := &glacier.Raster{Grid: mask.Grid, Z: make([]float64, 100)}

	data, err := inventory.Encode(g, &glacier.Domain{Mask: mask, Surface: surface})
	require.NoError(t, err)

	decoded, dom, err := inventory.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, g, decoded)
	require.NotNil(t, dom)
	assert.Equal(t, mask, dom.Mask)
	assert.Equal(t, surface, dom.Surface)
}

func writeGlacier(t *testing.T, dir, name string, g glacier.Glacier) {
	t.Helper()
	data, err := inventory.Encode(g, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	root, candidates := glaciertest.Scenario()
	writeGlacier(t, dir, "x.json", root)
	for _, g := range candidates {
		writeGlacier(t, dir, g.ID()+".json", g)
	}
	writeGlacier(t, dir, "x-copy.json", root)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	loader := inventory.NewLoader(nil, 2, quiet)
	inv, diags, err := loader.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, inv.Glaciers, 5)
	got, ok := inv.Get(glaciertest.SecondID)
	require.True(t, ok)
	assert.Equal(t, glaciertest.Second(), got)
	_, ok = inv.Get("RGI60-11.99999")
	assert.False(t, ok)
	assert.Empty(t, inv.Domains)

	require.Len(t, diags, 2)
	kinds := []glacier.Kind{diags[0].Kind, diags[1].Kind}
	assert.Contains(t, kinds, glacier.KindAttributeConflict)
}

func TestLoadDirEmpty(t *testing.T) {
	loader := inventory.NewLoader(nil, 1, quiet)
	_, _, err := loader.LoadDir(context.Background(), t.TempDir())
	assert.True(t, errors.Is(err, glacier.ErrEmptyInput))
}
