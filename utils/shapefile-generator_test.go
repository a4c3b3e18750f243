package utils

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unzip(t *testing.T, data []byte, dir string) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.Name), content, 0o644))
	}
	return names
}

func attr(r *shp.Reader, row, field int) string {
	return strings.Trim(r.ReadAttribute(row, field), " \x00")
}

func TestGenerateShapefileZip(t *testing.T) {
	features := []LineFeature{
		{
			Line:      orb.LineString{{2000, 1100}, {2000, 700}, {2000, 300}, {1500, 300}},
			Glacier:   "RGI60-11.00200",
			FlowsTo:   "RGI60-11.00100/0",
			JoinPoint: 3,
			Ice:       3,
			Length:    1300,
			MeanWidth: 250.5,
			BedShape:  "parabolic",
		},
		{
			Line:     orb.LineString{{500, 900}, {500, 100}, {500, -500}},
			Glacier:  "RGI60-11.00100",
			Ice:      2,
			Length:   1400,
			BedShape: "rectangular",
		},
	}

	data, err := GenerateShapefileZip("merged", []byte("entities: []\n"), features)
	require.NoError(t, err)

	dir := t.TempDir()
	names := unzip(t, data, dir)
	assert.ElementsMatch(t, []string{"merged.yaml", "merged.shp", "merged.shx", "merged.dbf"}, names)

	report, err := os.ReadFile(filepath.Join(dir, "merged.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "entities: []\n", string(report))

	r, err := shp.Open(filepath.Join(dir, "merged.shp"))
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.Fields(), len(lineFields))
	var rows int
	for r.Next() {
		n, shape := r.Shape()
		line, ok := shape.(*shp.PolyLine)
		require.True(t, ok)
		assert.Equal(t, int32(len(features[n].Line)), line.NumPoints)

		assert.Equal(t, features[n].Glacier, attr(r, n, 0))
		assert.Equal(t, features[n].FlowsTo, attr(r, n, 2))
		join, err := strconv.Atoi(attr(r, n, 3))
		require.NoError(t, err)
		assert.Equal(t, features[n].JoinPoint, join)
		length, err := strconv.ParseFloat(attr(r, n, 5), 64)
		require.NoError(t, err)
		assert.InDelta(t, features[n].Length, length, 1e-3)
		assert.Equal(t, features[n].BedShape, attr(r, n, 7))
		rows++
	}
	assert.Equal(t, len(features), rows)
}

func TestGenerateShapefileZipNoFeatures(t *testing.T) {
	_, err := GenerateShapefileZip("empty", nil, nil)
	assert.Error(t, err)
}
