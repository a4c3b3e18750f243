package intersects_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/internal/glaciertest"
	"github.com/bsaid97/go-glacier-merger/intersects"
	"github.com/bsaid97/go-glacier-merger/network"
	"github.com/bsaid97/go-glacier-merger/utils"
)

var quiet = log.New(io.Discard)

func scenarioTable(t *testing.T) (*intersects.Table, []glacier.Glacier) {
	t.Helper()
	root, candidates := glaciertest.Scenario()
	all := append([]glacier.Glacier{root}, candidates...)

	table, diags, err := intersects.Compute(context.Background(), all, geometry.Intersector{Cells: 1}, utils.NewParallelProcessor(2, quiet))
	require.NoError(t, err)
	require.Empty(t, diags)
	return table, all
}

func TestCompute(t *testing.T) {
	table, _ := scenarioTable(t)

	assert.Equal(t, 1.0, table.Cells)
	assert.Equal(t, glaciertest.CRS, table.CRS)
	assert.NotEmpty(t, table.Lookup(glaciertest.RootID, glaciertest.TributaryID))
	assert.Equal(t, table.Lookup(glaciertest.RootID, glaciertest.TributaryID), table.Lookup(glaciertest.TributaryID, glaciertest.RootID))
	assert.NotEmpty(t, table.Lookup(glaciertest.TributaryID, glaciertest.SecondID))
	assert.Empty(t, table.Lookup(glaciertest.RootID, glaciertest.FarID))

	border := table.Lookup(glaciertest.BorderID, glaciertest.RootID)
	require.Len(t, border, 1)
	assert.Equal(t, geometry.KindBoundary, border[0].Kind)
}

func TestComputeErrors(t *testing.T) {
	_, _, err := intersects.Compute(context.Background(), nil, geometry.Intersector{Cells: 1}, nil)
	assert.True(t, errors.Is(err, glacier.ErrEmptyInput))

	other := glaciertest.Tributary()
	other.Frame.CRS = "EPSG:4326"
	_, _, err = intersects.Compute(context.Background(), []glacier.Glacier{glaciertest.Root(), other}, geometry.Intersector{Cells: 1}, nil)
	assert.True(t, errors.Is(err, glacier.ErrAttributeConflict))
}

func TestTableDetectMatchesIntersector(t *testing.T) {
	table, all := scenarioTable(t)
	live := geometry.Intersector{Cells: 1}

	for i, a := range all {
		for _, b := range all[i+1:] {
			want, err := live.Detect(a, b)
			require.NoError(t, err)
			got, err := table.Detect(b, a)
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s/%s", a.ID(), b.ID())
		}
	}
}

func TestTableDetectDropsConsumedContacts(t *testing.T) {
	table, _ := scenarioTable(t)

	// without its downstream line A no longer reaches X
	trib := glaciertest.Tributary()
	trib.Downstream = nil
	records, err := table.Detect(glaciertest.Root(), trib)
	require.NoError(t, err)
	assert.Empty(t, records)

	other := glaciertest.Tributary()
	other.Frame.CRS = "EPSG:4326"
	_, err = table.Detect(glaciertest.Root(), other)
	assert.True(t, errors.Is(err, glacier.ErrAttributeConflict))
}

func TestBuildFromTable(t *testing.T) {
	table, _ := scenarioTable(t)
	root, candidates := glaciertest.Scenario()

	live, err := network.Builder{Detector: geometry.Intersector{Cells: 1}, Logger: quiet}.Build(root, candidates)
	require.NoError(t, err)
	stored, err := network.Builder{Detector: table, Logger: quiet}.Build(root, candidates)
	require.NoError(t, err)

	assert.Equal(t, live.AcceptedIDs(), stored.AcceptedIDs())
	assert.Equal(t, live.Rejected, stored.Rejected)
	assert.Equal(t, live.Attachments, stored.Attachments)
	assert.Equal(t, live.Network.Edges(), stored.Network.Edges())
}

func TestEncodeDecode(t *testing.T) {
	table, _ := scenarioTable(t)

	var buf bytes.Buffer
	require.NoError(t, intersects.Encode(&buf, table))

	decoded, err := intersects.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, table.Cells, decoded.Cells)
	assert.Equal(t, table.CRS, decoded.CRS)
	require.Equal(t, table.Len(), decoded.Len())

	for i, want := range table.Records() {
		got := decoded.Records()[i]
		assert.Equal(t, want.Glaciers, got.Glaciers)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Points, got.Points)
		assert.Equal(t, want.Segments, got.Segments)
		assert.NotNil(t, got.Geometry)
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := intersects.Decode([]byte("not a flatgeobuf"))
	assert.Error(t, err)
}

func TestWriteRead(t *testing.T) {
	ctx := context.Background()
	table, _ := scenarioTable(t)
	fs := afs.New()
	URL := filepath.Join(t.TempDir(), "intersects_1cell.fgb")

	require.NoError(t, intersects.Write(ctx, fs, URL, table, quiet))

	read, err := intersects.Read(ctx, fs, URL, 1, quiet)
	require.NoError(t, err)
	assert.Equal(t, table.Len(), read.Len())

	_, err = intersects.Read(ctx, fs, URL, 2, quiet)
	assert.True(t, errors.Is(err, glacier.ErrAttributeConflict))
}
