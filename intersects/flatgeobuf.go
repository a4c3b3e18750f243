package intersects

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/viant/afs"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/utils"
)

const (
	layerName        = "intersects"
	toleranceFormat  = "tolerance_cells=%g"
	coordinatePlaces = 6
	uploadMode       = 0o644
)

// Column layout of every feature.
const (
	colGlacierA = iota
	colGlacierB
	colKind
	colPoints
	colFlowlineA
	colPointA
	colFlowlineB
	colPointB
)

var columns = []struct {
	name string
	typ  flattypes.ColumnType
}{
	colGlacierA:  {"glacier_a", flattypes.ColumnTypeString},
	colGlacierB:  {"glacier_b", flattypes.ColumnTypeString},
	colKind:      {"kind", flattypes.ColumnTypeString},
	colPoints:    {"points", flattypes.ColumnTypeJson},
	colFlowlineA: {"flowline_a", flattypes.ColumnTypeInt},
	colPointA:    {"point_a", flattypes.ColumnTypeInt},
	colFlowlineB: {"flowline_b", flattypes.ColumnTypeInt},
	colPointB:    {"point_b", flattypes.ColumnTypeInt},
}

// Write encodes t as FlatGeobuf and uploads it to URL.
func Write(ctx context.Context, fs afs.Service, URL string, t *Table, l *log.Logger) error {
	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return err
	}
	if err := fs.Upload(ctx, URL, uploadMode, &buf); err != nil {
		return errors.Wrapf(err, "uploading intersects to %s", URL)
	}
	logger(l).Info("wrote intersects", "url", URL, "records", t.Len(), "tolerance_cells", t.Cells)
	return nil
}

// Read downloads a FlatGeobuf intersects file and checks that it was
// computed with a tolerance of cells grid cells.
func Read(ctx context.Context, fs afs.Service, URL string, cells float64, l *log.Logger) (*Table, error) {
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, errors.Wrapf(err, "downloading intersects from %s", URL)
	}
	t, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", URL)
	}
	if math.Abs(t.Cells-cells) > 1e-9*math.Max(1, math.Abs(cells)) {
		return nil, errors.Wrapf(glacier.ErrAttributeConflict, "%s was computed with tolerance %g cells, configured %g", URL, t.Cells, cells)
	}
	logger(l).Info("read intersects", "url", URL, "records", t.Len())
	return t, nil
}

// Encode writes t as a FlatGeobuf layer. The tolerance and CRS go into
// the header; the spatial index is written whenever there are features.
func Encode(w io.Writer, t *Table) error {
	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(flattypes.GeometryTypeUnknown)
	header.SetName(layerName)
	header.SetDescription(fmt.Sprintf(toleranceFormat, t.Cells))

	cols := make([]*writer.Column, 0, len(columns))
	for _, c := range columns {
		col := writer.NewColumn(builder)
		col.SetName(c.name)
		col.SetTitle(c.name)
		col.SetType(c.typ)
		col.SetNullable(false)
		cols = append(cols, col)
	}
	header.SetColumns(cols)

	if t.CRS != "" {
		crs := writer.NewCrs(builder)
		crs.SetName(t.CRS)
		header.SetCrs(crs)
	}

	gen := &recordGenerator{records: t.records}
	fgb := writer.NewWriter(header, len(t.records) > 0, gen, nil)
	if _, err := fgb.Write(w); err != nil {
		return errors.Wrap(err, "writing flatgeobuf")
	}
	return gen.err
}

// Decode parses a FlatGeobuf intersects layer.
func Decode(data []byte) (*Table, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, errors.Wrap(err, "opening flatgeobuf")
	}
	h := fgb.Header()
	if h == nil {
		return nil, errors.New("flatgeobuf has no header")
	}

	var cells float64
	if _, err := fmt.Sscanf(string(h.Description()), toleranceFormat, &cells); err != nil {
		return nil, errors.Wrapf(glacier.ErrAttributeConflict, "intersects header carries no tolerance: %q", h.Description())
	}
	var crs string
	var c flattypes.Crs
	if h.Crs(&c) != nil {
		crs = string(c.Name())
	}
	if err := checkColumns(h); err != nil {
		return nil, err
	}

	if h.FeaturesCount() == 0 {
		return NewTable(cells, crs, nil), nil
	}
	if h.IndexNodeSize() == 0 {
		return nil, errors.New("intersects file has features but no spatial index")
	}
	features, err := fgb.Search(-math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return nil, errors.Wrap(err, "reading features")
	}

	records := make([]geometry.Record, 0, len(features))
	for i, f := range features {
		r, err := decodeRecord(f)
		if err != nil {
			return nil, errors.Wrapf(err, "feature %d", i)
		}
		records = append(records, r)
	}
	return NewTable(cells, crs, records), nil
}

func checkColumns(h *flattypes.Header) error {
	if h.ColumnsLength() != len(columns) {
		return errors.Newf("intersects file has %d columns, want %d", h.ColumnsLength(), len(columns))
	}
	for i, want := range columns {
		var col flattypes.Column
		if !h.Columns(&col, i) || string(col.Name()) != want.name || col.Type() != want.typ {
			return errors.Newf("intersects column %d is not %s", i, want.name)
		}
	}
	return nil
}

type recordGenerator struct {
	records []geometry.Record
	index   int
	err     error
}

func (g *recordGenerator) Generate() *writer.Feature {
	for g.index < len(g.records) {
		r := g.records[g.index]
		g.index++

		builder := flatbuffers.NewBuilder(1024)
		geom := utils.TruncateGeometry(r.Geometry, coordinatePlaces)
		fgbGeom := geometryToFGB(geom, builder)
		if fgbGeom == nil {
			g.err = errors.Newf("record %s/%s: unsupported geometry %T", r.Glaciers[0], r.Glaciers[1], r.Geometry)
			continue
		}
		props, err := encodeRecord(r)
		if err != nil {
			g.err = err
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(fgbGeom)
		feature.SetProperties(props)
		return feature
	}
	return nil
}

func encodeRecord(r geometry.Record) ([]byte, error) {
	pts, err := json.Marshal(r.Points)
	if err != nil {
		return nil, errors.Wrap(err, "encoding contact points")
	}
	var buf bytes.Buffer
	putString(&buf, colGlacierA, r.Glaciers[0])
	putString(&buf, colGlacierB, r.Glaciers[1])
	putString(&buf, colKind, r.Kind.String())
	putString(&buf, colPoints, string(pts))
	putInt(&buf, colFlowlineA, r.Segments[0].Flowline)
	putInt(&buf, colPointA, r.Segments[0].Point)
	putInt(&buf, colFlowlineB, r.Segments[1].Flowline)
	putInt(&buf, colPointB, r.Segments[1].Point)
	return buf.Bytes(), nil
}

func putColumn(buf *bytes.Buffer, col int) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(col))
	buf.Write(b[:])
}

// putString writes a string or json value: uint32 length then bytes.
func putString(buf *bytes.Buffer, col int, s string) {
	putColumn(buf, col)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}

func putInt(buf *bytes.Buffer, col int, v int) {
	putColumn(buf, col)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(int32(v)))
	buf.Write(b[:])
}

func decodeRecord(f *flattypes.Feature) (geometry.Record, error) {
	var r geometry.Record
	var g flattypes.Geometry
	if f.Geometry(&g) == nil {
		return r, errors.New("feature has no geometry")
	}
	r.Geometry = geometryFromFGB(&g)

	n := f.PropertiesLength()
	data := make([]byte, n)
	for i := 0; i < n; i++ {
		data[i] = f.Properties(i)
	}

	var kind, pts string
	ints := make(map[int]int)
	for off := 0; off < len(data); {
		if off+2 > len(data) {
			return r, errors.New("truncated property index")
		}
		col := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if col >= len(columns) {
			return r, errors.Newf("unknown column %d", col)
		}
		switch columns[col].typ {
		case flattypes.ColumnTypeString, flattypes.ColumnTypeJson:
			if off+4 > len(data) {
				return r, errors.New("truncated string length")
			}
			l := int(binary.LittleEndian.Uint32(data[off:]))
			off += 4
			if off+l > len(data) {
				return r, errors.New("truncated string")
			}
			s := string(data[off : off+l])
			off += l
			switch col {
			case colGlacierA:
				r.Glaciers[0] = s
			case colGlacierB:
				r.Glaciers[1] = s
			case colKind:
				kind = s
			case colPoints:
				pts = s
			}
		case flattypes.ColumnTypeInt:
			if off+4 > len(data) {
				return r, errors.New("truncated int")
			}
			ints[col] = int(int32(binary.LittleEndian.Uint32(data[off:])))
			off += 4
		}
	}

	k, err := geometry.ParseKind(kind)
	if err != nil {
		return r, err
	}
	r.Kind = k
	if pts != "" {
		if err := json.Unmarshal([]byte(pts), &r.Points); err != nil {
			return r, errors.Wrap(err, "decoding contact points")
		}
	}
	r.Segments = [2]glacier.SegmentRef{
		{Glacier: r.Glaciers[0], Flowline: ints[colFlowlineA], Point: ints[colPointA]},
		{Glacier: r.Glaciers[1], Flowline: ints[colFlowlineB], Point: ints[colPointB]},
	}
	if r.Glaciers[0] == "" || r.Glaciers[1] == "" {
		return r, errors.New("record without glacier identifiers")
	}
	return r, nil
}

func xyOf(pts []orb.Point) []float64 {
	xy := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

func xyEnds(parts [][]orb.Point) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, len(parts))
	n := uint32(0)
	for _, part := range parts {
		xy = append(xy, xyOf(part)...)
		n += uint32(len(part))
		ends = append(ends, n)
	}
	return xy, ends
}

func ringsOf(p orb.Polygon) [][]orb.Point {
	out := make([][]orb.Point, len(p))
	for i, r := range p {
		out[i] = r
	}
	return out
}

func geometryToFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)
	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})
	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(xyOf(v))
	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(xyOf(v))
	case orb.MultiLineString:
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := xyEnds(parts)
		g.SetType(flattypes.GeometryTypeMultiLineString)
		g.SetXY(xy)
		g.SetEnds(ends)
	case orb.Polygon:
		xy, ends := xyEnds(ringsOf(v))
		g.SetType(flattypes.GeometryTypePolygon)
		g.SetXY(xy)
		g.SetEnds(ends)
	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			if pg := geometryToFGB(poly, builder); pg != nil {
				parts = append(parts, *pg)
			}
		}
		g.SetParts(parts)
	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			if cg := geometryToFGB(child, builder); cg != nil {
				parts = append(parts, *cg)
			}
		}
		g.SetParts(parts)
	default:
		return nil
	}
	return g
}

func pointsOf(g *flattypes.Geometry, from, to int) []orb.Point {
	pts := make([]orb.Point, 0, to-from)
	for i := from; i < to; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

func splitEnds(g *flattypes.Geometry) [][]orb.Point {
	total := g.XyLength() / 2
	if g.EndsLength() == 0 {
		return [][]orb.Point{pointsOf(g, 0, total)}
	}
	var parts [][]orb.Point
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		if end > total {
			end = total
		}
		parts = append(parts, pointsOf(g, start, end))
		start = end
	}
	return parts
}

func geometryFromFGB(g *flattypes.Geometry) orb.Geometry {
	switch g.Type() {
	case flattypes.GeometryTypePoint:
		if g.XyLength() < 2 {
			return nil
		}
		return orb.Point{g.Xy(0), g.Xy(1)}
	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(pointsOf(g, 0, g.XyLength()/2))
	case flattypes.GeometryTypeLineString:
		return orb.LineString(pointsOf(g, 0, g.XyLength()/2))
	case flattypes.GeometryTypeMultiLineString:
		parts := splitEnds(g)
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = p
		}
		return mls
	case flattypes.GeometryTypePolygon:
		parts := splitEnds(g)
		poly := make(orb.Polygon, len(parts))
		for i, p := range parts {
			poly[i] = p
		}
		return poly
	case flattypes.GeometryTypeMultiPolygon:
		mp := make(orb.MultiPolygon, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if poly, ok := geometryFromFGB(&part).(orb.Polygon); ok {
					mp = append(mp, poly)
				}
			}
		}
		return mp
	case flattypes.GeometryTypeGeometryCollection:
		coll := make(orb.Collection, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if child := geometryFromFGB(&part); child != nil {
					coll = append(coll, child)
				}
			}
		}
		return coll
	default:
		return nil
	}
}
