package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"

	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/utils"
)

// Inventory is a loaded set of glaciers with their derived rasters.
type Inventory struct {
	Glaciers []glacier.Glacier
	Domains  glacier.Domains
}

// Get returns the glacier with identifier id.
func (inv Inventory) Get(id string) (glacier.Glacier, bool) {
	for _, g := range inv.Glaciers {
		if g.ID() == id {
			return g, true
		}
	}
	return glacier.Glacier{}, false
}

// Loader reads glacier directories from any afs-supported location.
type Loader struct {
	fs        afs.Service
	processor *utils.ParallelProcessor
	logger    *log.Logger
}

// NewLoader creates a loader. A nil fs uses afs.New().
func NewLoader(fs afs.Service, workers int, logger *log.Logger) *Loader {
	if fs == nil {
		fs = afs.New()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{fs: fs, processor: utils.NewParallelProcessor(workers, logger), logger: logger}
}

// Load reads a single glacier directory file.
func (l *Loader) Load(ctx context.Context, URL string) (glacier.Glacier, *glacier.Domain, error) {
	data, err := l.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return glacier.Glacier{}, nil, errors.Wrapf(err, "downloading %s", URL)
	}
	g, dom, err := Decode(data)
	if err != nil {
		return glacier.Glacier{}, nil, errors.Wrapf(err, "decoding %s", URL)
	}
	return g, dom, nil
}

type loaded struct {
	glacier glacier.Glacier
	domain  *glacier.Domain
	url     string
	err     error
}

// LoadDir reads every .json file under URL in parallel. Files that fail to
// load are reported as diagnostics and skipped.
func (l *Loader) LoadDir(ctx context.Context, URL string) (Inventory, []glacier.Diagnostic, error) {
	var urls []string
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		if strings.HasSuffix(strings.ToLower(info.Name()), ".json") {
			dir := baseURL
			if parent != "" {
				dir = url.Join(baseURL, parent)
			}
			urls = append(urls, url.Join(dir, info.Name()))
		}
		return true, nil
	}
	if err := l.fs.Walk(ctx, URL, visitor); err != nil {
		return Inventory{}, nil, errors.Wrapf(err, "listing %s", URL)
	}
	sort.Strings(urls)
	if len(urls) == 0 {
		return Inventory{}, nil, errors.Wrapf(glacier.ErrEmptyInput, "no glacier directories under %s", URL)
	}

	results, err := utils.ProcessBatch(ctx, l.processor, urls, func(ctx context.Context, u string) loaded {
		g, dom, err := l.Load(ctx, u)
		return loaded{glacier: g, domain: dom, url: u, err: err}
	}, "loading glacier directories")
	if err != nil {
		return Inventory{}, nil, err
	}

	inv := Inventory{Domains: glacier.Domains{}}
	var diags []glacier.Diagnostic
	seen := make(map[string]string)
	for _, r := range results {
		if r.err != nil {
			l.logger.Warn("skipping glacier directory", "url", r.url, "error", r.err)
			diags = append(diags, glacier.NewDiagnostic(r.url, -1, r.err))
			continue
		}
		id := r.glacier.ID()
		if prev, dup := seen[id]; dup {
			err := errors.Wrapf(glacier.ErrAttributeConflict, "glacier %s defined in %s and %s", id, prev, r.url)
			diags = append(diags, glacier.NewDiagnostic(id, -1, err))
			continue
		}
		seen[id] = r.url
		inv.Glaciers = append(inv.Glaciers, r.glacier)
		if r.domain != nil {
			inv.Domains[id] = *r.domain
		}
	}
	l.logger.Info("loaded inventory", "url", URL, "glaciers", len(inv.Glaciers), "skipped", len(diags))
	return inv, diags, nil
}

type directoryFile struct {
	Outline    *geojson.Feature  `json:"outline"`
	Frame      frameJSON         `json:"frame"`
	Shape      *geojson.Geometry `json:"shape"`
	Flowlines  []flowlineJSON    `json:"flowlines"`
	Downstream orb.LineString    `json:"downstream,omitempty"`
	Mask       *maskJSON         `json:"mask,omitempty"`
	Surface    []float64         `json:"surface,omitempty"`
}

type frameJSON struct {
	CRS string  `json:"crs"`
	Dx  float64 `json:"dx"`
}

type flowlineJSON struct {
	Points       orb.LineString `json:"points"`
	Widths       []float64      `json:"widths,omitempty"`
	Shapes       []string       `json:"shapes,omitempty"`
	FlowsTo      int            `json:"flows_to"`
	FlowsToPoint int            `json:"flows_to_point"`
}

type maskJSON struct {
	Origin orb.Point `json:"origin"`
	Nx     int       `json:"nx"`
	Ny     int       `json:"ny"`
	Cells  []int     `json:"cells"`
}

// Decode parses one glacier directory document. The outline is a GeoJSON
// Feature carrying RGI attributes; the shape, flowlines and mask are in
// the frame's projected coordinates.
func Decode(data []byte) (glacier.Glacier, *glacier.Domain, error) {
	var doc directoryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return glacier.Glacier{}, nil, errors.Wrap(err, "parsing glacier directory")
	}
	if doc.Outline == nil {
		return glacier.Glacier{}, nil, errors.Wrap(glacier.ErrMalformedGeometry, "missing outline")
	}

	outline, err := decodeOutline(doc.Outline)
	if err != nil {
		return glacier.Glacier{}, nil, err
	}
	if doc.Frame.Dx <= 0 {
		return glacier.Glacier{}, nil, errors.Wrapf(glacier.ErrMalformedGeometry, "glacier %s: grid resolution %g", outline.ID, doc.Frame.Dx)
	}

	g := glacier.Glacier{
		Outline:    outline,
		Frame:      glacier.Frame{CRS: doc.Frame.CRS, Dx: doc.Frame.Dx},
		Downstream: doc.Downstream,
	}
	if doc.Shape == nil {
		return glacier.Glacier{}, nil, errors.Wrapf(glacier.ErrMalformedGeometry, "glacier %s: missing projected shape", outline.ID)
	}
	if g.Shape, err = polygon(doc.Shape.Geometry()); err != nil {
		return glacier.Glacier{}, nil, errors.Wrapf(err, "glacier %s shape", outline.ID)
	}

	for i, fl := range doc.Flowlines {
		line := glacier.Flowline{
			Points:       fl.Points,
			Widths:       fl.Widths,
			FlowsTo:      fl.FlowsTo,
			FlowsToPoint: fl.FlowsToPoint,
		}
		for _, s := range fl.Shapes {
			shape, err := glacier.ParseBedShape(s)
			if err != nil {
				return glacier.Glacier{}, nil, errors.Wrapf(err, "glacier %s flowline %d", outline.ID, i)
			}
			line.Shapes = append(line.Shapes, shape)
		}
		g.Flowlines = append(g.Flowlines, line)
	}

	if doc.Mask == nil {
		return g, nil, nil
	}
	grid := glacier.Grid{Origin: doc.Mask.Origin, Dx: g.Frame.Dx, Nx: doc.Mask.Nx, Ny: doc.Mask.Ny}
	cells := make([]bool, len(doc.Mask.Cells))
	for i, c := range doc.Mask.Cells {
		cells[i] = c != 0
	}
	mask, err := glacier.NewMask(grid, cells)
	if err != nil {
		return glacier.Glacier{}, nil, errors.Wrapf(err, "glacier %s", outline.ID)
	}
	dom := &glacier.Domain{Mask: mask}
	if len(doc.Surface) > 0 {
		if len(doc.Surface) != grid.Nx*grid.Ny {
			return glacier.Glacier{}, nil, errors.Wrapf(glacier.ErrMalformedGeometry, "glacier %s: surface has %d values, want %d",
				outline.ID, len(doc.Surface), grid.Nx*grid.Ny)
		}
		dom.Surface = &glacier.Raster{Grid: grid, Z: doc.Surface}
	}
	return g, dom, nil
}

func decodeOutline(f *geojson.Feature) (glacier.Outline, error) {
	o := glacier.Outline{
		ID:     firstString(f.Properties, "RGIId", "rgi_id", "id"),
		Name:   firstString(f.Properties, "Name", "name"),
		Region: firstString(f.Properties, "O1Region", "o1region", "region"),
		Area:   f.Properties.MustFloat64("Area", 0),
	}
	if o.ID == "" {
		if id, ok := f.ID.(string); ok {
			o.ID = id
		}
	}
	if o.ID == "" {
		return glacier.Outline{}, errors.Wrap(glacier.ErrMalformedGeometry, "outline has no identifier")
	}
	lon, lat := f.Properties.MustFloat64("CenLon", 0), f.Properties.MustFloat64("CenLat", 0)
	o.Centroid = orb.Point{lon, lat}

	term, err := glacier.ParseTerminusType(firstString(f.Properties, "TermType", "term_type"))
	if err != nil {
		return glacier.Outline{}, errors.Wrapf(err, "glacier %s", o.ID)
	}
	o.Terminus = term

	if o.Polygon, err = polygon(f.Geometry); err != nil {
		return glacier.Outline{}, errors.Wrapf(err, "glacier %s outline", o.ID)
	}
	return o, nil
}

// firstString returns the first present property among keys, formatting
// numbers the way RGI codes are written.
func firstString(props geojson.Properties, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%g", v)
		}
	}
	return ""
}

func polygon(g orb.Geometry) (orb.Polygon, error) {
	switch p := g.(type) {
	case orb.Polygon:
		return p, nil
	case orb.MultiPolygon:
		if len(p) == 1 {
			return p[0], nil
		}
		return nil, errors.Wrapf(glacier.ErrMalformedGeometry, "multipolygon with %d parts", len(p))
	case nil:
		return nil, errors.Wrap(glacier.ErrMalformedGeometry, "missing geometry")
	default:
		return nil, errors.Wrapf(glacier.ErrMalformedGeometry, "unexpected geometry %s", g.GeoJSONType())
	}
}

// Encode writes g and its optional domain as a glacier directory document
// that Decode reads back.
func Encode(g glacier.Glacier, dom *glacier.Domain) ([]byte, error) {
	outline := geojson.NewFeature(g.Outline.Polygon)
	outline.Properties["RGIId"] = g.Outline.ID
	outline.Properties["Name"] = g.Outline.Name
	outline.Properties["O1Region"] = g.Outline.Region
	outline.Properties["Area"] = g.Outline.Area
	outline.Properties["CenLon"] = g.Outline.Centroid[0]
	outline.Properties["CenLat"] = g.Outline.Centroid[1]
	outline.Properties["TermType"] = int(g.Outline.Terminus)

	doc := directoryFile{
		Outline:    outline,
		Frame:      frameJSON{CRS: g.Frame.CRS, Dx: g.Frame.Dx},
		Shape:      geojson.NewGeometry(g.Shape),
		Downstream: g.Downstream,
	}
	for _, fl := range g.Flowlines {
		out := flowlineJSON{
			Points:       fl.Points,
			Widths:       fl.Widths,
			FlowsTo:      fl.FlowsTo,
			FlowsToPoint: fl.FlowsToPoint,
		}
		for _, s := range fl.Shapes {
			out.Shapes = append(out.Shapes, s.String())
		}
		doc.Flowlines = append(doc.Flowlines, out)
	}
	if dom != nil {
		m := dom.Mask
		doc.Mask = &maskJSON{Origin: m.Origin, Nx: m.Nx, Ny: m.Ny, Cells: make([]int, len(m.Cells))}
		for i, c := range m.Cells {
			if c {
				doc.Mask.Cells[i] = 1
			}
		}
		if dom.Surface != nil {
			doc.Surface = dom.Surface.Z
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding glacier %s", g.ID())
	}
	return data, nil
}
