package intersects

import (
	"context"
	"math"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/samber/lo"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/utils"
)

// Table holds precomputed pairwise intersections for one candidate set.
// Given the same tolerance it answers Detect like a live Intersector.
type Table struct {
	Cells   float64
	CRS     string
	records []geometry.Record
	byPair  map[[2]string][]geometry.Record
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// NewTable indexes records computed with a tolerance of cells grid cells.
func NewTable(cells float64, crs string, records []geometry.Record) *Table {
	t := &Table{Cells: cells, CRS: crs, byPair: make(map[[2]string][]geometry.Record)}
	for _, r := range records {
		k := pairKey(r.Glaciers[0], r.Glaciers[1])
		t.byPair[k] = append(t.byPair[k], r)
	}
	keys := make([][2]string, 0, len(t.byPair))
	for k, rs := range t.byPair {
		geometry.SortRecords(rs)
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		t.records = append(t.records, t.byPair[k]...)
	}
	return t
}

// Records returns every record ordered by pair.
func (t *Table) Records() []geometry.Record {
	return append([]geometry.Record(nil), t.records...)
}

// Len is the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// Lookup returns the stored records of a pair in either order.
func (t *Table) Lookup(a, b string) []geometry.Record {
	return append([]geometry.Record(nil), t.byPair[pairKey(a, b)]...)
}

// Tolerance returns the contact distance the table was computed with for
// the pair.
func (t *Table) Tolerance(a, b glacier.Glacier) float64 {
	return geometry.Intersector{Cells: t.Cells}.Tolerance(a, b)
}

// Detect answers from the table. Flow contacts are kept only while they
// still touch the given glaciers' downstream lines, so a tributary whose
// continuation was consumed by an attachment no longer connects through
// it.
func (t *Table) Detect(a, b glacier.Glacier) ([]geometry.Record, error) {
	if a.ID() == b.ID() {
		return nil, nil
	}
	for _, g := range []glacier.Glacier{a, b} {
		if g.Frame.CRS != t.CRS {
			return nil, errors.Wrapf(glacier.ErrAttributeConflict, "glacier %s frame %q, intersects table %q", g.ID(), g.Frame.CRS, t.CRS)
		}
	}
	if a.ID() > b.ID() {
		a, b = b, a
	}
	tol := t.Tolerance(a, b)
	la, lb := a.DownstreamLine(), b.DownstreamLine()
	slack := tol * (1 + 1e-9)

	var out []geometry.Record
	for _, r := range t.byPair[pairKey(a.ID(), b.ID())] {
		if r.Kind == geometry.KindBoundary {
			out = append(out, geometry.NewRecord(a, b, r.Kind, r.Geometry, r.Points))
			continue
		}
		var kept []orb.Point
		for _, p := range r.Points {
			onA := len(la) > 0 && geometry.Distance(la, p) <= slack
			onB := len(lb) > 0 && geometry.Distance(lb, p) <= slack
			switch {
			case onA && onB,
				onB && geometry.WithinDistance(a.Shape, p, slack),
				onA && geometry.WithinDistance(b.Shape, p, slack):
				kept = append(kept, p)
			}
		}
		if len(kept) == len(r.Points) {
			out = append(out, geometry.NewRecord(a, b, r.Kind, r.Geometry, kept))
		} else if len(kept) > 0 {
			out = append(out, geometry.NewRecord(a, b, r.Kind, nil, kept))
		}
	}
	geometry.SortRecords(out)
	return out, nil
}

type pair struct {
	a, b glacier.Glacier
}

type pairResult struct {
	records []geometry.Record
	diag    *glacier.Diagnostic
}

// Compute detects intersections between every pair of glaciers whose
// bounds come within tolerance of each other. Pairs are evaluated in
// parallel; a pair that fails is reported as a diagnostic.
func Compute(ctx context.Context, glaciers []glacier.Glacier, x geometry.Intersector, pp *utils.ParallelProcessor) (*Table, []glacier.Diagnostic, error) {
	if len(glaciers) == 0 {
		return nil, nil, errors.Wrap(glacier.ErrEmptyInput, "no glaciers to intersect")
	}
	if pp == nil {
		pp = utils.NewParallelProcessor(0, nil)
	}
	crs := glaciers[0].Frame.CRS
	maxDx, span := 0.0, 0.0
	bounds := make([]orb.Bound, len(glaciers))
	for i, g := range glaciers {
		if g.Frame.CRS != crs {
			return nil, nil, errors.Wrapf(glacier.ErrAttributeConflict, "glacier %s frame %q differs from %q", g.ID(), g.Frame.CRS, crs)
		}
		bounds[i] = extent(g)
		maxDx = math.Max(maxDx, g.Frame.Dx)
		span = math.Max(span, math.Max(bounds[i].Max[0]-bounds[i].Min[0], bounds[i].Max[1]-bounds[i].Min[1]))
	}
	tol := x.Cells * maxDx

	cell := span
	if cell <= 0 {
		cell = math.Max(tol, 1)
	}
	index := utils.NewSpatialIndex(cell)
	for i, g := range glaciers {
		index.AddGeometry(bounds[i], i, g.ID())
	}

	var pairs []pair
	for i := range glaciers {
		for _, n := range index.FindNeighbors(bounds[i], i, tol) {
			if n.Index > i {
				pairs = append(pairs, pair{a: glaciers[i], b: glaciers[n.Index]})
			}
		}
	}
	pp.Logger.Info("computing intersects", "glaciers", len(glaciers), "pairs", len(pairs), "tolerance", tol)

	results, err := utils.ProcessBatch(ctx, pp, pairs, func(_ context.Context, p pair) pairResult {
		records, err := x.Detect(p.a, p.b)
		if err != nil {
			d := glacier.NewDiagnostic(p.a.ID(), -1, errors.Wrapf(err, "intersecting with %s", p.b.ID()))
			return pairResult{diag: &d}
		}
		return pairResult{records: records}
	}, "intersecting glacier pairs")
	if err != nil {
		return nil, nil, err
	}

	var records []geometry.Record
	var diags []glacier.Diagnostic
	for _, r := range results {
		if r.diag != nil {
			pp.Logger.Warn("skipping glacier pair", "diagnostic", r.diag.String())
			diags = append(diags, *r.diag)
			continue
		}
		records = append(records, r.records...)
	}
	for _, g := range glaciers {
		if !lo.ContainsBy(records, func(r geometry.Record) bool { return r.Involves(g.ID()) }) {
			pp.Logger.Debug("glacier intersects no other glacier", "glacier", g.ID())
		}
	}
	return NewTable(x.Cells, crs, records), diags, nil
}

func extent(g glacier.Glacier) orb.Bound {
	b := g.Shape.Bound()
	if line := g.DownstreamLine(); len(line) > 0 {
		b = b.Union(line.Bound())
	}
	return b
}

// logger is used by Read and Write when the caller passes none.
func logger(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
