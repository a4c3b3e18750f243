package reconcile

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/samber/lo"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/network"
)

// MergedSuffix is appended to the root identifier of a merged entity.
const MergedSuffix = "_merged"

// AreaPolicy decides where constituent areas come from.
type AreaPolicy int

const (
	// AreaTrust uses the inventory area and falls back to the geodetic
	// area of the outline when none was supplied.
	AreaTrust AreaPolicy = iota
	// AreaRecompute always uses the geodetic area of the outline.
	AreaRecompute
)

func (p AreaPolicy) String() string {
	if p == AreaRecompute {
		return "recompute"
	}
	return "trust"
}

// ParseAreaPolicy parses "trust" or "recompute".
func ParseAreaPolicy(s string) (AreaPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trust", "inventory":
		return AreaTrust, nil
	case "recompute", "geodetic":
		return AreaRecompute, nil
	default:
		return AreaTrust, errors.Newf("unknown area policy %q", s)
	}
}

// Options configures reconciliation.
type Options struct {
	AreaPolicy AreaPolicy
	// Border pads the merged domain by this many grid cells.
	Border int
}

// MergedEntity is the attribute record of a merged glacier paired with its
// drainage network.
type MergedEntity struct {
	ID       string               `yaml:"id"`
	Name     string               `yaml:"name"`
	Region   string               `yaml:"region"`
	Area     float64              `yaml:"area_km2"`
	Centroid orb.Point            `yaml:"centroid"`
	Terminus glacier.TerminusType `yaml:"-"`
	Members  []string             `yaml:"members"`
	Outline  orb.MultiPolygon     `yaml:"-"`
	Domain   orb.Bound            `yaml:"-"`
	Frame    glacier.Frame        `yaml:"-"`
	Network  *network.Network     `yaml:"-"`
}

// Merged reports whether any tributary was absorbed.
func (m MergedEntity) Merged() bool {
	return len(m.Members) > 1
}

// Reconcile derives the attributes of root merged with accepted. Areas
// are summed over every constituent whether or not its ice ever reaches
// the root. With no accepted tributaries the root's own record comes
// back unchanged. Inputs are not modified.
func Reconcile(root glacier.Glacier, accepted []glacier.Glacier, net *network.Network, opts Options) (MergedEntity, error) {
	if opts.Border < 0 {
		return MergedEntity{}, errors.Newf("negative domain border %d", opts.Border)
	}
	for _, g := range accepted {
		if !root.Frame.Compatible(g.Frame) {
			return MergedEntity{}, errors.Wrapf(glacier.ErrAttributeConflict, "glacier %s frame %q differs from root %s frame %q",
				g.ID(), g.Frame.CRS, root.ID(), root.Frame.CRS)
		}
	}
	if ids := lo.FindDuplicates(append([]string{root.ID()}, lo.Map(accepted, func(g glacier.Glacier, _ int) string { return g.ID() })...)); len(ids) > 0 {
		return MergedEntity{}, errors.Wrapf(glacier.ErrAttributeConflict, "glaciers %s appear more than once", strings.Join(ids, ", "))
	}

	all := append([]glacier.Glacier{root}, accepted...)
	outlines := lo.Map(all, func(g glacier.Glacier, _ int) orb.Polygon { return g.Outline.Polygon })
	outline, err := geometry.Dissolve(outlines)
	if err != nil {
		return MergedEntity{}, errors.Wrap(err, "dissolving outlines")
	}

	m := MergedEntity{
		ID:       root.ID(),
		Name:     root.Outline.Name,
		Region:   root.Outline.Region,
		Terminus: root.Outline.Terminus,
		Members:  lo.Map(all, func(g glacier.Glacier, _ int) string { return g.ID() }),
		Outline:  outline,
		Domain:   domain(all, opts.Border),
		Frame:    root.Frame,
		Network:  net,
	}

	if len(accepted) == 0 {
		m.Area = root.Outline.AuthoritativeArea(false)
		m.Centroid = root.Outline.Centroid
		if m.Centroid == (orb.Point{}) {
			if m.Centroid, err = geometry.UnionCentroid(outlines); err != nil {
				return MergedEntity{}, err
			}
		}
		return m, nil
	}

	recompute := opts.AreaPolicy == AreaRecompute
	m.ID = root.ID() + MergedSuffix
	m.Name = root.Outline.Name + " merged with " + strings.Join(m.Members[1:], ", ")
	m.Area = lo.SumBy(all, func(g glacier.Glacier) float64 { return g.Outline.AuthoritativeArea(recompute) })
	if m.Centroid, err = geometry.UnionCentroid(outlines); err != nil {
		return MergedEntity{}, err
	}
	return m, nil
}

// domain returns the bound of every projected shape padded by border
// cells of the coarsest grid.
func domain(all []glacier.Glacier, border int) orb.Bound {
	var b orb.Bound
	dx := 0.0
	for i, g := range all {
		gb := g.Shape.Bound()
		if i == 0 {
			b = gb
		} else {
			b = b.Union(gb)
		}
		dx = max(dx, g.Frame.Dx)
	}
	return b.Pad(float64(border) * dx)
}
