package workflow

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
	"github.com/samber/lo"

	"github.com/bsaid97/go-glacier-merger/catchment"
	"github.com/bsaid97/go-glacier-merger/config"
	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/network"
	"github.com/bsaid97/go-glacier-merger/reconcile"
	"github.com/bsaid97/go-glacier-merger/utils"
)

// Merge is one merged entity with the bookkeeping of how it was built.
type Merge struct {
	Entity      reconcile.MergedEntity
	Attachments []network.Attachment
	Rejected    []network.Rejection
	Diagnostics []glacier.Diagnostic
}

// Result is either a Single merge around an explicit primary glacier or a
// Collection produced by automatic primary selection.
type Result interface {
	All() []Merge
	result()
}

// Single is the result of a merge with an explicit primary.
type Single struct {
	Merge Merge
}

func (s Single) All() []Merge { return []Merge{s.Merge} }
func (Single) result()        {}

// Collection is the result of automatic primary selection: every input
// glacier ends up in exactly one merge.
type Collection struct {
	Merges []Merge
	// Diagnostics lists glaciers dropped because they could not act as a
	// primary themselves.
	Diagnostics []glacier.Diagnostic
}

func (c Collection) All() []Merge { return c.Merges }
func (Collection) result()        {}

// Request names the glaciers of one merge run.
type Request struct {
	Main       glacier.Glacier
	Candidates []glacier.Glacier
	// Primary is the id of the glacier to merge into. Empty selects
	// primaries automatically, largest area first.
	Primary string
	Domains glacier.Domains
}

// Engine runs merges with one configuration.
type Engine struct {
	cfg       config.Config
	detector  geometry.Detector
	processor *utils.ParallelProcessor
	logger    *log.Logger
}

// NewEngine creates an engine. A nil detector computes intersections
// live with the configured tolerance.
func NewEngine(cfg config.Config, detector geometry.Detector, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	if detector == nil {
		detector = geometry.Intersector{Cells: cfg.Tolerance}
	}
	return &Engine{
		cfg:       cfg,
		detector:  detector,
		processor: utils.NewParallelProcessor(cfg.Workers, logger),
		logger:    logger,
	}
}

// Merge merges the request's glaciers. Geometry and topology problems of
// single candidates end up in the rejections and diagnostics of the
// result; only a frame conflict, an unknown primary or an invalid
// explicit primary fail the call.
func (e *Engine) Merge(ctx context.Context, req Request) (Result, error) {
	pool := append([]glacier.Glacier{req.Main}, req.Candidates...)
	if dups := lo.FindDuplicates(lo.Map(pool, func(g glacier.Glacier, _ int) string { return g.ID() })); len(dups) > 0 {
		return nil, errors.Wrapf(glacier.ErrAttributeConflict, "glaciers %v given more than once", dups)
	}

	if req.Primary != "" {
		root, ok := lo.Find(pool, func(g glacier.Glacier) bool { return g.ID() == req.Primary })
		if !ok {
			return nil, errors.Wrapf(glacier.ErrEmptyInput, "primary %s is not among the inputs", req.Primary)
		}
		others := lo.Filter(pool, func(g glacier.Glacier, _ int) bool { return g.ID() != req.Primary })
		m, err := e.mergeOne(ctx, root, others, req.Domains)
		if err != nil {
			return nil, err
		}
		return Single{Merge: m}, nil
	}

	var out Collection
	recompute := e.cfg.Area() == reconcile.AreaRecompute
	for len(pool) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sort.SliceStable(pool, func(i, j int) bool {
			ai, aj := pool[i].Outline.AuthoritativeArea(recompute), pool[j].Outline.AuthoritativeArea(recompute)
			if ai != aj {
				return ai > aj
			}
			return pool[i].ID() < pool[j].ID()
		})
		root, rest := pool[0], pool[1:]

		m, err := e.mergeOne(ctx, root, rest, req.Domains)
		if errors.Is(err, glacier.ErrAttributeConflict) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if err != nil {
			e.logger.Warn("dropping glacier that cannot be a primary", "glacier", root.ID(), "error", err)
			out.Diagnostics = append(out.Diagnostics, glacier.NewDiagnostic(root.ID(), -1, err))
			pool = rest
			continue
		}
		out.Merges = append(out.Merges, m)

		used := lo.SliceToMap(m.Entity.Members, func(id string) (string, bool) { return id, true })
		pool = lo.Filter(rest, func(g glacier.Glacier, _ int) bool { return !used[g.ID()] })
	}
	return out, nil
}

func (e *Engine) mergeOne(ctx context.Context, root glacier.Glacier, candidates []glacier.Glacier, domains glacier.Domains) (Merge, error) {
	builder := network.Builder{Detector: e.detector, Logger: e.logger}
	build, err := builder.Build(root, candidates)
	if err != nil {
		return Merge{}, err
	}

	net, diags, err := e.correct(ctx, build, domains)
	if err != nil {
		return Merge{}, err
	}

	entity, err := reconcile.Reconcile(root, build.Accepted, net, e.cfg.Reconcile())
	if err != nil {
		return Merge{}, err
	}
	e.logger.Info("merged glacier", "id", entity.ID, "members", len(entity.Members),
		"area_km2", entity.Area, "rejected", len(build.Rejected), "diagnostics", len(diags))

	return Merge{
		Entity:      entity,
		Attachments: build.Attachments,
		Rejected:    build.Rejected,
		Diagnostics: diags,
	}, nil
}

type correctJob struct {
	glacier string
	nodes   []network.Node
	dx      float64
	domain  *glacier.Domain
}

type correctResult struct {
	profiles   map[network.NodeID]catchment.Profile
	degenerate []network.NodeID
	diags      []glacier.Diagnostic
}

// correct partitions each member's mask over its nodes, rescales widths
// and drops degenerate segments from the network.
func (e *Engine) correct(ctx context.Context, build network.Build, domains glacier.Domains) (*network.Network, []glacier.Diagnostic, error) {
	net := build.Network
	junctions := build.Junctions()
	frames := map[string]glacier.Frame{build.Root.ID(): build.Root.Frame}
	for _, g := range build.Accepted {
		frames[g.ID()] = g.Frame
	}

	byGlacier := lo.GroupBy(net.Nodes(), func(n network.Node) string { return n.ID.Glacier })
	jobs := make([]correctJob, 0, len(byGlacier))
	for _, id := range net.Glaciers() {
		job := correctJob{glacier: id, nodes: byGlacier[id], dx: frames[id].Dx}
		if d, ok := domains[id]; ok {
			job.domain = &d
		}
		jobs = append(jobs, job)
	}

	policy := func(dx float64) catchment.Policy {
		return catchment.Policy{DefaultShape: e.cfg.DefaultBedShape(), Tolerance: e.cfg.Tolerance * dx}
	}
	partitioner := catchment.Partitioner{Penalty: e.cfg.RoutingPenalty}

	results, err := utils.ProcessBatch(ctx, e.processor, jobs, func(_ context.Context, job correctJob) correctResult {
		return correctGlacier(job, partitioner, junctions, policy(job.dx), e.logger)
	}, "correcting catchments")
	if err != nil {
		return nil, nil, err
	}

	profiles := make(map[network.NodeID]catchment.Profile)
	var degenerate []network.NodeID
	var diags []glacier.Diagnostic
	for _, r := range results {
		for id, p := range r.profiles {
			profiles[id] = p
		}
		degenerate = append(degenerate, r.degenerate...)
		diags = append(diags, r.diags...)
	}

	degenerate = lo.Filter(degenerate, func(id network.NodeID, _ int) bool { return id != net.Root() })
	if len(degenerate) > 0 {
		if net, err = net.Without(degenerate...); err != nil {
			return nil, nil, err
		}
	}
	net, err = net.Map(func(n network.Node) glacier.Flowline {
		if p, ok := profiles[n.ID]; ok {
			return p.Apply(n.Line)
		}
		return n.Line
	})
	if err != nil {
		return nil, nil, err
	}
	return net, diags, nil
}

func correctGlacier(job correctJob, partitioner catchment.Partitioner, junctions []orb.Point, policy catchment.Policy, logger *log.Logger) correctResult {
	res := correctResult{profiles: make(map[network.NodeID]catchment.Profile)}
	segs := lo.Map(job.nodes, func(n network.Node, _ int) catchment.Segment {
		return catchment.Segment{Line: n.Line, Ice: n.Ice}
	})
	degenerate := func(i int, err error) {
		res.degenerate = append(res.degenerate, job.nodes[i].ID)
		res.diags = append(res.diags, glacier.NewDiagnostic(job.glacier, job.nodes[i].ID.Flowline, err))
	}

	if job.domain != nil {
		assignment, err := partitioner.Partition(job.domain.Mask, segs, job.domain.Surface)
		if err == nil {
			profiles, bad := catchment.CorrectWidths(assignment, segs, junctions, policy)
			for _, p := range profiles {
				res.profiles[job.nodes[p.Segment].ID] = p
			}
			for _, d := range bad {
				degenerate(d.Segment, d.Err)
			}
			return res
		}
		logger.Warn("catchment partition failed, keeping supplied widths", "glacier", job.glacier, "error", err)
		res.diags = append(res.diags, glacier.NewDiagnostic(job.glacier, -1, err))
	}

	for i, seg := range segs {
		p, err := catchment.ProfileLine(i, seg, junctions, policy)
		if err != nil {
			degenerate(i, err)
			continue
		}
		res.profiles[job.nodes[i].ID] = p
	}
	return res
}
