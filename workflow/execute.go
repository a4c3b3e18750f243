package workflow

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/bsaid97/go-glacier-merger/geometry"
	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/utils"
)

// Task is a unit of per-glacier work.
type Task func(ctx context.Context, g glacier.Glacier) error

// Execute runs task on every glacier in parallel. A failing glacier never
// stops its siblings: each failure becomes a diagnostic and the returned
// error joins all of them.
func (e *Engine) Execute(ctx context.Context, glaciers []glacier.Glacier, task Task) ([]glacier.Diagnostic, error) {
	errs, err := utils.ProcessBatch(ctx, e.processor, glaciers, func(ctx context.Context, g glacier.Glacier) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("task panicked: %v", r)
			}
		}()
		return task(ctx, g)
	}, "executing glacier tasks")
	if err != nil {
		return nil, err
	}

	var diags []glacier.Diagnostic
	var failed []error
	for i, taskErr := range errs {
		if taskErr == nil {
			continue
		}
		id := glaciers[i].ID()
		e.logger.Warn("glacier task failed", "glacier", id, "error", taskErr)
		diags = append(diags, glacier.NewDiagnostic(id, -1, taskErr))
		failed = append(failed, errors.Wrapf(taskErr, "glacier %s", id))
	}
	if len(failed) > 0 {
		return diags, errors.Join(failed...)
	}
	return diags, nil
}

// Validate checks the flowline tree and outlines of every glacier.
func (e *Engine) Validate(ctx context.Context, glaciers []glacier.Glacier) ([]glacier.Diagnostic, error) {
	return e.Execute(ctx, glaciers, func(_ context.Context, g glacier.Glacier) error {
		if err := g.CheckTree(); err != nil {
			return err
		}
		return geometry.ValidateOutline(g)
	})
}
