package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

const (
	defaultReconcileWindow = 15 * time.Minute
	defaultReconcileLimit  = 500
)

type updatedCartLister interface {
	ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)
}

type viewRefresher interface {
	Refresh(ctx context.Context, cartID uuid.UUID) error
}

type ProjectionReconcileJobParams struct {
	Logger    *logger.Logger
	Lister    updatedCartLister
	Projector viewRefresher
	Window    time.Duration
	Limit     int
}

// NewProjectionReconcileJob rebuilds the realtime view of recently updated
// carts, repairing views whose post-commit refresh failed.
func NewProjectionReconcileJob(params ProjectionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lister == nil {
		return nil, fmt.Errorf("updated cart lister required")
	}
	if params.Projector == nil {
		return nil, fmt.Errorf("projector required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultReconcileWindow
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &projectionReconcileJob{
		logg:      params.Logger,
		lister:    params.Lister,
		projector: params.Projector,
		window:    window,
		limit:     limit,
		now:       time.Now,
	}, nil
}

type projectionReconcileJob struct {
	logg      *logger.Logger
	lister    updatedCartLister
	projector viewRefresher
	window    time.Duration
	limit     int
	now       func() time.Time
}

func (j *projectionReconcileJob) Name() string { return "teamcart-projection-reconcile" }

func (j *projectionReconcileJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.window)
	ids, err := j.lister.ListUpdatedSince(ctx, since, j.limit)
	if err != nil {
		return fmt.Errorf("list updated carts: %w", err)
	}
	var errs error
	for _, id := range ids {
		if err := j.projector.Refresh(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refresh %s: %w", id, err))
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"since":     since,
		"refreshed": len(ids) - len(multierr.Errors(errs)),
		"failed":    len(multierr.Errors(errs)),
	}), "realtime view reconcile complete")
	return errs
}
