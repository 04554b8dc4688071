package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

const defaultSweepBatch = 200

type expirableLister interface {
	ListExpirable(ctx context.Context, now time.Time, maxLifetime time.Duration, limit int) ([]uuid.UUID, error)
}

type cartExpirer interface {
	ExpireIfDue(ctx context.Context, cartID uuid.UUID) (bool, error)
	MaxLifetime() time.Duration
	Now() time.Time
}

// ExpirySweepJobParams configure the team cart expiry sweep.
type ExpirySweepJobParams struct {
	Logger    *logger.Logger
	Lister    expirableLister
	Expirer   cartExpirer
	BatchSize int
}

// NewExpirySweepJob builds the job that expires carts whose deadline passed
// or that outlived the maximum lifetime without anyone touching them. Each
// cart goes through the same versioned write as a lazy expiry, so a sweep
// racing a member command never clobbers it.
func NewExpirySweepJob(params ExpirySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lister == nil {
		return nil, fmt.Errorf("expirable cart lister required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("cart expirer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &expirySweepJob{
		logg:    params.Logger,
		lister:  params.Lister,
		expirer: params.Expirer,
		batch:   batch,
	}, nil
}

type expirySweepJob struct {
	logg    *logger.Logger
	lister  expirableLister
	expirer cartExpirer
	batch   int
}

func (j *expirySweepJob) Name() string { return "teamcart-expiry-sweep" }

func (j *expirySweepJob) Run(ctx context.Context) error {
	ids, err := j.lister.ListExpirable(ctx, j.expirer.Now(), j.expirer.MaxLifetime(), j.batch)
	if err != nil {
		return fmt.Errorf("list expirable carts: %w", err)
	}
	var (
		errs    error
		expired int
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		ok, err := j.expirer.ExpireIfDue(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", id, err))
			continue
		}
		if ok {
			expired++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(ids),
		"expired":    expired,
		"failed":     len(multierr.Errors(errs)),
	}), "team cart expiry sweep complete")
	return errs
}
