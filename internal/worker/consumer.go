// Package worker consumes the background tasks scheduled by the API.
package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/queue"
)

type cartExpirer interface {
	ExpireIfDue(ctx context.Context, cartID uuid.UUID) (bool, error)
}

// Consumer handles team cart tasks.
type Consumer struct {
	expirer cartExpirer
	logg    *logger.Logger
}

func NewConsumer(expirer cartExpirer, logg *logger.Logger) (*Consumer, error) {
	if expirer == nil {
		return nil, fmt.Errorf("cart expirer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{expirer: expirer, logg: logg}, nil
}

// Register binds the task handlers to mux.
func (c *Consumer) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TaskTeamCartExpire, c.HandleTeamCartExpire)
}

// HandleTeamCartExpire expires the cart named by the task if its deadline
// has passed. Carts that are already terminal, were deleted, or are not yet
// due finish the task without effect; the sweep job covers anything missed.
func (c *Consumer) HandleTeamCartExpire(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseTeamCartExpirePayload(task)
	if err != nil {
		c.logg.Warn(ctx, "dropping malformed expire task: "+err.Error())
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	ctx = c.logg.WithFields(ctx, map[string]any{"cart_id": payload.CartID.String(), "task": queue.TaskTeamCartExpire})

	expired, err := c.expirer.ExpireIfDue(ctx, payload.CartID)
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
		c.logg.Warn(ctx, "expire task for unknown cart")
		return nil
	case err != nil:
		c.logg.Error(ctx, "expire task failed", err)
		return err
	case expired:
		c.logg.Info(ctx, "team cart expired by deadline task")
	default:
		c.logg.Debug(ctx, "expire task had no effect")
	}
	return nil
}
