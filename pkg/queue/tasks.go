package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TaskTeamCartExpire fires at a cart's deadline.
	TaskTeamCartExpire = "teamcart:expire"
)

// TeamCartExpirePayload identifies the cart whose deadline elapsed.
type TeamCartExpirePayload struct {
	CartID uuid.UUID `json:"cart_id"`
}

// NewTeamCartExpireTask builds the deadline task for a cart.
func NewTeamCartExpireTask(payload TeamCartExpirePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTeamCartExpire, body), nil
}

// ParseTeamCartExpirePayload decodes a task body.
func ParseTeamCartExpirePayload(task *asynq.Task) (TeamCartExpirePayload, error) {
	var payload TeamCartExpirePayload
	if task == nil {
		return payload, fmt.Errorf("task is nil")
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", TaskTeamCartExpire, err)
	}
	if payload.CartID == uuid.Nil {
		return payload, fmt.Errorf("%s payload missing cart_id", TaskTeamCartExpire)
	}
	return payload, nil
}

func expireTaskID(cartID uuid.UUID) string {
	return "teamcart-expire:" + cartID.String()
}
