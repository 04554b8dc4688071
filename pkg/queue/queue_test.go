package queue

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/teamcart-backend/pkg/config"
)

func TestExpireTaskRoundTrip(t *testing.T) {
	cartID := uuid.New()
	task, err := NewTeamCartExpireTask(TeamCartExpirePayload{CartID: cartID})
	require.NoError(t, err)
	require.Equal(t, TaskTeamCartExpire, task.Type())

	payload, err := ParseTeamCartExpirePayload(task)
	require.NoError(t, err)
	require.Equal(t, cartID, payload.CartID)

	_, err = ParseTeamCartExpirePayload(asynq.NewTask(TaskTeamCartExpire, []byte(`{}`)))
	require.Error(t, err)
}

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(config.QueueConfig{Enabled: false}, config.RedisConfig{})
	require.NoError(t, err)
	require.False(t, client.Enabled())
	require.NoError(t, client.ScheduleTeamCartExpiry(uuid.New(), time.Now()))
	require.NoError(t, client.Close())
}

func TestScheduleTeamCartExpiryDeduplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(config.QueueConfig{Enabled: true, Name: "teamcart"}, config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cartID := uuid.New()
	deadline := time.Now().Add(time.Hour)
	require.NoError(t, client.ScheduleTeamCartExpiry(cartID, deadline))
	require.NoError(t, client.ScheduleTeamCartExpiry(cartID, deadline))

	require.True(t, mr.Exists("asynq:{teamcart}:t:"+expireTaskID(cartID)))
}

func TestBuildServerConfig(t *testing.T) {
	_, _, err := BuildServerConfig(config.QueueConfig{}, config.RedisConfig{})
	require.Error(t, err)

	opt, cfg, err := BuildServerConfig(config.QueueConfig{Name: "carts", Concurrency: 4}, config.RedisConfig{Address: "localhost:6379"})
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Concurrency)
	require.Equal(t, map[string]int{"carts": 1}, cfg.Queues)
	require.Equal(t, "localhost:6379", opt.(asynq.RedisClientOpt).Addr)
}
