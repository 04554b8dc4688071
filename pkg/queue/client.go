package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/angelmondragon/teamcart-backend/pkg/config"
)

// Client wraps the asynq client used to schedule cart deadline tasks.
type Client struct {
	client       *asynq.Client
	enabled      bool
	defaultQueue string
}

// NewClient creates the queue client; a disabled queue yields a no-op client.
func NewClient(cfg config.QueueConfig, redisCfg config.RedisConfig) (*Client, error) {
	name := queueName(cfg)
	if !cfg.Enabled {
		return &Client{enabled: false, defaultQueue: name}, nil
	}
	opt, err := RedisOpt(redisCfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		client:       asynq.NewClient(opt),
		enabled:      true,
		defaultQueue: name,
	}, nil
}

// Enabled reports whether tasks are actually enqueued.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleTeamCartExpiry enqueues the expire task to run at deadline. The task
// id is derived from the cart so scheduling twice is harmless.
func (c *Client) ScheduleTeamCartExpiry(cartID uuid.UUID, deadline time.Time) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewTeamCartExpireTask(TeamCartExpirePayload{CartID: cartID})
	if err != nil {
		return err
	}
	options := []asynq.Option{
		asynq.Queue(c.defaultQueue),
		asynq.ProcessAt(deadline),
		asynq.TaskID(expireTaskID(cartID)),
		asynq.MaxRetry(5),
	}
	if _, err := c.client.Enqueue(task, options...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TaskTeamCartExpire, err)
	}
	return nil
}

// BuildServerConfig returns the asynq server settings for cmd/worker.
func BuildServerConfig(cfg config.QueueConfig, redisCfg config.RedisConfig) (asynq.RedisConnOpt, asynq.Config, error) {
	opt, err := RedisOpt(redisCfg)
	if err != nil {
		return nil, asynq.Config{}, err
	}
	concurrency := 10
	if cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName(cfg): 1},
	}, nil
}

// RedisOpt maps the shared redis settings onto asynq's connection options.
func RedisOpt(cfg config.RedisConfig) (asynq.RedisConnOpt, error) {
	if url := strings.TrimSpace(cfg.URL); url != "" {
		opt, err := asynq.ParseRedisURI(url)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url for queue: %w", err)
		}
		return opt, nil
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("redis url or address is required")
	}
	return asynq.RedisClientOpt{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, nil
}

func queueName(cfg config.QueueConfig) string {
	if name := strings.TrimSpace(cfg.Name); name != "" {
		return name
	}
	return "teamcart"
}
