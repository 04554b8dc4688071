package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/angelmondragon/teamcart-backend/internal/worker"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// taskServer is the part of *asynq.Server the worker drives.
type taskServer interface {
	Start(handler asynq.Handler) error
	Shutdown()
}

type ServiceParams struct {
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	Server   taskServer
	Consumer *worker.Consumer
}

type Service struct {
	logg     *logger.Logger
	db       pinger
	redis    pinger
	server   taskServer
	consumer *worker.Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Server == nil {
		return nil, errors.New("task server is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("consumer is required")
	}
	return &Service{
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		server:   params.Server,
		consumer: params.Consumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run starts consuming tasks and blocks until ctx is canceled, then drains
// in-flight tasks.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	mux := asynq.NewServeMux()
	s.consumer.Register(mux)
	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	s.logg.Info(ctx, "task server started")

	<-ctx.Done()
	s.logg.Info(ctx, "worker context canceled")
	s.server.Shutdown()
	return ctx.Err()
}
