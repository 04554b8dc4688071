package main

import (
	"context"
	"fmt"

	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

// asynqLogger routes asynq's internal logs through the service logger.
type asynqLogger struct {
	logg *logger.Logger
	ctx  context.Context
}

func newAsynqLogger(logg *logger.Logger) *asynqLogger {
	return &asynqLogger{logg: logg, ctx: logg.WithField(context.Background(), "component", "asynq")}
}

func (l *asynqLogger) Debug(args ...any) { l.logg.Debug(l.ctx, fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logg.Info(l.ctx, fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logg.Warn(l.ctx, fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logg.Error(l.ctx, fmt.Sprint(args...), nil) }
func (l *asynqLogger) Fatal(args ...any) { l.logg.Error(l.ctx, fmt.Sprint(args...), nil) }
