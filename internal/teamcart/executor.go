package teamcart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
	"github.com/angelmondragon/teamcart-backend/pkg/outbox"
)

const defaultMaxAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Projector refreshes the fast read view after a durable commit.
type Projector interface {
	Refresh(ctx context.Context, cartID uuid.UUID) error
}

// Clock returns the current time; tests inject fixed clocks.
type Clock func() time.Time

// Mutation is one command attempt against a freshly loaded cart. Apply runs
// outside the transaction (pricing and other reads are allowed); Persist,
// when set, runs inside it right after the cart row was saved.
type Mutation struct {
	Kind    CommandKind
	CartID  uuid.UUID
	Apply   func(ctx context.Context, cart *Cart, now time.Time) error
	Persist func(ctx context.Context, tx *gorm.DB, cart *Cart) error
}

// ExecutorConfig wires the executor's collaborators.
type ExecutorConfig struct {
	Tx          txRunner
	Store       Store
	Outbox      outbox.Emitter
	Projector   Projector
	Clock       Clock
	MaxAttempts int
	MaxLifetime time.Duration
	Metrics     *metrics.TeamCartMetrics
	Logger      *logger.Logger
}

// Executor runs read-compute-write cycles with optimistic retries, lazy
// expiry, outbox emission and post-commit projection.
type Executor struct {
	tx          txRunner
	store       Store
	outbox      outbox.Emitter
	projector   Projector
	clock       Clock
	maxAttempts int
	maxLifetime time.Duration
	metrics     *metrics.TeamCartMetrics
	logg        *logger.Logger
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("team cart store required")
	}
	if cfg.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Executor{
		tx:          cfg.Tx,
		store:       cfg.Store,
		outbox:      cfg.Outbox,
		projector:   cfg.Projector,
		clock:       clock,
		maxAttempts: attempts,
		maxLifetime: cfg.MaxLifetime,
		metrics:     cfg.Metrics,
		logg:        cfg.Logger,
	}, nil
}

// Now returns the executor clock in UTC.
func (e *Executor) Now() time.Time {
	return e.clock().UTC()
}

// MaxLifetime is the expiry horizon applied to carts without a deadline.
func (e *Executor) MaxLifetime() time.Duration {
	return e.maxLifetime
}

// Store exposes the durable store for read paths.
func (e *Executor) Store() Store {
	return e.store
}

// Create persists a new cart and its creation events.
func (e *Executor) Create(ctx context.Context, cart *Cart) error {
	events := cart.PendingEvents()
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := e.store.Insert(ctx, tx, cart); err != nil {
			return err
		}
		return e.emit(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	e.metrics.IncTransition(cart.Status().String())
	e.project(ctx, cart.ID())
	return nil
}

// Execute applies m with bounded retries on version conflicts. Domain
// errors from Apply are returned as-is and never retried. A cart found past
// its deadline is expired durably and the command fails with Expired.
func (e *Executor) Execute(ctx context.Context, m Mutation) (*Cart, error) {
	ctx = e.logg.WithFields(ctx, map[string]any{"cart_id": m.CartID.String(), "command": string(m.Kind)})
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		cart, err := e.attempt(ctx, m)
		if err == nil {
			return cart, nil
		}
		if !IsStaleVersion(err) {
			return nil, err
		}
		lastErr = err
		e.metrics.IncConflict(string(m.Kind))
		if attempt < e.maxAttempts {
			e.metrics.IncRetry(string(m.Kind))
			e.logg.Debug(e.logg.WithField(ctx, "attempt", attempt), "version conflict, retrying command")
		}
	}
	e.logg.Warn(ctx, "command gave up after repeated version conflicts")
	return nil, lastErr
}

func (e *Executor) attempt(ctx context.Context, m Mutation) (*Cart, error) {
	now := e.Now()
	cart, err := e.store.Load(ctx, m.CartID)
	if err != nil {
		return nil, err
	}
	if cart.ShouldExpire(now, e.maxLifetime) {
		cart.Expire(now)
		if err := e.commit(ctx, cart, nil); err != nil {
			return nil, err
		}
		e.metrics.IncTransition(cart.Status().String())
		e.logg.Info(ctx, "team cart expired lazily")
		return nil, expired(MsgDeadlinePassed)
	}
	before := cart.Status()
	if err := m.Apply(ctx, cart, now); err != nil {
		return nil, err
	}
	if !cart.HasChanges() {
		return cart, nil
	}
	if err := e.commit(ctx, cart, m.Persist); err != nil {
		return nil, err
	}
	if after := cart.Status(); after != before {
		e.metrics.IncTransition(after.String())
		e.logg.Info(e.logg.WithField(ctx, "status", after.String()), "team cart transitioned")
	}
	return cart, nil
}

// ExpireIfDue is the system-triggered expiry used by sweeps and deadline
// tasks. It reports whether the cart transitioned.
func (e *Executor) ExpireIfDue(ctx context.Context, cartID uuid.UUID) (bool, error) {
	ctx = e.logg.WithFields(ctx, map[string]any{"cart_id": cartID.String(), "command": string(CommandExpire)})
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		now := e.Now()
		cart, err := e.store.Load(ctx, cartID)
		if err != nil {
			return false, err
		}
		if !cart.ShouldExpire(now, e.maxLifetime) {
			return false, nil
		}
		cart.Expire(now)
		err = e.commit(ctx, cart, nil)
		if err == nil {
			e.metrics.IncTransition(cart.Status().String())
			e.logg.Info(ctx, "team cart expired")
			return true, nil
		}
		if !IsStaleVersion(err) {
			return false, err
		}
		lastErr = err
		e.metrics.IncConflict(string(CommandExpire))
	}
	return false, lastErr
}

func (e *Executor) commit(ctx context.Context, cart *Cart, persist func(context.Context, *gorm.DB, *Cart) error) error {
	events := cart.PendingEvents()
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := e.store.Save(ctx, tx, cart); err != nil {
			return err
		}
		if persist != nil {
			if err := persist(ctx, tx, cart); err != nil {
				return err
			}
		}
		return e.emit(ctx, tx, events)
	})
	if err != nil {
		return err
	}
	cart.markSaved()
	e.project(ctx, cart.ID())
	return nil
}

func (e *Executor) emit(ctx context.Context, tx *gorm.DB, events []outbox.DomainEvent) error {
	for _, event := range events {
		if err := e.outbox.Emit(ctx, tx, event); err != nil {
			return fmt.Errorf("emit %s: %w", event.EventType, err)
		}
	}
	return nil
}

// project refreshes the fast view. Failures are logged and never undo the
// committed write; the next read-through or mutation repairs the view.
func (e *Executor) project(ctx context.Context, cartID uuid.UUID) {
	if e.projector == nil {
		return
	}
	if err := e.projector.Refresh(ctx, cartID); err != nil {
		e.metrics.IncProjectionFailure("refresh")
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "realtime view refresh failed")
	}
}
