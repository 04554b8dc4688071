// Package projection maintains the realtime cart view in Redis. Every
// refresh recomputes the whole view from durable state and overwrites the
// cached copy; reads fall through to the database on a miss.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
)

// ViewSource renders a cart from durable state.
type ViewSource interface {
	Load(ctx context.Context, cartID uuid.UUID) (*teamcart.CartView, error)
}

type Projector struct {
	source  ViewSource
	store   *ViewStore
	group   singleflight.Group
	metrics *metrics.TeamCartMetrics
	logg    *logger.Logger
}

func NewProjector(source ViewSource, store *ViewStore, m *metrics.TeamCartMetrics, logg *logger.Logger) (*Projector, error) {
	if source == nil {
		return nil, fmt.Errorf("view source required")
	}
	if store == nil {
		return nil, fmt.Errorf("view store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Projector{source: source, store: store, metrics: m, logg: logg}, nil
}

// Refresh recomputes the view and overwrites the cache. On failure the
// cached entry is dropped so readers fall back to durable state.
func (p *Projector) Refresh(ctx context.Context, cartID uuid.UUID) error {
	_, err := p.rebuild(ctx, cartID)
	return err
}

func (p *Projector) rebuild(ctx context.Context, cartID uuid.UUID) (*teamcart.CartView, error) {
	view, err := p.source.Load(ctx, cartID)
	if err != nil {
		p.drop(ctx, cartID)
		return nil, err
	}
	if _, err := p.store.Put(ctx, view); err != nil {
		p.drop(ctx, cartID)
		return view, err
	}
	return view, nil
}

func (p *Projector) drop(ctx context.Context, cartID uuid.UUID) {
	if err := p.store.Delete(ctx, cartID); err != nil {
		p.metrics.IncProjectionFailure("evict")
		p.logg.Error(p.logg.WithField(ctx, "cart_id", cartID.String()), "evict realtime view", err)
	}
}

// View serves the realtime view to a member of the cart, reading through to
// durable state on a cache miss. Concurrent misses share one rebuild.
func (p *Projector) View(ctx context.Context, cartID uuid.UUID, actor teamcart.Actor) (*teamcart.CartView, error) {
	view, err := p.cached(ctx, cartID)
	if err != nil {
		return nil, err
	}
	for _, m := range view.Members {
		if m.ID == actor.MemberID {
			return view, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, teamcart.MsgNotMember)
}

func (p *Projector) cached(ctx context.Context, cartID uuid.UUID) (*teamcart.CartView, error) {
	view, err := p.store.Get(ctx, cartID)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, ErrMiss) {
		p.metrics.IncProjectionFailure("read")
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "realtime view read failed, using durable state")
	}

	v, err, _ := p.group.Do(cartID.String(), func() (any, error) {
		view, err := p.rebuild(ctx, cartID)
		if view != nil {
			if err != nil {
				p.metrics.IncProjectionFailure("refresh")
				p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "realtime view refresh failed")
			}
			return view, nil
		}
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*teamcart.CartView), nil
}
