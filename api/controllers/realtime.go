package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/api/responses"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

type realtimeViewer interface {
	View(ctx context.Context, cartID uuid.UUID, actor teamcart.Actor) (*teamcart.CartView, error)
}

// GetTeamCartRealtime serves the cached projection. It may briefly trail the
// authoritative view.
func GetTeamCartRealtime(viewer realtimeViewer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := viewer.View(r.Context(), cartID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
