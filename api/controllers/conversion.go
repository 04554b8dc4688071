package controllers

import (
	"net/http"

	"github.com/angelmondragon/teamcart-backend/api/responses"
	"github.com/angelmondragon/teamcart-backend/api/validators"
	"github.com/angelmondragon/teamcart-backend/internal/conversion"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

type convertTeamCartRequest struct {
	DeliveryAddress string  `json:"delivery_address" validate:"required,max=500"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// ConvertTeamCart turns a fully settled cart into an order. Host only.
func ConvertTeamCart(svc conversion.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload convertTeamCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Convert(r.Context(), conversion.ConvertInput{
			CartID:          cartID,
			Actor:           actor,
			DeliveryAddress: payload.DeliveryAddress,
			Notes:           payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
