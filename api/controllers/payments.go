package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/api/responses"
	"github.com/angelmondragon/teamcart-backend/internal/settlement"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

type cashCommitter interface {
	CommitCashOnDelivery(ctx context.Context, cartID uuid.UUID, actor teamcart.Actor) (*teamcart.PaymentView, error)
}

type onlinePaymentInitiator interface {
	InitiateOnlinePayment(ctx context.Context, cartID uuid.UUID, actor teamcart.Actor) (*settlement.OnlinePayment, error)
}

// CommitCashOnDelivery records the caller's promise to pay their share in cash.
func CommitCashOnDelivery(svc cashCommitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.CommitCashOnDelivery(r.Context(), cartID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// InitiateOnlinePayment opens a gateway intent for the caller's share and
// returns the client secret the browser confirms with.
func InitiateOnlinePayment(svc onlinePaymentInitiator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, actor, err := cartActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.InitiateOnlinePayment(r.Context(), cartID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}
