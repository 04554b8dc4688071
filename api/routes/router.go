package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/teamcart-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/teamcart-backend/api/controllers/webhooks"
	"github.com/angelmondragon/teamcart-backend/api/middleware"
	"github.com/angelmondragon/teamcart-backend/internal/conversion"
	"github.com/angelmondragon/teamcart-backend/internal/projection"
	"github.com/angelmondragon/teamcart-backend/internal/settlement"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/auth"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
	"github.com/angelmondragon/teamcart-backend/pkg/stripe"
)

type signingSecretProvider interface {
	SigningSecret() string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	tokens *auth.Issuer,
	cartService teamcart.Service,
	coordinator settlement.Coordinator,
	converter conversion.Service,
	projector *projection.Projector,
	stripeClient *stripe.Client,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}))
	})

	r.Handle("/metrics", promhttp.Handler())

	var signer signingSecretProvider
	if stripeClient != nil {
		signer = stripeClient
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(coordinator, signer, logg))
	})

	r.Route("/api/v1/team-carts", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(redisClient, logg))
			r.Post("/", controllers.CreateTeamCart(cartService, logg))
			r.Post("/{cartId}/join", controllers.JoinTeamCart(cartService, logg))
		})

		// Idempotency runs after auth so replay scope includes the member.
		r.Group(func(r chi.Router) {
			r.Use(middleware.MemberAuth(tokens, logg))
			r.Use(middleware.Idempotency(redisClient, logg))

			r.Get("/{cartId}", controllers.GetTeamCart(cartService, logg))
			r.Get("/{cartId}/realtime", controllers.GetTeamCartRealtime(projector, logg))

			r.Post("/{cartId}/items", controllers.AddTeamCartItem(cartService, logg))
			r.Patch("/{cartId}/items/{itemId}", controllers.UpdateTeamCartItemQuantity(cartService, logg))
			r.Delete("/{cartId}/items/{itemId}", controllers.RemoveTeamCartItem(cartService, logg))

			r.Put("/{cartId}/tip", controllers.ApplyTeamCartTip(cartService, logg))
			r.Put("/{cartId}/coupon", controllers.ApplyTeamCartCoupon(cartService, logg))
			r.Delete("/{cartId}/coupon", controllers.RemoveTeamCartCoupon(cartService, logg))
			r.Post("/{cartId}/lock", controllers.LockTeamCart(cartService, logg))

			r.Post("/{cartId}/payments/cod", controllers.CommitCashOnDelivery(coordinator, logg))
			r.Post("/{cartId}/payments/online", controllers.InitiateOnlinePayment(coordinator, logg))
			r.Post("/{cartId}/convert", controllers.ConvertTeamCart(converter, logg))
		})
	})

	return r
}
