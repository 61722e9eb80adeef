package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler returns the billing router, mounted by the caller under /billing.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Post("/plan", s.withAuth(s.handlePlan))

	r.Route("/webhooks", func(hooks chi.Router) {
		hooks.Post("/stripe", s.handleWebhook(s.stripe, "Stripe-Signature"))
		hooks.Post("/paddle", s.handleWebhook(s.paddle, "Paddle-Signature"))
	})

	if s.checkout != nil {
		r.Post("/checkout", s.withAuth(s.handleCheckout))
		r.Post("/portal", s.withAuth(s.handlePortal))
	}

	return r
}
