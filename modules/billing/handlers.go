package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/habitkit/habitkit/pkg/binder"
	"github.com/habitkit/habitkit/pkg/entitlement"
)

// maxWebhookBody bounds provider payloads; Stripe's documented maximum is
// well under this.
const maxWebhookBody = 1 << 20

var bindJSON = binder.JSON()

// handlePlan runs the resolver for the authenticated caller and returns the
// decision. Internal errors are sanitized to a bare code.
func (s *Service) handlePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeInvalidToken)
		return
	}

	dec, err := s.resolver.Resolve(r.Context(), id)
	if err != nil {
		s.log.ErrorContext(r.Context(), "plan resolution failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	writeJSON(w, http.StatusOK, dec)
}

// handleWebhook answers in two phases. A missing ingestor is a deployment
// problem and gets a 500 before any verification runs. Verification failure
// gets a 400. Every other outcome, including swallowed processing errors
// and dropped events, gets a 200 so the provider stops retrying.
func (s *Service) handleWebhook(ing WebhookIngestor, signatureHeader string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ing == nil {
			writeError(w, http.StatusInternalServerError, codeNotConfigured)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternal)
			return
		}

		receipt, err := ing.Ingest(r.Context(), payload, r.Header.Get(signatureHeader))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadSignature)
			return
		}

		if receipt != nil && receipt.Err != nil {
			s.log.ErrorContext(r.Context(), "webhook processing error swallowed",
				"event", receipt.ProviderEvent, "error", receipt.Err)
		}

		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

type checkoutRequest struct {
	PriceID    string `json:"priceId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

func (s *Service) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeInvalidToken)
		return
	}

	var req checkoutRequest
	if err := bindJSON(r, &req); err != nil || req.PriceID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}

	url, err := s.checkout.CreateCheckoutSession(r.Context(), entitlement.CheckoutParams{
		UserID:     id.UserID,
		Email:      id.Email,
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		s.log.ErrorContext(r.Context(), "checkout session creation failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl"`
}

// handlePortal links the authenticated user to the provider's billing
// portal. Users without a provider customer have nothing to manage there.
func (s *Service) handlePortal(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeInvalidToken)
		return
	}

	var req portalRequest
	if err := bindJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest)
		return
	}

	rec, err := s.records.Get(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, entitlement.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound)
			return
		}
		s.log.ErrorContext(r.Context(), "plan record lookup failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}
	if rec.ProviderCustomerID == "" {
		writeError(w, http.StatusNotFound, codeNotFound)
		return
	}

	url, err := s.checkout.PortalLink(r.Context(), rec.ProviderCustomerID, req.ReturnURL)
	if err != nil {
		s.log.ErrorContext(r.Context(), "portal link creation failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
