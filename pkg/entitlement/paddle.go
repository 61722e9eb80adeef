package entitlement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleParser implements WebhookParser for Paddle deliveries. It covers the
// webhook side only; provider queries remain Stripe's, so a deployment mid
// migration can keep ingesting Paddle events while resolving against Stripe.
type PaddleParser struct {
	verifier *paddle.WebhookVerifier
}

// NewPaddleParser creates a parser verifying with the given webhook secret.
func NewPaddleParser(webhookSecret string) (*PaddleParser, error) {
	if webhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &PaddleParser{verifier: paddle.NewWebhookVerifier(webhookSecret)}, nil
}

// Parse verifies the Paddle signature over the raw payload, then normalizes
// the event. The SDK verifier consumes an http.Request, so one is rebuilt
// around the untouched bytes.
func (p *PaddleParser) Parse(payload []byte, signature string) (*Event, error) {
	req, err := http.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureVerification, err)
	}
	if !valid {
		return nil, ErrSignatureVerification
	}

	var raw struct {
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	event := &Event{
		Kind:          mapPaddleEventType(raw.EventType),
		ProviderEvent: raw.EventType,
		Metadata:      map[string]string{},
	}

	if custom, ok := raw.Data["custom_data"].(map[string]any); ok {
		for k, v := range custom {
			if s, ok := v.(string); ok {
				event.Metadata[k] = s
			}
		}
	}
	if id, ok := raw.Data["customer_id"].(string); ok {
		event.CustomerID = id
	}
	if status, ok := raw.Data["status"].(string); ok {
		event.Status = normalizePaddleStatus(status)
	}

	switch {
	case strings.HasPrefix(raw.EventType, "subscription."):
		if id, ok := raw.Data["id"].(string); ok {
			event.SubscriptionID = id
		}
		if items, ok := raw.Data["items"].([]any); ok && len(items) > 0 {
			if item, ok := items[0].(map[string]any); ok {
				if price, ok := item["price"].(map[string]any); ok {
					if priceID, ok := price["id"].(string); ok {
						event.PriceID = priceID
					}
					if cycle, ok := price["billing_cycle"].(map[string]any); ok {
						if interval, ok := cycle["interval"].(string); ok {
							event.Interval = interval
						}
					}
				}
			}
		}
		if period, ok := raw.Data["current_billing_period"].(map[string]any); ok {
			if ends, ok := period["ends_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339, ends); err == nil {
					u := t.UTC()
					event.CurrentPeriodEnd = &u
				}
			}
		}

	case strings.HasPrefix(raw.EventType, "transaction."):
		if subID, ok := raw.Data["subscription_id"].(string); ok {
			event.SubscriptionID = subID
		}
		if items, ok := raw.Data["items"].([]any); ok && len(items) > 0 {
			if item, ok := items[0].(map[string]any); ok {
				if priceID, ok := item["price_id"].(string); ok {
					event.PriceID = priceID
				}
			}
		}
	}

	return event, nil
}

func mapPaddleEventType(t string) EventKind {
	switch t {
	case "transaction.completed":
		return KindCheckoutCompleted
	case "subscription.created":
		return KindSubscriptionCreated
	case "subscription.updated":
		return KindSubscriptionUpdated
	case "subscription.canceled":
		return KindSubscriptionDeleted
	case "transaction.payment_succeeded":
		return KindInvoicePaid
	case "transaction.payment_failed":
		return KindPaymentFailed
	default:
		return KindUnknown
	}
}

func normalizePaddleStatus(status string) string {
	// Paddle spells canceled with one l; so do we.
	if strings.ToLower(status) == "cancelled" {
		return "canceled"
	}
	return strings.ToLower(status)
}
