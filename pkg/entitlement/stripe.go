package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`

	// LifetimePriceIDs are the one-time prices that grant a lifetime
	// purchase; used both for checkout mode selection and payment lookups.
	LifetimePriceIDs []string `env:"STRIPE_LIFETIME_PRICE_IDS" envSeparator:","`
}

// StripeProvider implements Provider and WebhookParser against Stripe.
type StripeProvider struct {
	config StripeConfig
}

// NewStripeProvider wires the Stripe API key and returns a provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	stripe.Key = config.SecretKey

	return &StripeProvider{config: config}, nil
}

// CustomerByEmail returns the first Stripe customer matching the email.
func (p *StripeProvider) CustomerByEmail(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", ErrCustomerNotFound
	}

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := customer.List(params)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return "", ErrCustomerNotFound
}

// ActiveSubscription returns the customer's active or trialing subscription.
func (p *StripeProvider) ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.AddExpand("data.items.data.price")

	iter := subscription.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			continue
		}
		return normalizeStripeSubscription(sub), nil
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return nil, ErrNoActiveSubscription
}

// LifetimePayment returns the customer's completed one-time lifetime
// purchase. Lifetime payment intents carry a price_id in their metadata,
// written by CreateCheckoutSession.
func (p *StripeProvider) LifetimePayment(ctx context.Context, customerID string) (*Payment, error) {
	params := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	params.Context = ctx

	iter := paymentintent.List(params)
	for iter.Next() {
		pi := iter.PaymentIntent()
		if pi.Status != stripe.PaymentIntentStatusSucceeded {
			continue
		}
		priceID := pi.Metadata["price_id"]
		if !slices.Contains(p.config.LifetimePriceIDs, priceID) {
			continue
		}
		return &Payment{
			ID:         pi.ID,
			CustomerID: customerID,
			PriceID:    priceID,
			Amount:     pi.Amount,
			PaidAt:     time.Unix(pi.Created, 0).UTC(),
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return nil, ErrNoLifetimePayment
}

// Parse verifies the Stripe signature over the raw payload and normalizes
// the event. Verification sees the exact bytes; nothing is unmarshaled
// before it passes.
func (p *StripeProvider) Parse(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrSignatureVerification, err)
	}

	out := &Event{
		Kind:          mapStripeEventType(event.Type),
		ProviderEvent: string(event.Type),
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		out.ReferenceID = sess.ClientReferenceID
		out.Metadata = sess.Metadata
		out.AmountTotal = sess.AmountTotal
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		if sess.CustomerDetails != nil {
			out.CustomerEmail = sess.CustomerDetails.Email
		}
		if sess.Subscription != nil {
			out.SubscriptionID = sess.Subscription.ID
		}
		out.PriceID = sess.Metadata["price_id"]

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to parse subscription: %w", err)
		}
		norm := normalizeStripeSubscription(&sub)
		out.SubscriptionID = norm.ID
		out.CustomerID = norm.CustomerID
		out.Status = norm.Status
		out.PriceID = norm.PriceID
		out.Interval = norm.Interval
		out.CurrentPeriodEnd = norm.CurrentPeriodEnd
		out.Metadata = sub.Metadata
		if sub.TrialEnd > 0 {
			t := time.Unix(sub.TrialEnd, 0).UTC()
			out.TrialEnd = &t
		}

	case "invoice.paid", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to parse invoice: %w", err)
		}
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
		out.CustomerEmail = inv.CustomerEmail
		out.Metadata = inv.Metadata
		out.AmountTotal = inv.AmountPaid
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
		if event.Type == "invoice.paid" {
			out.Status = string(stripe.SubscriptionStatusActive)
		} else {
			out.Status = string(stripe.SubscriptionStatusPastDue)
		}
	}

	return out, nil
}

// CheckoutParams describes a checkout session request for a user.
type CheckoutParams struct {
	UserID     uuid.UUID
	Email      string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession creates a hosted Stripe checkout session. The user
// ID is attached as the client reference and as metadata; that attachment is
// what makes webhook identity resolution deterministic later.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutParams) (string, error) {
	if req.PriceID == "" {
		return "", errors.New("entitlement: price ID is required")
	}
	if req.UserID == uuid.Nil {
		return "", ErrMissingUserID
	}

	mode := stripe.CheckoutSessionModeSubscription
	if slices.Contains(p.config.LifetimePriceIDs, req.PriceID) {
		mode = stripe.CheckoutSessionModePayment
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		ClientReferenceID: stripe.String(req.UserID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID.String())
	params.AddMetadata("price_id", req.PriceID)
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if mode == stripe.CheckoutSessionModePayment {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"user_id":  req.UserID.String(),
				"price_id": req.PriceID,
			},
		}
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return sess.URL, nil
}

// PortalLink returns a billing portal URL for a customer.
func (p *StripeProvider) PortalLink(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", ErrCustomerNotFound
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return sess.URL, nil
}

func normalizeStripeSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		if price := sub.Items.Data[0].Price; price != nil {
			out.PriceID = price.ID
			if price.Recurring != nil {
				out.Interval = string(price.Recurring.Interval)
			}
		}
	}
	return out
}

func mapStripeEventType(t stripe.EventType) EventKind {
	switch t {
	case "checkout.session.completed":
		return KindCheckoutCompleted
	case "customer.subscription.created":
		return KindSubscriptionCreated
	case "customer.subscription.updated":
		return KindSubscriptionUpdated
	case "customer.subscription.deleted":
		return KindSubscriptionDeleted
	case "invoice.paid":
		return KindInvoicePaid
	case "invoice.payment_failed":
		return KindPaymentFailed
	default:
		return KindUnknown
	}
}
