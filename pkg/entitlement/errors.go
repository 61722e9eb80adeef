package entitlement

import "errors"

var (
	ErrRecordNotFound = errors.New("entitlement: plan record not found")
	ErrMissingUserID  = errors.New("entitlement: user ID is required")

	// ErrUnauthenticated marks an invalid or expired caller identity.
	// It is surfaced distinctly so the client can force a sign-out instead
	// of silently treating the user as free.
	ErrUnauthenticated = errors.New("entitlement: caller is not authenticated")

	ErrCustomerNotFound     = errors.New("entitlement: provider customer not found")
	ErrNoActiveSubscription = errors.New("entitlement: no active subscription at provider")
	ErrNoLifetimePayment    = errors.New("entitlement: no completed lifetime payment at provider")
	ErrProviderUnavailable  = errors.New("entitlement: billing provider unavailable")

	// ErrSignatureVerification is the only ingest failure that maps to a
	// 400 response; everything after verification is logged and swallowed.
	ErrSignatureVerification = errors.New("entitlement: webhook signature verification failed")
	ErrMalformedEvent        = errors.New("entitlement: malformed webhook event")
	ErrUserNotResolved       = errors.New("entitlement: webhook event does not resolve to a user")

	ErrMissingAPIKey        = errors.New("entitlement: billing provider API key is required")
	ErrMissingWebhookSecret = errors.New("entitlement: billing provider webhook secret is required")

	ErrInvalidCatalog = errors.New("entitlement: invalid price catalog")
)
