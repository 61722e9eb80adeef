package billing

import "errors"

var (
	ErrMissingResolver = errors.New("billing: resolver is required")
	ErrMissingAuth     = errors.New("billing: token verifier is required")
)

// Error codes surfaced to clients. Raw internal error text never leaves the
// module; the client recognizes codeInvalidToken and forces a sign-out.
const (
	codeInvalidToken  = "auth/invalid-token"
	codeInternal      = "internal_error"
	codeNotConfigured = "provider_not_configured"
	codeBadSignature  = "invalid_signature"
	codeBadRequest    = "bad_request"
	codeNotFound      = "not_found"
)
