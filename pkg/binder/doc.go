// Package binder provides type-safe binding of HTTP request bodies to Go structs.
//
// The JSON binder enforces a JSON content type, caps the body size, rejects
// trailing data after the top-level value, and strips NUL bytes from decoded
// strings before the struct reaches handler code.
//
// # Basic Usage
//
//	type checkoutRequest struct {
//	    PriceID    string `json:"priceId"`
//	    SuccessURL string `json:"successUrl"`
//	    CancelURL  string `json:"cancelUrl"`
//	}
//
//	bind := binder.JSON()
//
//	func (s *Service) handleCheckout(w http.ResponseWriter, r *http.Request) {
//	    var req checkoutRequest
//	    if err := bind(r, &req); err != nil {
//	        // respond with 400
//	    }
//	    ...
//	}
//
// # Error Handling
//
// Binding failures wrap one of the package sentinels:
//
//   - ErrMissingContentType: request carried no Content-Type header
//   - ErrUnsupportedMediaType: content type is not application/json
//   - ErrFailedToParseJSON: body is malformed, empty, or too large
package binder
