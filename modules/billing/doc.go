// Package billing exposes the plan resolution and webhook endpoints.
//
// The plan endpoint is the client's only way to learn its plan; it runs the
// resolver synchronously and returns the decision. The webhook endpoints are
// invoked by the payment provider and answer in two phases: signature
// verification failures get a 400, everything after verification is logged
// and swallowed behind a 200 so the provider does not retry events that
// will never succeed.
package billing
