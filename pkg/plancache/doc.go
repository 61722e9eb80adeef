// Package plancache mirrors the server's plan decision on the client.
//
// The cache holds the last known decision in memory (and optionally in a
// durable store so a restart begins from the last decision rather than
// none), and refreshes it through the resolver endpoint under two guards: a
// cooldown window for non-forced refreshes, and a single-flight rule that
// drops any refresh attempt, forced or not, while one is already running.
// Refreshes are dropped rather than queued; the next trigger will observe
// whatever the in-flight call produced.
//
// An authentication error from the resolver triggers the configured
// sign-out callback instead of caching a stale or free decision.
package plancache
