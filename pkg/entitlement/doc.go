// Package entitlement decides which plan a user is on and who is allowed
// to say so.
//
// Three actors write to or read from a single durable PlanRecord per user:
// the resolver endpoint called by the client, the billing provider's webhook,
// and the provider itself as queried ground truth. They share no memory and
// race freely; convergence relies on the resolver's precedence order and on
// every store write being a conditional upsert keyed by user ID.
//
// The precedence order is the core business rule:
//
//  1. A record already marked pro by a webhook write short-circuits
//     everything, including provider round-trips.
//  2. An active or trialing subscription at the provider wins over any
//     local state and self-heals a stale record.
//  3. A completed lifetime payment does the same and is irrevocable.
//  4. Trial fields are written exactly once; afterwards the trial branch is
//     read-only and expiry is computed, never stored back into them.
//
// Use NewResolver and NewIngestor with a shared Store. MemoryStore is a
// complete in-process implementation; PGStore enforces the same invariants
// in SQL for production.
package entitlement
