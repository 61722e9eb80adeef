package datasync

import "github.com/habitkit/habitkit/pkg/entitlement"

// Strategy is the data-ownership mode the engine runs under. Exactly one is
// active per auth/plan transition.
type Strategy string

const (
	// StrategyLocalOnly: not signed in, the device store is the sole source
	// of truth and the cloud is never contacted.
	StrategyLocalOnly Strategy = "local_only"

	// StrategyPending: signed in but the plan decision has not arrived yet.
	// The local store is served provisionally and no sync commitment is made.
	StrategyPending Strategy = "pending"

	// StrategyCloudOwned: entitled. The cloud copy is authoritative and the
	// device copy is a cache.
	StrategyCloudOwned Strategy = "cloud_owned"

	// StrategyLocalOwned: signed in but not entitled. The device copy is
	// primary; cloud data is merged in additively.
	StrategyLocalOwned Strategy = "local_owned"
)

// Decide picks the strategy for an auth state and plan decision. It is pure:
// what the engine then does with local and cloud content is the strategy's
// initialization, not part of the choice.
func Decide(authenticated bool, dec *entitlement.Decision) Strategy {
	if !authenticated {
		return StrategyLocalOnly
	}
	if dec == nil {
		return StrategyPending
	}
	if dec.Subscribed {
		return StrategyCloudOwned
	}
	return StrategyLocalOwned
}
