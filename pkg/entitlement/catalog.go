package entitlement

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTrialDuration is one week, the standard trial window.
const DefaultTrialDuration = 168 * time.Hour

// Catalog maps provider price identifiers to purchase plans and carries the
// trial duration. It deliberately knows nothing about pricing or display
// copy; it only answers "what kind of purchase is this price".
type Catalog struct {
	TrialDuration time.Duration
	prices        map[string]PurchasePlan
}

// NewCatalog builds a catalog from an explicit price map. A zero trial
// duration falls back to DefaultTrialDuration.
func NewCatalog(trial time.Duration, prices map[string]PurchasePlan) *Catalog {
	if trial <= 0 {
		trial = DefaultTrialDuration
	}
	c := &Catalog{TrialDuration: trial, prices: make(map[string]PurchasePlan, len(prices))}
	for id, p := range prices {
		c.prices[id] = p
	}
	return c
}

type catalogFile struct {
	TrialHours int               `yaml:"trial_hours"`
	Prices     map[string]string `yaml:"prices"`
}

// LoadCatalog reads a YAML catalog file:
//
//	trial_hours: 168
//	prices:
//	  price_1NxMonthly: monthly
//	  price_1NxYearly: yearly
//	  price_1NxLifetime: lifetime
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}

	prices := make(map[string]PurchasePlan, len(f.Prices))
	for id, p := range f.Prices {
		switch PurchasePlan(p) {
		case PurchaseMonthly, PurchaseYearly, PurchaseLifetime:
			prices[id] = PurchasePlan(p)
		default:
			return nil, errors.Join(ErrInvalidCatalog,
				fmt.Errorf("price %s maps to unknown purchase plan %q", id, p))
		}
	}

	return NewCatalog(time.Duration(f.TrialHours)*time.Hour, prices), nil
}

// PurchasePlanFor derives the purchase plan for a price, falling back to the
// billing interval when the price is not in the catalog. Unknown inputs
// yield PurchaseNone rather than a guess.
func (c *Catalog) PurchasePlanFor(priceID, interval string) PurchasePlan {
	if p, ok := c.prices[priceID]; ok {
		return p
	}
	switch interval {
	case "month", "monthly":
		return PurchaseMonthly
	case "year", "annual", "yearly":
		return PurchaseYearly
	}
	return PurchaseNone
}

// LifetimePriceIDs lists the catalog prices mapped to lifetime purchases.
func (c *Catalog) LifetimePriceIDs() []string {
	var ids []string
	for id, p := range c.prices {
		if p == PurchaseLifetime {
			ids = append(ids, id)
		}
	}
	return ids
}
