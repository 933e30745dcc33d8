// Package tier names the cache freshness classes used by the read path.
package tier

import "time"

// Tier is a cache freshness class.
type Tier string

// Cache tiers, shortest-lived first.
const (
	Live       Tier = "live"
	Search     Tier = "search"
	Suggestion Tier = "suggestion"
	Popular    Tier = "popular"
)

// All lists every tier.
var All = []Tier{Live, Search, Suggestion, Popular}

// DefaultTTL returns the built-in time-to-live of a tier.
func (t Tier) DefaultTTL() time.Duration {
	switch t {
	case Live:
		return 30 * time.Second
	case Search:
		return 5 * time.Minute
	case Suggestion:
		return 30 * time.Minute
	case Popular:
		return time.Hour
	}
	return 0
}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool { return t.DefaultTTL() > 0 }
