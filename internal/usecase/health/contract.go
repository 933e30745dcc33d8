package health

import "context"

// Pinger checks backend availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker checks an optional external provider.
type Checker interface {
	HealthCheck(ctx context.Context) error
}
