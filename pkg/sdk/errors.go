package assetsearch

import (
	"errors"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound           = domain.ErrNotFound
	ErrValidation         = domain.ErrValidation
	ErrBackendUnavailable = domain.ErrBackendUnavailable
	ErrServiceUnavailable = domain.ErrServiceUnavailable
)

// ErrNoSource is returned by sync operations on a client built without WithSource.
var ErrNoSource = errors.New("assetsearch: no source configured (use WithSource)")
