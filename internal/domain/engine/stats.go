// Package engine holds backend-neutral facts about a search index.
package engine

// Backend names an index engine implementation.
type Backend string

// Supported engines.
const (
	BackendRedis Backend = "redis"
	BackendBleve Backend = "bleve"
)

// Stats summarizes index state for admin and health reporting.
type Stats struct {
	Backend        Backend `json:"backend"`
	Name           string  `json:"name"`
	Documents      int64   `json:"documents"`
	Indexing       bool    `json:"indexing"`
	PercentIndexed float64 `json:"percentIndexed"`
}
