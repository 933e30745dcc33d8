// Package rewrite defines the output of a language-model query rewrite.
package rewrite

import "context"

// Result is a rewritten query and what producing it cost.
type Result struct {
	Query        string
	PromptTokens int
	TotalTokens  int
}

// Completer turns free-form input into a keyword query.
type Completer interface {
	Complete(ctx context.Context, query string) (Result, error)
}
