// Package graph provides transactional property-graph access for the
// Hivemind core. All core writes are expressed as upserts keyed on logical
// ids, so retrying a statement with the same key is idempotent.
package graph

import "context"

// Statement is one parameterized write in an atomic batch.
type Statement struct {
	Query  string
	Params map[string]any
}

// Store is the graph-store contract the core components depend on.
// Reads return ordered row sets; RunAtomic executes every statement in a
// single write transaction so partial application is never observable.
type Store interface {
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	RunAtomic(ctx context.Context, stmts []Statement) error
	Close(ctx context.Context) error
}
