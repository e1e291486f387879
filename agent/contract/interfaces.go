package contract

import "context"

// Oracle is the semantic extraction service: intent classification and
// structured field extraction. Implementations must treat it as unreliable;
// every method may fail and callers decide the fallback.
type Oracle interface {
	// Classify labels the input given prior context. The returned label is
	// one of ClassifyLabels.
	Classify(ctx context.Context, turns []Turn, input string) (Intent, error)

	// Extract pulls the named fields from the input given prior context.
	// Fields the oracle could not determine are absent from the result.
	Extract(ctx context.Context, schema []string, turns []Turn, input string) (map[string]string, error)

	// ExtractTimeRange pulls a start/end time pair from phrases such as
	// "between 2pm and 5pm". A single-bound phrase yields one bound.
	ExtractTimeRange(ctx context.Context, input string) (TimeRange, error)
}

// Retriever is the knowledge retrieval service for general product and
// company questions.
type Retriever interface {
	Query(ctx context.Context, text string) ([]Snippet, error)
}
