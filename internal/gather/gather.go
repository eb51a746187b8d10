// Package gather fetches market data from external providers into the local
// bar store.
package gather

import "context"

// Gatherer is implemented by every provider-specific fetch job.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run fetches everything missing from the store and returns when done
	// or when ctx is cancelled.
	Run(ctx context.Context) error
}
