package interfaces

import (
	"context"

	"engage/pkg/types"
)

// SampleSink receives a fire-and-forget copy of every accepted sample for
// long-term storage. Implementations must never block the caller on I/O and
// their unavailability must not affect the in-memory aggregation path.
type SampleSink interface {
	// LogSample enqueues a sample for archival. Best effort: errors are the
	// sink's own concern and are not surfaced to ingestion.
	LogSample(sample *types.Sample)

	// HealthCheck verifies the sink is reachable.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources.
	Close() error
}
