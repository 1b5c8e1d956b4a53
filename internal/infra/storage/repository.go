package storage

import "context"

// SuspectBlockRepository is the storage boundary of the refetch workflow.
type SuspectBlockRepository interface {
	// StreamPending streams not-yet-corrected block numbers to yield,
	// ordered from highest to lowest height. Enumeration stops on the first
	// yield error.
	StreamPending(ctx context.Context, yield func(blockNumber int64) error) error

	// InvalidateBatch demotes every block at the given heights from
	// consensus and marks the matching control rows corrected, in a single
	// transaction. It returns the number of control rows corrected.
	//
	// Lock order is a global invariant shared with other subsystems that
	// touch these tables: block rows by hash ascending, control rows by
	// block number descending. Implementations must not reorder either.
	InvalidateBatch(ctx context.Context, blockNumbers []int64) (int64, error)
}
