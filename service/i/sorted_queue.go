package i

import "context"

// SortedQueue is a score-ordered queue with atomic multi-pop. Implementations
// must make DequeTops safe against concurrent consumers of the same key.
type SortedQueue interface {
	// Enqueue adds a member with the given score. Re-adding an existing member
	// updates its score instead of duplicating it.
	Enqueue(ctx context.Context, queueKey string, score float64, member string) error

	// DequeTops removes and returns up to amount members with the lowest
	// scores, or nothing when fewer than amount members are queued.
	DequeTops(ctx context.Context, queueKey string, amount int64) ([]string, error)

	// Count returns the number of members in the queue.
	Count(ctx context.Context, queueKey string) int64
}
