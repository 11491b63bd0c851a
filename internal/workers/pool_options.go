package workers

import "github.com/smazurov/depthrig/internal/logging"

// PoolOptions configures a new Pool.
type PoolOptions struct {
	// Workers is the number of goroutines. Values below 1 mean 1.
	Workers int

	// Logger for pool operations. If nil, uses slog.Default().
	Logger logging.Logger
}

// SizeFor returns the worker count for the given number of enabled devices:
// two per device, at most cpus-1, at least 1. A positive limit caps the
// result further.
func SizeFor(devices, cpus, limit int) int {
	n := min(2*devices, cpus-1)
	if limit > 0 {
		n = min(n, limit)
	}
	return max(n, 1)
}
