// Package workers provides a fixed-size goroutine pool for frame processing.
//
// Submit never blocks: tasks wait in an unbounded FIFO until a worker is
// free. The dispatch loop bounds the submission rate to one task per
// acquired capture, so the queue only grows while workers are slower than
// the cameras.
//
// Example usage:
//
//	pool := workers.NewPool(&workers.PoolOptions{
//	    Workers: workers.SizeFor(len(devices), runtime.NumCPU(), 0),
//	    Logger:  logging.GetLogger("workers"),
//	})
//	_ = pool.Submit(func() { processor.Process(job) })
//	defer pool.Close()
package workers
