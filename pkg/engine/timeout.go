package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/chazu/wafel/pkg/job"
)

// EvalTimeout bounds one script run unless the engine is given another
// budget.
const EvalTimeout = 5 * time.Second

// evalResult is what the evaluating goroutine hands back.
type evalResult struct {
	job    *job.Job
	errors []EvalError
	err    error
}

// waitWithTimeout blocks until the run tagged gen reports on ch or the
// budget runs out. A result only counts while gen is still the newest
// generation; a later Evaluate call makes it stale. A run that overshoots
// the budget keeps going in the background and its result is dropped.
func waitWithTimeout(
	ch <-chan evalResult,
	gen uint64,
	budget time.Duration,
	mu *sync.Mutex,
	currentGen *uint64,
) (*job.Job, []EvalError, error) {
	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	select {
	case <-deadline.C:
		return nil, nil, fmt.Errorf("evaluation timed out after %s", budget)
	case res := <-ch:
		if latest := loadGeneration(mu, currentGen); latest != gen {
			return nil, nil, fmt.Errorf("evaluation superseded by newer request (run %d, latest %d)", gen, latest)
		}
		return res.job, res.errors, res.err
	}
}

func loadGeneration(mu *sync.Mutex, g *uint64) uint64 {
	mu.Lock()
	defer mu.Unlock()
	return *g
}
