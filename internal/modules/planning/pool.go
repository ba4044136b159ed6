package planning

import (
	"context"
	"sync"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
)

// WorkerPool scores plans on a fixed number of goroutines.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a pool with numWorkers goroutines.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// EvaluateBatch scores plans against one projection. Results keep the input
// order. Plans not yet started when ctx is cancelled are skipped and the
// context error is returned.
func (wp *WorkerPool) EvaluateBatch(ctx context.Context, proj *catalog.Projection, plans []domain.Plan) ([]Evaluation, error) {
	numPlans := len(plans)
	if numPlans == 0 {
		return []Evaluation{}, nil
	}

	jobs := make(chan jobItem, numPlans)
	results := make(chan resultItem, numPlans)

	var wg sync.WaitGroup
	numActualWorkers := min(wp.numWorkers, numPlans)
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, proj, jobs, results)
		}()
	}

	for idx := range plans {
		jobs <- jobItem{index: idx, plan: &plans[idx]}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Evaluation, numPlans)
	for result := range results {
		out[result.index] = result.eval
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type jobItem struct {
	index int
	plan  *domain.Plan
}

type resultItem struct {
	index int
	eval  Evaluation
}

func worker(ctx context.Context, proj *catalog.Projection, jobs <-chan jobItem, results chan<- resultItem) {
	for job := range jobs {
		if ctx.Err() != nil {
			continue
		}
		results <- resultItem{index: job.index, eval: Evaluate(proj, *job.plan)}
	}
}
