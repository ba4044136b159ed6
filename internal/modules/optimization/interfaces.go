// Package optimization proposes bounded per-SKU price changes that maximize
// projected margin.
package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aristath/pricepack/internal/modules/catalog"
)

var (
	// ErrInvalidRound is returned for rounds other than 1 and 2.
	ErrInvalidRound = errors.New("round must be 1 or 2")
	// ErrInvalidBudget is returned for NaN or infinite spend budgets.
	ErrInvalidBudget = errors.New("spend budget must be a finite number")
)

// Maximum absolute price change per round.
const (
	Round1Bound = 0.20
	Round2Bound = 0.40
)

// Optimizer proposes price changes for one round under a spend budget.
type Optimizer interface {
	Optimize(ctx context.Context, round int, spendBudget float64) (*Result, error)
	Name() string
}

// ProjectionProvider hands out the current catalog projection.
type ProjectionProvider interface {
	Projection(ctx context.Context) (*catalog.Projection, error)
}

// BoundForRound returns the maximum absolute price change of a round.
func BoundForRound(round int) (float64, error) {
	switch round {
	case 1:
		return Round1Bound, nil
	case 2:
		return Round2Bound, nil
	default:
		return 0, fmt.Errorf("%w: got %d", ErrInvalidRound, round)
	}
}

// NearBoundCap is the number of SKUs allowed within 10% of the bound.
func NearBoundCap(n int) int {
	return max(1, n/10)
}

// validateRequest checks the round and the spend budget and returns the
// round's bound.
func validateRequest(round int, spendBudget float64) (float64, error) {
	bound, err := BoundForRound(round)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(spendBudget) || math.IsInf(spendBudget, 0) {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidBudget, spendBudget)
	}
	return bound, nil
}
