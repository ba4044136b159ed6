package optimization

import (
	"context"
	"fmt"

	"github.com/aristath/pricepack/pkg/milp"
	"github.com/rs/zerolog"
)

// FallbackOptimizer runs primary and, when it fails or panics, the
// deterministic fallback. An invalid round or budget is returned as is.
type FallbackOptimizer struct {
	primary  Optimizer
	fallback Optimizer
	log      zerolog.Logger
}

// NewFallbackOptimizer chains primary and fallback.
func NewFallbackOptimizer(primary, fallback Optimizer, log zerolog.Logger) *FallbackOptimizer {
	return &FallbackOptimizer{
		primary:  primary,
		fallback: fallback,
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// Name identifies the chain.
func (o *FallbackOptimizer) Name() string {
	return o.primary.Name() + "+" + o.fallback.Name()
}

// Optimize never surfaces a primary failure: the fallback result carries the
// reason instead. It errors only when the fallback fails as well.
func (o *FallbackOptimizer) Optimize(ctx context.Context, round int, spendBudget float64) (*Result, error) {
	if _, err := validateRequest(round, spendBudget); err != nil {
		return nil, err
	}

	res, err := o.runPrimary(ctx, round, spendBudget)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	o.log.Warn().Err(err).Str("primary", o.primary.Name()).Msg("Primary optimizer failed, using fallback")
	fb, fbErr := o.fallback.Optimize(ctx, round, spendBudget)
	if fbErr != nil {
		return nil, fmt.Errorf("fallback optimizer failed after %v: %w", err, fbErr)
	}
	fb.FallbackReason = err.Error()
	return fb, nil
}

func (o *FallbackOptimizer) runPrimary(ctx context.Context, round int, spendBudget float64) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: panic: %v", milp.ErrSolverFailure, r)
		}
	}()
	return o.primary.Optimize(ctx, round, spendBudget)
}
