package planning

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/aristath/pricepack/internal/modules/catalog"
)

// ResponseModel maps an own elasticity and a price move to a volume factor.
type ResponseModel interface {
	Name() string
	OwnFactor(elasticity, p0, newPrice float64) float64
}

// LogLogResponse is the constant-elasticity response
// (newPrice/p0)^elasticity, with both prices floored at one cent.
type LogLogResponse struct{}

// Name identifies the model.
func (LogLogResponse) Name() string { return "loglog" }

// OwnFactor implements ResponseModel.
func (LogLogResponse) OwnFactor(elasticity, p0, newPrice float64) float64 {
	return math.Exp(elasticity * math.Log(math.Max(newPrice, 0.01)/math.Max(p0, 0.01)))
}

// LinearResponse is the response the price simulator uses:
// max(0, 1 + elasticity·pct).
type LinearResponse struct{}

// Name identifies the model.
func (LinearResponse) Name() string { return "linear" }

// OwnFactor implements ResponseModel.
func (LinearResponse) OwnFactor(elasticity, p0, newPrice float64) float64 {
	if p0 == 0 {
		return 1
	}
	return math.Max(0, 1+elasticity*(newPrice/p0-1))
}

// ParseResponseModel resolves a model name. An empty name selects log-log.
func ParseResponseModel(name string) (ResponseModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "loglog", "log-log":
		return LogLogResponse{}, nil
	case "linear":
		return LinearResponse{}, nil
	default:
		return nil, fmt.Errorf("unknown response model %q", name)
	}
}

// AnnotateExpectedImpacts loads the current projection and annotates plan.
// A nil model selects log-log.
func (s *Scorer) AnnotateExpectedImpacts(ctx context.Context, plan *domain.Plan, model ResponseModel) error {
	if model == nil {
		model = LogLogResponse{}
	}
	proj, err := s.projections.Projection(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog projection: %w", err)
	}
	AnnotateImpacts(proj, plan, model)
	s.log.Debug().Str("plan_id", plan.ID).Str("model", model.Name()).Msg("Plan impacts annotated")
	return nil
}

// AnnotateImpacts sets ExpectedImpact on every price change and delist action
// from the SKU baselines, one action at a time and ignoring interactions
// between actions. Targets without a baseline are skipped. An action whose
// projected impact is zero keeps whatever impact it already had.
func AnnotateImpacts(proj *catalog.Projection, plan *domain.Plan, model ResponseModel) {
	if model == nil {
		model = LogLogResponse{}
	}
	for i := range plan.Actions {
		a := &plan.Actions[i]
		var impact domain.Impact

		switch a.Type {
		case domain.ActionPriceChange:
			for _, id := range a.Targets {
				b, ok := proj.BaselineFor(id)
				if !ok {
					continue
				}
				newPrice := b.P0 * (1 + a.MagnitudePct)
				newUnits := b.BaseUnits * model.OwnFactor(b.OwnElasticity, b.P0, newPrice)

				impact.Units += newUnits - b.BaseUnits
				impact.Revenue += newPrice*newUnits - b.P0*b.BaseUnits
				impact.Margin += (newPrice-b.UnitCost)*newUnits - (b.P0-b.UnitCost)*b.BaseUnits
			}
		case domain.ActionDelist:
			for _, id := range a.Targets {
				b, ok := proj.BaselineFor(id)
				if !ok {
					continue
				}
				impact.Units -= b.BaseUnits
				impact.Revenue -= b.P0 * b.BaseUnits
				impact.Margin -= (b.P0 - b.UnitCost) * b.BaseUnits
			}
		default:
			continue
		}

		if !impact.IsZero(1e-9) {
			a.ExpectedImpact = &impact
		}
	}
}
