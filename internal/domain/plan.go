package domain

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// ActionType identifies the kind of instruction a plan action carries.
type ActionType string

const (
	ActionPriceChange      ActionType = "price_change"
	ActionPromoDepthChange ActionType = "promo_depth_change"
	ActionDelist           ActionType = "delist"
	ActionEnlist           ActionType = "enlist"
	ActionPackSizeChange   ActionType = "pack_size_change"
)

// AffectsKPIs reports whether the engine models the action's effect.
// Other action types only count toward the number of actions in a plan.
func (t ActionType) AffectsKPIs() bool {
	return t == ActionPriceChange || t == ActionDelist
}

// Impact is a projected change in units, revenue and margin.
type Impact struct {
	Units   float64 `json:"units" msgpack:"units"`
	Revenue float64 `json:"revenue" msgpack:"revenue"`
	Margin  float64 `json:"margin" msgpack:"margin"`
}

// IsZero reports whether every component is within tol of zero.
func (i Impact) IsZero(tol float64) bool {
	return math.Abs(i.Units) <= tol && math.Abs(i.Revenue) <= tol && math.Abs(i.Margin) <= tol
}

// Action is one decoded plan instruction with canonical SKU targets.
type Action struct {
	Type           ActionType `json:"action_type" msgpack:"action_type"`
	TargetType     string     `json:"target_type,omitempty" msgpack:"target_type,omitempty"`
	Targets        []SKUID    `json:"ids" msgpack:"ids"`
	MagnitudePct   float64    `json:"magnitude_pct" msgpack:"magnitude_pct"`
	Constraints    []string   `json:"constraints,omitempty" msgpack:"constraints,omitempty"`
	ExpectedImpact *Impact    `json:"expected_impact,omitempty" msgpack:"expected_impact,omitempty"`
	Risks          []string   `json:"risks,omitempty" msgpack:"risks,omitempty"`
	Confidence     float64    `json:"confidence,omitempty" msgpack:"confidence,omitempty"`
	EvidenceRefs   []string   `json:"evidence_refs,omitempty" msgpack:"evidence_refs,omitempty"`
}

// Plan is a named, ordered list of actions. Assumptions and rationale are
// carried through untouched.
type Plan struct {
	ID          string   `json:"id" msgpack:"id"`
	Name        string   `json:"plan_name" msgpack:"plan_name"`
	Assumptions []string `json:"assumptions,omitempty" msgpack:"assumptions,omitempty"`
	Actions     []Action `json:"actions" msgpack:"actions"`
	Rationale   string   `json:"rationale,omitempty" msgpack:"rationale,omitempty"`
}

// RawAction is an action as produced by an external planner.
type RawAction struct {
	Type           string   `json:"action_type"`
	TargetType     string   `json:"target_type"`
	IDs            []RawID  `json:"ids"`
	MagnitudePct   float64  `json:"magnitude_pct"`
	Constraints    []string `json:"constraints"`
	ExpectedImpact *Impact  `json:"expected_impact"`
	Risks          []string `json:"risks"`
	Confidence     float64  `json:"confidence"`
	EvidenceRefs   []string `json:"evidence_refs"`
}

// RawPlan is a plan as produced by an external planner.
type RawPlan struct {
	ID          string      `json:"id"`
	Name        string      `json:"plan_name"`
	Assumptions []string    `json:"assumptions"`
	Actions     []RawAction `json:"actions"`
	Rationale   string      `json:"rationale"`
}

// MalformedTarget records a target id that could not be parsed.
type MalformedTarget struct {
	Action int    `json:"action" msgpack:"action"`
	ID     string `json:"id" msgpack:"id"`
}

// DecodePlan canonicalizes every target id to SKUID. Ids that do not parse
// are left out of the action and reported back so callers can surface them.
// A plan without an id is assigned a random UUID.
func DecodePlan(raw RawPlan) (Plan, []MalformedTarget) {
	plan := Plan{
		ID:          strings.TrimSpace(raw.ID),
		Name:        raw.Name,
		Assumptions: raw.Assumptions,
		Rationale:   raw.Rationale,
		Actions:     make([]Action, 0, len(raw.Actions)),
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}

	var malformed []MalformedTarget
	for i, ra := range raw.Actions {
		a := Action{
			Type:           ActionType(strings.TrimSpace(ra.Type)),
			TargetType:     ra.TargetType,
			Targets:        make([]SKUID, 0, len(ra.IDs)),
			MagnitudePct:   ra.MagnitudePct,
			Constraints:    ra.Constraints,
			ExpectedImpact: ra.ExpectedImpact,
			Risks:          ra.Risks,
			Confidence:     ra.Confidence,
			EvidenceRefs:   ra.EvidenceRefs,
		}
		for _, id := range ra.IDs {
			sku, err := ParseSKUID(string(id))
			if err != nil {
				malformed = append(malformed, MalformedTarget{Action: i, ID: string(id)})
				continue
			}
			a.Targets = append(a.Targets, sku)
		}
		plan.Actions = append(plan.Actions, a)
	}
	return plan, malformed
}

// DecodePlans decodes a batch, returning malformed targets keyed by plan index.
func DecodePlans(raws []RawPlan) ([]Plan, map[int][]MalformedTarget) {
	plans := make([]Plan, len(raws))
	var malformed map[int][]MalformedTarget
	for i, raw := range raws {
		p, bad := DecodePlan(raw)
		plans[i] = p
		if len(bad) > 0 {
			if malformed == nil {
				malformed = make(map[int][]MalformedTarget)
			}
			malformed[i] = bad
		}
	}
	return plans, malformed
}
