package optimize

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/simopt/simopt/sim"
)

// Params tunes a template for one solve.
type Params map[string]float64

// Merge returns p overlaid with override. Neither input is modified.
func (p Params) Merge(override Params) Params {
	out := make(Params, len(p)+len(override))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func (p Params) get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Template turns a snapshot into a model and a solved model back into a
// plan. Build must be a pure function of its inputs.
type Template interface {
	Name() string
	Build(snap *sim.Snapshot, params Params) (*Model, error)
	Decode(snap *sim.Snapshot, params Params, res Result) (sim.Plan, error)
}

// Allocation template parameters.
const (
	ParamAllOrNothing = "all_or_nothing"
	ParamWeightScale  = "weight_scale"
	ParamEpsilon      = "epsilon"
)

// ValidAllocationParams is the set of parameters AllocationTemplate reads.
var ValidAllocationParams = map[string]bool{
	ParamAllOrNothing: true,
	ParamWeightScale:  true,
	ParamEpsilon:      true,
}

const defaultGrantEpsilon = 1e-9

// AllocationTemplate grants waiting demands against free capacity:
//
//	maximize   sum(weight * scale * grant_d)
//	subject to sum(grant_d for d on r) <= free(r)   for each resource r
//	           0 <= grant_d <= amount_d
//
// With all_or_nothing = 1 each demand gets a binary take_d instead and
// grant_d = amount_d * take_d.
type AllocationTemplate struct{}

// TemplateAllocation is the name of AllocationTemplate.
const TemplateAllocation = "allocation"

// ValidTemplates is the set of recognized template names. Empty selects
// TemplateAllocation.
var ValidTemplates = map[string]bool{"": true, TemplateAllocation: true}

// NewTemplate returns the named template.
func NewTemplate(name string) (Template, error) {
	switch name {
	case "", TemplateAllocation:
		return AllocationTemplate{}, nil
	}
	return nil, fmt.Errorf("unknown template %q", name)
}

func (AllocationTemplate) Name() string { return TemplateAllocation }

// ValidateParams rejects unknown keys and out-of-range values.
func (AllocationTemplate) ValidateParams(params Params) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !ValidAllocationParams[k] {
			return fmt.Errorf("unknown template parameter %q; valid options: %s", k, validParamList())
		}
		v := params[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("template parameter %q must be finite, got %g", k, v)
		}
	}
	if v := params.get(ParamAllOrNothing, 0); v != 0 && v != 1 {
		return fmt.Errorf("%s must be 0 or 1, got %g", ParamAllOrNothing, v)
	}
	if v := params.get(ParamWeightScale, 1); v <= 0 {
		return fmt.Errorf("%s must be positive, got %g", ParamWeightScale, v)
	}
	if v := params.get(ParamEpsilon, defaultGrantEpsilon); v < 0 {
		return fmt.Errorf("%s must be non-negative, got %g", ParamEpsilon, v)
	}
	return nil
}

func validParamList() string {
	names := make([]string, 0, len(ValidAllocationParams))
	for k := range ValidAllocationParams {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func grantVar(id string) string { return "grant/" + id }
func takeVar(id string) string  { return "take/" + id }

func (t AllocationTemplate) Build(snap *sim.Snapshot, params Params) (*Model, error) {
	if err := t.ValidateParams(params); err != nil {
		return nil, err
	}
	binary := params.get(ParamAllOrNothing, 0) == 1
	scale := params.get(ParamWeightScale, 1)

	b := NewBuilder(fmt.Sprintf("allocation@%d", snap.Time())).AtTime(snap.Time())
	perResource := make(map[sim.ResourceID]map[string]float64)
	objective := make(map[string]float64)
	for _, d := range snap.Pending() {
		name, coef := grantVar(d.ID), 1.0
		if binary {
			name, coef = takeVar(d.ID), d.Amount
			b.AddVariable(Variable{Name: name, Domain: Binary, Lower: 0, Upper: 1})
		} else {
			b.AddVariable(Variable{Name: name, Domain: Continuous, Lower: 0, Upper: d.Amount})
		}
		if perResource[d.Resource] == nil {
			perResource[d.Resource] = make(map[string]float64)
		}
		perResource[d.Resource][name] = coef
		objective[name] = d.Weight * scale * coef
	}
	for _, r := range snap.Resources() {
		coefs, ok := perResource[r.ID]
		if !ok {
			continue
		}
		b.AddConstraint(Constraint{
			Name:  "capacity/" + string(r.ID),
			Expr:  Linear(coefs, 0),
			Rel:   LE,
			Bound: r.Free(),
		})
	}
	b.SetObjective(Objective{Expr: Linear(objective, 0), Sense: Maximize})
	return b.Build()
}

func (t AllocationTemplate) Decode(snap *sim.Snapshot, params Params, res Result) (sim.Plan, error) {
	if !res.Status.Success() {
		return sim.Plan{}, fmt.Errorf("cannot decode %s result", res.Status)
	}
	binary := params.get(ParamAllOrNothing, 0) == 1
	eps := params.get(ParamEpsilon, defaultGrantEpsilon)

	var plan sim.Plan
	for _, d := range snap.Pending() {
		name := grantVar(d.ID)
		if binary {
			name = takeVar(d.ID)
		}
		v, ok := res.Assignment[name]
		if !ok {
			return sim.Plan{}, fmt.Errorf("result has no value for %q", name)
		}
		amount := v
		if binary {
			amount = math.Round(v) * d.Amount
		}
		if amount <= eps {
			continue
		}
		plan.Grants = append(plan.Grants, sim.Grant{
			Demand:   d.ID,
			Resource: d.Resource,
			Amount:   math.Min(amount, d.Amount),
		})
	}
	return plan, nil
}
