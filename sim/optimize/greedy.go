package optimize

import (
	"context"
	"math"
	"sort"
)

// GreedySolver is a ratio-ordered fractional heuristic for packing models:
// every linear constraint must be <= with non-negative coefficients. It
// starts from the lower bounds and raises variables in order of objective
// gain per unit of constraint weight until a bound or constraint binds.
// Nonlinear constraints are checked after each step and the step is undone
// on violation. Results are reported as feasible, never optimal.
type GreedySolver struct{}

// NewGreedySolver creates a GreedySolver.
func NewGreedySolver() *GreedySolver { return &GreedySolver{} }

func (g *GreedySolver) Name() string { return SolverGreedy }

type greedyCandidate struct {
	idx   int
	gain  float64
	ratio float64
}

func (g *GreedySolver) Solve(ctx context.Context, m *Model) Result {
	var linear []Constraint
	nonlinear := 0
	for _, c := range m.cons {
		if !c.Linear() {
			nonlinear++
			continue
		}
		if c.Rel != LE {
			return Failure(StatusBackendError, "greedy: constraint %q uses %s, only <= is supported", c.Name, c.Rel)
		}
		for _, t := range c.Expr.Terms {
			if t.Coef < 0 {
				return Failure(StatusBackendError, "greedy: constraint %q has negative coefficient on %q", c.Name, t.Var)
			}
		}
		linear = append(linear, c)
	}

	values := make(map[string]float64, len(m.vars))
	for _, v := range m.vars {
		if math.IsInf(v.Lower, -1) {
			return Failure(StatusBackendError, "greedy: variable %q has no finite lower bound", v.Name)
		}
		values[v.Name] = v.Lower
	}
	if err := m.Feasible(values, integralTol); err != nil {
		return Failure(StatusInfeasible, "greedy: lower-bound point is infeasible: %v", err)
	}

	sign := 1.0
	if m.objective.Sense == Minimize {
		sign = -1
	}
	gains := make(map[string]float64)
	for _, t := range m.objective.Expr.Terms {
		gains[t.Var] += sign * t.Coef
	}
	weight := make(map[string]float64)
	for _, c := range linear {
		for _, t := range c.Expr.Terms {
			weight[t.Var] += t.Coef
		}
	}

	var cands []greedyCandidate
	for i, v := range m.vars {
		gain := gains[v.Name]
		if gain <= 0 || v.Upper <= v.Lower {
			continue
		}
		if math.IsInf(v.Upper, 1) && weight[v.Name] == 0 {
			if nonlinear == 0 {
				return Failure(StatusUnbounded, "greedy: variable %q improves the objective without limit", v.Name)
			}
			return Failure(StatusBackendError, "greedy: variable %q is bounded only by nonlinear constraints", v.Name)
		}
		ratio := math.Inf(1)
		if weight[v.Name] > 0 {
			ratio = gain / weight[v.Name]
		}
		cands = append(cands, greedyCandidate{idx: i, gain: gain, ratio: ratio})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].ratio != cands[j].ratio {
			return cands[i].ratio > cands[j].ratio
		}
		return m.vars[cands[i].idx].Name < m.vars[cands[j].idx].Name
	})

	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			return Failure(StatusBackendError, "cancelled: %v", err)
		}
		v := m.vars[cand.idx]
		step := v.Upper - values[v.Name]
		for _, c := range linear {
			coef := 0.0
			for _, t := range c.Expr.Terms {
				if t.Var == v.Name {
					coef += t.Coef
				}
			}
			if coef > 0 {
				step = math.Min(step, (c.Bound-c.Expr.Eval(values))/coef)
			}
		}
		if v.Domain != Continuous {
			step = math.Floor(step + integralTol)
		}
		if step <= 0 {
			continue
		}
		prev := values[v.Name]
		values[v.Name] = prev + step
		if nonlinear > 0 && m.Feasible(values, integralTol) != nil {
			values[v.Name] = prev
		}
	}
	return success(StatusFeasible, m.objective.Expr.Eval(values), values)
}
