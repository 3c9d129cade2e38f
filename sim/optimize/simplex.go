package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	simplexTol  = 1e-10
	integralTol = 1e-6
)

// SimplexSolver solves linear models with gonum's simplex method. Integer
// and binary variables are solved as their LP relaxation and rounded down;
// the result is then reported as feasible rather than optimal.
//
// The solve itself is not interruptible; ctx is checked before and after.
type SimplexSolver struct{}

// NewSimplexSolver creates a SimplexSolver.
func NewSimplexSolver() *SimplexSolver { return &SimplexSolver{} }

func (s *SimplexSolver) Name() string { return SolverSimplex }

// column maps one model variable onto standard-form columns:
// x = offset + sum(sign[k] * col[k]).
type column struct {
	offset float64
	cols   []int
	signs  []float64
}

type row struct {
	coefs map[int]float64
	rel   Relation
	rhs   float64
}

func (s *SimplexSolver) Solve(ctx context.Context, m *Model) Result {
	if err := ctx.Err(); err != nil {
		return Failure(StatusBackendError, "cancelled before solve: %v", err)
	}
	for _, c := range m.cons {
		if !c.Linear() {
			return Failure(StatusBackendError, "simplex: constraint %q is nonlinear", c.Name)
		}
	}

	// Substitute variables so every structural column is >= 0.
	vars := make([]column, len(m.vars))
	nStruct := 0
	var rows []row
	for i, v := range m.vars {
		switch {
		case !math.IsInf(v.Lower, -1):
			vars[i] = column{offset: v.Lower, cols: []int{nStruct}, signs: []float64{1}}
			nStruct++
			if !math.IsInf(v.Upper, 1) {
				rows = append(rows, row{coefs: map[int]float64{vars[i].cols[0]: 1}, rel: LE, rhs: v.Upper - v.Lower})
			}
		default:
			vars[i] = column{cols: []int{nStruct, nStruct + 1}, signs: []float64{1, -1}}
			nStruct += 2
			if !math.IsInf(v.Upper, 1) {
				rows = append(rows, row{coefs: map[int]float64{vars[i].cols[0]: 1, vars[i].cols[1]: -1}, rel: LE, rhs: v.Upper})
			}
		}
	}
	for _, c := range m.cons {
		r := row{coefs: make(map[int]float64), rel: c.Rel, rhs: c.Bound - c.Expr.Constant}
		for _, t := range c.Expr.Terms {
			col := vars[m.varIndex[t.Var]]
			r.rhs -= t.Coef * col.offset
			for k, j := range col.cols {
				r.coefs[j] += t.Coef * col.signs[k]
			}
		}
		rows = append(rows, r)
	}

	// Minimization form of the objective over structural columns.
	sign := 1.0
	if m.objective.Sense == Maximize {
		sign = -1
	}
	cost := make([]float64, nStruct)
	for _, t := range m.objective.Expr.Terms {
		col := vars[m.varIndex[t.Var]]
		for k, j := range col.cols {
			cost[j] += sign * t.Coef * col.signs[k]
		}
	}

	// Drop rows without coefficients after checking them, then find columns
	// no row touches: those sit at zero unless the objective pulls them to
	// infinity.
	used := make([]bool, nStruct)
	kept := rows[:0]
	for _, r := range rows {
		empty := true
		for j, a := range r.coefs {
			if a != 0 {
				empty = false
				used[j] = true
			}
		}
		if !empty {
			kept = append(kept, r)
			continue
		}
		if !(Constraint{Rel: r.rel, Bound: r.rhs}).Satisfied(nil, simplexTol) {
			return Failure(StatusInfeasible, "simplex: constant constraint 0 %s %g cannot hold", r.rel, r.rhs)
		}
	}
	rows = kept
	active := make([]int, nStruct) // structural column -> LP column, or -1
	nActive := 0
	for j := range active {
		if used[j] {
			active[j] = nActive
			nActive++
			continue
		}
		active[j] = -1
		if cost[j] < 0 {
			return Failure(StatusUnbounded, "simplex: objective is unbounded along an unconstrained variable")
		}
	}

	x := make([]float64, nStruct)
	if len(rows) > 0 {
		sol, err := solveStandardForm(rows, cost, active, nActive)
		if err != nil {
			switch {
			case errors.Is(err, lp.ErrInfeasible):
				return Failure(StatusInfeasible, "%v", err)
			case errors.Is(err, lp.ErrUnbounded):
				return Failure(StatusUnbounded, "%v", err)
			default:
				return Failure(StatusBackendError, "%v", err)
			}
		}
		for j, a := range active {
			if a >= 0 {
				x[j] = sol[a]
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return Failure(StatusBackendError, "cancelled during solve: %v", err)
	}

	values := make(map[string]float64, len(m.vars))
	rounded := false
	for i, v := range m.vars {
		col := vars[i]
		val := col.offset
		for k, j := range col.cols {
			val += col.signs[k] * x[j]
		}
		if v.Domain != Continuous {
			r := math.Round(val)
			if math.Abs(val-r) > integralTol {
				r = math.Floor(val)
				rounded = true
			}
			val = r
		}
		values[v.Name] = val
	}
	status := StatusOptimal
	if rounded {
		status = StatusFeasible
		if err := m.Feasible(values, integralTol); err != nil {
			return Failure(StatusBackendError, "simplex: rounded relaxation is not feasible: %v", err)
		}
	}
	return success(status, m.objective.Expr.Eval(values), values)
}

// solveStandardForm builds min c'x s.t. Ax = b, x >= 0 with one slack per
// inequality row and hands it to lp.Simplex.
func solveStandardForm(rows []row, cost []float64, active []int, nActive int) ([]float64, error) {
	nSlack := 0
	for _, r := range rows {
		if r.rel != EQ {
			nSlack++
		}
	}
	nRows, nCols := len(rows), nActive+nSlack
	if nRows > nCols {
		return nil, fmt.Errorf("simplex: %d equality rows exceed %d columns", nRows, nCols)
	}
	A := mat.NewDense(nRows, nCols, nil)
	b := make([]float64, nRows)
	c := make([]float64, nCols)
	for j, a := range active {
		if a >= 0 {
			c[a] = cost[j]
		}
	}
	slack := nActive
	for i, r := range rows {
		for j, a := range r.coefs {
			if a != 0 {
				A.Set(i, active[j], a)
			}
		}
		switch r.rel {
		case LE:
			A.Set(i, slack, 1)
			slack++
		case GE:
			A.Set(i, slack, -1)
			slack++
		}
		b[i] = r.rhs
		if b[i] < 0 {
			b[i] = -b[i]
			for j := 0; j < nCols; j++ {
				A.Set(i, j, -A.At(i, j))
			}
		}
	}
	_, x, err := lp.Simplex(c, A, b, simplexTol, nil)
	if err != nil {
		return nil, err
	}
	return x[:nActive], nil
}
