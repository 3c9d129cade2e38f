// Package optimize describes optimization models independently of any
// solver, and provides the solvers, result classification and the
// bounded-time invocation used to solve them.
package optimize

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Domain is the value domain of a decision variable.
type Domain string

const (
	Continuous Domain = "continuous"
	Integer    Domain = "integer"
	Binary     Domain = "binary"
)

// Variable is a named decision variable with inclusive bounds. Infinite
// bounds are expressed with math.Inf.
type Variable struct {
	Name   string
	Domain Domain
	Lower  float64
	Upper  float64
}

// Term is a coefficient applied to a variable.
type Term struct {
	Var  string
	Coef float64
}

// Expr is an affine expression: sum of terms plus a constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Linear builds an expression from variable coefficients. Terms are sorted
// by variable name.
func Linear(coefs map[string]float64, constant float64) Expr {
	names := make([]string, 0, len(coefs))
	for n := range coefs {
		names = append(names, n)
	}
	sort.Strings(names)
	terms := make([]Term, 0, len(names))
	for _, n := range names {
		terms = append(terms, Term{Var: n, Coef: coefs[n]})
	}
	return Expr{Terms: terms, Constant: constant}
}

// Eval evaluates the expression; missing variables count as zero.
func (e Expr) Eval(values map[string]float64) float64 {
	sum := e.Constant
	for _, t := range e.Terms {
		sum += t.Coef * values[t.Var]
	}
	return sum
}

func (e Expr) clone() Expr {
	terms := make([]Term, len(e.Terms))
	copy(terms, e.Terms)
	return Expr{Terms: terms, Constant: e.Constant}
}

// Relation compares a constraint's left-hand side with its bound.
type Relation string

const (
	LE Relation = "<="
	GE Relation = ">="
	EQ Relation = "="
)

// Constraint is Expr Rel Bound. When Fn is set the constraint is nonlinear
// and Fn replaces Expr as the left-hand side; only solvers that evaluate
// points (greedy) accept such constraints.
type Constraint struct {
	Name  string
	Expr  Expr
	Rel   Relation
	Bound float64
	Fn    func(values map[string]float64) float64
}

// Linear reports whether the constraint is affine.
func (c Constraint) Linear() bool { return c.Fn == nil }

// LHS evaluates the left-hand side at values.
func (c Constraint) LHS(values map[string]float64) float64 {
	if c.Fn != nil {
		return c.Fn(values)
	}
	return c.Expr.Eval(values)
}

// Satisfied reports whether values meet the constraint within tol.
func (c Constraint) Satisfied(values map[string]float64, tol float64) bool {
	lhs := c.LHS(values)
	switch c.Rel {
	case LE:
		return lhs <= c.Bound+tol
	case GE:
		return lhs >= c.Bound-tol
	default:
		return math.Abs(lhs-c.Bound) <= tol
	}
}

// Sense is the optimization direction.
type Sense string

const (
	Minimize Sense = "minimize"
	Maximize Sense = "maximize"
)

// Objective is the expression to optimize.
type Objective struct {
	Expr  Expr
	Sense Sense
}

// Model is an immutable optimization problem. Build one with a Builder.
type Model struct {
	name         string
	snapshotTime int64
	vars         []Variable
	varIndex     map[string]int
	cons         []Constraint
	objective    Objective
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// SnapshotTime returns the logical time of the snapshot the model was built
// from.
func (m *Model) SnapshotTime() int64 { return m.snapshotTime }

// Variables returns the variables in declaration order.
func (m *Model) Variables() []Variable {
	out := make([]Variable, len(m.vars))
	copy(out, m.vars)
	return out
}

// Variable looks up a variable by name.
func (m *Model) Variable(name string) (Variable, bool) {
	i, ok := m.varIndex[name]
	if !ok {
		return Variable{}, false
	}
	return m.vars[i], true
}

// Constraints returns the constraints in declaration order.
func (m *Model) Constraints() []Constraint {
	out := make([]Constraint, len(m.cons))
	for i, c := range m.cons {
		c.Expr = c.Expr.clone()
		out[i] = c
	}
	return out
}

// Objective returns the objective.
func (m *Model) Objective() Objective {
	return Objective{Expr: m.objective.Expr.clone(), Sense: m.objective.Sense}
}

// Linear reports whether every constraint is affine.
func (m *Model) Linear() bool {
	for _, c := range m.cons {
		if !c.Linear() {
			return false
		}
	}
	return true
}

// Feasible checks bounds, domains and constraints at values within tol.
// It returns nil or an error naming the first violation.
func (m *Model) Feasible(values map[string]float64, tol float64) error {
	for _, v := range m.vars {
		x := values[v.Name]
		if x < v.Lower-tol || x > v.Upper+tol {
			return fmt.Errorf("variable %q = %g outside [%g, %g]", v.Name, x, v.Lower, v.Upper)
		}
		if v.Domain != Continuous && math.Abs(x-math.Round(x)) > tol {
			return fmt.Errorf("variable %q = %g is not integral", v.Name, x)
		}
	}
	for _, c := range m.cons {
		if !c.Satisfied(values, tol) {
			return fmt.Errorf("constraint %q violated: %g %s %g", c.Name, c.LHS(values), c.Rel, c.Bound)
		}
	}
	return nil
}

// String renders a compact human-readable form of the model.
func (m *Model) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "model %s @%d: %d vars, %d constraints, %s",
		m.name, m.snapshotTime, len(m.vars), len(m.cons), m.objective.Sense)
	return sb.String()
}

// Builder assembles a Model. Errors are collected and reported by Build.
type Builder struct {
	name    string
	at      int64
	vars    []Variable
	index   map[string]int
	cons    []Constraint
	obj     *Objective
	errs    []error
	consIDs map[string]bool
}

// NewBuilder starts a model with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:    name,
		index:   make(map[string]int),
		consIDs: make(map[string]bool),
	}
}

// AtTime records the snapshot time the model is built from.
func (b *Builder) AtTime(t int64) *Builder {
	b.at = t
	return b
}

// AddVariable declares a variable. Binary variables have their bounds
// clamped to [0, 1].
func (b *Builder) AddVariable(v Variable) *Builder {
	if v.Name == "" {
		b.errs = append(b.errs, errors.New("variable name must be set"))
		return b
	}
	if _, dup := b.index[v.Name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate variable %q", v.Name))
		return b
	}
	switch v.Domain {
	case "":
		v.Domain = Continuous
	case Continuous, Integer:
	case Binary:
		v.Lower = math.Max(v.Lower, 0)
		v.Upper = math.Min(v.Upper, 1)
	default:
		b.errs = append(b.errs, fmt.Errorf("variable %q: unknown domain %q", v.Name, v.Domain))
		return b
	}
	if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || v.Lower > v.Upper {
		b.errs = append(b.errs, fmt.Errorf("variable %q: invalid bounds [%g, %g]", v.Name, v.Lower, v.Upper))
		return b
	}
	b.index[v.Name] = len(b.vars)
	b.vars = append(b.vars, v)
	return b
}

// AddConstraint declares a constraint. Unnamed constraints get "c<n>".
func (b *Builder) AddConstraint(c Constraint) *Builder {
	if c.Name == "" {
		c.Name = fmt.Sprintf("c%d", len(b.cons))
	}
	if b.consIDs[c.Name] {
		b.errs = append(b.errs, fmt.Errorf("duplicate constraint %q", c.Name))
		return b
	}
	switch c.Rel {
	case LE, GE, EQ:
	default:
		b.errs = append(b.errs, fmt.Errorf("constraint %q: unknown relation %q", c.Name, c.Rel))
		return b
	}
	if math.IsNaN(c.Bound) || math.IsInf(c.Bound, 0) {
		b.errs = append(b.errs, fmt.Errorf("constraint %q: bound must be finite", c.Name))
		return b
	}
	c.Expr = c.Expr.clone()
	b.consIDs[c.Name] = true
	b.cons = append(b.cons, c)
	return b
}

// SetObjective sets the objective, replacing any previous one.
func (b *Builder) SetObjective(o Objective) *Builder {
	o.Expr = o.Expr.clone()
	b.obj = &o
	return b
}

// Build validates references and returns the immutable model.
func (b *Builder) Build() (*Model, error) {
	errs := append([]error(nil), b.errs...)
	if b.name == "" {
		errs = append(errs, errors.New("model name must be set"))
	}
	if b.obj == nil {
		errs = append(errs, errors.New("objective must be set"))
	} else {
		if b.obj.Sense != Minimize && b.obj.Sense != Maximize {
			errs = append(errs, fmt.Errorf("unknown objective sense %q", b.obj.Sense))
		}
		errs = append(errs, b.checkRefs("objective", b.obj.Expr)...)
	}
	for _, c := range b.cons {
		errs = append(errs, b.checkRefs("constraint "+c.Name, c.Expr)...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("building model %q: %w", b.name, err)
	}
	vars := make([]Variable, len(b.vars))
	copy(vars, b.vars)
	index := make(map[string]int, len(b.index))
	for k, v := range b.index {
		index[k] = v
	}
	cons := make([]Constraint, len(b.cons))
	copy(cons, b.cons)
	return &Model{
		name:         b.name,
		snapshotTime: b.at,
		vars:         vars,
		varIndex:     index,
		cons:         cons,
		objective:    Objective{Expr: b.obj.Expr.clone(), Sense: b.obj.Sense},
	}, nil
}

func (b *Builder) checkRefs(where string, e Expr) []error {
	var errs []error
	for _, t := range e.Terms {
		if _, ok := b.index[t.Var]; !ok {
			errs = append(errs, fmt.Errorf("%s references unknown variable %q", where, t.Var))
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			errs = append(errs, fmt.Errorf("%s: coefficient of %q must be finite", where, t.Var))
		}
	}
	return errs
}
