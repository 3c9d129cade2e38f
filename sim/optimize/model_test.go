package optimize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_ValidModel(t *testing.T) {
	m, err := NewBuilder("toy").AtTime(42).
		AddVariable(Variable{Name: "x", Lower: 0, Upper: 10}).
		AddVariable(Variable{Name: "b", Domain: Binary, Lower: -5, Upper: 5}).
		AddConstraint(Constraint{Expr: Linear(map[string]float64{"x": 1, "b": 2}, 0), Rel: LE, Bound: 8}).
		SetObjective(Objective{Expr: Linear(map[string]float64{"x": 1}, 0), Sense: Maximize}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "toy", m.Name())
	assert.Equal(t, int64(42), m.SnapshotTime())
	assert.Len(t, m.Variables(), 2)
	b, ok := m.Variable("b")
	require.True(t, ok)
	assert.Equal(t, 0.0, b.Lower, "binary bounds are clamped")
	assert.Equal(t, 1.0, b.Upper)
	assert.Equal(t, "c0", m.Constraints()[0].Name)
	assert.True(t, m.Linear())
}

func TestBuilder_CollectsAllErrors(t *testing.T) {
	_, err := NewBuilder("bad").
		AddVariable(Variable{Name: "x", Lower: 5, Upper: 1}).
		AddVariable(Variable{Name: "y", Domain: "complex"}).
		AddConstraint(Constraint{Name: "c", Expr: Linear(map[string]float64{"z": 1}, 0), Rel: LE, Bound: 1}).
		AddConstraint(Constraint{Name: "d", Rel: "<>", Bound: 1}).
		Build()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"invalid bounds", "unknown domain", "unknown variable \"z\"", "unknown relation", "objective must be set"} {
		assert.Contains(t, msg, want)
	}
}

func TestBuilder_DuplicateNames(t *testing.T) {
	_, err := NewBuilder("dup").
		AddVariable(Variable{Name: "x", Upper: 1}).
		AddVariable(Variable{Name: "x", Upper: 1}).
		SetObjective(Objective{Sense: Minimize}).
		Build()
	assert.ErrorContains(t, err, "duplicate variable")
}

func TestModel_IsImmutable(t *testing.T) {
	b := NewBuilder("imm").
		AddVariable(Variable{Name: "x", Upper: 1}).
		AddConstraint(Constraint{Name: "c", Expr: Linear(map[string]float64{"x": 1}, 0), Rel: LE, Bound: 1}).
		SetObjective(Objective{Expr: Linear(map[string]float64{"x": 1}, 0), Sense: Maximize})
	m, err := b.Build()
	require.NoError(t, err)

	cons := m.Constraints()
	cons[0].Expr.Terms[0].Coef = 99
	vars := m.Variables()
	vars[0].Upper = 99
	b.AddVariable(Variable{Name: "late", Upper: 1})

	assert.Equal(t, 1.0, m.Constraints()[0].Expr.Terms[0].Coef)
	assert.Equal(t, 1.0, m.Variables()[0].Upper)
	assert.Len(t, m.Variables(), 1)
}

func TestModel_Feasible(t *testing.T) {
	m, err := NewBuilder("f").
		AddVariable(Variable{Name: "n", Domain: Integer, Lower: 0, Upper: math.Inf(1)}).
		AddConstraint(Constraint{Name: "cap", Expr: Linear(map[string]float64{"n": 2}, 0), Rel: LE, Bound: 7}).
		AddConstraint(Constraint{Name: "sq", Rel: GE, Bound: 1, Fn: func(v map[string]float64) float64 { return v["n"] * v["n"] }}).
		SetObjective(Objective{Sense: Minimize}).
		Build()
	require.NoError(t, err)
	assert.False(t, m.Linear())

	assert.NoError(t, m.Feasible(map[string]float64{"n": 3}, 1e-9))
	assert.ErrorContains(t, m.Feasible(map[string]float64{"n": 4}, 1e-9), "cap")
	assert.ErrorContains(t, m.Feasible(map[string]float64{"n": 0}, 1e-9), "sq")
	assert.ErrorContains(t, m.Feasible(map[string]float64{"n": 1.5}, 1e-9), "not integral")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		native string
		want   Status
	}{
		{"optimal", StatusOptimal},
		{"OPTIMAL", StatusOptimal},
		{"feasible-suboptimal", StatusFeasible},
		{"Locally Optimal", StatusFeasible},
		{"infeasible", StatusInfeasible},
		{"INFEASIBLE_OR_UNBOUNDED", StatusInfeasible},
		{"dual_infeasible", StatusUnbounded},
		{"time_limit", StatusTimeout},
		{"segfault", StatusBackendError},
		{"", StatusBackendError},
	}
	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.native))
		})
	}
}

func TestStatus_Categories(t *testing.T) {
	assert.True(t, StatusOptimal.Success())
	assert.True(t, StatusFeasible.Success())
	assert.True(t, StatusTimeout.Transient())
	assert.True(t, StatusBackendError.Transient())
	assert.True(t, StatusInfeasible.Modeling())
	assert.True(t, StatusUnbounded.Modeling())
	assert.False(t, StatusInfeasible.Transient())
}
