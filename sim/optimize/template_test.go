package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simopt/simopt/sim"
)

// contendedSnapshot returns a snapshot at t=1 where cpu (capacity 10) has 4
// free and two demands wait for it.
func contendedSnapshot(t *testing.T) *sim.Snapshot {
	t.Helper()
	eng := sim.NewEngine()
	w, err := sim.NewWorld(eng, []sim.ResourceSpec{{ID: "cpu", Capacity: 10}, {ID: "disk", Capacity: 5}})
	require.NoError(t, err)
	for _, d := range []sim.Demand{
		{ID: "base", Resource: "cpu", Amount: 6, Weight: 1, Duration: 100, Arrival: 0},
		{ID: "big", Resource: "cpu", Amount: 5, Weight: 1, Duration: 10, Arrival: 0},
		{ID: "small", Resource: "cpu", Amount: 3, Weight: 2, Duration: 10, Arrival: 1},
	} {
		require.NoError(t, w.Inject(d))
	}
	_, err = eng.Advance(1, nil)
	require.NoError(t, err)
	require.Len(t, w.Snapshot().Pending(), 2)
	return w.Snapshot()
}

func TestAllocationTemplate_Build(t *testing.T) {
	snap := contendedSnapshot(t)
	m, err := AllocationTemplate{}.Build(snap, nil)
	require.NoError(t, err)

	assert.Equal(t, snap.Time(), m.SnapshotTime())
	require.Len(t, m.Variables(), 2)
	v, ok := m.Variable("grant/big")
	require.True(t, ok)
	assert.Equal(t, 5.0, v.Upper)

	cons := m.Constraints()
	require.Len(t, cons, 1, "resources without waiting demands get no row")
	assert.Equal(t, "capacity/cpu", cons[0].Name)
	assert.InDelta(t, 4.0, cons[0].Bound, 1e-12)
	assert.Equal(t, Maximize, m.Objective().Sense)
}

func TestAllocationTemplate_SolveAndDecode(t *testing.T) {
	snap := contendedSnapshot(t)
	tmpl := AllocationTemplate{}

	t.Run("fractional", func(t *testing.T) {
		m, err := tmpl.Build(snap, nil)
		require.NoError(t, err)
		res := NewSimplexSolver().Solve(context.Background(), m)
		require.Equal(t, StatusOptimal, res.Status, res.Message)

		plan, err := tmpl.Decode(snap, nil, res)
		require.NoError(t, err)
		// small has the higher weight and takes 3; big gets the remaining 1.
		require.Len(t, plan.Grants, 2)
		assert.Equal(t, "big", plan.Grants[0].Demand)
		assert.InDelta(t, 1.0, plan.Grants[0].Amount, 1e-6)
		assert.Equal(t, "small", plan.Grants[1].Demand)
		assert.InDelta(t, 3.0, plan.Grants[1].Amount, 1e-6)
		assert.LessOrEqual(t, plan.Total(), 4.0+1e-9)
	})

	t.Run("all or nothing", func(t *testing.T) {
		params := Params{ParamAllOrNothing: 1}
		m, err := tmpl.Build(snap, params)
		require.NoError(t, err)
		res := NewSimplexSolver().Solve(context.Background(), m)
		require.True(t, res.Status.Success(), res.Message)

		plan, err := tmpl.Decode(snap, params, res)
		require.NoError(t, err)
		require.Len(t, plan.Grants, 1)
		assert.Equal(t, "small", plan.Grants[0].Demand)
		assert.Equal(t, 3.0, plan.Grants[0].Amount)
	})

	t.Run("greedy agrees", func(t *testing.T) {
		m, err := tmpl.Build(snap, nil)
		require.NoError(t, err)
		res := NewGreedySolver().Solve(context.Background(), m)
		require.Equal(t, StatusFeasible, res.Status, res.Message)
		plan, err := tmpl.Decode(snap, nil, res)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, plan.Total(), 1e-9)
	})

	t.Run("failed result does not decode", func(t *testing.T) {
		_, err := tmpl.Decode(snap, nil, Failure(StatusInfeasible, "no"))
		assert.Error(t, err)
	})

	t.Run("missing variable does not decode", func(t *testing.T) {
		zero := 0.0
		_, err := tmpl.Decode(snap, nil, Result{Status: StatusOptimal, Objective: &zero, Assignment: map[string]float64{}})
		assert.ErrorContains(t, err, "grant/big")
	})
}

func TestAllocationTemplate_Params(t *testing.T) {
	snap := contendedSnapshot(t)
	tmpl := AllocationTemplate{}

	_, err := tmpl.Build(snap, Params{"bogus": 1})
	assert.ErrorContains(t, err, "unknown template parameter")
	_, err = tmpl.Build(snap, Params{ParamAllOrNothing: 0.5})
	assert.Error(t, err)
	_, err = tmpl.Build(snap, Params{ParamWeightScale: 0})
	assert.Error(t, err)

	m, err := tmpl.Build(snap, Params{ParamWeightScale: 10})
	require.NoError(t, err)
	for _, term := range m.Objective().Expr.Terms {
		if term.Var == "grant/small" {
			assert.Equal(t, 20.0, term.Coef)
		}
	}
}

func TestParams_Merge(t *testing.T) {
	base := Params{ParamEpsilon: 0.1, ParamWeightScale: 2}
	merged := base.Merge(Params{ParamWeightScale: 3})
	assert.Equal(t, Params{ParamEpsilon: 0.1, ParamWeightScale: 3}, merged)
	assert.Equal(t, 2.0, base[ParamWeightScale])
}

func TestAllocationTemplate_EmptySnapshot(t *testing.T) {
	eng := sim.NewEngine()
	w, err := sim.NewWorld(eng, []sim.ResourceSpec{{ID: "cpu", Capacity: 1}})
	require.NoError(t, err)

	m, err := AllocationTemplate{}.Build(w.Snapshot(), nil)
	require.NoError(t, err)
	res := NewSimplexSolver().Solve(context.Background(), m)
	require.Equal(t, StatusOptimal, res.Status)
	plan, err := AllocationTemplate{}.Decode(w.Snapshot(), nil, res)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}
