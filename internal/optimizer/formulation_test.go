package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelstack/internal/menu"
	"fuelstack/internal/mip"
)

func TestBuild(t *testing.T) {
	f, err := Build(exampleCatalog(), menu.NutrientBounds{
		menu.Calories: menu.Between(600, 900),
		menu.Sugars:   menu.AtMost(50),
	})
	require.NoError(t, err)

	assert.Len(t, f.Quantity, 4)
	assert.Len(t, f.Indicators, 4)
	// quantity + three indicators per item
	assert.Equal(t, 16, f.Model.NumVars())
	for _, q := range f.Quantity {
		v := f.Model.Var(q)
		assert.True(t, v.Integer)
		assert.Equal(t, 0.0, v.Lower)
		assert.Equal(t, float64(MaxQuantity), v.Upper)
	}
	assert.Zero(t, f.Cuts())
}

func TestBuild_SugarsUseOwnAggregate(t *testing.T) {
	items := []menu.CandidateItem{
		{ID: 1, Name: "Pancakes", Tier: menu.TierPrimary, Nutrients: menu.Nutrients{CaloriesKcal: 600, TotalCarbohydrate: 90, SugarsG: 10}},
	}
	// Carbohydrate far exceeds the sugar cap; only sugars count toward it.
	set, err := New(mip.NewBranchAndBound()).Run(context.Background(), items, menu.NutrientBounds{
		menu.Calories: menu.Between(500, 700),
		menu.Sugars:   menu.AtMost(20),
	})
	require.NoError(t, err)
	require.Len(t, set.Plans, 1)
	assert.Equal(t, 10.0, set.Plans[0].Totals.SugarsG)
}

func TestBuild_MinimumDirection(t *testing.T) {
	items := exampleCatalog()
	set, err := New(mip.NewBranchAndBound(), WithPlanCount(3)).Run(context.Background(), items, menu.NutrientBounds{
		menu.Calories: menu.Between(600, 1000),
		menu.Protein:  menu.AtLeast(70),
	})
	require.NoError(t, err)
	require.NotEmpty(t, set.Plans)
	for _, p := range set.Plans {
		assert.GreaterOrEqual(t, p.Totals.ProteinG, 70.0)
	}
}

func TestApplyObjective(t *testing.T) {
	f, err := Build(exampleCatalog(), menu.NutrientBounds{menu.Calories: menu.Between(600, 900)})
	require.NoError(t, err)

	ApplyObjective(f, ReuseCounters{roastID: 2}, DefaultReusePenalty)
	terms, maximize := f.Model.Objective()
	require.True(t, maximize)
	require.Len(t, terms, 4)
	assert.InDelta(t, 1495-600, terms[0].Coef, 1e-9)
	assert.InDelta(t, 1442.5, terms[1].Coef, 1e-9)

	// The update is a pure function of its inputs.
	ApplyObjective(f, ReuseCounters{}, DefaultReusePenalty)
	terms, _ = f.Model.Objective()
	assert.InDelta(t, 1495, terms[0].Coef, 1e-9)
}

func TestDiversityTracker(t *testing.T) {
	tr := NewDiversityTracker(DefaultReusePenalty)
	plan := MealPlan{Items: []PlanItem{
		{CandidateItem: menu.CandidateItem{ID: roastID}, Quantity: 2},
		{CandidateItem: menu.CandidateItem{ID: potatoesID}, Quantity: 1},
	}}
	tr.Record(plan)
	snapshot := tr.Counters()
	tr.Record(plan)

	assert.Equal(t, 1, snapshot[roastID], "snapshot is detached from later records")
	assert.Equal(t, ReuseCounters{roastID: 2, potatoesID: 2}, tr.Counters())
	assert.Equal(t, 600.0, tr.Penalty(roastID))
	assert.Zero(t, tr.Penalty(fishID))

	fresh := NewDiversityTracker(DefaultReusePenalty)
	assert.Empty(t, fresh.Counters())
}

func TestAddUniquenessCut(t *testing.T) {
	f, err := Build(exampleCatalog(), menu.NutrientBounds{menu.Calories: menu.Between(600, 750)})
	require.NoError(t, err)
	before := f.Model.NumConstraints()

	AddUniquenessCut(f, Selection{roastID: 1, potatoesID: 1}, 1)
	require.Equal(t, before+1, f.Model.NumConstraints())
	assert.Equal(t, 1, f.Cuts())

	cut := f.Model.Constraint(before)
	assert.Equal(t, mip.LessEq, cut.Sense)
	assert.Equal(t, float64(len(f.Items)-MinPlanDistance), cut.RHS)
	assert.Equal(t, f.Indicators[0][1], cut.Terms[0].Var)
	assert.Equal(t, f.Indicators[1][0], cut.Terms[1].Var)
	assert.Equal(t, f.Indicators[2][1], cut.Terms[2].Var)
	assert.Equal(t, f.Indicators[3][0], cut.Terms[3].Var)
}

func TestAddUniquenessCut_RejectsImpossibleSelections(t *testing.T) {
	f, err := Build(exampleCatalog(), menu.NutrientBounds{menu.Calories: menu.Between(600, 750)})
	require.NoError(t, err)
	before := f.Model.NumConstraints()

	assert.Panics(t, func() { AddUniquenessCut(f, Selection{roastID: 3}, 1) })
	assert.Panics(t, func() { AddUniquenessCut(f, Selection{fishID: -1}, 1) })
	assert.Panics(t, func() { AddUniquenessCut(f, Selection{99: 1}, 1) })
	assert.Equal(t, before, f.Model.NumConstraints())
	assert.Zero(t, f.Cuts())
}

func TestSelection_Distance(t *testing.T) {
	a := Selection{1: 1, 2: 1}
	b := Selection{2: 1, 3: 2}
	assert.Equal(t, 2, a.Distance(b))
	assert.Equal(t, 2, b.Distance(a))
	assert.Zero(t, a.Distance(Selection{1: 1, 2: 1, 4: 0}))
}
