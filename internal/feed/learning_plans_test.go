package feed

import (
	"context"
	"testing"

	"feedsync/internal/models"
	"feedsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearningPlans_CRUDAndSearch(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()
	lp := NewLearningPlans(e.client, e.opts)
	require.NoError(t, lp.Load(ctx))
	assert.Empty(t, lp.Plans())

	assert.True(t, models.IsValidation(lp.Create(ctx, models.LearningPlan{Name: "x"})))
	assert.Zero(t, e.backend.CallCount("POST /api/learningplans"))

	plan := testutil.FakePlan(e.me.ID)
	plan.Name = "Knife Skills"
	require.NoError(t, lp.Create(ctx, plan))
	other := testutil.FakePlan(e.me.ID)
	other.Name = "Baking"
	require.NoError(t, lp.Create(ctx, other))
	require.Len(t, lp.Plans(), 2)

	found := lp.Search("knife")
	require.Len(t, found, 1)
	assert.Equal(t, "Knife Skills", found[0].Name)
	assert.Len(t, lp.Search(""), 2)

	updated := found[0]
	updated.Topics = append(updated.Topics, "dicing")
	require.NoError(t, lp.Update(ctx, updated.ID, updated))
	assert.Len(t, lp.Search("knife")[0].Topics, len(plan.Topics)+1)

	require.NoError(t, lp.Delete(ctx, updated.ID))
	assert.Len(t, lp.Plans(), 1)
}
