package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizsync/internal/domain"
)

func TestKVStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewKVStore()

	var missing domain.ResultLog
	ok, err := store.GetJSON(ctx, "scores", &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	log := domain.ResultLog{{UserID: "u1", Score: 80, Grade: domain.GradeB}}
	require.NoError(t, store.SetJSON(ctx, "scores", log))

	var got domain.ResultLog
	ok, err = store.GetJSON(ctx, "scores", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", got[0].UserID)

	// stored values are copies
	got[0].Score = 0
	var again domain.ResultLog
	_, _ = store.GetJSON(ctx, "scores", &again)
	assert.Equal(t, 80, again[0].Score)

	require.NoError(t, store.Delete(ctx, "scores"))
	ok, _ = store.GetJSON(ctx, "scores", &again)
	assert.False(t, ok)
}
