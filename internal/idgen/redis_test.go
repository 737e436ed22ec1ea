package idgen_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebridge/process-service/internal/idgen"
	"corebridge/process-service/internal/testutil/redistest"
)

func TestRedisSequence(t *testing.T) {
	rdb := redistest.Start(t)
	seq := idgen.NewRedisSequence(rdb, "")
	ctx := context.Background()

	first, err := seq.NextID(ctx)
	require.NoError(t, err)
	second, err := seq.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, first+1, second)

	other := idgen.NewRedisSequence(rdb, "other:seq")
	id, err := other.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}
