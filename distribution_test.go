package rethinkdb_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mukteshkrmishra/rethinkdb"
	testutils "github.com/mukteshkrmishra/rethinkdb/test_utils"
)

func TestDistributionEmptyTree(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})

	resp, err := store.DistributionGet(context.Background(), 4)
	assert.NoError(t, err)
	assert.Empty(t, resp.Splits)
	assert.Empty(t, resp.KeyCounts)
	assert.Equal(t, int64(0), resp.KeysPerBucket)
}

func TestDistributionSplitsAndCounts(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	const n = 100
	for i := 0; i < n; i++ {
		doc := testutils.Doc("id", fmt.Sprintf("doc%03d", i))
		_, err := store.Insert(ctx, doc, false)
		assert.NoError(t, err)
	}

	resp, err := store.DistributionGet(ctx, 4)
	assert.NoError(t, err)
	assert.Len(t, resp.Splits, 4)
	for i := 1; i < len(resp.Splits); i++ {
		assert.Negative(t, resp.Splits[i-1].Compare(resp.Splits[i]))
	}
	// total / number-of-splits, integer division kept as is.
	assert.Equal(t, int64(n/4), resp.KeysPerBucket)
	assert.Len(t, resp.KeyCounts, 5)
	for at, count := range resp.KeyCounts {
		assert.Equal(t, resp.KeysPerBucket, count, "bucket at %q", at)
	}
}

func TestDistributionSparseTreeNeverEmptyBuckets(t *testing.T) {
	store := testutils.OpenScratchStore(t, rethinkdb.Options{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Insert(ctx, testutils.Doc("id", id), false)
		assert.NoError(t, err)
	}

	resp, err := store.DistributionGet(ctx, 8)
	assert.NoError(t, err)
	// Too few keys to sample a split: the single bucket holds everything.
	assert.Empty(t, resp.Splits)
	assert.Equal(t, int64(3), resp.KeysPerBucket)
	assert.GreaterOrEqual(t, resp.KeysPerBucket, int64(1))
	for _, count := range resp.KeyCounts {
		assert.GreaterOrEqual(t, count, int64(1))
	}
}
