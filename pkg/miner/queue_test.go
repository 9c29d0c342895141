package miner_test

import (
	"testing"

	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainPriorityIsDCUM(t *testing.T) {
	q := miner.NewQueues()
	q.PushUpdated(uri.New("/u"))
	q.PushMoved(uri.New("/from"), uri.New("/to"))
	q.PushCreated(uri.New("/c"))
	q.PushDeleted(uri.New("/d"))

	it, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, miner.Deleted, it.Kind)

	it, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, miner.Created, it.Kind)

	it, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, miner.Updated, it.Kind)

	it, ok = q.Next()
	require.True(t, ok)
	assert.Equal(t, miner.Moved, it.Kind)

	_, ok = q.Next()
	assert.False(t, ok)
}

func TestCreatedWinsOverUpdated(t *testing.T) {
	q := miner.NewQueues()
	u := uri.New("/a")
	q.PushUpdated(u)
	q.PushCreated(u)

	assert.Equal(t, 1, q.Pending())
	it, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, miner.Created, it.Kind)
}

func TestUpdatedAfterCreatedIsNoOp(t *testing.T) {
	q := miner.NewQueues()
	u := uri.New("/a")
	q.PushCreated(u)
	q.PushUpdated(u)

	assert.Equal(t, 1, q.Pending())
	it, _ := q.Next()
	assert.Equal(t, miner.Created, it.Kind)
}

func TestDeletedCancelsCreatedAndUpdated(t *testing.T) {
	q := miner.NewQueues()
	u := uri.New("/a")
	q.PushCreated(u)
	q.PushDeleted(u)

	assert.Equal(t, 1, q.Pending())
	it, _ := q.Next()
	assert.Equal(t, miner.Deleted, it.Kind)
}

func TestMovedPurgesBothEndpoints(t *testing.T) {
	q := miner.NewQueues()
	from, to := uri.New("/from"), uri.New("/to")
	q.PushCreated(to)
	q.PushUpdated(from)
	q.PushMoved(from, to)

	assert.Equal(t, 1, q.Pending())
}

func TestRoundTripCreatedThenDeletedEndsEmpty(t *testing.T) {
	q := miner.NewQueues()
	u := uri.New("/a")
	q.PushCreated(u)
	q.PushDeleted(u)
	assert.True(t, q.Empty())
}

func TestRemoveByRootPurgesPrefixedEntries(t *testing.T) {
	q := miner.NewQueues()
	root := uri.New("/data")
	q.PushCreated(uri.New("/data/a.txt"))
	q.PushUpdated(uri.New("/data/sub/b.txt"))
	q.PushDeleted(uri.New("/other/c.txt"))
	q.PushMoved(uri.New("/data/old"), uri.New("/data/new"))

	removed := q.RemoveByRoot(root)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, q.Pending())
}

func TestNoURIAppearsInMoreThanOneQueue(t *testing.T) {
	q := miner.NewQueues()
	u := uri.New("/a")
	q.PushCreated(u)
	q.PushUpdated(u)
	q.PushDeleted(u)
	assert.Equal(t, 1, q.Pending())
}
