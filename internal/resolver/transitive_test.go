package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permscope/permscope/internal/cache"
	"github.com/permscope/permscope/internal/models"
)

func newTestTraversal(dir *fakeDirectory, cfg Config) *TransitiveGroupResolver {
	retryCfg := cfg.RetryConfig()
	fetch := newFetcher(dir, cache.Disabled{}, retryCfg)
	return NewTransitiveGroupResolver(dir, fetch, retryCfg, cfg)
}

func TestTraversal_DeepNesting(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("user-1", "Ada Lovelace")
	dir.addGroup("group-1", "Level 1", "group-2")
	dir.addGroup("group-2", "Level 2", "group-3")
	dir.addGroup("group-3", "Level 3")
	dir.memberships["user-1"] = []string{"group-1"}
	dir.assignments["group-3"] = []models.RoleAssignment{{ID: "ra-3", RoleName: "Reader", PrincipalID: "group-3"}}

	traversal := newTestTraversal(dir, testResolverConfig())
	principal := models.Identity{ObjectID: "user-1", Kind: models.IdentityKindUser}

	result, err := traversal.Resolve(context.Background(), &principal)
	require.NoError(t, err)

	require.Len(t, result.Groups, 3)
	assert.False(t, result.Partial())

	// Each group carries its own assignments and parent links.
	byID := map[string]models.SecurityGroup{}
	for _, group := range result.Groups {
		byID[group.ObjectID] = group
	}
	assert.Equal(t, []string{"group-2"}, byID["group-1"].ParentGroupIDs)
	assert.Len(t, byID["group-3"].RoleAssignments, 1)
}

func TestTraversal_DiamondVisitsEachGroupOnce(t *testing.T) {
	// user -> a, b; both a and b nest under c.
	dir := newFakeDirectory()
	dir.addUser("user-1", "Ada Lovelace")
	dir.addGroup("group-a", "A", "group-c")
	dir.addGroup("group-b", "B", "group-c")
	dir.addGroup("group-c", "C")
	dir.memberships["user-1"] = []string{"group-a", "group-b"}

	traversal := newTestTraversal(dir, testResolverConfig())
	principal := models.Identity{ObjectID: "user-1", Kind: models.IdentityKindUser}

	result, err := traversal.Resolve(context.Background(), &principal)
	require.NoError(t, err)

	require.Len(t, result.Groups, 3)
	assert.Equal(t, 1, dir.callCount("get_group", "group-c"),
		"a group reachable through two paths is materialized once")
}

func TestTraversal_ParentsFetchedOncePerGroupWithoutCache(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("user-1", "Ada Lovelace")
	dir.addGroup("group-1", "Level 1", "group-2")
	dir.addGroup("group-2", "Level 2")
	dir.memberships["user-1"] = []string{"group-1"}

	// Disabled cache: population must reuse the parent links found during
	// expansion instead of asking the directory again.
	traversal := newTestTraversal(dir, testResolverConfig())
	principal := models.Identity{ObjectID: "user-1", Kind: models.IdentityKindUser}

	result, err := traversal.Resolve(context.Background(), &principal)
	require.NoError(t, err)
	require.Len(t, result.Groups, 2)

	assert.Equal(t, 1, dir.callCount("get_parents", "group-1"))
	assert.Equal(t, 1, dir.callCount("get_parents", "group-2"))
}

func TestTraversal_SmallBatchSize(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("user-1", "Ada Lovelace")
	groups := []string{"group-1", "group-2", "group-3", "group-4", "group-5"}
	for _, id := range groups {
		dir.addGroup(id, id)
	}
	dir.memberships["user-1"] = groups

	cfg := testResolverConfig()
	cfg.TransitiveGroupBatchSize = 2
	cfg.MaxConcurrentTransitiveGroupRequests = 1

	traversal := newTestTraversal(dir, cfg)
	principal := models.Identity{ObjectID: "user-1", Kind: models.IdentityKindUser}

	result, err := traversal.Resolve(context.Background(), &principal)
	require.NoError(t, err)
	assert.Len(t, result.Groups, len(groups))
}

func TestTraversal_CancelMidFlight(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("user-1", "Ada Lovelace")
	dir.addGroup("group-a", "A")
	dir.memberships["user-1"] = []string{"group-a"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	traversal := newTestTraversal(dir, testResolverConfig())
	principal := models.Identity{ObjectID: "user-1", Kind: models.IdentityKindUser}

	result, err := traversal.Resolve(ctx, &principal)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestTraversal_BatchDelayHonoursCancellation(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("user-1", "Ada Lovelace")
	dir.addGroup("group-a", "A", "group-b")
	dir.addGroup("group-b", "B")
	dir.memberships["user-1"] = []string{"group-a"}

	cfg := testResolverConfig()
	cfg.DelayBetweenBatchesMilliseconds = 60000 // would stall for a minute

	traversal := newTestTraversal(dir, cfg)
	principal := models.Identity{ObjectID: "user-1", Kind: models.IdentityKindUser}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := traversal.Resolve(ctx, &principal)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second,
		"cancellation must interrupt the inter-batch delay")
}

func TestChunkIDs(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	chunks := chunkIDs(ids, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b"}, chunks[0])
	assert.Equal(t, []string{"c", "d"}, chunks[1])
	assert.Equal(t, []string{"e"}, chunks[2])

	assert.Len(t, chunkIDs(ids, 10), 1)
	assert.Len(t, chunkIDs(ids, 0), 1, "a non-positive size degrades to a single chunk")
	assert.Nil(t, chunkIDs(nil, 3))
}
