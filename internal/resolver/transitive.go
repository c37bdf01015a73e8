package resolver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/permscope/permscope/internal/directory"
	"github.com/permscope/permscope/internal/models"
	"github.com/permscope/permscope/internal/retry"
)

// TransitiveGroupResolver discovers the full ancestor-group closure of a
// principal: the groups it belongs to directly, their parents, and so on.
// Traversal is breadth-first with an explicit frontier; a visited set
// guards against cycles and bounds the work to the number of distinct
// groups in the directory.
type TransitiveGroupResolver struct {
	client directory.Client
	fetch  *fetcher
	retry  retry.Config

	maxConcurrent    int64
	batchSize        int
	batchDelay       time.Duration
	rolesParallelism int
}

// TraversalResult is the raw outcome of one traversal. FailedGroupIDs
// enumerates groups that could not be expanded or populated after retries;
// they are omitted from Groups but never silently dropped.
type TraversalResult struct {
	Groups         []models.SecurityGroup
	FailedGroupIDs []string
}

func (t *TraversalResult) Partial() bool {
	return len(t.FailedGroupIDs) > 0
}

// NewTransitiveGroupResolver wires a traversal with its own concurrency
// budget. The budget is configured independently from the orchestrator's
// limits; operators size the two consistently.
func NewTransitiveGroupResolver(client directory.Client, fetch *fetcher, retryCfg retry.Config, cfg Config) *TransitiveGroupResolver {
	return &TransitiveGroupResolver{
		client:           client,
		fetch:            fetch,
		retry:            retryCfg,
		maxConcurrent:    int64(cfg.maxConcurrentOrDefault()),
		batchSize:        cfg.batchSizeOrDefault(),
		batchDelay:       cfg.BatchDelay(),
		rolesParallelism: cfg.parallelismOrDefault(),
	}
}

// Resolve returns the ancestor-group closure of the principal, each group
// populated with its own direct role assignments.
func (t *TransitiveGroupResolver) Resolve(ctx context.Context, principal *models.Identity) (*TraversalResult, error) {
	seeds, err := t.fetch.memberships(ctx, principal.ObjectID, func(ctx context.Context) ([]string, error) {
		return t.client.GetDirectGroupMemberships(ctx, principal)
	})
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool, len(seeds))
	var frontier []string
	for _, id := range seeds {
		if !visited[id] {
			visited[id] = true
			frontier = append(frontier, id)
		}
	}

	// Parent links discovered while expanding; carried into population so
	// each group's memberOf edge is fetched once per traversal.
	parentLinks := make(map[string][]string, len(seeds))

	var failedMu sync.Mutex
	var failed []string

	depth := 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"principal_id": principal.ObjectID,
			"depth":        depth,
			"frontier":     len(frontier),
		}).Debug("Expanding group membership frontier")

		var next []string
		for _, chunk := range chunkIDs(frontier, t.batchSize) {
			discovered, err := t.expandChunk(ctx, chunk, func(groupID string, expandErr error) {
				failedMu.Lock()
				failed = append(failed, groupID)
				failedMu.Unlock()

				logrus.WithError(expandErr).WithField("group_id", groupID).
					Warn("Failed to expand group after retries")
			})
			if err != nil {
				return nil, err
			}

			for groupID, parents := range discovered {
				parentLinks[groupID] = parents
				for _, id := range parents {
					if !visited[id] {
						visited[id] = true
						next = append(next, id)
					}
				}
			}
		}

		frontier = next
		depth++

		// Fixed pause between frontier waves to respect directory rate
		// limits.
		if len(frontier) > 0 && t.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.batchDelay):
			}
		}
	}

	groups, populateFailed, err := t.populateGroups(ctx, visited, failed, parentLinks)
	if err != nil {
		return nil, err
	}
	failed = append(failed, populateFailed...)
	sort.Strings(failed)

	return &TraversalResult{Groups: groups, FailedGroupIDs: failed}, nil
}

// expandChunk fetches the parent memberships of every group in the chunk
// concurrently, bounded by the configured semaphore width, and returns the
// parent IDs keyed by the expanded group. Individual failures are reported
// through onFail and do not abort the traversal.
func (t *TransitiveGroupResolver) expandChunk(ctx context.Context, chunk []string, onFail func(string, error)) (map[string][]string, error) {
	sem := semaphore.NewWeighted(t.maxConcurrent)

	var mu sync.Mutex
	discovered := make(map[string][]string, len(chunk))
	var wg sync.WaitGroup

	for _, groupID := range chunk {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(groupID string) {
			defer wg.Done()
			defer sem.Release(1)

			parents, err := t.fetch.memberships(ctx, groupID, func(ctx context.Context) ([]string, error) {
				return t.client.GetGroupParents(ctx, groupID)
			})
			if err != nil {
				if ctx.Err() == nil {
					onFail(groupID, err)
				}
				return
			}

			mu.Lock()
			discovered[groupID] = parents
			mu.Unlock()
		}(groupID)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return discovered, nil
}

// populateGroups builds the SecurityGroup records for every visited group,
// attaching the parent links discovered during expansion and fetching each
// group's own role assignments lazily through the cache.
func (t *TransitiveGroupResolver) populateGroups(ctx context.Context, visited map[string]bool, alreadyFailed []string, parentLinks map[string][]string) ([]models.SecurityGroup, []string, error) {
	skip := make(map[string]bool, len(alreadyFailed))
	for _, id := range alreadyFailed {
		skip[id] = true
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		if !skip[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	sem := semaphore.NewWeighted(int64(t.rolesParallelism))

	var mu sync.Mutex
	groups := make([]models.SecurityGroup, 0, len(ids))
	var failed []string
	var wg sync.WaitGroup

	for _, groupID := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, nil, err
		}

		wg.Add(1)
		go func(groupID string) {
			defer wg.Done()
			defer sem.Release(1)

			group, err := t.group(ctx, groupID, parentLinks[groupID])
			if err != nil {
				if ctx.Err() == nil {
					mu.Lock()
					failed = append(failed, groupID)
					mu.Unlock()

					logrus.WithError(err).WithField("group_id", groupID).
						Warn("Failed to populate group after retries")
				}
				return
			}

			mu.Lock()
			groups = append(groups, *group)
			mu.Unlock()
		}(groupID)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ObjectID < groups[j].ObjectID
	})
	return groups, failed, nil
}

// group assembles one SecurityGroup record: metadata, the parent links
// carried over from expansion, and the group's own role assignments.
func (t *TransitiveGroupResolver) group(ctx context.Context, groupID string, parents []string) (*models.SecurityGroup, error) {
	group, err := retry.DoValue(ctx, t.retry, "get_group", func() (*models.SecurityGroup, error) {
		return t.client.GetGroup(ctx, groupID)
	})
	if err != nil {
		return nil, err
	}
	group.ParentGroupIDs = parents

	assignments, err := t.fetch.roleAssignments(ctx, groupID)
	if err != nil {
		return nil, err
	}
	group.RoleAssignments = assignments

	return group, nil
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
