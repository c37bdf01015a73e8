package resolver

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/permscope/permscope/internal/cache"
	"github.com/permscope/permscope/internal/directory"
	"github.com/permscope/permscope/internal/models"
	"github.com/permscope/permscope/internal/retry"
)

// fetcher funnels every cached directory lookup through one place:
// cache-first read, single-flight collapse of concurrent misses, bounded
// retry on the remote call, then an atomic whole-entry cache write. The
// orchestrator and the traversal share one fetcher so concurrent workers
// never issue duplicate calls for the same (principal, record kind) key.
type fetcher struct {
	client directory.Client
	store  cache.Store
	retry  retry.Config
	flight singleflight.Group
}

func newFetcher(client directory.Client, store cache.Store, retryCfg retry.Config) *fetcher {
	return &fetcher{client: client, store: store, retry: retryCfg}
}

func (f *fetcher) identity(ctx context.Context, objectID string) (*models.Identity, error) {
	key := cache.Key{PrincipalID: objectID, Kind: cache.RecordIdentity}
	entry, err := f.entry(ctx, key, "get_identity", func() (cache.Entry, error) {
		identity, err := f.client.GetIdentity(ctx, objectID)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{Identity: identity}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry.Identity, nil
}

// memberships returns the direct group memberships of a principal. The
// fetch closure differs between the starting principal (memberOf by kind)
// and group parent expansion, so callers supply it.
func (f *fetcher) memberships(ctx context.Context, principalID string, fetch func(context.Context) ([]string, error)) ([]string, error) {
	key := cache.Key{PrincipalID: principalID, Kind: cache.RecordMemberships}
	entry, err := f.entry(ctx, key, "get_memberships", func() (cache.Entry, error) {
		ids, err := fetch(ctx)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{Memberships: ids}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry.Memberships, nil
}

func (f *fetcher) roleAssignments(ctx context.Context, principalID string) ([]models.RoleAssignment, error) {
	key := cache.Key{PrincipalID: principalID, Kind: cache.RecordRoleAssignments}
	entry, err := f.entry(ctx, key, "get_role_assignments", func() (cache.Entry, error) {
		assignments, err := f.client.GetRoleAssignments(ctx, principalID)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{RoleAssignments: assignments}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry.RoleAssignments, nil
}

func (f *fetcher) apiPermissions(ctx context.Context, identity *models.Identity) ([]models.ApiPermission, error) {
	key := cache.Key{PrincipalID: identity.ObjectID, Kind: cache.RecordPermissions}
	entry, err := f.entry(ctx, key, "get_api_permissions", func() (cache.Entry, error) {
		permissions, err := f.client.GetApiPermissions(ctx, identity)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{Permissions: permissions}, nil
	})
	if err != nil {
		return nil, err
	}
	return entry.Permissions, nil
}

// entry resolves one cache entry. Concurrent misses for the same key
// collapse into a single remote call; its result is shared. The shared
// call runs under the context of whichever caller initiated it, so a
// joining caller honours only its own cancellation: when the flight dies
// with the initiator's context error, a still-live caller re-issues the
// fetch itself.
func (f *fetcher) entry(ctx context.Context, key cache.Key, op string, fetch func() (cache.Entry, error)) (cache.Entry, error) {
	for {
		if entry, ok := f.store.Get(key); ok {
			return entry, nil
		}

		ch := f.flight.DoChan(key.String(), func() (any, error) {
			// Re-check under the flight: a racing worker may have populated
			// the entry while this caller waited its turn.
			if entry, ok := f.store.Get(key); ok {
				return entry, nil
			}

			entry, err := retry.DoValue(ctx, f.retry, op, fetch)
			if err != nil {
				return cache.Entry{}, err
			}

			entry.StoredAt = time.Now()
			f.store.Put(key, entry)
			return entry, nil
		})

		select {
		case <-ctx.Done():
			return cache.Entry{}, ctx.Err()
		case result := <-ch:
			if result.Err != nil {
				// A shared context error belongs to the initiating caller,
				// not to this one.
				if isContextError(result.Err) && ctx.Err() == nil {
					continue
				}
				return cache.Entry{}, result.Err
			}
			return result.Val.(cache.Entry), nil
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
