// Package resolver implements effective-permission resolution: direct role
// assignments, role assignments inherited through nested security-group
// membership, and API permissions, combined into one deduplicated result.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/permscope/permscope/internal/cache"
	"github.com/permscope/permscope/internal/directory"
	"github.com/permscope/permscope/internal/models"
	"github.com/permscope/permscope/internal/retry"
)

// Config is the resolver's bind-at-startup configuration surface.
type Config struct {
	// General fan-out cap for the orchestrator's own parallel fetches and
	// for populating group role assignments.
	MaxDegreeOfParallelism int `mapstructure:"max_degree_of_parallelism"`

	MaxRetryAttempts       int `mapstructure:"max_retry_attempts"`
	RetryDelayMilliseconds int `mapstructure:"retry_delay_ms"`

	// Concurrency budget of the transitive group traversal. Configured
	// independently from MaxDegreeOfParallelism; size the two together.
	MaxConcurrentTransitiveGroupRequests int `mapstructure:"max_concurrent_transitive_group_requests"`

	TransitiveGroupBatchSize        int `mapstructure:"transitive_group_batch_size"`
	DelayBetweenBatchesMilliseconds int `mapstructure:"delay_between_batches_ms"`

	// Overall deadline for one resolution call. Zero disables the
	// timeout; caller-driven cancellation always applies.
	TimeoutMilliseconds int `mapstructure:"timeout_ms"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxDegreeOfParallelism:               8,
		MaxRetryAttempts:                     3,
		RetryDelayMilliseconds:               500,
		MaxConcurrentTransitiveGroupRequests: 4,
		TransitiveGroupBatchSize:             20,
		DelayBetweenBatchesMilliseconds:      250,
		TimeoutMilliseconds:                  120000,
	}
}

func (c Config) RetryConfig() retry.Config {
	cfg := retry.Config{
		MaxAttempts: c.MaxRetryAttempts,
		Delay:       time.Duration(c.RetryDelayMilliseconds) * time.Millisecond,
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return cfg
}

func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.DelayBetweenBatchesMilliseconds) * time.Millisecond
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMilliseconds) * time.Millisecond
}

func (c Config) parallelismOrDefault() int {
	if c.MaxDegreeOfParallelism <= 0 {
		return 8
	}
	return c.MaxDegreeOfParallelism
}

func (c Config) maxConcurrentOrDefault() int {
	if c.MaxConcurrentTransitiveGroupRequests <= 0 {
		return 4
	}
	return c.MaxConcurrentTransitiveGroupRequests
}

func (c Config) batchSizeOrDefault() int {
	if c.TransitiveGroupBatchSize <= 0 {
		return 20
	}
	return c.TransitiveGroupBatchSize
}

// Resolver is the public entry point of the engine. Presentation layers
// consume ResolveIdentity and SearchIdentities and never reach past it into
// the traversal, cache or directory client.
type Resolver struct {
	client directory.Client
	store  cache.Store
	cfg    Config
	retry  retry.Config
	fetch  *fetcher
	groups *TransitiveGroupResolver
}

// New constructs a Resolver. The cache store is injected explicitly so
// tests can substitute an in-memory or disabled cache deterministically.
func New(client directory.Client, store cache.Store, cfg Config) *Resolver {
	if store == nil {
		store = cache.Disabled{}
	}

	retryCfg := cfg.RetryConfig()
	fetch := newFetcher(client, store, retryCfg)
	return &Resolver{
		client: client,
		store:  store,
		cfg:    cfg,
		retry:  retryCfg,
		fetch:  fetch,
		groups: NewTransitiveGroupResolver(client, fetch, retryCfg, cfg),
	}
}

// ResolveIdentity resolves the complete effective permission set of the
// principal with the given object ID.
func (r *Resolver) ResolveIdentity(ctx context.Context, objectID string) (*models.IdentityRoleAssignmentResult, error) {
	if timeout := r.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()

	identity, err := r.fetch.identity(ctx, objectID)
	if err != nil {
		return nil, r.mapError(err)
	}

	var direct []models.RoleAssignment
	var traversal *TraversalResult
	var permissions []models.ApiPermission

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.parallelismOrDefault())

	group.Go(func() error {
		var err error
		direct, err = r.fetch.roleAssignments(groupCtx, objectID)
		return err
	})
	group.Go(func() error {
		var err error
		traversal, err = r.groups.Resolve(groupCtx, identity)
		return err
	})
	group.Go(func() error {
		var err error
		permissions, err = r.fetch.apiPermissions(groupCtx, identity)
		return err
	})

	if err := group.Wait(); err != nil {
		return nil, r.mapError(err)
	}

	// A late cancellation must not leak a fully assembled result.
	if err := ctx.Err(); err != nil {
		return nil, r.mapError(err)
	}

	result := aggregate(*identity, direct, traversal, permissions)

	logrus.WithFields(logrus.Fields{
		"object_id":   objectID,
		"kind":        identity.Kind,
		"groups":      len(result.Groups),
		"assignments": len(result.RoleAssignments),
		"partial":     result.Partial,
		"elapsed":     time.Since(started),
	}).Info("Resolved identity permissions")

	return result, nil
}

// SearchIdentities returns all principals matching the query. Zero, one or
// many matches are all successful outcomes; HasMultipleResults marks the
// ambiguous case for the caller.
func (r *Resolver) SearchIdentities(ctx context.Context, query string) (*models.IdentitySearchResult, error) {
	identities, err := retry.DoValue(ctx, r.retry, "search_principals", func() ([]models.Identity, error) {
		return r.client.SearchPrincipals(ctx, query)
	})
	if err != nil {
		return nil, r.mapError(err)
	}

	return &models.IdentitySearchResult{
		Query:              query,
		Identities:         identities,
		HasMultipleResults: len(identities) > 1,
	}, nil
}

// ClearCache drops every cached directory record.
func (r *Resolver) ClearCache() error {
	return r.store.Clear()
}

// InvalidateIdentity drops all cached records for one principal so the next
// resolution re-reads it from the directory.
func (r *Resolver) InvalidateIdentity(objectID string) {
	for _, kind := range []cache.RecordKind{
		cache.RecordIdentity,
		cache.RecordMemberships,
		cache.RecordRoleAssignments,
		cache.RecordPermissions,
	} {
		r.store.Invalidate(cache.Key{PrincipalID: objectID, Kind: kind})
	}
}

// mapError converts cancellation into the engine's terminal cancellation
// error; everything else propagates as tagged by the directory layer.
func (r *Resolver) mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.ErrResolutionCancelled
	}
	return err
}
