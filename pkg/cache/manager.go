// Package cache decides, per rollup scope, whether the stored artifact is
// fresh enough to serve or must be cleared and regenerated.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nickray/healthlake/pkg/blob"
	"github.com/nickray/healthlake/pkg/config"
	"github.com/nickray/healthlake/pkg/rollup"
)

// Generator produces the rollup for a scope and persists it at the scope's
// results key. Satisfied by *rollup.Generator.
type Generator interface {
	Generate(ctx context.Context, scope rollup.Scope) ([]byte, error)
}

type state int

const (
	stateFresh state = iota
	stateStaleButYoung
	stateStaleRegenerate
)

const lockStripes = 64

// Manager is the cache freshness policy. Source data syncs with delay, so a
// rollup generated too soon after its period's end might be missing
// late-arriving points: such entries are provisionally stale and get
// regenerated, at most once per hour, until enough wall-clock time has
// passed since the period closed.
type Manager struct {
	store     blob.Store
	generator Generator
	loc       *time.Location

	now   func() time.Time
	locks [lockStripes]sync.Mutex
}

// NewManager creates a cache manager. loc is the reference timezone for
// period-end arithmetic.
func NewManager(store blob.Store, generator Generator, loc *time.Location) *Manager {
	return &Manager{
		store:     store,
		generator: generator,
		loc:       loc,
		now:       time.Now,
	}
}

// Fetch returns the scope's rollup JSON, serving the cached artifact when
// the policy allows and clearing + regenerating otherwise. At most one
// regeneration per scope proceeds at a time; concurrent readers of the same
// scope wait and observe the new value.
func (m *Manager) Fetch(ctx context.Context, scope rollup.Scope) ([]byte, error) {
	lock := &m.locks[xxhash.Sum64String(scope.ResultsKey())%lockStripes]
	lock.Lock()
	defer lock.Unlock()

	obj, err := m.store.Get(ctx, scope.ResultsKey())
	if errors.Is(err, blob.ErrNotFound) {
		log.Printf("Cache miss for %s, generating", scope)
		return m.generator.Generate(ctx, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache for %s: %w", scope, err)
	}

	switch m.state(scope, obj.LastModified) {
	case stateStaleRegenerate:
		log.Printf("Cache entry for %s is provisionally stale, regenerating", scope)
		if err := m.Clear(ctx, scope); err != nil {
			return nil, err
		}
		return m.generator.Generate(ctx, scope)
	default:
		return obj.Body, nil
	}
}

// state evaluates the freshness policy for an entry generated at genTime.
func (m *Manager) state(scope rollup.Scope, genTime time.Time) state {
	now := m.now()

	periodEnd, ok := scope.PeriodEnd(m.loc)
	if !ok {
		// Global scope: freshness depends only on entry age.
		age := now.Sub(genTime)
		if age > config.GlobalMaxAge {
			if age < config.RegenerateGuard {
				return stateStaleButYoung
			}
			return stateStaleRegenerate
		}
		return stateFresh
	}

	// An entry generated well after its data window closed has seen every
	// late sync and never goes stale.
	if genTime.Sub(periodEnd) >= config.StaleWindow {
		return stateFresh
	}
	if now.Sub(genTime) < config.RegenerateGuard {
		return stateStaleButYoung
	}
	return stateStaleRegenerate
}

// Clear deletes every object under the scope's prefix, then the canonical
// results key. Clearing a scope that was never generated is an error;
// callers that may race first generation must tolerate it.
func (m *Manager) Clear(ctx context.Context, scope rollup.Scope) error {
	keys, err := m.store.List(ctx, scope.Prefix())
	if err != nil {
		return fmt.Errorf("failed to list %s for clearing: %w", scope, err)
	}
	if len(keys) == 0 {
		return fmt.Errorf("no objects to clear for %s", scope)
	}

	for _, key := range keys {
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear %q: %w", key, err)
		}
	}
	return m.store.Delete(ctx, scope.ResultsKey())
}
