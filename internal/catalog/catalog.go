// Package catalog serves the supported pairs and strategies lists used by the
// selector widgets.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-dashboard/internal/cache"
	"trading-dashboard/internal/logging"
	"trading-dashboard/internal/market"
)

const (
	keyPairs      = "pairs"
	keyStrategies = "strategies"
)

// Source fetches the lists from the analysis server.
type Source interface {
	SupportedPairs(ctx context.Context) ([]market.Pair, error)
	Strategies(ctx context.Context) ([]market.Strategy, error)
}

// RemoteCache is the shared cache tier, normally *cache.CacheService.
type RemoteCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type entry struct {
	value   interface{}
	expires time.Time
}

// Service resolves each list from the local copy, then Redis, then the
// analysis server. An expired local copy is served when every tier fails.
type Service struct {
	source Source
	remote RemoteCache
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string]entry

	now func() time.Time
	log zerolog.Logger
}

func NewService(source Source, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = cache.DefaultCatalogTTL
	}
	return &Service{
		source: source,
		ttl:    ttl,
		local:  make(map[string]entry),
		now:    time.Now,
		log:    logging.WithComponent("catalog"),
	}
}

// WithRemote adds the Redis tier
func (s *Service) WithRemote(rc RemoteCache) *Service {
	s.remote = rc
	return s
}

// Pairs returns the supported instruments
func (s *Service) Pairs(ctx context.Context) ([]market.Pair, error) {
	return load(ctx, s, keyPairs, s.source.SupportedPairs)
}

// Strategies returns the backtest strategies
func (s *Service) Strategies(ctx context.Context) ([]market.Strategy, error) {
	return load(ctx, s, keyStrategies, s.source.Strategies)
}

// Invalidate drops the local copies so the next call goes to Redis or upstream
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.local = make(map[string]entry)
	s.mu.Unlock()
}

// Refresh drops both the local copies and the Redis entries, so the next
// call reaches the analysis server. A Redis failure is returned after the
// local copies are gone.
func (s *Service) Refresh(ctx context.Context) error {
	s.Invalidate()
	if s.remote == nil {
		return nil
	}
	var errs []error
	for _, name := range []string{keyPairs, keyStrategies} {
		if err := s.remote.Delete(ctx, cache.CatalogKey(name)); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func load[T any](ctx context.Context, s *Service, name string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	stale, fresh, ok := s.lookupLocal(name)
	if ok && fresh {
		return stale.([]T), nil
	}

	key := cache.CatalogKey(name)
	if s.remote != nil {
		var cached []T
		err := s.remote.GetJSON(ctx, key, &cached)
		if err == nil {
			s.storeLocal(name, cached)
			return cached, nil
		}
		s.log.Debug().Err(err).Str("key", key).Msg("Remote cache lookup failed")
	}

	items, err := fetch(ctx)
	if err != nil {
		if ok {
			s.log.Warn().Err(err).Str("list", name).Msg("Upstream fetch failed, serving stale catalog")
			return stale.([]T), nil
		}
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	s.storeLocal(name, items)
	if s.remote != nil {
		if err := s.remote.SetJSON(ctx, key, items, s.ttl); err != nil {
			s.log.Debug().Err(err).Str("key", key).Msg("Remote cache store failed")
		}
	}
	return items, nil
}

func (s *Service) lookupLocal(name string) (value interface{}, fresh bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.local[name]
	if !ok {
		return nil, false, false
	}
	return e.value, s.now().Before(e.expires), true
}

func (s *Service) storeLocal(name string, value interface{}) {
	s.mu.Lock()
	s.local[name] = entry{value: value, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}
