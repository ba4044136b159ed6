package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/pricepack/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BuildTimeout bounds one projection build.
const BuildTimeout = 2 * time.Minute

// Snapshot owns the memoized projection of a Source. Readers share the cached
// projection; Invalidate drops it and the next reader rebuilds it. A reader may
// observe a projection that is stale but internally consistent until the
// rebuild completes.
type Snapshot struct {
	source Source
	window Window
	log    zerolog.Logger

	mu         sync.RWMutex
	proj       *Projection
	epoch      uint64 // bumped by every Invalidate
	generation uint64 // number of completed builds

	group singleflight.Group
}

// NewSnapshot creates a snapshot over source.
func NewSnapshot(source Source, window Window, log zerolog.Logger) *Snapshot {
	return &Snapshot{
		source: source,
		window: window.normalized(),
		log:    log.With().Str("component", "catalog_snapshot").Logger(),
	}
}

// Projection returns the cached projection, building it on first use.
func (s *Snapshot) Projection(ctx context.Context) (*Projection, error) {
	s.mu.RLock()
	p := s.proj
	s.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	// The build runs detached from the first caller so that its cancellation
	// does not fail every caller sharing the flight.
	ch := s.group.DoChan("projection", func() (interface{}, error) {
		s.mu.RLock()
		cached, epoch := s.proj, s.epoch
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), BuildTimeout)
		defer cancel()
		built, err := s.build(buildCtx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		// An Invalidate during the build means the data may have moved under us;
		// hand the result to this caller but do not cache it.
		if s.epoch == epoch {
			s.proj = built
			s.generation++
		}
		return built, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Projection), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached projection.
func (s *Snapshot) Invalidate() {
	s.mu.Lock()
	s.proj = nil
	s.epoch++
	s.mu.Unlock()
	s.log.Info().Msg("Catalog projection invalidated")
}

// Generation counts completed, cached builds.
func (s *Snapshot) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Cached returns the current projection without building one.
func (s *Snapshot) Cached() *Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proj
}

// Refresh compares the source version with the cached projection and
// invalidates on change. It reports whether the cache was dropped.
func (s *Snapshot) Refresh(ctx context.Context) (bool, error) {
	current, err := s.source.Version(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read catalog version: %w", err)
	}
	cached := s.Cached()
	if cached == nil || cached.Version == current {
		return false, nil
	}
	s.log.Info().
		Str("cached", cached.Version.String()).
		Str("current", current.String()).
		Msg("Catalog changed")
	s.Invalidate()
	return true, nil
}

// Source returns the underlying catalog source.
func (s *Snapshot) Source() Source {
	return s.source
}

func (s *Snapshot) build(ctx context.Context) (*Projection, error) {
	start := time.Now()

	version, err := s.source.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog version: %w", err)
	}
	latest, err := s.source.LatestWeek(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest week: %w", err)
	}
	since := s.window.since(latest)

	var ds domain.Dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ds.SKUs, err = s.source.SKUs(gctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Prices, err = s.source.Prices(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		ds.Demand, err = s.source.Demand(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		ds.Costs, err = s.source.Costs(gctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Guardrails, err = s.source.Guardrails(gctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Elasticities, err = s.source.Elasticities(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load catalog tables: %w", err)
	}

	p := BuildProjection(&ds, latest, version, s.window)
	s.log.Info().
		Int("latest_week", latest).
		Int("panel_rows", len(p.Panel)).
		Int("baseline_skus", len(p.Baseline)).
		Dur("elapsed", time.Since(start)).
		Msg("Catalog projection built")
	return p, nil
}
