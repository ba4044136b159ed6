package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aristath/pricepack/internal/domain"
	testutil "github.com/aristath/pricepack/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	snap := NewSnapshot(NewMemoryRepository(testutil.FiveSKUCatalog()), DefaultWindow, zerolog.Nop())

	assert.Nil(t, snap.Cached())
	p1, err := snap.Projection(ctx)
	require.NoError(t, err)
	p2, err := snap.Projection(ctx)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, uint64(1), snap.Generation())

	snap.Invalidate()
	assert.Nil(t, snap.Cached())

	p3, err := snap.Projection(ctx)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, uint64(2), snap.Generation())
}

func TestSnapshot_RefreshDetectsChanges(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(testutil.SingleSKUCatalog())
	snap := NewSnapshot(repo, DefaultWindow, zerolog.Nop())

	changed, err := snap.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "nothing cached yet")

	_, err = snap.Projection(ctx)
	require.NoError(t, err)

	changed, err = snap.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, repo.Replace(ctx, testutil.FiveSKUCatalog()))
	changed, err = snap.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	p, err := snap.Projection(ctx)
	require.NoError(t, err)
	assert.Len(t, p.Baseline, 5)
}

func TestSnapshot_EmptyCatalog(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "catalog")
	defer cleanup()

	snap := NewSnapshot(NewSQLiteRepository(db.Conn(), zerolog.Nop()), DefaultWindow, zerolog.Nop())
	_, err := snap.Projection(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestSnapshot_SQLiteSource(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "catalog")
	defer cleanup()

	ctx := context.Background()
	repo := NewSQLiteRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, repo.Replace(ctx, testutil.FiveSKUCatalog()))

	snap := NewSnapshot(repo, DefaultWindow, zerolog.Nop())
	p, err := snap.Projection(ctx)
	require.NoError(t, err)
	assert.Len(t, p.Panel, 12*2*5)
	assert.Len(t, p.Baseline, 5)
	assert.Equal(t, int64(1), p.Version.Generation)
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	snap := NewSnapshot(NewMemoryRepository(testutil.FiveSKUCatalog()), DefaultWindow, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				snap.Invalidate()
			}
			p, err := snap.Projection(ctx)
			if err == nil && len(p.Baseline) != 5 {
				t.Errorf("inconsistent projection with %d baseline rows", len(p.Baseline))
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

// gatedSource holds SKUs back until release is closed, honouring ctx.
type gatedSource struct {
	*MemoryRepository
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedSource) SKUs(ctx context.Context) ([]domain.SKU, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return g.MemoryRepository.SKUs(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSnapshot_CancelledCallerDoesNotFailTheBuild(t *testing.T) {
	src := &gatedSource{
		MemoryRepository: NewMemoryRepository(testutil.FiveSKUCatalog()),
		started:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	snap := NewSnapshot(src, DefaultWindow, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := snap.Projection(ctx)
		firstErr <- err
	}()

	<-src.started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(src.release)
	p, err := snap.Projection(context.Background())
	require.NoError(t, err)
	assert.Len(t, p.Baseline, 5)
	assert.Equal(t, int32(1), src.calls.Load(), "the shared build keeps running after the first caller leaves")
	assert.Equal(t, uint64(1), snap.Generation())
}
