package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// failingPool always returns an error on Submit to simulate producer error.
type failingPool struct{ closed bool }

func (f *failingPool) Start(ctx context.Context) {}
func (f *failingPool) Submit(job Job) error      { return errors.New("submit failed") }
func (f *failingPool) SubmitCtx(ctx context.Context, job Job) error {
	return errors.New("submit failed")
}
func (f *failingPool) Close() { f.closed = true }

func TestIngestAllHandlesSubmitError(t *testing.T) {
	store := &memStore{}
	ingester := NewIngester(&fakeSource{docs: map[string]string{}}, store)
	pool := &failingPool{}
	// Inject failing pool so first Submit() returns an error
	ingester.PoolFactory = func(workers, queue int) WorkerPoolInterface { return pool }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	results, err := ingester.IngestAll(ctx, []string{"http://a", "http://b"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "submit failed")
	require.True(t, pool.closed)
	require.Len(t, results, 2)
	for _, r := range results {
		require.ErrorIs(t, r.Err, ErrNotProcessed)
	}
	require.Empty(t, store.saved)
}
