package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rdc-learning-api/internal/models"
)

type stubPendingLister struct {
	items []models.PendingInvoice
	err   error
}

func (s *stubPendingLister) ListPending(ctx context.Context, limit int) ([]models.PendingInvoice, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.items) > limit {
		return s.items[:limit], nil
	}
	return s.items, nil
}

type countingGenerator struct {
	mu       sync.Mutex
	calls    map[string]int
	failures int
}

func (g *countingGenerator) Generate(ctx context.Context, enrollmentID string) (*models.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[enrollmentID]++
	if g.calls[enrollmentID] <= g.failures {
		return nil, errors.New("pdf backend down")
	}
	return &models.Invoice{EnrollmentID: enrollmentID}, nil
}

func (g *countingGenerator) count(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

func newTestReconciler(pending *stubPendingLister, gen *countingGenerator) *InvoiceReconciler {
	return NewInvoiceReconciler(pending, gen, ReconcilerConfig{
		BatchSize:  10,
		Workers:    2,
		MaxRetries: 3,
		RetryDelay: 5 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
	}, NewMetricsService(), nil)
}

func TestReconcileGeneratesPendingInvoices(t *testing.T) {
	pending := &stubPendingLister{items: []models.PendingInvoice{{EnrollmentID: "e1"}, {EnrollmentID: "e2"}}}
	gen := &countingGenerator{calls: map[string]int{}}
	r := newTestReconciler(pending, gen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.queue.Start(ctx)
	defer r.queue.Stop()

	queued, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	require.Eventually(t, func() bool {
		return gen.count("e1") == 1 && gen.count("e2") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReconcileRetriesFailedGeneration(t *testing.T) {
	pending := &stubPendingLister{items: []models.PendingInvoice{{EnrollmentID: "e1"}}}
	gen := &countingGenerator{calls: map[string]int{}, failures: 2}
	r := newTestReconciler(pending, gen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.queue.Start(ctx)
	defer r.queue.Stop()

	_, err := r.Reconcile(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return gen.count("e1") == 3 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, busy := r.inflight.Load("e1")
		return !busy
	}, time.Second, 5*time.Millisecond)
}

func TestReconcileSkipsInflightEntries(t *testing.T) {
	pending := &stubPendingLister{items: []models.PendingInvoice{{EnrollmentID: "e1"}, {EnrollmentID: "e2"}}}
	gen := &countingGenerator{calls: map[string]int{}}
	r := newTestReconciler(pending, gen)
	r.inflight.Store("e1", struct{}{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.queue.Start(ctx)
	defer r.queue.Stop()

	queued, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	require.Eventually(t, func() bool { return gen.count("e2") == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, gen.count("e1"))
}

func TestReconcileListFailure(t *testing.T) {
	r := newTestReconciler(&stubPendingLister{err: errors.New("db down")}, &countingGenerator{calls: map[string]int{}})

	_, err := r.Reconcile(context.Background())
	assert.Error(t, err)
}

func TestReconcilerStartRejectsBadSchedule(t *testing.T) {
	r := NewInvoiceReconciler(&stubPendingLister{}, &countingGenerator{calls: map[string]int{}}, ReconcilerConfig{Schedule: "not a schedule"}, nil, nil)

	err := r.Start(context.Background())
	assert.Error(t, err)
}

func TestReconcilerStartStop(t *testing.T) {
	r := newTestReconciler(&stubPendingLister{}, &countingGenerator{calls: map[string]int{}})
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}

func TestReconcileReleasesEnrollmentWhenRetryIsDropped(t *testing.T) {
	pending := &stubPendingLister{items: []models.PendingInvoice{{EnrollmentID: "e9"}}}
	gen := &countingGenerator{calls: map[string]int{}, failures: 100}
	r := NewInvoiceReconciler(pending, gen, ReconcilerConfig{
		BatchSize:  10,
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: time.Hour,
		MaxDelay:   time.Hour,
	}, NewMetricsService(), nil)

	r.queue.Start(context.Background())
	queued, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, queued)
	require.Eventually(t, func() bool { return gen.count("e9") == 1 }, time.Second, 5*time.Millisecond)

	r.queue.Stop()
	require.Eventually(t, func() bool {
		_, busy := r.inflight.Load("e9")
		return !busy
	}, time.Second, 5*time.Millisecond)
}
