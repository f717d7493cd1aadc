package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/rdc-learning-api/internal/models"
	"github.com/noah-isme/rdc-learning-api/pkg/jobs"
)

const invoiceJobType = "invoice.generate"

type pendingInvoiceLister interface {
	ListPending(ctx context.Context, limit int) ([]models.PendingInvoice, error)
}

// ReconcilerConfig tunes the invoice reconciliation schedule and worker pool.
type ReconcilerConfig struct {
	Schedule    string
	BatchSize   int
	Workers     int
	MaxRetries  int
	RetryDelay  time.Duration
	MaxDelay    time.Duration
	QueueBuffer int
}

// InvoiceReconciler periodically re-drives invoices for committed enrollments whose follow-up
// generation failed or never ran.
type InvoiceReconciler struct {
	pending   pendingInvoiceLister
	generator invoiceGenerator
	queue     *jobs.Queue
	scheduler *cron.Cron
	schedule  string
	batchSize int
	metrics   *MetricsService
	logger    *zap.Logger

	inflight sync.Map
}

// NewInvoiceReconciler wires the cron schedule to an in-memory retrying queue.
func NewInvoiceReconciler(pending pendingInvoiceLister, generator invoiceGenerator, cfg ReconcilerConfig, metrics *MetricsService, logger *zap.Logger) *InvoiceReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	if cfg.QueueBuffer <= 0 {
		cfg.QueueBuffer = cfg.BatchSize
	}

	r := &InvoiceReconciler{
		pending:   pending,
		generator: generator,
		scheduler: cron.New(),
		schedule:  cfg.Schedule,
		batchSize: cfg.BatchSize,
		metrics:   metrics,
		logger:    logger,
	}
	r.queue = jobs.NewQueue("invoices", r.handle, jobs.QueueConfig{
		Workers:     cfg.Workers,
		BufferSize:  cfg.QueueBuffer,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		MaxDelay:    cfg.MaxDelay,
		OnExhausted: r.exhausted,
		Logger:      logger,
	})
	return r
}

// Start launches the worker pool and the cron schedule.
func (r *InvoiceReconciler) Start(ctx context.Context) error {
	r.queue.Start(ctx)
	if _, err := r.scheduler.AddFunc(r.schedule, func() {
		if _, err := r.Reconcile(ctx); err != nil {
			r.logger.Warn("invoice reconciliation failed", zap.Error(err))
		}
	}); err != nil {
		r.queue.Stop()
		return fmt.Errorf("schedule invoice reconciliation %q: %w", r.schedule, err)
	}
	r.scheduler.Start()
	r.logger.Info("invoice reconciler started", zap.String("schedule", r.schedule))
	return nil
}

// Stop halts the schedule, waits for a running reconciliation, then drains the workers.
func (r *InvoiceReconciler) Stop() {
	<-r.scheduler.Stop().Done()
	r.queue.Stop()
}

// Reconcile enqueues every pending invoice not already being processed and returns how many were queued.
func (r *InvoiceReconciler) Reconcile(ctx context.Context) (int, error) {
	pending, err := r.pending.ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	r.metrics.SetInvoiceBacklog(len(pending))

	queued := 0
	for _, p := range pending {
		if _, busy := r.inflight.LoadOrStore(p.EnrollmentID, struct{}{}); busy {
			continue
		}
		job := jobs.Job{ID: p.EnrollmentID, Type: invoiceJobType, Payload: p.EnrollmentID}
		if err := r.queue.Enqueue(job); err != nil {
			r.inflight.Delete(p.EnrollmentID)
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		r.logger.Info("pending invoices queued", zap.Int("queued", queued), zap.Int("pending", len(pending)))
	}
	return queued, nil
}

func (r *InvoiceReconciler) handle(ctx context.Context, job jobs.Job) error {
	enrollmentID, ok := job.Payload.(string)
	if !ok {
		r.inflight.Delete(job.ID)
		r.logger.Error("unexpected invoice job payload", zap.String("job_id", job.ID))
		return nil
	}
	if _, err := r.generator.Generate(ctx, enrollmentID); err != nil {
		return err
	}
	r.inflight.Delete(enrollmentID)
	return nil
}

func (r *InvoiceReconciler) exhausted(job jobs.Job, err error) {
	r.inflight.Delete(job.ID)
	r.logger.Warn("invoice left pending until next reconciliation",
		zap.String("enrollment_id", job.ID),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}
