package index

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultJobTimeout bounds one async indexing job.
const DefaultJobTimeout = 5 * time.Minute

// Worker runs indexing operations asynchronously on a bounded goroutine
// pool. Submission returns a job id immediately; failures are logged, not
// returned.
type Worker struct {
	pool    *ants.Pool
	svc     *Service
	timeout time.Duration
	log     *zap.Logger
}

// NewWorker creates a worker with size concurrent slots. Submission blocks
// when every slot is busy.
func NewWorker(svc *Service, size int, log *zap.Logger) (*Worker, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Worker{pool: pool, svc: svc, timeout: DefaultJobTimeout, log: log}, nil
}

// WithTimeout overrides the per-job timeout.
func (w *Worker) WithTimeout(d time.Duration) *Worker {
	if d > 0 {
		w.timeout = d
	}
	return w
}

// SubmitIndex queues a single-document index job.
func (w *Worker) SubmitIndex(docType, id string) (string, error) {
	return w.submit("index", docType, func(ctx context.Context) error {
		return w.svc.Index(ctx, docType, id)
	})
}

// SubmitBulkIndex queues a bulk index job.
func (w *Worker) SubmitBulkIndex(docType string, ids []string) (string, error) {
	return w.submit("bulk_index", docType, func(ctx context.Context) error {
		return w.svc.BulkIndex(ctx, docType, ids)
	})
}

// SubmitDelete queues a document deletion job.
func (w *Worker) SubmitDelete(docType, id string) (string, error) {
	return w.submit("delete", docType, func(ctx context.Context) error {
		return w.svc.Delete(ctx, docType, id)
	})
}

func (w *Worker) submit(op, docType string, run func(ctx context.Context) error) (string, error) {
	jobID := uuid.NewString()
	err := w.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		if err := run(ctx); err != nil {
			w.log.Error("async indexing job failed",
				zap.String("job_id", jobID),
				zap.String("op", op),
				zap.String("doc_type", docType),
				zap.Error(err))
			return
		}
		w.log.Debug("async indexing job done",
			zap.String("job_id", jobID),
			zap.String("op", op),
			zap.String("doc_type", docType))
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// Close releases the pool after running jobs finish.
func (w *Worker) Close() {
	w.pool.Release()
}
