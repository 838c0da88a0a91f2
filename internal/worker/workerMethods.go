package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/job"
	"github.com/akolanti/MedExtract/internal/metrics"
)

func executeBatch(task job.Task) {
	start := time.Now()
	defer func() {
		metrics.CaptureBatchMetrics("complete", time.Since(start))
	}()
	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, task.Batch.TraceId)
	logger.WithTrace(ctx).Debug("Processing batch", "batchId", task.Batch.Id, "files", len(task.Docs))

	_jobService.Run(ctx, task.Batch, task.Docs)
}

func removeWorker(reason string) {
	atomic.AddInt64(&currentWorkerCount, -1)
	exitWorker(reason)
}

// exitWorker releases a worker whose slot is already given back.
func exitWorker(reason string) {
	workerWaitGroup.Done()
	logger.Info("Removed worker", "reason", reason, "workerCount", atomic.LoadInt64(&currentWorkerCount))
	metrics.DecrementActiveWorkerCount()
}
