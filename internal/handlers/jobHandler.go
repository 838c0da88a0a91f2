package handlers

import (
	"context"
	"sync"

	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	"github.com/akolanti/MedExtract/internal/job"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

var (
	handlerInstance *JobHandler //private singleton
	once            sync.Once
	logJH           = logger_i.NewLogger("JobHandler")
)

// BatchService is the part of the batch orchestrator the handlers need.
type BatchService interface {
	Submit(ctx context.Context, docs []jobModel.Document) (jobModel.BatchJob, error)
	Status(ctx context.Context, batchId string) (job.StatusReport, error)
	Result(ctx context.Context, batchId string) (string, []byte, error)
}

type JobHandler struct {
	service     BatchService
	maxFileSize int64
}

func InitJobHandler(service BatchService, maxFileSize int64) {
	once.Do(func() {
		handlerInstance = &JobHandler{service: service, maxFileSize: maxFileSize}
		logJH.Info("Starting job handler", "maxFileSize", maxFileSize)
	})
}

func CreateNewBatch(ctx context.Context, docs []jobModel.Document) (jobModel.BatchJob, error) {
	logJH.WithTrace(ctx).Info("To create new batch", "files", len(docs))
	return handlerInstance.service.Submit(ctx, docs)
}

func GetBatchStatus(ctx context.Context, id string) (job.StatusReport, error) {
	return handlerInstance.service.Status(ctx, id)
}

func GetBatchResult(ctx context.Context, id string) (string, []byte, error) {
	return handlerInstance.service.Result(ctx, id)
}
