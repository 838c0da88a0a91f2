package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

var inMemLogger = logger_i.NewLogger("batch_store_memory")

type artifact struct {
	name string
	data []byte
}

type InMemoryBatchStore struct {
	mu        sync.RWMutex
	batches   map[string]jobModel.BatchJob
	artifacts map[string]artifact
	calls     map[string][]jobModel.CallRecord
}

func InitInMemoryBatchStore() *InMemoryBatchStore {
	return &InMemoryBatchStore{
		batches:   make(map[string]jobModel.BatchJob),
		artifacts: make(map[string]artifact),
		calls:     make(map[string][]jobModel.CallRecord),
	}
}

func (s *InMemoryBatchStore) CreateBatch(ctx context.Context, batch jobModel.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch.Files = slices.Clone(batch.Files)
	s.batches[batch.Id] = batch
	inMemLogger.Debug("Saved batch to store", "batchId", batch.Id)
	return nil
}

func (s *InMemoryBatchStore) SetBatchStatus(ctx context.Context, batchId string, status jobModel.BatchStatus, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchId]
	if !ok {
		return fmt.Errorf("batch %s: %w", batchId, jobModel.ErrBatchNotFound)
	}
	batch.Status = status
	batch.EndTime = endTime
	s.batches[batchId] = batch
	return nil
}

func (s *InMemoryBatchStore) UpdateFile(ctx context.Context, batchId string, file jobModel.FileJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchId]
	if !ok {
		return fmt.Errorf("batch %s: %w", batchId, jobModel.ErrBatchNotFound)
	}
	if file.Index < 0 || file.Index >= len(batch.Files) {
		return fmt.Errorf("batch %s: file index %d out of range", batchId, file.Index)
	}
	batch.Files[file.Index] = file
	return nil
}

func (s *InMemoryBatchStore) SaveArtifact(ctx context.Context, batchId string, filename string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchId]
	if !ok {
		return fmt.Errorf("batch %s: %w", batchId, jobModel.ErrBatchNotFound)
	}
	batch.ArtifactName = filename
	s.batches[batchId] = batch
	s.artifacts[batchId] = artifact{name: filename, data: slices.Clone(data)}
	return nil
}

func (s *InMemoryBatchStore) GetBatch(ctx context.Context, batchId string) (jobModel.BatchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchId]
	if !ok {
		return jobModel.BatchJob{}, false
	}
	batch.Files = slices.Clone(batch.Files)
	return batch, true
}

func (s *InMemoryBatchStore) GetArtifact(ctx context.Context, batchId string) (string, []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[batchId]
	return a.name, a.data, ok
}

func (s *InMemoryBatchStore) RecordCall(ctx context.Context, call jobModel.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[call.BatchId] = append(s.calls[call.BatchId], call)
	return nil
}

func (s *InMemoryBatchStore) ListCalls(ctx context.Context, batchId string) ([]jobModel.CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.calls[batchId]), nil
}
