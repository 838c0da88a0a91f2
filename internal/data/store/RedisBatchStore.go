package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/data/redisStore"
	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

const keyPrefix = "medextract:batch:"

// batchMeta is the batch record without its files, each file lives under its own key
// so one document's update never rewrites its siblings.
type batchMeta struct {
	Id           string               `json:"id"`
	TraceId      string               `json:"trace_id"`
	Status       jobModel.BatchStatus `json:"status"`
	FileCount    int                  `json:"file_count"`
	CreatedTime  time.Time            `json:"created_time"`
	EndTime      time.Time            `json:"end_time,omitempty"`
	ArtifactName string               `json:"artifact_name,omitempty"`
}

type RedisBatchStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
	ttl    time.Duration
}

// GetRedisBatchStore returns nil when redis cannot be reached.
func GetRedisBatchStore(ctx context.Context) *RedisBatchStore {
	s := redisStore.GetRedisStore(ctx, config.RedisJobStore)
	if s == nil {
		return nil
	}
	return NewRedisBatchStore(s)
}

func NewRedisBatchStore(s *redisStore.Store) *RedisBatchStore {
	return &RedisBatchStore{
		store:  s,
		logger: logger_i.NewLogger("batch_store_redis"),
		ttl:    config.RedisJobStoreTTL,
	}
}

func metaKey(id string) string { return keyPrefix + id }
func fileKey(id string, i int) string { return fmt.Sprintf("%s%s:file:%d", keyPrefix, id, i) }
func artifactKey(id string) string { return keyPrefix + id + ":artifact" }
func callsKey(id string) string { return keyPrefix + id + ":calls" }

func (s *RedisBatchStore) CreateBatch(ctx context.Context, batch jobModel.BatchJob) error {
	log := s.logger.WithTrace(ctx).With("batchId", batch.Id)
	log.Debug("saving batch")
	for _, f := range batch.Files {
		if err := s.UpdateFile(ctx, batch.Id, f); err != nil {
			return err
		}
	}
	err := s.saveMeta(ctx, batchMeta{
		Id:           batch.Id,
		TraceId:      batch.TraceId,
		Status:       batch.Status,
		FileCount:    len(batch.Files),
		CreatedTime:  batch.CreatedTime,
		EndTime:      batch.EndTime,
		ArtifactName: batch.ArtifactName,
	})
	if err == nil {
		log.Debug("Saved batch to Redis", "files", len(batch.Files))
	}
	return err
}

func (s *RedisBatchStore) SetBatchStatus(ctx context.Context, batchId string, status jobModel.BatchStatus, endTime time.Time) error {
	meta, found, err := s.getMeta(ctx, batchId)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("batch %s: %w", batchId, jobModel.ErrBatchNotFound)
	}
	meta.Status = status
	meta.EndTime = endTime
	return s.saveMeta(ctx, meta)
}

func (s *RedisBatchStore) UpdateFile(ctx context.Context, batchId string, file jobModel.FileJob) error {
	data, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, fileKey(batchId, file.Index), data, s.ttl)
}

func (s *RedisBatchStore) SaveArtifact(ctx context.Context, batchId string, filename string, data []byte) error {
	meta, found, err := s.getMeta(ctx, batchId)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("batch %s: %w", batchId, jobModel.ErrBatchNotFound)
	}
	if err := s.store.Set(ctx, artifactKey(batchId), data, s.ttl); err != nil {
		return err
	}
	meta.ArtifactName = filename
	return s.saveMeta(ctx, meta)
}

func (s *RedisBatchStore) GetBatch(ctx context.Context, batchId string) (jobModel.BatchJob, bool) {
	log := s.logger.WithTrace(ctx).With("batchId", batchId)
	meta, found, err := s.getMeta(ctx, batchId)
	if err != nil {
		log.Error("failed to read batch", "error", err)
		return jobModel.BatchJob{}, false
	}
	if !found {
		return jobModel.BatchJob{}, false
	}

	keys := make([]string, meta.FileCount)
	for i := range keys {
		keys[i] = fileKey(batchId, i)
	}
	values, present, err := s.store.MGet(ctx, keys...)
	if err != nil {
		log.Error("failed to read batch files", "error", err)
		return jobModel.BatchJob{}, false
	}

	batch := jobModel.BatchJob{
		Id:           meta.Id,
		TraceId:      meta.TraceId,
		Status:       meta.Status,
		CreatedTime:  meta.CreatedTime,
		EndTime:      meta.EndTime,
		ArtifactName: meta.ArtifactName,
		Files:        make([]jobModel.FileJob, 0, meta.FileCount),
	}
	for i, v := range values {
		if !present[i] {
			log.Warn("file record missing", "index", i)
			continue
		}
		var f jobModel.FileJob
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			log.Error("failed to decode file record", "index", i, "error", err)
			continue
		}
		batch.Files = append(batch.Files, f)
	}
	return batch, true
}

func (s *RedisBatchStore) GetArtifact(ctx context.Context, batchId string) (string, []byte, bool) {
	meta, found, err := s.getMeta(ctx, batchId)
	if err != nil || !found || meta.ArtifactName == "" {
		return "", nil, false
	}
	data, err := s.store.GetBytes(ctx, artifactKey(batchId))
	if err != nil {
		if !s.store.IsNil(err) {
			s.logger.WithTrace(ctx).Error("failed to read artifact", "batchId", batchId, "error", err)
		}
		return "", nil, false
	}
	return meta.ArtifactName, data, true
}

func (s *RedisBatchStore) RecordCall(ctx context.Context, call jobModel.CallRecord) error {
	data, err := json.Marshal(call)
	if err != nil {
		return err
	}
	return s.store.ListPush(ctx, callsKey(call.BatchId), data, s.ttl)
}

func (s *RedisBatchStore) ListCalls(ctx context.Context, batchId string) ([]jobModel.CallRecord, error) {
	raw, err := s.store.ListGetAll(ctx, callsKey(batchId))
	if err != nil {
		return nil, err
	}
	calls := make([]jobModel.CallRecord, 0, len(raw))
	for _, r := range raw {
		var c jobModel.CallRecord
		if err := json.Unmarshal([]byte(r), &c); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, nil
}

func (s *RedisBatchStore) saveMeta(ctx context.Context, meta batchMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, metaKey(meta.Id), data, s.ttl)
}

func (s *RedisBatchStore) getMeta(ctx context.Context, batchId string) (batchMeta, bool, error) {
	var meta batchMeta
	val, err := s.store.Get(ctx, metaKey(batchId))
	if s.store.IsNil(err) {
		return meta, false, nil
	} else if err != nil {
		return meta, false, err
	}
	if err := json.Unmarshal([]byte(val), &meta); err != nil {
		return meta, false, err
	}
	return meta, true, nil
}
