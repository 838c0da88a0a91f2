package store_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/data/redisStore"
	"github.com/akolanti/MedExtract/internal/data/store"
	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBatch(id string, n int) jobModel.BatchJob {
	b := jobModel.BatchJob{
		Id:          id,
		TraceId:     "trace-" + id,
		Status:      jobModel.BatchPending,
		CreatedTime: time.UnixMilli(1_700_000_000_000).UTC(),
	}
	for i := 0; i < n; i++ {
		b.Files = append(b.Files, jobModel.FileJob{Index: i, Filename: fmt.Sprintf("report_%d.pdf", i), Status: jobModel.FilePending})
	}
	return b
}

// runContract exercises every BatchStore the same way.
func runContract(t *testing.T, s jobModel.BatchStore) {
	ctx := context.WithValue(context.Background(), config.TRACE_ID_KEY, "test-trace")
	batch := newBatch("batch_abc_123", 3)

	t.Run("Create and Get Roundtrip", func(t *testing.T) {
		if err := s.CreateBatch(ctx, batch); err != nil {
			t.Fatalf("CreateBatch failed: %v", err)
		}
		got, found := s.GetBatch(ctx, batch.Id)
		if !found {
			t.Fatal("Batch was saved but not found")
		}
		if got.TraceId != batch.TraceId || got.Status != jobModel.BatchPending || len(got.Files) != 3 {
			t.Errorf("got %+v", got)
		}
		if !got.CreatedTime.Equal(batch.CreatedTime) {
			t.Errorf("created = %v, want %v", got.CreatedTime, batch.CreatedTime)
		}
		if got.Files[2].Filename != "report_2.pdf" {
			t.Errorf("files out of order: %+v", got.Files)
		}
	})

	t.Run("Get Non-Existent Batch", func(t *testing.T) {
		if _, found := s.GetBatch(ctx, "ghost-id"); found {
			t.Error("Expected found=false for non-existent batch")
		}
	})

	t.Run("Update File", func(t *testing.T) {
		f := batch.Files[1]
		f.Status = jobModel.FileDone
		f.PatientName = "Ravi Kumar"
		f.UnrecoveredFields = []string{"ESR"}
		f.CostUSD = 0.0123
		if err := s.UpdateFile(ctx, batch.Id, f); err != nil {
			t.Fatalf("UpdateFile failed: %v", err)
		}
		got, _ := s.GetBatch(ctx, batch.Id)
		if got.Files[1].Status != jobModel.FileDone || got.Files[1].PatientName != "Ravi Kumar" || got.Files[1].CostUSD != 0.0123 {
			t.Errorf("file = %+v", got.Files[1])
		}
		if got.Files[0].Status != jobModel.FilePending {
			t.Errorf("sibling file changed: %+v", got.Files[0])
		}
	})

	t.Run("Status and Artifact", func(t *testing.T) {
		if _, _, found := s.GetArtifact(ctx, batch.Id); found {
			t.Error("artifact should not exist yet")
		}
		end := time.UnixMilli(1_700_000_360_000).UTC()
		if err := s.SaveArtifact(ctx, batch.Id, "medical_reports_x.xlsx", []byte("xlsx-bytes")); err != nil {
			t.Fatalf("SaveArtifact failed: %v", err)
		}
		if err := s.SetBatchStatus(ctx, batch.Id, jobModel.BatchComplete, end); err != nil {
			t.Fatalf("SetBatchStatus failed: %v", err)
		}
		got, _ := s.GetBatch(ctx, batch.Id)
		if got.Status != jobModel.BatchComplete || !got.EndTime.Equal(end) || got.ArtifactName != "medical_reports_x.xlsx" {
			t.Errorf("batch = %+v", got)
		}
		name, data, found := s.GetArtifact(ctx, batch.Id)
		if !found || name != "medical_reports_x.xlsx" || !bytes.Equal(data, []byte("xlsx-bytes")) {
			t.Errorf("artifact = %q %q %v", name, data, found)
		}
	})

	t.Run("Unknown batch errors", func(t *testing.T) {
		err := s.SetBatchStatus(ctx, "ghost-id", jobModel.BatchComplete, time.Now())
		if !errors.Is(err, jobModel.ErrBatchNotFound) {
			t.Errorf("SetBatchStatus err = %v", err)
		}
		if err := s.SaveArtifact(ctx, "ghost-id", "x.xlsx", nil); !errors.Is(err, jobModel.ErrBatchNotFound) {
			t.Errorf("SaveArtifact err = %v", err)
		}
	})

	t.Run("Call ledger", func(t *testing.T) {
		page := 4
		calls := []jobModel.CallRecord{
			{BatchId: batch.Id, Filename: "a.pdf", PageNumber: &page, CallType: jobModel.CallTypeChunked, InputTokens: 900, OutputTokens: 40, CostUSD: 0.00265, Success: true, CreatedTime: time.UnixMilli(1_700_000_001_000).UTC()},
			{BatchId: batch.Id, Filename: "a.pdf", CallType: jobModel.CallTypeChunked, InputTokens: 10, ErrorNote: "API_ERROR", CreatedTime: time.UnixMilli(1_700_000_002_000).UTC()},
		}
		for _, c := range calls {
			if err := s.RecordCall(ctx, c); err != nil {
				t.Fatalf("RecordCall failed: %v", err)
			}
		}
		got, err := s.ListCalls(ctx, batch.Id)
		if err != nil {
			t.Fatalf("ListCalls failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d calls", len(got))
		}
		if got[0].PageNumber == nil || *got[0].PageNumber != 4 || !got[0].Success || got[0].CostUSD != 0.00265 {
			t.Errorf("first call = %+v", got[0])
		}
		if got[1].PageNumber != nil || got[1].Success || got[1].ErrorNote != "API_ERROR" {
			t.Errorf("second call = %+v", got[1])
		}
	})

	t.Run("Concurrent file updates", func(t *testing.T) {
		b := newBatch("batch_race", 20)
		if err := s.CreateBatch(ctx, b); err != nil {
			t.Fatalf("CreateBatch failed: %v", err)
		}
		var wg sync.WaitGroup
		for _, f := range b.Files {
			wg.Add(1)
			go func(f jobModel.FileJob) {
				defer wg.Done()
				f.Status = jobModel.FileDone
				if err := s.UpdateFile(ctx, b.Id, f); err != nil {
					t.Errorf("UpdateFile %d: %v", f.Index, err)
				}
			}(f)
		}
		wg.Wait()
		got, _ := s.GetBatch(ctx, b.Id)
		if done, _, _ := got.Counts(); done != 20 {
			t.Errorf("done = %d, want 20", done)
		}
	})
}

func TestRedisBatchStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisBatchStore(redisStore.NewTestStore(client))
	runContract(t, s)

	t.Run("keys expire", func(t *testing.T) {
		ttl := mr.TTL("medextract:batch:batch_abc_123")
		if ttl != config.RedisJobStoreTTL {
			t.Errorf("ttl = %v, want %v", ttl, config.RedisJobStoreTTL)
		}
		if ttl := mr.TTL("medextract:batch:batch_abc_123:calls"); ttl != config.RedisJobStoreTTL {
			t.Errorf("calls ttl = %v", ttl)
		}
	})
}

func TestInMemoryBatchStore(t *testing.T) {
	runContract(t, store.InitInMemoryBatchStore())
}

func TestSQLBatchStore(t *testing.T) {
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "jobs.db")
	s, err := store.OpenSQLBatchStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	runContract(t, s)

	t.Run("reopen keeps data", func(t *testing.T) {
		again, err := store.OpenSQLBatchStore(context.Background(), dsn)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer again.Close()
		if _, found := again.GetBatch(context.Background(), "batch_abc_123"); !found {
			t.Error("batch lost after reopen")
		}
	})
}

func TestNewBatchStore(t *testing.T) {
	s, err := store.NewBatchStore(context.Background(), config.Settings{StoreBackend: "memory"})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := s.(*store.InMemoryBatchStore); !ok {
		t.Errorf("got %T", s)
	}
	if _, err := store.NewBatchStore(context.Background(), config.Settings{StoreBackend: "sql"}); err == nil {
		t.Error("sql backend without DATABASE_URL should fail")
	}
	if _, err := store.NewBatchStore(context.Background(), config.Settings{StoreBackend: "cassandra"}); err == nil {
		t.Error("unknown backend should fail")
	}
}
