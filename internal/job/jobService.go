package job

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akolanti/MedExtract/internal/adapter/utils"
	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/internal/export"
	"github.com/akolanti/MedExtract/internal/extraction/llm"
	"github.com/akolanti/MedExtract/internal/extraction/validator"
	"github.com/akolanti/MedExtract/internal/metrics"
	"github.com/akolanti/MedExtract/pkg/logger_i"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFound   = errors.New("batch not found")
	ErrNotReady   = errors.New("batch not complete")
	ErrNoArtifact = errors.New("batch has no workbook")
	ErrNoFiles    = errors.New("no documents submitted")
)

var logger = logger_i.NewLogger("BatchService")

type Pipeline interface {
	Run(ctx context.Context, batchId string, file jobModel.FileJob, data []byte) (rm.Record, jobModel.FileJob)
}

// Task is a submitted batch waiting for a worker. Documents stay in memory only.
type Task struct {
	Batch jobModel.BatchJob
	Docs  []jobModel.Document
}

type Service struct {
	BatchChannel      chan Task
	RequestCount      int64
	DispatcherChannel chan bool
	Store             jobModel.BatchStore

	pipeline   Pipeline
	maxWorkers int

	mu     sync.RWMutex
	active map[string]*jobModel.BatchJob
}

type ServiceConfig struct {
	BatchChannel      chan Task
	DispatcherChannel chan bool
	Store             jobModel.BatchStore
	Pipeline          Pipeline
	MaxWorkers        int
}

func InitJobService(cfg ServiceConfig) *Service {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Service{
		BatchChannel:      cfg.BatchChannel,
		DispatcherChannel: cfg.DispatcherChannel,
		Store:             cfg.Store,
		pipeline:          cfg.Pipeline,
		maxWorkers:        maxWorkers,
		active:            make(map[string]*jobModel.BatchJob),
	}
}

// FileStatus is the per-file part of a status report.
type FileStatus struct {
	Filename    string
	Status      jobModel.FileStatus
	PatientName string
}

type StatusReport struct {
	JobId      string
	Total      int
	Completed  int
	Failed     int
	InProgress int
	Status     jobModel.BatchStatus
	Files      []FileStatus
	Usage      Usage
}

// Usage sums the cost ledger of a batch.
type Usage struct {
	Calls        int
	Failed       int
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

func summarizeCalls(calls []jobModel.CallRecord) Usage {
	var u Usage
	for _, c := range calls {
		u.Calls++
		if !c.Success {
			u.Failed++
		}
		u.InputTokens += c.InputTokens
		u.OutputTokens += c.OutputTokens
		u.CostUSD += c.CostUSD
	}
	u.CostUSD = math.Round(u.CostUSD*1e8) / 1e8
	return u
}

// Submit records a new batch and queues it. It returns as soon as the batch is queued.
func (s *Service) Submit(ctx context.Context, docs []jobModel.Document) (jobModel.BatchJob, error) {
	if len(docs) == 0 {
		return jobModel.BatchJob{}, ErrNoFiles
	}
	traceId, _ := ctx.Value(config.TRACE_ID_KEY).(string)
	batch := jobModel.BatchJob{
		Id:          utils.GetNewUUID(),
		TraceId:     traceId,
		Status:      jobModel.BatchPending,
		CreatedTime: time.Now().UTC(),
		Files:       make([]jobModel.FileJob, len(docs)),
	}
	for i, d := range docs {
		batch.Files[i] = jobModel.FileJob{Index: i, Filename: d.Filename, Status: jobModel.FilePending}
	}
	log := logger.WithTrace(ctx).With("batchId", batch.Id)

	if err := s.Store.CreateBatch(ctx, batch); err != nil {
		return jobModel.BatchJob{}, fmt.Errorf("create batch: %w", err)
	}
	s.track(batch)

	metrics.IncrementBatchesInQueue()
	select {
	case s.BatchChannel <- Task{Batch: batch, Docs: docs}:
	case <-ctx.Done():
		s.evict(batch.Id)
		metrics.DecrementBatchesInQueue()
		return jobModel.BatchJob{}, ctx.Err()
	}
	log.Info("Queued batch", "files", len(docs))

	// a batch of several documents is long running, give it a fresh worker
	count := atomic.AddInt64(&s.RequestCount, 1)
	if count%config.RequestsPerNewWorkerCount == 0 || len(docs) > 1 {
		metrics.StartDispatcherSignalCount()
		select {
		case s.DispatcherChannel <- true:
		default:
		}
	}
	return batch, nil
}

// Run processes every document of the batch, writes the workbook and marks the batch complete.
func (s *Service) Run(ctx context.Context, batch jobModel.BatchJob, docs []jobModel.Document) {
	log := logger.WithTrace(ctx).With("batchId", batch.Id)
	start := time.Now()

	// store writes outlive the batch deadline so a timed out batch still completes
	persist := context.WithoutCancel(ctx)

	s.track(batch)
	s.setStatus(persist, batch.Id, jobModel.BatchProcessing, time.Time{})
	log.Info("Processing batch", "files", len(docs))

	ctx, cancel := context.WithTimeout(ctx, config.BatchTimeout)
	defer cancel()

	records := make([]rm.Record, len(docs))
	files := make([]jobModel.FileJob, len(docs))

	var g errgroup.Group
	g.SetLimit(s.maxWorkers)
	for i, doc := range docs {
		file := jobModel.FileJob{Index: i, Filename: doc.Filename, Status: jobModel.FilePending}
		if i < len(batch.Files) {
			file = batch.Files[i]
		}
		g.Go(func() error {
			file.Status = jobModel.FileProcessing
			s.updateFile(persist, batch.Id, file)

			docCtx, docCancel := context.WithTimeout(ctx, config.DocumentTimeout)
			defer docCancel()
			record, done := s.runDocument(docCtx, batch.Id, file, doc.Data)
			if !done.IsTerminal() {
				// a batch only completes once every file is done or failed
				log.Warn("document returned without a terminal status", "filename", done.Filename, "status", done.Status)
				done.Status = jobModel.FileFailed
				if done.ErrorNotes == "" {
					done.ErrorNotes = llm.NoteAPIError
				}
			}

			records[i] = record
			files[i] = done
			s.updateFile(persist, batch.Id, done)
			metrics.CaptureDocument(string(done.Status), done.InputTokens, done.OutputTokens)
			return nil
		})
	}
	_ = g.Wait()

	s.saveWorkbook(persist, batch.Id, records, files)

	s.setStatus(persist, batch.Id, jobModel.BatchComplete, time.Now().UTC())
	s.evict(batch.Id)
	log.Info("Batch complete", "elapsed", time.Since(start).Round(time.Millisecond))
}

// runDocument keeps a panic inside one document.
func (s *Service) runDocument(ctx context.Context, batchId string, file jobModel.FileJob, data []byte) (record rm.Record, out jobModel.FileJob) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.WithTrace(ctx).Error("document panicked", "batchId", batchId, "filename", file.Filename, "panic", r)
			record = validator.Validate(rm.Record{}, file.Filename, llm.NoteAPIError)
			out = file
			out.Status = jobModel.FileFailed
			out.ErrorNotes = record.Note()
			out.PatientName = record.String(rm.PatientName)
			out.FieldsExtracted, out.FieldsNull = validator.CountFields(record)
			out.ProcessingTime = math.Round(time.Since(start).Seconds()*100) / 100
		}
	}()
	return s.pipeline.Run(ctx, batchId, file, data)
}

func (s *Service) saveWorkbook(ctx context.Context, batchId string, records []rm.Record, files []jobModel.FileJob) {
	log := logger.WithTrace(ctx).With("batchId", batchId)
	data, err := export.Workbook(records, files)
	if err != nil {
		log.Error("Failed to build workbook", "err", err)
		return
	}
	name := config.ExcelFilePrefix + time.Now().Format(config.ExcelTimeLayout) + ".xlsx"
	if err := s.Store.SaveArtifact(ctx, batchId, name, data); err != nil {
		log.Error("Failed to save workbook", "err", err)
		return
	}
	log.Info("Saved workbook", "artifact", name, "bytes", len(data))
}

// Status prefers the live copy of an active batch and falls back to the store.
func (s *Service) Status(ctx context.Context, batchId string) (StatusReport, error) {
	s.mu.RLock()
	live, ok := s.active[batchId]
	var batch jobModel.BatchJob
	if ok {
		batch = *live
		batch.Files = append([]jobModel.FileJob(nil), live.Files...)
	}
	s.mu.RUnlock()

	if !ok {
		var found bool
		batch, found = s.Store.GetBatch(ctx, batchId)
		if !found {
			return StatusReport{}, ErrNotFound
		}
	}
	report := toStatusReport(batch)
	calls, err := s.Store.ListCalls(ctx, batchId)
	if err != nil {
		logger.WithTrace(ctx).Warn("Failed to read call ledger", "batchId", batchId, "err", err)
	}
	report.Usage = summarizeCalls(calls)
	return report, nil
}

// Result returns the workbook of a completed batch.
func (s *Service) Result(ctx context.Context, batchId string) (string, []byte, error) {
	batch, found := s.Store.GetBatch(ctx, batchId)
	if !found {
		return "", nil, ErrNotFound
	}
	if batch.Status != jobModel.BatchComplete {
		return "", nil, ErrNotReady
	}
	name, data, found := s.Store.GetArtifact(ctx, batchId)
	if !found {
		return "", nil, ErrNoArtifact
	}
	return name, data, nil
}

func toStatusReport(batch jobModel.BatchJob) StatusReport {
	done, failed, processing := batch.Counts()
	report := StatusReport{
		JobId:      batch.Id,
		Total:      len(batch.Files),
		Completed:  done,
		Failed:     failed,
		InProgress: processing,
		Status:     batch.Status,
		Files:      make([]FileStatus, 0, len(batch.Files)),
	}
	for _, f := range batch.Files {
		report.Files = append(report.Files, FileStatus{Filename: f.Filename, Status: f.Status, PatientName: f.PatientName})
	}
	return report
}

func (s *Service) track(batch jobModel.BatchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[batch.Id]; ok {
		return
	}
	c := batch
	c.Files = append([]jobModel.FileJob(nil), batch.Files...)
	s.active[batch.Id] = &c
}

func (s *Service) evict(batchId string) {
	s.mu.Lock()
	delete(s.active, batchId)
	s.mu.Unlock()
}

func (s *Service) updateFile(ctx context.Context, batchId string, file jobModel.FileJob) {
	s.mu.Lock()
	if b, ok := s.active[batchId]; ok && file.Index >= 0 && file.Index < len(b.Files) {
		b.Files[file.Index] = file
	}
	s.mu.Unlock()

	if err := s.Store.UpdateFile(ctx, batchId, file); err != nil {
		logger.WithTrace(ctx).Error("Failed to save file state", "batchId", batchId, "index", file.Index, "err", err)
	}
}

func (s *Service) setStatus(ctx context.Context, batchId string, status jobModel.BatchStatus, end time.Time) {
	s.mu.Lock()
	if b, ok := s.active[batchId]; ok {
		b.Status = status
		b.EndTime = end
	}
	s.mu.Unlock()

	if err := s.Store.SetBatchStatus(ctx, batchId, status, end); err != nil {
		logger.WithTrace(ctx).Error("Failed to save batch status", "batchId", batchId, "status", status, "err", err)
	}
}
