package jobModel

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
)

type BatchStatus string
type FileStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchComplete   BatchStatus = "complete"

	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileDone       FileStatus = "done"
	FileFailed     FileStatus = "failed"

	CallTypeChunked = "chunked"
)

var ErrBatchNotFound = errors.New("batch not found")

// Document is one uploaded PDF waiting to be processed.
type Document struct {
	Filename string
	Data     []byte
}

type FileJob struct {
	Index             int        `json:"index"`
	Filename          string     `json:"filename"`
	Status            FileStatus `json:"status"`
	PatientName       string     `json:"patient_name,omitempty"`
	ErrorNotes        string     `json:"error_notes,omitempty"`
	FieldsExtracted   int        `json:"fields_extracted"`
	FieldsNull        int        `json:"fields_null"`
	ProcessingTime    float64    `json:"processing_time"`
	PagesRegexHandled int        `json:"pages_regex_handled"`
	PagesOCRHandled   int        `json:"pages_ocr_handled"`
	PagesAIHandled    int        `json:"pages_ai_handled"`
	PagesGraph        int        `json:"pages_graph_detected"`
	UnrecoveredFields []string   `json:"unrecovered_fields,omitempty"`
	InputTokens       int64      `json:"input_tokens"`
	OutputTokens      int64      `json:"output_tokens"`
	CostUSD           float64    `json:"cost_usd"`
}

func (f FileJob) IsTerminal() bool {
	return f.Status == FileDone || f.Status == FileFailed
}

type BatchJob struct {
	Id           string      `json:"id"`
	TraceId      string      `json:"trace_id"`
	Status       BatchStatus `json:"status"`
	Files        []FileJob   `json:"files"`
	CreatedTime  time.Time   `json:"created_time"`
	EndTime      time.Time   `json:"end_time,omitempty"`
	ArtifactName string      `json:"artifact_name,omitempty"`
}

// Counts returns how many files are done, failed and still processing.
func (b BatchJob) Counts() (done, failed, processing int) {
	for _, f := range b.Files {
		switch f.Status {
		case FileDone:
			done++
		case FileFailed:
			failed++
		case FileProcessing:
			processing++
		}
	}
	return done, failed, processing
}

// CallRecord is one cost ledger row for a remote extraction call.
type CallRecord struct {
	BatchId      string    `json:"batch_id"`
	Filename     string    `json:"filename"`
	PageNumber   *int      `json:"page_number,omitempty"`
	CallType     string    `json:"call_type"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Success      bool      `json:"success"`
	ErrorNote    string    `json:"error_note,omitempty"`
	CreatedTime  time.Time `json:"created_time"`
}

// EstimateCost prices token usage at the configured per-million rates, rounded to 8 places.
func EstimateCost(inputTokens, outputTokens int64) float64 {
	cost := float64(inputTokens)*config.InputCostPerMillion/1e6 + float64(outputTokens)*config.OutputCostPerMillion/1e6
	return math.Round(cost*1e8) / 1e8
}

// CallRecorder persists cost ledger rows.
type CallRecorder interface {
	RecordCall(ctx context.Context, call CallRecord) error
}

type BatchStore interface {
	CallRecorder
	CreateBatch(ctx context.Context, batch BatchJob) error
	SetBatchStatus(ctx context.Context, batchId string, status BatchStatus, endTime time.Time) error
	UpdateFile(ctx context.Context, batchId string, file FileJob) error
	SaveArtifact(ctx context.Context, batchId string, filename string, data []byte) error
	GetBatch(ctx context.Context, batchId string) (BatchJob, bool)
	GetArtifact(ctx context.Context, batchId string) (filename string, data []byte, found bool)
	ListCalls(ctx context.Context, batchId string) ([]CallRecord, error)
}
