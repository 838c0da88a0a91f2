package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	"github.com/akolanti/MedExtract/pkg/logger_i"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect struct {
	driver string
	blob   string
	double string
	serial string
}

var (
	postgres = dialect{driver: "pgx", blob: "BYTEA", double: "DOUBLE PRECISION", serial: "BIGSERIAL PRIMARY KEY"}
	sqlite   = dialect{driver: "sqlite", blob: "BLOB", double: "REAL", serial: "INTEGER PRIMARY KEY AUTOINCREMENT"}
)

// SQLBatchStore keeps batches in postgres or sqlite. Times are stored as unix milliseconds
// so both engines read them back the same way.
type SQLBatchStore struct {
	db      *sql.DB
	dialect dialect
	logger  *logger_i.Logger
}

// OpenSQLBatchStore picks the engine from the DSN: postgres:// and postgresql:// go to pgx,
// sqlite:<path> or a bare path go to sqlite.
func OpenSQLBatchStore(ctx context.Context, dsn string) (*SQLBatchStore, error) {
	d, conn := parseDSN(dsn)
	db, err := sql.Open(d.driver, conn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if d == sqlite {
		// one writer at a time, sqlite locks the whole file
		db.SetMaxOpenConns(1)
	}
	s := &SQLBatchStore{db: db, dialect: d, logger: logger_i.NewLogger("batch_store_sql")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("SQL batch store ready", "driver", d.driver)
	return s, nil
}

func parseDSN(dsn string) (dialect, string) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return postgres, dsn
	case strings.HasPrefix(lower, "sqlite://"):
		return sqlite, dsn[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		return sqlite, dsn[len("sqlite:"):]
	default:
		return sqlite, dsn
	}
}

func (s *SQLBatchStore) Close() error {
	return s.db.Close()
}

func (s *SQLBatchStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			ended_at BIGINT NOT NULL DEFAULT 0,
			artifact_name TEXT NOT NULL DEFAULT '',
			artifact ` + s.dialect.blob + `
		)`,
		`CREATE TABLE IF NOT EXISTS job_files (
			job_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			filename TEXT NOT NULL,
			status TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (job_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS openai_calls (
			id ` + s.dialect.serial + `,
			job_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			page_number INTEGER,
			call_type TEXT NOT NULL,
			input_tokens BIGINT NOT NULL,
			output_tokens BIGINT NOT NULL,
			cost_usd ` + s.dialect.double + ` NOT NULL,
			success BOOLEAN NOT NULL,
			error_note TEXT,
			created_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for postgres.
func (s *SQLBatchStore) rebind(query string) string {
	if s.dialect != postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLBatchStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (s *SQLBatchStore) CreateBatch(ctx context.Context, batch jobModel.BatchJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO jobs (id, trace_id, status, created_at, ended_at, artifact_name) VALUES (?, ?, ?, ?, ?, ?)`),
		batch.Id, batch.TraceId, string(batch.Status), toMillis(batch.CreatedTime), toMillis(batch.EndTime), batch.ArtifactName)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	for _, f := range batch.Files {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO job_files (job_id, idx, filename, status, data) VALUES (?, ?, ?, ?, ?)`),
			batch.Id, f.Index, f.Filename, string(f.Status), string(data))
		if err != nil {
			return fmt.Errorf("insert job file: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLBatchStore) SetBatchStatus(ctx context.Context, batchId string, status jobModel.BatchStatus, endTime time.Time) error {
	res, err := s.exec(ctx, `UPDATE jobs SET status = ?, ended_at = ? WHERE id = ?`, string(status), toMillis(endTime), batchId)
	if err != nil {
		return err
	}
	return requireRow(res, batchId)
}

func (s *SQLBatchStore) UpdateFile(ctx context.Context, batchId string, file jobModel.FileJob) error {
	data, err := json.Marshal(file)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO job_files (job_id, idx, filename, status, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_id, idx) DO UPDATE SET filename = excluded.filename, status = excluded.status, data = excluded.data`,
		batchId, file.Index, file.Filename, string(file.Status), string(data))
	return err
}

func (s *SQLBatchStore) SaveArtifact(ctx context.Context, batchId string, filename string, data []byte) error {
	res, err := s.exec(ctx, `UPDATE jobs SET artifact_name = ?, artifact = ? WHERE id = ?`, filename, data, batchId)
	if err != nil {
		return err
	}
	return requireRow(res, batchId)
}

func requireRow(res sql.Result, batchId string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("batch %s: %w", batchId, jobModel.ErrBatchNotFound)
	}
	return nil
}

func (s *SQLBatchStore) GetBatch(ctx context.Context, batchId string) (jobModel.BatchJob, bool) {
	log := s.logger.WithTrace(ctx).With("batchId", batchId)
	var (
		batch          jobModel.BatchJob
		status         string
		created, ended int64
	)
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, trace_id, status, created_at, ended_at, artifact_name FROM jobs WHERE id = ?`), batchId)
	if err := row.Scan(&batch.Id, &batch.TraceId, &status, &created, &ended, &batch.ArtifactName); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Error("failed to read batch", "error", err)
		}
		return jobModel.BatchJob{}, false
	}
	batch.Status = jobModel.BatchStatus(status)
	batch.CreatedTime = fromMillis(created)
	batch.EndTime = fromMillis(ended)

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT data FROM job_files WHERE job_id = ? ORDER BY idx`), batchId)
	if err != nil {
		log.Error("failed to read batch files", "error", err)
		return jobModel.BatchJob{}, false
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			log.Error("failed to scan file record", "error", err)
			return jobModel.BatchJob{}, false
		}
		var f jobModel.FileJob
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			log.Error("failed to decode file record", "error", err)
			continue
		}
		batch.Files = append(batch.Files, f)
	}
	if err := rows.Err(); err != nil {
		log.Error("failed to read batch files", "error", err)
		return jobModel.BatchJob{}, false
	}
	return batch, true
}

func (s *SQLBatchStore) GetArtifact(ctx context.Context, batchId string) (string, []byte, bool) {
	var name string
	var data []byte
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT artifact_name, artifact FROM jobs WHERE id = ?`), batchId)
	if err := row.Scan(&name, &data); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.WithTrace(ctx).Error("failed to read artifact", "batchId", batchId, "error", err)
		}
		return "", nil, false
	}
	if name == "" || data == nil {
		return "", nil, false
	}
	return name, data, true
}

func (s *SQLBatchStore) RecordCall(ctx context.Context, call jobModel.CallRecord) error {
	var page sql.NullInt64
	if call.PageNumber != nil {
		page = sql.NullInt64{Int64: int64(*call.PageNumber), Valid: true}
	}
	var note sql.NullString
	if call.ErrorNote != "" {
		note = sql.NullString{String: call.ErrorNote, Valid: true}
	}
	_, err := s.exec(ctx, `INSERT INTO openai_calls
		(job_id, filename, page_number, call_type, input_tokens, output_tokens, cost_usd, success, error_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.BatchId, call.Filename, page, call.CallType, call.InputTokens, call.OutputTokens,
		call.CostUSD, call.Success, note, toMillis(call.CreatedTime))
	return err
}

func (s *SQLBatchStore) ListCalls(ctx context.Context, batchId string) ([]jobModel.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT job_id, filename, page_number, call_type, input_tokens, output_tokens,
		cost_usd, success, error_note, created_at FROM openai_calls WHERE job_id = ? ORDER BY id`), batchId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []jobModel.CallRecord
	for rows.Next() {
		var (
			c       jobModel.CallRecord
			page    sql.NullInt64
			note    sql.NullString
			created int64
		)
		if err := rows.Scan(&c.BatchId, &c.Filename, &page, &c.CallType, &c.InputTokens, &c.OutputTokens,
			&c.CostUSD, &c.Success, &note, &created); err != nil {
			return nil, err
		}
		if page.Valid {
			n := int(page.Int64)
			c.PageNumber = &n
		}
		c.ErrorNote = note.String
		c.CreatedTime = fromMillis(created)
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
