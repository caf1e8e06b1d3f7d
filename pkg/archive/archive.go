// Package archive persists exported stage records and certification reports
// so runs can be compared and replayed later. SQLite is the default backend;
// a postgres:// DSN selects PostgreSQL.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nightisyang/frankentui-sub001/pkg/canonicalize"
	"github.com/nightisyang/frankentui-sub001/pkg/certify"
	"github.com/nightisyang/frankentui-sub001/pkg/evidence"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a report id is not archived.
var ErrNotFound = errors.New("archive: not found")

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS stage_records (
		run_id TEXT NOT NULL,
		stage_index INTEGER NOT NULL,
		correlation_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		payload_digest TEXT NOT NULL,
		archived_at TEXT NOT NULL,
		PRIMARY KEY (run_id, stage_index)
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		passed BOOLEAN NOT NULL,
		computed_verdict TEXT NOT NULL,
		summary TEXT NOT NULL,
		payload TEXT NOT NULL,
		archived_at TEXT NOT NULL
	)`,
}

// ReportSummary is the indexed part of an archived report.
type ReportSummary struct {
	ReportID        string
	RunID           string
	Passed          bool
	ComputedVerdict evidence.VerdictOutcome
	Summary         string
	ArchivedAt      time.Time
}

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// timeLayout is fixed width so archived_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQL-backed archive. Writes are serialised.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
	now     func() time.Time
}

// DriverFor returns the database/sql driver name and dialect for dsn.
func DriverFor(dsn string) (string, Dialect) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", Postgres
	}
	return "sqlite", SQLite
}

// Open opens (and migrates) the database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, dialect := DriverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if dialect == SQLite {
		// A single connection keeps ":memory:" databases coherent.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	s, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and applies migrations.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendRecords stores stage records in one transaction. Re-archiving a
// stage of the same run fails on the primary key.
func (s *Store) AppendRecords(ctx context.Context, records []evidence.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	archivedAt := s.now().UTC().Format(timeLayout)
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.CorrelationID, err)
		}
		digest, err := canonicalize.Digest(r)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO stage_records (run_id, stage_index, correlation_id, payload, payload_digest, archived_at) VALUES (?, ?, ?, ?, ?, ?)`),
			r.RunID, r.StageIndex, r.CorrelationID, string(payload), digest, archivedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.CorrelationID, err)
		}
	}
	return tx.Commit()
}

// Records returns the archived records of a run in stage order. A stored
// payload whose digest no longer matches is an error.
func (s *Store) Records(ctx context.Context, runID string) ([]evidence.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT correlation_id, payload, payload_digest FROM stage_records WHERE run_id = ? ORDER BY stage_index`),
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := []evidence.Record{}
	for rows.Next() {
		var correlationID, payload, digest string
		if err := rows.Scan(&correlationID, &payload, &digest); err != nil {
			return nil, err
		}
		var r evidence.Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", correlationID, err)
		}
		got, err := canonicalize.Digest(r)
		if err != nil {
			return nil, err
		}
		if got != digest {
			return nil, fmt.Errorf("archive: record %s digest mismatch: stored %s, computed %s", correlationID, digest, got)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveReport archives a certification report.
func (s *Store) SaveReport(ctx context.Context, r *certify.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", r.ReportID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO reports (report_id, run_id, passed, computed_verdict, summary, payload, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ReportID, r.RunID, r.Passed, string(r.ComputedVerdict), r.Summary, string(payload), s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", r.ReportID, err)
	}
	return nil
}

// Report loads an archived report by id.
func (s *Store) Report(ctx context.Context, reportID string) (*certify.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT payload FROM reports WHERE report_id = ?`), reportID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var r certify.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", reportID, err)
	}
	return &r, nil
}

// Reports lists the reports archived for a run, oldest first.
func (s *Store) Reports(ctx context.Context, runID string) ([]ReportSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT report_id, run_id, passed, computed_verdict, summary, archived_at FROM reports WHERE run_id = ? ORDER BY archived_at, report_id`),
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ReportSummary
	for rows.Next() {
		var (
			rs         ReportSummary
			verdict    string
			archivedAt string
		)
		if err := rows.Scan(&rs.ReportID, &rs.RunID, &rs.Passed, &verdict, &rs.Summary, &archivedAt); err != nil {
			return nil, err
		}
		rs.ComputedVerdict = evidence.VerdictOutcome(verdict)
		rs.ArchivedAt = parseTime(archivedAt)
		out = append(out, rs)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseTime(value string) time.Time {
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t
	}
	// Rows written before the fixed-width layout.
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
