// Package ledger keeps a durable audit trail of pipeline runs in SQLite.
// Artifact metadata rows are append-only: triggers reject updates and
// deletes.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	duration_seconds REAL NOT NULL,
	total_records INTEGER NOT NULL,
	successful_extractions INTEGER NOT NULL,
	failed_extractions INTEGER NOT NULL,
	success_rate REAL NOT NULL,
	data_quality_score REAL NOT NULL,
	fallback_only INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS artifacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	source_name TEXT NOT NULL,
	extraction_time TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	checksum TEXT NOT NULL,
	checksum_algorithm TEXT NOT NULL,
	url TEXT NOT NULL,
	path TEXT NOT NULL,
	attempts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_source ON artifacts(source_name);

CREATE TRIGGER IF NOT EXISTS artifacts_no_update BEFORE UPDATE ON artifacts
BEGIN
	SELECT RAISE(ABORT, 'artifacts is append-only');
END;
CREATE TRIGGER IF NOT EXISTS artifacts_no_delete BEFORE DELETE ON artifacts
BEGIN
	SELECT RAISE(ABORT, 'artifacts is append-only');
END;

CREATE TABLE IF NOT EXISTS quality_scores (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	dataset TEXT NOT NULL,
	synthetic INTEGER NOT NULL,
	rows INTEGER NOT NULL,
	completeness REAL NOT NULL,
	uniqueness REAL NOT NULL,
	validity REAL NOT NULL,
	composite REAL NOT NULL,
	PRIMARY KEY (run_id, dataset)
);
`

type Ledger struct {
	db   *sql.DB
	path string
}

// Open creates or opens the ledger database at path, creating its parent
// directory if needed.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create ledger directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger")
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "configure ledger")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initialize ledger schema")
	}
	return &Ledger{db: db, path: path}, nil
}

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// RecordRun stores a finished run, the metadata of every successful outcome
// and the per-dataset quality scores in one transaction.
func (l *Ledger) RecordRun(ctx context.Context, s *data.Summary, outcomes []data.FetchOutcome) error {
	if s == nil {
		return errors.New("ledger: nil summary")
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin ledger transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, start_time, end_time, duration_seconds, total_records,
			successful_extractions, failed_extractions, success_rate, data_quality_score, fallback_only)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, formatTime(s.StartTime), formatTime(s.EndTime), s.DurationSeconds, s.TotalRecords,
		s.Successful, s.Failed, s.SuccessRate, s.QualityScore, s.FallbackOnly,
	); err != nil {
		return errors.Wrapf(err, "insert run %s", s.RunID)
	}

	for _, o := range outcomes {
		if !o.Success || o.Metadata == nil {
			continue
		}
		m := o.Metadata
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (run_id, source_name, extraction_time, size_bytes, checksum,
				checksum_algorithm, url, path, attempts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, m.SourceName, formatTime(m.ExtractionTime), m.SizeBytes, m.Checksum,
			m.ChecksumAlgorithm, m.URL, o.Path, o.Attempts,
		); err != nil {
			return errors.Wrapf(err, "insert artifact %s", m.SourceName)
		}
	}

	for _, ds := range s.Datasets {
		q := ds.Quality
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quality_scores (run_id, dataset, synthetic, rows, completeness, uniqueness, validity, composite)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, ds.Name, ds.Synthetic, ds.Rows, q.Completeness, q.Uniqueness, q.Validity, q.Composite,
		); err != nil {
			return errors.Wrapf(err, "insert quality score %s", ds.Name)
		}
	}

	return errors.Wrap(tx.Commit(), "commit ledger transaction")
}

// ArtifactRecord is one row of the artifact audit trail.
type ArtifactRecord struct {
	RunID    string
	Path     string
	Attempts int
	data.ArtifactMetadata
}

// Artifacts returns the recorded history of source, oldest first.
func (l *Ledger) Artifacts(ctx context.Context, source string) ([]ArtifactRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, source_name, extraction_time, size_bytes, checksum, checksum_algorithm, url, path, attempts
		FROM artifacts WHERE source_name = ? ORDER BY id`, source)
	if err != nil {
		return nil, errors.Wrap(err, "query artifacts")
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var (
			r  ArtifactRecord
			at string
		)
		if err := rows.Scan(&r.RunID, &r.SourceName, &at, &r.SizeBytes, &r.Checksum,
			&r.ChecksumAlgorithm, &r.URL, &r.Path, &r.Attempts); err != nil {
			return nil, errors.Wrap(err, "scan artifact")
		}
		r.ExtractionTime, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, errors.Wrapf(err, "parse extraction time %q", at)
		}
		r.FileSizeMB = data.BytesToMB(r.SizeBytes)
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate artifacts")
}

// RunCount reports how many runs are recorded.
func (l *Ledger) RunCount(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n)
	return n, errors.Wrap(err, "count runs")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
