// Package history keeps a log of training runs in a SQLite database: when they ran, on
// which data, with which learners, and the held-out metrics they achieved.
package history

import (
	"context"
	"database/sql"
	"embed"
	"github.com/google/uuid"
	"github.com/janpfeifer/screenGo/internal/ml/metrics"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

//go:embed sql/*
var ddl embed.FS

// Run is one training run.
type Run struct {
	ID        string
	CreatedAt time.Time
	DataPath  string
	ModelsDir string
	Learners  string
	NumTrain  int
	NumTest   int
	Duration  time.Duration
	Metrics   metrics.Record
}

// NewRunID returns a new random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Store of training runs.
type Store struct {
	db *sql.DB
}

// Open the database at path, creating it (and its schema) if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history database path not specified")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %q", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %q", path)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "%s", pragma)
		}
	}
	schema, err := ddl.ReadFile("sql/ddl.sql")
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to read the schema creation file")
	}
	if _, err = db.Exec(string(schema)); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to create database schema in %q", path)
	}
	klog.V(1).Infof("history database %q opened", path)
	return &Store{db: db}, nil
}

// Close the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add a run. If run.ID is empty a new one is assigned, and it is returned.
func (s *Store) Add(ctx context.Context, run *Run) (string, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, created_at, data_path, models_dir, learners,
		num_train, num_test, accuracy, precision_score, recall, f1, roc_auc, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixMilli(), run.DataPath, run.ModelsDir, run.Learners,
		run.NumTrain, run.NumTest, run.Metrics.Accuracy, run.Metrics.Precision, run.Metrics.Recall,
		run.Metrics.F1, run.Metrics.ROCAUC, run.Duration.Milliseconds())
	if err != nil {
		return "", errors.Wrapf(err, "failed to insert run %s", run.ID)
	}
	return run.ID, nil
}

// List returns the most recent runs first, at most limit of them (0 for all).
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT id, created_at, data_path, models_dir, learners, num_train, num_test,
		accuracy, precision_score, recall, f1, roc_auc, duration_ms
		FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer func() { _ = rows.Close() }()
	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var createdAt, durationMs int64
		m := &run.Metrics
		if err = rows.Scan(&run.ID, &createdAt, &run.DataPath, &run.ModelsDir, &run.Learners,
			&run.NumTrain, &run.NumTest, &m.Accuracy, &m.Precision, &m.Recall, &m.F1, &m.ROCAUC,
			&durationMs); err != nil {
			return nil, errors.Wrap(err, "failed to read run")
		}
		run.CreatedAt = time.UnixMilli(createdAt)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		m.RunID = run.ID
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate over runs")
}
