package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"formulaevo/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveValidationReport(ctx context.Context, report model.ValidationReport) error {
	if report.ID == "" {
		return errors.New("validation report id is required")
	}
	payload, err := EncodeValidationReport(report)
	if err != nil {
		return err
	}
	return s.upsertVersioned(ctx, "validation_reports", report.ID, payload)
}

func (s *SQLiteStore) GetValidationReport(ctx context.Context, id string) (model.ValidationReport, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM validation_reports WHERE id = ?`, id)
	if err != nil || !ok {
		return model.ValidationReport{}, false, err
	}
	report, err := DecodeValidationReport(payload)
	if err != nil {
		return model.ValidationReport{}, false, fmt.Errorf("decode validation report %s: %w", id, err)
	}
	return report, true, nil
}

func (s *SQLiteStore) SaveHistory(ctx context.Context, history model.EvolutionHistory) error {
	if history.RunID == "" {
		return errors.New("history run id is required")
	}
	payload, err := EncodeHistory(history)
	if err != nil {
		return err
	}
	return s.upsertVersioned(ctx, "histories", history.RunID, payload)
}

func (s *SQLiteStore) GetHistory(ctx context.Context, runID string) (model.EvolutionHistory, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM histories WHERE id = ?`, runID)
	if err != nil || !ok {
		return model.EvolutionHistory{}, false, err
	}
	history, err := DecodeHistory(payload)
	if err != nil {
		return model.EvolutionHistory{}, false, fmt.Errorf("decode history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *SQLiteStore) SaveInvariantSet(ctx context.Context, set model.InvariantSet) error {
	if set.ID == "" {
		return errors.New("invariant set id is required")
	}
	payload, err := EncodeInvariantSet(set)
	if err != nil {
		return err
	}
	return s.upsertVersioned(ctx, "invariant_sets", set.ID, payload)
}

func (s *SQLiteStore) GetInvariantSet(ctx context.Context, id string) (model.InvariantSet, bool, error) {
	payload, ok, err := s.payload(ctx, `SELECT payload FROM invariant_sets WHERE id = ?`, id)
	if err != nil || !ok {
		return model.InvariantSet{}, false, err
	}
	set, err := DecodeInvariantSet(payload)
	if err != nil {
		return model.InvariantSet{}, false, fmt.Errorf("decode invariant set %s: %w", id, err)
	}
	return set, true, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at_utc, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			payload = excluded.payload
	`, run.RunID, run.CreatedAtUTC, payload)
	return err
}

// ListRuns returns the run index ordered by creation time, then run id.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id, payload FROM runs ORDER BY created_at_utc, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]model.RunRecord, 0)
	for rows.Next() {
		var (
			runID   string
			payload []byte
		)
		if err := rows.Scan(&runID, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", runID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) upsertVersioned(ctx context.Context, table, id string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	version := CurrentVersion()
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, id, version.SchemaVersion, version.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) payload(ctx context.Context, query, id string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, query, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS validation_reports (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS histories (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS invariant_sets (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
