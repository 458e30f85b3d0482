package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// createdAtLayout is fixed width so created_at sorts as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultBufferLimit caps the records SQLiteStore holds between flushes.
const DefaultBufferLimit = 1 << 16

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		label      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq    INTEGER NOT NULL,
		name   TEXT NOT NULL,
		core   INTEGER NOT NULL,
		clock  INTEGER NOT NULL,
		tid    INTEGER NOT NULL,
		fields TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id, seq)`,
}

// RunInfo describes a recorded run.
type RunInfo struct {
	ID        string
	Label     string
	CreatedAt time.Time
	Records   int
}

// SQLiteStore persists records to SQLite for offline trace analysis.
//
// Emit only buffers in memory; nothing touches the database until Flush, so it
// is safe to use as a Sink from inside scheduler calls. Records arriving while
// the buffer is full are dropped and counted.
type SQLiteStore struct {
	db       *sql.DB
	runID    string
	seq      int64
	pending  []Record
	limit    int
	dropped  int64
	throttle *Throttle
}

// OpenSQLite opens (or creates) a SQLite database at dbPath and applies the
// schema. Use ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{
		db:       db,
		limit:    DefaultBufferLimit,
		throttle: NewThrottle(DefaultWarningRates),
	}, nil
}

// SetBufferLimit changes how many records may be buffered between flushes.
func (s *SQLiteStore) SetBufferLimit(n int) {
	if n <= 0 {
		panic("SQLiteStore.SetBufferLimit: limit must be positive")
	}
	s.limit = n
}

// Close closes the underlying database connection. Unflushed records are lost.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginRun registers a new run; subsequent records are attributed to it.
func (s *SQLiteStore) BeginRun(ctx context.Context, runID, label string) error {
	if len(s.pending) > 0 {
		return fmt.Errorf("begin run %s: %d records of run %s not flushed", runID, len(s.pending), s.runID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, created_at) VALUES (?, ?, ?)`,
		runID, label, time.Now().UTC().Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	s.runID = runID
	s.seq = 0
	s.dropped = 0
	return nil
}

// Emit buffers r for the next Flush.
func (s *SQLiteStore) Emit(r Record) {
	if s.runID == "" || len(s.pending) >= s.limit {
		s.dropped++
		s.throttle.Warnf("trace-drop", "trace: dropping record %q (run=%q buffered=%d)", r.Name, s.runID, len(s.pending))
		return
	}
	r.Fields = append([]Field(nil), r.Fields...)
	s.pending = append(s.pending, r)
}

// Dropped returns the number of records dropped since the run began.
func (s *SQLiteStore) Dropped() int64 { return s.dropped }

// Pending returns the number of buffered records.
func (s *SQLiteStore) Pending() int { return len(s.pending) }

// Flush writes buffered records in a single transaction.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (run_id, seq, name, core, clock, tid, fields) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	seq := s.seq
	for _, r := range s.pending {
		fieldsJSON, err := json.Marshal(fieldMap(r.Fields))
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.runID, seq, r.Name, r.Core, int64(r.Clock), int64(r.TID), string(fieldsJSON)); err != nil {
			return fmt.Errorf("insert record %d: %w", seq, err)
		}
		seq++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}

	logrus.Debugf("trace: flushed %d records for run %s", len(s.pending), s.runID)
	s.seq = seq
	s.pending = s.pending[:0]
	return nil
}

// Records loads every record of a run in emission order.
func (s *SQLiteStore) Records(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, core, clock, tid, fields FROM records WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r          Record
			clock, tid int64
			fieldsJSON string
		)
		if err := rows.Scan(&r.Name, &r.Core, &clock, &tid, &fieldsJSON); err != nil {
			return nil, err
		}
		var m map[string]int64
		if err := json.Unmarshal([]byte(fieldsJSON), &m); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
		r.Clock = uint64(clock)
		r.TID = uint32(tid)
		r.Fields = fieldSlice(m)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs lists recorded runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.label, r.created_at, COUNT(rec.id)
		 FROM runs r LEFT JOIN records rec ON rec.run_id = r.id
		 GROUP BY r.id ORDER BY r.created_at DESC, r.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info      RunInfo
			createdAt string
		)
		if err := rows.Scan(&info.ID, &info.Label, &createdAt, &info.Records); err != nil {
			return nil, err
		}
		info.CreatedAt, _ = time.Parse(createdAtLayout, createdAt)
		out = append(out, info)
	}
	return out, rows.Err()
}

func fieldMap(fields []Field) map[string]int64 {
	m := make(map[string]int64, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

// fieldSlice returns fields sorted by key, since JSON objects carry no order.
func fieldSlice(m map[string]int64) []Field {
	out := make([]Field, 0, len(m))
	for k, v := range m {
		out = append(out, Field{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
