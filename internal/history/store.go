// Package history keeps finished generation runs in SQLite so their raw
// output can be inspected or re-extracted later.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

var ErrNotFound = errors.New("history: run not found")

// timeLayout is fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one finished generation: the full raw stream and what recovery
// made of it.
type Run struct {
	ID             string
	CreatedAt      time.Time
	State          string
	TransportError string
	RawText        string
	Tier           string
	Records        []testcase.Record
}

type runRow struct {
	ID             string `db:"run_id"`
	CreatedAt      string `db:"created_at"`
	State          string `db:"state"`
	TransportError string `db:"transport_error"`
	RawText        string `db:"raw_text"`
	Tier           string `db:"tier"`
	Records        string `db:"records"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	created_at      TEXT NOT NULL,
	state           TEXT NOT NULL,
	transport_error TEXT NOT NULL DEFAULT '',
	raw_text        TEXT NOT NULL DEFAULT '',
	tier            TEXT NOT NULL DEFAULT '',
	records         TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
`

type Store struct {
	db *sqlx.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts run, replacing any earlier run with the same ID.
func (s *Store) Save(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("history: run id is required")
	}
	records := run.Records
	if records == nil {
		records = []testcase.Record{}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	row := runRow{
		ID:             run.ID,
		CreatedAt:      run.CreatedAt.UTC().Format(timeLayout),
		State:          run.State,
		TransportError: run.TransportError,
		RawText:        run.RawText,
		Tier:           run.Tier,
		Records:        string(blob),
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, created_at, state, transport_error, raw_text, tier, records)
		VALUES (:run_id, :created_at, :state, :transport_error, :raw_text, :tier, :records)`, row)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT run_id, created_at, state, transport_error, raw_text, tier, records
		FROM runs WHERE run_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return row.run()
}

// List returns the newest runs first. A limit of zero or less means 20.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT run_id, created_at, state, transport_error, raw_text, tier, records
		FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.run()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (r runRow) run() (Run, error) {
	run := Run{
		ID:             r.ID,
		State:          r.State,
		TransportError: r.TransportError,
		RawText:        r.RawText,
		Tier:           r.Tier,
	}
	run.CreatedAt, _ = time.Parse(timeLayout, r.CreatedAt)
	if err := json.Unmarshal([]byte(r.Records), &run.Records); err != nil {
		return Run{}, fmt.Errorf("decode records for run %s: %w", r.ID, err)
	}
	return run, nil
}
