package recorder

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/vadiminshakov/fusiontrader/internal/domain"
)

const defaultRecentLimit = 50

// SQLiteRecorder persists decisions to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// readers (web, CLI) run while the loop writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			decision    TEXT NOT NULL,
			confidence  REAL,
			score       REAL,
			entry       REAL,
			lot         REAL,
			sl          REAL,
			tp          TEXT,
			regime      TEXT,
			mode        TEXT,
			num_entries INTEGER,
			reason      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return errors.Wrapf(err, "exec %q", s[:40])
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordDecision(d domain.FinalDecision) error {
	if d.ID == "" {
		return errors.New("decision id is required")
	}
	tp, err := json.Marshal(d.TP)
	if err != nil {
		return errors.Wrap(err, "encode take profits")
	}
	ts := d.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var sl sql.NullFloat64
	if d.SL != nil {
		sl = sql.NullFloat64{Float64: *d.SL, Valid: true}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT OR REPLACE INTO decisions
		(id, timestamp, symbol, decision, confidence, score, entry, lot, sl, tp, regime, mode, num_entries, reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, ts.UnixMilli(), d.Symbol, string(d.Decision), d.Confidence, d.Score, d.Entry, d.Lot,
		sl, string(tp), string(d.Regime), d.Mode, d.NumEntries, d.Reason,
	)
	return errors.Wrap(err, "insert decision")
}

func (r *SQLiteRecorder) Recent(symbol string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `SELECT id, timestamp, symbol, decision, confidence, score, entry, lot, sl, tp, regime, mode, num_entries, reason
		FROM decisions`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query recent decisions")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row      Row
			ts       int64
			decision string
			regime   string
			sl       sql.NullFloat64
			tp       string
		)
		if err := rows.Scan(&row.ID, &ts, &row.Symbol, &decision, &row.Confidence, &row.Score, &row.Entry,
			&row.Lot, &sl, &tp, &regime, &row.Mode, &row.NumEntries, &row.Reason); err != nil {
			return nil, errors.Wrap(err, "scan decision row")
		}
		row.Timestamp = time.UnixMilli(ts).UTC()
		row.Decision = domain.Decision(decision)
		row.Regime = domain.Regime(regime)
		if sl.Valid {
			v := sl.Float64
			row.SL = &v
		}
		if tp != "" {
			if err := json.Unmarshal([]byte(tp), &row.TP); err != nil {
				return nil, errors.Wrap(err, "decode take profits")
			}
		}
		out = append(out, row)
	}
	return out, errors.Wrap(rows.Err(), "iterate decisions")
}

func (r *SQLiteRecorder) Counts(since time.Time) (map[domain.Decision]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT decision, COUNT(*) FROM decisions WHERE timestamp >= ? GROUP BY decision`, since.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "count decisions")
	}
	defer rows.Close()

	out := make(map[domain.Decision]int)
	for rows.Next() {
		var (
			d string
			n int
		)
		if err := rows.Scan(&d, &n); err != nil {
			return nil, errors.Wrap(err, "scan decision count")
		}
		out[domain.Decision(d)] = n
	}
	return out, errors.Wrap(rows.Err(), "iterate decision counts")
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
