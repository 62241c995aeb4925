package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"emax/internal/application/port"
	"emax/internal/domain/model"
)

// Repo is the embedded storage backend. Bar timestamps are stored as unix
// milliseconds and read back as UTC instants.
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS market_data (
  symbol TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  open REAL NOT NULL,
  high REAL NOT NULL,
  low REAL NOT NULL,
  close REAL NOT NULL,
  volume INTEGER NOT NULL,
  PRIMARY KEY(symbol, ts_ms)
);
CREATE INDEX IF NOT EXISTS idx_market_data_ts ON market_data(ts_ms);

CREATE TABLE IF NOT EXISTS transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  strategy_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  action TEXT NOT NULL,
  price REAL NOT NULL,
  quantity INTEGER NOT NULL,
  status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(symbol);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts_ms);
`)
	return err
}

// UpsertBars writes the batch in one transaction. Re-inserting an existing
// (symbol, timestamp) row overwrites it, so replays are idempotent.
func (r *Repo) UpsertBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_data(symbol, ts_ms, open, high, low, close, volume)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, ts_ms) DO UPDATE SET
		open=excluded.open, high=excluded.high, low=excluded.low,
		close=excluded.close, volume=excluded.volume
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Timestamp.UnixMilli(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) ReadRange(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ts_ms, open, high, low, close, volume
		FROM market_data
		WHERE symbol=? AND ts_ms>=? AND ts_ms<=?
		ORDER BY ts_ms ASC
	`, symbol, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func (r *Repo) ReadLatest(ctx context.Context, symbol string) (*model.Bar, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT symbol, ts_ms, open, high, low, close, volume
		FROM market_data
		WHERE symbol=?
		ORDER BY ts_ms DESC
		LIMIT 1
	`, symbol)

	b, err := scanBar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) AppendTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(ts_ms, strategy_id, symbol, action, price, quantity, status)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, t.Timestamp.UnixMilli(), t.StrategyID, t.Symbol, string(t.Action), t.Price, t.Quantity, t.Status)
	return err
}

func (r *Repo) ListTransactions(ctx context.Context, symbol string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts_ms, strategy_id, symbol, action, price, quantity, status
		FROM transactions
		WHERE symbol=?
		ORDER BY ts_ms DESC, id DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var ts int64
		var action string
		if err := rows.Scan(&ts, &t.StrategyID, &t.Symbol, &action, &t.Price, &t.Quantity, &t.Status); err != nil {
			return nil, err
		}
		t.Timestamp = time.UnixMilli(ts).UTC()
		t.Action = model.Side(action)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBar(row rowScanner) (model.Bar, error) {
	var b model.Bar
	var ts int64
	if err := row.Scan(&b.Symbol, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
		return model.Bar{}, err
	}
	b.Timestamp = time.UnixMilli(ts).UTC()
	return b, nil
}

var _ port.Repository = (*Repo)(nil)
