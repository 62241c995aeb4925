package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"emax/internal/application/port"
	"emax/internal/domain/model"
)

const (
	connectAttempts = 5
	connectDelay    = 5 * time.Second
)

// Repo is the server storage backend. Timestamps are stored as TIMESTAMPTZ
// and read back as UTC instants.
type Repo struct {
	db *sql.DB
}

// New opens the pool and pings it up to connectAttempts times before giving
// up, so the service survives a database that is still starting.
func New(ctx context.Context, dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := pingWithRetry(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", port.ErrStoreUnavailable, err)
	}

	r := &Repo{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("max", connectAttempts).
			Msg("postgres not reachable yet")
		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	return err
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS market_data (
  symbol TEXT NOT NULL,
  ts TIMESTAMPTZ NOT NULL,
  open DOUBLE PRECISION NOT NULL,
  high DOUBLE PRECISION NOT NULL,
  low DOUBLE PRECISION NOT NULL,
  close DOUBLE PRECISION NOT NULL,
  volume BIGINT NOT NULL,
  PRIMARY KEY(symbol, ts)
);
CREATE INDEX IF NOT EXISTS idx_market_data_ts ON market_data(ts);

CREATE TABLE IF NOT EXISTS transactions (
  id BIGSERIAL PRIMARY KEY,
  ts TIMESTAMPTZ NOT NULL,
  strategy_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  action TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  quantity BIGINT NOT NULL,
  status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(symbol);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts);
`)
	return err
}

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
		INSERT INTO market_data(symbol, ts, open, high, low, close, volume)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(symbol, ts) DO UPDATE SET
		open=excluded.open, high=excluded.high, low=excluded.low,
		close=excluded.close, volume=excluded.volume
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Timestamp.UTC(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) ReadRange(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM market_data
		WHERE symbol=$1 AND ts>=$2 AND ts<=$3
		ORDER BY ts ASC
	`, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

func (r *Repo) ReadLatest(ctx context.Context, symbol string) (*model.Bar, error) {
	var b model.Bar
	err := r.db.QueryRowContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM market_data
		WHERE symbol=$1
		ORDER BY ts DESC
		LIMIT 1
	`, symbol).Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Timestamp = b.Timestamp.UTC()
	return &b, nil
}

func (r *Repo) AppendTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(ts, strategy_id, symbol, action, price, quantity, status)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, t.Timestamp.UTC(), t.StrategyID, t.Symbol, string(t.Action), t.Price, t.Quantity, t.Status)
	return err
}

func (r *Repo) ListTransactions(ctx context.Context, symbol string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, strategy_id, symbol, action, price, quantity, status
		FROM transactions
		WHERE symbol=$1
		ORDER BY ts DESC, id DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var action string
		if err := rows.Scan(&t.Timestamp, &t.StrategyID, &t.Symbol, &action, &t.Price, &t.Quantity, &t.Status); err != nil {
			return nil, err
		}
		t.Timestamp = t.Timestamp.UTC()
		t.Action = model.Side(action)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

var _ port.Repository = (*Repo)(nil)
