package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			exchange TEXT NOT NULL,
			message TEXT NOT NULL,
			code INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_exchange ON events(exchange);`,
		`CREATE TABLE IF NOT EXISTS coin_states (
			exchange TEXT NOT NULL,
			base TEXT NOT NULL,
			active BOOLEAN NOT NULL,
			deposit BOOLEAN NOT NULL,
			withdraw BOOLEAN NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (exchange, base)
		);`,
		`CREATE TABLE IF NOT EXISTS coin_networks (
			exchange TEXT NOT NULL,
			base TEXT NOT NULL,
			name TEXT NOT NULL,
			network TEXT NOT NULL,
			chain TEXT NOT NULL,
			deposit BOOLEAN NOT NULL,
			withdraw BOOLEAN NOT NULL,
			withdraw_fee REAL NOT NULL,
			min_withdrawal REAL NOT NULL,
			max_withdrawal REAL NOT NULL,
			min_confirm INTEGER NOT NULL,
			arrival_time TEXT NOT NULL,
			PRIMARY KEY (exchange, base, name)
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, ev *domain.EventRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (exchange, message, code, created_at) VALUES (?, ?, ?, ?)`,
		ev.Exchange, ev.Message, ev.Code, ev.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]*domain.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exchange, message, code, created_at FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EventRecord
	for rows.Next() {
		ev := &domain.EventRecord{}
		if err := rows.Scan(&ev.ID, &ev.Exchange, &ev.Message, &ev.Code, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCoinStates(ctx context.Context, exchange string, states []*domain.CoinState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	nowMs := nowUnixMilli()
	for _, st := range states {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO coin_states (exchange, base, active, deposit, withdraw, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(exchange, base) DO UPDATE SET
				active = excluded.active,
				deposit = excluded.deposit,
				withdraw = excluded.withdraw,
				updated_at = excluded.updated_at`,
			exchange, st.Base, st.Active, st.Deposit, st.Withdraw, nowMs,
		)
		if err != nil {
			return err
		}
		for _, n := range st.Networks {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO coin_networks
					(exchange, base, name, network, chain, deposit, withdraw,
					 withdraw_fee, min_withdrawal, max_withdrawal, min_confirm, arrival_time)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(exchange, base, name) DO UPDATE SET
					deposit = excluded.deposit,
					withdraw = excluded.withdraw`,
				exchange, st.Base, n.Name, n.Network, n.Chain, n.Deposit, n.Withdraw,
				n.WithdrawFee, n.MinWithdrawal, n.MaxWithdrawal, n.MinConfirm, n.ArrivalTime,
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadCoinStates(ctx context.Context, exchange string) ([]*domain.CoinState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT base, active, deposit, withdraw FROM coin_states WHERE exchange = ? ORDER BY base`, exchange)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.CoinState
	byBase := make(map[string]*domain.CoinState)
	for rows.Next() {
		st := &domain.CoinState{}
		if err := rows.Scan(&st.Base, &st.Active, &st.Deposit, &st.Withdraw); err != nil {
			return nil, err
		}
		states = append(states, st)
		byBase[st.Base] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nrows, err := s.db.QueryContext(ctx,
		`SELECT base, name, network, chain, deposit, withdraw,
			withdraw_fee, min_withdrawal, max_withdrawal, min_confirm, arrival_time
		 FROM coin_networks WHERE exchange = ? ORDER BY base, name`, exchange)
	if err != nil {
		return nil, err
	}
	defer nrows.Close()

	for nrows.Next() {
		var base string
		var n domain.CoinNetwork
		if err := nrows.Scan(&base, &n.Name, &n.Network, &n.Chain, &n.Deposit, &n.Withdraw,
			&n.WithdrawFee, &n.MinWithdrawal, &n.MaxWithdrawal, &n.MinConfirm, &n.ArrivalTime); err != nil {
			return nil, err
		}
		if st, ok := byBase[base]; ok {
			st.Networks = append(st.Networks, n)
		}
	}
	return states, nrows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
