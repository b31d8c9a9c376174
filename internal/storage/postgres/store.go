package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"openamm/internal/model"
	"openamm/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS amm_pools (
	pool_address TEXT PRIMARY KEY,
	market_address TEXT NOT NULL,
	curve_type TEXT NOT NULL,
	mm_active BOOLEAN NOT NULL,
	client_order_id NUMERIC(20,0) NOT NULL,
	state JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS amm_liquidity_events (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	pool_address TEXT NOT NULL,
	owner_address TEXT NOT NULL,
	curve_type TEXT NOT NULL,
	start_base NUMERIC(20,0) NOT NULL,
	start_quote NUMERIC(20,0) NOT NULL,
	start_lp NUMERIC(20,0) NOT NULL,
	end_base NUMERIC(20,0) NOT NULL,
	end_quote NUMERIC(20,0) NOT NULL,
	end_lp NUMERIC(20,0) NOT NULL,
	event_ts TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS amm_liquidity_events_pool_idx ON amm_liquidity_events (pool_address, event_ts);
`

// Store provides Postgres persistence for pools and the liquidity journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func poolKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// Load returns the pool stored under addr.
func (s *Store) Load(ctx context.Context, addr common.Address) (model.Pool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT state FROM amm_pools WHERE pool_address=$1`, poolKey(addr))
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, fmt.Errorf("%w: %s", storage.ErrPoolNotFound, addr.Hex())
		}
		return model.Pool{}, err
	}
	var p model.Pool
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Pool{}, fmt.Errorf("parse pool state: %w", err)
	}
	return p, nil
}

// Save upserts the full pool record.
func (s *Store) Save(ctx context.Context, p model.Pool) error {
	state, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pool state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO amm_pools (pool_address, market_address, curve_type, mm_active, client_order_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, now(), now())
		ON CONFLICT (pool_address) DO UPDATE SET
			mm_active = EXCLUDED.mm_active,
			client_order_id = EXCLUDED.client_order_id,
			state = EXCLUDED.state,
			updated_at = now()
	`,
		poolKey(p.Address),
		poolKey(p.Market),
		p.CurveType.String(),
		p.MMActive,
		strconv.FormatUint(p.ClientOrderID, 10),
		state,
	)
	return err
}

// List returns every stored pool address.
func (s *Store) List(ctx context.Context) ([]common.Address, error) {
	rows, err := s.pool.Query(ctx, `SELECT pool_address FROM amm_pools ORDER BY pool_address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, common.HexToAddress(addr))
	}
	return out, rows.Err()
}

// Append inserts liquidity events in one batch. Replayed ids are ignored.
func (s *Store) Append(ctx context.Context, events ...model.LiquidityEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO amm_liquidity_events (
				id, kind, pool_address, owner_address, curve_type,
				start_base, start_quote, start_lp, end_base, end_quote, end_lp, event_ts, created_at
			) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12::timestamptz,now())
			ON CONFLICT (id) DO NOTHING
		`,
			ev.ID,
			string(ev.Kind),
			poolKey(ev.Pool),
			poolKey(ev.Owner),
			ev.CurveType.String(),
			strconv.FormatUint(ev.StartBase, 10),
			strconv.FormatUint(ev.StartQuote, 10),
			strconv.FormatUint(ev.StartLP, 10),
			strconv.FormatUint(ev.EndBase, 10),
			strconv.FormatUint(ev.EndQuote, 10),
			strconv.FormatUint(ev.EndLP, 10),
			ev.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ storage.PoolStore = (*Store)(nil)
	_ storage.Journal   = (*Store)(nil)
)
