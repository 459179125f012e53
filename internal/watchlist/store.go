// Package watchlist persists the registered address set — and only that
// set, never derived BorrowerState — to Postgres, mirroring the teacher's
// persistence package. BorrowerState and the BorrowIndexTable stay
// in-memory and are rebuilt from ChainReader on startup (§4.6): the
// database's sole job is remembering which addresses to rehydrate.
package watchlist

import (
	"context"
	"database/sql"
	"fmt"

	"LiquidCore/internal/domain"
)

// Store is a Postgres-backed set of watched addresses.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-opened *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add records addr as watched. Idempotent: re-adding an already-watched
// address is a no-op.
func (s *Store) Add(ctx context.Context, addr domain.Address) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watchlist.addresses (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`,
		addr.String(),
	)
	if err != nil {
		return fmt.Errorf("watchlist: add %s: %w", addr, err)
	}
	return nil
}

// Remove deletes addr from the watched set.
func (s *Store) Remove(ctx context.Context, addr domain.Address) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watchlist.addresses WHERE address = $1`, addr.String())
	if err != nil {
		return fmt.Errorf("watchlist: remove %s: %w", addr, err)
	}
	return nil
}

// All returns every currently watched address, for startup rehydration.
func (s *Store) All(ctx context.Context) ([]domain.Address, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address FROM watchlist.addresses`)
	if err != nil {
		return nil, fmt.Errorf("watchlist: list: %w", err)
	}
	defer rows.Close()

	var out []domain.Address
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("watchlist: scan: %w", err)
		}
		addr, err := domain.ParseAddress(hex)
		if err != nil {
			return nil, fmt.Errorf("watchlist: parse stored address %q: %w", hex, err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}
