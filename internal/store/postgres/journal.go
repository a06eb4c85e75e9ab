package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// Journal records confirmed trades in PostgreSQL. Writes are idempotent on
// the confirmation identity, so retried operations never duplicate rows.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal backed by the given connection pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// RecordSwap inserts one confirmed swap. A swap already recorded under the
// same message id is silently skipped via ON CONFLICT DO NOTHING.
func (j *Journal) RecordSwap(ctx context.Context, wallet string, swap domain.Swap) error {
	const query = `
		INSERT INTO swaps (
			id, wallet, token_in, quantity_in,
			token_out, quantity_out, fees, price
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8
		) ON CONFLICT (id) DO NOTHING`

	_, err := j.pool.Exec(ctx, query,
		swap.ID, wallet, swap.TokenIn.ID, swap.QuantityIn.String(),
		swap.TokenOut.ID, swap.QuantityOut.String(), swap.Fees.String(), swap.Price,
	)
	if err != nil {
		return fmt.Errorf("postgres: record swap %s: %w", swap.ID, err)
	}
	return nil
}

// RecordOrder inserts one perp order state. The same order can legitimately
// appear once per status as it moves through its lifecycle; replays of the
// same (id, status) pair are skipped.
func (j *Journal) RecordOrder(ctx context.Context, wallet, marketID string, order domain.PerpOrder) error {
	const query = `
		INSERT INTO perp_orders (
			id, wallet, market_id, order_type, side, status,
			original_quantity, executed_quantity, price, executed_value
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		) ON CONFLICT (id, status) DO NOTHING`

	var price *string
	if order.InitialPrice != nil {
		s := order.InitialPrice.String()
		price = &s
	}

	_, err := j.pool.Exec(ctx, query,
		order.ID, wallet, marketID, string(order.Type), string(order.Side), string(order.Status),
		order.OriginalQuantity.Quantity.String(), order.ExecutedQuantity.Quantity.String(),
		price, order.ExecutedValue.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: record order %s: %w", order.ID, err)
	}
	return nil
}

// SwapRecord is one journaled swap row.
type SwapRecord struct {
	ID          string
	Wallet      string
	TokenIn     string
	QuantityIn  *big.Int
	TokenOut    string
	QuantityOut *big.Int
	Fees        *big.Int
	Price       float64
	ConfirmedAt time.Time
}

// ListSwapsByWallet returns the wallet's journaled swaps, newest first.
func (j *Journal) ListSwapsByWallet(ctx context.Context, wallet string, limit int) ([]SwapRecord, error) {
	query := `
		SELECT id, wallet, token_in, quantity_in::text, token_out, quantity_out::text, fees::text, price, confirmed_at
		FROM swaps WHERE wallet = $1 ORDER BY confirmed_at DESC`
	args := []any{wallet}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list swaps by wallet: %w", err)
	}
	defer rows.Close()

	records, err := scanSwapRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan swaps by wallet: %w", err)
	}
	return records, nil
}

func scanSwapRows(rows pgx.Rows) ([]SwapRecord, error) {
	var records []SwapRecord
	for rows.Next() {
		var (
			r                   SwapRecord
			qtyIn, qtyOut, fees string
		)
		if err := rows.Scan(
			&r.ID, &r.Wallet, &r.TokenIn, &qtyIn,
			&r.TokenOut, &qtyOut, &fees, &r.Price, &r.ConfirmedAt,
		); err != nil {
			return nil, err
		}
		var ok bool
		if r.QuantityIn, ok = new(big.Int).SetString(qtyIn, 10); !ok {
			return nil, fmt.Errorf("malformed quantity_in %q for swap %s", qtyIn, r.ID)
		}
		if r.QuantityOut, ok = new(big.Int).SetString(qtyOut, 10); !ok {
			return nil, fmt.Errorf("malformed quantity_out %q for swap %s", qtyOut, r.ID)
		}
		if r.Fees, ok = new(big.Int).SetString(fees, 10); !ok {
			return nil, fmt.Errorf("malformed fees %q for swap %s", fees, r.ID)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
