package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/models"
)

const orderColumns = `id, exchange, creator, token_get, amount_get::text, token_give, amount_give::text,
			  status, filler, created_at, updated_at`

// InsertOrder records a newly created order as open.
func InsertOrder(ctx context.Context, tx pgx.Tx, xaddr common.Address, ev exchange.OrderCreated) error {
	query := `INSERT INTO orders (exchange, id, creator, token_get, amount_get, token_give, amount_give,
			  status, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7::text::numeric, 'open', $8, $8)
			  ON CONFLICT (exchange, id) DO NOTHING`

	_, err := Querier(tx).Exec(ctx, query,
		xaddr.Bytes(), ev.ID, ev.Creator.Bytes(),
		ev.AssetWanted.Bytes(), ev.AmountWanted.String(),
		ev.AssetOffered.Bytes(), ev.AmountOffered.String(),
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error inserting order %d: %w", ev.ID, err)
	}
	return nil
}

// ErrOrderNotProjected is returned by CloseOrder for an order created before
// the projection started.
var ErrOrderNotProjected = errors.New("order not projected")

// CloseOrder moves an open order to a terminal status. filler is set for
// fills and nil for cancellations.
func CloseOrder(ctx context.Context, tx pgx.Tx, xaddr common.Address, id uint64, status exchange.Status, filler *common.Address, at time.Time) error {
	var fillerBytes []byte
	if filler != nil {
		fillerBytes = filler.Bytes()
	}
	query := `UPDATE orders SET status = $3, filler = $4, updated_at = $5
			  WHERE exchange = $1 AND id = $2 AND status = 'open'`

	cmdTag, err := Querier(tx).Exec(ctx, query, xaddr.Bytes(), id, status.String(), fillerBytes, at)
	if err != nil {
		return fmt.Errorf("error updating order %d status to %s: %w", id, status, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = Querier(tx).QueryRow(ctx, `SELECT status FROM orders WHERE exchange = $1 AND id = $2`, xaddr.Bytes(), id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotProjected
	}
	if err != nil {
		return fmt.Errorf("error checking order %d: %w", id, err)
	}
	return fmt.Errorf("order %d is %s in the projection, not open", id, current)
}

// GetAccountOrders returns every order account created, newest first.
func GetAccountOrders(ctx context.Context, xaddr, account common.Address) ([]*models.Order, error) {
	orders := make([]*models.Order, 0)
	query := `SELECT ` + orderColumns + `
			  FROM orders
			  WHERE exchange = $1 AND creator = $2
			  ORDER BY id DESC`

	rows, err := DB.Query(ctx, query, xaddr.Bytes(), account.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error querying orders for %s: %w", account.Hex(), err)
	}
	defer rows.Close()

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning order row for %s: %w", account.Hex(), err)
		}
		orders = append(orders, order)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating order rows for %s: %w", account.Hex(), rows.Err())
	}
	return orders, nil
}

// GetOrderByID returns nil, nil when the order has not been projected.
func GetOrderByID(ctx context.Context, xaddr common.Address, id uint64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE exchange = $1 AND id = $2`
	order, err := scanOrder(DB.QueryRow(ctx, query, xaddr.Bytes(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting order %d: %w", id, err)
	}
	return order, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID, &order.Exchange, &order.Creator,
		&order.TokenGet, &order.AmountGet, &order.TokenGive, &order.AmountGive,
		&order.Status, &order.Filler, &order.CreatedAt, &order.UpdatedAt,
	)
	return order, err
}

// PgxQuerier is satisfied by both pgxpool.Pool and pgx.Tx.
type PgxQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// Querier returns the transaction if not nil, otherwise the pool.
func Querier(tx pgx.Tx) PgxQuerier {
	if tx != nil {
		return tx
	}
	return DB
}
