package database

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/models"
)

// ErrNoBalance is returned by AdjustBalance when the account has no projected
// row for the token yet.
var ErrNoBalance = errors.New("no projected balance")

// SetBalance overwrites a projected custodial balance with its value as of
// block height. Rows already at or past that height are left alone.
func SetBalance(ctx context.Context, tx pgx.Tx, xaddr, account, token common.Address, amount *big.Int, height uint64, at time.Time) error {
	query := `INSERT INTO balances (exchange, account, token, amount, height, updated_at)
			  VALUES ($1, $2, $3, $4::text::numeric, $5, $6)
			  ON CONFLICT (exchange, account, token) DO UPDATE
			  SET amount = EXCLUDED.amount, height = EXCLUDED.height, updated_at = EXCLUDED.updated_at
			  WHERE balances.height < EXCLUDED.height`

	_, err := Querier(tx).Exec(ctx, query, xaddr.Bytes(), account.Bytes(), token.Bytes(), amount.String(), int64(height), at)
	if err != nil {
		return fmt.Errorf("error setting balance for %s token %s: %w", account.Hex(), token.Hex(), err)
	}
	return nil
}

// AdjustBalance adds delta (which may be negative) to a projected balance
// that is older than block height. A row already at or past height is left
// alone. The amount >= 0 check constraint rejects any delta that would
// underflow.
func AdjustBalance(ctx context.Context, tx pgx.Tx, xaddr, account, token common.Address, delta *big.Int, height uint64, at time.Time) error {
	query := `UPDATE balances SET amount = amount + $4::text::numeric, height = $5, updated_at = $6
			  WHERE exchange = $1 AND account = $2 AND token = $3 AND height < $5`

	cmdTag, err := Querier(tx).Exec(ctx, query, xaddr.Bytes(), account.Bytes(), token.Bytes(), delta.String(), int64(height), at)
	if err != nil {
		return fmt.Errorf("error adjusting balance for %s token %s by %s: %w", account.Hex(), token.Hex(), delta, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var current int64
	err = Querier(tx).QueryRow(ctx,
		`SELECT height FROM balances WHERE exchange = $1 AND account = $2 AND token = $3`,
		xaddr.Bytes(), account.Bytes(), token.Bytes()).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoBalance
	}
	if err != nil {
		return fmt.Errorf("error checking balance for %s token %s: %w", account.Hex(), token.Hex(), err)
	}
	log.Debugf("Balance of %s token %s is at block %d, skipping block %d", account.Hex(), token.Hex(), current, height)
	return nil
}

// GetAccountBalances retrieves all projected custodial balances of account.
func GetAccountBalances(ctx context.Context, xaddr, account common.Address) ([]*models.Balance, error) {
	balances := make([]*models.Balance, 0)
	query := `SELECT account, token, amount::text, updated_at
			  FROM balances WHERE exchange = $1 AND account = $2 ORDER BY token`

	rows, err := DB.Query(ctx, query, xaddr.Bytes(), account.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error querying balances for %s: %w", account.Hex(), err)
	}
	defer rows.Close()

	for rows.Next() {
		balance := &models.Balance{}
		if err := rows.Scan(&balance.Account, &balance.Token, &balance.Amount, &balance.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning balance row for %s: %w", account.Hex(), err)
		}
		balances = append(balances, balance)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating balance rows for %s: %w", account.Hex(), rows.Err())
	}
	return balances, nil
}
