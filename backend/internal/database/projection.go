package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/models"
)

// CustodySource reads the live custodial balance of account in token and the
// block height it was read at.
type CustodySource func(ctx context.Context, account, token common.Address) (*big.Int, uint64, error)

// Projector keeps the SQL read model in step with one exchange. Receipts
// must be applied in height order; re-applying a receipt is a no-op.
type Projector struct {
	Exchange   common.Address
	FeeAccount common.Address
	FeePercent uint64

	// Custody seeds balances the projection has never seen, such as custody
	// deposited before the projector started. Without it the first delta
	// becomes the balance.
	Custody CustodySource
}

func NewProjector(xaddr common.Address, cfg exchange.Config) *Projector {
	return &Projector{Exchange: xaddr, FeeAccount: cfg.FeeAccount, FeePercent: cfg.FeePercent}
}

// Apply projects a committed receipt in a single SQL transaction.
func (p *Projector) Apply(ctx context.Context, r *chain.Receipt) error {
	tx, err := DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin projection of block %d: %w", r.Height, err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO receipts (height, id, caller, block_time) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (height) DO NOTHING`,
		r.Height, r.ID, r.Caller.Bytes(), r.Time)
	if err != nil {
		return fmt.Errorf("insert receipt %d: %w", r.Height, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.Debugf("block %d already projected", r.Height)
		return nil
	}

	changes := newBalanceChanges()
	for i, l := range r.Logs {
		args, err := json.Marshal(l.Event)
		if err != nil {
			return fmt.Errorf("encode %s of block %d: %w", l.Event.EventName(), r.Height, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO events (height, idx, contract, name, args) VALUES ($1, $2, $3, $4, $5)`,
			r.Height, i, l.Address.Bytes(), l.Event.EventName(), args)
		if err != nil {
			return fmt.Errorf("insert event %d of block %d: %w", i, r.Height, err)
		}
		if l.Address == p.Exchange {
			if err := p.applyExchangeEvent(ctx, tx, l.Event, changes); err != nil {
				return fmt.Errorf("project block %d: %w", r.Height, err)
			}
		}
	}
	if err := p.flushBalances(ctx, tx, r, changes); err != nil {
		return fmt.Errorf("project balances of block %d: %w", r.Height, err)
	}

	return tx.Commit(ctx)
}

func (p *Projector) applyExchangeEvent(ctx context.Context, tx pgx.Tx, ev chain.Event, changes *balanceChanges) error {
	switch e := ev.(type) {
	case exchange.TokensDeposited:
		changes.set(e.User, e.Token, e.Balance)
	case exchange.TokensWithdrawn:
		changes.set(e.User, e.Token, e.Balance)
	case exchange.OrderCreated:
		return InsertOrder(ctx, tx, p.Exchange, e)
	case exchange.OrderCancelled:
		return skipUnprojected(e.ID, CloseOrder(ctx, tx, p.Exchange, e.ID, exchange.StatusCancelled, nil, e.Timestamp))
	case exchange.OrderFilled:
		err := CloseOrder(ctx, tx, p.Exchange, e.ID, exchange.StatusFilled, &e.Filler, e.Timestamp)
		if err := skipUnprojected(e.ID, err); err != nil {
			return err
		}
		fee := exchange.Fee(e.AmountWanted, p.FeePercent)
		for _, d := range []struct {
			account common.Address
			token   common.Address
			delta   *big.Int
		}{
			{e.Filler, e.AssetWanted, new(big.Int).Neg(new(big.Int).Add(e.AmountWanted, fee))},
			{e.Creator, e.AssetWanted, e.AmountWanted},
			{p.FeeAccount, e.AssetWanted, fee},
			{e.Creator, e.AssetOffered, new(big.Int).Neg(e.AmountOffered)},
			{e.Filler, e.AssetOffered, e.AmountOffered},
		} {
			changes.add(d.account, d.token, d.delta)
		}
	case exchange.FlashLoan:
		changes.add(p.FeeAccount, e.Asset, exchange.LoanFee(e.Amount))
	}
	return nil
}

// skipUnprojected lets a block close an order the projection never saw open.
// Its balance effects are still projected.
func skipUnprojected(id uint64, err error) error {
	if errors.Is(err, ErrOrderNotProjected) {
		log.Warnf("Order %d predates the projection, not recording its close", id)
		return nil
	}
	return err
}

// flushBalances writes one row per account and token touched by the block.
func (p *Projector) flushBalances(ctx context.Context, tx pgx.Tx, r *chain.Receipt, changes *balanceChanges) error {
	for _, k := range changes.order {
		c := changes.rows[k]
		if c.set != nil {
			amount := new(big.Int).Add(c.set, c.delta)
			if err := SetBalance(ctx, tx, p.Exchange, k.account, k.token, amount, r.Height, r.Time); err != nil {
				return err
			}
			continue
		}
		err := AdjustBalance(ctx, tx, p.Exchange, k.account, k.token, c.delta, r.Height, r.Time)
		if errors.Is(err, ErrNoBalance) {
			err = p.seedBalance(ctx, tx, r, k, c.delta)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// seedBalance creates the first row of an account and token. The live chain
// value already includes block r, since r was committed before it was
// projected.
func (p *Projector) seedBalance(ctx context.Context, tx pgx.Tx, r *chain.Receipt, k balanceKey, delta *big.Int) error {
	if p.Custody == nil {
		return SetBalance(ctx, tx, p.Exchange, k.account, k.token, delta, r.Height, r.Time)
	}
	amount, height, err := p.Custody(ctx, k.account, k.token)
	if err != nil {
		return fmt.Errorf("read custody of %s token %s: %w", k.account.Hex(), k.token.Hex(), err)
	}
	if height < r.Height {
		return fmt.Errorf("custody of %s token %s read at block %d, before block %d", k.account.Hex(), k.token.Hex(), height, r.Height)
	}
	log.WithFields(log.Fields{"account": k.account.Hex(), "token": k.token.Hex(), "height": height}).Info("Seeding projected balance from chain")
	return SetBalance(ctx, tx, p.Exchange, k.account, k.token, amount, height, r.Time)
}

type balanceKey struct {
	account common.Address
	token   common.Address
}

type balanceChange struct {
	set   *big.Int
	delta *big.Int
}

// balanceChanges collects the balance effects of one block so that each row
// is written once. A set replaces everything recorded before it.
type balanceChanges struct {
	order []balanceKey
	rows  map[balanceKey]*balanceChange
}

func newBalanceChanges() *balanceChanges {
	return &balanceChanges{rows: make(map[balanceKey]*balanceChange)}
}

func (b *balanceChanges) row(account, token common.Address) *balanceChange {
	k := balanceKey{account: account, token: token}
	c, ok := b.rows[k]
	if !ok {
		c = &balanceChange{delta: new(big.Int)}
		b.rows[k] = c
		b.order = append(b.order, k)
	}
	return c
}

func (b *balanceChanges) set(account, token common.Address, amount *big.Int) {
	c := b.row(account, token)
	c.set = new(big.Int).Set(amount)
	c.delta.SetInt64(0)
}

func (b *balanceChanges) add(account, token common.Address, delta *big.Int) {
	c := b.row(account, token)
	c.delta.Add(c.delta, delta)
}

// GetEvents returns up to limit projected events at heights above after.
func GetEvents(ctx context.Context, after uint64, limit int) ([]*models.Event, error) {
	events := make([]*models.Event, 0)
	query := `SELECT e.height, e.idx, e.contract, e.name, e.args, r.block_time
			  FROM events e JOIN receipts r ON r.height = e.height
			  WHERE e.height > $1
			  ORDER BY e.height, e.idx
			  LIMIT $2`

	rows, err := DB.Query(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying events after %d: %w", after, err)
	}
	defer rows.Close()

	for rows.Next() {
		ev := &models.Event{}
		if err := rows.Scan(&ev.Height, &ev.Index, &ev.Contract, &ev.Name, &ev.Args, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning event row: %w", err)
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", rows.Err())
	}
	return events, nil
}

// LastProjectedHeight returns the highest projected block, or 0.
func LastProjectedHeight(ctx context.Context) (uint64, error) {
	var h uint64
	err := DB.QueryRow(ctx, `SELECT COALESCE(MAX(height), 0) FROM receipts`).Scan(&h)
	return h, err
}
