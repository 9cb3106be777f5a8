package database

import (
	"context"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/genesis"
	"github.com/user/dexsettle/backend/internal/token"
	"github.com/user/dexsettle/backend/internal/units"
)

// setupDB connects to DATABASE_URL and empties every table. The tests are
// skipped without it.
func setupDB(t *testing.T) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, InitDB(ctx, url))
	t.Cleanup(CloseDB)
	_, err := DB.Exec(ctx, `TRUNCATE events, receipts, orders, balances, users`)
	require.NoError(t, err)
}

func TestUserStore(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	account := chain.AccountFromName("alice")

	u, err := CreateUser(ctx, "alice", "hash", account)
	require.NoError(t, err)
	require.NoError(t, EnsureUser(ctx, "alice", "other", account))

	got, err := GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, account, got.Account)
	assert.Equal(t, "hash", got.Password)

	byID, err := GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	missing, err := GetUserByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProjectionTracksCustody(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	c := chain.New(chain.NewMemStore())
	accts := genesis.DefaultAccounts()

	var receipts []*chain.Receipt
	c.Subscribe(func(r *chain.Receipt) { receipts = append(receipts, r) })

	d, err := genesis.Deploy(ctx, c, accts)
	require.NoError(t, err)
	x := exchange.At(d.Exchange)
	dapp, musdc := token.At(d.DAPP), token.At(d.MUSDC)

	exec := func(caller common.Address, fn func(env *chain.Env) error) {
		_, err := c.Execute(ctx, caller, fn)
		require.NoError(t, err)
	}
	exec(accts.Deployer, func(env *chain.Env) error {
		if err := dapp.Transfer(env, accts.User1, units.Tokens("1000")); err != nil {
			return err
		}
		return musdc.Transfer(env, accts.User2, units.Tokens("1000"))
	})
	deposit := func(user common.Address, tok *token.Token) {
		exec(user, func(env *chain.Env) error {
			if err := tok.Approve(env, x.Address(), units.Tokens("1000")); err != nil {
				return err
			}
			_, err := x.DepositToken(env, tok.Address(), units.Tokens("1000"))
			return err
		})
	}
	deposit(accts.User1, dapp)
	deposit(accts.User2, musdc)
	exec(accts.User1, func(env *chain.Env) error {
		if _, err := x.MakeOrder(env, musdc.Address(), units.Tokens("10"), dapp.Address(), units.Tokens("20")); err != nil {
			return err
		}
		_, err := x.MakeOrder(env, musdc.Address(), units.Tokens("1"), dapp.Address(), units.Tokens("1"))
		return err
	})
	exec(accts.User2, func(env *chain.Env) error { return x.FillOrder(env, 1) })
	exec(accts.User1, func(env *chain.Env) error { return x.CancelOrder(env, 2) })

	var cfg exchange.Config
	require.NoError(t, c.View(func(env *chain.Env) error {
		cfg, err = x.Config(env)
		return err
	}))
	p := NewProjector(d.Exchange, cfg)
	for _, r := range receipts {
		require.NoError(t, p.Apply(ctx, r))
	}
	// Replays are ignored.
	require.NoError(t, p.Apply(ctx, receipts[len(receipts)-1]))

	h, err := LastProjectedHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, receipts[len(receipts)-1].Height, h)

	for _, acct := range []common.Address{accts.User1, accts.User2, accts.Collector} {
		rows, err := GetAccountBalances(ctx, d.Exchange, acct)
		require.NoError(t, err)
		require.NoError(t, c.View(func(env *chain.Env) error {
			for _, row := range rows {
				want, err := x.TotalBalanceOf(env, row.Token, acct)
				require.NoError(t, err)
				assert.Equal(t, want.String(), row.Amount, "%s %s", acct.Hex(), row.Token.Hex())
			}
			return nil
		}))
	}

	orders, err := GetAccountOrders(ctx, d.Exchange, accts.User1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "cancelled", orders[0].Status)
	assert.Nil(t, orders[0].Filler)
	assert.Equal(t, "filled", orders[1].Status)
	require.NotNil(t, orders[1].Filler)
	assert.Equal(t, accts.User2, *orders[1].Filler)
	assert.Equal(t, units.Tokens("20").String(), orders[1].AmountGive)

	fee, err := GetAccountBalances(ctx, d.Exchange, accts.Collector)
	require.NoError(t, err)
	require.Len(t, fee, 1)
	assert.Equal(t, new(big.Int).Div(units.Tokens("10"), big.NewInt(10)).String(), fee[0].Amount)

	events, err := GetEvents(ctx, 0, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestBalanceChangesCollapsePerRow(t *testing.T) {
	alice, bob := chain.AccountFromName("alice"), chain.AccountFromName("bob")
	tok := common.HexToAddress("0x01")

	b := newBalanceChanges()
	b.add(alice, tok, big.NewInt(-5))
	b.add(bob, tok, big.NewInt(5))
	b.add(alice, tok, big.NewInt(2))
	require.Equal(t, []balanceKey{{alice, tok}, {bob, tok}}, b.order)
	assert.Nil(t, b.rows[balanceKey{alice, tok}].set)
	assert.Equal(t, "-3", b.rows[balanceKey{alice, tok}].delta.String())

	// A set discards earlier deltas and keeps later ones.
	b.set(bob, tok, big.NewInt(100))
	b.add(bob, tok, big.NewInt(-1))
	assert.Equal(t, "100", b.rows[balanceKey{bob, tok}].set.String())
	assert.Equal(t, "-1", b.rows[balanceKey{bob, tok}].delta.String())
}

func TestProjectionSeedsUnseenCustody(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	c := chain.New(chain.NewMemStore())
	accts := genesis.DefaultAccounts()

	var receipts []*chain.Receipt
	c.Subscribe(func(r *chain.Receipt) { receipts = append(receipts, r) })

	d, err := genesis.Deploy(ctx, c, accts)
	require.NoError(t, err)
	x := exchange.At(d.Exchange)
	dapp, musdc := token.At(d.DAPP), token.At(d.MUSDC)

	exec := func(caller common.Address, fn func(env *chain.Env) error) {
		_, err := c.Execute(ctx, caller, fn)
		require.NoError(t, err)
	}
	exec(accts.Deployer, func(env *chain.Env) error {
		if err := dapp.Transfer(env, accts.User1, units.Tokens("100")); err != nil {
			return err
		}
		return musdc.Transfer(env, accts.User2, units.Tokens("100"))
	})
	for _, dep := range []struct {
		user common.Address
		tok  *token.Token
	}{{accts.User1, dapp}, {accts.User2, musdc}} {
		exec(dep.user, func(env *chain.Env) error {
			if err := dep.tok.Approve(env, x.Address(), units.Tokens("100")); err != nil {
				return err
			}
			_, err := x.DepositToken(env, dep.tok.Address(), units.Tokens("100"))
			return err
		})
	}
	exec(accts.User1, func(env *chain.Env) error {
		_, err := x.MakeOrder(env, musdc.Address(), units.Tokens("10"), dapp.Address(), units.Tokens("20"))
		return err
	})
	early := len(receipts)

	exec(accts.User2, func(env *chain.Env) error { return x.FillOrder(env, 1) })
	exec(accts.User2, func(env *chain.Env) error {
		_, err := x.WithdrawToken(env, musdc.Address(), units.Tokens("50"))
		return err
	})

	var cfg exchange.Config
	require.NoError(t, c.View(func(env *chain.Env) error {
		cfg, err = x.Config(env)
		return err
	}))
	p := NewProjector(d.Exchange, cfg)
	p.Custody = func(_ context.Context, account, tok common.Address) (amount *big.Int, height uint64, err error) {
		err = c.View(func(env *chain.Env) error {
			height = env.Block().Height
			amount, err = x.TotalBalanceOf(env, tok, account)
			return err
		})
		return amount, height, err
	}

	// The projection starts at the fill: none of the accounts has a row yet
	// and the order was never seen open.
	for _, r := range receipts[early:] {
		require.NoError(t, p.Apply(ctx, r))
	}
	// An older deposit projected late does not overwrite newer rows.
	require.NoError(t, p.Apply(ctx, receipts[early-2]))

	for _, acct := range []common.Address{accts.User1, accts.User2, accts.Collector} {
		rows, err := GetAccountBalances(ctx, d.Exchange, acct)
		require.NoError(t, err)
		require.NotEmpty(t, rows)
		require.NoError(t, c.View(func(env *chain.Env) error {
			for _, row := range rows {
				want, err := x.TotalBalanceOf(env, row.Token, acct)
				require.NoError(t, err)
				assert.Equal(t, want.String(), row.Amount, "%s %s", acct.Hex(), row.Token.Hex())
			}
			return nil
		}))
	}

	orders, err := GetAccountOrders(ctx, d.Exchange, accts.User1)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
