package token

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/units"
)

var (
	deployer = chain.AccountFromName("deployer")
	receiver = chain.AccountFromName("receiver")
	exchange = chain.AccountFromName("exchange")
)

type fixture struct {
	chain *chain.Chain
	token *Token
}

func deployFixture(t *testing.T) *fixture {
	t.Helper()
	c := chain.New(chain.NewMemStore(), chain.WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	var tok *Token
	_, err := c.Execute(context.Background(), deployer, func(env *chain.Env) error {
		var err error
		tok, err = Deploy(env, Params{Name: "Dapp University", Symbol: "DAPP", Supply: big.NewInt(1000000)})
		return err
	})
	require.NoError(t, err)
	return &fixture{chain: c, token: tok}
}

func (f *fixture) exec(t *testing.T, caller common.Address, fn func(env *chain.Env) error) (*chain.Receipt, error) {
	t.Helper()
	return f.chain.Execute(context.Background(), caller, fn)
}

func (f *fixture) balance(t *testing.T, owner common.Address) string {
	t.Helper()
	var bal *big.Int
	require.NoError(t, f.chain.View(func(env *chain.Env) error {
		var err error
		bal, err = f.token.BalanceOf(env, owner)
		return err
	}))
	return bal.String()
}

func (f *fixture) allowance(t *testing.T, owner, spender common.Address) string {
	t.Helper()
	var v *big.Int
	require.NoError(t, f.chain.View(func(env *chain.Env) error {
		var err error
		v, err = f.token.Allowance(env, owner, spender)
		return err
	}))
	return v.String()
}

func TestDeployment(t *testing.T) {
	f := deployFixture(t)
	require.NoError(t, f.chain.View(func(env *chain.Env) error {
		info, err := f.token.Info(env)
		require.NoError(t, err)
		assert.Equal(t, "Dapp University", info.Name)
		assert.Equal(t, "DAPP", info.Symbol)
		assert.Equal(t, uint8(18), info.Decimals)
		assert.Equal(t, units.Tokens("1000000").String(), info.TotalSupply.String())
		return nil
	}))
	assert.Equal(t, units.Tokens("1000000").String(), f.balance(t, deployer))
}

func TestTransfer(t *testing.T) {
	f := deployFixture(t)
	amount := units.Tokens("100")

	r, err := f.exec(t, deployer, func(env *chain.Env) error {
		return f.token.Transfer(env, receiver, amount)
	})
	require.NoError(t, err)
	assert.Equal(t, units.Tokens("999900").String(), f.balance(t, deployer))
	assert.Equal(t, amount.String(), f.balance(t, receiver))

	ev, ok := r.Find(f.token.Address(), "Transfer")
	require.True(t, ok)
	tr := ev.(Transfer)
	assert.Equal(t, deployer, tr.From)
	assert.Equal(t, receiver, tr.To)
	assert.Equal(t, amount.String(), tr.Value.String())
}

func TestTransferFailures(t *testing.T) {
	f := deployFixture(t)

	_, err := f.exec(t, deployer, func(env *chain.Env) error {
		return f.token.Transfer(env, receiver, units.Tokens("100000000"))
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.exec(t, deployer, func(env *chain.Env) error {
		return f.token.Transfer(env, common.Address{}, units.Tokens("100"))
	})
	assert.ErrorIs(t, err, ErrInvalidRecipient)

	_, err = f.exec(t, deployer, func(env *chain.Env) error {
		return f.token.Transfer(env, receiver, big.NewInt(-1))
	})
	assert.ErrorIs(t, err, ErrNegativeAmount)

	assert.Equal(t, units.Tokens("1000000").String(), f.balance(t, deployer))
	assert.Equal(t, "0", f.balance(t, receiver))
}

func TestApprove(t *testing.T) {
	f := deployFixture(t)

	r, err := f.exec(t, deployer, func(env *chain.Env) error {
		if err := f.token.Approve(env, exchange, units.Tokens("100")); err != nil {
			return err
		}
		// Approving again replaces the allowance.
		return f.token.Approve(env, exchange, units.Tokens("40"))
	})
	require.NoError(t, err)
	assert.Equal(t, units.Tokens("40").String(), f.allowance(t, deployer, exchange))
	require.Len(t, r.Logs, 2)
	ap := r.Logs[1].Event.(Approval)
	assert.Equal(t, deployer, ap.Owner)
	assert.Equal(t, exchange, ap.Spender)

	_, err = f.exec(t, deployer, func(env *chain.Env) error {
		return f.token.Approve(env, common.Address{}, units.Tokens("100"))
	})
	assert.ErrorIs(t, err, ErrInvalidSpender)
}

func TestTransferFrom(t *testing.T) {
	f := deployFixture(t)
	amount := units.Tokens("100")

	_, err := f.exec(t, deployer, func(env *chain.Env) error {
		return f.token.Approve(env, exchange, amount)
	})
	require.NoError(t, err)

	r, err := f.exec(t, exchange, func(env *chain.Env) error {
		return f.token.TransferFrom(env, deployer, receiver, amount)
	})
	require.NoError(t, err)
	assert.Equal(t, units.Tokens("999900").String(), f.balance(t, deployer))
	assert.Equal(t, amount.String(), f.balance(t, receiver))
	assert.Equal(t, "0", f.allowance(t, deployer, exchange))

	ev, ok := r.Find(f.token.Address(), "Transfer")
	require.True(t, ok)
	assert.Equal(t, deployer, ev.(Transfer).From)

	_, err = f.exec(t, exchange, func(env *chain.Env) error {
		return f.token.TransferFrom(env, deployer, receiver, amount)
	})
	assert.ErrorIs(t, err, ErrExceededAllowance)

	_, err = f.exec(t, exchange, func(env *chain.Env) error {
		return f.token.TransferFrom(env, deployer, receiver, units.Tokens("100000000"))
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestSupplyIsConserved(t *testing.T) {
	f := deployFixture(t)
	holders := []common.Address{deployer, receiver, exchange}

	_, err := f.exec(t, deployer, func(env *chain.Env) error {
		if err := f.token.Transfer(env, receiver, units.Tokens("250")); err != nil {
			return err
		}
		return f.token.Approve(env, exchange, units.Tokens("75"))
	})
	require.NoError(t, err)
	_, err = f.exec(t, exchange, func(env *chain.Env) error {
		return f.token.TransferFrom(env, deployer, exchange, units.Tokens("75"))
	})
	require.NoError(t, err)
	_, err = f.exec(t, receiver, func(env *chain.Env) error {
		if err := f.token.Transfer(env, deployer, units.Tokens("50")); err != nil {
			return err
		}
		return f.token.Transfer(env, exchange, units.Tokens("1000"))
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	sum := new(big.Int)
	for _, h := range holders {
		v, ok := new(big.Int).SetString(f.balance(t, h), 10)
		require.True(t, ok)
		sum.Add(sum, v)
	}
	assert.Equal(t, units.Tokens("1000000").String(), sum.String())
	assert.Equal(t, units.Tokens("250").String(), f.balance(t, receiver))
}
