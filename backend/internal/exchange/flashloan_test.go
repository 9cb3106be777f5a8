package exchange

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/token"
)

type loaned struct {
	Amount *big.Int `json:"amount"`
	Fee    *big.Int `json:"fee"`
}

func (loaned) EventName() string { return "Loaned" }

// testBorrower runs onLoan as its flash loan callback.
type testBorrower struct {
	addr   common.Address
	onLoan func(b *testBorrower, env *chain.Env, asset common.Address, amount, fee *big.Int) error
}

func (b *testBorrower) Address() common.Address { return b.addr }
func (b *testBorrower) Kind() string            { return "test-borrower" }

func (b *testBorrower) OnFlashLoan(env *chain.Env, asset common.Address, amount, fee *big.Int, data []byte) error {
	env.Emit(b.addr, loaned{Amount: amount, Fee: fee})
	if b.onLoan == nil {
		return nil
	}
	return b.onLoan(b, env.WithSender(b.addr), asset, amount, fee)
}

// deployBorrower deploys a borrower funded with 1 token0 that has approved
// the exchange for approval.
func (f *fixture) deployBorrower(approval *big.Int, onLoan func(b *testBorrower, env *chain.Env, asset common.Address, amount, fee *big.Int) error) *testBorrower {
	f.t.Helper()
	var b *testBorrower
	f.exec(deployer, func(env *chain.Env) error {
		c, err := env.Deploy(func(addr common.Address) chain.Contract {
			return &testBorrower{addr: addr, onLoan: onLoan}
		})
		if err != nil {
			return err
		}
		b = c.(*testBorrower)
		return f.token0.Transfer(env, b.addr, tokens("1"))
	})
	f.exec(b.addr, func(env *chain.Env) error {
		return f.token0.Approve(env, f.x.Address(), approval)
	})
	return b
}

func (f *fixture) flashLoan(b *testBorrower, amount *big.Int) error {
	f.t.Helper()
	return f.try(b.addr, func(env *chain.Env) error {
		return f.x.FlashLoan(env, f.token0.Address(), amount, []byte("0x"))
	})
}

func TestFlashLoanInsufficientLiquidity(t *testing.T) {
	f := depositFixture(t)
	b := f.deployBorrower(tokens("2000"), nil)

	err := f.flashLoan(b, tokens("1000"))
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Equal(t, tokens("100").String(), f.held(f.token0, f.x.Address()))
	assert.Equal(t, tokens("1").String(), f.held(f.token0, b.addr))

	// token1's pool holds only user2's deposit.
	err = f.try(b.addr, func(env *chain.Env) error {
		return f.x.FlashLoan(env, f.token1.Address(), tokens("100.000000000000000001"), nil)
	})
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestFlashLoanRepaid(t *testing.T) {
	f := depositFixture(t)
	amount := tokens("100")
	fee := LoanFee(amount)
	assert.Equal(t, tokens("0.09").String(), fee.String())

	b := f.deployBorrower(new(big.Int).Add(amount, fee), nil)
	r, err := f.chain.Execute(context.Background(), b.addr, func(env *chain.Env) error {
		return f.x.FlashLoan(env, f.token0.Address(), amount, nil)
	})
	require.NoError(t, err)

	ev, ok := r.Find(f.x.Address(), "FlashLoan")
	require.True(t, ok)
	fl := ev.(FlashLoan)
	assert.Equal(t, f.token0.Address(), fl.Asset)
	assert.Equal(t, amount.String(), fl.Amount.String())
	assert.Equal(t, blockAt, fl.Timestamp)

	ev, ok = r.Find(b.addr, "Loaned")
	require.True(t, ok)
	assert.Equal(t, fee.String(), ev.(loaned).Fee.String())

	assert.Equal(t, tokens("100.09").String(), f.held(f.token0, f.x.Address()))
	assert.Equal(t, tokens("0.91").String(), f.held(f.token0, b.addr))
	assert.Equal(t, fee.String(), f.custodial(f.token0, feeAcct))
	assert.Equal(t, tokens("100").String(), f.custodial(f.token0, user1))
	f.assertLockstep()

	f.view(func(env *chain.Env) error {
		v, err := f.x.TotalBalanceOf(env, f.token0.Address(), feeAcct)
		assert.Equal(t, fee.String(), v.String())
		return err
	})
}

func TestFlashLoanRepaymentFailureRevertsEverything(t *testing.T) {
	f := depositFixture(t)
	amount := tokens("100")
	b := f.deployBorrower(amount, nil) // approves principal only

	err := f.flashLoan(b, amount)
	assert.ErrorIs(t, err, ErrRepaymentFailed)
	assert.ErrorIs(t, err, token.ErrExceededAllowance)

	assert.Equal(t, tokens("100").String(), f.held(f.token0, f.x.Address()))
	assert.Equal(t, tokens("1").String(), f.held(f.token0, b.addr))
	assert.Equal(t, "0", f.custodial(f.token0, feeAcct))
}

func TestFlashLoanCallbackSideEffectsRollBack(t *testing.T) {
	f := depositFixture(t)
	amount := tokens("50")
	// The callback spends the loan, so repayment cannot succeed.
	b := f.deployBorrower(tokens("60"), func(b *testBorrower, env *chain.Env, asset common.Address, amount, fee *big.Int) error {
		return token.At(asset).Transfer(env, user2, amount)
	})

	err := f.flashLoan(b, amount)
	assert.ErrorIs(t, err, ErrRepaymentFailed)
	assert.ErrorIs(t, err, token.ErrInsufficientFunds)
	assert.Equal(t, tokens("100").String(), f.held(f.token0, user2))
	assert.Equal(t, tokens("100").String(), f.held(f.token0, f.x.Address()))
}

func TestFlashLoanCallbackErrorAborts(t *testing.T) {
	f := depositFixture(t)
	boom := errors.New("boom")
	b := f.deployBorrower(tokens("60"), func(*testBorrower, *chain.Env, common.Address, *big.Int, *big.Int) error {
		return boom
	})
	err := f.flashLoan(b, tokens("50"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, tokens("1").String(), f.held(f.token0, b.addr))
}

func TestFlashLoanCallbackMayReenterExchange(t *testing.T) {
	f := depositFixture(t)
	amount := tokens("50")
	owed := new(big.Int).Add(amount, LoanFee(amount))
	b := f.deployBorrower(owed, func(b *testBorrower, env *chain.Env, asset common.Address, amount, fee *big.Int) error {
		// Park the loan in custody and take it out again before repaying.
		if err := token.At(asset).Approve(env, f.x.Address(), amount); err != nil {
			return err
		}
		if _, err := f.x.DepositToken(env, asset, amount); err != nil {
			return err
		}
		if _, err := f.x.WithdrawToken(env, asset, amount); err != nil {
			return err
		}
		// The deposit spent the repayment allowance, so restore it.
		return token.At(asset).Approve(env, f.x.Address(), new(big.Int).Add(amount, fee))
	})

	err := f.flashLoan(b, amount)
	require.NoError(t, err)
	assert.Equal(t, "0", f.custodial(f.token0, b.addr))
	assert.Equal(t, tokens("0.955").String(), f.held(f.token0, b.addr))
	f.assertLockstep(b.addr)
}

func TestNestedFlashLoanRejected(t *testing.T) {
	f := depositFixture(t)
	b := f.deployBorrower(tokens("10"), func(b *testBorrower, env *chain.Env, asset common.Address, amount, fee *big.Int) error {
		return f.x.FlashLoan(env, asset, big.NewInt(1), nil)
	})
	err := f.flashLoan(b, tokens("5"))
	assert.ErrorIs(t, err, ErrReentrantLoan)

	// The guard rolled back with the failed invocation.
	f.view(func(env *chain.Env) error {
		active, err := env.GetUint64(f.x.loanLockKey())
		assert.Zero(t, active)
		return err
	})
}

func TestFlashLoanRequiresBorrowerContract(t *testing.T) {
	f := depositFixture(t)
	err := f.try(user1, func(env *chain.Env) error {
		return f.x.FlashLoan(env, f.token0.Address(), tokens("1"), nil)
	})
	assert.ErrorIs(t, err, ErrNotBorrower)
}
