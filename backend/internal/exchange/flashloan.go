package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/token"
)

// Flash loans cost LoanFeeBasisPoints/10000 of the borrowed amount.
const LoanFeeBasisPoints = 9

// Borrower is implemented by contracts that can take flash loans.
// OnFlashLoan runs after the loan has been transferred to the borrower. By
// the time it returns the borrower must have approved the exchange to pull
// back amount+fee.
type Borrower interface {
	chain.Contract
	OnFlashLoan(env *chain.Env, asset common.Address, amount, fee *big.Int, data []byte) error
}

func LoanFee(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(LoanFeeBasisPoints))
	return fee.Quo(fee, big.NewInt(10000))
}

func (x *Exchange) loanLockKey() string { return x.key("loanActive") }

// FlashLoan lends amount of asset from the exchange's own holdings to the
// sender, which must be a Borrower contract. The loan, the callback and the
// repayment of amount plus LoanFee either all commit or none of them do.
// The fee is credited to the fee account's custodial balance.
func (x *Exchange) FlashLoan(env *chain.Env, asset common.Address, amount *big.Int, data []byte) error {
	return env.Atomic(func(env *chain.Env) error {
		if amount.Sign() < 0 {
			return ErrNegativeAmount
		}
		cfg, err := x.Config(env)
		if err != nil {
			return err
		}
		active, err := env.GetUint64(x.loanLockKey())
		if err != nil {
			return err
		}
		if active != 0 {
			return ErrReentrantLoan
		}

		tok := token.At(asset)
		held, err := tok.BalanceOf(env, x.addr)
		if err != nil {
			return err
		}
		if held.Cmp(amount) < 0 {
			return ErrInsufficientLiquidity
		}

		borrower := env.Sender()
		c, ok := env.Contract(borrower)
		if !ok {
			return ErrNotBorrower
		}
		recv, ok := c.(Borrower)
		if !ok {
			return ErrNotBorrower
		}

		env.SetUint64(x.loanLockKey(), 1)
		self := env.WithSender(x.addr)
		if err := tok.Transfer(self, borrower, amount); err != nil {
			return err
		}
		fee := LoanFee(amount)
		if err := recv.OnFlashLoan(self, asset, new(big.Int).Set(amount), fee, data); err != nil {
			return fmt.Errorf("flashloan: callback: %w", err)
		}
		owed := new(big.Int).Add(amount, fee)
		if err := tok.TransferFrom(self, borrower, x.addr, owed); err != nil {
			return fmt.Errorf("%w: %w", ErrRepaymentFailed, err)
		}
		if err := x.credit(env, asset, cfg.FeeAccount, fee); err != nil {
			return err
		}
		env.SetUint64(x.loanLockKey(), 0)

		env.Emit(x.addr, FlashLoan{Asset: asset, Amount: new(big.Int).Set(amount), Timestamp: env.Now()})
		return nil
	})
}
