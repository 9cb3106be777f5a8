package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/token"
)

// DepositToken pulls amount of asset from the sender into exchange custody.
// The sender must have approved the exchange for at least amount.
func (x *Exchange) DepositToken(env *chain.Env, asset common.Address, amount *big.Int) (*big.Int, error) {
	var bal *big.Int
	err := env.Atomic(func(env *chain.Env) error {
		if amount.Sign() < 0 {
			return ErrNegativeAmount
		}
		if _, err := x.Config(env); err != nil {
			return err
		}
		user := env.Sender()
		if err := token.At(asset).TransferFrom(env.WithSender(x.addr), user, x.addr, amount); err != nil {
			return err
		}
		if err := x.credit(env, asset, user, amount); err != nil {
			return err
		}
		var err error
		if bal, err = x.TotalBalanceOf(env, asset, user); err != nil {
			return err
		}
		env.Emit(x.addr, TokensDeposited{Token: asset, User: user, Amount: new(big.Int).Set(amount), Balance: bal})
		return nil
	})
	return bal, err
}

// WithdrawToken releases amount of asset from custody back to the sender.
// The custodial balance is debited before the token transfer is made.
func (x *Exchange) WithdrawToken(env *chain.Env, asset common.Address, amount *big.Int) (*big.Int, error) {
	var bal *big.Int
	err := env.Atomic(func(env *chain.Env) error {
		if amount.Sign() < 0 {
			return ErrNegativeAmount
		}
		user := env.Sender()
		if err := x.debit(env, asset, user, amount); err != nil {
			return err
		}
		if err := token.At(asset).Transfer(env.WithSender(x.addr), user, amount); err != nil {
			return err
		}
		var err error
		if bal, err = x.TotalBalanceOf(env, asset, user); err != nil {
			return err
		}
		env.Emit(x.addr, TokensWithdrawn{Token: asset, User: user, Amount: new(big.Int).Set(amount), Balance: bal})
		return nil
	})
	return bal, err
}
