// Package exchange holds custodial balances for deposited tokens, keeps the
// order registry and settles fills between accounts, and lends its own token
// holdings as flash loans that must be repaid within the same invocation.
package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/user/dexsettle/backend/internal/chain"
)

const Kind = "exchange"

// Config is fixed at deployment.
type Config struct {
	FeeAccount common.Address
	FeePercent uint64
}

// Exchange is a handle to a deployed exchange contract.
type Exchange struct {
	addr common.Address
}

func At(addr common.Address) *Exchange {
	return &Exchange{addr: addr}
}

func (x *Exchange) Address() common.Address { return x.addr }

func (x *Exchange) Kind() string { return Kind }

// Deploy creates an exchange that charges feePercent of every fill's wanted
// amount to feeAccount.
func Deploy(env *chain.Env, feeAccount common.Address, feePercent uint64) (*Exchange, error) {
	var x *Exchange
	err := env.Atomic(func(env *chain.Env) error {
		c, err := env.Deploy(func(addr common.Address) chain.Contract { return At(addr) })
		if err != nil {
			return err
		}
		x = c.(*Exchange)
		return env.PutRLP(x.key("config"), &Config{FeeAccount: feeAccount, FeePercent: feePercent})
	})
	if err != nil {
		return nil, fmt.Errorf("deploy exchange: %w", err)
	}
	return x, nil
}

func (x *Exchange) key(parts ...interface{}) string {
	return chain.Key(append([]interface{}{"exchange", x.addr}, parts...)...)
}

func (x *Exchange) Config(env *chain.Env) (Config, error) {
	var cfg Config
	ok, err := env.GetRLP(x.key("config"), &cfg)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, ErrNotDeployed
	}
	return cfg, nil
}

func (x *Exchange) FeeAccount(env *chain.Env) (common.Address, error) {
	cfg, err := x.Config(env)
	return cfg.FeeAccount, err
}

func (x *Exchange) FeePercent(env *chain.Env) (uint64, error) {
	cfg, err := x.Config(env)
	return cfg.FeePercent, err
}

func (x *Exchange) balanceKey(asset, account common.Address) string {
	return x.key("balance", asset, account)
}

// TotalBalanceOf returns account's custodial balance of asset.
func (x *Exchange) TotalBalanceOf(env *chain.Env, asset, account common.Address) (*big.Int, error) {
	return env.GetBig(x.balanceKey(asset, account))
}

func (x *Exchange) credit(env *chain.Env, asset, account common.Address, amount *big.Int) error {
	bal, err := x.TotalBalanceOf(env, asset, account)
	if err != nil {
		return err
	}
	env.SetBig(x.balanceKey(asset, account), bal.Add(bal, amount))
	return nil
}

func (x *Exchange) debit(env *chain.Env, asset, account common.Address, amount *big.Int) error {
	bal, err := x.TotalBalanceOf(env, asset, account)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	env.SetBig(x.balanceKey(asset, account), bal.Sub(bal, amount))
	return nil
}
