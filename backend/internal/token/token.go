// Package token implements a fungible asset ledger: fixed issuance minted to
// the deployer, transfers, and delegated spending through allowances.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/user/dexsettle/backend/internal/chain"
)

const Kind = "token"

// DefaultDecimals is the precision used when Params.Decimals is zero.
const DefaultDecimals = 18

var (
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrInvalidRecipient  = errors.New("token: recipient is address 0")
	ErrInvalidSpender    = errors.New("token: spender is address 0")
	ErrExceededAllowance = errors.New("token: exceeded allowance")
	ErrNegativeAmount    = errors.New("token: negative amount")
	ErrNotDeployed       = errors.New("token: not deployed")
)

// Params configures a new token. Supply is counted in whole tokens and is
// scaled by 10^Decimals.
type Params struct {
	Name     string
	Symbol   string
	Decimals uint8
	Supply   *big.Int
}

// Info is the immutable metadata fixed at deployment.
type Info struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// Token is a handle to a deployed token contract.
type Token struct {
	addr common.Address
}

func At(addr common.Address) *Token {
	return &Token{addr: addr}
}

func (t *Token) Address() common.Address { return t.addr }

func (t *Token) Kind() string { return Kind }

// Deploy creates a token owned by the env sender and mints the whole supply
// to it.
func Deploy(env *chain.Env, p Params) (*Token, error) {
	if p.Decimals == 0 {
		p.Decimals = DefaultDecimals
	}
	if p.Supply == nil || p.Supply.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	var t *Token
	err := env.Atomic(func(env *chain.Env) error {
		c, err := env.Deploy(func(addr common.Address) chain.Contract { return At(addr) })
		if err != nil {
			return err
		}
		t = c.(*Token)
		total := new(big.Int).Mul(p.Supply, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p.Decimals)), nil))
		info := Info{Name: p.Name, Symbol: p.Symbol, Decimals: p.Decimals, TotalSupply: total}
		if err := env.PutRLP(t.infoKey(), &info); err != nil {
			return err
		}
		env.SetBig(t.balanceKey(env.Sender()), total)
		env.Emit(t.addr, Transfer{From: common.Address{}, To: env.Sender(), Value: total})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy token %s: %w", p.Symbol, err)
	}
	return t, nil
}

func (t *Token) infoKey() string { return chain.Key("token", t.addr, "info") }

func (t *Token) balanceKey(owner common.Address) string {
	return chain.Key("token", t.addr, "balance", owner)
}

func (t *Token) allowanceKey(owner, spender common.Address) string {
	return chain.Key("token", t.addr, "allowance", owner, spender)
}

func (t *Token) Info(env *chain.Env) (Info, error) {
	var info Info
	ok, err := env.GetRLP(t.infoKey(), &info)
	if err != nil {
		return Info{}, err
	}
	if !ok {
		return Info{}, ErrNotDeployed
	}
	return info, nil
}

func (t *Token) Name(env *chain.Env) (string, error) {
	info, err := t.Info(env)
	return info.Name, err
}

func (t *Token) Symbol(env *chain.Env) (string, error) {
	info, err := t.Info(env)
	return info.Symbol, err
}

func (t *Token) Decimals(env *chain.Env) (uint8, error) {
	info, err := t.Info(env)
	return info.Decimals, err
}

func (t *Token) TotalSupply(env *chain.Env) (*big.Int, error) {
	info, err := t.Info(env)
	if err != nil {
		return nil, err
	}
	return info.TotalSupply, nil
}

func (t *Token) BalanceOf(env *chain.Env, owner common.Address) (*big.Int, error) {
	return env.GetBig(t.balanceKey(owner))
}

func (t *Token) Allowance(env *chain.Env, owner, spender common.Address) (*big.Int, error) {
	return env.GetBig(t.allowanceKey(owner, spender))
}

// Transfer moves amount from the sender to to.
func (t *Token) Transfer(env *chain.Env, to common.Address, amount *big.Int) error {
	return env.Atomic(func(env *chain.Env) error {
		return t.move(env, env.Sender(), to, amount)
	})
}

// Approve sets the sender's allowance for spender to amount, replacing any
// previous value.
func (t *Token) Approve(env *chain.Env, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if spender == (common.Address{}) {
		return ErrInvalidSpender
	}
	return env.Atomic(func(env *chain.Env) error {
		if _, err := t.Info(env); err != nil {
			return err
		}
		env.SetBig(t.allowanceKey(env.Sender(), spender), amount)
		env.Emit(t.addr, Approval{Owner: env.Sender(), Spender: spender, Value: new(big.Int).Set(amount)})
		return nil
	})
}

// TransferFrom moves amount from owner to to, spending the sender's allowance.
func (t *Token) TransferFrom(env *chain.Env, owner, to common.Address, amount *big.Int) error {
	return env.Atomic(func(env *chain.Env) error {
		if amount.Sign() < 0 {
			return ErrNegativeAmount
		}
		bal, err := t.BalanceOf(env, owner)
		if err != nil {
			return err
		}
		if bal.Cmp(amount) < 0 {
			return ErrInsufficientFunds
		}
		key := t.allowanceKey(owner, env.Sender())
		allowed, err := env.GetBig(key)
		if err != nil {
			return err
		}
		if allowed.Cmp(amount) < 0 {
			return ErrExceededAllowance
		}
		env.SetBig(key, allowed.Sub(allowed, amount))
		return t.move(env, owner, to, amount)
	})
}

func (t *Token) move(env *chain.Env, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if _, err := t.Info(env); err != nil {
		return err
	}
	fromBal, err := t.BalanceOf(env, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	env.SetBig(t.balanceKey(from), fromBal.Sub(fromBal, amount))
	toBal, err := t.BalanceOf(env, to)
	if err != nil {
		return err
	}
	env.SetBig(t.balanceKey(to), toBal.Add(toBal, amount))
	env.Emit(t.addr, Transfer{From: from, To: to, Value: new(big.Int).Set(amount)})
	return nil
}
