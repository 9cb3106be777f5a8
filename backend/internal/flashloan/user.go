// Package flashloan provides a borrower contract that takes flash loans from
// an exchange on behalf of its controller.
package flashloan

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/token"
)

const Kind = "flashloan-user"

var (
	ErrNotController   = errors.New("flashloan: caller is not the controller")
	ErrUntrustedLender = errors.New("flashloan: callback from unknown lender")
	ErrNotDeployed     = errors.New("flashloan: borrower not deployed")
)

type Config struct {
	Controller common.Address
	Exchange   common.Address
}

// FlashLoanReceived is emitted by the borrower when loaned funds arrive.
type FlashLoanReceived struct {
	Asset  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

func (FlashLoanReceived) EventName() string { return "FlashLoanReceived" }

// User is a handle to a deployed borrower contract.
type User struct {
	addr common.Address
}

var _ exchange.Borrower = (*User)(nil)

func At(addr common.Address) *User {
	return &User{addr: addr}
}

func (u *User) Address() common.Address { return u.addr }

func (u *User) Kind() string { return Kind }

// Deploy creates a borrower controlled by the env sender that borrows from
// the exchange at lender.
func Deploy(env *chain.Env, lender common.Address) (*User, error) {
	var u *User
	err := env.Atomic(func(env *chain.Env) error {
		c, err := env.Deploy(func(addr common.Address) chain.Contract { return At(addr) })
		if err != nil {
			return err
		}
		u = c.(*User)
		return env.PutRLP(u.configKey(), &Config{Controller: env.Sender(), Exchange: lender})
	})
	if err != nil {
		return nil, fmt.Errorf("deploy flash loan user: %w", err)
	}
	return u, nil
}

func (u *User) configKey() string { return chain.Key("flashloan", u.addr, "config") }

func (u *User) Config(env *chain.Env) (Config, error) {
	var cfg Config
	ok, err := env.GetRLP(u.configKey(), &cfg)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, ErrNotDeployed
	}
	return cfg, nil
}

func (u *User) controlled(env *chain.Env) (Config, error) {
	cfg, err := u.Config(env)
	if err != nil {
		return Config{}, err
	}
	if env.Sender() != cfg.Controller {
		return Config{}, ErrNotController
	}
	return cfg, nil
}

// GetFlashLoan borrows amount of asset from the configured exchange. The
// exchange must already be approved for amount plus fee.
func (u *User) GetFlashLoan(env *chain.Env, asset common.Address, amount *big.Int) error {
	cfg, err := u.controlled(env)
	if err != nil {
		return err
	}
	return exchange.At(cfg.Exchange).FlashLoan(env.WithSender(u.addr), asset, amount, nil)
}

// ApproveToken lets the exchange pull amount of asset from the borrower.
func (u *User) ApproveToken(env *chain.Env, asset common.Address, amount *big.Int) error {
	cfg, err := u.controlled(env)
	if err != nil {
		return err
	}
	return token.At(asset).Approve(env.WithSender(u.addr), cfg.Exchange, amount)
}

// Withdraw sends amount of asset held by the borrower to its controller.
func (u *User) Withdraw(env *chain.Env, asset common.Address, amount *big.Int) error {
	cfg, err := u.controlled(env)
	if err != nil {
		return err
	}
	return token.At(asset).Transfer(env.WithSender(u.addr), cfg.Controller, amount)
}

func (u *User) OnFlashLoan(env *chain.Env, asset common.Address, amount, fee *big.Int, data []byte) error {
	cfg, err := u.Config(env)
	if err != nil {
		return err
	}
	if env.Sender() != cfg.Exchange {
		return ErrUntrustedLender
	}
	env.Emit(u.addr, FlashLoanReceived{Asset: asset, Amount: amount})
	return nil
}
