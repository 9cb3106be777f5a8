package handlers

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/middleware"
	"github.com/user/dexsettle/backend/internal/token"
	"github.com/user/dexsettle/backend/internal/units"
)

// Holding is one token of a portfolio, in base units and formatted.
type Holding struct {
	Symbol          string         `json:"symbol"`
	Token           common.Address `json:"token"`
	Wallet          *big.Int       `json:"wallet"`
	Exchange        *big.Int       `json:"exchange"`
	WalletDisplay   string         `json:"walletDisplay"`
	ExchangeDisplay string         `json:"exchangeDisplay"`
}

// GetPortfolio returns the caller's wallet and custodial balance of every
// deployed token, read live from the chain.
func GetPortfolio(c *fiber.Ctx) error {
	account, ok := middleware.Account(c)
	if !ok {
		return respondError(c, errNoAccount)
	}

	ids := make([]string, 0)
	for id := range deployment.Tokens() {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	holdings := make([]Holding, 0, len(ids))
	err := ledger.View(func(env *chain.Env) error {
		for _, id := range ids {
			t := token.At(deployment.Tokens()[id])
			symbol, err := t.Symbol(env)
			if err != nil {
				return err
			}
			decimals, err := t.Decimals(env)
			if err != nil {
				return err
			}
			wallet, err := t.BalanceOf(env, account)
			if err != nil {
				return err
			}
			custody, err := market().TotalBalanceOf(env, t.Address(), account)
			if err != nil {
				return err
			}
			holdings = append(holdings, Holding{
				Symbol:          symbol,
				Token:           t.Address(),
				Wallet:          wallet,
				Exchange:        custody,
				WalletDisplay:   units.Format(wallet, int32(decimals)),
				ExchangeDisplay: units.Format(custody, int32(decimals)),
			})
		}
		return nil
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(holdings)
}

// GetContracts returns the deployed address map.
func GetContracts(c *fiber.Ctx) error {
	return c.JSON(deployment.AddressMap())
}
