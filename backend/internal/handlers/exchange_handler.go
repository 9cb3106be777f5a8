package handlers

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
)

// AssetAmountRequest names a token and a base-unit amount.
type AssetAmountRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// CreateOrderRequest defines the expected JSON body for creating an order:
// the caller offers AmountGive of TokenGive for AmountGet of TokenGet.
type CreateOrderRequest struct {
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
}

func market() *exchange.Exchange { return exchange.At(deployment.Exchange) }

// parseAssetAmount reads an AssetAmountRequest body. A non-empty problem
// describes why it is invalid.
func parseAssetAmount(c *fiber.Ctx) (asset common.Address, amount *big.Int, problem string) {
	req := new(AssetAmountRequest)
	if err := c.BodyParser(req); err != nil {
		return asset, nil, "Cannot parse request body"
	}
	asset, ok := resolveToken(req.Token)
	if !ok {
		return asset, nil, "Unknown token"
	}
	if amount, ok = parseAmount(req.Amount); !ok {
		return asset, nil, "Invalid amount"
	}
	return asset, amount, ""
}

// Deposit pulls tokens the caller approved into exchange custody.
func Deposit(c *fiber.Ctx) error {
	asset, amount, problem := parseAssetAmount(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var balance *big.Int
	r, err := execute(c, func(env *chain.Env) (err error) {
		balance, err = market().DepositToken(env, asset, amount)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"balance": balance, "receipt": r})
}

// Withdraw returns custodial tokens to the caller's wallet.
func Withdraw(c *fiber.Ctx) error {
	asset, amount, problem := parseAssetAmount(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var balance *big.Int
	r, err := execute(c, func(env *chain.Env) (err error) {
		balance, err = market().WithdrawToken(env, asset, amount)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"balance": balance, "receipt": r})
}

// CreateOrder posts a resting order backed by the caller's custody.
func CreateOrder(c *fiber.Ctx) error {
	req := new(CreateOrderRequest)
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "Cannot parse request body")
	}
	tokenGet, ok := resolveToken(req.TokenGet)
	if !ok {
		return badRequest(c, "Unknown tokenGet")
	}
	tokenGive, ok := resolveToken(req.TokenGive)
	if !ok {
		return badRequest(c, "Unknown tokenGive")
	}
	amountGet, ok := parseAmount(req.AmountGet)
	if !ok {
		return badRequest(c, "Invalid amountGet")
	}
	amountGive, ok := parseAmount(req.AmountGive)
	if !ok {
		return badRequest(c, "Invalid amountGive")
	}

	var id uint64
	r, err := execute(c, func(env *chain.Env) (err error) {
		id, err = market().MakeOrder(env, tokenGet, amountGet, tokenGive, amountGive)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	log.WithFields(log.Fields{"order": id, "creator": r.Caller.Hex()}).Info("Order created")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "receipt": r})
}

// CancelOrder withdraws one of the caller's open orders.
func CancelOrder(c *fiber.Ctx) error {
	id, ok := parseOrderID(c)
	if !ok {
		return badRequest(c, "Invalid order ID format")
	}
	r, err := execute(c, func(env *chain.Env) error { return market().CancelOrder(env, id) })
	if err != nil {
		return respondError(c, err)
	}
	log.WithField("order", id).Info("Order cancelled")
	return c.JSON(fiber.Map{"id": id, "receipt": r})
}

// FillOrder settles another account's open order against the caller.
func FillOrder(c *fiber.Ctx) error {
	id, ok := parseOrderID(c)
	if !ok {
		return badRequest(c, "Invalid order ID format")
	}
	r, err := execute(c, func(env *chain.Env) error { return market().FillOrder(env, id) })
	if err != nil {
		return respondError(c, err)
	}
	log.WithFields(log.Fields{"order": id, "filler": r.Caller.Hex()}).Info("Order filled")
	return c.JSON(fiber.Map{"id": id, "receipt": r})
}

// GetOrder returns an order as currently stored on the exchange.
func GetOrder(c *fiber.Ctx) error {
	id, ok := parseOrderID(c)
	if !ok {
		return badRequest(c, "Invalid order ID format")
	}
	var order *exchange.Order
	err := ledger.View(func(env *chain.Env) (err error) {
		order, err = market().Order(env, id)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(order)
}

// GetExchangeInfo returns the exchange configuration and order count.
func GetExchangeInfo(c *fiber.Ctx) error {
	var (
		cfg   exchange.Config
		count uint64
	)
	err := ledger.View(func(env *chain.Env) (err error) {
		if cfg, err = market().Config(env); err != nil {
			return err
		}
		count, err = market().OrderCount(env)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"address":    deployment.Exchange,
		"feeAccount": cfg.FeeAccount,
		"feePercent": cfg.FeePercent,
		"orderCount": count,
	})
}

// GetCustodialBalance returns totalBalanceOf(token, account).
func GetCustodialBalance(c *fiber.Ctx) error {
	asset, ok := resolveToken(c.Params("token"))
	if !ok {
		return badRequest(c, "Unknown token")
	}
	account, ok := parseAddress(c.Params("account"))
	if !ok {
		return badRequest(c, "Invalid account address")
	}
	return viewAmount(c, func(env *chain.Env) (*big.Int, error) {
		return market().TotalBalanceOf(env, asset, account)
	}, fiber.Map{"token": asset, "account": account})
}
