package handlers

import (
	"math/big"

	"github.com/gofiber/fiber/v2"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/token"
)

type TransferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type ApproveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type TransferFromRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func tokenParam(c *fiber.Ctx) (*token.Token, bool) {
	addr, ok := resolveToken(c.Params("token"))
	if !ok {
		return nil, false
	}
	return token.At(addr), true
}

// Transfer moves tokens from the caller to another account.
func Transfer(c *fiber.Ctx) error {
	t, ok := tokenParam(c)
	if !ok {
		return badRequest(c, "Unknown token")
	}
	req := new(TransferRequest)
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "Cannot parse request body")
	}
	to, ok := parseAddress(req.To)
	if !ok {
		return badRequest(c, "Invalid recipient address")
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		return badRequest(c, "Invalid amount")
	}

	r, err := execute(c, func(env *chain.Env) error { return t.Transfer(env, to, amount) })
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(r)
}

// Approve sets the caller's allowance for a spender, replacing any
// previous value.
func Approve(c *fiber.Ctx) error {
	t, ok := tokenParam(c)
	if !ok {
		return badRequest(c, "Unknown token")
	}
	req := new(ApproveRequest)
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "Cannot parse request body")
	}
	spender, ok := parseAddress(req.Spender)
	if !ok {
		return badRequest(c, "Invalid spender address")
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		return badRequest(c, "Invalid amount")
	}

	r, err := execute(c, func(env *chain.Env) error { return t.Approve(env, spender, amount) })
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(r)
}

// TransferFrom spends the caller's allowance on the from account.
func TransferFrom(c *fiber.Ctx) error {
	t, ok := tokenParam(c)
	if !ok {
		return badRequest(c, "Unknown token")
	}
	req := new(TransferFromRequest)
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "Cannot parse request body")
	}
	from, ok := parseAddress(req.From)
	if !ok {
		return badRequest(c, "Invalid owner address")
	}
	to, ok := parseAddress(req.To)
	if !ok {
		return badRequest(c, "Invalid recipient address")
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		return badRequest(c, "Invalid amount")
	}

	r, err := execute(c, func(env *chain.Env) error { return t.TransferFrom(env, from, to, amount) })
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(r)
}

// GetTokenInfo returns name, symbol, decimals and total supply.
func GetTokenInfo(c *fiber.Ctx) error {
	t, ok := tokenParam(c)
	if !ok {
		return badRequest(c, "Unknown token")
	}
	var info token.Info
	err := ledger.View(func(env *chain.Env) (err error) {
		info, err = t.Info(env)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"address":     t.Address(),
		"name":        info.Name,
		"symbol":      info.Symbol,
		"decimals":    info.Decimals,
		"totalSupply": info.TotalSupply,
	})
}

// GetTokenBalance returns the ledger balance of an account.
func GetTokenBalance(c *fiber.Ctx) error {
	t, ok := tokenParam(c)
	if !ok {
		return badRequest(c, "Unknown token")
	}
	owner, ok := parseAddress(c.Params("account"))
	if !ok {
		return badRequest(c, "Invalid account address")
	}
	return viewAmount(c, func(env *chain.Env) (*big.Int, error) {
		if _, err := t.Info(env); err != nil {
			return nil, err
		}
		return t.BalanceOf(env, owner)
	}, fiber.Map{"token": t.Address(), "account": owner})
}

// GetAllowance returns how much spender may still move from owner.
func GetAllowance(c *fiber.Ctx) error {
	t, ok := tokenParam(c)
	if !ok {
		return badRequest(c, "Unknown token")
	}
	owner, ok := parseAddress(c.Params("owner"))
	if !ok {
		return badRequest(c, "Invalid owner address")
	}
	spender, ok := parseAddress(c.Params("spender"))
	if !ok {
		return badRequest(c, "Invalid spender address")
	}
	return viewAmount(c, func(env *chain.Env) (*big.Int, error) {
		if _, err := t.Info(env); err != nil {
			return nil, err
		}
		return t.Allowance(env, owner, spender)
	}, fiber.Map{"token": t.Address(), "owner": owner, "spender": spender})
}

// viewAmount reads a single amount and responds with it merged into body.
func viewAmount(c *fiber.Ctx, read func(env *chain.Env) (*big.Int, error), body fiber.Map) error {
	var amount *big.Int
	err := ledger.View(func(env *chain.Env) (err error) {
		amount, err = read(env)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	body["amount"] = amount
	return c.JSON(body)
}
