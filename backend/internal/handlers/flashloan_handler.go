package handlers

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/flashloan"
)

// borrowerParam resolves :user, where "default" names the borrower
// deployed at genesis.
func borrowerParam(c *fiber.Ctx) (*flashloan.User, bool) {
	p := c.Params("user")
	if strings.EqualFold(p, "default") {
		return flashloan.At(deployment.FlashLoanUser), true
	}
	addr, ok := parseAddress(p)
	if !ok {
		return nil, false
	}
	return flashloan.At(addr), true
}

// borrowerAction runs a controller-only borrower operation.
func borrowerAction(c *fiber.Ctx, op func(u *flashloan.User, env *chain.Env, asset common.Address, amount *big.Int) error) error {
	u, ok := borrowerParam(c)
	if !ok {
		return badRequest(c, "Invalid borrower address")
	}
	asset, amount, problem := parseAssetAmount(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	r, err := execute(c, func(env *chain.Env) error { return op(u, env, asset, amount) })
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(r)
}

// FlashLoan makes the borrower take and repay a loan within one invocation.
func FlashLoan(c *fiber.Ctx) error {
	return borrowerAction(c, (*flashloan.User).GetFlashLoan)
}

// ApproveLoanRepayment lets the exchange pull repayment from the borrower.
func ApproveLoanRepayment(c *fiber.Ctx) error {
	return borrowerAction(c, (*flashloan.User).ApproveToken)
}

// WithdrawFromBorrower sends the borrower's tokens to its controller.
func WithdrawFromBorrower(c *fiber.Ctx) error {
	return borrowerAction(c, (*flashloan.User).Withdraw)
}

// GetBorrower returns the borrower's controller and lender.
func GetBorrower(c *fiber.Ctx) error {
	u, ok := borrowerParam(c)
	if !ok {
		return badRequest(c, "Invalid borrower address")
	}
	var cfg flashloan.Config
	err := ledger.View(func(env *chain.Env) (err error) {
		cfg, err = u.Config(env)
		return err
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"address":        u.Address(),
		"controller":     cfg.Controller,
		"exchange":       cfg.Exchange,
		"feeBasisPoints": exchange.LoanFeeBasisPoints,
	})
}
