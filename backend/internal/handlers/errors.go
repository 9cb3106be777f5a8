package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/flashloan"
	"github.com/user/dexsettle/backend/internal/token"
)

var errNoAccount = errors.New("no account in token")

var errorStatus = []struct {
	status int
	errs   []error
}{
	{fiber.StatusUnauthorized, []error{errNoAccount}},
	{fiber.StatusBadRequest, []error{
		token.ErrInvalidRecipient, token.ErrInvalidSpender, token.ErrNegativeAmount,
		exchange.ErrNegativeAmount, exchange.ErrNotBorrower,
	}},
	{fiber.StatusUnprocessableEntity, []error{
		exchange.ErrRepaymentFailed, exchange.ErrInsufficientLiquidity, exchange.ErrInsufficientBalance,
		token.ErrInsufficientFunds, token.ErrExceededAllowance,
	}},
	{fiber.StatusNotFound, []error{
		exchange.ErrOrderNotFound, exchange.ErrNotDeployed, token.ErrNotDeployed, flashloan.ErrNotDeployed,
		chain.ErrUnknownContract,
	}},
	{fiber.StatusForbidden, []error{exchange.ErrNotOwner, flashloan.ErrNotController, flashloan.ErrUntrustedLender}},
	{fiber.StatusConflict, []error{
		exchange.ErrAlreadyFilled, exchange.ErrAlreadyCancelled, exchange.ErrSelfFill, exchange.ErrReentrantLoan,
	}},
}

// StatusOf maps an invocation error to its HTTP status.
func StatusOf(err error) int {
	status, _ := classify(err)
	return status
}

// ReasonOf returns the stable reason reported for err: the text of the first
// known error it wraps, without any detail added around it.
func ReasonOf(err error) string {
	if _, known := classify(err); known != nil {
		return known.Error()
	}
	return "Internal error"
}

func classify(err error) (int, error) {
	for _, group := range errorStatus {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status, target
			}
		}
	}
	return fiber.StatusInternalServerError, nil
}

// respondError writes the failure of an invocation. Domain errors carry
// their reason; anything else is logged and hidden.
func respondError(c *fiber.Ctx, err error) error {
	status, known := classify(err)
	if known == nil {
		log.WithFields(log.Fields{"path": c.Path(), "method": c.Method()}).Errorf("Invocation failed: %v", err)
		return c.Status(status).JSON(fiber.Map{"error": "Internal error"})
	}
	if known != err {
		log.WithFields(log.Fields{"path": c.Path(), "method": c.Method()}).Debugf("Invocation rejected: %v", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": known.Error()})
}
