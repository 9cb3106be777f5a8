package handlers

import (
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/database"
	"github.com/user/dexsettle/backend/internal/middleware"
)

const maxEventsPage = 500

func dbUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Database not configured"})
}

// GetOrders returns the caller's projected order history, newest first.
func GetOrders(c *fiber.Ctx) error {
	if database.DB == nil {
		return dbUnavailable(c)
	}
	account, ok := middleware.Account(c)
	if !ok {
		return respondError(c, errNoAccount)
	}
	orders, err := database.GetAccountOrders(c.Context(), deployment.Exchange, account)
	if err != nil {
		log.Errorf("Error fetching orders for %s: %v", account.Hex(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve orders"})
	}
	return c.JSON(orders)
}

// GetBalanceHistory returns the caller's projected custodial balances.
func GetBalanceHistory(c *fiber.Ctx) error {
	if database.DB == nil {
		return dbUnavailable(c)
	}
	account, ok := middleware.Account(c)
	if !ok {
		return respondError(c, errNoAccount)
	}
	balances, err := database.GetAccountBalances(c.Context(), deployment.Exchange, account)
	if err != nil {
		log.Errorf("Error fetching balances for %s: %v", account.Hex(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve balances"})
	}
	return c.JSON(balances)
}

// GetEvents pages through projected events: ?after=<height>&limit=<n>.
func GetEvents(c *fiber.Ctx) error {
	if database.DB == nil {
		return dbUnavailable(c)
	}
	after := c.QueryInt("after", 0)
	limit := c.QueryInt("limit", 100)
	if after < 0 || limit <= 0 {
		return badRequest(c, "Invalid paging parameters")
	}
	if limit > maxEventsPage {
		limit = maxEventsPage
	}
	events, err := database.GetEvents(c.Context(), uint64(after), limit)
	if err != nil {
		log.Errorf("Error fetching events after %d: %v", after, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve events"})
	}
	return c.JSON(events)
}
