package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/user/dexsettle/backend/internal/orderbook"
)

// GetOrderBookDepth aggregates the open orders trading :base against :quote.
// An optional ?depth=N caps the levels per side.
func GetOrderBookDepth(c *fiber.Ctx) error {
	base, ok := resolveToken(c.Params("base"))
	if !ok {
		return badRequest(c, "Unknown base token")
	}
	quote, ok := resolveToken(c.Params("quote"))
	if !ok || quote == base {
		return badRequest(c, "Unknown quote token")
	}
	limit := c.QueryInt("depth", 0)
	if limit < 0 {
		return badRequest(c, "Depth cannot be negative")
	}
	return c.JSON(orderbook.GlobalOrderBookManager.GetBookDepth(base, quote, limit))
}

// GetRecentTrades lists the latest fills of a pair, newest first.
func GetRecentTrades(c *fiber.Ctx) error {
	base, ok := resolveToken(c.Params("base"))
	if !ok {
		return badRequest(c, "Unknown base token")
	}
	quote, ok := resolveToken(c.Params("quote"))
	if !ok || quote == base {
		return badRequest(c, "Unknown quote token")
	}
	return c.JSON(orderbook.GlobalOrderBookManager.RecentTrades(base, quote))
}
