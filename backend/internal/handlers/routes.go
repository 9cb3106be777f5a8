package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/user/dexsettle/backend/internal/middleware"
)

// SetupRoutes registers the websocket feed and the /api surface.
func SetupRoutes(app *fiber.App) {
	wsGroup := app.Group("/ws")
	wsGroup.Use("/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	wsGroup.Get("/events", websocket.New(EventsWSEndpoint))

	api := app.Group("/api")

	// Public
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("dexsettle API is healthy!")
	})
	api.Get("/contracts", GetContracts)
	api.Get("/tokens/:token", GetTokenInfo)
	api.Get("/tokens/:token/balance/:account", GetTokenBalance)
	api.Get("/tokens/:token/allowance/:owner/:spender", GetAllowance)
	api.Get("/exchange", GetExchangeInfo)
	api.Get("/exchange/orders/:id", GetOrder)
	api.Get("/exchange/balance/:token/:account", GetCustodialBalance)
	api.Get("/book/:base/:quote", GetOrderBookDepth)
	api.Get("/book/:base/:quote/trades", GetRecentTrades)
	api.Get("/flashloan/:user", GetBorrower)
	api.Get("/events", GetEvents)

	authGroup := api.Group("/auth")
	authGroup.Post("/signup", Signup)
	authGroup.Post("/login", Login)

	// Protected
	api.Use(middleware.Protected())

	api.Get("/me", Me)
	api.Get("/portfolio", GetPortfolio)
	api.Get("/orders", GetOrders)
	api.Get("/balances", GetBalanceHistory)

	tokens := api.Group("/tokens/:token")
	tokens.Post("/transfer", Transfer)
	tokens.Post("/approve", Approve)
	tokens.Post("/transfer-from", TransferFrom)

	ex := api.Group("/exchange")
	ex.Post("/deposit", Deposit)
	ex.Post("/withdraw", Withdraw)
	ex.Post("/orders", CreateOrder)
	ex.Post("/orders/:id/cancel", CancelOrder)
	ex.Post("/orders/:id/fill", FillOrder)

	loans := api.Group("/flashloan/:user")
	loans.Post("/loan", FlashLoan)
	loans.Post("/approve", ApproveLoanRepayment)
	loans.Post("/withdraw", WithdrawFromBorrower)
}
