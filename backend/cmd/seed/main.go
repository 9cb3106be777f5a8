// Command seed populates a running server with demo activity: deposits, a
// cancelled order, filled orders, open orders on both sides and flash loans.
package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/genesis"
	"github.com/user/dexsettle/backend/internal/units"
)

const seedAmount = "100000"

func main() {
	app := &cli.App{
		Name:  "dexsettle-seed",
		Usage: "populate a running server with demo orders and loans",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Value: "http://localhost:8080/api", Usage: "API base URL"},
			&cli.StringFlag{Name: "deployments", Usage: "address map file; fetched from the API when empty"},
			&cli.StringFlag{Name: "password", Value: "password", EnvVars: []string{"GENESIS_PASSWORD"}, Usage: "password of the genesis accounts"},
			&cli.DurationFlag{Name: "pause", Value: time.Second, Usage: "delay between order rounds"},
		},
		Action: seed,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// client calls the API as one of the logged-in genesis accounts.
type client struct {
	api      string
	tokens   map[string]string
	accounts map[string]common.Address
}

type apiError struct {
	Error string `json:"error"`
}

func (c *client) do(a *fiber.Agent, what string, out interface{}) error {
	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s: %v", what, errs[0])
	}
	if code >= fiber.StatusBadRequest {
		var e apiError
		_ = json.Unmarshal(body, &e)
		return fmt.Errorf("%s: status %d: %s", what, code, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *client) get(path string, out interface{}) error {
	return c.do(fiber.Get(c.api+path), "GET "+path, out)
}

func (c *client) post(as, path string, body, out interface{}) error {
	a := fiber.Post(c.api + path)
	if tok, ok := c.tokens[as]; ok {
		a.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	}
	a.JSON(body)
	return c.do(a, fmt.Sprintf("POST %s as %s", path, as), out)
}

func (c *client) login(name, password string) error {
	var resp struct {
		Token string `json:"token"`
		User  struct {
			Account common.Address `json:"account"`
		} `json:"user"`
	}
	if err := c.post("", "/auth/login", fiber.Map{"username": name, "password": password}, &resp); err != nil {
		return err
	}
	c.tokens[name] = resp.Token
	c.accounts[name] = resp.User.Account
	return nil
}

func tokens(n string) string { return units.Tokens(n).String() }

func seed(ctx *cli.Context) error {
	c := &client{
		api:      strings.TrimRight(ctx.String("api"), "/"),
		tokens:   make(map[string]string),
		accounts: make(map[string]common.Address),
	}
	pause := ctx.Duration("pause")

	var d genesis.Deployment
	if path := ctx.String("deployments"); path != "" {
		var err error
		if d, err = genesis.Load(path); err != nil {
			return err
		}
	} else {
		var m map[string]common.Address
		if err := c.get("/contracts", &m); err != nil {
			return err
		}
		var err error
		if d, err = genesis.FromAddressMap(m); err != nil {
			return err
		}
	}
	log.Printf("Exchange at %s", d.Exchange.Hex())

	for _, name := range genesis.AccountNames {
		if err := c.login(name, ctx.String("password")); err != nil {
			return err
		}
	}
	deployer, user1, user2 := "deployer", "user1", "user2"

	// Distribute and deposit.
	for _, leg := range []struct {
		user   string
		symbol string
	}{{user1, "DAPP"}, {user2, "mUSDC"}} {
		to := c.accounts[leg.user].Hex()
		if err := c.post(deployer, "/tokens/"+leg.symbol+"/transfer", fiber.Map{"to": to, "amount": tokens(seedAmount)}, nil); err != nil {
			return err
		}
		log.Printf("Transferred %s %s to %s", seedAmount, leg.symbol, to)
		if err := c.post(leg.user, "/tokens/"+leg.symbol+"/approve", fiber.Map{"spender": d.Exchange.Hex(), "amount": tokens(seedAmount)}, nil); err != nil {
			return err
		}
		if err := c.post(leg.user, "/exchange/deposit", fiber.Map{"token": leg.symbol, "amount": tokens(seedAmount)}, nil); err != nil {
			return err
		}
		log.Printf("Deposited %s %s from %s", seedAmount, leg.symbol, to)
	}

	makeOrder := func(user, get, amountGet, give, amountGive string) (uint64, error) {
		var resp struct {
			ID uint64 `json:"id"`
		}
		err := c.post(user, "/exchange/orders", fiber.Map{
			"tokenGet": get, "amountGet": tokens(amountGet),
			"tokenGive": give, "amountGive": tokens(amountGive),
		}, &resp)
		if err == nil {
			log.WithField("order", resp.ID).Printf("Made order from %s", user)
		}
		return resp.ID, err
	}

	// A cancelled order.
	id, err := makeOrder(user1, "mUSDC", "1", "DAPP", "1")
	if err != nil {
		return err
	}
	if err := c.post(user1, fmt.Sprintf("/exchange/orders/%d/cancel", id), nil, nil); err != nil {
		return err
	}
	log.WithField("order", id).Printf("Cancelled order from %s", user1)
	time.Sleep(pause)

	// Filled orders.
	for i := 1; i <= 3; i++ {
		id, err := makeOrder(user1, "mUSDC", "10", "DAPP", fmt.Sprint(10*i))
		if err != nil {
			return err
		}
		if err := c.post(user2, fmt.Sprintf("/exchange/orders/%d/fill", id), nil, nil); err != nil {
			return err
		}
		log.WithField("order", id).Printf("Filled order from %s", user2)
		time.Sleep(pause)
	}

	// Open orders on both sides of DAPP/mUSDC.
	for i := 1; i <= 5; i++ {
		if _, err := makeOrder(user1, "mUSDC", fmt.Sprint(10*i), "DAPP", "10"); err != nil {
			return err
		}
		time.Sleep(pause)
	}
	for i := 1; i <= 5; i++ {
		if _, err := makeOrder(user2, "DAPP", "10", "mUSDC", fmt.Sprint(10*i)); err != nil {
			return err
		}
		time.Sleep(pause)
	}

	// Flash loans. The borrower pays the fee out of its own balance, so it
	// is funded first and approves the exchange before each loan.
	loan := units.Tokens("1000")
	repay := new(big.Int).Add(loan, exchange.LoanFee(loan))
	if err := c.post(deployer, "/tokens/DAPP/transfer", fiber.Map{"to": d.FlashLoanUser.Hex(), "amount": tokens("10")}, nil); err != nil {
		return err
	}
	for i := 1; i < 3; i++ {
		if err := c.post(user1, "/flashloan/default/approve", fiber.Map{"token": "DAPP", "amount": repay.String()}, nil); err != nil {
			return err
		}
		if err := c.post(user1, "/flashloan/default/loan", fiber.Map{"token": "DAPP", "amount": loan.String()}, nil); err != nil {
			return err
		}
		log.Printf("Flash loan executed from %s", user1)
		time.Sleep(pause)
	}

	log.Println("Seeding complete")
	return nil
}
