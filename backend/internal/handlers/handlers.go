package handlers

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/genesis"
	"github.com/user/dexsettle/backend/internal/middleware"
	"github.com/user/dexsettle/backend/internal/token"
)

var (
	ledger     *chain.Chain
	deployment genesis.Deployment
)

// Init wires the handlers to the chain and the deployed contracts.
func Init(c *chain.Chain, d genesis.Deployment) {
	ledger = c
	deployment = d
}

// execute runs fn as one invocation on behalf of the authenticated account.
func execute(c *fiber.Ctx, fn func(env *chain.Env) error) (*chain.Receipt, error) {
	caller, ok := middleware.Account(c)
	if !ok {
		return nil, errNoAccount
	}
	return ledger.Execute(c.UserContext(), caller, fn)
}

// resolveToken accepts a deployment id or on-chain symbol of a deployed token
// (both case-insensitive), or a hex address.
func resolveToken(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	for id, addr := range deployment.Tokens() {
		if strings.EqualFold(id, s) {
			return addr, true
		}
	}
	if addr, ok := tokenBySymbol(s); ok {
		return addr, true
	}
	return parseAddress(s)
}

func tokenBySymbol(s string) (common.Address, bool) {
	var found common.Address
	err := ledger.View(func(env *chain.Env) error {
		for _, addr := range deployment.Tokens() {
			symbol, err := token.At(addr).Symbol(env)
			if err != nil {
				return err
			}
			if strings.EqualFold(symbol, s) {
				found = addr
				return nil
			}
		}
		return nil
	})
	if err != nil {
		log.Warnf("Error resolving token symbol %s: %v", s, err)
		return common.Address{}, false
	}
	return found, found != (common.Address{})
}

func parseAddress(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseAmount reads a non-negative base-unit amount in decimal or 0x hex.
func parseAmount(s string) (*big.Int, bool) {
	v, ok := math.ParseBig256(strings.TrimSpace(s))
	if !ok || v.Sign() < 0 || strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

func parseOrderID(c *fiber.Ctx) (uint64, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	return id, err == nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
