// Package genesis deploys the demo market (three tokens, the exchange and a
// flash loan borrower) and records where everything lives.
package genesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/flashloan"
	"github.com/user/dexsettle/backend/internal/token"
)

const (
	TotalSupply = 1000000
	FeePercent  = 10
)

// Names of the well-known accounts, in account-index order: the deployer,
// the fee collector and two traders.
var AccountNames = []string{"deployer", "collector", "user1", "user2"}

type Accounts struct {
	Deployer  common.Address
	Collector common.Address
	User1     common.Address
	User2     common.Address
}

func DefaultAccounts() Accounts {
	return Accounts{
		Deployer:  chain.AccountFromName(AccountNames[0]),
		Collector: chain.AccountFromName(AccountNames[1]),
		User1:     chain.AccountFromName(AccountNames[2]),
		User2:     chain.AccountFromName(AccountNames[3]),
	}
}

// Address map keys.
const (
	KeyDAPP          = "TokenModule#DAPP"
	KeyMUSDC         = "TokenModule#mUSDC"
	KeyMLINK         = "TokenModule#mLINK"
	KeyExchange      = "ExchangeModule#Exchange"
	KeyFlashLoanUser = "FlashLoanUserModule#FlashLoanUser"
)

type Deployment struct {
	DAPP          common.Address
	MUSDC         common.Address
	MLINK         common.Address
	Exchange      common.Address
	FlashLoanUser common.Address
}

func (d Deployment) AddressMap() map[string]common.Address {
	return map[string]common.Address{
		KeyDAPP:          d.DAPP,
		KeyMUSDC:         d.MUSDC,
		KeyMLINK:         d.MLINK,
		KeyExchange:      d.Exchange,
		KeyFlashLoanUser: d.FlashLoanUser,
	}
}

// Tokens maps the deployment ids of the tokens (the address map suffixes)
// to their addresses. DAPP is deployed with the on-chain symbol DAPPU.
func (d Deployment) Tokens() map[string]common.Address {
	return map[string]common.Address{
		"DAPP":  d.DAPP,
		"mUSDC": d.MUSDC,
		"mLINK": d.MLINK,
	}
}

func (d Deployment) Contracts() []chain.Contract {
	return []chain.Contract{
		token.At(d.DAPP),
		token.At(d.MUSDC),
		token.At(d.MLINK),
		exchange.At(d.Exchange),
		flashloan.At(d.FlashLoanUser),
	}
}

func FromAddressMap(m map[string]common.Address) (Deployment, error) {
	var d Deployment
	for key, dst := range map[string]*common.Address{
		KeyDAPP:          &d.DAPP,
		KeyMUSDC:         &d.MUSDC,
		KeyMLINK:         &d.MLINK,
		KeyExchange:      &d.Exchange,
		KeyFlashLoanUser: &d.FlashLoanUser,
	} {
		addr, ok := m[key]
		if !ok {
			return Deployment{}, fmt.Errorf("genesis: address map has no %s", key)
		}
		*dst = addr
	}
	return d, nil
}

// Deploy runs genesis: the deployer creates the tokens and the exchange, and
// user1 creates the flash loan borrower.
func Deploy(ctx context.Context, c *chain.Chain, accts Accounts) (Deployment, error) {
	var d Deployment
	_, err := c.Execute(ctx, accts.Deployer, func(env *chain.Env) error {
		for _, p := range []struct {
			dst    *common.Address
			name   string
			symbol string
		}{
			{&d.DAPP, "Dapp University", "DAPPU"},
			{&d.MUSDC, "Mock USDC", "mUSDC"},
			{&d.MLINK, "Mock Link", "mLINK"},
		} {
			t, err := token.Deploy(env, token.Params{Name: p.name, Symbol: p.symbol, Supply: big.NewInt(TotalSupply)})
			if err != nil {
				return err
			}
			*p.dst = t.Address()
		}
		x, err := exchange.Deploy(env, accts.Collector, FeePercent)
		if err != nil {
			return err
		}
		d.Exchange = x.Address()
		return nil
	})
	if err != nil {
		return Deployment{}, err
	}

	_, err = c.Execute(ctx, accts.User1, func(env *chain.Env) error {
		u, err := flashloan.Deploy(env, d.Exchange)
		if err != nil {
			return err
		}
		d.FlashLoanUser = u.Address()
		return nil
	})
	if err != nil {
		return Deployment{}, err
	}
	return d, nil
}

func Load(path string) (Deployment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Deployment{}, err
	}
	var m map[string]common.Address
	if err := json.Unmarshal(b, &m); err != nil {
		return Deployment{}, fmt.Errorf("genesis: parse %s: %w", path, err)
	}
	return FromAddressMap(m)
}

func Save(path string, d Deployment) error {
	b, err := json.MarshalIndent(d.AddressMap(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// Ensure attaches the deployment recorded at path, or runs genesis and
// records it when there is nothing to attach to.
func Ensure(ctx context.Context, c *chain.Chain, path string, accts Accounts) (Deployment, error) {
	d, err := Load(path)
	switch {
	case err == nil:
		aerr := c.Attach(d.Contracts()...)
		if aerr == nil {
			log.WithField("exchange", d.Exchange.Hex()).Info("genesis: attached existing deployment")
			return d, nil
		}
		if !errors.Is(aerr, chain.ErrUnknownContract) {
			return Deployment{}, aerr
		}
		log.Warnf("genesis: %s does not match chain state, redeploying", path)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Deployment{}, err
	}

	if d, err = Deploy(ctx, c, accts); err != nil {
		return Deployment{}, fmt.Errorf("genesis: %w", err)
	}
	if err := Save(path, d); err != nil {
		return Deployment{}, err
	}
	log.WithField("exchange", d.Exchange.Hex()).Infof("genesis: deployed, addresses written to %s", path)
	return d, nil
}
