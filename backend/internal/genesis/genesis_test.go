package genesis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
	"github.com/user/dexsettle/backend/internal/flashloan"
	"github.com/user/dexsettle/backend/internal/token"
	"github.com/user/dexsettle/backend/internal/units"
)

func TestEnsureDeploysAndRecords(t *testing.T) {
	store := chain.NewMemStore()
	c := chain.New(store)
	path := filepath.Join(t.TempDir(), "deployed_addresses.json")
	accts := DefaultAccounts()

	d, err := Ensure(context.Background(), c, path, accts)
	require.NoError(t, err)

	assert.Equal(t, chain.CreateAddress(accts.Deployer, 0), d.DAPP)
	assert.Equal(t, chain.CreateAddress(accts.Deployer, 3), d.Exchange)
	assert.Equal(t, chain.CreateAddress(accts.User1, 0), d.FlashLoanUser)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d, loaded)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{KeyDAPP, KeyMUSDC, KeyMLINK, KeyExchange, KeyFlashLoanUser} {
		assert.Contains(t, string(raw), key)
	}

	require.NoError(t, c.View(func(env *chain.Env) error {
		for addr, sym := range map[common.Address]string{d.DAPP: "DAPPU", d.MUSDC: "mUSDC", d.MLINK: "mLINK"} {
			tok := token.At(addr)
			info, err := tok.Info(env)
			require.NoError(t, err)
			assert.Equal(t, sym, info.Symbol)
			bal, err := tok.BalanceOf(env, accts.Deployer)
			require.NoError(t, err)
			assert.Equal(t, units.Tokens("1000000").String(), bal.String())
		}
		x := exchange.At(d.Exchange)
		fee, err := x.FeeAccount(env)
		require.NoError(t, err)
		assert.Equal(t, accts.Collector, fee)
		pct, err := x.FeePercent(env)
		require.NoError(t, err)
		assert.Equal(t, uint64(FeePercent), pct)

		cfg, err := flashloan.At(d.FlashLoanUser).Config(env)
		require.NoError(t, err)
		assert.Equal(t, accts.User1, cfg.Controller)
		assert.Equal(t, d.Exchange, cfg.Exchange)
		return nil
	}))

	// A restart over the same store attaches instead of deploying again.
	restarted := chain.New(store)
	again, err := Ensure(context.Background(), restarted, path, accts)
	require.NoError(t, err)
	assert.Equal(t, d, again)
	h, err := restarted.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h)
}

func TestEnsureRedeploysOnFreshStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployed_addresses.json")
	d, err := Ensure(context.Background(), chain.New(chain.NewMemStore()), path, DefaultAccounts())
	require.NoError(t, err)

	c := chain.New(chain.NewMemStore())
	again, err := Ensure(context.Background(), c, path, DefaultAccounts())
	require.NoError(t, err)
	assert.Equal(t, d, again)
	h, err := c.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h)
}

func TestFromAddressMapRequiresEveryKey(t *testing.T) {
	m := Deployment{}.AddressMap()
	delete(m, KeyExchange)
	_, err := FromAddressMap(m)
	assert.ErrorContains(t, err, KeyExchange)
}
