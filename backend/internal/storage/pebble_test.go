package storage

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/token"
)

func TestApplyAndDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Apply(map[string][]byte{"a": []byte("1"), "b": []byte("2")}))
	v, err := s.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, s.Apply(map[string][]byte{"a": nil}))
	v, err = s.Get([]byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = s.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestChainSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	owner := chain.AccountFromName("owner")

	s, err := Open(dir)
	require.NoError(t, err)
	c := chain.New(s)
	var tok *token.Token
	_, err = c.Execute(context.Background(), owner, func(env *chain.Env) error {
		tok, err = token.Deploy(env, token.Params{Name: "Mock Link", Symbol: "mLINK", Supply: big.NewInt(5)})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	c = chain.New(s)
	defer c.Close()
	require.NoError(t, c.Attach(token.At(tok.Address())))

	h, err := c.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h)
	require.NoError(t, c.View(func(env *chain.Env) error {
		sym, err := tok.Symbol(env)
		require.NoError(t, err)
		assert.Equal(t, "mLINK", sym)
		bal, err := tok.BalanceOf(env, owner)
		require.NoError(t, err)
		assert.Equal(t, "5000000000000000000", bal.String())
		return nil
	}))
}
