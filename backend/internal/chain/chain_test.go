package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = AccountFromName("alice")
	bob   = AccountFromName("bob")
	epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type noted struct {
	Text string `json:"text"`
}

func (noted) EventName() string { return "Noted" }

type box struct{ addr common.Address }

func (b *box) Address() common.Address { return b.addr }
func (b *box) Kind() string            { return "box" }

type other struct{ addr common.Address }

func (o *other) Address() common.Address { return o.addr }
func (o *other) Kind() string            { return "other" }

func newTestChain(store Store) *Chain {
	return New(store, WithClock(func() time.Time { return epoch.Add(500 * time.Millisecond) }))
}

func TestExecuteCommits(t *testing.T) {
	c := newTestChain(NewMemStore())
	var got []*Receipt
	c.Subscribe(func(r *Receipt) { got = append(got, r) })

	r, err := c.Execute(context.Background(), alice, func(env *Env) error {
		assert.Equal(t, alice, env.Sender())
		assert.Equal(t, uint64(1), env.Block().Height)
		env.SetUint64("counter", 7)
		env.Emit(alice, noted{Text: "hello"})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), r.Height)
	assert.Equal(t, alice, r.Caller)
	assert.Equal(t, epoch, r.Time)
	require.Len(t, r.Logs, 1)
	ev, ok := r.Find(alice, "Noted")
	require.True(t, ok)
	assert.Equal(t, "hello", ev.(noted).Text)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)

	h, err := c.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h)

	require.NoError(t, c.View(func(env *Env) error {
		v, err := env.GetUint64("counter")
		assert.Equal(t, uint64(7), v)
		return err
	}))
}

func TestExecuteFailureLeavesNoTrace(t *testing.T) {
	c := newTestChain(NewMemStore())
	calls := 0
	c.Subscribe(func(*Receipt) { calls++ })

	boom := errors.New("boom")
	_, err := c.Execute(context.Background(), alice, func(env *Env) error {
		env.SetUint64("counter", 1)
		env.Emit(alice, noted{Text: "lost"})
		_, err := env.Deploy(func(addr common.Address) Contract { return &box{addr} })
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, calls)

	h, err := c.Height()
	require.NoError(t, err)
	assert.Zero(t, h)
	assert.Zero(t, c.store.(*MemStore).Len())

	_, ok := c.contracts[CreateAddress(alice, 0)]
	assert.False(t, ok)
}

func TestNestedSavepointRollsBackAlone(t *testing.T) {
	c := newTestChain(NewMemStore())
	r, err := c.Execute(context.Background(), alice, func(env *Env) error {
		env.SetUint64("outer", 1)
		err := env.Atomic(func(env *Env) error {
			env.SetUint64("inner", 1)
			env.SetUint64("outer", 2)
			env.Emit(alice, noted{Text: "inner"})
			return errors.New("inner failed")
		})
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, r.Logs)

	require.NoError(t, c.View(func(env *Env) error {
		outer, _ := env.GetUint64("outer")
		inner, _ := env.GetUint64("inner")
		assert.Equal(t, uint64(1), outer)
		assert.Zero(t, inner)
		return nil
	}))
}

func TestDeployDerivesAddressesFromNonce(t *testing.T) {
	store := NewMemStore()
	c := newTestChain(store)

	var first, second Contract
	_, err := c.Execute(context.Background(), alice, func(env *Env) error {
		var err error
		if first, err = env.Deploy(func(addr common.Address) Contract { return &box{addr} }); err != nil {
			return err
		}
		got, ok := env.Contract(first.Address())
		assert.True(t, ok)
		assert.Same(t, first, got)
		second, err = env.Deploy(func(addr common.Address) Contract { return &box{addr} })
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, CreateAddress(alice, 0), first.Address())
	assert.Equal(t, CreateAddress(alice, 1), second.Address())
	assert.NotEqual(t, CreateAddress(bob, 0), first.Address())

	// A second chain over the same store must re-attach before calling in.
	restarted := newTestChain(store)
	require.NoError(t, restarted.View(func(env *Env) error {
		_, ok := env.Contract(first.Address())
		assert.False(t, ok)
		return nil
	}))
	require.NoError(t, restarted.Attach(&box{first.Address()}))
	assert.ErrorIs(t, restarted.Attach(&other{second.Address()}), ErrCodeMismatch)
	assert.ErrorIs(t, restarted.Attach(&box{bob}), ErrUnknownContract)
	require.NoError(t, restarted.View(func(env *Env) error {
		_, ok := env.Contract(first.Address())
		assert.True(t, ok)
		return nil
	}))
}

func TestCallDepthIsBounded(t *testing.T) {
	c := newTestChain(NewMemStore())
	var recurse func(env *Env) error
	depth := 0
	recurse = func(env *Env) error {
		depth++
		return env.Atomic(recurse)
	}
	_, err := c.Execute(context.Background(), alice, recurse)
	assert.ErrorIs(t, err, ErrCallDepth)
	assert.Equal(t, MaxCallDepth, depth)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	c := newTestChain(NewMemStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Execute(ctx, alice, func(env *Env) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestViewDiscardsWrites(t *testing.T) {
	c := newTestChain(NewMemStore())
	require.NoError(t, c.View(func(env *Env) error {
		env.SetUint64("scratch", 9)
		return nil
	}))
	assert.Zero(t, c.store.(*MemStore).Len())
}

func TestKey(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aB")
	assert.Equal(t, "token/00000000000000000000000000000000000000ab/balance", Key("token", addr, "balance"))
	assert.Equal(t, "order/42", Key("order", uint64(42)))
}
