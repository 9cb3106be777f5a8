package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var heightKey = Key("chain", "height")

// Chain serializes invocations over a Store. Each invocation runs to
// completion under the chain lock and either commits all of its writes in
// one Store.Apply or leaves the store untouched.
type Chain struct {
	mu        sync.RWMutex
	store     Store
	clock     func() time.Time
	contracts map[common.Address]Contract
	subs      []func(*Receipt)
}

type Option func(*Chain)

// WithClock overrides the source of block timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) { c.clock = clock }
}

func New(store Store, opts ...Option) *Chain {
	c := &Chain{
		store:     store,
		clock:     time.Now,
		contracts: make(map[common.Address]Contract),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn to receive every committed receipt, in commit
// order. fn runs under the chain lock and must not call back into the chain.
func (c *Chain) Subscribe(fn func(*Receipt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Attach re-registers contracts whose code is already recorded in the store.
func (c *Chain) Attach(contracts ...Contract) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ct := range contracts {
		code, err := c.store.Get([]byte(Key("chain", "code", ct.Address())))
		if err != nil {
			return err
		}
		if code == nil {
			return fmt.Errorf("%w: %s", ErrUnknownContract, ct.Address().Hex())
		}
		if string(code) != ct.Kind() {
			return fmt.Errorf("%w: %s is %q, not %q", ErrCodeMismatch, ct.Address().Hex(), code, ct.Kind())
		}
		c.contracts[ct.Address()] = ct
	}
	return nil
}

// Height returns the height of the last committed invocation.
func (c *Chain) Height() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	env := c.env(newTx(c.store), common.Address{}, Block{})
	return env.GetUint64(heightKey)
}

// Execute runs fn as one invocation by caller. Any error discards every
// change fn made; on success the writes are committed, subscribers are
// notified and the receipt is returned.
func (c *Chain) Execute(ctx context.Context, caller common.Address, fn func(env *Env) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := newTx(c.store)
	env := c.env(tx, caller, Block{})
	height, err := env.GetUint64(heightKey)
	if err != nil {
		return nil, err
	}
	env.block = Block{Height: height + 1, Time: c.clock().UTC().Truncate(time.Second)}

	if err := env.Atomic(fn); err != nil {
		return nil, err
	}
	env.SetUint64(heightKey, env.block.Height)

	if err := c.store.Apply(tx.writes); err != nil {
		return nil, fmt.Errorf("commit block %d: %w", env.block.Height, err)
	}
	for _, ct := range tx.attached {
		c.contracts[ct.Address()] = ct
	}

	r := &Receipt{
		ID:     uuid.New(),
		Height: env.block.Height,
		Caller: caller,
		Time:   env.block.Time,
		Logs:   tx.logs,
	}
	for _, fn := range c.subs {
		fn(r)
	}
	return r, nil
}

// View runs fn against committed state. Writes made by fn are discarded.
func (c *Chain) View(fn func(env *Env) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	env := c.env(newTx(c.store), common.Address{}, Block{})
	height, err := env.GetUint64(heightKey)
	if err != nil {
		return err
	}
	env.block = Block{Height: height, Time: c.clock().UTC().Truncate(time.Second)}
	return fn(env)
}

func (c *Chain) Close() error {
	return c.store.Close()
}

func (c *Chain) env(tx *Tx, sender common.Address, block Block) *Env {
	return &Env{chain: c, tx: tx, sender: sender, block: block}
}
