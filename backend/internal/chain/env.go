package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// MaxCallDepth bounds nested atomic calls within one invocation.
const MaxCallDepth = 64

// Block is the metadata shared by every call of one invocation.
type Block struct {
	Height uint64
	Time   time.Time
}

// Contract is a handle to code living at an address. All of its state is
// kept in the chain store, so a handle can be re-attached after restart.
type Contract interface {
	Address() common.Address
	Kind() string
}

// Env is the execution context handed to contract code: who is calling,
// which block this is, and the working copy all reads and writes go through.
type Env struct {
	chain  *Chain
	tx     *Tx
	sender common.Address
	block  Block
	depth  int
}

func (e *Env) Sender() common.Address { return e.sender }

func (e *Env) Block() Block { return e.block }

func (e *Env) Now() time.Time { return e.block.Time }

// WithSender returns an Env whose calls are made by addr. Contracts use it
// to call other contracts as themselves.
func (e *Env) WithSender(addr common.Address) *Env {
	c := *e
	c.sender = addr
	return &c
}

// Atomic runs fn inside a savepoint. If fn fails every write, log and
// deployment it made is dropped and the error is returned unchanged.
func (e *Env) Atomic(fn func(env *Env) error) error {
	if e.depth >= MaxCallDepth {
		return ErrCallDepth
	}
	sp := e.tx.Begin()
	c := *e
	c.tx = sp
	c.depth++
	if err := fn(&c); err != nil {
		return err
	}
	sp.Merge()
	return nil
}

// Emit records an event from the contract at addr.
func (e *Env) Emit(addr common.Address, ev Event) {
	e.tx.emit(Log{Address: addr, Event: ev})
}

// Contract looks up code deployed at addr, including deployments made
// earlier in the current invocation.
func (e *Env) Contract(addr common.Address) (Contract, bool) {
	if c, ok := e.tx.pending(addr); ok {
		return c, true
	}
	c, ok := e.chain.contracts[addr]
	return c, ok
}

// Deploy creates a contract owned by the current sender at the next
// address derived from the sender's nonce.
func (e *Env) Deploy(build func(addr common.Address) Contract) (Contract, error) {
	nonceKey := Key("chain", "nonce", e.sender)
	nonce, err := e.GetUint64(nonceKey)
	if err != nil {
		return nil, err
	}
	addr := CreateAddress(e.sender, nonce)
	codeKey := Key("chain", "code", addr)
	code, err := e.tx.Get(codeKey)
	if err != nil {
		return nil, err
	}
	if code != nil {
		return nil, fmt.Errorf("%w: %s", ErrAddressCollision, addr.Hex())
	}
	c := build(addr)
	e.SetUint64(nonceKey, nonce+1)
	e.tx.Set(codeKey, []byte(c.Kind()))
	e.tx.attach(c)
	return c, nil
}

func (e *Env) GetBig(key string) (*big.Int, error) {
	b, err := e.tx.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return new(big.Int).SetBytes(b), nil
}

// SetBig stores a non-negative amount. Zero deletes the key.
func (e *Env) SetBig(key string, v *big.Int) {
	switch v.Sign() {
	case -1:
		panic("chain: negative amount for " + key)
	case 0:
		e.tx.Set(key, nil)
	default:
		e.tx.Set(key, v.Bytes())
	}
}

func (e *Env) GetUint64(key string) (uint64, error) {
	b, err := e.tx.Get(key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if len(b) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(b), nil
}

func (e *Env) SetUint64(key string, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.tx.Set(key, b[:])
}

// GetRLP decodes the value at key into v. It reports false if the key is unset.
func (e *Env) GetRLP(key string, v interface{}) (bool, error) {
	b, err := e.tx.Get(key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if b == nil {
		return false, nil
	}
	if err := rlp.DecodeBytes(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (e *Env) PutRLP(key string, v interface{}) error {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	e.tx.Set(key, b)
	return nil
}
