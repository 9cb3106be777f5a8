// Package outbox durably queues committed receipts for publication and
// relays them to a message broker.
package outbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Record is one queued receipt. Key identifies the message on the broker.
type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Key         []byte
	Payload     []byte
}

const headerLen = 1 + 4 + 8 + 2

// encoding: [state:1][retries:4][lastAttempt:8][keyLen:2][key][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, headerLen, headerLen+len(r.Key)+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(r.Key)))
	buf = append(buf, r.Key...)
	return append(buf, r.Payload...)
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < headerLen {
		return Record{}, errors.New("outbox: short record")
	}
	keyLen := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < headerLen+keyLen {
		return Record{}, errors.New("outbox: truncated key")
	}
	rest := b[headerLen:]
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Key:         append([]byte(nil), rest[:keyLen]...),
		Payload:     append([]byte(nil), rest[keyLen:]...),
	}, nil
}

// Outbox stores records by block height.
type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open outbox %s: %w", dir, err)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutNew queues payload for the block at height.
func (o *Outbox) PutNew(height uint64, key, payload []byte) error {
	rec := Record{State: StateNew, Key: key, Payload: payload}
	return o.db.Set(keyFor(height), encodeRecord(rec), pebble.Sync)
}

// UpdateState records the outcome of a publish attempt.
func (o *Outbox) UpdateState(height uint64, state State, retries uint32) error {
	rec, err := o.Get(height)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(height), encodeRecord(rec), pebble.Sync)
}

func (o *Outbox) Delete(height uint64) error {
	return o.db.Delete(keyFor(height), pebble.Sync)
}

func (o *Outbox) Get(height uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(height))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(val)
}

// Scan visits records in height order. fn must not write to the outbox.
func (o *Outbox) Scan(fn func(height uint64, rec Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("block/"),
		UpperBound: []byte("block/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		height, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(height, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanByState visits records in the given state.
func (o *Outbox) ScanByState(state State, fn func(height uint64, rec Record) error) error {
	return o.Scan(func(height uint64, rec Record) error {
		if rec.State != state {
			return nil
		}
		return fn(height, rec)
	})
}

func keyFor(height uint64) []byte {
	return []byte(fmt.Sprintf("block/%020d", height))
}

func parseKey(b []byte) (uint64, error) {
	var height uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("block/"))), "%d", &height)
	return height, err
}
