package chain

import "github.com/ethereum/go-ethereum/common"

// Tx is a working copy layered over its parent (or the Store for the root).
// Writes, logs and contract registrations stay local until Merge folds them
// into the parent; dropping a Tx discards everything it recorded.
type Tx struct {
	parent   *Tx
	store    Store
	writes   map[string][]byte
	logs     []Log
	attached []Contract
}

func newTx(store Store) *Tx {
	return &Tx{store: store, writes: make(map[string][]byte)}
}

// Begin opens a savepoint on top of tx.
func (tx *Tx) Begin() *Tx {
	return &Tx{parent: tx, store: tx.store, writes: make(map[string][]byte)}
}

func (tx *Tx) Get(key string) ([]byte, error) {
	for t := tx; t != nil; t = t.parent {
		if v, ok := t.writes[key]; ok {
			return v, nil
		}
	}
	return tx.store.Get([]byte(key))
}

// Set records a write. A nil value deletes the key on commit.
func (tx *Tx) Set(key string, value []byte) {
	tx.writes[key] = value
}

// Merge folds the savepoint into its parent.
func (tx *Tx) Merge() {
	p := tx.parent
	if p == nil {
		return
	}
	for k, v := range tx.writes {
		p.writes[k] = v
	}
	p.logs = append(p.logs, tx.logs...)
	p.attached = append(p.attached, tx.attached...)
	tx.writes = nil
	tx.logs = nil
	tx.attached = nil
}

func (tx *Tx) emit(l Log) {
	tx.logs = append(tx.logs, l)
}

func (tx *Tx) attach(c Contract) {
	tx.attached = append(tx.attached, c)
}

func (tx *Tx) pending(addr common.Address) (Contract, bool) {
	for t := tx; t != nil; t = t.parent {
		for _, c := range t.attached {
			if c.Address() == addr {
				return c, true
			}
		}
	}
	return nil, false
}
