package chain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event is a typed notification emitted by a contract.
type Event interface {
	EventName() string
}

// Log binds an event to the contract that emitted it.
type Log struct {
	Address common.Address
	Event   Event
}

func (l Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Address common.Address `json:"address"`
		Name    string         `json:"event"`
		Args    Event          `json:"args"`
	}{l.Address, l.Event.EventName(), l.Event})
}

// Receipt describes one committed invocation.
type Receipt struct {
	ID     uuid.UUID      `json:"id"`
	Height uint64         `json:"height"`
	Caller common.Address `json:"caller"`
	Time   time.Time      `json:"time"`
	Logs   []Log          `json:"logs"`
}

// Find returns the first event with the given name emitted by addr.
func (r *Receipt) Find(addr common.Address, name string) (Event, bool) {
	for _, l := range r.Logs {
		if l.Address == addr && l.Event.EventName() == name {
			return l.Event, true
		}
	}
	return nil, false
}
