package models

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// User represents a login that trades as Account.
type User struct {
	ID        uuid.UUID      `json:"id"`
	Username  string         `json:"username"`
	Password  string         `json:"-"` // Store hash, exclude from JSON responses
	Account   common.Address `json:"account"`
	CreatedAt time.Time      `json:"created_at"`
}

// Order is the projected history row of an exchange order. Amounts are
// base-unit decimal strings.
type Order struct {
	ID         uint64          `json:"id"`
	Exchange   common.Address  `json:"exchange"`
	Creator    common.Address  `json:"user"`
	TokenGet   common.Address  `json:"tokenGet"`
	AmountGet  string          `json:"amountGet"`
	TokenGive  common.Address  `json:"tokenGive"`
	AmountGive string          `json:"amountGive"`
	Status     string          `json:"status"` // "open", "cancelled" or "filled"
	Filler     *common.Address `json:"filler,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Balance is an account's projected custodial balance of one token.
type Balance struct {
	Account   common.Address `json:"account"`
	Token     common.Address `json:"token"`
	Amount    string         `json:"amount"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Event is one projected log entry.
type Event struct {
	Height    uint64          `json:"height"`
	Index     int             `json:"index"`
	Contract  common.Address  `json:"contract"`
	Name      string          `json:"event"`
	Args      json.RawMessage `json:"args"`
	CreatedAt time.Time       `json:"created_at"`
}
