package exchange

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TokensDeposited struct {
	Token   common.Address `json:"token"`
	User    common.Address `json:"user"`
	Amount  *big.Int       `json:"amount"`
	Balance *big.Int       `json:"balance"`
}

func (TokensDeposited) EventName() string { return "TokensDeposited" }

type TokensWithdrawn struct {
	Token   common.Address `json:"token"`
	User    common.Address `json:"user"`
	Amount  *big.Int       `json:"amount"`
	Balance *big.Int       `json:"balance"`
}

func (TokensWithdrawn) EventName() string { return "TokensWithdrawn" }

type OrderCreated struct {
	ID            uint64         `json:"id"`
	Creator       common.Address `json:"creator"`
	AssetWanted   common.Address `json:"tokenGet"`
	AmountWanted  *big.Int       `json:"amountGet"`
	AssetOffered  common.Address `json:"tokenGive"`
	AmountOffered *big.Int       `json:"amountGive"`
	Timestamp     time.Time      `json:"timestamp"`
}

func (OrderCreated) EventName() string { return "OrderCreated" }

type OrderCancelled struct {
	ID            uint64         `json:"id"`
	Creator       common.Address `json:"creator"`
	AssetWanted   common.Address `json:"tokenGet"`
	AmountWanted  *big.Int       `json:"amountGet"`
	AssetOffered  common.Address `json:"tokenGive"`
	AmountOffered *big.Int       `json:"amountGive"`
	Timestamp     time.Time      `json:"timestamp"`
}

func (OrderCancelled) EventName() string { return "OrderCancelled" }

// OrderFilled is emitted once per settled order. Filler is the account that
// took the order; Creator is the account that made it.
type OrderFilled struct {
	ID            uint64         `json:"id"`
	Filler        common.Address `json:"user"`
	AssetWanted   common.Address `json:"tokenGet"`
	AmountWanted  *big.Int       `json:"amountGet"`
	AssetOffered  common.Address `json:"tokenGive"`
	AmountOffered *big.Int       `json:"amountGive"`
	Creator       common.Address `json:"creator"`
	Timestamp     time.Time      `json:"timestamp"`
}

func (OrderFilled) EventName() string { return "OrderFilled" }

type FlashLoan struct {
	Asset     common.Address `json:"token"`
	Amount    *big.Int       `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
}

func (FlashLoan) EventName() string { return "FlashLoan" }
