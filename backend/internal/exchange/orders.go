package exchange

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/user/dexsettle/backend/internal/chain"
)

type Status uint8

const (
	StatusOpen Status = iota
	StatusCancelled
	StatusFilled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusCancelled:
		return "cancelled"
	case StatusFilled:
		return "filled"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Order is a standing offer to give AmountOffered of AssetOffered in exchange
// for AmountWanted of AssetWanted. Ids start at 1 and are never reused.
type Order struct {
	ID            uint64         `json:"id"`
	Creator       common.Address `json:"user"`
	AssetWanted   common.Address `json:"tokenGet"`
	AmountWanted  *big.Int       `json:"amountGet"`
	AssetOffered  common.Address `json:"tokenGive"`
	AmountOffered *big.Int       `json:"amountGive"`
	CreatedAt     uint64         `json:"timestamp"`
	Status        Status         `json:"status"`
}

func (o *Order) Time() time.Time { return time.Unix(int64(o.CreatedAt), 0).UTC() }

func (x *Exchange) orderKey(id uint64) string { return x.key("order", id) }

func (x *Exchange) OrderCount(env *chain.Env) (uint64, error) {
	return env.GetUint64(x.key("orderCount"))
}

// Order returns the order with the given id, in whatever state it is in.
func (x *Exchange) Order(env *chain.Env, id uint64) (*Order, error) {
	var o Order
	ok, err := env.GetRLP(x.orderKey(id), &o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (x *Exchange) IsOrderCancelled(env *chain.Env, id uint64) (bool, error) {
	o, err := x.Order(env, id)
	if err != nil {
		return false, err
	}
	return o.Status == StatusCancelled, nil
}

func (x *Exchange) IsOrderFilled(env *chain.Env, id uint64) (bool, error) {
	o, err := x.Order(env, id)
	if err != nil {
		return false, err
	}
	return o.Status == StatusFilled, nil
}

// MakeOrder records a new open order for the sender and returns its id. The
// sender's custodial balance of the offered asset must cover amountOffered at
// creation time; nothing is reserved.
func (x *Exchange) MakeOrder(env *chain.Env, assetWanted common.Address, amountWanted *big.Int, assetOffered common.Address, amountOffered *big.Int) (uint64, error) {
	var id uint64
	err := env.Atomic(func(env *chain.Env) error {
		if amountWanted.Sign() < 0 || amountOffered.Sign() < 0 {
			return ErrNegativeAmount
		}
		if _, err := x.Config(env); err != nil {
			return err
		}
		creator := env.Sender()
		bal, err := x.TotalBalanceOf(env, assetOffered, creator)
		if err != nil {
			return err
		}
		if bal.Cmp(amountOffered) < 0 {
			return ErrInsufficientBalance
		}
		count, err := x.OrderCount(env)
		if err != nil {
			return err
		}
		id = count + 1
		o := Order{
			ID:            id,
			Creator:       creator,
			AssetWanted:   assetWanted,
			AmountWanted:  new(big.Int).Set(amountWanted),
			AssetOffered:  assetOffered,
			AmountOffered: new(big.Int).Set(amountOffered),
			CreatedAt:     uint64(env.Now().Unix()),
		}
		if err := env.PutRLP(x.orderKey(id), &o); err != nil {
			return err
		}
		env.SetUint64(x.key("orderCount"), id)
		env.Emit(x.addr, OrderCreated{
			ID:            id,
			Creator:       creator,
			AssetWanted:   assetWanted,
			AmountWanted:  o.AmountWanted,
			AssetOffered:  assetOffered,
			AmountOffered: o.AmountOffered,
			Timestamp:     env.Now(),
		})
		return nil
	})
	return id, err
}

// CancelOrder withdraws an open order. Only its creator may cancel it.
func (x *Exchange) CancelOrder(env *chain.Env, id uint64) error {
	return env.Atomic(func(env *chain.Env) error {
		o, err := x.Order(env, id)
		if err != nil {
			return err
		}
		if o.Creator != env.Sender() {
			return ErrNotOwner
		}
		if err := o.checkOpen(); err != nil {
			return err
		}
		o.Status = StatusCancelled
		if err := env.PutRLP(x.orderKey(id), o); err != nil {
			return err
		}
		env.Emit(x.addr, OrderCancelled{
			ID:            id,
			Creator:       o.Creator,
			AssetWanted:   o.AssetWanted,
			AmountWanted:  o.AmountWanted,
			AssetOffered:  o.AssetOffered,
			AmountOffered: o.AmountOffered,
			Timestamp:     env.Now(),
		})
		return nil
	})
}

// FillOrder settles an open order against the sender's custodial balances.
// The filler pays the wanted amount plus the fee; the creator receives the
// wanted amount, the fee account receives the fee and the filler receives the
// offered amount.
func (x *Exchange) FillOrder(env *chain.Env, id uint64) error {
	return env.Atomic(func(env *chain.Env) error {
		o, err := x.Order(env, id)
		if err != nil {
			return err
		}
		if err := o.checkOpen(); err != nil {
			return err
		}
		filler := env.Sender()
		if filler == o.Creator {
			return ErrSelfFill
		}
		cfg, err := x.Config(env)
		if err != nil {
			return err
		}
		fee := Fee(o.AmountWanted, cfg.FeePercent)

		if err := x.debit(env, o.AssetWanted, filler, new(big.Int).Add(o.AmountWanted, fee)); err != nil {
			return err
		}
		if err := x.credit(env, o.AssetWanted, o.Creator, o.AmountWanted); err != nil {
			return err
		}
		if err := x.credit(env, o.AssetWanted, cfg.FeeAccount, fee); err != nil {
			return err
		}
		if err := x.debit(env, o.AssetOffered, o.Creator, o.AmountOffered); err != nil {
			return err
		}
		if err := x.credit(env, o.AssetOffered, filler, o.AmountOffered); err != nil {
			return err
		}

		o.Status = StatusFilled
		if err := env.PutRLP(x.orderKey(id), o); err != nil {
			return err
		}
		env.Emit(x.addr, OrderFilled{
			ID:            id,
			Filler:        filler,
			AssetWanted:   o.AssetWanted,
			AmountWanted:  o.AmountWanted,
			AssetOffered:  o.AssetOffered,
			AmountOffered: o.AmountOffered,
			Creator:       o.Creator,
			Timestamp:     env.Now(),
		})
		return nil
	})
}

// Fee is amount*percent/100, rounded down.
func Fee(amount *big.Int, percent uint64) *big.Int {
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(percent))
	return fee.Quo(fee, big.NewInt(100))
}

func (o *Order) checkOpen() error {
	switch o.Status {
	case StatusFilled:
		return ErrAlreadyFilled
	case StatusCancelled:
		return ErrAlreadyCancelled
	}
	return nil
}
