package orderbook

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PricePrecision is the number of decimal places kept when a price is
// derived from two base-unit amounts.
const PricePrecision = 18

var (
	ErrWrongPair      = errors.New("orderbook: order does not trade this pair")
	ErrZeroAmount     = errors.New("orderbook: order has a zero amount")
	ErrDuplicateOrder = errors.New("orderbook: order already in book")
	ErrOrderNotFound  = errors.New("orderbook: order not in book")
)

// Pair identifies a market. Base is always the lower address, so both
// orientations of a trade land in the same book.
type Pair struct {
	Base  common.Address `json:"base"`
	Quote common.Address `json:"quote"`
}

func NewPair(a, b common.Address) Pair {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return Pair{Base: a, Quote: b}
}

func (p Pair) String() string { return p.Base.Hex() + "/" + p.Quote.Hex() }

// Entry is an open order resting in a book.
type Entry struct {
	ID            uint64         `json:"id"`
	Creator       common.Address `json:"creator"`
	AssetWanted   common.Address `json:"tokenGet"`
	AmountWanted  *big.Int       `json:"amountGet"`
	AssetOffered  common.Address `json:"tokenGive"`
	AmountOffered *big.Int       `json:"amountGive"`
	CreatedAt     time.Time      `json:"created_at"`
}

// PriceIn returns the price of the entry quoted as the other asset per one
// unit of base.
func (e *Entry) PriceIn(base common.Address) decimal.Decimal {
	num, den := e.AmountOffered, e.AmountWanted
	if e.AssetOffered == base {
		num, den = e.AmountWanted, e.AmountOffered
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), PricePrecision)
}

// QuantityIn returns how much base the entry buys or sells.
func (e *Entry) QuantityIn(base common.Address) *big.Int {
	if e.AssetOffered == base {
		return e.AmountOffered
	}
	return e.AmountWanted
}

// OrderBook holds the open orders of one pair. Asks offer the pair's base
// and are sorted ascending by price; bids want the base and are sorted
// descending.
type OrderBook struct {
	pair Pair
	mu   sync.RWMutex

	Asks   []*Entry
	Bids   []*Entry
	Orders map[uint64]*Entry
}

func NewOrderBook(pair Pair) *OrderBook {
	return &OrderBook{
		pair:   pair,
		Asks:   make([]*Entry, 0),
		Bids:   make([]*Entry, 0),
		Orders: make(map[uint64]*Entry),
	}
}

func (ob *OrderBook) Pair() Pair { return ob.pair }

// AddOrder rests an open order in the book.
func (ob *OrderBook) AddOrder(e *Entry) error {
	if NewPair(e.AssetWanted, e.AssetOffered) != ob.pair || e.AssetWanted == e.AssetOffered {
		return fmt.Errorf("%w: order %d", ErrWrongPair, e.ID)
	}
	if e.AmountWanted.Sign() == 0 || e.AmountOffered.Sign() == 0 {
		return fmt.Errorf("%w: order %d", ErrZeroAmount, e.ID)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, exists := ob.Orders[e.ID]; exists {
		return fmt.Errorf("%w: order %d", ErrDuplicateOrder, e.ID)
	}
	ob.Orders[e.ID] = e
	if e.AssetOffered == ob.pair.Base {
		ob.addAsk(e)
	} else {
		ob.addBid(e)
	}
	return nil
}

// addAsk keeps Asks ascending by price, oldest first within a level.
func (ob *OrderBook) addAsk(e *Entry) {
	price := e.PriceIn(ob.pair.Base)
	i := sort.Search(len(ob.Asks), func(j int) bool { return ob.Asks[j].PriceIn(ob.pair.Base).GreaterThan(price) })
	ob.Asks = append(ob.Asks, nil)
	copy(ob.Asks[i+1:], ob.Asks[i:])
	ob.Asks[i] = e
}

// addBid keeps Bids descending by price, oldest first within a level.
func (ob *OrderBook) addBid(e *Entry) {
	price := e.PriceIn(ob.pair.Base)
	i := sort.Search(len(ob.Bids), func(j int) bool { return ob.Bids[j].PriceIn(ob.pair.Base).LessThan(price) })
	ob.Bids = append(ob.Bids, nil)
	copy(ob.Bids[i+1:], ob.Bids[i:])
	ob.Bids[i] = e
}

// RemoveOrder takes an order out of the book once it is cancelled or filled.
func (ob *OrderBook) RemoveOrder(id uint64) (*Entry, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	e, exists := ob.Orders[id]
	if !exists {
		return nil, fmt.Errorf("%w: order %d", ErrOrderNotFound, id)
	}
	delete(ob.Orders, id)

	side := &ob.Bids
	if e.AssetOffered == ob.pair.Base {
		side = &ob.Asks
	}
	for i, o := range *side {
		if o.ID == id {
			*side = append((*side)[:i], (*side)[i+1:]...)
			break
		}
	}
	return e, nil
}

func (ob *OrderBook) Len() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.Orders)
}

// BookLevel aggregates every order resting at one price.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity *big.Int        `json:"quantity"`
	Orders   int             `json:"orders"`
}

type OrderBookDepth struct {
	Base  common.Address `json:"base"`
	Quote common.Address `json:"quote"`
	Bids  []BookLevel    `json:"bids"`
	Asks  []BookLevel    `json:"asks"`
}

// GetDepth aggregates the book seen from base, which may be either asset
// of the pair. limit caps the number of levels per side; 0 means all.
func (ob *OrderBook) GetDepth(base common.Address, limit int) *OrderBookDepth {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	depth := &OrderBookDepth{Base: ob.pair.Base, Quote: ob.pair.Quote}
	asks, bids := ob.Asks, ob.Bids
	if base == ob.pair.Quote {
		// Inverting every price reverses the ordering, so each side is
		// already sorted the right way for the other orientation.
		depth.Base, depth.Quote = ob.pair.Quote, ob.pair.Base
		asks, bids = ob.Bids, ob.Asks
	}
	depth.Asks = aggregate(asks, depth.Base, limit)
	depth.Bids = aggregate(bids, depth.Base, limit)
	return depth
}

func aggregate(entries []*Entry, base common.Address, limit int) []BookLevel {
	levels := make([]BookLevel, 0)
	for _, e := range entries {
		price := e.PriceIn(base)
		if n := len(levels); n > 0 && levels[n-1].Price.Equal(price) {
			levels[n-1].Quantity.Add(levels[n-1].Quantity, e.QuantityIn(base))
			levels[n-1].Orders++
			continue
		}
		if limit > 0 && len(levels) == limit {
			break
		}
		levels = append(levels, BookLevel{Price: price, Quantity: new(big.Int).Set(e.QuantityIn(base)), Orders: 1})
	}
	return levels
}

// Trade records a settled fill. The maker created the order, the taker
// filled it.
type Trade struct {
	OrderID   uint64          `json:"order_id"`
	Maker     common.Address  `json:"maker"`
	Taker     common.Address  `json:"taker"`
	Base      common.Address  `json:"base"`
	Price     decimal.Decimal `json:"price"`
	Quantity  *big.Int        `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
}
