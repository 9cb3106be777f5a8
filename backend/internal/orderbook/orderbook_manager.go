package orderbook

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/user/dexsettle/backend/internal/chain"
	"github.com/user/dexsettle/backend/internal/exchange"
)

// MaxRecentTrades bounds the trade history kept per book.
const MaxRecentTrades = 100

// Manager indexes the open orders of one exchange by pair. It is fed from
// committed receipts and never changes chain state.
type Manager struct {
	exchange common.Address

	mu     sync.RWMutex
	books  map[Pair]*OrderBook
	trades map[Pair][]*Trade
	pairs  map[uint64]Pair // open order id -> book
}

var GlobalOrderBookManager *Manager

func NewManager(xaddr common.Address) *Manager {
	return &Manager{
		exchange: xaddr,
		books:    make(map[Pair]*OrderBook),
		trades:   make(map[Pair][]*Trade),
		pairs:    make(map[uint64]Pair),
	}
}

// InitManager initializes the global order book manager for xaddr.
func InitManager(xaddr common.Address) {
	log.Println("Initializing Order Book Manager...")
	GlobalOrderBookManager = NewManager(xaddr)
}

// GetOrCreateBook retrieves the book trading a against b, in either order.
func (m *Manager) GetOrCreateBook(a, b common.Address) *OrderBook {
	pair := NewPair(a, b)
	m.mu.RLock()
	book, exists := m.books[pair]
	m.mu.RUnlock()
	if exists {
		return book
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if book, exists = m.books[pair]; exists {
		return book
	}
	log.Debugf("Creating new order book for pair: %s", pair)
	book = NewOrderBook(pair)
	m.books[pair] = book
	return book
}

// Load indexes every order that is still open on the exchange. Call it
// once at startup, before subscribing to receipts.
func (m *Manager) Load(env *chain.Env) error {
	x := exchange.At(m.exchange)
	count, err := x.OrderCount(env)
	if err != nil {
		return err
	}
	loaded := 0
	for id := uint64(1); id <= count; id++ {
		o, err := x.Order(env, id)
		if err != nil {
			return err
		}
		if o.Status != exchange.StatusOpen {
			continue
		}
		m.submit(&Entry{
			ID:            o.ID,
			Creator:       o.Creator,
			AssetWanted:   o.AssetWanted,
			AmountWanted:  o.AmountWanted,
			AssetOffered:  o.AssetOffered,
			AmountOffered: o.AmountOffered,
			CreatedAt:     o.Time(),
		})
		loaded++
	}
	log.Printf("Loaded %d open orders of %d", loaded, count)
	return nil
}

// Apply updates the index from the exchange events of a committed receipt.
func (m *Manager) Apply(r *chain.Receipt) {
	for _, l := range r.Logs {
		if l.Address != m.exchange {
			continue
		}
		switch e := l.Event.(type) {
		case exchange.OrderCreated:
			m.submit(&Entry{
				ID:            e.ID,
				Creator:       e.Creator,
				AssetWanted:   e.AssetWanted,
				AmountWanted:  e.AmountWanted,
				AssetOffered:  e.AssetOffered,
				AmountOffered: e.AmountOffered,
				CreatedAt:     e.Timestamp,
			})
		case exchange.OrderCancelled:
			m.remove(e.ID)
		case exchange.OrderFilled:
			if entry := m.remove(e.ID); entry != nil {
				m.recordTrade(entry, e)
			}
		}
	}
}

func (m *Manager) submit(e *Entry) {
	book := m.GetOrCreateBook(e.AssetWanted, e.AssetOffered)
	if err := book.AddOrder(e); err != nil {
		// Zero-amount and same-asset orders are valid on chain but have no price.
		log.WithFields(log.Fields{"order": e.ID, "pair": book.Pair()}).Debugf("Order not indexed: %v", err)
		return
	}
	m.mu.Lock()
	m.pairs[e.ID] = book.Pair()
	m.mu.Unlock()
}

func (m *Manager) remove(id uint64) *Entry {
	m.mu.Lock()
	pair, ok := m.pairs[id]
	delete(m.pairs, id)
	book := m.books[pair]
	m.mu.Unlock()
	if !ok || book == nil {
		return nil
	}
	e, err := book.RemoveOrder(id)
	if err != nil {
		log.WithField("order", id).Warnf("Error removing order from book %s: %v", pair, err)
		return nil
	}
	return e
}

func (m *Manager) recordTrade(e *Entry, ev exchange.OrderFilled) {
	pair := NewPair(e.AssetWanted, e.AssetOffered)
	t := &Trade{
		OrderID:   e.ID,
		Maker:     ev.Creator,
		Taker:     ev.Filler,
		Base:      pair.Base,
		Price:     e.PriceIn(pair.Base),
		Quantity:  e.QuantityIn(pair.Base),
		Timestamp: ev.Timestamp,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	trades := append(m.trades[pair], t)
	if len(trades) > MaxRecentTrades {
		trades = trades[len(trades)-MaxRecentTrades:]
	}
	m.trades[pair] = trades
}

// Book returns the book trading a against b if any order has been indexed
// for the pair.
func (m *Manager) Book(a, b common.Address) (*OrderBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[NewPair(a, b)]
	return book, ok
}

// GetBookDepth returns the depth of the book trading base against quote. A
// pair with no book gets an empty depth and no book is created for it.
func (m *Manager) GetBookDepth(base, quote common.Address, limit int) *OrderBookDepth {
	book, ok := m.Book(base, quote)
	if !ok {
		book = NewOrderBook(NewPair(base, quote))
	}
	return book.GetDepth(base, limit)
}

// RecentTrades returns the latest fills of the pair, newest first.
func (m *Manager) RecentTrades(a, b common.Address) []*Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trades := m.trades[NewPair(a, b)]
	out := make([]*Trade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		out = append(out, trades[i])
	}
	return out
}
