package clearing

import (
	"container/list"
	"math"
	"sort"
	"time"

	"github.com/google/btree"

	"intraday-sim/internal/sim"
)

// Auction 对每个交割时段执行统一价批量竞价。
// 双边按价格优先、时间次优排队，出清价取边际买卖报价的中点；
// 只有能够全额成交的订单入选，装不下的订单被跳过，双边入选量可能因此不相等。
type Auction struct{}

// NewAuction 构建批量竞价清算机制。
func NewAuction() *Auction {
	return &Auction{}
}

func (a *Auction) Clear(currentTime time.Time, activeOrders map[string]*sim.Order) []*sim.Order {
	books := make(map[int64]*book)
	var windows []int64
	// 先按提交时间排序再入簿，价位内即为时间优先
	for _, order := range sortedOrders(activeOrders) {
		key := order.ContractTime.Unix()
		b, ok := books[key]
		if !ok {
			b = newBook()
			books[key] = b
			windows = append(windows, key)
		}
		b.add(order)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })

	var cleared []*sim.Order
	for _, key := range windows {
		cleared = append(cleared, clearWindow(books[key])...)
	}
	return cleared
}

// priceLevel 是同一价位上订单的FIFO队列。
type priceLevel struct {
	price  float64
	orders *list.List
}

func bidsSort(a, b *priceLevel) bool { return a.price > b.price }
func asksSort(a, b *priceLevel) bool { return a.price < b.price }

// book 是单个交割时段的双边订单簿。
type book struct {
	bids      *btree.BTreeG[*priceLevel]
	asks      *btree.BTreeG[*priceLevel]
	bidLevels map[float64]*priceLevel
	askLevels map[float64]*priceLevel
}

func newBook() *book {
	return &book{
		bids:      btree.NewG(2, bidsSort),
		asks:      btree.NewG(2, asksSort),
		bidLevels: make(map[float64]*priceLevel),
		askLevels: make(map[float64]*priceLevel),
	}
}

func (b *book) add(order *sim.Order) {
	tree, levels := b.asks, b.askLevels
	if order.Side == sim.SideBuy {
		tree, levels = b.bids, b.bidLevels
	}
	level, ok := levels[order.Price]
	if !ok {
		level = &priceLevel{price: order.Price, orders: list.New()}
		levels[order.Price] = level
		tree.ReplaceOrInsert(level)
	}
	level.orders.PushBack(order)
}

// priority 按价格优先展开一侧的排队顺序。
func priority(tree *btree.BTreeG[*priceLevel]) []*sim.Order {
	var orders []*sim.Order
	tree.Ascend(func(level *priceLevel) bool {
		for e := level.orders.Front(); e != nil; e = e.Next() {
			orders = append(orders, e.Value.(*sim.Order))
		}
		return true
	})
	return orders
}

func clearWindow(b *book) []*sim.Order {
	bids := priority(b.bids)
	asks := priority(b.asks)

	volume, price := crossVolume(bids, asks)
	if volume <= 0 {
		return nil
	}

	cleared := selectFullFit(bids, volume, price, true)
	return append(cleared, selectFullFit(asks, volume, price, false)...)
}

// crossVolume 沿双边优先队列推进，返回可成交总量与统一出清价（边际报价中点）。
func crossVolume(bids, asks []*sim.Order) (float64, float64) {
	var volume, lastBid, lastAsk float64
	i, j := 0, 0
	var bidRemaining, askRemaining float64
	if len(bids) > 0 {
		bidRemaining = bids[0].Quantity
	}
	if len(asks) > 0 {
		askRemaining = asks[0].Quantity
	}

	for i < len(bids) && j < len(asks) && bids[i].Price >= asks[j].Price {
		matched := math.Min(bidRemaining, askRemaining)
		volume += matched
		lastBid, lastAsk = bids[i].Price, asks[j].Price

		bidRemaining -= matched
		askRemaining -= matched
		if bidRemaining <= 0 {
			i++
			if i < len(bids) {
				bidRemaining = bids[i].Quantity
			}
		}
		if askRemaining <= 0 {
			j++
			if j < len(asks) {
				askRemaining = asks[j].Quantity
			}
		}
	}

	if volume <= 0 {
		return 0, 0
	}
	return volume, (lastBid + lastAsk) / 2
}

// selectFullFit 在优先顺序下选出愿意以出清价成交且能够全额装入成交量的订单。
func selectFullFit(orders []*sim.Order, capacity, price float64, isBid bool) []*sim.Order {
	var selected []*sim.Order
	var used float64
	for _, order := range orders {
		if isBid && order.Price < price {
			continue
		}
		if !isBid && order.Price > price {
			continue
		}
		if used+order.Quantity > capacity+1e-9 {
			continue
		}
		used += order.Quantity

		snap := order.Snapshot()
		executed := price
		snap.ExecutionPrice = &executed
		selected = append(selected, &snap)
	}
	return selected
}
