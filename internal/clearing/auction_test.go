package clearing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-sim/internal/sim"
)

func TestAuctionClearsAtMidpoint(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	delivery := now.Add(2 * time.Hour)
	mechanism := NewAuction()

	active := asMap(
		mustOrder(t, "bid", 52, 5, delivery, sim.SideBuy, now),
		mustOrder(t, "ask", 48, 5, delivery, sim.SideSell, now),
	)

	cleared := mechanism.Clear(now, active)
	require.Len(t, cleared, 2)
	for _, order := range cleared {
		require.NotNil(t, order.ExecutionPrice)
		assert.Equal(t, 50.0, *order.ExecutionPrice)
	}
}

func TestAuctionSkipsNonCrossingOrders(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	delivery := now.Add(2 * time.Hour)
	mechanism := NewAuction()

	active := asMap(
		mustOrder(t, "bid", 45, 5, delivery, sim.SideBuy, now),
		mustOrder(t, "ask", 55, 5, delivery, sim.SideSell, now),
	)

	assert.Empty(t, mechanism.Clear(now, active))
}

func TestAuctionSkipsOrdersThatDoNotFitFully(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	delivery := now.Add(2 * time.Hour)
	mechanism := NewAuction()

	// 可成交量为5：大买单全额装不下被跳过，不做部分成交
	active := asMap(
		mustOrder(t, "bid-small", 60, 5, delivery, sim.SideBuy, now),
		mustOrder(t, "bid-big", 58, 10, delivery, sim.SideBuy, now),
		mustOrder(t, "ask", 50, 5, delivery, sim.SideSell, now),
	)

	cleared := mechanism.Clear(now, active)
	require.Len(t, cleared, 2)
	ids := []string{cleared[0].OrderID, cleared[1].OrderID}
	assert.ElementsMatch(t, []string{"bid-small", "ask"}, ids)
}

func TestAuctionPricePriorityBeatsTimePriority(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	delivery := now.Add(2 * time.Hour)
	mechanism := NewAuction()

	// 晚到的高价买单排在先到的低价买单前面
	active := asMap(
		mustOrder(t, "early-low", 52, 5, delivery, sim.SideBuy, now),
		mustOrder(t, "late-high", 56, 5, delivery, sim.SideBuy, now.Add(time.Minute)),
		mustOrder(t, "ask", 50, 5, delivery, sim.SideSell, now),
	)

	cleared := mechanism.Clear(now.Add(time.Hour), active)
	require.Len(t, cleared, 2)
	ids := []string{cleared[0].OrderID, cleared[1].OrderID}
	assert.ElementsMatch(t, []string{"late-high", "ask"}, ids)
}

func TestAuctionClearsWindowsIndependently(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	first := now.Add(2 * time.Hour)
	second := now.Add(3 * time.Hour)
	mechanism := NewAuction()

	// 两个交割时段各自撮合，跨时段的买卖不相抵
	active := asMap(
		mustOrder(t, "bid-1", 52, 5, first, sim.SideBuy, now),
		mustOrder(t, "ask-1", 48, 5, first, sim.SideSell, now),
		mustOrder(t, "bid-2", 60, 3, second, sim.SideBuy, now),
	)

	cleared := mechanism.Clear(now, active)
	require.Len(t, cleared, 2)
	for _, order := range cleared {
		assert.True(t, order.ContractTime.Equal(first), "order %s cleared in wrong window", order.OrderID)
	}
}

func TestAuctionLeavesInputUntouched(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	delivery := now.Add(2 * time.Hour)
	bid := mustOrder(t, "bid", 52, 5, delivery, sim.SideBuy, now)
	ask := mustOrder(t, "ask", 48, 5, delivery, sim.SideSell, now)

	cleared := NewAuction().Clear(now, asMap(bid, ask))
	require.Len(t, cleared, 2)
	assert.Nil(t, bid.ExecutionPrice)
	assert.Nil(t, ask.ExecutionPrice)
	assert.Equal(t, sim.StatusActive, bid.Status)
}
