package pricing

import (
	"testing"
	"time"

	"github.com/ramonehamilton/wfmarket-companion/internal/market"
)

func intPtr(v int) *int { return &v }

func order(price float64, status string, rank *int) market.Order {
	return market.Order{Platinum: price, OrderType: "sell", ModRank: rank, User: market.Seller{Status: status}}
}

func assertFloat(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s = nil, want %v", name, want)
		return
	}
	if diff := *got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("%s = %v, want %v", name, *got, want)
	}
}

func TestLivePrice(t *testing.T) {
	tests := []struct {
		name      string
		prices    []float64
		n         int
		live      float64
		deviation float64
		min       float64
		count     int
	}{
		{"fewer than n", []float64{20, 10}, 4, 15, 5, 10, 2},
		{"truncates to n", []float64{40, 10, 30, 20, 50, 60}, 4, 25, 15, 10, 6},
		{"single order", []float64{7}, 4, 7, 0, 7, 1},
		{"non positive n uses default", []float64{1, 2, 3, 4, 100}, 0, 2.5, 1.5, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := LivePrice(tt.prices, tt.n)
			assertFloat(t, "LivePrice", s.LivePrice, tt.live)
			assertFloat(t, "Deviation", s.Deviation, tt.deviation)
			assertFloat(t, "MinPrice", s.MinPrice, tt.min)
			if s.OrderCount != tt.count {
				t.Errorf("OrderCount = %d, want %d", s.OrderCount, tt.count)
			}
		})
	}
}

func TestLivePrice_Empty(t *testing.T) {
	s := LivePrice(nil, 4)
	if s.LivePrice != nil || s.Deviation != nil || s.MinPrice != nil {
		t.Errorf("empty input should yield nil values, got %+v", s)
	}
	if s.OrderCount != 0 {
		t.Errorf("OrderCount = %d, want 0", s.OrderCount)
	}
}

func TestLivePrice_DoesNotMutateInput(t *testing.T) {
	prices := []float64{3, 1, 2}
	LivePrice(prices, 2)
	if prices[0] != 3 || prices[1] != 1 || prices[2] != 2 {
		t.Errorf("input mutated: %v", prices)
	}
}

func TestSummarizeOrders_OnlineOnly(t *testing.T) {
	orders := []market.Order{
		order(10, "ingame", nil),
		order(12, "online", nil),
		order(15, "ingame", nil),
		order(20, "online", nil),
		order(5, "offline", nil),
		order(1, "offline", nil),
	}

	s := SummarizeOrders(orders, OrderFilter{OnlineOnly: true}, 2)
	assertFloat(t, "LivePrice", s.LivePrice, 11)
	assertFloat(t, "Deviation", s.Deviation, 1)
	if s.OrderCount != 4 {
		t.Errorf("OrderCount = %d, want 4", s.OrderCount)
	}

	all := SummarizeOrders(orders, OrderFilter{}, 2)
	assertFloat(t, "LivePrice(all)", all.LivePrice, 3)
}

func TestSummarizeOrders_OnlineFilterDropsCheapest(t *testing.T) {
	orders := []market.Order{
		order(15, "online", nil),
		order(20, "ingame", nil),
		order(12, "online", nil),
		order(10, "offline", nil),
	}

	s := SummarizeOrders(orders, OrderFilter{OnlineOnly: true}, 2)
	assertFloat(t, "LivePrice", s.LivePrice, 13.5)
	assertFloat(t, "Deviation", s.Deviation, 1.5)
	assertFloat(t, "MinPrice", s.MinPrice, 12)
	if s.OrderCount != 3 {
		t.Errorf("OrderCount = %d, want 3", s.OrderCount)
	}
}

func TestSummarizeOrders_Rank(t *testing.T) {
	orders := []market.Order{
		order(5, "online", nil),
		order(6, "online", intPtr(0)),
		order(40, "online", intPtr(10)),
		order(44, "online", intPtr(10)),
		order(20, "online", intPtr(5)),
	}

	unranked := SummarizeOrders(orders, OrderFilter{Rank: intPtr(0)}, 4)
	assertFloat(t, "unranked", unranked.LivePrice, 5.5)
	if unranked.OrderCount != 2 {
		t.Errorf("unranked count = %d, want 2 (absent rank is 0)", unranked.OrderCount)
	}

	maxed := SummarizeOrders(orders, OrderFilter{Rank: intPtr(10)}, 4)
	assertFloat(t, "maxed", maxed.LivePrice, 42)

	none := SummarizeOrders(orders, OrderFilter{Rank: intPtr(3)}, 4)
	if none.LivePrice != nil {
		t.Errorf("no orders at rank should be nil, got %v", *none.LivePrice)
	}
}

func TestLast24h(t *testing.T) {
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	entries := []market.StatisticsEntry{
		{Datetime: now.Add(-30 * time.Hour), Volume: 100, WAPrice: Float(1)},
		{Datetime: now.Add(-20 * time.Hour), Volume: 2, WAPrice: Float(10)},
		{Datetime: now.Add(-10 * time.Hour), Volume: 3, AvgPrice: Float(20)},
	}

	s := Last24h(entries, now)
	if s.Volume != 5 {
		t.Errorf("Volume = %d, want 5", s.Volume)
	}
	assertFloat(t, "AvgPrice", s.AvgPrice, 16)
}

func TestLast24h_FallsBackToLatestPrice(t *testing.T) {
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	entries := []market.StatisticsEntry{
		{Datetime: now.Add(-40 * time.Hour), Volume: 5, Median: Float(8)},
		{Datetime: now.Add(-30 * time.Hour), Volume: 5, WAPrice: Float(9)},
	}

	s := Last24h(entries, now)
	if s.Volume != 0 {
		t.Errorf("Volume = %d, want 0", s.Volume)
	}
	assertFloat(t, "AvgPrice", s.AvgPrice, 9)
}

func TestLast24h_Empty(t *testing.T) {
	s := Last24h(nil, time.Now())
	if s.Volume != 0 || s.AvgPrice != nil {
		t.Errorf("Last24h(nil) = %+v", s)
	}
}

func TestRound(t *testing.T) {
	assertFloat(t, "Round(2)", Round(Float(171.428571), 2), 171.43)
	assertFloat(t, "Round(4)", Round(Float(0.00583333), 4), 0.0058)
	assertFloat(t, "Round half", Round(Float(2.345), 2), 2.35)
	if Round(nil, 2) != nil {
		t.Error("Round(nil) should be nil")
	}
}

func TestRatioHelpers(t *testing.T) {
	if Ratio(Float(1), Float(0)) != nil {
		t.Error("Ratio with zero denominator should be nil")
	}
	if Ratio(nil, Float(2)) != nil {
		t.Error("Ratio with nil numerator should be nil")
	}
	assertFloat(t, "Sub", Sub(Float(100), Float(75)), 25)
	if Sub(Float(1), nil) != nil {
		t.Error("Sub with nil should be nil")
	}
	assertFloat(t, "Percent", Percent(Float(25), Float(75)), 33.333333333333336)
}
