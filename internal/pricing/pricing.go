// Package pricing computes price aggregates from live orders and closed statistics.
//
// Every derived value is a *float64; nil means the value could not be computed
// from the available data.
package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ramonehamilton/wfmarket-companion/internal/market"
)

// DefaultTopN is the number of cheapest orders averaged into a live price.
const DefaultTopN = 4

// Summary is the top-N live price of an order book.
type Summary struct {
	// OrderCount counts matching orders before truncation to N.
	OrderCount int
	LivePrice  *float64
	Deviation  *float64
	MinPrice   *float64
	TopPrices  []float64
}

// LivePrice sorts prices ascending and averages the cheapest n.
// Deviation is half the spread of that sample. An empty input yields nil
// values and a zero count.
func LivePrice(prices []float64, n int) Summary {
	if n <= 0 {
		n = DefaultTopN
	}

	summary := Summary{OrderCount: len(prices)}
	if len(prices) == 0 {
		return summary
	}

	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	top := sorted
	if len(top) > n {
		top = top[:n]
	}

	var sum float64
	for _, p := range top {
		sum += p
	}

	summary.TopPrices = top
	summary.LivePrice = Float(sum / float64(len(top)))
	summary.Deviation = Float((top[len(top)-1] - top[0]) / 2)
	summary.MinPrice = Float(top[0])
	return summary
}

// OrderFilter narrows an order book before summarizing.
type OrderFilter struct {
	OnlineOnly bool

	// Rank keeps only orders at this mod rank; nil keeps every rank.
	Rank *int
}

// SummarizeOrders applies filter and computes the top-n live price.
func SummarizeOrders(orders []market.Order, filter OrderFilter, n int) Summary {
	prices := make([]float64, 0, len(orders))
	for _, o := range orders {
		if filter.OnlineOnly && !o.User.Online() {
			continue
		}
		if filter.Rank != nil && o.Rank() != *filter.Rank {
			continue
		}
		prices = append(prices, o.Platinum)
	}
	return LivePrice(prices, n)
}

// Snapshot is the 24-hour trading summary of one item.
type Snapshot struct {
	Volume   int
	AvgPrice *float64
}

// Last24h aggregates statistics entries newer than now-24h into a
// volume-weighted price. Without priced volume in the window the latest
// known price is used.
func Last24h(entries []market.StatisticsEntry, now time.Time) Snapshot {
	cutoff := now.Add(-24 * time.Hour)

	var (
		snapshot  Snapshot
		weighted  float64
		hasPrice  bool
		lastPrice *float64
		lastAt    time.Time
	)

	for _, e := range entries {
		price := e.Price()
		if price != nil && (lastPrice == nil || !e.Datetime.Before(lastAt)) {
			lastPrice = price
			lastAt = e.Datetime
		}
		if e.Datetime.Before(cutoff) {
			continue
		}
		snapshot.Volume += e.Volume
		if price != nil {
			weighted += *price * float64(e.Volume)
			hasPrice = true
		}
	}

	switch {
	case snapshot.Volume > 0 && hasPrice:
		snapshot.AvgPrice = Float(weighted / float64(snapshot.Volume))
	case lastPrice != nil:
		snapshot.AvgPrice = Float(*lastPrice)
	}
	return snapshot
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Round rounds v half away from zero to places decimals. Nil stays nil.
func Round(v *float64, places int32) *float64 {
	if v == nil {
		return nil
	}
	r, _ := decimal.NewFromFloat(*v).Round(places).Float64()
	return &r
}

// Ratio returns num/den, or nil when either is nil or den is zero.
func Ratio(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	return Float(*num / *den)
}

// Sub returns a-b, or nil when either is nil.
func Sub(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return Float(*a - *b)
}

// Percent returns delta/base*100, or nil when base is nil or zero.
func Percent(delta, base *float64) *float64 {
	r := Ratio(delta, base)
	if r == nil {
		return nil
	}
	return Float(*r * 100)
}
