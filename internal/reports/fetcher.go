package reports

import (
	"context"
	"time"

	"github.com/ramonehamilton/wfmarket-companion/internal/market"
	"github.com/ramonehamilton/wfmarket-companion/internal/pricing"
)

// fetcher memoizes per-run lookups so an item shared by several rows is
// fetched once. It is not safe for concurrent use.
type fetcher struct {
	src    Source
	now    time.Time
	stats  map[string]pricing.Snapshot
	orders map[string][]market.Order
}

func newFetcher(src Source, now time.Time) *fetcher {
	return &fetcher{
		src:    src,
		now:    now,
		stats:  make(map[string]pricing.Snapshot),
		orders: make(map[string][]market.Order),
	}
}

// snapshot returns the 24h trading summary of urlName.
func (f *fetcher) snapshot(ctx context.Context, urlName string) (pricing.Snapshot, error) {
	if s, ok := f.stats[urlName]; ok {
		return s, nil
	}
	entries, err := f.src.Statistics(ctx, urlName)
	if err != nil {
		return pricing.Snapshot{}, err
	}
	s := pricing.Last24h(entries, f.now)
	f.stats[urlName] = s
	return s, nil
}

// sellOrders returns the visible sell orders of urlName.
func (f *fetcher) sellOrders(ctx context.Context, urlName string) ([]market.Order, error) {
	if o, ok := f.orders[urlName]; ok {
		return o, nil
	}
	orders, err := f.src.SellOrders(ctx, urlName)
	if err != nil {
		return nil, err
	}
	f.orders[urlName] = orders
	return orders, nil
}

// summary returns the top-n live price of urlName.
func (f *fetcher) summary(ctx context.Context, urlName string, filter pricing.OrderFilter, n int) (pricing.Summary, error) {
	orders, err := f.sellOrders(ctx, urlName)
	if err != nil {
		return pricing.Summary{}, err
	}
	return pricing.SummarizeOrders(orders, filter, n), nil
}
