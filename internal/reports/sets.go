package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramonehamilton/wfmarket-companion/internal/market"
	"github.com/ramonehamilton/wfmarket-companion/internal/pricing"
)

// SetsOptions configures a Sets-vs-Parts run.
type SetsOptions struct {
	Language       string
	FilterContains string
	OnlyOnline     bool

	// LimitSets caps the number of emitted sets (0 = unlimited).
	LimitSets      int
	SkipStatistics bool
	TopN           int

	Progress ProgressFunc
	Logger   *slog.Logger
	Now      func() time.Time
}

// PartRow holds the prices of one set component.
type PartRow struct {
	URLName  string `json:"url_name"`
	Name     string `json:"item_name"`
	Link     string `json:"link"`
	Quantity int    `json:"quantity_for_set"`

	Volume24h   *int     `json:"volume_24h"`
	AvgPrice24h *float64 `json:"avg_price_24h"`
	LivePrice   *float64 `json:"live_price"`
	LiveDev     *float64 `json:"live_price_deviation"`
	OrderCount  int      `json:"order_count"`
}

// SetRow compares a set's price with the sum of its parts.
// Deltas are set price minus parts sum; percentages are relative to the parts sum.
type SetRow struct {
	URLName  string   `json:"url_name"`
	Name     string   `json:"item_name"`
	Link     string   `json:"link"`
	Category Category `json:"category"`

	Volume24h   *int     `json:"volume_24h"`
	AvgPrice24h *float64 `json:"avg_price_24h"`
	LivePrice   *float64 `json:"live_price"`
	LiveDev     *float64 `json:"live_price_deviation"`
	OrderCount  int      `json:"order_count"`

	PartsSum24h  *float64 `json:"parts_sum_24h"`
	PartsSumLive *float64 `json:"parts_sum_live"`
	Delta24h     *float64 `json:"delta_24h"`
	DeltaLive    *float64 `json:"delta_live"`
	DeltaPct24h  *float64 `json:"delta_pct_24h"`
	DeltaPctLive *float64 `json:"delta_pct_live"`

	Parts []PartRow `json:"parts"`
}

// SetsEngine computes the Sets-vs-Parts report.
type SetsEngine struct {
	src  Source
	opts SetsOptions
}

// NewSetsEngine creates an engine reading from src.
func NewSetsEngine(src Source, opts SetsOptions) *SetsEngine {
	if opts.TopN <= 0 {
		opts.TopN = pricing.DefaultTopN
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SetsEngine{src: src, opts: opts}
}

type setCandidate struct {
	item     market.Item
	root     market.SetComponent
	parts    []market.SetComponent
	category Category
}

// Run builds one row per set in listing order. A listing failure is fatal;
// failures fetching a set's detail or orders skip it. Failed statistics, and
// failures fetching a part, leave those prices unavailable.
func (e *SetsEngine) Run(ctx context.Context) ([]SetRow, error) {
	items, err := e.src.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	candidates, err := e.scan(ctx, selectItems(items, e.opts.FilterContains, 0, e.opts.Logger))
	if err != nil {
		return nil, err
	}

	f := newFetcher(e.src, e.opts.Now())
	progress := newTracker(e.opts.Progress, StageCompute, len(candidates), e.opts.Now)
	rows := make([]SetRow, 0, len(candidates))

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		row, err := e.buildRow(ctx, f, c)
		if err != nil {
			e.opts.Logger.Warn("Skipping set", "set", c.item.URLName, "error", err)
		} else {
			rows = append(rows, row)
		}
		progress.report(i + 1)
	}

	return rows, ctx.Err()
}

// scan walks the filtered listing and resolves set details until LimitSets
// sets were found.
func (e *SetsEngine) scan(ctx context.Context, items []market.Item) ([]setCandidate, error) {
	progress := newTracker(e.opts.Progress, StageScan, len(items), e.opts.Now)
	var out []setCandidate

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if e.opts.LimitSets > 0 && len(out) >= e.opts.LimitSets {
			break
		}
		if !IsSet(item) {
			progress.report(i + 1)
			continue
		}

		detail, err := e.src.ItemSet(ctx, item.URLName)
		if err != nil {
			e.opts.Logger.Warn("Skipping set", "set", item.URLName, "error", err)
			progress.report(i + 1)
			continue
		}

		root, ok := detail.Root(item.URLName)
		if !ok || !root.SetRoot {
			e.opts.Logger.Debug("Item has no set root", "item", item.URLName)
			progress.report(i + 1)
			continue
		}

		out = append(out, setCandidate{
			item:     item,
			root:     root,
			parts:    detail.Parts(),
			category: CategoryFromTags(root.Tags),
		})
		progress.report(i + 1)
	}

	return out, nil
}

func (e *SetsEngine) buildRow(ctx context.Context, f *fetcher, c setCandidate) (SetRow, error) {
	filter := pricing.OrderFilter{OnlineOnly: e.opts.OnlyOnline}
	lang := e.opts.Language

	name := c.item.ItemName
	if name == "" {
		name = c.root.Name(lang)
	}

	row := SetRow{
		URLName:  c.item.URLName,
		Name:     name,
		Link:     ItemLink(c.item.URLName, lang),
		Category: c.category,
	}

	if !e.opts.SkipStatistics {
		if snap, err := f.snapshot(ctx, c.item.URLName); err != nil {
			e.opts.Logger.Warn("Set statistics unavailable", "set", c.item.URLName, "error", err)
		} else {
			row.Volume24h = intPtr(snap.Volume)
			row.AvgPrice24h = snap.AvgPrice
		}
	}

	summary, err := f.summary(ctx, c.item.URLName, filter, e.opts.TopN)
	if err != nil {
		return SetRow{}, fmt.Errorf("orders: %w", err)
	}
	row.LivePrice = summary.LivePrice
	row.LiveDev = summary.Deviation
	row.OrderCount = summary.OrderCount

	prices24h := make([]*float64, 0, len(c.parts))
	pricesLive := make([]*float64, 0, len(c.parts))
	quantities := make([]int, 0, len(c.parts))

	for _, p := range c.parts {
		part := PartRow{
			URLName:  p.URLName,
			Name:     p.Name(lang),
			Link:     ItemLink(p.URLName, lang),
			Quantity: p.QuantityForSet,
		}

		if !e.opts.SkipStatistics {
			if snap, err := f.snapshot(ctx, p.URLName); err != nil {
				e.opts.Logger.Warn("Part statistics unavailable", "set", c.item.URLName, "part", p.URLName, "error", err)
			} else {
				part.Volume24h = intPtr(snap.Volume)
				part.AvgPrice24h = snap.AvgPrice
			}
		}

		if s, err := f.summary(ctx, p.URLName, filter, e.opts.TopN); err != nil {
			e.opts.Logger.Warn("Part orders unavailable", "set", c.item.URLName, "part", p.URLName, "error", err)
		} else {
			part.LivePrice = s.LivePrice
			part.LiveDev = s.Deviation
			part.OrderCount = s.OrderCount
		}

		prices24h = append(prices24h, part.AvgPrice24h)
		pricesLive = append(pricesLive, part.LivePrice)
		quantities = append(quantities, part.Quantity)
		row.Parts = append(row.Parts, roundPart(part))
	}

	if !e.opts.SkipStatistics {
		row.PartsSum24h = PartsSum(prices24h, quantities)
	}
	row.PartsSumLive = PartsSum(pricesLive, quantities)

	row.Delta24h, row.DeltaPct24h = SetDelta(row.AvgPrice24h, row.PartsSum24h)
	row.DeltaLive, row.DeltaPctLive = SetDelta(row.LivePrice, row.PartsSumLive)

	return roundSet(row), nil
}

// PartsSum returns Σ price×quantity. It is nil when there are no parts or
// any part lacks a price.
func PartsSum(prices []*float64, quantities []int) *float64 {
	if len(prices) == 0 {
		return nil
	}
	var sum float64
	for i, p := range prices {
		if p == nil {
			return nil
		}
		sum += *p * float64(quantities[i])
	}
	return pricing.Float(sum)
}

// SetDelta returns set−parts and that delta as a percentage of parts. The
// percentage is nil when parts is nil or zero.
func SetDelta(set, parts *float64) (delta, pct *float64) {
	delta = pricing.Sub(set, parts)
	pct = pricing.Percent(delta, parts)
	return delta, pct
}

func roundPart(p PartRow) PartRow {
	p.AvgPrice24h = pricing.Round(p.AvgPrice24h, 2)
	p.LivePrice = pricing.Round(p.LivePrice, 2)
	p.LiveDev = pricing.Round(p.LiveDev, 2)
	return p
}

func roundSet(r SetRow) SetRow {
	r.AvgPrice24h = pricing.Round(r.AvgPrice24h, 2)
	r.LivePrice = pricing.Round(r.LivePrice, 2)
	r.LiveDev = pricing.Round(r.LiveDev, 2)
	r.PartsSum24h = pricing.Round(r.PartsSum24h, 2)
	r.PartsSumLive = pricing.Round(r.PartsSumLive, 2)
	r.Delta24h = pricing.Round(r.Delta24h, 2)
	r.DeltaLive = pricing.Round(r.DeltaLive, 2)
	r.DeltaPct24h = pricing.Round(r.DeltaPct24h, 2)
	r.DeltaPctLive = pricing.Round(r.DeltaPctLive, 2)
	return r
}
