package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ramonehamilton/wfmarket-companion/internal/endo"
	"github.com/ramonehamilton/wfmarket-companion/internal/market"
	"github.com/ramonehamilton/wfmarket-companion/internal/pricing"
)

// EndoOptions configures an Endo Candidates run.
type EndoOptions struct {
	Language       string
	FilterContains string
	OnlyOnline     bool
	MinMastery     int
	MinModRank     int

	// MaxPrice is the acquisition ceiling in platinum (0 = no ceiling).
	MaxPrice float64

	// LimitItems caps the listing entries inspected (0 = unlimited).
	LimitItems     int
	SkipStatistics bool
	TopN           int

	Progress ProgressFunc
	Logger   *slog.Logger
	Now      func() time.Time
}

// EndoRow is a mod worth buying to dissolve into Endo.
type EndoRow struct {
	URLName string `json:"url_name"`
	Name    string `json:"item_name"`
	Link    string `json:"link"`
	Rarity  string `json:"rarity"`
	Rank    int    `json:"rank"`
	Mastery *int   `json:"mastery_level"`

	Endo       int      `json:"endo"`
	Price      *float64 `json:"price"`
	MinPrice   *float64 `json:"min_price"`
	Deviation  *float64 `json:"price_deviation"`
	OrderCount int      `json:"order_count"`

	// EndoPerPlat is the score: Endo yield per platinum spent.
	EndoPerPlat *float64 `json:"endo_per_platinum"`

	Volume24h *int `json:"volume_24h"`
}

// EndoEngine computes the Endo Candidates report.
type EndoEngine struct {
	src   Source
	table *endo.Table
	opts  EndoOptions
}

// NewEndoEngine creates an engine reading from src.
func NewEndoEngine(src Source, table *endo.Table, opts EndoOptions) *EndoEngine {
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
	return &EndoEngine{src: src, table: table, opts: opts}
}

// Run returns candidates sorted by Endo per platinum, best first.
// Items without a conversion entry are never emitted.
func (e *EndoEngine) Run(ctx context.Context) ([]EndoRow, error) {
	items, err := e.src.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	selected := selectItems(items, e.opts.FilterContains, e.opts.LimitItems, e.opts.Logger)
	f := newFetcher(e.src, e.opts.Now())
	progress := newTracker(e.opts.Progress, StageScan, len(selected), e.opts.Now)

	var rows []EndoRow
	for i, item := range selected {
		if err := ctx.Err(); err != nil {
			sortEndoRows(rows)
			return rows, err
		}

		row, ok, err := e.evaluate(ctx, f, item)
		if err != nil {
			e.opts.Logger.Warn("Skipping item", "item", item.URLName, "error", err)
		} else if ok {
			rows = append(rows, row)
		}
		progress.report(i + 1)
	}

	sortEndoRows(rows)
	return rows, ctx.Err()
}

// evaluate reports ok=false for items filtered out by the rules.
func (e *EndoEngine) evaluate(ctx context.Context, f *fetcher, item market.Item) (EndoRow, bool, error) {
	detail, err := e.src.ItemSet(ctx, item.URLName)
	if err != nil {
		return EndoRow{}, false, err
	}

	mod, ok := detail.Root(item.URLName)
	if !ok || !mod.HasTag("mod") {
		return EndoRow{}, false, nil
	}

	rank := 0
	if mod.ModMaxRank != nil {
		rank = *mod.ModMaxRank
	}
	if rank < e.opts.MinModRank {
		return EndoRow{}, false, nil
	}
	if mod.MasteryLevel != nil && *mod.MasteryLevel < e.opts.MinMastery {
		return EndoRow{}, false, nil
	}

	yield, ok := e.table.Yield(mod.Rarity, rank)
	if !ok {
		e.opts.Logger.Debug("No conversion entry", "item", item.URLName, "rarity", mod.Rarity, "rank", rank)
		return EndoRow{}, false, nil
	}

	summary, err := f.summary(ctx, item.URLName, pricing.OrderFilter{OnlineOnly: e.opts.OnlyOnline, Rank: &rank}, e.opts.TopN)
	if err != nil {
		return EndoRow{}, false, err
	}
	if summary.LivePrice == nil {
		return EndoRow{}, false, nil
	}
	if e.opts.MaxPrice > 0 && *summary.LivePrice > e.opts.MaxPrice {
		return EndoRow{}, false, nil
	}

	name := mod.Name(e.opts.Language)
	if item.ItemName != "" {
		name = item.ItemName
	}

	row := EndoRow{
		URLName:     item.URLName,
		Name:        name,
		Link:        ItemLink(item.URLName, e.opts.Language),
		Rarity:      mod.Rarity,
		Rank:        rank,
		Mastery:     mod.MasteryLevel,
		Endo:        yield,
		Price:       pricing.Round(summary.LivePrice, 2),
		MinPrice:    pricing.Round(summary.MinPrice, 2),
		Deviation:   pricing.Round(summary.Deviation, 2),
		OrderCount:  summary.OrderCount,
		EndoPerPlat: pricing.Round(pricing.Ratio(pricing.Float(float64(yield)), summary.LivePrice), 2),
	}

	if !e.opts.SkipStatistics {
		if snap, err := f.snapshot(ctx, item.URLName); err != nil {
			e.opts.Logger.Warn("Statistics unavailable", "item", item.URLName, "error", err)
		} else {
			row.Volume24h = intPtr(snap.Volume)
		}
	}

	return row, true, nil
}

// sortEndoRows orders by score descending, then by name. Rows without a
// score sort last.
func sortEndoRows(rows []EndoRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].EndoPerPlat, rows[j].EndoPerPlat
		if (a == nil) != (b == nil) {
			return a != nil
		}
		if a != nil && *a != *b {
			return *a > *b
		}
		return rows[i].Name < rows[j].Name
	})
}
