package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ramonehamilton/wfmarket-companion/internal/endo"
	"github.com/ramonehamilton/wfmarket-companion/internal/market"
	"github.com/ramonehamilton/wfmarket-companion/internal/pricing"
)

// ModsOptions configures a Mod Profitability run.
type ModsOptions struct {
	Language       string
	FilterContains string
	OnlyOnline     bool

	// Rarities keeps only these rarities (empty = all).
	Rarities []string

	// LimitItems caps the listing entries inspected (0 = unlimited).
	LimitItems     int
	SkipStatistics bool
	TopN           int

	Progress ProgressFunc
	Logger   *slog.Logger
	Now      func() time.Time
}

// ModRow compares the unranked and max-rank prices of a mod against the
// Endo needed to rank it up.
type ModRow struct {
	URLName   string `json:"url_name"`
	Name      string `json:"item_name"`
	Link      string `json:"link"`
	Rarity    string `json:"rarity"`
	MaxRank   int    `json:"max_rank"`
	EndoToMax *int   `json:"endo_to_max"`

	UnrankedMin    *float64 `json:"unranked_min"`
	UnrankedAvg    *float64 `json:"unranked_avg"`
	UnrankedDev    *float64 `json:"unranked_deviation"`
	UnrankedOrders int      `json:"unranked_orders"`

	MaxedMin    *float64 `json:"maxed_min"`
	MaxedAvg    *float64 `json:"maxed_avg"`
	MaxedDev    *float64 `json:"maxed_deviation"`
	MaxedOrders int      `json:"maxed_orders"`

	Delta       *float64 `json:"price_diff"`
	DeltaPct    *float64 `json:"price_diff_percent"`
	EndoPerPlat *float64 `json:"endo_per_platinum"`
	PlatPerEndo *float64 `json:"platinum_per_endo"`

	Volume24h *int `json:"volume_24h"`
}

// ModsEngine computes the Mod Profitability report.
type ModsEngine struct {
	src   Source
	table *endo.Table
	opts  ModsOptions
}

// NewModsEngine creates an engine reading from src.
func NewModsEngine(src Source, table *endo.Table, opts ModsOptions) *ModsEngine {
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
	return &ModsEngine{src: src, table: table, opts: opts}
}

// Run returns mods sorted by platinum per Endo, then by platinum delta.
// The substring filter and item cap apply before any detail fetch; the
// rarity filter applies before any order fetch.
func (e *ModsEngine) Run(ctx context.Context) ([]ModRow, error) {
	items, err := e.src.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	selected := selectItems(items, e.opts.FilterContains, e.opts.LimitItems, e.opts.Logger)
	rarities := make(map[string]struct{}, len(e.opts.Rarities))
	for _, r := range e.opts.Rarities {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			rarities[r] = struct{}{}
		}
	}

	f := newFetcher(e.src, e.opts.Now())
	progress := newTracker(e.opts.Progress, StageScan, len(selected), e.opts.Now)

	var rows []ModRow
	for i, item := range selected {
		if err := ctx.Err(); err != nil {
			sortModRows(rows)
			return rows, err
		}

		row, ok, err := e.evaluate(ctx, f, item, rarities)
		if err != nil {
			e.opts.Logger.Warn("Skipping mod", "item", item.URLName, "error", err)
		} else if ok {
			rows = append(rows, row)
		}
		progress.report(i + 1)
	}

	sortModRows(rows)
	return rows, ctx.Err()
}

func (e *ModsEngine) evaluate(ctx context.Context, f *fetcher, item market.Item, rarities map[string]struct{}) (ModRow, bool, error) {
	detail, err := e.src.ItemSet(ctx, item.URLName)
	if err != nil {
		return ModRow{}, false, err
	}

	mod, ok := detail.Root(item.URLName)
	if !ok || !mod.HasTag("mod") {
		return ModRow{}, false, nil
	}
	if len(rarities) > 0 {
		if _, keep := rarities[mod.Rarity]; !keep {
			return ModRow{}, false, nil
		}
	}

	maxRank := 0
	if mod.ModMaxRank != nil && *mod.ModMaxRank > 0 {
		maxRank = *mod.ModMaxRank
	}

	orders, err := f.sellOrders(ctx, item.URLName)
	if err != nil {
		return ModRow{}, false, err
	}

	unrankedRank := 0
	unranked := pricing.SummarizeOrders(orders, pricing.OrderFilter{OnlineOnly: e.opts.OnlyOnline, Rank: &unrankedRank}, e.opts.TopN)
	maxed := pricing.SummarizeOrders(orders, pricing.OrderFilter{OnlineOnly: e.opts.OnlyOnline, Rank: &maxRank}, e.opts.TopN)
	if unranked.OrderCount == 0 && maxed.OrderCount == 0 {
		return ModRow{}, false, nil
	}

	name := mod.Name(e.opts.Language)
	if name == item.URLName && item.ItemName != "" {
		name = item.ItemName
	}

	row := ModRow{
		URLName:        item.URLName,
		Name:           name,
		Link:           ItemLink(item.URLName, e.opts.Language),
		Rarity:         mod.Rarity,
		MaxRank:        maxRank,
		UnrankedMin:    pricing.Round(unranked.MinPrice, 2),
		UnrankedAvg:    pricing.Round(unranked.LivePrice, 2),
		UnrankedDev:    pricing.Round(unranked.Deviation, 2),
		UnrankedOrders: unranked.OrderCount,
		MaxedMin:       pricing.Round(maxed.MinPrice, 2),
		MaxedAvg:       pricing.Round(maxed.LivePrice, 2),
		MaxedDev:       pricing.Round(maxed.Deviation, 2),
		MaxedOrders:    maxed.OrderCount,
	}

	var endoToMax *float64
	if cost, known := e.table.FusionCostToMax(mod.Rarity, maxRank); known {
		row.EndoToMax = intPtr(cost)
		endoToMax = pricing.Float(float64(cost))
	}

	upgrade := ModUpgrade(unranked.LivePrice, maxed.LivePrice, endoToMax)
	row.Delta = pricing.Round(upgrade.Delta, 2)
	row.DeltaPct = pricing.Round(upgrade.DeltaPct, 2)
	row.EndoPerPlat = pricing.Round(upgrade.EndoPerPlat, 2)
	row.PlatPerEndo = pricing.Round(upgrade.PlatPerEndo, 4)

	if !e.opts.SkipStatistics {
		if snap, err := f.snapshot(ctx, item.URLName); err != nil {
			e.opts.Logger.Warn("Statistics unavailable", "item", item.URLName, "error", err)
		} else {
			row.Volume24h = intPtr(snap.Volume)
		}
	}

	return row, true, nil
}

// Upgrade holds the economics of ranking a mod from 0 to max.
type Upgrade struct {
	Delta       *float64
	DeltaPct    *float64
	EndoPerPlat *float64
	PlatPerEndo *float64
}

// ModUpgrade computes the platinum delta between ranked and unranked prices
// and the two Endo ratios. Ratios are only set when delta and endo are both
// positive, so they are never infinite or NaN.
func ModUpgrade(unranked, ranked, endoCost *float64) Upgrade {
	u := Upgrade{
		Delta: pricing.Sub(ranked, unranked),
	}
	u.DeltaPct = pricing.Percent(u.Delta, unranked)

	if u.Delta != nil && *u.Delta > 0 && endoCost != nil && *endoCost > 0 {
		u.EndoPerPlat = pricing.Float(*endoCost / *u.Delta)
		u.PlatPerEndo = pricing.Float(*u.Delta / *endoCost)
	}
	return u
}

// sortModRows orders by platinum per Endo descending, then by delta
// descending. Missing values sort last; ties keep listing order.
func sortModRows(rows []ModRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := compareDesc(rows[i].PlatPerEndo, rows[j].PlatPerEndo); c != 0 {
			return c < 0
		}
		return compareDesc(rows[i].Delta, rows[j].Delta) < 0
	})
}

// compareDesc orders larger values first and nil last.
func compareDesc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a > *b:
		return -1
	case *a < *b:
		return 1
	default:
		return 0
	}
}
