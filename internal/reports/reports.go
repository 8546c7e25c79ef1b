// Package reports builds the Sets-vs-Parts, Endo Candidates and Mod
// Profitability reports from marketplace data.
//
// Engines are strictly sequential: every call to the Source blocks before the
// next one begins. Per-item failures are logged and skipped; a cancelled
// context stops the scan and returns the rows computed so far together with
// the context error.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/ramonehamilton/wfmarket-companion/internal/market"
)

// Source is the marketplace data a report reads. *market.Client implements it.
type Source interface {
	ListItems(ctx context.Context) ([]market.Item, error)
	ItemSet(ctx context.Context, urlName string) (*market.ItemDetail, error)
	Statistics(ctx context.Context, urlName string) ([]market.StatisticsEntry, error)
	SellOrders(ctx context.Context, urlName string) ([]market.Order, error)
}

// Progress describes how far a scan has advanced.
type Progress struct {
	Stage     string
	Done      int
	Total     int
	Remaining time.Duration
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Scan stages reported through ProgressFunc.
const (
	StageScan    = "scan"
	StageCompute = "compute"
)

// Category groups sets by the kind of equipment they build.
type Category string

const (
	CategoryWarframes  Category = "warframes"
	CategoryPrimary    Category = "primary"
	CategorySecondary  Category = "secondary"
	CategoryMelee      Category = "melee"
	CategoryArchwing   Category = "archwing"
	CategoryCompanions Category = "companions"
	CategoryOther      Category = "other"
)

// CategoryOrder is the sheet order of the sets report.
var CategoryOrder = []Category{
	CategoryWarframes,
	CategoryPrimary,
	CategorySecondary,
	CategoryMelee,
	CategoryArchwing,
	CategoryCompanions,
	CategoryOther,
}

var categoryTags = []struct {
	category Category
	tags     []string
}{
	{CategoryWarframes, []string{"warframe"}},
	{CategoryPrimary, []string{"primary", "rifle", "bow", "shotgun", "sniper", "launcher"}},
	{CategorySecondary, []string{"secondary", "pistol", "sidearm"}},
	{CategoryMelee, []string{"melee"}},
	{CategoryArchwing, []string{"archwing", "archgun", "archmelee", "space", "landing craft", "spacecraft"}},
	{CategoryCompanions, []string{"sentinel", "companion", "kubrow", "kavat", "moa", "beast", "robot"}},
}

// CategoryFromTags derives the category from item tags. The first matching
// rule wins, so a tag set with both "warframe" and "primary" is a warframe.
func CategoryFromTags(tags []string) Category {
	lower := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		lower[strings.ToLower(t)] = struct{}{}
	}
	for _, rule := range categoryTags {
		for _, tag := range rule.tags {
			if _, ok := lower[tag]; ok {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// ItemLink returns the public page listing sell orders of an item.
// English pages have no language prefix.
func ItemLink(urlName, language string) string {
	lang := strings.ReplaceAll(strings.ToLower(language), "_", "-")
	prefix := ""
	if lang != "" && lang != "en" {
		prefix = "/" + lang
	}
	return fmt.Sprintf("https://warframe.market%s/items/%s?type=sell", prefix, urlName)
}

// IsSet reports whether a listing entry is a set.
func IsSet(item market.Item) bool {
	return strings.HasSuffix(item.URLName, "_set") ||
		strings.HasSuffix(strings.ToLower(item.ItemName), " set")
}

// FilterItems keeps items whose name or url contains substr
// (case-insensitive), dropping duplicate urls. An empty substr keeps all.
func FilterItems(items []market.Item, substr string) []market.Item {
	needle := strings.ToLower(strings.TrimSpace(substr))
	seen := make(map[string]struct{}, len(items))
	out := make([]market.Item, 0, len(items))
	for _, item := range items {
		if item.URLName == "" {
			continue
		}
		if _, dup := seen[item.URLName]; dup {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(item.ItemName), needle) &&
			!strings.Contains(strings.ToLower(item.URLName), needle) {
			continue
		}
		seen[item.URLName] = struct{}{}
		out = append(out, item)
	}
	return out
}

type itemNames []market.Item

func (n itemNames) String(i int) string { return n[i].ItemName }
func (n itemNames) Len() int            { return len(n) }

// Suggest returns up to limit item names that fuzzy-match query, best first.
func Suggest(items []market.Item, query string, limit int) []string {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil
	}
	matches := fuzzy.FindFrom(query, itemNames(items))
	out := make([]string, 0, limit)
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, items[m.Index].ItemName)
	}
	return out
}

// limit truncates items to n when n > 0.
func limit(items []market.Item, n int) []market.Item {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

// selectItems applies the substring filter and the item cap. When the filter
// matches nothing, close names are logged.
func selectItems(items []market.Item, substr string, max int, logger *slog.Logger) []market.Item {
	selected := FilterItems(items, substr)
	if len(selected) == 0 && strings.TrimSpace(substr) != "" {
		logger.Warn("No items match filter", "filter", substr, "suggestions", Suggest(items, substr, 5))
	}
	return limit(selected, max)
}

// tracker reports progress with an ETA extrapolated from the average pace.
type tracker struct {
	fn    ProgressFunc
	stage string
	total int
	start time.Time
	now   func() time.Time
}

func newTracker(fn ProgressFunc, stage string, total int, now func() time.Time) *tracker {
	return &tracker{fn: fn, stage: stage, total: total, start: now(), now: now}
}

func (t *tracker) report(done int) {
	if t.fn == nil || done <= 0 {
		return
	}
	elapsed := t.now().Sub(t.start)
	remaining := time.Duration(0)
	if left := t.total - done; left > 0 {
		remaining = elapsed / time.Duration(done) * time.Duration(left)
	}
	t.fn(Progress{Stage: t.stage, Done: done, Total: t.total, Remaining: remaining})
}

func intPtr(v int) *int {
	return &v
}
