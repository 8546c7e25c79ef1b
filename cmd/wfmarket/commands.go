package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/ramonehamilton/wfmarket-companion/internal/export"
	"github.com/ramonehamilton/wfmarket-companion/internal/locale"
	"github.com/ramonehamilton/wfmarket-companion/internal/reports"
)

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parseFlags parses a subcommand's flags, then checks the parsed top-N and
// limit values. It returns the exit code to use when either step failed.
func (a *app) parseFlags(fs *flag.FlagSet, args []string, topNs []*int, limits ...*int) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.stderr, "Error: unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return exitUsage, false
	}
	for _, n := range topNs {
		if *n <= 0 {
			fmt.Fprintf(a.stderr, "Error: %s\n", locale.Text(a.cfg.UILanguage, locale.TopNPositive))
			return exitUsage, false
		}
	}
	for _, l := range limits {
		if *l < 0 {
			fmt.Fprintln(a.stderr, "Error: limits cannot be negative")
			return exitUsage, false
		}
	}
	return exitOK, true
}

func (a *app) settings(topN int) export.Settings {
	return export.Settings{
		Language:   a.cfg.UILanguage,
		TopN:       topN,
		Overwrite:  true,
		PrettyJSON: true,
	}
}

func (a *app) progress(enabled bool) reports.ProgressFunc {
	if !enabled {
		return nil
	}
	return newProgressPrinter(a.stderr, a.cfg.UILanguage).report
}

// finish reports the outcome of an engine run. It returns false when there
// is nothing to export.
func (a *app) finish(name string, n int, err error) (int, bool) {
	if err != nil && n == 0 {
		a.logger.Error("Report failed", "report", name, "error", err)
		return exitFailure, false
	}
	if err != nil {
		a.logger.Warn("Report interrupted, exporting partial results", "report", name, "rows", n, "error", err)
		return exitFailure, true
	}
	return exitOK, true
}

func (a *app) saved(out string) {
	fmt.Fprintln(a.stdout, locale.Format(a.cfg.UILanguage, locale.Saved, "out", out))
}

func (a *app) noResults() {
	fmt.Fprintln(a.stdout, locale.Text(a.cfg.UILanguage, locale.NoResults))
}

type setsFlags struct {
	out, filter, chart              string
	onlyOnline, skipStats, progress bool
	limitSets, topN                 int
}

func (a *app) registerSetsFlags(fs *flag.FlagSet, prefix string) *setsFlags {
	c := a.cfg.Sets
	f := &setsFlags{}
	if prefix == "" {
		fs.StringVar(&f.out, "out", c.Out, "Output file (.xlsx, .csv or .json)")
		fs.StringVar(&f.chart, "chart", c.Chart, "Optional HTML chart of the live difference")
		fs.BoolVar(&f.progress, "progress", c.Progress, "Print progress and remaining time")
	}
	fs.StringVar(&f.filter, prefix+"filter", c.FilterContains, "Only items whose name or id contains this text")
	fs.BoolVar(&f.onlyOnline, prefix+"only-online", c.OnlyOnline, "Only use orders from sellers that are online")
	fs.IntVar(&f.limitSets, prefix+"limit-sets", c.LimitSets, "Maximum number of sets (0 = unlimited)")
	fs.BoolVar(&f.skipStats, prefix+"skip-statistics", c.SkipStatistics, "Skip 24h statistics requests")
	fs.IntVar(&f.topN, prefix+"top-n", c.LivePriceTopN, "Number of cheapest orders averaged into the live price")
	return f
}

func (a *app) setsEngine(s *session, f *setsFlags, progress bool) *reports.SetsEngine {
	return reports.NewSetsEngine(s.client, reports.SetsOptions{
		Language:       a.cfg.Language,
		FilterContains: f.filter,
		OnlyOnline:     f.onlyOnline,
		LimitSets:      f.limitSets,
		SkipStatistics: f.skipStats,
		TopN:           f.topN,
		Progress:       a.progress(progress),
		Logger:         a.logger,
	})
}

func (a *app) runSets(ctx context.Context, args []string) int {
	fs := a.newFlagSet("sets")
	f := a.registerSetsFlags(fs, "")
	if code, ok := a.parseFlags(fs, args, []*int{&f.topN}, &f.limitSets); !ok {
		return code
	}
	if _, err := export.FormatFromPath(f.out); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitUsage
	}

	s, err := a.newSession()
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer s.Close(a.logger)

	rows, runErr := a.setsEngine(s, f, f.progress).Run(ctx)
	code, ok := a.finish("sets", len(rows), runErr)
	if !ok {
		return code
	}
	if len(rows) == 0 {
		a.noResults()
		return code
	}

	settings := a.settings(f.topN)
	if err := export.WriteSets(f.out, rows, settings); err != nil {
		a.logger.Error("Failed to write report", "out", f.out, "error", err)
		return exitFailure
	}
	a.saved(f.out)

	if f.chart != "" {
		if err := export.WriteSetsChart(f.chart, rows, settings); err != nil {
			a.logger.Warn("Failed to write chart", "out", f.chart, "error", err)
		} else {
			a.saved(f.chart)
		}
	}
	return code
}

type endoFlags struct {
	out, filter                     string
	onlyOnline, skipStats, progress bool
	minMastery, minModRank          int
	maxPrice                        float64
	limitItems, topN                int
}

func (a *app) registerEndoFlags(fs *flag.FlagSet, prefix string) *endoFlags {
	c := a.cfg.Endo
	f := &endoFlags{}
	if prefix == "" {
		fs.StringVar(&f.out, "out", c.Out, "Output file (.xlsx, .csv or .json)")
		fs.BoolVar(&f.progress, "progress", c.Progress, "Print progress and remaining time")
	}
	fs.StringVar(&f.filter, prefix+"filter", c.FilterContains, "Only items whose name or id contains this text")
	fs.BoolVar(&f.onlyOnline, prefix+"only-online", c.OnlyOnline, "Only use orders from sellers that are online")
	fs.IntVar(&f.minMastery, prefix+"min-mastery", c.MinMastery, "Minimum mastery rank of a candidate")
	fs.IntVar(&f.minModRank, prefix+"min-mod-rank", c.MinModRank, "Minimum max rank of a candidate")
	fs.Float64Var(&f.maxPrice, prefix+"max-price", c.MaxPrice, "Maximum platinum price (0 = no ceiling)")
	fs.IntVar(&f.limitItems, prefix+"limit-items", c.LimitItems, "Maximum number of items to inspect (0 = unlimited)")
	fs.BoolVar(&f.skipStats, prefix+"skip-statistics", c.SkipStatistics, "Skip 24h statistics requests")
	fs.IntVar(&f.topN, prefix+"top-n", c.LivePriceTopN, "Number of cheapest orders averaged into the live price")
	return f
}

func (a *app) endoEngine(s *session, f *endoFlags, progress bool) *reports.EndoEngine {
	return reports.NewEndoEngine(s.client, s.table, reports.EndoOptions{
		Language:       a.cfg.Language,
		FilterContains: f.filter,
		OnlyOnline:     f.onlyOnline,
		MinMastery:     f.minMastery,
		MinModRank:     f.minModRank,
		MaxPrice:       f.maxPrice,
		LimitItems:     f.limitItems,
		SkipStatistics: f.skipStats,
		TopN:           f.topN,
		Progress:       a.progress(progress),
		Logger:         a.logger,
	})
}

func (a *app) runEndo(ctx context.Context, args []string) int {
	fs := a.newFlagSet("endo")
	f := a.registerEndoFlags(fs, "")
	if code, ok := a.parseFlags(fs, args, []*int{&f.topN}, &f.limitItems); !ok {
		return code
	}
	if _, err := export.FormatFromPath(f.out); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitUsage
	}

	s, err := a.newSession()
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer s.Close(a.logger)

	rows, runErr := a.endoEngine(s, f, f.progress).Run(ctx)
	code, ok := a.finish("endo", len(rows), runErr)
	if !ok {
		return code
	}
	if len(rows) == 0 {
		a.noResults()
		return code
	}

	if err := export.WriteEndo(f.out, rows, a.settings(f.topN)); err != nil {
		a.logger.Error("Failed to write report", "out", f.out, "error", err)
		return exitFailure
	}
	a.saved(f.out)
	return code
}

type modsFlags struct {
	out, filter, chart, rarities    string
	onlyOnline, skipStats, progress bool
	limitItems, topN                int
}

func (a *app) registerModsFlags(fs *flag.FlagSet, prefix string) *modsFlags {
	c := a.cfg.Mods
	f := &modsFlags{}
	if prefix == "" {
		fs.StringVar(&f.out, "out", c.Out, "Output file (.xlsx, .csv or .json)")
		fs.StringVar(&f.chart, "chart", c.Chart, "Optional HTML chart of platinum per Endo")
		fs.BoolVar(&f.progress, "progress", c.Progress, "Print progress and remaining time")
	}
	fs.StringVar(&f.filter, prefix+"filter", c.FilterContains, "Only items whose name or id contains this text")
	fs.StringVar(&f.rarities, prefix+"rarities", strings.Join(c.Rarities, ","), "Comma-separated rarities to keep (empty = all)")
	fs.BoolVar(&f.onlyOnline, prefix+"only-online", c.OnlyOnline, "Only use orders from sellers that are online")
	fs.IntVar(&f.limitItems, prefix+"limit-items", c.LimitItems, "Maximum number of items to inspect (0 = unlimited)")
	fs.BoolVar(&f.skipStats, prefix+"skip-statistics", c.SkipStatistics, "Skip 24h statistics requests")
	fs.IntVar(&f.topN, prefix+"top-n", c.LivePriceTopN, "Number of cheapest orders averaged into the live price")
	return f
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a *app) modsEngine(s *session, f *modsFlags, progress bool) *reports.ModsEngine {
	return reports.NewModsEngine(s.client, s.table, reports.ModsOptions{
		Language:       a.cfg.Language,
		FilterContains: f.filter,
		OnlyOnline:     f.onlyOnline,
		Rarities:       splitList(f.rarities),
		LimitItems:     f.limitItems,
		SkipStatistics: f.skipStats,
		TopN:           f.topN,
		Progress:       a.progress(progress),
		Logger:         a.logger,
	})
}

func (a *app) runMods(ctx context.Context, args []string) int {
	fs := a.newFlagSet("mods")
	f := a.registerModsFlags(fs, "")
	if code, ok := a.parseFlags(fs, args, []*int{&f.topN}, &f.limitItems); !ok {
		return code
	}
	if _, err := export.FormatFromPath(f.out); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitUsage
	}

	s, err := a.newSession()
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer s.Close(a.logger)

	rows, runErr := a.modsEngine(s, f, f.progress).Run(ctx)
	code, ok := a.finish("mods", len(rows), runErr)
	if !ok {
		return code
	}
	if len(rows) == 0 {
		a.noResults()
		return code
	}

	settings := a.settings(f.topN)
	if err := export.WriteMods(f.out, rows, settings); err != nil {
		a.logger.Error("Failed to write report", "out", f.out, "error", err)
		return exitFailure
	}
	a.saved(f.out)

	if f.chart != "" {
		if err := export.WriteModsChart(f.chart, rows, settings); err != nil {
			a.logger.Warn("Failed to write chart", "out", f.chart, "error", err)
		} else {
			a.saved(f.chart)
		}
	}
	return code
}

// runAll runs sets, mods and Endo against one client so shared lookups hit
// the cache, then writes a single workbook.
func (a *app) runAll(ctx context.Context, args []string) int {
	fs := a.newFlagSet("all")
	var out string
	var progress bool
	fs.StringVar(&out, "out", "warframe_market_report.xlsx", "Output file (.xlsx or .json)")
	fs.BoolVar(&progress, "progress", a.cfg.Sets.Progress, "Print progress and remaining time")
	sf := a.registerSetsFlags(fs, "sets-")
	mf := a.registerModsFlags(fs, "mods-")
	ef := a.registerEndoFlags(fs, "endo-")

	if code, ok := a.parseFlags(fs, args, []*int{&sf.topN, &mf.topN, &ef.topN}, &sf.limitSets, &mf.limitItems, &ef.limitItems); !ok {
		return code
	}
	if format, err := export.FormatFromPath(out); err != nil || format == export.FormatCSV {
		fmt.Fprintln(a.stderr, "Error: combined report needs an .xlsx or .json output")
		return exitUsage
	}

	s, err := a.newSession()
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer s.Close(a.logger)

	combined := export.Combined{SetsTopN: sf.topN, ModsTopN: mf.topN, EndoTopN: ef.topN}
	code := exitOK

	setsRows, err := a.setsEngine(s, sf, progress).Run(ctx)
	if c, ok := a.finish("sets", len(setsRows), err); ok {
		combined.Sets = setsRows
		code = max(code, c)
	} else {
		return c
	}

	if ctx.Err() == nil {
		modsRows, err := a.modsEngine(s, mf, progress).Run(ctx)
		c, _ := a.finish("mods", len(modsRows), err)
		combined.Mods = nonNil(modsRows)
		code = max(code, c)
	}

	if ctx.Err() == nil {
		endoRows, err := a.endoEngine(s, ef, progress).Run(ctx)
		c, _ := a.finish("endo", len(endoRows), err)
		combined.Endo = nonNil(endoRows)
		code = max(code, c)
	}

	if err := export.WriteCombined(out, combined, a.settings(sf.topN)); err != nil {
		a.logger.Error("Failed to write report", "out", out, "error", err)
		return exitFailure
	}
	a.saved(out)
	return code
}

// nonNil keeps an empty report distinguishable from a skipped one.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

func (a *app) runCache(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.stderr, "Usage: wfmarket cache <stats|clear>")
		return exitUsage
	}

	store, err := a.openStore()
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer store.Close()

	switch args[0] {
	case "stats":
		stats, err := store.Stats()
		if err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(a.stdout, "Backend:  %s\n", stats.Backend)
		fmt.Fprintf(a.stdout, "Location: %s\n", stats.Location)
		fmt.Fprintf(a.stdout, "Entries:  %d\n", stats.Entries)
		fmt.Fprintf(a.stdout, "Size:     %d bytes\n", stats.TotalBytes)
		return exitOK
	case "clear":
		if err := store.Clear(); err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			return exitFailure
		}
		fmt.Fprintln(a.stdout, "Cache cleared")
		return exitOK
	default:
		fmt.Fprintf(a.stderr, "Unknown cache command: %s\n", args[0])
		return exitUsage
	}
}
