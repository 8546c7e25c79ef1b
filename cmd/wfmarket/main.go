package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ramonehamilton/wfmarket-companion/internal/cache"
	"github.com/ramonehamilton/wfmarket-companion/internal/config"
	"github.com/ramonehamilton/wfmarket-companion/internal/endo"
	"github.com/ramonehamilton/wfmarket-companion/internal/logging"
	"github.com/ramonehamilton/wfmarket-companion/internal/market"
	"github.com/ramonehamilton/wfmarket-companion/internal/metrics"
	"github.com/ramonehamilton/wfmarket-companion/internal/version"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1 // fetch or write failure
	exitUsage   = 2 // bad arguments or invalid configuration
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv)
	stop()
	os.Exit(code)
}

// globalFlags are accepted before the subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	platform   string
	language   string
	uiLanguage string
	apiURL     string
	debug      bool
	version    bool
}

func parseGlobalFlags(args []string, stderr io.Writer) (globalFlags, []string, error) {
	var g globalFlags
	fs := flag.NewFlagSet("wfmarket", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	fs.StringVar(&g.configPath, "config", config.DefaultPath, "Path to the TOML configuration file")
	fs.StringVar(&g.envFile, "env-file", ".env", "Path to a .env file with WFM_* overrides")
	fs.StringVar(&g.platform, "platform", "", "Marketplace platform (pc, ps4, xbox, switch)")
	fs.StringVar(&g.language, "language", "", "Marketplace language for item names")
	fs.StringVar(&g.uiLanguage, "ui-language", "", "Language of report headers and messages (en, ru)")
	fs.StringVar(&g.apiURL, "api-url", market.DefaultBaseURL, "Marketplace API root")
	fs.BoolVar(&g.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&g.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return g, nil, err
	}
	return g, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookupEnv func(string) (string, bool)) int {
	g, rest, err := parseGlobalFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if g.version {
		fmt.Fprintf(stdout, "wfmarket %s\n", version.GetVersion())
		return exitOK
	}
	if len(rest) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "version":
		fmt.Fprintf(stdout, "wfmarket %s\n", version.GetVersion())
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	case "init-config":
		return runInitConfig(g, stdout, stderr)
	}

	cfg, err := loadConfig(g, lookupEnv)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, config.ErrInvalid) {
			return exitUsage
		}
		return exitFailure
	}

	a := &app{
		cfg:    cfg,
		flags:  g,
		stdout: stdout,
		stderr: stderr,
		logger: logging.New(cfg.Log, stderr, g.debug),
	}
	slog.SetDefault(a.logger)

	switch command {
	case "sets":
		return a.runSets(ctx, cmdArgs)
	case "endo":
		return a.runEndo(ctx, cmdArgs)
	case "mods":
		return a.runMods(ctx, cmdArgs)
	case "all":
		return a.runAll(ctx, cmdArgs)
	case "cache":
		return a.runCache(cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "wfmarket - Warframe Market profit analytics")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: wfmarket [global flags] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  sets         - Compare set prices with the sum of their parts")
	fmt.Fprintln(w, "  endo         - Find mods that are cheap to buy and dissolve into Endo")
	fmt.Fprintln(w, "  mods         - Compare unranked and max-rank mod prices against Endo cost")
	fmt.Fprintln(w, "  all          - Run every report into one workbook")
	fmt.Fprintln(w, "  cache        - Show or clear the response cache (stats|clear)")
	fmt.Fprintln(w, "  init-config  - Write the default configuration file")
	fmt.Fprintln(w, "  version      - Print version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprintln(w, "  -config PATH        Configuration file (default config.toml)")
	fmt.Fprintln(w, "  -env-file PATH      .env file with WFM_* overrides (default .env)")
	fmt.Fprintln(w, "  -platform NAME      pc, ps4, xbox or switch")
	fmt.Fprintln(w, "  -language CODE      Marketplace language for item names")
	fmt.Fprintln(w, "  -ui-language CODE   Report language (en, ru)")
	fmt.Fprintln(w, "  -debug              Enable debug logging")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  wfmarket sets -filter prime -out sets.xlsx")
	fmt.Fprintln(w, "  wfmarket -ui-language ru mods -rarities rare,legendary")
	fmt.Fprintln(w, "  wfmarket cache stats")
}

// loadConfig resolves the configuration once: defaults, then the TOML file,
// then .env and WFM_* variables, then global flags.
func loadConfig(g globalFlags, lookupEnv func(string) (string, bool)) (*config.Config, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}

	if g.platform != "" {
		cfg.Platform = g.platform
	}
	if g.language != "" {
		cfg.Language = g.language
	}
	if g.uiLanguage != "" {
		cfg.UILanguage = g.uiLanguage
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runInitConfig(g globalFlags, stdout, stderr io.Writer) int {
	if _, err := os.Stat(g.configPath); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", g.configPath)
		return exitFailure
	}
	if err := config.DefaultConfig().Save(g.configPath); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Wrote default configuration to %s\n", g.configPath)
	return exitOK
}

// app carries the resolved configuration into subcommands.
type app struct {
	cfg    *config.Config
	flags  globalFlags
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// openCache opens the configured store. It returns nil when caching is off.
func (a *app) openCache() (*cache.Cache, error) {
	if !a.cfg.Cache.Enabled {
		return nil, nil
	}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}

	c, err := cache.New(store, cache.Options{
		TTLs: map[cache.Category]time.Duration{
			cache.CategoryItems:      a.cfg.GetItemTTL(),
			cache.CategoryItem:       a.cfg.GetItemTTL(),
			cache.CategoryStatistics: a.cfg.GetStatisticsTTL(),
			cache.CategoryOrders:     a.cfg.GetOrdersTTL(),
		},
		MemoryEntries: a.cfg.Cache.MemoryEntries,
		Logger:        a.logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return c, nil
}

func (a *app) openStore() (cache.Store, error) {
	dir, err := a.cfg.CacheDirectory()
	if err != nil {
		return nil, err
	}
	store, err := cache.OpenStore(a.cfg.Cache.Backend, dir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return store, nil
}

// session is the market client and conversion table shared by report runs.
type session struct {
	client  *market.Client
	table   *endo.Table
	cache   *cache.Cache
	metrics *metrics.ClientMetrics
}

func (s *session) Close(logger *slog.Logger) {
	m := s.metrics.GetStats()
	logger.Info("Marketplace traffic",
		"requests", m.Requests,
		"errors", m.Errors,
		"rate_limited", m.RateLimited,
		"cache_hit_rate", fmt.Sprintf("%.1f%%", m.CacheHitRate),
		"p95_ms", fmt.Sprintf("%.0f", m.Latency.P95),
		"elapsed", m.Elapsed)

	if s.cache == nil {
		return
	}
	stats := s.cache.Stats()
	logger.Debug("Cache usage", "hits", stats.Hits, "misses", stats.Misses, "expired", stats.Expired, "writes", stats.Writes)
	if err := s.cache.Close(); err != nil {
		logger.Warn("Failed to close cache", "error", err)
	}
}

func (a *app) newSession() (*session, error) {
	table, err := endo.NewTable(a.cfg.EndoTable, a.cfg.FusionCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	c, err := a.openCache()
	if err != nil {
		// Reports run uncached when the store cannot be opened.
		a.logger.Warn("Cache unavailable, continuing without it", "error", err)
		c = nil
	}

	m := metrics.NewClientMetrics()
	client := market.NewClient(market.Options{
		BaseURL:        a.flags.apiURL,
		Platform:       a.cfg.Platform,
		Language:       a.cfg.Language,
		UserAgent:      "wfmarket-companion/" + version.GetVersion(),
		RateDelay:      a.cfg.GetRateDelay(),
		Timeout:        a.cfg.GetTimeout(),
		MaxRetries:     a.cfg.Limits.MaxRetries,
		InitialBackoff: a.cfg.GetInitialBackoff(),
		MaxBackoff:     a.cfg.GetMaxBackoff(),
		Cache:          c,
		Metrics:        m,
		Logger:         a.logger,
	})

	return &session{client: client, table: table, cache: c, metrics: m}, nil
}
