package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid marks configuration that cannot be used. Commands abort before
// any network call when they see it.
var ErrInvalid = errors.New("invalid configuration")

// DefaultPath is the configuration file looked up when no path is given.
const DefaultPath = "config.toml"

// Config represents the application configuration.
type Config struct {
	Platform   string `toml:"platform"`    // pc, ps4, xbox, switch
	Language   string `toml:"language"`    // Marketplace language for item names
	UILanguage string `toml:"ui_language"` // Language of report headers and messages

	// Logging configuration
	Log LogConfig `toml:"log"`

	// HTTP pacing and retry configuration
	Limits LimitsConfig `toml:"limits"`

	// Per-report defaults
	Sets SetsConfig `toml:"sets"`
	Endo EndoConfig `toml:"endo"`
	Mods ModsConfig `toml:"mods"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// EndoTable maps rarity -> rank -> Endo returned when dissolving a mod of that rank.
	// Ranks are TOML keys, so they are strings here.
	EndoTable map[string]map[string]int `toml:"endo_table"`

	// FusionCost maps rarity -> Endo needed for the first rank-up. Each further
	// rank doubles the previous cost.
	FusionCost map[string]int `toml:"fusion_cost"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level     string `toml:"level"`      // debug, info, warn, error
	Format    string `toml:"format"`     // text or json
	AddSource bool   `toml:"add_source"` // Include file:line in records
}

// LimitsConfig contains request pacing settings.
type LimitsConfig struct {
	RateDelay      string `toml:"rate_delay"`      // Minimum delay between API calls (e.g., "350ms")
	Timeout        string `toml:"timeout"`         // HTTP timeout per request
	MaxRetries     int    `toml:"max_retries"`     // Retries after HTTP 429
	InitialBackoff string `toml:"initial_backoff"` // First 429 backoff
	MaxBackoff     string `toml:"max_backoff"`     // Backoff ceiling
}

// SetsConfig contains defaults for the sets report.
type SetsConfig struct {
	Out            string `toml:"out"`
	OnlyOnline     bool   `toml:"only_online"`
	FilterContains string `toml:"filter_contains"`
	LimitSets      int    `toml:"limit_sets"` // 0 = unlimited
	Progress       bool   `toml:"progress"`
	SkipStatistics bool   `toml:"skip_statistics"`
	LivePriceTopN  int    `toml:"live_price_top_n"`
	Chart          string `toml:"chart"` // Optional HTML chart output path
}

// EndoConfig contains defaults for the Endo candidates report.
type EndoConfig struct {
	Out            string  `toml:"out"`
	OnlyOnline     bool    `toml:"only_online"`
	FilterContains string  `toml:"filter_contains"`
	MinMastery     int     `toml:"min_mastery"`
	MinModRank     int     `toml:"min_mod_rank"`
	MaxPrice       float64 `toml:"max_price"`   // Platinum ceiling for a candidate
	LimitItems     int     `toml:"limit_items"` // 0 = unlimited
	LivePriceTopN  int     `toml:"live_price_top_n"`
	Progress       bool    `toml:"progress"`
	SkipStatistics bool    `toml:"skip_statistics"`
}

// ModsConfig contains defaults for the mod profitability report.
type ModsConfig struct {
	Out            string   `toml:"out"`
	OnlyOnline     bool     `toml:"only_online"`
	FilterContains string   `toml:"filter_contains"`
	Rarities       []string `toml:"rarities"`
	LimitItems     int      `toml:"limit_items"` // 0 = unlimited
	LivePriceTopN  int      `toml:"live_price_top_n"`
	Progress       bool     `toml:"progress"`
	SkipStatistics bool     `toml:"skip_statistics"`
	Chart          string   `toml:"chart"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	Enabled       bool   `toml:"enabled"`
	Backend       string `toml:"backend"`   // file or sqlite
	Directory     string `toml:"directory"` // Empty = ~/.wfmarket/cache
	ItemTTL       string `toml:"item_ttl"`
	StatisticsTTL string `toml:"statistics_ttl"`
	OrdersTTL     string `toml:"orders_ttl"`
	MemoryEntries int    `toml:"memory_entries"` // In-process LRU size (0 disables it)
}

// Platforms accepted by the marketplace.
var Platforms = []string{"pc", "ps4", "xbox", "switch"}

// UILanguages that have translated report text.
var UILanguages = []string{"en", "ru"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Platform:   "pc",
		Language:   "en",
		UILanguage: "en",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Limits: LimitsConfig{
			RateDelay:      "350ms",
			Timeout:        "30s",
			MaxRetries:     3,
			InitialBackoff: "1s",
			MaxBackoff:     "16s",
		},
		Sets: SetsConfig{
			Out:            "warframe_market_sets.xlsx",
			FilterContains: "prime",
			LimitSets:      80,
			Progress:       true,
			LivePriceTopN:  4,
		},
		Endo: EndoConfig{
			Out:           "endo_candidates.xlsx",
			MinMastery:    8,
			MinModRank:    8,
			MaxPrice:      30,
			LimitItems:    300,
			LivePriceTopN: 4,
			Progress:      true,
		},
		Mods: ModsConfig{
			Out:           "mods_profitability.xlsx",
			LimitItems:    300,
			LivePriceTopN: 4,
			Progress:      true,
		},
		Cache: CacheConfig{
			Enabled:       true,
			Backend:       "file",
			ItemTTL:       "1h",
			StatisticsTTL: "15m",
			OrdersTTL:     "5m",
			MemoryEntries: 512,
		},
		EndoTable: map[string]map[string]int{
			"common":    {"3": 52, "5": 232, "10": 7672},
			"uncommon":  {"3": 104, "5": 464, "10": 15344},
			"rare":      {"3": 156, "5": 696, "10": 23016},
			"legendary": {"10": 30690},
		},
		FusionCost: map[string]int{
			"common":    10,
			"uncommon":  20,
			"rare":      30,
			"legendary": 40,
		},
	}
}

// Load loads the configuration from path on top of the defaults.
// A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}

	return cfg, nil
}

// decode overlays TOML data onto c. Tables given in the file replace the
// default conversion tables instead of merging into them.
func (c *Config) decode(data []byte) error {
	var present struct {
		EndoTable  map[string]any `toml:"endo_table"`
		FusionCost map[string]any `toml:"fusion_cost"`
	}
	if err := toml.Unmarshal(data, &present); err != nil {
		return err
	}
	if present.EndoTable != nil {
		c.EndoTable = nil
	}
	if present.FusionCost != nil {
		c.FusionCost = nil
	}

	return toml.Unmarshal(data, c)
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with WFM_* variables. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("WFM_PLATFORM", &c.Platform)
	str("WFM_LANGUAGE", &c.Language)
	str("WFM_UI_LANGUAGE", &c.UILanguage)
	str("WFM_LOG_LEVEL", &c.Log.Level)
	str("WFM_LOG_FORMAT", &c.Log.Format)
	str("WFM_RATE_DELAY", &c.Limits.RateDelay)
	str("WFM_CACHE_DIR", &c.Cache.Directory)
	str("WFM_CACHE_BACKEND", &c.Cache.Backend)

	if v, ok := lookup("WFM_CACHE_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: WFM_CACHE_ENABLED=%q: %v", ErrInvalid, v, err)
		}
		c.Cache.Enabled = enabled
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if !contains(Platforms, c.Platform) {
		return fmt.Errorf("%w: unknown platform %q (want one of %s)", ErrInvalid, c.Platform, strings.Join(Platforms, ", "))
	}
	if strings.TrimSpace(c.Language) == "" {
		return fmt.Errorf("%w: language cannot be empty", ErrInvalid)
	}
	if !contains(UILanguages, c.UILanguage) {
		return fmt.Errorf("%w: unsupported ui_language %q (want one of %s)", ErrInvalid, c.UILanguage, strings.Join(UILanguages, ", "))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: invalid log level %q", ErrInvalid, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format %q", ErrInvalid, c.Log.Format)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"limits.rate_delay", c.Limits.RateDelay},
		{"limits.timeout", c.Limits.Timeout},
		{"limits.initial_backoff", c.Limits.InitialBackoff},
		{"limits.max_backoff", c.Limits.MaxBackoff},
		{"cache.item_ttl", c.Cache.ItemTTL},
		{"cache.statistics_ttl", c.Cache.StatisticsTTL},
		{"cache.orders_ttl", c.Cache.OrdersTTL},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%w: invalid %s %q: %v", ErrInvalid, d.name, d.value, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%w: %s cannot be negative: %s", ErrInvalid, d.name, d.value)
		}
	}

	if c.Limits.MaxRetries < 0 {
		return fmt.Errorf("%w: limits.max_retries cannot be negative: %d", ErrInvalid, c.Limits.MaxRetries)
	}

	for name, topN := range map[string]int{
		"sets.live_price_top_n": c.Sets.LivePriceTopN,
		"endo.live_price_top_n": c.Endo.LivePriceTopN,
		"mods.live_price_top_n": c.Mods.LivePriceTopN,
	} {
		if topN <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, name, topN)
		}
	}

	if c.Sets.LimitSets < 0 || c.Endo.LimitItems < 0 || c.Mods.LimitItems < 0 {
		return fmt.Errorf("%w: limits cannot be negative", ErrInvalid)
	}
	if c.Endo.MaxPrice < 0 {
		return fmt.Errorf("%w: endo.max_price cannot be negative: %v", ErrInvalid, c.Endo.MaxPrice)
	}

	switch c.Cache.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalid, c.Cache.Backend)
	}
	if c.Cache.MemoryEntries < 0 {
		return fmt.Errorf("%w: cache.memory_entries cannot be negative: %d", ErrInvalid, c.Cache.MemoryEntries)
	}

	for rarity, ranks := range c.EndoTable {
		for rank, endo := range ranks {
			if r, err := strconv.Atoi(rank); err != nil || r < 0 {
				return fmt.Errorf("%w: endo_table.%s has invalid rank %q", ErrInvalid, rarity, rank)
			}
			if endo < 0 {
				return fmt.Errorf("%w: endo_table.%s.%s cannot be negative", ErrInvalid, rarity, rank)
			}
		}
	}
	for rarity, cost := range c.FusionCost {
		if cost < 0 {
			return fmt.Errorf("%w: fusion_cost.%s cannot be negative", ErrInvalid, rarity)
		}
	}

	return nil
}

// GetRateDelay returns the minimum delay between API calls.
func (c *Config) GetRateDelay() time.Duration { return mustDuration(c.Limits.RateDelay) }

// GetTimeout returns the HTTP request timeout.
func (c *Config) GetTimeout() time.Duration { return mustDuration(c.Limits.Timeout) }

// GetInitialBackoff returns the first backoff applied after HTTP 429.
func (c *Config) GetInitialBackoff() time.Duration { return mustDuration(c.Limits.InitialBackoff) }

// GetMaxBackoff returns the backoff ceiling.
func (c *Config) GetMaxBackoff() time.Duration { return mustDuration(c.Limits.MaxBackoff) }

// GetItemTTL returns the TTL for item listings and details.
func (c *Config) GetItemTTL() time.Duration { return mustDuration(c.Cache.ItemTTL) }

// GetStatisticsTTL returns the TTL for statistics.
func (c *Config) GetStatisticsTTL() time.Duration { return mustDuration(c.Cache.StatisticsTTL) }

// GetOrdersTTL returns the TTL for order books.
func (c *Config) GetOrdersTTL() time.Duration { return mustDuration(c.Cache.OrdersTTL) }

// CacheDirectory returns the configured cache directory or the default one
// under the user's home directory.
func (c *Config) CacheDirectory() (string, error) {
	if c.Cache.Directory != "" {
		return c.Cache.Directory, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".wfmarket", "cache"), nil
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
