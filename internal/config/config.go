package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port       string `json:"port"`
	ScreensDir string `json:"screensDir"`
	EnumsDir   string `json:"enumsDir"`
	LocaleDir  string `json:"localeDir"`
	Lang       string `json:"lang"`

	// Store: "memory" (default) | "postgres" | "sqlite"
	StoreDriver string `json:"storeDriver"`
	DBURL       string `json:"dbUrl"`

	PageSize int    `json:"pageSize"`
	Refresh  string `json:"refresh"` // reload | reset

	// Option lists shared between views
	OptionCacheSize int64    `json:"optionCacheSize"`
	OptionCacheTTL  Duration `json:"optionCacheTtl"`

	FilesRoot       string   `json:"filesRoot"`
	ViewIdleTimeout Duration `json:"viewIdleTimeout"`
}

// Duration reads "90s" style strings from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func def() Config {
	return Config{
		Port:       "8080",
		ScreensDir: "screens",
		EnumsDir:   "reference/enums",
		LocaleDir:  "",
		Lang:       "en",

		StoreDriver: "memory",
		DBURL:       "",

		PageSize: 20,
		Refresh:  "reload",

		OptionCacheSize: 10000,
		OptionCacheTTL:  Duration(5 * time.Minute),

		FilesRoot:       "uploads",
		ViewIdleTimeout: Duration(30 * time.Minute),
	}
}

func loadJSON(path string) (Config, error) {
	c := def()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvInt(k string, fallback int64) int64 {
	if v, ok := os.LookupEnv(k); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(k string, fallback Duration) Duration {
	if v, ok := os.LookupEnv(k); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return Duration(d)
		}
	}
	return fallback
}

// Load reads the JSON file (if it exists), then applies ADMINKIT_* variables
// and finally the command line flags in args. A -config flag naming another
// file restarts the chain with that file.
func Load(jsonPath string, args []string) (Config, error) {
	cfg := def()

	if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
		c2, err := loadJSON(jsonPath)
		if err != nil {
			return cfg, fmt.Errorf("config %s: %w", jsonPath, err)
		}
		cfg = c2
	}

	// ENV overrides
	cfg.Port = getenv("ADMINKIT_PORT", cfg.Port)
	cfg.ScreensDir = getenv("ADMINKIT_SCREENS_DIR", cfg.ScreensDir)
	cfg.EnumsDir = getenv("ADMINKIT_ENUMS_DIR", cfg.EnumsDir)
	cfg.LocaleDir = getenv("ADMINKIT_LOCALE_DIR", cfg.LocaleDir)
	cfg.Lang = getenv("ADMINKIT_LANG", cfg.Lang)
	cfg.StoreDriver = getenv("ADMINKIT_STORE", cfg.StoreDriver)
	cfg.DBURL = getenv("ADMINKIT_DB_URL", cfg.DBURL)
	cfg.PageSize = int(getenvInt("ADMINKIT_PAGE_SIZE", int64(cfg.PageSize)))
	cfg.Refresh = getenv("ADMINKIT_REFRESH", cfg.Refresh)
	cfg.OptionCacheSize = getenvInt("ADMINKIT_OPTION_CACHE_SIZE", cfg.OptionCacheSize)
	cfg.OptionCacheTTL = getenvDuration("ADMINKIT_OPTION_CACHE_TTL", cfg.OptionCacheTTL)
	cfg.FilesRoot = getenv("ADMINKIT_FILES_ROOT", cfg.FilesRoot)
	cfg.ViewIdleTimeout = getenvDuration("ADMINKIT_VIEW_IDLE_TIMEOUT", cfg.ViewIdleTimeout)

	// Flags overrides
	fs := flag.NewFlagSet("adminkit", flag.ContinueOnError)
	configPath := fs.String("config", jsonPath, "Path to config JSON")
	port := fs.String("port", cfg.Port, "HTTP port")
	screens := fs.String("screens", cfg.ScreensDir, "Path to screens directory")
	enums := fs.String("enums", cfg.EnumsDir, "Path to enums directory")
	locales := fs.String("locales", cfg.LocaleDir, "Path to message catalogs (empty = keys)")
	lang := fs.String("lang", cfg.Lang, "Notice language")
	driver := fs.String("store", cfg.StoreDriver, "Record store (memory/postgres/sqlite)")
	db := fs.String("db", cfg.DBURL, "Database URL or SQLite file")
	pageSize := fs.Int("page-size", cfg.PageSize, "Default table page size")
	refresh := fs.String("refresh", cfg.Refresh, "Refresh after a mutation (reload/reset)")
	cacheSize := fs.Int64("option-cache-size", cfg.OptionCacheSize, "Shared option cache size in options (0 = off)")
	cacheTTL := fs.Duration("option-cache-ttl", time.Duration(cfg.OptionCacheTTL), "Shared option cache TTL")
	files := fs.String("files-root", cfg.FilesRoot, "Local files root")
	idle := fs.Duration("view-idle-timeout", time.Duration(cfg.ViewIdleTimeout), "Drop view sessions idle for longer")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	// -config named another file: start over with it
	if *configPath != jsonPath {
		return Load(*configPath, args)
	}

	cfg.Port = strings.TrimSpace(*port)
	cfg.ScreensDir = strings.TrimSpace(*screens)
	cfg.EnumsDir = strings.TrimSpace(*enums)
	cfg.LocaleDir = strings.TrimSpace(*locales)
	cfg.Lang = strings.TrimSpace(*lang)
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(*driver))
	cfg.DBURL = strings.TrimSpace(*db)
	cfg.PageSize = *pageSize
	cfg.Refresh = strings.ToLower(strings.TrimSpace(*refresh))
	cfg.OptionCacheSize = *cacheSize
	cfg.OptionCacheTTL = Duration(*cacheTTL)
	cfg.FilesRoot = strings.TrimSpace(*files)
	cfg.ViewIdleTimeout = Duration(*idle)

	return cfg, cfg.check()
}

func (c Config) check() error {
	switch c.StoreDriver {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown store %q", c.StoreDriver)
	}
	if c.StoreDriver != "memory" && c.DBURL == "" {
		return fmt.Errorf("store %s needs a database URL", c.StoreDriver)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	switch c.Refresh {
	case "reload", "reset":
	default:
		return fmt.Errorf("unknown refresh strategy %q", c.Refresh)
	}
	return nil
}
