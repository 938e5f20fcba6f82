package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"adminkit/internal/api"
	"adminkit/internal/config"
	"adminkit/internal/controls"
	"adminkit/internal/crud"
	"adminkit/internal/locale"
	"adminkit/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load("config.json", os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 1. Record store
	st, err := store.Open(cfg.StoreDriver, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("store %s: %w", cfg.StoreDriver, err)
	}
	defer st.Close()

	svc := api.NewService(nil, nil, st)
	svc.PageSize = cfg.PageSize
	if svc.Refresh, err = crud.ParseRefresh(cfg.Refresh); err != nil {
		return err
	}
	svc.Blob = &api.LocalBlobStore{Root: cfg.FilesRoot}
	svc.SetViewIdleTimeout(time.Duration(cfg.ViewIdleTimeout))

	// 2. Option cache shared by every mounted view
	if cfg.OptionCacheSize > 0 {
		cache, err := controls.NewMemCache(cfg.OptionCacheSize, time.Duration(cfg.OptionCacheTTL))
		if err != nil {
			return fmt.Errorf("option cache: %w", err)
		}
		defer cache.Close()
		svc.Cache = cache
		fmt.Printf("Option cache: %s options, ttl %s\n", humanize.Comma(cfg.OptionCacheSize), time.Duration(cfg.OptionCacheTTL))
	}

	// 3. Notice messages
	if cfg.LocaleDir != "" {
		cats, err := locale.Load(cfg.LocaleDir)
		if err != nil {
			return fmt.Errorf("locales: %w", err)
		}
		svc.Translator = cats.Translator(cfg.Lang, "en")
		fmt.Printf("Languages: %v\n", cats.Languages())
	}

	// 4. Enum catalogs and screens
	res, err := svc.Load(cfg.ScreensDir, cfg.EnumsDir)
	for _, is := range res.Issues {
		log.Printf("lint %s/%s [%s] %s: %s", is.Screen, is.Field, is.Severity, is.Code, is.Message)
	}
	if errors.Is(err, api.ErrBlockingIssues) {
		return fmt.Errorf("screens in %s: %w", cfg.ScreensDir, err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Loaded screens: %d, enum catalogs: %d\n", res.Screens, res.EnumGroups)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting adminkit on :%s (store: %s)...\n", cfg.Port, cfg.StoreDriver)
	return api.RunServer(ctx, ":"+cfg.Port, svc, api.RouterConfig{
		ScreensDir: cfg.ScreensDir,
		EnumsDir:   cfg.EnumsDir,
	})
}
