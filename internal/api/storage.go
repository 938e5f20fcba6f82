package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"adminkit/internal/controls"
	"adminkit/internal/crud"
	"adminkit/internal/locale"
	"adminkit/internal/reference"
	"adminkit/internal/resolve"
	"adminkit/internal/schema"
	"adminkit/internal/store"
)

// Service holds the loaded screens and everything the handlers share.
type Service struct {
	mu      sync.RWMutex
	Screens map[string]*schema.Screen // name -> screen
	Enums   reference.Catalog
	Store   store.Store
	Blob    BlobStore

	// Bindings resolves fetcher, renderer and validator names on (re)load.
	Bindings   schema.Bindings
	Registry   *controls.Registry
	Cache      controls.Cache
	Translator locale.Translator
	PageSize   int
	Refresh    crud.Refresh
	Logger     resolve.Logger

	views *viewManager
}

// NewService serves screens backed by st. Screens and enums may be replaced
// later through Load.
func NewService(screens map[string]*schema.Screen, enums reference.Catalog, st store.Store) *Service {
	if screens == nil {
		screens = map[string]*schema.Screen{}
	}
	return &Service{
		Screens:    screens,
		Enums:      enums,
		Store:      st,
		Registry:   controls.NewRegistry(),
		Translator: locale.Keys{},
		Refresh:    crud.RefreshReload,
		Logger:     log.Default(),
		views:      newViewManager(30 * time.Minute),
	}
}

// SetViewIdleTimeout changes after how long an untouched view session expires.
func (s *Service) SetViewIdleTimeout(d time.Duration) {
	s.views.setIdle(d)
}

// ErrBlockingIssues is returned by Load when lint reports errors.
var ErrBlockingIssues = errors.New("screens have blocking issues")

// LoadResult summarizes a Load.
type LoadResult struct {
	Screens    int            `json:"screens"`
	EnumGroups int            `json:"enumGroups"`
	Issues     []schema.Issue `json:"issues,omitempty"`
}

// Load reads the enum catalogs and screen files, lints them and swaps them in.
// Nothing is replaced when loading fails or lint reports errors.
func (s *Service) Load(screensDir, enumsDir string) (LoadResult, error) {
	var enums reference.Catalog
	if enumsDir != "" {
		var err error
		if enums, err = reference.LoadEnumCatalog(enumsDir); err != nil {
			return LoadResult{}, fmt.Errorf("enums: %w", err)
		}
	}

	b := s.Bindings
	b.Catalogs = enums
	if b.URLFetcher == nil {
		client := &http.Client{Timeout: 10 * time.Second}
		b.URLFetcher = func(tmpl string) schema.OptionFetcher { return controls.HTTPFetcher(client, tmpl) }
	}
	screens, err := schema.LoadAllScreens(screensDir, b)
	if err != nil {
		return LoadResult{}, fmt.Errorf("screens: %w", err)
	}

	res := LoadResult{Screens: len(screens), EnumGroups: len(enums), Issues: lintAll(screens)}
	if schema.Blocking(res.Issues) {
		return res, ErrBlockingIssues
	}

	s.mu.Lock()
	s.Screens = screens
	s.Enums = enums
	s.mu.Unlock()
	return res, nil
}

func lintAll(screens map[string]*schema.Screen) []schema.Issue {
	names := make([]string, 0, len(screens))
	for n := range screens {
		names = append(names, n)
	}
	sort.Strings(names)
	var issues []schema.Issue
	for _, n := range names {
		issues = append(issues, screens[n].Lint()...)
	}
	return issues
}

func (s *Service) screenNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.Screens))
	for n := range s.Screens {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *Service) catalog(name string) (reference.EnumDirectory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir, ok := s.Enums[name]
	return dir, ok
}
