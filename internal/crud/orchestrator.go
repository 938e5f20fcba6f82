package crud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"adminkit/internal/resolve"
)

var (
	ErrNoResource        = errors.New("crud: neither endpoint nor function bundle configured")
	ErrAmbiguousResource = errors.New("crud: both endpoint and function bundle configured")
	ErrBusy              = errors.New("crud: another operation is in flight")
	ErrVetoed            = errors.New("crud: delete vetoed")
	ErrNoSelection       = errors.New("crud: no rows selected")
	// ErrSuperseded is returned by a list whose result was discarded because a
	// newer search or page change was issued meanwhile.
	ErrSuperseded = errors.New("crud: superseded by a newer query")
)

// Refresh selects how the table reloads after a mutation.
type Refresh string

const (
	// RefreshReset goes back to page 1.
	RefreshReset Refresh = "reset"
	// RefreshReload re-lists the current page, which may come back empty after
	// deleting the last row of the last page.
	RefreshReload Refresh = "reload"
)

// ParseRefresh maps "" to RefreshReload.
func ParseRefresh(s string) (Refresh, error) {
	switch Refresh(s) {
	case "", RefreshReload:
		return RefreshReload, nil
	case RefreshReset:
		return RefreshReset, nil
	}
	return "", fmt.Errorf("unknown refresh strategy %q", s)
}

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSearching  Phase = "searching"
	PhaseSubmitting Phase = "submitting"
	PhaseDeleting   Phase = "deleting"
)

// State is the query and result state of one table view.
type State struct {
	Page         int            `json:"page"`
	PageSize     int            `json:"pageSize"`
	Total        int            `json:"total"`
	SearchParams map[string]any `json:"searchParams"`
	Rows         []Record       `json:"rows"`
	Loading      bool           `json:"loading"`
	Phase        Phase          `json:"phase"`
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-facing message. Key is a translation key; Message is the
// untranslated fallback.
type Notice struct {
	Level   Level  `json:"level"`
	Key     string `json:"key"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Notice keys.
const (
	NoticeSelectOne    = "crud.select_at_least_one"
	NoticeCreated      = "crud.created"
	NoticeUpdated      = "crud.updated"
	NoticeDeleted      = "crud.deleted"
	NoticeListFailed   = "crud.list_failed"
	NoticeCreateFailed = "crud.create_failed"
	NoticeUpdateFailed = "crud.update_failed"
	NoticeDeleteFailed = "crud.delete_failed"
)

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Config binds an orchestrator to exactly one of Endpoint or Funcs.
type Config struct {
	Endpoint string
	// Client is used with Endpoint; nil means a default client.
	Client *http.Client
	Header http.Header
	Funcs  *Funcs

	PageSize int
	Refresh  Refresh
	// BeforeDelete may veto a delete or batch delete.
	BeforeDelete func(ids []string) bool
	Notifier     Notifier
	Logger       resolve.Logger
}

const DefaultPageSize = 20

// Orchestrator owns the State of one table view.
type Orchestrator struct {
	res          Resource
	refresh      Refresh
	beforeDelete func([]string) bool
	notifier     Notifier
	logger       resolve.Logger

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped by every list request
	inflight int
	mutating bool

	pubMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// New validates cfg and builds an orchestrator. The state starts on page 1
// with no rows; call Search to load the first page.
func New(cfg Config) (*Orchestrator, error) {
	var res Resource
	switch {
	case cfg.Endpoint != "" && cfg.Funcs != nil:
		return nil, ErrAmbiguousResource
	case cfg.Endpoint != "":
		h := NewHTTPResource(cfg.Endpoint, cfg.Client)
		h.Header = cfg.Header
		res = h
	case cfg.Funcs != nil:
		res = cfg.Funcs
	default:
		return nil, ErrNoResource
	}
	return NewWithResource(res, cfg), nil
}

// NewWithResource builds an orchestrator over an existing Resource; the
// Endpoint and Funcs of cfg are ignored.
func NewWithResource(res Resource, cfg Config) *Orchestrator {
	o := &Orchestrator{
		res:          res,
		refresh:      cfg.Refresh,
		beforeDelete: cfg.BeforeDelete,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger,
		subs:         map[int]func(State){},
	}
	if o.refresh == "" {
		o.refresh = RefreshReload
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	size := cfg.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	o.state = State{Page: 1, PageSize: size, SearchParams: map[string]any{}, Phase: PhaseIdle}
	return o
}

// State returns a snapshot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

func (o *Orchestrator) snapshot() State {
	s := o.state
	s.Rows = append([]Record(nil), o.state.Rows...)
	s.SearchParams = make(map[string]any, len(o.state.SearchParams))
	for k, v := range o.state.SearchParams {
		s.SearchParams[k] = v
	}
	return s
}

// Subscribe calls fn with a snapshot after every state change until the
// returned function is called.
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	o.pubMu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.pubMu.Unlock()
	return func() {
		o.pubMu.Lock()
		delete(o.subs, id)
		o.pubMu.Unlock()
	}
}

func (o *Orchestrator) publish() {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	if len(o.subs) == 0 {
		return
	}
	st := o.State()
	for _, fn := range o.subs {
		fn(st)
	}
}

func (o *Orchestrator) notify(n Notice) {
	if n.Level == LevelError {
		o.logger.Printf("crud: %s: %v", n.Key, n.Err)
	}
	if o.notifier != nil {
		o.notifier.Notify(n)
	}
}

// begin marks an operation in flight; the returned function must be deferred.
func (o *Orchestrator) begin(phase Phase) func() {
	o.state.Loading = true
	o.state.Phase = phase
	o.inflight++
	return func() {
		o.mu.Lock()
		o.inflight--
		if o.inflight == 0 {
			o.state.Loading = false
			o.state.Phase = PhaseIdle
		}
		o.mu.Unlock()
		o.publish()
	}
}

// Search replaces the search parameters, goes back to page 1 and lists.
func (o *Orchestrator) Search(ctx context.Context, params map[string]any) error {
	o.mu.Lock()
	cp := make(map[string]any, len(params))
	for k, v := range params {
		cp[k] = v
	}
	o.state.SearchParams = cp
	o.state.Page = 1
	o.mu.Unlock()
	return o.list(ctx)
}

// ChangePage lists the given page with the current search parameters. A
// pageSize of zero keeps the current size.
func (o *Orchestrator) ChangePage(ctx context.Context, page, pageSize int) error {
	o.mu.Lock()
	o.state.Page = max(page, 1)
	if pageSize > 0 {
		o.state.PageSize = pageSize
	}
	o.mu.Unlock()
	return o.list(ctx)
}

// Reload lists the current page again.
func (o *Orchestrator) Reload(ctx context.Context) error {
	return o.list(ctx)
}

func (o *Orchestrator) list(ctx context.Context) error {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	q := Query{Params: o.state.SearchParams, Page: o.state.Page, PageSize: o.state.PageSize}
	phase := PhaseSearching
	if o.mutating {
		phase = o.state.Phase
	}
	done := o.begin(phase)
	o.mu.Unlock()
	o.publish()
	defer done()

	var res ListResult
	err := resolve.Guard(o.logger, "list", func() error {
		var err error
		res, err = o.res.List(ctx, q)
		return err
	})

	o.mu.Lock()
	stale := gen != o.gen
	if err == nil && !stale {
		o.state.Rows = res.Rows
		o.state.Total = res.Total
	}
	o.mu.Unlock()

	switch {
	case stale:
		return ErrSuperseded
	case err != nil:
		o.notify(Notice{Level: LevelError, Key: NoticeListFailed, Message: "Failed to load data", Err: err})
		return fmt.Errorf("list: %w", err)
	}
	return nil
}

// acquire reserves the single mutation slot.
func (o *Orchestrator) acquire(phase Phase) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mutating {
		return nil, ErrBusy
	}
	o.mutating = true
	done := o.begin(phase)
	return func() {
		o.mu.Lock()
		o.mutating = false
		o.mu.Unlock()
		done()
	}, nil
}

// Create calls the resource and refreshes on success.
func (o *Orchestrator) Create(ctx context.Context, values Record) error {
	return o.mutate(ctx, PhaseSubmitting, "create", NoticeCreated, NoticeCreateFailed, func() error {
		return o.res.Create(ctx, values)
	})
}

func (o *Orchestrator) Update(ctx context.Context, id string, values Record) error {
	return o.mutate(ctx, PhaseSubmitting, "update", NoticeUpdated, NoticeUpdateFailed, func() error {
		return o.res.Update(ctx, id, values)
	})
}

// Delete asks BeforeDelete first; a veto makes no call.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if o.beforeDelete != nil && !o.beforeDelete([]string{id}) {
		return ErrVetoed
	}
	return o.mutate(ctx, PhaseDeleting, "delete", NoticeDeleted, NoticeDeleteFailed, func() error {
		return o.res.Delete(ctx, id)
	})
}

// BatchDelete deletes ids. An empty selection only raises a warning.
func (o *Orchestrator) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		o.notify(Notice{Level: LevelWarning, Key: NoticeSelectOne, Message: "Select at least one row"})
		return ErrNoSelection
	}
	if o.beforeDelete != nil && !o.beforeDelete(append([]string(nil), ids...)) {
		return ErrVetoed
	}
	return o.mutate(ctx, PhaseDeleting, "batch delete", NoticeDeleted, NoticeDeleteFailed, func() error {
		return o.res.BatchDelete(ctx, ids)
	})
}

func (o *Orchestrator) mutate(ctx context.Context, phase Phase, what, okKey, failKey string, call func() error) error {
	release, err := o.acquire(phase)
	if err != nil {
		return err
	}
	defer release()
	o.publish()

	if err := resolve.Guard(o.logger, what, call); err != nil {
		o.notify(Notice{Level: LevelError, Key: failKey, Message: "Failed to " + what, Err: err})
		return fmt.Errorf("%s: %w", what, err)
	}
	o.notify(Notice{Level: LevelSuccess, Key: okKey, Message: "Done"})

	if o.refresh == RefreshReset {
		o.mu.Lock()
		o.state.Page = 1
		o.mu.Unlock()
	}
	if err := o.list(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}
	return nil
}
