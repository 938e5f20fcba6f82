package controls

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"adminkit/internal/schema"
)

// Logger receives fetch failures. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Ticket tracks one option fetch request.
type Ticket struct {
	key     string
	id      uint64
	done    chan struct{}
	skipped bool
	applied bool
	err     error
}

func doneTicket(key string, applied bool) *Ticket {
	t := &Ticket{key: key, done: make(chan struct{}), skipped: !applied, applied: applied}
	close(t.done)
	return t
}

// Done is closed once the request settled.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the request settled or ctx ends.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Skipped reports that no request was needed (no async options, a dependency
// value is missing, or the eager list was already loaded).
func (t *Ticket) Skipped() bool { return t.skipped }

// Async reports whether the request went to the fetcher rather than being
// served from memory or skipped.
func (t *Ticket) Async() bool { return t.id != 0 }

// Applied reports whether the result became the field's options. Valid after Done.
func (t *Ticket) Applied() bool { return t.applied }

// Err returns the fetch error. Valid after Done.
func (t *Ticket) Err() error { return t.err }

type slot struct {
	options OptionList
	loaded  bool
	combo   string
	// want is the id of the fetch whose result the latest trigger waits for;
	// zero when the latest trigger was served synchronously.
	want     uint64
	memo     map[string]OptionList
	inflight map[string]*Ticket
}

// Loader runs the fetch lifecycle of async option lists for one mounted view.
type Loader struct {
	mu     sync.Mutex
	seq    uint64
	slots  map[string]*slot
	cache  Cache
	scope  string
	logger Logger
	notify func(key string)
}

type LoaderOption func(*Loader)

// WithCache shares fetched lists across views through c, namespaced by scope.
func WithCache(c Cache, scope string) LoaderOption {
	return func(l *Loader) {
		l.cache = c
		l.scope = scope
	}
}

// WithLogger sets the logger for fetch failures.
func WithLogger(lg Logger) LoaderOption {
	return func(l *Loader) { l.logger = lg }
}

// WithNotify calls fn with the field key whenever its options change.
func WithNotify(fn func(key string)) LoaderOption {
	return func(l *Loader) { l.notify = fn }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{slots: map[string]*slot{}, logger: log.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Mount starts the fetch of every field with async options. Eager fields are
// fetched once; dependent fields are fetched for the initial values when all
// of their dependency values are present.
func (l *Loader) Mount(ctx context.Context, fields schema.Schema, values schema.Values) []*Ticket {
	var out []*Ticket
	for i := range fields {
		f := &fields[i]
		if f.AsyncOptions == nil || f.Render != nil {
			continue
		}
		out = append(out, l.Trigger(ctx, fields.KeyOf(i), f, values))
	}
	return out
}

// Trigger requests the options of f for values. Repeated triggers for a
// combination of dependency values already seen are served from memory; a
// trigger supersedes every earlier one still in flight.
func (l *Loader) Trigger(ctx context.Context, key string, f *schema.Field, values schema.Values) *Ticket {
	return l.trigger(ctx, key, f, values, false)
}

// Refresh fetches again even when the combination was seen before.
func (l *Loader) Refresh(ctx context.Context, key string, f *schema.Field, values schema.Values) *Ticket {
	return l.trigger(ctx, key, f, values, true)
}

func (l *Loader) trigger(ctx context.Context, key string, f *schema.Field, values schema.Values, force bool) *Ticket {
	ao := f.AsyncOptions
	if ao == nil || ao.Fetch == nil || f.Render != nil {
		return doneTicket(key, false)
	}

	deps := schema.Values{}
	for _, k := range ao.DependsOn {
		v, ok := values[k]
		if !ok || v == nil {
			l.mu.Lock()
			s := l.slot(key)
			// whatever is in flight belongs to values that no longer hold
			s.want = 0
			if s.combo != "" {
				s.options, s.loaded, s.combo = nil, false, ""
				l.changed(key)
			}
			l.mu.Unlock()
			return doneTicket(key, false)
		}
		deps[k] = v
	}
	combo := comboKey(deps)

	l.mu.Lock()
	s := l.slot(key)
	if len(ao.DependsOn) == 0 && !force && (s.loaded || len(s.inflight) > 0) {
		l.mu.Unlock()
		return doneTicket(key, false)
	}
	if !force {
		if opts, ok := s.memo[combo]; ok {
			s.want = 0
			s.apply(combo, opts)
			l.changed(key)
			l.mu.Unlock()
			return doneTicket(key, true)
		}
		if opts, ok := l.cached(key, combo); ok {
			s.memo[combo] = opts
			s.want = 0
			s.apply(combo, opts)
			l.changed(key)
			l.mu.Unlock()
			return doneTicket(key, true)
		}
		if t, ok := s.inflight[combo]; ok {
			s.want = t.id
			l.mu.Unlock()
			return t
		}
	}
	l.seq++
	t := &Ticket{key: key, id: l.seq, done: make(chan struct{})}
	s.want = t.id
	s.inflight[combo] = t
	l.mu.Unlock()

	go l.run(ctx, t, combo, ao.Fetch, deps)
	return t
}

func (l *Loader) run(ctx context.Context, t *Ticket, combo string, fetch schema.OptionFetcher, deps schema.Values) {
	defer close(t.done)

	opts, err := safeFetch(ctx, fetch, deps)

	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slot(t.key)
	if s.inflight[combo] == t {
		delete(s.inflight, combo)
	}
	if err != nil {
		t.err = err
		if s.want == t.id {
			s.want = 0
			// the list on screen belongs to other dependency values
			if s.combo != combo && (s.loaded || s.combo != "") {
				s.options, s.loaded, s.combo = nil, false, ""
				l.changed(t.key)
			}
		}
		l.logger.Printf("options %s/%s: fetch failed: %v", l.scope, t.key, err)
		return
	}
	s.memo[combo] = opts
	if l.cache != nil {
		l.cache.Set(l.cacheKey(t.key, combo), opts)
	}
	if s.want != t.id {
		return
	}
	s.want = 0
	s.apply(combo, opts)
	t.applied = true
	l.changed(t.key)
}

func safeFetch(ctx context.Context, fetch schema.OptionFetcher, deps schema.Values) (opts OptionList, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fetch panicked: %v", p)
		}
	}()
	return fetch(ctx, deps)
}

// Options returns the latest applied option list of key.
func (l *Loader) Options(key string) (OptionList, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok || !s.loaded {
		return nil, false
	}
	return append(OptionList(nil), s.options...), true
}

// Pending reports whether a fetch the latest trigger waits for is in flight.
func (l *Loader) Pending(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	return ok && s.want != 0
}

func (l *Loader) slot(key string) *slot {
	s, ok := l.slots[key]
	if !ok {
		s = &slot{memo: map[string]OptionList{}, inflight: map[string]*Ticket{}}
		l.slots[key] = s
	}
	return s
}

func (s *slot) apply(combo string, opts OptionList) {
	s.options = opts
	s.loaded = true
	s.combo = combo
}

// changed must be called with l.mu held; notify runs without blocking on it.
func (l *Loader) changed(key string) {
	if l.notify != nil {
		go l.notify(key)
	}
}

func (l *Loader) cached(key, combo string) (OptionList, bool) {
	if l.cache == nil {
		return nil, false
	}
	return l.cache.Get(l.cacheKey(key, combo))
}

func (l *Loader) cacheKey(key, combo string) string {
	return l.scope + "/" + key + "/" + combo
}

// comboKey is a canonical rendering of dependency values; encoding/json sorts
// map keys.
func comboKey(deps schema.Values) string {
	if len(deps) == 0 {
		return ""
	}
	b, err := json.Marshal(deps)
	if err != nil {
		return fmt.Sprint(deps)
	}
	return string(b)
}

func valueKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
