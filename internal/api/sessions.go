package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"adminkit/internal/access"
	"adminkit/internal/crud"
	"adminkit/internal/display"
	"adminkit/internal/view"
)

// event is one message of a view session stream.
type event struct {
	Type string `json:"type"` // query | display | notice | options
	Data any    `json:"data"`
}

// viewSession is one mounted screen: its table, toolbar and form state.
type viewSession struct {
	ID           string    `json:"id"`
	Screen       string    `json:"screen"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	view *view.Screen
	caps access.Checker

	mu      sync.Mutex
	form    *view.Form
	notices []crud.Notice

	subMu  sync.Mutex
	subs   map[int]chan event
	nextID int

	unsubscribe []func()
}

const maxNotices = 20

func newViewSession(screen string, v *view.Screen, caps access.Checker) *viewSession {
	now := time.Now()
	return &viewSession{
		ID:           uuid.New().String(),
		Screen:       screen,
		CreatedAt:    now,
		LastActiveAt: now,
		view:         v,
		caps:         caps,
		subs:         map[int]chan event{},
	}
}

// watch forwards the table and display state of the session to its stream.
func (vs *viewSession) watch() {
	vs.unsubscribe = append(vs.unsubscribe,
		vs.view.CRUD.Subscribe(func(st crud.State) {
			vs.publish(event{Type: "query", Data: st})
		}),
		vs.view.Display.Subscribe(func(st display.State) {
			vs.publish(event{Type: "display", Data: st})
		}),
	)
}

func (vs *viewSession) notify(n crud.Notice) {
	vs.mu.Lock()
	vs.notices = append(vs.notices, n)
	if len(vs.notices) > maxNotices {
		vs.notices = vs.notices[len(vs.notices)-maxNotices:]
	}
	vs.mu.Unlock()
	vs.publish(event{Type: "notice", Data: n})
}

func (vs *viewSession) recentNotices() []crud.Notice {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return append([]crud.Notice(nil), vs.notices...)
}

func (vs *viewSession) currentForm() *view.Form {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.form
}

func (vs *viewSession) setForm(f *view.Form) {
	vs.mu.Lock()
	vs.form = f
	vs.mu.Unlock()
}

// subscribe opens a buffered stream. A slow reader misses events rather
// than blocking the session.
func (vs *viewSession) subscribe() (<-chan event, func()) {
	ch := make(chan event, 32)
	vs.subMu.Lock()
	id := vs.nextID
	vs.nextID++
	vs.subs[id] = ch
	vs.subMu.Unlock()
	return ch, func() {
		vs.subMu.Lock()
		if _, ok := vs.subs[id]; ok {
			delete(vs.subs, id)
			close(ch)
		}
		vs.subMu.Unlock()
	}
}

func (vs *viewSession) publish(ev event) {
	vs.subMu.Lock()
	defer vs.subMu.Unlock()
	for _, ch := range vs.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close ends every stream and detaches the session from its stores.
func (vs *viewSession) close() {
	for _, fn := range vs.unsubscribe {
		fn()
	}
	vs.subMu.Lock()
	for id, ch := range vs.subs {
		delete(vs.subs, id)
		close(ch)
	}
	vs.subMu.Unlock()
}

func (vs *viewSession) touch() {
	vs.mu.Lock()
	vs.LastActiveAt = time.Now()
	vs.mu.Unlock()
}

func (vs *viewSession) idle(timeout time.Duration) bool {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return time.Since(vs.LastActiveAt) > timeout
}

// viewManager keeps the mounted view sessions and drops idle ones.
type viewManager struct {
	mu          sync.RWMutex
	sessions    map[string]*viewSession
	idleTimeout time.Duration
}

func newViewManager(idle time.Duration) *viewManager {
	return &viewManager{sessions: map[string]*viewSession{}, idleTimeout: idle}
}

func (m *viewManager) setIdle(d time.Duration) {
	m.mu.Lock()
	m.idleTimeout = d
	m.mu.Unlock()
}

func (m *viewManager) add(vs *viewSession) {
	m.mu.Lock()
	m.sessions[vs.ID] = vs
	m.mu.Unlock()
}

// get returns the session and marks it active; idle sessions are removed.
func (m *viewManager) get(id string) *viewSession {
	m.mu.RLock()
	vs, ok := m.sessions[id]
	idle := m.idleTimeout
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if idle > 0 && vs.idle(idle) {
		m.remove(id)
		return nil
	}
	vs.touch()
	return vs
}

func (m *viewManager) remove(id string) bool {
	m.mu.Lock()
	vs, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		vs.close()
	}
	return ok
}

// cleanup removes idle sessions. The server calls it periodically.
func (m *viewManager) cleanup() int {
	m.mu.Lock()
	var expired []*viewSession
	for id, vs := range m.sessions {
		if m.idleTimeout > 0 && vs.idle(m.idleTimeout) {
			delete(m.sessions, id)
			expired = append(expired, vs)
		}
	}
	m.mu.Unlock()
	for _, vs := range expired {
		vs.close()
	}
	return len(expired)
}

func (m *viewManager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
