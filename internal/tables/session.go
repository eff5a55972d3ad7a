package tables

import (
	"slices"
	"sync"

	"github.com/chainid/console/internal/collection"
)

// Frame is one derived page of a table, ready to be sent to a client.
type Frame struct {
	Table     Name             `json:"table"`
	Rows      any              `json:"rows"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	PageCount int              `json:"pageCount"`
	State     collection.State `json:"state"`
	SortKeys  []string         `json:"sortKeys"`
	Selected  []string         `json:"selected"`
	Version   uint64           `json:"version"` // snapshot the rows come from
}

// view is a collection.View with its row type erased.
type view interface {
	setSource(rows any, viewer Viewer)
	do(func(ops))
	state() collection.State
	frame() Frame
	subscribe(fn func(collection.State)) func()
}

// ops are the state-changing operations a session forwards to its view.
type ops interface {
	SetSortKey(key string)
	SetFilterText(text string)
	SetPageSize(size int)
	SetPage(index int)
	Restore(st collection.State)
	Select(key string, selected bool)
	SelectPage(selected bool)
	ClearSelection()
}

type typedView[T any] struct {
	v       *collection.View[T]
	visible func(row T, v Viewer) bool
}

func (t *typedView[T]) setSource(rows any, viewer Viewer) {
	all, _ := rows.([]T)
	out := make([]T, 0, len(all))
	for _, row := range all {
		if t.visible == nil || t.visible(row, viewer) {
			out = append(out, row)
		}
	}
	t.v.SetSource(out)
}

func (t *typedView[T]) do(fn func(ops))                           { fn(t.v) }
func (t *typedView[T]) state() collection.State                    { return t.v.State() }
func (t *typedView[T]) subscribe(fn func(collection.State)) func() { return t.v.Subscribe(fn) }

func (t *typedView[T]) frame() Frame {
	p := t.v.Derive()
	rows := p.Rows
	if rows == nil {
		rows = []T{}
	}
	selected := t.v.Selected()
	if selected == nil {
		selected = []string{}
	}
	return Frame{
		Rows:      rows,
		Total:     p.Total,
		Page:      p.Page,
		PageCount: p.PageCount,
		State:     p.State,
		SortKeys:  t.v.SortKeys(),
		Selected:  selected,
	}
}

// Session is one client's live view of a table. Every state change, including
// new rows from the hub, is reported to the session's frame callback with the
// freshly derived page. Sessions are safe for concurrent use.
type Session struct {
	table  Name
	viewer Viewer
	hub    *Hub

	mu      sync.Mutex
	v       view
	rows    any // unfiltered snapshot rows
	version uint64
	dirty   bool
	closed  bool
	onFrame func(Frame)
	unsub   func()
}

func newSession(h *Hub, table Name, viewer Viewer, v view, onFrame func(Frame)) *Session {
	s := &Session{
		table:   table,
		viewer:  viewer,
		hub:     h,
		v:       v,
		onFrame: onFrame,
	}
	s.unsub = v.subscribe(func(collection.State) { s.dirty = true })
	return s
}

func (s *Session) Table() Name { return s.table }

func (s *Session) Viewer() Viewer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer
}

// State returns the current presentation state.
func (s *Session) State() collection.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.state()
}

// Frame derives the current page.
func (s *Session) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

func (s *Session) frameLocked() Frame {
	f := s.v.frame()
	f.Table = s.table
	f.Version = s.version
	return f
}

// update runs fn under the session lock and delivers a frame when the view
// reported a change. The callback runs without the lock held.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	fn()
	if !s.dirty || s.onFrame == nil {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	f := s.frameLocked()
	cb := s.onFrame
	s.mu.Unlock()
	cb(f)
}

func (s *Session) Sort(key string) {
	s.update(func() { s.v.do(func(o ops) { o.SetSortKey(key) }) })
}

func (s *Session) Filter(text string) {
	s.update(func() { s.v.do(func(o ops) { o.SetFilterText(text) }) })
}

func (s *Session) SetPageSize(size int) {
	s.update(func() { s.v.do(func(o ops) { o.SetPageSize(size) }) })
}

func (s *Session) SetPage(index int) {
	s.update(func() { s.v.do(func(o ops) { o.SetPage(index) }) })
}

// Restore applies a saved state, typically the user's table preferences.
func (s *Session) Restore(st collection.State) {
	s.update(func() { s.v.do(func(o ops) { o.Restore(st) }) })
}

func (s *Session) Select(key string, selected bool) {
	s.update(func() { s.v.do(func(o ops) { o.Select(key, selected) }) })
}

func (s *Session) SelectPage(selected bool) {
	s.update(func() { s.v.do(func(o ops) { o.SelectPage(selected) }) })
}

func (s *Session) ClearSelection() {
	s.update(func() { s.v.do(func(o ops) { o.ClearSelection() }) })
}

// apply replaces the session's rows with a hub snapshot.
func (s *Session) apply(rows any, version uint64) {
	s.update(func() {
		if version < s.version {
			return
		}
		s.version = version
		s.rows = rows
		s.v.setSource(rows, s.viewer)
	})
}

// setTeams re-filters the session's rows when its user's team memberships
// change.
func (s *Session) setTeams(userID int, teams []int) {
	s.update(func() {
		if s.viewer.UserID != userID || slices.Equal(s.viewer.Teams, teams) {
			return
		}
		s.viewer.Teams = slices.Clone(teams)
		s.v.setSource(s.rows, s.viewer)
	})
}

// Close detaches the session from the hub. Further calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.unsub()
	s.mu.Unlock()
	s.hub.detach(s)
}
