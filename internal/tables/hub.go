package tables

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mitchellh/hashstructure/v2"
)

type snapshot struct {
	rows    any
	hash    uint64
	version uint64
}

// Hub owns the latest rows of every table and the sessions viewing them.
// A refresh that yields rows identical to the current snapshot is dropped, so
// sessions only see SetSource when something actually changed.
type Hub struct {
	src  Sources
	defs map[Name]definition

	// refreshMu serializes loads per table so snapshots are published in order.
	refreshMu map[Name]*sync.Mutex

	mu       sync.RWMutex
	snaps    map[Name]snapshot
	sessions map[Name]map[*Session]struct{}
}

func NewHub(src Sources) *Hub {
	h := &Hub{
		src:       src,
		defs:      definitions,
		refreshMu: make(map[Name]*sync.Mutex, len(definitions)),
		snaps:     make(map[Name]snapshot),
		sessions:  make(map[Name]map[*Session]struct{}),
	}
	for name := range h.defs {
		h.refreshMu[name] = &sync.Mutex{}
	}
	return h
}

// Refresh reloads a table from its source. It reports whether the rows
// changed; changed rows are pushed to every open session of the table.
func (h *Hub) Refresh(ctx context.Context, name Name) (bool, error) {
	def, ok := h.defs[name]
	if !ok {
		return false, fmt.Errorf("unknown table %q", name)
	}

	lock := h.refreshMu[name]
	lock.Lock()
	defer lock.Unlock()

	rows, err := def.load(ctx, h.src)
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", name, err)
	}
	hash, err := hashstructure.Hash(rows, hashstructure.FormatV2, nil)
	if err != nil {
		return false, fmt.Errorf("hash %s: %w", name, err)
	}

	h.mu.Lock()
	prev, had := h.snaps[name]
	if had && prev.hash == hash {
		h.mu.Unlock()
		return false, nil
	}
	snap := snapshot{rows: rows, hash: hash, version: prev.version + 1}
	h.snaps[name] = snap
	sessions := make([]*Session, 0, len(h.sessions[name]))
	for s := range h.sessions[name] {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	slog.Debug("table refreshed", "table", name, "version", snap.version, "sessions", len(sessions))
	for _, s := range sessions {
		s.apply(snap.rows, snap.version)
	}
	return true, nil
}

// RefreshAll refreshes every table, continuing past failures. The first
// error is returned.
func (h *Hub) RefreshAll(ctx context.Context) error {
	var first error
	for _, name := range All {
		if _, err := h.Refresh(ctx, name); err != nil {
			slog.Warn("refresh table", "table", name, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Version returns the snapshot version of a table; zero if never loaded.
func (h *Hub) Version(name Name) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snaps[name].version
}

// Open starts a session on a table for viewer. The table is loaded first if
// it has no snapshot yet. A pageSize of zero uses the table default. onFrame
// receives every frame the session produces after Open returns.
func (h *Hub) Open(ctx context.Context, name Name, viewer Viewer, pageSize int, onFrame func(Frame)) (*Session, error) {
	def, ok := h.defs[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", name)
	}

	h.mu.RLock()
	_, loaded := h.snaps[name]
	h.mu.RUnlock()
	if !loaded {
		if _, err := h.Refresh(ctx, name); err != nil {
			return nil, err
		}
	}

	s := newSession(h, name, viewer, def.newView(pageSize), nil)

	// Register and seed under the hub lock so no refresh slips in between.
	h.mu.Lock()
	snap := h.snaps[name]
	s.apply(snap.rows, snap.version)
	if h.sessions[name] == nil {
		h.sessions[name] = make(map[*Session]struct{})
	}
	h.sessions[name][s] = struct{}{}
	h.mu.Unlock()

	s.mu.Lock()
	s.onFrame = onFrame
	s.mu.Unlock()
	return s, nil
}

// SetTeams updates the team memberships of every session viewing as userID.
// Sessions whose visible rows change receive a new frame.
func (h *Hub) SetTeams(userID int, teams []int) {
	h.mu.RLock()
	var sessions []*Session
	for _, set := range h.sessions {
		for s := range set {
			sessions = append(sessions, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.setTeams(userID, teams)
	}
}

// Sessions returns the number of open sessions on a table.
func (h *Hub) Sessions(name Name) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[name])
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions[s.table], s)
}
