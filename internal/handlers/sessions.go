package handlers

import (
	"sync"

	"github.com/chainid/console/internal/tables"
)

// sessionRegistry tracks the open table sessions of every connection.
type sessionRegistry struct {
	mu     sync.Mutex
	byConn map[string]map[tables.Name]*tables.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{byConn: make(map[string]map[tables.Name]*tables.Session)}
}

// put stores s for its table, closing the session it replaces.
func (r *sessionRegistry) put(connID string, s *tables.Session) {
	r.mu.Lock()
	m := r.byConn[connID]
	if m == nil {
		m = make(map[tables.Name]*tables.Session)
		r.byConn[connID] = m
	}
	old := m[s.Table()]
	m[s.Table()] = s
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func (r *sessionRegistry) get(connID string, table tables.Name) *tables.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byConn[connID][table]
}

// close closes one session. It reports whether one was open.
func (r *sessionRegistry) close(connID string, table tables.Name) bool {
	r.mu.Lock()
	s := r.byConn[connID][table]
	delete(r.byConn[connID], table)
	r.mu.Unlock()

	if s == nil {
		return false
	}
	s.Close()
	return true
}

func (r *sessionRegistry) closeAll(connID string) {
	r.mu.Lock()
	m := r.byConn[connID]
	delete(r.byConn, connID)
	r.mu.Unlock()

	for _, s := range m {
		s.Close()
	}
}

// count returns the number of open sessions of a connection.
func (r *sessionRegistry) count(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn[connID])
}
