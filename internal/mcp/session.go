// ABOUTME: In-memory table of MCP sessions keyed by the Mcp-Session-Id header.
// ABOUTME: Each session carries the capability set fixed at initialize time.

package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is one initialized MCP client. Its capabilities never change.
type session struct {
	id              string
	protocolVersion string
	capabilities    []string
	capSet          map[string]struct{}
	createdAt       time.Time
}

type sessionTable struct {
	mu   sync.RWMutex
	byID map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byID: make(map[string]*session)}
}

// open registers a new session with a random id.
func (t *sessionTable) open(protocolVersion string, caps []string) *session {
	sess := &session{
		id:              uuid.NewString(),
		protocolVersion: protocolVersion,
		capabilities:    caps,
		capSet:          capSet(caps),
		createdAt:       time.Now(),
	}
	t.mu.Lock()
	t.byID[sess.id] = sess
	t.mu.Unlock()
	return sess
}

func (t *sessionTable) lookup(id string) *session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byID[id]
}

// end removes a session, reporting whether it existed.
func (t *sessionTable) end(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; !ok {
		return false
	}
	delete(t.byID, id)
	return true
}

func (t *sessionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

func capSet(caps []string) map[string]struct{} {
	set := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}
