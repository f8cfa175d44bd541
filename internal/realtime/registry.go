package realtime

import (
	"sort"
	"sync"
)

// Registry maps live, authenticated connections to the user that owns them.
// A user may hold any number of connections.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]int64
	byUser map[int64]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]int64),
		byUser: make(map[int64]map[string]struct{}),
	}
}

// Register records connID as owned by userID. Re-registering a connection
// replaces its owner.
func (r *Registry) Register(connID string, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[connID]; ok {
		r.unindex(connID, prev)
	}
	r.conns[connID] = userID

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		r.byUser[userID] = set
	}
	set[connID] = struct{}{}
}

// Unregister forgets connID. Unknown ids are ignored.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.conns[connID]; ok {
		r.unindex(connID, owner)
		delete(r.conns, connID)
	}
}

// unindex removes connID from userID's set. Callers hold mu.
func (r *Registry) unindex(connID string, userID int64) {
	set := r.byUser[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

// ConnectionsForUser returns the ids of every connection owned by userID,
// sorted, or nil when the user has none.
func (r *Registry) ConnectionsForUser(userID int64) []string {
	r.mu.RLock()
	set := r.byUser[userID]
	if len(set) == 0 {
		r.mu.RUnlock()
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Owner returns the user owning connID.
func (r *Registry) Owner(connID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.conns[connID]
	return id, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
