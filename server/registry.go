package server

import (
	"sync"

	"github.com/cjung95/SimpleWebSocket/internal/expiring"
	"github.com/cjung95/SimpleWebSocket/session"
)

// passiveStore is the PASSIVE half of the registry. It has two
// implementations, selected by Config.RemovePassiveClientsAfterExpiration:
// a plain mapping that retains entries until explicitly reclaimed or
// removed, or a TTL-backed expiring.Map that drops (and reports) entries
// once PassiveClientLifetime elapses.
type passiveStore interface {
	put(id string, s *session.Session)
	get(id string) (*session.Session, bool)
	remove(id string)
	close()
}

type plainPassiveStore struct {
	mu      sync.Mutex
	entries map[string]*session.Session
}

func newPlainPassiveStore() *plainPassiveStore {
	return &plainPassiveStore{entries: make(map[string]*session.Session)}
}

func (p *plainPassiveStore) put(id string, s *session.Session) {
	p.mu.Lock()
	p.entries[id] = s
	p.mu.Unlock()
}

func (p *plainPassiveStore) get(id string) (*session.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.entries[id]
	return s, ok
}

func (p *plainPassiveStore) remove(id string) {
	p.mu.Lock()
	delete(p.entries, id)
	p.mu.Unlock()
}

func (p *plainPassiveStore) close() {}

type expiringPassiveStore struct {
	m *expiring.Map[string, *session.Session]
}

func (e *expiringPassiveStore) put(id string, s *session.Session) { e.m.Put(id, s) }

func (e *expiringPassiveStore) get(id string) (*session.Session, bool) { return e.m.Get(id) }

func (e *expiringPassiveStore) remove(id string) { e.m.Remove(id) }

func (e *expiringPassiveStore) close() { e.m.Close() }

// registry tracks every session the server knows about: an ACTIVE half
// for currently connected clients, and an optional PASSIVE half for
// clients that disconnected recently enough to still reclaim their
// identity.
type registry struct {
	active sync.Map // id string -> *session.Session

	passiveEnabled bool
	passive        passiveStore
}

func newRegistry(cfg *Config, onPassiveExpired func(*session.Session)) *registry {
	r := &registry{passiveEnabled: cfg.RememberDisconnectedClients}
	if !r.passiveEnabled {
		return r
	}
	if cfg.RemovePassiveClientsAfterExpiration {
		r.passive = &expiringPassiveStore{m: expiring.New[string, *session.Session](cfg.PassiveClientLifetime, func(_ string, s *session.Session) {
			if onPassiveExpired != nil {
				onPassiveExpired(s)
			}
		})}
	} else {
		r.passive = newPlainPassiveStore()
	}
	return r
}

// PutActive registers s as currently connected under its own ID.
func (r *registry) PutActive(s *session.Session) {
	r.active.Store(s.ID(), s)
}

// RemoveActive drops id from the ACTIVE registry, returning the session
// that was there, if any.
func (r *registry) RemoveActive(id string) (*session.Session, bool) {
	v, ok := r.active.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return v.(*session.Session), true
}

// GetActive looks up a currently connected session by ID.
func (r *registry) GetActive(id string) (*session.Session, bool) {
	v, ok := r.active.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*session.Session), true
}

// ActiveIDs returns the IDs of every currently connected session.
func (r *registry) ActiveIDs() []string {
	var ids []string
	r.active.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

// ActiveCount returns the number of currently connected sessions.
func (r *registry) ActiveCount() int {
	n := 0
	r.active.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RememberPassive moves s into the PASSIVE registry after it
// disconnects, if passive tracking is enabled. It is a no-op otherwise.
func (r *registry) RememberPassive(s *session.Session) {
	if !r.passiveEnabled {
		return
	}
	r.passive.put(s.ID(), s)
}

// ReclaimPassive looks up and removes id from the PASSIVE registry, for
// a reconnecting client that presented a previously issued identity.
func (r *registry) ReclaimPassive(id string) (*session.Session, bool) {
	if !r.passiveEnabled {
		return nil, false
	}
	s, ok := r.passive.get(id)
	if !ok {
		return nil, false
	}
	r.passive.remove(id)
	return s, true
}

// Close tears down the PASSIVE registry's background worker, if any.
func (r *registry) Close() {
	if r.passiveEnabled {
		r.passive.close()
	}
}
