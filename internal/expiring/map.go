// Package expiring implements a TTL-backed map: every entry put into the
// map is evicted after a fixed lifetime unless the map itself is closed
// first. A single background worker drains a deadline queue rather than
// starting one timer per entry.
package expiring

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// entry pairs a key with the absolute instant it should expire, plus the
// version its owning record had at the time it was queued.
type entry[K comparable] struct {
	key      K
	deadline time.Time
	version  uint64
}

// record is the live value stored per key, tagged with the map-wide
// version number of the Put that stored it so stale queue entries can be
// recognized.
type record[V any] struct {
	value   V
	version uint64
}

// Map is a concurrency-safe map whose entries expire after ttl. Because
// every entry put into a given Map shares the same ttl, insertion order
// and deadline order coincide, so a FIFO queue is sufficient to track
// expirations without a heap.
type Map[K comparable, V any] struct {
	ttl      time.Duration
	onExpire func(K, V)

	mu      sync.Mutex
	entries map[K]record[V]
	seq     uint64 // last version handed out by Put

	queueMu   sync.Mutex
	deadlines *queue.Queue

	closed chan struct{}
	once   sync.Once
}

// New creates a Map whose entries live for ttl. onExpire, if non-nil, is
// invoked from the background worker goroutine whenever an entry ages
// out; it must not block.
func New[K comparable, V any](ttl time.Duration, onExpire func(K, V)) *Map[K, V] {
	m := &Map[K, V]{
		ttl:       ttl,
		onExpire:  onExpire,
		entries:   make(map[K]record[V]),
		deadlines: queue.New(),
		closed:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Put inserts or replaces the value stored under key and (re)starts its
// TTL countdown. Every Put takes a new map-wide version number, so a
// deadline entry queued by an earlier Put of the same key (refreshed, or
// removed and put again) is ignored when it is popped.
func (m *Map[K, V]) Put(key K, value V) {
	m.mu.Lock()
	m.seq++
	version := m.seq
	m.entries[key] = record[V]{value: value, version: version}
	m.mu.Unlock()

	m.queueMu.Lock()
	m.deadlines.Add(entry[K]{key: key, deadline: time.Now().Add(m.ttl), version: version})
	m.queueMu.Unlock()
}

// Get returns the value stored under key, if present and not yet expired.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[key]
	return r.value, ok
}

// Contains reports whether key currently has a live entry.
func (m *Map[K, V]) Contains(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Remove deletes key immediately, without waiting for its TTL. A stale
// queue entry for key (if the worker later pops one) is silently
// ignored: at pop time the key is either gone or holds a value from a
// later Put with a different version.
func (m *Map[K, V]) Remove(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Len reports the number of live entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the background worker. Entries still in the map stay there
// and no longer expire; onExpire is not invoked for them.
func (m *Map[K, V]) Close() {
	m.once.Do(func() {
		close(m.closed)
	})
}

// run is the single background worker: it sleeps until the earliest
// queued deadline, then pops and re-validates entries against the live
// map (an entry whose key was Put again or Removed since being queued
// is stale and is skipped rather than expired). When the queue is empty
// it sleeps for idleInterval (one second) before looking again, and a Put
// made during that sleep is not noticed until it ends, so an entry put
// into an empty map can expire up to a second later than its ttl.
func (m *Map[K, V]) run() {
	const idleInterval = time.Second
	for {
		wait := idleInterval

		m.queueMu.Lock()
		if m.deadlines.Length() > 0 {
			head := m.deadlines.Peek().(entry[K])
			until := time.Until(head.deadline)
			if until <= 0 {
				m.deadlines.Remove()
				m.queueMu.Unlock()
				m.tryExpire(head)
				continue
			}
			wait = until
		}
		m.queueMu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-m.closed:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tryExpire evicts key from the live map only if the entry present there
// still carries the version this deadline record was queued for; a
// higher version means the key was refreshed by a later Put, making
// this queue entry stale.
func (m *Map[K, V]) tryExpire(e entry[K]) {
	m.mu.Lock()
	r, ok := m.entries[e.key]
	if !ok || r.version != e.version {
		m.mu.Unlock()
		return
	}
	delete(m.entries, e.key)
	m.mu.Unlock()

	if m.onExpire != nil {
		m.onExpire(e.key, r.value)
	}
}
