// Package registry tracks live transport handles per principal so that
// administrative revocations can push a best-effort notification to a
// connected device. The registry is shared state: the websocket accept loop
// registers and prunes handles while the revocation coordinator looks them
// up, so every operation must be safe under concurrent access.
//
// Registration is last-wins: a second login from the same principal
// supersedes the entry for push purposes. The registry performs no
// authentication; the announce message arrives over an internal, same-origin
// channel.
package registry

import "sync"

// Kind names the side of the platform a principal belongs to. It matches the
// "name" field of announce and revoke messages on the wire.
type Kind string

const (
	KindUser   Kind = "user"
	KindClient Kind = "client"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindClient
}

// Transport is one live connection to a principal's device.
type Transport interface {
	Send(message []byte) error
	Close() error
}

type key struct {
	kind Kind
	id   string
}

// Registry is a process-wide concurrent map of principal to transport handle.
// It is owned by the composition root and handed to both the websocket accept
// loop and the revocation coordinator.
type Registry struct {
	mu    sync.RWMutex
	conns map[key]Transport
}

func New() *Registry {
	return &Registry{conns: make(map[key]Transport)}
}

// Register records t as the live handle for the principal. A previously
// registered handle is superseded and closed so the older device notices.
func (r *Registry) Register(kind Kind, id string, t Transport) {
	r.mu.Lock()
	prev := r.conns[key{kind, id}]
	r.conns[key{kind, id}] = t
	r.mu.Unlock()

	// Close outside the lock; transport close may block on I/O.
	if prev != nil && prev != t {
		_ = prev.Close()
	}
}

// Lookup returns the live handle for the principal, if any.
func (r *Registry) Lookup(kind Kind, id string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.conns[key{kind, id}]
	return t, ok
}

// Unregister removes the entry only if t is still the registered handle, so a
// superseded socket's close never evicts its successor.
func (r *Registry) Unregister(kind Kind, id string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[key{kind, id}] == t {
		delete(r.conns, key{kind, id})
	}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
