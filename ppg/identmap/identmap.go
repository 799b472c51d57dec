// Package identmap holds the two pi_push_id-keyed dictionaries shared
// between the PI-intake and OTA-in tasks: pi_push_id → HTTP client and
// pi_push_id → origin URL. Both are consulted and mutated from two
// different tasks, so unlike the registries owned solely by OTA-in,
// these need their own mutex.
package identmap

import (
	"sync"

	"github.com/kannel-go/ppg/ppg/intake"
)

// Maps is the pair of pi_push_id-keyed lookup dictionaries. References
// held here are weak by design: the engine registry is authoritative,
// and removes these entries whenever it destroys the corresponding
// push.
type Maps struct {
	mu      sync.RWMutex
	clients map[string]intake.ReplySink
	origins map[string]string
}

// New creates an empty Maps.
func New() *Maps {
	return &Maps{
		clients: make(map[string]intake.ReplySink),
		origins: make(map[string]string),
	}
}

// SetClient associates piPushID with the reply sink used to reach its
// originating PI.
func (m *Maps) SetClient(piPushID string, client intake.ReplySink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[piPushID] = client
}

// Client looks up the reply sink for piPushID.
func (m *Maps) Client(piPushID string) (intake.ReplySink, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[piPushID]
	return c, ok
}

// SetOrigin associates piPushID with its origin URL.
func (m *Maps) SetOrigin(piPushID, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.origins[piPushID] = url
}

// Origin looks up the origin URL for piPushID.
func (m *Maps) Origin(piPushID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.origins[piPushID]
	return u, ok
}

// Remove deletes both entries for piPushID. Called by the engine
// whenever it destroys the corresponding push machine, keeping the weak
// references from outliving their push.
func (m *Maps) Remove(piPushID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, piPushID)
	delete(m.origins, piPushID)
}
