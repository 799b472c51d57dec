// Package bearerbox tracks the locally-resolved IP address of this PPG's
// own bearerbox, used when packing SIA contact points. The writer is
// rare (config reload); readers are per-SIA-pack, so a single mutex is
// all the synchronization this needs.
package bearerbox

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// Binding holds the bearerbox's advertised address.
type Binding struct {
	mu   sync.RWMutex
	addr string
	log  zerolog.Logger
}

// New creates a Binding with no address set.
func New(log zerolog.Logger) *Binding {
	return &Binding{log: log.With().Str("component", "bearerbox").Logger()}
}

// Set resolves s and stores the result. "localhost" is resolved to the
// machine's own non-loopback IP; any other value is stored verbatim.
func (b *Binding) Set(s string) {
	addr := s
	if s == "localhost" {
		if resolved, ok := resolveLocal(); ok {
			addr = resolved
		} else {
			b.log.Warn().Msg("could not resolve local non-loopback address, falling back to 127.0.0.1")
			addr = "127.0.0.1"
		}
	}

	b.mu.Lock()
	b.addr = addr
	b.mu.Unlock()

	b.log.Info().Str("bearerbox_addr", addr).Msg("bearerbox address updated")
}

// Get returns the currently bound address.
func (b *Binding) Get() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.addr
}

// Reload is a convenience for re-resolving "localhost" on a config
// reload signal (e.g. SIGHUP) without the caller needing to remember
// the original configured value.
func (b *Binding) Reload(configured string) {
	b.Set(configured)
}

func resolveLocal() (string, bool) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", false
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String(), true
		}
	}
	return "", false
}

// Error describes a bearerbox binding failure (unused today but kept as
// a typed error path for callers that want to distinguish resolution
// failures from a simple "not yet configured" state).
type Error struct {
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bearerbox: resolve %q: %v", e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
