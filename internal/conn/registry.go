// ABOUTME: In-memory registry of live tool-provider connections keyed by identity.
// ABOUTME: Constructor-injected and owned by the composition root, never a global.

package conn

import (
	"log/slog"
	"sync"
	"time"

	"github.com/2389/mcp-bridge/internal/protocol"
)

// DefaultRequestTimeout bounds a correlated request when no timeout is
// configured.
const DefaultRequestTimeout = 30 * time.Second

// ProviderStatus is a snapshot of one connection for health reporting.
type ProviderStatus struct {
	Identity    string
	Initialized bool
	ToolCount   int
}

// Registry holds the set of live logical connections. All mutation is safe
// under concurrent access from dispatchers and chat requests.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	logger *slog.Logger

	timeout time.Duration
}

// NewRegistry creates a registry whose connections use the given per-request
// timeout. A zero timeout falls back to DefaultRequestTimeout.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:   make(map[string]*Connection),
		logger:  logger,
		timeout: timeout,
	}
}

// Register creates and stores a fresh, not-ready connection for the identity,
// taking ownership of the transport. Last writer wins: a prior entry for the
// same identity is closed and replaced, never merged.
func (r *Registry) Register(identity string, t Transport) *Connection {
	c := newConnection(identity, t, r.timeout, r.logger)

	r.mu.Lock()
	old := r.conns[identity]
	r.conns[identity] = c
	total := len(r.conns)
	r.mu.Unlock()

	if old != nil {
		r.logger.Warn("replacing existing connection", "identity", identity)
		old.Close()
	}

	r.logger.Info("=== PROVIDER CONNECTED ===",
		"identity", identity,
		"total_providers", total,
	)
	return c
}

// Lookup returns the connection for an identity. Absence is not an error;
// callers handle the boolean.
func (r *Registry) Lookup(identity string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[identity]
	return c, ok
}

// Unregister removes and closes the connection for an identity. Idempotent:
// unknown identities are a no-op.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	c, ok := r.conns[identity]
	if ok {
		delete(r.conns, identity)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}

	c.Close()
	r.logger.Info("=== PROVIDER DISCONNECTED ===",
		"identity", identity,
		"total_providers", total,
	)
}

// unregisterConn removes exactly c from the registry. If the identity has
// already been re-registered with a newer connection, the map entry is left
// alone: a replaced connection's teardown must never evict its successor.
// Only c itself is closed either way.
func (r *Registry) unregisterConn(c *Connection) {
	r.mu.Lock()
	current := r.conns[c.Identity]
	if current == c {
		delete(r.conns, c.Identity)
	}
	total := len(r.conns)
	r.mu.Unlock()

	c.Close()

	if current == c {
		r.logger.Info("=== PROVIDER DISCONNECTED ===",
			"identity", c.Identity,
			"total_providers", total,
		)
	}
}

// SetToolCatalog replaces the catalog on an existing connection. Unknown
// identities are a no-op: initialization must go through Register first.
func (r *Registry) SetToolCatalog(identity string, tools []protocol.ToolDescriptor) {
	if c, ok := r.Lookup(identity); ok {
		c.SetCatalog(tools)
	}
}

// MarkReady flags an existing connection as initialized. Unknown identities
// are a no-op.
func (r *Registry) MarkReady(identity string) {
	if c, ok := r.Lookup(identity); ok {
		c.MarkReady()
	}
}

// Status returns the readiness and tool count for an identity.
func (r *Registry) Status(identity string) (ProviderStatus, bool) {
	c, ok := r.Lookup(identity)
	if !ok {
		return ProviderStatus{}, false
	}
	return ProviderStatus{
		Identity:    identity,
		Initialized: c.Ready(),
		ToolCount:   c.ToolCount(),
	}, true
}

// List returns a snapshot of every live connection, for health reporting.
func (r *Registry) List() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(r.conns))
	for identity, c := range r.conns {
		out = append(out, ProviderStatus{
			Identity:    identity,
			Initialized: c.Ready(),
			ToolCount:   c.ToolCount(),
		})
	}
	return out
}
