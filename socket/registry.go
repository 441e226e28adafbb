package socket

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/socketkit/errors"
)

// RegistryDeps holds runtime dependencies for the connection registry.
type RegistryDeps struct {
	Logger        *slog.Logger
	Metrics       *Metrics // nil disables instrumentation
	DialTimeout   time.Duration
	ReadChunkSize int
}

// Registry owns all live connections and the pending-trigger table. One
// mutex serializes create/lookup/delete so two callers can never race to
// claim the same connection id; per-connection state has its own guard and
// needs no cross-connection locking.
type Registry struct {
	logger        *slog.Logger
	metrics       *Metrics
	dialTimeout   time.Duration
	readChunkSize int

	mu      sync.Mutex
	conns   map[string]*Connection
	pending map[string]map[string]PendingTrigger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(deps RegistryDeps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		logger:        logger.With("component", "registry"),
		metrics:       deps.Metrics,
		dialTimeout:   deps.DialTimeout,
		readChunkSize: deps.ReadChunkSize,
		conns:         make(map[string]*Connection),
		pending:       make(map[string]map[string]PendingTrigger),
	}
}

// Open creates a connection entity under id (generated when empty), attempts
// the TCP handshake, and on success registers it and replays any pending
// triggers pre-registered for that id. A failed handshake leaves nothing in
// the registry.
func (r *Registry) Open(ctx context.Context, id, host string, port int) (*Connection, error) {
	if port < 1 || port > 65535 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: port %d out of range", errors.ErrInvalidArgument, port),
			"Registry", "Open", "port validation")
	}

	r.mu.Lock()
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := r.conns[id]; exists {
		r.mu.Unlock()
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrDuplicateID, id),
			"Registry", "Open", "id reservation")
	}

	conn := NewConnection(id, host, port, ConnectionDeps{
		Logger:        r.logger,
		Metrics:       r.metrics,
		DialTimeout:   r.dialTimeout,
		ReadChunkSize: r.readChunkSize,
	})
	// Reserve the id before dialing so a concurrent Open with the same id
	// fails fast instead of racing the handshake.
	r.conns[id] = conn
	r.mu.Unlock()

	if !conn.Connect(ctx) {
		r.mu.Lock()
		delete(r.conns, id)
		r.mu.Unlock()
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %s:%d", errors.ErrConnectFailed, host, port),
			"Registry", "Open", "tcp handshake")
	}

	r.replayPending(conn)
	return conn, nil
}

// replayPending activates triggers pre-registered for the connection id and
// clears them from the pending table.
func (r *Registry) replayPending(conn *Connection) {
	r.mu.Lock()
	pending := r.pending[conn.ID()]
	delete(r.pending, conn.ID())
	r.mu.Unlock()

	for triggerID, trigger := range pending {
		if err := conn.AddTrigger(triggerID, trigger.Pattern, trigger.Response); err != nil {
			r.logger.Warn("Pending trigger activation failed",
				"connection_id", conn.ID(), "trigger_id", triggerID, "error", err)
			continue
		}
		r.logger.Info("Pending trigger activated",
			"connection_id", conn.ID(), "trigger_id", triggerID)
	}
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return nil, errors.Wrap(
			fmt.Errorf("%w: connection %s", errors.ErrNotFound, id),
			"Registry", "Get", "connection lookup")
	}
	return conn, nil
}

// Remove disconnects the connection and discards the entity, releasing its
// buffer and counters.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	conn, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if !ok {
		return errors.Wrap(
			fmt.Errorf("%w: connection %s", errors.ErrNotFound, id),
			"Registry", "Remove", "connection lookup")
	}

	conn.Disconnect()
	return nil
}

// List returns snapshots of all registered connections, sorted by id for
// stable output.
func (r *Registry) List() []ConnectionInfo {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	infos := make([]ConnectionInfo, 0, len(conns))
	for _, conn := range conns {
		infos = append(infos, conn.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectionID < infos[j].ConnectionID
	})
	return infos
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Close disconnects and discards every registered connection. Used during
// service shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Connection)
	r.pending = make(map[string]map[string]PendingTrigger)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Disconnect()
	}
}
