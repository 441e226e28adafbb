// Package socket implements the TCP connection engine: single-use outbound
// connections with an ordered chunk buffer, byte counters, pattern-triggered
// auto-responses, and a background receive loop per connection, plus the
// registry that owns them.
package socket

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/socketkit/wire"
)

const (
	// DefaultReadChunkSize is the maximum size of one socket read. Each read
	// becomes exactly one buffer chunk.
	DefaultReadChunkSize = 4096

	// DefaultDialTimeout bounds the TCP handshake.
	DefaultDialTimeout = 10 * time.Second

	// subscriberBuffer is the per-subscriber channel capacity. Subscribers
	// that fall behind lose chunks rather than stall the receive loop.
	subscriberBuffer = 64
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateCreated State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// BufferInfo is a consistent snapshot of a connection's buffer and counters.
type BufferInfo struct {
	ConnectionID  string `json:"connection_id"`
	Chunks        int    `json:"chunks"`
	TotalBytes    int64  `json:"total_bytes"`
	BytesSent     int64  `json:"bytes_sent"`
	BytesReceived int64  `json:"bytes_received"`
	Connected     bool   `json:"connected"`
}

// ConnectionInfo is the full per-connection snapshot served by
// tcp_connection_info and tcp_list_connections.
type ConnectionInfo struct {
	ConnectionID string        `json:"connection_id"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Connected    bool          `json:"connected"`
	CreatedAt    time.Time     `json:"created_at"`
	Buffer       BufferInfo    `json:"buffer"`
	Triggers     []TriggerInfo `json:"triggers"`
}

// ConnectionDeps holds runtime dependencies for a Connection.
type ConnectionDeps struct {
	Logger        *slog.Logger
	Metrics       *Metrics // nil disables instrumentation
	DialTimeout   time.Duration
	ReadChunkSize int
}

// Connection owns exactly one outbound TCP session: its socket, ordered
// chunk buffer, send/receive counters, and trigger set. A background receive
// goroutine runs for the connected lifetime. Connections are single-use;
// once disconnected they never reconnect, but buffer and counters stay
// readable until the owning Registry discards the entity.
type Connection struct {
	id        string
	host      string
	port      int
	createdAt time.Time

	logger        *slog.Logger
	metrics       *Metrics
	dialTimeout   time.Duration
	readChunkSize int

	state atomic.Int32

	// mu guards buffer, counters, triggers, subscribers, and the socket
	// handle. The receive loop appends chunks and updates bytesReceived in
	// one critical section so snapshots are never torn.
	mu            sync.Mutex
	conn          net.Conn
	buffer        [][]byte
	bytesSent     int64
	bytesReceived int64
	triggers      *triggerSet
	subs          map[uint64]chan []byte
	nextSubID     uint64
	subsClosed    bool
	closing       bool

	// done is closed when the receive loop exits; nil until Connect succeeds.
	done chan struct{}
}

// NewConnection creates a Connection in the Created (disconnected) state.
func NewConnection(id, host string, port int, deps ConnectionDeps) *Connection {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialTimeout := deps.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	chunkSize := deps.ReadChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultReadChunkSize
	}

	return &Connection{
		id:            id,
		host:          host,
		port:          port,
		createdAt:     time.Now(),
		logger:        logger.With("component", "connection", "connection_id", id),
		metrics:       deps.Metrics,
		dialTimeout:   dialTimeout,
		readChunkSize: chunkSize,
		triggers:      newTriggerSet(),
		subs:          make(map[uint64]chan []byte),
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Host returns the target host.
func (c *Connection) Host() string { return c.host }

// Port returns the target port.
func (c *Connection) Port() int { return c.port }

// CreatedAt returns the entity creation time.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Connected reports whether the connection is currently established.
func (c *Connection) Connected() bool {
	return c.State() == StateConnected
}

// Connect attempts the TCP handshake and, on success, starts the background
// receive loop. All failure modes (refused, DNS failure, timeout, invalid
// port, repeated connect on a used entity) reduce to a false return; detail
// is logged but not part of the contract.
func (c *Connection) Connect(ctx context.Context) bool {
	if c.port < 1 || c.port > 65535 {
		c.logger.Warn("Connect rejected, port out of range", "port", c.port)
		c.state.Store(int32(StateDisconnected))
		return false
	}

	// Single-use: only the Created state may begin a handshake.
	if !c.state.CompareAndSwap(int32(StateCreated), int32(StateConnecting)) {
		c.logger.Warn("Connect rejected, connection already used",
			"state", c.State().String())
		return false
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		if c.metrics != nil {
			c.metrics.connectFailures.Inc()
		}
		c.logger.Warn("Connect failed", "address", addr, "error", err)
		return false
	}

	// A Disconnect may have landed while the dial was in flight. The state
	// transition and the handle installation happen in one critical section,
	// and the Connecting to Connected step is a CAS so a Disconnected state is
	// never reverted. On a lost race the fresh socket is closed and the entity
	// stays terminal.
	c.mu.Lock()
	if c.closing || !c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		c.mu.Unlock()
		c.state.Store(int32(StateDisconnected))
		_ = conn.Close()
		c.logger.Warn("Connect abandoned, disconnected during handshake", "address", addr)
		return false
	}
	done := make(chan struct{})
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.connectionsOpened.Inc()
		c.metrics.connectionsActive.Inc()
	}
	c.logger.Info("Connection established", "address", addr)

	go c.receiveLoop(conn, done)
	return true
}

// Disconnect stops the receive loop and tears down the socket. It is
// idempotent and waits for receive-loop termination before returning, so no
// goroutine is left writing to a closed socket. Buffer contents and counters
// are retained for inspection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	prev := State(c.state.Swap(int32(StateDisconnected)))

	if conn != nil {
		// Closing the socket is the wake-from-blocking-read mechanism.
		_ = conn.Close()
	}
	if done != nil {
		<-done
	} else {
		// Never connected; no receive loop to close the subscribers.
		c.closeSubscribers()
	}

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	if prev == StateConnected {
		c.logger.Info("Connection closed")
	}
}

// Send writes data in full to the socket. It returns false if the
// connection is not active or the write fails; a failed write transitions
// the connection to Disconnected. Trigger responses are dispatched through
// this same path.
func (c *Connection) Send(data []byte) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.State() != StateConnected {
		return false
	}

	if _, err := conn.Write(data); err != nil {
		c.logger.Warn("Send failed", "error", err)
		if c.metrics != nil {
			c.metrics.socketErrors.Inc()
		}
		c.state.Store(int32(StateDisconnected))
		// Wake the receive loop so it observes the teardown.
		_ = conn.Close()
		return false
	}

	c.mu.Lock()
	c.bytesSent += int64(len(data))
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.bytesSent.Add(float64(len(data)))
	}
	c.logger.Debug("Sent data", "bytes", len(data))
	return true
}

// receiveLoop continuously drains the socket into the chunk buffer and
// evaluates triggers against each inbound chunk. It is the only writer of
// buffer and bytesReceived. Runs until remote close, I/O error, or a
// controlled Disconnect.
func (c *Connection) receiveLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		if c.metrics != nil {
			c.metrics.connectionsActive.Dec()
		}
		c.closeSubscribers()
	}()

	buf := make([]byte, c.readChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			c.mu.Lock()
			c.buffer = append(c.buffer, chunk)
			c.bytesReceived += int64(n)
			matches := c.triggers.snapshot()
			c.notifySubscribersLocked(chunk)
			c.mu.Unlock()

			if c.metrics != nil {
				c.metrics.chunksReceived.Inc()
				c.metrics.bytesReceived.Add(float64(n))
			}

			// Trigger evaluation and response dispatch happen outside the
			// lock; Send reacquires it for the bytesSent update.
			c.evaluateTriggers(chunk, matches)
		}

		if err != nil {
			c.mu.Lock()
			closing := c.closing
			c.mu.Unlock()

			switch {
			case closing:
				// Controlled disconnect; state already set by Disconnect.
			case err == io.EOF:
				c.logger.Info("Connection closed by remote")
				c.state.Store(int32(StateDisconnected))
			default:
				c.logger.Warn("Read error, closing connection", "error", err)
				if c.metrics != nil {
					c.metrics.socketErrors.Inc()
				}
				c.state.Store(int32(StateDisconnected))
				_ = conn.Close()
			}
			return
		}
	}
}

// evaluateTriggers matches one inbound chunk against a snapshot of the
// trigger set and dispatches matching responses. Matching operates on a
// best-effort text view with invalid UTF-8 bytes dropped; the buffered bytes
// are untouched. A send failure for one trigger does not prevent evaluation
// of the rest.
func (c *Connection) evaluateTriggers(chunk []byte, entries []*triggerEntry) {
	if len(entries) == 0 {
		return
	}

	view := wire.TextViewIgnore(chunk)
	for _, entry := range entries {
		if !entry.re.MatchString(view) {
			continue
		}
		if c.metrics != nil {
			c.metrics.triggerMatches.Inc()
		}
		if c.Send(entry.response) {
			c.logger.Info("Trigger matched", "trigger_id", entry.triggerID)
		} else {
			c.logger.Warn("Trigger response send failed", "trigger_id", entry.triggerID)
		}
	}
}

// ReadBuffer returns a copy of a contiguous sub-range of the chunk buffer.
// A negative index means "from the start"; a negative count means "to the
// end". Out-of-range index yields an empty slice, never an error. Chunk
// contents are immutable once appended, so only the slice headers are
// copied.
func (c *Connection) ReadBuffer(index, count int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := 0
	if index >= 0 {
		start = index
	}
	if start >= len(c.buffer) {
		return [][]byte{}
	}

	end := len(c.buffer)
	if count >= 0 && start+count < end {
		end = start + count
	}

	out := make([][]byte, end-start)
	copy(out, c.buffer[start:end])
	return out
}

// ClearBuffer atomically empties the chunk sequence. Counters, connected
// state, and triggers are unaffected.
func (c *Connection) ClearBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = nil
}

// BufferInfo returns a consistent snapshot taken under the same guard the
// receive loop appends under, so the byte count always matches the chunk
// list.
func (c *Connection) BufferInfo() BufferInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for _, chunk := range c.buffer {
		total += int64(len(chunk))
	}

	return BufferInfo{
		ConnectionID:  c.id,
		Chunks:        len(c.buffer),
		TotalBytes:    total,
		BytesSent:     c.bytesSent,
		BytesReceived: c.bytesReceived,
		Connected:     c.State() == StateConnected,
	}
}

// Info returns the full connection snapshot including trigger metadata.
func (c *Connection) Info() ConnectionInfo {
	info := c.BufferInfo()

	c.mu.Lock()
	triggers := c.triggers.infos()
	c.mu.Unlock()

	return ConnectionInfo{
		ConnectionID: c.id,
		Host:         c.host,
		Port:         c.port,
		Connected:    info.Connected,
		CreatedAt:    c.createdAt,
		Buffer:       info,
		Triggers:     triggers,
	}
}

// AddTrigger registers an auto-response: whenever pattern matches anywhere
// in an inbound chunk's text view, response is sent verbatim. The response
// is fixed at registration time; capture-group placeholders like $1 are sent
// literally, never substituted. Triggers are stored keyed by pattern text,
// so re-registering an existing pattern replaces the prior trigger (last
// write wins) even if the trigger id differs.
func (c *Connection) AddTrigger(triggerID, pattern string, response []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers.add(triggerID, pattern, response)
}

// RemoveTrigger removes the trigger with the given id, reporting whether it
// existed.
func (c *Connection) RemoveTrigger(triggerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers.removeByID(triggerID)
}

// Triggers returns metadata for all registered triggers in registration
// order.
func (c *Connection) Triggers() []TriggerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers.infos()
}

// TriggerCount returns the number of registered triggers.
func (c *Connection) TriggerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers.len()
}

// Subscribe returns a channel receiving every chunk appended after the call,
// and a cancel function releasing the subscription. Subscribers that fall
// behind drop chunks; the receive loop never blocks on them. The channel is
// closed when the subscription is cancelled or the receive loop ends. Once
// the connection has stopped receiving, Subscribe returns an already-closed
// channel so callers observe end-of-stream immediately.
// Received slices must not be modified.
func (c *Connection) Subscribe() (<-chan []byte, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subsClosed {
		ch := make(chan []byte)
		close(ch)
		return ch, func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	ch := make(chan []byte, subscriberBuffer)
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Connection) notifySubscribersLocked(chunk []byte) {
	for _, sub := range c.subs {
		select {
		case sub <- chunk:
		default:
			// Slow subscriber; drop rather than stall the receive loop.
		}
	}
}

func (c *Connection) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subsClosed = true
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub)
	}
}
