package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/socketkit/errors"
	"github.com/c360/socketkit/metric"
	"github.com/c360/socketkit/socket"
	"github.com/c360/socketkit/wire"
)

// Handler executes one tool against already-validated arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// DispatcherDeps holds runtime dependencies for the dispatcher.
type DispatcherDeps struct {
	Registry *socket.Registry
	Logger   *slog.Logger
	Metrics  *metric.Metrics // nil disables instrumentation
}

type toolEntry struct {
	name        Name
	description string
	rawSchema   json.RawMessage
	schema      *gojsonschema.Schema
	handler     Handler
}

// Dispatcher routes named tool calls to handlers. Arguments are validated
// against the tool's JSON schema before the handler runs.
type Dispatcher struct {
	registry *socket.Registry
	logger   *slog.Logger
	metrics  *metric.Metrics
	tools    map[Name]*toolEntry
}

// NewDispatcher builds the dispatch table and compiles every tool schema.
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Registry == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Dispatcher", "NewDispatcher", "dependency check")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		registry: deps.Registry,
		logger:   logger.With("component", "dispatcher"),
		metrics:  deps.Metrics,
		tools:    make(map[Name]*toolEntry, len(toolOrder)),
	}

	handlers := map[Name]Handler{
		ToolConnect:        d.handleConnect,
		ToolDisconnect:     d.handleDisconnect,
		ToolSend:           d.handleSend,
		ToolReadBuffer:     d.handleReadBuffer,
		ToolClearBuffer:    d.handleClearBuffer,
		ToolBufferInfo:     d.handleBufferInfo,
		ToolSetTrigger:     d.handleSetTrigger,
		ToolRemoveTrigger:  d.handleRemoveTrigger,
		ToolListConns:      d.handleListConnections,
		ToolConnectionInfo: d.handleConnectionInfo,
	}

	for _, name := range toolOrder {
		raw := toolSchemas[name]
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			return nil, errors.WrapFatal(err, "Dispatcher", "NewDispatcher",
				fmt.Sprintf("compile schema for %s", name))
		}
		d.tools[name] = &toolEntry{
			name:        name,
			description: toolDescriptions[name],
			rawSchema:   json.RawMessage(raw),
			schema:      schema,
			handler:     handlers[name],
		}
	}
	return d, nil
}

// Tools returns descriptors for the full tool surface in stable order.
func (d *Dispatcher) Tools() []Descriptor {
	out := make([]Descriptor, 0, len(toolOrder))
	for _, name := range toolOrder {
		entry := d.tools[name]
		out = append(out, Descriptor{
			Name:        entry.name,
			Description: entry.description,
			InputSchema: entry.rawSchema,
		})
	}
	return out
}

// Dispatch validates args against the tool's schema and runs its handler.
// Unknown tool names and schema violations come back as invalid errors;
// everything else is the handler's classified error.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (any, error) {
	entry, ok := d.tools[Name(name)]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownTool, name),
			"Dispatcher", "Dispatch", "tool lookup")
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := entry.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err),
			"Dispatcher", "Dispatch", "argument parse")
	}
	if !result.Valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidArgument, validationDetail(result)),
			"Dispatcher", "Dispatch", "argument validation")
	}

	start := time.Now()
	out, err := entry.handler(ctx, args)
	elapsed := time.Since(start)

	if d.metrics != nil {
		d.metrics.ToolRequests.WithLabelValues(name).Inc()
		d.metrics.ToolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		if err != nil {
			d.metrics.ToolErrors.WithLabelValues(name, errors.Classify(err).String()).Inc()
		}
	}

	if err != nil {
		d.logger.Warn("Tool call failed",
			"tool", name, "duration", elapsed, "error", err)
		return nil, err
	}
	d.logger.Debug("Tool call completed", "tool", name, "duration", elapsed)
	return out, nil
}

func validationDetail(result *gojsonschema.Result) string {
	detail := ""
	for i, desc := range result.Errors() {
		if i > 0 {
			detail += "; "
		}
		detail += desc.String()
	}
	return detail
}

type connectArgs struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ConnectionID string `json:"connection_id"`
}

// ConnectResult is the tcp_connect response payload.
type ConnectResult struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connection_id"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Status       string `json:"status"`
}

func (d *Dispatcher) handleConnect(ctx context.Context, args json.RawMessage) (any, error) {
	var in connectArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleConnect", "argument decode")
	}

	conn, err := d.registry.Open(ctx, in.ConnectionID, in.Host, in.Port)
	if err != nil {
		return nil, err
	}

	return ConnectResult{
		Success:      true,
		ConnectionID: conn.ID(),
		Host:         conn.Host(),
		Port:         conn.Port(),
		Status:       "connected",
	}, nil
}

type connectionIDArgs struct {
	ConnectionID string `json:"connection_id"`
}

// DisconnectResult is the tcp_disconnect response payload.
type DisconnectResult struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connection_id"`
	Status       string `json:"status"`
}

func (d *Dispatcher) handleDisconnect(_ context.Context, args json.RawMessage) (any, error) {
	var in connectionIDArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleDisconnect", "argument decode")
	}

	if err := d.registry.Remove(in.ConnectionID); err != nil {
		return nil, err
	}

	return DisconnectResult{
		Success:      true,
		ConnectionID: in.ConnectionID,
		Status:       "disconnected",
	}, nil
}

type sendArgs struct {
	ConnectionID string `json:"connection_id"`
	Data         string `json:"data"`
	Encoding     string `json:"encoding"`
	Terminator   string `json:"terminator"`
}

// SendResult is the tcp_send response payload.
type SendResult struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connection_id"`
	BytesSent    int    `json:"bytes_sent"`
}

func (d *Dispatcher) handleSend(_ context.Context, args json.RawMessage) (any, error) {
	var in sendArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleSend", "argument decode")
	}

	conn, err := d.registry.Get(in.ConnectionID)
	if err != nil {
		return nil, err
	}

	encoding, err := wire.ParseEncoding(in.Encoding)
	if err != nil {
		return nil, err
	}

	payload, err := wire.DecodePayload(in.Data, encoding, in.Terminator)
	if err != nil {
		return nil, err
	}

	if !conn.Send(payload) {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: connection %s", errors.ErrSendFailed, in.ConnectionID),
			"Dispatcher", "handleSend", "socket write")
	}

	return SendResult{
		Success:      true,
		ConnectionID: in.ConnectionID,
		BytesSent:    len(payload),
	}, nil
}

type readBufferArgs struct {
	ConnectionID string `json:"connection_id"`
	Index        *int   `json:"index"`
	Count        *int   `json:"count"`
	Format       string `json:"format"`
}

// ReadBufferResult is the tcp_read_buffer response payload. Data holds one
// entry per buffer chunk, rendered in the requested format.
type ReadBufferResult struct {
	ConnectionID string   `json:"connection_id"`
	Chunks       int      `json:"chunks"`
	Data         []string `json:"data"`
	Format       string   `json:"format"`
}

func (d *Dispatcher) handleReadBuffer(_ context.Context, args json.RawMessage) (any, error) {
	var in readBufferArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleReadBuffer", "argument decode")
	}

	conn, err := d.registry.Get(in.ConnectionID)
	if err != nil {
		return nil, err
	}

	format, err := wire.ParseEncoding(in.Format)
	if err != nil {
		return nil, err
	}

	index, count := -1, -1
	if in.Index != nil {
		index = *in.Index
	}
	if in.Count != nil {
		count = *in.Count
	}

	chunks := conn.ReadBuffer(index, count)
	data := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		rendered, err := wire.EncodeChunk(chunk, format)
		if err != nil {
			return nil, err
		}
		data = append(data, rendered)
	}

	return ReadBufferResult{
		ConnectionID: in.ConnectionID,
		Chunks:       len(chunks),
		Data:         data,
		Format:       string(format),
	}, nil
}

// ClearBufferResult is the tcp_clear_buffer response payload.
type ClearBufferResult struct {
	Success       bool   `json:"success"`
	ConnectionID  string `json:"connection_id"`
	BufferCleared bool   `json:"buffer_cleared"`
}

func (d *Dispatcher) handleClearBuffer(_ context.Context, args json.RawMessage) (any, error) {
	var in connectionIDArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleClearBuffer", "argument decode")
	}

	conn, err := d.registry.Get(in.ConnectionID)
	if err != nil {
		return nil, err
	}

	conn.ClearBuffer()
	return ClearBufferResult{
		Success:       true,
		ConnectionID:  in.ConnectionID,
		BufferCleared: true,
	}, nil
}

func (d *Dispatcher) handleBufferInfo(_ context.Context, args json.RawMessage) (any, error) {
	var in connectionIDArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleBufferInfo", "argument decode")
	}

	conn, err := d.registry.Get(in.ConnectionID)
	if err != nil {
		return nil, err
	}
	return conn.BufferInfo(), nil
}

type setTriggerArgs struct {
	ConnectionID       string `json:"connection_id"`
	TriggerID          string `json:"trigger_id"`
	Pattern            string `json:"pattern"`
	Response           string `json:"response"`
	ResponseEncoding   string `json:"response_encoding"`
	ResponseTerminator string `json:"response_terminator"`
}

// SetTriggerResult is the tcp_set_trigger response payload. Status is
// "active" when the trigger attached to a live connection and "pending" when
// it was stored for a connection id that does not exist yet.
type SetTriggerResult struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connection_id"`
	TriggerID    string `json:"trigger_id"`
	Pattern      string `json:"pattern"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
}

func (d *Dispatcher) handleSetTrigger(_ context.Context, args json.RawMessage) (any, error) {
	var in setTriggerArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleSetTrigger", "argument decode")
	}

	encoding, err := wire.ParseEncoding(in.ResponseEncoding)
	if err != nil {
		return nil, err
	}

	// The response is decoded and terminated at registration time and stored
	// as the exact bytes to send on match.
	response, err := wire.DecodePayload(in.Response, encoding, in.ResponseTerminator)
	if err != nil {
		return nil, err
	}

	conn, err := d.registry.Get(in.ConnectionID)
	if err == nil {
		if err := conn.AddTrigger(in.TriggerID, in.Pattern, response); err != nil {
			return nil, err
		}
		return SetTriggerResult{
			Success:      true,
			ConnectionID: in.ConnectionID,
			TriggerID:    in.TriggerID,
			Pattern:      in.Pattern,
			Status:       "active",
		}, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	// No live connection under this id: store the trigger and replay it when
	// a matching connect succeeds.
	if err := d.registry.AddPending(in.ConnectionID, in.TriggerID, in.Pattern, response); err != nil {
		return nil, err
	}
	return SetTriggerResult{
		Success:      true,
		ConnectionID: in.ConnectionID,
		TriggerID:    in.TriggerID,
		Pattern:      in.Pattern,
		Status:       "pending",
		Message:      "trigger will activate when the connection is established",
	}, nil
}

type removeTriggerArgs struct {
	ConnectionID string `json:"connection_id"`
	TriggerID    string `json:"trigger_id"`
}

// RemoveTriggerResult is the tcp_remove_trigger response payload.
type RemoveTriggerResult struct {
	Success      bool   `json:"success"`
	ConnectionID string `json:"connection_id"`
	TriggerID    string `json:"trigger_id"`
	Status       string `json:"status"`
}

func (d *Dispatcher) handleRemoveTrigger(_ context.Context, args json.RawMessage) (any, error) {
	var in removeTriggerArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleRemoveTrigger", "argument decode")
	}

	// Active triggers take precedence; fall back to the pending table.
	if conn, err := d.registry.Get(in.ConnectionID); err == nil {
		if conn.RemoveTrigger(in.TriggerID) {
			return RemoveTriggerResult{
				Success:      true,
				ConnectionID: in.ConnectionID,
				TriggerID:    in.TriggerID,
				Status:       "removed_active",
			}, nil
		}
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	if d.registry.RemovePending(in.ConnectionID, in.TriggerID) {
		return RemoveTriggerResult{
			Success:      true,
			ConnectionID: in.ConnectionID,
			TriggerID:    in.TriggerID,
			Status:       "removed_pending",
		}, nil
	}

	return nil, errors.Wrap(
		fmt.Errorf("%w: trigger %s on connection %s",
			errors.ErrNotFound, in.TriggerID, in.ConnectionID),
		"Dispatcher", "handleRemoveTrigger", "trigger lookup")
}

// ListConnectionsResult is the tcp_list_connections response payload.
type ListConnectionsResult struct {
	TotalConnections int                     `json:"total_connections"`
	Connections      []socket.ConnectionInfo `json:"connections"`
}

func (d *Dispatcher) handleListConnections(_ context.Context, _ json.RawMessage) (any, error) {
	infos := d.registry.List()
	return ListConnectionsResult{
		TotalConnections: len(infos),
		Connections:      infos,
	}, nil
}

func (d *Dispatcher) handleConnectionInfo(_ context.Context, args json.RawMessage) (any, error) {
	var in connectionIDArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errors.WrapInvalid(err, "Dispatcher", "handleConnectionInfo", "argument decode")
	}

	conn, err := d.registry.Get(in.ConnectionID)
	if err != nil {
		return nil, err
	}
	return conn.Info(), nil
}
