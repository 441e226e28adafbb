// Package http exposes the tool surface over HTTP: tool dispatch, tool
// discovery, health, and a websocket stream of inbound connection data.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360/socketkit/errors"
	"github.com/c360/socketkit/health"
	"github.com/c360/socketkit/socket"
	"github.com/c360/socketkit/tool"
)

const (
	// maxRequestBody bounds tool argument payloads.
	maxRequestBody = 1 << 20

	defaultShutdownTimeout = 5 * time.Second
)

// GatewayDeps holds runtime dependencies for the HTTP gateway.
type GatewayDeps struct {
	Address    string
	Dispatcher *tool.Dispatcher
	Registry   *socket.Registry
	Health     *health.Monitor
	Logger     *slog.Logger
}

// Gateway serves the tool API over HTTP.
type Gateway struct {
	address    string
	dispatcher *tool.Dispatcher
	registry   *socket.Registry
	health     *health.Monitor
	logger     *slog.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewGateway creates an HTTP gateway. Start must be called to serve.
func NewGateway(deps GatewayDeps) (*Gateway, error) {
	if deps.Dispatcher == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil dispatcher"),
			"Gateway", "NewGateway", "dependency check")
	}
	if deps.Registry == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Gateway", "NewGateway", "dependency check")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	address := deps.Address
	if address == "" {
		address = ":8080"
	}

	return &Gateway{
		address:    address,
		dispatcher: deps.Dispatcher,
		registry:   deps.Registry,
		health:     deps.Health,
		logger:     logger.With("component", "http-gateway"),
	}, nil
}

// Handler returns the gateway's route table. Exposed for tests.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tools", g.handleListTools)
	mux.HandleFunc("POST /v1/tools/{name}", g.handleToolCall)
	mux.HandleFunc("GET /v1/connections/{id}/stream", g.handleStream)
	mux.HandleFunc("GET /healthz", g.handleHealth)
	return mux
}

// Start serves HTTP on the configured address. Blocks until the server
// stops.
func (g *Gateway) Start() error {
	g.mu.Lock()
	if g.server != nil {
		g.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"Gateway", "Start", "http gateway already running")
	}

	g.server = &http.Server{
		Addr:              g.address,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := g.server
	g.mu.Unlock()

	g.logger.Info("HTTP gateway listening", "address", g.address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Gateway", "Start",
			fmt.Sprintf("serve on %s", g.address))
	}
	return nil
}

// Stop gracefully shuts the server down, bounded by the context deadline or
// a default timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	server := g.server
	g.server = nil
	g.mu.Unlock()

	if server == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}

	if err := server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "graceful shutdown")
	}
	return nil
}

func (g *Gateway) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": g.dispatcher.Tools(),
	})
}

func (g *Gateway) handleToolCall(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, tool.ErrorPayload{
			Error:   "invalid_argument",
			Message: "unable to read request body",
		})
		return
	}

	result, err := g.dispatcher.Dispatch(r.Context(), name, body)
	if err != nil {
		writeJSON(w, tool.HTTPStatus(err), tool.NewErrorPayload(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if g.health == nil {
		writeJSON(w, http.StatusOK, health.NewHealthy("socketkit", "OK"))
		return
	}

	status := g.health.AggregateHealth("socketkit")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("Response encode failed", "error", err)
	}
}
