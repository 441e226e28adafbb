package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/socketkit/tool"
	"github.com/c360/socketkit/wire"
)

const streamWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway is a local tool surface, not a browser-facing API.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// StreamFrame is one inbound chunk pushed to a websocket subscriber.
type StreamFrame struct {
	ConnectionID string `json:"connection_id"`
	Data         string `json:"data"`
	Format       string `json:"format"`
}

// handleStream upgrades to a websocket and forwards every chunk the
// connection receives from the moment of subscription. The optional format
// query parameter selects utf-8, hex, or base64 rendering.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conn, err := g.registry.Get(id)
	if err != nil {
		writeJSON(w, tool.HTTPStatus(err), tool.NewErrorPayload(err))
		return
	}

	format, err := wire.ParseEncoding(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, tool.HTTPStatus(err), tool.NewErrorPayload(err))
		return
	}

	// Subscribe before the upgrade so a chunk arriving during the handshake
	// is not lost.
	chunks, cancel := conn.Subscribe()
	defer cancel()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		g.logger.Warn("Websocket upgrade failed", "connection_id", id, "error", err)
		return
	}
	defer func() { _ = ws.Close() }()

	// Drain client frames so close handshakes are noticed; the stream is
	// otherwise one-way.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	g.logger.Info("Stream subscriber attached", "connection_id", id, "format", format)
	for {
		select {
		case <-clientGone:
			return
		case chunk, ok := <-chunks:
			if !ok {
				// Receive loop ended; tell the client the stream is over.
				deadline := time.Now().Add(streamWriteTimeout)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed"),
					deadline)
				return
			}

			rendered, err := wire.EncodeChunk(chunk, format)
			if err != nil {
				g.logger.Warn("Chunk render failed", "connection_id", id, "error", err)
				continue
			}

			_ = ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := ws.WriteJSON(StreamFrame{
				ConnectionID: id,
				Data:         rendered,
				Format:       string(format),
			}); err != nil {
				g.logger.Debug("Stream write failed, dropping subscriber",
					"connection_id", id, "error", err)
				return
			}
		}
	}
}
