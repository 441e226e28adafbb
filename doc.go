// Package socketkit provides raw TCP socket access as a small tool service,
// intended for probing and exploring arbitrary text or binary TCP protocols
// without writing a bespoke client per protocol.
//
// # Architecture
//
// SocketKit is four layers, leaves first:
//
//   - wire: stateless codecs between wire bytes and textual representations
//     (UTF-8 with lossy decode, dual-syntax hex, base64) plus terminator
//     handling.
//   - socket: the connection engine. Each Connection owns one outbound TCP
//     session, an ordered chunk buffer, send/receive counters, and a set of
//     pattern triggers evaluated against every inbound chunk by a background
//     receive goroutine. The Registry owns live connections and the
//     pending-trigger table.
//   - tool: the dispatch table mapping tool names (tcp_connect, tcp_send,
//     tcp_read_buffer, ...) to handlers, with JSON schema validation of
//     tool arguments.
//   - gateway: transports exposing the tool surface: an HTTP API with a
//     websocket chunk tail, and an optional NATS request/reply gateway.
//
// Infrastructure packages (errors, metric, health, config, natsclient,
// pkg/retry) carry the ambient concerns: classified error handling,
// Prometheus metrics, health aggregation, configuration, and backoff retry
// for startup paths.
//
// # Usage
//
// Run the service:
//
//	./bin/socketkit --config configs/example.json
//
// Then drive it over HTTP:
//
//	curl -X POST localhost:8080/v1/tools/tcp_connect \
//	    -d '{"host":"towel.blinkenlights.nl","port":23}'
//
// SocketKit stays protocol-agnostic: no HTTP/IRC/SMTP parsing, no TLS,
// no retries against probe targets, no persistence across restarts.
package socketkit
