// Package tool implements the named-tool dispatch surface: a finite table
// mapping tool names to handlers, with JSON schema validation of tool
// arguments. Gateways (HTTP, NATS) call Dispatch and serialize the result.
package tool

import "encoding/json"

// Name identifies one tool operation.
type Name string

// The complete tool surface. Names are part of the external contract.
const (
	ToolConnect        Name = "tcp_connect"
	ToolDisconnect     Name = "tcp_disconnect"
	ToolSend           Name = "tcp_send"
	ToolReadBuffer     Name = "tcp_read_buffer"
	ToolClearBuffer    Name = "tcp_clear_buffer"
	ToolBufferInfo     Name = "tcp_buffer_info"
	ToolSetTrigger     Name = "tcp_set_trigger"
	ToolRemoveTrigger  Name = "tcp_remove_trigger"
	ToolListConns      Name = "tcp_list_connections"
	ToolConnectionInfo Name = "tcp_connection_info"
)

// Descriptor describes one tool for discovery endpoints.
type Descriptor struct {
	Name        Name            `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Input schemas, one per tool. Validation runs before the handler, so
// handlers can assume required fields are present and well-typed.
var toolSchemas = map[Name]string{
	ToolConnect: `{
		"type": "object",
		"properties": {
			"host": {"type": "string", "description": "Target host address"},
			"port": {"type": "integer", "minimum": 1, "maximum": 65535, "description": "Target port number"},
			"connection_id": {"type": "string", "description": "Optional custom connection ID"}
		},
		"required": ["host", "port"]
	}`,
	ToolDisconnect: `{
		"type": "object",
		"properties": {
			"connection_id": {"type": "string", "description": "Connection ID to close"}
		},
		"required": ["connection_id"]
	}`,
	ToolSend: `{
		"type": "object",
		"properties": {
			"connection_id": {"type": "string", "description": "Connection ID from tcp_connect"},
			"data": {"type": "string", "description": "Data to send (text, hex pairs, or base64)"},
			"encoding": {"type": "string", "enum": ["utf-8", "hex", "base64"], "description": "Data encoding, default utf-8"},
			"terminator": {"type": "string", "description": "Optional terminator as hex pairs (e.g. '0D0A' for CRLF)"}
		},
		"required": ["connection_id", "data"]
	}`,
	ToolReadBuffer: `{
		"type": "object",
		"properties": {
			"connection_id": {"type": "string", "description": "Connection ID"},
			"index": {"type": "integer", "minimum": 0, "description": "Starting chunk index, 0-based"},
			"count": {"type": "integer", "minimum": 0, "description": "Number of chunks to read"},
			"format": {"type": "string", "enum": ["utf-8", "hex", "base64"], "description": "Output format, default utf-8"}
		},
		"required": ["connection_id"]
	}`,
	ToolClearBuffer: `{
		"type": "object",
		"properties": {
			"connection_id": {"type": "string", "description": "Connection ID"}
		},
		"required": ["connection_id"]
	}`,
	ToolBufferInfo: `{
		"type": "object",
		"properties": {
			"connection_id": {"type": "string", "description": "Connection ID"}
		},
		"required": ["connection_id"]
	}`,
	ToolSetTrigger: `{
		"type": "object",
		"properties": {
			"connection_id": {"type": "string", "description": "Connection ID (may be pre-registered before connect)"},
			"trigger_id": {"type": "string", "description": "Unique trigger ID"},
			"pattern": {"type": "string", "description": "Regex pattern matched against inbound chunks"},
			"response": {"type": "string", "description": "Response data sent verbatim on match"},
			"response_encoding": {"type": "string", "enum": ["utf-8", "hex", "base64"], "description": "Response encoding, default utf-8"},
			"response_terminator": {"type": "string", "description": "Optional terminator as hex pairs"}
		},
		"required": ["connection_id", "trigger_id", "pattern", "response"]
	}`,
	ToolRemoveTrigger: `{
		"type": "object",
		"properties": {
			"connection_id": {"type": "string", "description": "Connection ID"},
			"trigger_id": {"type": "string", "description": "Trigger ID to remove"}
		},
		"required": ["connection_id", "trigger_id"]
	}`,
	ToolListConns: `{
		"type": "object",
		"properties": {}
	}`,
	ToolConnectionInfo: `{
		"type": "object",
		"properties": {
			"connection_id": {"type": "string", "description": "Connection ID"}
		},
		"required": ["connection_id"]
	}`,
}

var toolDescriptions = map[Name]string{
	ToolConnect:        "Open a new TCP connection to a host and port",
	ToolDisconnect:     "Close a TCP connection and discard its state",
	ToolSend:           "Send raw data over a TCP connection",
	ToolReadBuffer:     "Read received data from a connection's buffer",
	ToolClearBuffer:    "Clear a connection's buffer",
	ToolBufferInfo:     "Get information about a connection's buffer",
	ToolSetTrigger:     "Set a trigger to auto-respond when a pattern is received",
	ToolRemoveTrigger:  "Remove a trigger from a connection",
	ToolListConns:      "List all active TCP connections",
	ToolConnectionInfo: "Get detailed information about a connection",
}

// toolOrder fixes the listing order of the tool surface.
var toolOrder = []Name{
	ToolConnect,
	ToolDisconnect,
	ToolSend,
	ToolReadBuffer,
	ToolClearBuffer,
	ToolBufferInfo,
	ToolSetTrigger,
	ToolRemoveTrigger,
	ToolListConns,
	ToolConnectionInfo,
}
