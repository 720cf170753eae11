// ABOUTME: JSON-RPC 2.0 wire envelope shared between the bridge and tool providers.
// ABOUTME: Decodes inbound frames into tagged message variants for dispatch.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the JSON-RPC protocol version carried in every envelope.
const Version = "2.0"

// Methods the bridge issues against tool providers.
const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// ErrDecode indicates an inbound frame that could not be parsed as a
// well-formed JSON-RPC message. The dispatcher logs these and keeps the
// connection open; they are never fatal.
var ErrDecode = errors.New("malformed message")

// Request is an outbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request envelope for the given correlation ID and method.
func NewRequest(id, method string, params any) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// RPCError is the error object a provider returns in a failure response.
// It doubles as the ToolProtocolError surfaced to chat callers: the remote
// detail is propagated verbatim for diagnostics.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("tool protocol error %d: %s", e.Code, e.Message)
}

// Kind classifies an inbound message.
type Kind int

const (
	// KindSuccessResponse is a response carrying a result for a pending request.
	KindSuccessResponse Kind = iota
	// KindErrorResponse is a response carrying an error object for a pending request.
	KindErrorResponse
	// KindNotification is an unsolicited message with no correlation ID.
	KindNotification
	// KindRequest is a provider-initiated request. The bridge does not serve
	// these; the dispatcher logs and drops them.
	KindRequest
)

// Inbound is a decoded and classified message from a tool provider.
type Inbound struct {
	Kind   Kind
	ID     string
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *RPCError
}

// envelope is the superset shape used to sniff inbound frames before
// classification. ID is a pointer so "absent" and "null" both read as nil.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *string         `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Decode parses an inbound frame and classifies it as one of the tagged
// variants. A frame that is not valid JSON, does not carry the right
// protocol version, or matches none of the recognized shapes yields ErrDecode.
func Decode(data []byte) (*Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if env.JSONRPC != Version {
		return nil, fmt.Errorf("%w: unsupported jsonrpc version %q", ErrDecode, env.JSONRPC)
	}

	switch {
	case env.ID != nil && env.Error != nil:
		return &Inbound{Kind: KindErrorResponse, ID: *env.ID, Error: env.Error}, nil

	case env.ID != nil && env.Method != "":
		return &Inbound{Kind: KindRequest, ID: *env.ID, Method: env.Method, Params: env.Params}, nil

	case env.ID != nil:
		return &Inbound{Kind: KindSuccessResponse, ID: *env.ID, Result: env.Result}, nil

	case env.Method != "":
		return &Inbound{Kind: KindNotification, Method: env.Method, Params: env.Params}, nil

	default:
		return nil, fmt.Errorf("%w: neither response nor notification", ErrDecode)
	}
}
