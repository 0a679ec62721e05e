// Package jsonrpc implements the minimal JSON-RPC 2.0 envelope the
// pairing controller speaks over the relay: requests, results, and
// errors, plus the fixed pairing-protocol method names of spec §6.
package jsonrpc

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Reserved pairing-protocol method names. These are never subject to
// a settled pairing's method whitelist.
const (
	MethodPairingRespond = "pairing_respond"
	MethodPairingPayload = "pairing_payload"
	MethodPairingUpdate  = "pairing_update"
	MethodPairingDelete  = "pairing_delete"

	// MethodSessionPropose is the single method a fresh pairing
	// whitelists at birth (spec §1, §4.B, §9 open question 4). It is
	// a configuration constant of this package, not a hard-coded
	// literal scattered through the controller.
	MethodSessionPropose = "session_propose"
)

// IsReservedMethod reports whether method is one of the pairing wire
// protocol's own methods, exempt from the settled permission
// whitelist (spec §4.E).
func IsReservedMethod(method string) bool {
	switch method {
	case MethodPairingRespond, MethodPairingPayload, MethodPairingUpdate, MethodPairingDelete:
		return true
	default:
		return false
	}
}

// entropy backs ID generation the way the teacher's connMan seeds a
// *rand.Rand once rather than reading crypto/rand per tick; JSON-RPC
// ids need only be unique per proposer process, not unpredictable.
var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

// NewID returns a fresh, sortable JSON-RPC request id.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Request is an outbound or inbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a Request with a fresh id and marshaled params.
func NewRequest(method string, params any) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("jsonrpc: marshal params for %s: %w", method, err)
	}
	return Request{
		JSONRPC: "2.0",
		ID:      NewID(),
		Method:  method,
		Params:  raw,
	}, nil
}

// UnmarshalParams decodes r.Params into v.
func (r Request) UnmarshalParams(v any) error {
	if len(r.Params) == 0 {
		return fmt.Errorf("jsonrpc: request %s has no params", r.Method)
	}
	return json.Unmarshal(r.Params, v)
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard-ish error codes; the pairing protocol does not mandate
// specific codes, so these mirror the teacher's own preference for
// small stable negative integers over magic numbers scattered inline.
const (
	CodeUnauthorized     = -32001
	CodeUnknownMethod    = -32601
	CodeInvalidUpdate    = -32602
	CodeSettlementFailed = -32002
	CodeNotApproved      = -32003
)

// Response is an outbound or inbound JSON-RPC 2.0 response, carrying
// exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult builds a success Response for the given request id.
func NewResult(id string, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("jsonrpc: marshal result: %w", err)
	}
	return Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewError builds a failure Response for the given request id.
func NewError(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// IsError reports whether this response carries an error.
func (r Response) IsError() bool {
	return r.Error != nil
}

// Payload is the outer envelope carried on a topic: either a Request
// or a Response, distinguished by the presence of "method". Decode
// sniffs which shape arrived before committing to a full decode.
type Payload struct {
	Request  *Request
	Response *Response
	Raw      json.RawMessage
}

type sniff struct {
	Method *string `json:"method"`
}

// Decode classifies raw bytes arriving on a pending or settled topic
// as either a Request or a Response.
func Decode(raw []byte) (Payload, error) {
	var s sniff
	if err := json.Unmarshal(raw, &s); err != nil {
		return Payload{}, fmt.Errorf("jsonrpc: decode envelope: %w", err)
	}
	if s.Method != nil {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return Payload{}, fmt.Errorf("jsonrpc: decode request: %w", err)
		}
		return Payload{Request: &req, Raw: raw}, nil
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Payload{}, fmt.Errorf("jsonrpc: decode response: %w", err)
	}
	return Payload{Response: &resp, Raw: raw}, nil
}

// Encode serializes a Request or Response to bytes for publishing.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
