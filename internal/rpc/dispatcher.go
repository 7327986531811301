package rpc

import (
	"context"
	"encoding/json"
	"strings"
)

// Handler serves one JSON-RPC method. A non-nil *Error short-circuits the
// response; result is ignored in that case.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, *Error)

// Dispatcher routes decoded requests to registered Handlers by method name.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher builds an empty Dispatcher; call Register for each method.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a method name to its Handler. Method names starting with
// "rpc." are reserved by JSON-RPC and registering one is a programmer error
// the dispatcher refuses silently — Dispatch always answers "rpc."-prefixed
// methods with MethodNotFound regardless of what is registered.
func (d *Dispatcher) Register(method string, h Handler) {
	if strings.HasPrefix(method, "rpc.") {
		return
	}
	d.handlers[method] = h
}

// Dispatch decodes raw (a single request object or a batch array) and
// returns the raw bytes to write back to the transport. It never panics or
// returns a transport-level error: anything it cannot make sense of becomes
// a JSON-RPC error response with id null, per the dispatcher's contract with
// its callers.
func (d *Dispatcher) Dispatch(ctx context.Context, raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return encode(NewError(nil, CodeParseError, "empty request body"))
	}

	if trimmed[0] == '[' {
		return d.dispatchBatch(ctx, raw)
	}

	req, derr := d.decodeRequest(raw)
	if derr != nil {
		return encode(NewError(nil, derr.Code, derr.Message))
	}
	if req.IsNotification() {
		d.invoke(ctx, req)
		return nil
	}
	return encode(d.handle(ctx, req))
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, raw json.RawMessage) json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return encode(NewError(nil, CodeParseError, "invalid JSON"))
	}
	if len(items) == 0 {
		return encode(NewError(nil, CodeInvalidRequest, "batch must not be empty"))
	}

	responses := make([]Response, 0, len(items))
	for _, item := range items {
		req, derr := d.decodeRequest(item)
		if derr != nil {
			responses = append(responses, NewError(nil, derr.Code, derr.Message))
			continue
		}
		if req.IsNotification() {
			d.invoke(ctx, req)
			continue
		}
		responses = append(responses, d.handle(ctx, req))
	}

	if len(responses) == 0 {
		return nil
	}
	out, err := json.Marshal(responses)
	if err != nil {
		return encode(NewError(nil, CodeInternalError, "failed to encode batch response"))
	}
	return out
}

// decodeRequest distinguishes a genuinely unparseable body (CodeParseError)
// from one that parses as JSON but fails to satisfy the request shape
// (CodeInvalidRequest) — the two are different JSON-RPC error codes and
// must not be collapsed into one.
func (d *Dispatcher) decodeRequest(raw json.RawMessage) (Request, *Error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, &Error{Code: CodeParseError, Message: "invalid JSON"}
	}
	if req.JSONRPC != "2.0" || req.Method == "" || !validID(req.ID) {
		return Request{}, &Error{Code: CodeInvalidRequest, Message: "invalid request object"}
	}
	return req, nil
}

// validID enforces JSON-RPC's id constraint: string, number, or null — never
// a container (object/array) or a boolean.
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	var v interface{}
	if err := json.Unmarshal(id, &v); err != nil {
		return false
	}
	switch v.(type) {
	case string, float64, nil:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) Response {
	id := req.ID
	if len(id) == 0 {
		id = NullID
	}

	if strings.HasPrefix(req.Method, "rpc.") {
		return NewError(id, CodeMethodNotFound, "Method not found: "+req.Method+" (reserved prefix)")
	}

	h, ok := d.handlers[req.Method]
	if !ok {
		return NewError(id, CodeMethodNotFound, "Method not found: "+req.Method)
	}

	result, rpcErr := safeInvoke(ctx, h, req.Params)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
	}
	return NewResult(id, result)
}

// invoke runs a notification's handler and discards its result — per
// JSON-RPC, notifications never produce a response, including on error.
func (d *Dispatcher) invoke(ctx context.Context, req Request) {
	if strings.HasPrefix(req.Method, "rpc.") {
		return
	}
	h, ok := d.handlers[req.Method]
	if !ok {
		return
	}
	_, _ = safeInvoke(ctx, h, req.Params)
}

// safeInvoke converts a handler panic into -32603 so the dispatcher never
// propagates a failure to the transport.
func safeInvoke(ctx context.Context, h Handler, params json.RawMessage) (result interface{}, rpcErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			rpcErr = &Error{Code: CodeInternalError, Message: "internal error"}
		}
	}()
	return h(ctx, params)
}

func encode(resp Response) json.RawMessage {
	out, err := json.Marshal(resp)
	if err != nil {
		return json.RawMessage(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return out
}
