package mcp

import (
	"encoding/json"
	"fmt"
)

// request is a JSON-RPC 2.0 request or notification. Notifications carry
// no id.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func newRequest(id int64, method string, params any) request {
	return request{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
}

func newNotification(method string, params any) request {
	return request{JSONRPC: "2.0", Method: method, Params: params}
}
