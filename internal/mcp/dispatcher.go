// Package mcp routes JSON-RPC methods of the Model Context Protocol to the
// query gateway and frames the result/error payloads. Transports share one
// Dispatcher.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dj707chen/postgres-mcp-server/internal/gateway"
)

const queryToolName = "query"

// Dispatcher holds no per-call state; the gateway's shared connection is
// the only thing that outlives a request.
type Dispatcher struct {
	gw      *gateway.Gateway
	version string
	logger  *slog.Logger
}

func NewDispatcher(gw *gateway.Gateway, version string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{gw: gw, version: version, logger: logger}
}

// HandleMessage decodes one JSON-RPC message and dispatches it. It returns
// nil for notifications.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      nil,
			Error: &Error{
				Code:    ParseError,
				Message: "Parse error",
				Data:    err.Error(),
			},
		}
	}

	if req.JSONRPC != "2.0" {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &Error{
				Code:    InvalidRequest,
				Message: "Invalid JSON-RPC version",
			},
		}
	}

	return d.HandleRequest(ctx, &req)
}

// IsNotification reports whether method expects no response.
func IsNotification(method string) bool {
	return method == "initialized" || strings.HasPrefix(method, "notifications/")
}

// HandleRequest wraps Dispatch in a response envelope.
func (d *Dispatcher) HandleRequest(ctx context.Context, req *Request) *Response {
	if IsNotification(req.Method) {
		d.logger.Debug("notification received", "method", req.Method)
		return nil
	}

	result, rpcErr := d.Dispatch(ctx, req.Method, req.Params)
	if rpcErr != nil {
		d.logger.Warn("request failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// Dispatch routes method to its handler and returns the result payload or
// the error payload.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, *Error) {
	var (
		result any
		err    error
	)

	switch method {
	case "initialize":
		result, err = d.handleInitialize(params)
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = d.handleListTools()
	case "tools/call":
		result, err = d.handleCallTool(ctx, params)
	case "resources/list":
		result, err = d.handleListResources(ctx)
	case "resources/read":
		result, err = d.handleReadResource(ctx, params)
	default:
		err = gateway.MethodNotFound(method)
	}

	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

// toRPCError maps gateway error kinds to JSON-RPC codes.
func toRPCError(err error) *Error {
	code := InternalError
	switch gateway.KindOf(err) {
	case gateway.KindInvalidParams:
		code = InvalidParams
	case gateway.KindMethodNotFound:
		code = MethodNotFound
	case gateway.KindPolicy:
		code = PolicyViolation
	case gateway.KindConnection:
		code = ConnectionError
	}
	return &Error{Code: code, Message: err.Error()}
}

func isAbsent(params json.RawMessage) bool {
	p := bytes.TrimSpace(params)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}

func (d *Dispatcher) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	if !isAbsent(params) {
		var initParams InitializeParams
		if err := json.Unmarshal(params, &initParams); err != nil {
			return nil, gateway.InvalidParams("Invalid initialize parameters: %v", err)
		}
		if initParams.ClientInfo.Name != "" {
			d.logger.Info("client connected", "client", initParams.ClientInfo.Name,
				"client_version", initParams.ClientInfo.Version, "protocol", initParams.ProtocolVersion)
		}
	}

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools:     &ToolsCapability{},
			Resources: &ResourcesCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    d.gw.Dialect.ServerName(),
			Version: d.version,
		},
	}, nil
}

func (d *Dispatcher) queryTool() Tool {
	return Tool{
		Name: queryToolName,
		Description: fmt.Sprintf("Execute a SQL query against the %s database. "+
			"Read-only by default unless DANGEROUSLY_ALLOW_WRITE_OPS is enabled.", d.gw.Dialect.Product()),
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"sql": {
					Type:        "string",
					Description: "SQL query to execute",
				},
			},
			Required: []string{"sql"},
		},
	}
}

func (d *Dispatcher) handleListTools() *ListToolsResult {
	return &ListToolsResult{Tools: []Tool{d.queryTool()}}
}

func (d *Dispatcher) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	if isAbsent(params) {
		return nil, gateway.InvalidParams("Missing parameters")
	}
	var callParams CallToolParams
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, gateway.InvalidParams("Invalid parameters: %v", err)
	}

	switch callParams.Name {
	case "":
		return nil, gateway.InvalidParams("Missing tool name")
	case queryToolName:
		return d.executeQuery(ctx, callParams.Arguments)
	default:
		return nil, gateway.InvalidParams("Unknown tool: %s", callParams.Name)
	}
}

func (d *Dispatcher) executeQuery(ctx context.Context, args map[string]any) (*CallToolResult, error) {
	sqlQuery, ok := args["sql"].(string)
	if !ok || sqlQuery == "" {
		return nil, gateway.InvalidParams("Missing or invalid 'sql' parameter")
	}

	results, err := d.gw.Query(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}

	text, err := prettyJSON(results)
	if err != nil {
		return nil, err
	}
	return &CallToolResult{
		Content: []Content{{Type: "text", Text: text}},
	}, nil
}

func (d *Dispatcher) handleListResources(ctx context.Context) (*ListResourcesResult, error) {
	resources, err := d.gw.Catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	return &ListResourcesResult{Resources: resources}, nil
}

func (d *Dispatcher) handleReadResource(ctx context.Context, params json.RawMessage) (*ReadResourceResult, error) {
	if isAbsent(params) {
		return nil, gateway.InvalidParams("Missing parameters")
	}
	var readParams ReadResourceParams
	if err := json.Unmarshal(params, &readParams); err != nil {
		return nil, gateway.InvalidParams("Invalid parameters: %v", err)
	}
	if readParams.URI == "" {
		return nil, gateway.InvalidParams("Missing URI")
	}

	results, err := d.gw.Catalog.Read(ctx, readParams.URI)
	if err != nil {
		return nil, err
	}

	text, err := prettyJSON(results)
	if err != nil {
		return nil, err
	}
	return &ReadResourceResult{
		Contents: []ResourceContent{
			{
				URI:      readParams.URI,
				MimeType: gateway.MimeTypeJSON,
				Text:     text,
			},
		},
	}, nil
}

func prettyJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", gateway.InternalError("Failed to marshal results", err)
	}
	return string(b), nil
}
