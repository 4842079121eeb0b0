package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ruvnet/fine-tune-mcp/internal/interfaces/httpserver/responses"
	"github.com/ruvnet/fine-tune-mcp/utils/platformerrors"
)

var allowedMCPMethods = map[string]bool{
	// Initialization / handshake
	"initialize":                true,
	"notifications/initialized": true,
	"ping":                      true,

	// Tools
	"tools/list": true,
	"tools/call": true,
}

// MCPRoute exposes the fine-tuning MCP server over HTTP.
type MCPRoute struct {
	finetuneMCP *FinetuneMCP
	mcpServer   *mcp.Server
	httpHandler http.Handler
}

// NewMCPRoute builds the MCP server and registers the fine-tuning tools.
func NewMCPRoute(finetuneMCP *FinetuneMCP) *MCPRoute {
	impl := &mcp.Implementation{
		Name:    "fine-tune-mcp",
		Version: "1.0.0",
	}
	server := mcp.NewServer(impl, nil)

	finetuneMCP.RegisterTools(server)

	return &MCPRoute{
		finetuneMCP: finetuneMCP,
		mcpServer:   server,
		httpHandler: mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
			return server
		}, &mcp.StreamableHTTPOptions{Stateless: true}),
	}
}

// RegisterRouter mounts the MCP endpoint on a gin router group.
func (route *MCPRoute) RegisterRouter(router *gin.RouterGroup) {
	router.POST("/mcp",
		MCPMethodGuard(allowedMCPMethods),
		route.serveMCP,
	)
}

// serveMCP delegates to the go-sdk streamable handler.
func (route *MCPRoute) serveMCP(reqCtx *gin.Context) {
	// Force acceptable content types for the streamable handler even if
	// the client omits Accept.
	reqCtx.Request.Header.Set("Accept", "application/json, text/event-stream")
	route.httpHandler.ServeHTTP(reqCtx.Writer, reqCtx.Request)
}

// MCPMethodGuard rejects JSON-RPC methods outside the allow-list before
// the request reaches the MCP server.
func MCPMethodGuard(allowedMethods map[string]bool) gin.HandlerFunc {
	return func(reqCtx *gin.Context) {
		bodyBytes, err := io.ReadAll(reqCtx.Request.Body)
		if err != nil {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeInternal, "failed to read MCP request body", "0f4c2aa1-86d3-4a4e-9dd1-4be2a78f6f40")
			return
		}
		_ = reqCtx.Request.Body.Close()

		if len(bodyBytes) == 0 {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "empty MCP request body", "25e3a4a8-0f1c-4a5b-9d1a-5c0d7fd21f93")
			return
		}

		reqCtx.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var payload struct {
			Method string `json:"method"`
		}

		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid MCP request payload", "c1a0dd3e-5a2b-4a7e-8a2f-12df5a1f9b6c")
			return
		}

		if payload.Method == "" {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "missing method field in MCP request", "9c4d14d9-7c31-4b44-a3a9-b26a36c61f55")
			return
		}

		if !allowedMethods[payload.Method] {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "unsupported MCP method: "+payload.Method, "e77517c3-60f6-41eb-8a5a-3a44c21c5a02")
			return
		}

		reqCtx.Next()
	}
}
