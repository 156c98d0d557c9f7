package granola

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"weeknotes.app/server/internal/instrumentation"
	"weeknotes.app/server/internal/logging"
)

// toolCallTimeout bounds each remote tool invocation.
const toolCallTimeout = 30 * time.Second

// ToolInfo describes one remote tool, as surfaced by the diagnostic
// tools endpoint.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// Session is an open MCP session against the Granola server. The caller owns
// its lifetime and must Close it on every exit path.
type Session interface {
	// CallTool invokes a named remote tool and returns its text payload.
	// An error payload from the tool surfaces as *RemoteToolError.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)

	// ListTools returns the remote tool catalog. Diagnostic use only.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	Close() error
}

// SessionFactory opens MCP sessions. *Factory satisfies it.
type SessionFactory interface {
	Connect(ctx context.Context, bearerToken string) (Session, error)
}

// Factory opens sessions against the Granola MCP endpoint, trying the
// streamable HTTP transport first and falling back to SSE. No retry beyond
// that single fallback.
type Factory struct {
	mcpURL        string
	clientVersion string
	logger        *slog.Logger
	metrics       *instrumentation.Metrics
}

// NewFactory creates a session factory for the given MCP endpoint.
func NewFactory(mcpURL, clientVersion string, logger *slog.Logger, metrics *instrumentation.Metrics) *Factory {
	return &Factory{
		mcpURL:        mcpURL,
		clientVersion: clientVersion,
		logger:        logger,
		metrics:       metrics,
	}
}

// Connect opens an authenticated session. Any failure to establish the
// streamable HTTP transport (connection or handshake) triggers the SSE
// fallback with the same bearer header; if both fail the combined
// *TransportError propagates.
func (f *Factory) Connect(ctx context.Context, bearerToken string) (Session, error) {
	headers := map[string]string{"Authorization": "Bearer " + bearerToken}

	c, primaryErr := client.NewStreamableHttpClient(f.mcpURL, transport.WithHTTPHeaders(headers))
	if primaryErr == nil {
		primaryErr = f.handshake(ctx, c)
		if primaryErr == nil {
			f.logger.Debug("granola session opened",
				"transport", "streamable-http",
				"token", logging.SanitizeToken(bearerToken))
			return &mcpSession{client: c, logger: f.logger, metrics: f.metrics}, nil
		}
		_ = c.Close()
	}

	f.logger.Debug("streamable transport failed, falling back to sse", logging.Err(primaryErr))

	sse, sseErr := client.NewSSEMCPClient(f.mcpURL, transport.WithHeaders(headers))
	if sseErr == nil {
		sseErr = f.handshake(ctx, sse)
		if sseErr == nil {
			f.logger.Debug("granola session opened",
				"transport", "sse",
				"token", logging.SanitizeToken(bearerToken))
			return &mcpSession{client: sse, logger: f.logger, metrics: f.metrics}, nil
		}
		_ = sse.Close()
	}

	return nil, &TransportError{StreamableErr: primaryErr, SSEErr: sseErr}
}

// handshake starts the transport and runs the MCP initialize exchange.
func (f *Factory) handshake(ctx context.Context, c *client.Client) error {
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: f.clientVersion,
	}
	if _, err := c.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initializing session: %w", err)
	}
	return nil
}

type mcpSession struct {
	client  *client.Client
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	start := time.Now()
	result, err := s.client.CallTool(ctx, req)
	s.metrics.RecordToolInvocation(ctx, name, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("calling tool %s: %w", name, err)
	}

	text := textContent(result)
	if result.IsError {
		return "", &RemoteToolError{Tool: name, Message: text}
	}

	s.logger.Debug("tool invoked",
		logging.Tool(name),
		"duration", time.Since(start).String(),
		"bytes", len(text))
	return text, nil
}

func (s *mcpSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	tools := make([]ToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return tools, nil
}

func (s *mcpSession) Close() error {
	return s.client.Close()
}

// textContent returns the first text part of a tool result, or "".
func textContent(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
