package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"toolshim-mcp/internal/dispatch"
)

// NewMCPServer publishes every tool of ep on an MCP server. Failures are
// reported as IsError results carrying the failure text.
func NewMCPServer(ep Endpoint, name, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	for desc := range ep.Tools() {
		srv.AddTool(&mcp.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema(),
		}, mcpHandler(ep, desc.Name))
	}
	return srv
}

func mcpHandler(ep Endpoint, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if raw := req.Params.Arguments; len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&args); err != nil {
				return toolResult(dispatch.Failed("", name, dispatch.InvalidArguments, "arguments must be a JSON object")), nil
			}
		}
		return toolResult(ep.Invoke(ctx, dispatch.InvocationRequest{Tool: name, Arguments: args})), nil
	}
}

func toolResult(res dispatch.InvocationResult) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Text()}},
		IsError: !res.OK(),
	}
}

// MCPTransport runs one MCP server session over a go-sdk transport.
type MCPTransport struct {
	name         string
	version      string
	newTransport func() mcp.Transport

	mu      sync.Mutex
	session *mcp.ServerSession
	cancel  context.CancelFunc
}

// NewStdioTransport serves MCP over stdin and stdout.
func NewStdioTransport(name, version string) *MCPTransport {
	return NewMCPTransport(name, version, func() mcp.Transport { return &mcp.StdioTransport{} })
}

// NewMCPTransport serves MCP over the transport returned by newTransport.
func NewMCPTransport(name, version string, newTransport func() mcp.Transport) *MCPTransport {
	return &MCPTransport{name: name, version: version, newTransport: newTransport}
}

func (t *MCPTransport) Name() string { return "mcp" }

func (t *MCPTransport) Serve(ctx context.Context, ep Endpoint) (<-chan error, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		return nil, errors.New("mcp transport already serving")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	session, err := NewMCPServer(ep, t.name, t.version).Connect(runCtx, t.newTransport(), nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "connect mcp session")
	}
	t.session, t.cancel = session, cancel
	log.Info().Str("server", t.name).Msg("MCP transport connected")

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		err := session.Wait()
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			err = nil
		}
		errc <- err
	}()
	return errc, nil
}

// Stop closes the session.
func (t *MCPTransport) Stop(_ context.Context) error {
	t.mu.Lock()
	session, cancel := t.session, t.cancel
	t.mu.Unlock()
	if session == nil {
		return nil
	}
	defer cancel()
	if err := session.Close(); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "close mcp session")
	}
	return nil
}
