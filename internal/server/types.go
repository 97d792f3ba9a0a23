package server

import (
	"iter"
	"net/http"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"toolshim-mcp/internal/dispatch"
	"toolshim-mcp/internal/registry"
)

// Tool is the discovery form of a registered tool.
type Tool struct {
	Name        string                              `json:"name" yaml:"name"`
	Description string                              `json:"description" yaml:"description"`
	InputSchema *orderedmap.OrderedMap[string, any] `json:"inputSchema" yaml:"inputSchema"`
	Returns     registry.ParamType                  `json:"returns" yaml:"returns"`
	Pure        bool                                `json:"pure,omitempty" yaml:"pure,omitempty"`
}

// ToolsFrom converts descriptors into their discovery form.
func ToolsFrom(seq iter.Seq[registry.ToolDescriptor]) []Tool {
	tools := []Tool{}
	for d := range seq {
		tools = append(tools, Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.OrderedInputSchema(),
			Returns:     d.Returns,
			Pure:        d.Pure,
		})
	}
	return tools
}

// CallRequest is the wire body of /mcp/call and of websocket frames.
type CallRequest struct {
	Name string         `json:"name" yaml:"name"`
	Args map[string]any `json:"arguments"`
}

func (c CallRequest) invocation() dispatch.InvocationRequest {
	return dispatch.InvocationRequest{Tool: c.Name, Arguments: c.Args}
}

// StatusFor maps a result to its HTTP status code.
func StatusFor(res dispatch.InvocationResult) int {
	switch res.Kind() {
	case "":
		return http.StatusOK
	case dispatch.UnknownTool:
		return http.StatusNotFound
	case dispatch.InvalidArguments:
		return http.StatusBadRequest
	case dispatch.ServerNotRunning:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
