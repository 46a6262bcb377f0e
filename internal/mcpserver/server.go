package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nerrad567/webthing-gateway/internal/thing"
)

// Logger is the logging interface used by the MCP server.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Server serves Thing tools over MCP.
type Server struct {
	mcp    *server.MCPServer
	things map[string]*thing.Thing
	order  []*thing.Thing
	logger Logger
}

// New creates an MCP server over things and registers every tool.
func New(name, version string, things []*thing.Thing, logger Logger) *Server {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Server{
		mcp:    server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		things: make(map[string]*thing.Thing, len(things)),
		order:  things,
		logger: logger,
	}
	for _, t := range things {
		s.things[t.ID()] = t
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve handles MCP requests on in/out until ctx is cancelled or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("MCP server started", "things", len(s.order))
	defer s.logger.Info("MCP server stopped")

	err := server.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("serving mcp: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_things",
		mcp.WithDescription("List the Things served by this gateway with their properties, actions and events"),
	), s.handleListThings)

	s.mcp.AddTool(mcp.NewTool("get_property",
		mcp.WithDescription("Read the current value of a Thing property"),
		mcp.WithString("thing_id", mcp.Required(), mcp.Description("Thing id")),
		mcp.WithString("property", mcp.Required(), mcp.Description("Property name")),
	), s.handleGetProperty)

	s.mcp.AddTool(mcp.NewTool("set_property",
		mcp.WithDescription("Write a Thing property. The value is validated against the property schema"),
		mcp.WithString("thing_id", mcp.Required(), mcp.Description("Thing id")),
		mcp.WithString("property", mcp.Required(), mcp.Description("Property name")),
		mcp.WithString("value", mcp.Required(), mcp.Description(`New value as JSON, e.g. 42, true or "auto"`)),
	), s.handleSetProperty)

	s.mcp.AddTool(mcp.NewTool("request_action",
		mcp.WithDescription("Request an action on a Thing and start it"),
		mcp.WithString("thing_id", mcp.Required(), mcp.Description("Thing id")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action name")),
		mcp.WithString("input", mcp.Description("Action input as JSON, validated against the action's input schema")),
	), s.handleRequestAction)

	s.mcp.AddTool(mcp.NewTool("list_actions",
		mcp.WithDescription("List action instances on a Thing"),
		mcp.WithString("thing_id", mcp.Required(), mcp.Description("Thing id")),
		mcp.WithString("action", mcp.Description("Only this action kind")),
	), s.handleListActions)

	s.mcp.AddTool(mcp.NewTool("cancel_action",
		mcp.WithDescription("Cancel an action instance and remove it from the Thing"),
		mcp.WithString("thing_id", mcp.Required(), mcp.Description("Thing id")),
		mcp.WithString("action", mcp.Required(), mcp.Description("Action name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Action instance id")),
	), s.handleCancelAction)

	s.mcp.AddTool(mcp.NewTool("list_events",
		mcp.WithDescription("List events logged by a Thing"),
		mcp.WithString("thing_id", mcp.Required(), mcp.Description("Thing id")),
		mcp.WithString("event", mcp.Description("Only this event kind")),
	), s.handleListEvents)
}

// ─── Handlers ──────────────────────────────────────────────────────

func (s *Server) handleListThings(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	descs := make([]map[string]any, 0, len(s.order))
	for _, t := range s.order {
		descs = append(descs, t.AsThingDescription())
	}
	return jsonResult(descs)
}

func (s *Server) handleGetProperty(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, res := s.lookup(request)
	if res != nil {
		return res, nil
	}
	name, err := request.RequireString("property")
	if err != nil {
		return mcp.NewToolResultError("property is required and must be a string"), nil
	}
	v, err := t.PropertyValue(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{name: v})
}

func (s *Server) handleSetProperty(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, res := s.lookup(request)
	if res != nil {
		return res, nil
	}
	name, err := request.RequireString("property")
	if err != nil {
		return mcp.NewToolResultError("property is required and must be a string"), nil
	}
	raw, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError("value is required and must be a JSON string"), nil
	}
	value, err := decodeJSON(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("value: %v", err)), nil
	}

	if err := t.SetProperty(name, value); err != nil {
		s.logger.Warn("MCP property write rejected", "thing", t.ID(), "property", name, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	current, _ := t.PropertyValue(name) //nolint:errcheck // property exists, SetProperty succeeded
	return jsonResult(map[string]any{name: current})
}

func (s *Server) handleRequestAction(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, res := s.lookup(request)
	if res != nil {
		return res, nil
	}
	name, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required and must be a string"), nil
	}

	var input any
	if raw := request.GetString("input", ""); raw != "" {
		if input, err = decodeJSON(raw); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("input: %v", err)), nil
		}
	}

	a, err := t.PerformAction(name, input)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	desc := a.Description()
	a.Start()
	s.logger.Info("MCP action requested", "thing", t.ID(), "action", name, "id", a.ID())
	return jsonResult(desc)
}

func (s *Server) handleListActions(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, res := s.lookup(request)
	if res != nil {
		return res, nil
	}
	return jsonResult(t.ActionDescriptions(request.GetString("action", "")))
}

func (s *Server) handleCancelAction(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, res := s.lookup(request)
	if res != nil {
		return res, nil
	}
	name, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required and must be a string"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required and must be a string"), nil
	}

	if !t.RemoveAction(name, id) {
		return mcp.NewToolResultError(fmt.Errorf("%w: %s/%s", thing.ErrActionNotFound, name, id).Error()), nil
	}
	s.logger.Info("MCP action cancelled", "thing", t.ID(), "action", name, "id", id)
	return mcp.NewToolResultText(fmt.Sprintf("cancelled %s/%s", name, id)), nil
}

func (s *Server) handleListEvents(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, res := s.lookup(request)
	if res != nil {
		return res, nil
	}
	return jsonResult(t.EventDescriptions(request.GetString("event", "")))
}

// lookup resolves thing_id, or returns the error result to send.
func (s *Server) lookup(request mcp.CallToolRequest) (*thing.Thing, *mcp.CallToolResult) {
	id, err := request.RequireString("thing_id")
	if err != nil {
		return nil, mcp.NewToolResultError("thing_id is required and must be a string")
	}
	t, ok := s.things[id]
	if !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("unknown thing: %s", id))
	}
	return t, nil
}

func decodeJSON(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
