package background

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/clippy/audit"
	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/kit"
)

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// RegisterMCP exposes the signed-in user's chat log and the pick toggle as
// MCP tools.
func (c *Coordinator) RegisterMCP(srv *mcp.Server) {
	c.registerSendTool(srv)
	c.registerHistoryTool(srv)
	c.registerResetTool(srv)
	c.registerToggleTool(srv)
}

// audited records calls to ep when an audit log is configured.
func (c *Coordinator) audited(action string, ep kit.Endpoint) kit.Endpoint {
	if c.cfg.Audit == nil {
		return ep
	}
	return audit.Middleware(c.cfg.Audit, action)(ep)
}

// --- send ---

type sendRequest struct {
	Text string `json:"text"`
}

func (c *Coordinator) registerSendTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clippy_send",
		Description: "Append a message to the signed-in user's chat log.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Message text"},
		}, []string{"text"}),
	}
	kit.RegisterMCPTool(srv, tool, c.audited(tool.Name, func(ctx context.Context, req any) (any, error) {
		r := req.(*sendRequest)
		sess, err := CurrentSession(c.cfg.Gate, c.cfg.Store)
		if err != nil {
			return nil, err
		}
		return sess.Send(ctx, r.Text)
	}), kit.DecodeArgs[sendRequest])
}

// --- history ---

type emptyRequest struct{}

func (c *Coordinator) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clippy_history",
		Description: "List the signed-in user's chat log, oldest first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	kit.RegisterMCPTool(srv, tool, c.audited(tool.Name, func(ctx context.Context, _ any) (any, error) {
		sess, err := CurrentSession(c.cfg.Gate, c.cfg.Store)
		if err != nil {
			return nil, err
		}
		msgs, err := sess.History(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"messages": msgs, "count": len(msgs)}, nil
	}), kit.DecodeArgs[emptyRequest])
}

// --- reset ---

func (c *Coordinator) registerResetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clippy_reset",
		Description: "Delete every message in the signed-in user's chat log.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	kit.RegisterMCPTool(srv, tool, c.audited(tool.Name, func(ctx context.Context, _ any) (any, error) {
		sess, err := CurrentSession(c.cfg.Gate, c.cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := sess.Reset(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{"reset": true}, nil
	}), kit.DecodeArgs[emptyRequest])
}

// --- toggle ---

func (c *Coordinator) registerToggleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "clippy_toggle_selection",
		Description: "Turn element picking on or off in the page.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	kit.RegisterMCPTool(srv, tool, c.audited(tool.Name, func(ctx context.Context, _ any) (any, error) {
		resp := c.cfg.Router.Request(ctx, bridge.ToggleSelection{}, c.cfg.Timeout)
		if !resp.Success {
			return nil, fmt.Errorf("toggle selection: %s", resp.Error)
		}
		return resp, nil
	}), kit.DecodeArgs[emptyRequest])
}
