// CLAUDE:SUMMARY Registers gleaner_resolve, gleaner_fill_form, and knowledge tools via kit.RegisterMCPTool.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/gleaner/kit"
)

// RegisterMCP registers the engine's tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerResolveTool(srv)
	e.registerFillFormTool(srv)
	e.registerStatsTool(srv)
	e.registerRankingsTool(srv)
	e.registerHistoryTool(srv)
	e.registerResetTool(srv)
	e.registerStrategiesTool(srv)
}

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

// --- resolve ---

type resolveReq struct {
	Target      string `json:"target"`
	Instruction string `json:"instruction"`
}

func (e *Engine) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gleaner_resolve",
		Description: "Extract structured records from a web page, selecting and learning the best algorithm for the site.",
		InputSchema: inputSchema(map[string]any{
			"target":      map[string]any{"type": "string", "description": "Page URL to extract from"},
			"instruction": map[string]any{"type": "string", "description": "What to extract, in plain language"},
		}, []string{"target", "instruction"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*resolveReq)
		return e.Resolve(ctx, r.Target, r.Instruction)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[resolveReq])
}

// --- fill form ---

type fillFormReq struct {
	Target string            `json:"target"`
	Fields map[string]string `json:"fields"`
	Submit string            `json:"submit,omitempty"`
}

func (e *Engine) registerFillFormTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gleaner_fill_form",
		Description: "Fill form fields on a page by CSS selector. Only submits when a submit selector is given.",
		InputSchema: inputSchema(map[string]any{
			"target": map[string]any{"type": "string", "description": "Page URL holding the form"},
			"fields": map[string]any{"type": "object", "description": "CSS selector to value"},
			"submit": map[string]any{"type": "string", "description": "Selector to click after filling, optional"},
		}, []string{"target", "fields"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*fillFormReq)
		fields := make(map[string]string, len(r.Fields)+1)
		for k, v := range r.Fields {
			fields[k] = v
		}
		if r.Submit != "" {
			fields["@submit"] = r.Submit
		}
		return e.FillForm(ctx, r.Target, fields)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[fillFormReq])
}

// --- knowledge ---

type siteTaskReq struct {
	Site string `json:"site,omitempty"`
	Task string `json:"task,omitempty"`
}

func (e *Engine) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gleaner_stats",
		Description: "Summarize the learned knowledge store: executions, sites, overall success rate.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return e.store.Statistics(ctx)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeNone)
}

func (e *Engine) registerRankingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gleaner_rankings",
		Description: "Rank extraction algorithms by learned success rate, optionally scoped to a site and task.",
		InputSchema: inputSchema(map[string]any{
			"site": map[string]any{"type": "string", "description": "Site host, optional"},
			"task": map[string]any{"type": "string", "description": "Task name, optional"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*siteTaskReq)
		return e.store.AlgorithmRankings(ctx, r.Site, r.Task)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[siteTaskReq])
}

type historyReq struct {
	Site  string `json:"site"`
	Limit int    `json:"limit,omitempty"`
}

func (e *Engine) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gleaner_history",
		Description: "List recorded executions for a site, newest first.",
		InputSchema: inputSchema(map[string]any{
			"site":  map[string]any{"type": "string", "description": "Site host"},
			"limit": map[string]any{"type": "integer", "description": "Max entries, default 20"},
		}, []string{"site"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyReq)
		limit := r.Limit
		if limit <= 0 {
			limit = 20
		}
		return e.store.History(ctx, r.Site, limit)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[historyReq])
}

func (e *Engine) registerResetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gleaner_reset",
		Description: "Discard learned statistics for a site (and optionally one task). The audit log is kept.",
		InputSchema: inputSchema(map[string]any{
			"site": map[string]any{"type": "string", "description": "Site host"},
			"task": map[string]any{"type": "string", "description": "Task name, optional"},
		}, []string{"site"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*siteTaskReq)
		if r.Site == "" {
			return nil, fmt.Errorf("site is required")
		}
		if err := e.store.Reset(ctx, r.Site, r.Task); err != nil {
			return nil, err
		}
		return map[string]any{"reset": true, "site": r.Site}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[siteTaskReq])
}

func (e *Engine) registerStrategiesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "gleaner_strategies",
		Description: "List catalog strategy documents matching a site and task.",
		InputSchema: inputSchema(map[string]any{
			"site": map[string]any{"type": "string", "description": "Site host"},
			"task": map[string]any{"type": "string", "description": "Task name, optional"},
		}, []string{"site"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*siteTaskReq)
		return e.catalog.FindMatching(r.Site, r.Task)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[siteTaskReq])
}

// --- decoding ---

func decodeJSON[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func decodeNone(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{Request: nil}, nil
}
