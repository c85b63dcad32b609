package resolve

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/gleaner/finder"
	_ "modernc.org/sqlite"
)

var testMCPImpl = &mcp.Implementation{Name: "gleaner-test", Version: "0.1.0"}

func mcpSession(t *testing.T, e *Engine) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	e.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		var msg string
		if tc, ok := result.Content[0].(*mcp.TextContent); ok {
			msg = tc.Text
		}
		t.Fatalf("CallTool(%s) tool error: %s", name, msg)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

// --- gleaner_resolve ---

func TestMCP_Resolve(t *testing.T) {
	drv := &fakeDriver{bySelector: map[string][]map[string]any{
		"div.card": productRecords(5),
	}}
	fnd := &fakeFinder{cands: []finder.Candidate{{Selector: "div.card", Count: 5}}}
	e := testEngine(t, drv, fnd)
	session := mcpSession(t, e)

	text := mcpCallTool(t, session, "gleaner_resolve", map[string]any{
		"target":      "https://shop.example.com/",
		"instruction": "extract products",
	})

	var res Resolution
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Succeeded {
		t.Fatalf("resolution failed: %+v", res)
	}
	if len(res.Records) != 5 {
		t.Errorf("records = %d, want 5", len(res.Records))
	}
}

// --- gleaner_stats ---

func TestMCP_Stats(t *testing.T) {
	drv := &fakeDriver{bySelector: map[string][]map[string]any{
		"div.card": productRecords(5),
	}}
	fnd := &fakeFinder{cands: []finder.Candidate{{Selector: "div.card", Count: 5}}}
	e := testEngine(t, drv, fnd)
	if _, err := e.Resolve(context.Background(), "https://shop.example.com/", "extract products"); err != nil {
		t.Fatalf("seed resolve: %v", err)
	}

	session := mcpSession(t, e)
	text := mcpCallTool(t, session, "gleaner_stats", map[string]any{})

	var sum struct {
		Executions int `json:"executions"`
		Sites      int `json:"sites"`
	}
	if err := json.Unmarshal([]byte(text), &sum); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sum.Executions != 1 || sum.Sites != 1 {
		t.Errorf("summary = %+v, want 1 execution on 1 site", sum)
	}
}

// --- gleaner_reset ---

func TestMCP_ResetRequiresSite(t *testing.T) {
	e := testEngine(t, &fakeDriver{}, &fakeFinder{})
	session := mcpSession(t, e)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "gleaner_reset",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing site")
	}
}
