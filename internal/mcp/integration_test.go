package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/a3tai/pdf-field-reconciler/internal/reconcile"
)

// roundTrip sends one JSON-RPC message through the MCP server and returns
// the encoded response.
func roundTrip(t *testing.T, server *Server, message string) string {
	t.Helper()
	response := server.mcpServer.HandleMessage(context.Background(), json.RawMessage(message))
	data, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("failed to encode response: %v", err)
	}
	return string(data)
}

func TestServerIntegration_ToolsList(t *testing.T) {
	server := newTestServer(t, testConfig(t.TempDir()))

	response := roundTrip(t, server, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	for _, name := range []string{
		reconcile.ToolMerge,
		reconcile.ToolDetectStructure,
		reconcile.ToolReconcileFile,
		reconcile.ToolServerInfo,
	} {
		if !strings.Contains(response, fmt.Sprintf("%q", name)) {
			t.Errorf("tools/list response missing %s: %s", name, response)
		}
	}
}

func TestServerIntegration_CallMerge(t *testing.T) {
	server := newTestServer(t, testConfig(t.TempDir()))

	vision := `[{"page_index":0,"bbox":{"x":0.1,"y":0.5,"width":0.3,"height":0.04},` +
		`"field_type":"text","label":"Email","confidence":0.8,"source":"vision"}]`
	args, err := json.Marshal(map[string]any{"vision": vision})
	if err != nil {
		t.Fatal(err)
	}

	message := fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":%q,"arguments":%s}}`,
		reconcile.ToolMerge, args)
	response := roundTrip(t, server, message)

	if strings.Contains(response, `"isError":true`) {
		t.Fatalf("tools/call returned an error: %s", response)
	}
	if !strings.Contains(response, `\"label\": \"Email\"`) {
		t.Errorf("tools/call response missing merged field: %s", response)
	}
}

func TestServerIntegration_UnknownTool(t *testing.T) {
	server := newTestServer(t, testConfig(t.TempDir()))

	response := roundTrip(t, server,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"pdf_read_file","arguments":{}}}`)

	if !strings.Contains(response, `"error"`) {
		t.Errorf("expected JSON-RPC error for unknown tool: %s", response)
	}
}
