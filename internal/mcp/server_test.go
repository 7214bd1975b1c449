package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/sigilgate/internal/config"
	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/store"
)

func TestNewServer(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	defer server.Close()

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.catalog == nil {
		t.Error("Server.catalog is nil")
	}
	if server.root != tmpDir {
		t.Errorf("Server.root = %q, want %q", server.root, tmpDir)
	}
	if server.collector != nil {
		t.Error("metrics collector created while metrics are disabled")
	}
	if server.transitions != nil {
		t.Error("transition logger created at info level")
	}
}

func TestNewServer_CreatesDataDir(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	defer server.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, constants.DirName)); os.IsNotExist(err) {
		t.Errorf("%s directory was not created", constants.DirName)
	}
}

func TestNewServer_InvalidSettings(t *testing.T) {
	settings := config.Default()
	settings.Verifier.Tolerance = 0

	_, err := NewServer(&Config{Root: t.TempDir(), Settings: settings, Catalog: store.NewInMemoryCatalog()})
	if err == nil {
		t.Fatal("expected error for invalid settings")
	}
}

func TestNewServer_DefaultCatalog(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USERPROFILE", os.Getenv("HOME"))

	server, err := NewServer(&Config{Name: "test", Version: "v0", Root: tmpDir, Settings: testSettings()})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, constants.DirName, constants.CatalogFile)); err != nil {
		t.Errorf("local catalog not created: %v", err)
	}
}

func TestNewServer_MetricsEnabled(t *testing.T) {
	settings := testSettings()
	settings.Metrics.Enabled = true
	settings.Metrics.Addr = ""
	settings.Logging.Level = "debug"

	t.Setenv("HOME", t.TempDir())
	server, err := NewServer(&Config{Root: t.TempDir(), Settings: settings})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if server.collector == nil || server.registry == nil {
		t.Fatal("metrics enabled but no collector")
	}
	if server.transitions == nil {
		t.Fatal("transition logger missing at debug level")
	}

	server.toolLimiters = nil
	activate(t, server, "")

	families, err := server.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "sigilgate_onboarding_sessions_total" {
			found = true
		}
	}
	if !found {
		t.Error("sessions counter not registered")
	}
}

func TestClose(t *testing.T) {
	server, _ := setupTestServer(t)
	activate(t, server, "")

	if err := server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := server.Close(); err != nil {
		t.Errorf("Second Close() error = %v", err)
	}

	if _, _, err := server.handleSigilState(context.Background(), &sdk.CallToolRequest{}, SigilStateInput{}); err == nil {
		t.Error("tool call after Close should fail")
	}
}

func connectClient(t *testing.T, server *Server) *sdk.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	done := make(chan error, 1)
	go func() { done <- server.RunTransport(ctx, serverTransport) }()

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return session
}

func TestRunTransport_ListTools(t *testing.T) {
	server, _ := setupTestServer(t)
	session := connectClient(t, server)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{
		"sigil_activate", "sigil_materialized", "sigil_pointer", "sigil_state", "sigil_graph",
		"stage_complete", "stage_jump", "stage_state", "gate_upload", "gate_select",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("tool %q not registered (have %v)", want, names)
		}
	}
}

func TestRunTransport_CallTool(t *testing.T) {
	server, _ := setupTestServer(t)
	session := connectClient(t, server)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &sdk.CallToolParams{Name: "sigil_activate", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("sigil_activate returned error: %+v", res.Content)
	}
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	var out SigilActivateOutput
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SessionID == "" || out.State.State != "materializing" {
		t.Errorf("output = %+v", out)
	}

	res, err = session.CallTool(ctx, &sdk.CallToolParams{Name: "stage_jump", Arguments: map[string]any{"stage": "bogus"}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("stage_jump to an unknown stage should report a tool error")
	}

	rr, err := session.ReadResource(ctx, &sdk.ReadResourceParams{URI: sessionResourceURI})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(rr.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(rr.Contents))
	}
}

func TestRunTransport_CancelledContext(t *testing.T) {
	server, _ := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	serverTransport, _ := sdk.NewInMemoryTransports()
	done := make(chan error, 1)
	go func() { done <- server.RunTransport(ctx, serverTransport) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunTransport did not return after cancellation")
	}
}
