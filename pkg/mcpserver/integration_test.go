package mcpserver_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ballast-dev/ballast/pkg/admission"
	"github.com/ballast-dev/ballast/pkg/breaker"
	"github.com/ballast-dev/ballast/pkg/chunker"
	"github.com/ballast-dev/ballast/pkg/delivery"
	"github.com/ballast-dev/ballast/pkg/executor"
	"github.com/ballast-dev/ballast/pkg/mcpserver"
	"github.com/ballast-dev/ballast/pkg/memguard"
)

const testMaxConcurrent = 4

func newTestExecutor(t *testing.T) *executor.Executor {
	t.Helper()

	registry := breaker.NewRegistry(
		breaker.New(breaker.ScopeService, 5, time.Minute, nil),
	)

	return executor.New(executor.Config{}, executor.Deps{
		Breakers: registry,
		Pool:     admission.NewPool("operations", testMaxConcurrent, nil),
		Guard:    memguard.New(0, nil),
		Planner:  chunker.NewPlanner(chunker.Config{}, nil, nil),
		Streamer: delivery.New(delivery.DefaultConfig(), delivery.Deps{}),
	})
}

// startSession connects an in-memory MCP client to srv and returns the
// session. The server goroutine is shut down via test cleanup.
func startSession(t *testing.T, srv *mcpserver.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func writeTestFiles(t *testing.T, names ...string) []string {
	t.Helper()

	dir := t.TempDir()

	paths := make([]string, 0, len(names))

	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o600))

		paths = append(paths, path)
	}

	return paths
}

func TestServer_ListTools_RegistersAllTools(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})
	session := startSession(t, srv)

	ctx := context.Background()

	toolsResult, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
	}

	assert.Contains(t, toolNames, "ballast_execute_files")
	assert.Contains(t, toolNames, "ballast_execute_log")
	assert.Contains(t, toolNames, "ballast_status")
	assert.Len(t, toolNames, 3)

	for _, tool := range toolsResult.Tools {
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}
}

func TestServer_ListToolNames_Sorted(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})

	names := srv.ListToolNames()
	assert.Equal(t, []string{
		"ballast_execute_files",
		"ballast_execute_log",
		"ballast_status",
	}, names)
}

func TestServer_ExecuteFiles_DefaultDigest(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})
	session := startSession(t, srv)

	paths := writeTestFiles(t, "main.go", "util.go")

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: "ballast_execute_files",
		Arguments: map[string]any{
			"paths": paths,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "2 files")
	assert.Contains(t, text.Text, "main.go")
}

func TestServer_ExecuteFiles_CustomOperation(t *testing.T) {
	t.Parallel()

	var calls int

	srv := mcpserver.NewServer(mcpserver.ServerDeps{
		Executor: newTestExecutor(t),
		FileOp: func(_ context.Context, _ []string) (string, error) {
			calls++

			return "custom output", nil
		},
	})
	session := startSession(t, srv)

	paths := writeTestFiles(t, "a.go")

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: "ballast_execute_files",
		Arguments: map[string]any{
			"paths": paths,
		},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, calls)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "custom output")
}

func TestServer_ExecuteFiles_EmptyPaths_IsError(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})
	session := startSession(t, srv)

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: "ballast_execute_files",
		Arguments: map[string]any{
			"paths": []string{},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_ExecuteFiles_UnknownKind_IsError(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})
	session := startSession(t, srv)

	paths := writeTestFiles(t, "a.go")

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: "ballast_execute_files",
		Arguments: map[string]any{
			"paths": paths,
			"kind":  "refactor",
		},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "unknown operation kind")
}

func TestServer_ExecuteLog_DefaultDigest(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})
	session := startSession(t, srv)

	logPath := filepath.Join(t.TempDir(), "app.log")
	content := "2025-03-01 08:00:00 INFO start\n2025-03-01 08:00:01 ERROR boom\n2025-03-01 08:00:02 WARN slow\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o600))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: "ballast_execute_log",
		Arguments: map[string]any{
			"log_path": logPath,
		},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "3 lines (1 error, 1 warning)")
}

func TestServer_ExecuteLog_EmptyPath_IsError(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})
	session := startSession(t, srv)

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: "ballast_execute_log",
		Arguments: map[string]any{
			"log_path": "",
		},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "log_path must not be empty")
}

func TestServer_ExecuteLog_OmittedPath_RejectedBySchema(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})
	session := startSession(t, srv)

	// log_path carries no omitempty, so the generated input schema marks it
	// required and the SDK rejects the call before the handler runs.
	_, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "ballast_execute_log",
		Arguments: map[string]any{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_path")
}

func TestServer_Status_ReportsResourceState(t *testing.T) {
	t.Parallel()

	srv := mcpserver.NewServer(mcpserver.ServerDeps{Executor: newTestExecutor(t)})
	session := startSession(t, srv)

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "ballast_status",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	var status executor.Status

	require.NoError(t, json.Unmarshal([]byte(text.Text), &status))
	assert.Equal(t, testMaxConcurrent, status.MaxConcurrent)
	assert.Zero(t, status.ActiveOperations)
	require.Len(t, status.Breakers, 1)
	assert.Equal(t, "service", status.Breakers[0].Name)
}
