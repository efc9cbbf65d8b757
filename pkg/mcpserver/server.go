// Package mcpserver implements a Model Context Protocol server exposing the
// ballast execution core as MCP tools over stdio transport.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ballast-dev/ballast/pkg/digest"
	"github.com/ballast-dev/ballast/pkg/executor"
	"github.com/ballast-dev/ballast/pkg/observability"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "ballast"
	// serverVersion is the MCP server implementation version.
	serverVersion = "1.0.0"

	// toolCount is the expected number of registered tools.
	toolCount = 3
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Executor runs the tool operations. Required.
	Executor *executor.Executor

	// FileOp overrides the per-chunk file operation. Nil uses the built-in
	// inventory digest.
	FileOp executor.Operation

	// LogOp overrides the per-window log operation. Nil uses the built-in
	// log digest.
	LogOp executor.LogOperation

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with ballast tool registrations.
type Server struct {
	inner   *mcpsdk.Server
	exec    *executor.Executor
	fileOp  executor.Operation
	logOp   executor.LogOperation
	mu      sync.RWMutex
	tools   []string
	metrics *observability.REDMetrics
	tracer  trace.Tracer
}

// NewServer creates a new MCP server with all ballast tools registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		opts,
	)

	if deps.FileOp == nil {
		deps.FileOp = digest.Files
	}

	if deps.LogOp == nil {
		deps.LogOp = digest.LogWindow
	}

	srv := &Server{
		inner:   inner,
		exec:    deps.Executor,
		fileOp:  deps.FileOp,
		logOp:   deps.LogOp,
		tools:   make([]string, 0, toolCount),
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	err := s.inner.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// registerTools adds all ballast MCP tools to the server.
func (s *Server) registerTools() {
	s.registerExecuteFilesTool()
	s.registerExecuteLogTool()
	s.registerStatusTool()
}

func (s *Server) registerExecuteFilesTool() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameExecuteFiles,
		Description: executeFilesToolDescription,
	}, withMetrics(s.metrics, ToolNameExecuteFiles, withTracing(s.tracer, ToolNameExecuteFiles, s.handleExecuteFiles)))

	s.trackTool(ToolNameExecuteFiles)
}

func (s *Server) registerExecuteLogTool() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameExecuteLog,
		Description: executeLogToolDescription,
	}, withMetrics(s.metrics, ToolNameExecuteLog, withTracing(s.tracer, ToolNameExecuteLog, s.handleExecuteLog)))

	s.trackTool(ToolNameExecuteLog)
}

func (s *Server) registerStatusTool() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameStatus,
		Description: statusToolDescription,
	}, withMetrics(s.metrics, ToolNameStatus, withTracing(s.tracer, ToolNameStatus, s.handleStatus)))

	s.trackTool(ToolNameStatus)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		// Include trace_id in response when span is sampled.
		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, "mcp."+toolName)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}

		metrics.RecordRequest(ctx, "mcp."+toolName, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	executeFilesToolDescription = "Run a resource-bounded operation over a file set. " +
		"Large inputs are partitioned into priority-ordered chunks " +
		"(core source first, vendored code last) and processed incrementally."

	executeLogToolDescription = "Run a resource-bounded operation over a log file. " +
		"Large logs are split into overlapping line windows tagged with their time range."

	statusToolDescription = "Report the execution core's resource state: " +
		"circuit breakers, active operations, and memory usage."
)
