package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ballast-dev/ballast/pkg/chunker"
	"github.com/ballast-dev/ballast/pkg/executor"
)

// Tool names exposed by the server.
const (
	ToolNameExecuteFiles = "ballast_execute_files"
	ToolNameExecuteLog   = "ballast_execute_log"
	ToolNameStatus       = "ballast_status"
)

// Input validation errors.
var (
	ErrNoPaths     = errors.New("paths must not be empty")
	ErrNoLogPath   = errors.New("log_path must not be empty")
	ErrUnknownKind = errors.New("unknown operation kind")
)

// ExecuteFilesInput is the input schema for the ballast_execute_files tool.
type ExecuteFilesInput struct {
	Paths          []string `json:"paths"                     jsonschema:"file paths to process"`
	Kind           string   `json:"kind,omitempty"            jsonschema:"operation kind: analyze (default) or quality"`
	MaxChunks      int      `json:"max_chunks,omitempty"      jsonschema:"cap on the number of chunks, 0 uses the server default"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" jsonschema:"operation timeout in seconds, 0 uses the server default"`
}

// ExecuteLogInput is the input schema for the ballast_execute_log tool.
type ExecuteLogInput struct {
	LogPath        string `json:"log_path"                  jsonschema:"path to the log file to process"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"operation timeout in seconds, 0 uses the server default"`
}

// StatusInput is the input schema for the ballast_status tool.
type StatusInput struct{}

// ExecuteOutput is the structured result of an execute tool call.
type ExecuteOutput struct {
	Content   string `json:"content"`
	Chunks    int    `json:"chunks"`
	Failed    int    `json:"failed"`
	Truncated bool   `json:"truncated"`
}

// ToolOutput wraps structured tool output for the MCP SDK.
type ToolOutput struct {
	Data any `json:"data,omitempty"`
}

func (s *Server) handleExecuteFiles(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ExecuteFilesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if len(input.Paths) == 0 {
		return errorResult(ErrNoPaths)
	}

	kind, err := parseKind(input.Kind)
	if err != nil {
		return errorResult(err)
	}

	result, err := s.exec.Execute(ctx, executor.Request{
		Kind:      kind,
		Paths:     input.Paths,
		Op:        s.fileOp,
		MaxChunks: input.MaxChunks,
		Timeout:   time.Duration(input.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(ExecuteOutput{
		Content:   result.Content,
		Chunks:    result.Chunks,
		Failed:    result.Failed,
		Truncated: result.Truncated,
	})
}

func (s *Server) handleExecuteLog(
	ctx context.Context, _ *mcpsdk.CallToolRequest, input ExecuteLogInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.LogPath == "" {
		return errorResult(ErrNoLogPath)
	}

	result, err := s.exec.Execute(ctx, executor.Request{
		LogPath: input.LogPath,
		LogOp:   s.logOp,
		Timeout: time.Duration(input.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(ExecuteOutput{
		Content: result.Content,
		Chunks:  result.Chunks,
		Failed:  result.Failed,
	})
}

func (s *Server) handleStatus(
	_ context.Context, _ *mcpsdk.CallToolRequest, _ StatusInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return jsonResult(s.exec.Status())
}

// parseKind maps the wire kind string to a planner profile. Empty means
// analyze.
func parseKind(kind string) (chunker.OpKind, error) {
	switch kind {
	case "", string(chunker.KindAnalyze):
		return chunker.KindAnalyze, nil
	case string(chunker.KindQuality):
		return chunker.KindQuality, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// errorResult builds an MCP error response from err.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
	}, ToolOutput{}, nil
}

// jsonResult builds an MCP success response with data serialized as
// indented JSON.
func jsonResult(data any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("marshal result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(payload)},
		},
	}, ToolOutput{Data: data}, nil
}
