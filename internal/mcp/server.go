package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/a3tai/pdf-field-reconciler/internal/config"
	"github.com/a3tai/pdf-field-reconciler/internal/descriptions"
	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/reconcile"
)

// shutdownTimeout bounds how long in-flight SSE sessions get on shutdown.
const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *reconcile.Service
	mcpServer *server.MCPServer
	log       zerolog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *reconcile.Service, logger zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
		log:       logger.With().Str("component", "mcp").Logger(),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	mergeTool := mcp.NewTool(
		reconcile.ToolMerge,
		mcp.WithDescription(descriptions.GetToolDescription(reconcile.ToolMerge)),
		mcp.WithString("structure",
			mcp.Description("JSON array of candidates from the structure detector"),
		),
		mcp.WithString("geometric",
			mcp.Description("JSON array of candidates from the geometric detector"),
		),
		mcp.WithString("vision",
			mcp.Description("JSON array of candidates from the vision detector"),
		),
		mcp.WithString("acroform",
			mcp.Description("JSON array of AcroForm candidates, resolved ahead of every other source"),
		),
		mcp.WithBoolean("trace",
			mcp.Description("Include one line per merge decision"),
		),
	)
	s.mcpServer.AddTool(mergeTool, s.handleMerge)

	detectTool := mcp.NewTool(
		reconcile.ToolDetectStructure,
		mcp.WithDescription(descriptions.GetToolDescription(reconcile.ToolDetectStructure)),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF file, absolute or relative to the default directory"),
		),
	)
	s.mcpServer.AddTool(detectTool, s.handleDetectStructure)

	reconcileTool := mcp.NewTool(
		reconcile.ToolReconcileFile,
		mcp.WithDescription(descriptions.GetToolDescription(reconcile.ToolReconcileFile)),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF file, absolute or relative to the default directory"),
		),
		mcp.WithString("geometric_path",
			mcp.Description("JSON candidate file from the geometric detector"),
		),
		mcp.WithString("vision_path",
			mcp.Description("JSON candidate file from the vision detector"),
		),
		mcp.WithString("acroform_path",
			mcp.Description("JSON candidate file of AcroForm fields"),
		),
		mcp.WithBoolean("skip_text_filter",
			mcp.Description("Return merged fields without the printed text check"),
		),
		mcp.WithBoolean("trace",
			mcp.Description("Include one line per merge decision"),
		),
	)
	s.mcpServer.AddTool(reconcileTool, s.handleReconcileFile)

	infoTool := mcp.NewTool(
		reconcile.ToolServerInfo,
		mcp.WithDescription(descriptions.GetToolDescription(reconcile.ToolServerInfo)),
	)
	s.mcpServer.AddTool(infoTool, s.handleServerInfo)
}

// Handler functions
func (s *Server) handleMerge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var req reconcile.MergeRequest
	lists := []struct {
		name string
		dst  *[]detection.Candidate
	}{
		{"structure", &req.Structure},
		{"geometric", &req.Geometric},
		{"vision", &req.Vision},
		{"acroform", &req.AcroForm},
	}
	for _, l := range lists {
		cands, err := detection.DecodeString(stringArg(args, l.name))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", l.name, err)), nil
		}
		*l.dst = cands
	}
	req.Trace = boolArg(args, "trace")

	result, err := s.service.Merge(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleDetectStructure(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.DetectStructure(ctx, reconcile.DetectStructureRequest{Path: path})
	if err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("structure detection failed")
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleReconcileFile(ctx context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	req := reconcile.ReconcileFileRequest{
		Path:           path,
		GeometricPath:  stringArg(args, "geometric_path"),
		VisionPath:     stringArg(args, "vision_path"),
		AcroFormPath:   stringArg(args, "acroform_path"),
		SkipTextFilter: boolArg(args, "skip_text_filter"),
		Trace:          boolArg(args, "trace"),
	}

	result, err := s.service.ReconcileFile(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("reconcile failed")
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatServerInfo(s.service.ServerInfo())), nil
}

func stringArg(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]any, name string) bool {
	switch v := args[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Formatting methods
func formatServerInfo(result *reconcile.ServerInfoResult) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Default Directory: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("🔲 IoU Threshold: %.2f\n", result.IoUThreshold)
	text += fmt.Sprintf("📝 Text Overlap Threshold: %.2f\n", result.TextOverlap)
	if len(result.LabelPrefixes) > 0 {
		text += fmt.Sprintf("🏷️  Generic Label Prefixes: %v\n", result.LabelPrefixes)
	}

	text += "\n🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += "\n" + result.UsageGuidance

	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	switch {
	case s.config.IsServerMode():
		return s.runServerMode(ctx)
	case s.config.IsStdioMode():
		return s.runStdioMode(ctx)
	default:
		return fmt.Errorf("unsupported mode: %s", s.config.Mode)
	}
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.log.Debug().
		Str("dir", s.config.PDFDirectory).
		Msg("starting field reconciler in stdio mode")

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over SSE until ctx is canceled.
func (s *Server) runServerMode(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("starting field reconciler in server mode")
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve sse: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down sse server: %w", err)
		}
		return ctx.Err()
	}
}
