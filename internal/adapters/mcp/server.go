// Package mcpadapter exposes read-only document tools over the Model Context Protocol.
package mcpadapter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/core/ports"
)

const (
	serverName     = "estate-docs"
	defaultLimit   = 20
	maxToolResults = 200
)

type Server struct {
	reader ports.DocumentReader
	mcp    *server.MCPServer
}

func NewServer(reader ports.DocumentReader, version string) *Server {
	s := &Server{
		reader: reader,
		mcp:    server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

// MCP returns the underlying protocol server for transport wiring.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List uploaded documents newest first with their processing status."),
		mcp.WithString("status",
			mcp.Description("Only return documents in this status."),
			mcp.Enum(string(domain.StatusUploaded), string(domain.StatusProcessing), string(domain.StatusCompleted), string(domain.StatusFailed)),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents to return.")),
		mcp.WithNumber("offset", mcp.Description("Number of documents to skip.")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Fetch one document with extracted text, entities and key-value fields."),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document identifier.")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("documents_summary",
		mcp.WithDescription("Counts documents by status and reports the processing success rate."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.summary)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 || limit > maxToolResults {
		limit = maxToolResults
	}
	filter := domain.ListFilter{
		Status: domain.DocumentStatus(strings.ToLower(strings.TrimSpace(req.GetString("status", "")))),
		Limit:  limit,
		Offset: req.GetInt("offset", 0),
	}
	page, err := s.reader.List(ctx, filter)
	if err != nil {
		return toolError("list_documents", err), nil
	}
	return mcp.NewToolResultJSON(page)
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.reader.GetByID(ctx, id)
	if err != nil {
		return toolError("get_document", err), nil
	}
	return mcp.NewToolResultJSON(doc)
}

func (s *Server) summary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := s.reader.Summary(ctx)
	if err != nil {
		return toolError("documents_summary", err), nil
	}
	return mcp.NewToolResultJSON(summary)
}

// toolError reports client mistakes verbatim and hides everything else.
func toolError(tool string, err error) *mcp.CallToolResult {
	if domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrDocumentNotFound) {
		return mcp.NewToolResultError(err.Error())
	}
	slog.Error("mcp_tool_failed", "tool", tool, "error", err)
	return mcp.NewToolResultError(tool + " failed")
}
