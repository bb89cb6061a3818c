// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes reconciliation tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/content"
	"github.com/starford/casebook/internal/models"
	"github.com/starford/casebook/internal/orphans"
	"github.com/starford/casebook/internal/pipeline"
	"github.com/starford/casebook/internal/resolver"
)

const formatURI = "casebook://document-format"

// Engine is the reconciliation surface the tools drive.
type Engine interface {
	SyncCalendar(ctx context.Context, tenantID string, r calendar.DateRange) (pipeline.SyncReport, error)
	LinkOrphanedRecords(ctx context.Context, tenantID string) (orphans.Report, error)
	ProcessBatch(ctx context.Context, tenantID string, items []pipeline.Item) (pipeline.BatchReport, error)
	RecordContent(ctx context.Context, tenantID, recordID string) (content.Content, error)
	ReviewQueue(ctx context.Context, tenantID string) ([]models.Record, error)
	ResolveName(ctx context.Context, tenantID, name string) (resolver.Resolution, error)
	Location() *time.Location
}

// Server wraps the MCP server with reconciliation tools for one tenant.
type Server struct {
	mcp    *server.MCPServer
	engine Engine
	tenant string
}

// New creates a new MCP server with all tools registered.
func New(engine Engine, tenantID string) *Server {
	s := &Server{engine: engine, tenant: tenantID}

	s.mcp = server.NewMCPServer(
		"Casebook",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("sync_calendar",
		mcp.WithDescription("Import calendar events as sessions. Events already imported are skipped, "+
			"so repeating a sync is safe."),
		mcp.WithString("from", mcp.Description("First day to import, YYYY-MM-DD (optional)")),
		mcp.WithString("to", mcp.Description("Last day to import, inclusive, YYYY-MM-DD (optional)")),
	), s.syncCalendar)

	s.mcp.AddTool(mcp.NewTool("link_orphans",
		mcp.WithDescription("Retry linking every document that has no session yet."),
	), s.linkOrphans)

	s.mcp.AddTool(mcp.NewTool("resolve_name",
		mcp.WithDescription("Show which client a name would resolve to. Nothing is created."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Client name as written, e.g. \"Chris Smith\"")),
	), s.resolveName)

	s.mcp.AddTool(mcp.NewTool("list_review_queue",
		mcp.WithDescription("List documents that could not be linked automatically, with the reason."),
	), s.listReviewQueue)

	s.mcp.AddTool(mcp.NewTool("ingest_document",
		mcp.WithDescription("Ingest one document and link it to a client and session. "+
			"Read the document format first via the casebook://document-format resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name, e.g. \"John Best 12-5-2024.md\"")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text")),
		mcp.WithString("client_name", mcp.Description("Client name, overrides what the text says")),
		mcp.WithString("session_ref", mcp.Description("Session id or calendar event id")),
	), s.ingestDocument)

	s.mcp.AddTool(mcp.NewTool("read_record",
		mcp.WithDescription("Read the stored text of an ingested document."),
		mcp.WithString("record_id", mcp.Required(), mcp.Description("Record id from a batch or review listing")),
	), s.readRecord)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Document Format",
			mcp.WithResourceDescription("Where client, date and session hints are read from in a document."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

// toolError renders err for the caller. Systemic failures keep their
// message so the model knows to retry later.
func toolError(op string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(op + ": not found")
	case errors.Is(err, apperr.ErrSystemic):
		return mcp.NewToolResultError(op + ": temporarily unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError(op + ": " + err.Error())
	}
}

func (s *Server) syncCalendar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var dr calendar.DateRange
	loc := s.engine.Location()
	if v := req.GetString("from", ""); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("from: %q is not YYYY-MM-DD", v)), nil
		}
		dr.From = t
	}
	if v := req.GetString("to", ""); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("to: %q is not YYYY-MM-DD", v)), nil
		}
		dr.To = t.AddDate(0, 0, 1)
	}
	rep, err := s.engine.SyncCalendar(ctx, s.tenant, dr)
	if err != nil {
		return toolError("sync_calendar", err), nil
	}
	return jsonResult(rep), nil
}

func (s *Server) linkOrphans(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.engine.LinkOrphanedRecords(ctx, s.tenant)
	if err != nil {
		return toolError("link_orphans", err), nil
	}
	return jsonResult(rep), nil
}

func (s *Server) resolveName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.engine.ResolveName(ctx, s.tenant, name)
	if err != nil {
		return toolError("resolve_name", err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listReviewQueue(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := s.engine.ReviewQueue(ctx, s.tenant)
	if err != nil {
		return toolError("list_review_queue", err), nil
	}
	if len(recs) == 0 {
		return mcp.NewToolResultText("review queue is empty"), nil
	}
	return jsonResult(recs), nil
}

func (s *Server) ingestDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.engine.ProcessBatch(ctx, s.tenant, []pipeline.Item{{
		ID:         name,
		Name:       name,
		Text:       []byte(text),
		ClientName: req.GetString("client_name", ""),
		SessionRef: req.GetString("session_ref", ""),
	}})
	if err != nil {
		return toolError("ingest_document", err), nil
	}
	if len(rep.Errors) > 0 {
		return mcp.NewToolResultError("ingest_document: " + rep.Errors[0].Message), nil
	}
	return jsonResult(rep.Results[0]), nil
}

func (s *Server) readRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("record_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.engine.RecordContent(ctx, s.tenant, id)
	if err != nil {
		return toolError("read_record", err), nil
	}
	if !c.Available {
		return mcp.NewToolResultError("read_record: content unavailable: " + c.Reason), nil
	}
	return mcp.NewToolResultText(string(c.Data)), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormat,
		},
	}, nil
}
