// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Tally tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/models"
)

const contractURI = "tally://frontmatter-format"

// Server wraps the MCP server with Tally tools.
type Server struct {
	mcp *server.MCPServer
	svc *engine.Service
}

// New creates a new MCP server with all Tally tools registered.
func New(svc *engine.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Tally",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List the configured rules (built-in and custom) and the ignored path prefixes."),
	), s.listRules)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List vault documents with their checksum and modification time."),
		mcp.WithString("folder", mcp.Description("Folder relative to the vault root (defaults to the whole vault)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Make a document the active one and run its file-opened rules. "+
			"Tools that take an optional path act on the active document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the document")),
		mcp.WithNumber("cursor_line", mcp.Description("Zero-based cursor line; omit when no editor shows the document")),
	), s.openDocument)

	s.mcp.AddTool(mcp.NewTool("close_document",
		mcp.WithDescription("End the editor session for a document."),
		mcp.WithString("path", mcp.Description("Relative path of the document (defaults to the active one)")),
	), s.closeDocument)

	s.mcp.AddTool(mcp.NewTool("list_commands",
		mcp.WithDescription("List the command ids bound to command-invoked rules."),
	), s.listCommands)

	s.mcp.AddTool(mcp.NewTool("run_command",
		mcp.WithDescription("Run one command against a document, whether or not its rule is auto-applied."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Command id from list_commands")),
		mcp.WithString("path", mcp.Description("Relative path of the document (defaults to the active one)")),
	), s.runCommand)

	s.mcp.AddTool(mcp.NewTool("fire_trigger",
		mcp.WithDescription("Run every auto-applied rule bound to an automatic trigger against a document."),
		mcp.WithString("trigger", mcp.Required(),
			mcp.Description("Trigger to fire"),
			mcp.Enum(string(models.TriggerFileOpened), string(models.TriggerDocumentModified))),
		mcp.WithString("path", mcp.Description("Relative path of the document (defaults to the active one)")),
	), s.fireTrigger)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a document with its decoded frontmatter fields."),
		mcp.WithString("path", mcp.Description("Relative path of the document (defaults to the active one)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("get_frontmatter_contract",
		mcp.WithDescription("Returns the frontmatter shape that rules read and rewrite. "+
			"Call this before editing counters or date lists by hand."),
	), s.getContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Frontmatter Contract",
			mcp.WithResourceDescription("Frontmatter shape that the update rules read and rewrite."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func optionalString(req mcp.CallToolRequest, name string) string {
	if v, err := req.RequireString(name); err == nil {
		return v
	}
	return ""
}

// summarize renders outcomes one per line: "status key old -> new".
func summarize(outcomes []models.UpdateOutcome) string {
	if len(outcomes) == 0 {
		return "no rules applied"
	}
	lines := make([]string, len(outcomes))
	for i, o := range outcomes {
		switch {
		case o.Success():
			lines[i] = fmt.Sprintf("%s %s: %s -> %s", o.Status, o.Key, o.OldValue, o.NewValue)
		case o.Err != nil:
			lines[i] = fmt.Sprintf("%s %s: %v", o.Status, o.Key, o.Err)
		default:
			lines[i] = fmt.Sprintf("%s %s", o.Status, o.Key)
		}
	}
	return strings.Join(lines, "\n")
}

func (s *Server) listRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Config()), nil
}

func (s *Server) listCommands(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cmds := s.svc.Commands()
	if len(cmds) == 0 {
		return mcp.NewToolResultText("no commands registered"), nil
	}
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.ID + "\t" + c.Name
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) runCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, outcomes, err := s.svc.RunCommand(ctx, id, optionalString(req, "path"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(path + "\n" + summarize(outcomes)), nil
}

func (s *Server) fireTrigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	trigger, err := req.RequireString("trigger")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, outcomes, err := s.svc.Fire(ctx, models.Trigger(trigger), optionalString(req, "path"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(path + "\n" + summarize(outcomes)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.Documents(ctx, optionalString(req, "folder"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(docs), nil
}

func (s *Server) openDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var cursor *int
	if line, err := req.RequireInt("cursor_line"); err == nil {
		cursor = &line
	}
	path, outcomes, err := s.svc.Open(ctx, path, cursor)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(path + "\n" + summarize(outcomes)), nil
}

func (s *Server) closeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := s.svc.Close(optionalString(req, "path"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("closed " + path), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.svc.Document(ctx, optionalString(req, "path"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(doc), nil
}

func (s *Server) getContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FrontmatterContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     FrontmatterContract,
		},
	}, nil
}
