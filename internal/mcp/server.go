package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"notesync/internal/notes"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Handler serves the MCP tools over streamable HTTP. Every request needs a
// bearer token from tokens; tools act on behalf of the token's user.
func Handler(svc *notes.Service, tokens map[string]string) http.Handler {
	streamable := server.NewStreamableHTTPServer(NewServer(svc),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if user, ok := notes.UserFrom(r.Context()); ok {
				return notes.WithUser(ctx, user)
			}
			return ctx
		}),
	)
	return notes.RequireUser(tokens, streamable)
}

// NewServer creates an MCP server with tools over the notes service.
// Tool handlers expect the caller's user id in the context (see Handler).
func NewServer(svc *notes.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"Notesync",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Tool: list_notes - one page of a user's notes, served through the page cache
	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List your notes newest first, one page at a time. The result includes currentPage, totalPages and totalNotes so you can page through everything."),
			mcp.WithNumber("page",
				mcp.Description("Page number, starting at 1 (default: 1)"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Notes per page (default: 20, max: 100)"),
			),
		),
		handleListNotes(svc),
	)

	// Tool: get_note - Get a specific note by ID
	s.AddTool(
		mcp.NewTool("get_note",
			mcp.WithDescription("Get one of your notes by its ID. Use this when you have a note ID and need the full content."),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("The note ID (24-character hex string)"),
			),
			mcp.WithString("format",
				mcp.Description("Optional: 'html' to get the content rendered from markdown"),
			),
		),
		handleGetNote(svc),
	)

	// Tool: create_note - write path, invalidates the user's cached pages
	s.AddTool(
		mcp.NewTool("create_note",
			mcp.WithDescription("Create a note. Title and content are required; content is markdown."),
			mcp.WithString("title",
				mcp.Required(),
				mcp.Description("Note title"),
			),
			mcp.WithString("content",
				mcp.Required(),
				mcp.Description("Note body in markdown"),
			),
		),
		handleCreateNote(svc),
	)

	return s
}

// NoteResult represents a note in tool responses
type NoteResult struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PageResult represents one page of notes in tool responses
type PageResult struct {
	Notes       []NoteResult `json:"notes"`
	CurrentPage int          `json:"currentPage"`
	TotalPages  int          `json:"totalPages"`
	TotalNotes  int64        `json:"totalNotes"`
}

func handleListNotes(svc *notes.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, ok := notes.UserFrom(ctx)
		if !ok {
			return mcp.NewToolResultError("unauthenticated"), nil
		}

		page, err := svc.GetPage(ctx, userID, notes.PageQuery{
			Page:  req.GetInt("page", 1),
			Limit: req.GetInt("limit", notes.DefaultPageLimit),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list notes: %v", err)), nil
		}

		return jsonResult(PageResult{
			Notes:       notesToResults(page.Notes),
			CurrentPage: page.CurrentPage,
			TotalPages:  page.TotalPages,
			TotalNotes:  page.TotalNotes,
		}), nil
	}
}

func handleGetNote(svc *notes.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, ok := notes.UserFrom(ctx)
		if !ok {
			return mcp.NewToolResultError("unauthenticated"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		note, err := svc.GetByID(ctx, userID, id)
		if errors.Is(err, notes.ErrNoteNotFound) {
			return mcp.NewToolResultError("note not found"), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get note: %v", err)), nil
		}

		result := noteToResult(note)
		if req.GetString("format", "") == "html" {
			result.HTML = svc.RenderMarkdown(note.Content)
		}
		return jsonResult(result), nil
	}
}

func handleCreateNote(svc *notes.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, ok := notes.UserFrom(ctx)
		if !ok {
			return mcp.NewToolResultError("unauthenticated"), nil
		}

		note, _, err := svc.Create(ctx, userID, notes.CreateNoteInput{
			Title:   req.GetString("title", ""),
			Content: req.GetString("content", ""),
		}, "")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create note: %v", err)), nil
		}

		return jsonResult(noteToResult(note)), nil
	}
}

// Helper functions

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}

func noteToResult(note *notes.Note) NoteResult {
	return NoteResult{
		ID:        note.ID.Hex(),
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
	}
}

func notesToResults(noteList []*notes.Note) []NoteResult {
	results := make([]NoteResult, len(noteList))
	for i, note := range noteList {
		results[i] = noteToResult(note)
	}
	return results
}
