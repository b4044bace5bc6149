package api

import (
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/rules"
	"github.com/starford/tally/internal/workspace"
)

// OpenRequest is the request body for opening a document.
type OpenRequest struct {
	Path       string `json:"path" example:"notes/hello.md" validate:"required"`
	CursorLine *int   `json:"cursor_line,omitempty" example:"12"`
}

// CursorRequest moves the cursor of the active document. A null line means
// no editable view shows it.
type CursorRequest struct {
	Line *int `json:"line" example:"12"`
}

// PathRequest optionally names a document; the active one is used otherwise.
type PathRequest struct {
	Path string `json:"path,omitempty" example:"notes/hello.md"`
}

// IgnorePathsRequest carries the ignored prefixes either as a list or as
// newline-separated text.
type IgnorePathsRequest struct {
	Paths []string `json:"paths,omitempty" example:"Templates,Archive"`
	Text  string   `json:"text,omitempty" example:"Templates\nArchive"`
}

// OutcomesResponse lists what each rule did.
type OutcomesResponse struct {
	Path     string                 `json:"path" example:"notes/hello.md" validate:"required"`
	Outcomes []models.UpdateOutcome `json:"outcomes" validate:"required"`
}

// DocumentsResponse lists vault documents.
type DocumentsResponse struct {
	Documents []models.DocumentMetadata `json:"documents" validate:"required"`
}

// CommandsResponse lists the registered commands.
type CommandsResponse struct {
	Commands []rules.Command `json:"commands" validate:"required"`
}

// DocumentDetail is the document response type (aliased from the session layer).
type DocumentDetail = workspace.DocumentDetail

// Configuration is the settings response type (aliased from the domain layer).
type Configuration = models.Configuration
