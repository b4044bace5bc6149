package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/rules"
)

const maxBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *engine.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *engine.Service) *Handler {
	return &Handler{svc: svc}
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// fail maps a service error onto a status code.
func fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalidRule):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrBadTrigger), errors.Is(err, apperr.ErrBadPath):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func outcomes(path string, o []models.UpdateOutcome) OutcomesResponse {
	if o == nil {
		o = []models.UpdateOutcome{}
	}
	return OutcomesResponse{Path: path, Outcomes: o}
}

// Open handles POST /api/open.
//
//	@Summary		Make a document active and fire file-opened
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenRequest	true	"Document to open"
//	@Success		200		{object}	OutcomesResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/open [post]
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	path, res, err := h.svc.Open(r.Context(), req.Path, req.CursorLine)
	if err != nil {
		fail(w, "open", err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes(path, res))
}

// Close handles DELETE /api/open.
//
//	@Summary		End the editor session for a document
//	@Tags			session
//	@Param			path	query	string	false	"Document, defaults to the active one"
//	@Success		204		"Session closed"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/open [delete]
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Close(r.URL.Query().Get("path")); err != nil {
		fail(w, "close", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetCursor handles PUT /api/cursor.
//
//	@Summary		Move the cursor of the active document
//	@Tags			session
//	@Accept			json
//	@Param			body	body	CursorRequest	true	"Cursor line"
//	@Success		204		"Cursor moved"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cursor [put]
func (h *Handler) SetCursor(w http.ResponseWriter, r *http.Request) {
	var req CursorRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SetCursor(req.Line); err != nil {
		fail(w, "set cursor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Modified handles POST /api/modified.
//
//	@Summary		Fire document-modified for a document
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	false	"Document, defaults to the active one"
//	@Success		200		{object}	OutcomesResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/modified [post]
func (h *Handler) Modified(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	path, res, err := h.svc.Fire(r.Context(), models.TriggerDocumentModified, req.Path)
	if err != nil {
		fail(w, "modified", err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes(path, res))
}

// Document handles GET /api/document.
//
//	@Summary		Read a document with its frontmatter fields
//	@Tags			session
//	@Produce		json
//	@Param			path	query		string	false	"Document, defaults to the active one"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/document [get]
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Document(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		fail(w, "document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List vault documents
//	@Tags			session
//	@Produce		json
//	@Param			dir	query		string	false	"Folder relative to the vault root"
//	@Success		200	{object}	DocumentsResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents(r.Context(), r.URL.Query().Get("dir"))
	if err != nil {
		fail(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{Documents: docs})
}

// ListCommands handles GET /api/commands.
//
//	@Summary		List user-invocable commands
//	@Tags			commands
//	@Produce		json
//	@Success		200	{object}	CommandsResponse
//	@Security		BearerAuth
//	@Router			/commands [get]
func (h *Handler) ListCommands(w http.ResponseWriter, _ *http.Request) {
	cmds := h.svc.Commands()
	if cmds == nil {
		cmds = []rules.Command{}
	}
	writeJSON(w, http.StatusOK, CommandsResponse{Commands: cmds})
}

// RunCommand handles POST /api/commands/{id}.
//
//	@Summary		Invoke a command against a document
//	@Tags			commands
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Command id"
//	@Param			body	body		PathRequest	false	"Document, defaults to the active one"
//	@Success		200		{object}	OutcomesResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/commands/{id} [post]
func (h *Handler) RunCommand(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) {
		return
	}
	path, res, err := h.svc.RunCommand(r.Context(), chi.URLParam(r, "id"), req.Path)
	if err != nil {
		fail(w, "run command", err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes(path, res))
}

// GetConfig handles GET /api/config.
//
//	@Summary		Get the rule configuration
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	Configuration
//	@Security		BearerAuth
//	@Router			/config [get]
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Config())
}

// ReplaceConfig handles PUT /api/config.
//
//	@Summary		Replace the rule configuration
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		Configuration	true	"New configuration"
//	@Success		200		{object}	Configuration
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/config [put]
func (h *Handler) ReplaceConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.Configuration
	if !decode(w, r, &cfg) {
		return
	}
	res, err := h.svc.ReplaceConfig(r.Context(), &cfg)
	if err != nil {
		fail(w, "replace config", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AddRule handles POST /api/rules.
//
//	@Summary		Add a custom rule (the new-rule template when the body is empty)
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Rule	false	"Rule to add"
//	@Success		201		{object}	Configuration
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules [post]
func (h *Handler) AddRule(w http.ResponseWriter, r *http.Request) {
	var req *models.Rule
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.AddRule(r.Context(), req)
	if err != nil {
		fail(w, "add rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// RemoveRule handles DELETE /api/rules/{index}.
//
//	@Summary		Remove a custom rule by position
//	@Tags			settings
//	@Produce		json
//	@Param			index	path		int	true	"Custom rule index"
//	@Success		200		{object}	Configuration
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rules/{index} [delete]
func (h *Handler) RemoveRule(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("index must be an integer"))
		return
	}
	res, err := h.svc.RemoveRule(r.Context(), i)
	if err != nil {
		fail(w, "remove rule", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetIgnorePaths handles PUT /api/ignore-paths.
//
//	@Summary		Replace the ignored path prefixes
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IgnorePathsRequest	true	"Prefixes"
//	@Success		200		{object}	Configuration
//	@Security		BearerAuth
//	@Router			/ignore-paths [put]
func (h *Handler) SetIgnorePaths(w http.ResponseWriter, r *http.Request) {
	var req IgnorePathsRequest
	if !decode(w, r, &req) {
		return
	}
	paths := req.Paths
	if req.Text != "" {
		paths = append(paths, req.Text)
	}
	res, err := h.svc.SetIgnorePaths(r.Context(), paths)
	if err != nil {
		fail(w, "set ignore paths", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LastUpdate handles GET /api/last-update.
//
//	@Summary		Most recent successful update, for the status bar
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	dispatch.LastUpdate
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/last-update [get]
func (h *Handler) LastUpdate(w http.ResponseWriter, _ *http.Request) {
	last, ok := h.svc.LastUpdate()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no updates yet"))
		return
	}
	writeJSON(w, http.StatusOK, last)
}
