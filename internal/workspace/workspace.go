// Package workspace tracks the editor session the update pipeline works
// against: which document is active and where its edit cursor sits.
package workspace

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/checksum"
	"github.com/starford/tally/internal/frontmatter"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/storage"
)

// DocumentDetail is the full representation of a document.
type DocumentDetail struct {
	Path        string            `json:"path"`
	Content     string            `json:"content"`
	Checksum    string            `json:"checksum"`
	Frontmatter map[string]string `json:"frontmatter,omitempty"`
	Active      bool              `json:"active"`
	CursorLine  *int              `json:"cursor_line,omitempty"`
	ReadAt      time.Time         `json:"read_at"`
}

// Session coordinates document storage with the editor state.
type Session struct {
	store storage.Provider

	mu     sync.RWMutex
	active string
	cursor map[string]int
}

// New creates a session over store with no active document.
func New(store storage.Provider) *Session {
	return &Session{store: store, cursor: make(map[string]int)}
}

// Open makes path the active document and returns its canonical form. A
// nil line leaves the document without an editable cursor.
func (s *Session) Open(_ context.Context, path string, line *int) (string, error) {
	path, err := storage.CleanPath(path)
	if err != nil {
		return "", err
	}
	if _, err := s.Read(path); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = path
	if line != nil {
		s.cursor[path] = *line
	} else {
		delete(s.cursor, path)
	}
	return path, nil
}

// Close forgets the cursor of path and clears the active document if it is
// path.
func (s *Session) Close(path string) error {
	path, err := storage.CleanPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursor, path)
	if s.active == path {
		s.active = ""
	}
	return nil
}

// Active returns the active document path, or "" when none is open.
func (s *Session) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetCursor moves the edit cursor of the active document. A nil line means
// the document is no longer shown in an editable view.
func (s *Session) SetCursor(line *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return apperr.ErrNotFound
	}
	if line == nil {
		delete(s.cursor, s.active)
		return nil
	}
	s.cursor[s.active] = *line
	return nil
}

// CursorLine reports the zero-based cursor line in the editor showing path.
func (s *Session) CursorLine(path string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.cursor[path]
	return line, ok
}

// Read returns the text of path, mapping a missing file to apperr.ErrNotFound.
func (s *Session) Read(path string) (string, error) {
	text, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperr.ErrNotFound
		}
		return "", err
	}
	return text, nil
}

// Write replaces the text of path.
func (s *Session) Write(path, text string) error {
	return s.store.Write(path, text)
}

// List returns metadata for every document under dir, or the whole vault
// when dir is empty.
func (s *Session) List(_ context.Context, dir string) ([]models.DocumentMetadata, error) {
	if dir != "" {
		cleaned, err := storage.CleanPath(dir)
		if err != nil {
			return nil, err
		}
		dir = cleaned
	}
	docs, err := s.store.List(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if docs == nil {
		docs = []models.DocumentMetadata{}
	}
	return docs, nil
}

// Document reads path and decodes its frontmatter fields.
func (s *Session) Document(_ context.Context, path string) (*DocumentDetail, error) {
	path, err := storage.CleanPath(path)
	if err != nil {
		return nil, err
	}
	text, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	d := &DocumentDetail{
		Path:     path,
		Content:  text,
		Checksum: checksum.String(text),
		ReadAt:   time.Now(),
	}
	if b, ok := frontmatter.Locate(text); ok {
		d.Frontmatter = make(map[string]string, len(b.Fields))
		for _, f := range b.Fields {
			if _, dup := d.Frontmatter[f.Key]; !dup {
				d.Frontmatter[f.Key] = f.Value
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	d.Active = s.active == path
	if line, ok := s.cursor[path]; ok {
		d.CursorLine = &line
	}
	return d, nil
}
