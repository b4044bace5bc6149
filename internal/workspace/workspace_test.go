package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/testutil"
	"github.com/starford/tally/internal/workspace"
)

func ptr(n int) *int { return &n }

func TestSession_OpenAndCursor(t *testing.T) {
	dir, store := testutil.TestVault(t)
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("---\nviews: 1\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := workspace.New(store)
	ctx := context.Background()

	if err := s.SetCursor(ptr(1)); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("SetCursor without active document = %v", err)
	}
	if _, err := s.Open(ctx, "missing.md", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Open missing = %v", err)
	}

	if _, err := s.Open(ctx, "a.md", ptr(4)); err != nil {
		t.Fatal(err)
	}
	if got := s.Active(); got != "a.md" {
		t.Errorf("Active = %q", got)
	}
	if line, ok := s.CursorLine("a.md"); !ok || line != 4 {
		t.Errorf("CursorLine = %d, %v", line, ok)
	}

	if err := s.SetCursor(ptr(1)); err != nil {
		t.Fatal(err)
	}
	if line, _ := s.CursorLine("a.md"); line != 1 {
		t.Errorf("CursorLine after move = %d", line)
	}
	if err := s.SetCursor(nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.CursorLine("a.md"); ok {
		t.Error("cursor should be cleared")
	}

	if err := s.Close("./a.md"); err != nil {
		t.Fatal(err)
	}
	if s.Active() != "" {
		t.Error("Close should clear the active document")
	}
}

func TestSession_Document(t *testing.T) {
	dir, store := testutil.TestVault(t)
	text := "---\nviews: 3\ntags:\n  - a\n  - b\nviews: 9\n---\nbody\n"
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	s := workspace.New(store)
	if _, err := s.Open(context.Background(), "a.md", ptr(7)); err != nil {
		t.Fatal(err)
	}

	d, err := s.Document(context.Background(), "a.md")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"views": "3", "tags": "- a\n- b"}
	if diff := cmp.Diff(want, d.Frontmatter); diff != "" {
		t.Errorf("frontmatter mismatch (-want +got):\n%s", diff)
	}
	if d.Content != text || !d.Active || d.CursorLine == nil || *d.CursorLine != 7 || d.Checksum == "" {
		t.Errorf("detail = %+v", d)
	}

	if _, err := s.Document(context.Background(), "nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Document missing = %v", err)
	}
}

func TestSession_WriteAndList(t *testing.T) {
	_, store := testutil.TestVault(t)
	s := workspace.New(store)
	if err := s.Write("notes/b.md", "---\nx: 1\n---\n"); err != nil {
		t.Fatal(err)
	}
	text, err := s.Read("notes/b.md")
	if err != nil || text != "---\nx: 1\n---\n" {
		t.Fatalf("Read = %q, %v", text, err)
	}
	docs, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Path != "notes/b.md" {
		t.Errorf("List = %+v", docs)
	}

	docs, err = s.List(context.Background(), "./notes")
	if err != nil || len(docs) != 1 {
		t.Errorf("List(./notes) = %+v, %v", docs, err)
	}
	if _, err := s.List(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("List(missing) = %v", err)
	}
	if _, err := s.List(context.Background(), "../outside"); !errors.Is(err, apperr.ErrBadPath) {
		t.Errorf("List(../outside) = %v", err)
	}
}

func TestSession_CanonicalPaths(t *testing.T) {
	dir, store := testutil.TestVault(t)
	testutil.WriteDoc(t, dir, "notes/a.md", "---\nviews: 1\n---\n")
	s := workspace.New(store)
	ctx := context.Background()

	path, err := s.Open(ctx, "./x/../notes//a.md", ptr(2))
	if err != nil {
		t.Fatal(err)
	}
	if path != "notes/a.md" || s.Active() != "notes/a.md" {
		t.Errorf("Open = %q, Active = %q", path, s.Active())
	}
	if line, ok := s.CursorLine("notes/a.md"); !ok || line != 2 {
		t.Errorf("CursorLine = %d, %v", line, ok)
	}
	d, err := s.Document(ctx, "notes/./a.md")
	if err != nil || d.Path != "notes/a.md" || !d.Active {
		t.Errorf("Document = %+v, %v", d, err)
	}

	for _, p := range []string{"", ".", "../a.md", "/etc/passwd"} {
		if _, err := s.Open(ctx, p, nil); !errors.Is(err, apperr.ErrBadPath) {
			t.Errorf("Open(%q) = %v, want ErrBadPath", p, err)
		}
	}
}
