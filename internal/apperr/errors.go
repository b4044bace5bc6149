// Package apperr holds the sentinel errors shared by the update pipeline.
package apperr

import "errors"

var (
	// ErrNotFound: no active document, no frontmatter block, or key absent
	// without create permission.
	ErrNotFound = errors.New("not found")
	// ErrUnsafe: the editor cursor sits inside the frontmatter block.
	ErrUnsafe = errors.New("cursor inside frontmatter")
	// ErrNoOp: the transformer decided nothing needs to change.
	ErrNoOp = errors.New("no change")
	// ErrParse: the stored value is not of the expected type.
	ErrParse = errors.New("unparseable value")

	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidRule   = errors.New("invalid rule")
	ErrBadTrigger    = errors.New("trigger not accepted here")
	// ErrBadPath: a document path that does not name a file inside the vault.
	ErrBadPath = errors.New("invalid document path")
)
