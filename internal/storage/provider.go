// Package storage gives the update pipeline access to documents in the vault.
package storage

import "github.com/starford/tally/internal/models"

// Provider is the interface for vault document operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to vault root).
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the text of the document at path (relative to vault root).
	Read(path string) (string, error)
	// Write atomically replaces the document at path (relative to vault root).
	Write(path, text string) error
	// Abs resolves path against the vault root, rejecting escapes.
	Abs(path string) (string, error)
	// Rel converts an absolute file path into a vault-relative one.
	Rel(abs string) (string, error)
}
