package frontmatter

import (
	"fmt"

	"github.com/starford/tally/internal/apperr"
)

// Apply replaces the lines defining key with a single `key: value` line.
// Every byte outside that span is preserved. A key that is not defined in
// the block yields apperr.ErrNotFound; use Insert to add one.
func Apply(text string, b *Block, key, value string) (string, error) {
	f, ok := b.Lookup(key)
	if !ok {
		return "", fmt.Errorf("frontmatter: key %q: %w", key, apperr.ErrNotFound)
	}
	if err := b.checkSnapshot(text); err != nil {
		return "", err
	}
	start := b.lineStarts[f.Line]
	end := b.lineStarts[f.EndLine+1]
	return text[:start] + formatLine(key, value) + text[end:], nil
}

// Insert adds a `key: value` line immediately before the closing delimiter.
// It refuses keys the block already defines.
func Insert(text string, b *Block, key, value string) (string, error) {
	if _, ok := b.Lookup(key); ok {
		return "", fmt.Errorf("frontmatter: key %q: %w", key, apperr.ErrAlreadyExists)
	}
	if err := b.checkSnapshot(text); err != nil {
		return "", err
	}
	at := b.lineStarts[b.EndLine]
	return text[:at] + formatLine(key, value) + text[at:], nil
}

// checkSnapshot guards against applying a block to text it was not located in.
func (b *Block) checkSnapshot(text string) error {
	if len(text) < b.EndOffset || text[b.lineStarts[b.EndLine]:b.EndOffset] != delim+"\n" {
		return fmt.Errorf("frontmatter: block does not match document text: %w", apperr.ErrNotFound)
	}
	return nil
}

func formatLine(key, value string) string {
	if value == "" {
		return key + ":\n"
	}
	return key + ": " + value + "\n"
}
