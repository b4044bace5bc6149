// Package frontmatter locates and rewrites the leading YAML block of a
// markdown document without a full YAML round trip.
//
// A block exists only when the document starts with a `---` line and a later
// line is exactly `---`; both delimiter lines end with a newline:
//
//	---
//	views: 3
//	edits: [2024-01-01, 2024-01-02]
//	aliases:
//	  - first
//	  - second
//	---
//
// The body grammar is one level deep. A line that begins with a key followed
// by a colon starts a new field; any other line continues the previous
// field's value. Nested mappings are therefore seen as multi-line values of
// their parent key and are never addressable on their own. When a key
// appears twice, the first definition wins.
package frontmatter

import (
	"strings"
)

const delim = "---"

// Field is one top-level key of a frontmatter block.
type Field struct {
	Key string
	// Value is the raw text after the colon, with continuation lines joined by
	// newlines and their common indentation removed.
	Value string
	// Line and EndLine are the document line indexes of the key line and of
	// the last continuation line (inclusive).
	Line    int
	EndLine int
}

// Block is a parsed view of a document's frontmatter. It is a snapshot of
// the text it was located in and must be recomputed after every edit.
type Block struct {
	StartOffset int // always 0
	EndOffset   int // first byte after the closing delimiter's newline
	StartLine   int // opening delimiter line, always 0
	EndLine     int // closing delimiter line

	Lines  []string // body lines between the delimiters
	Fields []Field

	// lineStarts[i] is the byte offset of document line i for
	// i in [0, EndLine+1]; lineStarts[EndLine+1] == EndOffset.
	lineStarts []int
}

// Locate finds the frontmatter block at the very start of text. It returns
// false when the text does not begin with the delimiter pattern.
func Locate(text string) (*Block, bool) {
	if !strings.HasPrefix(text, delim+"\n") {
		return nil, false
	}

	starts := []int{0}
	var lines []string
	pos := len(delim) + 1
	for {
		starts = append(starts, pos)
		nl := strings.IndexByte(text[pos:], '\n')
		if nl < 0 {
			// Closing delimiter must be newline terminated.
			return nil, false
		}
		line := text[pos : pos+nl]
		pos += nl + 1
		if line == delim {
			break
		}
		lines = append(lines, line)
	}
	starts = append(starts, pos)

	b := &Block{
		StartOffset: 0,
		EndOffset:   pos,
		StartLine:   0,
		EndLine:     len(lines) + 1,
		Lines:       lines,
		lineStarts:  starts,
	}
	b.Fields = parseFields(lines)
	return b, true
}

// Lookup returns the first field named key.
func (b *Block) Lookup(key string) (Field, bool) {
	for _, f := range b.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Value returns the raw value of key.
func (b *Block) Value(key string) (string, bool) {
	f, ok := b.Lookup(key)
	if !ok {
		return "", false
	}
	return f.Value, true
}

// KeyLine returns the zero-based document line that begins key's definition.
func (b *Block) KeyLine(key string) (int, bool) {
	f, ok := b.Lookup(key)
	if !ok {
		return 0, false
	}
	return f.Line, true
}

// Contains reports whether document line n falls within the block,
// delimiters included.
func (b *Block) Contains(n int) bool {
	return n >= b.StartLine && n <= b.EndLine
}

// Body returns the document text following the closing delimiter.
func (b *Block) Body(text string) string {
	if b.EndOffset > len(text) {
		return ""
	}
	return text[b.EndOffset:]
}

// parser states.
type state int

const (
	stateBeforeKey state = iota // no field started yet
	stateKeyLine                // just read a key line
	stateContinuation           // inside a multi-line value
)

// fieldBuilder accumulates one field while the parser walks the body.
type fieldBuilder struct {
	key     string
	inline  string
	cont    []string
	line    int
	endLine int
}

func (fb *fieldBuilder) build() Field {
	value := fb.inline
	if len(fb.cont) > 0 {
		joined := strings.Join(dedent(fb.cont), "\n")
		if value == "" {
			value = joined
		} else {
			value += "\n" + joined
		}
	}
	return Field{
		Key:     fb.key,
		Value:   strings.TrimSpace(value),
		Line:    fb.line,
		EndLine: fb.endLine,
	}
}

func parseFields(lines []string) []Field {
	var (
		fields  []Field
		current *fieldBuilder
		pending []string // blank/comment lines not yet owned by a field
		st      = stateBeforeKey
	)

	flush := func() {
		if current != nil {
			fields = append(fields, current.build())
			current = nil
		}
		pending = pending[:0]
	}

	for i, line := range lines {
		docLine := i + 1

		if key, rest, ok := splitKeyLine(line); ok {
			flush()
			current = &fieldBuilder{key: key, inline: strings.TrimSpace(rest), line: docLine, endLine: docLine}
			st = stateKeyLine
			continue
		}

		switch st {
		case stateBeforeKey:
			// Content before the first key belongs to nobody.
		case stateKeyLine, stateContinuation:
			if isFiller(line) {
				pending = append(pending, line)
				continue
			}
			// Filler between continuation lines is part of the value;
			// trailing filler is not.
			current.cont = append(current.cont, pending...)
			pending = pending[:0]
			current.cont = append(current.cont, line)
			current.endLine = docLine
			st = stateContinuation
		}
	}
	flush()
	return fields
}

// splitKeyLine recognises `key: value` lines. The key is everything before
// the first colon that is followed by a space or ends the line; a quoted key
// may contain colons. Indented lines, list items and comments are never key
// lines.
func splitKeyLine(line string) (key, rest string, ok bool) {
	if line == "" {
		return "", "", false
	}
	switch line[0] {
	case ' ', '\t', '-', '#', ':':
		return "", "", false
	case '"', '\'':
		q := line[0]
		end := strings.IndexByte(line[1:], q)
		if end < 0 {
			return "", "", false
		}
		after := line[end+2:]
		if !strings.HasPrefix(after, ":") {
			return "", "", false
		}
		after = after[1:]
		if after != "" && after[0] != ' ' && after[0] != '\t' {
			return "", "", false
		}
		return line[1 : end+1], after, true
	}

	for i := 0; i < len(line); i++ {
		if line[i] != ':' {
			continue
		}
		if i+1 == len(line) || line[i+1] == ' ' || line[i+1] == '\t' {
			return strings.TrimRight(line[:i], " \t"), line[i+1:], true
		}
	}
	return "", "", false
}

func isFiller(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(line, "#")
}

// dedent strips the indentation shared by all non-blank lines.
func dedent(lines []string) []string {
	common := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	if common <= 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if len(l) >= common {
			out[i] = l[common:]
		} else {
			out[i] = strings.TrimLeft(l, " \t")
		}
	}
	return out
}
