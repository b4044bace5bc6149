package frontmatter

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/tally/internal/apperr"
)

// Scalar decodes raw as a YAML scalar, removing quotes. Values that are not
// valid YAML scalars are returned trimmed.
func Scalar(raw string) string {
	var s string
	if err := yaml.Unmarshal([]byte(raw), &s); err != nil {
		return strings.TrimSpace(raw)
	}
	return s
}

// Int decodes raw as an integer scalar.
func Int(raw string) (int, error) {
	s := strings.TrimSpace(Scalar(raw))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("frontmatter: %q is not an integer: %w", raw, apperr.ErrParse)
	}
	return n, nil
}

// List decodes raw as a flow or block sequence of scalars. A bare scalar is
// promoted to a one-element list; an empty value yields nil.
func List(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []string
	if err := yaml.Unmarshal([]byte(raw), &items); err == nil {
		out := items[:0]
		for _, it := range items {
			if it = strings.TrimSpace(it); it != "" {
				out = append(out, it)
			}
		}
		return out
	}
	if s := Scalar(raw); s != "" {
		return []string{s}
	}
	return nil
}

// FormatList renders items as a flow sequence: `[a, b, c]`.
func FormatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}
