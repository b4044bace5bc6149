// Package transform computes the next value of a frontmatter key for each
// rule type. Every function is pure: the result depends only on its Input.
package transform

import (
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/starford/tally/internal/frontmatter"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/wordcount"
)

// DateLayout is the calendar date format written into frontmatter.
const DateLayout = "2006-01-02"

// Input is everything a transformer may look at.
type Input struct {
	// Current is the raw stored value; ignored unless Present.
	Current string
	Present bool
	Today   time.Time
	// Body is the document text after the frontmatter block.
	Body string
}

// Result is either a change to NewValue or a no-op.
type Result struct {
	Changed  bool
	NewValue string
	// Reset is set when the stored value could not be parsed and the
	// baseline was used instead.
	Reset bool
}

// Func computes a Result from an Input.
type Func func(Input) Result

var funcs = map[models.RuleType]Func{
	models.RuleCountUp:     CountUp,
	models.RuleCountDown:   CountDown,
	models.RuleAppendDate:  AppendDate,
	models.RuleRefreshDate: RefreshDate,
	models.RuleWordCount:   WordCount,
}

// For returns the transformer for a rule type.
func For(t models.RuleType) (Func, bool) {
	f, ok := funcs[t]
	return f, ok
}

// Today formats t as a UTC calendar date.
func Today(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// CountUp adds one to the stored integer, starting from 1.
func CountUp(in Input) Result {
	return count(in, 1)
}

// CountDown subtracts one from the stored integer, starting from 1.
func CountDown(in Input) Result {
	return count(in, -1)
}

func count(in Input, delta int) Result {
	if !in.Present {
		return Result{Changed: true, NewValue: "1"}
	}
	n, err := frontmatter.Int(in.Current)
	if err != nil {
		return Result{Changed: true, NewValue: "1", Reset: true}
	}
	return Result{Changed: true, NewValue: strconv.Itoa(n + delta)}
}

// AppendDate adds today to the stored date list, keeping it deduplicated
// and in calendar order. It is a no-op when today is already listed and the
// list is already deduplicated and sorted.
func AppendDate(in Input) Result {
	today := Today(in.Today)
	if !in.Present {
		return Result{Changed: true, NewValue: frontmatter.FormatList([]string{today})}
	}

	current := frontmatter.List(in.Current)
	normalized := SortDates(unique(current))
	if slices.Contains(normalized, today) && slices.Equal(normalized, current) {
		return Result{}
	}

	next := SortDates(unique(append(slices.Clone(current), today)))
	return Result{Changed: true, NewValue: frontmatter.FormatList(next)}
}

// RefreshDate replaces the stored value with today unless it already is today.
func RefreshDate(in Input) Result {
	today := Today(in.Today)
	if in.Present && frontmatter.Scalar(in.Current) == today {
		return Result{}
	}
	return Result{Changed: true, NewValue: today}
}

// WordCount stores the number of words in the document body.
func WordCount(in Input) Result {
	n := wordcount.Count(in.Body)

	current, reset := 0, false
	if in.Present {
		v, err := frontmatter.Int(in.Current)
		if err != nil {
			reset = true
		} else {
			current = v
		}
	}
	if n == current && !reset {
		return Result{}
	}
	return Result{Changed: true, NewValue: strconv.Itoa(n), Reset: reset}
}

// SortDates returns a sorted copy of dates. Values that do not parse as
// calendar dates sort after all dates, in lexical order.
func SortDates(dates []string) []string {
	out := slices.Clone(dates)
	slices.SortStableFunc(out, func(a, b string) int {
		ta, errA := time.Parse(DateLayout, a)
		tb, errB := time.Parse(DateLayout, b)
		switch {
		case errA == nil && errB == nil:
			return ta.Compare(tb)
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return out
}

func unique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// ErrUnknownType is returned by Run for rule types without a transformer.
var ErrUnknownType = errors.New("transform: unknown rule type")

// Run looks up the transformer for t and applies it.
func Run(t models.RuleType, in Input) (Result, error) {
	f, ok := For(t)
	if !ok {
		return Result{}, ErrUnknownType
	}
	return f(in), nil
}
