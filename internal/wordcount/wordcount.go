// Package wordcount counts words the way a reader would: a word is a maximal
// run of letters, digits, underscores and apostrophes.
package wordcount

import "regexp"

var wordRe = regexp.MustCompile(`[\p{L}\p{M}\p{N}_'’]+`)

// Count returns the number of words in text.
func Count(text string) int {
	return len(wordRe.FindAllStringIndex(text, -1))
}
