package rules

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
)

var triggerAliases = map[string]models.Trigger{
	"file-opened":       models.TriggerFileOpened,
	"open-file":         models.TriggerFileOpened,
	"document-modified": models.TriggerDocumentModified,
	"modify":            models.TriggerDocumentModified,
	"command-invoked":   models.TriggerCommandInvoked,
	"command":           models.TriggerCommandInvoked,
}

var typeAliases = map[string]models.RuleType{
	"count-up":     models.RuleCountUp,
	"count-down":   models.RuleCountDown,
	"append-date":  models.RuleAppendDate,
	"add-date":     models.RuleAppendDate,
	"refresh-date": models.RuleRefreshDate,
	"update-date":  models.RuleRefreshDate,
	"word-count":   models.RuleWordCount,
}

func aliasKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(s)
}

// CoerceRule maps legacy trigger and type spellings ("Open File",
// "count_up", "add_date", ...) onto their canonical values. Unknown values
// are left untouched for ValidateRule to reject.
func CoerceRule(r models.Rule) models.Rule {
	if t, ok := triggerAliases[aliasKey(string(r.Trigger))]; ok {
		r.Trigger = t
	}
	if t, ok := typeAliases[aliasKey(string(r.Type))]; ok {
		r.Type = t
	}
	return r
}

// ValidateRule checks a rule's key and enum fields.
func ValidateRule(r models.Rule) error {
	triggers := make([]interface{}, len(models.Triggers))
	for i, t := range models.Triggers {
		triggers[i] = t
	}
	types := make([]interface{}, len(models.RuleTypes))
	for i, t := range models.RuleTypes {
		types[i] = t
	}
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required),
		validation.Field(&r.Trigger, validation.Required, validation.In(triggers...)),
		validation.Field(&r.Type, validation.Required, validation.In(types...)),
	); err != nil {
		return fmt.Errorf("rule %q: %v: %w", r.Key, err, apperr.ErrInvalidRule)
	}
	return nil
}

// Validate checks every rule of cfg.
func Validate(cfg *models.Configuration) error {
	for _, r := range cfg.AllRules() {
		if err := ValidateRule(r); err != nil {
			return err
		}
	}
	return nil
}

// Normalize coerces every rule of cfg in place and drops the ones that are
// still invalid, returning one error per dropped rule.
func Normalize(cfg *models.Configuration) []error {
	var dropped []error
	keep := func(in []models.Rule) []models.Rule {
		out := make([]models.Rule, 0, len(in))
		for _, r := range in {
			r = CoerceRule(r)
			if err := ValidateRule(r); err != nil {
				dropped = append(dropped, err)
				continue
			}
			out = append(out, r)
		}
		return out
	}
	cfg.Rules = keep(cfg.Rules)
	cfg.CustomRules = keep(cfg.CustomRules)

	paths := make([]string, 0, len(cfg.IgnorePaths))
	for _, p := range cfg.IgnorePaths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	cfg.IgnorePaths = paths
	return dropped
}

// SanitizeKey applies the edit-time key rule: surrounding space trimmed,
// inner spaces replaced by underscores, colons removed.
func SanitizeKey(key string) string {
	key = strings.Join(strings.Split(strings.TrimSpace(key), " "), "_")
	return strings.ReplaceAll(key, ":", "")
}

// ParseIgnorePaths splits newline separated path prefixes, dropping blanks.
func ParseIgnorePaths(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
