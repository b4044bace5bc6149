// Package models defines the domain types for Tally.
package models

import (
	"strings"
	"time"
)

// Trigger is the event class that causes rule evaluation.
type Trigger string

// Triggers.
const (
	TriggerFileOpened       Trigger = "file-opened"
	TriggerDocumentModified Trigger = "document-modified"
	TriggerCommandInvoked   Trigger = "command-invoked"
)

// Automatic reports whether the trigger is raised by the host rather than by
// an explicit user command.
func (t Trigger) Automatic() bool {
	return t == TriggerFileOpened || t == TriggerDocumentModified
}

// RuleType selects the counting/stamping behaviour of a rule.
type RuleType string

// Rule types.
const (
	RuleCountUp     RuleType = "count-up"
	RuleCountDown   RuleType = "count-down"
	RuleAppendDate  RuleType = "append-date"
	RuleRefreshDate RuleType = "refresh-date"
	RuleWordCount   RuleType = "word-count"
)

// Triggers lists every valid trigger in display order.
var Triggers = []Trigger{TriggerFileOpened, TriggerDocumentModified, TriggerCommandInvoked}

// RuleTypes lists every valid rule type in display order.
var RuleTypes = []RuleType{RuleCountUp, RuleCountDown, RuleAppendDate, RuleRefreshDate, RuleWordCount}

// Rule is one configured counting/stamping behaviour bound to a trigger and a
// frontmatter key.
type Rule struct {
	Title           string   `yaml:"title" json:"title"`
	Key             string   `yaml:"key" json:"key"`
	Trigger         Trigger  `yaml:"trigger" json:"trigger"`
	Type            RuleType `yaml:"type" json:"type"`
	AutoApply       bool     `yaml:"auto_apply" json:"auto_apply"`
	CreateIfMissing bool     `yaml:"create_if_missing" json:"create_if_missing"`
	Notify          bool     `yaml:"notify" json:"notify"`
}

// Configuration is the ordered rule set plus the ignored path prefixes.
type Configuration struct {
	Rules       []Rule   `yaml:"rules" json:"rules"`
	CustomRules []Rule   `yaml:"custom_rules" json:"custom_rules"`
	IgnorePaths []string `yaml:"ignore_paths" json:"ignore_paths"`
}

// AllRules returns built-in rules followed by custom rules.
func (c *Configuration) AllRules() []Rule {
	out := make([]Rule, 0, len(c.Rules)+len(c.CustomRules))
	out = append(out, c.Rules...)
	return append(out, c.CustomRules...)
}

// Ignored reports whether path starts with any non-empty ignored prefix.
func (c *Configuration) Ignored(path string) bool {
	for _, p := range c.IgnorePaths {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of a lock.
func (c *Configuration) Clone() *Configuration {
	return &Configuration{
		Rules:       append([]Rule(nil), c.Rules...),
		CustomRules: append([]Rule(nil), c.CustomRules...),
		IgnorePaths: append([]string(nil), c.IgnorePaths...),
	}
}

// Status classifies the result of one rule application.
type Status string

// Outcome statuses.
const (
	StatusUpdated  Status = "updated"
	StatusNotFound Status = "not-found"
	StatusUnsafe   Status = "unsafe"
	StatusNoOp     Status = "no-op"
	StatusFailed   Status = "failed"
)

// UpdateOutcome is the ephemeral result of one rule application.
type UpdateOutcome struct {
	Rule     Rule      `json:"rule"`
	Key      string    `json:"key"`
	Path     string    `json:"path"`
	Status   Status    `json:"status"`
	OldValue string    `json:"old_value,omitempty"`
	NewValue string    `json:"new_value,omitempty"`
	Notice   string    `json:"notice,omitempty"`
	Err      error     `json:"-"`
	At       time.Time `json:"at"`
}

// Success reports whether the document was rewritten.
func (o UpdateOutcome) Success() bool {
	return o.Status == StatusUpdated
}

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
