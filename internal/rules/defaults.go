// Package rules owns the rule configuration: built-in defaults, load-time
// coercion and validation, persistence backends and the live Manager that
// persists every mutation.
package rules

import "github.com/starford/tally/internal/models"

// Defaults returns the configuration used when nothing has been persisted.
func Defaults() *models.Configuration {
	return &models.Configuration{
		Rules: []models.Rule{
			{
				Title:     "View Counter",
				Key:       "views",
				Trigger:   models.TriggerFileOpened,
				Type:      models.RuleCountUp,
				AutoApply: true,
			},
			{
				Title:     "Edit Date Logger",
				Key:       "edits",
				Trigger:   models.TriggerDocumentModified,
				Type:      models.RuleAppendDate,
				AutoApply: true,
				Notify:    true,
			},
			{
				Title:     "Word Counter",
				Key:       "words",
				Trigger:   models.TriggerDocumentModified,
				Type:      models.RuleWordCount,
				AutoApply: true,
			},
		},
		CustomRules: []models.Rule{
			{
				Key:     "ratings",
				Trigger: models.TriggerCommandInvoked,
				Type:    models.RuleCountUp,
			},
		},
		IgnorePaths: []string{},
	}
}

// NewCustomRule is the template for a user-added rule.
func NewCustomRule() models.Rule {
	return models.Rule{
		Key:       "new_counter",
		Trigger:   models.TriggerCommandInvoked,
		Type:      models.RuleCountUp,
		AutoApply: true,
	}
}
