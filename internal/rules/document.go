package rules

import (
	"encoding/json"
	"fmt"

	"github.com/starford/tally/internal/models"
)

// Document is the persisted form of a Configuration. A nil field was never
// persisted and keeps its default on load.
type Document struct {
	Rules       *[]models.Rule `yaml:"rules,omitempty" json:"rules,omitempty"`
	CustomRules *[]models.Rule `yaml:"custom_rules,omitempty" json:"custom_rules,omitempty"`
	IgnorePaths *[]string      `yaml:"ignore_paths,omitempty" json:"ignore_paths,omitempty"`
}

// NewDocument captures every field of cfg.
func NewDocument(cfg *models.Configuration) *Document {
	c := cfg.Clone()
	return &Document{Rules: &c.Rules, CustomRules: &c.CustomRules, IgnorePaths: &c.IgnorePaths}
}

// Merge overlays doc on a copy of defaults, field by field: a persisted
// field replaces the default wholesale.
func Merge(defaults *models.Configuration, doc *Document) *models.Configuration {
	cfg := defaults.Clone()
	if doc == nil {
		return cfg
	}
	if doc.Rules != nil {
		cfg.Rules = append([]models.Rule(nil), (*doc.Rules)...)
	}
	if doc.CustomRules != nil {
		cfg.CustomRules = append([]models.Rule(nil), (*doc.CustomRules)...)
	}
	if doc.IgnorePaths != nil {
		cfg.IgnorePaths = append([]string(nil), (*doc.IgnorePaths)...)
	}
	return cfg
}

type legacyRule struct {
	Title   string `json:"title"`
	Name    string `json:"name"`
	Trigger string `json:"trigger"`
	Type    string `json:"type"`
	Auto    bool   `json:"auto"`
	Create  bool   `json:"create"`
	Notify  bool   `json:"notify"`
}

type legacyDocument struct {
	CounterModeList       *[]legacyRule `json:"counterModeList"`
	CustomCounterModeList *[]legacyRule `json:"customCounterModeList"`
	IgnorePaths           *[]string     `json:"ignorePaths"`
}

// DecodeLegacy reads the settings file written by the editor plugin this
// tool replaces (counterModeList / customCounterModeList / ignorePaths).
func DecodeLegacy(data []byte) (*Document, error) {
	var ld legacyDocument
	if err := json.Unmarshal(data, &ld); err != nil {
		return nil, fmt.Errorf("rules: decode legacy settings: %w", err)
	}
	convert := func(in *[]legacyRule) *[]models.Rule {
		if in == nil {
			return nil
		}
		out := make([]models.Rule, len(*in))
		for i, lr := range *in {
			out[i] = CoerceRule(models.Rule{
				Title:           lr.Title,
				Key:             lr.Name,
				Trigger:         models.Trigger(lr.Trigger),
				Type:            models.RuleType(lr.Type),
				AutoApply:       lr.Auto,
				CreateIfMissing: lr.Create,
				Notify:          lr.Notify,
			})
		}
		return &out
	}
	return &Document{
		Rules:       convert(ld.CounterModeList),
		CustomRules: convert(ld.CustomCounterModeList),
		IgnorePaths: ld.IgnorePaths,
	}, nil
}
