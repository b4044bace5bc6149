package rules

import (
	"strconv"

	"github.com/starford/tally/internal/models"
)

// Command is a user-invocable binding of one command-invoked rule.
type Command struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Custom bool        `json:"custom"`
	Rule   models.Rule `json:"rule"`
}

// Commands lists the command-invoked rules of cfg in configuration order.
// The command id is the sanitized key; a later rule whose id is taken gets
// the first free numeric suffix, so ids stay unique.
func Commands(cfg *models.Configuration) []Command {
	var out []Command
	used := make(map[string]bool)

	add := func(r models.Rule, custom bool) {
		if r.Trigger != models.TriggerCommandInvoked {
			return
		}
		base := SanitizeKey(r.Key)
		id := base
		for n := 2; used[id]; n++ {
			id = base + "-" + strconv.Itoa(n)
		}
		used[id] = true
		name := r.Title
		if custom || name == "" {
			name = "Update | " + r.Key + ":"
		}
		out = append(out, Command{ID: id, Name: name, Custom: custom, Rule: r})
	}

	for _, r := range cfg.Rules {
		add(r, false)
	}
	for _, r := range cfg.CustomRules {
		add(r, true)
	}
	return out
}

// FindCommand returns the command with the given id.
func FindCommand(cfg *models.Configuration, id string) (Command, bool) {
	for _, c := range Commands(cfg) {
		if c.ID == id {
			return c, true
		}
	}
	return Command{}, false
}
