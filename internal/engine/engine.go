// Package engine wires the editor session, the trigger dispatcher and the
// rule store into the operations the host adapters expose.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/dispatch"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/rules"
	"github.com/starford/tally/internal/storage"
	"github.com/starford/tally/internal/workspace"
)

// Events receives what the engine wants the user to see.
type Events interface {
	PublishOutcomes(outcomes []models.UpdateOutcome)
	PublishConfig(cfg *models.Configuration)
}

// Service coordinates the session, dispatcher and rule manager.
type Service struct {
	session *workspace.Session
	disp    *dispatch.Dispatcher
	rules   *rules.Manager
	events  Events
	logger  *slog.Logger
}

// New creates a Service. events may be nil.
func New(session *workspace.Session, disp *dispatch.Dispatcher, mgr *rules.Manager, events Events, logger *slog.Logger) *Service {
	return &Service{session: session, disp: disp, rules: mgr, events: events, logger: logger}
}

// Open makes path the active document and fires file-opened for it. The
// returned path is the canonical form the session tracks.
func (s *Service) Open(ctx context.Context, path string, cursorLine *int) (string, []models.UpdateOutcome, error) {
	path, err := s.session.Open(ctx, path, cursorLine)
	if err != nil {
		return "", nil, err
	}
	return path, s.handle(ctx, models.TriggerFileOpened, path), nil
}

// Close ends the editor session for path, or the active document when path
// is empty.
func (s *Service) Close(path string) (string, error) {
	path, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	return path, s.session.Close(path)
}

// Observe handles an on-disk change of path reported by the file watcher.
// Rewrites made by the dispatcher itself are not treated as edits.
func (s *Service) Observe(ctx context.Context, path string) []models.UpdateOutcome {
	outcomes := s.disp.HandleChange(ctx, path)
	s.publish(outcomes)
	return outcomes
}

// Documents lists the documents under dir, or the whole vault when dir is
// empty.
func (s *Service) Documents(ctx context.Context, dir string) ([]models.DocumentMetadata, error) {
	return s.session.List(ctx, dir)
}

// SetCursor moves the cursor of the active document.
func (s *Service) SetCursor(line *int) error {
	return s.session.SetCursor(line)
}

// Fire runs an automatic trigger against path, or the active document when
// path is empty. It returns the canonical path the trigger ran against.
func (s *Service) Fire(ctx context.Context, trigger models.Trigger, path string) (string, []models.UpdateOutcome, error) {
	if !trigger.Automatic() {
		return "", nil, fmt.Errorf("engine: %q: %w", trigger, apperr.ErrBadTrigger)
	}
	path, err := s.resolve(path)
	if err != nil {
		return "", nil, err
	}
	return path, s.handle(ctx, trigger, path), nil
}

// RunCommand invokes the command id against path, or the active document
// when path is empty. It returns the canonical path the command ran against.
func (s *Service) RunCommand(ctx context.Context, id, path string) (string, []models.UpdateOutcome, error) {
	if _, ok := rules.FindCommand(s.rules.Snapshot(), id); !ok {
		return "", nil, fmt.Errorf("engine: command %q: %w", id, apperr.ErrNotFound)
	}
	path, err := s.resolve(path)
	if err != nil {
		return "", nil, err
	}
	outcomes := s.disp.Command(ctx, id, path)
	s.publish(outcomes)
	return path, outcomes, nil
}

// Commands lists the registered commands.
func (s *Service) Commands() []rules.Command {
	return rules.Commands(s.rules.Snapshot())
}

// Config returns the current configuration.
func (s *Service) Config() *models.Configuration {
	return s.rules.Snapshot()
}

// ReplaceConfig swaps in cfg after coercion and validation.
func (s *Service) ReplaceConfig(ctx context.Context, cfg *models.Configuration) (*models.Configuration, error) {
	return s.changed(s.rules.Replace(ctx, cfg))
}

// AddRule appends r to the custom rules, or the new-rule template when r is nil.
func (s *Service) AddRule(ctx context.Context, r *models.Rule) (*models.Configuration, error) {
	rule := rules.NewCustomRule()
	if r != nil {
		rule = *r
	}
	return s.changed(s.rules.AddCustomRule(ctx, rule))
}

// RemoveRule deletes the custom rule at index i.
func (s *Service) RemoveRule(ctx context.Context, i int) (*models.Configuration, error) {
	return s.changed(s.rules.RemoveCustomRule(ctx, i))
}

// SetIgnorePaths replaces the ignored path prefixes.
func (s *Service) SetIgnorePaths(ctx context.Context, paths []string) (*models.Configuration, error) {
	return s.changed(s.rules.SetIgnorePaths(ctx, paths))
}

// LastUpdate returns the most recent successful update.
func (s *Service) LastUpdate() (dispatch.LastUpdate, bool) {
	return s.disp.LastUpdate()
}

// Document returns path with its decoded frontmatter, or the active
// document when path is empty.
func (s *Service) Document(ctx context.Context, path string) (*workspace.DocumentDetail, error) {
	path, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return s.session.Document(ctx, path)
}

// Active returns the active document path.
func (s *Service) Active() string {
	return s.session.Active()
}

// resolve returns the canonical form of path, falling back to the active
// document when path is empty.
func (s *Service) resolve(path string) (string, error) {
	if path != "" {
		return storage.CleanPath(path)
	}
	if active := s.session.Active(); active != "" {
		return active, nil
	}
	return "", fmt.Errorf("engine: no active document: %w", apperr.ErrNotFound)
}

func (s *Service) handle(ctx context.Context, trigger models.Trigger, path string) []models.UpdateOutcome {
	outcomes := s.disp.Handle(ctx, trigger, path)
	s.publish(outcomes)
	return outcomes
}

func (s *Service) publish(outcomes []models.UpdateOutcome) {
	if s.events != nil && len(outcomes) > 0 {
		s.events.PublishOutcomes(outcomes)
	}
}

func (s *Service) changed(cfg *models.Configuration, err error) (*models.Configuration, error) {
	if err != nil {
		return nil, err
	}
	s.logger.Info("engine: configuration changed",
		slog.Int("rules", len(cfg.Rules)),
		slog.Int("custom_rules", len(cfg.CustomRules)))
	if s.events != nil {
		s.events.PublishConfig(cfg)
	}
	return cfg, nil
}
