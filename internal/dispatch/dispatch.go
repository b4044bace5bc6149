// Package dispatch turns trigger events into frontmatter updates. For every
// rule bound to the trigger it locates the frontmatter block, computes the
// next value, and writes it back, one rule at a time in configuration order.
//
// Failures never leave the dispatcher: each rule application yields an
// UpdateOutcome whose Status says what happened.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/checksum"
	"github.com/starford/tally/internal/frontmatter"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/rules"
	"github.com/starford/tally/internal/storage"
	"github.com/starford/tally/internal/transform"
)

// DefaultDebounce is the window in which repeated passes of one trigger for
// the same document collapse into one.
const DefaultDebounce = 100 * time.Millisecond

// Documents reads and writes document text.
type Documents interface {
	Read(path string) (string, error)
	Write(path, text string) error
}

// Cursor reports the line of the edit cursor in the editor showing path.
// It returns false when no editable view shows the document.
type Cursor interface {
	CursorLine(path string) (int, bool)
}

// Notifier shows a message to the user. Delivery is fire-and-forget.
type Notifier interface {
	Show(message string)
}

// RuleSource supplies the current configuration.
type RuleSource interface {
	Snapshot() *models.Configuration
}

// LastUpdate records the most recent successful rule application.
type LastUpdate struct {
	Key  string    `json:"key"`
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// Dispatcher applies rules to documents in response to triggers.
type Dispatcher struct {
	docs     Documents
	rules    RuleSource
	cursor   Cursor
	notifier Notifier
	logger   *slog.Logger
	window   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastPass map[passKey]time.Time
	written  map[string]string
	last     *LastUpdate
}

// passKey scopes the debounce to one trigger on one document, so a burst of
// modify events collapses while an open followed by an edit still runs both.
type passKey struct {
	path    string
	trigger models.Trigger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCursor sets the cursor collaborator used by the frontmatter guard.
func WithCursor(c Cursor) Option {
	return func(d *Dispatcher) { d.cursor = c }
}

// WithNotifier sets the notification surface.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDebounce sets the per-document debounce window. Zero disables it.
func WithDebounce(window time.Duration) Option {
	return func(d *Dispatcher) { d.window = window }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(docs Documents, src RuleSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		docs:     docs,
		rules:    src,
		logger:   slog.Default(),
		window:   DefaultDebounce,
		now:      time.Now,
		lastPass: make(map[passKey]time.Time),
		written:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle runs every auto-applied rule bound to an automatic trigger against
// the document at path. Paths are reduced to their canonical form first so
// that ignore prefixes and per-document state see one spelling.
func (d *Dispatcher) Handle(ctx context.Context, trigger models.Trigger, path string) []models.UpdateOutcome {
	return d.handle(ctx, trigger, path, false)
}

// HandleChange runs a document-modified pass for a change observed on disk.
// The pass is skipped when the text is still what the dispatcher last wrote
// to path, so its own writes do not feed back as edits.
func (d *Dispatcher) HandleChange(ctx context.Context, path string) []models.UpdateOutcome {
	return d.handle(ctx, models.TriggerDocumentModified, path, true)
}

func (d *Dispatcher) handle(ctx context.Context, trigger models.Trigger, path string, observed bool) []models.UpdateOutcome {
	if !trigger.Automatic() {
		return nil
	}
	path, err := storage.CleanPath(path)
	if err != nil {
		d.logger.Debug("dispatch: rejected path", slog.String("error", err.Error()))
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.rules.Snapshot()
	if cfg.Ignored(path) {
		d.logger.Debug("dispatch: ignored path", slog.String("path", path), slog.String("trigger", string(trigger)))
		return nil
	}

	if observed && d.isOwnWrite(path) {
		d.logger.Debug("dispatch: own write", slog.String("path", path))
		return nil
	}

	now := d.now()
	key := passKey{path: path, trigger: trigger}
	if last, ok := d.lastPass[key]; ok && d.window > 0 && now.Sub(last) < d.window {
		d.logger.Debug("dispatch: debounced", slog.String("path", path), slog.String("trigger", string(trigger)))
		return nil
	}
	d.lastPass[key] = now

	var outcomes []models.UpdateOutcome
	for _, r := range cfg.AllRules() {
		if r.Trigger != trigger || !r.AutoApply {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, d.apply(r, path, false))
	}
	return outcomes
}

// Command runs the single rule bound to command id against path, whether or
// not the rule is auto-applied. It returns nil when no such command exists.
func (d *Dispatcher) Command(ctx context.Context, id, path string) []models.UpdateOutcome {
	if ctx.Err() != nil {
		return nil
	}
	path, err := storage.CleanPath(path)
	if err != nil {
		d.logger.Debug("dispatch: rejected path", slog.String("error", err.Error()))
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.rules.Snapshot()
	if cfg.Ignored(path) {
		d.logger.Debug("dispatch: ignored path", slog.String("path", path), slog.String("command", id))
		return nil
	}
	cmd, ok := rules.FindCommand(cfg, id)
	if !ok {
		d.logger.Debug("dispatch: unknown command", slog.String("command", id))
		return nil
	}
	return []models.UpdateOutcome{d.apply(cmd.Rule, path, true)}
}

// LastUpdate returns the most recent successful update.
func (d *Dispatcher) LastUpdate() (LastUpdate, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return LastUpdate{}, false
	}
	return *d.last, true
}

func (d *Dispatcher) isOwnWrite(path string) bool {
	sum, ok := d.written[path]
	if !ok {
		return false
	}
	text, err := d.docs.Read(path)
	if err != nil {
		return false
	}
	return checksum.String(text) == sum
}

// apply runs one rule against the current text of path. Every gate that
// fails ends the attempt with a non-updated outcome and no side effects.
func (d *Dispatcher) apply(r models.Rule, path string, byCommand bool) models.UpdateOutcome {
	now := d.now()
	out := models.UpdateOutcome{Rule: r, Key: r.Key, Path: path, At: now}
	log := d.logger.With(slog.String("path", path), slog.String("key", r.Key), slog.String("type", string(r.Type)))

	skip := func(status models.Status, err error) models.UpdateOutcome {
		out.Status = status
		out.Err = err
		log.Debug("dispatch: skipped", slog.String("status", string(status)), slog.String("reason", err.Error()))
		return out
	}
	notFound := func(err error) models.UpdateOutcome {
		if byCommand {
			d.show("Not Found Metadata key\n" + r.Key)
		}
		return skip(models.StatusNotFound, err)
	}

	text, err := d.docs.Read(path)
	if err != nil {
		return skip(models.StatusNotFound, fmt.Errorf("dispatch: read: %v: %w", err, apperr.ErrNotFound))
	}

	block, ok := frontmatter.Locate(text)
	if !ok {
		return notFound(fmt.Errorf("dispatch: no frontmatter: %w", apperr.ErrNotFound))
	}

	field, present := block.Lookup(r.Key)
	if !present && !r.CreateIfMissing {
		return notFound(fmt.Errorf("dispatch: key %q: %w", r.Key, apperr.ErrNotFound))
	}
	hasValue := present && field.Value != ""
	if !hasValue && !r.AutoApply && !r.CreateIfMissing {
		return skip(models.StatusNotFound, fmt.Errorf("dispatch: key %q has no value: %w", r.Key, apperr.ErrNotFound))
	}
	out.OldValue = field.Value

	res, err := transform.Run(r.Type, transform.Input{
		Current: field.Value,
		Present: hasValue,
		Today:   now,
		Body:    block.Body(text),
	})
	if err != nil {
		return skip(models.StatusFailed, err)
	}
	if !res.Changed {
		return skip(models.StatusNoOp, apperr.ErrNoOp)
	}
	if res.Reset {
		log.Warn("dispatch: unparseable value reset to baseline", slog.String("value", field.Value))
	}

	if d.cursor != nil {
		if line, ok := d.cursor.CursorLine(path); ok && block.Contains(line) {
			return skip(models.StatusUnsafe, apperr.ErrUnsafe)
		}
	}

	var updated string
	if present {
		updated, err = frontmatter.Apply(text, block, r.Key, res.NewValue)
	} else {
		updated, err = frontmatter.Insert(text, block, r.Key, res.NewValue)
	}
	if err != nil {
		return skip(models.StatusFailed, err)
	}
	if err := d.docs.Write(path, updated); err != nil {
		log.Warn("dispatch: write failed", slog.String("error", err.Error()))
		return skip(models.StatusFailed, err)
	}
	d.written[path] = checksum.String(updated)
	d.last = &LastUpdate{Key: r.Key, Path: path, At: now}

	out.Status = models.StatusUpdated
	out.NewValue = res.NewValue
	out.Notice = Notice(r, field.Value, res.NewValue, now)
	log.Info("dispatch: updated", slog.String("old", field.Value), slog.String("new", res.NewValue))
	if r.Notify {
		d.show(out.Notice)
	}
	return out
}

func (d *Dispatcher) show(msg string) {
	if d.notifier != nil {
		d.notifier.Show(msg)
	}
}

// Notice composes the notification text for a successful update made at now.
func Notice(r models.Rule, oldValue, newValue string, now time.Time) string {
	switch r.Type {
	case models.RuleCountUp:
		return r.Key + ": +1"
	case models.RuleCountDown:
		return r.Key + ": -1"
	case models.RuleAppendDate:
		return r.Key + ": +" + transform.Today(now)
	case models.RuleWordCount:
		if old, err := frontmatter.Int(oldValue); err == nil && old > 1 {
			return fmt.Sprintf("%s: %d -> %s", r.Key, old, newValue)
		}
		return r.Key + ": " + newValue
	default:
		return r.Key + ": " + newValue
	}
}
