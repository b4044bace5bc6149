package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
)

// Manager holds the single live Configuration. It is loaded once at start
// and persisted on every mutation.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu  sync.RWMutex
	cfg *models.Configuration
}

// NewManager creates a Manager over store. The configuration starts as the
// defaults until Load is called.
func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger, cfg: Defaults()}
}

// Load merges the persisted document over the defaults. Rules whose trigger
// or type cannot be coerced are dropped with a warning.
func (m *Manager) Load(ctx context.Context) error {
	doc, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	cfg := Merge(Defaults(), doc)
	for _, dropErr := range Normalize(cfg) {
		m.logger.Warn("rules: dropped invalid rule", slog.String("error", dropErr.Error()))
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.logger.Info("rules: loaded",
		slog.Int("rules", len(cfg.Rules)),
		slog.Int("custom_rules", len(cfg.CustomRules)),
		slog.Int("ignore_paths", len(cfg.IgnorePaths)))
	return nil
}

// Snapshot returns a copy of the current configuration.
func (m *Manager) Snapshot() *models.Configuration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Clone()
}

// Update applies fn to a copy of the configuration, validates the result,
// persists it, and only then makes it current.
func (m *Manager) Update(ctx context.Context, fn func(cfg *models.Configuration) error) (*models.Configuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	for i := range next.Rules {
		next.Rules[i] = CoerceRule(next.Rules[i])
	}
	for i := range next.CustomRules {
		next.CustomRules[i] = CoerceRule(next.CustomRules[i])
	}
	if err := Validate(next); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, NewDocument(next)); err != nil {
		return nil, fmt.Errorf("rules: persist: %w", err)
	}
	m.cfg = next
	return next.Clone(), nil
}

// Replace swaps in cfg wholesale.
func (m *Manager) Replace(ctx context.Context, cfg *models.Configuration) (*models.Configuration, error) {
	return m.Update(ctx, func(cur *models.Configuration) error {
		*cur = *cfg.Clone()
		return nil
	})
}

// Import replaces the configuration with doc merged over the defaults.
// Rules that cannot be coerced are dropped with a warning.
func (m *Manager) Import(ctx context.Context, doc *Document) (*models.Configuration, error) {
	cfg := Merge(Defaults(), doc)
	for _, dropErr := range Normalize(cfg) {
		m.logger.Warn("rules: import dropped invalid rule", slog.String("error", dropErr.Error()))
	}
	return m.Replace(ctx, cfg)
}

// AddCustomRule appends r (sanitized) to the custom rules.
func (m *Manager) AddCustomRule(ctx context.Context, r models.Rule) (*models.Configuration, error) {
	r.Key = SanitizeKey(r.Key)
	return m.Update(ctx, func(cfg *models.Configuration) error {
		cfg.CustomRules = append(cfg.CustomRules, r)
		return nil
	})
}

// RemoveCustomRule deletes the custom rule at index i.
func (m *Manager) RemoveCustomRule(ctx context.Context, i int) (*models.Configuration, error) {
	return m.Update(ctx, func(cfg *models.Configuration) error {
		if i < 0 || i >= len(cfg.CustomRules) {
			return fmt.Errorf("rules: custom rule %d: %w", i, apperr.ErrNotFound)
		}
		cfg.CustomRules = append(cfg.CustomRules[:i], cfg.CustomRules[i+1:]...)
		return nil
	})
}

// SetIgnorePaths replaces the ignored path prefixes.
func (m *Manager) SetIgnorePaths(ctx context.Context, paths []string) (*models.Configuration, error) {
	return m.Update(ctx, func(cfg *models.Configuration) error {
		cfg.IgnorePaths = ParseIgnorePaths(strings.Join(paths, "\n"))
		return nil
	})
}

// Close releases the backing store.
func (m *Manager) Close() error {
	return m.store.Close()
}
