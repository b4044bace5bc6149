package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
)

type memDocs struct {
	files  map[string]string
	writes int
	err    error
}

func (m *memDocs) Read(path string) (string, error) {
	text, ok := m.files[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return text, nil
}

func (m *memDocs) Write(path, text string) error {
	if m.err != nil {
		return m.err
	}
	m.writes++
	m.files[path] = text
	return nil
}

type fixedCursor struct {
	line int
	ok   bool
}

func (c fixedCursor) CursorLine(string) (int, bool) { return c.line, c.ok }

type recorder struct{ messages []string }

func (r *recorder) Show(msg string) { r.messages = append(r.messages, msg) }

type staticRules struct{ cfg *models.Configuration }

func (s staticRules) Snapshot() *models.Configuration { return s.cfg.Clone() }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	docs   *memDocs
	notes  *recorder
	clock  *clock
	d      *Dispatcher
	cursor *fixedCursor
}

func newEnv(t *testing.T, cfg *models.Configuration, files map[string]string) *env {
	t.Helper()
	e := &env{
		docs:   &memDocs{files: files},
		notes:  &recorder{},
		clock:  &clock{t: time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)},
		cursor: &fixedCursor{},
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	e.d = New(e.docs, staticRules{cfg: cfg},
		WithCursor(cursorFunc(func(string) (int, bool) { return e.cursor.line, e.cursor.ok })),
		WithNotifier(e.notes),
		WithLogger(logger),
		WithClock(e.clock.now),
	)
	return e
}

type cursorFunc func(string) (int, bool)

func (f cursorFunc) CursorLine(path string) (int, bool) { return f(path) }

func rule(key string, trigger models.Trigger, typ models.RuleType) models.Rule {
	return models.Rule{Key: key, Trigger: trigger, Type: typ, AutoApply: true}
}

func statuses(outcomes []models.UpdateOutcome) []models.Status {
	out := make([]models.Status, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Status
	}
	return out
}

func TestHandle_CountUpScenario(t *testing.T) {
	r := rule("views", models.TriggerFileOpened, models.RuleCountUp)
	r.Notify = true
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{r}}, map[string]string{
		"a.md": "---\nviews: 3\n---\nbody",
	})
	*e.cursor = fixedCursor{line: 3, ok: true}

	outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
	if len(outcomes) != 1 || !outcomes[0].Success() {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if got := e.docs.files["a.md"]; got != "---\nviews: 4\n---\nbody" {
		t.Errorf("document = %q", got)
	}
	o := outcomes[0]
	if o.OldValue != "3" || o.NewValue != "4" || o.Notice != "views: +1" {
		t.Errorf("outcome = %+v", o)
	}
	if diff := cmp.Diff([]string{"views: +1"}, e.notes.messages); diff != "" {
		t.Errorf("notices mismatch (-want +got):\n%s", diff)
	}
	last, ok := e.d.LastUpdate()
	if !ok || last.Key != "views" || last.Path != "a.md" {
		t.Errorf("LastUpdate = %+v, %v", last, ok)
	}
}

func TestHandle_NoNoticeWithoutNotify(t *testing.T) {
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)}},
		map[string]string{"a.md": "---\nviews: 3\n---\n"})
	e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
	if len(e.notes.messages) != 0 {
		t.Errorf("unexpected notices %v", e.notes.messages)
	}
}

func TestHandle_NoFrontmatter(t *testing.T) {
	text := "# Title\nviews: 3\n"
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)}},
		map[string]string{"a.md": text})

	outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
	if len(outcomes) != 1 || outcomes[0].Status != models.StatusNotFound || !errors.Is(outcomes[0].Err, apperr.ErrNotFound) {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if e.docs.files["a.md"] != text || e.docs.writes != 0 {
		t.Error("document must stay unchanged")
	}
	if len(e.notes.messages) != 0 {
		t.Errorf("automatic pass must stay silent, got %v", e.notes.messages)
	}
}

func TestHandle_IgnoredPrefix(t *testing.T) {
	cfg := &models.Configuration{
		Rules:       []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)},
		IgnorePaths: []string{"Templates"},
	}
	e := newEnv(t, cfg, map[string]string{"Templates/x.md": "---\nviews: 1\n---\n"})

	if outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "Templates/x.md"); len(outcomes) != 0 {
		t.Errorf("outcomes = %+v", outcomes)
	}
	if outcomes := e.d.Command(context.Background(), "views", "Templates/x.md"); len(outcomes) != 0 {
		t.Errorf("command outcomes = %+v", outcomes)
	}
	if e.docs.writes != 0 {
		t.Errorf("writes = %d, want 0", e.docs.writes)
	}
}

func TestHandle_CursorInsideFrontmatter(t *testing.T) {
	text := "---\nviews: 3\n---\nbody\n"
	for line := 0; line <= 2; line++ {
		e := newEnv(t, &models.Configuration{Rules: []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)}},
			map[string]string{"a.md": text})
		*e.cursor = fixedCursor{line: line, ok: true}

		outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
		if len(outcomes) != 1 || outcomes[0].Status != models.StatusUnsafe || !errors.Is(outcomes[0].Err, apperr.ErrUnsafe) {
			t.Errorf("line %d: outcomes = %+v", line, outcomes)
		}
		if e.docs.files["a.md"] != text {
			t.Errorf("line %d: document changed", line)
		}
	}
}

func TestHandle_NoCursorIsSafe(t *testing.T) {
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)}},
		map[string]string{"a.md": "---\nviews: 3\n---\n"})
	*e.cursor = fixedCursor{line: 1, ok: false}
	outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
	if len(outcomes) != 1 || !outcomes[0].Success() {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestHandle_SelectsTriggerAndAutoApply(t *testing.T) {
	manual := rule("manual", models.TriggerFileOpened, models.RuleCountUp)
	manual.AutoApply = false
	cfg := &models.Configuration{
		Rules: []models.Rule{
			rule("views", models.TriggerFileOpened, models.RuleCountUp),
			rule("edits", models.TriggerDocumentModified, models.RuleAppendDate),
		},
		CustomRules: []models.Rule{
			manual,
			rule("opened", models.TriggerFileOpened, models.RuleRefreshDate),
		},
	}
	e := newEnv(t, cfg, map[string]string{
		"a.md": "---\nviews: 1\nedits: [2024-03-01]\nmanual: 7\nopened: 2024-01-01\n---\n",
	})

	outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
	var keys []string
	for _, o := range outcomes {
		keys = append(keys, o.Key)
	}
	if diff := cmp.Diff([]string{"views", "opened"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	want := "---\nviews: 2\nedits: [2024-03-01]\nmanual: 7\nopened: 2024-03-06\n---\n"
	if got := e.docs.files["a.md"]; got != want {
		t.Errorf("document = %q, want %q", got, want)
	}
	if e.docs.writes != 2 {
		t.Errorf("writes = %d, want one per rule", e.docs.writes)
	}
}

func TestHandle_RejectsCommandTrigger(t *testing.T) {
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{rule("r", models.TriggerCommandInvoked, models.RuleCountUp)}},
		map[string]string{"a.md": "---\nr: 1\n---\n"})
	if outcomes := e.d.Handle(context.Background(), models.TriggerCommandInvoked, "a.md"); outcomes != nil {
		t.Errorf("outcomes = %+v", outcomes)
	}
	if outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, ""); outcomes != nil {
		t.Errorf("empty path outcomes = %+v", outcomes)
	}
}

func TestHandle_Debounce(t *testing.T) {
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)}},
		map[string]string{"a.md": "---\nviews: 1\n---\n", "b.md": "---\nviews: 1\n---\n"})
	ctx := context.Background()

	e.d.Handle(ctx, models.TriggerFileOpened, "a.md")
	e.clock.advance(40 * time.Millisecond)
	if outcomes := e.d.Handle(ctx, models.TriggerFileOpened, "a.md"); outcomes != nil {
		t.Errorf("second pass within window ran: %+v", outcomes)
	}
	if outcomes := e.d.Handle(ctx, models.TriggerFileOpened, "b.md"); len(outcomes) != 1 {
		t.Errorf("other document should not be debounced: %+v", outcomes)
	}
	e.clock.advance(DefaultDebounce)
	e.d.Handle(ctx, models.TriggerFileOpened, "a.md")

	if got := e.docs.files["a.md"]; got != "---\nviews: 3\n---\n" {
		t.Errorf("document = %q", got)
	}
}

func TestHandleChange_SkipsOwnWriteEcho(t *testing.T) {
	cfg := &models.Configuration{Rules: []models.Rule{
		rule("views", models.TriggerFileOpened, models.RuleCountUp),
		rule("edits", models.TriggerDocumentModified, models.RuleCountUp),
	}}
	e := newEnv(t, cfg, map[string]string{"a.md": "---\nviews: 1\nedits: 1\n---\n"})
	ctx := context.Background()

	e.d.Handle(ctx, models.TriggerFileOpened, "a.md")
	e.clock.advance(time.Second)
	if outcomes := e.d.HandleChange(ctx, "a.md"); outcomes != nil {
		t.Errorf("echo of own write was processed: %+v", outcomes)
	}

	e.docs.files["a.md"] += "typed by the user\n"
	e.clock.advance(time.Second)
	outcomes := e.d.HandleChange(ctx, "a.md")
	if diff := cmp.Diff([]models.Status{models.StatusUpdated}, statuses(outcomes)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestHandle_OpenThenModifiedBothRun(t *testing.T) {
	cfg := &models.Configuration{Rules: []models.Rule{
		rule("views", models.TriggerFileOpened, models.RuleCountUp),
		rule("edits", models.TriggerDocumentModified, models.RuleAppendDate),
		rule("words", models.TriggerDocumentModified, models.RuleWordCount),
	}}
	e := newEnv(t, cfg, map[string]string{
		"a.md": "---\nviews: 1\nedits: [2020-01-01]\nwords: 0\n---\nhello world\n",
	})
	ctx := context.Background()

	if opened := e.d.Handle(ctx, models.TriggerFileOpened, "a.md"); len(opened) != 1 {
		t.Fatalf("opened = %+v", opened)
	}
	modified := e.d.Handle(ctx, models.TriggerDocumentModified, "a.md")
	if diff := cmp.Diff([]models.Status{models.StatusUpdated, models.StatusUpdated}, statuses(modified)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	want := "---\nviews: 2\nedits: [2020-01-01, 2024-03-06]\nwords: 2\n---\nhello world\n"
	if got := e.docs.files["a.md"]; got != want {
		t.Errorf("document = %q, want %q", got, want)
	}

	if again := e.d.Handle(ctx, models.TriggerDocumentModified, "a.md"); again != nil {
		t.Errorf("repeat within window ran: %+v", again)
	}
}

func TestHandle_CanonicalPaths(t *testing.T) {
	r := rule("views", models.TriggerFileOpened, models.RuleCountUp)
	cmd := rule("ratings", models.TriggerCommandInvoked, models.RuleCountUp)
	cfg := &models.Configuration{
		Rules:       []models.Rule{r},
		CustomRules: []models.Rule{cmd},
		IgnorePaths: []string{"Templates"},
	}
	e := newEnv(t, cfg, map[string]string{
		"Templates/x.md": "---\nviews: 3\nratings: 1\n---\n",
		"a.md":           "---\nviews: 1\n---\n",
	})
	ctx := context.Background()

	for _, p := range []string{"./Templates/x.md", "Notes/../Templates/x.md", "Templates//x.md"} {
		if outcomes := e.d.Handle(ctx, models.TriggerFileOpened, p); outcomes != nil {
			t.Errorf("Handle(%q) = %+v", p, outcomes)
		}
		if outcomes := e.d.Command(ctx, "ratings", p); outcomes != nil {
			t.Errorf("Command(%q) = %+v", p, outcomes)
		}
	}
	if got := e.docs.files["Templates/x.md"]; got != "---\nviews: 3\nratings: 1\n---\n" {
		t.Errorf("ignored document changed: %q", got)
	}

	for _, p := range []string{"../a.md", "/a.md", ".", ""} {
		if outcomes := e.d.Handle(ctx, models.TriggerFileOpened, p); outcomes != nil {
			t.Errorf("Handle(%q) = %+v", p, outcomes)
		}
	}

	outcomes := e.d.Handle(ctx, models.TriggerFileOpened, "./a.md")
	if len(outcomes) != 1 || outcomes[0].Path != "a.md" || !outcomes[0].Success() {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes := e.d.Handle(ctx, models.TriggerFileOpened, "a.md"); outcomes != nil {
		t.Errorf("second spelling escaped the debounce: %+v", outcomes)
	}
}

func TestHandle_AppendDateIdempotent(t *testing.T) {
	r := rule("edits", models.TriggerDocumentModified, models.RuleAppendDate)
	r.Notify = true
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{r}},
		map[string]string{"a.md": "---\nedits: [2024-03-01]\n---\n"})
	ctx := context.Background()

	first := e.d.Handle(ctx, models.TriggerDocumentModified, "a.md")
	if len(first) != 1 || first[0].Notice != "edits: +2024-03-06" {
		t.Fatalf("first = %+v", first)
	}
	e.docs.files["a.md"] += "more text\n"
	e.clock.advance(time.Second)
	second := e.d.Handle(ctx, models.TriggerDocumentModified, "a.md")
	if diff := cmp.Diff([]models.Status{models.StatusNoOp}, statuses(second)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if len(e.notes.messages) != 1 {
		t.Errorf("notices = %v", e.notes.messages)
	}
	if got := e.docs.files["a.md"]; got != "---\nedits: [2024-03-01, 2024-03-06]\n---\nmore text\n" {
		t.Errorf("document = %q", got)
	}
}

func TestHandle_WordCountNotice(t *testing.T) {
	r := rule("words", models.TriggerDocumentModified, models.RuleWordCount)
	r.Notify = true
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{r}},
		map[string]string{"a.md": "---\nwords: 2\n---\nHello, world! It's a test."})

	outcomes := e.d.Handle(context.Background(), models.TriggerDocumentModified, "a.md")
	if len(outcomes) != 1 || outcomes[0].Notice != "words: 2 -> 5" {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if got := e.docs.files["a.md"]; got != "---\nwords: 5\n---\nHello, world! It's a test." {
		t.Errorf("document = %q", got)
	}
}

func TestHandle_CreateIfMissingInserts(t *testing.T) {
	r := rule("views", models.TriggerFileOpened, models.RuleCountUp)
	r.CreateIfMissing = true
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{r}},
		map[string]string{"a.md": "---\ntitle: T\n---\nbody\n", "bare.md": "body\n"})

	outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
	if len(outcomes) != 1 || !outcomes[0].Success() {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if got := e.docs.files["a.md"]; got != "---\ntitle: T\nviews: 1\n---\nbody\n" {
		t.Errorf("document = %q", got)
	}

	outcomes = e.d.Handle(context.Background(), models.TriggerFileOpened, "bare.md")
	if diff := cmp.Diff([]models.Status{models.StatusNotFound}, statuses(outcomes)); diff != "" {
		t.Errorf("a document without a block never gets one (-want +got):\n%s", diff)
	}
}

func TestHandle_EmptyValueNeedsAutoOrCreate(t *testing.T) {
	r := rule("views", models.TriggerFileOpened, models.RuleCountUp)
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{r}},
		map[string]string{"a.md": "---\nviews:\n---\n"})
	outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
	if len(outcomes) != 1 || !outcomes[0].Success() || e.docs.files["a.md"] != "---\nviews: 1\n---\n" {
		t.Errorf("auto rule should establish a baseline: %+v %q", outcomes, e.docs.files["a.md"])
	}
}

func TestHandle_WriteFailure(t *testing.T) {
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)}},
		map[string]string{"a.md": "---\nviews: 1\n---\n"})
	e.docs.err = errors.New("disk full")
	outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "a.md")
	if diff := cmp.Diff([]models.Status{models.StatusFailed}, statuses(outcomes)); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	if _, ok := e.d.LastUpdate(); ok {
		t.Error("failed write must not be recorded as last update")
	}
}

func TestHandle_MissingDocument(t *testing.T) {
	e := newEnv(t, &models.Configuration{Rules: []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)}},
		map[string]string{})
	outcomes := e.d.Handle(context.Background(), models.TriggerFileOpened, "gone.md")
	if len(outcomes) != 1 || !errors.Is(outcomes[0].Err, apperr.ErrNotFound) {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestCommand(t *testing.T) {
	ratings := models.Rule{Key: "ratings", Trigger: models.TriggerCommandInvoked, Type: models.RuleCountUp, Notify: true}
	cfg := &models.Configuration{
		Rules:       []models.Rule{rule("views", models.TriggerFileOpened, models.RuleCountUp)},
		CustomRules: []models.Rule{ratings},
	}
	e := newEnv(t, cfg, map[string]string{
		"a.md": "---\nviews: 1\nratings: 4\n---\n",
		"b.md": "---\nviews: 1\n---\n",
	})
	ctx := context.Background()

	outcomes := e.d.Command(ctx, "ratings", "a.md")
	if len(outcomes) != 1 || !outcomes[0].Success() {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if got := e.docs.files["a.md"]; got != "---\nviews: 1\nratings: 5\n---\n" {
		t.Errorf("document = %q", got)
	}

	// Commands are never debounced.
	if outcomes := e.d.Command(ctx, "ratings", "a.md"); len(outcomes) != 1 || outcomes[0].NewValue != "6" {
		t.Errorf("second command = %+v", outcomes)
	}

	outcomes = e.d.Command(ctx, "ratings", "b.md")
	if len(outcomes) != 1 || outcomes[0].Status != models.StatusNotFound {
		t.Errorf("missing key outcomes = %+v", outcomes)
	}
	want := []string{"ratings: +1", "ratings: +1", "Not Found Metadata key\nratings"}
	if diff := cmp.Diff(want, e.notes.messages); diff != "" {
		t.Errorf("notices mismatch (-want +got):\n%s", diff)
	}

	if outcomes := e.d.Command(ctx, "views", "a.md"); outcomes != nil {
		t.Errorf("automatic rule ran as command: %+v", outcomes)
	}
}

func TestCommand_EmptyValueWithoutAutoOrCreate(t *testing.T) {
	ratings := models.Rule{Key: "ratings", Trigger: models.TriggerCommandInvoked, Type: models.RuleCountUp}
	e := newEnv(t, &models.Configuration{CustomRules: []models.Rule{ratings}},
		map[string]string{"a.md": "---\nratings:\n---\n"})
	outcomes := e.d.Command(context.Background(), "ratings", "a.md")
	if len(outcomes) != 1 || outcomes[0].Status != models.StatusNotFound || e.docs.writes != 0 {
		t.Errorf("outcomes = %+v, writes = %d", outcomes, e.docs.writes)
	}
}

func TestNotice(t *testing.T) {
	now := time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		typ      models.RuleType
		old, new string
		want     string
	}{
		{models.RuleCountUp, "1", "2", "k: +1"},
		{models.RuleCountDown, "2", "1", "k: -1"},
		{models.RuleAppendDate, "", "[2024-03-06]", "k: +2024-03-06"},
		{models.RuleRefreshDate, "2024-03-01", "2024-03-06", "k: 2024-03-06"},
		{models.RuleWordCount, "12", "15", "k: 12 -> 15"},
		{models.RuleWordCount, "1", "15", "k: 15"},
		{models.RuleWordCount, "", "15", "k: 15"},
	}
	for _, tt := range tests {
		if got := Notice(models.Rule{Key: "k", Type: tt.typ}, tt.old, tt.new, now); got != tt.want {
			t.Errorf("Notice(%s) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
