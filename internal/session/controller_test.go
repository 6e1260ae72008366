package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mrwolf/her-server/internal/catalog"
	"github.com/mrwolf/her-server/internal/message"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/selector"
	"github.com/mrwolf/her-server/internal/themes"
)

type fakeSelector struct {
	baseline []models.Question
	result   selector.Result
	err      error
	release  chan struct{}
}

func (f *fakeSelector) Baseline(_ selector.Request, freq themes.FrequencyMap) []models.Question {
	qs := append([]models.Question(nil), f.baseline...)
	return themes.PartitionByPriority(qs, freq.Priority())
}

func (f *fakeSelector) Select(ctx context.Context, _ selector.Request) (selector.Result, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return selector.Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeWriter struct {
	body string
}

func (f *fakeWriter) Generate(_ context.Context, mood, summary, _ string) message.Message {
	return message.Message{Title: "note for " + mood, Body: f.body}
}

func (f *fakeWriter) Offline(mood, summary string) message.Message {
	return message.Message{Title: "note for " + mood, Body: "offline: " + summary, Offline: true}
}

type fakeSaver struct {
	mu      sync.Mutex
	records []models.ConversationRecord
	err     error
}

func (f *fakeSaver) AppendConversation(_ context.Context, rec *models.ConversationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, *rec)
	return nil
}

// slowSaver holds every save until release is closed
type slowSaver struct {
	release     chan struct{}
	mu          sync.Mutex
	hadDeadline bool
	saved       int
}

func (f *slowSaver) AppendConversation(ctx context.Context, _ *models.ConversationRecord) error {
	_, ok := ctx.Deadline()
	select {
	case <-f.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hadDeadline = ok
	f.saved++
	return nil
}

type fakeThemes struct {
	freq themes.FrequencyMap
}

func (f *fakeThemes) Themes(context.Context, string) (themes.FrequencyMap, error) {
	return f.freq, nil
}

func baselineQuestions() []models.Question {
	return []models.Question{
		{ID: "b0", Category: models.CategoryMakeOrBreak, Prompt: "Zero?"},
		{ID: "b1", Category: models.CategorySafety, Prompt: "One?"},
		{ID: "b2", Category: models.CategorySupport, Prompt: "Two?"},
		{ID: "b3", Category: models.CategoryPatterns, Prompt: "Three?"},
		{ID: "b4", Category: models.CategoryFutureSelf, Prompt: "Four?"},
		{ID: "b5", Category: models.CategoryBoundaries, Prompt: "Five?"},
	}
}

func newTestController(sel *fakeSelector, saver Saver) *Controller {
	if sel.err == nil && sel.result.Questions == nil {
		sel.err = selector.ErrExhausted
	}
	return NewController(Options{
		UserID:   "u1",
		Selector: sel,
		Messages: &fakeWriter{body: "You are doing what you can."},
		Saver:    saver,
		Clock:    clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)),
		Rand:     rand.NewPCG(3, 4),
	})
}

func waitSettled(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Settled():
	case <-time.After(2 * time.Second):
		t.Fatal("background selection did not settle")
	}
}

func questionIDs(qs []models.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func TestStartRequiresPick(t *testing.T) {
	c := newTestController(&fakeSelector{}, nil)
	if err := c.Start(context.Background(), Pick{Emotions: []string{" "}}); !errors.Is(err, ErrEmptyPick) {
		t.Errorf("expected ErrEmptyPick, got %v", err)
	}
	if c.View().State != Idle {
		t.Error("controller should stay idle")
	}
}

func TestStartRejectsUnknownMood(t *testing.T) {
	c := newTestController(&fakeSelector{}, nil)
	if err := c.Start(context.Background(), Pick{Mood: "bored"}); !errors.Is(err, ErrUnknownMood) {
		t.Errorf("expected ErrUnknownMood, got %v", err)
	}
	if c.View().State != Idle {
		t.Error("a rejected pick should not start a session")
	}
}

func TestTierResultAppliedAtStepZero(t *testing.T) {
	remote := []models.Question{{ID: "r1", Prompt: "Remote one?"}, {ID: "r2", Prompt: "Remote two?"}}
	sel := &fakeSelector{baseline: baselineQuestions(), result: selector.Result{Questions: remote, Source: "remote"}}
	c := newTestController(sel, nil)

	if err := c.Start(context.Background(), Pick{Mood: "Anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	v := c.View()
	if !reflect.DeepEqual(questionIDs(v.Questions), []string{"r1", "r2"}) {
		t.Errorf("questions = %v, want remote list", questionIDs(v.Questions))
	}
	if v.Label != "anger" || v.Current.ID != "r1" {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestLateTierResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	sel := &fakeSelector{
		baseline: baselineQuestions(),
		result:   selector.Result{Questions: []models.Question{{ID: "late", Prompt: "Late?"}}},
		release:  release,
	}
	c := newTestController(sel, nil)

	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, answer := range []string{"first", "", "third"} {
		if err := c.Advance(answer); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	before := c.View()
	if before.Step != 3 {
		t.Fatalf("expected step 3, got %d", before.Step)
	}

	close(release)
	waitSettled(t, c)

	after := c.View()
	if !reflect.DeepEqual(before.Questions, after.Questions) || after.Step != 3 {
		t.Errorf("late result changed the session: %v -> %v", questionIDs(before.Questions), questionIDs(after.Questions))
	}
}

func TestBackDiscardsSession(t *testing.T) {
	release := make(chan struct{})
	sel := &fakeSelector{
		baseline: baselineQuestions(),
		result:   selector.Result{Questions: []models.Question{{ID: "late", Prompt: "Late?"}}},
		release:  release,
	}
	c := newTestController(sel, nil)
	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	settled := c.Settled()
	c.Back()
	close(release)
	<-settled

	v := c.View()
	if v.State != Idle || v.Questions != nil {
		t.Errorf("expected idle without a session, got %+v", v)
	}
	if err := c.Advance("x"); !errors.Is(err, ErrNotAnswering) {
		t.Errorf("expected ErrNotAnswering, got %v", err)
	}
}

func TestEmptyAnswersNotStored(t *testing.T) {
	c := newTestController(&fakeSelector{baseline: baselineQuestions()}, nil)
	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	for _, blank := range []string{"", "   ", "\n\t"} {
		if err := c.Advance(blank); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	v := c.View()
	if len(v.Answers) != 0 {
		t.Errorf("blank answers stored: %v", v.Answers)
	}
	if v.Total != 6 || v.Step != 3 {
		t.Errorf("blank answers should not adapt the list: total=%d step=%d", v.Total, v.Step)
	}

	if err := c.Advance("  steady now  "); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := c.View().Answers["b3"]; got != "steady now" {
		t.Errorf("answer should be trimmed, got %q", got)
	}
}

func TestReadaptationKeepsAnsweredPrefix(t *testing.T) {
	c := newTestController(&fakeSelector{baseline: baselineQuestions()}, nil)
	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	answers := []string{"my partner and I keep fighting", "I feel so alone", "my grandmother passed away", "the rent is late"}
	for _, answer := range answers {
		before := c.View()
		if err := c.Advance(answer); err != nil {
			t.Fatalf("advance: %v", err)
		}
		after := c.View()

		for i := 0; i <= before.Step; i++ {
			if before.Questions[i].ID != after.Questions[i].ID {
				t.Errorf("index %d changed from %s to %s", i, before.Questions[i].ID, after.Questions[i].ID)
			}
		}

		seen := map[string]bool{}
		for _, id := range questionIDs(after.Questions) {
			if seen[id] {
				t.Errorf("duplicate id %s", id)
			}
			seen[id] = true
		}
	}

	v := c.View()
	if v.Total != 6+len(answers) {
		t.Errorf("expected one follow-up per answer, total=%d", v.Total)
	}
}

func TestReadaptationFollowUpAndPriority(t *testing.T) {
	c := newTestController(&fakeSelector{baseline: baselineQuestions()}, nil)
	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	if err := c.Advance("since the divorce nothing feels right"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	v := c.View()

	fu := v.Questions[1]
	if !strings.HasPrefix(fu.ID, "fu_") || fu.Category != models.CategoryPatterns {
		t.Errorf("unexpected follow-up %+v", fu)
	}
	bank := catalog.Default().FollowUps(themes.Relationship)
	if !containsString(bank, fu.Prompt) {
		t.Errorf("follow-up %q not from the relationship bank", fu.Prompt)
	}

	// patterns and boundaries move ahead of the rest of the tail
	want := []string{"b3", "b5", "b1", "b2", "b4"}
	if got := questionIDs(v.Questions[2:]); !reflect.DeepEqual(got, want) {
		t.Errorf("tail = %v, want %v", got, want)
	}
}

func TestFollowUpSkippedWhenNextPromptMatches(t *testing.T) {
	cat, err := catalog.Parse([]byte("follow_ups:\n  general: [\"Same?\"]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sel := &fakeSelector{baseline: []models.Question{
		{ID: "a", Prompt: "First?"},
		{ID: "b", Prompt: "Same?"},
	}}
	sel.err = selector.ErrExhausted
	c := NewController(Options{UserID: "u1", Selector: sel, Messages: &fakeWriter{}, Catalog: cat})

	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)
	if err := c.Advance("nothing special"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := questionIDs(c.View().Questions); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("questions = %v, follow-up should have been skipped", got)
	}
}

func TestGenerationGate(t *testing.T) {
	for n := 1; n <= 9; n++ {
		for step := 0; step < n; step++ {
			want := step >= n/2
			if GenerationAllowed(step, n) != want {
				t.Errorf("GenerationAllowed(%d, %d) != %v", step, n, want)
			}
		}
	}

	c := newTestController(&fakeSelector{baseline: baselineQuestions()}, nil)
	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	for step := 0; step < 3; step++ {
		if c.View().CanGenerate {
			t.Errorf("generation should be locked at step %d of 6", step)
		}
		if _, err := c.Generate(context.Background()); !errors.Is(err, ErrGenerationLocked) {
			t.Errorf("step %d: expected ErrGenerationLocked, got %v", step, err)
		}
		if err := c.Skip(); err != nil {
			t.Fatalf("skip: %v", err)
		}
	}
	if !c.View().CanGenerate {
		t.Error("generation should unlock at step 3 of 6")
	}

	for c.View().State == Answering {
		if err := c.Skip(); err != nil {
			t.Fatalf("skip: %v", err)
		}
	}
	if v := c.View(); v.State != ReadyToGenerate || !v.CanGenerate || v.Current != nil {
		t.Errorf("unexpected view after the last question %+v", v)
	}
}

func TestGenerateSavesConversation(t *testing.T) {
	saver := &fakeSaver{}
	c := newTestController(&fakeSelector{baseline: baselineQuestions()}, saver)
	if err := c.Start(context.Background(), Pick{Mood: "depression"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	if err := c.Advance("I lost my job last week"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Skip(); err != nil {
			t.Fatalf("skip: %v", err)
		}
	}

	msg, err := c.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if msg.Title != "note for depression" {
		t.Errorf("title = %q", msg.Title)
	}

	v := c.View()
	if v.State != Presenting || v.Message == nil || v.Message.Body != msg.Body {
		t.Errorf("unexpected view %+v", v)
	}

	c.WaitSaves()
	if len(saver.records) != 1 {
		t.Fatalf("expected one saved conversation, got %d", len(saver.records))
	}
	rec := saver.records[0]
	if rec.Mood != "depression" || rec.Message != msg.Body || rec.Answers["b0"] != "I lost my job last week" {
		t.Errorf("unexpected record %+v", rec)
	}
	if !reflect.DeepEqual(rec.Emotions, []string{"sadness"}) {
		t.Errorf("mood-only sessions should save mood emotions, got %v", rec.Emotions)
	}
	if len(rec.Questions) != len(v.Questions) {
		t.Errorf("saved %d questions, session had %d", len(rec.Questions), len(v.Questions))
	}
	if !rec.CreatedAt.Equal(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("created at = %v", rec.CreatedAt)
	}
}

func TestGenerateDoesNotWaitForSave(t *testing.T) {
	saver := &slowSaver{release: make(chan struct{})}
	c := newTestController(&fakeSelector{}, saver)
	if err := c.Start(context.Background(), Pick{Emotions: []string{"fear"}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Generate(context.Background()); err != nil {
			t.Errorf("generate: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generate blocked on a stalled save")
	}
	if c.View().State != Presenting {
		t.Errorf("state = %s, want presenting", c.View().State)
	}

	close(saver.release)
	c.WaitSaves()
	saver.mu.Lock()
	defer saver.mu.Unlock()
	if saver.saved != 1 {
		t.Errorf("expected one save, got %d", saver.saved)
	}
	if !saver.hadDeadline {
		t.Error("background save should carry a deadline")
	}
}

func TestSaveTimeout(t *testing.T) {
	saver := &slowSaver{release: make(chan struct{})}
	c := newTestController(&fakeSelector{}, saver)
	c.saveTimeout = 20 * time.Millisecond
	if err := c.Start(context.Background(), Pick{Emotions: []string{"fear"}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)
	if _, err := c.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.WaitSaves()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled save was not cut off")
	}
	if saver.saved != 0 {
		t.Errorf("timed out save should not count, got %d", saver.saved)
	}
}

func TestExhaustedSelectionReported(t *testing.T) {
	c := newTestController(&fakeSelector{baseline: baselineQuestions()}, nil)
	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	v := c.View()
	if !errors.Is(v.SelectionErr, selector.ErrExhausted) {
		t.Fatalf("selection error = %v, want exhausted", v.SelectionErr)
	}
	if v.Total != len(baselineQuestions()) {
		t.Errorf("baseline should stay in place, got %d questions", v.Total)
	}

	c.Back()
	if c.View().SelectionErr != nil {
		t.Error("back should clear the selection error")
	}
}

func TestGenerateFailureAndSaveError(t *testing.T) {
	saver := &fakeSaver{err: errors.New("offline")}
	c := newTestController(&fakeSelector{}, saver)
	c.messages = &fakeWriter{body: "  "}

	if err := c.Start(context.Background(), Pick{Emotions: []string{"fear"}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)

	msg, err := c.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if msg != message.Failure() {
		t.Errorf("expected the failure note, got %+v", msg)
	}
	if c.View().State != Presenting {
		t.Error("failure should still present")
	}
}

func TestEmotionOnlySession(t *testing.T) {
	remote := []models.Question{{ID: "e1", Prompt: "What does fear ask of you?"}}
	c := newTestController(&fakeSelector{baseline: baselineQuestions(), result: selector.Result{Questions: remote}}, nil)

	if err := c.Start(context.Background(), Pick{Emotions: []string{"Happy", "sad"}}); err != nil {
		t.Fatalf("start: %v", err)
	}
	v := c.View()
	if v.Label != models.MoodFeelings {
		t.Errorf("label = %q", v.Label)
	}

	waitSettled(t, c)
	if got := questionIDs(c.View().Questions); !reflect.DeepEqual(got, []string{"e1"}) {
		t.Errorf("questions = %v", got)
	}
}

func TestBaselineUsesRefreshedThemes(t *testing.T) {
	c := NewController(Options{
		UserID:   "u1",
		Selector: &fakeSelector{baseline: baselineQuestions(), err: selector.ErrExhausted},
		Messages: &fakeWriter{},
		Themes:   &fakeThemes{freq: themes.FrequencyMap{themes.Health: 2}},
	})
	c.Refresh(context.Background())

	if err := c.Start(context.Background(), Pick{Mood: "anger"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := c.View().Questions[0].ID; got != "b1" {
		t.Errorf("health history should put safety first, got %s", got)
	}
}

func TestRegenerateAndContinue(t *testing.T) {
	c := newTestController(&fakeSelector{baseline: baselineQuestions()}, nil)

	if _, err := c.Regenerate(); !errors.Is(err, ErrNothingToPresent) {
		t.Errorf("expected ErrNothingToPresent, got %v", err)
	}
	if err := c.Continue(context.Background(), "anger"); !errors.Is(err, ErrNoPreviousContext) {
		t.Errorf("expected ErrNoPreviousContext, got %v", err)
	}

	if err := c.Start(context.Background(), Pick{Mood: "bargaining"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitSettled(t, c)
	if err := c.Advance("my boss keeps moving the deadline"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	for c.View().State == Answering {
		if err := c.Skip(); err != nil {
			t.Fatalf("skip: %v", err)
		}
	}
	if _, err := c.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}

	regen, err := c.Regenerate()
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if !regen.Offline || !strings.Contains(regen.Body, "my boss") {
		t.Errorf("regenerated note should be offline and tailored, got %+v", regen)
	}

	if err := c.Continue(context.Background(), "acceptance"); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if got := c.Themes()[themes.Work]; got != ContinueBoost {
		t.Errorf("work theme boost = %d, want %d", got, ContinueBoost)
	}
	v := c.View()
	if v.State != Answering || v.Label != "acceptance" || v.Step != 0 || len(v.Answers) != 0 {
		t.Errorf("continue should start a fresh session, got %+v", v)
	}
	waitSettled(t, c)

	// continuing without a mood reuses the previous emotions
	for c.View().State == Answering {
		if err := c.Skip(); err != nil {
			t.Fatalf("skip: %v", err)
		}
	}
	if _, err := c.Generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := c.Continue(context.Background(), ""); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if v := c.View(); v.Label != models.MoodFeelings {
		t.Errorf("emotion continuation label = %q", v.Label)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
