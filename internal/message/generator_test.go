package message

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/mrwolf/her-server/internal/models"
)

type fakeRemote struct {
	body  string
	err   error
	delay time.Duration
	got   models.GenerateRequest
}

func (f *fakeRemote) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	f.got = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.body, f.err
}

func newTestGenerator(remote Remote, timeout time.Duration) *Generator {
	return New(remote, timeout, rand.NewPCG(7, 7), nil)
}

func TestOfflineWorkScenario(t *testing.T) {
	g := newTestGenerator(nil, 0)
	summary := "If you shrank today to one tiny task, which would you pick? I lost my job last week"

	msg := g.Generate(context.Background(), "depression", summary, "u1")
	if !msg.Offline {
		t.Error("expected an offline message")
	}
	if msg.Title != "A gentle note for Depression" {
		t.Errorf("title = %q", msg.Title)
	}
	if !strings.Contains(msg.Body, "Given you mentioned work, it makes sense this feels the way it does.") {
		t.Errorf("body missing work acknowledgment: %s", msg.Body)
	}
	if !strings.Contains(msg.Body, `"If you shrank today`) {
		t.Errorf("body missing quote: %s", msg.Body)
	}
	if strings.Contains(msg.Body, "{extra}") || strings.Contains(msg.Body, "{mood}") {
		t.Errorf("placeholders left in body: %s", msg.Body)
	}
}

func TestRemoteSuccess(t *testing.T) {
	remote := &fakeRemote{body: "  You are not alone in this.  "}
	g := newTestGenerator(remote, time.Second)

	msg := g.Generate(context.Background(), "anger", "summary", "u1")
	if msg.Offline || msg.Body != "You are not alone in this." {
		t.Errorf("unexpected message %+v", msg)
	}
	if remote.got.Mood != "anger" || remote.got.Reason != "summary" || remote.got.UserID != "u1" {
		t.Errorf("unexpected request %+v", remote.got)
	}
}

func TestRemoteFailuresFallBack(t *testing.T) {
	tests := []struct {
		name   string
		remote *fakeRemote
	}{
		{"error", &fakeRemote{err: errors.New("503")}},
		{"empty body", &fakeRemote{body: "   "}},
		{"timeout", &fakeRemote{body: "late", delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(tt.remote, 20*time.Millisecond)
			start := time.Now()
			msg := g.Generate(context.Background(), "bargaining", "", "u1")
			if !msg.Offline {
				t.Errorf("expected offline fallback, got %+v", msg)
			}
			if time.Since(start) > 500*time.Millisecond {
				t.Error("fallback should not wait for a slow remote")
			}
		})
	}
}

func TestUnknownMoodUsesFallbackBank(t *testing.T) {
	g := newTestGenerator(nil, 0)
	msg := g.Offline("feelings", "")
	if msg.Title != "A gentle note for Feelings" {
		t.Errorf("title = %q", msg.Title)
	}

	found := false
	for _, tpl := range bank[fallbackMood] {
		if render(tpl, "feelings", "") == msg.Body {
			found = true
		}
	}
	if !found {
		t.Errorf("body not from fallback bank: %s", msg.Body)
	}
}

func TestExtra(t *testing.T) {
	if Extra("") != "" {
		t.Error("empty summary should add nothing")
	}
	if got := Extra("nothing much"); got != `Thank you for sharing; even a few words like "nothing much" tell me a lot.` {
		t.Errorf("Extra() = %q", got)
	}

	long := strings.Repeat("a", 200)
	got := Extra(long)
	if !strings.Contains(got, strings.Repeat("a", QuoteLimit-1)+"…\"") {
		t.Errorf("quote should be capped at %d runes: %s", QuoteLimit, got)
	}
}

func TestRender(t *testing.T) {
	if got := render("Feeling {mood}. {extra} Breathe.", "anger", ""); got != "Feeling Anger. Breathe." {
		t.Errorf("render() = %q", got)
	}
	if got := render("{extra} Breathe.", "anger", "Noted."); got != "Noted. Breathe." {
		t.Errorf("render() = %q", got)
	}
}

func TestBankShape(t *testing.T) {
	for _, mood := range models.AllMoods {
		if len(bank[mood]) != 3 {
			t.Errorf("mood %s has %d templates", mood, len(bank[mood]))
		}
		for _, tpl := range bank[mood] {
			if !strings.Contains(tpl, "{extra}") {
				t.Errorf("template for %s lacks {extra}", mood)
			}
		}
	}
}

func TestFailure(t *testing.T) {
	f := Failure()
	if f.Title == "" || !strings.Contains(f.Body, "try again") {
		t.Errorf("unexpected failure message %+v", f)
	}
}
