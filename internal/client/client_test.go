package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/mrwolf/her-server/internal/history"
	"github.com/mrwolf/her-server/internal/message"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/selector"
	"github.com/mrwolf/her-server/internal/themes"
)

var (
	_ selector.QuestionClient = (*Client)(nil)
	_ message.Remote          = (*Client)(nil)
	_ history.Store           = (*Client)(nil)
)

func TestQuestions(t *testing.T) {
	var got models.QuestionsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/questions" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"questions":[{"id":"q1","category":"support","prompt":"Who helps?"}],"source":"llm"}`))
	}))
	defer server.Close()

	c := New(server.URL + "/")
	qs, err := c.Questions(context.Background(), models.QuestionsRequest{UserID: "u1", Mood: "anger", Emotions: []string{"anger"}})
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	want := []models.Question{{ID: "q1", Category: models.CategorySupport, Prompt: "Who helps?"}}
	if !reflect.DeepEqual(qs, want) {
		t.Errorf("questions = %+v", qs)
	}
	if got.UserID != "u1" || got.Mood != "anger" || !reflect.DeepEqual(got.Emotions, []string{"anger"}) {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"language model unavailable","code":"AI_UNAVAILABLE"}`))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Generate(context.Background(), models.GenerateRequest{Mood: "anger", Reason: "x"})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusServiceUnavailable || se.Code != "AI_UNAVAILABLE" {
		t.Errorf("unexpected status error %+v", se)
	}
	if !errors.Is(err, ErrRejected) {
		t.Error("status errors should match ErrRejected")
	}
}

func TestMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"questions":`))
	}))
	defer server.Close()

	if _, err := New(server.URL).Questions(context.Background(), models.QuestionsRequest{UserID: "u1"}); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := New(server.URL).Generate(ctx, models.GenerateRequest{Mood: "anger"}); err == nil {
		t.Error("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("call should stop at the context deadline")
	}
}

func TestAppendConversation(t *testing.T) {
	var got models.SaveConversationRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversation" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"id":"c-42"}`))
	}))
	defer server.Close()

	rec := &models.ConversationRecord{
		UserID:    "u1",
		Mood:      "depression",
		Emotions:  []string{"sadness"},
		Answers:   map[string]string{"dp_tiny": "rest"},
		Message:   "note",
		Questions: []models.Question{{ID: "dp_tiny", Category: models.CategoryMakeOrBreak, Prompt: "Tiny task?"}},
	}
	if err := New(server.URL).AppendConversation(context.Background(), rec); err != nil {
		t.Fatalf("AppendConversation: %v", err)
	}
	if rec.ID != "c-42" {
		t.Errorf("expected id from server, got %q", rec.ID)
	}
	if got.UserID != "u1" || got.Answers["dp_tiny"] != "rest" || !reflect.DeepEqual(got.Questions, rec.Questions) {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestAppendConversationNotOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false}`))
	}))
	defer server.Close()

	err := New(server.URL).AppendConversation(context.Background(), &models.ConversationRecord{UserID: "u1"})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
}

func TestConversations(t *testing.T) {
	var got []models.ConversationsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ConversationsRequest
		json.NewDecoder(r.Body).Decode(&req)
		got = append(got, req)
		w.Write([]byte(`{"conversations":[{"id":"c2","userId":"u1","mood":"anger","emotions":["anger"],"answers":{},"message":"m","questions":[],"createdAt":"2026-03-01T10:00:00Z"}]}`))
	}))
	defer server.Close()

	c := New(server.URL)
	recs, err := c.RecentConversations(context.Background(), "u1", 5, 10)
	if err != nil {
		t.Fatalf("RecentConversations: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "c2" || !recs[0].CreatedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected records %+v", recs)
	}

	if _, err := c.AllConversations(context.Background(), "u1"); err != nil {
		t.Fatalf("AllConversations: %v", err)
	}

	want := []models.ConversationsRequest{{UserID: "u1", Limit: 5, Offset: 10}, {UserID: "u1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("requests = %+v, want %+v", got, want)
	}
}

func TestThemes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/themes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"themes":{"work":3,"general":1}}`))
	}))
	defer server.Close()

	freq, err := New(server.URL).Themes(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Themes: %v", err)
	}
	if freq[themes.Work] != 3 || freq[themes.General] != 1 {
		t.Errorf("unexpected themes %v", freq)
	}
	if top, ok := freq.Top(); !ok || top != themes.Work {
		t.Errorf("Top() = %v, %v", top, ok)
	}
}
