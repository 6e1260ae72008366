// Package counselor turns a language model into a question source and a
// message writer for the HTTP service.
package counselor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/mrwolf/her-server/internal/models"
)

var (
	// ErrUnavailable means the model is known to be unreachable
	ErrUnavailable = errors.New("language model unavailable")
	// ErrEmptyOutput means the model answered with nothing usable
	ErrEmptyOutput = errors.New("language model returned empty output")
)

// Generator is the model call the counselor needs. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, jsonFormat bool) (string, error)
}

// Counselor wraps a Generator with prompts and output parsing
type Counselor struct {
	gen       Generator
	available atomic.Bool
}

// New creates a counselor that starts out available. A nil Generator makes
// every call fail with ErrUnavailable.
func New(gen Generator) *Counselor {
	c := &Counselor{gen: gen}
	c.available.Store(gen != nil)
	return c
}

// SetAvailable records the result of the latest health probe
func (c *Counselor) SetAvailable(ok bool) {
	c.available.Store(ok && c.gen != nil)
}

// Available reports whether the model passed its latest health probe
func (c *Counselor) Available() bool {
	return c.available.Load()
}

type questionsResponse struct {
	Questions []models.Question `json:"questions"`
}

// Questions asks the model for a question list
func (c *Counselor) Questions(ctx context.Context, req models.QuestionsRequest) ([]models.Question, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	mood := req.Mood
	if mood == "" {
		mood = "(not given)"
	}
	emotions := strings.Join(req.Emotions, ", ")
	if emotions == "" {
		emotions = "(not given)"
	}

	response, err := c.gen.Generate(ctx, questionsSystemPrompt, fmt.Sprintf(questionsPrompt, mood, emotions), true)
	if err != nil {
		return nil, fmt.Errorf("generating questions: %w", err)
	}

	qs := parseQuestions(response)
	if len(qs) == 0 {
		return nil, ErrEmptyOutput
	}
	return qs, nil
}

var nonIDChars = regexp.MustCompile(`[^a-z0-9_]+`)

// parseQuestions accepts either {"questions": [...]} or a bare array and
// drops entries without a prompt. Ids are namespaced and made unique.
func parseQuestions(raw string) []models.Question {
	var parsed questionsResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		if err := json.Unmarshal([]byte(raw), &parsed.Questions); err != nil {
			return nil
		}
	}

	var out []models.Question
	seen := make(map[string]bool)
	for i, q := range parsed.Questions {
		q.Prompt = strings.TrimSpace(q.Prompt)
		if q.Prompt == "" {
			continue
		}
		cat := models.Category(strings.ToLower(strings.TrimSpace(string(q.Category))))
		if !models.ValidCategory(cat) {
			cat = models.CategoryMakeOrBreak
		}

		id := nonIDChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(q.ID)), "_")
		id = strings.Trim(id, "_")
		if id == "" {
			id = fmt.Sprintf("q%d", i+1)
		}
		id = "ai_" + id
		for seen[id] {
			id += "_x"
		}
		seen[id] = true

		out = append(out, models.Question{ID: id, Category: cat, Prompt: q.Prompt})
	}
	return out
}

// WriteMessage asks the model for a supportive message
func (c *Counselor) WriteMessage(ctx context.Context, mood, reason string) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}
	if strings.TrimSpace(reason) == "" {
		reason = "(none)"
	}

	response, err := c.gen.Generate(ctx, messageSystemPrompt, fmt.Sprintf(messagePrompt, mood, reason), false)
	if err != nil {
		return "", fmt.Errorf("generating message: %w", err)
	}
	message := strings.TrimSpace(response)
	if message == "" {
		return "", ErrEmptyOutput
	}
	return message, nil
}
