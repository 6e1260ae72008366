// Package client talks to the her-server HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/themes"
)

// ErrRejected means the server answered but did not accept the request
var ErrRejected = errors.New("server rejected request")

// Client wraps the her-server API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. Callers bound each call with a context; the HTTP
// timeout is only a backstop.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StatusError carries a non-2xx response
type StatusError struct {
	Status int
	Code   string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned status %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrRejected }

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var env struct {
			Code string `json:"code"`
		}
		_ = json.Unmarshal(raw, &env)
		return &StatusError{Status: resp.StatusCode, Code: env.Code, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Questions calls POST /api/questions
func (c *Client) Questions(ctx context.Context, req models.QuestionsRequest) ([]models.Question, error) {
	var resp models.QuestionsResponse
	if err := c.post(ctx, "/api/questions", req, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// Generate calls POST /api/generate
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	var resp models.GenerateResponse
	if err := c.post(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// AppendConversation calls POST /api/conversation and stores the assigned id
// on rec
func (c *Client) AppendConversation(ctx context.Context, rec *models.ConversationRecord) error {
	req := models.SaveConversationRequest{
		UserID:    rec.UserID,
		Mood:      rec.Mood,
		Emotions:  rec.Emotions,
		Answers:   rec.Answers,
		Message:   rec.Message,
		Questions: rec.Questions,
	}
	var resp models.SaveConversationResponse
	if err := c.post(ctx, "/api/conversation", req, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return ErrRejected
	}
	rec.ID = resp.ID
	return nil
}

// RecentConversations calls POST /api/conversations, most recent first
func (c *Client) RecentConversations(ctx context.Context, userID string, limit, offset int) ([]models.ConversationRecord, error) {
	var resp models.ConversationsResponse
	req := models.ConversationsRequest{UserID: userID, Limit: limit, Offset: offset}
	if err := c.post(ctx, "/api/conversations", req, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// AllConversations fetches the whole history; a zero limit means no limit
func (c *Client) AllConversations(ctx context.Context, userID string) ([]models.ConversationRecord, error) {
	return c.RecentConversations(ctx, userID, 0, 0)
}

// Themes calls POST /api/themes
func (c *Client) Themes(ctx context.Context, userID string) (themes.FrequencyMap, error) {
	var resp models.ThemesResponse
	if err := c.post(ctx, "/api/themes", models.ThemesRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return themes.FromWire(resp.Themes), nil
}
