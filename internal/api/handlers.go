package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mrwolf/her-server/internal/config"
	"github.com/mrwolf/her-server/internal/counselor"
	"github.com/mrwolf/her-server/internal/db"
	"github.com/mrwolf/her-server/internal/history"
	"github.com/mrwolf/her-server/internal/llm"
	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/selector"
)

// Version is reported by /health
const Version = "1.0.0"

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

type Handlers struct {
	cfg       *config.Config
	db        *db.DB
	history   *history.Service
	selector  *selector.Selector
	counselor *counselor.Counselor
	llm       *llm.Client
	log       *logger.Logger
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		cfg:       d.Config,
		db:        d.DB,
		history:   d.History,
		selector:  d.Selector,
		counselor: d.Counselor,
		llm:       d.LLM,
		log:       d.Log,
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:   "ok",
		Ollama:   h.checkOllama(r.Context()),
		Database: h.checkDatabase(r.Context()),
		Version:  Version,
	}
	if h.llm != nil {
		resp.Model = h.llm.Model()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

func (h *Handlers) checkOllama(ctx context.Context) string {
	if h.llm == nil {
		return "not configured"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.llm.HealthCheck(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

func (h *Handlers) checkDatabase(ctx context.Context) string {
	if h.db == nil {
		return "not configured"
	}
	if err := h.db.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "connected"
}

// Questions handles POST /api/questions
func (h *Handlers) Questions(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required", "MISSING_USER")
		return
	}

	res, err := h.selector.Select(r.Context(), selector.Request{
		UserID:   req.UserID,
		Mood:     req.Mood,
		Emotions: req.Emotions,
	})
	if errors.Is(err, selector.ErrExhausted) {
		writeError(w, http.StatusServiceUnavailable, "no questions available", "NO_QUESTIONS")
		return
	}
	if err != nil {
		h.log.Error("selecting questions failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "selection failed", "SELECTION_FAILED")
		return
	}

	out := make([]models.Question, 0, len(res.Questions))
	for _, q := range res.Questions {
		out = append(out, q.Ref())
	}
	writeJSON(w, models.QuestionsResponse{Questions: out, Source: res.Source})
}

// Generate handles POST /api/generate
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.Mood) == "" {
		writeError(w, http.StatusBadRequest, "mood required", "MISSING_MOOD")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.GenerationTimeout)
	defer cancel()

	msg, err := h.counselor.WriteMessage(ctx, req.Mood, req.Reason)
	switch {
	case errors.Is(err, counselor.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "language model unavailable", "AI_UNAVAILABLE")
		return
	case errors.Is(err, counselor.ErrEmptyOutput):
		writeError(w, http.StatusBadGateway, "no message from model", "EMPTY_MESSAGE")
		return
	case err != nil:
		h.log.Warn("message generation failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "generation failed", "GENERATION_FAILED")
		return
	}

	writeJSON(w, models.GenerateResponse{Message: msg})
}

// SaveConversation handles POST /api/conversation
func (h *Handlers) SaveConversation(w http.ResponseWriter, r *http.Request) {
	var req models.SaveConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required", "MISSING_USER")
		return
	}
	if strings.TrimSpace(req.Mood) == "" {
		writeError(w, http.StatusBadRequest, "mood required", "MISSING_MOOD")
		return
	}

	rec := &models.ConversationRecord{
		UserID:    req.UserID,
		Mood:      req.Mood,
		Emotions:  req.Emotions,
		Answers:   req.Answers,
		Message:   req.Message,
		Questions: req.Questions,
	}
	if err := h.history.AppendConversation(r.Context(), rec); err != nil {
		h.log.Error("saving conversation failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "database error", "DB_ERROR")
		return
	}

	writeJSON(w, models.SaveConversationResponse{OK: true, ID: rec.ID})
}

// Conversations handles POST /api/conversations. A limit of zero or less
// returns the whole history.
func (h *Handlers) Conversations(w http.ResponseWriter, r *http.Request) {
	var req models.ConversationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required", "MISSING_USER")
		return
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	recs, err := h.history.RecentConversations(r.Context(), req.UserID, req.Limit, req.Offset)
	if err != nil {
		h.log.Error("listing conversations failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "database error", "DB_ERROR")
		return
	}
	if recs == nil {
		recs = []models.ConversationRecord{}
	}

	resp := models.ConversationsResponse{Conversations: recs, Total: len(recs)}
	if h.db != nil {
		n, err := h.db.CountConversations(r.Context(), req.UserID)
		if err != nil {
			h.log.Warn("counting conversations failed", "user_id", req.UserID, "error", err)
		} else {
			resp.Total = n
		}
	}
	writeJSON(w, resp)
}

// Themes handles POST /api/themes
func (h *Handlers) Themes(w http.ResponseWriter, r *http.Request) {
	var req models.ThemesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_BODY")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required", "MISSING_USER")
		return
	}

	freq, err := h.history.Themes(r.Context(), req.UserID)
	if err != nil {
		h.log.Error("aggregating themes failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "database error", "DB_ERROR")
		return
	}

	writeJSON(w, models.ThemesResponse{Themes: freq.ToWire()})
}
