package models

import "time"

// Category groups questions by the kind of reflection they invite
type Category string

const (
	CategoryMakeOrBreak   Category = "make_or_break"
	CategoryPatterns      Category = "patterns"
	CategoryBoundaries    Category = "boundaries"
	CategorySafety        Category = "safety"
	CategorySupport       Category = "support"
	CategoryFutureSelf    Category = "future_self"
	CategoryNonNegotiable Category = "non_negotiable"
)

// AllCategories lists every category in catalog order
var AllCategories = []Category{
	CategoryMakeOrBreak,
	CategoryPatterns,
	CategoryBoundaries,
	CategorySafety,
	CategorySupport,
	CategoryFutureSelf,
	CategoryNonNegotiable,
}

// ValidCategory reports whether c is a known category
func ValidCategory(c Category) bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Mood constants
const (
	MoodDenial     = "denial"
	MoodAnger      = "anger"
	MoodBargaining = "bargaining"
	MoodDepression = "depression"
	MoodAcceptance = "acceptance"

	// MoodFeelings labels emotion-only sessions
	MoodFeelings = "feelings"
)

// AllMoods lists the moods a user can pick
var AllMoods = []string{MoodDenial, MoodAnger, MoodBargaining, MoodDepression, MoodAcceptance}

// Question is a single prompt shown to the user
type Question struct {
	ID              string   `json:"id" yaml:"id"`
	Category        Category `json:"category" yaml:"category"`
	Prompt          string   `json:"prompt" yaml:"prompt"`
	ApplicableMoods []string `json:"moods,omitempty" yaml:"moods,omitempty"`
	ApplicableTags  []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Ref strips applicability data, leaving the {id, category, prompt} triple
// that travels on the wire and is saved with a conversation.
func (q Question) Ref() Question {
	return Question{ID: q.ID, Category: q.Category, Prompt: q.Prompt}
}

// ConversationRecord is one completed session in a user's history
type ConversationRecord struct {
	ID        string            `json:"id,omitempty"`
	UserID    string            `json:"userId"`
	Mood      string            `json:"mood"`
	Emotions  []string          `json:"emotions"`
	Answers   map[string]string `json:"answers"`
	Message   string            `json:"message"`
	Questions []Question        `json:"questions"`
	CreatedAt time.Time         `json:"createdAt"`
}

// QuestionsRequest is the body of POST /api/questions
type QuestionsRequest struct {
	UserID   string   `json:"userId"`
	Mood     string   `json:"mood,omitempty"`
	Emotions []string `json:"emotions,omitempty"`
}

// QuestionsResponse is returned by POST /api/questions
type QuestionsResponse struct {
	Questions []Question `json:"questions"`
	Source    string     `json:"source,omitempty"`
}

// GenerateRequest is the body of POST /api/generate
type GenerateRequest struct {
	Mood   string `json:"mood"`
	Reason string `json:"reason"`
	UserID string `json:"userId,omitempty"`
}

// GenerateResponse is returned by POST /api/generate
type GenerateResponse struct {
	Message string `json:"message"`
}

// SaveConversationRequest is the body of POST /api/conversation
type SaveConversationRequest struct {
	UserID    string            `json:"userId"`
	Mood      string            `json:"mood"`
	Emotions  []string          `json:"emotions,omitempty"`
	Answers   map[string]string `json:"answers"`
	Message   string            `json:"message"`
	Questions []Question        `json:"questions,omitempty"`
}

// SaveConversationResponse is returned by POST /api/conversation
type SaveConversationResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id,omitempty"`
}

// ConversationsRequest is the body of POST /api/conversations
type ConversationsRequest struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ConversationsResponse is returned by POST /api/conversations, most recent first
type ConversationsResponse struct {
	Conversations []ConversationRecord `json:"conversations"`
	// Total counts every saved conversation for the user, not just this page
	Total int `json:"total"`
}

// ThemesRequest is the body of POST /api/themes
type ThemesRequest struct {
	UserID string `json:"userId"`
}

// ThemesResponse is returned by POST /api/themes
type ThemesResponse struct {
	Themes map[string]int `json:"themes"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status   string `json:"status"`
	Ollama   string `json:"ollama"`
	Model    string `json:"model,omitempty"`
	Database string `json:"database"`
	Version  string `json:"version"`
}
