package history

import (
	"context"
	"time"

	"github.com/mrwolf/her-server/internal/models"
)

// Reader is the read side of a conversation log
type Reader interface {
	// RecentConversations returns at most limit records, most recent first
	RecentConversations(ctx context.Context, userID string, limit, offset int) ([]models.ConversationRecord, error)
	// AllConversations returns every record for the user, most recent first
	AllConversations(ctx context.Context, userID string) ([]models.ConversationRecord, error)
}

// Store is an append-only per-user conversation log
type Store interface {
	Reader
	AppendConversation(ctx context.Context, rec *models.ConversationRecord) error
}

// AskedRecord summarizes how often and how recently a question was asked
type AskedRecord struct {
	QuestionID  string    `json:"questionId"`
	LastAskedAt time.Time `json:"lastAskedAt"`
	TimesAsked  int       `json:"timesAsked"`
}

// AskedRecords rebuilds per-question ask statistics from a user's history.
// A question counts once per conversation it appeared in.
func AskedRecords(records []models.ConversationRecord) map[string]AskedRecord {
	out := make(map[string]AskedRecord)
	for _, rec := range records {
		seen := make(map[string]bool, len(rec.Questions))
		for _, q := range rec.Questions {
			if q.ID == "" || seen[q.ID] {
				continue
			}
			seen[q.ID] = true

			r := out[q.ID]
			r.QuestionID = q.ID
			r.TimesAsked++
			if rec.CreatedAt.After(r.LastAskedAt) {
				r.LastAskedAt = rec.CreatedAt
			}
			out[q.ID] = r
		}
	}
	return out
}
