package history

import (
	"context"
	"fmt"

	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/models"
)

// FallbackStore writes to Primary and falls back to Local when Primary fails.
// Reads follow the same order. Local calls ignore cancellation of ctx, so a
// primary that ran out the caller's deadline still leaves the local copy.
type FallbackStore struct {
	Primary Store
	Local   Store
	Log     *logger.Logger
}

func (f *FallbackStore) logger() *logger.Logger {
	if f.Log == nil {
		return logger.Nop()
	}
	return f.Log
}

func (f *FallbackStore) AppendConversation(ctx context.Context, rec *models.ConversationRecord) error {
	err := f.Primary.AppendConversation(ctx, rec)
	if err == nil {
		return nil
	}
	f.logger().Warn("primary save failed, keeping conversation locally", "user_id", rec.UserID, "error", err)
	if f.Local == nil {
		return err
	}
	if lerr := f.Local.AppendConversation(context.WithoutCancel(ctx), rec); lerr != nil {
		return fmt.Errorf("saving locally after %v: %w", err, lerr)
	}
	return nil
}

func (f *FallbackStore) RecentConversations(ctx context.Context, userID string, limit, offset int) ([]models.ConversationRecord, error) {
	recs, err := f.Primary.RecentConversations(ctx, userID, limit, offset)
	if err == nil || f.Local == nil {
		return recs, err
	}
	f.logger().Debug("primary history unavailable, reading local", "user_id", userID, "error", err)
	return f.Local.RecentConversations(context.WithoutCancel(ctx), userID, limit, offset)
}

func (f *FallbackStore) AllConversations(ctx context.Context, userID string) ([]models.ConversationRecord, error) {
	recs, err := f.Primary.AllConversations(ctx, userID)
	if err == nil || f.Local == nil {
		return recs, err
	}
	f.logger().Debug("primary history unavailable, reading local", "user_id", userID, "error", err)
	return f.Local.AllConversations(context.WithoutCancel(ctx), userID)
}
