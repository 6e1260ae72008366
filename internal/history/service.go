package history

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/themes"
)

// AskedCache stores reconstructed AskedRecords per user. Get reports the
// generation it read; a Put for an older generation than the current one is
// never served.
type AskedCache interface {
	Get(ctx context.Context, userID string) (map[string]AskedRecord, int64, bool, error)
	Put(ctx context.Context, userID string, gen int64, records map[string]AskedRecord) error
	Invalidate(ctx context.Context, userID string) error
}

// Service layers asked-record reconstruction and theme aggregation on top of
// a Store. The cache is optional.
type Service struct {
	store Store
	cache AskedCache
	log   *logger.Logger
	group singleflight.Group
}

// NewService creates a history service. cache may be nil.
func NewService(store Store, cache AskedCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, cache: cache, log: log}
}

// AppendConversation saves the record and drops the user's cached asked records
func (s *Service) AppendConversation(ctx context.Context, rec *models.ConversationRecord) error {
	if err := s.store.AppendConversation(ctx, rec); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, rec.UserID); err != nil {
			s.log.Warn("asked cache invalidate failed", "user_id", rec.UserID, "error", err)
		}
	}
	return nil
}

func (s *Service) RecentConversations(ctx context.Context, userID string, limit, offset int) ([]models.ConversationRecord, error) {
	return s.store.RecentConversations(ctx, userID, limit, offset)
}

func (s *Service) AllConversations(ctx context.Context, userID string) ([]models.ConversationRecord, error) {
	return s.store.AllConversations(ctx, userID)
}

// Asked returns the user's asked-question records, from cache when possible
func (s *Service) Asked(ctx context.Context, userID string) (map[string]AskedRecord, error) {
	cacheable := false
	var gen int64
	if s.cache != nil {
		records, g, ok, err := s.cache.Get(ctx, userID)
		switch {
		case err != nil:
			s.log.Warn("asked cache read failed", "user_id", userID, "error", err)
		case ok:
			return records, nil
		default:
			cacheable, gen = true, g
		}
	}

	all, err := s.store.AllConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	records := AskedRecords(all)

	if cacheable {
		if err := s.cache.Put(ctx, userID, gen, records); err != nil {
			s.log.Warn("asked cache write failed", "user_id", userID, "error", err)
		}
	}
	return records, nil
}

// Themes aggregates the user's full history into a theme frequency map.
// Concurrent calls for the same user share a single scan.
func (s *Service) Themes(ctx context.Context, userID string) (themes.FrequencyMap, error) {
	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		all, err := s.store.AllConversations(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
		return themes.Aggregate(all), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(themes.FrequencyMap), nil
}
