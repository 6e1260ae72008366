// Package selector decides which questions a session asks, trying an ordered
// list of providers until one yields a non-empty result.
package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/mrwolf/her-server/internal/catalog"
	"github.com/mrwolf/her-server/internal/history"
	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/themes"
)

var (
	// ErrProviderUnavailable covers network failures, timeouts, non-2xx
	// responses and malformed bodies
	ErrProviderUnavailable = errors.New("question provider unavailable")
	// ErrEmptyResult means a provider answered with nothing usable
	ErrEmptyResult = errors.New("question provider returned no questions")
	// ErrExhausted means every provider failed
	ErrExhausted = errors.New("no question source available")
)

// MaxQuestions caps every question list
const MaxQuestions = 8

// RecentWindow is how many recent conversations feed the theme bias
const RecentWindow = 6

// Request identifies who is asking and what they picked
type Request struct {
	UserID   string
	Mood     string
	Emotions []string
}

// Input is everything a provider may use to build a list
type Input struct {
	Request
	Themes themes.FrequencyMap
	Asked  map[string]history.AskedRecord
	Now    time.Time
}

// Provider is one tier of the cascade
type Provider interface {
	Name() string
	Questions(ctx context.Context, in Input) ([]models.Question, error)
}

// historyFree is implemented by providers that build their list from the
// request alone and so never wait on history loading
type historyFree interface {
	IgnoresHistory() bool
}

// AskedSource supplies asked-question records. Only the server keeps them.
type AskedSource interface {
	Asked(ctx context.Context, userID string) (map[string]history.AskedRecord, error)
}

// Result is a selected list and the provider that produced it
type Result struct {
	Questions []models.Question
	Source    string
}

// Options configures a Selector
type Options struct {
	Catalog   *catalog.Catalog
	History   history.Reader
	Asked     AskedSource
	Providers []Provider
	// LoadTimeout bounds history loading; DefaultTimeout when zero
	LoadTimeout time.Duration
	Clock       clockwork.Clock
	Log         *logger.Logger
}

// Selector runs the provider cascade
type Selector struct {
	catalog     *catalog.Catalog
	history     history.Reader
	asked       AskedSource
	providers   []Provider
	loadTimeout time.Duration
	clock       clockwork.Clock
	log         *logger.Logger
}

func New(opts Options) *Selector {
	s := &Selector{
		catalog:     opts.Catalog,
		history:     opts.History,
		asked:       opts.Asked,
		providers:   opts.Providers,
		loadTimeout: opts.LoadTimeout,
		clock:       opts.Clock,
		log:         opts.Log,
	}
	if s.loadTimeout <= 0 {
		s.loadTimeout = DefaultTimeout
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	return s
}

// Baseline returns the zero-latency list shown before any tier resolves: the
// mood's fixed list, priority-first when the user's themes are known. Emotion
// only requests get an empty list.
func (s *Selector) Baseline(req Request, freq themes.FrequencyMap) []models.Question {
	if req.Mood == "" {
		return nil
	}
	qs := s.catalog.ForMood(req.Mood)
	return themes.PartitionByPriority(qs, freq.Priority())
}

// Select tries each provider in order. The first non-empty list wins.
// Provider failures are logged, never returned; ErrExhausted is returned only
// when every provider failed.
//
// The user's history loads in the background, bounded by the load timeout.
// Providers that ignore history run without waiting for it.
func (s *Selector) Select(ctx context.Context, req Request) (Result, error) {
	req.Emotions = catalog.NormalizeEmotions(req.Emotions)
	req.Mood = strings.ToLower(strings.TrimSpace(req.Mood))
	bare := Input{Request: req, Now: s.clock.Now()}

	loadCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()
	loaded := make(chan Input, 1)
	go func() { loaded <- s.load(loadCtx, bare) }()

	var full *Input
	for _, p := range s.providers {
		in := bare
		if hf, ok := p.(historyFree); !ok || !hf.IgnoresHistory() {
			if full == nil {
				full = s.await(loadCtx, loaded, bare)
			}
			in = *full
		}

		qs, err := p.Questions(ctx, in)
		if err == nil && len(qs) == 0 {
			err = ErrEmptyResult
		}
		if err != nil {
			s.log.Debug("question tier skipped", "tier", p.Name(), "user_id", req.UserID, "error", err)
			continue
		}
		return Result{Questions: dedupeByID(qs), Source: p.Name()}, nil
	}
	return Result{}, ErrExhausted
}

// await returns the loaded input, or the bare one once the load deadline
// passes
func (s *Selector) await(ctx context.Context, loaded <-chan Input, bare Input) *Input {
	select {
	case in := <-loaded:
		return &in
	case <-ctx.Done():
		s.log.Warn("history load timed out", "user_id", bare.UserID, "error", ctx.Err())
		return &bare
	}
}

// load fetches the recent theme window and asked records concurrently.
// Failures leave the corresponding field empty.
func (s *Selector) load(ctx context.Context, in Input) Input {
	req := in.Request
	if req.UserID == "" {
		return in
	}

	var g errgroup.Group
	if s.history != nil {
		g.Go(func() error {
			recent, err := s.history.RecentConversations(ctx, req.UserID, RecentWindow, 0)
			if err != nil {
				return fmt.Errorf("loading recent history: %w", err)
			}
			in.Themes = themes.Aggregate(recent)
			return nil
		})
	}
	if s.asked != nil {
		g.Go(func() error {
			asked, err := s.asked.Asked(ctx, req.UserID)
			if err != nil {
				return fmt.Errorf("loading asked records: %w", err)
			}
			in.Asked = asked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("history unavailable for selection", "user_id", req.UserID, "error", err)
	}
	return in
}

func dedupeByID(qs []models.Question) []models.Question {
	out := make([]models.Question, 0, len(qs))
	seen := make(map[string]bool, len(qs))
	for _, q := range qs {
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		out = append(out, q)
	}
	return out
}
