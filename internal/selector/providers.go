package selector

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mrwolf/her-server/internal/catalog"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/themes"
)

// DefaultTimeout bounds a remote question request
const DefaultTimeout = 6 * time.Second

// QuestionClient fetches generated questions from a remote service
type QuestionClient interface {
	Questions(ctx context.Context, req models.QuestionsRequest) ([]models.Question, error)
}

// RemoteProvider asks a QuestionClient for a list, bounded by Timeout
type RemoteProvider struct {
	Label   string
	Client  QuestionClient
	Timeout time.Duration
}

func (p *RemoteProvider) Name() string {
	if p.Label == "" {
		return "remote"
	}
	return p.Label
}

// IgnoresHistory reports that remote lists depend on the request alone
func (p *RemoteProvider) IgnoresHistory() bool { return true }

func (p *RemoteProvider) Questions(ctx context.Context, in Input) ([]models.Question, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	emotions := in.Emotions
	if len(emotions) == 0 && in.Mood != "" {
		emotions = catalog.EmotionsFromMood(in.Mood)
	}

	qs, err := p.Client.Questions(ctx, models.QuestionsRequest{
		UserID:   in.UserID,
		Mood:     in.Mood,
		Emotions: emotions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	out := make([]models.Question, 0, len(qs))
	for _, q := range qs {
		if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Prompt) == "" {
			continue
		}
		if !models.ValidCategory(q.Category) {
			q.Category = models.CategoryMakeOrBreak
		}
		out = append(out, q.Ref())
	}
	if len(out) > MaxQuestions {
		out = out[:MaxQuestions]
	}
	return out, nil
}

// DynamicProvider synthesizes a list locally from the mood's fixed questions
// and the category templates.
type DynamicProvider struct {
	catalog *catalog.Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDynamicProvider creates a provider. A nil src uses a random seed.
func NewDynamicProvider(cat *catalog.Catalog, src rand.Source) *DynamicProvider {
	if cat == nil {
		cat = catalog.Default()
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &DynamicProvider{catalog: cat, rng: rand.New(src)}
}

func (p *DynamicProvider) Name() string { return "dynamic" }

func (p *DynamicProvider) Questions(_ context.Context, in Input) ([]models.Question, error) {
	pool := p.Pool(in.Mood, in.Themes)
	picks := p.sample(pool, MaxQuestions)

	if top, ok := in.Themes.Top(); ok && len(picks) > 0 {
		picks[0].Prompt = fmt.Sprintf("%s (You mentioned %s before. Does it show up here?)", picks[0].Prompt, top)
	}
	return picks, nil
}

// Pool returns the deduplicated candidate pool, priority categories first.
// Unknown or absent moods use the fallback mood's list.
func (p *DynamicProvider) Pool(mood string, freq themes.FrequencyMap) []models.Question {
	base := p.catalog.ForMood(mood)
	if base == nil {
		base = p.catalog.ForMood(catalog.FallbackMood)
	}
	pool := append(base, p.catalog.Templates()...)
	pool = themes.PartitionByPriority(pool, freq.Priority())

	out := make([]models.Question, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, q := range pool {
		key := q.ID + "\x00" + q.Prompt
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// sample picks min(n, len(pool)) distinct entries, keeping pool order
func (p *DynamicProvider) sample(pool []models.Question, n int) []models.Question {
	if n > len(pool) {
		n = len(pool)
	}
	p.mu.Lock()
	idx := p.rng.Perm(len(pool))[:n]
	p.mu.Unlock()

	sort.Ints(idx)
	out := make([]models.Question, 0, n)
	for _, i := range idx {
		out = append(out, pool[i])
	}
	return out
}

// StaticProvider returns the mood's fixed list unchanged
type StaticProvider struct {
	Catalog *catalog.Catalog
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Questions(_ context.Context, in Input) ([]models.Question, error) {
	cat := p.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return cat.ForMood(in.Mood), nil
}
