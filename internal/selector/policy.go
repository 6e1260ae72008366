package selector

import (
	"context"
	"sort"
	"time"

	"github.com/mrwolf/her-server/internal/catalog"
	"github.com/mrwolf/her-server/internal/history"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/themes"
)

// Cooldown is how long a question stays ineligible after it was asked
const Cooldown = time.Duration(3.5 * 7 * 24 * float64(time.Hour))

// CatalogProvider selects from the full catalog using the user's asked
// records: cooled-down questions are excluded, unseen questions come before
// seen ones, then priority categories, then fewer asks, then id.
type CatalogProvider struct {
	Catalog *catalog.Catalog
}

func (p *CatalogProvider) Name() string { return "catalog" }

func (p *CatalogProvider) Questions(_ context.Context, in Input) ([]models.Question, error) {
	cat := p.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return Rank(cat.Entries(), in), nil
}

type candidate struct {
	q        models.Question
	seen     bool
	priority bool
	asks     int
}

// Rank applies applicability, cooldown and ordering to entries and returns
// at most MaxQuestions.
func Rank(entries []models.Question, in Input) []models.Question {
	prio := themes.CategorySet(in.Themes.Priority())

	var cands []candidate
	for _, q := range entries {
		if !catalog.Applicable(q, in.Mood, in.Emotions) {
			continue
		}
		rec, asked := in.Asked[q.ID]
		if asked && coolingDown(rec, in.Now) {
			continue
		}
		cands = append(cands, candidate{
			q:        q,
			seen:     asked,
			priority: prio[q.Category],
			asks:     rec.TimesAsked,
		})
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.seen != b.seen {
			return !a.seen
		}
		if a.priority != b.priority {
			return a.priority
		}
		if a.asks != b.asks {
			return a.asks < b.asks
		}
		return a.q.ID < b.q.ID
	})

	if len(cands) > MaxQuestions {
		cands = cands[:MaxQuestions]
	}
	out := make([]models.Question, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.q.Ref())
	}
	return out
}

func coolingDown(rec history.AskedRecord, now time.Time) bool {
	return now.Sub(rec.LastAskedAt) < Cooldown
}
