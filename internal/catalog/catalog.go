package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/themes"
)

//go:embed catalog.yaml
var catalogYAML []byte

// FallbackMood is used when a mood is unknown or absent
const FallbackMood = models.MoodAcceptance

type catalogFile struct {
	Moods     map[string][]models.Question `yaml:"moods"`
	Templates map[models.Category][]string `yaml:"templates"`
	FollowUps map[string][]string          `yaml:"follow_ups"`
	Entries   []models.Question            `yaml:"entries"`
}

// Catalog is read-only question reference data
type Catalog struct {
	moods     map[string][]models.Question
	templates []models.Question
	followUps map[themes.Tag][]string
	entries   []models.Question
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the catalog embedded in the binary
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(catalogYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded question catalog is invalid: %v", err))
		}
		defaultCat = c
	})
	return defaultCat
}

// Parse decodes and validates a catalog document
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	c := &Catalog{
		moods:     make(map[string][]models.Question, len(f.Moods)),
		followUps: make(map[themes.Tag][]string, len(f.FollowUps)),
	}

	seen := make(map[string]string)
	claim := func(q models.Question, where string) error {
		if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("%s: question needs id and prompt", where)
		}
		if !models.ValidCategory(q.Category) {
			return fmt.Errorf("%s: question %s has unknown category %q", where, q.ID, q.Category)
		}
		if prev, ok := seen[q.ID]; ok {
			return fmt.Errorf("%s: duplicate question id %s (first in %s)", where, q.ID, prev)
		}
		seen[q.ID] = where
		return nil
	}

	for _, mood := range models.AllMoods {
		for _, q := range f.Moods[mood] {
			if err := claim(q, "moods."+mood); err != nil {
				return nil, err
			}
			q.ApplicableMoods = []string{mood}
			c.moods[mood] = append(c.moods[mood], q)
		}
	}
	for mood := range f.Moods {
		if !contains(models.AllMoods, mood) {
			return nil, fmt.Errorf("moods: unknown mood %q", mood)
		}
	}

	for cat := range f.Templates {
		if !models.ValidCategory(cat) {
			return nil, fmt.Errorf("templates: unknown category %q", cat)
		}
	}
	for _, cat := range models.AllCategories {
		for i, prompt := range f.Templates[cat] {
			q := models.Question{
				ID:       fmt.Sprintf("tpl_%s_%d", cat, i+1),
				Category: cat,
				Prompt:   prompt,
			}
			if err := claim(q, "templates"); err != nil {
				return nil, err
			}
			c.templates = append(c.templates, q)
		}
	}

	for tag, bank := range f.FollowUps {
		c.followUps[themes.Tag(tag)] = bank
	}
	if len(c.followUps[themes.General]) == 0 {
		return nil, fmt.Errorf("follow_ups: a general bank is required")
	}

	for _, q := range f.Entries {
		if err := claim(q, "entries"); err != nil {
			return nil, err
		}
		c.entries = append(c.entries, q)
	}

	return c, nil
}

// ForMood returns a copy of the fixed question list for a mood. Unknown
// moods yield nil.
func (c *Catalog) ForMood(mood string) []models.Question {
	return cloneQuestions(c.moods[strings.ToLower(mood)])
}

// HasMood reports whether the mood has a fixed list
func (c *Catalog) HasMood(mood string) bool {
	_, ok := c.moods[strings.ToLower(mood)]
	return ok
}

// Templates returns the category template questions in category order
func (c *Catalog) Templates() []models.Question {
	return cloneQuestions(c.templates)
}

// Entries returns the full selection catalog: every fixed mood question
// followed by the standalone entries.
func (c *Catalog) Entries() []models.Question {
	var out []models.Question
	for _, mood := range models.AllMoods {
		out = append(out, c.moods[mood]...)
	}
	out = append(out, c.entries...)
	return cloneQuestions(out)
}

// FollowUps returns the follow-up bank for a theme, or the general bank when
// the theme has none.
func (c *Catalog) FollowUps(tag themes.Tag) []string {
	if bank, ok := c.followUps[tag]; ok && len(bank) > 0 {
		return append([]string(nil), bank...)
	}
	return append([]string(nil), c.followUps[themes.General]...)
}

// Applicable reports whether q may be asked for the given mood and emotions.
// Empty applicability lists mean "any".
func Applicable(q models.Question, mood string, emotions []string) bool {
	if mood != "" && len(q.ApplicableMoods) > 0 && !contains(q.ApplicableMoods, mood) {
		return false
	}
	if len(emotions) > 0 && len(q.ApplicableTags) > 0 {
		for _, e := range emotions {
			if contains(q.ApplicableTags, e) {
				return true
			}
		}
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func cloneQuestions(qs []models.Question) []models.Question {
	if qs == nil {
		return nil
	}
	out := make([]models.Question, len(qs))
	copy(out, qs)
	return out
}
