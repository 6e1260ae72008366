package themes

import (
	"sort"
	"strings"

	"github.com/mrwolf/her-server/internal/models"
)

// FrequencyMap counts how many conversations carried each theme
type FrequencyMap map[Tag]int

// Aggregate detects one theme per conversation and counts them
func Aggregate(records []models.ConversationRecord) FrequencyMap {
	freq := make(FrequencyMap)
	for _, rec := range records {
		freq[Detect(ConversationText(rec))]++
	}
	return freq
}

// ConversationText joins a conversation's answers and message into the text
// the detector sees.
func ConversationText(rec models.ConversationRecord) string {
	summary := SummarizeAnswers(rec.Questions, rec.Answers)
	if summary == "" {
		return rec.Message
	}
	return summary + "\n" + rec.Message
}

// SummarizeAnswers renders "prompt answer" lines for answered questions in
// question order. Answers whose question is unknown are appended afterwards
// sorted by id.
func SummarizeAnswers(questions []models.Question, answers map[string]string) string {
	if len(answers) == 0 {
		return ""
	}
	var lines []string
	used := make(map[string]bool, len(answers))
	for _, q := range questions {
		a := strings.TrimSpace(answers[q.ID])
		if a == "" || used[q.ID] {
			continue
		}
		used[q.ID] = true
		lines = append(lines, q.Prompt+" "+a)
	}

	var rest []string
	for id := range answers {
		if !used[id] && strings.TrimSpace(answers[id]) != "" {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		lines = append(lines, strings.TrimSpace(answers[id]))
	}
	return strings.Join(lines, "\n")
}

// Tags returns the themes present, most frequent first, ties by tag name
func (m FrequencyMap) Tags() []Tag {
	tags := make([]Tag, 0, len(m))
	for t, n := range m {
		if n > 0 {
			tags = append(tags, t)
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		if m[tags[i]] != m[tags[j]] {
			return m[tags[i]] > m[tags[j]]
		}
		return tags[i] < tags[j]
	})
	return tags
}

// Top returns the most frequent theme other than General
func (m FrequencyMap) Top() (Tag, bool) {
	for _, t := range m.Tags() {
		if t != General {
			return t, true
		}
	}
	return "", false
}

// Priority returns the priority categories for every theme present
func (m FrequencyMap) Priority() []models.Category {
	return PriorityCategories(m.Tags()...)
}

// Clone returns a copy of the map
func (m FrequencyMap) Clone() FrequencyMap {
	out := make(FrequencyMap, len(m)+1)
	for t, c := range m {
		out[t] = c
	}
	return out
}

// Boost returns a copy with n added to tag
func (m FrequencyMap) Boost(tag Tag, n int) FrequencyMap {
	out := m.Clone()
	out[tag] += n
	return out
}

// ToWire converts the map to the JSON shape used by /api/themes
func (m FrequencyMap) ToWire() map[string]int {
	out := make(map[string]int, len(m))
	for t, n := range m {
		out[string(t)] = n
	}
	return out
}

// FromWire converts the /api/themes JSON shape back into a FrequencyMap
func FromWire(w map[string]int) FrequencyMap {
	out := make(FrequencyMap, len(w))
	for t, n := range w {
		out[Tag(t)] = n
	}
	return out
}
