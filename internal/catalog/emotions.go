package catalog

import (
	"strings"

	"github.com/mrwolf/her-server/internal/models"
)

var emotionAliases = map[string]string{
	"happy": "joy",
	"sad":   "sadness",
}

// NormalizeEmotions lowercases, maps aliases onto catalog tags and drops
// duplicates while keeping first-seen order.
func NormalizeEmotions(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, e := range list {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if alias, ok := emotionAliases[e]; ok {
			e = alias
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// EmotionsFromMood maps a mood onto the emotion tags sent alongside it
func EmotionsFromMood(mood string) []string {
	switch strings.ToLower(mood) {
	case models.MoodAnger:
		return []string{"anger"}
	case models.MoodDepression:
		return []string{"sadness"}
	case models.MoodBargaining:
		return []string{"anticipation", "trust"}
	case models.MoodDenial:
		return []string{"surprise", "fear"}
	case models.MoodAcceptance:
		return []string{"trust", "joy"}
	default:
		return nil
	}
}
