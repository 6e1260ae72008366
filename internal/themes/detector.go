package themes

import (
	"regexp"
	"strings"

	"github.com/mrwolf/her-server/internal/models"
)

// Tag is a coarse theme detected in free text
type Tag string

const (
	Loss         Tag = "loss"
	Relationship Tag = "relationship"
	Work         Tag = "work"
	Health       Tag = "health"
	Family       Tag = "family"
	Money        Tag = "money"
	Isolation    Tag = "isolation"
	Overwhelm    Tag = "overwhelm"

	// General is returned when no rule matches
	General Tag = "general"
)

type rule struct {
	tag     Tag
	pattern *regexp.Regexp
}

// rules are tested in order; the first match wins. The order is part of the
// contract: loss, relationship, work, health, family, money, isolation, overwhelm.
//
// "lost" alone is not a loss signal: "I lost my job" is about work. Loss needs
// a bereavement word or a person/pet as the object of "lost".
var rules = []rule{
	{Loss, regexp.MustCompile(`passed away|\bdeath\b|\bdied\b|\bdying\b|grief|griev|bereave|funeral|\bloss of (?:my|our|a)\b|\blost (?:my|our|a|his|her|their) (?:mom|mum|mother|dad|father|parents?|grand\w*|brother|sister|son|daughter|child|baby|husband|wife|partner|friend|best friend|loved one|pet|dog|cat)\b`)},
	{Relationship, regexp.MustCompile(`break.?up|divorce|partner|relationship|love`)},
	{Work, regexp.MustCompile(`\bjob|work|\bboss|layoff|laid off|\bfired\b|career|deadline`)},
	{Health, regexp.MustCompile(`health|\bsick|\bill\b|illness|injur|diagnos`)},
	{Family, regexp.MustCompile(`family|parent|mother|father|sibling|child`)},
	{Money, regexp.MustCompile(`money|\bdebt|\brent\b|\bbills?\b|financ`)},
	{Isolation, regexp.MustCompile(`alone|lonely|loneliness|isolat`)},
	{Overwhelm, regexp.MustCompile(`overwhelm|too much|anxious|anxiety|panic`)},
}

// Detect maps free text to a single theme tag. It is total: empty or
// unmatched text yields General.
func Detect(text string) Tag {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.pattern.MatchString(lower) {
			return r.tag
		}
	}
	return General
}

// priorityByTheme is the single theme -> category mapping used by history
// ordering, dynamic synthesis, the catalog policy and in-session adaptation.
var priorityByTheme = map[Tag][]models.Category{
	Relationship: {models.CategoryPatterns, models.CategoryBoundaries},
	Loss:         {models.CategorySupport, models.CategoryFutureSelf},
	Overwhelm:    {models.CategoryMakeOrBreak, models.CategorySupport},
	Money:        {models.CategoryNonNegotiable},
	Health:       {models.CategorySafety},
}

// mappingOrder fixes the order categories are emitted in when several themes are present
var mappingOrder = []Tag{Relationship, Loss, Overwhelm, Money, Health}

// PriorityCategories returns the categories that should surface first for
// the given themes, deduplicated, in mapping order.
func PriorityCategories(tags ...Tag) []models.Category {
	present := make(map[Tag]bool, len(tags))
	for _, t := range tags {
		present[t] = true
	}

	var out []models.Category
	seen := make(map[models.Category]bool)
	for _, t := range mappingOrder {
		if !present[t] {
			continue
		}
		for _, c := range priorityByTheme[t] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// CategorySet turns a category list into a membership set
func CategorySet(cats []models.Category) map[models.Category]bool {
	set := make(map[models.Category]bool, len(cats))
	for _, c := range cats {
		set[c] = true
	}
	return set
}

// PartitionByPriority stably moves questions whose category is in priority
// to the front. Relative order inside each half is preserved.
func PartitionByPriority(qs []models.Question, priority []models.Category) []models.Question {
	out := make([]models.Question, 0, len(qs))
	if len(priority) == 0 {
		return append(out, qs...)
	}
	set := CategorySet(priority)
	for _, q := range qs {
		if set[q.Category] {
			out = append(out, q)
		}
	}
	for _, q := range qs {
		if !set[q.Category] {
			out = append(out, q)
		}
	}
	return out
}
