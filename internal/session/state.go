package session

import (
	"github.com/mrwolf/her-server/internal/message"
	"github.com/mrwolf/her-server/internal/models"
)

// State is where the controller is in the question/answer cycle
type State int

const (
	Idle State = iota
	Answering
	ReadyToGenerate
	Generating
	Presenting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Answering:
		return "answering"
	case ReadyToGenerate:
		return "ready"
	case Generating:
		return "generating"
	case Presenting:
		return "presenting"
	default:
		return "unknown"
	}
}

// Pick is what the user chose to start a session: a mood, a set of
// emotions, or both
type Pick struct {
	Mood     string
	Emotions []string
}

// Session is the mutable state of one question/answer cycle
type Session struct {
	UserID    string
	Mood      string
	Emotions  []string
	Questions []models.Question
	Step      int
	Answers   map[string]string
}

// Label is the mood shown to the user; emotion-only sessions use "feelings"
func (s *Session) Label() string {
	if s.Mood == "" {
		return models.MoodFeelings
	}
	return s.Mood
}

// GenerationAllowed applies the product rule: generation unlocks once the
// step reaches half the list, rounded down.
func GenerationAllowed(step, total int) bool {
	return step >= total/2
}

// View is a read-only snapshot for rendering. SelectionErr is set when
// background selection for the current session found no question source.
type View struct {
	State        State
	Label        string
	Questions    []models.Question
	Step         int
	Total        int
	Current      *models.Question
	Answers      map[string]string
	CanGenerate  bool
	Message      *message.Message
	SelectionErr error
}
