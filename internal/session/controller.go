// Package session drives one interactive question/answer cycle.
//
// The Controller owns the session. Background question resolution is the
// only other writer and applies its result only while the same session is
// still answering at step 0; anything later is dropped.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mrwolf/her-server/internal/catalog"
	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/message"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/selector"
	"github.com/mrwolf/her-server/internal/themes"
)

var (
	ErrEmptyPick         = errors.New("pick a mood or at least one emotion")
	ErrUnknownMood       = errors.New("unknown mood")
	ErrNotAnswering      = errors.New("no question is waiting for an answer")
	ErrGenerationLocked  = errors.New("answer a few more questions before generating")
	ErrNothingToPresent  = errors.New("no message has been generated yet")
	ErrNoPreviousContext = errors.New("no previous conversation to continue from")
)

// ContinueBoost is added to the last conversation's theme when continuing
const ContinueBoost = 3

// DefaultSaveTimeout bounds a background conversation save
const DefaultSaveTimeout = 6 * time.Second

// QuestionSelector builds question lists
type QuestionSelector interface {
	Baseline(req selector.Request, freq themes.FrequencyMap) []models.Question
	Select(ctx context.Context, req selector.Request) (selector.Result, error)
}

// MessageWriter produces the closing note
type MessageWriter interface {
	Generate(ctx context.Context, mood, summary, userID string) message.Message
	Offline(mood, summary string) message.Message
}

// Saver persists finished conversations
type Saver interface {
	AppendConversation(ctx context.Context, rec *models.ConversationRecord) error
}

// ThemeSource returns a user's theme frequency map
type ThemeSource interface {
	Themes(ctx context.Context, userID string) (themes.FrequencyMap, error)
}

// Options configures a Controller. Saver and Themes are optional.
type Options struct {
	UserID      string
	Selector    QuestionSelector
	Messages    MessageWriter
	Saver       Saver
	SaveTimeout time.Duration
	Themes      ThemeSource
	Catalog     *catalog.Catalog
	Clock       clockwork.Clock
	Rand        rand.Source
	Log         *logger.Logger
}

type lastContext struct {
	mood     string
	emotions []string
	record   models.ConversationRecord
}

// Controller is the session state machine
type Controller struct {
	userID      string
	selector    QuestionSelector
	messages    MessageWriter
	saver       Saver
	saveTimeout time.Duration
	themeSrc    ThemeSource
	catalog     *catalog.Catalog
	clock       clockwork.Clock
	log         *logger.Logger
	saves       sync.WaitGroup

	mu        sync.Mutex
	rng       *rand.Rand
	state     State
	epoch     uint64
	session   *Session
	cancel    context.CancelFunc
	settled   chan struct{}
	selectErr error
	themes    themes.FrequencyMap
	message   *message.Message
	last      *lastContext
}

func NewController(opts Options) *Controller {
	c := &Controller{
		userID:      opts.UserID,
		selector:    opts.Selector,
		messages:    opts.Messages,
		saver:       opts.Saver,
		saveTimeout: opts.SaveTimeout,
		themeSrc:    opts.Themes,
		catalog:     opts.Catalog,
		clock:       opts.Clock,
		log:         opts.Log,
	}
	if c.saveTimeout <= 0 {
		c.saveTimeout = DefaultSaveTimeout
	}
	if c.catalog == nil {
		c.catalog = catalog.Default()
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	src := opts.Rand
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	c.rng = rand.New(src)
	c.settled = closedChan()
	return c
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Refresh reloads the user's theme map. Failures keep the previous map.
func (c *Controller) Refresh(ctx context.Context) {
	if c.themeSrc == nil {
		return
	}
	freq, err := c.themeSrc.Themes(ctx, c.userID)
	if err != nil {
		c.log.Debug("theme refresh failed", "user_id", c.userID, "error", err)
		return
	}
	c.mu.Lock()
	c.themes = freq
	c.mu.Unlock()
}

// Themes returns a copy of the cached theme map
func (c *Controller) Themes() themes.FrequencyMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.themes.Clone()
}

// Start begins a new session from any state. The baseline list is in place
// when Start returns; selection continues in the background.
func (c *Controller) Start(ctx context.Context, pick Pick) error {
	mood := strings.ToLower(strings.TrimSpace(pick.Mood))
	emotions := catalog.NormalizeEmotions(pick.Emotions)
	if mood == "" && len(emotions) == 0 {
		return ErrEmptyPick
	}
	if mood != "" && !c.catalog.HasMood(mood) {
		return ErrUnknownMood
	}
	req := selector.Request{UserID: c.userID, Mood: mood, Emotions: emotions}

	c.mu.Lock()
	c.stopLocked()
	c.epoch++
	epoch := c.epoch
	c.state = Answering
	c.message = nil
	c.selectErr = nil
	c.session = &Session{
		UserID:    c.userID,
		Mood:      mood,
		Emotions:  emotions,
		Questions: c.selector.Baseline(req, c.themes),
		Answers:   make(map[string]string),
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	settled := make(chan struct{})
	c.settled = settled
	c.mu.Unlock()

	go c.resolve(runCtx, epoch, req, settled)
	return nil
}

func (c *Controller) resolve(ctx context.Context, epoch uint64, req selector.Request, settled chan struct{}) {
	defer close(settled)

	res, err := c.selector.Select(ctx, req)
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn("no question source available", "user_id", req.UserID, "error", err)
		if c.epoch == epoch {
			c.selectErr = err
		}
		return
	}
	if c.epoch != epoch || c.state != Answering || c.session == nil || c.session.Step != 0 {
		c.log.Debug("discarding late questions", "user_id", req.UserID, "tier", res.Source)
		return
	}
	c.session.Questions = res.Questions
}

// Settled is closed once background selection for the current session has
// finished, whether or not its result was applied.
func (c *Controller) Settled() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// Advance records the answer to the current question and moves on. Blank
// answers are not stored and do not trigger re-adaptation.
func (c *Controller) Advance(answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.currentLocked()
	if err != nil {
		return err
	}
	q := s.Questions[s.Step]
	answer = strings.TrimSpace(answer)
	if answer != "" {
		s.Answers[q.ID] = answer
	}
	s.Step++
	if answer != "" {
		c.adaptLocked(answer)
	}
	if s.Step >= len(s.Questions) {
		c.state = ReadyToGenerate
	}
	return nil
}

// Skip moves on without storing anything
func (c *Controller) Skip() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.currentLocked()
	if err != nil {
		return err
	}
	s.Step++
	if s.Step >= len(s.Questions) {
		c.state = ReadyToGenerate
	}
	return nil
}

func (c *Controller) currentLocked() (*Session, error) {
	if c.state != Answering || c.session == nil || c.session.Step >= len(c.session.Questions) {
		return nil, ErrNotAnswering
	}
	return c.session, nil
}

// adaptLocked reorders the unanswered slice by the answer's theme and puts a
// follow-up question in front of it. Questions before the current step are
// never touched.
func (c *Controller) adaptLocked(answer string) {
	s := c.session
	theme := themes.Detect(answer)
	priority := themes.PriorityCategories(theme)

	head := s.Questions[:s.Step]
	tail := themes.PartitionByPriority(s.Questions[s.Step:], priority)

	bank := c.catalog.FollowUps(theme)
	if len(bank) > 0 {
		prompt := bank[c.rng.IntN(len(bank))]
		if len(tail) == 0 || tail[0].Prompt != prompt {
			category := models.CategoryMakeOrBreak
			if len(priority) > 0 {
				category = priority[0]
			}
			followUp := models.Question{ID: "fu_" + uuid.NewString(), Category: category, Prompt: prompt}
			tail = append([]models.Question{followUp}, tail...)
		}
	}

	questions := make([]models.Question, 0, len(head)+len(tail))
	questions = append(questions, head...)
	s.Questions = append(questions, tail...)
}

// Generate produces the closing note. It is allowed once the step reaches
// half the list. The finished conversation is saved in the background,
// bounded by the save timeout; a failed save is logged and otherwise
// ignored.
func (c *Controller) Generate(ctx context.Context) (message.Message, error) {
	c.mu.Lock()
	s := c.session
	switch {
	case s == nil:
		c.mu.Unlock()
		return message.Message{}, ErrNotAnswering
	case c.state == Answering && !GenerationAllowed(s.Step, len(s.Questions)):
		c.mu.Unlock()
		return message.Message{}, ErrGenerationLocked
	case c.state != Answering && c.state != ReadyToGenerate:
		c.mu.Unlock()
		return message.Message{}, ErrNotAnswering
	}
	c.state = Generating
	epoch := c.epoch
	label := s.Label()
	summary := themes.SummarizeAnswers(s.Questions, s.Answers)
	c.mu.Unlock()

	msg := c.messages.Generate(ctx, label, summary, c.userID)
	if strings.TrimSpace(msg.Body) == "" {
		msg = message.Failure()
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return msg, nil
	}
	c.state = Presenting
	c.message = &msg
	rec := c.recordLocked(msg)
	c.last = &lastContext{mood: s.Mood, emotions: s.Emotions, record: rec}
	c.mu.Unlock()

	if c.saver != nil && msg.Body != message.Failure().Body {
		c.saves.Add(1)
		go c.save(rec)
	}
	return msg, nil
}

func (c *Controller) save(rec models.ConversationRecord) {
	defer c.saves.Done()
	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	defer cancel()
	if err := c.saver.AppendConversation(ctx, &rec); err != nil {
		c.log.Warn("saving conversation failed", "user_id", c.userID, "error", err)
	}
}

// WaitSaves blocks until background saves have finished
func (c *Controller) WaitSaves() {
	c.saves.Wait()
}

func (c *Controller) recordLocked(msg message.Message) models.ConversationRecord {
	s := c.session
	emotions := s.Emotions
	if len(emotions) == 0 {
		emotions = catalog.EmotionsFromMood(s.Mood)
	}
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	asked := make([]models.Question, 0, len(s.Questions))
	for _, q := range s.Questions {
		asked = append(asked, q.Ref())
	}
	return models.ConversationRecord{
		UserID:    c.userID,
		Mood:      s.Label(),
		Emotions:  append([]string(nil), emotions...),
		Answers:   answers,
		Message:   msg.Body,
		Questions: asked,
		CreatedAt: c.clock.Now().UTC(),
	}
}

// Regenerate replaces the presented note with a fresh offline one
func (c *Controller) Regenerate() (message.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Presenting || c.session == nil {
		return message.Message{}, ErrNothingToPresent
	}
	s := c.session
	msg := c.messages.Offline(s.Label(), themes.SummarizeAnswers(s.Questions, s.Answers))
	c.message = &msg
	return msg, nil
}

// Continue starts a new session from the last presented one. With a mood,
// the last conversation's theme is boosted first; without one, the previous
// emotions are reused for an emotion-only session.
func (c *Controller) Continue(ctx context.Context, mood string) error {
	c.mu.Lock()
	last := c.last
	if last == nil {
		c.mu.Unlock()
		return ErrNoPreviousContext
	}
	if strings.TrimSpace(mood) != "" {
		theme := themes.Detect(themes.ConversationText(last.record))
		c.themes = c.themes.Boost(theme, ContinueBoost)
	}
	c.mu.Unlock()

	if strings.TrimSpace(mood) != "" {
		return c.Start(ctx, Pick{Mood: mood})
	}
	emotions := last.emotions
	if len(emotions) == 0 {
		emotions = catalog.EmotionsFromMood(last.mood)
	}
	return c.Start(ctx, Pick{Emotions: emotions})
}

// Back abandons the session from any state
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.epoch++
	c.state = Idle
	c.session = nil
	c.message = nil
	c.selectErr = nil
}

func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// View returns a snapshot of the controller
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{State: c.state, SelectionErr: c.selectErr}
	if c.message != nil {
		m := *c.message
		v.Message = &m
	}
	s := c.session
	if s == nil {
		return v
	}
	v.Label = s.Label()
	v.Questions = append([]models.Question(nil), s.Questions...)
	v.Step = s.Step
	v.Total = len(s.Questions)
	v.Answers = make(map[string]string, len(s.Answers))
	for k, a := range s.Answers {
		v.Answers[k] = a
	}
	if c.state == Answering && s.Step < len(s.Questions) {
		q := s.Questions[s.Step]
		v.Current = &q
	}
	v.CanGenerate = c.state == ReadyToGenerate ||
		(c.state == Answering && GenerationAllowed(s.Step, len(s.Questions)))
	return v
}
