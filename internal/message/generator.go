// Package message produces the supportive note shown at the end of a session.
package message

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/mrwolf/her-server/internal/logger"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/themes"
)

// DefaultTimeout bounds the remote generation call
const DefaultTimeout = 6 * time.Second

// QuoteLimit caps the quoted excerpt of the user's answers, in runes
const QuoteLimit = 140

const fallbackMood = models.MoodAcceptance

var errEmptyMessage = errors.New("remote returned an empty message")

// Message is a generated note
type Message struct {
	Title   string
	Body    string
	Offline bool
}

// Failure is shown in place of a note when nothing could be produced
func Failure() Message {
	return Message{
		Title: "We hit a snag",
		Body:  "Something went wrong while generating your message. Please try again.",
	}
}

// Remote generates a message body on a server
type Remote interface {
	Generate(ctx context.Context, req models.GenerateRequest) (string, error)
}

// Generator prefers Remote and falls back to offline templates
type Generator struct {
	remote  Remote
	timeout time.Duration
	log     *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a generator. remote may be nil for offline-only use; a nil src
// uses a random seed.
func New(remote Remote, timeout time.Duration, src rand.Source, log *logger.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{remote: remote, timeout: timeout, log: log, rng: rand.New(src)}
}

type remoteResult struct {
	body string
	err  error
}

// Generate never fails: a remote error, timeout or empty body yields the
// offline message.
func (g *Generator) Generate(ctx context.Context, mood, summary, userID string) Message {
	if g.remote == nil {
		return g.Offline(mood, summary)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan remoteResult, 1)
	go func() {
		body, err := g.remote.Generate(ctx, models.GenerateRequest{Mood: mood, Reason: summary, UserID: userID})
		done <- remoteResult{body: body, err: err}
	}()

	var res remoteResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err == nil && strings.TrimSpace(res.body) == "" {
		res.err = errEmptyMessage
	}
	if res.err != nil {
		g.log.Debug("remote generation failed, using offline message", "user_id", userID, "error", res.err)
		return g.Offline(mood, summary)
	}

	return Message{Title: Title(mood), Body: strings.TrimSpace(res.body)}
}

// Offline builds a message from the template bank without any network call
func (g *Generator) Offline(mood, summary string) Message {
	templates, ok := bank[strings.ToLower(mood)]
	if !ok {
		templates = bank[fallbackMood]
	}
	g.mu.Lock()
	tpl := templates[g.rng.IntN(len(templates))]
	g.mu.Unlock()

	return Message{
		Title:   Title(mood),
		Body:    render(tpl, mood, Extra(summary)),
		Offline: true,
	}
}

// Title is the heading shown above a note
func Title(mood string) string {
	return "A gentle note for " + capitalize(mood)
}

// Extra builds the tailored clause: a theme acknowledgment when the summary
// carries a theme, then a short quote of the summary.
func Extra(summary string) string {
	var parts []string
	if theme := themes.Detect(summary); theme != themes.General {
		parts = append(parts, fmt.Sprintf("Given you mentioned %s, it makes sense this feels the way it does.", theme))
	}
	if quote := strings.Join(strings.Fields(summary), " "); quote != "" {
		parts = append(parts, fmt.Sprintf("Thank you for sharing; even a few words like \"%s\" tell me a lot.", truncate(quote, QuoteLimit)))
	}
	return strings.Join(parts, " ")
}

func render(tpl, mood, extra string) string {
	out := strings.ReplaceAll(tpl, "{mood}", capitalize(mood))
	if extra == "" {
		out = strings.ReplaceAll(out, "{extra} ", "")
		return strings.ReplaceAll(out, "{extra}", "")
	}
	return strings.ReplaceAll(out, "{extra}", extra)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
