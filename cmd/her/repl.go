package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mrwolf/her-server/internal/history"
	"github.com/mrwolf/her-server/internal/models"
	"github.com/mrwolf/her-server/internal/session"
)

const helpText = `commands:
  mood <name>          start with a mood (denial, anger, bargaining, depression, acceptance)
  feel <e1, e2, ...>   start with emotions only
  skip                 move on without answering
  generate             write the note (after half the questions)
  again                write a fresh offline note
  continue [mood]      start again from the last note
  history              show recent conversations
  back                 return to the start
  quit
anything else answers the current question`

type repl struct {
	ctrl   *session.Controller
	store  history.Reader
	userID string
	in     *bufio.Scanner

	mu  sync.Mutex
	out io.Writer
}

func newREPL(ctrl *session.Controller, store history.Reader, userID string, in io.Reader, out io.Writer) *repl {
	return &repl{ctrl: ctrl, store: store, userID: userID, in: bufio.NewScanner(in), out: out}
}

func (r *repl) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) run(ctx context.Context) {
	r.printf("HER. Pick a mood or a few feelings to begin. Type 'help' for commands.\n")
	if top, ok := r.ctrl.Themes().Top(); ok {
		r.printf("Last time, %s came up most.\n", top)
	}
	r.prompt()

	for r.in.Scan() {
		line := strings.TrimSpace(r.in.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(cmd) {
		case "quit", "exit":
			r.ctrl.Back()
			r.ctrl.WaitSaves()
			return
		case "help":
			r.printf("%s\n", helpText)
		case "mood":
			r.start(ctx, session.Pick{Mood: arg})
		case "feel":
			r.start(ctx, session.Pick{Emotions: strings.Split(arg, ",")})
		case "skip":
			r.report(r.ctrl.Skip())
			r.showQuestion()
		case "generate":
			r.generate(ctx)
		case "again":
			msg, err := r.ctrl.Regenerate()
			if r.report(err) {
				r.printf("\n%s\n\n%s\n\n", msg.Title, msg.Body)
			}
		case "continue":
			if r.report(r.ctrl.Continue(ctx, arg)) {
				r.afterStart()
			}
		case "history":
			r.history(ctx)
		case "back":
			r.ctrl.Back()
			r.printf("Back at the start.\n")
		default:
			if r.ctrl.View().State != session.Answering {
				r.printf("Not sure what to do with that. Type 'help'.\n")
				break
			}
			r.report(r.ctrl.Advance(line))
			r.showQuestion()
		}
		r.prompt()
	}
}

func (r *repl) prompt() {
	r.printf("> ")
}

// report prints err in user terms and says whether the call succeeded
func (r *repl) report(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, session.ErrGenerationLocked):
		r.printf("Answer a few more questions first.\n")
	default:
		r.printf("%s.\n", capitalize(err.Error()))
	}
	return false
}

func (r *repl) start(ctx context.Context, pick session.Pick) {
	if r.report(r.ctrl.Start(ctx, pick)) {
		r.afterStart()
	}
}

// afterStart shows the baseline and reprints the question once a better
// list arrives, as long as the user has not answered anything yet
func (r *repl) afterStart() {
	before := r.ctrl.View()
	r.printf("Checking in on %s.\n", before.Label)
	if before.Total == 0 {
		r.printf("Finding questions...\n")
	} else {
		r.showQuestion()
	}

	settled := r.ctrl.Settled()
	go func() {
		<-settled
		after := r.ctrl.View()
		if after.SelectionErr != nil && after.State == session.Answering {
			r.printf("\n%s.", capitalize(after.SelectionErr.Error()))
			if after.Total == 0 {
				r.printf(" Type 'generate' when you are ready.")
			}
			r.printf("\n> ")
			return
		}
		if after.State != session.Answering || after.Step != 0 || sameQuestions(before.Questions, after.Questions) {
			return
		}
		r.printf("\n")
		r.showQuestion()
		r.prompt()
	}()
}

func (r *repl) showQuestion() {
	v := r.ctrl.View()
	switch {
	case v.State == session.ReadyToGenerate:
		r.printf("That was the last question. Type 'generate' for your note.\n")
	case v.Current != nil:
		hint := ""
		if v.CanGenerate {
			hint = "  (you can 'generate' now)"
		}
		r.printf("[%d/%d] %s%s\n", v.Step+1, v.Total, v.Current.Prompt, hint)
	}
}

func (r *repl) generate(ctx context.Context) {
	r.printf("Writing your note...\n")
	msg, err := r.ctrl.Generate(ctx)
	if !r.report(err) {
		return
	}
	r.printf("\n%s\n\n%s\n\n", msg.Title, msg.Body)
	r.printf("Type 'again' for another take, 'continue [mood]' to keep going, or 'back'.\n")
}

func (r *repl) history(ctx context.Context) {
	r.ctrl.WaitSaves()
	ctx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()

	recs, err := r.store.RecentConversations(ctx, r.userID, 5, 0)
	if err != nil {
		r.printf("History is unavailable right now.\n")
		return
	}
	if len(recs) == 0 {
		r.printf("No conversations yet.\n")
		return
	}
	for _, rec := range recs {
		r.printf("- %s  %s: %s\n", formatWhen(rec.CreatedAt), rec.Mood, excerpt(rec.Message, 80))
	}
}

func sameQuestions(a, b []models.Question) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
