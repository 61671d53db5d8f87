// Package agent provides the model-driven browser worker.
//
// Each run observes the page, asks the model for one JSON action, executes
// it through the browser and reports a progress event whose cursor records
// the step count, the current URL and the agent's notes. A resumed run
// navigates back to the cursor URL and continues with its notes.
//
//	provider, _ := openai.NewProvider(key)
//	worker := agent.New(provider, agent.WithMaxSteps(40))
//	orch := orchestrator.New(pool, worker)
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/browser"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/llm"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/llm/tokenizer"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/runner"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
)

// Page is the part of a browser session the agent drives.
type Page interface {
	Navigate(url string) error
	Click(selector string) error
	Fill(selector, value string) error
	Observe(maxText int) (*browser.Observation, error)
	ExtractText(selector string) (string, error)
	CurrentURL() string
}

var _ Page = (*browser.Session)(nil)

// PageResolver returns the page behind a leased session.
type PageResolver func(s *session.Session) (Page, error)

// BrowserPage resolves sessions created by browser.Launcher.
func BrowserPage(s *session.Session) (Page, error) {
	p, ok := s.Handle.(*browser.Session)
	if !ok {
		return nil, fmt.Errorf("session %s has no browser page (handle %T)", s.ID, s.Handle)
	}
	return p, nil
}

const (
	defaultMaxSteps             = 40
	defaultMaxObservationTokens = 3000
	defaultHistory              = 8
	maxExtractTokens            = 800
	// maxRepeatedErrors identical failures within the error ring end the run.
	maxRepeatedErrors = 3
)

// Worker implements runner.Worker.
type Worker struct {
	provider             llm.Provider
	pages                PageResolver
	tokenizer            *tokenizer.Tokenizer
	maxSteps             int
	maxObservationTokens int
	history              int
	logger               *logging.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithPageResolver replaces BrowserPage.
func WithPageResolver(fn PageResolver) Option {
	return func(w *Worker) {
		w.pages = fn
	}
}

// WithTokenizer sets the tokenizer used to budget observations.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(w *Worker) {
		w.tokenizer = t
	}
}

// WithMaxSteps bounds the actions of one run. Zero means unbounded.
func WithMaxSteps(n int) Option {
	return func(w *Worker) {
		w.maxSteps = n
	}
}

// WithMaxObservationTokens bounds the page text sent per step.
func WithMaxObservationTokens(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxObservationTokens = n
		}
	}
}

// WithHistory sets how many earlier messages are replayed to the model.
func WithHistory(n int) Option {
	return func(w *Worker) {
		w.history = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

// New creates a browser agent worker.
func New(provider llm.Provider, opts ...Option) *Worker {
	w := &Worker{
		provider:             provider,
		pages:                BrowserPage,
		maxSteps:             defaultMaxSteps,
		maxObservationTokens: defaultMaxObservationTokens,
		history:              defaultHistory,
		logger:               logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tokenizer == nil {
		w.tokenizer = tokenizer.NewOrEstimate()
	}
	return w
}

// Start implements runner.Worker.
func (w *Worker) Start(ctx context.Context, req runner.Request, ctl runner.Control) (<-chan runner.Event, error) {
	if req.Session == nil {
		return nil, errors.New("request has no session")
	}
	page, err := w.pages(req.Session)
	if err != nil {
		return nil, err
	}

	var cur Cursor
	if req.Resumed {
		cur = DecodeCursor(req.ResumeCursor)
	}

	events := make(chan runner.Event)
	r := &run{
		w:      w,
		req:    req,
		ctl:    ctl,
		page:   page,
		cur:    cur,
		events: events,
		logger: w.logger.With("assignment_id", req.AssignmentID),
	}
	go r.loop(ctx)
	return events, nil
}

// run is the state of one Start call.
type run struct {
	w      *Worker
	req    runner.Request
	ctl    runner.Control
	page   Page
	cur    Cursor
	events chan runner.Event
	logger *logging.Logger

	exchanges []*llm.Message
	feedback  string

	// Ring buffer of the last error messages
	lastErrors [5]string
	errorIndex int
}

func (r *run) emit(ctx context.Context, ev runner.Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *run) fail(ctx context.Context, err error) {
	r.logger.Warnf("run failed: %v", err)
	r.emit(ctx, runner.Failed(err))
}

func (r *run) loop(ctx context.Context) {
	defer close(r.events)

	if r.cur.URL != "" && r.page.CurrentURL() != r.cur.URL {
		if err := r.page.Navigate(r.cur.URL); err != nil {
			r.fail(ctx, fmt.Errorf("restore %s: %w", r.cur.URL, err))
			return
		}
	}
	r.logger.Infof("starting at step %d on %s (resumed=%t)", r.cur.Step, r.w.provider.GetModel(), r.req.Resumed)

	intro := []*llm.Message{
		llm.NewSystemMessage(systemPrompt),
		llm.NewUserMessage(taskPrompt(r.req, r.cur)),
	}

	for turn := 0; ; turn++ {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-r.ctl.PauseRequested():
			r.logger.Infof("pausing at step %d", r.cur.Step)
			r.emit(ctx, runner.Paused(r.cur.Encode()))
			return
		default:
		}
		if r.w.maxSteps > 0 && turn >= r.w.maxSteps {
			r.fail(ctx, fmt.Errorf("no result after %d steps", r.w.maxSteps))
			return
		}

		act, err := r.decide(ctx, intro)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.fail(ctx, err)
			return
		}
		if act == nil {
			continue
		}

		switch act.Action {
		case ActionDone:
			r.emit(ctx, runner.Result(act.Result))
			return
		case ActionFail:
			r.emit(ctx, runner.Failed(errors.New(act.Reason)))
			return
		}

		if err := r.execute(*act); err != nil {
			msg := fmt.Sprintf("%s failed: %v", act.Summary(), err)
			r.feedback = msg
			if r.recordError(msg) {
				r.fail(ctx, fmt.Errorf("giving up after repeated failures: %s", msg))
				return
			}
		}

		r.cur.Step++
		r.cur.URL = r.page.CurrentURL()
		r.cur.addNote(act.Note)
		if !r.emit(ctx, runner.Progress(r.cur.Encode(), act.Summary())) {
			return
		}
	}
}

// decide observes the page and asks the model for the next action. A nil
// action with a nil error means the reply was unusable and the model was
// told so.
func (r *run) decide(ctx context.Context, intro []*llm.Message) (*Action, error) {
	obs, err := r.page.Observe(r.w.maxObservationTokens * 4)
	if err != nil {
		return nil, fmt.Errorf("observe page: %w", err)
	}
	page, cut := r.w.tokenizer.Truncate(obs.Render(), r.w.maxObservationTokens)
	if cut {
		page += "\n[observation truncated]"
	}

	prompt := llm.NewUserMessage(observationPrompt(r.cur.Step, page, r.feedback))
	r.feedback = ""

	messages := make([]*llm.Message, 0, len(intro)+len(r.exchanges)+1)
	messages = append(messages, intro...)
	messages = append(messages, r.exchanges...)
	messages = append(messages, prompt)
	r.logger.Debugf("step %d prompt tokens: %d", r.cur.Step, r.w.tokenizer.CountMessagesTokens(messages))

	reply, err := r.w.provider.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	r.remember(llm.NewUserMessage(fmt.Sprintf("Step %d at %s", r.cur.Step+1, obs.URL)), reply)

	act, err := ParseAction(reply.Content)
	if err != nil {
		msg := fmt.Sprintf("invalid reply: %v. Answer with exactly one JSON action", err)
		r.feedback = msg
		if r.recordError(msg) {
			return nil, fmt.Errorf("model kept replying with invalid actions: %w", err)
		}
		return nil, nil
	}
	return &act, nil
}

// remember keeps a compact trace of earlier turns; full pages are never
// replayed.
func (r *run) remember(msgs ...*llm.Message) {
	r.exchanges = append(r.exchanges, msgs...)
	if r.w.history <= 0 {
		r.exchanges = nil
		return
	}
	if over := len(r.exchanges) - r.w.history; over > 0 {
		r.exchanges = append([]*llm.Message(nil), r.exchanges[over:]...)
	}
}

func (r *run) execute(act Action) error {
	switch act.Action {
	case ActionNavigate:
		if err := r.page.Navigate(act.URL); err != nil {
			return err
		}
		r.feedback = "navigated to " + r.page.CurrentURL()
	case ActionClick:
		if err := r.page.Click(act.Selector); err != nil {
			return err
		}
		r.feedback = "clicked " + act.Selector
	case ActionFill:
		if err := r.page.Fill(act.Selector, act.Value); err != nil {
			return err
		}
		r.feedback = "filled " + act.Selector
	case ActionExtract:
		text, err := r.page.ExtractText(act.Selector)
		if err != nil {
			return err
		}
		text, _ = r.w.tokenizer.Truncate(text, maxExtractTokens)
		r.feedback = "extracted text:\n" + text
	}
	return nil
}

// recordError stores msg in the ring and reports whether it has now been
// seen maxRepeatedErrors times.
func (r *run) recordError(msg string) bool {
	r.lastErrors[r.errorIndex%len(r.lastErrors)] = msg
	r.errorIndex++
	n := 0
	for _, e := range r.lastErrors {
		if e == msg {
			n++
		}
	}
	return n >= maxRepeatedErrors
}
