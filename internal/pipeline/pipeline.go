// Package pipeline runs one issue end to end: fetch labeled mail,
// extract and order the source corpus, synthesize the issue, parse and
// verify it, render the HTML, and send. A run is single-threaded and
// runs to completion or fails; there is no retry and no partial send.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/r8slab/the-drop/internal/corpus"
	"github.com/r8slab/the-drop/internal/extract"
	"github.com/r8slab/the-drop/internal/mailstore"
	"github.com/r8slab/the-drop/internal/parse"
	"github.com/r8slab/the-drop/internal/prompt"
	"github.com/r8slab/the-drop/internal/render"
	"github.com/r8slab/the-drop/internal/synth"
)

// Error wraps a stage failure with the stage that produced it.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) *Error {
	return &Error{Stage: stage, Err: err}
}

// Deps are the collaborators one pipeline run needs.
type Deps struct {
	Store     mailstore.MailStore
	Mailer    mailstore.Mailer
	Synth     synth.Synthesizer
	Builder   *corpus.Builder
	Assembler *prompt.Assembler
	Parser    *parse.Parser
	Renderer  *render.Renderer
	Logger    *slog.Logger
}

// Options tune one run.
type Options struct {
	// SendTo is the recipient address.
	SendTo string

	// MaxOutputTokens bounds the synthesizer's output.
	MaxOutputTokens int

	// DryRun skips sending and marking messages read. The rendered
	// issue is still produced in the Result.
	DryRun bool

	// MaxSkipRatio is the fraction of fetched messages allowed to fail
	// extraction before the run aborts instead of sending a thin issue.
	// Zero means the default of 0.5; 1 tolerates any number of skips.
	MaxSkipRatio float64

	// Now supplies the run time; nil means time.Now. Injected so
	// rendering the same content is reproducible in tests.
	Now func() time.Time
}

// Result summarizes one completed run.
type Result struct {
	// Sent reports whether an issue went out. False for an empty
	// mailbox and for dry runs.
	Sent bool

	Subject  string
	HTML     string
	Text     string
	Messages int
	Sources  int
	Items    int
	Skipped  int
}

// Pipeline generates one issue per Run call.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// defaultMaxSkipRatio tolerates up to half the fetched messages being
// unreadable before a run aborts.
const defaultMaxSkipRatio = 0.5

// New creates a pipeline from its collaborators.
func New(deps Deps, opts Options) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.MaxSkipRatio <= 0 {
		opts.MaxSkipRatio = defaultMaxSkipRatio
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger.With("component", "pipeline"),
		now:    now,
	}
}

// Run executes one issue generation. An empty mailbox is a clean
// no-send completion, not an error. Unreadable messages are skipped up
// to MaxSkipRatio of the fetch; beyond that the run aborts rather than
// send an issue missing most of its sources. Any stage failure after
// fetch aborts the run with a stage-tagged error; messages are marked
// read only after the issue is actually sent.
func (p *Pipeline) Run(ctx context.Context, fetch mailstore.FetchOptions) (*Result, error) {
	msgs, err := p.deps.Store.ListLabeledMessages(ctx, fetch)
	if err != nil {
		return nil, stageErr("fetch", err)
	}
	if len(msgs) == 0 {
		p.logger.Info("no new newsletters, nothing to do")
		return &Result{}, nil
	}
	p.logger.Info("newsletters fetched", "count", len(msgs), "since", fetch.Since)

	items, skipped := p.extractAll(msgs)
	if limit := int(p.opts.MaxSkipRatio * float64(len(msgs))); skipped > limit {
		return nil, stageErr("extract",
			fmt.Errorf("%d of %d messages unreadable, tolerance is %d", skipped, len(msgs), limit))
	}
	if len(items) == 0 {
		p.logger.Warn("no readable content in any fetched message", "skipped", skipped)
		return &Result{Messages: len(msgs), Skipped: skipped}, nil
	}

	c := p.deps.Builder.Build(items, fetch.Since)
	if c.Empty() {
		p.logger.Info("corpus empty after filtering, nothing to do")
		return &Result{Messages: len(msgs), Skipped: skipped}, nil
	}

	now := p.now()
	doc := p.deps.Assembler.Assemble(c, now)

	raw, err := p.deps.Synth.Complete(ctx, doc, p.opts.MaxOutputTokens)
	if err != nil {
		return nil, stageErr("synthesize", err)
	}

	content, err := p.deps.Parser.Parse(raw, doc.URLs)
	if err != nil {
		return nil, stageErr("parse", err)
	}

	html, err := p.deps.Renderer.Render(content, extract.MarketImage(items), now)
	if err != nil {
		return nil, stageErr("render", err)
	}

	result := &Result{
		Subject:  p.subject(content, now),
		HTML:     html,
		Text:     p.deps.Renderer.PlainText(content, now),
		Messages: len(msgs),
		Sources:  len(c.Sources),
		Items:    c.ItemCount(),
		Skipped:  skipped,
	}

	if p.opts.DryRun {
		p.logger.Info("dry run, skipping send", "subject", result.Subject)
		return result, nil
	}

	if err := p.deps.Mailer.Send(ctx, p.opts.SendTo, result.Subject, result.HTML, result.Text); err != nil {
		return nil, stageErr("send", err)
	}
	result.Sent = true
	p.logger.Info("issue sent", "to", p.opts.SendTo, "subject", result.Subject)

	// Best effort. A failed MarkRead means the next unread query may
	// refetch these messages, which dedup then absorbs.
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if err := p.deps.Store.MarkRead(ctx, ids); err != nil {
		p.logger.Error("marking messages read failed", "error", err)
	}

	return result, nil
}

// extractAll normalizes every fetched message, skipping the ones with
// no readable content.
func (p *Pipeline) extractAll(msgs []mailstore.RawMessage) ([]*extract.Item, int) {
	var items []*extract.Item
	skipped := 0
	for _, msg := range msgs {
		item, err := extract.FromMessage(msg)
		if err != nil {
			skipped++
			if errors.Is(err, extract.ErrEmptyBody) {
				p.logger.Warn("message skipped, no readable content",
					"id", msg.ID, "from", msg.From, "subject", msg.Subject)
				continue
			}
			p.logger.Error("message extraction failed, skipped",
				"id", msg.ID, "from", msg.From, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, skipped
}

// subject returns the model's subject line, or a dated fallback when
// the model produced none.
func (p *Pipeline) subject(content *parse.IssueContent, now time.Time) string {
	if content.Subject != "" {
		return content.Subject
	}
	p.logger.Warn("no subject generated, using fallback")
	return "Today's Drop: " + now.Format("January 2")
}

// NotifyFailure sends a plain-text failure notification to the
// recipient. Called by the command when a run fails; a notification
// failure is logged, never propagated, so it cannot mask the run error.
func (p *Pipeline) NotifyFailure(ctx context.Context, runErr error) {
	if p.opts.SendTo == "" {
		p.logger.Error("cannot send failure notification, no recipient configured")
		return
	}
	body := fmt.Sprintf("The Drop failed to generate.\n\nError: %v\n", runErr)
	if err := p.deps.Mailer.SendPlain(ctx, p.opts.SendTo, "The Drop: Generation Failed", body); err != nil {
		p.logger.Error("failure notification not sent", "error", err)
		return
	}
	p.logger.Info("failure notification sent", "to", p.opts.SendTo)
}
