package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/supportmesh/agent"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/logging"
	"github.com/hupe1980/supportmesh/session"
	"github.com/hupe1980/supportmesh/triage"
)

// ErrEmptyInput is returned by Run for blank input. Such turns are skipped.
var ErrEmptyInput = errors.New("empty input")

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// MaxSteps limits model calls per handler and turn.
	MaxSteps int
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// Store records the conversation transcript.
	Store session.Store
	// Logger receives runner and handler logs.
	Logger logging.Logger
}

// TurnResult is the buffered outcome of one turn.
type TurnResult struct {
	TurnID   string
	Events   []core.Event
	Err      error
	Snapshot core.SupportFields
}

// FinalText returns the accepted answer, or "" for a failed turn.
func (r TurnResult) FinalText() string {
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].Type == core.EventFinalMessage {
			return r.Events[i].Text
		}
	}
	return ""
}

// Runner coordinates one conversation. Public methods are safe for
// concurrent use; turns are processed strictly sequentially.
type Runner struct {
	router      *triage.Router
	specialists *agent.Set

	maxSteps        int
	eventBufferSize int
	store           session.Store
	logger          logging.Logger

	turnSem chan struct{}
}

// New constructs a Runner with optional overrides.
func New(router *triage.Router, specialists *agent.Set, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxSteps:        8,
		EventBufferSize: 64,
		Store:           session.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{
		router:          router,
		specialists:     specialists,
		maxSteps:        opts.MaxSteps,
		eventBufferSize: opts.EventBufferSize,
		store:           opts.Store,
		logger:          opts.Logger,
		turnSem:         make(chan struct{}, 1),
	}
}

// Store returns the transcript store.
func (r *Runner) Store() session.Store { return r.store }

// Run starts a turn for text against sc and returns its id plus the event and
// error streams. Both streams are closed when the turn has terminated; the
// error stream carries at most one error.
//
// Run blocks while a previous turn is still in flight. ctx only bounds that
// wait and the delivery of events; it never aborts a started turn.
func (r *Runner) Run(ctx context.Context, sc *core.SupportContext, text string) (string, <-chan core.Event, <-chan error, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil, nil, ErrEmptyInput
	}

	if sc == nil {
		return "", nil, nil, fmt.Errorf("support context is required")
	}

	select {
	case r.turnSem <- struct{}{}:
	case <-ctx.Done():
		return "", nil, nil, ctx.Err()
	}

	turnID := core.NewTurnID()
	started := time.Now()

	if err := r.store.Begin(turnID, text, started); err != nil {
		<-r.turnSem
		return "", nil, nil, fmt.Errorf("failed to record turn: %w", err)
	}

	emit := make(chan core.Event, r.eventBufferSize)
	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	done := make(chan error, 1)

	turn := core.NewTurnContext(context.WithoutCancel(ctx), turnID, text, sc, r.maxSteps, emit, r.logger)

	r.logger.Info("runner.turn.start", "turn_id", turnID)

	go func() {
		defer close(emit)
		done <- r.execute(turn, text)
	}()

	go func() {
		defer func() { <-r.turnSem }()
		defer func() { close(eventsCh); close(errorsCh) }()

		r.forward(ctx, turnID, emit, eventsCh)

		err := <-done

		r.finish(turnID, sc, started, err)

		if err != nil {
			errorsCh <- err
		}
	}()

	return turnID, eventsCh, errorsCh, nil
}

// RunSync runs a turn and buffers its events.
func (r *Runner) RunSync(ctx context.Context, sc *core.SupportContext, text string) (TurnResult, error) {
	turnID, events, errs, err := r.Run(ctx, sc, text)
	if err != nil {
		return TurnResult{}, err
	}

	res := TurnResult{TurnID: turnID}

	for ev := range events {
		res.Events = append(res.Events, ev)
	}

	for e := range errs {
		res.Err = e
	}

	res.Snapshot = sc.Snapshot()

	return res, nil
}

// execute routes the turn and runs the selected specialist. A failure is
// reported with a turn-failed event before it is returned.
func (r *Runner) execute(turn *core.TurnContext, text string) error {
	author := r.router.Name()

	err := func() error {
		decision, err := r.router.Route(turn, text)
		if err != nil {
			return err
		}

		sp := r.specialists.Select(&decision.Target)
		author = sp.Name()

		if err := turn.EmitEvent(core.NewHandoffCompletedEvent(sp.Name())); err != nil {
			return err
		}

		_, err = sp.Handle(turn, text)

		return err
	}()

	if err != nil {
		r.logger.Error("runner.turn.failed", "turn_id", turn.TurnID, "handler", author, "error", err)
		_ = turn.EmitEvent(core.NewTurnFailedEvent(author, err))
	}

	return err
}

// forward records every emitted event and delivers it to the caller until
// ctx is cancelled. Recording continues after cancellation so the turn is
// always drained.
func (r *Runner) forward(ctx context.Context, turnID string, emit <-chan core.Event, eventsCh chan<- core.Event) {
	deliver := true

	for ev := range emit {
		if err := r.store.AppendEvent(turnID, ev); err != nil {
			r.logger.Warn("runner.event.record_failed", "turn_id", turnID, "event_id", ev.ID, "error", err)
		}

		if !deliver {
			continue
		}

		select {
		case eventsCh <- ev:
			r.logger.Debug("runner.event.delivered", "turn_id", turnID, "type", ev.Type, "author", ev.Author)
		case <-ctx.Done():
			deliver = false
			r.logger.Warn("runner.event.delivery_stopped", "turn_id", turnID, "error", ctx.Err())
		}
	}
}

func (r *Runner) finish(turnID string, sc *core.SupportContext, started time.Time, err error) {
	duration := time.Since(started)

	ferr := r.store.Finish(turnID, func(rec *session.TurnRecord) {
		rec.Snapshot = sc.Snapshot()
		rec.Duration = duration
		if err != nil {
			rec.Err = err.Error()
		}
	})
	if ferr != nil {
		r.logger.Warn("runner.turn.record_failed", "turn_id", turnID, "error", ferr)
	}

	r.logger.Info("runner.turn.complete",
		"turn_id", turnID,
		"failed", err != nil,
		"duration_ms", duration.Milliseconds(),
	)
}
