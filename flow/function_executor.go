package flow

import (
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/model"
)

// Outcome is the result of one capability invocation.
type Outcome struct {
	Call   core.ActionCall
	Output string
	Err    error
}

// Text renders the outcome as the tool message the model sees.
func (o Outcome) Text() string {
	if o.Err != nil {
		return fmt.Sprintf("Error: %v", o.Err)
	}
	return o.Output
}

// ExecutorConfig configures the parallel action executor.
type ExecutorConfig struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(calls))
	LogStartEvents bool // log a start line per call
}

// Executor dispatches the tool calls of one model response through the
// capability registry. It:
//   - Emits one action-invoked event per call before any execution
//   - Applies mutating capabilities sequentially in call order
//   - Runs the remaining calls concurrently, bounded by MaxParallel
//   - Never panics (recovers and reports an ExecutionError)
//   - Emits exactly one action-result per call, in call order, after all
//     calls have finished
type Executor struct {
	registry *capability.Registry
	cfg      ExecutorConfig
}

// NewExecutor constructs a new executor.
func NewExecutor(registry *capability.Registry, cfg ExecutorConfig) *Executor {
	return &Executor{registry: registry, cfg: cfg}
}

// Execute runs calls on behalf of turn.Handler and returns their outcomes in
// call order. Event emission failures are returned; capability failures are
// reported in the outcomes.
func (e *Executor) Execute(turn *core.TurnContext, calls []model.ToolCall) ([]Outcome, error) {
	n := len(calls)
	if n == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, n)
	argErrs := make([]error, n)

	for i, tc := range calls {
		id := tc.ID
		if id == "" {
			id = core.NewID()
		}

		args, err := tc.Args()
		if err != nil {
			argErrs[i] = &capability.ValidationError{Capability: tc.Name, Err: err}
		}

		outcomes[i].Call = core.ActionCall{ID: id, Name: tc.Name, Args: args}

		if err := turn.EmitEvent(core.NewActionInvokedEvent(turn.Handler, outcomes[i].Call)); err != nil {
			return nil, err
		}
	}

	batchStart := time.Now()

	var parallel []int
	for i := range calls {
		if argErrs[i] != nil {
			outcomes[i].Err = argErrs[i]
			continue
		}
		if c, ok := e.registry.Get(calls[i].Name); ok && c.Mutates() {
			e.run(turn, &outcomes[i])
			continue
		}
		parallel = append(parallel, i)
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > len(parallel) {
		maxPar = len(parallel)
	}

	if len(parallel) > 0 {
		var g errgroup.Group
		g.SetLimit(maxPar)

		for _, idx := range parallel {
			g.Go(func() error {
				e.run(turn, &outcomes[idx])
				return nil
			})
		}

		_ = g.Wait()
	}

	for _, o := range outcomes {
		if err := turn.EmitEvent(core.NewActionResultEvent(turn.Handler, o.Call, o.Output, o.Err)); err != nil {
			return nil, err
		}
	}

	turn.LogDebug(
		"flow.actions.batch.complete",
		"handler", turn.Handler,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return outcomes, nil
}

func (e *Executor) run(turn *core.TurnContext, o *Outcome) {
	if e.cfg.LogStartEvents {
		turn.LogInfo("flow.action.start", "handler", turn.Handler, "capability", o.Call.Name, "call_id", o.Call.ID)
	}

	start := time.Now()

	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				o.Err = &capability.ExecutionError{Capability: o.Call.Name, Err: panicError(r)}
				turn.LogError("flow.action.panic", "handler", turn.Handler, "capability", o.Call.Name, "recover", r)
			}
		}()
		o.Output, o.Err = e.registry.Invoke(core.NewActionContext(turn, o.Call.ID), o.Call.Name, o.Call.Args)
	}()

	turn.LogInfo(
		"flow.action.executed",
		"handler", turn.Handler,
		"capability", o.Call.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", o.Err != nil,
	)
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
