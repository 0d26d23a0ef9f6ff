package capability

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/logging"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// Registry holds every capability and the fixed subset bound to each handler.
// Registration and binding happen at startup; lookups are safe for
// concurrent use.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]*Capability
	order        []string
	bindings     map[string][]string
	logger       logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Registry{
		capabilities: make(map[string]*Capability),
		bindings:     make(map[string][]string),
		logger:       opts.Logger,
	}
}

// Register adds capabilities. Names must be unique.
func (r *Registry) Register(caps ...*Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range caps {
		if c == nil {
			return errors.New("cannot register nil capability")
		}
		if _, exists := r.capabilities[c.Name()]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCapability, c.Name())
		}
		r.capabilities[c.Name()] = c
		r.order = append(r.order, c.Name())
	}

	return nil
}

// Get retrieves a capability by name.
func (r *Registry) Get(name string) (*Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[name]
	return c, ok
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.order)
}

// Bind fixes the subset of capabilities handler may invoke. Binding the same
// handler again appends names that are not bound yet.
func (r *Registry) Bind(handler string, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range names {
		if _, ok := r.capabilities[n]; !ok {
			return &NotFoundError{Capability: n}
		}
		if !slices.Contains(r.bindings[handler], n) {
			r.bindings[handler] = append(r.bindings[handler], n)
		}
	}

	return nil
}

// Bound returns the capabilities bound to handler regardless of gating.
func (r *Registry) Bound(handler string) []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Capability, 0, len(r.bindings[handler]))
	for _, n := range r.bindings[handler] {
		out = append(out, r.capabilities[n])
	}

	return out
}

// IsBound reports whether name is part of handler's subset.
func (r *Registry) IsBound(handler, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Contains(r.bindings[handler], name)
}

// ListAvailable returns the capabilities bound to handler whose predicate is
// true for fields. It is evaluated on every call and never cached.
func (r *Registry) ListAvailable(handler string, fields core.SupportFields) []*Capability {
	bound := r.Bound(handler)

	out := make([]*Capability, 0, len(bound))
	for _, c := range bound {
		if c.Enabled(fields, handler) {
			out = append(out, c)
		}
	}

	return out
}

// Invoke validates args, checks gating against the latest committed
// SupportContext and executes the named capability on behalf of
// actx.Handler(). Validation and gating failures never reach the executor.
//
// Logging Fields:
//
//	capability: capability name
//	call_id: correlates the action-invoked and action-result events
//	handler: requesting handler
//	duration_ms: execution time in milliseconds
func (r *Registry) Invoke(actx *core.ActionContext, name string, args map[string]any) (string, error) {
	handler := actx.Handler()

	c, ok := r.Get(name)
	if !ok {
		r.logger.Warn("capability.invoke.not_found", "capability", name, "handler", handler)
		return "", &NotFoundError{Capability: name}
	}

	if !r.IsBound(handler, name) {
		r.logger.Warn("capability.invoke.not_bound", "capability", name, "handler", handler)
		return "", &CapabilityDisabledError{Capability: name, Handler: handler, Reason: ReasonNotBound}
	}

	if err := c.Validate(args); err != nil {
		r.logger.Warn("capability.invoke.validation_failed", "capability", name, "handler", handler, "error", err)
		return "", err
	}

	if !c.Enabled(actx.Fields(), handler) {
		r.logger.Info("capability.invoke.disabled", "capability", name, "handler", handler)
		return "", &CapabilityDisabledError{Capability: name, Handler: handler, Reason: ReasonPredicateFalse}
	}

	start := time.Now()

	r.logger.Debug("capability.invoke.start", "capability", name, "handler", handler, "call_id", actx.CallID())

	out, err := c.execute(actx.ForCapability(name, c.Mutates()), args)
	if err != nil {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			execErr = &ExecutionError{Capability: name, Err: err}
		}

		r.logger.Error("capability.invoke.error", "capability", name, "handler", handler, "error", err)

		return "", execErr
	}

	r.logger.Info("capability.invoke.success", "capability", name, "handler", handler, "duration_ms", time.Since(start).Milliseconds())

	return out, nil
}
