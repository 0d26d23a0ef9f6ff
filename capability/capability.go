package capability

import (
	"errors"
	"fmt"
	"maps"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/internal/util"
)

// Predicate decides whether a capability is enabled for a handler given the
// latest committed session fields. Predicates must be pure.
type Predicate func(fields core.SupportFields, handler string) bool

// ExecuteFunc is the implementation of a capability. args have already been
// validated against the input schema.
type ExecuteFunc func(actx *core.ActionContext, args map[string]any) (string, error)

// Options configures a Capability.
type Options struct {
	// Enabled gates availability; nil means always enabled.
	Enabled Predicate
	// Mutates declares that the capability writes the SupportContext.
	// Only mutating capabilities receive a writable ActionContext.
	Mutates bool
}

// Capability is an immutable action definition.
type Capability struct {
	name        string
	description string
	schema      map[string]any
	compiled    *jsonschema.Schema
	enabled     Predicate
	mutates     bool
	execute     ExecuteFunc
}

// New constructs a Capability from an explicit JSON schema and function.
//
// Example:
//
//	faq, err := capability.New(
//	  "faq",
//	  "Answer a frequently asked question",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{"query": map[string]any{"type": "string"}},
//	    "required": []string{"query"},
//	  },
//	  func(actx *core.ActionContext, args map[string]any) (string, error) {
//	    return "[KB] " + args["query"].(string), nil
//	  },
//	)
func New(name, description string, schema map[string]any, fn ExecuteFunc, optFns ...func(o *Options)) (*Capability, error) {
	if name == "" {
		return nil, errors.New("capability name must not be empty")
	}

	if fn == nil {
		return nil, fmt.Errorf("capability %s missing executor", name)
	}

	opts := Options{}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	if schema == nil {
		schema = util.CreateSchema(nil)
	}

	compiled, err := util.CompileSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("capability %s schema: %w", name, err)
	}

	return &Capability{
		name:        name,
		description: description,
		schema:      schema,
		compiled:    compiled,
		enabled:     opts.Enabled,
		mutates:     opts.Mutates,
		execute:     fn,
	}, nil
}

// NewTyped derives the input schema from the struct type T and decodes the
// validated arguments into T before calling fn.
//
// Example:
//
//	type RefundArgs struct {
//	  OrderID string  `json:"order_id" description:"Order to refund"`
//	  Amount  float64 `json:"amount" description:"Amount in USD"`
//	}
//
//	refund, err := capability.NewTyped("refund", "Process a refund",
//	  func(actx *core.ActionContext, args RefundArgs) (string, error) { ... },
//	  capability.WithPredicate(capability.PremiumOnly()),
//	)
func NewTyped[T any](
	name, description string,
	fn func(actx *core.ActionContext, args T) (string, error),
	optFns ...func(o *Options),
) (*Capability, error) {
	var zero T

	return New(name, description, util.CreateSchema(zero), func(actx *core.ActionContext, args map[string]any) (string, error) {
		var typed T
		if err := util.DecodeArgs(args, &typed); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
		return fn(actx, typed)
	}, optFns...)
}

// Must panics if err is non-nil. Intended for static capability tables.
func Must(c *Capability, err error) *Capability {
	if err != nil {
		panic(err)
	}
	return c
}

// WithPredicate attaches an enablement predicate.
func WithPredicate(p Predicate) func(o *Options) {
	return func(o *Options) { o.Enabled = p }
}

// Mutating marks the capability as allowed to write the SupportContext.
func Mutating() func(o *Options) {
	return func(o *Options) { o.Mutates = true }
}

// Name returns the unique identifier.
func (c *Capability) Name() string { return c.name }

// Description returns the human-readable description shown to models.
func (c *Capability) Description() string { return c.description }

// InputSchema returns a copy of the JSON schema describing accepted arguments.
func (c *Capability) InputSchema() map[string]any { return maps.Clone(c.schema) }

// Mutates reports whether the capability may write the SupportContext.
func (c *Capability) Mutates() bool { return c.mutates }

// Gated reports whether the capability carries an enablement predicate.
func (c *Capability) Gated() bool { return c.enabled != nil }

// Enabled evaluates the predicate for handler against fields.
func (c *Capability) Enabled(fields core.SupportFields, handler string) bool {
	if c.enabled == nil {
		return true
	}
	return c.enabled(fields, handler)
}

// Validate checks args against the input schema.
func (c *Capability) Validate(args map[string]any) error {
	normalized, err := util.NormalizeArgs(args)
	if err != nil {
		return &ValidationError{Capability: c.name, Err: err}
	}

	if err := c.compiled.Validate(normalized); err != nil {
		return &ValidationError{Capability: c.name, Err: err}
	}

	return nil
}

// PremiumOnly enables a capability only for premium users.
func PremiumOnly() Predicate {
	return func(fields core.SupportFields, _ string) bool { return fields.IsPremiumUser }
}

// WhenIssueType enables a capability only while the committed classification
// equals t. An unset classification disables it.
func WhenIssueType(t core.IssueType) Predicate {
	return func(fields core.SupportFields, _ string) bool { return fields.HasIssueType(t) }
}

// All combines predicates with logical AND.
func All(preds ...Predicate) Predicate {
	return func(fields core.SupportFields, handler string) bool {
		for _, p := range preds {
			if p != nil && !p(fields, handler) {
				return false
			}
		}
		return true
	}
}
