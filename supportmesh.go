// Package supportmesh provides a high-level façade over the support request
// router: a triage router, the closed set of specialist handlers, the gated
// capability registry and the runner that streams each turn's events.
//
// Most applications interact with this package by:
//  1. Creating a Mesh via New() with a model.Model (optionally overriding the
//     catalog, guardrail or limits)
//  2. Creating one SupportContext per conversation via NewSession
//  3. Running turns asynchronously (Run) or synchronously (RunSync)
//
// All defaults are safe for local development and testing.
package supportmesh

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/supportmesh/agent"
	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/config"
	"github.com/hupe1980/supportmesh/core"
	"github.com/hupe1980/supportmesh/flow"
	"github.com/hupe1980/supportmesh/guardrail"
	"github.com/hupe1980/supportmesh/logging"
	"github.com/hupe1980/supportmesh/model"
	"github.com/hupe1980/supportmesh/model/anthropic"
	"github.com/hupe1980/supportmesh/model/gemini"
	"github.com/hupe1980/supportmesh/model/offline"
	"github.com/hupe1980/supportmesh/model/openai"
	"github.com/hupe1980/supportmesh/runner"
	"github.com/hupe1980/supportmesh/session"
	"github.com/hupe1980/supportmesh/triage"
)

// Options configures the Mesh instance.
type Options struct {
	// Catalog holds the handler directives; defaults to the embedded catalog.
	Catalog *agent.Catalog

	// Capabilities registered in addition to the built-ins.
	Capabilities []*capability.Capability

	// Guardrail checks every drafted final message.
	Guardrail guardrail.Evaluator

	// MaxGuardrailRetries bounds regenerations after a rejected draft.
	MaxGuardrailRetries int

	// MaxSteps bounds model calls per handler and turn.
	MaxSteps int

	// MaxParallelActions limits concurrently executing capability calls of
	// one model response. 0 means unbounded.
	MaxParallelActions int

	// StreamChunks emits accepted answers as message-chunk events before
	// the final-message.
	StreamChunks bool

	// StreamModel requests streaming generation from the model.
	StreamModel bool

	// EventBufferSize sets the channel buffer size for event processing.
	EventBufferSize int

	// Store records the turn transcript (defaults to in-memory).
	Store session.Store

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating router, specialists and runner.
type Mesh struct {
	opts        Options
	model       model.Model
	registry    *capability.Registry
	router      *triage.Router
	specialists *agent.Set
	runner      *runner.Runner
}

// New wires a Mesh around m.
func New(m model.Model, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		Guardrail:           guardrail.NoApologies(),
		MaxGuardrailRetries: 2,
		MaxSteps:            8,
		MaxParallelActions:  4,
		EventBufferSize:     64,
		Store:               session.NewInMemoryStore(),
		Logger:              logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Catalog == nil {
		c, err := agent.DefaultCatalog()
		if err != nil {
			return nil, err
		}
		opts.Catalog = c
	}

	registry := capability.NewRegistry(func(o *capability.RegistryOptions) { o.Logger = opts.Logger })
	if err := registry.Register(capability.Builtins()...); err != nil {
		return nil, err
	}
	if err := registry.Register(opts.Capabilities...); err != nil {
		return nil, err
	}

	executor := flow.NewExecutor(registry, flow.ExecutorConfig{MaxParallel: opts.MaxParallelActions})

	router, err := triage.NewRouter(opts.Catalog.Triage, m, registry, func(o *triage.Options) {
		o.Executor = executor
		o.StreamModel = opts.StreamModel
	})
	if err != nil {
		return nil, err
	}

	specialists := make([]*agent.Specialist, 0, len(opts.Catalog.Specialists))
	for _, def := range opts.Catalog.Specialists {
		sp, err := agent.NewSpecialist(def, m, registry, func(o *agent.SpecialistOptions) {
			o.Guardrail = opts.Guardrail
			o.MaxGuardrailRetries = opts.MaxGuardrailRetries
			o.StreamChunks = opts.StreamChunks
			o.StreamModel = opts.StreamModel
			o.Executor = executor
		})
		if err != nil {
			return nil, err
		}
		specialists = append(specialists, sp)
	}

	set, err := agent.NewSet(specialists...)
	if err != nil {
		return nil, err
	}

	r := runner.New(router, set, func(o *runner.Options) {
		o.MaxSteps = opts.MaxSteps
		o.EventBufferSize = opts.EventBufferSize
		o.Store = opts.Store
		o.Logger = opts.Logger
	})

	opts.Logger.Info("supportmesh.ready",
		"model", m.Info().Name,
		"provider", m.Info().Provider,
		"capabilities", len(registry.Names()),
	)

	return &Mesh{
		opts:        opts,
		model:       m,
		registry:    registry,
		router:      router,
		specialists: set,
		runner:      r,
	}, nil
}

// NewSession creates the shared SupportContext for one conversation.
func (m *Mesh) NewSession(fields core.SupportFields) *core.SupportContext {
	return core.NewSupportContext(fields)
}

// Run starts a turn returning event & error channels.
func (m *Mesh) Run(ctx context.Context, sc *core.SupportContext, text string) (string, <-chan core.Event, <-chan error, error) {
	return m.runner.Run(ctx, sc, text)
}

// RunSync runs a turn and returns its buffered result.
func (m *Mesh) RunSync(ctx context.Context, sc *core.SupportContext, text string) (runner.TurnResult, error) {
	return m.runner.RunSync(ctx, sc, text)
}

// History returns the recorded turns.
func (m *Mesh) History() []session.TurnRecord { return m.opts.Store.List() }

// Registry exposes the capability registry.
func (m *Mesh) Registry() *capability.Registry { return m.registry }

// Specialists exposes the specialist set.
func (m *Mesh) Specialists() *agent.Set { return m.specialists }

// Model returns the generation model.
func (m *Mesh) Model() model.Model { return m.model }

// NewModel builds the generation model selected by cfg.
func NewModel(ctx context.Context, cfg *config.Config) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOffline:
		return offline.NewModel(), nil
	case config.ProviderGemini:
		m, err := gemini.NewModel(ctx, func(o *gemini.Options) {
			o.APIKey = cfg.GeminiAPIKey
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewFromConfig builds the model selected by cfg and wires a Mesh around it.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger logging.Logger, optFns ...func(o *Options)) (*Mesh, error) {
	m, err := NewModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cfg.Provider, err)
	}

	return New(m, append([]func(o *Options){func(o *Options) {
		o.MaxGuardrailRetries = cfg.MaxGuardrailRetries
		o.MaxSteps = cfg.MaxSteps
		o.MaxParallelActions = cfg.MaxParallelActions
		o.StreamChunks = cfg.StreamChunks
		o.Logger = logger
	}}, optFns...)...)
}
