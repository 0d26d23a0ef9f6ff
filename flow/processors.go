package flow

import (
	"fmt"

	"github.com/hupe1980/supportmesh/capability"
	"github.com/hupe1980/supportmesh/core"
	internalutil "github.com/hupe1980/supportmesh/internal/util"
	"github.com/hupe1980/supportmesh/model"
)

// RequestProcessor prepares the model request before each step.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(turn *core.TurnContext, req *model.Request) error
}

// InstructionsProcessor renders a directive template against the latest
// SupportContext snapshot.
type InstructionsProcessor struct {
	template string
}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor(template string) *InstructionsProcessor {
	return &InstructionsProcessor{template: template}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets the rendered system instructions.
func (p *InstructionsProcessor) ProcessRequest(turn *core.TurnContext, req *model.Request) error {
	instructions, err := internalutil.RenderTemplate(p.template, turn.Fields().Map())
	if err != nil {
		return fmt.Errorf("failed to render instructions: %w", err)
	}

	turn.LogDebug("flow.instructions.resolved", "handler", turn.Handler, "length", len(instructions))

	req.Instructions = instructions

	return nil
}

// CapabilitiesProcessor offers the capabilities currently available to the
// acting handler. Availability is recomputed on every step.
type CapabilitiesProcessor struct {
	registry *capability.Registry
}

// NewCapabilitiesProcessor creates a new capabilities processor.
func NewCapabilitiesProcessor(registry *capability.Registry) *CapabilitiesProcessor {
	return &CapabilitiesProcessor{registry: registry}
}

// Name returns the processor's identifier.
func (p *CapabilitiesProcessor) Name() string { return "capabilities" }

// ProcessRequest replaces req.Tools with the available capabilities.
func (p *CapabilitiesProcessor) ProcessRequest(turn *core.TurnContext, req *model.Request) error {
	available := p.registry.ListAvailable(turn.Handler, turn.Fields())

	req.Tools = make([]model.ToolDefinition, 0, len(available))
	for _, c := range available {
		req.Tools = append(req.Tools, model.ToolDefinition{
			Name:        c.Name(),
			Description: c.Description(),
			Parameters:  c.InputSchema(),
		})
	}

	return nil
}
