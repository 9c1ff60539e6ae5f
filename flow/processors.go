package flow

import (
	"fmt"

	"github.com/hupe1980/docsmesh/core"
	internalutil "github.com/hupe1980/docsmesh/internal/util"
	"github.com/hupe1980/docsmesh/model"
	"github.com/hupe1980/docsmesh/tool"
)

// InstructionsProcessor renders the system prompt against the working context.
type InstructionsProcessor struct {
	instructions string
}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor(instructions string) *InstructionsProcessor {
	return &InstructionsProcessor{instructions: instructions}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets the system instructions of the model request.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request) error {
	instructions, err := internalutil.RenderTemplate(p.instructions, runCtx.WorkingContext)
	if err != nil {
		return fmt.Errorf("failed to render instructions: %w", err)
	}

	runCtx.LogDebug("flow.instructions.resolved", "length", len(instructions))

	req.Instructions = instructions

	return nil
}

// ContentsProcessor copies the conversation history into the request.
type ContentsProcessor struct {
	maxHistory int
}

// NewContentsProcessor creates a new contents processor. maxHistory <= 0 keeps
// the whole history.
func NewContentsProcessor(maxHistory int) *ContentsProcessor {
	return &ContentsProcessor{maxHistory: maxHistory}
}

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest adds the conversation snapshot to the request. When trimming,
// the window always starts at a user message so tool calls and their results
// stay together.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request) error {
	messages := runCtx.Conversation.Snapshot()

	if p.maxHistory > 0 && len(messages) > p.maxHistory {
		start := len(messages) - p.maxHistory
		for start > 0 && messages[start].Role != core.RoleUser {
			start--
		}
		messages = messages[start:]
	}

	req.Messages = messages

	return nil
}

// ToolsProcessor declares the registered tools to the model.
type ToolsProcessor struct {
	registry *tool.Registry
}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor(registry *tool.Registry) *ToolsProcessor {
	return &ToolsProcessor{registry: registry}
}

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets the tool definitions of the request.
func (p *ToolsProcessor) ProcessRequest(_ *core.RunContext, req *model.Request) error {
	if p.registry == nil {
		return nil
	}
	defs := p.registry.Definitions()
	req.Tools = make([]model.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		req.Tools = append(req.Tools, model.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return nil
}
