// Package gemini provides an implementation of model.Model backed by the
// Google Gen AI SDK (Gemini API).
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/hupe1980/supportmesh/model"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.0-flash"

const (
	roleUser  = "user"
	roleModel = "model"
)

// Options configures the Gemini model adapter.
type Options struct {
	Model           string
	APIKey          string
	Temperature     float32
	MaxOutputTokens int32
}

// Model wraps genai.Client.Models behind model.Model.
type Model struct {
	client *genai.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

// NewModel creates a Gemini API client. When Options.APIKey is empty the SDK
// reads GEMINI_API_KEY / GOOGLE_API_KEY.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:           DefaultModel,
		Temperature:     0.2,
		MaxOutputTokens: 1024,
	}
}

// Generate adapts GenerateContent / GenerateContentStream into
// model.Response values.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents := buildContents(req.Messages)
		if len(contents) == 0 {
			errCh <- errors.New("gemini: no contents")
			return
		}

		cfg := m.buildConfig(req)

		if req.Stream {
			m.handleStreaming(ctx, contents, cfg, out, errCh)
			return
		}

		resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, cfg)
		if err != nil {
			errCh <- fmt.Errorf("gemini api error: %w", err)
			return
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			errCh <- errors.New("gemini: no candidates")
			return
		}

		text, calls := convParts(resp.Candidates[0].Content.Parts)

		out <- model.Response{
			Message:      model.AssistantMessage(text, calls...),
			FinishReason: finishReason(resp.Candidates[0].FinishReason, calls),
			Usage:        convUsage(resp.UsageMetadata),
		}
	}()

	return out, errCh
}

func (m *Model) handleStreaming(
	ctx context.Context,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
	out chan<- model.Response,
	errCh chan<- error,
) {
	var (
		sb     strings.Builder
		calls  []model.ToolCall
		reason genai.FinishReason
		usage  *model.TokenUsage
	)

	for chunk, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, contents, cfg) {
		if err != nil {
			errCh <- fmt.Errorf("gemini streaming error: %w", err)
			return
		}

		if chunk.UsageMetadata != nil {
			usage = convUsage(chunk.UsageMetadata)
		}
		if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
			continue
		}

		cand := chunk.Candidates[0]
		if cand.FinishReason != "" {
			reason = cand.FinishReason
		}

		text, cs := convParts(cand.Content.Parts)
		calls = append(calls, cs...)

		if text != "" {
			sb.WriteString(text)
			out <- model.Response{Partial: true, Message: model.AssistantMessage(text)}
		}
	}

	out <- model.Response{
		Message:      model.AssistantMessage(sb.String(), calls...),
		FinishReason: finishReason(reason, calls),
		Usage:        usage,
	}
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	temp := m.opts.Temperature

	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}

	if req.Instructions != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.Instructions)}}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return cfg
}

// buildContents converts the transcript; consecutive messages with the same
// Gemini role are merged into one Content.
func buildContents(msgs []model.Message) []*genai.Content {
	var (
		contents []*genai.Content
		last     *genai.Content
	)

	for _, msg := range msgs {
		var (
			role  string
			parts []*genai.Part
		)

		switch msg.Role {
		case model.RoleUser:
			role = roleUser
			parts = append(parts, genai.NewPartFromText(msg.Text))
		case model.RoleAssistant:
			role = roleModel
			if msg.Text != "" {
				parts = append(parts, genai.NewPartFromText(msg.Text))
			}
			for _, tc := range msg.ToolCalls {
				args, err := tc.Args()
				if err != nil {
					args = map[string]any{"text": tc.Arguments}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
		case model.RoleTool:
			role = roleUser
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     msg.Name,
				Response: map[string]any{"output": msg.Text},
			}})
		default:
			continue
		}

		if len(parts) == 0 {
			continue
		}

		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, parts...)
			continue
		}

		last = &genai.Content{Role: role, Parts: parts}
		contents = append(contents, last)
	}

	return contents
}

func convParts(parts []*genai.Part) (string, []model.ToolCall) {
	var (
		sb    strings.Builder
		calls []model.ToolCall
	)

	for _, p := range parts {
		switch {
		case p.FunctionCall != nil:
			b, err := json.Marshal(p.FunctionCall.Args)
			if err != nil || p.FunctionCall.Args == nil {
				b = []byte("{}")
			}
			id := p.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			calls = append(calls, model.ToolCall{ID: id, Name: p.FunctionCall.Name, Arguments: string(b)})
		case p.Text != "":
			sb.WriteString(p.Text)
		}
	}

	return sb.String(), calls
}

func finishReason(r genai.FinishReason, calls []model.ToolCall) string {
	if len(calls) > 0 {
		return "tool_calls"
	}
	switch r {
	case genai.FinishReasonMaxTokens:
		return "length"
	case genai.FinishReasonSafety:
		return "content_filter"
	default:
		return "stop"
	}
}

func convUsage(u *genai.GenerateContentResponseUsageMetadata) *model.TokenUsage {
	if u == nil {
		return nil
	}
	return &model.TokenUsage{
		PromptTokens:     int(u.PromptTokenCount),
		CompletionTokens: int(u.CandidatesTokenCount),
		TotalTokens:      int(u.TotalTokenCount),
	}
}

// convSchema converts a JSON schema map into the genai.Schema subset.
// Union types of the form [T, "null"] become T with Nullable set.
func convSchema(s map[string]any) *genai.Schema {
	if s == nil {
		return nil
	}

	gs := &genai.Schema{}

	if d, ok := s["description"].(string); ok {
		gs.Description = d
	}

	switch t := s["type"].(type) {
	case string:
		gs.Type = convType(t)
	case []string:
		gs.Type, gs.Nullable = convUnion(t)
	case []any:
		names := make([]string, 0, len(t))
		for _, v := range t {
			if n, ok := v.(string); ok {
				names = append(names, n)
			}
		}
		gs.Type, gs.Nullable = convUnion(names)
	}

	if enum, ok := s["enum"].([]any); ok {
		for _, v := range enum {
			if v != nil {
				gs.Enum = append(gs.Enum, fmt.Sprintf("%v", v))
			}
		}
	}

	if props, ok := s["properties"].(map[string]any); ok && len(props) > 0 {
		gs.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if ps, ok := v.(map[string]any); ok {
				gs.Properties[k] = convSchema(ps)
			}
		}
	}

	if items, ok := s["items"].(map[string]any); ok {
		gs.Items = convSchema(items)
	}

	switch req := s["required"].(type) {
	case []string:
		gs.Required = req
	case []any:
		for _, r := range req {
			if n, ok := r.(string); ok {
				gs.Required = append(gs.Required, n)
			}
		}
	}

	return gs
}

func convUnion(names []string) (genai.Type, *bool) {
	var (
		typ      genai.Type
		nullable bool
	)
	for _, n := range names {
		if n == "null" {
			nullable = true
			continue
		}
		typ = convType(n)
	}
	if !nullable {
		return typ, nil
	}
	return typ, &nullable
}

func convType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return ""
	}
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
