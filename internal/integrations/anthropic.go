package integrations

import (
	"context"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/promptvault/promptvault/internal/core"
	"github.com/promptvault/promptvault/internal/manager"
)

// AnthropicRequest is the provider-shaped result: system text split out of
// the message list, the way the Messages API expects it.
type AnthropicRequest struct {
	System   []anthropic.MessageSystemPart
	Messages []anthropic.Message
}

// Anthropic converts rendered prompts to Anthropic Messages API shapes.
type Anthropic struct{}

// NewAnthropic returns the Anthropic format adapter.
func NewAnthropic() *Anthropic { return &Anthropic{} }

func (a *Anthropic) Name() string { return "anthropic" }

// Render renders the prompt and returns an *AnthropicRequest.
func (a *Anthropic) Render(ctx context.Context, m *manager.Manager, promptID string, vars map[string]any) (any, error) {
	out, err := m.Render(ctx, promptID, "", vars, manager.RenderOptions{})
	if err != nil {
		return nil, err
	}
	return a.Convert(out)
}

// Convert maps a rendered output to Anthropic's request shape. System
// messages become system parts regardless of position; the rest keep their
// order in the message list.
func (a *Anthropic) Convert(out *manager.RenderedOutput) (*AnthropicRequest, error) {
	req := &AnthropicRequest{}
	for _, msg := range asMessages(out) {
		switch msg.Role {
		case core.RoleSystem:
			req.System = append(req.System, anthropic.MessageSystemPart{
				Type: "text",
				Text: msg.Content,
			})
		case core.RoleUser, core.RoleTool:
			req.Messages = append(req.Messages, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		case core.RoleAssistant:
			req.Messages = append(req.Messages, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		default:
			return nil, fmt.Errorf("role %q has no Anthropic equivalent", msg.Role)
		}
	}
	return req, nil
}
