package integrations

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/promptvault/promptvault/internal/core"
	"github.com/promptvault/promptvault/internal/manager"
)

// OpenAI converts rendered prompts to OpenAI chat completion messages.
type OpenAI struct{}

// NewOpenAI returns the OpenAI format adapter.
func NewOpenAI() *OpenAI { return &OpenAI{} }

func (o *OpenAI) Name() string { return "openai" }

// Render renders the prompt and returns []openai.ChatCompletionMessage.
func (o *OpenAI) Render(ctx context.Context, m *manager.Manager, promptID string, vars map[string]any) (any, error) {
	out, err := m.Render(ctx, promptID, "", vars, manager.RenderOptions{})
	if err != nil {
		return nil, err
	}
	return o.Convert(out)
}

// Convert maps a rendered output to OpenAI's message slice.
func (o *OpenAI) Convert(out *manager.RenderedOutput) ([]openai.ChatCompletionMessage, error) {
	msgs := asMessages(out)
	converted := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		role, err := openAIRole(msg.Role)
		if err != nil {
			return nil, err
		}
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
			Name:    msg.Name,
		})
	}
	return converted, nil
}

func openAIRole(r core.Role) (string, error) {
	switch r {
	case core.RoleSystem:
		return openai.ChatMessageRoleSystem, nil
	case core.RoleUser:
		return openai.ChatMessageRoleUser, nil
	case core.RoleAssistant:
		return openai.ChatMessageRoleAssistant, nil
	case core.RoleTool:
		return openai.ChatMessageRoleTool, nil
	}
	return "", fmt.Errorf("role %q has no OpenAI equivalent", r)
}
