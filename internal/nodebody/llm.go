package nodebody

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smilemakc/mbflow/internal/domain"
	domainerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

// LLMCompletionBody runs a single chat completion via the OpenAI API,
// reading "prompt" (required), "model" (default gpt-4o-mini), "max_tokens",
// and "temperature" from the node's input, and writing "completion" to
// output.
type LLMCompletionBody struct {
	client       *openai.Client
	defaultModel string
}

// NewLLMCompletionBody returns an LLMCompletionBody backed by an OpenAI
// client constructed with apiKey.
func NewLLMCompletionBody(apiKey, defaultModel string) *LLMCompletionBody {
	if defaultModel == "" {
		defaultModel = openai.GPT4oMini
	}
	return &LLMCompletionBody{client: openai.NewClient(apiKey), defaultModel: defaultModel}
}

// Execute implements engine.NodeBody.
func (b *LLMCompletionBody) Execute(ctx context.Context, wctx *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
	prompt, _ := nctx.Input["prompt"].(string)
	if prompt == "" {
		return nil, domainerrors.New(domainerrors.KindValidation, "", wctx.InstanceID, nctx.NodeID, "llm body requires 'prompt' in input", nil)
	}
	model, _ := nctx.Input["model"].(string)
	if model == "" {
		model = b.defaultModel
	}
	maxTokens, _ := nctx.Input["max_tokens"].(int)
	temperature, _ := nctx.Input["temperature"].(float64)

	req := openai.ChatCompletionRequest{
		Model:               model,
		MaxCompletionTokens: maxTokens,
		Temperature:         float32(temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, domainerrors.New(domainerrors.KindNodeBody, "", wctx.InstanceID, nctx.NodeID, fmt.Sprintf("openai api error: %v", err), err)
	}
	if len(resp.Choices) == 0 {
		return nil, domainerrors.New(domainerrors.KindNodeBody, "", wctx.InstanceID, nctx.NodeID, "openai returned no choices", nil)
	}

	nctx.Output["completion"] = resp.Choices[0].Message.Content
	nctx.Output["finish_reason"] = string(resp.Choices[0].FinishReason)
	nctx.Output["usage_total_tokens"] = resp.Usage.TotalTokens

	return &domain.NodeInstance{NodeID: nctx.NodeID, Status: domain.NodeCompleted, Output: nctx.Output}, nil
}
