package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	contractx "github.com/tanpawarit/leavedesk/agent/contract"
)

// ErrSchemaViolation means the model replied with something that is not the
// strict JSON we asked for.
var ErrSchemaViolation = errors.New("classifier response violates schema")

const llmSystemPrompt = `You classify one user message for an employee leave assistant.
Reply with strict JSON only, no prose, no code fences:
{"intent":"check_balance|draft_email|send_email|edit_draft|clarify|unknown","fields":{...}}
Field keys: employee_email, start_date (YYYY-MM-DD), end_date (YYYY-MM-DD), reason, instruction.
Rules:
- "clarify" only when the message answers a pending question from context.
- "edit_draft" only when context has_draft is true; put the full edit request in fields.instruction.
- Extract only what the message states; never invent values.`

// LLM implements contract.Classifier on an OpenAI-compatible chat model.
// Intent classification stays swappable: the router never knows whether
// rules or a model produced the result.
type LLM struct {
	client      *openaisdk.Client
	model       string
	temperature float64
}

func NewLLM(client *openaisdk.Client, model string, temperature float64) (*LLM, error) {
	if client == nil {
		return nil, errors.New("classifier: openai client is required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("classifier: model is required")
	}
	return &LLM{
		client:      client,
		model:       model,
		temperature: temperature,
	}, nil
}

type llmOutput struct {
	Intent string            `json:"intent"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (l *LLM) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return contractx.ClassifyResult{}, fmt.Errorf("%w: marshal classify payload", contractx.ErrValidation)
	}

	resp, err := l.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(l.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(llmSystemPrompt),
			openaisdk.UserMessage(string(payload)),
		},
		Temperature: openaisdk.Float(l.temperature),
	})
	if err != nil {
		return contractx.ClassifyResult{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrTransient, err)
	}
	if len(resp.Choices) == 0 {
		return contractx.ClassifyResult{}, fmt.Errorf("%w: empty completion", ErrSchemaViolation)
	}

	return parseLLMOutput(resp.Choices[0].Message.Content, req)
}

func parseLLMOutput(content string, req contractx.ClassifyRequest) (contractx.ClassifyResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out llmOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return contractx.ClassifyResult{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	intent := contractx.Intent(strings.TrimSpace(out.Intent))
	switch intent {
	case contractx.IntentCheckBalance, contractx.IntentDraftEmail, contractx.IntentSendEmail,
		contractx.IntentEditDraft, contractx.IntentClarify, contractx.IntentUnknown:
	default:
		return contractx.ClassifyResult{}, fmt.Errorf("%w: intent=%q", ErrSchemaViolation, out.Intent)
	}

	if intent == contractx.IntentEditDraft && !req.HasDraft {
		// Tie-break: an edit with nothing to edit is a fresh draft request.
		intent = contractx.IntentDraftEmail
	}

	if out.Fields == nil {
		out.Fields = map[string]string{}
	}
	return contractx.ClassifyResult{
		Intent: intent,
		Fields: out.Fields,
	}, nil
}
