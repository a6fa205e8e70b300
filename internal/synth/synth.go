// Package synth rewrites gated answers through an OpenAI-compatible
// chat endpoint, typically a local model server. Synthesis is strictly
// additive: it receives the full evidence payload and must never be a
// source of facts.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ekb/internal/config"
	"ekb/internal/engine"
	ekberrors "ekb/internal/errors"
	"ekb/internal/logging"
)

const systemPrompt = "Sen mühendislik bilgi tabanı asistanısın. Sadece verilen kanıtlara dayan. " +
	"Kanıt olmayan bilgi uydurma. Cevaptaki açık değerleri (pin, adres, sayı) aynen koru ve " +
	"çelişki üretme. Yanıtı Türkçe ve net ver."

const userInstructions = "Önce kısa cevap ver, sonra 2-4 maddede hangi kanıta dayandığını belirt."

// Client calls a chat completion endpoint to restate an answer. It
// implements engine.Synthesizer.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	log     *logging.Logger
}

// New builds a synthesis client. The API key may be empty for local
// servers that do not check authorization.
func New(cfg config.SynthesisConfig, apiKey string, log *logging.Logger) *Client {
	if log == nil {
		log = logging.NewNop()
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 40 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		log:     log,
	}
}

// Rewrite restates the templated answer grounded on the result's
// citations. Errors carry the SYNTHESIS_FAILED code; callers degrade to
// the template answer.
func (c *Client) Rewrite(ctx context.Context, question string, res *engine.Result) (string, error) {
	return c.RewriteWithModel(ctx, question, "", res)
}

// RewriteWithModel is Rewrite with a per-call model override. An empty
// model uses the configured one.
func (c *Client) RewriteWithModel(ctx context.Context, question, model string, res *engine.Result) (string, error) {
	if model == "" {
		model = c.model
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{
		"question":     question,
		"rag_result":   res,
		"instructions": userInstructions,
	})
	if err != nil {
		return "", ekberrors.New(ekberrors.SynthesisFailed, "cannot encode evidence payload", err)
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		Temperature: 0.2,
		MaxTokens:   600,
	})
	if err != nil {
		return "", ekberrors.New(ekberrors.SynthesisFailed,
			fmt.Sprintf("chat completion against %s failed", model), err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ekberrors.New(ekberrors.SynthesisFailed, "model returned no content", nil)
	}

	c.log.Debug("answer synthesized", map[string]any{
		"model":     model,
		"elapsedMs": time.Since(start).Milliseconds(),
	})
	return resp.Choices[0].Message.Content, nil
}
