package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docbrief/internal/config"
	"docbrief/internal/model"
)

const defaultPrompt = "Summarize the following document concisely. Keep key facts, figures and conclusions."

// OpenAIProcessor calls an OpenAI-compatible chat completions endpoint.
type OpenAIProcessor struct {
	baseURL   string
	apiKey    string
	model     string
	prompt    string
	maxTokens int
	client    *http.Client
}

func NewOpenAIProcessor(cfg config.LLMConfig) *OpenAIProcessor {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &OpenAIProcessor{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		prompt:    prompt,
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProcessor) Invoke(ctx context.Context, input string) (model.SummaryResult, error) {
	payload, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.prompt},
			{Role: "user", Content: input},
		},
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return model.SummaryResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return model.SummaryResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return model.SummaryResult{}, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return model.SummaryResult{}, fmt.Errorf("llm response: %w", err)
	}
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return model.SummaryResult{}, fmt.Errorf("llm decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return model.SummaryResult{}, fmt.Errorf("llm error: %s", msg)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return model.SummaryResult{}, errors.New("llm returned no summary")
	}
	return model.SummaryResult{
		Summary:    strings.TrimSpace(out.Choices[0].Message.Content),
		Model:      p.model,
		TokensUsed: out.Usage.TotalTokens,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
