// CLAUDE:SUMMARY Chat-completions semantic judge: prompts an LLM endpoint and repairs its JSON verdict.
// Package judge implements the semantic judge over an OpenAI-compatible
// chat completions endpoint. The model is asked for a strict JSON verdict;
// since models wrap JSON in prose and fences anyway, the reply goes through
// the tolerant repair parser before decoding.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/gleaner/validate"
)

// Config configures the HTTP judge.
type Config struct {
	// BaseURL of the OpenAI-compatible server, without the /v1 suffix.
	BaseURL string
	Model   string
	APIKey  string

	// Timeout per judgement call. Default: 60s.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTPJudge rates extraction samples via a chat completions endpoint.
type HTTPJudge struct {
	cfg    Config
	client *http.Client
}

var _ validate.Judge = (*HTTPJudge)(nil)

// New creates an HTTPJudge.
func New(cfg Config) *HTTPJudge {
	cfg.defaults()
	return &HTTPJudge{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

const systemPrompt = `You rate extracted web data against an instruction.
Reply with exactly one JSON object: {"quality": "good"|"partial"|"poor",
"issues": ["..."], "narrative": "one sentence"}. No other text.`

// Judge implements validate.Judge.
func (j *HTTPJudge) Judge(ctx context.Context, instruction string, sample []map[string]any) (*validate.Judgement, error) {
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("judge: marshal sample: %w", err)
	}

	var user strings.Builder
	user.WriteString("Instruction: ")
	user.WriteString(instruction)
	user.WriteString("\n\nExtracted sample:\n")
	user.Write(sampleJSON)

	req := chatRequest{
		Model: j.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user.String()},
		},
		MaxTokens:   300,
		Temperature: 0,
	}
	content, err := j.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseJudgement(content)
}

func (j *HTTPJudge) send(ctx context.Context, req chatRequest) (string, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("judge: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		j.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("judge: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if j.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+j.cfg.APIKey)
	}

	start := time.Now()
	resp, err := j.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("judge: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("judge: server returned status %d: %s", resp.StatusCode, body)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("judge: decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("judge: empty response")
	}

	j.cfg.Logger.Debug("judge: response received",
		"duration", time.Since(start),
		"finish_reason", chatResp.Choices[0].FinishReason)
	return chatResp.Choices[0].Message.Content, nil
}

// parseJudgement decodes the model's reply through the repair parser and
// normalizes the quality label.
func parseJudgement(content string) (*validate.Judgement, error) {
	parsed, err := validate.RepairJSON(content)
	if err != nil {
		return nil, fmt.Errorf("judge: unparseable verdict: %w", err)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		// Repair may have wrapped a bare object in a list.
		if list, isList := parsed.([]any); isList && len(list) > 0 {
			obj, ok = list[0].(map[string]any)
		}
		if !ok {
			return nil, fmt.Errorf("judge: verdict is not an object")
		}
	}

	out := &validate.Judgement{}
	if q, ok := obj["quality"].(string); ok {
		out.Quality = strings.ToLower(strings.TrimSpace(q))
	}
	if n, ok := obj["narrative"].(string); ok {
		out.Narrative = n
	}
	if issues, ok := obj["issues"].([]any); ok {
		for _, it := range issues {
			if s, ok := it.(string); ok {
				out.Issues = append(out.Issues, s)
			}
		}
	}
	return out, nil
}
