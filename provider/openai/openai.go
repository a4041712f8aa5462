package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/mohammad-safakhou/frontdesk/models"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.openai.com/v1"

// client is a confidence judge backed by any OpenAI-compatible chat completions endpoint.
type client struct {
	apiKey       string
	baseURL      string
	model        string
	temperature  float64
	maxTokens    int
	httpClient   *http.Client
	businessName string
	knowledge    func() []models.KnowledgeEntry
	logger       *zap.Logger
}

// Option customises the client.
type Option func(*client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *client) { c.httpClient = h } }

// WithBusinessName names the business in the system prompt.
func WithBusinessName(name string) Option { return func(c *client) { c.businessName = name } }

// WithKnowledge supplies reference entries listed in the prompt as background.
func WithKnowledge(fn func() []models.KnowledgeEntry) Option {
	return func(c *client) { c.knowledge = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// request represents a request to the chat completions API
type request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// response represents a response from the chat completions API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a judge client. An empty baseURL means api.openai.com.
func NewOpenAIClient(apiKey, baseURL, model string, temperature float64, maxTokens int, timeout time.Duration, opts ...Option) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		temperature:  temperature,
		maxTokens:    maxTokens,
		httpClient:   &http.Client{Timeout: timeout},
		businessName: "our business",
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var systemPrompt = template.Must(template.New("system").Parse(`You are the receptionist for {{.Business}}. You decide whether a stored answer can be given to a caller without checking with a human supervisor.
{{if .Knowledge}}
Known answers:
{{range .Knowledge}}- Q: {{.Question}}
  A: {{.Answer}}
{{end}}{{end}}
Rules:
- Only be confident if the stored answer actually answers the caller's question.
- Never add facts that are not in the stored answer.
- If unsure, you are not confident. Asking a human is always acceptable.

Respond ONLY with JSON: {"confident": true|false, "answer": "what to say to the caller"}`))

var userPrompt = template.Must(template.New("user").Parse(`Caller question: "{{.Question}}"
Stored answer: "{{.Candidate}}"
{{- if .Context}}
Conversation context:
{{.Context}}
{{- end}}`))

type promptData struct {
	Business  string
	Knowledge []models.KnowledgeEntry
	Question  string
	Candidate string
	Context   string
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Judge asks the model whether candidateAnswer is safe to return for question.
func (c *client) Judge(ctx context.Context, question, candidateAnswer, qctx string) (models.Judgment, error) {
	data := promptData{
		Business:  c.businessName,
		Question:  question,
		Candidate: candidateAnswer,
		Context:   strings.TrimSpace(qctx),
	}
	if c.knowledge != nil {
		data.Knowledge = c.knowledge()
	}
	sys, err := render(systemPrompt, data)
	if err != nil {
		return models.Judgment{}, fmt.Errorf("render system prompt: %w", err)
	}
	usr, err := render(userPrompt, data)
	if err != nil {
		return models.Judgment{}, fmt.Errorf("render user prompt: %w", err)
	}

	content, err := c.sendRequest(ctx, []Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: usr},
	})
	if err != nil {
		return models.Judgment{}, fmt.Errorf("%w: %v", models.ErrJudgmentUnavailable, err)
	}
	j, err := parseJudgment(content)
	if err != nil {
		c.logger.Warn("malformed judgment", zap.String("content", content), zap.Error(err))
		return models.Judgment{}, fmt.Errorf("%w: %v", models.ErrJudgmentUnavailable, err)
	}
	return j, nil
}

// parseJudgment accepts the JSON object, optionally wrapped in a markdown fence.
func parseJudgment(content string) (models.Judgment, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var raw struct {
		Confident *bool  `json:"confident"`
		Answer    string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return models.Judgment{}, fmt.Errorf("decode judgment: %w", err)
	}
	if raw.Confident == nil {
		return models.Judgment{}, fmt.Errorf("judgment missing confident flag")
	}
	return models.Judgment{Confident: *raw.Confident, Answer: strings.TrimSpace(raw.Answer)}, nil
}

// sendRequest sends a chat completion request and returns the first choice's content.
func (c *client) sendRequest(ctx context.Context, messages []Message) (string, error) {
	requestBody := request{
		Model:          c.model,
		Messages:       messages,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("judge request", zap.String("model", c.model), zap.Int("messages", len(messages)))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var openaiResp response
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return openaiResp.Choices[0].Message.Content, nil
}
