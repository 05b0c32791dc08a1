// Package insight produces optional narrative commentary for analysed leads.
// Nothing in the analysis path depends on it.
package insight

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

	"github.com/opensource-finance/leadaging/internal/domain"
)

// ChatClient implements domain.InsightGenerator against an
// OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ domain.InsightGenerator = (*ChatClient)(nil)

// NewChatClient builds a client from configuration.
func NewChatClient(cfg domain.InsightConfig) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ChatClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// leadSummary is the user message sent for one lead.
type leadSummary struct {
	LeadID                string  `json:"leadId"`
	Company               string  `json:"company,omitempty"`
	Source                string  `json:"source"`
	Status                string  `json:"status"`
	Score                 float64 `json:"score"`
	EstimatedValue        float64 `json:"estimatedValue"`
	DaysInPipeline        int     `json:"daysInPipeline"`
	DaysSinceLastContact  int     `json:"daysSinceLastContact"`
	DaysUntilNextFollowUp int     `json:"daysUntilNextFollowUp"`
	AgingCategory         string  `json:"agingCategory"`
	RiskLevel             string  `json:"riskLevel"`
	RecommendedAction     string  `json:"recommendedAction"`
	ConversionProbability float64 `json:"conversionProbability"`
	UrgencyScore          float64 `json:"urgencyScore"`
}

// GenerateInsights asks the model for a JSON array of short insight strings.
func (c *ChatClient) GenerateInsights(ctx context.Context, lead *domain.Lead, analysis *domain.AgingAnalysis) ([]string, error) {
	if c == nil {
		return nil, errors.New("chat client is nil")
	}
	if c.endpoint == "" || c.model == "" {
		return nil, errors.New("chat client misconfigured")
	}
	if lead == nil || analysis == nil {
		return nil, errors.New("lead and analysis are required")
	}

	summary, err := json.Marshal(leadSummary{
		LeadID:                lead.ID,
		Company:               lead.Company,
		Source:                lead.Source,
		Status:                string(lead.Status),
		Score:                 lead.Score,
		EstimatedValue:        lead.EstimatedValue,
		DaysInPipeline:        analysis.DaysInPipeline,
		DaysSinceLastContact:  analysis.DaysSinceLastContact,
		DaysUntilNextFollowUp: analysis.DaysUntilNextFollowUp,
		AgingCategory:         string(analysis.AgingCategory),
		RiskLevel:             string(analysis.RiskLevel),
		RecommendedAction:     analysis.RecommendedAction,
		ConversionProbability: analysis.ConversionProbability,
		UrgencyScore:          analysis.UrgencyScore,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal lead summary: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: string(summary)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("chat response has no choices")
	}

	return parseInsights(parsed.Choices[0].Message.Content)
}

// parseInsights extracts a JSON string array from the model reply,
// tolerating surrounding prose or a fenced code block.
func parseInsights(content string) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return nil, errors.New("chat reply has no JSON array")
	}

	var items []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("parse insights: %w", err)
	}

	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("chat reply has no insights")
	}
	return out, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a sales operations assistant. Given a JSON summary of a CRM lead and its aging analysis, " +
			"reply with a JSON array of three short, concrete insight strings for the lead owner and nothing else."
	}
	return prompt
}
