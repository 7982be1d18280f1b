package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/Ananth-NQI/kb-request-bot/internal/apperr"
	"github.com/Ananth-NQI/kb-request-bot/internal/config"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

const enrichmentInstructions = `You triage knowledge base change requests.
Read the request and answer with a single JSON object and nothing else:
{"request_type": string, "change_description": string, "article_link": string,
 "urgency_level": "Low" | "Medium" | "High" | "Urgent", "feature_name": string}
request_type is a short category such as the task type. change_description
summarizes the change for a technical writer in two or three sentences.
article_link is the most relevant KB URL from the request or "".
feature_name names the product feature affected in a few words.`

// OpenAIEnricher infers enrichment fields with the OpenAI Responses API.
// It is used when no enrichment workflow is configured.
type OpenAIEnricher struct {
	client  openai.Client
	model   string
	enabled bool
}

// NewOpenAIEnricher creates an enricher for cfg. Retries are left to the
// caller's retry policy.
func NewOpenAIEnricher(cfg config.OpenAIConfig) *OpenAIEnricher {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIEnricher{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		enabled: cfg.Enabled(),
	}
}

// Enabled reports whether an API key is configured.
func (o *OpenAIEnricher) Enabled() bool {
	return o.enabled
}

// Enrich asks the model for the enrichment fields.
func (o *OpenAIEnricher) Enrich(ctx context.Context, message, userID string) (*models.Enrichment, error) {
	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:        o.model,
		Instructions: openai.String(enrichmentInstructions),
		Input:        responses.ResponseNewParamsInputUnion{OfString: openai.String(message)},
		User:         openai.String(userID),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &apperr.HTTPError{Service: "openai", StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	return parseEnrichment(resp.OutputText())
}

// Health reports the OpenAI enricher's configuration; it does not call the API.
func (o *OpenAIEnricher) Health(context.Context) ComponentHealth {
	if !o.enabled {
		return ComponentHealth{Status: HealthDisabled, Message: "OPENAI_API_KEY not configured"}
	}
	return ComponentHealth{Status: HealthHealthy, Message: "openai " + o.model}
}

// parseEnrichment decodes a JSON object, tolerating a surrounding code fence.
func parseEnrichment(text string) (*models.Enrichment, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("enrichment response is not a JSON object")
	}

	var out models.Enrichment
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode enrichment response: %w", err)
	}
	return &out, nil
}
