package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Ananth-NQI/kb-request-bot/internal/config"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/validation"
)

// Health states reported by external dependencies.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthDisabled  = "disabled"
	HealthDegraded  = "degraded"
)

// ComponentHealth is the reachability of one dependency.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// WorkflowClient calls the hosted enrichment workflow.
type WorkflowClient struct {
	url           string
	token         string
	httpClient    *http.Client
	healthTimeout time.Duration
}

type workflowRequest struct {
	Inputs workflowInputs `json:"inputs"`
}

type workflowInputs struct {
	PMMessage string `json:"pm_message"`
	UserID    string `json:"user_id"`
}

type workflowResponse struct {
	Outputs *models.Enrichment `json:"outputs"`
}

// NewWorkflowClient creates a client for cfg. An empty URL yields a disabled client.
func NewWorkflowClient(cfg config.WorkflowConfig) *WorkflowClient {
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	return &WorkflowClient{
		url:           cfg.URL,
		token:         cfg.Token,
		httpClient:    &http.Client{},
		healthTimeout: healthTimeout,
	}
}

// Enabled reports whether a workflow URL is configured.
func (w *WorkflowClient) Enabled() bool {
	return w.url != ""
}

// Enrich sends the request text to the workflow and returns its outputs.
func (w *WorkflowClient) Enrich(ctx context.Context, message, userID string) (*models.Enrichment, error) {
	if !w.Enabled() {
		return nil, fmt.Errorf("enrichment workflow is not configured")
	}

	msg, err := validation.ValidateText(message, "PM Message", validation.TextOptions{MinLength: 5, MaxLength: 10000, Required: true})
	if err != nil {
		return nil, err
	}
	uid, err := validation.ValidateIdentifier(userID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
	}

	var resp workflowResponse
	body := workflowRequest{Inputs: workflowInputs{PMMessage: msg, UserID: uid}}
	if err := doJSON(ctx, w.httpClient, ServiceEnrichment, http.MethodPost, w.url, header, body, &resp); err != nil {
		return nil, err
	}
	if resp.Outputs == nil {
		return nil, fmt.Errorf("enrichment workflow returned no outputs")
	}
	return resp.Outputs, nil
}

// Health probes {url}/health.
func (w *WorkflowClient) Health(ctx context.Context) ComponentHealth {
	if !w.Enabled() {
		return ComponentHealth{Status: HealthDisabled, Message: "WORKFLOW_URL not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, w.healthTimeout)
	defer cancel()

	if err := doJSON(ctx, w.httpClient, ServiceEnrichment, http.MethodGet, w.url+"/health", nil, nil, nil); err != nil {
		return ComponentHealth{Status: HealthUnhealthy, Message: err.Error()}
	}
	return ComponentHealth{Status: HealthHealthy}
}
