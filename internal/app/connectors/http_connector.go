package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/sirupsen/logrus"
)

// HTTPConnector forwards operations to an execution gateway over HTTP.
// Endpoints are scoped by environment: POST {base}/{env}/{operation}.
type HTTPConnector struct {
	client *infrastructures.ConnectorClient
	env    models.Environment
}

func NewHTTPConnector(client *infrastructures.ConnectorClient, env models.Environment) *HTTPConnector {
	return &HTTPConnector{
		client: client,
		env:    env,
	}
}

// NewRegistryFromConfig registers an HTTP connector for every configured
// environment. With no gateway configured the registry stays empty and every
// dispatch fails as connector unavailable.
func NewRegistryFromConfig(cfg *infrastructures.AppConfig, client *infrastructures.ConnectorClient) *Registry {
	registry := NewRegistry()
	if !client.Enabled() {
		logrus.Warn("CONNECTOR_BASE_URL is not set; dispatch is disabled")
		return registry
	}
	for _, name := range cfg.ConnectorEnvironments {
		env := models.Environment(strings.ToUpper(strings.TrimSpace(name)))
		if env == "" {
			continue
		}
		registry.Register(env, NewHTTPConnector(client, env))
	}
	return registry
}

type executeRequest struct {
	Target
	Operation string `json:"operation"`
	Payload   any    `json:"payload"`
}

type executeResponse struct {
	Outcome string `json:"outcome"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (c *HTTPConnector) ExecuteSQL(ctx context.Context, target Target, payload models.SQLFixPayload) (Result, error) {
	return c.execute(ctx, "sql/execute", target, payload)
}

func (c *HTTPConnector) ApplyConfig(ctx context.Context, target Target, payload models.ConfigUpdatePayload) (Result, error) {
	return c.execute(ctx, "config/apply", target, payload)
}

func (c *HTTPConnector) DeployPatch(ctx context.Context, target Target, payload models.PatchDeploymentPayload) (Result, error) {
	return c.execute(ctx, "patches/deploy", target, payload)
}

func (c *HTTPConnector) RunJob(ctx context.Context, target Target, payload models.JobExecutionPayload) (Result, error) {
	return c.execute(ctx, "jobs/run", target, payload)
}

func (c *HTTPConnector) RotateLogs(ctx context.Context, target Target, payload models.LogRotationPayload) (Result, error) {
	return c.execute(ctx, "logs/rotate", target, payload)
}

// Cancel asks the gateway to stop the request's operation. The gateway may
// ignore it if the operation already finished.
func (c *HTTPConnector) Cancel(ctx context.Context, target Target) error {
	url := c.client.GetFullURL(fmt.Sprintf("/%s/executions/%s/cancel", c.envPath(), target.RequestID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("connector cancel failed: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPConnector) execute(ctx context.Context, operation string, target Target, payload any) (Result, error) {
	target.Environment = c.env
	jsonData, err := json.Marshal(executeRequest{
		Target:    target,
		Operation: operation,
		Payload:   payload,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.client.GetFullURL(fmt.Sprintf("/%s/%s", c.envPath(), operation))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", target.RequestID.String())

	resp, err := c.client.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed executeResponse
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
			return Result{}, fmt.Errorf("connector error: %s", parsed.Message)
		}
		return Result{}, fmt.Errorf("connector error: status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to parse response: %w", err)
	}

	switch models.ExecutionOutcome(strings.ToUpper(parsed.Outcome)) {
	case models.ExecutionOutcomeSuccess:
		return Result{Outcome: models.ExecutionOutcomeSuccess, Detail: parsed.Detail}, nil
	case models.ExecutionOutcomeFailure:
		return Result{Outcome: models.ExecutionOutcomeFailure, Detail: parsed.Detail}, nil
	default:
		return Result{Outcome: models.ExecutionOutcomeUnknown, Detail: parsed.Detail}, nil
	}
}

func (c *HTTPConnector) envPath() string {
	return strings.ToLower(string(c.env))
}
