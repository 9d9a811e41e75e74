package infrastructures

import (
	"fmt"
	"net/http"
	"strings"
)

type ConnectorConfig struct {
	BaseURL      string
	Environments []string
}

type ConnectorClient struct {
	HTTPClient *http.Client
	Config     *ConnectorConfig
	BaseURL    string
}

// NewConnectorClient creates the HTTP client shared by the execution
// connectors. Per-call deadlines come from the dispatcher's context, so the
// client timeout only caps requests made without one.
func NewConnectorClient(cfg *AppConfig) *ConnectorClient {
	config := &ConnectorConfig{
		BaseURL:      strings.TrimRight(cfg.ConnectorBaseURL, "/"),
		Environments: cfg.ConnectorEnvironments,
	}

	return &ConnectorClient{
		HTTPClient: &http.Client{
			Timeout: 2 * cfg.DispatchTimeout,
		},
		Config:  config,
		BaseURL: config.BaseURL,
	}
}

// Enabled reports whether a connector gateway is configured.
func (c *ConnectorClient) Enabled() bool {
	return c.BaseURL != ""
}

// GetFullURL constructs the full URL for an endpoint
func (c *ConnectorClient) GetFullURL(endpoint string) string {
	return fmt.Sprintf("%s%s", c.BaseURL, endpoint)
}
