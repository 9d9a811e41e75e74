package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T, handler http.HandlerFunc) (*HTTPConnector, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := infrastructures.NewConnectorClient(&infrastructures.AppConfig{
		ConnectorBaseURL: server.URL + "/",
		DispatchTimeout:  time.Second,
	})
	return NewHTTPConnector(client, models.EnvironmentProduction), server
}

func TestHTTPConnector_ExecuteSQL(t *testing.T) {
	id := uuid.New()
	var got map[string]any
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/production/sql/execute", r.URL.Path)
		require.Equal(t, id.String(), r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"outcome":"success","detail":"1000 rows updated"}`))
	})

	res, err := conn.ExecuteSQL(context.Background(), Target{RequestID: id, Application: "reports"},
		models.SQLFixPayload{Statement: "UPDATE t SET a = 1 WHERE id = 1"})
	require.NoError(t, err)
	require.Equal(t, models.ExecutionOutcomeSuccess, res.Outcome)
	require.Equal(t, "1000 rows updated", res.Detail)
	require.Equal(t, id.String(), got["request_id"])
	require.Equal(t, "PRODUCTION", got["environment"])
	require.Equal(t, "sql/execute", got["operation"])
}

func TestHTTPConnector_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    models.ExecutionOutcome
		wantErr bool
	}{
		{name: "failure", status: http.StatusOK, body: `{"outcome":"FAILURE","detail":"lock timeout"}`, want: models.ExecutionOutcomeFailure},
		{name: "accepted without outcome", status: http.StatusAccepted, body: `{}`, want: models.ExecutionOutcomeUnknown},
		{name: "gateway error", status: http.StatusBadGateway, body: `{"message":"database unreachable"}`, wantErr: true},
		{name: "malformed body", status: http.StatusOK, body: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := conn.RunJob(context.Background(), Target{RequestID: uuid.New()},
				models.JobExecutionPayload{JobName: "nightly-close", Spec: "run once"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestHTTPConnector_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.DeployPatch(ctx, Target{RequestID: uuid.New()},
		models.PatchDeploymentPayload{Artifact: "billing", Version: "1.2.3", Detail: "hotfix"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPConnector_Cancel(t *testing.T) {
	id := uuid.New()
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/production/executions/"+id.String()+"/cancel", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, conn.Cancel(context.Background(), Target{RequestID: id}))
}

func TestExecuteRoutesByType(t *testing.T) {
	var path string
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"outcome":"SUCCESS"}`))
	})

	req := &models.ChangeRequest{
		ID:          uuid.New(),
		Type:        models.RequestTypeLogRotation,
		Environment: models.EnvironmentProduction,
		Payload:     models.Payload{LogRotation: &models.LogRotationPayload{Target: "/var/log/app", RetentionDays: 7}},
	}
	res, err := Execute(context.Background(), conn, req)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionOutcomeSuccess, res.Outcome)
	require.Equal(t, "/production/logs/rotate", path)

	req.Payload = models.Payload{}
	_, err = Execute(context.Background(), conn, req)
	require.Error(t, err)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &infrastructures.AppConfig{
		ConnectorBaseURL:      "http://gateway.internal",
		ConnectorEnvironments: []string{"dev", " PRODUCTION "},
		DispatchTimeout:       time.Second,
	}
	registry := NewRegistryFromConfig(cfg, infrastructures.NewConnectorClient(cfg))

	_, ok := registry.For(models.EnvironmentDev)
	require.True(t, ok)
	_, ok = registry.For(models.EnvironmentProduction)
	require.True(t, ok)
	_, ok = registry.For(models.EnvironmentStaging)
	require.False(t, ok)

	cfg.ConnectorBaseURL = ""
	empty := NewRegistryFromConfig(cfg, infrastructures.NewConnectorClient(cfg))
	_, ok = empty.For(models.EnvironmentDev)
	require.False(t, ok)
}
