package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-gateway/pkg/config"
	"perp-gateway/pkg/crypto"
)

func paperConfig(t *testing.T) *config.Config {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &config.Config{
		Server:  config.ServerConfig{Port: "0"},
		Venue:   config.VenueConfig{Name: config.VenuePaper, Timeout: time.Second},
		Auth:    config.AuthConfig{JWTSecret: "secret"},
		Storage: config.StorageConfig{DBPath: ":memory:", MasterKey: key},
	}
}

func TestHealthChecksAllHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	report := runHealthChecks(context.Background(), paperConfig(t), srv.URL)

	require.Len(t, report.Services, 4)
	for _, svc := range report.Services {
		assert.Equal(t, statusHealthy, svc.Status, svc.Service+": "+svc.Message)
	}
	assert.Equal(t, statusHealthy, report.Overall)
	assert.Contains(t, report.Services[2].Message, "paper: 3 assets")
}

func TestHealthChecksServerDownIsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	report := runHealthChecks(context.Background(), paperConfig(t), srv.URL)
	assert.Equal(t, statusDegraded, report.Overall)
	assert.Equal(t, statusDegraded, report.Services[3].Status)
}

func TestHealthChecksBadConfigIsUnhealthy(t *testing.T) {
	cfg := paperConfig(t)
	cfg.Auth.JWTSecret = ""
	cfg.Storage.MasterKey = "not-base64"

	report := runHealthChecks(context.Background(), cfg, "http://127.0.0.1:1/health")
	assert.Equal(t, statusUnhealthy, report.Overall)
	assert.Equal(t, statusUnhealthy, report.Services[0].Status)
	assert.Equal(t, statusUnhealthy, report.Services[1].Status)
}

func TestPrintReportJSON(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, healthReport{
		Overall:  statusDegraded,
		Services: []checkResult{{Service: "Venue", Status: statusDegraded}},
	}, true)

	var got healthReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, statusDegraded, got.Overall)
	assert.Equal(t, "Venue", got.Services[0].Service)
}
