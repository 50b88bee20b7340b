// Package secrets loads gateway secrets from GCP Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
)

// Source is anything that can resolve a named secret.
type Source interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	logger    *logrus.Entry
}

func NewGCPSecretManager(ctx context.Context, projectID string, logger *logrus.Entry) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

// GetSecret returns the latest version of secretName.
func (g *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, secretName)

	result, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}
	return strings.TrimSpace(string(result.Payload.Data)), nil
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// SecretNames maps gateway secrets to their Secret Manager names.
type SecretNames struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	MasterKey string `mapstructure:"master_key"`
}

func DefaultSecretNames() SecretNames {
	return SecretNames{
		JWTSecret: "perp-gateway-jwt-secret",
		MasterKey: "perp-gateway-master-key",
	}
}

// Fill sets every empty target from src, logging and skipping names that fail.
// It returns the number of secrets resolved.
func Fill(ctx context.Context, src Source, logger *logrus.Entry, targets map[string]*string) int {
	resolved := 0
	for name, dst := range targets {
		if dst == nil || *dst != "" || name == "" {
			continue
		}
		v, err := src.GetSecret(ctx, name)
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("secret", name).Warn("secret not loaded")
			}
			continue
		}
		*dst = v
		resolved++
	}
	return resolved
}
