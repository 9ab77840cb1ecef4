package gcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// secretTimeout bounds a single Secret Manager access.
const secretTimeout = 10 * time.Second

// SecretManagerClient wraps the GCP Secret Manager client
type SecretManagerClient struct {
	client    *secretmanager.Client
	projectID string
}

// SecretFetcher defines the interface for fetching secrets
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// NewSecretManagerClient creates a new Secret Manager client. An empty
// projectID is resolved from the environment or the metadata server.
func NewSecretManagerClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerClient, error) {
	if projectID == "" {
		var err error
		projectID, err = ProjectID()
		if err != nil {
			return nil, fmt.Errorf("failed to get project ID: %w", err)
		}
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	return &SecretManagerClient{
		client:    client,
		projectID: projectID,
	}, nil
}

// ProjectID retrieves the GCP project ID from environment variables, falling
// back to the metadata server when running on GCE.
func ProjectID() (string, error) {
	for _, env := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if projectID := os.Getenv(env); projectID != "" {
			return projectID, nil
		}
	}

	if !metadata.OnGCE() {
		return "", errors.New("no project configured and not running on GCP")
	}
	projectID, err := metadata.ProjectID()
	if err != nil {
		return "", fmt.Errorf("failed to fetch project ID from metadata server: %w", err)
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", fmt.Errorf("empty project ID from metadata server")
	}
	return projectID, nil
}

// FetchSecret retrieves a secret from GCP Secret Manager
// secretPath can be in one of the following formats:
// - projects/PROJECT_ID/secrets/SECRET_NAME/versions/VERSION
// - projects/PROJECT_ID/secrets/SECRET_NAME (defaults to latest)
// - SECRET_NAME (uses the client's project)
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, secretTimeout)
	defer cancel()

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: c.normalizeSecretPath(secretPath),
	}

	result, err := c.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(result.Payload.Data), nil
}

// normalizeSecretPath ensures the secret path is in the correct format
// If the path is just a secret name, it constructs the full path with "latest" version
func (c *SecretManagerClient) normalizeSecretPath(secretPath string) string {
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}

	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}

	secretName := path.Base(secretPath)
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, secretName)
}

// Close closes the Secret Manager client
func (c *SecretManagerClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// FetchAPIKey reads a credential from secretPath, trimming the trailing
// newline secrets are usually stored with.
func FetchAPIKey(ctx context.Context, fetcher SecretFetcher, secretPath string) (string, error) {
	value, err := fetcher.FetchSecret(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", secretPath, err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("secret %s is empty", secretPath)
	}
	return value, nil
}
