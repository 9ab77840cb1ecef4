package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/andywolf/codeloop/internal/cloud/gcp"
	"github.com/andywolf/codeloop/internal/config"
	"github.com/andywolf/codeloop/internal/observability"
	"github.com/andywolf/codeloop/internal/security"
	"github.com/andywolf/codeloop/internal/transcript"
	"github.com/andywolf/codeloop/internal/version"
)

// openStore opens the transcript backend selected in cfg.
func openStore(ctx context.Context, cfg *config.Config) (transcript.Store, error) {
	ext := transcript.Extensions{Code: cfg.Runner.Extension}

	switch cfg.Transcript.Backend {
	case config.BackendFile, "":
		return transcript.NewFileStore(cfg.Transcript.Dir, ext)
	case config.BackendSQLite:
		return transcript.OpenSQLite(cfg.Transcript.SQLiteDSN, ext)
	case config.BackendS3:
		s3 := cfg.Transcript.S3
		return transcript.NewObjectStore(ctx, transcript.ObjectStoreConfig{
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		}, ext)
	default:
		return nil, fmt.Errorf("unknown transcript backend %q", cfg.Transcript.Backend)
	}
}

// resolveAPIKey returns the model API key from config, OPENAI_API_KEY or
// Secret Manager, in that order. Local endpoints usually need none.
func resolveAPIKey(ctx context.Context, cfg *config.Config, newFetcher func(ctx context.Context, project string) (gcp.SecretFetcher, error)) (string, error) {
	if cfg.Model.APIKey != "" {
		return cfg.Model.APIKey, nil
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}
	if cfg.Model.APIKeySecret == "" {
		return "", nil
	}

	fetcher, err := newFetcher(ctx, cfg.Cloud.Project)
	if err != nil {
		return "", fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer fetcher.Close()

	return gcp.FetchAPIKey(ctx, fetcher, cfg.Model.APIKeySecret)
}

func newSecretFetcher(ctx context.Context, project string) (gcp.SecretFetcher, error) {
	return gcp.NewSecretManagerClient(ctx, project)
}

// newTracer returns an OTLP tracer when tracing is enabled, a no-op one
// otherwise.
func newTracer(ctx context.Context, cfg *config.Config) (observability.Tracer, error) {
	if !cfg.Tracing.Enabled {
		return &observability.NoOpTracer{}, nil
	}
	return observability.NewOTLPTracer(ctx, observability.OTelConfig{
		ServiceName:    "codeloop",
		ServiceVersion: version.Short(),
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
	})
}

// newCloudLogger mirrors the run log to Cloud Logging when enabled. It
// returns nil when disabled.
func newCloudLogger(ctx context.Context, cfg *config.Config, runID string, redactor *security.Redactor) (*gcp.CloudLogger, error) {
	if !cfg.Logging.Cloud {
		return nil, nil
	}
	cl, err := gcp.NewCloudLogger(ctx, gcp.CloudLoggerConfig{
		ProjectID: cfg.Cloud.Project,
		LogName:   cfg.Logging.LogName,
		RunID:     runID,
		Labels:    logLabels(cfg),
	})
	if err != nil {
		return nil, err
	}
	cl.SetRedactor(redactor)
	return cl, nil
}

func logLabels(cfg *config.Config) map[string]string {
	labels := version.Labels()
	labels["model"] = cfg.Model.Name
	return labels
}

// newRedactor registers every configured credential.
func newRedactor(cfg *config.Config, apiKey string) *security.Redactor {
	r := security.NewRedactor()
	r.AddSecret(apiKey, cfg.Transcript.S3.AccessKey, cfg.Transcript.S3.SecretKey)
	return r
}
