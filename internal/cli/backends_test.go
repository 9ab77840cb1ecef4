package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andywolf/codeloop/internal/cloud/gcp"
	"github.com/andywolf/codeloop/internal/config"
	"github.com/andywolf/codeloop/internal/observability"
	"github.com/andywolf/codeloop/internal/transcript"
)

type fakeFetcher struct {
	secrets map[string]string
	closed  bool
}

func (f *fakeFetcher) FetchSecret(_ context.Context, path string) (string, error) {
	v, ok := f.secrets[path]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (f *fakeFetcher) Close() error {
	f.closed = true
	return nil
}

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		cfgKey  string
		envKey  string
		secret  string
		want    string
		wantErr bool
		fetched bool
	}{
		{name: "config wins", cfgKey: "sk-config", envKey: "sk-env", secret: "keys/model", want: "sk-config"},
		{name: "env next", envKey: "sk-env", secret: "keys/model", want: "sk-env"},
		{name: "secret manager last", secret: "keys/model", want: "sk-secret", fetched: true},
		{name: "missing secret", secret: "keys/other", wantErr: true, fetched: true},
		{name: "no key at all", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.envKey)

			cfg := &config.Config{}
			cfg.Model.APIKey = tt.cfgKey
			cfg.Model.APIKeySecret = tt.secret

			fetcher := &fakeFetcher{secrets: map[string]string{"keys/model": "sk-secret\n"}}
			used := false
			newFetcher := func(context.Context, string) (gcp.SecretFetcher, error) {
				used = true
				return fetcher, nil
			}

			got, err := resolveAPIKey(context.Background(), cfg, newFetcher)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveAPIKey() = %q, want %q", got, tt.want)
			}
			if used != tt.fetched {
				t.Errorf("secret manager used = %v, want %v", used, tt.fetched)
			}
			if used && !fetcher.closed {
				t.Error("secret fetcher not closed")
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Runner.Extension = "js"
	cfg.Transcript.Backend = config.BackendFile
	cfg.Transcript.Dir = dir

	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore(file) error = %v", err)
	}
	loc, err := store.SaveCode(context.Background(), transcript.Key{RunID: "r", Feedback: 0, Iteration: 1}, "console.log(1)")
	if err != nil {
		t.Fatalf("SaveCode() error = %v", err)
	}
	if loc != filepath.Join(dir, "r_fdbk0_iter1.js") {
		t.Errorf("location = %q", loc)
	}
	_ = store.Close()

	cfg.Transcript.Backend = config.BackendSQLite
	cfg.Transcript.SQLiteDSN = "file:" + filepath.Join(dir, "t.db")
	store, err = openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore(sqlite) error = %v", err)
	}
	if _, ok := store.(*transcript.SQLiteStore); !ok {
		t.Errorf("openStore(sqlite) = %T", store)
	}
	_ = store.Close()

	cfg.Transcript.Backend = "tape"
	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("openStore(tape) should fail")
	}
}

func TestOpenStore_ExtensionForms(t *testing.T) {
	ctx := context.Background()
	key := transcript.Key{RunID: "r", Feedback: 0, Iteration: 1}

	cfg := &config.Config{}
	cfg.Runner.Extension = ".py"
	cfg.Transcript.Backend = config.BackendFile
	cfg.Transcript.Dir = t.TempDir()

	store, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer store.Close()

	if _, err := store.SaveCode(ctx, key, "print(1)"); err != nil {
		t.Fatalf("SaveCode() error = %v", err)
	}
	if _, err := store.SaveOutput(ctx, key, "1"); err != nil {
		t.Fatalf("SaveOutput() error = %v", err)
	}
	arts, err := store.List(ctx, "r")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(arts) != 2 || filepath.Base(arts[0].Location) != "r_fdbk0_iter1.py" {
		t.Errorf("List() = %+v, want the .py code and the .txt output", arts)
	}

	cfg.Runner.Extension = "txt"
	cfg.Transcript.Dir = t.TempDir()
	if _, err := openStore(ctx, cfg); err == nil {
		t.Error("openStore() accepted txt as the code extension")
	}
}

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := newTracer(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("newTracer() error = %v", err)
	}
	if _, ok := tracer.(*observability.NoOpTracer); !ok {
		t.Errorf("newTracer() = %T, want *NoOpTracer", tracer)
	}
}

func TestNewCloudLogger_Disabled(t *testing.T) {
	cl, err := newCloudLogger(context.Background(), &config.Config{}, "run", nil)
	if err != nil || cl != nil {
		t.Errorf("newCloudLogger() = %v, %v; want nil, nil", cl, err)
	}
}

func TestNewRedactor(t *testing.T) {
	cfg := &config.Config{}
	cfg.Transcript.S3.SecretKey = "minio-secret-key"

	r := newRedactor(cfg, "sk-abcdef123456")
	got := r.Redact("key sk-abcdef123456 and minio-secret-key")
	for _, secret := range []string{"sk-abcdef123456", "minio-secret-key"} {
		if strings.Contains(got, secret) {
			t.Errorf("Redact() left %q in place: %q", secret, got)
		}
	}
}
