// Package gcp holds the optional Google Cloud integrations: the run log
// mirror in Cloud Logging and API keys read from Secret Manager.
package gcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"

	"github.com/andywolf/codeloop/internal/security"
)

// DefaultLogName is the Cloud Logging log ID used for run logs.
const DefaultLogName = "codeloop"

// Severity levels for structured logs
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// LogWriter is the subset of *logging.Logger the CloudLogger writes to.
type LogWriter interface {
	Log(e logging.Entry)
	Flush() error
}

// CloudLoggerConfig configures a CloudLogger.
type CloudLoggerConfig struct {
	ProjectID string
	LogName   string
	RunID     string
	Labels    map[string]string
}

// CloudLogger mirrors run log lines to Google Cloud Logging with the run ID
// attached as a label.
type CloudLogger struct {
	client   *logging.Client
	writer   LogWriter
	labels   map[string]string
	redactor *security.Redactor

	mu     sync.Mutex
	closed bool
}

// NewCloudLogger opens a Cloud Logging client for cfg.ProjectID, or the
// detected project when empty.
func NewCloudLogger(ctx context.Context, cfg CloudLoggerConfig, opts ...option.ClientOption) (*CloudLogger, error) {
	projectID := cfg.ProjectID
	if projectID == "" {
		var err error
		projectID, err = ProjectID()
		if err != nil {
			return nil, fmt.Errorf("failed to get project ID: %w", err)
		}
	}

	client, err := logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud logging client: %w", err)
	}

	logName := cfg.LogName
	if logName == "" {
		logName = DefaultLogName
	}

	cl := NewCloudLoggerWithWriter(client.Logger(logName), cfg.RunID, cfg.Labels)
	cl.client = client
	return cl, nil
}

// NewCloudLoggerWithWriter creates a CloudLogger over an arbitrary writer (for testing)
func NewCloudLoggerWithWriter(writer LogWriter, runID string, labels map[string]string) *CloudLogger {
	merged := map[string]string{
		"component": "codeloop",
	}
	if runID != "" {
		merged["run_id"] = runID
	}
	for k, v := range labels {
		merged[k] = v
	}
	return &CloudLogger{writer: writer, labels: merged}
}

// SetRedactor scrubs every message and label value before it is sent.
func (cl *CloudLogger) SetRedactor(r *security.Redactor) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.redactor = r
}

// Debug logs a message at DEBUG severity
func (cl *CloudLogger) Debug(msg string) { cl.LogWithLabels(SeverityDebug, msg, nil) }

// Info logs a message at INFO severity
func (cl *CloudLogger) Info(msg string) { cl.LogWithLabels(SeverityInfo, msg, nil) }

// Warning logs a message at WARNING severity
func (cl *CloudLogger) Warning(msg string) { cl.LogWithLabels(SeverityWarning, msg, nil) }

// Error logs a message at ERROR severity
func (cl *CloudLogger) Error(msg string) { cl.LogWithLabels(SeverityError, msg, nil) }

// LogWithLabels logs a message with extra labels merged over the defaults.
func (cl *CloudLogger) LogWithLabels(severity Severity, msg string, extraLabels map[string]string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return
	}

	labels := make(map[string]string, len(cl.labels)+len(extraLabels))
	for k, v := range cl.labels {
		labels[k] = v
	}
	for k, v := range extraLabels {
		labels[k] = cl.redactor.Redact(v)
	}

	cl.writer.Log(logging.Entry{
		Timestamp: time.Now().UTC(),
		Severity:  logging.ParseSeverity(string(severity)),
		Payload:   cl.redactor.Redact(msg),
		Labels:    labels,
	})
}

// Flush sends any buffered entries.
func (cl *CloudLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	return cl.writer.Flush()
}

// Close flushes remaining entries and releases the client.
func (cl *CloudLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	cl.closed = true

	err := cl.writer.Flush()
	if cl.client != nil {
		if cerr := cl.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
