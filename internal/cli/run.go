package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/andywolf/codeloop/internal/config"
	"github.com/andywolf/codeloop/internal/controller"
	"github.com/andywolf/codeloop/internal/feedback"
	"github.com/andywolf/codeloop/internal/metrics"
	"github.com/andywolf/codeloop/internal/model"
	"github.com/andywolf/codeloop/internal/prompt"
	"github.com/andywolf/codeloop/internal/runner"
	"github.com/andywolf/codeloop/internal/transcript"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run [description]",
	Short: "Iterate on a project description until the result is accepted",
	Long: `Ask the model for code that satisfies the description, run it, let the model
judge the output, and repeat. After a PASS you are asked for feedback; press
Enter to accept the result or type feedback to start a new round.

Example:
  codeloop run "print the first 10 primes, one per line"
  codeloop run --description-file project.txt --max-iterations 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProject,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("description-file", "", "Read the project description from a file")
	runCmd.Flags().Int("max-iterations", 0, "Maximum code iterations across the run (0 = unlimited)")
	runCmd.Flags().String("model", "", "Model name")
	runCmd.Flags().String("base-url", "", "Chat-completions endpoint base URL")
	runCmd.Flags().String("feedback", "", "Feedback mode (auto, form, line, none)")
	runCmd.Flags().String("backend", "", "Transcript backend (file, sqlite, s3)")
	runCmd.Flags().String("name", "", "Run name used as the run ID prefix")

	_ = viper.BindPFlag("run.description_file", runCmd.Flags().Lookup("description-file"))
	_ = viper.BindPFlag("loop.max_iterations", runCmd.Flags().Lookup("max-iterations"))
	_ = viper.BindPFlag("model.name", runCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("model.base_url", runCmd.Flags().Lookup("base-url"))
	_ = viper.BindPFlag("feedback.mode", runCmd.Flags().Lookup("feedback"))
	_ = viper.BindPFlag("transcript.backend", runCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("run.name", runCmd.Flags().Lookup("name"))
}

func runProject(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, aborting run...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(args) == 1 {
		cfg.Run.Description = args[0]
	}
	if err := cfg.ValidateForRun(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	description, err := readDescription(cfg)
	if err != nil {
		return err
	}

	apiKey, err := resolveAPIKey(ctx, cfg, newSecretFetcher)
	if err != nil {
		return err
	}
	redactor := newRedactor(cfg, apiKey)

	templates, err := prompt.Load(cfg.Prompts.File)
	if err != nil {
		return err
	}

	modelClient, err := model.NewOpenAIClient(model.OpenAIConfig{
		BaseURL:     cfg.Model.BaseURL,
		APIKey:      apiKey,
		Model:       cfg.Model.Name,
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
		Timeout:     cfg.Model.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer store.Close()

	fb, err := feedback.New(feedback.Mode(cfg.Feedback.Mode), os.Stdin, os.Stdout, cfg.Feedback.Timeout)
	if err != nil {
		return err
	}

	tracer, err := newTracer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	defer func() {
		if err := tracer.Stop(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop tracer: %v\n", err)
		}
	}()

	runID := transcript.NewRunID(cfg.Run.Name, time.Now())

	cloudLogger, err := newCloudLogger(ctx, cfg, runID, redactor)
	if err != nil {
		return fmt.Errorf("failed to create cloud logger: %w", err)
	}
	deps := controller.Dependencies{
		Model:     modelClient,
		Runner:    runner.NewProcessRunner(cfg.Runner.Interpreter, "."+cfg.Runner.Extension, cfg.Runner.WorkDir),
		Store:     store,
		Feedback:  fb,
		Templates: &templates,
		Tracer:    tracer,
		Metrics:   metrics.NewRecorder(),
		Redactor:  redactor,
		Output:    os.Stdout,
	}
	if cloudLogger != nil {
		deps.CloudLogger = cloudLogger
		defer cloudLogger.Close()
	}

	ctrl, err := controller.New(controller.Config{
		RunName:           cfg.Run.Name,
		RunID:             runID,
		ModelName:         cfg.Model.Name,
		MaxIterations:     cfg.Loop.MaxIterations,
		ContextAttempts:   cfg.Loop.ContextAttempts,
		ExecTimeout:       cfg.Runner.Timeout,
		ReuseJudgmentCode: cfg.Loop.ReuseJudgmentCode,
		FeedbackPrompt:    cfg.Feedback.Prompt,
		LogDir:            cfg.Transcript.Dir,
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	summary, runErr := ctrl.RunProject(ctx, description)

	if cfg.Metrics.PushURL != "" {
		if err := deps.Metrics.Push(context.Background(), cfg.Metrics.PushURL, runID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to push metrics: %v\n", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("run %s aborted: %s", summary.RunID, describeFailure(runErr))
	}

	fmt.Printf("\nRun %s finalized after %d iteration(s) (%d PASS, %d FAIL).\n",
		summary.RunID, summary.Iterations(), summary.Passes, summary.Fails)
	if summary.LogPath != "" {
		fmt.Printf("Run log: %s\n", summary.LogPath)
	}
	return nil
}

// readDescription returns the description from the command line or the
// configured file.
func readDescription(cfg *config.Config) (string, error) {
	if cfg.Run.Description != "" {
		return cfg.Run.Description, nil
	}

	data, err := os.ReadFile(cfg.Run.DescriptionFile)
	if err != nil {
		return "", fmt.Errorf("failed to read description file: %w", err)
	}
	description := strings.TrimSpace(string(data))
	if description == "" {
		return "", fmt.Errorf("description file %s is empty", cfg.Run.DescriptionFile)
	}
	return description, nil
}

// describeFailure turns a fatal run error into a message for the operator.
func describeFailure(err error) string {
	var (
		svcErr    *controller.ExternalServiceError
		launchErr *controller.ExecutionLaunchFailure
		capErr    *controller.IterationCapExceeded
		storeErr  *controller.TranscriptError
	)

	switch {
	case errors.As(err, &svcErr):
		return fmt.Sprintf("the model endpoint failed during %s (%s): %v", svcErr.Step, svcErr.Kind(), svcErr.Err)
	case errors.As(err, &launchErr):
		return fmt.Sprintf("the generated program could not be started: %v", launchErr.Err)
	case errors.As(err, &capErr):
		return fmt.Sprintf("no accepted result within %d iterations", capErr.Cap)
	case errors.As(err, &storeErr):
		return fmt.Sprintf("the transcript could not be written (%s): %v", storeErr.Op, storeErr.Err)
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return err.Error()
	}
}
