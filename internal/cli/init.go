package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/andywolf/codeloop/internal/cli/wizard"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize project configuration",
	Long: `Initialize codeloop configuration for the current directory.

This creates a .codeloop.yaml file with sensible defaults that you can customize.

Example:
  codeloop init
  codeloop init --interactive
  codeloop init --base-url http://localhost:8080/v1 --model qwen2.5-coder --language javascript`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("name", "", "Run name (defaults to the directory name)")
	initCmd.Flags().String("base-url", "http://127.0.0.1:1234/v1", "Chat-completions endpoint base URL")
	initCmd.Flags().String("model", "local-model", "Model name")
	initCmd.Flags().String("language", "python", "Program language (python, javascript, ruby, bash)")
	initCmd.Flags().String("backend", "file", "Transcript backend (file, sqlite, s3)")
	initCmd.Flags().Int("max-iterations", 0, "Iteration cap (0 = unlimited)")
	initCmd.Flags().BoolP("interactive", "i", false, "Answer the settings in a form")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

type projectConfig struct {
	Run struct {
		Name string `yaml:"name"`
	} `yaml:"run"`
	Model struct {
		BaseURL      string `yaml:"base_url"`
		Name         string `yaml:"name"`
		APIKeySecret string `yaml:"api_key_secret,omitempty"`
	} `yaml:"model"`
	Runner struct {
		Interpreter []string `yaml:"interpreter"`
		Extension   string   `yaml:"extension"`
		Timeout     string   `yaml:"timeout"`
	} `yaml:"runner"`
	Loop struct {
		MaxIterations     int  `yaml:"max_iterations"`
		ContextAttempts   int  `yaml:"context_attempts"`
		ReuseJudgmentCode bool `yaml:"reuse_judgment_code"`
	} `yaml:"loop"`
	Feedback struct {
		Mode string `yaml:"mode"`
	} `yaml:"feedback"`
	Transcript struct {
		Backend   string `yaml:"backend"`
		Dir       string `yaml:"dir"`
		SQLiteDSN string `yaml:"sqlite_dsn,omitempty"`
		S3        struct {
			Endpoint string `yaml:"endpoint"`
			Bucket   string `yaml:"bucket"`
		} `yaml:"s3,omitempty"`
	} `yaml:"transcript"`
}

func initProject(cmd *cobra.Command, args []string) error {
	configPath := filepath.Join(".", ".codeloop.yaml")

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	setup := wizard.Setup{}

	// Get values from flags or defaults
	setup.Name, _ = cmd.Flags().GetString("name")
	setup.BaseURL, _ = cmd.Flags().GetString("base-url")
	setup.Model, _ = cmd.Flags().GetString("model")
	setup.Language, _ = cmd.Flags().GetString("language")
	setup.Backend, _ = cmd.Flags().GetString("backend")
	setup.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")

	if setup.Name == "" {
		cwd, _ := os.Getwd()
		setup.Name = filepath.Base(cwd)
	}

	lang, ok := wizard.LookupLanguage(setup.Language)
	if !ok {
		return fmt.Errorf("unknown language %q; use --interactive to enter an interpreter", setup.Language)
	}
	setup.Language = lang.Name
	setup.Interpreter = lang.Interpreter
	setup.Extension = lang.Extension

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		answered, err := wizard.PromptSetup(setup)
		if err != nil {
			return err
		}
		setup = *answered
	}

	data, err := yaml.Marshal(buildProjectConfig(setup))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# codeloop configuration
# Every key can also be set through CODELOOP_<SECTION>_<KEY>, e.g. CODELOOP_LOOP_MAX_ITERATIONS.

`

	if err := os.WriteFile(configPath, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n\n", configPath)
	fmt.Println("Next steps:")
	fmt.Println("  1. Start your model server or point model.base_url at a hosted endpoint")
	fmt.Println("  2. Set OPENAI_API_KEY or model.api_key_secret if the endpoint needs a key")
	fmt.Println("  3. Run 'codeloop run \"<project description>\"' to start a run")

	return nil
}

func buildProjectConfig(s wizard.Setup) projectConfig {
	var cfg projectConfig
	cfg.Run.Name = s.Name
	cfg.Model.BaseURL = s.BaseURL
	cfg.Model.Name = s.Model
	cfg.Runner.Interpreter = s.Interpreter
	cfg.Runner.Extension = s.Extension
	cfg.Runner.Timeout = "60s"
	cfg.Loop.MaxIterations = s.MaxIterations
	cfg.Loop.ContextAttempts = 3
	cfg.Loop.ReuseJudgmentCode = true
	cfg.Feedback.Mode = "auto"
	cfg.Transcript.Backend = s.Backend
	cfg.Transcript.Dir = "codeloop-runs"

	switch s.Backend {
	case "sqlite":
		cfg.Transcript.SQLiteDSN = "file:codeloop.db"
	case "s3":
		cfg.Transcript.S3.Endpoint = "localhost:9000"
		cfg.Transcript.S3.Bucket = "codeloop"
	}
	return cfg
}
