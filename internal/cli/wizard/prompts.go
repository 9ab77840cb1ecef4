// Package wizard provides interactive prompts for CLI commands.
package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// Setup holds the answers collected by PromptSetup.
type Setup struct {
	Name          string
	BaseURL       string
	Model         string
	Language      string
	Interpreter   []string
	Extension     string
	Backend       string
	MaxIterations int
}

// Language describes how generated programs of one language are run.
type Language struct {
	Name        string
	Interpreter []string
	Extension   string
}

// Languages lists the interpreters offered by the wizard.
var Languages = []Language{
	{Name: "Python", Interpreter: []string{"python3"}, Extension: "py"},
	{Name: "JavaScript", Interpreter: []string{"node"}, Extension: "js"},
	{Name: "Ruby", Interpreter: []string{"ruby"}, Extension: "rb"},
	{Name: "Bash", Interpreter: []string{"bash"}, Extension: "sh"},
}

// LookupLanguage returns the language named name, ignoring case.
func LookupLanguage(name string) (Language, bool) {
	for _, l := range Languages {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Language{}, false
}

// PromptSetup asks for the settings written to .codeloop.yaml, starting from
// defaults.
func PromptSetup(defaults Setup) (*Setup, error) {
	setup := defaults
	if setup.Language == "" {
		setup.Language = Languages[0].Name
	}
	maxIter := strconv.Itoa(setup.MaxIterations)
	interpreter := strings.Join(setup.Interpreter, " ")

	languageOptions := make([]huh.Option[string], 0, len(Languages)+1)
	for _, l := range Languages {
		languageOptions = append(languageOptions, huh.NewOption(l.Name, l.Name))
	}
	languageOptions = append(languageOptions, huh.NewOption("Other", "Other"))

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Run Name").
				Description("Prefix of every run ID").
				Value(&setup.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("run name is required")
					}
					return nil
				}),

			huh.NewInput().
				Title("Model Endpoint").
				Description("Base URL of a chat-completions API").
				Value(&setup.BaseURL),

			huh.NewInput().
				Title("Model Name").
				Value(&setup.Model),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Program Language").
				Options(languageOptions...).
				Value(&setup.Language),

			huh.NewInput().
				Title("Interpreter Command (only for Other)").
				Value(&interpreter),

			huh.NewSelect[string]().
				Title("Transcript Backend").
				Options(
					huh.NewOption("Files", "file"),
					huh.NewOption("SQLite", "sqlite"),
					huh.NewOption("S3 / MinIO", "s3"),
				).
				Value(&setup.Backend),

			huh.NewInput().
				Title("Iteration Cap (0 = unlimited)").
				Value(&maxIter).
				Validate(func(s string) error {
					_, err := parseMaxIterations(s)
					return err
				}),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("prompt cancelled: %w", err)
	}

	if l, ok := LookupLanguage(setup.Language); ok {
		setup.Interpreter = l.Interpreter
		setup.Extension = l.Extension
	} else {
		setup.Interpreter = parseInterpreter(interpreter)
	}
	setup.MaxIterations, _ = parseMaxIterations(maxIter)

	return &setup, nil
}

// parseInterpreter splits a command line such as "python3 -u" into its
// fields.
func parseInterpreter(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func parseMaxIterations(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("iteration cap must be a number >= 0")
	}
	return n, nil
}
