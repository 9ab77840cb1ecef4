// Package prompt holds the texts used to talk to the model: the system
// prompt, the generation and judgment instructions, and the PASS/FAIL
// phrases the judgment step must emit.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/andywolf/codeloop/internal/template"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Templates is the full set of prompt texts. Fields may reference
// {{placeholders}}; see Validate for the ones each field accepts.
type Templates struct {
	Language        string `yaml:"language"`
	PassPhrase      string `yaml:"pass_phrase"`
	FailPhrase      string `yaml:"fail_phrase"`
	System          string `yaml:"system"`
	Description     string `yaml:"description"`
	AttemptCode     string `yaml:"attempt_code"`
	AttemptOutput   string `yaml:"attempt_output"`
	AttemptJudgment string `yaml:"attempt_judgment"`
	Feedback        string `yaml:"feedback"`
	Generation      string `yaml:"generation"`
	Judgment        string `yaml:"judgment"`
}

// Default returns the built-in templates.
func Default() Templates {
	var t Templates
	if err := yaml.Unmarshal(defaultTemplates, &t); err != nil {
		panic(fmt.Sprintf("embedded prompt templates are invalid: %v", err))
	}
	return t
}

// Load returns the built-in templates overlaid with the non-empty fields of
// the YAML file at path. An empty path returns the defaults.
func Load(path string) (Templates, error) {
	t := Default()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("failed to read prompt templates %s: %w", path, err)
	}
	var override Templates
	if err := yaml.Unmarshal(data, &override); err != nil {
		return t, fmt.Errorf("failed to parse prompt templates %s: %w", path, err)
	}
	t.merge(override)

	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid prompt templates %s: %w", path, err)
	}
	return t, nil
}

func (t *Templates) merge(o Templates) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&t.Language, o.Language)
	set(&t.PassPhrase, o.PassPhrase)
	set(&t.FailPhrase, o.FailPhrase)
	set(&t.System, o.System)
	set(&t.Description, o.Description)
	set(&t.AttemptCode, o.AttemptCode)
	set(&t.AttemptOutput, o.AttemptOutput)
	set(&t.AttemptJudgment, o.AttemptJudgment)
	set(&t.Feedback, o.Feedback)
	set(&t.Generation, o.Generation)
	set(&t.Judgment, o.Judgment)
}

// common placeholders every field may use
var common = []string{"language", "pass_phrase", "fail_phrase"}

// Validate checks the phrases and that every field only uses placeholders it
// will be rendered with.
func (t Templates) Validate() error {
	pass := strings.ToLower(strings.TrimSpace(t.PassPhrase))
	fail := strings.ToLower(strings.TrimSpace(t.FailPhrase))
	if pass == "" || fail == "" {
		return fmt.Errorf("pass_phrase and fail_phrase are required")
	}
	if strings.Contains(pass, fail) || strings.Contains(fail, pass) {
		return fmt.Errorf("pass_phrase and fail_phrase must not contain each other")
	}

	fields := []struct {
		name  string
		text  string
		extra []string
	}{
		{"system", t.System, nil},
		{"description", t.Description, []string{"description"}},
		{"attempt_code", t.AttemptCode, []string{"code"}},
		{"attempt_output", t.AttemptOutput, []string{"output"}},
		{"attempt_judgment", t.AttemptJudgment, []string{"judgment"}},
		{"feedback", t.Feedback, []string{"feedback"}},
		{"generation", t.Generation, nil},
		{"judgment", t.Judgment, []string{"description", "code", "output"}},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.text) == "" {
			return fmt.Errorf("%s template is empty", f.name)
		}
		if unknown := template.Unknown(f.text, append(f.extra, common...)...); len(unknown) > 0 {
			return fmt.Errorf("%s template uses unknown placeholders %v", f.name, unknown)
		}
	}
	return nil
}

// Render fills a template field with the common variables plus vars.
func (t Templates) Render(text string, vars template.Vars) string {
	all := template.Vars{
		"language":    t.Language,
		"pass_phrase": t.PassPhrase,
		"fail_phrase": t.FailPhrase,
	}
	for k, v := range vars {
		all[k] = v
	}
	return strings.TrimRight(template.Render(text, all), "\n")
}
