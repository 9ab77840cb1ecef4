package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andywolf/codeloop/internal/template"
)

func TestDefault_IsValid(t *testing.T) {
	tpl := Default()
	if err := tpl.Validate(); err != nil {
		t.Fatalf("default templates invalid: %v", err)
	}
	if tpl.Language != "python" {
		t.Errorf("language = %q", tpl.Language)
	}
	if !strings.HasPrefix(tpl.PassPhrase, "Project output fully satisfies") {
		t.Errorf("pass phrase = %q", tpl.PassPhrase)
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	tpl, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tpl != Default() {
		t.Error("expected defaults")
	}
}

func TestLoad_OverlaysNonEmptyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "language: go\ngeneration: |\n  Write {{language}} now.\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tpl, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tpl.Language != "go" {
		t.Errorf("language = %q, want go", tpl.Language)
	}
	if got := tpl.Render(tpl.Generation, nil); got != "Write go now." {
		t.Errorf("generation = %q", got)
	}
	if tpl.Judgment != Default().Judgment {
		t.Error("judgment template should keep its default")
	}
}

func TestLoad_RejectsUnknownPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("feedback: \"{{fedback}}\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "fedback") {
		t.Fatalf("expected unknown placeholder error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_Phrases(t *testing.T) {
	tests := []struct {
		name string
		pass string
		fail string
	}{
		{"empty pass", "", "fail"},
		{"empty fail", "pass", ""},
		{"fail contains pass", "satisfies", "does not satisfy; satisfies"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := Default()
			tpl.PassPhrase = tt.pass
			tpl.FailPhrase = tt.fail
			if err := tpl.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRender_CommonVariables(t *testing.T) {
	tpl := Default()
	got := tpl.Render("{{language}}|{{code}}\n\n", template.Vars{"code": "x"})
	if got != "python|x" {
		t.Errorf("Render() = %q", got)
	}
}
