package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andywolf/codeloop/internal/config"
	"github.com/andywolf/codeloop/internal/memory"
	"github.com/andywolf/codeloop/internal/prompt"
	"github.com/andywolf/codeloop/internal/transcript"
	"github.com/spf13/cobra"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript [run-id]",
	Short: "Show the stored artifacts of a run",
	Long: `List the code and output artifacts stored for a run, in round and iteration
order, optionally with their content and the recorded state transitions.

Example:
  codeloop transcript codeloop_20240615T143045Z
  codeloop transcript codeloop_20240615T143045Z --rounds 1-2 --content
  codeloop transcript codeloop_20240615T143045Z --window`,
	Args: cobra.ExactArgs(1),
	RunE: showTranscript,
}

func init() {
	rootCmd.AddCommand(transcriptCmd)

	transcriptCmd.Flags().StringSlice("rounds", nil, "Feedback rounds to show (e.g. 0,2-3)")
	transcriptCmd.Flags().Bool("content", false, "Print artifact content")
	transcriptCmd.Flags().Bool("transitions", false, "Print recorded state transitions")
	transcriptCmd.Flags().Bool("window", false, "Print the context window the run ended with")
}

// transitionReader is implemented by the backends that can read transitions
// back.
type transitionReader interface {
	Transitions(ctx context.Context, runID string) ([]transcript.Transition, error)
}

// fileTransitions adapts FileStore, whose journal reader takes no context.
type fileTransitions struct {
	*transcript.FileStore
}

func (f fileTransitions) Transitions(_ context.Context, runID string) ([]transcript.Transition, error) {
	return f.FileStore.Transitions(runID)
}

func showTranscript(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	runID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	roundArgs, _ := cmd.Flags().GetStringSlice("rounds")
	rounds, err := ExpandRanges(roundArgs)
	if err != nil {
		return fmt.Errorf("invalid --rounds value: %w", err)
	}
	showContent, _ := cmd.Flags().GetBool("content")
	showTransitions, _ := cmd.Flags().GetBool("transitions")

	if showWindow, _ := cmd.Flags().GetBool("window"); showWindow {
		templates, err := prompt.Load(cfg.Prompts.File)
		if err != nil {
			return err
		}
		window, err := loadWindow(filepath.Join(cfg.Transcript.Dir, runID+"_window.json"), templates)
		if err != nil {
			return err
		}
		formatWindow(os.Stdout, window)
		return nil
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer store.Close()

	artifacts, err := store.List(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}
	artifacts = filterRounds(artifacts, rounds)
	if len(artifacts) == 0 {
		fmt.Printf("No artifacts found for run %s\n", runID)
	}
	for _, a := range artifacts {
		formatArtifact(os.Stdout, a, showContent)
	}

	if !showTransitions {
		return nil
	}

	var reader transitionReader
	switch s := store.(type) {
	case *transcript.FileStore:
		reader = fileTransitions{s}
	case transitionReader:
		reader = s
	default:
		return fmt.Errorf("the %s backend cannot read transitions back", cfg.Transcript.Backend)
	}

	transitions, err := reader.Transitions(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to read transitions: %w", err)
	}
	fmt.Println()
	for _, t := range transitions {
		formatTransition(os.Stdout, t)
	}
	return nil
}

// filterRounds keeps artifacts from the given rounds; none keeps all.
func filterRounds(arts []transcript.Artifact, rounds []int) []transcript.Artifact {
	if len(rounds) == 0 {
		return arts
	}
	keep := make(map[int]bool, len(rounds))
	for _, r := range rounds {
		keep[r] = true
	}
	var out []transcript.Artifact
	for _, a := range arts {
		if keep[a.Key.Feedback] {
			out = append(out, a)
		}
	}
	return out
}

func formatArtifact(w io.Writer, a transcript.Artifact, withContent bool) {
	fmt.Fprintf(w, "[fdbk %d iter %d] %-6s %s\n", a.Key.Feedback, a.Key.Iteration, a.Kind, a.Location)
	if !withContent {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(a.Content, "\n"), "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
}

func formatTransition(w io.Writer, t transcript.Transition) {
	from := t.From
	if from == "" {
		from = "start"
	}
	line := fmt.Sprintf("#%d [%s] %s -> %s (fdbk %d iter %d, PASS %d, FAIL %d)",
		t.Seq, t.Timestamp.Format("15:04:05"), from, t.To, t.Feedback, t.Iteration, t.Passes, t.Fails)
	if t.Detail != "" {
		line += ": " + t.Detail
	}
	fmt.Fprintln(w, line)
}

// loadWindow restores the window snapshot written at the end of a run.
func loadWindow(path string, templates prompt.Templates) (*memory.Window, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read window snapshot: %w", err)
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode window snapshot %s: %w", path, err)
	}
	w := memory.NewWindow(snap.Description, memory.WithTemplates(templates))
	w.Restore(snap)
	return w, nil
}

// formatWindow prints the turns the next generation call would have sent.
func formatWindow(w io.Writer, window *memory.Window) {
	for _, turn := range window.BuildGenerationPrompt() {
		fmt.Fprintf(w, "--- %s\n%s\n", turn.Role, strings.TrimRight(turn.Content, "\n"))
	}
}
