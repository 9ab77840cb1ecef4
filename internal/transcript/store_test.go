package transcript

import (
	"testing"
	"time"
)

func TestKeyName(t *testing.T) {
	k := Key{RunID: "codeloop_20250326T010203Z", Feedback: 0, Iteration: 1}
	if got := k.Name("py"); got != "codeloop_20250326T010203Z_fdbk0_iter1.py" {
		t.Errorf("Name() = %q", got)
	}
	if got := k.Name("txt"); got != "codeloop_20250326T010203Z_fdbk0_iter1.txt" {
		t.Errorf("Name() = %q", got)
	}
}

func TestKeyValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{"valid", Key{RunID: "r", Feedback: 0, Iteration: 1}, false},
		{"missing run", Key{Feedback: 0, Iteration: 1}, true},
		{"negative round", Key{RunID: "r", Feedback: -1, Iteration: 1}, true},
		{"zero iteration", Key{RunID: "r", Feedback: 0, Iteration: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.key.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseName(t *testing.T) {
	key, kind, ok := ParseName("run_x_20250101T000000Z_fdbk2_iter13.txt", "txt")
	if !ok {
		t.Fatal("expected name to parse")
	}
	want := Key{RunID: "run_x_20250101T000000Z", Feedback: 2, Iteration: 13}
	if key != want || kind != KindOutput {
		t.Errorf("ParseName() = %+v %q", key, kind)
	}

	_, kind, ok = ParseName("r_fdbk0_iter1.py", "txt")
	if !ok || kind != KindCode {
		t.Errorf("code artifact: ok=%v kind=%q", ok, kind)
	}

	for _, bad := range []string{"transitions.jsonl", "r_fdbk_iter1.py", "r.txt", "r_fdbk0_iter1"} {
		if _, _, ok := ParseName(bad, "txt"); ok {
			t.Errorf("ParseName(%q) should fail", bad)
		}
	}
}

func TestSortArtifacts(t *testing.T) {
	arts := []Artifact{
		{Key: Key{Feedback: 1, Iteration: 1}, Kind: KindOutput},
		{Key: Key{Feedback: 0, Iteration: 2}, Kind: KindCode},
		{Key: Key{Feedback: 1, Iteration: 1}, Kind: KindCode},
		{Key: Key{Feedback: 0, Iteration: 1}, Kind: KindOutput},
		{Key: Key{Feedback: 0, Iteration: 1}, Kind: KindCode},
	}
	sortArtifacts(arts)

	want := []struct {
		fb, it int
		kind   Kind
	}{
		{0, 1, KindCode}, {0, 1, KindOutput}, {0, 2, KindCode}, {1, 1, KindCode}, {1, 1, KindOutput},
	}
	for i, w := range want {
		a := arts[i]
		if a.Key.Feedback != w.fb || a.Key.Iteration != w.it || a.Kind != w.kind {
			t.Errorf("arts[%d] = %+v %q, want %+v", i, a.Key, a.Kind, w)
		}
	}
}

func TestNewRunID(t *testing.T) {
	start := time.Date(2025, 3, 26, 1, 2, 3, 0, time.FixedZone("X", 3600))
	if got := NewRunID("codeloop", start); got != "codeloop_20250326T000203Z" {
		t.Errorf("NewRunID() = %q", got)
	}
	if got := NewRunID("", start); got != "20250326T000203Z" {
		t.Errorf("NewRunID(empty) = %q", got)
	}
}

func TestExtensionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      Extensions
		want    Extensions
		wantErr bool
	}{
		{name: "defaults", in: Extensions{}, want: Extensions{Code: "py", Output: "txt"}},
		{name: "leading dot", in: Extensions{Code: ".js", Output: ".log"}, want: Extensions{Code: "js", Output: "log"}},
		{name: "code equals output", in: Extensions{Code: "txt"}, wantErr: true},
		{name: "collision ignores dot and case", in: Extensions{Code: ".TXT"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
