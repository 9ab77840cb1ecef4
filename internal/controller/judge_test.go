package controller

import (
	"strings"
	"testing"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		want   string
		wantOK bool
	}{
		{
			name:   "tagged fence",
			reply:  "Here you go:\n```python\nprint(1)\n```\n",
			want:   "print(1)",
			wantOK: true,
		},
		{
			name:   "untagged fence",
			reply:  "```\nx = 1\nprint(x)\n```",
			want:   "x = 1\nprint(x)",
			wantOK: true,
		},
		{
			name:   "last of several blocks",
			reply:  "First try:\n```python\na()\n```\nBetter:\n```python\nb()\n```\nDone.",
			want:   "b()",
			wantOK: true,
		},
		{
			name:   "keeps indentation inside the block",
			reply:  "```python\nfor i in range(3):\n    print(i)\n```",
			want:   "for i in range(3):\n    print(i)",
			wantOK: true,
		},
		{
			name:   "whitespace-only block",
			reply:  "```python\n   \n\n```",
			wantOK: false,
		},
		{
			name:   "no fence",
			reply:  "print(1)",
			wantOK: false,
		},
		{
			name:   "empty reply",
			reply:  "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCode(tt.reply)
			if ok != tt.wantOK {
				t.Fatalf("ExtractCode() ok = %v, want %v (code %q)", ok, tt.wantOK, got)
			}
			if ok && got != tt.want {
				t.Errorf("ExtractCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhraseMatcher_Match(t *testing.T) {
	m := PhraseMatcher{Pass: "it passes", Fail: "it fails"}

	tests := []struct {
		name        string
		matcher     PhraseMatcher
		reply       string
		wantVerdict Verdict
		wantOK      bool
	}{
		{name: "pass", matcher: m, reply: "Looks good, it passes.", wantVerdict: VerdictPass, wantOK: true},
		{name: "pass ignores case", matcher: m, reply: "IT PASSES", wantVerdict: VerdictPass, wantOK: true},
		{name: "fail", matcher: m, reply: "The sum is wrong, so it fails.", wantVerdict: VerdictFail, wantOK: true},
		{name: "fail ignores case", matcher: m, reply: "It Fails", wantVerdict: VerdictFail, wantOK: true},
		{
			name:        "both phrases",
			matcher:     m,
			reply:       "It fails because the header is missing; once fixed, It Passes.",
			wantVerdict: VerdictFail,
			wantOK:      false,
		},
		{name: "neither phrase", matcher: m, reply: "Not sure.", wantVerdict: VerdictFail, wantOK: false},
		{
			name:        "empty pass phrase never passes",
			matcher:     PhraseMatcher{Fail: "it fails"},
			reply:       "it passes",
			wantVerdict: VerdictFail,
			wantOK:      false,
		},
		{
			name:        "empty pass phrase still fails",
			matcher:     PhraseMatcher{Fail: "it fails"},
			reply:       "it fails",
			wantVerdict: VerdictFail,
			wantOK:      true,
		},
		{name: "no phrases", matcher: PhraseMatcher{}, reply: "anything", wantVerdict: VerdictFail, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, ok := tt.matcher.Match(tt.reply)
			if verdict != tt.wantVerdict || ok != tt.wantOK {
				t.Errorf("Match(%q) = %s, %v; want %s, %v", tt.reply, verdict, ok, tt.wantVerdict, tt.wantOK)
			}
		})
	}
}

func TestMatcherFunc(t *testing.T) {
	var seen string
	f := MatcherFunc(func(reply string) (Verdict, bool) {
		seen = reply
		if strings.HasPrefix(reply, "ok") {
			return VerdictPass, true
		}
		return VerdictFail, true
	})

	var matcher VerdictMatcher = f
	if v, ok := matcher.Match("ok then"); v != VerdictPass || !ok {
		t.Errorf("Match(ok then) = %s, %v", v, ok)
	}
	if seen != "ok then" {
		t.Errorf("func saw %q", seen)
	}
	if v, _ := matcher.Match("no"); v != VerdictFail {
		t.Errorf("Match(no) = %s, want FAIL", v)
	}
}
