package transcript_test

import (
	"strings"
	"testing"
	"time"

	"github.com/roundone/Psych/internal/transcript"
)

func TestRenderEmpty(t *testing.T) {
	t.Parallel()

	if got := transcript.Render(nil); got != "" {
		t.Errorf("Render(nil) = %q, want empty", got)
	}
}

func TestRenderRoles(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.Local)
	messages := []transcript.Message{
		{Role: transcript.RoleMarker, Content: "It is now 9:30 AM, on Saturday, March 14, 2026.", Timestamp: ts},
		{Role: transcript.RoleUser, Content: "Hello", Timestamp: ts},
		{Role: transcript.RoleAssistant, Content: "Hi there", Timestamp: ts},
	}

	out := transcript.Render(messages)
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("rendered %d lines, want 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "──") {
		t.Errorf("marker line = %q, want divider prefix", lines[0])
	}
	if !strings.Contains(lines[1], "You: Hello") {
		t.Errorf("user line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "Psych: Hi there") {
		t.Errorf("assistant line = %q", lines[2])
	}
	if !strings.Contains(lines[1], "09:30") {
		t.Errorf("user line %q missing timestamp", lines[1])
	}
}
