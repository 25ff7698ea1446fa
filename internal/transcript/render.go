package transcript

import (
	"fmt"
	"strings"
)

// Display labels for each role. Markers render as bare divider lines in the
// terminal, without a speaker prefix.
const (
	userLabel      = "You"
	assistantLabel = "Psych"
)

// RenderMessage formats a single message for terminal display.
func RenderMessage(m Message) string {
	switch m.Role {
	case RoleUser:
		return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04"), userLabel, m.Content)
	case RoleAssistant:
		return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("15:04"), assistantLabel, m.Content)
	case RoleMarker:
		return fmt.Sprintf("── %s", m.Content)
	default:
		return m.Content
	}
}

// Render formats the whole conversation, one message per line. The result is
// a pure projection of messages; it never mutates the log.
func Render(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(RenderMessage(m))
	}
	return b.String()
}
