package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/orchestra-mcp/roomchat/src/types"
)

// FormatMessage renders one message line.
func FormatMessage(msg types.ChatMessage) string {
	var b strings.Builder
	if ts := shortTime(msg.Timestamp); ts != "" {
		b.WriteString("[" + ts + "] ")
	}
	b.WriteString(msg.Sender)
	b.WriteString(": ")
	b.WriteString(msg.Content)
	if len(msg.Media) > 0 && string(msg.Media) != "null" {
		b.WriteString(" [media]")
	}
	return b.String()
}

// FormatTyping renders the typing indicator, leaving out self.
func FormatTyping(usernames []string, self string) string {
	names := others(usernames, self)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return fmt.Sprintf("%s and %d others are typing...", names[0], len(names)-1)
	}
}

// FormatStatus renders the status line.
func FormatStatus(roomID int64, connected bool, typing string) string {
	state := "connected"
	if !connected {
		state = "disconnected"
	}
	status := fmt.Sprintf("Room %d | %s", roomID, state)
	if typing != "" {
		status += " | " + typing
	}
	return status
}

// UnseenIDs returns ids of messages from other users not yet in seen.
func UnseenIDs(messages []types.ChatMessage, seen map[int64]bool, self string) []int64 {
	var ids []int64
	for _, msg := range messages {
		if msg.ID == nil || msg.Sender == self || seen[*msg.ID] {
			continue
		}
		ids = append(ids, *msg.ID)
	}
	return ids
}

// MarkSeen records ids in seen. Call it once the receipt went out.
func MarkSeen(seen map[int64]bool, ids []int64) {
	for _, id := range ids {
		seen[id] = true
	}
}

func others(names []string, self string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != self {
			out = append(out, n)
		}
	}
	return out
}

func shortTime(ts *string) string {
	if ts == nil || *ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, *ts)
	if err != nil {
		return *ts
	}
	return t.Local().Format("15:04")
}
