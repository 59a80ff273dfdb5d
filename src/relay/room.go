package relay

import (
	"encoding/json"
	"time"

	"github.com/orchestra-mcp/roomchat/src/types"
)

type room struct {
	id          int64
	members     map[string]*Client
	nextID      int64
	history     []types.ChatMessage
	historySize int
}

func newRoom(id int64, historySize int) *room {
	return &room{
		id:          id,
		members:     make(map[string]*Client),
		historySize: historySize,
	}
}

// appendMessage stamps a new message with the next id and the current
// time and keeps it in bounded history.
func (r *room) appendMessage(sender, content string, media json.RawMessage) types.ChatMessage {
	r.nextID++
	id := r.nextID
	ts := time.Now().UTC().Format(time.RFC3339)
	msg := types.ChatMessage{
		ID:        &id,
		Sender:    sender,
		Content:   content,
		Media:     media,
		Timestamp: &ts,
	}

	r.history = append(r.history, msg)
	if len(r.history) > r.historySize {
		r.history = r.history[len(r.history)-r.historySize:]
	}
	return msg
}

// markSeen records username as a reader of ids. It returns the ids that
// matched a message in history.
func (r *room) markSeen(username string, ids []int64) []int64 {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	matched := make([]int64, 0, len(ids))
	for i := range r.history {
		msg := &r.history[i]
		if msg.ID == nil || !want[*msg.ID] {
			continue
		}
		matched = append(matched, *msg.ID)
		if !contains(msg.SeenBy, username) {
			msg.SeenBy = append(msg.SeenBy, username)
		}
	}
	return matched
}

// snapshot returns a deep copy of the last limit messages.
func (r *room) snapshot(limit int) []types.ChatMessage {
	if limit <= 0 || limit > len(r.history) {
		limit = len(r.history)
	}
	src := r.history[len(r.history)-limit:]
	out := make([]types.ChatMessage, len(src))
	for i, msg := range src {
		out[i] = msg
		if msg.SeenBy != nil {
			out[i].SeenBy = append([]string(nil), msg.SeenBy...)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
