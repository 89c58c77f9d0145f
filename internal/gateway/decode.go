package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/smartstar/internal/domain"
	"github.com/google/uuid"
)

// record is a decoded JSON object whose keys are normalized so that
// "createdAt", "created_at" and "CreatedAt" resolve to the same field.
type record map[string]json.RawMessage

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer("_", "", "-", "").Replace(k)
}

func decodeRecords(data []byte) ([]record, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make([]record, 0, len(raw))
	for _, obj := range raw {
		out = append(out, normalizeRecord(obj))
	}
	return out, nil
}

func decodeRecord(data []byte) (record, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return normalizeRecord(obj), nil
}

func normalizeRecord(obj map[string]json.RawMessage) record {
	r := make(record, len(obj))
	for k, v := range obj {
		r[normalizeKey(k)] = v
	}
	return r
}

// str returns the first present key as text. Strings are unquoted, numbers
// and booleans are returned literally, null reads as "".
func (r record) str(keys ...string) string {
	for _, k := range keys {
		v, ok := r[normalizeKey(k)]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 || bytes.Equal(v, []byte("null")) {
			continue
		}
		if v[0] == '"' {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				return s
			}
			continue
		}
		return string(v)
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// timestamp returns the first parsable timestamp among keys. Numbers are read as
// epoch milliseconds.
func (r record) timestamp(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		s := r.str(k)
		if s == "" {
			continue
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), true
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// toMessage builds the canonical Message from a backend message row.
func (r record) toMessage(now time.Time) domain.Message {
	msg := domain.Message{
		ID:      r.str("id"),
		Content: r.str("content"),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if strings.EqualFold(r.str("role"), string(domain.RoleUser)) {
		msg.Role = domain.RoleUser
	} else {
		msg.Role = domain.RoleAssistant
		msg.Content, msg.Suggestions = domain.ParseReply(msg.Content)
	}

	if ts, ok := r.timestamp("createdAt", "timestamp"); ok {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = now
	}
	return msg
}

func (r record) toHistory() domain.ChatHistory {
	return domain.ChatHistory{
		ID:          r.str("id"),
		Title:       r.str("title"),
		LastMessage: r.str("lastMessage"),
		Date:        r.str("date", "updatedAt", "createdAt"),
	}
}
