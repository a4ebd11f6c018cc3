package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// clipSentinel marks a turn whose text was shortened before being stored.
const clipSentinel = "\n-- clipped --"

// Message is a minimal persisted view of a chat turn.
// Tool is set on assistant turns that requested a tool and on the user turn
// that carried the tool's output back.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text,omitempty"`
	Tool string `json:"tool,omitempty"`
}

// Clip returns m with Text shortened to at most n runes, sentinel included.
// n <= 0 leaves the message untouched.
func Clip(m Message, n int) Message {
	if n <= 0 || utf8.RuneCountInString(m.Text) <= n {
		return m
	}
	keep := n - utf8.RuneCountInString(clipSentinel)
	if keep < 0 {
		keep = 0
	}
	r := []rune(m.Text)
	m.Text = string(r[:keep]) + clipSentinel
	if utf8.RuneCountInString(m.Text) > n {
		m.Text = string([]rune(m.Text)[:n])
	}
	return m
}

// EncodeHistory serialises msgs for storage in a string-valued session key.
func EncodeHistory(msgs []Message) (string, error) {
	if len(msgs) == 0 {
		return "", nil
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(b), nil
}

// DecodeHistory is the inverse of EncodeHistory. An empty string yields nil.
func DecodeHistory(s string) ([]Message, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(s), &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}

func LoadConversation(path string) ([]Message, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func SaveConversation(path string, msgs []Message) error {
	b, err := json.MarshalIndent(msgs, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
