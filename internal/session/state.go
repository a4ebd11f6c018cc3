// Package session implements the key/value record a host persists between
// orchestration steps: repository coordinates fixed at the start of a
// conversation, plus an optional trimmed text history.
package session

import (
	"sort"
	"strconv"

	"github.com/petasbytes/buildfile-agent/memory"
)

// Recognized keys.
const (
	KeyBranch      = "BRANCH"
	KeyRepoOwner   = "REPO_OWNER"
	KeyRepoName    = "REPO_NAME"
	KeyAccessToken = "ACCESS_TOKEN"

	// KeyHistory holds the JSON-encoded []memory.Message history.
	KeyHistory = "HISTORY"
)

// RequiredKeys are the coordinates every file-fetch call needs, in reporting order.
var RequiredKeys = []string{KeyBranch, KeyRepoOwner, KeyRepoName}

// StaticKeys are the conversation-wide parameters extracted at Start.
var StaticKeys = []string{KeyBranch, KeyRepoOwner, KeyRepoName, KeyAccessToken}

const redacted = "[REDACTED]"

// State is the session record. A nil State behaves as empty for reads.
type State map[string]string

// Clone returns a non-nil copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// MergeMissing returns a copy of s with fields added for keys s does not
// already hold a non-empty value for. Existing values always win.
func (s State) MergeMissing(fields map[string]string) State {
	out := s.Clone()
	for k, v := range fields {
		if v == "" {
			continue
		}
		if cur, ok := out[k]; ok && cur != "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Static returns the non-empty static parameters held by s.
func (s State) Static() map[string]string {
	out := make(map[string]string, len(StaticKeys))
	for _, k := range StaticKeys {
		if v := s[k]; v != "" {
			out[k] = v
		}
	}
	return out
}

// Missing lists required keys that are absent or empty, in RequiredKeys order.
func (s State) Missing() []string {
	var missing []string
	for _, k := range RequiredKeys {
		if s[k] == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// Redacted returns a copy that is safe to log: the access token is masked and
// the history is reduced to its size.
func (s State) Redacted() map[string]string {
	out := make(map[string]string, len(s))
	for k, v := range s {
		switch k {
		case KeyAccessToken:
			if v != "" {
				v = redacted
			}
		case KeyHistory:
			if v != "" {
				v = "[" + strconv.Itoa(len(v)) + " bytes]"
			}
		}
		out[k] = v
	}
	return out
}

// Keys returns the sorted keys of s.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// History decodes the stored history, if any.
func (s State) History() ([]memory.Message, error) {
	return memory.DecodeHistory(s[KeyHistory])
}

// WithHistory returns a copy of s holding msgs as its history.
func (s State) WithHistory(msgs []memory.Message) (State, error) {
	enc, err := memory.EncodeHistory(msgs)
	if err != nil {
		return nil, err
	}
	out := s.Clone()
	if enc == "" {
		delete(out, KeyHistory)
		return out, nil
	}
	out[KeyHistory] = enc
	return out, nil
}
