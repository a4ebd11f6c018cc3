package session

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Redacted replaces credential values in descriptions shown to the model.
const Redacted = "[REDACTED]"

func isCredentialKey(k string) bool {
	return aliases[normalizeKey(k)].key == KeyAccessToken
}

// RedactCredentials masks the value of every credential field in desc. A JSON
// object has its top-level credential members replaced; any other text has
// the value of each credential KEY=value or KEY: value line replaced. The rest
// of desc is left untouched.
func RedactCredentials(desc string) string {
	trimmed := strings.TrimSpace(desc)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		out := desc
		gjson.Parse(trimmed).ForEach(func(key, _ gjson.Result) bool {
			if isCredentialKey(key.String()) {
				if redacted, err := sjson.Set(out, escapePath(key.String()), Redacted); err == nil {
					out = redacted
				}
			}
			return true
		})
		return out
	}

	lines := strings.Split(desc, "\n")
	for i, line := range lines {
		m := lineRe.FindStringSubmatchIndex(line)
		if m == nil || !isCredentialKey(line[m[2]:m[3]]) {
			continue
		}
		lines[i] = line[:m[4]] + Redacted + line[m[5]:]
	}
	return strings.Join(lines, "\n")
}

func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
