package session

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extraction is what Extract found in a Start payload.
type Extraction struct {
	// Fields holds canonical static keys mapped to their values.
	Fields map[string]string
	// Description is the repository description to show the model. It is the
	// inner text of a {"text": ...} wrapper, or the payload itself.
	Description string
}

// Alias ranks; a lower rank wins when one payload names a key twice.
const (
	rankCanonical = iota
	rankAlias
)

type keySpec struct {
	key  string
	rank int
}

// aliases maps normalised key spellings to canonical keys.
var aliases = map[string]keySpec{
	"branch":           {KeyBranch, rankCanonical},
	"ref":              {KeyBranch, rankAlias},
	"repo_owner":       {KeyRepoOwner, rankCanonical},
	"owner":            {KeyRepoOwner, rankAlias},
	"repository_owner": {KeyRepoOwner, rankAlias},
	"repo_name":        {KeyRepoName, rankCanonical},
	"repo":             {KeyRepoName, rankAlias},
	"repository":       {KeyRepoName, rankAlias},
	"repository_name":  {KeyRepoName, rankAlias},
	"access_token":     {KeyAccessToken, rankCanonical},
	"token":            {KeyAccessToken, rankAlias},
	"github_token":     {KeyAccessToken, rankAlias},
}

var urlKeys = map[string]bool{"repo_url": true, "repository_url": true}

var (
	lineRe      = regexp.MustCompile(`^\s*(?:[-*]\s+)?([A-Za-z][A-Za-z0-9 _-]*?)\s*[=:]\s*(.+?)\s*$`)
	githubURLRe = regexp.MustCompile(`^https?://github\.com/([^/\s]+)/([^/\s]+?)(?:\.git)?/?$`)
)

// normalizeKey lowercases k and folds spaces and dashes to underscores.
func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.Trim(k, `"'`+"`")
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}

// IsCoordinateKey reports whether k names a repository coordinate or
// credential under any recognized spelling.
func IsCoordinateKey(k string) bool {
	n := normalizeKey(k)
	_, ok := aliases[n]
	return ok || urlKeys[n]
}

func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"'`+"`")
	return strings.TrimSpace(v)
}

type collector struct {
	fields map[string]string
	ranks  map[string]int
}

func newCollector() *collector {
	return &collector{fields: map[string]string{}, ranks: map[string]int{}}
}

func (c *collector) put(key, value string, rank int) {
	value = cleanValue(value)
	if value == "" {
		return
	}
	if cur, ok := c.ranks[key]; ok && cur <= rank {
		return
	}
	c.fields[key] = value
	c.ranks[key] = rank
}

func (c *collector) add(rawKey, value string) {
	n := normalizeKey(rawKey)
	if spec, ok := aliases[n]; ok {
		c.put(spec.key, value, spec.rank)
		return
	}
	if urlKeys[n] {
		if m := githubURLRe.FindStringSubmatch(cleanValue(value)); m != nil {
			c.put(KeyRepoOwner, m[1], rankAlias)
			c.put(KeyRepoName, m[2], rankAlias)
		}
	}
}

// Extract pulls static parameters out of a Start payload. It first reads the
// payload as a structured record (JSON object or YAML mapping), then scans the
// description line by line for KEY=value and KEY: value pairs. Structured
// values win over line values; canonical spellings win over aliases.
// Nothing found is not an error.
func Extract(payload string) Extraction {
	ex := Extraction{Description: payload}
	structured := newCollector()

	if record, ok := parseRecord(payload); ok {
		for k, s := range record {
			if normalizeKey(k) == "text" {
				ex.Description = s
				continue
			}
			structured.add(k, s)
		}
	}

	lines := newCollector()
	for _, line := range strings.Split(ex.Description, "\n") {
		m := lineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lines.add(m[1], m[2])
	}

	fields := lines.fields
	for k, v := range structured.fields {
		fields[k] = v
	}
	ex.Fields = fields
	return ex
}

// parseRecord reads payload as a JSON object or a YAML mapping and returns its
// top-level scalar fields as written: JSON numbers and YAML scalars keep their
// source text, so "1.10" stays "1.10" and "0123" stays "0123".
func parseRecord(payload string) (map[string]string, bool) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, false
	}
	if strings.HasPrefix(trimmed, "{") {
		if record, ok := parseJSONRecord(trimmed); ok {
			return record, true
		}
	}
	return parseYAMLRecord(trimmed)
}

func parseJSONRecord(s string) (map[string]string, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}
	record := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			record[k] = t
		case json.Number:
			record[k] = t.String()
		case bool:
			record[k] = strconv.FormatBool(t)
		}
	}
	return record, true
}

func parseYAMLRecord(s string) (map[string]string, bool) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil || len(doc.Content) == 0 {
		return nil, false
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, false
	}
	record := make(map[string]string, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode || val.Kind != yaml.ScalarNode || val.Tag == "!!null" {
			continue
		}
		record[key.Value] = val.Value
	}
	return record, true
}
