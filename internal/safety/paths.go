// Package safety holds the path policy applied to file paths a model asks
// the fetch tool for.
package safety

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Error codes carried by ToolError.
const (
	CodeInvalidPath      = "ERR_INVALID_PATH"
	CodePathOutsideRepo  = "ERR_PATH_OUTSIDE_REPO"
	CodeDeniedRead       = "ERR_DENIED_READ"
	CodeTooManyPaths     = "ERR_TOO_MANY_PATHS"
	CodeMissingParameter = "ERR_MISSING_PARAMETER"
)

// ToolError is a machine-readable error body for surfacing back to the agent as JSON.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool payloads small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

var driveRe = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// NormalizeRepoPath turns a model-supplied path into a clean path relative to
// the repository root. Leading slashes and "./" are dropped; Windows drive
// paths, parent traversal that leaves the root and anything under .git/ are
// rejected with a ToolError.
func NormalizeRepoPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ToolError{Code: CodeInvalidPath, Message: "empty path"}
	}
	if driveRe.MatchString(p) || strings.HasPrefix(p, `\\`) || strings.HasPrefix(p, "~") {
		return "", ToolError{Code: CodePathOutsideRepo, Message: fmt.Sprintf("%q is not relative to the repository root", p)}
	}
	p = strings.ReplaceAll(p, `\`, "/")

	if c := path.Clean(strings.TrimLeft(p, "/")); c == ".." || strings.HasPrefix(c, "../") {
		return "", ToolError{Code: CodePathOutsideRepo, Message: fmt.Sprintf("%q resolves outside the repository", p)}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" {
		return "", ToolError{Code: CodeInvalidPath, Message: "the repository root is not a file"}
	}

	for _, seg := range strings.Split(cleaned, "/") {
		if seg == ".git" {
			return "", ToolError{Code: CodeDeniedRead, Message: "reads under .git/ are not allowed"}
		}
	}
	return cleaned, nil
}

// CheckPathCount rejects requests for more than max paths. max <= 0 disables the check.
func CheckPathCount(n, max int) error {
	if n == 0 {
		return ToolError{Code: CodeMissingParameter, Message: "no file paths given"}
	}
	if max > 0 && n > max {
		return ToolError{Code: CodeTooManyPaths, Message: fmt.Sprintf("%d paths requested; at most %d per call", n, max)}
	}
	return nil
}
