package windowing

import (
	"fmt"
	"os"

	"github.com/petasbytes/buildfile-agent/memory"
)

// GroupKind denotes the atomic unit type when trimming history.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
)

// Group describes a contiguous span of messages [Start, End) in the original slice.
// Kind indicates whether it is a singleton or a validated pair.
type Group struct {
	Kind  GroupKind
	Start int // inclusive index into msgs
	End   int // exclusive index into msgs
}

// GroupBlocks groups history turns into atomic units that keep tool exchanges whole.
// Invariants:
// - A pair is exactly two adjacent messages: assistant(tool request) then user(tool output).
// - Both sides must name the same tool.
// - Anything else is a singleton.
func GroupBlocks(msgs []memory.Message) []Group {
	groups := make([]Group, 0, len(msgs))
	for i := 0; i < len(msgs); {
		m := msgs[i]
		if isAssistant(m) && m.Tool != "" {
			if i+1 < len(msgs) && isUser(msgs[i+1]) {
				if msgs[i+1].Tool == m.Tool {
					groups = append(groups, Group{Kind: GroupPair, Start: i, End: i + 2})
					i += 2
					continue
				}
				vlogf("exclude pair: reason=tool_mismatch idx=%d", i)
			} else {
				vlogf("exclude pair: reason=not_followed_by_user idx=%d", i)
			}
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

func isAssistant(m memory.Message) bool {
	return m.Role == memory.RoleAssistant
}

func isUser(m memory.Message) bool {
	return m.Role == memory.RoleUser
}

// minimal verbose logging when AGT_VERBOSE_WINDOW_LOGS=1
var verbose = os.Getenv("AGT_VERBOSE_WINDOW_LOGS") == "1"

func vlogf(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[windowing] "+format+"\n", args...)
	}
}
