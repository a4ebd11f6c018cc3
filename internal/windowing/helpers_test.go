package windowing_test

import (
	"github.com/petasbytes/buildfile-agent/internal/windowing"
	"github.com/petasbytes/buildfile-agent/memory"
)

// User text turn
func U(text string) memory.Message {
	return memory.Message{Role: memory.RoleUser, Text: text}
}

// Assistant text turn
func A(text string) memory.Message {
	return memory.Message{Role: memory.RoleAssistant, Text: text}
}

// Assistant tool request
func Req(tool, text string) memory.Message {
	return memory.Message{Role: memory.RoleAssistant, Text: text, Tool: tool}
}

// User tool output
func Res(tool, text string) memory.Message {
	return memory.Message{Role: memory.RoleUser, Text: text, Tool: tool}
}

// groupsEqual is a small utility used by grouping tests.
func groupsEqual(got, want []windowing.Group) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i].Kind != want[i].Kind || got[i].Start != want[i].Start || got[i].End != want[i].End {
			return false
		}
	}
	return true
}
