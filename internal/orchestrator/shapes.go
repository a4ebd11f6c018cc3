package orchestrator

import (
	"strings"

	"github.com/tidwall/gjson"
)

// reply is what a model response asked for: a tool call or final text.
type reply struct {
	Text string
	Tool *toolCall
}

type toolCall struct {
	ID    string
	Name  string
	Input gjson.Result
}

// replyShape recognizes one response layout.
type replyShape struct {
	name  string
	match func(root gjson.Result) (reply, bool)
}

// replyShapes are tried in order; the first match wins.
var replyShapes = []replyShape{
	{"bedrock_tool_use", matchBedrockToolUse},
	{"tool_name", matchToolName},
	{"converse", matchConverse},
	{"messages_content", matchMessagesContent},
	{"flat_text", matchFlatText},
	{"segments", matchSegments},
	{"json_string", matchJSONString},
}

func matchReply(payload string) (reply, string, bool) {
	root := gjson.Parse(payload)
	for _, s := range replyShapes {
		if r, ok := s.match(root); ok {
			return r, s.name, true
		}
	}
	return reply{}, "", false
}

// {"toolUse": {"toolUseId", "name", "input"}}
func matchBedrockToolUse(root gjson.Result) (reply, bool) {
	tu := root.Get("toolUse")
	if !tu.IsObject() {
		return reply{}, false
	}
	return reply{Tool: toolUseCall(tu)}, true
}

// {"toolName", "toolInput"}
func matchToolName(root gjson.Result) (reply, bool) {
	name := root.Get("toolName")
	if name.Type != gjson.String {
		return reply{}, false
	}
	return reply{Tool: &toolCall{
		ID:    firstString(root, "toolUseId", "id"),
		Name:  name.String(),
		Input: root.Get("toolInput"),
	}}, true
}

// {"output": {"message": {"content": [{"text"} | {"toolUse"}]}}}
func matchConverse(root gjson.Result) (reply, bool) {
	content := root.Get("output.message.content")
	if !content.IsArray() {
		return reply{}, false
	}
	var text strings.Builder
	var call *toolCall
	content.ForEach(func(_, block gjson.Result) bool {
		if tu := block.Get("toolUse"); tu.IsObject() {
			call = toolUseCall(tu)
			return false
		}
		text.WriteString(block.Get("text").String())
		return true
	})
	if call != nil {
		return reply{Tool: call}, true
	}
	return reply{Text: text.String()}, true
}

// {"content": [{"type": "text", "text"} | {"type": "tool_use", "id", "name", "input"}]}
func matchMessagesContent(root gjson.Result) (reply, bool) {
	content := root.Get("content")
	if !content.IsArray() {
		return reply{}, false
	}
	var text strings.Builder
	var call *toolCall
	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "tool_use":
			call = &toolCall{
				ID:    block.Get("id").String(),
				Name:  block.Get("name").String(),
				Input: block.Get("input"),
			}
			return false
		case "text":
			text.WriteString(block.Get("text").String())
		}
		return true
	})
	if call != nil {
		return reply{Tool: call}, true
	}
	return reply{Text: text.String()}, true
}

var flatTextKeys = []string{"generation", "completion", "outputText", "text"}

func matchFlatText(root gjson.Result) (reply, bool) {
	for _, k := range flatTextKeys {
		if v := root.Get(k); v.Type == gjson.String {
			return reply{Text: v.String()}, true
		}
	}
	return reply{}, false
}

var segmentKeys = []string{"generations", "segments"}

// Segments are strings or {"text"} objects, joined without a separator.
func matchSegments(root gjson.Result) (reply, bool) {
	for _, k := range segmentKeys {
		list := root.Get(k)
		if !list.IsArray() {
			continue
		}
		var text strings.Builder
		list.ForEach(func(_, seg gjson.Result) bool {
			if seg.Type == gjson.String {
				text.WriteString(seg.String())
			} else {
				text.WriteString(seg.Get("text").String())
			}
			return true
		})
		return reply{Text: text.String()}, true
	}
	return reply{}, false
}

func matchJSONString(root gjson.Result) (reply, bool) {
	if root.Type != gjson.String {
		return reply{}, false
	}
	return reply{Text: root.String()}, true
}

func toolUseCall(tu gjson.Result) *toolCall {
	return &toolCall{
		ID:    firstString(tu, "toolUseId", "id"),
		Name:  tu.Get("name").String(),
		Input: tu.Get("input"),
	}
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
