// Package host drives a conversation end to end: it routes each step through
// the orchestrator, persists the session between steps, and performs the
// returned action against the model or the file-fetch tool.
//
// Flow:
//
//	Start -> InvokeModel -> ModelResponded -> InvokeTool -> ToolResponded -> ... -> Finish
package host
