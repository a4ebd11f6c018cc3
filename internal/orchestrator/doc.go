// Package orchestrator is the step-wise state machine that drives a
// build-file conversation.
//
// Each call to Route handles exactly one step: it reads the state tag, the
// step payload and the session state, and returns the next Action for the
// host (invoke the model, invoke the file-fetch tool, or finish) together with
// the session state to persist. Route performs no I/O and keeps no state
// between calls; everything a conversation needs lives in the session.
//
// Transitions:
//   - Start          -> InvokeModel
//   - ModelResponded -> InvokeTool | Finish
//   - ToolResponded  -> InvokeModel
package orchestrator
