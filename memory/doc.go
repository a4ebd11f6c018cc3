// Package memory holds the minimal text record of a conversation.
//
// Persistence model:
//   - Only text turns are stored (role + text). Tool calls appear as text,
//     tagged with the tool name so a request and its result can be kept together.
//   - The record travels inside the session state as a JSON string, and the CLI
//     can also write it to disk as a transcript.
package memory
