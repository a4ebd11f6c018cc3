// Package tools defines tool contracts and implementations.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - ReadFile: fetches repository files through the GitHub contents API.
//   - ListTree / StartPayload: describe a repository for the first step of a conversation.
package tools
