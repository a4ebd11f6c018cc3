package tools

// Registry returns all tool definitions wired for the agent
func Registry(f *GitHubFetcher) []ToolDefinition {
	return []ToolDefinition{ReadFileDefinition(f)}
}
