package orchestrator

import "fmt"

func systemInstruction(tool string) string {
	return fmt.Sprintf(`You are an expert DevOps engineer. Produce a complete, production-ready Dockerfile for the repository the user describes.
When you need the contents of a file to decide something, call the %s tool with the file paths relative to the repository root in the "filePaths" field. Do not guess file contents and do not ask for repository coordinates; they are supplied for you.
When you are done, reply with only the final Dockerfile: no commentary and no code fences.`, tool)
}

func followUpInstruction(tool string) string {
	return fmt.Sprintf("Here are the results of the %s call. Use them to refine or finish the Dockerfile. If you still need more files, call %s again; otherwise return only the final Dockerfile.", tool, tool)
}

// LeadIn opens a transcript whose first turn would otherwise be the
// assistant's; model APIs require a user turn first.
const LeadIn = "Continue with the Dockerfile task."
