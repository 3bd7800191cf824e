package answer

import (
	"fmt"
	"strings"
)

// NoContextMessage is returned when retrieval finds nothing to ground an
// answer in. No model call is made in that case.
const NoContextMessage = "I couldn't find any relevant code in the repository. Try rephrasing or checking if the code is indexed."

// answerInstructions frames the model's role for repository questions.
const answerInstructions = `You are a concise assistant for answering questions about the currently loaded GitHub repository.
Always ground answers in repository content.
If the context below is insufficient or unrelated, ask a brief clarifying question.
Prefer facts found in the repo; do not guess. If information is missing, say so and suggest next steps.
Cite specific files and short snippets when helpful; keep snippets minimal.
For run/build/test/setup questions, check README/docs/manifests/config files and provide exact commands and file locations.
When explaining code, mention function/class names, responsibilities, parameters, and data flow.`

// answerGuidelines closes the prompt with the response format rules.
const answerGuidelines = `GUIDELINES:
1. Use the provided CONTEXT to answer.
2. If the answer involves specific code, cite the Filename provided in the context.
3. Keep responses short and actionable.
4. If the context is empty or irrelevant, say "I don't know based on the current code."`

// summaryTemplate is filled with the truncated README and the file tree.
const summaryTemplate = `You are a Senior Technical Writer. Analyze this GitHub repository based on its README and file structure.

README CONTENT:
%s (truncated)

FILE STRUCTURE TOP LEVELS:
%s

OUTPUT REQUIREMENTS:
1. **Project Name & One-Liner**: A catchy title and single sentence description.
2. **Core Functionality**: 3-4 bullet points explaining what the project actually *does* (not just how to install it).
3. **Key Technologies**: List the main languages/frameworks detected.
4. **Target Audience**: Who is this for? (e.g., Data Scientists, Web Devs).

Format the output in clean HTML (using <h3> for the title, <ul>/<li> for lists, <p>, <strong>). Do NOT use code blocks or markdown formatting.`

// BuildPrompt assembles the answer prompt from the already-windowed history,
// the serialized retrieval context and the question.
func BuildPrompt(query, serialized string, history []Turn) string {
	var b strings.Builder
	b.WriteString(answerInstructions)
	b.WriteString("\n")

	if len(history) > 0 {
		b.WriteString("\nPREVIOUS CONVERSATION:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role.Label(), t.Content)
		}
	}

	b.WriteString("\nCONTEXT:\n")
	b.WriteString(serialized)
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	b.WriteString(answerGuidelines)
	b.WriteString("\n")
	return b.String()
}

// BuildSummaryPrompt assembles the repository summary prompt. readme must
// already be truncated.
func BuildSummaryPrompt(readme, tree string) string {
	return fmt.Sprintf(summaryTemplate, readme, tree)
}

// truncateRunes returns the first n runes of s. A non-positive n returns s
// unchanged.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
