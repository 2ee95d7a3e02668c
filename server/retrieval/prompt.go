package retrieval

import "fmt"

// FallbackAnswer is returned when nothing in the corpus clears the
// similarity floor. It is a fixed string so callers and tests can detect
// the no-match outcome without inspecting scores.
const FallbackAnswer = "I couldn't find any relevant information in the knowledge base to answer your question. " +
	"Please try rephrasing your question or ensure that the relevant documents have been uploaded."

// groundingSystemPrompt keeps generation anchored to the retrieved context.
const groundingSystemPrompt = `You are a knowledge base assistant. Answer the question using ONLY the context passages provided by the user.

Rules:
1. Every passage starts with its provenance in the form [document title #chunk].
2. If the context does not contain enough information, say exactly: "I don't have enough information in the knowledge base to answer this question."
3. Cite the provenance of the passages you used.
4. Be concise and accurate. Do not use outside knowledge or make assumptions.`

// buildUserPrompt joins the assembled context block and the question.
func buildUserPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, question)
}
