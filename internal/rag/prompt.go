package rag

import (
	"strings"

	"docqa/internal/ai"
)

const systemPrompt = "You answer questions about a single document. Use only the context passages below. " +
	"If the context does not contain the answer, say that you don't know. Do not make up facts."

func buildMessages(question string, hits []Hit) []ai.ChatMessage {
	var b strings.Builder
	b.WriteString("Context:\n")
	for _, h := range hits {
		b.WriteString("\n---\n")
		b.WriteString(h.Chunk.Text)
	}
	b.WriteString("\n---\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nHelpful Answer:")

	return []ai.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}
