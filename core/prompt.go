package orchestration

import "github.com/koscakluka/ema-voice/core/llms"

const DefaultSystemPrompt = "You are a helpful voice assistant. Keep your responses concise and conversational. " +
	"IMPORTANT: You must format your final response entirely in UPPERCASE letters. " +
	"Use clear sentence boundaries."

const historyHeading = "\n\nPrevious conversation history:\n"

func buildPrompt(systemPrompt, conversationContext, input string) []llms.Message {
	if conversationContext != "" {
		systemPrompt += historyHeading + conversationContext
	}
	return []llms.Message{
		llms.SystemMessage(systemPrompt),
		llms.UserMessage(input),
	}
}
