package events

// KindAssistantResponseFinal identifies the finished response text.
const KindAssistantResponseFinal Kind = "assistant_response.final"

// AssistantResponseFinal carries the cleaned response and the reasoning
// that was removed from it.
type AssistantResponseFinal struct {
	Base
	Response  string
	Reasoning string
}

// NewAssistantResponseFinal creates a response final event.
func NewAssistantResponseFinal(turn Turn, response, reasoning string) AssistantResponseFinal {
	return AssistantResponseFinal{
		Base:      NewBase(KindAssistantResponseFinal, turn),
		Response:  response,
		Reasoning: reasoning,
	}
}
