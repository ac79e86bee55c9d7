package groq

import (
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-voice/core/llms"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(msgs []llms.Message) ([]message, error) {
	messages := []message{}
	if err := copier.Copy(&messages, msgs); err != nil {
		return nil, err
	}
	return messages, nil
}
