// Package attachment turns files submitted with a chat turn into message
// content. Images ride along as image parts for backends that accept
// them; anything else is recorded next to the message text.
package attachment

import (
	"fmt"
	"strings"

	"github.com/eamonnk/agentd/pkg/chat"
)

// Attachment is one file submitted with a turn. Data is a data URI
// (base64) or a fetchable URL.
type Attachment struct {
	Name string `json:"name,omitempty"`
	Data string `json:"data"`
}

// IsImage reports whether the attachment carries image content, judged by
// its data URI media type or file extension.
func (a Attachment) IsImage() bool {
	if strings.HasPrefix(a.Data, "data:image/") {
		return true
	}
	if strings.HasPrefix(a.Data, "data:") {
		return false
	}
	switch strings.ToLower(ext(a.Name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// UserMessage builds the user message for a turn. Without attachments it
// is a plain text message; with attachments it becomes multi-part, image
// attachments as image parts and the rest noted as text.
func UserMessage(text string, attachments []Attachment) chat.Message {
	if len(attachments) == 0 {
		return chat.UserMessage(text)
	}

	parts := []chat.MessagePart{{Type: chat.MessagePartTypeText, Text: text}}
	for _, att := range attachments {
		if att.Data == "" {
			continue
		}
		if att.IsImage() {
			parts = append(parts, chat.MessagePart{
				Type:     chat.MessagePartTypeImageURL,
				ImageURL: &chat.ImageURL{URL: att.Data},
			})
			continue
		}

		name := att.Name
		if name == "" {
			name = "unnamed"
		}
		parts = append(parts, chat.MessagePart{
			Type: chat.MessagePartTypeText,
			Text: fmt.Sprintf("[attached file: %s]", name),
		})
	}

	return chat.Message{
		Role:         chat.MessageRoleUser,
		Content:      text,
		MultiContent: parts,
	}
}

func ext(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx:]
	}
	return ""
}
