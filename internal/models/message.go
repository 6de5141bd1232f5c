package models

import "time"

// Message represents a chat message. Content may be empty when the
// message carries attachments; a message never has neither.
type Message struct {
	ID          int          `db:"id" json:"id"`
	ChatID      int          `db:"chat_id" json:"chat_id"`
	SenderID    int          `db:"sender_id" json:"sender_id"`
	Content     string       `db:"content" json:"content"`
	Attachments []Attachment `db:"-" json:"attachments"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// Attachment is a reference to a blob held in external object storage.
type Attachment struct {
	PublicID     string `db:"public_id" json:"public_id"`
	ResourceType string `db:"resource_type" json:"resource_type"`
	URL          string `db:"url" json:"url"`
}

// AttachmentRef identifies a stored blob for deletion.
type AttachmentRef struct {
	PublicID     string `db:"public_id" json:"public_id"`
	ResourceType string `db:"resource_type" json:"resource_type"`
}

// Ref strips the URL from an attachment.
func (a Attachment) Ref() AttachmentRef {
	return AttachmentRef{PublicID: a.PublicID, ResourceType: a.ResourceType}
}

// MessageSender is the denormalized sender view carried only in
// real-time payloads, never persisted.
type MessageSender struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MessageView is the display-enriched projection of a Message built for
// the real-time channel and for feed responses.
type MessageView struct {
	ID          int           `json:"id"`
	ChatID      int           `json:"chat_id"`
	Sender      MessageSender `json:"sender"`
	Content     string        `json:"content"`
	Attachments []Attachment  `json:"attachments"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ViewWithSender builds the real-time projection of m.
func (m Message) ViewWithSender(sender MessageSender) MessageView {
	return MessageView{
		ID:          m.ID,
		ChatID:      m.ChatID,
		Sender:      sender,
		Content:     m.Content,
		Attachments: m.Attachments,
		CreatedAt:   m.CreatedAt,
	}
}
