// Package bus defines the message envelopes that flow between channels and
// the gateway pipeline, plus the event publisher interface used by
// background loops to push status events.
package bus

import "time"

// Attachment is a typed blob or remote URL carried by an IncomingMessage.
type Attachment struct {
	Kind        string `json:"kind"` // "image", "document", "audio"
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"-"` // in-memory blob, not serialized
	ContentType string `json:"content_type,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// IncomingMessage is produced by a channel and consumed by the gateway dispatcher.
type IncomingMessage struct {
	ID          string       `json:"id"`
	Channel     string       `json:"channel"`
	SenderID    string       `json:"sender_id"`
	DisplayName string       `json:"display_name,omitempty"`
	Text        string       `json:"text"`
	Timestamp   time.Time    `json:"timestamp"`
	ReplyToID   string       `json:"reply_to_id,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyTarget string       `json:"reply_target"`
	IsGroup     bool         `json:"is_group"`
}

// OutgoingMetadata carries provenance about how an OutgoingMessage was produced.
type OutgoingMetadata struct {
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model,omitempty"`
	TokenCount int           `json:"token_count,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// OutgoingMessage is sent by the pipeline back through a channel.
type OutgoingMessage struct {
	Text        string           `json:"text"`
	Metadata    OutgoingMetadata `json:"metadata"`
	ReplyTarget string           `json:"reply_target"`
}

// EventHandler handles a broadcast event (used by background loops to surface status).
type EventHandler func(Event)

// Event is a lightweight status broadcast (e.g. "tasks:changed", "scheduler:tick").
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventPublisher abstracts event broadcast + subscription, decoupling the
// pipeline and background loops from a concrete bus implementation.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}
