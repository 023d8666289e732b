package models

// Message represents a chat message in a one-to-one conversation.
type Message struct {
	ID             string `json:"id"` // ULID
	ConversationID string `json:"conversationId,omitempty"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId,omitempty"`
	Text           string `json:"text"`
	OriginalText   string `json:"originalText,omitempty"` // set only when a tone was applied
	ToneApplied    Tone   `json:"toneApplied,omitempty"`
	Timestamp      int64  `json:"timestamp"` // Unix ms
}

// Adjusted reports whether the message text was rewritten for its reader.
func (m *Message) Adjusted() bool {
	return m.ToneApplied != ""
}

// Stats holds aggregate counts for the stats endpoint.
type Stats struct {
	Users         int64 `json:"users"`
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
}
