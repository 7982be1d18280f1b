package models

// Platform identifies the messaging platform a conversation runs on.
type Platform string

const (
	PlatformSlack    Platform = "slack"
	PlatformWhatsApp Platform = "whatsapp"
)

// Conversation addresses one user's private conversation with the bot.
type Conversation struct {
	Platform Platform `json:"platform"`
	UserID   string   `json:"user_id"`
	Channel  string   `json:"channel"`
}

// Key returns the session key for the conversation's user.
func (c Conversation) Key() string {
	return string(c.Platform) + ":" + c.UserID
}

// InboundMessage is a free-text answer, optionally carrying file references.
type InboundMessage struct {
	Conversation
	Text        string
	Files       []string
	ChannelType string // "im" for Slack direct messages
	FromBot     bool
}

// InboundSelection is an interactive component event (button or select).
type InboundSelection struct {
	Conversation
	ActionID string
	Value    string
}
