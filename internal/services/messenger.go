package services

import (
	"context"
	"fmt"

	"github.com/Ananth-NQI/kb-request-bot/internal/models"
)

// Button is an interactive action attached to a prompt. Keyword is the text a
// user types to trigger it on platforms without buttons.
type Button struct {
	ActionID string
	Label    string
	Value    string
	Style    string // "primary", "danger" or ""
	Keyword  string
}

// Option is one entry of a selection prompt.
type Option struct {
	Label string
	Value string
}

// Select is a single-choice selection prompt. ActionID is the step it answers.
type Select struct {
	ActionID    string
	Placeholder string
	Options     []Option
}

// Prompt is a platform-neutral outbound message.
type Prompt struct {
	Text    string
	Buttons []Button
	Select  *Select
}

// Messenger delivers prompts to a user on one platform.
type Messenger interface {
	OpenDirectChannel(ctx context.Context, userID string) (string, error)
	Post(ctx context.Context, channel string, prompt Prompt) error
}

// Attachment is a downloaded user file.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// FileSource downloads a file previously shared by a user.
type FileSource interface {
	Fetch(ctx context.Context, ref string) (*Attachment, error)
}

// Transport bundles the collaborators of one messaging platform.
type Transport struct {
	Messenger Messenger
	Files     FileSource
	// RestartHint is how users start a new request on this platform, e.g. "/kb-request".
	RestartHint string
}

// Transports maps each enabled platform to its transport.
type Transports map[models.Platform]Transport

func (t Transports) get(p models.Platform) (Transport, error) {
	tr, ok := t[p]
	if !ok || tr.Messenger == nil {
		return Transport{}, fmt.Errorf("no transport configured for platform %q", p)
	}
	return tr, nil
}

func (t Transports) post(ctx context.Context, conv models.Conversation, prompt Prompt) error {
	tr, err := t.get(conv.Platform)
	if err != nil {
		return err
	}
	return tr.Messenger.Post(ctx, conv.Channel, prompt)
}
