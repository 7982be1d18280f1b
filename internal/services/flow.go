package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Ananth-NQI/kb-request-bot/internal/logging"
	"github.com/Ananth-NQI/kb-request-bot/internal/models"
	"github.com/Ananth-NQI/kb-request-bot/internal/session"
	"github.com/Ananth-NQI/kb-request-bot/internal/validation"
)

// Submitter turns a completed conversation into a board record.
type Submitter interface {
	Submit(ctx context.Context, sess session.Session) (*models.SubmissionResult, error)
}

// transitions holds every fixed edge of the conversation. The steps after
// product depend on the task type and come from the catalog branch.
var transitions = map[models.Step]models.Step{
	models.StepStart:               models.StepSubject,
	models.StepSubject:             models.StepTaskType,
	models.StepTaskType:            models.StepPriority,
	models.StepPriority:            models.StepProduct,
	models.StepSupportingMaterials: models.StepFiles,
	models.StepFiles:               models.StepSubmit,
}

// stepHandler accepts the answer for one data step.
type stepHandler struct {
	field   string
	label   string
	options []string
	accept  func(text string) (string, error)
}

var stepHandlers = map[models.Step]stepHandler{
	models.StepSubject: {
		field: models.FieldSubject,
		label: validation.LabelSubject,
		accept: func(text string) (string, error) {
			return validation.ValidateText(text, validation.LabelSubject, validation.SubjectOptions)
		},
	},
	models.StepTaskType: {
		field:   models.FieldTaskType,
		label:   validation.LabelTaskType,
		options: models.TaskTypes,
	},
	models.StepPriority: {
		field:   models.FieldPriority,
		label:   validation.LabelPriority,
		options: models.Priorities,
	},
	models.StepProduct: {
		field: models.FieldProduct,
		label: validation.LabelProduct,
		accept: func(text string) (string, error) {
			return validation.ValidateText(text, validation.LabelProduct, validation.ProductOptions)
		},
	},
	models.StepDescription: {
		field: models.FieldDescription,
		label: validation.LabelDescription,
		accept: func(text string) (string, error) {
			return validation.ValidateText(text, validation.LabelDescription, validation.DescriptionOptions)
		},
	},
	models.StepKBURLs: {
		field: models.FieldKBURLs,
		label: validation.LabelKBURLs,
		accept: func(text string) (string, error) {
			if validation.IsNoneSentinel(text) {
				return "", nil
			}
			return validation.ValidateURLList(text, validation.LabelKBURLs, validation.KBURLsMaxLength)
		},
	},
	models.StepSupportingMaterials: {
		field: models.FieldSupportingMaterials,
		label: validation.LabelSupportingMaterials,
		accept: func(text string) (string, error) {
			if validation.IsNoneSentinel(text) {
				return "", nil
			}
			return validation.ValidateText(text, validation.LabelSupportingMaterials, validation.SupportingMaterialsOptions)
		},
	},
}

// FlowService drives the KB request conversation for every user.
type FlowService struct {
	sessions   *session.Store
	catalog    *Catalog
	transports Transports
	submitter  Submitter
	guard      *Guard
	triggers   []string
	logger     *slog.Logger
}

// NewFlowService wires the conversation state machine. Triggers are the texts
// that start a new request when typed into a conversation, e.g. "kb-request".
func NewFlowService(
	sessions *session.Store,
	catalog *Catalog,
	transports Transports,
	submitter Submitter,
	triggers []string,
	logger *slog.Logger,
) *FlowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowService{
		sessions:   sessions,
		catalog:    catalog,
		transports: transports,
		submitter:  submitter,
		guard:      NewGuard(sessions, transports, catalog.Messages, logger),
		triggers:   triggers,
		logger:     logger,
	}
}

// Start begins a new request for the user, replacing any conversation in progress.
func (f *FlowService) Start(ctx context.Context, conv models.Conversation) error {
	tr, err := f.transports.get(conv.Platform)
	if err != nil {
		return err
	}
	if conv.Channel == "" {
		channel, err := tr.Messenger.OpenDirectChannel(ctx, conv.UserID)
		if err != nil {
			return fmt.Errorf("open conversation with %s: %w", conv.UserID, err)
		}
		conv.Channel = channel
	}

	return f.guard.Run(ctx, conv, func(ctx context.Context) error {
		if _, err := validation.ValidateIdentifier(conv.UserID); err != nil {
			return err
		}
		sess := f.sessions.Create(session.Init{Conversation: conv, Step: models.StepStart})
		logging.FromContext(ctx, f.logger).Info("kb request started", "user", sess.Key)
		return f.advance(ctx, sess, nil)
	})
}

// HandleMessage processes a free-text answer. Messages from bots, outside
// direct conversations, or from users without a conversation are ignored.
func (f *FlowService) HandleMessage(ctx context.Context, msg models.InboundMessage) error {
	if msg.FromBot {
		return nil
	}
	if msg.Platform == models.PlatformSlack && msg.ChannelType != "im" {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	if f.isTrigger(text) {
		return f.Start(ctx, msg.Conversation)
	}

	sess, ok := f.sessions.Get(msg.Key())
	if !ok {
		return nil
	}
	if strings.EqualFold(text, "cancel") {
		return f.Cancel(ctx, sess.Conversation)
	}

	return f.guard.Run(ctx, sess.Conversation, func(ctx context.Context) error {
		return f.answer(ctx, sess, text, msg.Files)
	})
}

// HandleSelection processes a button press or select choice. A selection
// addressing a step other than the current one is stale and ignored.
func (f *FlowService) HandleSelection(ctx context.Context, sel models.InboundSelection) error {
	switch sel.ActionID {
	case models.ActionRetry:
		return f.Start(ctx, sel.Conversation)
	case models.ActionCancel:
		return f.Cancel(ctx, sel.Conversation)
	}

	sess, ok := f.sessions.Get(sel.Key())
	if !ok {
		return nil
	}

	return f.guard.Run(ctx, sess.Conversation, func(ctx context.Context) error {
		if sel.ActionID == models.ActionSubmit {
			if !f.canSubmit(sess) {
				return nil
			}
			return f.submit(ctx, sess)
		}
		if models.Step(sel.ActionID) != sess.Step {
			logging.FromContext(ctx, f.logger).Debug("ignoring selection for another step",
				"user", sess.Key,
				"step", sess.Step.String(),
				"claimed", sel.ActionID,
			)
			return nil
		}
		return f.answer(ctx, sess, sel.Value, nil)
	})
}

// Cancel ends the user's conversation without submitting.
func (f *FlowService) Cancel(ctx context.Context, conv models.Conversation) error {
	if sess, ok := f.sessions.Get(conv.Key()); ok {
		conv = sess.Conversation
	}
	if !f.sessions.Destroy(conv.Key(), session.ReasonCancelled) {
		return nil
	}
	return f.transports.post(ctx, conv, Prompt{
		Text: fmt.Sprintf(f.catalog.Messages.Cancelled, f.guard.restartHint(conv.Platform)),
	})
}

// answer applies text (and any files) to the session's current step.
func (f *FlowService) answer(ctx context.Context, sess session.Session, text string, files []string) error {
	if sess.Step == models.StepFiles || sess.Step == models.StepSubmit {
		return f.answerAttachments(ctx, sess, text, files)
	}
	if strings.EqualFold(text, "submit") && f.canSubmit(sess) {
		return f.submit(ctx, sess)
	}

	h, ok := stepHandlers[sess.Step]
	if !ok {
		return nil
	}

	var (
		value string
		err   error
	)
	if h.options != nil {
		value, err = choose(text, h.label, h.options)
	} else {
		value, err = h.accept(text)
	}
	if err != nil {
		if validation.IsValidationError(err) {
			return f.reprompt(ctx, sess, "❌ "+err.Error())
		}
		return err
	}

	return f.advance(ctx, sess, map[string]string{h.field: value})
}

// answerAttachments handles the files and submit steps, where uploads are
// collected without advancing.
func (f *FlowService) answerAttachments(ctx context.Context, sess session.Session, text string, files []string) error {
	if len(files) > 0 {
		refs, err := validation.ValidateFileReferences(files)
		if err != nil {
			return f.reprompt(ctx, sess, "❌ "+err.Error())
		}
		updated, ok := f.sessions.Update(sess.Key, session.Patch{AppendFiles: refs})
		if !ok {
			return nil
		}
		sess = updated
		if text == "" {
			return f.transports.post(ctx, sess.Conversation, Prompt{
				Text:    fmt.Sprintf(f.catalog.Messages.FilesCaptured, len(sess.Files)),
				Buttons: []Button{submitButton()},
			})
		}
	}

	switch strings.ToLower(text) {
	case "submit":
		return f.submit(ctx, sess)
	case "done", "skip", "none":
		if sess.Step == models.StepFiles {
			return f.advance(ctx, sess, nil)
		}
	}
	return f.reprompt(ctx, sess, "")
}

// choose resolves text to one of options by exact or case-insensitive name,
// or by 1-based position.
func choose(text, field string, options []string) (string, error) {
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], nil
	}
	for _, opt := range options {
		if strings.EqualFold(opt, text) {
			return opt, nil
		}
	}
	return validation.ValidateEnum(text, field, options)
}

// next returns the step following current for taskType.
func (f *FlowService) next(current models.Step, taskType string) models.Step {
	if step, ok := transitions[current]; ok {
		return step
	}

	branch := f.catalog.Branch(taskType)
	if current == models.StepProduct {
		if len(branch) == 0 {
			return models.StepSupportingMaterials
		}
		return branch[0]
	}
	for i, step := range branch {
		if step == current {
			if i+1 < len(branch) {
				return branch[i+1]
			}
			return models.StepSupportingMaterials
		}
	}
	return current
}

// advance stores fields, moves to the next step and prompts for it.
func (f *FlowService) advance(ctx context.Context, sess session.Session, fields map[string]string) error {
	taskType := sess.Field(models.FieldTaskType)
	if v, ok := fields[models.FieldTaskType]; ok {
		taskType = v
	}

	updated, ok := f.sessions.Update(sess.Key, session.Patch{
		Step:   f.next(sess.Step, taskType),
		Fields: fields,
	})
	if !ok {
		return nil
	}
	return f.transports.post(ctx, updated.Conversation, f.promptFor(updated))
}

func (f *FlowService) reprompt(ctx context.Context, sess session.Session, notice string) error {
	prompt := f.promptFor(sess)
	if notice != "" {
		prompt.Text = notice + "\n\n" + prompt.Text
	}
	return f.transports.post(ctx, sess.Conversation, prompt)
}

// promptFor builds the question for the session's current step.
func (f *FlowService) promptFor(sess session.Session) Prompt {
	text := f.catalog.Prompt(sess.Step, sess.Field(models.FieldTaskType))
	prompt := Prompt{Text: text.Prompt}

	if h, ok := stepHandlers[sess.Step]; ok && h.options != nil {
		sel := &Select{ActionID: sess.Step.String(), Placeholder: text.Placeholder}
		for _, opt := range h.options {
			sel.Options = append(sel.Options, Option{Label: opt, Value: opt})
		}
		prompt.Select = sel
	}

	if sess.Step == models.StepSubmit {
		prompt.Text += "\n\n" + summarize(sess)
	}
	if f.canSubmit(sess) {
		prompt.Buttons = append(prompt.Buttons, submitButton())
	}
	if sess.Step == models.StepSubmit {
		prompt.Buttons = append(prompt.Buttons, Button{
			ActionID: models.ActionCancel,
			Label:    "Cancel",
			Value:    "cancel",
			Style:    "danger",
			Keyword:  "cancel",
		})
	}
	return prompt
}

// canSubmit reports whether the remaining questions are optional.
func (f *FlowService) canSubmit(sess session.Session) bool {
	if sess.Field(models.FieldDescription) == "" {
		return false
	}
	switch sess.Step {
	case models.StepKBURLs, models.StepSupportingMaterials, models.StepFiles, models.StepSubmit:
		return true
	}
	return false
}

func (f *FlowService) submit(ctx context.Context, sess session.Session) error {
	logger := logging.FromContext(ctx, f.logger)
	logger.Info("submitting kb request", "user", sess.Key, "files", len(sess.Files))

	if err := f.transports.post(ctx, sess.Conversation, Prompt{Text: f.catalog.Messages.Submitting}); err != nil {
		return err
	}

	result, err := f.submitter.Submit(ctx, sess)
	if err != nil {
		return err
	}

	text := f.catalog.Messages.Submitted
	if result.ItemURL != "" {
		text += "\n🔗 " + result.ItemURL
	}
	if result.FilesFailed > 0 {
		text += "\n\n" + fmt.Sprintf(f.catalog.Messages.FileFailures, result.FilesFailed)
	}
	if err := f.transports.post(ctx, sess.Conversation, Prompt{Text: text}); err != nil {
		// The record exists, so this is not a failed submission.
		logger.Error("failed to confirm submission", "user", sess.Key, "item_id", result.ItemID, "error", err.Error())
	}
	return nil
}

func (f *FlowService) isTrigger(text string) bool {
	for _, t := range f.triggers {
		if t != "" && strings.EqualFold(text, t) {
			return true
		}
	}
	return false
}

func submitButton() Button {
	return Button{
		ActionID: models.ActionSubmit,
		Label:    "Submit",
		Value:    "submit",
		Style:    "primary",
		Keyword:  "submit",
	}
}

func summarize(sess session.Session) string {
	lines := []struct{ label, field string }{
		{validation.LabelSubject, models.FieldSubject},
		{validation.LabelTaskType, models.FieldTaskType},
		{validation.LabelPriority, models.FieldPriority},
		{validation.LabelProduct, models.FieldProduct},
		{validation.LabelDescription, models.FieldDescription},
		{validation.LabelKBURLs, models.FieldKBURLs},
		{validation.LabelSupportingMaterials, models.FieldSupportingMaterials},
	}

	var b strings.Builder
	for _, l := range lines {
		if v := sess.Field(l.field); v != "" {
			fmt.Fprintf(&b, "*%s:* %s\n", l.label, v)
		}
	}
	fmt.Fprintf(&b, "*Files:* %d", len(sess.Files))
	return b.String()
}
