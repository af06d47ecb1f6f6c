package auth

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/crewbot/bot/dialogue"
	"github.com/m3rciful/crewbot/core/logger"
	tghelpers "github.com/m3rciful/crewbot/core/telegram/helpers"
	"github.com/m3rciful/crewbot/core/telegram/keyboard"
	"log/slog"
)

// Flow adapts the Service to the dialogue orchestrator and exposes the
// Telegram command handlers that enter the dialogue.
type Flow struct {
	svc *Service
}

// NewFlow wraps a Service.
func NewFlow(svc *Service) *Flow {
	return &Flow{svc: svc}
}

// Name identifies the flow in logs.
func (f *Flow) Name() string { return "auth" }

// Step reports the user's pending step.
func (f *Flow) Step(userID int64) (dialogue.Step, bool) {
	return f.svc.Step(userID)
}

// Abort silently tears the session down.
func (f *Flow) Abort(userID int64) {
	f.svc.Abort(userID)
}

// Service exposes the underlying dialogue service.
func (f *Flow) Service() *Service { return f.svc }

// Handle dispatches a text update to the handler of the session's current
// step.
func (f *Flow) Handle(c tele.Context) error {
	userID := c.Sender().ID
	step, ok := f.svc.Step(userID)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)

	var (
		reply string
		err   error
	)
	switch step {
	case dialogue.StepAwaitingPhone:
		reply, err = f.svc.SubmitPhone(ctx, userID, phoneInput(c))
	case dialogue.StepAwaitingFullname:
		reply, err = f.svc.SubmitFullname(ctx, userID, c.Text())
	case dialogue.StepAwaitingCode:
		reply, err = f.svc.SubmitCode(ctx, userID, c.Text())
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return sendReply(c, reply)
}

// StartCommand handles /auth.
func (f *Flow) StartCommand(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	reply, err := f.svc.Start(ctx, c.Sender().ID, "")
	if err != nil {
		return err
	}
	return sendReply(c, reply)
}

// contactPhone extracts the phone number from a shared contact. Only the
// sender's own contact counts as a confirmed phone; somebody else's card
// yields nothing.
func contactPhone(msg *tele.Message, senderID int64) string {
	if msg == nil || msg.Contact == nil {
		return ""
	}
	if msg.Contact.UserID != senderID {
		return ""
	}
	return msg.Contact.PhoneNumber
}

// phoneInput prefers the sender's own shared contact over the message text,
// so a contact shared mid-dialogue still counts as a phone entry.
func phoneInput(c tele.Context) string {
	if phone := contactPhone(c.Message(), c.Sender().ID); phone != "" {
		return phone
	}
	return c.Text()
}

// Contact handles a shared contact.
func (f *Flow) Contact(c tele.Context) error {
	phone := contactPhone(c.Message(), c.Sender().ID)
	if phone == "" {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	reply, err := f.svc.Start(ctx, c.Sender().ID, phone)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	// the contact keyboard did its job, take it down with the reply
	return sendReply(c, reply, &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()})
}

// ResendCommand handles /resend_code.
func (f *Flow) ResendCommand(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	reply, err := f.svc.Resend(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	return sendReply(c, reply)
}

// sendReply delivers the reply text, logging and swallowing send failures so
// the dialogue never crashes the event loop over an outbound error.
func sendReply(c tele.Context, text string, opts ...*tele.SendOptions) error {
	if text == "" {
		return nil
	}
	if err := tghelpers.SendText(c, text, opts...); err != nil {
		logger.Error(tghelpers.BuildContext(c), "auth", "reply.failed",
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
		if err := tghelpers.SendText(c, dialogue.GenericErrorMessage); err != nil {
			logger.Error(tghelpers.BuildContext(c), "auth", "reply.fallback.failed",
				slog.String("err", err.Error()),
			)
		}
	}
	return nil
}
