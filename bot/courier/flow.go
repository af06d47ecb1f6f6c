package courier

import (
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/crewbot/bot/dialogue"
	"github.com/m3rciful/crewbot/core/logger"
	"github.com/m3rciful/crewbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/crewbot/core/telegram/helpers"
	"github.com/m3rciful/crewbot/core/telegram/keyboard"
	"log/slog"
)

// Callback keys for the photo confirmation buttons.
const (
	CallbackPhotoYes = "courier_photo_yes"
	CallbackPhotoNo  = "courier_photo_no"
)

// Flow adapts the Service to the dialogue orchestrator and Telegram.
type Flow struct {
	svc *Service
}

// NewFlow wraps a Service.
func NewFlow(svc *Service) *Flow {
	return &Flow{svc: svc}
}

// Name identifies the flow in logs.
func (f *Flow) Name() string { return "courier" }

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

// Notify opens the dialogue by messaging the courier directly.
func (f *Flow) Notify(b tele.API, courierTgID int64, orderID string) error {
	prompt := f.svc.Open(courierTgID, orderID)
	_, err := b.Send(&tele.User{ID: courierTgID}, prompt)
	if err != nil {
		// the courier never saw the prompt, keep no dangling session
		f.svc.Abort(courierTgID)
		return fmt.Errorf("courier notify: %w", err)
	}
	return nil
}

// Handle dispatches text and photo updates to the session's current step.
func (f *Flow) Handle(c tele.Context) error {
	userID := c.Sender().ID
	step, ok := f.svc.Step(userID)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)

	switch step {
	case dialogue.StepCourierReply:
		if c.Message() == nil || c.Text() == "" {
			return nil
		}
		reply, askPhoto, err := f.svc.SubmitReply(ctx, userID, c.Text())
		if err != nil {
			return err
		}
		if reply == "" {
			return nil
		}
		if askPhoto {
			return f.send(c, reply, photoKeyboard(f.svc.OrderID(userID)))
		}
		return f.send(c, reply, nil)

	case dialogue.StepAwaitingPhoto:
		photos := extractPhotos(c)
		reply, err := f.svc.SubmitPhotos(ctx, userID, photos)
		if err != nil {
			return err
		}
		return f.send(c, reply, nil)
	}
	return nil
}

// PhotoYes handles the "attach photo" button.
func (f *Flow) PhotoYes(c tele.Context) error {
	return f.confirm(c, true)
}

// PhotoNo handles the "finish without photo" button.
func (f *Flow) PhotoNo(c tele.Context) error {
	return f.confirm(c, false)
}

func (f *Flow) confirm(c tele.Context, wantsPhoto bool) error {
	ctx := tghelpers.BuildContext(c)
	// buttons carry the order ID; ignore taps on a keyboard left over
	// from a previous problem order
	if orderID := callbacks.CallbackPayload(c); orderID != "" && orderID != f.svc.OrderID(c.Sender().ID) {
		return nil
	}
	reply, err := f.svc.ConfirmPhoto(ctx, c.Sender().ID, wantsPhoto)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	// replace the button prompt so the keyboard cannot be tapped twice
	if err := tghelpers.EditOrSendMD(c, reply); err != nil {
		logger.Error(ctx, "courier", "confirm.reply.failed",
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

func (f *Flow) send(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if text == "" {
		return nil
	}
	var err error
	if markup != nil {
		err = c.Send(text, markup)
	} else {
		err = tghelpers.SendText(c, text)
	}
	if err != nil {
		logger.Error(tghelpers.BuildContext(c), "courier", "reply.failed",
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

func photoKeyboard(orderID string) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "📷 Yes", Unique: CallbackPhotoYes, Data: orderID},
		{Text: "No", Unique: CallbackPhotoNo, Data: orderID},
	})
}

// extractPhotos pulls photo attachments out of the update and opens readers
// for them. Telegram delivers album items as separate messages; each message
// carries at most one photo.
func extractPhotos(c tele.Context) []Photo {
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		return nil
	}
	rc, err := c.Bot().File(&msg.Photo.File)
	if err != nil {
		logger.Error(tghelpers.BuildContext(c), "courier", "photo.fetch.failed",
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return []Photo{{Name: msg.Photo.UniqueID + ".jpg", R: rc}}
}
