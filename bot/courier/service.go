// Package courier implements the problem-order dialogue: a courier is asked
// to describe what happened with a flagged order and optionally attach
// photos, which are stored in blob storage and recorded per order.
package courier

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m3rciful/crewbot/bot/blob"
	"github.com/m3rciful/crewbot/bot/dialogue"
	"github.com/m3rciful/crewbot/bot/session"
	"github.com/m3rciful/crewbot/core/logger"
	"log/slog"
)

// MaxReplyLength caps the courier's text reply.
const MaxReplyLength = 400

// MaxPhotos caps attachments per problem-order submission.
const MaxPhotos = 3

// User-visible message catalog for the courier dialogue.
const (
	MsgReplyTooLong = "The reply is too long: keep it under 400 characters."
	MsgAskPhoto     = "Attach photos of the order?"
	MsgSendPhotos   = "Send up to 3 photos."
	MsgThanks       = "Thanks! Your reply has been recorded."
	MsgNoPhoto      = "Please send a photo, or /cancel to finish without one."
	MsgCancelled    = "Dialogue cancelled."
	MsgRestart      = "Session state was lost. The order team will contact you."
)

// MsgPrompt opens the dialogue for an order.
func MsgPrompt(orderID string) string {
	return fmt.Sprintf("Order %s was flagged as a problem order. Please describe what happened (up to %d characters).", orderID, MaxReplyLength)
}

// MsgPhotosSaved confirms a photo submission.
func MsgPhotosSaved(n int) string {
	return fmt.Sprintf("Saved %d photo(s). Thanks!", n)
}

// Session tracks one courier's position in the problem-order dialogue.
type Session struct {
	Step    dialogue.Step
	OrderID string
	Replied bool
}

// Photo is one attachment from the courier. The reader is owned by
// SubmitPhotos, which closes it on every path.
type Photo struct {
	Name string
	R    io.ReadCloser
}

// Orders persists courier replies and photo records.
type Orders interface {
	SaveCourierReply(ctx context.Context, orderID, reply string) error
	ReplacePhotos(ctx context.Context, orderID string, blobKeys []string) error
}

// Service drives the courier state machine. The reply/error contract matches
// the auth service: empty reply means silent consumption, a non-nil error
// means the session is gone and the generic error reply is owed.
type Service struct {
	store  *session.Store[Session]
	orders Orders
	blobs  blob.Store
}

// NewService wires the dialogue with its collaborators. ttl bounds courier
// inactivity; couriers are on the road, so it is longer than the auth one.
func NewService(ttl time.Duration, orders Orders, blobs blob.Store) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		store:  session.NewStore[Session]("courier", ttl),
		orders: orders,
		blobs:  blobs,
	}
}

// Step returns the pending step for the user, if a session is active.
func (s *Service) Step(userID int64) (dialogue.Step, bool) {
	sess, ok := s.store.Get(userID)
	if !ok {
		return "", false
	}
	return sess.Step, true
}

// OrderID returns the order the active session is about, or "".
func (s *Service) OrderID(userID int64) string {
	sess, ok := s.store.Get(userID)
	if !ok {
		return ""
	}
	return sess.OrderID
}

// Abort silently tears the session down.
func (s *Service) Abort(userID int64) {
	s.store.Delete(userID)
}

// CleanupExpired sweeps sessions older than maxAge.
func (s *Service) CleanupExpired(maxAge time.Duration) int {
	return s.store.CleanupExpired(maxAge)
}

// Open starts the dialogue for an order, replacing any previous session of
// the courier, and returns the prompt to send.
func (s *Service) Open(userID int64, orderID string) string {
	s.store.Create(userID, Session{
		Step:    dialogue.StepCourierReply,
		OrderID: orderID,
	})
	return MsgPrompt(orderID)
}

// SubmitReply handles the courier's text. The reply is persisted right away;
// the session stays in waiting_courier_reply until the photo question is
// answered. askPhoto tells the caller to attach the yes/no keyboard.
func (s *Service) SubmitReply(ctx context.Context, userID int64, text string) (reply string, askPhoto bool, err error) {
	sess, ok := s.store.Get(userID)
	if !ok {
		return "", false, nil
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) > MaxReplyLength {
		return MsgReplyTooLong, false, nil
	}

	if err := s.orders.SaveCourierReply(ctx, sess.OrderID, text); err != nil {
		s.store.Delete(userID)
		return "", false, fmt.Errorf("save reply: %w", err)
	}

	ok = s.store.Update(userID, func(sess *Session) {
		sess.Replied = true
	})
	if !ok {
		return "", false, nil
	}
	return MsgAskPhoto, true, nil
}

// ConfirmPhoto handles the yes/no button. "No" finishes the dialogue; "yes"
// advances to photo upload.
func (s *Service) ConfirmPhoto(ctx context.Context, userID int64, wantsPhoto bool) (string, error) {
	sess, ok := s.store.Get(userID)
	if !ok || sess.Step != dialogue.StepCourierReply {
		return "", nil
	}
	if !sess.Replied {
		logger.Error(ctx, "courier", "state.integrity",
			slog.Int64("user_id", userID),
			slog.String("missing", "reply"),
		)
		s.store.Delete(userID)
		return MsgRestart, nil
	}

	if !wantsPhoto {
		s.store.Delete(userID)
		return MsgThanks, nil
	}

	if ok := s.store.Update(userID, func(sess *Session) {
		sess.Step = dialogue.StepAwaitingPhoto
	}); !ok {
		return "", nil
	}
	return MsgSendPhotos, nil
}

// SubmitPhotos stores up to MaxPhotos attachments in blob storage, replaces
// the order's photo records, and finishes the dialogue. Excess attachments
// are dropped.
func (s *Service) SubmitPhotos(ctx context.Context, userID int64, photos []Photo) (string, error) {
	// readers wrap HTTP response bodies; close them all, including the
	// trimmed excess and the early-return paths
	defer closePhotos(photos)

	sess, ok := s.store.Get(userID)
	if !ok || sess.Step != dialogue.StepAwaitingPhoto {
		return "", nil
	}
	if len(photos) == 0 {
		return MsgNoPhoto, nil
	}
	if len(photos) > MaxPhotos {
		photos = photos[:MaxPhotos]
	}

	keys := make([]string, 0, len(photos))
	for i, p := range photos {
		key := fmt.Sprintf("%s/%d_%s", sess.OrderID, i, p.Name)
		stored, err := s.blobs.Save(ctx, key, p.R)
		if err != nil {
			s.store.Delete(userID)
			return "", fmt.Errorf("photo upload: %w", err)
		}
		keys = append(keys, stored)
	}

	if err := s.orders.ReplacePhotos(ctx, sess.OrderID, keys); err != nil {
		s.store.Delete(userID)
		return "", fmt.Errorf("photo records: %w", err)
	}

	s.store.Delete(userID)
	logger.Info(ctx, "courier", "photos.saved",
		slog.Int64("user_id", userID),
		slog.String("order_id", sess.OrderID),
		slog.Int("count", len(keys)),
	)
	return MsgPhotosSaved(len(keys)), nil
}

func closePhotos(photos []Photo) {
	for _, p := range photos {
		if p.R != nil {
			_ = p.R.Close()
		}
	}
}

// Cancel terminates the dialogue on the user's request.
func (s *Service) Cancel(userID int64) (string, bool) {
	if _, ok := s.store.Get(userID); !ok {
		return "", false
	}
	s.store.Delete(userID)
	return MsgCancelled, true
}
