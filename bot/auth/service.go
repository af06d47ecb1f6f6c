// Package auth implements the staff authentication dialogue: phone entry,
// full-name disambiguation when several staff share a phone, and one-time
// SMS code verification producing a persisted identity link.
package auth

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/m3rciful/crewbot/bot/dialogue"
	"github.com/m3rciful/crewbot/bot/repo"
	"github.com/m3rciful/crewbot/bot/session"
	"github.com/m3rciful/crewbot/bot/sms"
	"github.com/m3rciful/crewbot/core/logger"
	"log/slog"
)

var codeRe = regexp.MustCompile(`^\d{4}$`)

// Session tracks one user's position in the authentication dialogue.
type Session struct {
	Step                dialogue.Step
	Phone               string
	FullName            string
	Code                int
	StaffID             int64
	Candidates          []repo.Staff
	Attempts            int
	LastSMSSentAt       time.Time
	LastResendRequestAt time.Time
}

// Config bounds the dialogue's timing and retry policy.
type Config struct {
	SessionTTL      time.Duration
	MaxCodeAttempts int
	ResendWindow    time.Duration
	SMSCooldown     time.Duration
}

// StaffDirectory looks staff up by phone.
type StaffDirectory interface {
	FindByPhone(ctx context.Context, phone string) ([]repo.Staff, error)
}

// IdentityLinks persists staff-to-Telegram associations.
type IdentityLinks interface {
	Has(ctx context.Context, staffID int64) (bool, error)
	Create(ctx context.Context, staffID, tgUserID int64) error
}

// Service drives the authentication state machine. Methods return the reply
// text to show the user; an empty reply means the event is consumed silently
// (the session vanished mid-step and the user is owed nothing). A non-nil
// error means the session was already torn down and the caller should send
// the generic error reply.
type Service struct {
	cfg    Config
	store  *session.Store[Session]
	staff  StaffDirectory
	links  IdentityLinks
	sender sms.Sender

	mu      sync.Mutex
	lastSMS map[int64]time.Time
}

// NewService wires the dialogue with its collaborators.
func NewService(cfg Config, staff StaffDirectory, links IdentityLinks, sender sms.Sender) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = 10
	}
	if cfg.ResendWindow <= 0 {
		cfg.ResendWindow = 5 * time.Minute
	}
	if cfg.SMSCooldown <= 0 {
		cfg.SMSCooldown = 30 * time.Minute
	}
	return &Service{
		cfg:     cfg,
		store:   session.NewStore[Session]("auth", cfg.SessionTTL),
		staff:   staff,
		links:   links,
		sender:  sender,
		lastSMS: make(map[int64]time.Time),
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

// Abort silently tears the session down.
func (s *Service) Abort(userID int64) {
	s.store.Delete(userID)
}

// CleanupExpired sweeps sessions older than maxAge.
func (s *Service) CleanupExpired(maxAge time.Duration) int {
	return s.store.CleanupExpired(maxAge)
}

// Start opens the dialogue. A confirmed contact share passes knownPhone; the
// phone then goes straight through directory resolution and, on a unique
// unlinked match, an SMS is sent immediately. Repeated starts replace the
// previous session. While the SMS cooldown for the user is active, Start
// replies with the remaining wait and changes nothing, regardless of how the
// phone would be entered.
func (s *Service) Start(ctx context.Context, userID int64, knownPhone string) (string, error) {
	if wait, active := s.smsCooldown(userID); active {
		return MsgSMSCooldown(wait), nil
	}

	if knownPhone != "" {
		phone, err := NormalizePhone(knownPhone)
		if err == nil {
			s.store.Create(userID, Session{Step: dialogue.StepAwaitingPhone})
			return s.resolvePhone(ctx, userID, phone)
		}
		// fall back to manual entry on an unusable contact payload
		logger.Warn(ctx, "auth", "contact.unparsable",
			slog.Int64("user_id", userID),
		)
	}

	s.store.Create(userID, Session{Step: dialogue.StepAwaitingPhone})
	return MsgAskPhone, nil
}

// SubmitPhone handles text received in the awaiting_phone step.
func (s *Service) SubmitPhone(ctx context.Context, userID int64, text string) (string, error) {
	if _, ok := s.store.Get(userID); !ok {
		return "", nil
	}
	phone, err := NormalizePhone(text)
	if err != nil {
		return MsgPhoneFormatError, nil
	}
	return s.resolvePhone(ctx, userID, phone)
}

func (s *Service) resolvePhone(ctx context.Context, userID int64, phone string) (string, error) {
	matches, err := s.staff.FindByPhone(ctx, phone)
	if err != nil {
		s.store.Delete(userID)
		return "", fmt.Errorf("staff lookup: %w", err)
	}

	switch len(matches) {
	case 0:
		s.store.Delete(userID)
		return MsgPhoneNotFound, nil
	case 1:
		return s.claimStaff(ctx, userID, phone, matches[0])
	default:
		ok := s.store.Update(userID, func(sess *Session) {
			sess.Step = dialogue.StepAwaitingFullname
			sess.Phone = phone
			sess.Candidates = matches
		})
		if !ok {
			return "", nil
		}
		return MsgAskFullname, nil
	}
}

// SubmitFullname handles text received in the awaiting_fullname step. The
// match is case-insensitive exact against the stored candidate list; a miss
// keeps the session in place.
func (s *Service) SubmitFullname(ctx context.Context, userID int64, text string) (string, error) {
	sess, ok := s.store.Get(userID)
	if !ok {
		return "", nil
	}
	if len(sess.Candidates) == 0 {
		logger.Error(ctx, "auth", "state.integrity",
			slog.Int64("user_id", userID),
			slog.String("missing", "candidates"),
		)
		s.store.Delete(userID)
		return MsgRestart, nil
	}

	name := strings.TrimSpace(text)
	match, found := lo.Find(sess.Candidates, func(st repo.Staff) bool {
		return strings.EqualFold(st.FullName, name)
	})
	if !found {
		return MsgFullnameNotFound, nil
	}
	return s.claimStaff(ctx, userID, sess.Phone, match)
}

// claimStaff checks the identity link and, for an unlinked staff member,
// sends the one-time code and advances to awaiting_code.
func (s *Service) claimStaff(ctx context.Context, userID int64, phone string, st repo.Staff) (string, error) {
	linked, err := s.links.Has(ctx, st.ID)
	if err != nil {
		s.store.Delete(userID)
		return "", fmt.Errorf("identity link check: %w", err)
	}
	if linked {
		s.store.Delete(userID)
		return MsgAlreadyRegistered(st.FullName), nil
	}
	return s.sendCode(ctx, userID, phone, st, false)
}

// sendCode generates, delivers and records a fresh code. The session is
// re-checked through Update after the blocking SMS call: if the timeout
// raced ahead during the send, the result is dropped silently.
func (s *Service) sendCode(ctx context.Context, userID int64, phone string, st repo.Staff, resend bool) (string, error) {
	code, err := sms.GenerateCode()
	if err != nil {
		s.store.Delete(userID)
		return "", err
	}
	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		s.store.Delete(userID)
		return "", fmt.Errorf("sms send: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	s.lastSMS[userID] = now
	s.mu.Unlock()

	ok := s.store.Update(userID, func(sess *Session) {
		sess.Step = dialogue.StepAwaitingCode
		sess.Phone = phone
		sess.Code = code
		sess.StaffID = st.ID
		sess.FullName = st.FullName
		sess.Candidates = nil
		sess.Attempts = 0
		sess.LastSMSSentAt = now
		if resend {
			sess.LastResendRequestAt = now
		}
	})
	if !ok {
		return "", nil
	}
	return MsgCodeSent(phone), nil
}

// SubmitCode handles text received in the awaiting_code step. A correct code
// persists the identity link and deletes the session in the same step, so
// the code is single-use. A wrong code burns one attempt; exhausting the
// limit deletes the session.
func (s *Service) SubmitCode(ctx context.Context, userID int64, text string) (string, error) {
	sess, ok := s.store.Get(userID)
	if !ok {
		return "", nil
	}

	text = strings.TrimSpace(text)
	if !codeRe.MatchString(text) {
		return MsgCodeFormatError, nil
	}
	entered, _ := strconv.Atoi(text)

	if entered == sess.Code {
		if sess.StaffID == 0 {
			logger.Error(ctx, "auth", "state.integrity",
				slog.Int64("user_id", userID),
				slog.String("missing", "staff_id"),
			)
			s.store.Delete(userID)
			return MsgRestart, nil
		}
		if err := s.links.Create(ctx, sess.StaffID, userID); err != nil {
			s.store.Delete(userID)
			return "", fmt.Errorf("identity link create: %w", err)
		}
		s.store.Delete(userID)
		logger.Info(ctx, "auth", "linked",
			slog.Int64("user_id", userID),
			slog.Int64("staff_id", sess.StaffID),
		)
		return MsgSuccess(sess.FullName), nil
	}

	// the increment happens inside the store lock so concurrent duplicate
	// deliveries cannot lose an attempt
	var attempts int
	ok = s.store.Update(userID, func(sess *Session) {
		sess.Attempts++
		attempts = sess.Attempts
	})
	if !ok {
		return "", nil
	}
	if attempts >= s.cfg.MaxCodeAttempts {
		s.store.Delete(userID)
		return MsgExhausted, nil
	}
	return MsgCodeMismatch(s.cfg.MaxCodeAttempts - attempts), nil
}

// Resend re-issues a code for an active awaiting_code session. The anti-spam
// window since the last resend request is checked before the longer SMS
// cooldown, so back-to-back requests are refused with the anti-spam message.
// A successful resend resets the attempt counter.
func (s *Service) Resend(ctx context.Context, userID int64) (string, error) {
	sess, ok := s.store.Get(userID)
	if !ok || sess.Step != dialogue.StepAwaitingCode {
		return MsgNoActiveCode, nil
	}

	now := time.Now()
	if !sess.LastResendRequestAt.IsZero() {
		if elapsed := now.Sub(sess.LastResendRequestAt); elapsed < s.cfg.ResendWindow {
			return MsgResendCooldown(s.cfg.ResendWindow - elapsed), nil
		}
	}
	if elapsed := now.Sub(sess.LastSMSSentAt); elapsed < s.cfg.SMSCooldown {
		return MsgSMSCooldown(s.cfg.SMSCooldown - elapsed), nil
	}

	st := repo.Staff{ID: sess.StaffID, FullName: sess.FullName}
	return s.sendCode(ctx, userID, sess.Phone, st, true)
}

// Cancel terminates the dialogue on the user's request.
func (s *Service) Cancel(userID int64) string {
	if _, ok := s.store.Get(userID); !ok {
		return MsgNothingToCancel
	}
	s.store.Delete(userID)
	return MsgCancelled
}

// smsCooldown reports the remaining start cooldown for the user. The last
// send time survives session teardown so a fresh /auth cannot be used to
// spam SMS sends.
func (s *Service) smsCooldown(userID int64) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSMS[userID]
	if !ok {
		return 0, false
	}
	elapsed := time.Since(last)
	if elapsed >= s.cfg.SMSCooldown {
		return 0, false
	}
	return s.cfg.SMSCooldown - elapsed, true
}
