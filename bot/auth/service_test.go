package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/crewbot/bot/dialogue"
	"github.com/m3rciful/crewbot/bot/repo"
)

type fakeDirectory struct {
	byPhone map[string][]repo.Staff
	err     error
}

func (f *fakeDirectory) FindByPhone(_ context.Context, phone string) ([]repo.Staff, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byPhone[phone], nil
}

type fakeLinks struct {
	linked  map[int64]bool
	created map[int64]int64
	err     error
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{linked: make(map[int64]bool), created: make(map[int64]int64)}
}

func (f *fakeLinks) Has(_ context.Context, staffID int64) (bool, error) {
	return f.linked[staffID], f.err
}

func (f *fakeLinks) Create(_ context.Context, staffID, tgUserID int64) error {
	if f.err != nil {
		return f.err
	}
	f.created[staffID] = tgUserID
	f.linked[staffID] = true
	return nil
}

type sentSMS struct {
	phone string
	code  int
}

type fakeSender struct {
	sent []sentSMS
	err  error
}

func (f *fakeSender) SendCode(_ context.Context, phone string, code int) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentSMS{phone: phone, code: code})
	return nil
}

func (f *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no SMS was sent")
	}
	return strconv.Itoa(f.sent[len(f.sent)-1].code)
}

const (
	testUser  int64 = 100500
	testPhone       = "+79161234567"
)

func newTestService(dir *fakeDirectory, links *fakeLinks, sender *fakeSender) *Service {
	return NewService(Config{}, dir, links, sender)
}

func singleStaffDirectory() *fakeDirectory {
	return &fakeDirectory{byPhone: map[string][]repo.Staff{
		testPhone: {{ID: 1, FullName: "Ivanov Ivan", Phone: testPhone, Role: repo.RoleCourier, Unit: "unit-1"}},
	}}
}

func TestHappyPathManualPhone(t *testing.T) {
	ctx := context.Background()
	links := newFakeLinks()
	sender := &fakeSender{}
	svc := newTestService(singleStaffDirectory(), links, sender)

	reply, err := svc.Start(ctx, testUser, "")
	if err != nil || reply != MsgAskPhone {
		t.Fatalf("Start = (%q, %v), want ask-phone prompt", reply, err)
	}
	if step, ok := svc.Step(testUser); !ok || step != dialogue.StepAwaitingPhone {
		t.Fatalf("step = (%q, %v), want awaiting_phone", step, ok)
	}

	reply, err = svc.SubmitPhone(ctx, testUser, "8 916 123-45-67")
	if err != nil {
		t.Fatalf("SubmitPhone error: %v", err)
	}
	if reply != MsgCodeSent(testPhone) {
		t.Fatalf("SubmitPhone = %q, want code-sent confirmation", reply)
	}
	if len(sender.sent) != 1 || sender.sent[0].phone != testPhone {
		t.Fatalf("sent = %+v, want one SMS to %s", sender.sent, testPhone)
	}
	if step, _ := svc.Step(testUser); step != dialogue.StepAwaitingCode {
		t.Fatalf("step = %q, want awaiting_code", step)
	}

	reply, err = svc.SubmitCode(ctx, testUser, sender.lastCode(t))
	if err != nil {
		t.Fatalf("SubmitCode error: %v", err)
	}
	if reply != MsgSuccess("Ivanov Ivan") {
		t.Fatalf("SubmitCode = %q, want success message", reply)
	}
	if got := links.created[1]; got != testUser {
		t.Errorf("identity link created for tg user %d, want %d", got, testUser)
	}
	if _, ok := svc.Step(testUser); ok {
		t.Error("session survived a successful registration")
	}
}

func TestCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), sender)

	svc.Start(ctx, testUser, "")
	svc.SubmitPhone(ctx, testUser, testPhone)
	code := sender.lastCode(t)

	if reply, _ := svc.SubmitCode(ctx, testUser, code); reply != MsgSuccess("Ivanov Ivan") {
		t.Fatalf("first use = %q, want success", reply)
	}
	// the session is gone, so replaying the same code is consumed silently
	if reply, err := svc.SubmitCode(ctx, testUser, code); reply != "" || err != nil {
		t.Errorf("replay = (%q, %v), want silent consumption", reply, err)
	}
}

func TestContactShareSkipsPhoneStep(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), sender)

	reply, err := svc.Start(ctx, testUser, "89161234567")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if reply != MsgCodeSent(testPhone) {
		t.Fatalf("Start = %q, want immediate code-sent confirmation", reply)
	}
	if step, _ := svc.Step(testUser); step != dialogue.StepAwaitingCode {
		t.Fatalf("step = %q, want awaiting_code", step)
	}
}

func TestUnknownPhoneEndsDialogue(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeDirectory{byPhone: map[string][]repo.Staff{}}, newFakeLinks(), &fakeSender{})

	svc.Start(ctx, testUser, "")
	reply, err := svc.SubmitPhone(ctx, testUser, testPhone)
	if err != nil || reply != MsgPhoneNotFound {
		t.Fatalf("SubmitPhone = (%q, %v), want not-found message", reply, err)
	}
	if _, ok := svc.Step(testUser); ok {
		t.Error("session survived an unknown phone")
	}
}

func TestBadPhoneKeepsSessionInPlace(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), &fakeSender{})

	svc.Start(ctx, testUser, "")
	reply, err := svc.SubmitPhone(ctx, testUser, "hello")
	if err != nil || reply != MsgPhoneFormatError {
		t.Fatalf("SubmitPhone = (%q, %v), want format error", reply, err)
	}
	if step, ok := svc.Step(testUser); !ok || step != dialogue.StepAwaitingPhone {
		t.Errorf("step = (%q, %v), want to stay in awaiting_phone", step, ok)
	}
}

func TestAlreadyRegisteredStaff(t *testing.T) {
	ctx := context.Background()
	links := newFakeLinks()
	links.linked[1] = true
	svc := newTestService(singleStaffDirectory(), links, &fakeSender{})

	svc.Start(ctx, testUser, "")
	reply, err := svc.SubmitPhone(ctx, testUser, testPhone)
	if err != nil || reply != MsgAlreadyRegistered("Ivanov Ivan") {
		t.Fatalf("SubmitPhone = (%q, %v), want already-registered message", reply, err)
	}
	if _, ok := svc.Step(testUser); ok {
		t.Error("session survived an already-linked staff record")
	}
}

func TestSharedPhoneDisambiguation(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{byPhone: map[string][]repo.Staff{
		testPhone: {
			{ID: 1, FullName: "Ivanov Ivan", Phone: testPhone},
			{ID: 2, FullName: "Petrova Anna", Phone: testPhone},
		},
	}}
	sender := &fakeSender{}
	svc := newTestService(dir, newFakeLinks(), sender)

	svc.Start(ctx, testUser, "")
	reply, err := svc.SubmitPhone(ctx, testUser, testPhone)
	if err != nil || reply != MsgAskFullname {
		t.Fatalf("SubmitPhone = (%q, %v), want full-name prompt", reply, err)
	}
	if step, _ := svc.Step(testUser); step != dialogue.StepAwaitingFullname {
		t.Fatalf("step = %q, want awaiting_fullname", step)
	}

	reply, err = svc.SubmitFullname(ctx, testUser, "Sidorov Pavel")
	if err != nil || reply != MsgFullnameNotFound {
		t.Fatalf("miss = (%q, %v), want name-not-found message", reply, err)
	}
	if step, ok := svc.Step(testUser); !ok || step != dialogue.StepAwaitingFullname {
		t.Fatalf("a miss must keep the session, got (%q, %v)", step, ok)
	}

	// match is case-insensitive exact
	reply, err = svc.SubmitFullname(ctx, testUser, "  petrova anna ")
	if err != nil {
		t.Fatalf("SubmitFullname error: %v", err)
	}
	if reply != MsgCodeSent(testPhone) {
		t.Fatalf("match = %q, want code-sent confirmation", reply)
	}

	reply, _ = svc.SubmitCode(ctx, testUser, sender.lastCode(t))
	if reply != MsgSuccess("Petrova Anna") {
		t.Errorf("SubmitCode = %q, want success for the chosen candidate", reply)
	}
}

func TestWrongCodeBurnsAttempts(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := NewService(Config{MaxCodeAttempts: 3}, singleStaffDirectory(), newFakeLinks(), sender)

	svc.Start(ctx, testUser, "")
	svc.SubmitPhone(ctx, testUser, testPhone)
	code := sender.sent[0].code
	wrong := fmt.Sprintf("%04d", (code+1)%10000)

	if reply, _ := svc.SubmitCode(ctx, testUser, wrong); reply != MsgCodeMismatch(2) {
		t.Fatalf("attempt 1 = %q, want 2 attempts left", reply)
	}
	if reply, _ := svc.SubmitCode(ctx, testUser, wrong); reply != MsgCodeMismatch(1) {
		t.Fatalf("attempt 2 = %q, want 1 attempt left", reply)
	}
	if reply, _ := svc.SubmitCode(ctx, testUser, wrong); reply != MsgExhausted {
		t.Fatalf("attempt 3 = %q, want exhausted message", reply)
	}
	if _, ok := svc.Step(testUser); ok {
		t.Error("session survived attempt exhaustion")
	}
}

func TestMalformedCodeDoesNotBurnAttempt(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := NewService(Config{MaxCodeAttempts: 3}, singleStaffDirectory(), newFakeLinks(), sender)

	svc.Start(ctx, testUser, "")
	svc.SubmitPhone(ctx, testUser, testPhone)

	for _, in := range []string{"12", "12345", "abcd", ""} {
		if reply, _ := svc.SubmitCode(ctx, testUser, in); reply != MsgCodeFormatError {
			t.Fatalf("SubmitCode(%q) = %q, want format error", in, reply)
		}
	}

	// a full set of real attempts is still available
	code := sender.sent[0].code
	wrong := fmt.Sprintf("%04d", (code+1)%10000)
	if reply, _ := svc.SubmitCode(ctx, testUser, wrong); reply != MsgCodeMismatch(2) {
		t.Errorf("after format errors = %q, want 2 attempts left", reply)
	}
}

func TestResendRequiresActiveCodeEntry(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), &fakeSender{})

	if reply, _ := svc.Resend(ctx, testUser); reply != MsgNoActiveCode {
		t.Errorf("Resend without session = %q, want no-active-code message", reply)
	}

	svc.Start(ctx, testUser, "")
	if reply, _ := svc.Resend(ctx, testUser); reply != MsgNoActiveCode {
		t.Errorf("Resend in awaiting_phone = %q, want no-active-code message", reply)
	}
}

func TestResendBlockedBySMSCooldown(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), sender)

	svc.Start(ctx, testUser, "")
	svc.SubmitPhone(ctx, testUser, testPhone)

	reply, err := svc.Resend(ctx, testUser)
	if err != nil {
		t.Fatalf("Resend error: %v", err)
	}
	if reply != MsgSMSCooldown(svc.cfg.SMSCooldown) {
		t.Errorf("Resend = %q, want SMS cooldown message", reply)
	}
	if len(sender.sent) != 1 {
		t.Errorf("%d SMS sent, want the initial one only", len(sender.sent))
	}
}

func TestResendAfterCooldownResetsAttempts(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), sender)

	svc.Start(ctx, testUser, "")
	svc.SubmitPhone(ctx, testUser, testPhone)

	// burn one attempt, then age the last send beyond the cooldown
	wrong := fmt.Sprintf("%04d", (sender.sent[0].code+1)%10000)
	svc.SubmitCode(ctx, testUser, wrong)
	svc.store.Update(testUser, func(sess *Session) {
		sess.LastSMSSentAt = time.Now().Add(-time.Hour)
	})

	reply, err := svc.Resend(ctx, testUser)
	if err != nil {
		t.Fatalf("Resend error: %v", err)
	}
	if reply != MsgCodeSent(testPhone) {
		t.Fatalf("Resend = %q, want code-sent confirmation", reply)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("%d SMS sent, want 2", len(sender.sent))
	}

	// the fresh code carries a fresh attempt budget
	wrong = fmt.Sprintf("%04d", (sender.sent[1].code+1)%10000)
	if reply, _ := svc.SubmitCode(ctx, testUser, wrong); reply != MsgCodeMismatch(svc.cfg.MaxCodeAttempts-1) {
		t.Errorf("after resend = %q, want full attempt budget minus one", reply)
	}
}

func TestBackToBackResendHitsAntiSpamWindow(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), sender)

	svc.Start(ctx, testUser, "")
	svc.SubmitPhone(ctx, testUser, testPhone)
	svc.store.Update(testUser, func(sess *Session) {
		sess.LastSMSSentAt = time.Now().Add(-time.Hour)
	})
	if reply, _ := svc.Resend(ctx, testUser); reply != MsgCodeSent(testPhone) {
		t.Fatalf("first resend = %q, want code-sent confirmation", reply)
	}

	// even with the SMS cooldown aged away, the short resend window applies
	svc.store.Update(testUser, func(sess *Session) {
		sess.LastSMSSentAt = time.Now().Add(-time.Hour)
	})
	reply, _ := svc.Resend(ctx, testUser)
	if reply != MsgResendCooldown(svc.cfg.ResendWindow) {
		t.Errorf("second resend = %q, want anti-spam window message", reply)
	}
	if len(sender.sent) != 2 {
		t.Errorf("%d SMS sent, want 2", len(sender.sent))
	}
}

func TestStartCooldownSurvivesSessionTeardown(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), sender)

	// first contact share sends an SMS, then the session is abandoned
	svc.Start(ctx, testUser, testPhone)
	svc.Abort(testUser)

	reply, err := svc.Start(ctx, testUser, testPhone)
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if reply != MsgSMSCooldown(svc.cfg.SMSCooldown) {
		t.Errorf("restart = %q, want SMS cooldown message", reply)
	}
	if len(sender.sent) != 1 {
		t.Errorf("%d SMS sent, want 1", len(sender.sent))
	}
}

func TestStartCooldownAppliesToManualEntry(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), sender)

	// the first SMS goes out through the manual path, then the user bails
	svc.Start(ctx, testUser, "")
	svc.SubmitPhone(ctx, testUser, testPhone)
	svc.Abort(testUser)

	reply, err := svc.Start(ctx, testUser, "")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if reply != MsgSMSCooldown(svc.cfg.SMSCooldown) {
		t.Errorf("restart = %q, want SMS cooldown message", reply)
	}
	if _, ok := svc.Step(testUser); ok {
		t.Error("a cooled-down restart created a session")
	}
	if len(sender.sent) != 1 {
		t.Errorf("%d SMS sent, want 1", len(sender.sent))
	}
}

func TestConcurrentWrongCodesEachBurnAnAttempt(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	svc := NewService(Config{MaxCodeAttempts: 10}, singleStaffDirectory(), newFakeLinks(), sender)

	svc.Start(ctx, testUser, "")
	svc.SubmitPhone(ctx, testUser, testPhone)
	wrong := fmt.Sprintf("%04d", (sender.sent[0].code+1)%10000)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.SubmitCode(ctx, testUser, wrong)
		}()
	}
	wg.Wait()

	sess, ok := svc.store.Get(testUser)
	if !ok {
		t.Fatal("session gone before the budget was exhausted")
	}
	if sess.Attempts != 6 {
		t.Errorf("attempts = %d, want every duplicate delivery counted", sess.Attempts)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), &fakeSender{})

	if got := svc.Cancel(testUser); got != MsgNothingToCancel {
		t.Errorf("Cancel without session = %q", got)
	}

	svc.Start(ctx, testUser, "")
	if got := svc.Cancel(testUser); got != MsgCancelled {
		t.Errorf("Cancel = %q, want cancelled message", got)
	}
	if _, ok := svc.Step(testUser); ok {
		t.Error("session survived Cancel")
	}
}

func TestDirectoryFailureTearsSessionDown(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&fakeDirectory{err: errors.New("db down")}, newFakeLinks(), &fakeSender{})

	svc.Start(ctx, testUser, "")
	reply, err := svc.SubmitPhone(ctx, testUser, testPhone)
	if err == nil {
		t.Fatal("SubmitPhone did not surface the lookup failure")
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty on error", reply)
	}
	if _, ok := svc.Step(testUser); ok {
		t.Error("session survived a directory failure")
	}
}

func TestSMSSendFailureTearsSessionDown(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(singleStaffDirectory(), newFakeLinks(), &fakeSender{err: errors.New("twilio down")})

	svc.Start(ctx, testUser, "")
	if _, err := svc.SubmitPhone(ctx, testUser, testPhone); err == nil {
		t.Fatal("SubmitPhone did not surface the send failure")
	}
	if _, ok := svc.Step(testUser); ok {
		t.Error("session survived an SMS send failure")
	}
}
