package dialogue

import (
	"strings"
	"testing"
)

func TestCancelAllowedInEveryStep(t *testing.T) {
	steps := []Step{
		StepAwaitingPhone,
		StepAwaitingFullname,
		StepAwaitingCode,
		StepCourierReply,
		StepAwaitingPhoto,
		Step("some_future_step"),
	}
	for _, step := range steps {
		if !PermissionsFor(step).CommandAllowed(CancelCommand) {
			t.Errorf("step %q does not allow %s", step, CancelCommand)
		}
	}
}

func TestResendAllowedOnlyWhileAwaitingCode(t *testing.T) {
	if !PermissionsFor(StepAwaitingCode).CommandAllowed("/resend_code") {
		t.Error("awaiting_code must allow /resend_code")
	}
	for _, step := range []Step{StepAwaitingPhone, StepAwaitingFullname, StepCourierReply, StepAwaitingPhoto} {
		if PermissionsFor(step).CommandAllowed("/resend_code") {
			t.Errorf("step %q must not allow /resend_code", step)
		}
	}
}

func TestUnrelatedCommandsBlocked(t *testing.T) {
	for _, cmd := range []string{"/start", "/auth", "/stock", "/delivery"} {
		if PermissionsFor(StepAwaitingPhone).CommandAllowed(cmd) {
			t.Errorf("%s allowed during phone entry", cmd)
		}
	}
}

func TestCourierCallbacksScopedToReplyStep(t *testing.T) {
	reply := PermissionsFor(StepCourierReply)
	for _, key := range []string{"courier_photo_yes", "courier_photo_no"} {
		if !reply.CallbackAllowed(key) {
			t.Errorf("waiting_courier_reply must allow callback %q", key)
		}
	}
	if PermissionsFor(StepAwaitingPhoto).CallbackAllowed("courier_photo_yes") {
		t.Error("awaiting_photo must not allow the confirmation buttons")
	}
	if PermissionsFor(StepAwaitingCode).CallbackAllowed("courier_photo_yes") {
		t.Error("auth steps must not allow courier callbacks")
	}
}

func TestUnknownStepFallsBackToCancelOnly(t *testing.T) {
	p := PermissionsFor(Step("unmapped"))
	if !p.CommandAllowed(CancelCommand) {
		t.Error("fallback permissions must allow cancel")
	}
	if p.CommandAllowed("/auth") || p.CallbackAllowed("courier_photo_yes") {
		t.Error("fallback permissions must allow nothing but cancel")
	}
}

func TestBlockedMessageNamesTheStep(t *testing.T) {
	msg := PermissionsFor(StepAwaitingCode).BlockedMessage()
	if !strings.Contains(msg, "SMS code entry") {
		t.Errorf("blocked message does not name the step: %q", msg)
	}
	if !strings.Contains(msg, "/cancel") {
		t.Errorf("blocked message does not mention the escape hatch: %q", msg)
	}
}
