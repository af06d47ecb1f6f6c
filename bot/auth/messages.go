package auth

import (
	"fmt"
	"time"
)

// User-visible message catalog for the SMS authentication dialogue.
const (
	MsgAskPhone         = "Enter your phone number in the format +7XXXXXXXXXX."
	MsgPhoneFormatError = "That doesn't look like a phone number. Send it as +7XXXXXXXXXX."
	MsgPhoneNotFound    = "This number was not found in the system. Contact your unit manager."
	MsgAskFullname      = "Several employees share this number. Enter your full name exactly as in the directory."
	MsgFullnameNotFound = "No employee with that name matches this number. Check the spelling and try again."
	MsgCodeFormatError  = "The code is 4 digits. Try again."
	MsgExhausted        = "Attempts exhausted. Start registration again with /auth."
	MsgCancelled        = "Registration cancelled."
	MsgNothingToCancel  = "You have no registration in progress."
	MsgNoActiveCode     = "Nothing to resend: no code entry is in progress."
	MsgRestart          = "Session state was lost. Start again with /auth."
)

// MsgCodeSent confirms the SMS went out to phone.
func MsgCodeSent(phone string) string {
	return fmt.Sprintf("A 4-digit code was sent to %s by SMS. Enter it here.", phone)
}

// MsgAlreadyRegistered tells the user the staff record is taken.
func MsgAlreadyRegistered(fullName string) string {
	return fmt.Sprintf("This number is already registered to %s.", fullName)
}

// MsgCodeMismatch reports the remaining attempt count after a wrong code.
func MsgCodeMismatch(remaining int) string {
	return fmt.Sprintf("Wrong code. %d attempts left.", remaining)
}

// MsgSuccess confirms the identity link.
func MsgSuccess(fullName string) string {
	return fmt.Sprintf("Done! Your Telegram is now linked to %s.", fullName)
}

// MsgResendCooldown reports how long until another resend request is
// accepted.
func MsgResendCooldown(wait time.Duration) string {
	return fmt.Sprintf("A new code can be requested in %d min.", ceilMinutes(wait))
}

// MsgSMSCooldown reports how long until another SMS may be sent.
func MsgSMSCooldown(wait time.Duration) string {
	return fmt.Sprintf("An SMS was sent recently. Try again in %d min.", ceilMinutes(wait))
}

func ceilMinutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}
