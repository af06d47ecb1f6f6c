package dialogue

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// CancelCommand is allowed in every step; it is the only escape hatch a user
// always has while a dialogue is in progress.
const CancelCommand = "/cancel"

// Permissions lists what a user may do while a session sits in a given step.
type Permissions struct {
	Commands    mapset.Set[string]
	Callbacks   mapset.Set[string]
	Description string
}

var stepPermissions = map[Step]Permissions{
	StepAwaitingPhone: {
		Commands:    mapset.NewSet(CancelCommand),
		Callbacks:   mapset.NewSet[string](),
		Description: "phone number entry",
	},
	StepAwaitingFullname: {
		Commands:    mapset.NewSet(CancelCommand),
		Callbacks:   mapset.NewSet[string](),
		Description: "full name entry",
	},
	StepAwaitingCode: {
		Commands:    mapset.NewSet(CancelCommand, "/resend_code"),
		Callbacks:   mapset.NewSet[string](),
		Description: "SMS code entry",
	},
	StepCourierReply: {
		Commands:    mapset.NewSet(CancelCommand),
		Callbacks:   mapset.NewSet("courier_photo_yes", "courier_photo_no"),
		Description: "problem order reply",
	},
	StepAwaitingPhoto: {
		Commands:    mapset.NewSet(CancelCommand),
		Callbacks:   mapset.NewSet[string](),
		Description: "problem order photo upload",
	},
}

// defaultPermissions applies to unknown steps: only cancel is allowed.
var defaultPermissions = Permissions{
	Commands:    mapset.NewSet(CancelCommand),
	Callbacks:   mapset.NewSet[string](),
	Description: "current step",
}

// PermissionsFor returns the permission set for a step. Unknown steps fall
// back to a minimal cancel-only set.
func PermissionsFor(step Step) Permissions {
	if p, ok := stepPermissions[step]; ok {
		return p
	}
	return defaultPermissions
}

// CommandAllowed reports whether command may run while the step is pending.
func (p Permissions) CommandAllowed(command string) bool {
	return p.Commands.Contains(command)
}

// CallbackAllowed reports whether the callback key may fire while the step is
// pending.
func (p Permissions) CallbackAllowed(key string) bool {
	return p.Callbacks.Contains(key)
}

// BlockedMessage is the standard reply sent when a command or button press is
// refused because a dialogue step is pending.
func (p Permissions) BlockedMessage() string {
	return fmt.Sprintf("Finish your current step first: %s. Send /cancel to abort it.", p.Description)
}
