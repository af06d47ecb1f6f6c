// Package dialogue coordinates multi-step conversations: it owns the step
// tags shared by all flows, the per-step permission table for commands and
// callbacks, and the orchestrator that routes inbound updates to the flow
// holding an active session.
package dialogue

// Step identifies the stage a session is in. It is the state-machine
// discriminant: the transition table and the permission table are both keyed
// by it, so a new step cannot be introduced without updating both.
type Step string

const (
	// StepAwaitingPhone waits for the staff member's phone number.
	StepAwaitingPhone Step = "awaiting_phone"
	// StepAwaitingFullname disambiguates between staff sharing one phone.
	StepAwaitingFullname Step = "awaiting_fullname"
	// StepAwaitingCode waits for the 4-digit SMS code.
	StepAwaitingCode Step = "awaiting_code"

	// StepCourierReply waits for a courier's text reply on a problem order.
	StepCourierReply Step = "waiting_courier_reply"
	// StepAwaitingPhoto waits for problem-order photos from the courier.
	StepAwaitingPhoto Step = "awaiting_photo_from_courier"
)
