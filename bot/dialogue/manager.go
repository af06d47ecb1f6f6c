package dialogue

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/crewbot/core/logger"
	"github.com/m3rciful/crewbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/crewbot/core/telegram/helpers"
	"log/slog"
)

// GenericErrorMessage is the catch-all reply sent when a step handler fails.
const GenericErrorMessage = "Something went wrong. Try again later."

// Flow is a dialogue state machine owning its own session store. The manager
// only needs to know whether a user has an active session, which step it is
// in, and how to dispatch or tear it down.
type Flow interface {
	Name() string
	Step(userID int64) (Step, bool)
	Handle(c tele.Context) error
	Abort(userID int64)
}

// Manager is the top-level dispatcher: it receives every inbound update,
// looks up the active session across registered flows, and routes to the
// matching flow or lets the update fall through to non-dialogue handling.
type Manager struct {
	flows []Flow
}

// NewManager registers flows in priority order.
func NewManager(flows ...Flow) *Manager {
	return &Manager{flows: flows}
}

func (m *Manager) active(userID int64) (Flow, Step, bool) {
	for _, f := range m.flows {
		if step, ok := f.Step(userID); ok {
			return f, step, true
		}
	}
	return nil, "", false
}

// InProgress reports whether the user has an active session in any flow.
func (m *Manager) InProgress(userID int64) bool {
	_, _, ok := m.active(userID)
	return ok
}

// Step returns the pending step for the user, if any.
func (m *Manager) Step(userID int64) (Step, bool) {
	_, step, ok := m.active(userID)
	return step, ok
}

// ManagerHandler dispatches the update to the flow holding the user's active
// session. A handler error tears the session down and sends the generic
// error reply, so the user is never left stuck mid-step; if no session is
// active the update is ignored and falls through to non-dialogue handling.
func (m *Manager) ManagerHandler(c tele.Context) error {
	userID := c.Sender().ID
	flow, step, ok := m.active(userID)
	ctx := tghelpers.BuildContext(c)
	if !ok {
		logger.Debug(ctx, "dialogue", "dispatch.skip",
			slog.Int64("user_id", userID),
		)
		return nil
	}

	logger.Debug(ctx, "dialogue", "dispatch",
		slog.Int64("user_id", userID),
		slog.String("flow", flow.Name()),
		slog.String("step", string(step)),
	)

	if err := flow.Handle(c); err != nil {
		flow.Abort(userID)
		logger.Error(ctx, "dialogue", "step.failed",
			slog.Int64("user_id", userID),
			slog.String("flow", flow.Name()),
			slog.String("step", string(step)),
			slog.String("err", err.Error()),
		)
		if sendErr := tghelpers.SendText(c, GenericErrorMessage); sendErr != nil {
			logger.Error(ctx, "dialogue", "reply.failed",
				slog.Int64("user_id", userID),
				slog.String("err", sendErr.Error()),
			)
		}
	}
	return nil
}

// GateCommand blocks a command while a session whose step does not allow it
// is active. The refusal reply names the pending step and the update is
// fully consumed.
func (m *Manager) GateCommand(command string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			_, step, ok := m.active(c.Sender().ID)
			if !ok {
				return next(c)
			}
			perms := PermissionsFor(step)
			if perms.CommandAllowed(command) {
				return next(c)
			}
			logger.Debug(tghelpers.BuildContext(c), "dialogue", "command.blocked",
				slog.Int64("user_id", c.Sender().ID),
				slog.String("step", string(step)),
				slog.String("command", command),
			)
			return tghelpers.SendText(c, perms.BlockedMessage())
		}
	}
}

// GateCallback blocks callback presses not allowed in the pending step.
func (m *Manager) GateCallback() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			_, step, ok := m.active(c.Sender().ID)
			if !ok {
				return next(c)
			}
			key := callbacks.CallbackKey(c)
			perms := PermissionsFor(step)
			if perms.CallbackAllowed(key) {
				return next(c)
			}
			logger.Debug(tghelpers.BuildContext(c), "dialogue", "callback.blocked",
				slog.Int64("user_id", c.Sender().ID),
				slog.String("step", string(step)),
				slog.String("cb_key", key),
			)
			return tghelpers.SendText(c, perms.BlockedMessage())
		}
	}
}
