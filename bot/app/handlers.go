package app

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/crewbot/bot/dedup"
	"github.com/m3rciful/crewbot/bot/repo"
	"github.com/m3rciful/crewbot/core/logger"
	"github.com/m3rciful/crewbot/core/telegram/format"
	tghelpers "github.com/m3rciful/crewbot/core/telegram/helpers"
	"github.com/m3rciful/crewbot/core/telegram/keyboard"
	"log/slog"
)

// mdv2 escapes a dynamic value for MarkdownV2 rendering. Escaping failures
// cannot happen for this version constant, so the input is returned as-is.
func mdv2(s string) string {
	escaped, err := format.EscapeMarkdown(s, format.MarkdownV2, "")
	if err != nil {
		return s
	}
	return escaped
}

const (
	msgGreeting      = "Hi! I'm the crew bot. Link your Telegram to your staff record with /auth, or share your phone with the button below."
	msgNotLinked     = "You need to authenticate first: /auth."
	msgNoAccess      = "This menu is not available for your role."
	msgChatGreeting  = "Hi! I'm the crew bot. Message me directly to get started."
	msgEmptyStock    = "No stock records for your unit yet."
	msgNoDeliveries  = "You have no open deliveries."
	msgFlagOrderHint = "Usage: /flag_order <courier_tg_id> <order_id>"
)

func (a *App) startHandler(c tele.Context) error {
	return c.Send(msgGreeting, keyboard.RequestContact("📱 Share my phone"))
}

// cancelHandler terminates whichever dialogue is active for the user.
func (a *App) cancelHandler(c tele.Context) error {
	userID := c.Sender().ID
	if reply, ok := a.courierFlow.Service().Cancel(userID); ok {
		return tghelpers.SendText(c, reply)
	}
	return tghelpers.SendText(c, a.authFlow.Service().Cancel(userID))
}

// linkedStaff resolves the sender to a staff record, replying with the auth
// prompt when the user has no identity link yet.
func (a *App) linkedStaff(c tele.Context) (*repo.Staff, error) {
	ctx := tghelpers.BuildContext(c)
	staff, err := a.identity.StaffByUser(ctx, c.Sender().ID)
	if err != nil {
		logger.Error(ctx, "app", "staff.lookup.failed",
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
		return nil, tghelpers.SendText(c, "Something went wrong. Try again later.")
	}
	if staff == nil {
		return nil, tghelpers.SendText(c, msgNotLinked)
	}
	return staff, nil
}

func (a *App) stockHandler(c tele.Context) error {
	staff, err := a.linkedStaff(c)
	if staff == nil {
		return err
	}
	if staff.Role != repo.RoleKitchen && staff.Role != repo.RoleManager {
		return tghelpers.SendText(c, msgNoAccess)
	}

	ctx := tghelpers.BuildContext(c)
	items, err := a.menu.StockByUnit(ctx, staff.Unit)
	if err != nil {
		logger.Error(ctx, "app", "stock.failed",
			slog.String("unit", staff.Unit),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Something went wrong. Try again later.")
	}
	if len(items) == 0 {
		return tghelpers.SendText(c, msgEmptyStock)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Stock for %s:*\n", mdv2(staff.Unit))
	for _, it := range items {
		fmt.Fprintf(&b, "• %s \\- %s %s\n", mdv2(it.Name), mdv2(fmt.Sprintf("%.1f", it.Quantity)), mdv2(it.Measure))
	}
	return tghelpers.SendMDV2(c, b.String())
}

func (a *App) deliveryHandler(c tele.Context) error {
	staff, err := a.linkedStaff(c)
	if staff == nil {
		return err
	}
	if staff.Role != repo.RoleCourier {
		return tghelpers.SendText(c, msgNoAccess)
	}

	ctx := tghelpers.BuildContext(c)
	deliveries, err := a.menu.OpenDeliveries(ctx, staff.ID)
	if err != nil {
		logger.Error(ctx, "app", "deliveries.failed",
			slog.Int64("staff_id", staff.ID),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Something went wrong. Try again later.")
	}
	if len(deliveries) == 0 {
		return tghelpers.SendText(c, msgNoDeliveries)
	}

	var b strings.Builder
	b.WriteString("*Your open deliveries:*\n")
	for _, d := range deliveries {
		fmt.Fprintf(&b, "• %s \\- %s \\(%s\\)\n", mdv2(d.OrderID), mdv2(d.Address), mdv2(d.Status))
	}
	return tghelpers.SendMDV2(c, b.String())
}

// flagOrderHandler registers the problem order and opens the dialogue with
// the assigned courier.
func (a *App) flagOrderHandler(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return tghelpers.SendText(c, msgFlagOrderHint)
	}
	courierTgID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return tghelpers.SendText(c, msgFlagOrderHint)
	}
	orderID := args[1]

	ctx := tghelpers.BuildContext(c)
	courierStaff, err := a.identity.StaffByUser(ctx, courierTgID)
	if err != nil {
		logger.Error(ctx, "app", "flag_order.lookup.failed",
			slog.Int64("courier_tg_id", courierTgID),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Something went wrong. Try again later.")
	}
	if courierStaff == nil {
		return tghelpers.SendText(c, "This Telegram ID is not linked to any staff record.")
	}

	if err := a.orders.Flag(ctx, orderID, courierStaff.ID); err != nil {
		logger.Error(ctx, "app", "flag_order.persist.failed",
			slog.String("order_id", orderID),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Something went wrong. Try again later.")
	}

	if err := a.courierFlow.Notify(c.Bot(), courierTgID, orderID); err != nil {
		logger.Error(ctx, "app", "flag_order.notify.failed",
			slog.Int64("courier_tg_id", courierTgID),
			slog.String("order_id", orderID),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Could not reach the courier.")
	}
	return tghelpers.SendText(c, fmt.Sprintf("Courier asked about order %s.", orderID))
}

func (a *App) unknownTextHandler(c tele.Context) error {
	return tghelpers.SendText(c, "I didn't get that. Try /start.")
}

func (a *App) unknownPhotoHandler(c tele.Context) error {
	// photos are only expected inside the courier dialogue
	return nil
}

// addedToChatHandler greets a chat the bot was added to. Telegram delivers
// this event at least once; the deduplicator collapses redeliveries.
func (a *App) addedToChatHandler(c tele.Context) error {
	key := dedup.EventKey("bot_added", c.Chat().ID, c.Sender().ID)
	if a.dedup.Seen(key) {
		return nil
	}
	return tghelpers.SendText(c, msgChatGreeting)
}
