// Package telegram is the bot front end. It translates chat updates into
// application service calls and renders results back as messages. All policy
// lives in the services; the bot only sequences conversations.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ijara-kitoblar/library-bot/internal/app/apperr"
	"github.com/ijara-kitoblar/library-bot/internal/app/authz"
	"github.com/ijara-kitoblar/library-bot/internal/app/linking"
	"github.com/ijara-kitoblar/library-bot/internal/app/notify"
	"github.com/ijara-kitoblar/library-bot/internal/app/registry"
	"github.com/ijara-kitoblar/library-bot/internal/app/subscription"
	"github.com/ijara-kitoblar/library-bot/internal/domain"
	"github.com/ijara-kitoblar/library-bot/internal/ports/out/linksession"
)

// chatAPI is the slice of the Telegram client the bot needs. *tgbotapi.BotAPI
// satisfies it; tests substitute a recording fake.
type chatAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot drives the long-polling update loop.
type Bot struct {
	api chatAPI
	log *slog.Logger

	registry *registry.Service
	linking  *linking.Service
	authz    *authz.Service
	subs     *subscription.Service
	notifier *notify.Service

	// regs holds in-progress registration conversations. Registration is a
	// pure front-end dialogue; unlike linking it carries no protocol
	// invariants, so it does not need durable storage.
	mu   sync.Mutex
	regs map[int64]*regConversation
}

type regStep int

const (
	regGivenName regStep = iota
	regFamilyName
	regPhone
	regBirthYear
	regAffiliation
)

type regConversation struct {
	step  regStep
	input registry.RegisterInput
}

func NewBot(
	api chatAPI,
	log *slog.Logger,
	reg *registry.Service,
	link *linking.Service,
	az *authz.Service,
	subs *subscription.Service,
	notifier *notify.Service,
) *Bot {
	return &Bot{
		api:      api,
		log:      log,
		registry: reg,
		linking:  link,
		authz:    az,
		subs:     subs,
		notifier: notifier,
		regs:     make(map[int64]*regConversation),
	}
}

// Run processes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{tgbotapi.UpdateTypeMessage}

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("bot started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	actor := domain.ExternalAccountID(chatID)

	if msg.IsCommand() {
		b.handleCommand(ctx, chatID, actor, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
		return
	}
	// A shared contact is the phone answer for whichever dialogue is waiting
	// on one; route its number as if it had been typed.
	if msg.Contact != nil {
		b.handleText(ctx, chatID, actor, strings.TrimSpace(msg.Contact.PhoneNumber))
		return
	}
	b.handleText(ctx, chatID, actor, strings.TrimSpace(msg.Text))
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, actor domain.ExternalAccountID, cmd, args string) {
	switch cmd {
	case "start", "help":
		b.reply(chatID, helpText)
	case "register":
		b.startRegistration(chatID)
	case "link":
		b.startLinking(ctx, chatID, actor)
	case "cancel":
		b.cancel(ctx, chatID, actor)
	case "profile":
		b.showProfile(ctx, chatID, actor)
	case "subscription":
		b.showSubscription(ctx, chatID, actor)
	case "plans":
		b.showPlans(chatID)
	case "choose":
		b.choosePlan(ctx, chatID, actor, args)
	case "stats":
		b.adminOnly(ctx, chatID, actor, func() { b.showStats(ctx, chatID) })
	case "search":
		b.adminOnly(ctx, chatID, actor, func() { b.searchMembers(ctx, chatID, args) })
	case "member":
		b.adminOnly(ctx, chatID, actor, func() { b.showMember(ctx, chatID, args) })
	case "approve":
		b.adminOnly(ctx, chatID, actor, func() { b.approve(ctx, chatID, args) })
	case "history":
		b.adminOnly(ctx, chatID, actor, func() { b.showHistory(ctx, chatID, args) })
	case "addadmin":
		b.promote(ctx, chatID, actor, args)
	case "removeadmin":
		b.demote(ctx, chatID, actor, args)
	case "admins":
		b.adminOnly(ctx, chatID, actor, func() { b.listAdmins(ctx, chatID) })
	default:
		b.reply(chatID, "Unknown command. Send /help for the command list.")
	}
}

// handleText routes free text to whichever conversation is in progress:
// the registration dialogue first, then a linking session.
func (b *Bot) handleText(ctx context.Context, chatID int64, actor domain.ExternalAccountID, text string) {
	if text == "" {
		return
	}

	b.mu.Lock()
	conv := b.regs[chatID]
	b.mu.Unlock()
	if conv != nil {
		b.continueRegistration(ctx, chatID, actor, conv, text)
		return
	}

	sess, ok, err := b.linking.Peek(ctx, actor)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	if ok {
		b.continueLinking(ctx, chatID, actor, sess, text)
		return
	}

	b.reply(chatID, "Nothing in progress. Send /help for the command list.")
}

const helpText = `Library membership bot.

/register - sign up as a new member
/link - connect this chat to your member id
/profile - show your membership card
/subscription - show your current plan
/plans - show available plans
/choose <plan> - pick a plan
/cancel - abort the current dialogue

Admin commands:
/stats, /search <text>, /member <id>, /approve <id> <plan>,
/history <id>, /addadmin <id>, /removeadmin <id>, /admins`

// --- registration dialogue ---

func (b *Bot) startRegistration(chatID int64) {
	b.mu.Lock()
	b.regs[chatID] = &regConversation{step: regGivenName}
	b.mu.Unlock()
	b.reply(chatID, "Let's sign you up. What is your first name?")
}

func (b *Bot) continueRegistration(ctx context.Context, chatID int64, actor domain.ExternalAccountID, conv *regConversation, text string) {
	switch conv.step {
	case regGivenName:
		conv.input.GivenName = text
		conv.step = regFamilyName
		b.reply(chatID, "Your last name?")
	case regFamilyName:
		conv.input.FamilyName = text
		conv.step = regPhone
		b.askPhone(chatID, "Your phone number? Tap the button below, or type it (e.g. +998 90 123 45 67).")
	case regPhone:
		conv.input.Phone = text
		conv.step = regBirthYear
		b.reply(chatID, "Your birth year?")
	case regBirthYear:
		year, err := strconv.Atoi(text)
		if err != nil {
			b.reply(chatID, "Please send the birth year as a number, e.g. 1995.")
			return
		}
		conv.input.BirthYear = year
		conv.step = regAffiliation
		b.reply(chatID, "Your school or workplace?")
	case regAffiliation:
		conv.input.Affiliation = text
		conv.input.ExternalAccount = &actor

		m, err := b.registry.Register(ctx, conv.input)
		if err != nil {
			if apperr.IsKind(err, apperr.KindValidation) || apperr.IsKind(err, apperr.KindConflict) {
				// Start over rather than guessing which answer to re-ask.
				b.dropRegistration(chatID)
				b.replyErr(chatID, err)
				b.reply(chatID, "Send /register to try again.")
				return
			}
			b.replyErr(chatID, err)
			return
		}
		b.dropRegistration(chatID)
		b.reply(chatID, fmt.Sprintf(
			"Welcome, %s! Your member id is %s. Keep it: you will need it at the front desk.",
			m.GivenName, m.ID))
	}
}

func (b *Bot) dropRegistration(chatID int64) {
	b.mu.Lock()
	delete(b.regs, chatID)
	b.mu.Unlock()
}

// --- linking dialogue ---

func (b *Bot) startLinking(ctx context.Context, chatID int64, actor domain.ExternalAccountID) {
	if _, err := b.linking.Begin(ctx, actor); err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, "What is your member id? (e.g. ID0001)")
}

func (b *Bot) continueLinking(ctx context.Context, chatID int64, actor domain.ExternalAccountID, sess linksession.Session, text string) {
	switch sess.State {
	case linksession.StateAwaitingMemberID:
		if _, err := b.linking.SubmitMemberID(ctx, actor, text); err != nil {
			b.replyErr(chatID, err)
			if apperr.IsKind(err, apperr.KindValidation) {
				b.reply(chatID, "Try again, or send /cancel.")
			}
			return
		}
		b.askPhone(chatID, "Found it. Now confirm the phone number on file for this membership.")
	case linksession.StateAwaitingPhone:
		m, err := b.linking.ConfirmPhone(ctx, actor, text)
		if err != nil {
			b.replyErr(chatID, err)
			return
		}
		b.reply(chatID, fmt.Sprintf("Done! This chat is now linked to %s (%s).", m.ID, m.FullName()))
	}
}

func (b *Bot) cancel(ctx context.Context, chatID int64, actor domain.ExternalAccountID) {
	b.mu.Lock()
	_, hadReg := b.regs[chatID]
	delete(b.regs, chatID)
	b.mu.Unlock()
	if hadReg {
		b.reply(chatID, "Registration cancelled.")
		return
	}
	if err := b.linking.Cancel(ctx, actor); err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, "Linking cancelled.")
}

// --- member commands ---

func (b *Bot) showProfile(ctx context.Context, chatID int64, actor domain.ExternalAccountID) {
	m, err := b.registry.LookupByExternalAccount(ctx, actor)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			b.reply(chatID, "This chat is not linked to a membership. Send /link or /register.")
			return
		}
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, renderProfile(m))
}

func (b *Bot) showSubscription(ctx context.Context, chatID int64, actor domain.ExternalAccountID) {
	m, err := b.registry.LookupByExternalAccount(ctx, actor)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			b.reply(chatID, "This chat is not linked to a membership. Send /link or /register.")
			return
		}
		b.replyErr(chatID, err)
		return
	}
	st, err := b.subs.CurrentStatus(ctx, string(m.ID))
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	text := fmt.Sprintf("Plan: %s", st.Plan)
	if st.Expiry != nil {
		text += fmt.Sprintf("\nValid until: %s (%d day(s) left)",
			st.Expiry.Format("2006-01-02"), st.DaysLeft)
	}
	b.reply(chatID, text)
}

func (b *Bot) showPlans(chatID int64) {
	var sb strings.Builder
	sb.WriteString("Free - the default plan, no expiry.\n")
	for _, offer := range b.subs.Offers() {
		fmt.Fprintf(&sb, "\n%s - %d UZS for %d days\n", offer.Plan, offer.PriceUZS, offer.DurationDays)
		for _, f := range offer.Features {
			fmt.Fprintf(&sb, "  - %s\n", f)
		}
	}
	sb.WriteString("\nPick one with /choose <plan>.")
	b.reply(chatID, sb.String())
}

func (b *Bot) choosePlan(ctx context.Context, chatID int64, actor domain.ExternalAccountID, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /choose <plan>, e.g. /choose Money")
		return
	}
	m, err := b.registry.LookupByExternalAccount(ctx, actor)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			b.reply(chatID, "This chat is not linked to a membership. Send /link or /register.")
			return
		}
		b.replyErr(chatID, err)
		return
	}
	res, err := b.subs.ChoosePlan(ctx, string(m.ID), args)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	if res.Applied {
		b.reply(chatID, fmt.Sprintf("You are now on the %s plan.", res.Member.Plan))
		return
	}
	b.reply(chatID, fmt.Sprintf(
		"The %s plan costs %d UZS for %d days.\nPay at the front desk; an administrator will activate it with your member id (%s).",
		res.Offer.Plan, res.Offer.PriceUZS, res.Offer.DurationDays, res.Member.ID))

	alert := fmt.Sprintf("%s (%s) wants the %s plan. After payment, activate it with /approve %s %s.",
		res.Member.FullName(), res.Member.ID, res.Offer.Plan, res.Member.ID, res.Offer.Plan)
	if _, err := b.notifier.BroadcastToAdmins(ctx, alert); err != nil {
		b.log.Error("admin alert failed", "member", string(res.Member.ID), "err", err)
	}
}

// --- admin commands ---

func (b *Bot) adminOnly(ctx context.Context, chatID int64, actor domain.ExternalAccountID, fn func()) {
	ok, err := b.authz.IsAdmin(ctx, actor)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	if !ok {
		b.reply(chatID, "This command is for administrators.")
		return
	}
	fn()
}

func (b *Bot) showStats(ctx context.Context, chatID int64) {
	st, err := b.registry.Statistics(ctx)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	ac, err := b.authz.Count(ctx)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf(
		"Members: %d\nFree: %d | Money: %d | Premium: %d\nLinked: %d\nAverage age: %.1f\nAdmins: %d",
		st.Total, st.Free, st.Money, st.Premium, st.Linked, st.AverageAge, ac.Total))
}

func (b *Bot) searchMembers(ctx context.Context, chatID int64, query string) {
	if query == "" {
		b.reply(chatID, "Usage: /search <name, phone or id>")
		return
	}
	ms, err := b.registry.Search(ctx, query)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	if len(ms) == 0 {
		b.reply(chatID, "No members match.")
		return
	}
	var sb strings.Builder
	for _, m := range ms {
		fmt.Fprintf(&sb, "%s  %s  %s  %s\n", m.ID, m.FullName(), m.Phone, m.Plan)
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) showMember(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /member <id>")
		return
	}
	m, err := b.registry.LookupByMemberID(ctx, args)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, renderProfile(m))
}

// approve activates a paid plan after an off-band payment:
// "/approve ID0001 Money".
func (b *Bot) approve(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(chatID, "Usage: /approve <id> <plan>, e.g. /approve ID0001 Money")
		return
	}
	m, err := b.subs.SetPlan(ctx, fields[0], fields[1], 0)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}

	body := fmt.Sprintf("Your %s subscription is active", m.Plan)
	if m.PlanExpiry != nil {
		body += fmt.Sprintf(" until %s", m.PlanExpiry.Format("2006-01-02"))
	}
	body += ". Enjoy!"
	sent, err := b.notifier.Notify(ctx, m, domain.NotificationApproved, body)
	if err != nil {
		b.log.Error("approval notification failed", "member", string(m.ID), "err", err)
	}

	text := fmt.Sprintf("%s is now on %s.", m.ID, m.Plan)
	if !sent {
		text += " The member could not be notified."
	}
	b.reply(chatID, text)
}

func (b *Bot) showHistory(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /history <id>")
		return
	}
	recs, err := b.notifier.History(ctx, args, 10)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	if len(recs) == 0 {
		b.reply(chatID, "No notifications on record.")
		return
	}
	var sb strings.Builder
	for _, rec := range recs {
		fmt.Fprintf(&sb, "%s  [%s]  %s\n", rec.SentAt.Format("2006-01-02 15:04"), rec.Kind, rec.Body)
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) promote(ctx context.Context, chatID int64, actor domain.ExternalAccountID, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /addadmin <id>")
		return
	}
	a, err := b.authz.Promote(ctx, actor, args)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("%s (%s) is now an administrator.", a.DisplayName, a.MemberID))
}

func (b *Bot) demote(ctx context.Context, chatID int64, actor domain.ExternalAccountID, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /removeadmin <id>")
		return
	}
	if err := b.authz.Demote(ctx, actor, args); err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, "Administrator rights removed.")
}

func (b *Bot) listAdmins(ctx context.Context, chatID int64) {
	as, err := b.authz.ListAdmins(ctx)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	var sb strings.Builder
	for _, a := range as {
		role := "admin"
		if a.IsSuper {
			role = "super-admin"
		}
		fmt.Fprintf(&sb, "%s  %s  (%s)\n", a.MemberID, a.DisplayName, role)
	}
	b.reply(chatID, sb.String())
}

// --- rendering ---

func renderProfile(m domain.Member) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Member %s\n%s\nPhone: %s\nBorn: %d\nAffiliation: %s\nPlan: %s",
		m.ID, m.FullName(), m.Phone, m.BirthYear, m.Affiliation, m.Plan)
	if m.PlanExpiry != nil {
		fmt.Fprintf(&sb, " (until %s)", m.PlanExpiry.Format("2006-01-02"))
	}
	if !m.IsActive {
		sb.WriteString("\nStatus: deactivated")
	}
	return sb.String()
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("reply failed", "chat", chatID, "err", err)
	}
}

// askPhone prompts for a phone number with the contact-share button, the
// platform's native proof of number ownership. Typed numbers work too.
func (b *Bot) askPhone(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("Share my phone")),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("reply failed", "chat", chatID, "err", err)
	}
}

// replyErr renders an application error for the chat. Storage and transport
// details stay in the logs.
func (b *Bot) replyErr(chatID int64, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindValidation, apperr.KindConflict, apperr.KindNotFound, apperr.KindForbidden:
			b.reply(chatID, ae.Message)
			return
		}
	}
	b.log.Error("command failed", "chat", chatID, "err", err)
	b.reply(chatID, "Something went wrong. Please try again later.")
}
