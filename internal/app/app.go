package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/maaaruch/tg-award-bot/internal/domain"
	"github.com/maaaruch/tg-award-bot/internal/session"
	"github.com/maaaruch/tg-award-bot/internal/storage"
	"github.com/maaaruch/tg-award-bot/internal/workflow"
)

// Bot is the part of *tgbotapi.BotAPI the app uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// GrantRecorder counts role grants carried out for approved nominations.
type GrantRecorder interface {
	RoleGranted()
	RoleSkipped()
}

type App struct {
	bot         Bot
	flow        *workflow.Workflow
	nominations *storage.NominationStore
	ledger      *storage.Ledger
	sessions    *session.Manager
	grants      GrantRecorder
	log         zerolog.Logger
	now         func() time.Time
}

func New(bot Bot, flow *workflow.Workflow, nominations *storage.NominationStore, ledger *storage.Ledger, grants GrantRecorder, log zerolog.Logger) *App {
	return &App{
		bot:         bot,
		flow:        flow,
		nominations: nominations,
		ledger:      ledger,
		sessions:    session.NewManager(),
		grants:      grants,
		log:         log.With().Str("component", "app").Logger(),
		now:         time.Now,
	}
}

// Run handles updates one at a time until ctx is done or the update channel
// closes.
func (a *App) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				return
			}
			a.handleUpdate(update)
		}
	}
}

func (a *App) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		a.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		a.handleCallback(update.CallbackQuery)
	}
}

func actorFrom(u *tgbotapi.User) domain.Actor {
	return domain.Actor{
		UserID:   u.ID,
		Username: u.UserName,
		Name:     strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
}

func (a *App) rememberMember(chatID int64, u *tgbotapi.User) {
	if u == nil || u.IsBot {
		return
	}
	err := a.ledger.UpsertMember(domain.Member{
		ChatID:      chatID,
		UserID:      u.ID,
		Username:    u.UserName,
		DisplayName: actorFrom(u).DisplayName(),
	})
	if err != nil {
		a.log.Warn().Err(err).Int64("chat_id", chatID).Int64("user_id", u.ID).Msg("remember member")
	}
}

func (a *App) send(c tgbotapi.Chattable) {
	if _, err := a.bot.Send(c); err != nil {
		a.log.Warn().Err(err).Msg("send")
	}
}

func (a *App) reply(chatID int64, text string) {
	a.send(tgbotapi.NewMessage(chatID, text))
}

// ---------- Updates ----------

func (a *App) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	a.rememberMember(msg.Chat.ID, msg.From)
	for _, e := range msg.Entities {
		if e.Type == "text_mention" && e.User != nil {
			a.rememberMember(msg.Chat.ID, e.User)
		}
	}

	if !msg.IsCommand() {
		// draft started by a bare /award
		sess, ok := a.sessions.Peek(msg.From.ID)
		if ok && sess.AwaitingAward && sess.DraftChatID == msg.Chat.ID && strings.TrimSpace(msg.Text) != "" {
			sess.Reset()
			a.createNomination(msg, expandTextMentions(msg.Text, msg.Entities))
		}
		return
	}

	sess := a.sessions.Get(msg.From.ID)

	switch msg.Command() {
	case "start", "help":
		a.reply(msg.Chat.ID, helpText)

	case "award":
		args := commandArgs(expandTextMentions(msg.Text, msg.Entities))
		if args == "" {
			sess.StartDraft(msg.Chat.ID)
			a.reply(msg.Chat.ID, "Send the nomination in one message:\n@user1 @user2 | Medal | Reason\n\n/cancel to stop.")
			return
		}
		sess.Reset()
		a.createNomination(msg, args)

	case "cancel":
		if sess.AwaitingAward {
			sess.Reset()
			a.reply(msg.Chat.ID, "Nomination cancelled.")
			return
		}
		a.reply(msg.Chat.ID, "Nothing to cancel.")

	case "nomination":
		a.handleShowNomination(msg)

	case "awards":
		a.handleMyAwards(msg)

	default:
		a.reply(msg.Chat.ID, "Unknown command. Try /help")
	}
}

func (a *App) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}

	decision, id, ok := parseCallbackData(cq.Data)
	if !ok {
		_, _ = a.bot.Request(tgbotapi.NewCallback(cq.ID, ""))
		return
	}

	var chatID int64
	if cq.Message != nil && cq.Message.Chat != nil {
		chatID = cq.Message.Chat.ID
		a.rememberMember(chatID, cq.From)
	}

	actor := actorFrom(cq.From)
	res, err := a.flow.Resolve(actor, id, decision)
	if err != nil {
		_, _ = a.bot.Request(tgbotapi.NewCallbackWithAlert(cq.ID, userMessage(err)))
		return
	}
	_, _ = a.bot.Request(tgbotapi.NewCallback(cq.ID, ""))

	var out grantOutcome
	if res.Directive.Kind == workflow.DirectiveGrantRole {
		if chatID == 0 {
			a.log.Warn().Str("nomination_id", id).Msg("approved without a chat, role not granted")
		} else {
			out = a.applyGrant(chatID, id, res.Directive)
		}
	}

	if cq.Message == nil || chatID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, cq.Message.MessageID, resolvedText(res, actor, out))
	a.send(edit)
}

// ---------- Commands ----------

func (a *App) createNomination(msg *tgbotapi.Message, args string) {
	mentions, medal, reason, ok := parseAwardArgs(args)
	if !ok {
		a.reply(msg.Chat.ID, "Format: /award @user1 @user2 | Medal | Reason")
		return
	}

	_, n, err := a.flow.Create(actorFrom(msg.From), mentions, medal, reason)
	if err != nil {
		a.reply(msg.Chat.ID, userMessage(err))
		return
	}

	m := tgbotapi.NewMessage(msg.Chat.ID, nominationCard(n))
	m.ReplyMarkup = decisionKeyboard(n.ID)
	a.send(m)
}

func (a *App) handleShowNomination(msg *tgbotapi.Message) {
	id := strings.TrimSpace(msg.CommandArguments())
	if id == "" {
		a.reply(msg.Chat.ID, "Format: /nomination ID")
		return
	}

	n, err := a.nominations.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.reply(msg.Chat.ID, "Nomination not found.")
		} else {
			a.log.Error().Err(err).Str("nomination_id", id).Msg("get nomination")
			a.reply(msg.Chat.ID, "Could not load the nomination.")
		}
		return
	}

	m := tgbotapi.NewMessage(msg.Chat.ID, nominationCard(n))
	if n.Pending() {
		m.ReplyMarkup = decisionKeyboard(n.ID)
	}
	a.send(m)
}

func (a *App) handleMyAwards(msg *tgbotapi.Message) {
	roles, err := a.ledger.ListMemberRoles(msg.Chat.ID, msg.From.ID)
	if err != nil {
		a.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("list member roles")
		a.reply(msg.Chat.ID, "Could not load your awards.")
		return
	}
	if len(roles) == 0 {
		a.reply(msg.Chat.ID, "You have no awards in this chat yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your awards:\n")
	for _, r := range roles {
		sb.WriteString(fmt.Sprintf("🎖️ %s (nomination #%s, %s)\n", r.RoleName, r.NominationID, r.GrantedAt.Format("2006-01-02")))
	}
	a.reply(msg.Chat.ID, sb.String())
}

// ---------- Directives ----------

type grantOutcome struct {
	Role    string
	Granted []string
	Skipped []string
	Failed  bool
}

// applyGrant gives the award role to every target that is a known member of
// chatID. Unknown targets are skipped.
func (a *App) applyGrant(chatID int64, nominationID string, d workflow.Directive) grantOutcome {
	out := grantOutcome{Role: d.RoleName}
	lg := a.log.With().Str("nomination_id", nominationID).Str("role", d.RoleName).Int64("chat_id", chatID).Logger()

	role, err := a.ledger.EnsureRole(chatID, d.RoleName)
	if err != nil {
		lg.Error().Err(err).Msg("ensure role")
		out.Failed = true
		return out
	}

	for _, ref := range d.UserIDs {
		m, err := a.ledger.ResolveMember(chatID, ref)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				lg.Error().Err(err).Str("user_ref", ref).Msg("resolve member")
				out.Failed = true
			} else {
				lg.Info().Str("user_ref", ref).Msg("member not found, skipping")
			}
			out.Skipped = append(out.Skipped, ref)
			if a.grants != nil {
				a.grants.RoleSkipped()
			}
			continue
		}

		added, err := a.ledger.GrantRole(role.ID, m.UserID, nominationID, a.now())
		if err != nil {
			lg.Error().Err(err).Int64("user_id", m.UserID).Msg("grant role")
			out.Failed = true
			continue
		}
		out.Granted = append(out.Granted, ref)
		if added && a.grants != nil {
			a.grants.RoleGranted()
		}
	}
	return out
}
