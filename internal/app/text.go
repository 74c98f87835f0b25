package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maaaruch/tg-award-bot/internal/domain"
	"github.com/maaaruch/tg-award-bot/internal/workflow"
)

const helpText = "Award nominations bot.\n\n" +
	"/award @user1 @user2 | Medal | Reason – nominate members (nominators only)\n" +
	"/award – same, step by step\n" +
	"/nomination ID – show a nomination\n" +
	"/awards – your awards in this chat\n" +
	"/cancel – drop a nomination draft\n\n" +
	"Approvers resolve nominations with the ✅ / ❌ buttons."

// parseAwardArgs splits "mentions | medal | reason". Reason may be omitted,
// mentions and medal may not.
func parseAwardArgs(s string) (mentions, medal, reason string, ok bool) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) < 2 {
		return "", "", "", false
	}
	mentions = strings.TrimSpace(parts[0])
	medal = strings.TrimSpace(parts[1])
	if len(parts) == 3 {
		reason = strings.TrimSpace(parts[2])
	}
	if mentions == "" || medal == "" {
		return "", "", "", false
	}
	return mentions, medal, reason, true
}

// commandArgs drops the leading "/command" token.
func commandArgs(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	i := strings.IndexAny(text, " \t\n")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i+1:])
}

// expandTextMentions replaces every text_mention span (a mention of a user
// without a username) with "<@id>" so the workflow sees a plain token.
// Entity offsets count UTF-16 code units.
func expandTextMentions(text string, entities []tgbotapi.MessageEntity) string {
	var spans []tgbotapi.MessageEntity
	for _, e := range entities {
		if e.Type == "text_mention" && e.User != nil {
			spans = append(spans, e)
		}
	}
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Offset > spans[j].Offset })

	units := utf16.Encode([]rune(text))
	for _, e := range spans {
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
			continue
		}
		repl := utf16.Encode([]rune(fmt.Sprintf(" <@%d> ", e.User.ID)))
		next := make([]uint16, 0, len(units)-e.Length+len(repl))
		next = append(next, units[:e.Offset]...)
		next = append(next, repl...)
		next = append(next, units[e.Offset+e.Length:]...)
		units = next
	}
	return string(utf16.Decode(units))
}

func parseCallbackData(data string) (workflow.Decision, string, bool) {
	prefix, id, found := strings.Cut(data, ":")
	if !found || strings.TrimSpace(id) == "" {
		return "", "", false
	}
	d, err := workflow.ParseDecision(prefix)
	if err != nil {
		return "", "", false
	}
	return d, strings.TrimSpace(id), true
}

func decisionKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", "approve:"+id),
			tgbotapi.NewInlineKeyboardButtonData("❌ Deny", "deny:"+id),
		),
	)
}

func nominationCard(n domain.Nomination) string {
	users := n.Users
	if len(users) == 0 {
		users = n.UserIDs
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎖️ Award Nomination #%s\n", n.ID))
	sb.WriteString(fmt.Sprintf("Nominated: %s\n", strings.Join(users, ", ")))
	sb.WriteString(fmt.Sprintf("Medal: %s\n", n.Medal))
	if n.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", n.Reason))
	}
	sb.WriteString(fmt.Sprintf("Nominated by: %s", n.Nominator))

	switch n.Status {
	case domain.StatusApproved:
		sb.WriteString(fmt.Sprintf("\n\nStatus: approved by %s", n.ResolvedBy))
	case domain.StatusDenied:
		sb.WriteString(fmt.Sprintf("\n\nStatus: denied by %s", n.ResolvedBy))
	}
	return sb.String()
}

func resolvedText(res workflow.ResolveResult, actor domain.Actor, out grantOutcome) string {
	n := res.Nomination
	var head string
	if res.Status == domain.StatusApproved {
		head = fmt.Sprintf("✅ Nomination #%s approved by %s. Role %s granted.", n.ID, mention(actor), n.Medal)
		if len(out.Skipped) > 0 {
			head += fmt.Sprintf("\nNot found in this chat: %s", strings.Join(out.Skipped, ", "))
		}
		if out.Failed {
			head += "\nSome roles could not be saved, check the logs."
		}
	} else {
		head = fmt.Sprintf("❌ Nomination #%s denied by %s.", n.ID, mention(actor))
	}

	card := n
	card.Status = domain.StatusPending
	return head + "\n\n" + nominationCard(card)
}

func mention(a domain.Actor) string {
	if a.Username != "" {
		return "@" + a.Username
	}
	return a.DisplayName()
}

// userMessage maps workflow errors to the short text shown in chat.
func userMessage(err error) string {
	var aerr *workflow.AuthorizationError
	switch {
	case errors.As(err, &aerr):
		if aerr.Group == domain.GroupApprover {
			return "You are not authorized to approve or deny awards."
		}
		return "Only nominators can nominate members."
	case errors.Is(err, workflow.ErrUnauthorized):
		return "You are not authorized to do that."
	case errors.Is(err, workflow.ErrValidation):
		return "Please mention valid users and name the medal."
	case errors.Is(err, workflow.ErrNotFoundOrResolved):
		return "Invalid or already processed nomination."
	case errors.Is(err, workflow.ErrPersistence):
		return "Could not save the nomination, please try again later."
	default:
		return "Something went wrong, please try again."
	}
}
