package app

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/maaaruch/tg-award-bot/internal/config"
	"github.com/maaaruch/tg-award-bot/internal/domain"
	"github.com/maaaruch/tg-award-bot/internal/storage"
	"github.com/maaaruch/tg-award-bot/internal/workflow"
)

const testChat int64 = -100

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeBot) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	switch c := f.sent[len(f.sent)-1].(type) {
	case tgbotapi.MessageConfig:
		return c.Text
	case tgbotapi.EditMessageTextConfig:
		return c.Text
	default:
		t.Fatalf("unexpected chattable %T", c)
		return ""
	}
}

func (f *fakeBot) lastCallback(t *testing.T) tgbotapi.CallbackConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatalf("no requests")
	}
	cb, ok := f.requests[len(f.requests)-1].(tgbotapi.CallbackConfig)
	if !ok {
		t.Fatalf("last request is %T", f.requests[len(f.requests)-1])
	}
	return cb
}

type grantCounter struct{ granted, skipped int }

func (g *grantCounter) RoleGranted() { g.granted++ }
func (g *grantCounter) RoleSkipped() { g.skipped++ }

type fixture struct {
	app    *App
	bot    *fakeBot
	store  *storage.NominationStore
	ledger *storage.Ledger
	grants *grantCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := sql.Open("sqlite3", filepath.Join(dir, "awards.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	ledger := storage.NewLedger(db)
	if err := ledger.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	store, err := storage.OpenNominationStore(filepath.Join(dir, "nominations.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	perms := config.NewPermissionTable([]string{"@alice"}, []string{"2"})
	flow := workflow.New(store, perms, zerolog.Nop(), nil)

	bot := &fakeBot{updates: make(chan tgbotapi.Update, 8)}
	grants := &grantCounter{}
	a := New(bot, flow, store, ledger, grants, zerolog.Nop())
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	return &fixture{app: a, bot: bot, store: store, ledger: ledger, grants: grants}
}

var (
	userAlice = &tgbotapi.User{ID: 1, UserName: "alice", FirstName: "Alice"}
	userBob   = &tgbotapi.User{ID: 2, UserName: "bob", FirstName: "Bob"}
	userCarol = &tgbotapi.User{ID: 3, UserName: "carol"}
	user111   = &tgbotapi.User{ID: 111, UserName: "erin", FirstName: "Erin"}
	user222   = &tgbotapi.User{ID: 222, FirstName: "Frank"}
)

func textMsg(from *tgbotapi.User, text string) *tgbotapi.Message {
	return &tgbotapi.Message{MessageID: 1, From: from, Chat: &tgbotapi.Chat{ID: testChat}, Text: text}
}

func commandMsg(from *tgbotapi.User, text string, extra ...tgbotapi.MessageEntity) *tgbotapi.Message {
	cmd := text
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		cmd = text[:i]
	}
	m := textMsg(from, text)
	m.Entities = append([]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}, extra...)
	return m
}

func click(from *tgbotapi.User, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    from,
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 55, Chat: &tgbotapi.Chat{ID: testChat}},
	}
}

func TestApp_NominateApproveGrant(t *testing.T) {
	f := newFixture(t)

	// targets have been seen in the chat
	f.app.handleMessage(textMsg(user111, "hi"))
	f.app.handleMessage(textMsg(user222, "hello"))

	f.app.handleMessage(commandMsg(userAlice, "/award <@111> <@222> | Gold | great work"))

	card := f.bot.lastText(t)
	if !strings.Contains(card, "Award Nomination #1") || !strings.Contains(card, "Medal: Gold") {
		t.Fatalf("unexpected card: %s", card)
	}
	msg := f.bot.sent[len(f.bot.sent)-1].(tgbotapi.MessageConfig)
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("expected approve/deny keyboard, got %#v", msg.ReplyMarkup)
	}
	if *kb.InlineKeyboard[0][0].CallbackData != "approve:1" || *kb.InlineKeyboard[0][1].CallbackData != "deny:1" {
		t.Fatalf("unexpected callback data: %v / %v", *kb.InlineKeyboard[0][0].CallbackData, *kb.InlineKeyboard[0][1].CallbackData)
	}

	f.app.handleCallback(click(userBob, "approve:1"))

	if cb := f.bot.lastCallback(t); cb.ShowAlert {
		t.Fatalf("approval should not alert: %+v", cb)
	}
	edited := f.bot.lastText(t)
	if !strings.Contains(edited, "approved by @bob") || !strings.Contains(edited, "Role Gold granted") {
		t.Fatalf("unexpected edit: %s", edited)
	}
	if _, ok := f.bot.sent[len(f.bot.sent)-1].(tgbotapi.EditMessageTextConfig); !ok {
		t.Fatalf("expected the card to be edited")
	}

	for _, uid := range []int64{111, 222} {
		roles, err := f.ledger.ListMemberRoles(testChat, uid)
		if err != nil {
			t.Fatalf("ListMemberRoles: %v", err)
		}
		if len(roles) != 1 || roles[0].RoleName != "Gold" || roles[0].NominationID != "1" {
			t.Fatalf("user %d roles: %+v", uid, roles)
		}
	}
	if f.grants.granted != 2 || f.grants.skipped != 0 {
		t.Fatalf("unexpected grant counts: %+v", f.grants)
	}

	n, _ := f.store.Get("1")
	if n.Status != domain.StatusApproved || n.ResolvedBy != "bob" {
		t.Fatalf("unexpected record: %+v", n)
	}

	// second click: already processed
	f.app.handleCallback(click(userBob, "deny:1"))
	cb := f.bot.lastCallback(t)
	if !cb.ShowAlert || cb.Text != "Invalid or already processed nomination." {
		t.Fatalf("unexpected callback answer: %+v", cb)
	}
}

func TestApp_UnknownTargetsAreSkipped(t *testing.T) {
	f := newFixture(t)

	f.app.handleMessage(textMsg(user111, "hi"))
	f.app.handleMessage(commandMsg(userAlice, "/award @erin @ghost | Silver | ok"))
	f.app.handleCallback(click(userBob, "approve:1"))

	if f.grants.granted != 1 || f.grants.skipped != 1 {
		t.Fatalf("unexpected grant counts: %+v", f.grants)
	}
	if !strings.Contains(f.bot.lastText(t), "Not found in this chat: ghost") {
		t.Fatalf("edit should list skipped targets: %s", f.bot.lastText(t))
	}
	roles, _ := f.ledger.ListMemberRoles(testChat, 111)
	if len(roles) != 1 || roles[0].RoleName != "Silver" {
		t.Fatalf("erin should have Silver: %+v", roles)
	}
}

func TestApp_Deny(t *testing.T) {
	f := newFixture(t)

	f.app.handleMessage(textMsg(user111, "hi"))
	f.app.handleMessage(commandMsg(userAlice, "/award <@111> | Gold"))
	f.app.handleCallback(click(userBob, "deny:1"))

	if !strings.Contains(f.bot.lastText(t), "denied by @bob") {
		t.Fatalf("unexpected edit: %s", f.bot.lastText(t))
	}
	roles, _ := f.ledger.ListMemberRoles(testChat, 111)
	if len(roles) != 0 {
		t.Fatalf("deny must not grant roles: %+v", roles)
	}
}

func TestApp_Unauthorized(t *testing.T) {
	f := newFixture(t)

	f.app.handleMessage(commandMsg(userCarol, "/award <@111> | Gold | nope"))
	if got := f.bot.lastText(t); got != "Only nominators can nominate members." {
		t.Fatalf("unexpected reply: %q", got)
	}
	if f.store.Len() != 0 {
		t.Fatalf("no nomination may be created")
	}

	f.app.handleMessage(commandMsg(userAlice, "/award <@111> | Gold | yes"))
	f.app.handleCallback(click(userCarol, "approve:1"))
	cb := f.bot.lastCallback(t)
	if !cb.ShowAlert || cb.Text != "You are not authorized to approve or deny awards." {
		t.Fatalf("unexpected callback answer: %+v", cb)
	}
	n, _ := f.store.Get("1")
	if !n.Pending() {
		t.Fatalf("nomination must stay pending: %+v", n)
	}
}

func TestApp_ValidationAndFormat(t *testing.T) {
	f := newFixture(t)

	f.app.handleMessage(commandMsg(userAlice, "/award <@> | Gold | why"))
	if got := f.bot.lastText(t); got != "Please mention valid users and name the medal." {
		t.Fatalf("unexpected reply: %q", got)
	}

	f.app.handleMessage(commandMsg(userAlice, "/award just words"))
	if got := f.bot.lastText(t); !strings.HasPrefix(got, "Format: /award") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestApp_UnknownNominationCallback(t *testing.T) {
	f := newFixture(t)

	f.app.handleCallback(click(userBob, "approve:999"))
	cb := f.bot.lastCallback(t)
	if !cb.ShowAlert || cb.Text != "Invalid or already processed nomination." {
		t.Fatalf("unexpected callback answer: %+v", cb)
	}

	f.app.handleCallback(click(userBob, "garbage"))
	if cb := f.bot.lastCallback(t); cb.ShowAlert {
		t.Fatalf("garbage data should be acknowledged silently: %+v", cb)
	}
}

func TestApp_DraftFlow(t *testing.T) {
	f := newFixture(t)

	f.app.handleMessage(commandMsg(userAlice, "/award"))
	if got := f.bot.lastText(t); !strings.HasPrefix(got, "Send the nomination") {
		t.Fatalf("unexpected prompt: %q", got)
	}

	name := "Frank"
	f.app.handleMessage(&tgbotapi.Message{
		MessageID: 2,
		From:      userAlice,
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      name + " | Bronze | helped",
		Entities:  []tgbotapi.MessageEntity{{Type: "text_mention", Offset: 0, Length: len(name), User: user222}},
	})

	n, err := f.store.Get("1")
	if err != nil {
		t.Fatalf("draft should create nomination 1: %v", err)
	}
	if len(n.UserIDs) != 1 || n.UserIDs[0] != "222" || n.Medal != "Bronze" {
		t.Fatalf("unexpected nomination: %+v", n)
	}

	// draft is consumed; plain text is ignored again
	before := len(f.bot.sent)
	f.app.handleMessage(textMsg(userAlice, "@x | y | z"))
	if len(f.bot.sent) != before || f.store.Len() != 1 {
		t.Fatalf("plain text after draft must be ignored")
	}

	// the text_mention user became a resolvable member
	f.app.handleCallback(click(userBob, "approve:1"))
	if f.grants.granted != 1 {
		t.Fatalf("text-mentioned user should get the role: %+v", f.grants)
	}
}

func TestApp_Cancel(t *testing.T) {
	f := newFixture(t)

	f.app.handleMessage(commandMsg(userAlice, "/cancel"))
	if got := f.bot.lastText(t); got != "Nothing to cancel." {
		t.Fatalf("unexpected reply: %q", got)
	}

	f.app.handleMessage(commandMsg(userAlice, "/award"))
	f.app.handleMessage(commandMsg(userAlice, "/cancel"))
	if got := f.bot.lastText(t); got != "Nomination cancelled." {
		t.Fatalf("unexpected reply: %q", got)
	}
	f.app.handleMessage(textMsg(userAlice, "<@1> | Gold"))
	if f.store.Len() != 0 {
		t.Fatalf("cancelled draft must not create nominations")
	}
}

func TestApp_ShowNominationAndAwards(t *testing.T) {
	f := newFixture(t)

	f.app.handleMessage(commandMsg(userAlice, "/nomination 1"))
	if got := f.bot.lastText(t); got != "Nomination not found." {
		t.Fatalf("unexpected reply: %q", got)
	}

	f.app.handleMessage(textMsg(user111, "hi"))
	f.app.handleMessage(commandMsg(userAlice, "/award <@111> | Gold | why"))

	f.app.handleMessage(commandMsg(userCarol, "/nomination 1"))
	msg := f.bot.sent[len(f.bot.sent)-1].(tgbotapi.MessageConfig)
	if msg.ReplyMarkup == nil {
		t.Fatalf("pending nomination should carry buttons")
	}

	f.app.handleCallback(click(userBob, "approve:1"))
	f.app.handleMessage(commandMsg(userCarol, "/nomination 1"))
	msg = f.bot.sent[len(f.bot.sent)-1].(tgbotapi.MessageConfig)
	if msg.ReplyMarkup != nil {
		t.Fatalf("resolved nomination must not carry buttons")
	}
	if !strings.Contains(msg.Text, "approved by bob") {
		t.Fatalf("unexpected card: %s", msg.Text)
	}

	f.app.handleMessage(commandMsg(user111, "/awards"))
	if got := f.bot.lastText(t); !strings.Contains(got, "Gold (nomination #1, 2026-01-02)") {
		t.Fatalf("unexpected awards list: %q", got)
	}
	f.app.handleMessage(commandMsg(userCarol, "/awards"))
	if got := f.bot.lastText(t); got != "You have no awards in this chat yet." {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestApp_RunStopsWhenUpdatesClose(t *testing.T) {
	f := newFixture(t)

	f.bot.updates <- tgbotapi.Update{Message: commandMsg(userAlice, "/help")}
	close(f.bot.updates)

	done := make(chan struct{})
	go func() {
		f.app.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
	if got := f.bot.lastText(t); got != helpText {
		t.Fatalf("expected help text, got %q", got)
	}
}

func TestApp_RunStopsOnContext(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.app.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
	f.bot.mu.Lock()
	defer f.bot.mu.Unlock()
	if !f.bot.stopped {
		t.Fatalf("expected StopReceivingUpdates")
	}
}

func TestApp_DuplicateMentionGrantsOnce(t *testing.T) {
	f := newFixture(t)

	f.app.handleMessage(textMsg(user111, "hi"))
	f.app.handleMessage(commandMsg(userAlice, "/award <@111> @erin | Gold"))
	f.app.handleCallback(click(userBob, "approve:1"))

	if f.grants.granted != 1 {
		t.Fatalf("same member mentioned twice must be granted once: %+v", f.grants)
	}
	roles, _ := f.ledger.ListMemberRoles(testChat, 111)
	if len(roles) != 1 {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}
