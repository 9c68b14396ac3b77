// Package telegram is the Telegram front end of relaybot.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/roelfdiedericks/relaybot/internal/gateway"
	. "github.com/roelfdiedericks/relaybot/internal/logging"
	"github.com/roelfdiedericks/relaybot/internal/metrics"
)

const (
	greeting      = "Yo! I'm alive."
	helpPrompt    = "Выбери, что хочешь узнать 👇"
	chooseModel   = "🔄 Выбери модель (сейчас: %s):"
	otherBotsText = "🤖 Здесь появятся ссылки на других ботов"
	howToUseText  = "💡 Просто пиши мне, а я отвечаю, как чат с ИИ. Если модель упрётся в лимит, я сам переключусь на другую."
	selectedText  = "✅ Модель выбрана: %s"
	selectFailed  = "⚠️ Не удалось выбрать %s: %v"
)

// Bot represents the Telegram bot
type Bot struct {
	bot     *tele.Bot
	gateway *gateway.Gateway

	menu    *tele.ReplyMarkup
	btnHelp tele.Btn

	help         *tele.ReplyMarkup
	btnChange    tele.Btn
	btnOtherBots tele.Btn
	btnHowToUse  tele.Btn
	btnSelect    tele.Btn

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the bot and registers handlers; polling starts with Start
func New(token string, gw *gateway.Gateway) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	L_debug("telegram: creating bot", "tokenLength", len(token))
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			L_error("telegram: handler error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	L_info("telegram: bot created", "username", bot.Me.Username, "id", bot.Me.ID)

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		bot:     bot,
		gateway: gw,
		ctx:     ctx,
		cancel:  cancel,
	}
	b.buildKeyboards()
	b.setupHandlers()
	return b, nil
}

func (b *Bot) buildKeyboards() {
	b.menu = &tele.ReplyMarkup{ResizeKeyboard: true}
	b.btnHelp = b.menu.Text("Help")
	b.menu.Reply(b.menu.Row(b.btnHelp))

	b.help = &tele.ReplyMarkup{}
	b.btnChange = b.help.Data("🔄 Сменить модель", "change_model")
	b.btnOtherBots = b.help.Data("🤖 Другие боты", "other_bots")
	b.btnHowToUse = b.help.Data("💡 Как пользоваться", "how_to_use")
	b.help.Inline(
		b.help.Row(b.btnChange, b.btnOtherBots),
		b.help.Row(b.btnHowToUse),
	)

	// payload carries the provider name
	b.btnSelect = b.help.Data("", "select_model")
}

// modelKeyboard lists every catalog entry as a selection button
func (b *Bot) modelKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, p := range b.gateway.Controller().Catalog().Providers() {
		label := p.Name
		if !b.gateway.Controller().Limits().IsAvailable(p.Name) {
			label = "⏸ " + label
		}
		rows = append(rows, markup.Row(markup.Data(label, "select_model", p.Name)))
	}
	markup.Inline(rows...)
	return markup
}

func (b *Bot) setupHandlers() {
	b.bot.Handle("/start", func(c tele.Context) error {
		return c.Send(greeting, b.menu)
	})

	b.bot.Handle(&b.btnHelp, func(c tele.Context) error {
		return c.Send(helpPrompt, b.help)
	})

	b.bot.Handle(&b.btnChange, func(c tele.Context) error {
		_ = c.Respond()
		return c.Edit(fmt.Sprintf(chooseModel, b.gateway.Controller().Active().Name), b.modelKeyboard())
	})

	b.bot.Handle(&b.btnOtherBots, func(c tele.Context) error {
		_ = c.Respond()
		return c.Edit(otherBotsText)
	})

	b.bot.Handle(&b.btnHowToUse, func(c tele.Context) error {
		_ = c.Respond()
		return c.Edit(howToUseText)
	})

	b.bot.Handle(&b.btnSelect, func(c tele.Context) error {
		_ = c.Respond()
		name := c.Data()
		// a paused model picked by hand ends its cooldown early
		if err := b.gateway.Controller().Resume(name); err != nil {
			L_warn("telegram: model selection failed", "model", name, "error", err)
			return c.Edit(fmt.Sprintf(selectFailed, name, err))
		}
		return c.Edit(fmt.Sprintf(selectedText, name))
	})

	b.bot.Handle("/status", func(c tele.Context) error {
		return newChatSink(b.bot, c.Chat()).Send(b.gateway.Status().Format(time.Now()))
	})

	b.bot.Handle("/stats", func(c tele.Context) error {
		return newChatSink(b.bot, c.Chat()).Send(gateway.FormatStats(metrics.GetInstance().GetSnapshot()))
	})

	b.bot.Handle(tele.OnText, b.handleMessage)
}

func (b *Bot) handleMessage(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	requester := strconv.FormatInt(sender.ID, 10)

	L_debug("telegram: message received",
		"user", requester,
		"chat", c.Chat().ID,
		"text", truncate(c.Text(), 50),
	)

	outcome := b.gateway.Submit(b.ctx, requester, c.Text(), newChatSink(b.bot, c.Chat()))
	L_trace("telegram: message admitted", "user", requester, "outcome", string(outcome))
	return nil
}

// Start begins long polling in the background
func (b *Bot) Start() {
	L_info("telegram: starting bot")
	go b.bot.Start()
}

// Stop stops polling and cancels in-flight requests
func (b *Bot) Stop() {
	L_info("telegram: stopping bot")
	b.cancel()
	b.bot.Stop()
}

// truncate shortens s to maxLen runes for logging
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
