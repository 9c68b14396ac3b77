package telegram

import (
	tele "gopkg.in/telebot.v4"

	. "github.com/roelfdiedericks/relaybot/internal/logging"
	"github.com/roelfdiedericks/relaybot/internal/metrics"
)

// chatSink delivers replies to one chat, split to fit Telegram's limit and
// sent as HTML with a plain-text fallback.
type chatSink struct {
	chatID int64
	send   func(text string, opts ...interface{}) error
	typing func() error
}

func newChatSink(bot *tele.Bot, chat *tele.Chat) *chatSink {
	return &chatSink{
		chatID: chat.ID,
		send: func(text string, opts ...interface{}) error {
			_, err := bot.Send(chat, text, opts...)
			return err
		},
		typing: func() error {
			return bot.Notify(chat, tele.Typing)
		},
	}
}

func (s *chatSink) Send(text string) error {
	chunks := SplitMessage(text, maxMessage)
	for i, chunk := range chunks {
		if err := s.sendChunk(chunk); err != nil {
			metrics.MetricAdd("telegram", "chunks", int64(i))
			return err
		}
	}
	metrics.MetricAdd("telegram", "chunks", int64(len(chunks)))
	return nil
}

func (s *chatSink) sendChunk(text string) error {
	if formatted, ok := FormatHTML(text); ok {
		err := s.send(formatted, &tele.SendOptions{ParseMode: tele.ModeHTML})
		if err == nil {
			return nil
		}
		L_debug("telegram: HTML send failed, falling back to plain text", "chat", s.chatID, "error", err)
	}
	return s.send(text)
}

func (s *chatSink) SendTyping() error {
	return s.typing()
}
