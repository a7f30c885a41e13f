package notice

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Sender is the part of tgbotapi.BotAPI the sink needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink mirrors notices of at least a given importance into a
// Telegram chat.
type TelegramSink struct {
	bot    Sender
	chatID int64
	log    logrus.FieldLogger
}

func NewTelegramSink(bot Sender, chatID int64, log logrus.FieldLogger) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID, log: log}
}

// Notify sends success, warning and error notices. Info notices stay in
// the dashboard.
func (s *TelegramSink) Notify(_ context.Context, n Notice) {
	if n.Level == LevelInfo || n.Level == "" {
		return
	}
	msg := tgbotapi.NewMessage(s.chatID, FormatHTML(n))
	msg.ParseMode = "HTML"
	if _, err := s.bot.Send(msg); err != nil {
		s.log.WithError(err).WithField("title", n.Title).Warn("Failed to send Telegram notice")
	}
}

var levelMarks = map[Level]string{
	LevelSuccess: "✅",
	LevelWarning: "⚠️",
	LevelError:   "❌",
}

// FormatHTML renders a notice for Telegram's HTML parse mode.
func FormatHTML(n Notice) string {
	text := fmt.Sprintf("<b>%s</b>", html.EscapeString(n.Title))
	if mark, ok := levelMarks[n.Level]; ok {
		text = mark + " " + text
	}
	if n.Description != "" {
		text += "\n" + html.EscapeString(n.Description)
	}
	return text
}
