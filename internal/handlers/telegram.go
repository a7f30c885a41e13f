package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/present"
	"pdf-podcaster/internal/reconcile"
)

const botListLimit = 10

// BotAPI is the part of tgbotapi.BotAPI the command loop uses.
type BotAPI interface {
	notice.Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// StartTelegramBot answers operator commands until ctx is done.
func (h *Handlers) StartTelegramBot(ctx context.Context, bot BotAPI) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil { // ignore any non-Message updates
			continue
		}
		h.handleBotMessage(ctx, bot, update.Message)
	}
}

func (h *Handlers) reply(bot notice.Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	if _, err := bot.Send(msg); err != nil {
		h.log.WithError(err).Warn("Failed to send Telegram reply")
	}
}

func (h *Handlers) handleBotMessage(ctx context.Context, bot notice.Sender, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}
	log := h.log.WithField("telegram_id", message.From.ID)
	if len(h.operators) > 0 && !h.operators[message.From.ID] {
		log.Warn("Ignoring bot message from user outside the operator allowlist")
		return
	}
	if !message.IsCommand() {
		h.reply(bot, message.Chat.ID, "Open the dashboard to submit episodes. Commands: /list, /status &lt;episode name&gt;")
		return
	}

	log.WithField("command", message.Command()).Info("Bot command")
	switch message.Command() {
	case "start", "help":
		h.reply(bot, message.Chat.ID, "Commands:\n/list recent episodes\n/status &lt;episode name&gt; episode status")
	case "list":
		h.handleListCommand(ctx, bot, message)
	case "status":
		h.handleStatusCommand(ctx, bot, message)
	default:
		h.reply(bot, message.Chat.ID, "I don't know that command")
	}
}

func (h *Handlers) handleListCommand(ctx context.Context, bot notice.Sender, message *tgbotapi.Message) {
	records, err := h.store.ListRecent(ctx, botListLimit)
	if err != nil {
		h.log.WithError(err).Error("Error listing episodes for bot")
		h.reply(bot, message.Chat.ID, "Internal server error")
		return
	}
	if len(records) == 0 {
		h.reply(bot, message.Chat.ID, "No episodes yet.")
		return
	}

	var b strings.Builder
	for _, row := range present.Episodes(records) {
		fmt.Fprintf(&b, "<b>%s</b>: script %s, text files %s, podcast %s\n",
			html.EscapeString(row.EpisodeName),
			html.EscapeString(row.ScriptStatus.Text),
			html.EscapeString(row.TextFilesStatus.Text),
			html.EscapeString(row.PodcastStatus.Text))
	}
	h.reply(bot, message.Chat.ID, b.String())
}

func (h *Handlers) handleStatusCommand(ctx context.Context, bot notice.Sender, message *tgbotapi.Message) {
	name := strings.TrimSpace(message.CommandArguments())
	if name == "" {
		h.reply(bot, message.Chat.ID, "Usage: /status &lt;episode name&gt;")
		return
	}

	rec, err := h.store.FindByEpisodeName(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		h.reply(bot, message.Chat.ID, fmt.Sprintf("No episode named <b>%s</b>.", html.EscapeString(name)))
		return
	}
	if err != nil {
		h.log.WithError(err).Error("Error looking up episode for bot")
		h.reply(bot, message.Chat.ID, "Internal server error")
		return
	}

	page := present.Render(reconcile.New(rec.EpisodeName).ApplyInitial(rec).View)
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(page.EpisodeName))
	fmt.Fprintf(&b, "Script: %s\n", html.EscapeString(page.ScriptStatus.Text))
	fmt.Fprintf(&b, "Text files: %s\n", html.EscapeString(page.TextFilesStatus.Text))
	fmt.Fprintf(&b, "Podcast: %s\n", html.EscapeString(page.PodcastStatus.Text))
	if page.Banner != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(page.Banner))
	}
	for _, l := range page.Assets {
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", html.EscapeString(l.URL), html.EscapeString(l.Label))
	}
	h.reply(bot, message.Chat.ID, b.String())
}
