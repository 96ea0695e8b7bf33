package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MessageRef identifies a posted message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
	Group     bool // posted with the compact group layout
}

// Sink publishes alerts to a messaging service.
type Sink interface {
	// Post publishes the alert to every destination and returns the posted messages.
	Post(ctx context.Context, a *Alert) ([]MessageRef, error)
	// Update re-renders previously posted messages.
	Update(ctx context.Context, refs []MessageRef, a *Alert) error
	// Notify sends a plain operator notification.
	Notify(ctx context.Context, text string) error
}

// ErrNoDestination is returned when a sink has nowhere to post.
var ErrNoDestination = errors.New("no destination chat configured")

// BotAPI is the subset of tgbotapi.BotAPI used by the sink.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// chat is a destination given either as a numeric id or a @channel name.
type chat struct {
	id       int64
	username string
}

func parseChat(s string) (chat, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return chat{}, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return chat{id: id}, true
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return chat{username: s}, true
}

func (c chat) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if c.username != "" {
		msg = tgbotapi.NewMessageToChannel(c.username, text)
	} else {
		msg = tgbotapi.NewMessage(c.id, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}

// TelegramOptions configures the Telegram sink.
type TelegramOptions struct {
	MasterChat   string   // alert channel
	GroupMirrors []string // chats receiving the compact layout
	AdminChat    string   // operator notifications; defaults to the master chat
	Logger       *zap.Logger
}

// Telegram posts alerts through the Telegram Bot API.
type Telegram struct {
	bot     BotAPI
	master  chat
	mirrors []chat
	admin   chat
	logger  *zap.Logger
}

// Compile-time interface check.
var _ Sink = (*Telegram)(nil)

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, opts TelegramOptions) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramWithBot(bot, opts)
}

// NewTelegramWithBot creates a sink over an existing bot client.
func NewTelegramWithBot(bot BotAPI, opts TelegramOptions) (*Telegram, error) {
	master, ok := parseChat(opts.MasterChat)
	if !ok {
		return nil, ErrNoDestination
	}
	t := &Telegram{bot: bot, master: master, admin: master, logger: opts.Logger}
	if admin, ok := parseChat(opts.AdminChat); ok {
		t.admin = admin
	}
	for _, m := range opts.GroupMirrors {
		if c, ok := parseChat(m); ok && c != master {
			t.mirrors = append(t.mirrors, c)
		}
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	t.logger = t.logger.Named("telegram")
	return t, nil
}

func keyboard(a *Alert) *tgbotapi.InlineKeyboardMarkup {
	if a.Links.Trending == "" {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Book Trending", a.Links.Trending)),
	)
	return &kb
}

// Post sends the full layout to the master channel and the compact one to
// every mirror. Only a master failure is an error.
func (t *Telegram) Post(ctx context.Context, a *Alert) ([]MessageRef, error) {
	msg := t.master.message(a.ChannelText())
	if kb := keyboard(a); kb != nil {
		msg.ReplyMarkup = kb
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return nil, fmt.Errorf("post to master: %w", err)
	}
	refs := []MessageRef{ref(sent, t.master, false)}

	if len(t.mirrors) > 0 {
		groupText := a.GroupText()
		for _, m := range t.mirrors {
			if ctx.Err() != nil {
				break
			}
			sent, err := t.bot.Send(m.message(groupText))
			if err != nil {
				t.logger.Warn("mirror post failed", zap.Int64("chat", m.id), zap.String("channel", m.username), zap.Error(err))
				continue
			}
			refs = append(refs, ref(sent, m, true))
		}
	}
	return refs, nil
}

func ref(m tgbotapi.Message, c chat, group bool) MessageRef {
	r := MessageRef{ChatID: c.id, MessageID: m.MessageID, Group: group}
	if m.Chat != nil && m.Chat.ID != 0 {
		r.ChatID = m.Chat.ID
	}
	return r
}

// Update edits posted messages with a re-rendered alert. Every ref is tried;
// the first error is returned.
func (t *Telegram) Update(ctx context.Context, refs []MessageRef, a *Alert) error {
	var channelText, groupText string
	var firstErr error
	for _, r := range refs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var edit tgbotapi.EditMessageTextConfig
		if r.Group {
			if groupText == "" {
				groupText = a.GroupText()
			}
			edit = tgbotapi.NewEditMessageText(r.ChatID, r.MessageID, groupText)
		} else {
			if channelText == "" {
				channelText = a.ChannelText()
			}
			edit = tgbotapi.NewEditMessageText(r.ChatID, r.MessageID, channelText)
			edit.ReplyMarkup = keyboard(a)
		}
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true

		if _, err := t.bot.Send(edit); err != nil && !notModified(err) && firstErr == nil {
			firstErr = fmt.Errorf("edit %d/%d: %w", r.ChatID, r.MessageID, err)
		}
	}
	return firstErr
}

// Notify sends text to the operator chat.
func (t *Telegram) Notify(_ context.Context, text string) error {
	if _, err := t.bot.Send(t.admin.message(text)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Publish edits the message msgID in chatID with text, or posts a new message
// to the master channel when msgID is 0 or the edit target is gone.
// Returns the chat and message now holding the text.
func (t *Telegram) Publish(_ context.Context, chatID int64, msgID int, text string) (int64, int, error) {
	if msgID > 0 && chatID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true
		_, err := t.bot.Send(edit)
		if err == nil || notModified(err) {
			return chatID, msgID, nil
		}
		t.logger.Warn("leaderboard edit failed, posting new message", zap.Error(err))
	}

	sent, err := t.bot.Send(t.master.message(text))
	if err != nil {
		return 0, 0, fmt.Errorf("publish: %w", err)
	}
	r := ref(sent, t.master, false)
	return r.ChatID, r.MessageID, nil
}

func notModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
