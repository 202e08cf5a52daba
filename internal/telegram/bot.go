package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxMessageLen = 4000
	defaultPollTimeout   = 30 * time.Second
	defaultRetryDelay    = 3 * time.Second

	longReplyNotice = "결과가 너무 길어 파일로 첨부합니다. 아래 파일을 다운로드해주세요."
)

// Handler turns one command text into a reply.
type Handler interface {
	Execute(ctx context.Context, text string) string
}

type BotOptions struct {
	AllowedChatIDs []int64
	PollTimeout    time.Duration
	MaxMessageLen  int
	RetryDelay     time.Duration
}

// Bot long-polls getUpdates and feeds text messages from allowed chats to the
// handler one at a time.
type Bot struct {
	client      *Client
	handler     Handler
	allowed     map[int64]struct{}
	pollTimeout time.Duration
	maxLen      int
	retryDelay  time.Duration
	log         *logrus.Entry
	now         func() time.Time
}

func NewBot(client *Client, handler Handler, opts BotOptions, log *logrus.Entry) *Bot {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	allowed := make(map[int64]struct{}, len(opts.AllowedChatIDs))
	for _, id := range opts.AllowedChatIDs {
		allowed[id] = struct{}{}
	}
	b := &Bot{
		client:      client,
		handler:     handler,
		allowed:     allowed,
		pollTimeout: opts.PollTimeout,
		maxLen:      opts.MaxMessageLen,
		retryDelay:  opts.RetryDelay,
		log:         log.WithField("component", "telegram"),
		now:         time.Now,
	}
	if b.pollTimeout <= 0 {
		b.pollTimeout = defaultPollTimeout
	}
	if b.maxLen <= 0 {
		b.maxLen = defaultMaxMessageLen
	}
	if b.retryDelay <= 0 {
		b.retryDelay = defaultRetryDelay
	}
	return b
}

// Run polls until ctx is cancelled. Poll failures are logged and retried after
// a short delay.
func (b *Bot) Run(ctx context.Context) error {
	b.log.WithField("event", "bot_started").Info("waiting for commands")
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			b.log.WithField("event", "poll_failed").WithError(err).Warn("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.handleUpdate(ctx, u)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" || strings.HasPrefix(text, "/") {
		return
	}
	fields := logrus.Fields{"event": "command_received", "chat_id": msg.Chat.ID}
	if _, ok := b.allowed[msg.Chat.ID]; !ok {
		fields["event"] = "chat_rejected"
		b.log.WithFields(fields).Warn("message from chat not in allowed_chat_ids")
		return
	}
	b.log.WithFields(fields).WithField("text", text).Info("command received")
	result := b.handler.Execute(ctx, text)
	if err := b.reply(ctx, msg.Chat.ID, result); err != nil {
		b.log.WithFields(logrus.Fields{"event": "reply_failed", "chat_id": msg.Chat.ID}).WithError(err).Error("reply failed")
	}
}

// reply sends result inline, or as output_<unix>.txt after a short notice when
// it is longer than the message limit. Blank results are not sent.
func (b *Bot) reply(ctx context.Context, chatID int64, result string) error {
	chat := strconv.FormatInt(chatID, 10)
	if utf8.RuneCountInString(result) <= b.maxLen {
		if strings.TrimSpace(result) == "" {
			return nil
		}
		return b.client.SendMessage(ctx, chat, result)
	}
	if err := b.client.SendMessage(ctx, chat, longReplyNotice); err != nil {
		return err
	}
	name := fmt.Sprintf("output_%d.txt", b.now().Unix())
	return b.client.SendDocument(ctx, chat, name, []byte(result), "")
}
