// Package telegram implements transport.Sender over the Telegram Bot API.
// It exists for batches whose recipient identities are numeric chat IDs
// (e.g. an internal announcement list) rather than phone numbers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"wablast/internal/transport"
	"wablast/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Sender{bot: bot, log: log}, nil
}

func (s *Sender) Send(ctx context.Context, to transport.Target, text string, att *transport.Attachment) error {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(to.Identity, "+"), 10, 64)
	if err != nil {
		return transport.Permanent(fmt.Errorf("telegram: identity %q is not a chat id", to.Identity))
	}
	rcpt := tele.ChatID(chatID)

	if att != nil {
		photo := &tele.Photo{Caption: text}
		switch {
		case att.Path != "":
			photo.File = tele.FromDisk(att.Path)
		case att.URL != "":
			photo.File = tele.FromURL(att.URL)
		}
		_, err = s.bot.Send(rcpt, photo)
	} else {
		_, err = s.bot.Send(rcpt, text)
	}
	if err == nil {
		s.log.Debug("message accepted", logx.Int64("chat_id", chatID))
		return nil
	}
	return classify(err)
}

// classify maps telebot errors into the transport taxonomy. Telegram flood
// waits and server-side errors are retryable; everything the API rejects
// outright (bad chat, blocked bot, oversized media) is permanent.
func classify(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.SendError{Class: transport.ClassTransient, StatusCode: 429, Err: err}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return &transport.SendError{Class: transport.ClassTransient, StatusCode: apiErr.Code, Err: err}
		}
		return &transport.SendError{Class: transport.ClassPermanent, StatusCode: apiErr.Code, Err: err}
	}
	// Raw transport failure (connection reset, timeout).
	return transport.Transient(err)
}
