package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink posts circulation events to the library ops chat.
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

func NewTelegramSink(token string, chatID int64, timeout time.Duration, log *slog.Logger) (*TelegramSink, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &TelegramSink{api: api, chatID: chatID, log: log}, nil
}

func (s *TelegramSink) Publish(_ context.Context, ev Event) {
	var text string
	switch ev.Type {
	case EventReservationReady:
		text = fmt.Sprintf("Reserved copy ready: %q for member %s, claim before %s",
			ev.BookTitle, ev.MemberID, ev.ExpiresAt.Format("2006-01-02 15:04"))
	case EventOverdue:
		text = fmt.Sprintf("Overdue: %q held by member %s, was due %s",
			ev.BookTitle, ev.MemberID, ev.DueAt.Format("2006-01-02"))
	default:
		text = fmt.Sprintf("%s: book %s, member %s", ev.Type, ev.BookID, ev.MemberID)
	}

	msg := tgbotapi.NewMessage(s.chatID, text)
	if _, err := s.api.Send(msg); err != nil {
		s.log.Error("notification send failed", "type", string(ev.Type), "err", err)
	}
}
