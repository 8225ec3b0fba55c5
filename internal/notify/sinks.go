package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-executor/internal/api"
	"order-executor/internal/logger"
	"order-executor/internal/types"
)

// LogSink writes every notification to the structured log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(ctx context.Context, n types.Notification) error {
	logger.Info(ctx, "Notification",
		"id", n.ID,
		"kind", n.Kind,
		"order_id", n.OrderID,
		"symbol", n.Symbol,
		"text", n.Text,
	)
	return nil
}

const telegramBaseURL = "https://api.telegram.org"

// TelegramSink posts notifications to a chat through the Bot API.
type TelegramSink struct {
	client *api.Client
	token  string
	chatID string
	retry  api.RetryConfig
}

func NewTelegramSink(token, chatID string, opts ...api.ClientOption) (*TelegramSink, error) {
	if token == "" || chatID == "" {
		return nil, errors.New("telegram sink requires bot token and chat id")
	}
	base := []api.ClientOption{
		api.WithBaseURL(telegramBaseURL),
		api.WithTimeout(10 * time.Second),
		api.WithLogging(logger.IsDebugEnabled()),
		api.WithRedact(token),
	}
	return &TelegramSink{
		client: api.NewClient(append(base, opts...)...),
		token:  token,
		chatID: chatID,
		retry:  api.DefaultRetryConfig(),
	}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *TelegramSink) Send(ctx context.Context, n types.Notification) error {
	resp, err := s.client.PostWithRetry(ctx, "/bot"+s.token+"/sendMessage",
		telegramMessage{ChatID: s.chatID, Text: n.Text}, s.retry)
	if err != nil {
		return err
	}
	var out telegramResponse
	if err := resp.ParseJSON(&out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("telegram rejected message: %s", out.Description)
	}
	return nil
}
