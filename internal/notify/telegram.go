package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// TelegramNotifier sends alert and trade notifications through the
// Telegram bot API. Delivery is best-effort: failures are logged and
// never propagate to the caller.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
	log      zerolog.Logger
}

// NewTelegramNotifier creates a Telegram notifier. An empty bot token
// returns nil, which callers treat as notifications disabled.
func NewTelegramNotifier(botToken, chatID string, log zerolog.Logger) *TelegramNotifier {
	if botToken == "" || chatID == "" {
		return nil
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log.With().Str("service", "telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Notify sends a message. Errors are logged, never returned.
func (n *TelegramNotifier) Notify(ctx context.Context, title, message string) {
	payload := sendMessageRequest{
		ChatID:    n.chatID,
		Text:      fmt.Sprintf("*%s*\n%s", title, message),
		ParseMode: "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Msg("Failed to marshal notification")
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.log.Error().Err(err).Msg("Failed to create notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn().Err(err).Msg("Failed to deliver notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.Warn().Int("status", resp.StatusCode).Msg("Telegram API rejected notification")
		return
	}

	n.log.Debug().Str("title", title).Msg("Notification delivered")
}
