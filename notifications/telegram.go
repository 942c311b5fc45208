// Package notifications pushes operator alerts to Telegram. Alerts are
// best-effort: a dead bot never blocks trading.
package notifications

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradewin/config"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends alert messages to a Telegram chat.
type TelegramNotifier struct {
	enabled  bool
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier from configuration. A disabled
// or unconfigured notifier silently drops messages.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Send delivers one message, retrying transient failures with a short
// backoff. Failures are logged and swallowed.
func (n *TelegramNotifier) Send(msg string) {
	if !n.enabled {
		return
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, n.botToken)
	form := url.Values{
		"chat_id": {n.chatID},
		"text":    {msg},
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<attempt) * time.Second)
		}
		resp, err := n.client.Post(endpoint, "application/x-www-form-urlencoded",
			strings.NewReader(form.Encode()))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("telegram API status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			log.Printf("⚠️  Telegram API rejected message: status %d", resp.StatusCode)
		}
		return
	}
	log.Printf("⚠️  Telegram alert failed after retries: %v", lastErr)
}
