// Package notification pushes signal alerts to external channels.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dnse-trading-bot/internal/logging"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotifySignal NotificationType = "signal"
	NotifyError  NotificationType = "error"
	NotifyInfo   NotificationType = "info"
)

// Notification is one outbound message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// Notifier is one delivery channel.
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to all enabled providers. Delivery
// failures are logged per provider; the last error is returned so
// callers can decide whether to care.
type Manager struct {
	notifiers []Notifier
	logger    *logging.Logger
}

// NewManager creates an empty notification manager.
func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{logger: logger.WithComponent("notification")}
}

// AddNotifier registers a delivery channel.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers the notification to every enabled provider.
func (m *Manager) Send(notification *Notification) error {
	var lastErr error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(notification); err != nil {
			m.logger.Warn("Notification delivery failed", "provider", n.Name(), "error", err.Error())
			lastErr = err
		}
	}
	return lastErr
}

// SendSignal formats and sends a trading-signal alert.
func (m *Manager) SendSignal(symbol, side string, price, stopLoss, takeProfit float64, reason string) error {
	emoji := "🟢"
	if side == "SELL" {
		emoji = "🔴"
	}

	return m.Send(&Notification{
		Type:      NotifySignal,
		Title:     fmt.Sprintf("%s Signal: %s", emoji, symbol),
		Message:   fmt.Sprintf("%s %s @ %.0f\nSL: %.0f | TP: %.0f\n%s", side, symbol, price, stopLoss, takeProfit, reason),
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now(),
	})
}

// SendError sends an error notification.
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// SendInfo sends an informational notification, used for startup and
// connectivity changes.
func (m *Manager) SendInfo(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyInfo,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends notifications via a Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration.
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// NewTelegramNotifier creates a Telegram notifier. It is disabled unless
// both token and chat id are set.
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		apiBase:  telegramAPIBase,
		enabled:  config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
