package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"alertrules/internal/config"
	"alertrules/internal/domain"
	"alertrules/internal/permanent"
	"alertrules/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// WebhookChannel is the pseudo-channel used for per-action webhook URLs.
const WebhookChannel = "webhook"

// SendResult returns channel-specific metadata after successful delivery.
type SendResult struct {
	MessageID int
}

// ChannelSender sends one outbound notification to one channel.
// Params: context and rendered notification payload.
// Returns: channel send metadata and transport error when send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, notification domain.Notification) (SendResult, error)
}

// Dispatcher delivers notifications with configured retries/backoff.
// Params: sender per channel, retry policy per channel, and compiled templates.
// Returns: send helper for the action dispatch layer.
type Dispatcher struct {
	senders   map[string]ChannelSender
	retries   map[string]config.NotifyRetry
	templates map[string]*template.Template
	webhook   *WebhookSender
	logger    *slog.Logger
}

// NewDispatcher builds notification dispatcher from enabled channels.
// Params: global notify config and optional logger.
// Returns: dispatcher, or error when a configured template does not compile.
func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		senders:   make(map[string]ChannelSender),
		retries:   make(map[string]config.NotifyRetry),
		templates: make(map[string]*template.Template),
		webhook:   NewWebhookSender(time.Duration(cfg.HTTP.TimeoutSec) * time.Second),
		logger:    logger,
	}
	for _, channel := range config.NotifyChannelNames() {
		for _, named := range config.NotifyChannelTemplates(cfg, channel) {
			name := strings.ToLower(strings.TrimSpace(named.Name))
			body, err := templatefmt.ParseNotificationTemplate("notify."+channel+".name-template."+name, named.Message)
			if err != nil {
				return nil, fmt.Errorf("compile template %s/%s: %w", channel, name, err)
			}
			d.templates[templateKey(channel, name)] = body
		}
		if !config.NotifyChannelEnabled(cfg, channel) {
			continue
		}
		switch channel {
		case config.NotifyChannelTelegram:
			d.senders[channel] = NewTelegramSender(cfg.Telegram)
		case config.NotifyChannelHTTP:
			d.senders[channel] = NewHTTPSender(cfg.HTTP)
		}
		d.retries[channel] = config.NotifyChannelRetry(cfg, channel)
	}
	d.retries[WebhookChannel] = cfg.HTTP.Retry
	return d, nil
}

// Channels returns configured channel list.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.senders))
	for channel := range d.senders {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

// Send renders template for channel and delivers with retry policy.
// Params: destination channel, template name, and notification payload.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) Send(ctx context.Context, channel, templateName string, notification domain.Notification) (SendResult, error) {
	channel = config.NormalizeNotifyChannel(channel)
	sender, ok := d.senders[channel]
	if !ok {
		return SendResult{}, permanent.Mark(fmt.Errorf("notify channel %q is not configured", channel))
	}
	name := strings.ToLower(strings.TrimSpace(templateName))
	body, ok := d.templates[templateKey(channel, name)]
	if !ok {
		return SendResult{}, permanent.Mark(fmt.Errorf("notify template %q is not configured for channel %q", templateName, channel))
	}

	rendered := notification
	rendered.Channel = channel
	var message strings.Builder
	if err := body.Execute(&message, rendered); err != nil {
		return SendResult{}, permanent.Mark(fmt.Errorf("render notify template %s/%s: %w", channel, name, err))
	}
	rendered.Message = message.String()
	return d.sendWithRetry(ctx, sender, rendered, d.retries[channel])
}

// SendWebhook posts notification JSON to an action-provided URL.
// Params: target URL and notification payload.
// Returns: final error after retries with the http channel policy.
func (d *Dispatcher) SendWebhook(ctx context.Context, url string, notification domain.Notification) error {
	notification.Channel = WebhookChannel
	_, err := d.sendWithRetry(ctx, d.webhook.For(url), notification, d.retries[WebhookChannel])
	return err
}

// sendWithRetry sends one notification with channel-specific retry policy.
// Params: sender, payload, and retry policy for the sender channel.
// Returns: channel metadata and final error; permanent errors stop retries.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, notification domain.Notification, retry config.NotifyRetry) (SendResult, error) {
	if !retry.Enabled {
		return sender.Send(ctx, notification)
	}

	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	for attempt := 1; ; attempt++ {
		result, err := sender.Send(ctx, notification)
		if err == nil {
			if retry.LogEachAttempt && attempt > 1 {
				d.logger.Info("notify send recovered after retries", "channel", sender.Channel(), "attempt", attempt)
			}
			return result, nil
		}
		if retry.LogEachAttempt {
			d.logger.Warn("notify send attempt failed", "channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}
		if permanent.Is(err) {
			return SendResult{}, err
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return SendResult{}, fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return SendResult{}, ctx.Err()
		case <-timer.C:
		}
		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func templateKey(channel, name string) string {
	return strings.ToLower(strings.TrimSpace(channel)) + "/" + strings.ToLower(strings.TrimSpace(name))
}

// TelegramSender sends notifications to Telegram Bot API.
// Params: bot token, chat id, and base URL.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates Telegram sender.
// Params: Telegram notifier config.
// Returns: sender; configuration problems surface on Send as permanent errors.
func NewTelegramSender(cfg config.TelegramNotifier) *TelegramSender {
	sender := &TelegramSender{chatID: normalizeChatID(cfg.ChatID)}
	if strings.TrimSpace(cfg.BotToken) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram bot_token and chat_id are required"))
		return sender
	}
	botClient, err := tgbot.New(cfg.BotToken,
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	)
	if err != nil {
		sender.initErr = permanent.Mark(fmt.Errorf("init telegram bot: %w", err))
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel name.
func (s *TelegramSender) Channel() string {
	return config.NotifyChannelTelegram
}

// Send posts rendered message to Telegram chat.
func (s *TelegramSender) Send(ctx context.Context, notification domain.Notification) (SendResult, error) {
	if s.initErr != nil {
		return SendResult{}, s.initErr
	}
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      notification.Message,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return SendResult{}, errors.New("telegram send returned empty message id")
	}
	return SendResult{MessageID: sent.ID}, nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps @channel names as string.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// HTTPSender posts notification JSON to the configured endpoint.
type HTTPSender struct {
	url     string
	method  string
	headers map[string]string
	client  *http.Client
}

// NewHTTPSender creates generic HTTP sender.
// Params: HTTP notifier config.
// Returns: initialized sender.
func NewHTTPSender(cfg config.HTTPNotifier) *HTTPSender {
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}
	return &HTTPSender{
		url:     cfg.URL,
		method:  method,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Channel returns sender channel name.
func (s *HTTPSender) Channel() string {
	return config.NotifyChannelHTTP
}

// Send delivers JSON payload to configured endpoint.
func (s *HTTPSender) Send(ctx context.Context, notification domain.Notification) (SendResult, error) {
	return SendResult{}, postJSON(ctx, s.client, s.method, s.url, s.headers, notification, "http notify")
}

// WebhookSender posts notification JSON to per-action URLs.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender creates webhook sender with request timeout.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{client: &http.Client{Timeout: timeout}}
}

// For binds sender to one target URL.
func (s *WebhookSender) For(url string) ChannelSender {
	return webhookTarget{client: s.client, url: url}
}

type webhookTarget struct {
	client *http.Client
	url    string
}

func (t webhookTarget) Channel() string {
	return WebhookChannel
}

func (t webhookTarget) Send(ctx context.Context, notification domain.Notification) (SendResult, error) {
	return SendResult{}, postJSON(ctx, t.client, http.MethodPost, t.url, nil, notification, "webhook")
}

// postJSON sends payload and classifies non-retryable statuses as permanent.
// Params: client, method, url, headers, payload, and error prefix.
// Returns: transport or status error.
func postJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any, prefix string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode %s payload: %w", prefix, err))
	}
	request, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return permanent.Mark(fmt.Errorf("build %s request: %w", prefix, err))
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("%s send: %w", prefix, err)
	}
	defer response.Body.Close()
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	statusErr := unexpectedHTTPStatusError(prefix, response)
	if isPermanentStatus(response.StatusCode) {
		return permanent.Mark(statusErr)
	}
	return statusErr
}

func isPermanentStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4<<10))
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmedBody := strings.TrimSpace(string(rawBody))
	if trimmedBody == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
}
