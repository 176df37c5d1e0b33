package actions

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"alertrules/internal/config"
	"alertrules/internal/domain"
	"alertrules/internal/rules"
)

// Action kinds and dispatch callbacks.
const (
	KindNotify  = config.ActionKindNotify
	KindWebhook = "webhook"

	CallbackNotify  = "notify"
	CallbackWebhook = "webhook"
)

// Register adds built-in action handlers to builder.
func Register(b *rules.Builder) *rules.Builder {
	return b.
		Action(KindNotify, NotifyAction{}).
		Action(KindWebhook, WebhookAction{})
}

// NotifyAction routes a fire to one notify channel and named template.
// Futures of every rule that picks the same channel and template share a key.
type NotifyAction struct{}

// After returns one notify future keyed by channel and template.
func (NotifyAction) After(_ domain.Event, rule domain.Rule, params map[string]any) ([]rules.ActionFuture, error) {
	channel := config.NormalizeNotifyChannel(stringParam(params, "channel"))
	if !config.IsSupportedNotifyChannel(channel) {
		return nil, fmt.Errorf("notify action: unsupported channel %q", channel)
	}
	templateName := strings.ToLower(stringParam(params, "template"))
	if templateName == "" {
		return nil, errors.New("notify action: template is required")
	}
	return []rules.ActionFuture{{
		Key:       "notify/" + channel + "/" + templateName,
		Callback:  CallbackNotify,
		RuleID:    rule.ID,
		RuleLabel: rule.Label,
		Kwargs:    map[string]any{"channel": channel, "template": templateName},
	}}, nil
}

// WebhookAction posts a fire to a URL given by the rule.
type WebhookAction struct{}

// After returns one webhook future keyed by target url.
func (WebhookAction) After(_ domain.Event, rule domain.Rule, params map[string]any) ([]rules.ActionFuture, error) {
	target := stringParam(params, "url")
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("webhook action: invalid url %q", target)
	}
	return []rules.ActionFuture{{
		Key:       "webhook/" + target,
		Callback:  CallbackWebhook,
		RuleID:    rule.ID,
		RuleLabel: rule.Label,
		Kwargs:    map[string]any{"url": target},
	}}, nil
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}
