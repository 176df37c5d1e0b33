package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	ingestHTTPEnabled = `[ingest.http]
enabled = true`
	ingestHTTPListen = `[ingest.http]
enabled = true
listen = "127.0.0.1:18081"`
	ingestHTTPDisabled = `[ingest.http]
enabled = false`
	ingestNATSEnabled = `[ingest.nats]
enabled = true`
)

func TestLoadSnapshotFromFile(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		serviceSection(""),
		ingestHTTPListen,
		telegramNotifySection("token", "chat", "tg_default", "[{{ .Title }}] {{ .Message }}"),
		`[notify.telegram.retry]
enabled = true
backoff = "exponential"
initial_ms = 10
max_ms = 100
max_attempts = 0
log_each_attempt = true`,
		frequencyRule("checkout", 7, notifyAction("telegram", "tg_default")),
	))

	if cfg.Service.Name != "alertrules" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}
	if len(cfg.Rule) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg.Rule))
	}
	rule := cfg.Rule[0]
	if rule.Name != "checkout" || rule.Label != "checkout" {
		t.Fatalf("unexpected rule identity %q/%q", rule.Name, rule.Label)
	}
	if rule.ActionMatch != "all" || rule.FilterMatch != "all" || rule.FrequencyMinutes != 30 {
		t.Fatalf("rule defaults were not applied: %+v", rule)
	}
	if len(rule.Condition) != 2 || len(rule.Action) != 1 {
		t.Fatalf("unexpected condition/action count: %d/%d", len(rule.Condition), len(rule.Action))
	}
	if got := rule.Condition[1].Params["interval"]; got != "1h" {
		t.Fatalf("unexpected interval param %#v", got)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" || cfg.Redis.KeyPrefix != "alertrules" {
		t.Fatalf("redis defaults were not applied: %+v", cfg.Redis)
	}
	if cfg.Delayed.IntervalSec != 60 || cfg.Delayed.QueryConcurrency <= 0 {
		t.Fatalf("delayed defaults were not applied: %+v", cfg.Delayed)
	}
}

func TestLoadSnapshotFromDirAndDuplicateRuleValidation(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "a.toml"), joinSections(
		telegramNotifySection("token", "chat", "tg_default", "{{ .Message }}"),
		frequencyRule("checkout", 7, notifyAction("telegram", "tg_default")),
	))
	writeConfigFile(t, filepath.Join(tmpDir, "b.toml"), frequencyRule("checkout", 8, notifyAction("telegram", "tg_default")))

	_, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err == nil {
		t.Fatalf("expected duplicate rule validation error")
	}
	if !strings.Contains(err.Error(), "duplicate rule name") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadSnapshotRejectsDuplicateRuleID(t *testing.T) {
	t.Parallel()

	err := loadSnapshotErr(t, joinSections(
		serviceSection(""),
		ingestHTTPEnabled,
		telegramNotifySection("token", "chat", "tg_default", "{{ .Message }}"),
		frequencyRule("checkout", 7, notifyAction("telegram", "tg_default")),
		frequencyRule("payments", 7, notifyAction("telegram", "tg_default")),
	))
	if !strings.Contains(err.Error(), "reuses id 7") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadSnapshotRejectsEnabledTelegramWithoutCredentials(t *testing.T) {
	t.Parallel()

	err := loadSnapshotErr(t, joinSections(
		serviceSection(""),
		ingestHTTPEnabled,
		telegramNotifySection("", "chat", "tg_default", "{{ .Message }}"),
		frequencyRule("checkout", 7, notifyAction("telegram", "tg_default")),
	))
	if !strings.Contains(err.Error(), "notify.telegram.bot_token") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadSnapshotNotifyActionValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		notify  string
		action  string
		wantErr string
	}{
		{
			name:   "accept known template",
			notify: httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
			action: notifyAction("http", "http_default"),
		},
		{
			name:    "reject unknown template",
			notify:  httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
			action:  notifyAction("http", "missing"),
			wantErr: "unknown template \"missing\"",
		},
		{
			name:    "reject disabled channel",
			notify:  httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
			action:  notifyAction("telegram", "tg_default"),
			wantErr: "disabled channel \"telegram\"",
		},
		{
			name:    "reject unsupported channel",
			notify:  httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
			action:  notifyAction("pager", "x"),
			wantErr: "unsupported value \"pager\"",
		},
		{
			name:    "reject broken template",
			notify:  httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message "),
			action:  notifyAction("http", "http_default"),
			wantErr: "notify.http.name-template[0].message is invalid",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadSnapshotFromContent(t, joinSections(
				serviceSection(""),
				ingestHTTPEnabled,
				tt.notify,
				frequencyRule("checkout", 7, tt.action),
			))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("load snapshot: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadSnapshotRuleValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rule    string
		wantErr string
	}{
		{
			name: "reject missing id",
			rule: `[rule.bad]
project_id = 1
[[rule.bad.action]]
kind = "notify"
params = { channel = "http", template = "http_default" }`,
			wantErr: "id must be >0",
		},
		{
			name: "reject missing project",
			rule: `[rule.bad]
id = 3
[[rule.bad.action]]
kind = "notify"
params = { channel = "http", template = "http_default" }`,
			wantErr: "project_id must be >0",
		},
		{
			name: "reject unknown match mode",
			rule: `[rule.bad]
id = 3
project_id = 1
action_match = "most"
[[rule.bad.action]]
kind = "notify"
params = { channel = "http", template = "http_default" }`,
			wantErr: "action_match has unsupported value",
		},
		{
			name: "reject oversized frequency",
			rule: `[rule.bad]
id = 3
project_id = 1
frequency_minutes = 50000
[[rule.bad.action]]
kind = "notify"
params = { channel = "http", template = "http_default" }`,
			wantErr: "frequency_minutes",
		},
		{
			name: "reject missing actions",
			rule: `[rule.bad]
id = 3
project_id = 1
[[rule.bad.condition]]
kind = "every_event"`,
			wantErr: "at least one action",
		},
		{
			name: "reject condition without kind",
			rule: `[rule.bad]
id = 3
project_id = 1
[[rule.bad.condition]]
params = { value = 1 }
[[rule.bad.action]]
kind = "notify"
params = { channel = "http", template = "http_default" }`,
			wantErr: "condition[0].kind",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := loadSnapshotErr(t, joinSections(
				serviceSection(""),
				ingestHTTPEnabled,
				httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
				tt.rule,
			))
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadSnapshotNATSIngestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ingestNATS string
		wantErr    string
		assert     func(*testing.T, Config)
	}{
		{
			name:       "applies nats ingest defaults",
			ingestNATS: ingestNATSEnabled,
			assert: func(t *testing.T, cfg Config) {
				t.Helper()
				if cfg.Ingest.NATS.Stream == "" || cfg.Ingest.NATS.ConsumerName == "" || cfg.Ingest.NATS.DeliverGroup == "" {
					t.Fatalf("nats ingest defaults were not applied: %+v", cfg.Ingest.NATS)
				}
				if len(cfg.Ingest.NATS.URL) != 1 || cfg.Ingest.NATS.URL[0] != "nats://127.0.0.1:4222" {
					t.Fatalf("unexpected nats ingest urls: %#v", cfg.Ingest.NATS.URL)
				}
				if cfg.Ingest.NATS.MaxDeliver == 0 || cfg.Ingest.NATS.AckWaitSec <= 0 || cfg.Ingest.NATS.MaxAckPending <= 0 {
					t.Fatalf("unexpected nats ingest defaults: %+v", cfg.Ingest.NATS)
				}
				state := DeriveStateNATSConfig(cfg)
				if state.SuppressionBucket != "alertrules_suppression" || state.HistoryStream != "ALERTRULES_FIRES" {
					t.Fatalf("unexpected derived state config: %+v", state)
				}
			},
		},
		{
			name: "reject invalid max_deliver",
			ingestNATS: `[ingest.nats]
enabled = true
max_deliver = -2`,
			wantErr: "ingest.nats.max_deliver",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := loadSnapshotFromContent(t, joinSections(
				serviceSection(""),
				ingestHTTPDisabled,
				tt.ingestNATS,
				telegramNotifySection("token", "chat", "tg_default", "{{ .Message }}"),
				frequencyRule("checkout", 7, notifyAction("telegram", "tg_default")),
			))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("load snapshot: %v", err)
				}
				if tt.assert != nil {
					tt.assert(t, cfg)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadSnapshotKafkaIngestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kafka   string
		wantErr string
	}{
		{
			name: "accept kafka ingest",
			kafka: `[ingest.kafka]
enabled = true
brokers = ["127.0.0.1:9092"]
topic = "events"`,
		},
		{
			name: "reject kafka without brokers",
			kafka: `[ingest.kafka]
enabled = true
topic = "events"`,
			wantErr: "ingest.kafka.brokers",
		},
		{
			name: "reject kafka without topic",
			kafka: `[ingest.kafka]
enabled = true
brokers = ["127.0.0.1:9092"]`,
			wantErr: "ingest.kafka.topic",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := loadSnapshotFromContent(t, joinSections(
				serviceSection(""),
				tt.kafka,
				httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
				frequencyRule("checkout", 7, notifyAction("http", "http_default")),
			))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("load snapshot: %v", err)
				}
				if cfg.Ingest.Kafka.GroupID != "alertrules" || cfg.Ingest.HTTP.Enabled {
					t.Fatalf("unexpected kafka ingest defaults: %+v / http=%v", cfg.Ingest.Kafka, cfg.Ingest.HTTP.Enabled)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadSnapshotSingleModeBehavior(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
		assert  func(*testing.T, Config)
	}{
		{
			name: "accept single mode without nats",
			content: joinSections(
				serviceSection("single"),
				ingestHTTPListen,
				httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
				frequencyRule("checkout", 7, notifyAction("http", "http_default")),
			),
			assert: func(t *testing.T, cfg Config) {
				t.Helper()
				if cfg.Service.Mode != "single" {
					t.Fatalf("unexpected service mode %q", cfg.Service.Mode)
				}
			},
		},
		{
			name: "single mode auto-disables ingest nats and kafka",
			content: joinSections(
				serviceSection("single"),
				ingestHTTPEnabled,
				ingestNATSEnabled,
				`[ingest.kafka]
enabled = true`,
				httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
				frequencyRule("checkout", 7, notifyAction("http", "http_default")),
			),
			assert: func(t *testing.T, cfg Config) {
				t.Helper()
				if cfg.Ingest.NATS.Enabled || cfg.Ingest.Kafka.Enabled {
					t.Fatalf("expected broker ingest disabled in single mode")
				}
			},
		},
		{
			name: "single mode auto-disables notify queue",
			content: joinSections(
				serviceSection("single"),
				ingestHTTPEnabled,
				`[notify.queue]
enabled = true`,
				httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
				frequencyRule("checkout", 7, notifyAction("http", "http_default")),
			),
			assert: func(t *testing.T, cfg Config) {
				t.Helper()
				if cfg.Notify.Queue.Enabled {
					t.Fatalf("expected notify.queue.enabled=false in single mode")
				}
			},
		},
		{
			name: "reject single mode without http ingest",
			content: joinSections(
				serviceSection("single"),
				ingestHTTPDisabled,
				httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
				frequencyRule("checkout", 7, notifyAction("http", "http_default")),
			),
			wantErr: "ingest.http.enabled",
		},
		{
			name: "reject unknown mode",
			content: joinSections(
				serviceSection("mesh"),
				ingestHTTPEnabled,
				httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
				frequencyRule("checkout", 7, notifyAction("http", "http_default")),
			),
			wantErr: "service.mode",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := loadSnapshotFromContent(t, tt.content)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("load snapshot: %v", err)
				}
				if tt.assert != nil {
					tt.assert(t, cfg)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadSnapshotNotifyQueueValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		notifyQueue  string
		wantErr      string
		assertLoaded func(*testing.T, Config)
	}{
		{
			name: "accept enabled queue",
			notifyQueue: `[notify.queue]
enabled = true
ack_wait_sec = 10
nack_delay_ms = 100
max_deliver = 3
max_ack_pending = 100
dlq = true`,
			assertLoaded: func(t *testing.T, cfg Config) {
				t.Helper()
				if !cfg.Notify.Queue.Enabled || !cfg.Notify.Queue.DLQ {
					t.Fatalf("expected queue and dlq enabled")
				}
				if cfg.Notify.Queue.Stream != "ALERTRULES_NOTIFY" || cfg.Notify.Queue.DLQSubject == "" {
					t.Fatalf("queue routing defaults were not applied: %+v", cfg.Notify.Queue)
				}
				if len(cfg.Notify.Queue.URL) != 1 {
					t.Fatalf("expected queue url inherited from ingest, got %#v", cfg.Notify.Queue.URL)
				}
			},
		},
		{
			name: "reject dlq without queue",
			notifyQueue: `[notify.queue]
dlq = true`,
			wantErr: "notify.queue.dlq",
		},
		{
			name: "reject invalid max_deliver",
			notifyQueue: `[notify.queue]
enabled = true
max_deliver = -5`,
			wantErr: "notify.queue.max_deliver",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := loadSnapshotFromContent(t, joinSections(
				serviceSection(""),
				ingestHTTPEnabled,
				tt.notifyQueue,
				httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
				frequencyRule("checkout", 7, notifyAction("http", "http_default")),
			))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("load snapshot: %v", err)
				}
				if tt.assertLoaded != nil {
					tt.assertLoaded(t, cfg)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMergeNotifyConfigAppliesExplicitFalse(t *testing.T) {
	t.Parallel()

	dst := NotifyConfig{
		Queue:    NotifyQueue{Enabled: true, DLQ: true},
		Telegram: TelegramNotifier{Enabled: true},
		HTTP:     HTTPNotifier{Enabled: true},
	}
	hints := notifyMergeHints{
		Queue:    queueMergeHints{Enabled: boolPtr(false), DLQ: boolPtr(false)},
		Telegram: channelMergeHints{Enabled: boolPtr(false)},
		HTTP:     channelMergeHints{Enabled: boolPtr(false)},
	}

	mergeNotifyConfig(&dst, NotifyConfig{}, hints)

	if dst.Queue.Enabled || dst.Queue.DLQ {
		t.Fatalf("expected queue flags false after explicit false merge")
	}
	if dst.Telegram.Enabled {
		t.Fatalf("expected telegram.enabled=false after explicit false merge")
	}
	if dst.HTTP.Enabled {
		t.Fatalf("expected http.enabled=false after explicit false merge")
	}
}

func TestLoadDirMergesSectionsAndRules(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "10-base.toml"), joinSections(
		serviceSection(""),
		ingestHTTPEnabled,
		`[redis]
addr = "redis-a:6379"`,
		httpNotifySection("http://127.0.0.1:1/notify", "http_default", "{{ .Message }}"),
	))
	writeConfigFile(t, filepath.Join(tmpDir, "20-rules.toml"), joinSections(
		frequencyRule("checkout", 7, notifyAction("http", "http_default")),
		frequencyRule("payments", 8, notifyAction("http", "http_default")),
	))
	writeConfigFile(t, filepath.Join(tmpDir, "30-override.toml"), `[redis]
addr = "redis-b:6379"
key_prefix = "prod"`)
	writeConfigFile(t, filepath.Join(tmpDir, "notes.txt"), "ignored")

	cfg, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(cfg.Rule) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(cfg.Rule))
	}
	if cfg.Redis.Addr != "redis-b:6379" || cfg.Redis.KeyPrefix != "prod" {
		t.Fatalf("expected later redis fragment to win: %+v", cfg.Redis)
	}
	if !cfg.Notify.HTTP.Enabled {
		t.Fatalf("expected notify.http preserved from first fragment")
	}
}

func TestLoadDirNotifyExplicitFalseOverrides(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "a.toml"), joinSections(
		`[notify.telegram]
enabled = true
bot_token = "token-a"
chat_id = "chat-a"`,
		`[notify.http]
enabled = true
url = "http://hooks.example/alert"`,
	))
	writeConfigFile(t, filepath.Join(tmpDir, "b.toml"), `[notify.telegram]
enabled = false`)

	cfg, err := loadDir(tmpDir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if cfg.Notify.Telegram.Enabled {
		t.Fatalf("expected telegram.enabled=false from explicit override")
	}
	if !cfg.Notify.HTTP.Enabled || cfg.Notify.HTTP.URL != "http://hooks.example/alert" {
		t.Fatalf("expected http notifier preserved from previous fragment: %+v", cfg.Notify.HTTP)
	}
}

func TestLoadSnapshotRejectsUnsupportedSyntax(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "legacy rule array syntax",
			content: joinSections(
				serviceSection(""),
				ingestHTTPEnabled,
				`[[rule]]
id = 1
project_id = 1`,
			),
			wantErr: "[[rule]] arrays are not supported",
		},
		{
			name: "state section",
			content: joinSections(
				serviceSection(""),
				`[state.nats]
url = ["nats://127.0.0.1:4222"]`,
			),
			wantErr: "state configuration is not supported",
		},
		{
			name: "fixed ingest routing keys",
			content: joinSections(
				serviceSection(""),
				`[ingest.nats]
enabled = true
subject = "custom.events"`,
			),
			wantErr: "fixed in runtime",
		},
		{
			name: "explicit rule name",
			content: joinSections(
				serviceSection(""),
				ingestHTTPEnabled,
				`[rule.checkout]
name = "other"
id = 1
project_id = 1`,
			),
			wantErr: "rule.checkout.name is not supported",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := loadSnapshotErr(t, tt.content)
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFromCLI(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error when no source provided")
	}
	if _, err := FromCLI("a.toml", "conf.d"); err == nil {
		t.Fatalf("expected error when both sources provided")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" {
		t.Fatalf("unexpected file source %+v err=%v", src, err)
	}
	src, err = FromCLI("", "conf.d")
	if err != nil || src.Dir != "conf.d" {
		t.Fatalf("unexpected dir source %+v err=%v", src, err)
	}
}

func serviceSection(mode string) string {
	if mode == "" {
		return `[service]
name = "alertrules"`
	}
	return fmt.Sprintf(`[service]
name = "alertrules"
mode = %q`, mode)
}

func frequencyRule(name string, id int64, actionBlocks ...string) string {
	sections := []string{
		fmt.Sprintf(`[rule.%s]
id = %d
project_id = 1
environment = "production"`, name, id),
		fmt.Sprintf(`[[rule.%s.condition]]
kind = "first_seen_event"`, name),
		fmt.Sprintf(`[[rule.%s.condition]]
kind = "event_frequency"
params = { interval = "1h", value = 10, comparison_type = "count" }`, name),
	}
	for _, block := range actionBlocks {
		sections = append(sections, strings.ReplaceAll(block, "rule.RULE.", "rule."+name+"."))
	}
	return joinSections(sections...)
}

func notifyAction(channel, template string) string {
	return fmt.Sprintf(`[[rule.RULE.action]]
kind = "notify"
params = { channel = %q, template = %q }`, channel, template)
}

func telegramNotifySection(botToken, chatID, templateName, message string) string {
	return joinSections(
		fmt.Sprintf(`[notify.telegram]
enabled = true
bot_token = %q
chat_id = %q`, botToken, chatID),
		fmt.Sprintf(`[[notify.telegram.name-template]]
name = %q
message = %q`, templateName, message),
	)
}

func httpNotifySection(url, templateName, message string) string {
	return joinSections(
		fmt.Sprintf(`[notify.http]
enabled = true
url = %q`, url),
		fmt.Sprintf(`[[notify.http.name-template]]
name = %q
message = %q`, templateName, message),
	)
}

func mustLoadSnapshot(t *testing.T, content string) Config {
	t.Helper()
	cfg, err := loadSnapshotFromContent(t, content)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return cfg
}

func loadSnapshotErr(t *testing.T, content string) error {
	t.Helper()
	_, err := loadSnapshotFromContent(t, content)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	return err
}

func loadSnapshotFromContent(t *testing.T, content string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, content)
	return LoadSnapshot(ConfigSource{File: path})
}

func joinSections(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		nonEmpty = append(nonEmpty, trimmed)
	}
	return strings.Join(nonEmpty, "\n\n") + "\n"
}

func boolPtr(value bool) *bool {
	return &value
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}
