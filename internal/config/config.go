package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"alertrules/internal/domain"
	"alertrules/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultIngestPath         = "/ingest"
	defaultMetricsPath        = "/metrics"
	defaultNATSSubject        = "alertrules.events"
	defaultNATSIngestStream   = "ALERTRULES_EVENTS"
	defaultNATSIngestConsumer = "alertrules-ingest"
	defaultNATSIngestGroup    = "alertrules-workers"
	defaultNATSAckWaitSec     = 30
	defaultNATSNackDelayMS    = 1000
	defaultNATSMaxDeliver     = -1
	defaultNATSMaxAckPending  = 2048
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultSuppressionBucket  = "alertrules_suppression"
	defaultHistoryStream      = "ALERTRULES_FIRES"
	defaultHistorySubject     = "alertrules.fires"
	defaultHistoryMaxAge      = 30 * 24 * time.Hour
	defaultMaxCASRetries      = 8
	defaultNotifySubject      = "alertrules.notify"
	defaultNotifyStream       = "ALERTRULES_NOTIFY"
	defaultNotifyConsumer     = "alertrules-notify"
	defaultNotifyGroup        = "alertrules-notify-workers"
	defaultNotifyDLQStream    = "ALERTRULES_NOTIFY_DLQ"
	defaultNotifyDLQSubject   = "alertrules.notify.dlq"
	defaultKafkaGroupID       = "alertrules"
	defaultKafkaMinBytes      = 1
	defaultKafkaMaxBytes      = 10 << 20
	defaultKafkaMaxWaitMS     = 500
	defaultRedisAddr          = "127.0.0.1:6379"
	defaultRedisKeyPrefix     = "alertrules"
	defaultRedisPoolSize      = 20
	defaultRedisTimeoutMS     = 3000
	defaultEventTTLSec        = 24 * 3600
	defaultRateRetentionSec   = 61 * 24 * 3600
	defaultReloadSeconds      = 5
	defaultDelayedIntervalSec = 60
	defaultProjectConcurrency = 4
	defaultQueryConcurrency   = 8
	defaultProjectBatch       = 500
	defaultDrainLockSec       = 300
	defaultSuppressionCache   = 60
	defaultFrequencyMinutes   = 30
	maxFrequencyMinutes       = 30 * 24 * 60

	// ServiceModeCluster keeps NATS/Redis-backed state shared across instances.
	ServiceModeCluster = "cluster"
	// ServiceModeSingle keeps single-instance mode with in-memory backends.
	ServiceModeSingle = "single"

	// NotifyChannelTelegram identifies Telegram transport.
	NotifyChannelTelegram = "telegram"
	// NotifyChannelHTTP identifies generic HTTP transport.
	NotifyChannelHTTP = "http"

	// ActionKindNotify is the built-in action routing to notify channels.
	ActionKindNotify = "notify"
)

var (
	notifyChannelOrder = []string{
		NotifyChannelTelegram,
		NotifyChannelHTTP,
	}
	notifyChannelRegistry = map[string]notifyChannelDescriptor{
		NotifyChannelTelegram: {
			enabled: func(cfg NotifyConfig) bool { return cfg.Telegram.Enabled },
			retry:   func(cfg NotifyConfig) NotifyRetry { return cfg.Telegram.Retry },
			templates: func(cfg NotifyConfig) []NamedTemplateConfig {
				return cfg.Telegram.NameTemplate
			},
		},
		NotifyChannelHTTP: {
			enabled: func(cfg NotifyConfig) bool { return cfg.HTTP.Enabled },
			retry:   func(cfg NotifyConfig) NotifyRetry { return cfg.HTTP.Retry },
			templates: func(cfg NotifyConfig) []NamedTemplateConfig {
				return cfg.HTTP.NameTemplate
			},
		},
	}
	legacyRuleArrayPattern                = regexp.MustCompile(`(?m)^\s*\[\[\s*rule\s*\]\]`)
	unsupportedStatePattern               = regexp.MustCompile(`(?m)^\s*\[\[?\s*state(?:\.[^\]\s]+)*\s*\]\]?`)
	unsupportedIngestNATSFixedKeysPattern = regexp.MustCompile(`(?mi)^\s*(?:subject|stream|consumer_name|deliver_group)\s*=`)
)

// notifyChannelDescriptor stores generic accessors for one notify transport.
// Params: config readers for enabled/retry/templates fields.
// Returns: channel metadata used by generic helpers.
type notifyChannelDescriptor struct {
	enabled   func(NotifyConfig) bool
	retry     func(NotifyConfig) NotifyRetry
	templates func(NotifyConfig) []NamedTemplateConfig
}

// Config holds service runtime settings and alert rules.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Log       LogConfig       `toml:"log"`
	Ingest    IngestConfig    `toml:"ingest"`
	Redis     RedisConfig     `toml:"redis"`
	Delayed   DelayedConfig   `toml:"delayed"`
	Notify    NotifyConfig    `toml:"notify"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Rule      []RuleConfig    `toml:"rule"`
}

// rawConfig mirrors TOML model before runtime normalization.
// Params: decoded sections from one TOML source.
// Returns: raw rule map keyed by rule name.
type rawConfig struct {
	Service   ServiceConfig            `toml:"service"`
	Log       LogConfig                `toml:"log"`
	Ingest    IngestConfig             `toml:"ingest"`
	Redis     RedisConfig              `toml:"redis"`
	Delayed   DelayedConfig            `toml:"delayed"`
	Notify    NotifyConfig             `toml:"notify"`
	Metrics   MetricsConfig            `toml:"metrics"`
	Telemetry TelemetryConfig          `toml:"telemetry"`
	Rule      map[string]rawRuleConfig `toml:"rule"`
}

// rawRuleConfig stores one rule body from `[rule.<name>]` table.
// Params: rule fields except top-level key-derived name.
// Returns: intermediate rule body used for normalization.
type rawRuleConfig struct {
	Name             string                `toml:"name"`
	ID               int64                 `toml:"id"`
	ProjectID        int64                 `toml:"project_id"`
	Label            string                `toml:"label"`
	Environment      string                `toml:"environment"`
	ActionMatch      string                `toml:"action_match"`
	FilterMatch      string                `toml:"filter_match"`
	FrequencyMinutes int                   `toml:"frequency_minutes"`
	Snoozed          bool                  `toml:"snoozed"`
	Condition        []RuleConditionConfig `toml:"condition"`
	Action           []RuleActionConfig    `toml:"action"`
}

// ServiceConfig contains process-level settings.
// Params: name, backend mode, and reload settings.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name                string `toml:"name"`
	Mode                string `toml:"mode"`
	ReloadEnabled       bool   `toml:"reload_enabled"`
	ReloadIntervalSec   int    `toml:"reload_interval_sec"`
	SuppressionCacheSec int    `toml:"suppression_cache_sec"`
}

// IngestConfig defines inbound event interfaces.
// Params: HTTP endpoint, NATS queue consumer, and Kafka reader controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP  HTTPIngestConfig  `toml:"http"`
	NATS  NATSIngestConfig  `toml:"nats"`
	Kafka KafkaIngestConfig `toml:"kafka"`
}

// HTTPIngestConfig configures HTTP event ingestion endpoint.
// Params: enable flag, listen/endpoints, and optional body size limit.
// Returns: HTTP ingest behavior.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	IngestPath   string `toml:"ingest_path"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection + ack/redelivery policy; stream routing keys are runtime-fixed.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// KafkaIngestConfig configures consumer-group ingestion from one Kafka topic.
// Params: brokers, topic, group, and fetch sizing.
// Returns: Kafka ingest behavior.
type KafkaIngestConfig struct {
	Enabled   bool     `toml:"enabled"`
	Brokers   []string `toml:"brokers"`
	Topic     string   `toml:"topic"`
	GroupID   string   `toml:"group_id"`
	MinBytes  int      `toml:"min_bytes"`
	MaxBytes  int      `toml:"max_bytes"`
	MaxWaitMS int      `toml:"max_wait_ms"`
}

// RedisConfig configures the shared Redis used by buffer, rates, and event cache.
// Params: connection, pool, timeouts, key prefix, and retention.
// Returns: Redis client and key layout settings.
type RedisConfig struct {
	Addr             string `toml:"addr"`
	Password         string `toml:"password"`
	DB               int    `toml:"db"`
	PoolSize         int    `toml:"pool_size"`
	MinIdleConns     int    `toml:"min_idle_conns"`
	DialTimeoutMS    int    `toml:"dial_timeout_ms"`
	ReadTimeoutMS    int    `toml:"read_timeout_ms"`
	WriteTimeoutMS   int    `toml:"write_timeout_ms"`
	KeyPrefix        string `toml:"key_prefix"`
	EventTTLSec      int    `toml:"event_ttl_sec"`
	RateRetentionSec int    `toml:"rate_retention_sec"`
}

// DelayedConfig configures the deferred batch scheduler.
// Params: tick interval, concurrency limits, and drain lease.
// Returns: scheduler behavior.
type DelayedConfig struct {
	Enabled            bool `toml:"enabled"`
	IntervalSec        int  `toml:"interval_sec"`
	ProjectConcurrency int  `toml:"project_concurrency"`
	QueryConcurrency   int  `toml:"query_concurrency"`
	ProjectBatch       int  `toml:"project_batch"`
	DrainLockSec       int  `toml:"drain_lock_sec"`
}

// NATSStateConfig contains fixed JetStream KV and stream names for suppression state.
// Params: URL, bucket and history stream names, and CAS retry budget.
// Returns: NATS state backend options.
type NATSStateConfig struct {
	URL                []string
	SuppressionBucket  string
	RecordTTL          time.Duration
	HistoryStream      string
	HistorySubject     string
	HistoryMaxAge      time.Duration
	AllowCreateBuckets bool
	MaxCASRetries      int
}

// DeriveStateNATSConfig builds fixed state-backend settings from runtime config.
// Params: full runtime configuration snapshot.
// Returns: non-user-overridable NATS state settings.
func DeriveStateNATSConfig(cfg Config) NATSStateConfig {
	urls := normalizeNATSURLs(cfg.Ingest.NATS.URL)
	if len(urls) == 0 {
		urls = []string{defaultNATSURL}
	}
	return NATSStateConfig{
		URL:                urls,
		SuppressionBucket:  defaultSuppressionBucket,
		HistoryStream:      defaultHistoryStream,
		HistorySubject:     defaultHistorySubject,
		HistoryMaxAge:      defaultHistoryMaxAge,
		AllowCreateBuckets: true,
		MaxCASRetries:      defaultMaxCASRetries,
	}
}

// NotifyConfig defines outbound notification behavior.
// Params: async queue and per-channel transport settings.
// Returns: notification controls.
type NotifyConfig struct {
	Queue    NotifyQueue      `toml:"queue"`
	Telegram TelegramNotifier `toml:"telegram"`
	HTTP     HTTPNotifier     `toml:"http"`
}

// NotifyQueue defines asynchronous delivery queue settings.
// Params: enable flag, worker/ack policy, and optional DLQ toggle; names are runtime-fixed.
// Returns: async notify pipeline controls.
type NotifyQueue struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"-"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	DLQStream     string   `toml:"-"`
	DLQSubject    string   `toml:"-"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
	DLQ           bool     `toml:"dlq"`
}

// NamedTemplateConfig describes one reusable message template within one channel section.
// Params: template name and Go text/template body.
// Returns: template entry referenced from notify actions.
type NamedTemplateConfig struct {
	Name    string `toml:"name"`
	Message string `toml:"message"`
}

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// TelegramNotifier defines Telegram channel settings.
// Params: enabled flag, bot token, chat ID, API base URL, and retry policy.
// Returns: Telegram sender configuration.
type TelegramNotifier struct {
	Enabled      bool                  `toml:"enabled"`
	BotToken     string                `toml:"bot_token"`
	ChatID       string                `toml:"chat_id"`
	APIBase      string                `toml:"api_base"`
	Retry        NotifyRetry           `toml:"retry"`
	NameTemplate []NamedTemplateConfig `toml:"name-template"`
}

// HTTPNotifier defines generic outbound HTTP endpoint.
// Params: URL, method, timeout, optional static headers, and retry policy.
// Returns: HTTP notification sender configuration.
type HTTPNotifier struct {
	Enabled      bool                  `toml:"enabled"`
	URL          string                `toml:"url"`
	Method       string                `toml:"method"`
	TimeoutSec   int                   `toml:"timeout_sec"`
	Headers      map[string]string     `toml:"headers"`
	Retry        NotifyRetry           `toml:"retry"`
	NameTemplate []NamedTemplateConfig `toml:"name-template"`
}

// MetricsConfig toggles the Prometheus scrape endpoint on the HTTP listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TelemetryConfig configures OTLP/HTTP trace export.
// Params: enable flag, collector endpoint, TLS toggle, and sampling ratio.
// Returns: tracer provider settings.
type TelemetryConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	Insecure    bool    `toml:"insecure"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// RuleConfig describes one alert rule.
// Params: identity, scope, conditions, match modes, cooldown, and actions.
// Returns: runtime rule definition.
type RuleConfig struct {
	Name             string                `toml:"name"`
	ID               int64                 `toml:"id"`
	ProjectID        int64                 `toml:"project_id"`
	Label            string                `toml:"label"`
	Environment      string                `toml:"environment"`
	ActionMatch      string                `toml:"action_match"`
	FilterMatch      string                `toml:"filter_match"`
	FrequencyMinutes int                   `toml:"frequency_minutes"`
	Snoozed          bool                  `toml:"snoozed"`
	Condition        []RuleConditionConfig `toml:"condition"`
	Action           []RuleActionConfig    `toml:"action"`
}

// RuleConditionConfig is one `[[rule.<name>.condition]]` entry.
type RuleConditionConfig struct {
	Kind   string         `toml:"kind"`
	Params map[string]any `toml:"params"`
}

// RuleActionConfig is one `[[rule.<name>.action]]` entry.
type RuleActionConfig struct {
	Kind   string         `toml:"kind"`
	Params map[string]any `toml:"params"`
}

// ToDomain converts rule config into evaluator rule model.
// Params: none.
// Returns: domain rule with normalized match modes.
func (r RuleConfig) ToDomain() domain.Rule {
	rule := domain.Rule{
		ID:               r.ID,
		ProjectID:        r.ProjectID,
		Label:            r.Label,
		Environment:      strings.TrimSpace(r.Environment),
		ActionMatch:      domain.NormalizeMatchMode(r.ActionMatch),
		FilterMatch:      domain.NormalizeMatchMode(r.FilterMatch),
		FrequencyMinutes: r.FrequencyMinutes,
		Snoozed:          r.Snoozed,
	}
	for _, condition := range r.Condition {
		rule.Conditions = append(rule.Conditions, domain.ConditionSpec{
			Kind:   strings.ToLower(strings.TrimSpace(condition.Kind)),
			Params: condition.Params,
		})
	}
	for _, action := range r.Action {
		rule.Actions = append(rule.Actions, domain.ActionSpec{
			Kind:   strings.ToLower(strings.TrimSpace(action.Kind)),
			Params: action.Params,
		})
	}
	return rule
}

// DomainRules converts all configured rules.
// Params: validated config snapshot.
// Returns: domain rules in config order.
func DomainRules(cfg Config) []domain.Rule {
	out := make([]domain.Rule, 0, len(cfg.Rule))
	for _, rule := range cfg.Rule {
		out = append(out, rule.ToDomain())
	}
	return out
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// configMergeHints carries explicit bool-presence markers used for directory overlays.
// Params: sparse fields decoded from one TOML fragment.
// Returns: merge behavior hints for zero-value bool overrides.
type configMergeHints struct {
	Notify notifyMergeHints `toml:"notify"`
}

// notifyMergeHints tracks explicit bool fields in notify section.
type notifyMergeHints struct {
	Queue    queueMergeHints   `toml:"queue"`
	Telegram channelMergeHints `toml:"telegram"`
	HTTP     channelMergeHints `toml:"http"`
}

type queueMergeHints struct {
	Enabled *bool `toml:"enabled"`
	DLQ     *bool `toml:"dlq"`
}

type channelMergeHints struct {
	Enabled *bool `toml:"enabled"`
}

// hasExplicitBool reports whether notify fragment contains explicit bool keys.
func (h notifyMergeHints) hasExplicitBool() bool {
	return h.Queue.Enabled != nil ||
		h.Queue.DLQ != nil ||
		h.Telegram.Enabled != nil ||
		h.HTTP.Enabled != nil
}

// normalizeRawConfig converts raw TOML model to runtime config.
// Params: decoded raw config from file fragment.
// Returns: normalized config snapshot.
func normalizeRawConfig(raw rawConfig) (Config, error) {
	cfg := Config{
		Service:   raw.Service,
		Log:       raw.Log,
		Ingest:    raw.Ingest,
		Redis:     raw.Redis,
		Delayed:   raw.Delayed,
		Notify:    raw.Notify,
		Metrics:   raw.Metrics,
		Telemetry: raw.Telemetry,
	}
	if len(raw.Rule) == 0 {
		return cfg, nil
	}

	names := make([]string, 0, len(raw.Rule))
	for name := range raw.Rule {
		names = append(names, name)
	}
	sort.Strings(names)
	cfg.Rule = make([]RuleConfig, 0, len(names))
	for _, name := range names {
		body := raw.Rule[name]
		if strings.TrimSpace(body.Name) != "" {
			return Config{}, fmt.Errorf("rule.%s.name is not supported; use [rule.%s] key as rule name", name, name)
		}
		cfg.Rule = append(cfg.Rule, RuleConfig{
			Name:             name,
			ID:               body.ID,
			ProjectID:        body.ProjectID,
			Label:            body.Label,
			Environment:      body.Environment,
			ActionMatch:      body.ActionMatch,
			FilterMatch:      body.FilterMatch,
			FrequencyMinutes: body.FrequencyMinutes,
			Snoozed:          body.Snoozed,
			Condition:        body.Condition,
			Action:           body.Action,
		})
	}
	return cfg, nil
}

// rejectUnsupportedSyntax checks forbidden TOML syntax and returns explicit error.
// Params: raw TOML file body.
// Returns: error when unsupported syntax is detected.
func rejectUnsupportedSyntax(body []byte) error {
	if legacyRuleArrayPattern.Match(body) {
		return errors.New("[[rule]] arrays are not supported; use [rule.<rule_name>] tables")
	}
	if unsupportedStatePattern.Match(body) {
		return errors.New("state configuration is not supported; state backend settings are fixed and derived from ingest.nats.url")
	}
	if unsupportedIngestNATSFixedKeysPattern.Match(body) {
		return errors.New("subject/stream/consumer_name/deliver_group are fixed in runtime and must not be configured")
	}
	return nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	cfg, _, err := loadFileForMerge(path)
	return cfg, err
}

// loadFileForMerge reads one TOML file with merge hints.
// Params: file path to config fragment.
// Returns: decoded config plus explicit-bool hints for overlay merge.
func loadFileForMerge(path string) (Config, configMergeHints, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := rejectUnsupportedSyntax(body); err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	cfg, err := normalizeRawConfig(raw)
	if err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var hints configMergeHints
	if err := toml.Unmarshal(body, &hints); err != nil {
		return Config{}, configMergeHints{}, fmt.Errorf("decode merge hints %q: %w", path, err)
	}
	return cfg, hints, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, hints, err := loadFileForMerge(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment, hints)
	}
	return merged, nil
}

// mergeConfig overlays source onto destination.
// Params: destination config, next fragment, and bool hints.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config, hints configMergeHints) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if hasIngestConfig(src.Ingest) {
		dst.Ingest = src.Ingest
	}
	if src.Redis != (RedisConfig{}) {
		dst.Redis = src.Redis
	}
	if src.Delayed != (DelayedConfig{}) {
		dst.Delayed = src.Delayed
	}
	if src.Metrics != (MetricsConfig{}) {
		dst.Metrics = src.Metrics
	}
	if src.Telemetry != (TelemetryConfig{}) {
		dst.Telemetry = src.Telemetry
	}
	if hasNotifyConfig(src.Notify) || hints.Notify.hasExplicitBool() {
		mergeNotifyConfig(&dst.Notify, src.Notify, hints.Notify)
	}
	if len(src.Rule) > 0 {
		dst.Rule = append(dst.Rule, src.Rule...)
	}
}

// mergeNotifyConfig overlays notify fragment preserving sibling channel sections.
// Params: destination notify config, fragment, and bool hints.
// Returns: merged notify config side-effect in dst.
func mergeNotifyConfig(dst *NotifyConfig, src NotifyConfig, hints notifyMergeHints) {
	if src.Queue.AckWaitSec != 0 || src.Queue.NackDelayMS != 0 || src.Queue.MaxDeliver != 0 || src.Queue.MaxAckPending != 0 ||
		hints.Queue.Enabled != nil || hints.Queue.DLQ != nil {
		dst.Queue = src.Queue
	}
	if hasTelegramConfig(src.Telegram) || hints.Telegram.Enabled != nil {
		dst.Telegram = src.Telegram
	}
	if hasHTTPNotifierConfig(src.HTTP) || hints.HTTP.Enabled != nil {
		dst.HTTP = src.HTTP
	}
}

func hasTelegramConfig(cfg TelegramNotifier) bool {
	return cfg.Enabled || cfg.BotToken != "" || cfg.ChatID != "" || cfg.APIBase != "" || len(cfg.NameTemplate) > 0
}

func hasHTTPNotifierConfig(cfg HTTPNotifier) bool {
	return cfg.Enabled || cfg.URL != "" || cfg.Method != "" || len(cfg.Headers) > 0 || len(cfg.NameTemplate) > 0
}

func hasNotifyConfig(cfg NotifyConfig) bool {
	return cfg.Queue.Enabled || cfg.Queue.DLQ || hasTelegramConfig(cfg.Telegram) || hasHTTPNotifierConfig(cfg.HTTP)
}

func hasIngestConfig(cfg IngestConfig) bool {
	return cfg.HTTP != (HTTPIngestConfig{}) ||
		cfg.NATS.Enabled || len(cfg.NATS.URL) > 0 || cfg.NATS.AckWaitSec != 0 ||
		cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) > 0 || cfg.Kafka.Topic != ""
}

// applyDefaults fills zero-value fields with runtime defaults.
// Params: cfg pointer to decoded snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "alertrules"
	}
	cfg.Service.Mode = NormalizeServiceMode(cfg.Service.Mode)
	if cfg.Service.ReloadIntervalSec <= 0 {
		cfg.Service.ReloadIntervalSec = defaultReloadSeconds
	}
	if cfg.Service.SuppressionCacheSec <= 0 {
		cfg.Service.SuppressionCacheSec = defaultSuppressionCache
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		cfg.Ingest.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.HealthPath) == "" {
		cfg.Ingest.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.ReadyPath) == "" {
		cfg.Ingest.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.IngestPath) == "" {
		cfg.Ingest.HTTP.IngestPath = defaultIngestPath
	}
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = 2 << 20
	}
	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}

	if cfg.Delayed.IntervalSec <= 0 {
		cfg.Delayed.IntervalSec = defaultDelayedIntervalSec
	}
	if cfg.Delayed.ProjectConcurrency <= 0 {
		cfg.Delayed.ProjectConcurrency = defaultProjectConcurrency
	}
	if cfg.Delayed.QueryConcurrency <= 0 {
		cfg.Delayed.QueryConcurrency = defaultQueryConcurrency
	}
	if cfg.Delayed.ProjectBatch <= 0 {
		cfg.Delayed.ProjectBatch = defaultProjectBatch
	}
	if cfg.Delayed.DrainLockSec <= 0 {
		cfg.Delayed.DrainLockSec = defaultDrainLockSec
	}

	if cfg.Service.Mode == ServiceModeSingle {
		// Single mode always uses in-memory backends regardless of user flags.
		cfg.Ingest.NATS.Enabled = false
		cfg.Ingest.Kafka.Enabled = false
		cfg.Notify.Queue.Enabled = false
		cfg.Notify.Queue.DLQ = false
		cfg.Notify.Queue.URL = nil
	} else {
		applyClusterDefaults(cfg)
	}

	if cfg.Notify.Telegram.APIBase == "" {
		cfg.Notify.Telegram.APIBase = "https://api.telegram.org"
	}
	fillNotifyRetryDefaults(&cfg.Notify.Telegram.Retry)
	if cfg.Notify.HTTP.Method == "" {
		cfg.Notify.HTTP.Method = "POST"
	}
	if cfg.Notify.HTTP.TimeoutSec <= 0 {
		cfg.Notify.HTTP.TimeoutSec = 10
	}
	fillNotifyRetryDefaults(&cfg.Notify.HTTP.Retry)

	if cfg.Telemetry.SampleRatio <= 0 || cfg.Telemetry.SampleRatio > 1 {
		cfg.Telemetry.SampleRatio = 1
	}

	for i := range cfg.Rule {
		rule := &cfg.Rule[i]
		if strings.TrimSpace(rule.Label) == "" {
			rule.Label = rule.Name
		}
		if strings.TrimSpace(rule.ActionMatch) == "" {
			rule.ActionMatch = string(domain.MatchAll)
		}
		if strings.TrimSpace(rule.FilterMatch) == "" {
			rule.FilterMatch = string(domain.MatchAll)
		}
		if rule.FrequencyMinutes <= 0 {
			rule.FrequencyMinutes = defaultFrequencyMinutes
		}
	}
}

// applyClusterDefaults fills NATS, Kafka, Redis, and queue defaults for cluster mode.
// Params: cfg pointer.
// Returns: defaults applied in place.
func applyClusterDefaults(cfg *Config) {
	cfg.Ingest.NATS.URL = normalizeNATSURLs(cfg.Ingest.NATS.URL)
	if len(cfg.Ingest.NATS.URL) == 0 {
		cfg.Ingest.NATS.URL = []string{defaultNATSURL}
	}
	cfg.Ingest.NATS.Subject = defaultNATSSubject
	cfg.Ingest.NATS.Stream = defaultNATSIngestStream
	cfg.Ingest.NATS.ConsumerName = defaultNATSIngestConsumer
	cfg.Ingest.NATS.DeliverGroup = defaultNATSIngestGroup
	if cfg.Ingest.NATS.AckWaitSec <= 0 {
		cfg.Ingest.NATS.AckWaitSec = defaultNATSAckWaitSec
	}
	if cfg.Ingest.NATS.NackDelayMS <= 0 {
		cfg.Ingest.NATS.NackDelayMS = defaultNATSNackDelayMS
	}
	if cfg.Ingest.NATS.MaxDeliver == 0 {
		cfg.Ingest.NATS.MaxDeliver = defaultNATSMaxDeliver
	}
	if cfg.Ingest.NATS.MaxAckPending <= 0 {
		cfg.Ingest.NATS.MaxAckPending = defaultNATSMaxAckPending
	}

	if strings.TrimSpace(cfg.Ingest.Kafka.GroupID) == "" {
		cfg.Ingest.Kafka.GroupID = defaultKafkaGroupID
	}
	if cfg.Ingest.Kafka.MinBytes <= 0 {
		cfg.Ingest.Kafka.MinBytes = defaultKafkaMinBytes
	}
	if cfg.Ingest.Kafka.MaxBytes <= 0 {
		cfg.Ingest.Kafka.MaxBytes = defaultKafkaMaxBytes
	}
	if cfg.Ingest.Kafka.MaxWaitMS <= 0 {
		cfg.Ingest.Kafka.MaxWaitMS = defaultKafkaMaxWaitMS
	}
	if !cfg.Ingest.HTTP.Enabled && !cfg.Ingest.NATS.Enabled && !cfg.Ingest.Kafka.Enabled {
		cfg.Ingest.HTTP.Enabled = true
	}

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		cfg.Redis.Addr = defaultRedisAddr
	}
	if strings.TrimSpace(cfg.Redis.KeyPrefix) == "" {
		cfg.Redis.KeyPrefix = defaultRedisKeyPrefix
	}
	if cfg.Redis.PoolSize <= 0 {
		cfg.Redis.PoolSize = defaultRedisPoolSize
	}
	if cfg.Redis.DialTimeoutMS <= 0 {
		cfg.Redis.DialTimeoutMS = defaultRedisTimeoutMS
	}
	if cfg.Redis.ReadTimeoutMS <= 0 {
		cfg.Redis.ReadTimeoutMS = defaultRedisTimeoutMS
	}
	if cfg.Redis.WriteTimeoutMS <= 0 {
		cfg.Redis.WriteTimeoutMS = defaultRedisTimeoutMS
	}
	if cfg.Redis.EventTTLSec <= 0 {
		cfg.Redis.EventTTLSec = defaultEventTTLSec
	}
	if cfg.Redis.RateRetentionSec <= 0 {
		cfg.Redis.RateRetentionSec = defaultRateRetentionSec
	}

	// Queue uses the same NATS URL list as ingest/state in cluster mode.
	cfg.Notify.Queue.URL = append([]string(nil), cfg.Ingest.NATS.URL...)
	cfg.Notify.Queue.Subject = defaultNotifySubject
	cfg.Notify.Queue.Stream = defaultNotifyStream
	cfg.Notify.Queue.ConsumerName = defaultNotifyConsumer
	cfg.Notify.Queue.DeliverGroup = defaultNotifyGroup
	cfg.Notify.Queue.DLQStream = defaultNotifyDLQStream
	cfg.Notify.Queue.DLQSubject = defaultNotifyDLQSubject
	if cfg.Notify.Queue.AckWaitSec <= 0 {
		cfg.Notify.Queue.AckWaitSec = defaultNATSAckWaitSec
	}
	if cfg.Notify.Queue.NackDelayMS <= 0 {
		cfg.Notify.Queue.NackDelayMS = defaultNATSNackDelayMS
	}
	if cfg.Notify.Queue.MaxDeliver == 0 {
		cfg.Notify.Queue.MaxDeliver = defaultNATSMaxDeliver
	}
	if cfg.Notify.Queue.MaxAckPending <= 0 {
		cfg.Notify.Queue.MaxAckPending = defaultNATSMaxAckPending
	}
}

// fillNotifyRetryDefaults normalizes retry policy fields for one channel.
// Params: retry policy pointer.
// Returns: policy defaults applied in place.
func fillNotifyRetryDefaults(retry *NotifyRetry) {
	if retry == nil {
		return
	}
	if retry.Backoff == "" {
		retry.Backoff = "exponential"
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = 500
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = 60000
	}
}

// validateConfig validates full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if len(cfg.Rule) == 0 {
		return errors.New("at least one rule is required")
	}
	mode := NormalizeServiceMode(cfg.Service.Mode)
	if !IsSupportedServiceMode(mode) {
		return fmt.Errorf("service.mode has unsupported value %q", cfg.Service.Mode)
	}
	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		return errors.New("ingest.http.listen is required")
	}
	if mode == ServiceModeSingle && !cfg.Ingest.HTTP.Enabled {
		return errors.New("ingest.http.enabled must be true when service.mode=single")
	}
	if mode == ServiceModeCluster {
		if err := validateClusterConfig(cfg); err != nil {
			return err
		}
	}

	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}
	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return errors.New("telemetry.endpoint is required when telemetry.enabled=true")
	}

	if cfg.Notify.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notify.Telegram.BotToken) == "" {
			return errors.New("notify.telegram.bot_token is required when notify.telegram.enabled=true")
		}
		if strings.TrimSpace(cfg.Notify.Telegram.ChatID) == "" {
			return errors.New("notify.telegram.chat_id is required when notify.telegram.enabled=true")
		}
	}
	if cfg.Notify.HTTP.Enabled && strings.TrimSpace(cfg.Notify.HTTP.URL) == "" {
		return errors.New("notify.http.url is required when notify.http.enabled=true")
	}
	if cfg.Notify.Queue.DLQ && !cfg.Notify.Queue.Enabled {
		return errors.New("notify.queue.dlq requires notify.queue.enabled=true")
	}
	templateByChannel, err := validateNotifyTemplates(cfg.Notify)
	if err != nil {
		return err
	}

	ruleNames := make(map[string]struct{}, len(cfg.Rule))
	ruleIDs := make(map[int64]string, len(cfg.Rule))
	for i, rule := range cfg.Rule {
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("rule[%d] %q: %w", i, rule.Name, err)
		}
		if _, exists := ruleNames[rule.Name]; exists {
			return fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		ruleNames[rule.Name] = struct{}{}
		if other, exists := ruleIDs[rule.ID]; exists {
			return fmt.Errorf("rule %q reuses id %d of rule %q", rule.Name, rule.ID, other)
		}
		ruleIDs[rule.ID] = rule.Name
		if err := validateRuleNotifyActions(cfg.Notify, rule, templateByChannel); err != nil {
			return fmt.Errorf("rule[%d] %q: %w", i, rule.Name, err)
		}
	}
	return nil
}

// validateClusterConfig validates NATS, Kafka, Redis, and queue settings.
// Params: cfg snapshot in cluster mode.
// Returns: first validation error.
func validateClusterConfig(cfg Config) error {
	if len(cfg.Ingest.NATS.URL) == 0 {
		return errors.New("ingest.nats.url is required")
	}
	for i, url := range cfg.Ingest.NATS.URL {
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("ingest.nats.url[%d] is empty", i)
		}
	}
	if cfg.Ingest.NATS.Enabled {
		if cfg.Ingest.NATS.AckWaitSec <= 0 {
			return errors.New("ingest.nats.ack_wait_sec must be >0 when ingest.nats.enabled=true")
		}
		if cfg.Ingest.NATS.MaxDeliver == 0 || cfg.Ingest.NATS.MaxDeliver < -1 {
			return errors.New("ingest.nats.max_deliver must be -1 or >0")
		}
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 {
			return errors.New("ingest.kafka.brokers is required when ingest.kafka.enabled=true")
		}
		if strings.TrimSpace(cfg.Ingest.Kafka.Topic) == "" {
			return errors.New("ingest.kafka.topic is required when ingest.kafka.enabled=true")
		}
		if cfg.Ingest.Kafka.MinBytes > cfg.Ingest.Kafka.MaxBytes {
			return errors.New("ingest.kafka.min_bytes must be <= ingest.kafka.max_bytes")
		}
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr is required when service.mode=cluster")
	}
	if cfg.Redis.DB < 0 {
		return errors.New("redis.db must be >=0")
	}
	if cfg.Redis.RateRetentionSec < 2*maxFrequencyMinutes*60 {
		return fmt.Errorf("redis.rate_retention_sec must cover two 30d windows (>=%d)", 2*maxFrequencyMinutes*60)
	}
	if cfg.Notify.Queue.Enabled {
		if cfg.Notify.Queue.AckWaitSec <= 0 {
			return errors.New("notify.queue.ack_wait_sec must be >0 when notify.queue.enabled=true")
		}
		if cfg.Notify.Queue.MaxDeliver == 0 || cfg.Notify.Queue.MaxDeliver < -1 {
			return errors.New("notify.queue.max_deliver must be -1 or >0")
		}
		if cfg.Notify.Queue.MaxAckPending <= 0 {
			return errors.New("notify.queue.max_ack_pending must be >0 when notify.queue.enabled=true")
		}
	}
	return nil
}

// validateRule validates one alert rule against schema constraints.
// Params: one decoded rule.
// Returns: rule-level validation error.
func validateRule(rule RuleConfig) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.New("name is required")
	}
	if rule.ID <= 0 {
		return errors.New("id must be >0")
	}
	if rule.ProjectID <= 0 {
		return errors.New("project_id must be >0")
	}
	for field, value := range map[string]string{"action_match": rule.ActionMatch, "filter_match": rule.FilterMatch} {
		if !IsSupportedMatchMode(value) {
			return fmt.Errorf("%s has unsupported value %q", field, value)
		}
	}
	if rule.FrequencyMinutes <= 0 || rule.FrequencyMinutes > maxFrequencyMinutes {
		return fmt.Errorf("frequency_minutes must be in 1..%d", maxFrequencyMinutes)
	}
	for i, condition := range rule.Condition {
		if strings.TrimSpace(condition.Kind) == "" {
			return fmt.Errorf("condition[%d].kind is required", i)
		}
	}
	if len(rule.Action) == 0 {
		return errors.New("at least one action is required")
	}
	for i, action := range rule.Action {
		if strings.TrimSpace(action.Kind) == "" {
			return fmt.Errorf("action[%d].kind is required", i)
		}
	}
	return nil
}

// validateNotifyTemplates indexes channel templates and validates their bodies.
// Params: notify config.
// Returns: channel -> template name -> template map or first template error.
func validateNotifyTemplates(notifyCfg NotifyConfig) (map[string]map[string]NamedTemplateConfig, error) {
	index := make(map[string]map[string]NamedTemplateConfig)
	for _, channel := range NotifyChannelNames() {
		if err := collectChannelTemplates(index, channel, "notify."+channel+".name-template", NotifyChannelTemplates(notifyCfg, channel)); err != nil {
			return nil, err
		}
	}
	return index, nil
}

// collectChannelTemplates validates one channel template list into index.
// Params: destination index, channel key, field path prefix, and templates.
// Returns: duplicate/parse error.
func collectChannelTemplates(index map[string]map[string]NamedTemplateConfig, channel, pathPrefix string, templates []NamedTemplateConfig) error {
	for i, tmpl := range templates {
		name := strings.ToLower(strings.TrimSpace(tmpl.Name))
		if name == "" {
			return fmt.Errorf("%s[%d].name is required", pathPrefix, i)
		}
		if _, exists := index[channel][name]; exists {
			return fmt.Errorf("%s[%d] duplicates template %q", pathPrefix, i, name)
		}
		if err := validateMessageTemplate(fmt.Sprintf("%s[%d].message", pathPrefix, i), tmpl.Message); err != nil {
			return err
		}
		if index[channel] == nil {
			index[channel] = make(map[string]NamedTemplateConfig)
		}
		index[channel][name] = tmpl
	}
	return nil
}

// validateRuleNotifyActions checks notify actions reference enabled channels and known templates.
// Params: notify config, rule, and template index.
// Returns: first action validation error.
func validateRuleNotifyActions(notifyCfg NotifyConfig, rule RuleConfig, templates map[string]map[string]NamedTemplateConfig) error {
	for i, action := range rule.Action {
		if !strings.EqualFold(strings.TrimSpace(action.Kind), ActionKindNotify) {
			continue
		}
		channel, _ := action.Params["channel"].(string)
		channel = NormalizeNotifyChannel(channel)
		if !IsSupportedNotifyChannel(channel) {
			return fmt.Errorf("action[%d].params.channel has unsupported value %q", i, channel)
		}
		if !NotifyChannelEnabled(notifyCfg, channel) {
			return fmt.Errorf("action[%d] uses disabled channel %q", i, channel)
		}
		templateName, _ := action.Params["template"].(string)
		templateName = strings.ToLower(strings.TrimSpace(templateName))
		if templateName == "" {
			return fmt.Errorf("action[%d].params.template is required", i)
		}
		if _, ok := templates[channel][templateName]; !ok {
			return fmt.Errorf("action[%d] references unknown template %q for channel %q", i, templateName, channel)
		}
	}
	return nil
}

func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// IsSupportedMatchMode reports whether rule match mode is ALL/ANY/NONE.
// Params: raw mode value.
// Returns: true for known modes.
func IsSupportedMatchMode(value string) bool {
	switch domain.NormalizeMatchMode(value) {
	case domain.MatchAll, domain.MatchAny, domain.MatchNone:
		return true
	default:
		return false
	}
}

// NormalizeNotifyChannel canonicalizes notify channel keys.
// Params: raw channel name from config.
// Returns: normalized lowercase channel key.
func NormalizeNotifyChannel(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizeServiceMode canonicalizes service mode and applies default.
// Params: raw mode value from config.
// Returns: normalized mode (`cluster` by default).
func NormalizeServiceMode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ServiceModeCluster
	}
	return normalized
}

// IsSupportedServiceMode reports whether mode value is supported.
// Params: normalized mode value.
// Returns: true for known modes.
func IsSupportedServiceMode(mode string) bool {
	switch NormalizeServiceMode(mode) {
	case ServiceModeCluster, ServiceModeSingle:
		return true
	default:
		return false
	}
}

// NotifyChannelNames returns deterministic list of supported channel keys.
// Params: none.
// Returns: ordered channel key list.
func NotifyChannelNames() []string {
	out := make([]string, len(notifyChannelOrder))
	copy(out, notifyChannelOrder)
	return out
}

// IsSupportedNotifyChannel reports whether channel key is supported.
// Params: normalized channel key.
// Returns: true when channel is one of known transports.
func IsSupportedNotifyChannel(channel string) bool {
	_, exists := notifyChannelRegistry[NormalizeNotifyChannel(channel)]
	return exists
}

// NotifyChannelEnabled checks if channel transport is enabled globally.
// Params: global notify config and normalized channel key.
// Returns: true when corresponding transport section is enabled.
func NotifyChannelEnabled(cfg NotifyConfig, channel string) bool {
	descriptor, ok := notifyChannelRegistry[NormalizeNotifyChannel(channel)]
	if !ok {
		return false
	}
	return descriptor.enabled(cfg)
}

// NotifyChannelRetry returns retry policy for one channel.
// Params: global notify config and channel key.
// Returns: retry policy for channel transport.
func NotifyChannelRetry(cfg NotifyConfig, channel string) NotifyRetry {
	descriptor, ok := notifyChannelRegistry[NormalizeNotifyChannel(channel)]
	if !ok {
		return NotifyRetry{}
	}
	return descriptor.retry(cfg)
}

// NotifyChannelTemplates returns template catalog for one channel.
// Params: global notify config and channel key.
// Returns: channel template list copy.
func NotifyChannelTemplates(cfg NotifyConfig, channel string) []NamedTemplateConfig {
	descriptor, ok := notifyChannelRegistry[NormalizeNotifyChannel(channel)]
	if !ok {
		return nil
	}
	return append([]NamedTemplateConfig(nil), descriptor.templates(cfg)...)
}

// validateMessageTemplate parses one text template and checks it is non-empty.
// Params: field path and template body.
// Returns: parse/empty error.
func validateMessageTemplate(path, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("%s is required", path)
	}
	if _, err := templatefmt.ParseNotificationTemplate(path, trimmed); err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error", "panic":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}
	return nil
}
