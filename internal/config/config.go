package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	API      APIConfig     `json:"api" yaml:"api"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Quota    QuotaConfig   `json:"quota" yaml:"quota"`
	Dedup    DedupConfig   `json:"dedup" yaml:"dedup"`
	History  HistoryConfig `json:"history" yaml:"history"`
	Extract  ExtractConfig `json:"extract" yaml:"extract"`
	LLM      LLMConfig     `json:"llm" yaml:"llm"`
	Notify   NotifyConfig  `json:"notify" yaml:"notify"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
	Dir     string `json:"dir" yaml:"dir"`
}

type QuotaConfig struct {
	DailyLimit    int           `json:"daily_limit" yaml:"daily_limit"`
	Window        time.Duration `json:"window" yaml:"window"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

type DedupConfig struct {
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

type HistoryConfig struct {
	MaxPerUser    int           `json:"max_per_user" yaml:"max_per_user"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

type ExtractConfig struct {
	MaxInputBytes int64 `json:"max_input_bytes" yaml:"max_input_bytes"`
}

type LLMConfig struct {
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	APIKey    string        `json:"api_key" yaml:"api_key"`
	Model     string        `json:"model" yaml:"model"`
	Prompt    string        `json:"prompt" yaml:"prompt"`
	MaxTokens int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

type NotifyConfig struct {
	Kafka   KafkaConfig   `json:"kafka" yaml:"kafka"`
	Webhook WebhookConfig `json:"webhook" yaml:"webhook"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		API:      APIConfig{Enabled: true, Addr: ":8080"},
		Storage:  StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:docbrief.db?_pragma=busy_timeout(5000)"},
		Quota: QuotaConfig{
			DailyLimit:    10,
			Window:        24 * time.Hour,
			FlushInterval: 5 * time.Second,
		},
		Dedup: DedupConfig{
			TTL:           1 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		History: HistoryConfig{
			MaxPerUser:    10,
			FlushInterval: 5 * time.Second,
		},
		Extract: ExtractConfig{MaxInputBytes: 10 << 20},
		LLM: LLMConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
		Notify: NotifyConfig{
			Kafka:   KafkaConfig{Enabled: false},
			Webhook: WebhookConfig{Enabled: false},
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Quota.DailyLimit <= 0 {
		cfg.Quota.DailyLimit = 10
	}
	if cfg.Quota.Window <= 0 {
		cfg.Quota.Window = 24 * time.Hour
	}
	if cfg.Quota.FlushInterval <= 0 {
		cfg.Quota.FlushInterval = 5 * time.Second
	}
	if cfg.Dedup.TTL <= 0 {
		cfg.Dedup.TTL = 1 * time.Hour
	}
	if cfg.Dedup.SweepInterval <= 0 {
		cfg.Dedup.SweepInterval = 10 * time.Minute
	}
	if cfg.History.MaxPerUser <= 0 {
		cfg.History.MaxPerUser = 10
	}
	if cfg.History.FlushInterval <= 0 {
		cfg.History.FlushInterval = 5 * time.Second
	}
	if cfg.Extract.MaxInputBytes <= 0 {
		cfg.Extract.MaxInputBytes = 10 << 20
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		case "file":
			if cfg.Storage.Dir == "" {
				return errors.New("storage.dir required when storage.driver is file")
			}
		default:
			return fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
		}
	}
	if cfg.Notify.Kafka.Enabled {
		if len(cfg.Notify.Kafka.Brokers) == 0 || cfg.Notify.Kafka.Topic == "" {
			return errors.New("notify.kafka requires brokers and topic")
		}
	}
	if cfg.Notify.Webhook.Enabled && cfg.Notify.Webhook.URL == "" {
		return errors.New("notify.webhook.url required when notify.webhook.enabled is true")
	}
	if cfg.LLM.BaseURL == "" {
		return errors.New("llm.base_url must not be empty")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a config that has no backing file. Reload and
// Watch become no-ops.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
