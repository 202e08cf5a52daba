package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"trade-manager/internal/core"
)

type Mode string

const (
	ModeTestnet Mode = "testnet"
	ModeLive    Mode = "live"
)

type Config struct {
	Mode      Mode            `yaml:"mode"`
	Accounts  []AccountConfig `yaml:"accounts"`
	Exchanges ExchangesConfig `yaml:"exchanges"`
	Engine    EngineConfig    `yaml:"engine"`
	Report    ReportConfig    `yaml:"report"`
	Notice    NoticeConfig    `yaml:"notice"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Log       LogConfig       `yaml:"log"`
	State     StateConfig     `yaml:"state"`
}

type AccountConfig struct {
	Provider   string `yaml:"provider"`
	Name       string `yaml:"name"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`
}

type ExchangesConfig struct {
	Binance ExchangeConfig `yaml:"binance"`
	Bybit   ExchangeConfig `yaml:"bybit"`
	Bitget  ExchangeConfig `yaml:"bitget"`
}

type ExchangeConfig struct {
	RestBaseURL       string `yaml:"rest_base_url"`
	WSBaseURL         string `yaml:"ws_base_url"`
	RecvWindowMs      int64  `yaml:"recv_window_ms"`
	HTTPTimeoutSec    int64  `yaml:"http_timeout_sec"`
	WSKeepaliveSec    int64  `yaml:"ws_keepalive_sec"`
	ClientOrderPrefix string `yaml:"client_order_prefix"`
}

type EngineConfig struct {
	MaxParallel    int   `yaml:"max_parallel"`
	CallTimeoutSec int64 `yaml:"call_timeout_sec"`
}

type ReportConfig struct {
	DustThreshold *Decimal `yaml:"dust_threshold"`
	Timezone      string   `yaml:"timezone"`
}

type NoticeConfig struct {
	Channel string      `yaml:"channel"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type TelegramConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BotToken       string  `yaml:"bot_token"`
	APIBaseURL     string  `yaml:"api_base_url"`
	TimeoutSec     int64   `yaml:"timeout_sec"`
	PollTimeoutSec int64   `yaml:"poll_timeout_sec"`
	AllowedChatIDs []int64 `yaml:"allowed_chat_ids"`
	AlertChatID    string  `yaml:"alert_chat_id"`
	MaxMessageLen  int     `yaml:"max_message_len"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockTakeover *bool  `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

// Overrides are read from the environment after the YAML file is decoded.
type Overrides struct {
	TelegramBotToken string `envconfig:"TRADE_MANAGER_TELEGRAM_BOT_TOKEN"`
	RedisAddr        string `envconfig:"TRADE_MANAGER_REDIS_ADDR"`
	RedisPassword    string `envconfig:"TRADE_MANAGER_REDIS_PASSWORD"`
	NoticeChannel    string `envconfig:"TRADE_MANAGER_NOTICE_CHANNEL"`
	LogLevel         string `envconfig:"TRADE_MANAGER_LOG_LEVEL"`
	Timezone         string `envconfig:"TIMEZONE"`
}

// Load reads path, expanding ${VAR} references from the environment. A .env file
// next to the config file is loaded first when present.
func Load(path string) (Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a single YAML document and applies overrides, defaults and validation.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expandEnvRefs(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	var ov Overrides
	if err := envconfig.Process("", &ov); err != nil {
		return Config{}, fmt.Errorf("env overrides: %w", err)
	}
	cfg.applyOverrides(ov)
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvRefs replaces ${VAR} references and leaves any other $ untouched.
func expandEnvRefs(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyOverrides(ov Overrides) {
	if ov.TelegramBotToken != "" {
		c.Telegram.BotToken = ov.TelegramBotToken
	}
	if ov.RedisAddr != "" {
		c.Notice.Redis.Addr = ov.RedisAddr
	}
	if ov.RedisPassword != "" {
		c.Notice.Redis.Password = ov.RedisPassword
	}
	if ov.NoticeChannel != "" {
		c.Notice.Channel = ov.NoticeChannel
	}
	if ov.LogLevel != "" {
		c.Log.Level = ov.LogLevel
	}
	if ov.Timezone != "" && c.Report.Timezone == "" {
		c.Report.Timezone = ov.Timezone
	}
}

func (c *Config) normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	for i := range c.Accounts {
		a := &c.Accounts[i]
		a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
		a.Name = strings.TrimSpace(a.Name)
		a.APIKey = strings.TrimSpace(a.APIKey)
		a.APISecret = strings.TrimSpace(a.APISecret)
		a.Passphrase = strings.TrimSpace(a.Passphrase)
	}
	for _, ex := range []*ExchangeConfig{&c.Exchanges.Binance, &c.Exchanges.Bybit, &c.Exchanges.Bitget} {
		ex.RestBaseURL = strings.TrimRight(strings.TrimSpace(ex.RestBaseURL), "/")
		ex.WSBaseURL = strings.TrimSpace(ex.WSBaseURL)
		ex.ClientOrderPrefix = strings.ToLower(strings.TrimSpace(ex.ClientOrderPrefix))
	}
	c.Report.Timezone = strings.TrimSpace(c.Report.Timezone)
	c.Notice.Channel = strings.TrimSpace(c.Notice.Channel)
	c.Notice.Redis.Addr = strings.TrimSpace(c.Notice.Redis.Addr)
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	c.Telegram.APIBaseURL = strings.TrimSpace(c.Telegram.APIBaseURL)
	c.Telegram.AlertChatID = strings.TrimSpace(c.Telegram.AlertChatID)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.File = strings.TrimSpace(c.Log.File)
	c.State.Dir = strings.TrimSpace(c.State.Dir)
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeLive
	}
	applyExchangeDefaults(&c.Exchanges.Binance, c.Mode, "https://api.binance.com", "https://testnet.binance.vision")
	applyExchangeDefaults(&c.Exchanges.Bybit, c.Mode, "https://api.bybit.com", "https://api-testnet.bybit.com")
	applyExchangeDefaults(&c.Exchanges.Bitget, c.Mode, "https://api.bitget.com", "https://api.bitget.com")
	if c.Engine.MaxParallel == 0 {
		c.Engine.MaxParallel = 4
	}
	if c.Engine.CallTimeoutSec == 0 {
		c.Engine.CallTimeoutSec = 20
	}
	if c.Report.DustThreshold == nil {
		c.Report.DustThreshold = &Decimal{Decimal: decimal.NewFromInt(1)}
	}
	if c.Report.Timezone == "" {
		c.Report.Timezone = "UTC"
	}
	if c.Notice.Channel == "" {
		c.Notice.Channel = "TEST_NEW_NOTICES"
	}
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Telegram.TimeoutSec == 0 {
		c.Telegram.TimeoutSec = 10
	}
	if c.Telegram.PollTimeoutSec == 0 {
		c.Telegram.PollTimeoutSec = 30
	}
	if c.Telegram.MaxMessageLen == 0 {
		c.Telegram.MaxMessageLen = 4000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 14
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.LockTakeover == nil {
		enabled := true
		c.State.LockTakeover = &enabled
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
}

func applyExchangeDefaults(ex *ExchangeConfig, mode Mode, liveURL, testnetURL string) {
	if ex.RestBaseURL == "" {
		if mode == ModeTestnet {
			ex.RestBaseURL = testnetURL
		} else {
			ex.RestBaseURL = liveURL
		}
	}
	if ex.RecvWindowMs == 0 {
		ex.RecvWindowMs = 5000
	}
	if ex.HTTPTimeoutSec == 0 {
		ex.HTTPTimeoutSec = 15
	}
	if ex.WSKeepaliveSec == 0 {
		ex.WSKeepaliveSec = 30
	}
	if ex.ClientOrderPrefix == "" {
		ex.ClientOrderPrefix = "tm"
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeTestnet, ModeLive:
	default:
		return fmt.Errorf("mode must be testnet or live")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		p, ok := core.ParseProvider(a.Provider)
		if !ok {
			return fmt.Errorf("accounts[%d].provider must be binance, bybit, or bitget", i)
		}
		if a.Name == "" {
			return fmt.Errorf("accounts[%d].name is required", i)
		}
		key := string(p) + "/" + a.Name
		if seen[key] {
			return fmt.Errorf("accounts[%d] duplicates %s account %q", i, p, a.Name)
		}
		seen[key] = true
		if a.APIKey == "" || a.APISecret == "" {
			return fmt.Errorf("accounts[%d] (%s) api_key/api_secret are required", i, a.Name)
		}
		if p == core.Bitget && a.Passphrase == "" {
			return fmt.Errorf("accounts[%d] (%s) passphrase is required for bitget", i, a.Name)
		}
	}
	exchanges := map[string]ExchangeConfig{
		"binance": c.Exchanges.Binance,
		"bybit":   c.Exchanges.Bybit,
		"bitget":  c.Exchanges.Bitget,
	}
	for name, ex := range exchanges {
		if err := validateURL(ex.RestBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("exchanges.%s.rest_base_url %v", name, err)
		}
		if ex.RecvWindowMs < 1 || ex.RecvWindowMs > 60000 {
			return fmt.Errorf("exchanges.%s.recv_window_ms must be between 1 and 60000", name)
		}
		if ex.HTTPTimeoutSec < 1 || ex.HTTPTimeoutSec > 120 {
			return fmt.Errorf("exchanges.%s.http_timeout_sec must be between 1 and 120", name)
		}
		if !isValidPrefix(ex.ClientOrderPrefix) {
			return fmt.Errorf("exchanges.%s.client_order_prefix must match [a-z0-9], length 1..8", name)
		}
	}
	if ws := c.Exchanges.Binance.WSBaseURL; ws != "" {
		if err := validateURL(ws, "ws", "wss"); err != nil {
			return fmt.Errorf("exchanges.binance.ws_base_url %v", err)
		}
	}
	if c.Exchanges.Bybit.WSBaseURL != "" || c.Exchanges.Bitget.WSBaseURL != "" {
		return fmt.Errorf("ws_base_url is only supported for binance")
	}
	if c.Engine.MaxParallel < 1 || c.Engine.MaxParallel > 64 {
		return fmt.Errorf("engine.max_parallel must be between 1 and 64")
	}
	if c.Engine.CallTimeoutSec < 1 || c.Engine.CallTimeoutSec > 300 {
		return fmt.Errorf("engine.call_timeout_sec must be between 1 and 300")
	}
	if c.Report.DustThreshold != nil && c.Report.DustThreshold.Sign() < 0 {
		return fmt.Errorf("report.dust_threshold must be >= 0")
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}
	if c.Notice.Redis.DB < 0 {
		return fmt.Errorf("notice.redis.db must be >= 0")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram enabled")
		}
		if len(c.Telegram.AllowedChatIDs) == 0 {
			return fmt.Errorf("telegram.allowed_chat_ids is required when telegram enabled")
		}
		if c.Telegram.TimeoutSec < 1 || c.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("telegram.timeout_sec must be between 1 and 120")
		}
		if c.Telegram.PollTimeoutSec < 1 || c.Telegram.PollTimeoutSec > 100 {
			return fmt.Errorf("telegram.poll_timeout_sec must be between 1 and 100")
		}
		if err := validateURL(c.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("telegram.api_base_url %v", err)
		}
	}
	if c.Telegram.MaxMessageLen < 1 || c.Telegram.MaxMessageLen > 4096 {
		return fmt.Errorf("telegram.max_message_len must be between 1 and 4096")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	return nil
}

// CoreAccounts converts the validated account list into registry accounts, in file order.
func (c Config) CoreAccounts() []core.Account {
	out := make([]core.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		p, _ := core.ParseProvider(a.Provider)
		out = append(out, core.Account{
			Provider: p,
			Name:     a.Name,
			Credentials: core.Credentials{
				APIKey:     a.APIKey,
				APISecret:  a.APISecret,
				Passphrase: a.Passphrase,
			},
		})
	}
	return out
}

// Exchange returns the transport settings of provider p.
func (c Config) Exchange(p core.Provider) ExchangeConfig {
	switch p {
	case core.Bybit:
		return c.Exchanges.Bybit
	case core.Bitget:
		return c.Exchanges.Bitget
	default:
		return c.Exchanges.Binance
	}
}

func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.Engine.CallTimeoutSec) * time.Second
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isValidPrefix(v string) bool {
	if len(v) < 1 || len(v) > 8 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
