package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every environment key, e.g. DEALBOT_TOKEN. Each key
// also falls back to its unprefixed name (TOKEN, ADMIN_ID, ...).
const EnvPrefix = "DEALBOT"

const (
	DefaultAdminID        int64 = 7371674958
	DefaultStateFile            = "pro_db.json"
	DefaultHistoryFile          = "history.db"
	DefaultHTTPPort             = 8080
	DefaultDealsURL             = "https://www.pricebefore.com/deals/"
	DefaultPostInterval         = 20 * time.Minute
	DefaultFirstDelay           = 10 * time.Second
	DefaultFetchTimeout         = 10 * time.Second
	DefaultBroadcastDelay       = 50 * time.Millisecond
)

var ErrMissingToken = errors.New("missing bot token")

// Duration reads "20m" style values from both JSON and the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	BotToken string `json:"bot_token" envconfig:"TOKEN"`
	AdminID  int64  `json:"admin_id" envconfig:"ADMIN_ID"`

	DataDir     string `json:"data_dir" envconfig:"DATA_DIR"`
	StateFile   string `json:"state_file" envconfig:"STATE_FILE"`
	HistoryFile string `json:"history_file" envconfig:"HISTORY_FILE"`

	HTTPPort int    `json:"http_port" envconfig:"PORT"`
	DealsURL string `json:"deals_url" envconfig:"DEALS_URL"`

	PostInterval   Duration `json:"post_interval" envconfig:"POST_INTERVAL"`
	FirstDelay     Duration `json:"first_delay" envconfig:"FIRST_DELAY"`
	FetchTimeout   Duration `json:"fetch_timeout" envconfig:"FETCH_TIMEOUT"`
	BroadcastDelay Duration `json:"broadcast_delay" envconfig:"BROADCAST_DELAY"`

	// If true, logs at debug level in console format.
	Debug bool `json:"debug,omitempty" envconfig:"DEBUG"`
}

func DefaultConfigPath() string {
	if v := os.Getenv(EnvPrefix + "_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Load layers configuration: JSON file at path (optional), then a .env file
// in the working directory (optional), then environment, then defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	var cfg Config
	// 1) File
	if b, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "invalid config json")
		}
	} else if !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "read config")
	}

	// 2) .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return Config{}, errors.Wrap(err, "read .env")
	}

	// 3) Environment
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unable to load configuration from environment")
	}
	if cfg.BotToken == "" {
		cfg.BotToken = os.Getenv("BOT_TOKEN")
	}

	// 4) Defaults
	cfg.applyDefaults()

	if cfg.BotToken == "" {
		return Config{}, errors.Wrapf(ErrMissingToken, "set bot_token in %s or TOKEN env", path)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AdminID == 0 {
		c.AdminID = DefaultAdminID
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
	c.DataDir = filepath.Clean(c.DataDir)
	if c.StateFile == "" {
		c.StateFile = DefaultStateFile
	}
	if c.HistoryFile == "" {
		c.HistoryFile = DefaultHistoryFile
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.DealsURL == "" {
		c.DealsURL = DefaultDealsURL
	}
	setDefault(&c.PostInterval, DefaultPostInterval)
	setDefault(&c.FirstDelay, DefaultFirstDelay)
	setDefault(&c.FetchTimeout, DefaultFetchTimeout)
	setDefault(&c.BroadcastDelay, DefaultBroadcastDelay)
}

func setDefault(d *Duration, v time.Duration) {
	if d.Duration <= 0 {
		d.Duration = v
	}
}

// StatePath is the JSON config store file.
func (c Config) StatePath() string {
	return resolve(c.DataDir, c.StateFile)
}

// HistoryPath is the sqlite journal file.
func (c Config) HistoryPath() string {
	return resolve(c.DataDir, c.HistoryFile)
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
