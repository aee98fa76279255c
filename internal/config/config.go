package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"dbPath"`
	// DatabaseURL active le stockage PostgreSQL à la place de SQLite.
	DatabaseURL string `yaml:"databaseUrl"`
	// RedisURL est optionnel (vue "live" partagée).
	RedisURL string `yaml:"redisUrl"`
	LogLevel string `yaml:"logLevel"`

	HTTPTimeout time.Duration `yaml:"httpTimeout"`

	Poll    PollConfig    `yaml:"poll"`
	Twitch  TwitchConfig  `yaml:"twitch"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Kick    KickConfig    `yaml:"kick"`
}

type PollConfig struct {
	// Scheduler désactivé = passages déclenchés uniquement par l'API ou -once.
	Scheduler      bool          `yaml:"scheduler"`
	TickInterval   time.Duration `yaml:"tickInterval"`
	RunTimeout     time.Duration `yaml:"runTimeout"`
	AdapterTimeout time.Duration `yaml:"adapterTimeout"`
}

type TwitchConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	Concurrency  int    `yaml:"concurrency"`
}

type YouTubeConfig struct {
	APIKey          string        `yaml:"apiKey"`
	FeedConcurrency int           `yaml:"feedConcurrency"`
	FreshnessWindow time.Duration `yaml:"freshnessWindow"`
	MaxCandidates   int           `yaml:"maxCandidates"`
}

type KickConfig struct {
	Concurrency int           `yaml:"concurrency"`
	ChunkDelay  time.Duration `yaml:"chunkDelay"`
}

func Default() Config {
	return Config{
		Addr:        "127.0.0.1:8080",
		DBPath:      "livewatch.db",
		LogLevel:    "info",
		HTTPTimeout: 15 * time.Second,
		Poll: PollConfig{
			Scheduler:      true,
			TickInterval:   60 * time.Second,
			RunTimeout:     5 * time.Minute,
			AdapterTimeout: 45 * time.Second,
		},
		Twitch:  TwitchConfig{Concurrency: 4},
		YouTube: YouTubeConfig{FeedConcurrency: 10, FreshnessWindow: 3 * time.Hour, MaxCandidates: 5},
		Kick:    KickConfig{Concurrency: 5, ChunkDelay: 250 * time.Millisecond},
	}
}

// Load applique dans l'ordre: valeurs par défaut, fichier YAML
// (LIVEWATCH_CONFIG), puis variables d'environnement.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("LIVEWATCH_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, "LIVEWATCH_ADDR")
	setString(&c.DBPath, "LIVEWATCH_DB_PATH")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.LogLevel, "LIVEWATCH_LOG_LEVEL")
	setString(&c.Twitch.ClientID, "TWITCH_CLIENT_ID")
	setString(&c.Twitch.ClientSecret, "TWITCH_CLIENT_SECRET")
	setString(&c.YouTube.APIKey, "YOUTUBE_API_KEY")

	if err := setDuration(&c.Poll.TickInterval, "LIVEWATCH_TICK_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.HTTPTimeout, "LIVEWATCH_HTTP_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("LIVEWATCH_SCHEDULER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LIVEWATCH_SCHEDULER: %w", err)
		}
		c.Poll.Scheduler = b
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr is required")
	}
	if c.DatabaseURL == "" && strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("dbPath or databaseUrl is required")
	}
	if c.Poll.TickInterval <= 0 || c.Poll.RunTimeout <= 0 {
		return fmt.Errorf("poll.tickInterval and poll.runTimeout must be > 0")
	}
	return nil
}

// LoadDotEnv charge ENV_FILE (prioritaire sur l'environnement) ou, à défaut,
// un .env local. Renvoie le fichier chargé ("" si aucun).
func LoadDotEnv() (string, error) {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Overload(envFile); err != nil {
			return "", fmt.Errorf("load ENV_FILE=%q: %w", envFile, err)
		}
		return envFile, nil
	}
	if err := godotenv.Load(); err == nil {
		return ".env", nil
	}
	return "", nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
