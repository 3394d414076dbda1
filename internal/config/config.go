package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zones resolve on hosts without a system tz database

	"gopkg.in/yaml.v3"
)

// Upper limits for the day and week windows
const (
	MaxWindowDays = 35
	MaxWeeks      = 5
)

type Config struct {
	Port        string            `yaml:"port"`
	VaultPath   string            `yaml:"vault_path"`
	DBPath      string            `yaml:"db_path"`
	Timezone    string            `yaml:"timezone"`
	WeekStart   string            `yaml:"week_start"`
	WeeksCount  int               `yaml:"weeks_count"`
	WindowDays  int               `yaml:"window_days"`
	RulesSource string            `yaml:"rules_source"` // CSV/TSV authored table
	RulesPath   string            `yaml:"rules_path"`   // compiled JSON table
	Tokens      map[string]string `yaml:"tokens"`       // user -> bearer token
	RateLimit   int               `yaml:"rate_limit"`   // requests per minute per user, 0 disables
	Kafka       KafkaConfig       `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// Enabled reports whether Kafka ingest is configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Load builds the config from defaults, then the YAML file named by
// MOOD_CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       "8080",
		Timezone:   "Europe/London",
		WeekStart:  "sunday",
		WeeksCount: MaxWeeks,
		WindowDays: MaxWindowDays,
		RateLimit:  120,
		Kafka: KafkaConfig{
			Topic:   "mood-events",
			GroupID: "moodtrack",
		},
	}

	if path := os.Getenv("MOOD_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("MOOD_PORT", cfg.Port)
	cfg.VaultPath = getEnv("MOOD_VAULT_PATH", cfg.VaultPath)
	cfg.DBPath = getEnv("MOOD_DB_PATH", cfg.DBPath)
	cfg.Timezone = getEnv("MOOD_TIMEZONE", cfg.Timezone)
	cfg.WeekStart = getEnv("MOOD_WEEK_START", cfg.WeekStart)
	cfg.RulesSource = getEnv("MOOD_RULES_SOURCE", cfg.RulesSource)
	cfg.RulesPath = getEnv("MOOD_RULES_PATH", cfg.RulesPath)
	cfg.Kafka.Topic = getEnv("MOOD_KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Kafka.GroupID = getEnv("MOOD_KAFKA_GROUP", cfg.Kafka.GroupID)

	var err error
	if cfg.WeeksCount, err = getEnvInt("MOOD_WEEKS_COUNT", cfg.WeeksCount); err != nil {
		return nil, err
	}
	if cfg.WindowDays, err = getEnvInt("MOOD_WINDOW_DAYS", cfg.WindowDays); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getEnvInt("MOOD_RATE_LIMIT", cfg.RateLimit); err != nil {
		return nil, err
	}
	if brokers := os.Getenv("MOOD_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	if tokens := os.Getenv("MOOD_TOKENS"); tokens != "" {
		if cfg.Tokens, err = ParseTokens(tokens); err != nil {
			return nil, err
		}
	}

	if cfg.RulesPath == "" && cfg.VaultPath != "" {
		cfg.RulesPath = filepath.Join(cfg.VaultPath, "Rules", "compiled.json")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.VaultPath == "" {
		return fmt.Errorf("MOOD_VAULT_PATH is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("MOOD_DB_PATH is required")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("MOOD_TOKENS is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid MOOD_TIMEZONE %q: %w", c.Timezone, err)
	}
	if _, err := ParseWeekday(c.WeekStart); err != nil {
		return err
	}
	if c.WeeksCount < 1 || c.WeeksCount > MaxWeeks {
		return fmt.Errorf("MOOD_WEEKS_COUNT must be between 1 and %d", MaxWeeks)
	}
	if c.WindowDays < 1 || c.WindowDays > MaxWindowDays {
		return fmt.Errorf("MOOD_WINDOW_DAYS must be between 1 and %d", MaxWindowDays)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("MOOD_RATE_LIMIT must not be negative")
	}
	return nil
}

// Location returns the configured time zone. Only call after Load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FirstWeekday returns the configured week start
func (c *Config) FirstWeekday() time.Weekday {
	d, _ := ParseWeekday(c.WeekStart)
	return d
}

// UserFromToken maps a bearer token to its user
func (c *Config) UserFromToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for user, t := range c.Tokens {
		if t == token {
			return user, true
		}
	}
	return "", false
}

// Users returns the configured users in sorted order
func (c *Config) Users() []string {
	users := make([]string, 0, len(c.Tokens))
	for u := range c.Tokens {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// ParseTokens reads "user:token,user2:token2"
func ParseTokens(s string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range splitList(s) {
		user, token, ok := strings.Cut(pair, ":")
		user, token = strings.TrimSpace(user), strings.TrimSpace(token)
		if !ok || user == "" || token == "" {
			return nil, fmt.Errorf("invalid MOOD_TOKENS entry %q, want user:token", pair)
		}
		if _, dup := tokens[user]; dup {
			return nil, fmt.Errorf("duplicate user %q in MOOD_TOKENS", user)
		}
		tokens[user] = token
	}
	return tokens, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday reads a weekday name such as "sunday" or "Mon"
func ParseWeekday(s string) (time.Weekday, error) {
	if d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return time.Sunday, fmt.Errorf("invalid MOOD_WEEK_START %q", s)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
