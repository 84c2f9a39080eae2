package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddr      string         `toml:"listenAddr"`
	StaticDir       string         `toml:"staticDir"`
	DefaultLanguage string         `toml:"defaultLanguage"`
	LogConfig       LogConfig      `toml:"logConfig"`
	Ledger          LedgerConfig   `toml:"ledger"`
	ImageGen        ImageGenConfig `toml:"imageGen"`
	Stripe          StripeConfig   `toml:"stripe"`
	Weather         WeatherConfig  `toml:"weather"`
	Telegram        TelegramConfig `toml:"telegram"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// LedgerConfig selects the credit ledger backend.
type LedgerConfig struct {
	Backend        string `toml:"backend"` // file, sqlite, postgres
	Path           string `toml:"path"`    // file / sqlite
	DSN            string `toml:"dsn"`     // postgres
	FreeCredits    int64  `toml:"freeCredits"`
	GenerationCost int64  `toml:"generationCost"`
}

type ImageGenConfig struct {
	Provider     string   `toml:"provider"` // openai, fal
	OpenAIKey    string   `toml:"openAIKey"`
	Model        string   `toml:"model"`
	FalAIKey     string   `toml:"falAIKey"`
	FalEndpoint  string   `toml:"falEndpoint"`
	PollInterval Duration `toml:"pollInterval"`
	Timeout      Duration `toml:"timeout"`
}

type StripeConfig struct {
	SecretKey string `toml:"secretKey"`
	Currency  string `toml:"currency"`
}

type WeatherConfig struct {
	URL     string   `toml:"url"`
	APIKey  string   `toml:"apiKey"`
	Timeout Duration `toml:"timeout"`
}

// TelegramConfig is optional; an empty BotToken disables notifications.
type TelegramConfig struct {
	BotToken    string  `toml:"botToken"`
	APIEndpoint string  `toml:"apiEndpoint"`
	ChatIDs     []int64 `toml:"chatIDs"`
}

// Duration decodes TOML strings like "2s" or "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyEnv fills empty secrets from the environment.
func ApplyEnv(cfg *Config) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&cfg.ImageGen.OpenAIKey, "OPENAI_API_KEY")
	fill(&cfg.ImageGen.FalAIKey, "FAL_KEY")
	fill(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	fill(&cfg.Weather.APIKey, "NASA_API_KEY")
	if cfg.ListenAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.ListenAddr = ":" + port
		}
	}
}

func ApplyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":3001"
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "./public"
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Format == "" {
		cfg.LogConfig.Format = "console"
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "file"
	}
	if cfg.Ledger.Path == "" {
		switch cfg.Ledger.Backend {
		case "sqlite":
			cfg.Ledger.Path = "./user_credits.db"
		default:
			cfg.Ledger.Path = "./user_credits.json"
		}
	}
	if cfg.Ledger.FreeCredits == 0 {
		cfg.Ledger.FreeCredits = 100
	}
	if cfg.Ledger.GenerationCost == 0 {
		cfg.Ledger.GenerationCost = 25
	}
	if cfg.ImageGen.Provider == "" {
		cfg.ImageGen.Provider = "openai"
	}
	if cfg.ImageGen.Model == "" {
		cfg.ImageGen.Model = "dall-e-3"
	}
	if cfg.ImageGen.FalEndpoint == "" {
		cfg.ImageGen.FalEndpoint = "https://queue.fal.run/fal-ai/flux/dev"
	}
	if cfg.ImageGen.PollInterval.Duration == 0 {
		cfg.ImageGen.PollInterval.Duration = 2 * time.Second
	}
	if cfg.ImageGen.Timeout.Duration == 0 {
		cfg.ImageGen.Timeout.Duration = 3 * time.Minute
	}
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = "usd"
	}
	if cfg.Weather.URL == "" {
		cfg.Weather.URL = "https://api.nasa.gov/insight_weather/"
	}
	if cfg.Weather.APIKey == "" {
		cfg.Weather.APIKey = "DEMO_KEY"
	}
	if cfg.Weather.Timeout.Duration == 0 {
		cfg.Weather.Timeout.Duration = 10 * time.Second
	}
}

func ValidateURL(urlString string) bool {
	if urlString == "" {
		return false
	}
	u, err := url.Parse(urlString)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func MaskedPrint(str string) string {
	if len(str) <= 4 {
		return strings.Repeat("*", len(str))
	}
	// only show the last 4 characters
	return strings.Repeat("*", len(str)-4) + str[len(str)-4:]
}

func PrintConfig(cfg *Config) {
	fmt.Println()
	fmt.Println("--------------------------------")
	fmt.Println("Config:")
	fmt.Printf("\tListenAddr: %s\n", cfg.ListenAddr)
	fmt.Printf("\tStaticDir: %s\n", cfg.StaticDir)
	fmt.Printf("\tDefaultLanguage: %s\n", cfg.DefaultLanguage)
	fmt.Printf("\tLogConfig: %v\n", cfg.LogConfig)
	fmt.Printf("\tLedger: backend=%s path=%s dsn=%s freeCredits=%d generationCost=%d\n",
		cfg.Ledger.Backend, cfg.Ledger.Path, MaskedPrint(cfg.Ledger.DSN), cfg.Ledger.FreeCredits, cfg.Ledger.GenerationCost)
	fmt.Printf("\tImageGen: provider=%s model=%s openAIKey=%s falAIKey=%s falEndpoint=%s\n",
		cfg.ImageGen.Provider, cfg.ImageGen.Model, MaskedPrint(cfg.ImageGen.OpenAIKey), MaskedPrint(cfg.ImageGen.FalAIKey), cfg.ImageGen.FalEndpoint)
	fmt.Printf("\tStripe: secretKey=%s currency=%s\n", MaskedPrint(cfg.Stripe.SecretKey), cfg.Stripe.Currency)
	fmt.Printf("\tWeather: url=%s apiKey=%s timeout=%s\n", cfg.Weather.URL, MaskedPrint(cfg.Weather.APIKey), cfg.Weather.Timeout)
	fmt.Printf("\tTelegram: botToken=%s chatIDs=%v\n", MaskedPrint(cfg.Telegram.BotToken), cfg.Telegram.ChatIDs)
	fmt.Println("--------------------------------")
	fmt.Println()
}

// ValidateLedger checks only the ledger section.
func ValidateLedger(cfg LedgerConfig) error {
	switch cfg.Backend {
	case "file", "sqlite":
		if cfg.Path == "" {
			return fmt.Errorf("ledger.path is required for backend %s", cfg.Backend)
		}
	case "postgres":
		if cfg.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for backend postgres")
		}
	default:
		return fmt.Errorf("ledger.backend must be one of: file, sqlite, postgres")
	}
	if cfg.FreeCredits < 0 {
		return fmt.Errorf("freeCredits must not be negative")
	}
	if cfg.GenerationCost <= 0 {
		return fmt.Errorf("generationCost must be greater than 0")
	}
	return nil
}

func ValidateConfig(cfg *Config) error {
	PrintConfig(cfg)
	if err := ValidateLedger(cfg.Ledger); err != nil {
		return err
	}
	switch cfg.ImageGen.Provider {
	case "openai":
		if cfg.ImageGen.OpenAIKey == "" {
			return fmt.Errorf("imageGen.openAIKey (or OPENAI_API_KEY) is required")
		}
	case "fal":
		if cfg.ImageGen.FalAIKey == "" {
			return fmt.Errorf("imageGen.falAIKey (or FAL_KEY) is required")
		}
		if !ValidateURL(cfg.ImageGen.FalEndpoint) {
			return fmt.Errorf("imageGen.falEndpoint must be a valid URL")
		}
	default:
		return fmt.Errorf("imageGen.provider must be one of: openai, fal")
	}
	if cfg.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe.secretKey (or STRIPE_SECRET_KEY) is required")
	}
	if !ValidateURL(cfg.Weather.URL) {
		return fmt.Errorf("weather.url must be a valid URL")
	}
	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.ChatIDs) == 0 {
		return fmt.Errorf("telegram.chatIDs is required when telegram.botToken is set")
	}
	if cfg.LogConfig.Level == "" {
		return fmt.Errorf("logLevel is required")
	}
	if cfg.LogConfig.Format == "" {
		return fmt.Errorf("logFormat is required")
	}
	return nil
}
