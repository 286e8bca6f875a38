package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Location  Location  `yaml:"location"`
	Sources   Sources   `yaml:"sources"`
	Review    Review    `yaml:"review"`
	Research  Research  `yaml:"research"`
	LLM       LLM       `yaml:"llm"`
	Planner   Planner   `yaml:"planner"`
	Delivery  Delivery  `yaml:"delivery"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Telemetry Telemetry `yaml:"telemetry"`
	Logging   Logging   `yaml:"logging"`
}

type Location struct {
	City      string `yaml:"city"`
	StateCode string `yaml:"state_code"`
	Timezone  string `yaml:"timezone"`
}

type Sources struct {
	Ticketmaster TicketmasterConfig `yaml:"ticketmaster"`
	Meetup       MeetupConfig       `yaml:"meetup"`
	SerpAPI      SerpAPIConfig      `yaml:"serpapi"`
	Feeds        []Feed             `yaml:"feeds"`
	Pages        []Page             `yaml:"pages"`
}

type TicketmasterConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	DaysAhead int    `yaml:"days_ahead"`
}

type MeetupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
}

type SerpAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// Page describes an HTML listing page and the CSS selectors used to pull
// events out of it.
type Page struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Item     string `yaml:"item"`
	Title    string `yaml:"title"`
	Link     string `yaml:"link"`
	When     string `yaml:"when"`
	Location string `yaml:"location"`
	Summary  string `yaml:"summary"`
}

type Review struct {
	MaxConcurrent  int  `yaml:"max_concurrent"`
	WebSearch      bool `yaml:"web_search"`
	Content        bool `yaml:"content"`
	Relevance      bool `yaml:"relevance"`
	DateWindowDays int  `yaml:"date_window_days"`
}

type Research struct {
	Enabled       bool     `yaml:"enabled"`
	MaxConcurrent int      `yaml:"max_concurrent"`
	MaxEntities   int      `yaml:"max_entities"`
	MaxQueries    int      `yaml:"max_queries"`
	Backends      []string `yaml:"backends"`
	CacheSize     int      `yaml:"cache_size"`
}

type LLM struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url"`
	OpenAIModel     string `yaml:"openai_model"`
	APIKeyEnv       string `yaml:"api_key_env"`
	AnthropicModel  string `yaml:"anthropic_model"`
	AnthropicKeyEnv string `yaml:"anthropic_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
}

type Planner struct {
	MaxIterations int `yaml:"max_iterations"`
}

type Delivery struct {
	Method    string      `yaml:"method"`
	Recipient string      `yaml:"recipient"`
	Mute      bool        `yaml:"mute"`
	Email     EmailConfig `yaml:"email"`
	SMS       SMSConfig   `yaml:"sms"`
}

type EmailConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	From        string `yaml:"from"`
}

type SMSConfig struct {
	AccountSIDEnv string `yaml:"account_sid_env"`
	AuthTokenEnv  string `yaml:"auth_token_env"`
	From          string `yaml:"from"`
	MaxLength     int    `yaml:"max_length"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Telemetry struct {
	TracingEnabled bool   `yaml:"tracing_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Secrets holds credentials resolved from the environment variables the
// config names. They are read once and handed to collaborators explicitly.
type Secrets struct {
	TicketmasterKey string
	MeetupKey       string
	SerpAPIKey      string
	OpenAIKey       string
	AnthropicKey    string
	SMTPPassword    string
	TwilioSID       string
	TwilioToken     string
}

// ConfigDir returns the XDG config directory for eventscout.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "eventscout")
}

// DataDir returns the XDG data directory for eventscout.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "eventscout")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/eventscout/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'eventscout init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Location: Location{
			City:      "Houston",
			StateCode: "TX",
			Timezone:  "America/Chicago",
		},
		Sources: Sources{
			Ticketmaster: TicketmasterConfig{Enabled: true, APIKeyEnv: "TICKETMASTER_API_KEY", DaysAhead: 3},
			Meetup:       MeetupConfig{Enabled: true, APIKeyEnv: "MEETUP_API_KEY"},
			SerpAPI:      SerpAPIConfig{Enabled: true, APIKeyEnv: "SERPAPI_KEY"},
		},
		Review: Review{
			MaxConcurrent:  5,
			WebSearch:      true,
			Content:        true,
			Relevance:      true,
			DateWindowDays: 7,
		},
		Research: Research{
			MaxConcurrent: 5,
			MaxEntities:   6,
			MaxQueries:    3,
			Backends:      []string{"web", "wikipedia"},
			CacheSize:     256,
		},
		LLM: LLM{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			AnthropicModel:  "claude-sonnet-4-5",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:       1024,
		},
		Planner: Planner{MaxIterations: 10},
		Delivery: Delivery{
			Method: "none",
			Email: EmailConfig{
				Port:        587,
				PasswordEnv: "SMTP_PASSWORD",
			},
			SMS: SMSConfig{
				AccountSIDEnv: "TWILIO_ACCOUNT_SID",
				AuthTokenEnv:  "TWILIO_AUTH_TOKEN",
				MaxLength:     1500,
			},
		},
		Server:    Server{Port: 8000},
		Telemetry: Telemetry{OTLPEndpoint: "localhost:4317"},
		Logging:   Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Delivery.Method {
	case "email", "sms", "none":
	default:
		return fmt.Errorf("invalid delivery method %q (want email, sms or none)", c.Delivery.Method)
	}
	if c.Delivery.Method != "none" && c.Delivery.Recipient == "" {
		return fmt.Errorf("delivery method %s requires a recipient", c.Delivery.Method)
	}
	if c.Planner.MaxIterations < 1 {
		return fmt.Errorf("planner.max_iterations must be at least 1")
	}
	if _, err := time.LoadLocation(c.Location.Timezone); err != nil {
		return fmt.Errorf("invalid location.timezone %q: %w", c.Location.Timezone, err)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// TimeLocation returns the configured timezone. Falls back to UTC when the
// zone database is unavailable.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Location.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveSecrets reads every credential the config refers to through getenv.
func (c *Config) ResolveSecrets(getenv func(string) string) Secrets {
	get := func(name string) string {
		if name == "" {
			return ""
		}
		return getenv(name)
	}
	return Secrets{
		TicketmasterKey: get(c.Sources.Ticketmaster.APIKeyEnv),
		MeetupKey:       get(c.Sources.Meetup.APIKeyEnv),
		SerpAPIKey:      get(c.Sources.SerpAPI.APIKeyEnv),
		OpenAIKey:       get(c.LLM.APIKeyEnv),
		AnthropicKey:    get(c.LLM.AnthropicKeyEnv),
		SMTPPassword:    get(c.Delivery.Email.PasswordEnv),
		TwilioSID:       get(c.Delivery.SMS.AccountSIDEnv),
		TwilioToken:     get(c.Delivery.SMS.AuthTokenEnv),
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
