// Package config provides configuration types and loading for aidesk.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Agent, Provider, Server, Tools, Trace.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Model    ModelConfig    `json:"model"`
	Agent    AgentConfig    `json:"agent"`
	Provider ProviderConfig `json:"provider"`
	Server   ServerConfig   `json:"server"`
	Tools    ToolsConfig    `json:"tools"`
	Trace    TraceConfig    `json:"trace"`
}

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir     string `json:"dataDir" envconfig:"DATA_DIR"`
	SessionsDir string `json:"sessionsDir" envconfig:"SESSIONS_DIR"`
}

// ModelConfig groups LLM model and sampling defaults.
type ModelConfig struct {
	Name             string  `json:"name" envconfig:"NAME"`
	MaxTokens        int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature      float64 `json:"temperature" envconfig:"TEMPERATURE"`
	TopP             float64 `json:"topP" envconfig:"TOP_P"`
	FrequencyPenalty float64 `json:"frequencyPenalty" envconfig:"FREQUENCY_PENALTY"`
	PresencePenalty  float64 `json:"presencePenalty" envconfig:"PRESENCE_PENALTY"`
}

// AgentConfig groups agent-loop settings.
type AgentConfig struct {
	MaxIterations int `json:"maxIterations" envconfig:"MAX_ITERATIONS"`
	MaxRetries    int `json:"maxRetries" envconfig:"MAX_RETRIES"`
}

// ProviderConfig contains settings for the completion provider.
type ProviderConfig struct {
	APIKey  string        `json:"apiKey" envconfig:"API_KEY"`
	APIBase string        `json:"apiBase,omitempty" envconfig:"API_BASE"`
	Timeout time.Duration `json:"timeout" envconfig:"TIMEOUT"`
}

// ServerConfig contains HTTP API server settings.
type ServerConfig struct {
	Host   string `json:"host" envconfig:"HOST"`
	Port   int    `json:"port" envconfig:"PORT"`
	APIKey string `json:"apiKey" envconfig:"API_KEY"`
}

// ToolsConfig contains tool-specific settings.
type ToolsConfig struct {
	Command   CommandToolConfig   `json:"command"`
	Knowledge KnowledgeToolConfig `json:"knowledge"`
	Web       WebToolConfig       `json:"web"`
	Email     EmailToolConfig     `json:"email"`
	MiCloud   MiCloudToolConfig   `json:"micloud"`
}

// CommandToolConfig configures the system_command tool.
type CommandToolConfig struct {
	Timeout time.Duration `json:"timeout" envconfig:"TIMEOUT"`
	WorkDir string        `json:"workDir" envconfig:"WORK_DIR"`
}

// KnowledgeToolConfig configures the knowledge_base tool.
type KnowledgeToolConfig struct {
	DBPath string `json:"dbPath" envconfig:"DB_PATH"`
}

// WebToolConfig configures the web_browser tool.
type WebToolConfig struct {
	SerpAPIKey   string        `json:"serpApiKey" envconfig:"SERP_API_KEY"`
	MonthlyLimit int           `json:"monthlyLimit" envconfig:"MONTHLY_LIMIT"`
	CacheTTL     time.Duration `json:"cacheTtl" envconfig:"CACHE_TTL"`
	MaxResults   int           `json:"maxResults" envconfig:"MAX_RESULTS"`
}

// EmailToolConfig configures the email tool.
type EmailToolConfig struct {
	Type     string `json:"type" envconfig:"TYPE"` // "qq", "gmail", "outlook"
	Address  string `json:"address" envconfig:"ADDRESS"`
	Password string `json:"password" envconfig:"PASSWORD"`
}

// MiCloudToolConfig configures the micloud tool.
type MiCloudToolConfig struct {
	TokenPath string `json:"tokenPath" envconfig:"TOKEN_PATH"`
	BaseURL   string `json:"baseUrl" envconfig:"BASE_URL"`
}

// TraceConfig contains execution-trace settings.
type TraceConfig struct {
	DBPath       string `json:"dbPath" envconfig:"DB_PATH"`
	KafkaEnabled bool   `json:"kafkaEnabled" envconfig:"KAFKA_ENABLED"`
	KafkaBrokers string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string `json:"kafkaTopic" envconfig:"KAFKA_TOPIC"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.aidesk",
		},
		Model: ModelConfig{
			Name:        "gpt-4o-mini",
			MaxTokens:   800,
			Temperature: 0.7,
			TopP:        0.95,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			MaxRetries:    3,
		},
		Provider: ProviderConfig{
			APIBase: "https://api.openai.com/v1",
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Tools: ToolsConfig{
			Command: CommandToolConfig{
				Timeout: 30 * time.Second,
			},
			Web: WebToolConfig{
				MonthlyLimit: 100,
				CacheTTL:     time.Hour,
				MaxResults:   5,
			},
			MiCloud: MiCloudToolConfig{
				BaseURL: "https://i.mi.com",
			},
		},
		Trace: TraceConfig{
			KafkaTopic: "aidesk.trace",
		},
	}
}
