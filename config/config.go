package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"ragchat/internal/domain"
)

// Config holds all configuration for the assistant. The four top-level keys
// mirror the DATA_FOLDER, DB_PATH, EMBEDDING_MODEL and MODEL environment
// variables, which override them.
type Config struct {
	DataFolder     string `yaml:"data_folder" toml:"data_folder"`
	DBPath         string `yaml:"db_path" toml:"db_path"`
	EmbeddingModel string `yaml:"embedding_model" toml:"embedding_model"`
	Model          string `yaml:"model" toml:"model"`

	Index     IndexConfig     `yaml:"index" toml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" toml:"retrieve"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Chat      ChatConfig      `yaml:"chat" toml:"chat"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// IndexConfig holds ingestion and storage configuration.
type IndexConfig struct {
	Backend        string   `yaml:"backend" toml:"backend"` // "bolt", "memory", "postgres"
	PostgresDSN    string   `yaml:"postgres_dsn" toml:"postgres_dsn"`
	Includes       []string `yaml:"includes" toml:"includes"`
	Excludes       []string `yaml:"excludes" toml:"excludes"`
	ChunkSize      int      `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap   int      `yaml:"chunk_overlap" toml:"chunk_overlap"`
	BatchSize      int      `yaml:"batch_size" toml:"batch_size"`
	Workers        int      `yaml:"workers" toml:"workers"`
	DedupThreshold float64  `yaml:"dedup_threshold" toml:"dedup_threshold"` // 0 disables the probe
	Dimension      int      `yaml:"dimension" toml:"dimension"`             // 0 adopts the first vector's size
}

// EmbeddingConfig holds embedding backend configuration.
type EmbeddingConfig struct {
	Provider          string   `yaml:"provider" toml:"provider"` // "ollama", "openai", "hash"
	BaseURL           string   `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string   `yaml:"api_key_env" toml:"api_key_env"`
	Timeout           Duration `yaml:"timeout" toml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`
}

// LLMConfig holds chat model configuration.
type LLMConfig struct {
	Provider     string   `yaml:"provider" toml:"provider"` // "ollama", "openai"
	BaseURL      string   `yaml:"base_url" toml:"base_url"`
	APIKeyEnv    string   `yaml:"api_key_env" toml:"api_key_env"`
	Temperature  float64  `yaml:"temperature" toml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens" toml:"max_tokens"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
	SystemPrompt string   `yaml:"system_prompt" toml:"system_prompt"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK           int      `yaml:"top_k" toml:"top_k"`
	MinScore       float64  `yaml:"min_score" toml:"min_score"`   // relevance floor
	MMRLambda      float64  `yaml:"mmr_lambda" toml:"mmr_lambda"` // 0 disables MMR
	MMRFetchFactor int      `yaml:"mmr_fetch_factor" toml:"mmr_fetch_factor"`
	CacheSize      int      `yaml:"cache_size" toml:"cache_size"` // 0 disables the cache
	CacheTTL       Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// SessionConfig holds conversation history configuration.
type SessionConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
	// MaxTurns counts user/assistant exchanges; a session keeps at most
	// 2*MaxTurns turns.
	MaxTurns int  `yaml:"max_turns" toml:"max_turns"`
	Save     bool `yaml:"save" toml:"save"`
}

type ChatConfig struct {
	CondenseQuestion bool `yaml:"condense_question" toml:"condense_question"`
}

type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations" toml:"max_iterations"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// DefaultConfig returns the default configuration. The required keys are
// left empty on purpose.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Backend:        "bolt",
			Includes:       []string{"**/*"},
			Excludes:       []string{"**/.git/**", "**/node_modules/**", "**/.*/**", "**/.*"},
			ChunkSize:      1000,
			ChunkOverlap:   80,
			BatchSize:      32,
			Workers:        4,
			DedupThreshold: 0.995,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			BaseURL:   "http://localhost:11434",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   Duration{60 * time.Second},
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			BaseURL:     "http://localhost:11434",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.8,
			Timeout:     Duration{120 * time.Second},
		},
		Retrieve: RetrieveConfig{
			TopK:           4,
			MinScore:       0.3,
			MMRFetchFactor: 3,
			CacheSize:      128,
			CacheTTL:       Duration{5 * time.Minute},
		},
		Session: SessionConfig{
			Dir:      "sessions",
			MaxTurns: 2,
			Save:     true,
		},
		Chat: ChatConfig{
			CondenseQuestion: true,
		},
		Agent: AgentConfig{
			MaxIterations: 4,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir looks for ragchat.yaml, ragchat.toml and .ragchat/config.yaml
// in dir, in that order.
func LoadFromDir(dir string) (*Config, error) {
	candidates := []string{
		filepath.Join(dir, "ragchat.yaml"),
		filepath.Join(dir, "ragchat.toml"),
		filepath.Join(dir, ".ragchat", "config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// ApplyEnv overrides file values with environment variables. getenv is
// usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.DataFolder, "DATA_FOLDER")
	set(&c.DBPath, "DB_PATH")
	set(&c.EmbeddingModel, "EMBEDDING_MODEL")
	set(&c.Model, "MODEL")
	set(&c.Session.Dir, "SESSIONS_DIR")
	set(&c.Logging.Level, "RAGCHAT_LOG_LEVEL")
	set(&c.Index.PostgresDSN, "RAGCHAT_POSTGRES_DSN")

	if v := getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		if c.Embedding.Provider == "ollama" {
			c.Embedding.BaseURL = v
		}
		if c.LLM.Provider == "ollama" {
			c.LLM.BaseURL = v
		}
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		if c.Embedding.Provider == "openai" {
			c.Embedding.BaseURL = v
		}
		if c.LLM.Provider == "openai" {
			c.LLM.BaseURL = v
		}
	}
}

// Resolve makes relative paths absolute against base.
func (c *Config) Resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.DataFolder = abs(c.DataFolder)
	c.DBPath = abs(c.DBPath)
	c.Session.Dir = abs(c.Session.Dir)
	c.Logging.File = abs(c.Logging.File)
}

// Validate checks required keys and value ranges. The returned error is a
// *domain.ConfigError naming the offending key.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"DATA_FOLDER", c.DataFolder},
		{"DB_PATH", c.DBPath},
		{"EMBEDDING_MODEL", c.EmbeddingModel},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &domain.ConfigError{Key: r.key, Reason: "missing or empty"}
		}
	}

	if c.Index.ChunkSize <= 0 {
		return &domain.ConfigError{Key: "index.chunk_size", Reason: "must be positive"}
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return &domain.ConfigError{Key: "index.chunk_overlap", Reason: "must be in [0, chunk_size)"}
	}
	if !oneOf(c.Index.Backend, "bolt", "memory", "postgres") {
		return &domain.ConfigError{Key: "index.backend", Reason: fmt.Sprintf("unknown backend %q", c.Index.Backend)}
	}
	if c.Index.Backend == "postgres" && c.Index.PostgresDSN == "" {
		return &domain.ConfigError{Key: "index.postgres_dsn", Reason: "required for the postgres backend"}
	}
	if !oneOf(c.Embedding.Provider, "ollama", "openai", "hash") {
		return &domain.ConfigError{Key: "embedding.provider", Reason: fmt.Sprintf("unknown provider %q", c.Embedding.Provider)}
	}
	if !oneOf(c.LLM.Provider, "ollama", "openai") {
		return &domain.ConfigError{Key: "llm.provider", Reason: fmt.Sprintf("unknown provider %q", c.LLM.Provider)}
	}
	if c.Retrieve.TopK < 1 {
		return &domain.ConfigError{Key: "retrieve.top_k", Reason: "must be at least 1"}
	}
	return nil
}

// ValidateDataFolder checks that DATA_FOLDER points at an existing directory.
func (c *Config) ValidateDataFolder() error {
	info, err := os.Stat(c.DataFolder)
	if err != nil {
		return &domain.ConfigError{Key: "DATA_FOLDER", Reason: fmt.Sprintf("%s does not exist", c.DataFolder)}
	}
	if !info.IsDir() {
		return &domain.ConfigError{Key: "DATA_FOLDER", Reason: fmt.Sprintf("%s is not a directory", c.DataFolder)}
	}
	return nil
}

// IndexPath is the bbolt file inside DB_PATH.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DBPath, "index.db")
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// Duration is a time.Duration written as a string ("60s") in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
