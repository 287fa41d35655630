package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration for webrecall. Every scoring
// threshold is tunable from the config file; the defaults are the values
// the decision engine was tuned with.
type Config struct {
	ServerName string `yaml:"server_name"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`
	ProfileID  string `yaml:"profile_id"`

	Bridge BridgeConfig `yaml:"bridge"`
	Ingest IngestConfig `yaml:"ingest"`
	Search SearchConfig `yaml:"search"`
	AI     AIConfig     `yaml:"ai"`
}

// BridgeConfig covers the local control channel and the native host.
type BridgeConfig struct {
	Port                  int    `yaml:"port"`
	MaxMessageBytes       int    `yaml:"max_message_bytes"`
	HostMaxMessageBytes   int    `yaml:"host_max_message_bytes"`
	ConnectTimeoutMS      int    `yaml:"connect_timeout_ms"`
	ResponseTimeoutMS     int    `yaml:"response_timeout_ms"`
	MaxTextChars          int    `yaml:"max_text_chars"`
	MaxHTMLBytes          int    `yaml:"max_html_bytes"`
	MaxWords              int    `yaml:"max_words"`
	MaxNodeCount          int    `yaml:"max_node_count"`
	HostLogPath           string `yaml:"host_log_path"`
}

// IngestConfig covers history filtering, selection and fetching.
type IngestConfig struct {
	MaxURLsToRank        int    `yaml:"max_urls_to_rank"`
	DesiredSelection     int    `yaml:"desired_selection"`
	MinContentLength     int    `yaml:"min_content_length"`
	FetchConcurrency     int    `yaml:"fetch_concurrency"`
	FetchTimeoutSeconds  int    `yaml:"fetch_timeout_seconds"`
	SaveTimeoutSeconds   int    `yaml:"save_timeout_seconds"`
	AddTimeoutSeconds    int    `yaml:"add_timeout_seconds"`
	ProbeURL             string `yaml:"probe_url"`
	ProbeTimeoutSeconds  int    `yaml:"probe_timeout_seconds"`
}

// SearchConfig holds the retrieval and answer-gating thresholds.
type SearchConfig struct {
	TopK             int     `yaml:"top_k"`
	MaxResults       int     `yaml:"max_results"`
	MinSimilarity    float64 `yaml:"min_similarity"`
	WeakMatch        float64 `yaml:"weak_match_threshold"`
	PerfectMatch     float64 `yaml:"perfect_match_threshold"`
	Navigational     float64 `yaml:"navigational_threshold"`
	DefaultGate      float64 `yaml:"default_threshold"`
	AmbiguityGap     float64 `yaml:"ambiguity_gap"`
	SimilarityWeight float64 `yaml:"similarity_weight"`
	RecencyWeight    float64 `yaml:"recency_weight"`
	RecencyDecayDays float64 `yaml:"recency_decay_days"`
	TitleOverlap     float64 `yaml:"title_overlap_threshold"`
	MaxAISources     int     `yaml:"max_ai_sources"`
}

// AIConfig covers the generative collaborators.
type AIConfig struct {
	ChatModel      string `yaml:"chat_model"`
	RankModel      string `yaml:"rank_model"`
	EmbedModel     string `yaml:"embed_model"`
	MaxInputChars  int    `yaml:"max_input_chars"`
	RateLimitMS    int    `yaml:"rate_limit_ms"`
	MaxCacheSize   int    `yaml:"max_cache_size"`
}

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		ServerName: "webrecall",
		DBPath:     filepath.Join(userHomeDir(), ".webrecall", "memories.db"),
		LogLevel:   "info",
		ProfileID:  "local",
		Bridge: BridgeConfig{
			Port:                12346,
			MaxMessageBytes:     12 * 1024 * 1024,
			HostMaxMessageBytes: 10 * 1024 * 1024,
			ConnectTimeoutMS:    700,
			ResponseTimeoutMS:   15_000,
			MaxTextChars:        120_000,
			MaxHTMLBytes:        350 * 1024,
			MaxWords:            25_000,
			MaxNodeCount:        100_000,
			HostLogPath:         filepath.Join(os.TempDir(), "webrecall-host.log"),
		},
		Ingest: IngestConfig{
			MaxURLsToRank:       500,
			DesiredSelection:    20,
			MinContentLength:    400,
			FetchConcurrency:    5,
			FetchTimeoutSeconds: 10,
			SaveTimeoutSeconds:  15,
			AddTimeoutSeconds:   30,
			ProbeURL:            "https://www.google.com",
			ProbeTimeoutSeconds: 5,
		},
		Search: SearchConfig{
			TopK:             50,
			MaxResults:       5,
			MinSimilarity:    0.3,
			WeakMatch:        0.42,
			PerfectMatch:     0.9,
			Navigational:     0.7,
			DefaultGate:      0.75,
			AmbiguityGap:     0.05,
			SimilarityWeight: 0.7,
			RecencyWeight:    0.25,
			RecencyDecayDays: 60,
			TitleOverlap:     0.8,
			MaxAISources:     5,
		},
		AI: AIConfig{
			ChatModel:     "gpt-4o-mini",
			RankModel:     "gpt-4.1-mini",
			EmbedModel:    "text-embedding-3-small",
			MaxInputChars: 20_000,
			RateLimitMS:   1000,
			MaxCacheSize:  1000,
		},
	}
}

// Load loads config from disk; if path does not exist, default config is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.ServerName == "" {
		return errors.New("server_name must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.ProfileID == "" {
		return errors.New("profile_id must not be empty")
	}
	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("invalid bridge port %d", c.Bridge.Port)
	}
	if c.Bridge.MaxMessageBytes <= 0 {
		return errors.New("bridge max_message_bytes must be > 0")
	}
	if c.Ingest.FetchConcurrency <= 0 {
		return errors.New("fetch_concurrency must be > 0")
	}
	if c.Ingest.MaxURLsToRank <= 0 {
		return errors.New("max_urls_to_rank must be > 0")
	}
	if c.Ingest.DesiredSelection <= 0 {
		return errors.New("desired_selection must be > 0")
	}
	if c.Search.TopK <= 0 {
		return errors.New("top_k must be > 0")
	}
	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity %v outside [-1,1]", c.Search.MinSimilarity)
	}
	if c.Search.WeakMatch < c.Search.MinSimilarity {
		return errors.New("weak_match_threshold must be >= min_similarity")
	}
	if c.Search.RecencyDecayDays <= 0 {
		return errors.New("recency_decay_days must be > 0")
	}
	if c.Search.MaxAISources <= 0 {
		return errors.New("max_ai_sources must be > 0")
	}
	if c.AI.MaxInputChars <= 0 {
		return errors.New("ai max_input_chars must be > 0")
	}
	if c.AI.MaxCacheSize <= 0 {
		return errors.New("ai max_cache_size must be > 0")
	}
	return nil
}

// EnsurePaths creates parent directories for config-managed paths.
func (c *Config) EnsurePaths() error {
	c.DBPath = ExpandPath(c.DBPath)
	parent := filepath.Dir(c.DBPath)
	if parent == "." {
		return nil
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create db parent dir: %w", err)
	}
	return nil
}

// ExpandPath expands "~/" to the current user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" {
		return userHomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(userHomeDir(), p[2:])
	}
	return p
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
