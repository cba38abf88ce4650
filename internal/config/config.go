package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/RichardoC/chatpad/internal/models"
	"github.com/joho/godotenv"
)

const (
	DefaultListenAddr = ":5000"
	DefaultDBPath     = "data/chat.db"
	DefaultBaseURL    = "https://api.siliconflow.cn/v1"
	DefaultModel      = "moonshotai/Kimi-K2-Instruct"
	DefaultLogMode    = "production"
)

// DefaultModels is the catalog served by /api/models unless LLM_MODELS is set.
var DefaultModels = []models.ModelInfo{
	{ID: "moonshotai/Kimi-K2-Instruct", Name: "Kimi K2"},
	{ID: "deepseek-ai/DeepSeek-R1", Name: "DeepSeek R1"},
	{ID: "zai-org/GLM-4.5", Name: "GLM 4.5"},
	{ID: "Qwen/Qwen3-235B-A22B-Instruct-2507", Name: "Qwen 3.5"},
}

type Config struct {
	ListenAddr string
	DBPath     string
	LogMode    string
	LLM        LLMConfig
}

type LLMConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Models       []models.ModelInfo
	// Timeout bounds a single completion call. Zero means no timeout.
	Timeout time.Duration
}

// Load reads an optional .env file from the working directory and then the
// process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	c := Config{
		ListenAddr: envOr("LISTEN_ADDR", DefaultListenAddr),
		DBPath:     envOr("DB_PATH", DefaultDBPath),
		LogMode:    envOr("LOG_MODE", DefaultLogMode),
		LLM: LLMConfig{
			APIKey:       envOr("LLM_API_KEY", os.Getenv("SILICON_API_KEY")),
			BaseURL:      strings.TrimRight(envOr("LLM_BASE_URL", DefaultBaseURL), "/"),
			DefaultModel: envOr("LLM_DEFAULT_MODEL", DefaultModel),
			Models:       DefaultModels,
		},
	}

	if raw := strings.TrimSpace(os.Getenv("LLM_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c, fmt.Errorf("LLM_TIMEOUT: %w", err)
		}
		if d < 0 {
			return c, fmt.Errorf("LLM_TIMEOUT must not be negative, got %s", d)
		}
		c.LLM.Timeout = d
	}

	if raw := strings.TrimSpace(os.Getenv("LLM_MODELS")); raw != "" {
		catalog, err := ParseModels(raw)
		if err != nil {
			return c, fmt.Errorf("LLM_MODELS: %w", err)
		}
		c.LLM.Models = catalog
	}

	return c, nil
}

// ParseModels parses a comma separated "id=name" list. A bare id is used as
// its own display name.
func ParseModels(raw string) ([]models.ModelInfo, error) {
	var catalog []models.ModelInfo
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, name, found := strings.Cut(entry, "=")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("empty model id in %q", entry)
		}
		if !found || name == "" {
			name = id
		}
		catalog = append(catalog, models.ModelInfo{ID: id, Name: name})
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("no models in %q", raw)
	}
	return catalog, nil
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}
