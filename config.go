package docstruct

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all configuration for the docstruct engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.docstruct/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "docstruct".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is
	// not explicitly set. Options: "home" (default) uses ~/.docstruct/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Vision    LLMConfig `json:"vision" yaml:"vision"` // optional: asset captioning

	// Structure extraction
	BoilerplateMinPages int     `json:"boilerplate_min_pages" yaml:"boilerplate_min_pages"` // header/footer recurrence threshold
	HeaderFooterBand    float64 `json:"header_footer_band" yaml:"header_footer_band"`       // fraction of page height

	// Chunking
	MaxChunkChars int `json:"max_chunk_chars" yaml:"max_chunk_chars"`

	// Embedding
	EmbeddingDim   int `json:"embedding_dim" yaml:"embedding_dim"` // must match model
	EmbedBatchSize int `json:"embed_batch_size" yaml:"embed_batch_size"`

	// Retrieval weights for RRF
	WeightVector float64 `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS    float64 `json:"weight_fts" yaml:"weight_fts"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, openai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.docstruct/docstruct.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "docstruct",
		StorageDir: "home",
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Vision: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2-vision",
			BaseURL:  "http://localhost:11434",
		},
		BoilerplateMinPages: 6,
		HeaderFooterBand:    0.1,
		MaxChunkChars:       2000,
		EmbeddingDim:        768,
		EmbedBatchSize:      100,
		WeightVector:        1.0,
		WeightFTS:           1.0,
	}
}

// LoadConfig layers a JSON config file (optional) and DOCSTRUCT_*
// environment variables over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers DOCSTRUCT_* environment variables over the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("DOCSTRUCT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	applyLLMEnv(&c.Chat, "DOCSTRUCT_CHAT")
	applyLLMEnv(&c.Embedding, "DOCSTRUCT_EMBED")
	applyLLMEnv(&c.Vision, "DOCSTRUCT_VISION")

	// Fallback: the well-known OpenAI key env var.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for _, llmCfg := range []*LLMConfig{&c.Chat, &c.Embedding, &c.Vision} {
			if llmCfg.Provider == "openai" && llmCfg.APIKey == "" {
				llmCfg.APIKey = key
			}
		}
	}
}

func applyLLMEnv(c *LLMConfig, prefix string) {
	if v := os.Getenv(prefix + "_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv(prefix + "_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(prefix + "_API_KEY"); v != "" {
		c.APIKey = v
	}
}

// Validate checks the parts of the configuration that cannot be
// defaulted away.
func (c *Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	}
	if c.MaxChunkChars <= 0 {
		return fmt.Errorf("%w: max_chunk_chars must be positive", ErrInvalidConfig)
	}
	if c.HeaderFooterBand < 0 || c.HeaderFooterBand >= 0.5 {
		return fmt.Errorf("%w: header_footer_band must be in [0, 0.5)", ErrInvalidConfig)
	}
	if c.BoilerplateMinPages < 2 {
		return fmt.Errorf("%w: boilerplate_min_pages must be at least 2", ErrInvalidConfig)
	}
	if c.Embedding.Provider == "" {
		return fmt.Errorf("%w: embedding provider is required", ErrInvalidConfig)
	}
	if c.Chat.Provider == "" {
		return fmt.Errorf("%w: chat provider is required", ErrInvalidConfig)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "docstruct"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".docstruct")
		return filepath.Join(dir, name+".db")
	}
}
