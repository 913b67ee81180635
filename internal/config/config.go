package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	API      APIConfig      `json:"api"`
	Viewport ViewportConfig `json:"viewport"`
	Editor   EditorConfig   `json:"editor"`
	Prelabel PrelabelConfig `json:"prelabel"`
	Render   RenderConfig   `json:"render"`
	Server   ServerConfig   `json:"server"`
}

// APIConfig points at the storage backend
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Dataset        string `json:"dataset"`
	Split          string `json:"split"`
}

// ViewportConfig holds the drawing surface size
type ViewportConfig struct {
	SurfaceWidth  int `json:"surface_width"`
	SurfaceHeight int `json:"surface_height"`
}

// EditorConfig holds box editing settings
type EditorConfig struct {
	MinBoxSize     float64 `json:"min_box_size"`
	DefaultClassID int     `json:"default_class_id"`
}

// PrelabelConfig holds configuration for pre-annotation. The saliency backend
// runs locally and ignores URL, Model and MinConfidence.
type PrelabelConfig struct {
	Enabled       bool           `json:"enabled"`
	Backend       string         `json:"backend"` // ollama, llamacpp or saliency
	URL           string         `json:"url"`
	Model         string         `json:"model"`
	MinConfidence float64        `json:"min_confidence"`
	MaxObjects    int            `json:"max_objects"`
	MaxDimension  int            `json:"max_dimension"`
	Classes       map[string]int `json:"classes,omitempty"`
}

// RenderConfig holds surface rendering options
type RenderConfig struct {
	Background string  `json:"background"`
	BoxColor   string  `json:"box_color"`
	DraftColor string  `json:"draft_color"`
	LineWidth  float64 `json:"line_width"`
	ShowLabels bool    `json:"show_labels"`
	Format     string  `json:"format"`
	Quality    int     `json:"quality"`
}

// ServerConfig holds settings for the local label server
type ServerConfig struct {
	Addr string `json:"addr"`
	Root string `json:"root"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api/v1",
			TimeoutSeconds: 30,
			Split:          "train",
		},
		Viewport: ViewportConfig{
			SurfaceWidth:  800,
			SurfaceHeight: 600,
		},
		Editor: EditorConfig{
			MinBoxSize:     10,
			DefaultClassID: 0,
		},
		Prelabel: PrelabelConfig{
			Enabled:       false,
			Backend:       "ollama",
			URL:           "http://localhost:11434",
			Model:         "llava",
			MinConfidence: 0.25,
			MaxObjects:    20,
			MaxDimension:  1024,
		},
		Render: RenderConfig{
			Background: "#f3f4f6",
			BoxColor:   "#10b981",
			DraftColor: "#3b82f6",
			LineWidth:  2,
			ShowLabels: true,
			Format:     "png",
			Quality:    90,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8000",
			Root: "./datasets",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads the file at path if it exists, then applies .env and environment overrides
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		loaded, err := LoadFromFile(path)
		switch {
		case err == nil:
			config = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := LoadEnvFile(); err != nil {
		return nil, err
	}
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadEnvFile loads variables from the given .env files, or ./.env by default.
// Missing files are ignored and variables already set are not overridden.
func LoadEnvFile(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	var existing []string
	for _, f := range filenames {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from ANNOTATOR_* environment variables
func (c *Config) ApplyEnv() {
	c.API.BaseURL = getEnv("ANNOTATOR_API_URL", c.API.BaseURL)
	c.API.TimeoutSeconds = getEnvAsInt("ANNOTATOR_API_TIMEOUT", c.API.TimeoutSeconds)
	c.API.Dataset = getEnv("ANNOTATOR_DATASET", c.API.Dataset)
	c.API.Split = getEnv("ANNOTATOR_SPLIT", c.API.Split)

	c.Viewport.SurfaceWidth = getEnvAsInt("ANNOTATOR_SURFACE_WIDTH", c.Viewport.SurfaceWidth)
	c.Viewport.SurfaceHeight = getEnvAsInt("ANNOTATOR_SURFACE_HEIGHT", c.Viewport.SurfaceHeight)

	c.Editor.MinBoxSize = getEnvAsFloat("ANNOTATOR_MIN_BOX_SIZE", c.Editor.MinBoxSize)
	c.Editor.DefaultClassID = getEnvAsInt("ANNOTATOR_DEFAULT_CLASS", c.Editor.DefaultClassID)

	c.Prelabel.Enabled = getEnvAsBool("ANNOTATOR_PRELABEL", c.Prelabel.Enabled)
	c.Prelabel.Backend = getEnv("ANNOTATOR_PRELABEL_BACKEND", c.Prelabel.Backend)
	c.Prelabel.URL = getEnv("ANNOTATOR_PRELABEL_URL", c.Prelabel.URL)
	c.Prelabel.Model = getEnv("ANNOTATOR_PRELABEL_MODEL", c.Prelabel.Model)

	c.Server.Addr = getEnv("ANNOTATOR_SERVER_ADDR", c.Server.Addr)
	c.Server.Root = getEnv("ANNOTATOR_SERVER_ROOT", c.Server.Root)
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url cannot be empty")
	}

	if c.API.TimeoutSeconds < 1 {
		return fmt.Errorf("api.timeout_seconds must be positive")
	}

	if c.Viewport.SurfaceWidth < 1 || c.Viewport.SurfaceHeight < 1 {
		return fmt.Errorf("viewport surface dimensions must be positive")
	}

	if c.Editor.MinBoxSize < 0 {
		return fmt.Errorf("editor.min_box_size cannot be negative")
	}

	if c.Editor.DefaultClassID < 0 {
		return fmt.Errorf("editor.default_class_id cannot be negative")
	}

	switch c.Prelabel.Backend {
	case "ollama", "llamacpp", "saliency":
	default:
		return fmt.Errorf("prelabel.backend must be ollama, llamacpp or saliency")
	}

	if c.Prelabel.MinConfidence < 0 || c.Prelabel.MinConfidence > 1 {
		return fmt.Errorf("prelabel.min_confidence must be between 0 and 1")
	}

	for label, id := range c.Prelabel.Classes {
		if id < 0 {
			return fmt.Errorf("prelabel.classes[%s] cannot be negative", label)
		}
	}

	if c.Render.LineWidth <= 0 {
		return fmt.Errorf("render.line_width must be positive")
	}

	switch strings.ToLower(c.Render.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("render.format must be png, jpg or webp")
	}

	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return fmt.Errorf("render.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "box-annotator", "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
