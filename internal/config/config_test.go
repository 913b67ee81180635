package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if c.Viewport.SurfaceWidth != 800 || c.Viewport.SurfaceHeight != 600 {
		t.Errorf("Unexpected surface: %+v", c.Viewport)
	}
	if c.Editor.MinBoxSize != 10 || c.API.Split != "train" {
		t.Errorf("Unexpected defaults: %+v %+v", c.Editor, c.API)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	c := Default()
	c.API.Dataset = "soups"
	c.Prelabel.Classes = map[string]int{"jar": 1}
	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.API.Dataset != "soups" || loaded.Prelabel.Classes["jar"] != 1 {
		t.Errorf("Round trip lost fields: %+v", loaded)
	}
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	os.WriteFile(path, []byte(`{"api": {"dataset": "cans"}}`), 0644)

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if c.API.Dataset != "cans" || c.Viewport.SurfaceWidth != 800 || c.API.TimeoutSeconds != 30 {
		t.Errorf("Expected defaults for missing fields: %+v", c)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ANNOTATOR_API_URL", "http://example:9000/api/v1")
	t.Setenv("ANNOTATOR_SURFACE_WIDTH", "1024")
	t.Setenv("ANNOTATOR_MIN_BOX_SIZE", "4.5")
	t.Setenv("ANNOTATOR_PRELABEL", "true")
	t.Setenv("ANNOTATOR_DEFAULT_CLASS", "not-a-number")

	c := Default()
	c.ApplyEnv()

	if c.API.BaseURL != "http://example:9000/api/v1" {
		t.Errorf("Unexpected base URL %q", c.API.BaseURL)
	}
	if c.Viewport.SurfaceWidth != 1024 || c.Editor.MinBoxSize != 4.5 || !c.Prelabel.Enabled {
		t.Errorf("Env overrides not applied: %+v", c)
	}
	if c.Editor.DefaultClassID != 0 {
		t.Error("Unparseable value should keep the default")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	os.WriteFile(path, []byte("ANNOTATOR_DATASET=from-dotenv\n"), 0644)
	t.Setenv("ANNOTATOR_DATASET", "")
	os.Unsetenv("ANNOTATOR_DATASET")

	if err := LoadEnvFile(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}

	c := Default()
	c.ApplyEnv()
	if c.API.Dataset != "from-dotenv" {
		t.Errorf("Expected dataset from .env, got %q", c.API.Dataset)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero surface", func(c *Config) { c.Viewport.SurfaceHeight = 0 }},
		{"negative min size", func(c *Config) { c.Editor.MinBoxSize = -1 }},
		{"unknown backend", func(c *Config) { c.Prelabel.Backend = "gpt" }},
		{"confidence range", func(c *Config) { c.Prelabel.MinConfidence = 2 }},
		{"bad format", func(c *Config) { c.Render.Format = "gif" }},
		{"bad quality", func(c *Config) { c.Render.Quality = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	if filepath.Base(GetConfigPath()) != "config.json" {
		t.Errorf("Unexpected config path %q", GetConfigPath())
	}
}
