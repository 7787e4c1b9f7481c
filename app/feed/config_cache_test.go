package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigCacheLoadValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	writeConfig(t, tempDir, "veritasium.yml", `
channel: "UCHnyfMqiRRG1u-2MsSQLbXA"
name: "Veritasium"
enabled: true
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConfigCount() != 1 {
		t.Errorf("Expected 1 config, got %d", configCache.GetConfigCount())
	}

	config, err := configCache.GetConfig("veritasium")
	if err != nil {
		t.Fatal(err)
	}

	if config.Key != "veritasium" {
		t.Errorf("Expected key 'veritasium', got '%s'", config.Key)
	}
	if config.Channel != "UCHnyfMqiRRG1u-2MsSQLbXA" {
		t.Errorf("Expected channel 'UCHnyfMqiRRG1u-2MsSQLbXA', got '%s'", config.Channel)
	}
	if config.Name != "Veritasium" {
		t.Errorf("Expected name 'Veritasium', got '%s'", config.Name)
	}
	if !config.Enabled {
		t.Error("Expected config to be enabled")
	}
}

func TestConfigCacheLoadConfigWithDefaults(t *testing.T) {
	tempDir := t.TempDir()

	writeConfig(t, tempDir, "mkbhd.yml", `channel: "@mkbhd"`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	config, err := configCache.GetConfig("mkbhd")
	if err != nil {
		t.Fatal(err)
	}

	if !config.Enabled {
		t.Error("Expected sources to be enabled by default")
	}
	if config.Name != "mkbhd" {
		t.Errorf("Expected name to default to the file name, got '%s'", config.Name)
	}
}

func TestConfigCacheDisabledSource(t *testing.T) {
	tempDir := t.TempDir()

	writeConfig(t, tempDir, "on.yml", `channel: "@on"`)
	writeConfig(t, tempDir, "off.yml", `
channel: "@off"
enabled: false
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if len(configCache.GetConfigs()) != 2 {
		t.Errorf("Expected 2 configs, got %d", len(configCache.GetConfigs()))
	}

	enabled := configCache.GetEnabledConfigs()
	if len(enabled) != 1 {
		t.Fatalf("Expected 1 enabled config, got %d", len(enabled))
	}
	if _, ok := enabled["on"]; !ok {
		t.Error("Expected 'on' to be enabled")
	}
}

func TestConfigCacheInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing channel", "name: nothing\n"},
		{"bad channel", "channel: \"https://example.com\"\n"},
		{"broken yaml", "channel: [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeConfig(t, tempDir, "invalid.yml", tt.content)

			configCache := NewConfigCache(tempDir)
			if err := configCache.Run(); err == nil {
				t.Error("Expected error for invalid config")
			}
		})
	}
}

func TestConfigCacheEmptyDirectory(t *testing.T) {
	configCache := NewConfigCache(t.TempDir())
	if err := configCache.Run(); err != nil {
		t.Fatalf("Expected no error for empty directory, got: %v", err)
	}

	if configCache.GetConfigCount() != 0 {
		t.Errorf("Expected 0 configs, got %d", configCache.GetConfigCount())
	}
}

func TestConfigCacheMissingDirectory(t *testing.T) {
	configCache := NewConfigCache(filepath.Join(t.TempDir(), "nope"))
	if err := configCache.Run(); err != nil {
		t.Fatalf("Expected no error for missing directory, got: %v", err)
	}
}

func TestConfigCacheReloadConfig(t *testing.T) {
	tempDir := t.TempDir()
	writeConfig(t, tempDir, "ch.yml", `channel: "@first"`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, tempDir, "ch.yml", `channel: "@second"`)
	config, err := configCache.LoadConfig("ch")
	if err != nil {
		t.Fatal(err)
	}

	if config.Channel != "@second" {
		t.Errorf("Expected reloaded channel '@second', got '%s'", config.Channel)
	}

	cached, _ := configCache.GetConfig("ch")
	if cached.Channel != "@second" {
		t.Errorf("Expected cache to hold reloaded config, got '%s'", cached.Channel)
	}
}

func TestConfigCacheGetConfigEmptyCache(t *testing.T) {
	configCache := NewConfigCache(t.TempDir())

	if _, err := configCache.GetConfig("missing"); err == nil {
		t.Error("Expected error for missing config")
	}
}
