package config

import (
	"log/slog"
	"os"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", "/tmp/vod")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.ChunkSize != 10*1024*1024 {
		t.Errorf("ChunkSize = %d, want %d", cfg.ChunkSize, 10*1024*1024)
	}

	if cfg.MaxParallel != 3 {
		t.Errorf("MaxParallel = %d, want 3", cfg.MaxParallel)
	}

	if cfg.Telemetry.Exporter != "prometheus" {
		t.Errorf("Telemetry.Exporter = %q, want %q", cfg.Telemetry.Exporter, "prometheus")
	}

	if cfg.Web.BindAddress != "0.0.0.0:8080" {
		t.Errorf("Web.BindAddress = %q, want %q", cfg.Web.BindAddress, "0.0.0.0:8080")
	}
}

func TestLoadConfig_MissingDownloadDir(t *testing.T) {
	// t.Setenv snapshots the old value for restore, then unset for real.
	t.Setenv("DOWNLOAD_DIR", "placeholder")
	os.Unsetenv("DOWNLOAD_DIR")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for missing DOWNLOAD_DIR")
	}
}

func TestLoadConfig_InvalidChunkSize(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", "/tmp/vod")
	t.Setenv("CHUNK_SIZE", "-1")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for negative CHUNK_SIZE")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
