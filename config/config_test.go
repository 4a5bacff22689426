package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	ModulePath []string `yaml:"module_path" toml:"module_path" env:"MODULE_PATH"`
	MaxThreads int      `yaml:"max_threads" toml:"max_threads" env:"MAX_THREADS"`
}

func TestYAMLFeeder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monarch.yaml")
	if err := os.WriteFile(path, []byte("module_path:\n  - /opt/modules\nmax_threads: 8\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := &testConfig{}
	if err := (YAMLFeeder{Path: path}).Feed(cfg); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if cfg.MaxThreads != 8 || len(cfg.ModulePath) != 1 || cfg.ModulePath[0] != "/opt/modules" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestTOMLFeeder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monarch.toml")
	if err := os.WriteFile(path, []byte("max_threads = 4\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := &testConfig{}
	if err := (TOMLFeeder{Path: path}).Feed(cfg); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if cfg.MaxThreads != 4 {
		t.Fatalf("MaxThreads = %d, want 4", cfg.MaxThreads)
	}
}

func TestEnvFeederWithPrefix(t *testing.T) {
	t.Setenv("MONARCH_MAX_THREADS", "16")

	cfg := &testConfig{MaxThreads: 1}
	if err := (EnvFeeder{Prefix: "MONARCH"}).Feed(cfg); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if cfg.MaxThreads != 16 {
		t.Fatalf("MaxThreads = %d, want 16", cfg.MaxThreads)
	}
}

func TestProviderReloadAppliesFeedersInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monarch.yaml")
	_ = os.WriteFile(path, []byte("max_threads: 2\n"), 0o644)
	t.Setenv("MAX_THREADS", "99")

	cfg := &testConfig{}
	p := NewProvider(cfg, YAMLFeeder{Path: path}, EnvFeeder{})
	if err := p.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cfg.MaxThreads != 99 {
		t.Fatalf("MaxThreads = %d, want 99 (env feeder should override YAML)", cfg.MaxThreads)
	}
}
