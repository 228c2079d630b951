package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"--config", "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_WorkerRequiresEntry verifies worker mode rejects a missing
// --entry flag before touching the config.
func TestRun_WorkerRequiresEntry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"worker", "--config", "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run(worker) should fail without --entry")
	}
	if !strings.Contains(err.Error(), "--entry") {
		t.Errorf("run(worker) error = %v, want mention of --entry", err)
	}
}

// TestRun_WorkerUnknownEntry verifies worker mode fails when the named
// entry is not in the config.
func TestRun_WorkerUnknownEntry(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  status_port: 7600

database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

mqtt:
  enabled: false

telemetry:
  enabled: false

logging:
  level: error
  format: text

devices:
  - name: cam-left
    driver: sim.camera
    port: 8010
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"worker", "--config", configPath, "--entry", "ghost"})
	if err == nil {
		t.Fatal("run(worker) should fail for an entry missing from the config")
	}
}

// TestGetConfigPath verifies the environment variable override.
func TestGetConfigPath(t *testing.T) {
	t.Setenv("RIGCORE_CONFIG", "/custom/config.yaml")
	if got := getConfigPath(); got != "/custom/config.yaml" {
		t.Errorf("getConfigPath() = %q, want /custom/config.yaml", got)
	}

	t.Setenv("RIGCORE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want default", got)
	}
}
