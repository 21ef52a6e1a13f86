package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlContent := `trace: true
monitor: true
breakpoints:
  - 2147483648
  - 2147483660
monitorDump: screen.txt
`

	path := filepath.Join(dir, "nanoemu.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Trace {
		t.Error("Trace should be true")
	}
	if !cfg.Monitor {
		t.Error("Monitor should be true")
	}
	if len(cfg.Breakpoints) != 2 {
		t.Fatalf("Breakpoints length = %d, want 2", len(cfg.Breakpoints))
	}
	if cfg.Breakpoints[0] != 0x80000000 {
		t.Errorf("Breakpoints[0] = 0x%x, want 0x80000000", cfg.Breakpoints[0])
	}
	if cfg.MonitorDump != "screen.txt" {
		t.Errorf("MonitorDump = %q, want %q", cfg.MonitorDump, "screen.txt")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}
