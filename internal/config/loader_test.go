package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// TestLoad_Defaults verifies a load with no files yields the baseline.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxConcurrency != 4 {
		t.Errorf("expected default max_concurrency 4, got %d", cfg.MaxConcurrency)
	}
	if cfg.GlobalConcurrency != 8 {
		t.Errorf("expected default global_concurrency 8, got %d", cfg.GlobalConcurrency)
	}
	if cfg.QualityThreshold != 80 {
		t.Errorf("expected default quality_threshold 80, got %d", cfg.QualityThreshold)
	}
	if cfg.Retry.Multiplier != 2.0 {
		t.Errorf("expected default retry multiplier 2.0, got %v", cfg.Retry.Multiplier)
	}
}

// TestLoad_ProjectOverridesGlobal verifies precedence between the two files.
func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := writeConfig(t, dir, "global.json", `{"max_concurrency": 8, "quality_threshold": 70}`)
	project := writeConfig(t, dir, "project.json", `{"quality_threshold": 90}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxConcurrency != 8 {
		t.Errorf("expected global max_concurrency 8, got %d", cfg.MaxConcurrency)
	}
	if cfg.QualityThreshold != 90 {
		t.Errorf("expected project quality_threshold 90, got %d", cfg.QualityThreshold)
	}
}

// TestLoad_EnvOverridesFiles verifies WAVEGATE_* wins over both files.
func TestLoad_EnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	project := writeConfig(t, dir, "project.json", `{"quality_threshold": 90}`)

	t.Setenv("WAVEGATE_QUALITY_THRESHOLD", "65")
	t.Setenv("WAVEGATE_HISTORY_DB", filepath.Join(dir, "runs.db"))

	cfg, err := Load("", project)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.QualityThreshold != 65 {
		t.Errorf("expected env quality_threshold 65, got %d", cfg.QualityThreshold)
	}
	if cfg.HistoryDB == "" {
		t.Error("expected history_db from environment")
	}
}

// TestLoad_MissingFilesSkipped verifies nonexistent paths are not errors.
func TestLoad_MissingFilesSkipped(t *testing.T) {
	if _, err := Load("/nonexistent/global.json", "/nonexistent/project.json"); err != nil {
		t.Fatalf("expected missing files skipped, got %v", err)
	}
}

// TestLoad_MalformedJSON verifies parse failures surface.
func TestLoad_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeConfig(t, dir, "bad.json", `{"max_concurrency": `)

	if _, err := Load(bad, ""); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

// TestLoad_BadEnvValue verifies non-numeric overrides surface.
func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("WAVEGATE_MAX_CONCURRENCY", "lots")

	_, err := Load("", "")
	if err == nil {
		t.Fatal("expected error for non-numeric WAVEGATE_MAX_CONCURRENCY")
	}
	if !strings.Contains(err.Error(), "WAVEGATE_MAX_CONCURRENCY") {
		t.Errorf("expected variable named in error, got: %v", err)
	}
}

// TestValidate covers clamping and range checks.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		wantMax int
	}{
		{"zero concurrency clamps to 1", Config{MaxConcurrency: 0}, false, 1},
		{"excess concurrency clamps to 16", Config{MaxConcurrency: 64}, false, 16},
		{"threshold above 100 rejected", Config{MaxConcurrency: 4, QualityThreshold: 120}, true, 0},
		{"negative threshold rejected", Config{MaxConcurrency: 4, QualityThreshold: -1}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.cfg.MaxConcurrency != tt.wantMax {
				t.Errorf("expected max_concurrency %d, got %d", tt.wantMax, tt.cfg.MaxConcurrency)
			}
		})
	}
}
