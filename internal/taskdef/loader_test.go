package taskdef

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wavegate/wavegate/internal/scheduler"
)

// TestParse_FullDocument verifies every definition field maps through.
func TestParse_FullDocument(t *testing.T) {
	doc := `{
		"tasks": [
			{
				"name": "build",
				"estimated_duration": "30s",
				"timeout": "2m",
				"max_retries": 2,
				"resource_hints": {"cpu": 4},
				"quality_weight": 2.5
			},
			{
				"name": "migrate",
				"depends_on": ["build"],
				"parallelizable": false
			}
		]
	}`

	tasks, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	build := tasks[0]
	if build.Name != "build" {
		t.Errorf("expected name build, got %q", build.Name)
	}
	if build.EstimatedDuration != 30*time.Second {
		t.Errorf("expected estimated duration 30s, got %v", build.EstimatedDuration)
	}
	if build.Timeout != 2*time.Minute {
		t.Errorf("expected timeout 2m, got %v", build.Timeout)
	}
	if build.MaxRetries != 2 {
		t.Errorf("expected 2 retries, got %d", build.MaxRetries)
	}
	if build.ResourceHints[scheduler.ResourceCPU] != 4 {
		t.Errorf("expected cpu hint 4, got %v", build.ResourceHints)
	}
	if build.QualityWeight != 2.5 {
		t.Errorf("expected quality weight 2.5, got %v", build.QualityWeight)
	}
	if !build.Parallelizable {
		t.Error("expected parallelizable to default to true")
	}

	migrate := tasks[1]
	if migrate.Parallelizable {
		t.Error("expected explicit parallelizable false to stick")
	}
	if len(migrate.Dependencies) != 1 || migrate.Dependencies[0] != "build" {
		t.Errorf("expected dependency [build], got %v", migrate.Dependencies)
	}
	if migrate.QualityWeight != 1 {
		t.Errorf("expected default quality weight 1, got %v", migrate.QualityWeight)
	}
}

// TestParse_Invalid covers validation and decoding failures.
func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		errContains string
	}{
		{
			name:        "not json",
			doc:         `tasks:`,
			errContains: "parsing task definitions",
		},
		{
			name:        "empty task list",
			doc:         `{"tasks": []}`,
			errContains: "invalid task definitions",
		},
		{
			name:        "missing name",
			doc:         `{"tasks": [{"depends_on": ["a"]}]}`,
			errContains: "invalid task definitions",
		},
		{
			name:        "negative retries",
			doc:         `{"tasks": [{"name": "a", "max_retries": -1}]}`,
			errContains: "invalid task definitions",
		},
		{
			name:        "bad duration",
			doc:         `{"tasks": [{"name": "a", "estimated_duration": "soon"}]}`,
			errContains: `task "a": estimated_duration`,
		},
		{
			name:        "bad timeout",
			doc:         `{"tasks": [{"name": "a", "timeout": "never"}]}`,
			errContains: `task "a": timeout`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got: %v", tt.errContains, err)
			}
		})
	}
}

// TestParse_CollectsAllConversionErrors verifies bad durations across
// definitions all surface in one pass.
func TestParse_CollectsAllConversionErrors(t *testing.T) {
	doc := `{"tasks": [
		{"name": "a", "estimated_duration": "bogus"},
		{"name": "b", "timeout": "bogus"}
	]}`

	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{`task "a"`, `task "b"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error mentioning %s, got: %v", want, err)
		}
	}
}

// TestLoad_File verifies the file path entry point.
func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	doc := `{"tasks": [{"name": "solo"}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	tasks, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "solo" {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

// TestLoad_MissingFile verifies read errors surface.
func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
