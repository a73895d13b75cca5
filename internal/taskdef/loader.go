// Package taskdef is the boundary with the upstream authoring system:
// task definitions arrive as data (a JSON document) and leave as validated
// scheduler.Task values. How the document was authored is immaterial here.
package taskdef

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wavegate/wavegate/internal/scheduler"
)

// Definition is the wire shape of one task.
type Definition struct {
	Name              string         `json:"name" validate:"required"`
	DependsOn         []string       `json:"depends_on,omitempty" validate:"dive,required"`
	EstimatedDuration string         `json:"estimated_duration,omitempty"`
	Timeout           string         `json:"timeout,omitempty"`
	MaxRetries        int            `json:"max_retries,omitempty" validate:"gte=0"`
	ResourceHints     map[string]int `json:"resource_hints,omitempty" validate:"dive,gte=0"`
	Parallelizable    *bool          `json:"parallelizable,omitempty"` // nil means true
	QualityWeight     float64        `json:"quality_weight,omitempty" validate:"gte=0"`
}

// Document is the top-level task list file.
type Document struct {
	Tasks []Definition `json:"tasks" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Load reads and parses a task definition file.
func Load(path string) ([]scheduler.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task definitions: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a task definition document. Validation
// failures for individual definitions are collected, not first-stop,
// so authors see every problem at once.
func Parse(data []byte) ([]scheduler.Task, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing task definitions: %w", err)
	}

	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid task definitions: %w", err)
	}

	var defErrs []error
	tasks := make([]scheduler.Task, 0, len(doc.Tasks))
	for _, def := range doc.Tasks {
		task, err := def.toTask()
		if err != nil {
			defErrs = append(defErrs, err)
			continue
		}
		tasks = append(tasks, task)
	}
	if len(defErrs) > 0 {
		return nil, errors.Join(defErrs...)
	}
	return tasks, nil
}

func (d Definition) toTask() (scheduler.Task, error) {
	task := scheduler.Task{
		Name:           d.Name,
		Dependencies:   append([]string(nil), d.DependsOn...),
		MaxRetries:     d.MaxRetries,
		Parallelizable: d.Parallelizable == nil || *d.Parallelizable,
		QualityWeight:  d.QualityWeight,
	}
	if task.QualityWeight == 0 {
		task.QualityWeight = 1
	}

	if d.EstimatedDuration != "" {
		dur, err := time.ParseDuration(d.EstimatedDuration)
		if err != nil {
			return scheduler.Task{}, fmt.Errorf("task %q: estimated_duration: %w", d.Name, err)
		}
		task.EstimatedDuration = dur
	}
	if d.Timeout != "" {
		dur, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return scheduler.Task{}, fmt.Errorf("task %q: timeout: %w", d.Name, err)
		}
		task.Timeout = dur
	}

	if len(d.ResourceHints) > 0 {
		task.ResourceHints = make(map[scheduler.ResourceClass]int, len(d.ResourceHints))
		for class, weight := range d.ResourceHints {
			task.ResourceHints[scheduler.ResourceClass(class)] = weight
		}
	}
	return task, nil
}
