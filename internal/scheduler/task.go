package scheduler

import (
	"sort"
	"time"
)

// ResourceClass categorizes the dominant resource demand of a task.
// Hints are planning aids only; nothing in the pipeline enforces them.
type ResourceClass string

const (
	ResourceNone   ResourceClass = ""
	ResourceCPU    ResourceClass = "cpu"
	ResourceMemory ResourceClass = "memory"
	ResourceIO     ResourceClass = "io"
)

// Task is a unit of work in the pipeline.
type Task struct {
	Name              string                // Unique identifier, immutable
	Dependencies      []string              // Names of tasks that must complete first
	EstimatedDuration time.Duration         // Planning estimate, never enforced
	Timeout           time.Duration         // Wall-clock execution limit (0 = none)
	MaxRetries        int                   // Quality-gate retry budget
	ResourceHints     map[ResourceClass]int // Opaque weights for ordering heuristics
	Parallelizable    bool                  // False forces a solo wave
	QualityWeight     float64               // Influence on wave aggregate quality (<=0 means 1)
}

// Clone returns a deep copy of the task. The scheduler and coordinator
// operate on copies so callers' task values are never mutated.
func (t Task) Clone() Task {
	cp := t
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.ResourceHints != nil {
		cp.ResourceHints = make(map[ResourceClass]int, len(t.ResourceHints))
		for k, v := range t.ResourceHints {
			cp.ResourceHints[k] = v
		}
	}
	return cp
}

// DominantClass returns the resource class with the highest weight.
// Ties are broken by class name so the result is deterministic.
func DominantClass(hints map[ResourceClass]int) ResourceClass {
	classes := make([]ResourceClass, 0, len(hints))
	for class := range hints {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })

	best := ResourceNone
	bestWeight := 0
	for _, class := range classes {
		if hints[class] > bestWeight {
			best = class
			bestWeight = hints[class]
		}
	}
	return best
}
