package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"
)

// DuplicateTaskError reports two task definitions sharing a name.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task name %q", e.Name)
}

// UnknownDependencyError reports a dependency on a task that is not
// part of the set. BuildGraph collects every violation, not just the first.
type UnknownDependencyError struct {
	Task    string
	Missing string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.Task, e.Missing)
}

// CyclicDependencyError reports a dependency cycle. Cycle lists the task
// names forming the loop with the start repeated at the end, e.g. [A B C A].
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// Graph is a validated, read-only view over a task set: the tasks indexed
// by name, the dependents transpose, and a topological order. Built once
// by BuildGraph; construction fails on any definition error.
type Graph struct {
	tasks      map[string]Task
	dependents map[string][]string
	order      []string
}

// BuildGraph validates a task set and builds its dependency graph.
// Definition errors (duplicate names, unknown dependencies, cycles) are
// fatal; unknown-dependency violations are all reported in one pass.
func BuildGraph(tasks []Task) (*Graph, error) {
	byName := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if _, exists := byName[t.Name]; exists {
			return nil, &DuplicateTaskError{Name: t.Name}
		}
		byName[t.Name] = t.Clone()
	}

	var defErrs []error
	for _, name := range sortedNames(byName) {
		for _, dep := range byName[name].Dependencies {
			if _, exists := byName[dep]; !exists {
				defErrs = append(defErrs, &UnknownDependencyError{Task: name, Missing: dep})
			}
		}
	}
	if len(defErrs) > 0 {
		return nil, errors.Join(defErrs...)
	}

	if cycle := findCycle(byName); cycle != nil {
		return nil, &CyclicDependencyError{Cycle: cycle}
	}

	g := &Graph{
		tasks:      byName,
		dependents: make(map[string][]string),
	}
	for _, name := range sortedNames(byName) {
		for _, dep := range byName[name].Dependencies {
			g.dependents[dep] = append(g.dependents[dep], name)
		}
	}

	order, err := topoOrder(byName)
	if err != nil {
		// Unreachable after findCycle, but toposort is the authority
		// on its own edge set.
		return nil, fmt.Errorf("topological sort: %w", err)
	}
	g.order = order

	return g, nil
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Task returns the task with the given name.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// Names returns all task names in ascending order.
func (g *Graph) Names() []string {
	return sortedNames(g.tasks)
}

// Dependencies returns the direct dependencies of a task.
func (g *Graph) Dependencies(name string) []string {
	t, ok := g.tasks[name]
	if !ok {
		return nil
	}
	return append([]string(nil), t.Dependencies...)
}

// Dependents returns the tasks that directly depend on the given task.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.dependents[name]...)
}

// Order returns a topological order of the task names. Dependencies
// appear before their dependents. The order is deterministic for
// identical input since edges are built from sorted names.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// topoOrder runs gammazero/toposort over deterministically ordered edges.
func topoOrder(tasks map[string]Task) ([]string, error) {
	var edges []toposort.Edge
	for _, name := range sortedNames(tasks) {
		deps := tasks[name].Dependencies
		if len(deps) == 0 {
			// Anchor dependency-free tasks so they appear in the result.
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		sorted := append([]string(nil), deps...)
		sort.Strings(sorted)
		for _, dep := range sorted {
			edges = append(edges, toposort.Edge{dep, name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(tasks))
	for _, v := range sorted {
		if v != nil {
			order = append(order, v.(string))
		}
	}
	return order, nil
}

// findCycle runs a DFS with an in-progress set and returns
// the first cycle found as an ordered walk, start repeated at the end.
// Returns nil when the graph is acyclic.
func findCycle(tasks map[string]Task) []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(tasks))

	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = inProgress
		stack = append(stack, name)

		deps := append([]string(nil), tasks[name].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			switch state[dep] {
			case inProgress:
				// Walk the stack back to the dependency to extract the loop.
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string(nil), stack[start:]...), dep)
				return true
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for _, name := range sortedNames(tasks) {
		if state[name] == unvisited && visit(name) {
			return cycle
		}
	}
	return nil
}

func sortedNames(tasks map[string]Task) []string {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
