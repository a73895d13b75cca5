package scheduler

import (
	"sort"
	"time"
)

// Wave is a set of task names scheduled to run concurrently. No task in a
// wave depends, directly or transitively, on another task in the same wave.
type Wave []string

// Schedule is the full wave plan for a graph.
type Schedule struct {
	Waves              []Wave
	TotalEstimatedTime time.Duration // Sum of each wave's longest task estimate
	CriticalPath       []string      // Longest duration-weighted dependency chain
	ResourceProfile    []ResourceClass
}

// Plan packs the graph's tasks into concurrency-bounded waves. A task is
// ready for the current wave once all its dependencies sit in an earlier
// wave. Ready ties are broken by larger EstimatedDuration first, then by
// ascending name, so output is reproducible for identical input.
func Plan(g *Graph, maxConcurrency int) Schedule {
	return PlanFrom(g, maxConcurrency, nil)
}

// PlanFrom plans only the tasks not in done, treating done tasks as if they
// completed in an earlier wave. The coordinator uses this to replan the
// remainder of a run after improvement hints change duration estimates.
// Inputs are never mutated; calling repeatedly is safe.
func PlanFrom(g *Graph, maxConcurrency int, done map[string]bool) Schedule {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	assigned := make(map[string]bool, g.Len())
	remaining := 0
	for _, name := range g.Names() {
		if done[name] {
			assigned[name] = true
		} else {
			remaining++
		}
	}

	sched := Schedule{}
	for remaining > 0 {
		ready := readySet(g, assigned)
		if len(ready) == 0 {
			// Impossible on a validated graph; guard against looping forever.
			break
		}

		wave := packWave(g, ready, maxConcurrency)
		for _, name := range wave {
			assigned[name] = true
		}
		remaining -= len(wave)

		sched.Waves = append(sched.Waves, wave)
		sched.TotalEstimatedTime += waveEstimate(g, wave)
		sched.ResourceProfile = append(sched.ResourceProfile, waveResourceClass(g, wave))
	}

	sched.CriticalPath = criticalPath(g)
	return sched
}

// readySet returns unassigned tasks whose dependencies are all assigned,
// ordered longest estimate first with name as tie-break.
func readySet(g *Graph, assigned map[string]bool) []string {
	var ready []string
	for _, name := range g.Names() {
		if assigned[name] {
			continue
		}
		ok := true
		for _, dep := range g.tasks[name].Dependencies {
			if !assigned[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, name)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		di, dj := g.tasks[ready[i]].EstimatedDuration, g.tasks[ready[j]].EstimatedDuration
		if di != dj {
			return di > dj
		}
		return ready[i] < ready[j]
	})
	return ready
}

// packWave fills a wave from the ordered ready set. A non-parallelizable
// task either opens a solo wave or waits for a later one; it never shares.
func packWave(g *Graph, ready []string, maxConcurrency int) Wave {
	var wave Wave
	for _, name := range ready {
		if len(wave) >= maxConcurrency {
			break
		}
		if !g.tasks[name].Parallelizable {
			if len(wave) == 0 {
				return Wave{name}
			}
			continue
		}
		wave = append(wave, name)
	}
	return wave
}

func waveEstimate(g *Graph, wave Wave) time.Duration {
	var longest time.Duration
	for _, name := range wave {
		if d := g.tasks[name].EstimatedDuration; d > longest {
			longest = d
		}
	}
	return longest
}

// waveResourceClass reports the dominant resource class across the wave,
// summing hint weights per class over all members.
func waveResourceClass(g *Graph, wave Wave) ResourceClass {
	combined := make(map[ResourceClass]int)
	for _, name := range wave {
		for class, weight := range g.tasks[name].ResourceHints {
			combined[class] += weight
		}
	}
	return DominantClass(combined)
}

// criticalPath finds the dependency chain maximizing the summed
// EstimatedDuration. Ties are broken by ascending task name at every
// choice point so the result is stable.
func criticalPath(g *Graph) []string {
	dist := make(map[string]time.Duration, g.Len())
	prev := make(map[string]string, g.Len())

	for _, name := range g.Order() {
		var best time.Duration
		bestDep := ""
		deps := append([]string(nil), g.tasks[name].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if dist[dep] > best || (dist[dep] == best && bestDep == "") {
				best = dist[dep]
				bestDep = dep
			}
		}
		dist[name] = best + g.tasks[name].EstimatedDuration
		prev[name] = bestDep
	}

	end := ""
	var endDist time.Duration
	for _, name := range g.Names() {
		if end == "" || dist[name] > endDist {
			end = name
			endDist = dist[name]
		}
	}
	if end == "" {
		return nil
	}

	var path []string
	for cur := end; cur != ""; cur = prev[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
