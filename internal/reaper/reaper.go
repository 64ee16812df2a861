package reaper

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/xerrors"
)

type Config struct {
	Table Table
	// Kill defaults to sending SIGKILL.
	Kill func(pid int) error
}

// Reaper force-kills leftover browser processes below a root process.
type Reaper struct {
	table Table
	kill  func(pid int) error
}

func New(c Config) *Reaper {
	kill := c.Kill
	if kill == nil {
		kill = killProcess
	}
	return &Reaper{
		table: c.Table,
		kill:  kill,
	}
}

func killProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// Matching returns the descendants of root whose name contains any of names.
// root itself is never included.
func (r *Reaper) Matching(root int, names []string) ([]Process, error) {
	processes, err := r.table.Processes()
	if err != nil {
		return nil, err
	}
	return descendants(processes, root, names, false), nil
}

// Spawned returns the browsers started below root since before was taken:
// matching descendants that are not in before and have no matching ancestor
// between them and root. Helpers of browsers that already ran, including ones
// they spawned since, are therefore never claimed.
func (r *Reaper) Spawned(root int, names []string, before map[int]struct{}) ([]Process, error) {
	processes, err := r.table.Processes()
	if err != nil {
		return nil, err
	}

	children := childrenOf(processes)
	visited := map[int]struct{}{root: {}}
	queue := []int{root}
	var spawned []Process
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, child := range children[pid] {
			if _, ok := visited[child.PID]; ok {
				continue
			}
			visited[child.PID] = struct{}{}
			if !nameMatches(child.Name, names) {
				queue = append(queue, child.PID)
				continue
			}
			if _, ok := before[child.PID]; !ok {
				spawned = append(spawned, child)
			}
		}
	}
	return spawned, nil
}

// Trees lists every root that is still running under its recorded name
// together with its matching descendants. A root without a name is always
// walked.
func (r *Reaper) Trees(roots []Process, names []string) ([]Process, error) {
	processes, err := r.table.Processes()
	if err != nil {
		return nil, err
	}
	return trees(processes, roots, names), nil
}

// Reap kills the matching processes of Trees(roots, names) together with any
// process in tracked that still runs under the same PID and name. tracked
// covers helpers that were reparented away from their browser after it
// exited. Kill failures are joined into the returned error.
func (r *Reaper) Reap(roots []Process, names []string, tracked ...Process) ([]Process, error) {
	processes, err := r.table.Processes()
	if err != nil {
		return nil, err
	}

	alive := make(map[int]Process, len(processes))
	for _, p := range processes {
		alive[p.PID] = p
	}

	targets := trees(processes, roots, names)
	for _, t := range tracked {
		if p, ok := alive[t.PID]; ok && p.Name == t.Name {
			targets = append(targets, p)
		}
	}

	seen := make(map[int]struct{}, len(targets))
	var killed []Process
	var errs []error
	for _, p := range targets {
		if _, ok := seen[p.PID]; ok {
			continue
		}
		seen[p.PID] = struct{}{}
		if err := r.kill(p.PID); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				continue
			}
			errs = append(errs, xerrors.Errorf("failed to kill %s (pid %d): %w", p.Name, p.PID, err))
			continue
		}
		slog.Debug("killed orphaned browser process", "pid", p.PID, "name", p.Name)
		killed = append(killed, p)
	}
	return killed, errors.Join(errs...)
}

func trees(processes []Process, roots []Process, names []string) []Process {
	alive := make(map[int]Process, len(processes))
	for _, p := range processes {
		alive[p.PID] = p
	}
	var out []Process
	for _, root := range roots {
		p, ok := alive[root.PID]
		if root.Name != "" && (!ok || p.Name != root.Name) {
			continue
		}
		out = append(out, descendants(processes, root.PID, names, true)...)
	}
	return out
}

func childrenOf(processes []Process) map[int][]Process {
	children := make(map[int][]Process, len(processes))
	for _, p := range processes {
		if p.PID == p.PPID {
			continue
		}
		children[p.PPID] = append(children[p.PPID], p)
	}
	return children
}

func descendants(processes []Process, root int, names []string, includeRoot bool) []Process {
	var matched []Process
	if includeRoot {
		for _, p := range processes {
			if p.PID == root && nameMatches(p.Name, names) {
				matched = append(matched, p)
			}
		}
	}

	children := childrenOf(processes)
	visited := map[int]struct{}{root: {}}
	queue := []int{root}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, child := range children[pid] {
			if _, ok := visited[child.PID]; ok {
				continue
			}
			visited[child.PID] = struct{}{}
			queue = append(queue, child.PID)
			if nameMatches(child.Name, names) {
				matched = append(matched, child)
			}
		}
	}
	return matched
}

// PIDs indexes processes by PID, e.g. to pass a Matching result to Spawned.
func PIDs(processes []Process) map[int]struct{} {
	pids := make(map[int]struct{}, len(processes))
	for _, p := range processes {
		pids[p.PID] = struct{}{}
	}
	return pids
}

func nameMatches(name string, names []string) bool {
	name = strings.ToLower(name)
	for _, n := range names {
		if n == "" {
			continue
		}
		if strings.Contains(name, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
