package reaper

import (
	"github.com/prometheus/procfs"
	"golang.org/x/xerrors"
)

type Process struct {
	PID  int
	PPID int
	Name string
}

// Table lists the processes currently visible to this process.
type Table interface {
	Processes() ([]Process, error)
}

type procTable struct {
	fs procfs.FS
}

// NewProcTable reads the process table from a procfs mount such as /proc.
func NewProcTable(mountPoint string) (Table, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, xerrors.Errorf("failed to open procfs at %s: %w", mountPoint, err)
	}
	return &procTable{fs: fs}, nil
}

func (t *procTable) Processes() ([]Process, error) {
	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, xerrors.Errorf("failed to list processes: %w", err)
	}

	processes := make([]Process, 0, len(procs))
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			// exited between listing and reading
			continue
		}
		processes = append(processes, Process{
			PID:  stat.PID,
			PPID: stat.PPID,
			Name: stat.Comm,
		})
	}
	return processes, nil
}
