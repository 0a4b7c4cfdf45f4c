package process

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/procfs"
)

// Entry is a point-in-time row of the OS process table.
type Entry struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// Table enumerates running processes.
type Table interface {
	List() ([]Entry, error)
}

// ProcTable reads the process table from a procfs mount.
type ProcTable struct {
	mount string
}

// NewProcTable returns a table backed by the default /proc mount.
func NewProcTable() *ProcTable {
	return &ProcTable{mount: procfs.DefaultMountPoint}
}

// NewProcTableAt returns a table backed by a procfs mounted at mount.
func NewProcTableAt(mount string) *ProcTable {
	return &ProcTable{mount: mount}
}

// List returns every process whose name could be read. Processes that exit
// while the table is being read are skipped.
func (t *ProcTable) List() ([]Entry, error) {
	fs, err := procfs.NewFS(t.mount)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", t.mount, err)
	}

	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	entries := make([]Entry, 0, len(procs))
	for _, p := range procs {
		name := processName(p)
		if name == "" {
			continue
		}
		entries = append(entries, Entry{PID: p.PID, Name: name})
	}
	return entries, nil
}

// processName is the base name of argv[0]. comm is only used for processes
// without a command line (kernel threads, zombies) because the kernel
// truncates it to 15 bytes.
func processName(p procfs.Proc) string {
	if args, err := p.CmdLine(); err == nil && len(args) > 0 && args[0] != "" {
		return filepath.Base(args[0])
	}
	comm, err := p.Comm()
	if err != nil {
		return ""
	}
	return comm
}

// FindByName returns the entries whose name equals name exactly.
func FindByName(entries []Entry, name string) []Entry {
	var found []Entry
	for _, e := range entries {
		if e.Name == name {
			found = append(found, e)
		}
	}
	return found
}

// MatchPattern returns the entries whose name matches the wildcard pattern,
// ordered by PID.
func MatchPattern(entries []Entry, pattern string) ([]Entry, error) {
	var matched []Entry
	for _, e := range entries {
		ok, err := doublestar.Match(pattern, e.Name)
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", pattern, err)
		}
		if ok {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].PID < matched[j].PID })
	return matched, nil
}
