package procfs

import (
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
	promprocfs "github.com/prometheus/procfs"
)

// log is scoped to this package's component, matching the "absorb to
// None, log at Debug" policy for missing optional /proc data (spec 7;
// these are breadcrumbs, not user-facing errors, so nothing above Debug
// is ever logged here).
var log = slog.With("component", "procfs")

// Reader reads the handful of /proc entries this package knows how to
// parse. It wraps a prometheus/procfs filesystem handle for PID
// enumeration, comm/exe reads and environ reads; the stat parse and the
// boottime-to-wallclock conversion are hand-rolled against the pinned
// algorithm in spec 4.2/6, which a generic procfs library does not expose
// in this exact shape.
type Reader struct {
	fs         promprocfs.FS
	mountPoint string
}

// NewReader opens /proc. mountPoint may be "" to use the default "/proc".
func NewReader(mountPoint string) (*Reader, error) {
	var fs promprocfs.FS
	var err error
	if mountPoint == "" {
		fs, err = promprocfs.NewDefaultFS()
		mountPoint = "/proc"
	} else {
		fs, err = promprocfs.NewFS(mountPoint)
	}
	if err != nil {
		return nil, trace.Wrap(err, "open procfs")
	}
	return &Reader{fs: fs, mountPoint: mountPoint}, nil
}

// GetPIDs enumerates every directory under /proc whose name parses as a
// PID; non-numeric entries are ignored, order is arbitrary (spec 4.2).
func (r *Reader) GetPIDs() ([]uint32, error) {
	procs, err := r.fs.AllProcs()
	if err != nil {
		return nil, trace.Wrap(err, "read_dir: /proc")
	}
	pids := make([]uint32, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, uint32(p.PID))
	}
	return pids, nil
}

// EnvPair is one accepted (key, value) environment entry.
type EnvPair struct {
	Key   []byte
	Value []byte
}

// GetEnviron reads /proc/<pid>/environ, splits it on NUL, splits each entry
// on the first "=", and returns the (key, value) pairs for which pred(key)
// is true. An entry with no "=" yields an empty value (spec 4.2).
func (r *Reader) GetEnviron(pid uint32, pred func(key []byte) bool) ([]EnvPair, error) {
	p, err := r.fs.Proc(int(pid))
	if err != nil {
		return nil, trace.Wrap(err, "open: /proc/%d/environ", pid)
	}
	entries, err := p.Environ()
	if err != nil {
		return nil, trace.Wrap(err, "read: /proc/%d/environ", pid)
	}
	var out []EnvPair
	for _, e := range entries {
		k, v, _ := strings.Cut(e, "=")
		kb := []byte(k)
		if pred(kb) {
			out = append(out, EnvPair{Key: kb, Value: []byte(v)})
		}
	}
	return out, nil
}

// PidPathMetadata stats path (which must be absolute) as seen from pid's
// root, i.e. /proc/<pid>/root/<path>. A relative path returns a not-found
// error without touching the filesystem (spec 4.2).
func (r *Reader) PidPathMetadata(pid uint32, p []byte) (os.FileInfo, error) {
	if len(p) == 0 || p[0] != '/' {
		return nil, trace.NotFound("path must be absolute: %q", p)
	}
	full := path.Join(r.mountPoint, strconv.FormatUint(uint64(pid), 10), "root", string(p))
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, trace.NotFound("stat: %s: %v", full, err)
		}
		return nil, trace.Wrap(err, "stat: %s", full)
	}
	return info, nil
}

// ProcPidInfo is the transient per-process snapshot ParseProcPID produces
// (spec 3); it is never stored, only used to populate or update a
// ProcTable entry.
type ProcPidInfo struct {
	PID         uint32
	PPID        uint32
	StartTimeMS uint64
	Comm        []byte
	Exe         []byte
	ContainerID []byte
}

// ParseProcPID reads and parses everything parse_proc_pid needs for pid:
// the required stat fields (pid, ppid, starttime, converted to Unix-epoch
// milliseconds) and the optional comm/exe/container-id, which are absorbed
// to nil on any read failure rather than failing the whole call (spec 4.2,
// 7 "Missing optional data").
func (r *Reader) ParseProcPID(pid uint32) (ProcPidInfo, error) {
	statBuf, err := os.ReadFile(r.statPath(pid))
	if err != nil {
		return ProcPidInfo{}, trace.Wrap(err, "read /proc/%d/stat", pid)
	}
	fields, err := parseStat(statBuf)
	if err != nil {
		return ProcPidInfo{}, trace.Wrap(err, "parse /proc/%d/stat", pid)
	}

	startMS, err := startTimeMillis(fields.starttime)
	if err != nil {
		return ProcPidInfo{}, trace.Wrap(err, "convert starttime for pid %d", pid)
	}

	info := ProcPidInfo{PID: fields.pid, PPID: fields.ppid, StartTimeMS: startMS}

	if p, err := r.fs.Proc(int(pid)); err == nil {
		// prometheus/procfs absorbs a missing exe symlink (e.g. a kernel
		// thread) to ("", nil) rather than an error; treat an empty
		// result the same as a read failure so both paths land on the
		// same "absorbed to nil" outcome (spec 7).
		if comm, err := p.Comm(); err == nil && comm != "" {
			info.Comm = []byte(comm)
		} else if err != nil {
			log.Debug("comm unavailable", "pid", pid, "error", err)
		}
		if exe, err := p.Executable(); err == nil && exe != "" {
			info.Exe = []byte(exe)
		} else if err != nil {
			log.Debug("exe unavailable", "pid", pid, "error", err)
		}
	} else {
		log.Debug("comm/exe unavailable", "pid", pid, "error", err)
	}

	if cgroupBuf, err := os.ReadFile(r.cgroupPath(pid)); err == nil {
		if id, ok := parseCgroupBuf(cgroupBuf); ok {
			info.ContainerID = append([]byte(nil), id...)
		}
	} else {
		log.Debug("cgroup unavailable", "pid", pid, "error", err)
	}

	return info, nil
}

func (r *Reader) statPath(pid uint32) string {
	return path.Join(r.mountPoint, strconv.FormatUint(uint64(pid), 10), "stat")
}

func (r *Reader) cgroupPath(pid uint32) string {
	return path.Join(r.mountPoint, strconv.FormatUint(uint64(pid), 10), "cgroup")
}
