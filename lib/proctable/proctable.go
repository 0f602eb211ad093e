package proctable

import (
	"context"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/gravitational/auditlogcore/lib/auditrecord"
	"github.com/gravitational/auditlogcore/lib/procfs"
	"github.com/gravitational/trace"
)

var (
	log    = slog.With("component", "proctable")
	tracer = otel.Tracer("github.com/gravitational/auditlogcore/lib/proctable")

	processesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "auditlogcore",
		Subsystem: "proctable",
		Name:      "processes_tracked",
		Help:      "Number of process generations currently held by the table.",
	})
	processesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auditlogcore",
		Subsystem: "proctable",
		Name:      "processes_expired_total",
		Help:      "Number of process generations removed by Expire.",
	})
)

// ProcFSReader is the slice of procfs.Reader's surface InitFromProc and
// Expire need. It is an interface (rather than a concrete *procfs.Reader
// parameter) purely so tests can exercise the table's algorithms against
// hand-rolled fakes instead of the real /proc; *procfs.Reader satisfies it
// as-is.
type ProcFSReader interface {
	GetPIDs() ([]uint32, error)
	ParseProcPID(pid uint32) (procfs.ProcPidInfo, error)
}

// LabelMatcher is the external collaborator spec 4.5 pins as an opaque
// predicate: given an executable path, return the labels that apply to it.
// ProcTable copies the returned slices into owned bytes before attaching
// them to a Process; it makes no assumption about the matcher's
// thread-safety, since it serializes its own access to it.
type LabelMatcher interface {
	Matches(exe []byte) [][]byte
}

// ReparentHook lets a caller supply a reparenting heuristic (spec 9: the
// source names known subreapers such as systemd, tini, runc, conmon, crun,
// bubblewrap, catatonit, criu, keepalived, lxqt-session, lutris-wrapper but
// does not act on the list). ProcTable calls the hook on a parent-lookup
// miss instead of hardcoding any such list; a hook returning ok=false
// leaves ParentKey unset, matching the table's behavior with no hook at
// all.
type ReparentHook func(pid, ppid uint32) (parentKey ProcKey, ok bool)

const defaultLabelCacheSize = 4096

// Option configures a ProcTable at construction time.
type Option func(*ProcTable)

// WithLabelMatcher attaches the label-matching predicate used to seed
// labels at InitFromProc and AddProcess time.
func WithLabelMatcher(m LabelMatcher) Option {
	return func(t *ProcTable) { t.labelMatcher = m }
}

// WithPropagatedLabels sets the labels that flow from a parent process to
// each newly-inserted child at AddProcess time (spec 4.4.2).
func WithPropagatedLabels(labels []string) Option {
	return func(t *ProcTable) {
		for _, l := range labels {
			t.propagateLabels[l] = struct{}{}
		}
	}
}

// WithReparentHook installs a reparenting heuristic (spec 9).
func WithReparentHook(h ReparentHook) Option {
	return func(t *ProcTable) { t.reparentHook = h }
}

// WithLabelCacheSize overrides the default size of the exe->labels
// memoization cache.
func WithLabelCacheSize(n int) Option {
	return func(t *ProcTable) { t.labelCacheSize = n }
}

// ProcTable is the time-indexed, PID-indexed process store of spec 3/4.4.
// All mutating methods are expected to be driven from one event-processing
// loop (spec 5); callers needing a concurrent Expire must wrap the table in
// their own mutex.
type ProcTable struct {
	procs map[ProcKey]*Process
	byPID map[uint32][]ProcKey

	labelMatcher    LabelMatcher
	propagateLabels map[string]struct{}
	reparentHook    ReparentHook

	labelCacheSize int
	labelCache     *lru.Cache[string, [][]byte]
}

// NewProcTable builds an empty ProcTable.
func NewProcTable(opts ...Option) *ProcTable {
	t := &ProcTable{
		procs:           make(map[ProcKey]*Process),
		byPID:           make(map[uint32][]ProcKey),
		propagateLabels: make(map[string]struct{}),
		labelCacheSize:  defaultLabelCacheSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	cache, err := lru.New[string, [][]byte](t.labelCacheSize)
	if err != nil {
		// Only invalid (<=0) sizes reach here; fall back to a size that
		// always succeeds rather than leaving the table half-built.
		cache, _ = lru.New[string, [][]byte](defaultLabelCacheSize)
	}
	t.labelCache = cache
	return t
}

// matchLabels returns the labels matching exe, memoized per distinct exe
// path so a LabelMatcher doing real work (regex, DB lookup) is not
// re-invoked for every short-lived process spawned from the same binary.
func (t *ProcTable) matchLabels(exe []byte) [][]byte {
	if t.labelMatcher == nil || len(exe) == 0 {
		return nil
	}
	key := string(exe)
	if cached, ok := t.labelCache.Get(key); ok {
		return cached
	}
	labels := t.labelMatcher.Matches(exe)
	t.labelCache.Add(key, labels)
	return labels
}

func (t *ProcTable) insert(key ProcKey, pid uint32, proc *Process) {
	t.procs[key] = proc
	list := t.byPID[pid]
	list = append(list, key)
	sort.Slice(list, func(i, j int) bool { return list[i].Less(list[j]) })
	t.byPID[pid] = list
	processesTracked.Set(float64(len(t.procs)))
}

// lastKeyForPid returns the most recently-inserted generation's key for
// pid, i.e. by_pid[pid].last().
func (t *ProcTable) lastKeyForPid(pid uint32) (ProcKey, bool) {
	list := t.byPID[pid]
	if len(list) == 0 {
		return ProcKey{}, false
	}
	return list[len(list)-1], true
}

// InitFromProc bootstraps the table from the live /proc view (spec 4.4.1).
// Parent linkage is deliberately not reconstructed from ppid here: a
// process observed via /proc may have been reparented after its original
// parent exited (e.g. by a PR_SET_CHILD_SUBREAPER ancestor), so inferring
// parent_key from ppid at bootstrap would be unsound. FIXME(spec 9): this
// choice is pinned by the source and intentionally not revisited.
func (t *ProcTable) InitFromProc(ctx context.Context, reader ProcFSReader) error {
	_, span := tracer.Start(ctx, "ProcTable.InitFromProc")
	defer span.End()

	pids, err := reader.GetPIDs()
	if err != nil {
		return trace.Wrap(err, "init_from_proc: enumerate /proc")
	}

	var seeded []*Process
	for _, pid := range pids {
		info, err := reader.ParseProcPID(pid)
		if err != nil {
			return trace.Wrap(err, "init_from_proc: pid %d", pid)
		}
		key := TimeKey(info.StartTimeMS)
		proc := newProcess(key)
		proc.Comm = info.Comm
		proc.Exe = info.Exe
		if info.ContainerID != nil {
			proc.Container = &ContainerInfo{ID: info.ContainerID}
		}
		t.insert(key, info.PID, proc)
		seeded = append(seeded, proc)
	}

	if t.labelMatcher != nil {
		for _, proc := range seeded {
			for _, l := range t.matchLabels(proc.Exe) {
				proc.AddLabel(l)
			}
		}
	}
	return nil
}

// AddProcess inserts a process observed at runtime off an EXECVE event
// (spec 4.4.2). container_info is always nil on insertion; per spec 9's
// open question, updating it later is a path this module's core does not
// expose.
func (t *ProcTable) AddProcess(pid, ppid uint32, id auditrecord.EventID, comm, exe []byte) *Process {
	key := EventKey(id)
	proc := newProcess(key)
	proc.PPID = &ppid
	proc.Comm = comm
	proc.Exe = exe

	parentKey, ok := t.lastKeyForPid(ppid)
	if !ok && t.reparentHook != nil {
		parentKey, ok = t.reparentHook(pid, ppid)
	}
	if ok {
		pk := parentKey
		proc.ParentKey = &pk
		if parent, pok := t.procs[parentKey]; pok {
			for label := range parent.labels {
				if _, propagate := t.propagateLabels[label]; propagate {
					proc.AddLabel([]byte(label))
				}
			}
		}
	}

	for _, l := range t.matchLabels(exe) {
		proc.AddLabel(l)
	}

	t.insert(key, pid, proc)
	return proc
}

// GetProcess returns the most recently-inserted generation of pid.
func (t *ProcTable) GetProcess(pid uint32) (*Process, bool) {
	key, ok := t.lastKeyForPid(pid)
	if !ok {
		return nil, false
	}
	return t.procs[key], true
}

// Get returns the process stored under key directly.
func (t *ProcTable) Get(key ProcKey) (*Process, bool) {
	p, ok := t.procs[key]
	return p, ok
}

// GetPidBefore returns the generation of pid that was alive at time t: the
// most recent entry in by_pid[pid] whose ProcKey time is strictly less
// than t, or false if none qualifies (spec 4.4.3, scenario 3). by_pid[pid]
// is kept in chronological order, so this scans from the newest entry
// backward and returns the first (i.e. most recent) qualifying one, which
// is the generation actually alive at t rather than the oldest one that
// happens to predate it.
func (t *ProcTable) GetPidBefore(pid uint32, atMS uint64) (*Process, bool) {
	list := t.byPID[pid]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Time() < atMS {
			return t.procs[list[i]], true
		}
	}
	return nil, false
}

// AddLabel attaches label to the process stored under key, if present.
func (t *ProcTable) AddLabel(key ProcKey, label []byte) {
	if p, ok := t.procs[key]; ok {
		p.AddLabel(label)
	}
}

// RemoveLabel detaches label from the process stored under key, if
// present.
func (t *ProcTable) RemoveLabel(key ProcKey, label []byte) {
	if p, ok := t.procs[key]; ok {
		p.RemoveLabel(label)
	}
}

// AddLabelPid attaches label to the most recent generation of pid. A pid
// with no tracked generation is silently ignored.
func (t *ProcTable) AddLabelPid(pid uint32, label []byte) {
	if p, ok := t.GetProcess(pid); ok {
		p.AddLabel(label)
	}
}

// RemoveLabelPid detaches label from the most recent generation of pid. A
// pid with no tracked generation is silently ignored.
func (t *ProcTable) RemoveLabelPid(pid uint32, label []byte) {
	if p, ok := t.GetProcess(pid); ok {
		p.RemoveLabel(label)
	}
}

// Expire reconciles the table against the live /proc view (spec 4.4.4): every
// process that is neither the current (most recent) generation of a live pid
// nor reachable as an ancestor of one is removed; this includes older
// generations of a pid that is still live. A
// live process retains its full parent_key chain even where an ancestor
// has itself exited, so future label-propagation reasoning stays
// consistent (spec 4.4.4 rationale, scenario 5).
//
// If enumerating /proc fails, the table is left unchanged; this is an
// absorbed condition (spec 7), not a propagated error.
func (t *ProcTable) Expire(ctx context.Context, reader ProcFSReader) {
	_, span := tracer.Start(ctx, "ProcTable.Expire")
	defer span.End()

	live, err := reader.GetPIDs()
	if err != nil {
		log.Debug("expire: enumerate /proc failed, table unchanged", "error", err)
		return
	}

	prune := make(map[ProcKey]struct{}, len(t.procs))
	for k := range t.procs {
		prune[k] = struct{}{}
	}

	for _, seedPid := range live {
		cur, ok := t.lastKeyForPid(seedPid)
		for ok {
			if _, inPrune := prune[cur]; !inPrune {
				break
			}
			delete(prune, cur)
			proc := t.procs[cur]
			if proc.ParentKey == nil {
				break
			}
			cur = *proc.ParentKey
		}
	}

	for k := range prune {
		delete(t.procs, k)
	}
	processesExpired.Add(float64(len(prune)))

	for pid, list := range t.byPID {
		kept := list[:0]
		for _, k := range list {
			if _, pruned := prune[k]; !pruned {
				kept = append(kept, k)
			}
		}
		if len(kept) == 0 {
			delete(t.byPID, pid)
		} else {
			t.byPID[pid] = kept
		}
	}

	processesTracked.Set(float64(len(t.procs)))
}
