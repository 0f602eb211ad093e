// Package procfs reads the subset of /proc this audit enrichment core
// needs: per-pid stat/comm/exe/cgroup/environ, directory enumeration, and
// the boot-time-to-wall-clock conversion required to compute a process's
// start time in Unix epoch milliseconds.
package procfs

import (
	"sync"

	"github.com/gravitational/trace"
	"github.com/tklauser/go-sysconf"
	"golang.org/x/sys/unix"
)

// clkTck is the kernel's clock ticks per second, cached process-wide on
// first use (spec 4.2, 5 "Shared mutable state").
var (
	clkTckOnce  sync.Once
	clkTckValue int64
	clkTckErr   error
)

func clkTck() (int64, error) {
	clkTckOnce.Do(func() {
		clkTckValue, clkTckErr = sysconf.Sysconf(sysconf.SC_CLK_TCK)
	})
	if clkTckErr != nil {
		return 0, trace.Wrap(clkTckErr, "sysconf: CLK_TCK")
	}
	return clkTckValue, nil
}

// clockReader abstracts the two CLOCK_BOOTTIME/CLOCK_REALTIME reads
// startTimeMillis needs, so tests can supply the fixed values spec 8's
// scenario 1 pins without touching the real host clock.
type clockReader func(clockid int32) (unix.Timespec, error)

func realClockReader(clockid int32) (unix.Timespec, error) {
	var ts unix.Timespec
	err := unix.ClockGettime(clockid, &ts)
	return ts, err
}

// startTimeMillis converts a /proc/<pid>/stat starttime (field 22, clock
// ticks since boot) into Unix-epoch milliseconds, per the algorithm pinned
// in spec 4.2:
//
//	boot_offset = ticks converted to a timespec at CLK_TCK resolution
//	age         = CLOCK_BOOTTIME - boot_offset
//	walltime    = CLOCK_REALTIME - age
func startTimeMillis(ticks uint64) (uint64, error) {
	tck, err := clkTck()
	if err != nil {
		return 0, trace.Wrap(err)
	}
	return startTimeMillisWith(ticks, tck, realClockReader)
}

func startTimeMillisWith(ticks uint64, tck int64, clock clockReader) (uint64, error) {
	bootOffset := unix.Timespec{
		Sec:  int64(ticks) / tck,
		Nsec: (int64(ticks) % tck) * (1_000_000_000 / tck),
	}

	boottime, err := clock(unix.CLOCK_BOOTTIME)
	if err != nil {
		return 0, trace.Wrap(err, "clock_gettime: CLOCK_BOOTTIME")
	}
	age := timespecSub(boottime, bootOffset)

	realtime, err := clock(unix.CLOCK_REALTIME)
	if err != nil {
		return 0, trace.Wrap(err, "clock_gettime: CLOCK_REALTIME")
	}
	walltime := timespecSub(realtime, age)

	return uint64(walltime.Sec*1000 + walltime.Nsec/1_000_000), nil
}

func timespecSub(a, b unix.Timespec) unix.Timespec {
	sec := a.Sec - b.Sec
	nsec := a.Nsec - b.Nsec
	if nsec < 0 {
		nsec += 1_000_000_000
		sec--
	}
	return unix.Timespec{Sec: sec, Nsec: nsec}
}
