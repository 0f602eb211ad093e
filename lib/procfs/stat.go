package procfs

import (
	"bytes"
	"strconv"

	"github.com/gravitational/trace"
)

// statFields holds the handful of /proc/<pid>/stat fields this package
// needs, parsed out of the raw buffer by parseStat.
type statFields struct {
	pid       uint32
	ppid      uint32
	starttime uint64
}

// parseStat parses a raw /proc/<pid>/stat buffer. Field 2 (comm) is
// parenthesized and may itself contain spaces and ")", so the only safe way
// to find where it ends is to locate the *last* ")" in the buffer (spec
// 4.2, 6): fields 3 onward are the space-separated tokens starting two
// bytes after it. Field 1 (pid) is bounded by the first space instead,
// since it can never contain one.
func parseStat(buf []byte) (statFields, error) {
	var out statFields

	spaceIdx := bytes.IndexByte(buf, ' ')
	if spaceIdx < 0 {
		return out, trace.BadParameter("stat: end of 'pid' field not found")
	}
	pid, err := strconv.ParseUint(string(buf[:spaceIdx]), 10, 32)
	if err != nil {
		return out, trace.Wrap(err, "stat: field 1 (pid)")
	}
	out.pid = uint32(pid)

	closeParenIdx := bytes.LastIndexByte(buf, ')')
	if closeParenIdx < 0 || closeParenIdx+2 > len(buf) {
		return out, trace.BadParameter("stat: end of 'comm' field not found")
	}
	rest := bytes.Split(buf[closeParenIdx+2:], []byte{' '})

	// rest[0] is field 3 (state); field 4 (ppid) is rest[1]; field 22
	// (starttime) is rest[19].
	const ppidIdx = 1
	const starttimeIdx = 19
	if len(rest) <= starttimeIdx {
		return out, trace.BadParameter("stat: too few fields after 'comm' (got %d)", len(rest))
	}

	ppid, err := strconv.ParseUint(string(rest[ppidIdx]), 10, 32)
	if err != nil {
		return out, trace.Wrap(err, "stat: field 4 (ppid)")
	}
	out.ppid = uint32(ppid)

	starttime, err := strconv.ParseUint(string(rest[starttimeIdx]), 10, 64)
	if err != nil {
		return out, trace.Wrap(err, "stat: field 22 (starttime)")
	}
	out.starttime = starttime

	return out, nil
}
