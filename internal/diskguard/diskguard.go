// Package diskguard estimates whether the temp-file families ingest has
// accumulated so far are about to exhaust the filesystem they live on.
// Ported from the source project's main.go DiskUsage/CheckDisk pair, whose
// DiskUsage called into kernel32.dll's GetDiskFreeSpaceExW — a Windows-only
// API that has no meaning on this module's Linux/macOS target. The check
// itself (committed bytes vs. 90% of free space) is kept; only the syscall
// underneath it changes, to golang.org/x/sys/unix's Statfs.
package diskguard

import (
	"golang.org/x/sys/unix"
)

// Status mirrors the teacher's DiskStatus: total, used, and free bytes on
// the filesystem backing path.
type Status struct {
	All  int64
	Used int64
	Free int64
}

// Usage statfs(2)s path and reports its space in bytes.
func Usage(path string) (Status, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Status{}, err
	}
	free := int64(st.Bavail) * int64(st.Bsize)
	total := int64(st.Blocks) * int64(st.Bsize)
	return Status{
		All:  total,
		Used: total - free,
		Free: free,
	}, nil
}

// WillExhaust reports whether committed (the bytes ingest has already
// written across every worker's temp-file family: geometry*2, index*2,
// string pool, vertex pool — the teacher's own over-estimate, which
// double-counts geometry/index as headroom) exceeds 90% of the free space observed when
// ingest started. Ported verbatim from CheckDisk's `used > free*.9` test.
func WillExhaust(committed, freeAtStart int64) bool {
	return float64(committed) > float64(freeAtStart)*0.9
}
