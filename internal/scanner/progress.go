package scanner

import "sync/atomic"

// Progress holds the atomic counters a caller polls (typically once a
// second) to render a progress readout. It is never a stream: the pull
// model avoids per-file IPC (spec.md §4.2 step "Progress").
type Progress struct {
	filesScanned       atomic.Int64
	directoriesScanned atomic.Int64
	bytesProcessed     atomic.Int64
}

// Snapshot is a point-in-time read of Progress's counters.
type Snapshot struct {
	FilesScanned       int64
	DirectoriesScanned int64
	BytesProcessed     int64
}

func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:       p.filesScanned.Load(),
		DirectoriesScanned: p.directoriesScanned.Load(),
		BytesProcessed:     p.bytesProcessed.Load(),
	}
}
