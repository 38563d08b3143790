package staging

import (
	"fmt"
	"path"
	"sync/atomic"

	"icefloe/iceberg"
)

// PropertyManifestLocation is the table property overriding where staged
// manifest artifacts are placed.
const PropertyManifestLocation = "staging.manifest-location"

// OutputFileFactory allocates fresh, collision-free locations for staged
// manifests. Uniqueness is a pure function of (job id, subtask id, attempt
// number, monotonic counter), so distinct subtasks and attempts own
// disjoint location namespaces and need no coordination. A factory is
// owned by exactly one subtask attempt and must not be shared.
type OutputFileFactory struct {
	prefix        string
	jobID         string
	subtaskID     int
	attemptNumber int64
	counter       atomic.Int64
}

func NewOutputFileFactory(table *iceberg.Table, jobID string, subtaskID int, attemptNumber int64) *OutputFileFactory {
	prefix := table.Properties()[PropertyManifestLocation]
	if prefix == "" {
		prefix = path.Join(table.Location(), "metadata", "staging")
	}

	return &OutputFileFactory{
		prefix:        prefix,
		jobID:         jobID,
		subtaskID:     subtaskID,
		attemptNumber: attemptNumber,
	}
}

// Next returns a fresh manifest location. It performs no I/O.
func (f *OutputFileFactory) Next() string {
	n := f.counter.Add(1)
	return path.Join(f.prefix, fmt.Sprintf("%s-%05d-%d-%05d.manifest.json", f.jobID, f.subtaskID, f.attemptNumber, n))
}
