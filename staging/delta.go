package staging

import (
	"context"
	"encoding/json"
	"fmt"

	"icefloe/iceberg"
	"icefloe/storage"
)

// WriteResult is a writer's in-memory output for one checkpoint interval:
// the data and delete files it produced, plus the paths of data files not
// in this result that its delete files apply against.
type WriteResult struct {
	DataFiles           []iceberg.DataFile
	DeleteFiles         []iceberg.DeleteFile
	ReferencedDataFiles []string
}

// DeltaManifests is the checkpoint-persisted form of a WriteResult: an
// optional handle per manifest (absent when the corresponding file list
// was empty) and the referenced data-file paths carried through verbatim.
type DeltaManifests struct {
	DataManifest        *iceberg.ManifestFile `json:"data-manifest,omitempty"`
	DeleteManifest      *iceberg.ManifestFile `json:"delete-manifest,omitempty"`
	ReferencedDataFiles []string              `json:"referenced-data-files,omitempty"`
}

// Manifests returns the handles present in the bundle.
func (d *DeltaManifests) Manifests() []*iceberg.ManifestFile {
	if d == nil {
		return nil
	}
	manifests := make([]*iceberg.ManifestFile, 0, 2)
	if d.DataManifest != nil {
		manifests = append(manifests, d.DataManifest)
	}
	if d.DeleteManifest != nil {
		manifests = append(manifests, d.DeleteManifest)
	}
	return manifests
}

// Marshal serializes the bundle for checkpoint state.
func (d *DeltaManifests) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling delta manifests: %w", err)
	}
	return data, nil
}

// UnmarshalDeltaManifests is the inverse of Marshal.
func UnmarshalDeltaManifests(data []byte) (*DeltaManifests, error) {
	var d DeltaManifests
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshaling delta manifests: %w", err)
	}
	return &d, nil
}

// StageCompletedFiles writes the result's freshly produced files into new
// manifest artifacts at locations taken from nextLocation, one per
// non-empty file list. Empty lists produce no manifest, and the referenced
// data files pass through unchanged.
func StageCompletedFiles(ctx context.Context, store storage.Storage, result WriteResult, nextLocation func() string, spec iceberg.PartitionSpec) (*DeltaManifests, error) {
	delta := &DeltaManifests{ReferencedDataFiles: result.ReferencedDataFiles}

	if len(result.DataFiles) > 0 {
		m, err := WriteDataManifest(ctx, store, nextLocation(), spec, result.DataFiles)
		if err != nil {
			return nil, fmt.Errorf("staging data files: %w", err)
		}
		delta.DataManifest = m
	}

	if len(result.DeleteFiles) > 0 {
		m, err := WriteDeleteManifest(ctx, store, nextLocation(), spec, result.DeleteFiles)
		if err != nil {
			return nil, fmt.Errorf("staging delete files: %w", err)
		}
		delta.DeleteManifest = m
	}

	return delta, nil
}

// StageExistingFiles is the replay counterpart of StageCompletedFiles: the
// result's files are re-confirmed as already existing in the snapshot
// identified by snapshotID and sequenceNumber, without re-deriving their
// metrics.
func StageExistingFiles(ctx context.Context, store storage.Storage, snapshotID, sequenceNumber int64, result WriteResult, nextLocation func() string, spec iceberg.PartitionSpec) (*DeltaManifests, error) {
	delta := &DeltaManifests{ReferencedDataFiles: result.ReferencedDataFiles}

	if len(result.DataFiles) > 0 {
		m, err := ReferenceDataManifest(ctx, store, nextLocation(), snapshotID, sequenceNumber, spec, result.DataFiles)
		if err != nil {
			return nil, fmt.Errorf("staging existing data files: %w", err)
		}
		delta.DataManifest = m
	}

	if len(result.DeleteFiles) > 0 {
		m, err := ReferenceDeleteManifest(ctx, store, nextLocation(), snapshotID, sequenceNumber, spec, result.DeleteFiles)
		if err != nil {
			return nil, fmt.Errorf("staging existing delete files: %w", err)
		}
		delta.DeleteManifest = m
	}

	return delta, nil
}

// RestoreWriteResult reconstitutes the WriteResult persisted as delta.
// A nil bundle or absent manifests contribute empty file lists, never an
// error.
func RestoreWriteResult(ctx context.Context, store storage.Storage, delta *DeltaManifests) (*WriteResult, error) {
	result := &WriteResult{}
	if delta == nil {
		return result, nil
	}

	if delta.DataManifest != nil {
		files, err := ReadDataManifest(ctx, store, delta.DataManifest)
		if err != nil {
			return nil, fmt.Errorf("restoring data files: %w", err)
		}
		result.DataFiles = files
	}

	if delta.DeleteManifest != nil {
		files, err := ReadDeleteManifest(ctx, store, delta.DeleteManifest)
		if err != nil {
			return nil, fmt.Errorf("restoring delete files: %w", err)
		}
		result.DeleteFiles = files
	}

	result.ReferencedDataFiles = append([]string(nil), delta.ReferencedDataFiles...)
	return result, nil
}
