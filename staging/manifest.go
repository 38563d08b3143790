// Package staging bridges a streaming writer's per-checkpoint output into
// durable manifest artifacts that a committer later folds into a table
// snapshot. It is a faithful transport between the write phase and the
// commit phase: it never decides when to commit and never merges manifests
// into a snapshot itself.
package staging

import (
	"context"
	"encoding/json"
	"fmt"

	"icefloe/iceberg"
	"icefloe/storage"
)

// formatVersion is the table format version targeted by every manifest
// written here, part of the on-disk contract.
const formatVersion = 2

// placeholderSnapshotID marks newly written entries whose owning snapshot
// is not yet known at write time. The committer re-stamps restored entries
// with a real snapshot id at commit time; the placeholder is never used
// for identity and must not collide with real snapshot ids.
const placeholderSnapshotID int64 = 0

type dataManifestDoc struct {
	FormatVersion int                     `json:"format-version"`
	Content       int32                   `json:"content"`
	SpecID        int                     `json:"partition-spec-id"`
	Entries       []iceberg.ManifestEntry `json:"entries"`
}

type deleteManifestDoc struct {
	FormatVersion int                           `json:"format-version"`
	Content       int32                         `json:"content"`
	SpecID        int                           `json:"partition-spec-id"`
	Entries       []iceberg.DeleteManifestEntry `json:"entries"`
}

// WriteDataManifest writes the given data files into a new manifest
// artifact at location. Entries are marked "added" with the placeholder
// snapshot id. files must not be empty; callers represent "nothing to
// write" as an absent manifest, never an empty one.
func WriteDataManifest(ctx context.Context, store storage.Storage, location string, spec iceberg.PartitionSpec, files []iceberg.DataFile) (*iceberg.ManifestFile, error) {
	entries := make([]iceberg.ManifestEntry, 0, len(files))
	var rows int64
	for _, f := range files {
		entries = append(entries, iceberg.ManifestEntry{
			Status:     iceberg.EntryStatusAdded,
			SnapshotID: placeholderSnapshotID,
			DataFile:   f,
		})
		rows += f.RecordCount
	}

	doc := dataManifestDoc{
		FormatVersion: formatVersion,
		Content:       iceberg.ManifestContentData,
		SpecID:        spec.SpecID,
		Entries:       entries,
	}
	length, err := writeManifestDoc(ctx, store, location, doc)
	if err != nil {
		return nil, err
	}

	return &iceberg.ManifestFile{
		Path:            location,
		Length:          length,
		SpecID:          spec.SpecID,
		Content:         iceberg.ManifestContentData,
		AddedSnapshotID: placeholderSnapshotID,
		AddedFilesCount: int32(len(files)),
		AddedRowsCount:  rows,
	}, nil
}

// WriteDeleteManifest is the delete-file counterpart of WriteDataManifest.
func WriteDeleteManifest(ctx context.Context, store storage.Storage, location string, spec iceberg.PartitionSpec, files []iceberg.DeleteFile) (*iceberg.ManifestFile, error) {
	entries := make([]iceberg.DeleteManifestEntry, 0, len(files))
	var rows int64
	for _, f := range files {
		entries = append(entries, iceberg.DeleteManifestEntry{
			Status:     iceberg.EntryStatusAdded,
			SnapshotID: placeholderSnapshotID,
			DeleteFile: f,
		})
		rows += f.RecordCount
	}

	doc := deleteManifestDoc{
		FormatVersion: formatVersion,
		Content:       iceberg.ManifestContentDeletes,
		SpecID:        spec.SpecID,
		Entries:       entries,
	}
	length, err := writeManifestDoc(ctx, store, location, doc)
	if err != nil {
		return nil, err
	}

	return &iceberg.ManifestFile{
		Path:            location,
		Length:          length,
		SpecID:          spec.SpecID,
		Content:         iceberg.ManifestContentDeletes,
		AddedSnapshotID: placeholderSnapshotID,
		AddedFilesCount: int32(len(files)),
		AddedRowsCount:  rows,
	}, nil
}

// ReferenceDataManifest writes a manifest whose entries are stamped
// "existing" in the given snapshot with the given sequence number, instead
// of newly added. Used when a retried commit must acknowledge files that a
// prior attempt already landed in a snapshot.
func ReferenceDataManifest(ctx context.Context, store storage.Storage, location string, snapshotID, sequenceNumber int64, spec iceberg.PartitionSpec, files []iceberg.DataFile) (*iceberg.ManifestFile, error) {
	entries := make([]iceberg.ManifestEntry, 0, len(files))
	var rows int64
	for _, f := range files {
		entries = append(entries, iceberg.ManifestEntry{
			Status:       iceberg.EntryStatusExisting,
			SnapshotID:   snapshotID,
			SequenceNum:  sequenceNumber,
			FileSequence: sequenceNumber,
			DataFile:     f,
		})
		rows += f.RecordCount
	}

	doc := dataManifestDoc{
		FormatVersion: formatVersion,
		Content:       iceberg.ManifestContentData,
		SpecID:        spec.SpecID,
		Entries:       entries,
	}
	length, err := writeManifestDoc(ctx, store, location, doc)
	if err != nil {
		return nil, err
	}

	return &iceberg.ManifestFile{
		Path:               location,
		Length:             length,
		SpecID:             spec.SpecID,
		Content:            iceberg.ManifestContentData,
		SequenceNumber:     sequenceNumber,
		MinSequenceNumber:  sequenceNumber,
		AddedSnapshotID:    snapshotID,
		ExistingFilesCount: int32(len(files)),
		ExistingRowsCount:  rows,
	}, nil
}

// ReferenceDeleteManifest is the delete-file counterpart of
// ReferenceDataManifest.
func ReferenceDeleteManifest(ctx context.Context, store storage.Storage, location string, snapshotID, sequenceNumber int64, spec iceberg.PartitionSpec, files []iceberg.DeleteFile) (*iceberg.ManifestFile, error) {
	entries := make([]iceberg.DeleteManifestEntry, 0, len(files))
	var rows int64
	for _, f := range files {
		entries = append(entries, iceberg.DeleteManifestEntry{
			Status:       iceberg.EntryStatusExisting,
			SnapshotID:   snapshotID,
			SequenceNum:  sequenceNumber,
			FileSequence: sequenceNumber,
			DeleteFile:   f,
		})
		rows += f.RecordCount
	}

	doc := deleteManifestDoc{
		FormatVersion: formatVersion,
		Content:       iceberg.ManifestContentDeletes,
		SpecID:        spec.SpecID,
		Entries:       entries,
	}
	length, err := writeManifestDoc(ctx, store, location, doc)
	if err != nil {
		return nil, err
	}

	return &iceberg.ManifestFile{
		Path:               location,
		Length:             length,
		SpecID:             spec.SpecID,
		Content:            iceberg.ManifestContentDeletes,
		SequenceNumber:     sequenceNumber,
		MinSequenceNumber:  sequenceNumber,
		AddedSnapshotID:    snapshotID,
		ExistingFilesCount: int32(len(files)),
		ExistingRowsCount:  rows,
	}, nil
}

// ReadDataManifest materializes the data files listed in the manifest m.
// Snapshot id and sequence number from each entry are carried onto the
// returned files, so written and referenced entries read back uniformly.
func ReadDataManifest(ctx context.Context, store storage.Storage, m *iceberg.ManifestFile) ([]iceberg.DataFile, error) {
	var doc dataManifestDoc
	if err := readManifestDoc(ctx, store, m.Path, &doc); err != nil {
		return nil, err
	}

	files := make([]iceberg.DataFile, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		f := e.DataFile
		f.SnapshotID = e.SnapshotID
		f.SequenceNum = e.SequenceNum
		files = append(files, f)
	}
	return files, nil
}

// ReadDeleteManifest is the delete-file counterpart of ReadDataManifest.
func ReadDeleteManifest(ctx context.Context, store storage.Storage, m *iceberg.ManifestFile) ([]iceberg.DeleteFile, error) {
	var doc deleteManifestDoc
	if err := readManifestDoc(ctx, store, m.Path, &doc); err != nil {
		return nil, err
	}

	files := make([]iceberg.DeleteFile, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		f := e.DeleteFile
		f.SnapshotID = e.SnapshotID
		f.SequenceNum = e.SequenceNum
		files = append(files, f)
	}
	return files, nil
}

// writeManifestDoc persists doc at location. The writer is released on
// every exit path; on error no artifact handle reaches the caller.
func writeManifestDoc(ctx context.Context, store storage.Storage, location string, doc any) (int64, error) {
	out, err := store.Create(ctx, location)
	if err != nil {
		return 0, fmt.Errorf("creating manifest file: %w", err)
	}

	cw := storage.NewCountingWriter(out)
	err = json.NewEncoder(cw).Encode(doc)
	if cerr := cw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("writing manifest: %w", err)
	}

	return cw.Count(), nil
}

func readManifestDoc(ctx context.Context, store storage.Storage, location string, doc any) error {
	in, err := store.Open(ctx, location)
	if err != nil {
		return fmt.Errorf("opening manifest file: %w", err)
	}
	defer in.Close()

	if err := json.NewDecoder(in).Decode(doc); err != nil {
		return fmt.Errorf("decoding manifest: %w", err)
	}
	return nil
}
