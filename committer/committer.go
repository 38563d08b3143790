// Package committer applies staged delta manifests to a table: it is the
// commit phase of the two-phase sink. The staging layer records what was
// written; the committer decides nothing about timing either, it just
// folds whatever bundle the coordinator hands it into the next snapshot.
package committer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strconv"
	"time"

	"icefloe/iceberg"
	"icefloe/staging"
	"icefloe/storage"
)

type Committer struct {
	table *iceberg.Table
	store storage.Storage
}

func NewCommitter(table *iceberg.Table) *Committer {
	return &Committer{
		table: table,
		store: table.Storage(),
	}
}

// Commit restores the write result persisted as delta, re-stamps its
// entries with a freshly allocated snapshot id (the staging placeholder is
// never used for identity), appends the snapshot to table metadata, and
// finally removes the consumed staged artifacts. Removal failures are
// logged, not fatal: the snapshot is already durable at that point.
func (c *Committer) Commit(ctx context.Context, delta *staging.DeltaManifests) error {
	result, err := staging.RestoreWriteResult(ctx, c.store, delta)
	if err != nil {
		return fmt.Errorf("restoring write result: %w", err)
	}

	if len(result.DataFiles) == 0 && len(result.DeleteFiles) == 0 && len(result.ReferencedDataFiles) == 0 {
		return nil
	}

	snapshotID := c.table.NewSnapshotID()
	sequenceNumber := c.table.Metadata().LastSequenceNumber + 1
	spec := c.table.Spec()

	committed := make([]*iceberg.ManifestFile, 0, 2)

	if len(result.DataFiles) > 0 {
		location := path.Join(c.table.Location(), "metadata",
			fmt.Sprintf("snap-%d-data.manifest.json", snapshotID))
		m, err := staging.ReferenceDataManifest(ctx, c.store, location, snapshotID, sequenceNumber, spec, result.DataFiles)
		if err != nil {
			return fmt.Errorf("committing data manifest: %w", err)
		}
		committed = append(committed, m)
	}

	if len(result.DeleteFiles) > 0 {
		location := path.Join(c.table.Location(), "metadata",
			fmt.Sprintf("snap-%d-deletes.manifest.json", snapshotID))
		m, err := staging.ReferenceDeleteManifest(ctx, c.store, location, snapshotID, sequenceNumber, spec, result.DeleteFiles)
		if err != nil {
			return fmt.Errorf("committing delete manifest: %w", err)
		}
		committed = append(committed, m)
	}

	manifestList := path.Join(c.table.Location(), "metadata",
		fmt.Sprintf("snap-%d.manifest-list.json", snapshotID))
	if err := c.writeManifestList(ctx, manifestList, committed); err != nil {
		return fmt.Errorf("writing manifest list: %w", err)
	}

	snap := &iceberg.Snapshot{
		SnapshotID:     snapshotID,
		SequenceNumber: sequenceNumber,
		TimestampMs:    time.Now().UnixMilli(),
		ManifestList:   manifestList,
		Summary: map[string]string{
			"added-data-files":      strconv.Itoa(len(result.DataFiles)),
			"added-delete-files":    strconv.Itoa(len(result.DeleteFiles)),
			"referenced-data-files": strconv.Itoa(len(result.ReferencedDataFiles)),
		},
	}

	if err := c.table.AppendSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("appending snapshot: %w", err)
	}

	for _, m := range delta.Manifests() {
		if err := c.store.Delete(ctx, m.Path); err != nil {
			log.Printf("leaving orphaned staged manifest %s: %v", m.Path, err)
		}
	}

	return nil
}

func (c *Committer) writeManifestList(ctx context.Context, location string, manifests []*iceberg.ManifestFile) error {
	out, err := c.store.Create(ctx, location)
	if err != nil {
		return fmt.Errorf("creating manifest list: %w", err)
	}

	err = json.NewEncoder(out).Encode(manifests)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encoding manifest list: %w", err)
	}
	return nil
}
