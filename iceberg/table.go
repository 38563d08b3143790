package iceberg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"
	"time"

	"icefloe/storage"

	"github.com/google/uuid"
)

// Table binds loaded table metadata to the storage holding the table's
// files. Location is a path relative to the storage root.
type Table struct {
	store    storage.Storage
	location string
	metadata *TableMetadata
	mu       sync.Mutex
}

// NewTable loads the table at location, creating fresh metadata with the
// given schema when none exists yet.
func NewTable(ctx context.Context, store storage.Storage, location string, schema SchemaV2, props map[string]string) (*Table, error) {
	t := &Table{store: store, location: location}

	metadata, err := t.loadMetadata(ctx)
	if err == nil {
		t.metadata = metadata
		return t, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading metadata: %w", err)
	}

	if props == nil {
		props = map[string]string{}
	}
	t.metadata = &TableMetadata{
		FormatVersion:  2,
		TableUUID:      uuid.New().String(),
		Location:       location,
		LastUpdated:    time.Now().UnixMilli(),
		LastColumnID:   len(schema.Fields),
		SchemaID:       schema.SchemaID,
		Schemas:        []SchemaV2{schema},
		CurrentSchema:  schema,
		PartitionSpecs: []PartitionSpec{UnpartitionedSpec()},
		Properties:     props,
		Snapshots:      []*Snapshot{},
	}

	if err := t.writeMetadata(ctx); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	return t, nil
}

func (t *Table) Location() string {
	return t.location
}

func (t *Table) Storage() storage.Storage {
	return t.store
}

func (t *Table) Properties() map[string]string {
	return t.metadata.Properties
}

func (t *Table) Metadata() *TableMetadata {
	return t.metadata
}

// Spec returns the table's current partition spec.
func (t *Table) Spec() PartitionSpec {
	if len(t.metadata.PartitionSpecs) == 0 {
		return UnpartitionedSpec()
	}
	return t.metadata.PartitionSpecs[len(t.metadata.PartitionSpecs)-1]
}

// NewSnapshotID allocates a snapshot id guaranteed not to collide with the
// staging placeholder (0) or any previously assigned id.
func (t *Table) NewSnapshotID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := time.Now().UnixMilli()
	if t.metadata.CurrentSnapshot != nil && id <= t.metadata.CurrentSnapshot.SnapshotID {
		id = t.metadata.CurrentSnapshot.SnapshotID + 1
	}
	return id
}

// AppendSnapshot records snap as the new current snapshot and rewrites the
// metadata file.
func (t *Table) AppendSnapshot(ctx context.Context, snap *Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.metadata.CurrentSnapshot != nil {
		snap.ParentSnapshotID = t.metadata.CurrentSnapshot.SnapshotID
	}
	t.metadata.CurrentSnapshot = snap
	t.metadata.Snapshots = append(t.metadata.Snapshots, snap)
	if snap.SequenceNumber > t.metadata.LastSequenceNumber {
		t.metadata.LastSequenceNumber = snap.SequenceNumber
	}
	t.metadata.LastUpdated = time.Now().UnixMilli()

	if err := t.writeMetadata(ctx); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func (t *Table) metadataPath() string {
	return path.Join(t.location, "metadata", "metadata.json")
}

func (t *Table) loadMetadata(ctx context.Context) (*TableMetadata, error) {
	file, err := t.store.Open(ctx, t.metadataPath())
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var metadata TableMetadata
	if err := json.NewDecoder(file).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	return &metadata, nil
}

func (t *Table) writeMetadata(ctx context.Context) error {
	file, err := t.store.Create(ctx, t.metadataPath())
	if err != nil {
		return fmt.Errorf("creating metadata file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(t.metadata)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	return nil
}
