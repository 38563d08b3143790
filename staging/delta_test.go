package staging

import (
	"context"
	"fmt"
	"testing"

	"icefloe/iceberg"
	"icefloe/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func locationSupplier(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%02d.manifest.json", prefix, n)
	}
}

func TestStageCompletedFilesDataOnly(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	wr := WriteResult{
		DataFiles: []iceberg.DataFile{
			testDataFile("data/db.users/a.parquet", 10),
			testDataFile("data/db.users/b.parquet", 20),
		},
	}

	delta, err := StageCompletedFiles(ctx, store, wr, locationSupplier("staging/cp1"), spec)
	require.NoError(t, err)
	require.NotNil(t, delta.DataManifest)
	assert.Nil(t, delta.DeleteManifest)
	assert.Empty(t, delta.ReferencedDataFiles)
	assert.Len(t, delta.Manifests(), 1)

	restored, err := RestoreWriteResult(ctx, store, delta)
	require.NoError(t, err)
	assert.Equal(t, wr.DataFiles, restored.DataFiles)
	assert.Empty(t, restored.DeleteFiles)
	assert.Empty(t, restored.ReferencedDataFiles)
}

func TestStageCompletedFilesDeletesWithReferences(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	wr := WriteResult{
		DeleteFiles:         []iceberg.DeleteFile{testDeleteFile("data/db.users/d.parquet", 2)},
		ReferencedDataFiles: []string{"path/x.parquet"},
	}

	delta, err := StageCompletedFiles(ctx, store, wr, locationSupplier("staging/cp2"), spec)
	require.NoError(t, err)
	assert.Nil(t, delta.DataManifest)
	require.NotNil(t, delta.DeleteManifest)
	assert.Equal(t, []string{"path/x.parquet"}, delta.ReferencedDataFiles)

	restored, err := RestoreWriteResult(ctx, store, delta)
	require.NoError(t, err)
	assert.Empty(t, restored.DataFiles)
	assert.Equal(t, wr.DeleteFiles, restored.DeleteFiles)
	assert.Equal(t, wr.ReferencedDataFiles, restored.ReferencedDataFiles)
}

func TestStageCompletedFilesEmptyResult(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	calls := 0
	next := func() string {
		calls++
		return "staging/never.manifest.json"
	}

	delta, err := StageCompletedFiles(ctx, store, WriteResult{}, next, spec)
	require.NoError(t, err)
	assert.Nil(t, delta.DataManifest)
	assert.Nil(t, delta.DeleteManifest)
	assert.Empty(t, delta.ReferencedDataFiles)
	assert.Empty(t, delta.Manifests())
	// No location was requested and no artifact written.
	assert.Zero(t, calls)
	files, err := store.List(ctx, "staging")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStageExistingFilesStampsPropagate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	wr := WriteResult{
		DataFiles:           []iceberg.DataFile{testDataFile("data/db.users/a.parquet", 7)},
		DeleteFiles:         []iceberg.DeleteFile{testDeleteFile("data/db.users/d.parquet", 1)},
		ReferencedDataFiles: []string{"path/x.parquet", "path/y.parquet"},
	}

	delta, err := StageExistingFiles(ctx, store, 4242, 9, wr, locationSupplier("staging/cp3"), spec)
	require.NoError(t, err)
	require.NotNil(t, delta.DataManifest)
	require.NotNil(t, delta.DeleteManifest)
	assert.Equal(t, wr.ReferencedDataFiles, delta.ReferencedDataFiles)

	restored, err := RestoreWriteResult(ctx, store, delta)
	require.NoError(t, err)
	require.Len(t, restored.DataFiles, 1)
	assert.Equal(t, int64(4242), restored.DataFiles[0].SnapshotID)
	assert.Equal(t, int64(9), restored.DataFiles[0].SequenceNum)
	require.Len(t, restored.DeleteFiles, 1)
	assert.Equal(t, int64(4242), restored.DeleteFiles[0].SnapshotID)
	assert.Equal(t, int64(9), restored.DeleteFiles[0].SequenceNum)
	assert.Equal(t, wr.ReferencedDataFiles, restored.ReferencedDataFiles)
}

func TestRestoreWriteResultNilBundle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	restored, err := RestoreWriteResult(ctx, store, nil)
	require.NoError(t, err)
	assert.Empty(t, restored.DataFiles)
	assert.Empty(t, restored.DeleteFiles)
	assert.Empty(t, restored.ReferencedDataFiles)
}

func TestRestoreWriteResultReferencesOnly(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	delta := &DeltaManifests{ReferencedDataFiles: []string{"path/z.parquet"}}
	restored, err := RestoreWriteResult(ctx, store, delta)
	require.NoError(t, err)
	assert.Empty(t, restored.DataFiles)
	assert.Empty(t, restored.DeleteFiles)
	assert.Equal(t, []string{"path/z.parquet"}, restored.ReferencedDataFiles)
}

func TestDeltaManifestsMarshalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	wr := WriteResult{
		DataFiles:           []iceberg.DataFile{testDataFile("data/db.users/a.parquet", 5)},
		ReferencedDataFiles: []string{"path/x.parquet"},
	}
	delta, err := StageCompletedFiles(ctx, store, wr, locationSupplier("staging/cp4"), spec)
	require.NoError(t, err)

	data, err := delta.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalDeltaManifests(data)
	require.NoError(t, err)
	assert.Equal(t, delta, decoded)

	// The round-tripped bundle still restores the same write result.
	restored, err := RestoreWriteResult(ctx, store, decoded)
	require.NoError(t, err)
	assert.Equal(t, wr.DataFiles, restored.DataFiles)
	assert.Equal(t, wr.ReferencedDataFiles, restored.ReferencedDataFiles)
}
