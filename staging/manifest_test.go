package staging

import (
	"context"
	"errors"
	"io"
	"testing"

	"icefloe/iceberg"
	"icefloe/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataFile(path string, records int64) iceberg.DataFile {
	return iceberg.DataFile{
		Content:       iceberg.ContentData,
		FilePath:      path,
		FileFormat:    "PARQUET",
		Partition:     map[string]string{"bucket": "0"},
		RecordCount:   records,
		FileSizeBytes: records * 128,
	}
}

func testDeleteFile(path string, records int64) iceberg.DeleteFile {
	return iceberg.DeleteFile{
		Content:       iceberg.ContentEqualityDeletes,
		FilePath:      path,
		FileFormat:    "PARQUET",
		RecordCount:   records,
		FileSizeBytes: records * 64,
		EqualityIDs:   []int{1},
	}
}

func TestDataManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	files := []iceberg.DataFile{
		testDataFile("data/db.users/a.parquet", 100),
		testDataFile("data/db.users/b.parquet", 42),
	}

	m, err := WriteDataManifest(ctx, store, "metadata/staging/m1.manifest.json", spec, files)
	require.NoError(t, err)
	assert.Equal(t, "metadata/staging/m1.manifest.json", m.Path)
	assert.Equal(t, iceberg.ManifestContentData, m.Content)
	assert.Equal(t, int32(2), m.AddedFilesCount)
	assert.Equal(t, int64(142), m.AddedRowsCount)
	assert.Greater(t, m.Length, int64(0))

	decoded, err := ReadDataManifest(ctx, store, m)
	require.NoError(t, err)
	assert.Equal(t, files, decoded)
}

func TestDeleteManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	files := []iceberg.DeleteFile{
		testDeleteFile("data/db.users/d1.parquet", 3),
	}

	m, err := WriteDeleteManifest(ctx, store, "metadata/staging/m2.manifest.json", spec, files)
	require.NoError(t, err)
	assert.Equal(t, iceberg.ManifestContentDeletes, m.Content)

	decoded, err := ReadDeleteManifest(ctx, store, m)
	require.NoError(t, err)
	assert.Equal(t, files, decoded)
}

func TestReferenceManifestStampsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	files := []iceberg.DataFile{testDataFile("data/db.users/a.parquet", 10)}

	m, err := ReferenceDataManifest(ctx, store, "metadata/staging/m3.manifest.json", 777, 12, spec, files)
	require.NoError(t, err)
	assert.Equal(t, int64(777), m.AddedSnapshotID)
	assert.Equal(t, int64(12), m.SequenceNumber)
	assert.Equal(t, int32(1), m.ExistingFilesCount)
	assert.Equal(t, int32(0), m.AddedFilesCount)

	decoded, err := ReadDataManifest(ctx, store, m)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, int64(777), decoded[0].SnapshotID)
	assert.Equal(t, int64(12), decoded[0].SequenceNum)
	// Beyond the stamps the decoded file matches the input.
	want := files[0]
	want.SnapshotID = 777
	want.SequenceNum = 12
	assert.Equal(t, want, decoded[0])
}

func TestReferenceDeleteManifestStampsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	files := []iceberg.DeleteFile{testDeleteFile("data/db.users/d1.parquet", 5)}

	m, err := ReferenceDeleteManifest(ctx, store, "metadata/staging/m4.manifest.json", 900, 4, spec, files)
	require.NoError(t, err)

	decoded, err := ReadDeleteManifest(ctx, store, m)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, int64(900), decoded[0].SnapshotID)
	assert.Equal(t, int64(4), decoded[0].SequenceNum)
}

func TestReadManifestIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := iceberg.UnpartitionedSpec()

	files := []iceberg.DataFile{
		testDataFile("data/db.users/a.parquet", 1),
		testDataFile("data/db.users/b.parquet", 2),
	}
	m, err := WriteDataManifest(ctx, store, "metadata/staging/m5.manifest.json", spec, files)
	require.NoError(t, err)

	first, err := ReadDataManifest(ctx, store, m)
	require.NoError(t, err)
	second, err := ReadDataManifest(ctx, store, m)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteManifestCreateFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStorage{createErr: errors.New("object store down")}
	spec := iceberg.UnpartitionedSpec()

	m, err := WriteDataManifest(ctx, store, "m.manifest.json", spec, []iceberg.DataFile{testDataFile("a", 1)})
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestWriteManifestCloseFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStorage{closeErr: errors.New("upload failed")}
	spec := iceberg.UnpartitionedSpec()

	m, err := WriteDeleteManifest(ctx, store, "m.manifest.json", spec, []iceberg.DeleteFile{testDeleteFile("d", 1)})
	assert.Error(t, err)
	assert.Nil(t, m)
}

// failingStorage fails on Create or on Close of the returned writer.
type failingStorage struct {
	createErr error
	closeErr  error
}

func (f *failingStorage) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &failingWriter{err: f.closeErr}, nil
}

func (f *failingStorage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return nil, errors.New("not readable")
}

func (f *failingStorage) Delete(ctx context.Context, name string) error { return nil }

func (f *failingStorage) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

type failingWriter struct {
	err error
}

func (w *failingWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w *failingWriter) Close() error                { return w.err }
