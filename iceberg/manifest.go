package iceberg

// Manifest entry status values.
const (
	EntryStatusExisting int32 = 0
	EntryStatusAdded    int32 = 1
	EntryStatusDeleted  int32 = 2
)

// Data file content kinds.
const (
	ContentData            int32 = 0
	ContentPositionDeletes int32 = 1
	ContentEqualityDeletes int32 = 2
)

// Manifest content kinds.
const (
	ManifestContentData    int32 = 0
	ManifestContentDeletes int32 = 1
)

type ManifestEntry struct {
	Status       int32    `json:"status"`
	SnapshotID   int64    `json:"snapshot-id"`
	SequenceNum  int64    `json:"sequence-number"`
	FileSequence int64    `json:"file-sequence-number"`
	DataFile     DataFile `json:"data-file"`
}

type DeleteManifestEntry struct {
	Status       int32      `json:"status"`
	SnapshotID   int64      `json:"snapshot-id"`
	SequenceNum  int64      `json:"sequence-number"`
	FileSequence int64      `json:"file-sequence-number"`
	DeleteFile   DeleteFile `json:"data-file"`
}

type DataFile struct {
	Content       int32             `json:"content"`
	FilePath      string            `json:"file-path"`
	FileFormat    string            `json:"file-format"`
	Partition     map[string]string `json:"partition,omitempty"`
	RecordCount   int64             `json:"record-count"`
	FileSizeBytes int64             `json:"file-size-in-bytes"`
	Metrics       FileMetrics       `json:"metrics"`

	// Stamped from the owning manifest entry when the file is read back:
	// the snapshot the file belongs to and its data sequence number.
	SnapshotID  int64 `json:"-"`
	SequenceNum int64 `json:"-"`
}

// DeleteFile describes a file of positional or equality deletes. The shape
// mirrors DataFile; EqualityIDs names the schema field ids an equality
// delete matches on.
type DeleteFile struct {
	Content       int32             `json:"content"`
	FilePath      string            `json:"file-path"`
	FileFormat    string            `json:"file-format"`
	Partition     map[string]string `json:"partition,omitempty"`
	RecordCount   int64             `json:"record-count"`
	FileSizeBytes int64             `json:"file-size-in-bytes"`
	EqualityIDs   []int             `json:"equality-ids,omitempty"`
	Metrics       FileMetrics       `json:"metrics"`

	SnapshotID  int64 `json:"-"`
	SequenceNum int64 `json:"-"`
}

type FileMetrics struct {
	ColumnSizes     map[int]int64  `json:"column-sizes,omitempty"`
	ValueCounts     map[int]int64  `json:"value-counts,omitempty"`
	NullValueCounts map[int]int64  `json:"null-value-counts,omitempty"`
	LowerBounds     map[int][]byte `json:"lower-bounds,omitempty"`
	UpperBounds     map[int][]byte `json:"upper-bounds,omitempty"`
}

// ManifestFile is an immutable handle to a persisted manifest artifact:
// its location plus summary statistics. It is what goes into checkpoint
// state and what the committer folds into a snapshot.
type ManifestFile struct {
	Path               string `json:"manifest-path"`
	Length             int64  `json:"manifest-length"`
	SpecID             int    `json:"partition-spec-id"`
	Content            int32  `json:"content"`
	SequenceNumber     int64  `json:"sequence-number"`
	MinSequenceNumber  int64  `json:"min-sequence-number"`
	AddedSnapshotID    int64  `json:"added-snapshot-id"`
	AddedFilesCount    int32  `json:"added-files-count"`
	ExistingFilesCount int32  `json:"existing-files-count"`
	AddedRowsCount     int64  `json:"added-rows-count"`
	ExistingRowsCount  int64  `json:"existing-rows-count"`
}
