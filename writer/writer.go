package writer

import (
	"context"
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"icefloe/iceberg"
	"icefloe/schema"
	"icefloe/staging"
	"icefloe/storage"

	"github.com/google/uuid"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/parquet-go/parquet-go"
)

// Writer turns replicated row changes into parquet data and delete files,
// one open file per table per checkpoint interval. It never commits:
// Flush hands the accumulated file descriptors to the caller as write
// results, and the staging layer takes it from there.
type Writer struct {
	store         storage.Storage
	writers       map[uint32]*tableWriter
	mu            sync.Mutex
	schemaManager *schema.Manager
	typeMap       *pgtype.Map
}

// FlushedTable pairs one table with the write result produced for it in
// the interval that just ended.
type FlushedTable struct {
	Table  *iceberg.Table
	Result staging.WriteResult
}

func NewWriter(store storage.Storage, schemaManager *schema.Manager) *Writer {
	return &Writer{
		store:         store,
		writers:       make(map[uint32]*tableWriter),
		schemaManager: schemaManager,
		typeMap:       pgtype.NewMap(),
	}
}

func (w *Writer) WriteInsert(ctx context.Context, msg *pglogrepl.InsertMessageV2, rel *pglogrepl.RelationMessageV2) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tw, err := w.getTableWriter(ctx, msg.RelationID)
	if err != nil {
		return err
	}

	record, err := w.mapTupleToRecord(msg.Tuple, rel)
	if err != nil {
		return fmt.Errorf("mapping tuple to record: %w", err)
	}

	return tw.writeRow(ctx, record)
}

func (w *Writer) WriteUpdate(ctx context.Context, msg *pglogrepl.UpdateMessageV2, rel *pglogrepl.RelationMessageV2) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tw, err := w.getTableWriter(ctx, msg.RelationID)
	if err != nil {
		return err
	}

	record, err := w.mapTupleToRecord(msg.NewTuple, rel)
	if err != nil {
		return fmt.Errorf("mapping tuple to record: %w", err)
	}

	return tw.writeRow(ctx, record)
}

// WriteDelete records an equality delete against the table's key columns.
// Deletes without a usable old tuple (replica identity NOTHING) are
// skipped with a warning.
func (w *Writer) WriteDelete(ctx context.Context, msg *pglogrepl.DeleteMessageV2, rel *pglogrepl.RelationMessageV2) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if msg.OldTuple == nil {
		log.Printf("skipping delete for relation %d: no old tuple (replica identity?)", msg.RelationID)
		return nil
	}

	tw, err := w.getTableWriter(ctx, msg.RelationID)
	if err != nil {
		return err
	}

	record, err := w.mapTupleToRecord(msg.OldTuple, rel)
	if err != nil {
		return fmt.Errorf("mapping old tuple to record: %w", err)
	}

	return tw.writeDeleteRow(ctx, rel, record)
}

// Flush closes every open file and returns one write result per table
// touched since the previous flush. The writer is ready for the next
// interval when Flush returns.
func (w *Writer) Flush(ctx context.Context) ([]FlushedTable, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	flushed := make([]FlushedTable, 0, len(w.writers))
	for _, tw := range w.writers {
		result, err := tw.flush(ctx)
		if err != nil {
			return nil, err
		}
		if len(result.DataFiles) == 0 && len(result.DeleteFiles) == 0 {
			continue
		}
		flushed = append(flushed, FlushedTable{Table: tw.table, Result: result})
	}

	return flushed, nil
}

func (w *Writer) getTableWriter(ctx context.Context, relationID uint32) (*tableWriter, error) {
	if tw, exists := w.writers[relationID]; exists {
		return tw, nil
	}

	tw, err := w.createWriter(ctx, relationID)
	if err != nil {
		return nil, err
	}

	w.writers[relationID] = tw
	return tw, nil
}

func (w *Writer) createWriter(ctx context.Context, relationID uint32) (*tableWriter, error) {
	pgSchema, err := w.schemaManager.GetSchema(relationID)
	if err != nil {
		return nil, fmt.Errorf("getting schema: %w", err)
	}

	icebergSchema := IcebergSchema(pgSchema)

	parquetSchema, err := createParquetSchema(icebergSchema)
	if err != nil {
		return nil, fmt.Errorf("creating parquet schema: %w", err)
	}

	location := fmt.Sprintf("%s.%s", pgSchema.Schema, pgSchema.Name)
	table, err := iceberg.NewTable(ctx, w.store, location, icebergSchema, nil)
	if err != nil {
		return nil, fmt.Errorf("opening table %s: %w", location, err)
	}

	return &tableWriter{
		table:         table,
		icebergSchema: icebergSchema,
		parquetSchema: parquetSchema,
		store:         w.store,
	}, nil
}

func (w *Writer) mapTupleToRecord(tuple *pglogrepl.TupleData, rel *pglogrepl.RelationMessageV2) (map[string]interface{}, error) {
	record := make(map[string]interface{})

	for idx, col := range tuple.Columns {
		colName := rel.Columns[idx].Name
		dataType := rel.Columns[idx].DataType

		switch col.DataType {
		case 'n': // null
			record[colName] = nil
		case 't': // text
			val, err := w.decodeColumnData(col.Data, dataType, int16(pgtype.TextFormatCode))
			if err != nil {
				return nil, fmt.Errorf("decoding column data for %s: %w", colName, err)
			}
			record[colName] = val
		case 'b': // binary
			record[colName] = col.Data
		case 'u': // unchanged TOAST data
			record[colName] = nil
		default:
			return nil, fmt.Errorf("unknown column data type: %v", col.DataType)
		}
	}
	return record, nil
}

func (w *Writer) decodeColumnData(data []byte, dataTypeOID uint32, formatCode int16) (interface{}, error) {
	dataType, ok := w.typeMap.TypeForOID(dataTypeOID)
	if !ok {
		// Unknown type, fall back to the raw text representation.
		return string(data), nil
	}

	value, err := dataType.Codec.DecodeValue(w.typeMap, dataTypeOID, formatCode, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode value for OID %d: %w", dataTypeOID, err)
	}

	return value, nil
}

// tableWriter owns the open parquet files of one table for the current
// checkpoint interval.
type tableWriter struct {
	table         *iceberg.Table
	icebergSchema iceberg.SchemaV2
	parquetSchema *parquet.Schema
	store         storage.Storage

	data    *openFile
	deletes *openFile

	// equality delete layout, built lazily from the first delete's
	// relation message
	deleteSchema *parquet.Schema
	equalityIDs  []int
	keyColumns   []string
}

// openFile is a parquet file being written for the current interval.
type openFile struct {
	path    string
	cw      *storage.CountingWriter
	pw      *parquet.GenericWriter[map[string]interface{}]
	records int64
}

func (tw *tableWriter) writeRow(ctx context.Context, record map[string]interface{}) error {
	if tw.data == nil {
		f, err := tw.open(ctx, tw.parquetSchema)
		if err != nil {
			return err
		}
		tw.data = f
	}

	if _, err := tw.data.pw.Write([]map[string]interface{}{record}); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	tw.data.records++
	return nil
}

func (tw *tableWriter) writeDeleteRow(ctx context.Context, rel *pglogrepl.RelationMessageV2, record map[string]interface{}) error {
	if tw.deleteSchema == nil {
		if err := tw.buildDeleteLayout(rel); err != nil {
			return err
		}
	}

	if tw.deletes == nil {
		f, err := tw.open(ctx, tw.deleteSchema)
		if err != nil {
			return err
		}
		tw.deletes = f
	}

	keyRecord := make(map[string]interface{}, len(tw.keyColumns))
	for _, name := range tw.keyColumns {
		keyRecord[name] = record[name]
	}

	if _, err := tw.deletes.pw.Write([]map[string]interface{}{keyRecord}); err != nil {
		return fmt.Errorf("writing delete record: %w", err)
	}
	tw.deletes.records++
	return nil
}

// buildDeleteLayout derives the equality-delete columns from the
// relation's key flags; falls back to all columns when the relation
// declares no key.
func (tw *tableWriter) buildDeleteLayout(rel *pglogrepl.RelationMessageV2) error {
	keyFields := make([]iceberg.Field, 0, len(rel.Columns))
	for i, col := range rel.Columns {
		if col.Flags&1 == 0 {
			continue
		}
		if i < len(tw.icebergSchema.Fields) {
			keyFields = append(keyFields, tw.icebergSchema.Fields[i])
		}
	}
	if len(keyFields) == 0 {
		keyFields = tw.icebergSchema.Fields
	}

	deleteSchema, err := createParquetSchema(iceberg.SchemaV2{Fields: keyFields})
	if err != nil {
		return fmt.Errorf("creating delete schema: %w", err)
	}

	tw.deleteSchema = deleteSchema
	tw.equalityIDs = make([]int, 0, len(keyFields))
	tw.keyColumns = make([]string, 0, len(keyFields))
	for _, f := range keyFields {
		tw.equalityIDs = append(tw.equalityIDs, f.ID)
		tw.keyColumns = append(tw.keyColumns, f.Name)
	}
	return nil
}

func (tw *tableWriter) open(ctx context.Context, s *parquet.Schema) (*openFile, error) {
	p := path.Join(tw.table.Location(), "data",
		fmt.Sprintf("%s-%s.parquet", time.Now().Format("20060102150405"), uuid.NewString()))

	out, err := tw.store.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("creating parquet file: %w", err)
	}

	cw := storage.NewCountingWriter(out)
	return &openFile{
		path: p,
		cw:   cw,
		pw:   parquet.NewGenericWriter[map[string]interface{}](cw, s),
	}, nil
}

func (f *openFile) close() (int64, error) {
	err := f.pw.Close()
	if cerr := f.cw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("closing parquet file %s: %w", f.path, err)
	}
	return f.cw.Count(), nil
}

func (tw *tableWriter) flush(ctx context.Context) (staging.WriteResult, error) {
	var result staging.WriteResult

	if tw.data != nil {
		size, err := tw.data.close()
		if err != nil {
			return result, err
		}
		result.DataFiles = append(result.DataFiles, iceberg.DataFile{
			Content:       iceberg.ContentData,
			FilePath:      tw.data.path,
			FileFormat:    "PARQUET",
			RecordCount:   tw.data.records,
			FileSizeBytes: size,
		})
		tw.data = nil
	}

	if tw.deletes != nil {
		size, err := tw.deletes.close()
		if err != nil {
			return result, err
		}
		result.DeleteFiles = append(result.DeleteFiles, iceberg.DeleteFile{
			Content:       iceberg.ContentEqualityDeletes,
			FilePath:      tw.deletes.path,
			FileFormat:    "PARQUET",
			RecordCount:   tw.deletes.records,
			FileSizeBytes: size,
			EqualityIDs:   tw.equalityIDs,
		})
		tw.deletes = nil
	}

	return result, nil
}
