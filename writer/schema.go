package writer

import (
	"fmt"

	"icefloe/iceberg"
	"icefloe/schema"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/parquet-go/parquet-go"
)

// IcebergSchema maps a PostgreSQL table schema to the table format's
// schema. Field ids follow column ordinal positions, starting at 1.
func IcebergSchema(pgSchema *schema.TableSchema) iceberg.SchemaV2 {
	out := iceberg.SchemaV2{
		SchemaID: 0,
		Fields:   make([]iceberg.Field, 0, len(pgSchema.Columns)),
	}

	for i, col := range pgSchema.Columns {
		out.Fields = append(out.Fields, iceberg.Field{
			ID:       i + 1,
			Name:     col.Name,
			Required: !col.Nullable,
			Type:     postgresTypeToIceberg(col.TypeOID),
		})
	}

	return out
}

func postgresTypeToIceberg(pgTypeOID uint32) string {
	switch pgTypeOID {
	case pgtype.Int2OID, pgtype.Int4OID:
		return "int"
	case pgtype.Int8OID:
		return "long"
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID:
		return "string"
	case pgtype.Float8OID:
		return "double"
	case pgtype.Float4OID:
		return "float"
	case pgtype.BoolOID:
		return "boolean"
	case pgtype.DateOID:
		return "date"
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		return "timestamp"
	case pgtype.NumericOID:
		return "double" // Simplify decimal to double
	case pgtype.ByteaOID:
		return "binary"
	default:
		return "string" // Default to string for unknown types
	}
}

func createParquetSchema(s iceberg.SchemaV2) (*parquet.Schema, error) {
	root := make(parquet.Group)

	for _, field := range s.Fields {
		var node parquet.Node

		switch field.Type {
		case "int":
			node = parquet.Leaf(parquet.Int32Type)
		case "long":
			node = parquet.Leaf(parquet.Int64Type)
		case "string":
			node = parquet.Leaf(parquet.ByteArrayType)
		case "double":
			node = parquet.Leaf(parquet.DoubleType)
		case "float":
			node = parquet.Leaf(parquet.FloatType)
		case "boolean":
			node = parquet.Leaf(parquet.BooleanType)
		case "date":
			node = parquet.Date()
		case "timestamp":
			node = parquet.Timestamp(parquet.Millisecond)
		case "binary":
			node = parquet.Leaf(parquet.ByteArrayType)
		default:
			return nil, fmt.Errorf("unsupported type: %s", field.Type)
		}

		if !field.Required {
			node = parquet.Optional(node)
		}
		root[field.Name] = node
	}

	return parquet.NewSchema("schema", root), nil
}
