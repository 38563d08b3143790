package staging

import (
	"context"
	"strings"
	"testing"

	"icefloe/iceberg"
	"icefloe/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T, props map[string]string) *iceberg.Table {
	t.Helper()
	store := storage.NewLocalStorage(t.TempDir())
	schema := iceberg.SchemaV2{Fields: []iceberg.Field{{ID: 1, Name: "id", Type: "long", Required: true}}}
	table, err := iceberg.NewTable(context.Background(), store, "warehouse/db/users", schema, props)
	require.NoError(t, err)
	return table
}

func TestFactoryLocationsUnique(t *testing.T) {
	table := testTable(t, nil)

	factories := []*OutputFileFactory{
		NewOutputFileFactory(table, "J1", 3, 0),
		NewOutputFileFactory(table, "J1", 3, 1), // retry of the same subtask
		NewOutputFileFactory(table, "J1", 4, 0), // concurrent subtask
		NewOutputFileFactory(table, "J2", 3, 0), // different job
	}

	seen := map[string]bool{}
	for _, f := range factories {
		for i := 0; i < 10; i++ {
			loc := f.Next()
			assert.False(t, seen[loc], "duplicate location %s", loc)
			seen[loc] = true
		}
	}
	assert.Len(t, seen, 40)
}

func TestFactoryDefaultPrefix(t *testing.T) {
	table := testTable(t, nil)
	f := NewOutputFileFactory(table, "job", 0, 0)

	loc := f.Next()
	assert.True(t, strings.HasPrefix(loc, "warehouse/db/users/metadata/staging/"), "got %s", loc)
}

func TestFactoryPrefixOverride(t *testing.T) {
	table := testTable(t, map[string]string{PropertyManifestLocation: "tmp/staging"})
	f := NewOutputFileFactory(table, "job", 0, 0)

	loc := f.Next()
	assert.True(t, strings.HasPrefix(loc, "tmp/staging/"), "got %s", loc)
}
