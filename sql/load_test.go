package sql

import (
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func functionExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestInit(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	t.Run("Initialize database extensions", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		var exists bool
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'pg_trgm');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "pg_trgm extension should be created")
	})

	t.Run("Initialize database extensions is idempotent", func(t *testing.T) {
		assert.NoError(t, Init(db.Instance))
		assert.NoError(t, Init(db.Instance))
	})
}

func TestLoadSql(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	loaders := []struct {
		name      string
		load      func(*sql.DB, bool) error
		functions []string
	}{
		{"entities", LoadEntitiesSql, EntitiesFunctions},
		{"mentions", LoadMentionsSql, MentionsFunctions},
		{"resolutions", LoadResolutionsSql, ResolutionsFunctions},
	}

	for _, l := range loaders {
		t.Run("Load "+l.name+" SQL functions", func(t *testing.T) {
			require.NoError(t, l.load(db.Instance, false))
			for _, f := range l.functions {
				assert.True(t, functionExists(t, db.Instance, f), "Function %s should exist", f)
			}
		})

		t.Run("Load "+l.name+" SQL is idempotent without force", func(t *testing.T) {
			assert.NoError(t, l.load(db.Instance, false))
		})

		t.Run("Load "+l.name+" SQL with force reloads", func(t *testing.T) {
			require.NoError(t, l.load(db.Instance, true))
			for _, f := range l.functions {
				assert.True(t, functionExists(t, db.Instance, f), "Function %s should exist after force reload", f)
			}
		})
	}
}

func TestLoadAllSql(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	t.Run("Load all SQL functions", func(t *testing.T) {
		require.NoError(t, LoadAllSql(db.Instance, false))

		all := append(append(append([]string{}, EntitiesFunctions...), MentionsFunctions...), ResolutionsFunctions...)
		for _, f := range all {
			assert.True(t, functionExists(t, db.Instance, f), "Function %s should exist", f)
		}
	})

	t.Run("Init functions create the tables", func(t *testing.T) {
		for _, fn := range []string{"init_entities", "init_mentions", "init_resolutions"} {
			_, err := db.Instance.Exec("SELECT " + fn + "();")
			require.NoError(t, err)
		}

		for _, table := range []string{"entities", "entity_identifiers", "mentions", "resolutions"} {
			var exists bool
			err := db.Instance.QueryRow("SELECT to_regclass($1) IS NOT NULL;", table).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Table %s should exist", table)
		}
	})

	t.Run("Load all SQL with force reloads", func(t *testing.T) {
		assert.NoError(t, LoadAllSql(db.Instance, true))
	})
}

func TestCheckFunctions(t *testing.T) {
	db := initDB(t)
	defer db.Close()

	require.NoError(t, LoadEntitiesSql(db.Instance, false))

	t.Run("Check functions returns false when functions don't exist", func(t *testing.T) {
		exists, err := checkFunctions(db.Instance, []string{"nonexistent_function"})
		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Check functions returns true when all functions exist", func(t *testing.T) {
		exists, err := checkFunctions(db.Instance, EntitiesFunctions)
		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Check functions returns false when some functions don't exist", func(t *testing.T) {
		exists, err := checkFunctions(db.Instance, []string{"init_entities", "nonexistent_function"})
		assert.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Check functions with empty list", func(t *testing.T) {
		exists, err := checkFunctions(db.Instance, []string{})
		assert.NoError(t, err)
		assert.False(t, exists, "An empty list never counts as loaded")
	})
}

func TestEmbeddedSQL(t *testing.T) {
	t.Run("Init SQL is embedded", func(t *testing.T) {
		assert.Contains(t, initSQL, "CREATE EXTENSION")
	})

	t.Run("Every listed function is defined in its script", func(t *testing.T) {
		scripts := map[string][]string{
			entitiesSQL:    EntitiesFunctions,
			mentionsSQL:    MentionsFunctions,
			resolutionsSQL: ResolutionsFunctions,
		}
		for script, functions := range scripts {
			for _, f := range functions {
				assert.Contains(t, script, "CREATE OR REPLACE FUNCTION "+f+"(")
			}
		}
	})

	t.Run("Identifier uniqueness is a table constraint", func(t *testing.T) {
		assert.Contains(t, entitiesSQL, "UNIQUE (identifier_type, identifier_value)")
	})
}
