package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	in := `-- header
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(in)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y String) ENGINE = Memory", stmts[1])
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b';"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://user:pw@localhost:9000/rabbit_quant")
	require.NoError(t, err)
	assert.Equal(t, "rabbit_quant", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestSQLFiles_Ordered(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql":   {Data: []byte("x")},
		"pg/001_a.sql":   {Data: []byte("y")},
		"pg/README.md":   {Data: []byte("z")},
		"pg/sub/003.sql": {Data: []byte("w")},
	}
	files, err := sqlFiles(fsys, "pg")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)
}

func TestEmbeddedSchemas(t *testing.T) {
	pg, err := sqlFiles(postgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_backtest_runs.sql", "002_trade_records.sql", "003_sweep_results.sql"}, pg)

	ch, err := sqlFiles(clickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_ohlcv.sql", "002_signals.sql"}, ch)

	for _, f := range ch {
		data, err := clickhouseFS.ReadFile("clickhouse/" + f)
		require.NoError(t, err)
		assert.NoError(t, validateNoSemicolonInStrings(string(data)))
		assert.Len(t, splitStatements(string(data)), 1, f)
	}
}
