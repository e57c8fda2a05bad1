package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	script := `
-- runs table
CREATE TABLE runs (id TEXT PRIMARY KEY);

-- only a comment here

CREATE INDEX idx_runs ON runs(id);
`
	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "-- runs table"))
	assert.Contains(t, stmts[0], "CREATE TABLE runs")
	assert.Contains(t, stmts[1], "CREATE INDEX idx_runs")
}

func TestSplitStatements_Empty(t *testing.T) {
	assert.Empty(t, splitStatements(""))
	assert.Empty(t, splitStatements("-- nothing but comments\n-- more comments"))
}

func TestMigrationScriptShape(t *testing.T) {
	stmts := splitStatements(migration001)
	require.NotEmpty(t, stmts)

	joined := strings.Join(stmts, "\n")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS runs")
	assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS schedules")
}
