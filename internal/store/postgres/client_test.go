package postgres

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/metaquote?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "metaquote"}))
	assert.Equal(t, "postgres://u:p@db:6543/q?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "q", SSLMode: "require"}))
	assert.Equal(t, "postgres://override", DSN(ClientConfig{DSN: "postgres://override", Host: "ignored"}))
}

func TestDSNEscapesCredentials(t *testing.T) {
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/metaquote?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "app", Password: "p@ss/word", Database: "metaquote"}))
}

func TestMigrationFilesOrdered(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"migrations/001_quote_observations.sql",
		"migrations/002_stream_events.sql",
	}, files)

	for _, f := range files {
		data, err := fs.ReadFile(migrationsFS, f)
		require.NoError(t, err)
		assert.NotEmpty(t, data, f)
	}
}
